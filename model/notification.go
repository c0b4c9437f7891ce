package model

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationChannel is the transport a notification was sent over
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
)

// NotificationEvent names the ledger event that triggered a notification
type NotificationEvent string

const (
	NotificationEventInvoiceIssued   NotificationEvent = "invoice_issued"
	NotificationEventPaymentReceived NotificationEvent = "payment_received"
	NotificationEventInvoiceOverdue  NotificationEvent = "invoice_overdue"
)

// NotificationStatus is the delivery outcome
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// InvoiceNotification records each attempt to tell a student about their invoice
type InvoiceNotification struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time           `gorm:"index" json:"created_at"`
	InvoiceID uint                `gorm:"not null;index" json:"invoice_id"`
	StudentID uint                `gorm:"not null;index" json:"student_id"`
	Event     NotificationEvent   `gorm:"type:varchar(30);not null" json:"event"`
	Channel   NotificationChannel `gorm:"type:varchar(10);not null" json:"channel"`
	Recipient string              `gorm:"type:varchar(255)" json:"recipient"`
	Status    NotificationStatus  `gorm:"type:varchar(10);not null" json:"status"`
	Error     string              `gorm:"type:text" json:"error,omitempty"`
	Metadata  datatypes.JSON      `json:"metadata,omitempty"`
}

// TableName specifies the table name for InvoiceNotification
func (InvoiceNotification) TableName() string {
	return "invoice_notifications"
}
