package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the payment state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsValid reports whether s is a known invoice status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPartial, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// InvoiceType distinguishes what an invoice bills for
type InvoiceType string

const (
	InvoiceTypeRegistration  InvoiceType = "registration"
	InvoiceTypeTuitionBlock1 InvoiceType = "tuition_block1"
	InvoiceTypeTuitionBlock2 InvoiceType = "tuition_block2"
	InvoiceTypeLateFee       InvoiceType = "late_fee"
	InvoiceTypeOther         InvoiceType = "other"
)

// IsValid reports whether t is a known invoice type
func (t InvoiceType) IsValid() bool {
	switch t {
	case InvoiceTypeRegistration, InvoiceTypeTuitionBlock1, InvoiceTypeTuitionBlock2,
		InvoiceTypeLateFee, InvoiceTypeOther:
		return true
	}
	return false
}

// IsClosed reports whether no further payments or overrides are accepted
func (s InvoiceStatus) IsClosed() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// StatusSource records who last decided an invoice's status
type StatusSource string

const (
	StatusSourceComputed StatusSource = "computed"
	StatusSourceOverride StatusSource = "override"
)

// Invoice is an amount owed by a student for a class batch
type Invoice struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	InvoiceNumber string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"invoice_number"`
	StudentID     uint            `gorm:"not null;index;uniqueIndex:idx_invoice_live_student_class_type,where:status <> 'cancelled'" json:"student_id"`
	ClassBatchID  uint            `gorm:"not null;index;uniqueIndex:idx_invoice_live_student_class_type,where:status <> 'cancelled'" json:"class_batch_id"`
	InvoiceType   InvoiceType     `gorm:"type:varchar(20);not null;uniqueIndex:idx_invoice_live_student_class_type,where:status <> 'cancelled'" json:"invoice_type"`
	Description   string          `gorm:"type:text" json:"description"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaidAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"paid_amount"`
	Balance       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance"`
	Status        InvoiceStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StatusSource  StatusSource    `gorm:"type:varchar(20);not null;default:'computed'" json:"status_source"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	CreatedBy     uint            `json:"created_by"`

	// Relationships
	Student       *Student               `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	ClassBatch    *ClassBatch            `gorm:"foreignKey:ClassBatchID" json:"class_batch,omitempty"`
	Transactions  []FinancialTransaction `gorm:"foreignKey:InvoiceID" json:"transactions,omitempty"`
	StatusChanges []InvoiceStatusChange  `gorm:"foreignKey:InvoiceID" json:"status_changes,omitempty"`
}

// TableName specifies the table name for Invoice
func (Invoice) TableName() string {
	return "invoices"
}

// TransactionStatus is the settlement state of a payment
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// FinancialTransaction is a payment recorded against an invoice
type FinancialTransaction struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	InvoiceID     uint              `gorm:"not null;index" json:"invoice_id"`
	Reference     uuid.UUID         `gorm:"type:uuid;uniqueIndex;not null" json:"reference"`
	Amount        decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status        TransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod string            `gorm:"type:varchar(50)" json:"payment_method"`
	Note          string            `gorm:"type:text" json:"note,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	RecordedBy    uint              `json:"recorded_by"`
}

// TableName specifies the table name for FinancialTransaction
func (FinancialTransaction) TableName() string {
	return "financial_transactions"
}

// InvoiceStatusChange is the audit trail of invoice status transitions
type InvoiceStatusChange struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time     `gorm:"index" json:"created_at"`
	InvoiceID  uint          `gorm:"not null;index" json:"invoice_id"`
	FromStatus InvoiceStatus `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus   InvoiceStatus `gorm:"type:varchar(20);not null" json:"to_status"`
	Source     StatusSource  `gorm:"type:varchar(20);not null" json:"source"`
	Reason     string        `gorm:"type:text" json:"reason,omitempty"`
	ChangedBy  uint          `json:"changed_by"` // 0 for system jobs
}

// TableName specifies the table name for InvoiceStatusChange
func (InvoiceStatusChange) TableName() string {
	return "invoice_status_changes"
}
