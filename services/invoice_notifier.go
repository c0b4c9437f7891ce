package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InvoiceNotice is the payload handed to notifiers after a ledger change commits
type InvoiceNotice struct {
	Event         model.NotificationEvent
	InvoiceID     uint
	StudentID     uint
	InvoiceNumber string
	Amount        decimal.Decimal
	Balance       decimal.Decimal
	DueDate       time.Time
	// Key distinguishes repeated events on one invoice, e.g. a payment reference
	Key string
}

// NewInvoiceNotice snapshots an invoice for an event
func NewInvoiceNotice(event model.NotificationEvent, invoice *model.Invoice, key string) InvoiceNotice {
	return InvoiceNotice{
		Event:         event,
		InvoiceID:     invoice.ID,
		StudentID:     invoice.StudentID,
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.Amount,
		Balance:       invoice.Balance,
		DueDate:       invoice.DueDate,
		Key:           key,
	}
}

// InvoiceNotifier is told about ledger events. Notify must not block the caller.
type InvoiceNotifier interface {
	Notify(ctx context.Context, notice InvoiceNotice)
}

// NoopNotifier drops every notice
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, InvoiceNotice) {}

// EmailSender delivers invoice emails
type EmailSender interface {
	IsConfigured() bool
	SendInvoiceNotice(to, studentName string, notice InvoiceNotice) error
}

// SMSSender delivers text messages
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// Deduper claims a key once. *cache.RedisCache satisfies it.
type Deduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

const notificationDedupTTL = 72 * time.Hour

// NotificationDispatcher sends invoice notices by email and SMS and records each attempt
type NotificationDispatcher struct {
	db      *gorm.DB
	email   EmailSender
	sms     SMSSender
	dedup   Deduper
	timeout time.Duration
}

// NewNotificationDispatcher creates a dispatcher. Any of email, sms or dedup may be nil.
func NewNotificationDispatcher(db *gorm.DB, email EmailSender, sms SMSSender, dedup Deduper) *NotificationDispatcher {
	return &NotificationDispatcher{
		db:      db,
		email:   email,
		sms:     sms,
		dedup:   dedup,
		timeout: 30 * time.Second,
	}
}

// Notify dispatches in the background, detached from the request's cancellation
func (d *NotificationDispatcher) Notify(ctx context.Context, notice InvoiceNotice) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer cancel()
		d.Dispatch(bg, notice)
	}()
}

// Dispatch sends the notice on every configured channel and returns the recorded attempts
func (d *NotificationDispatcher) Dispatch(ctx context.Context, notice InvoiceNotice) []model.InvoiceNotification {
	var student model.Student
	if err := d.db.WithContext(ctx).First(&student, notice.StudentID).Error; err != nil {
		log.Printf("[NOTIFY] student %d not found for %s on %s: %v", notice.StudentID, notice.Event, notice.InvoiceNumber, err)
		return nil
	}

	var records []model.InvoiceNotification
	if rec, ok := d.sendEmail(ctx, student, notice); ok {
		records = append(records, rec)
	}
	if rec, ok := d.sendSMS(ctx, student, notice); ok {
		records = append(records, rec)
	}

	for i := range records {
		if err := d.db.WithContext(ctx).Create(&records[i]).Error; err != nil {
			log.Printf("[NOTIFY] failed to record %s %s for %s: %v", records[i].Channel, notice.Event, notice.InvoiceNumber, err)
		}
	}
	return records
}

func (d *NotificationDispatcher) sendEmail(ctx context.Context, student model.Student, notice InvoiceNotice) (model.InvoiceNotification, bool) {
	if d.email == nil || !d.email.IsConfigured() {
		return model.InvoiceNotification{}, false
	}
	rec := d.newRecord(notice, model.NotificationChannelEmail, student.Email)
	if student.Email == "" {
		rec.Status = model.NotificationStatusSkipped
		rec.Error = "student has no email"
		return rec, true
	}
	if !d.claim(ctx, notice, model.NotificationChannelEmail) {
		return model.InvoiceNotification{}, false
	}

	if err := d.email.SendInvoiceNotice(student.Email, student.Name, notice); err != nil {
		log.Printf("[NOTIFY] email %s for %s failed: %v", notice.Event, notice.InvoiceNumber, err)
		rec.Status = model.NotificationStatusFailed
		rec.Error = err.Error()
		return rec, true
	}
	rec.Status = model.NotificationStatusSent
	return rec, true
}

func (d *NotificationDispatcher) sendSMS(ctx context.Context, student model.Student, notice InvoiceNotice) (model.InvoiceNotification, bool) {
	if d.sms == nil {
		return model.InvoiceNotification{}, false
	}
	rec := d.newRecord(notice, model.NotificationChannelSMS, student.Phone)
	if student.Phone == "" {
		rec.Status = model.NotificationStatusSkipped
		rec.Error = "student has no phone"
		return rec, true
	}
	if !d.claim(ctx, notice, model.NotificationChannelSMS) {
		return model.InvoiceNotification{}, false
	}

	if err := d.sms.SendSMS(ctx, student.Phone, smsText(notice)); err != nil {
		log.Printf("[NOTIFY] sms %s for %s failed: %v", notice.Event, notice.InvoiceNumber, err)
		rec.Status = model.NotificationStatusFailed
		rec.Error = err.Error()
		return rec, true
	}
	rec.Status = model.NotificationStatusSent
	return rec, true
}

// claim returns false when the same event was already sent on channel.
// Without a deduper, or when redis errors, it lets the send through.
func (d *NotificationDispatcher) claim(ctx context.Context, notice InvoiceNotice, channel model.NotificationChannel) bool {
	if d.dedup == nil {
		return true
	}
	ok, err := d.dedup.SetNX(ctx, notificationKey(notice, channel), "1", notificationDedupTTL)
	if err != nil {
		log.Printf("[NOTIFY] dedup check failed, sending anyway: %v", err)
		return true
	}
	return ok
}

func notificationKey(notice InvoiceNotice, channel model.NotificationChannel) string {
	key := fmt.Sprintf("notify:%s:%d:%s", notice.Event, notice.InvoiceID, channel)
	if notice.Key != "" {
		key += ":" + notice.Key
	}
	return key
}

func (d *NotificationDispatcher) newRecord(notice InvoiceNotice, channel model.NotificationChannel, recipient string) model.InvoiceNotification {
	rec := model.InvoiceNotification{
		InvoiceID: notice.InvoiceID,
		StudentID: notice.StudentID,
		Event:     notice.Event,
		Channel:   channel,
		Recipient: recipient,
	}
	if notice.Key != "" {
		if raw, err := json.Marshal(map[string]string{"key": notice.Key}); err == nil {
			rec.Metadata = datatypes.JSON(raw)
		}
	}
	return rec
}

func smsText(n InvoiceNotice) string {
	switch n.Event {
	case model.NotificationEventPaymentReceived:
		return fmt.Sprintf("Payment received for invoice %s. Remaining balance: %s.", n.InvoiceNumber, n.Balance.StringFixed(2))
	case model.NotificationEventInvoiceOverdue:
		return fmt.Sprintf("Invoice %s is overdue. Balance due: %s.", n.InvoiceNumber, n.Balance.StringFixed(2))
	default:
		return fmt.Sprintf("Invoice %s for %s issued, due %s.", n.InvoiceNumber, n.Amount.StringFixed(2), n.DueDate.Format("02 Jan 2006"))
	}
}
