package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/utils/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComputeStatus is the invoice state machine. Checks run in order: paid, partial, overdue, pending.
func ComputeStatus(amount, paid decimal.Decimal, dueDate, now time.Time) model.InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return model.InvoiceStatusPaid
	case paid.IsPositive():
		return model.InvoiceStatusPartial
	case dueDate.Before(now):
		return model.InvoiceStatusOverdue
	default:
		return model.InvoiceStatusPending
	}
}

// endOfDay moves t to the last second of its UTC day so an invoice is overdue only after its due date
func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

const maxInvoiceNumberAttempts = 5

// LedgerService keeps every invoice's paid amount, balance and status in line with its
// completed transactions
type LedgerService struct {
	db        *gorm.DB
	validator *validation.Validator
	activity  *ActivityService
	notifier  InvoiceNotifier
	now       func() time.Time
}

// NewLedgerService creates a ledger. notifier may be nil.
func NewLedgerService(db *gorm.DB, activity *ActivityService, notifier InvoiceNotifier) *LedgerService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &LedgerService{
		db:        db,
		validator: validation.NewValidator(),
		activity:  activity,
		notifier:  notifier,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (s *LedgerService) SetClock(now func() time.Time) {
	s.now = now
}

// InvoiceInput describes a single invoice to issue
type InvoiceInput struct {
	StudentID    uint              `json:"student_id" validate:"required"`
	ClassBatchID uint              `json:"class_batch_id" validate:"required"`
	InvoiceType  model.InvoiceType `json:"invoice_type" validate:"required,oneof=registration tuition_block1 tuition_block2 late_fee other"`
	Amount       decimal.Decimal   `json:"amount" validate:"gt=0"`
	DueDate      time.Time         `json:"due_date" validate:"required"`
	Description  string            `json:"description" validate:"max=1000"`
}

// CreateInvoice issues one invoice. A live invoice for the same student, class and type
// is a DuplicateError.
func (s *LedgerService) CreateInvoice(ctx context.Context, actor AuthContext, input InvoiceInput) (*model.Invoice, error) {
	if err := actor.RequireFinanceAdmin(); err != nil {
		return nil, err
	}
	if err := validateInput(s.validator, &input); err != nil {
		return nil, err
	}

	var invoice *model.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStudentAndClass(tx, input.StudentID, input.ClassBatchID); err != nil {
			return err
		}
		var err error
		invoice, err = s.insertInvoice(tx, actor, input)
		return err
	})
	if err != nil {
		return nil, txFailure("[LEDGER]", "create invoice", err)
	}

	log.Printf("[LEDGER] issued %s for student %d (%s %s)", invoice.InvoiceNumber, invoice.StudentID, invoice.InvoiceType, invoice.Amount.StringFixed(2))
	s.notifier.Notify(ctx, NewInvoiceNotice(model.NotificationEventInvoiceIssued, invoice, ""))
	s.activity.LogActivity(ctx, actor, "invoice_create",
		fmt.Sprintf("Issued invoice %s", invoice.InvoiceNumber), "invoices", invoice.ID, nil)
	return invoice, nil
}

func requireStudentAndClass(tx *gorm.DB, studentID, classID uint) error {
	var count int64
	if err := tx.Model(&model.Student{}).Where("id = ?", studentID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check student: %w", err)
	}
	if count == 0 {
		return &NotFoundError{Entity: "student", ID: studentID}
	}
	if err := tx.Model(&model.ClassBatch{}).Where("id = ?", classID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check class: %w", err)
	}
	if count == 0 {
		return &NotFoundError{Entity: "class", ID: classID}
	}
	return nil
}

// insertInvoice writes the invoice and its opening status change on tx.
// A unique violation on the live student, class and type index is a DuplicateError;
// one on invoice_number means another writer took the number, so a fresh one is drawn.
func (s *LedgerService) insertInvoice(tx *gorm.DB, actor AuthContext, input InvoiceInput) (*model.Invoice, error) {
	live, err := countLiveInvoices(tx, input)
	if err != nil {
		return nil, err
	}
	if live > 0 {
		return nil, duplicateInvoice(input)
	}

	amount := input.Amount.Round(2)
	due := endOfDay(input.DueDate)
	invoice := &model.Invoice{
		StudentID:    input.StudentID,
		ClassBatchID: input.ClassBatchID,
		InvoiceType:  input.InvoiceType,
		Description:  strings.TrimSpace(input.Description),
		Amount:       amount,
		PaidAmount:   decimal.Zero,
		Balance:      amount,
		Status:       ComputeStatus(amount, decimal.Zero, due, s.now()),
		StatusSource: model.StatusSourceComputed,
		DueDate:      due,
		CreatedBy:    actor.UserID,
	}

	for attempt := 1; ; attempt++ {
		number, err := nextInvoiceNumber(tx, s.now())
		if err != nil {
			return nil, err
		}
		invoice.ID = 0
		invoice.InvoiceNumber = number

		// The savepoint keeps tx usable after a failed insert on postgres.
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(invoice).Error
		})
		if err == nil {
			break
		}
		if !database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create invoice: %w", err)
		}

		live, cerr := countLiveInvoices(tx, input)
		if cerr != nil {
			return nil, cerr
		}
		if live > 0 {
			return nil, duplicateInvoice(input)
		}
		if attempt >= maxInvoiceNumberAttempts {
			return nil, &DuplicateError{Entity: "invoice", Field: "invoice_number", Value: number}
		}
		log.Printf("[LEDGER] invoice number %s already taken, drawing another", number)
	}

	change := model.InvoiceStatusChange{
		InvoiceID: invoice.ID,
		ToStatus:  invoice.Status,
		Source:    model.StatusSourceComputed,
		Reason:    "issued",
		ChangedBy: actor.UserID,
	}
	if err := tx.Create(&change).Error; err != nil {
		return nil, fmt.Errorf("failed to record status change: %w", err)
	}
	return invoice, nil
}

func countLiveInvoices(tx *gorm.DB, input InvoiceInput) (int64, error) {
	var live int64
	err := tx.Model(&model.Invoice{}).
		Where("student_id = ? AND class_batch_id = ? AND invoice_type = ? AND status <> ?",
			input.StudentID, input.ClassBatchID, input.InvoiceType, model.InvoiceStatusCancelled).
		Count(&live).Error
	if err != nil {
		return 0, fmt.Errorf("failed to check existing invoices: %w", err)
	}
	return live, nil
}

func duplicateInvoice(input InvoiceInput) *DuplicateError {
	return &DuplicateError{
		Entity: "invoice",
		Field:  "student_id,class_batch_id,invoice_type",
		Value:  fmt.Sprintf("%d,%d,%s", input.StudentID, input.ClassBatchID, input.InvoiceType),
	}
}

// nextInvoiceNumber returns the next INV-YYYY-NNNNN for the year of now.
// The sequence is zero padded to five digits and keeps growing past 99999,
// so the highest number is the longest one, then the greatest.
func nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("INV-%d-", now.Year())

	var last []string
	err := tx.Model(&model.Invoice{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Order("LENGTH(invoice_number) DESC, invoice_number DESC").
		Limit(1).
		Pluck("invoice_number", &last).Error
	if err != nil {
		return "", fmt.Errorf("failed to read invoice sequence: %w", err)
	}

	seq := 1
	if len(last) > 0 {
		n, err := strconv.Atoi(strings.TrimPrefix(last[0], prefix))
		if err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%05d", prefix, seq), nil
}

// GenerateEnrollmentInvoices issues the registration and tuition block invoices for a
// student's place in a class, using the active payment plan of the class's program.
// Either every line is issued or none is.
func (s *LedgerService) GenerateEnrollmentInvoices(ctx context.Context, actor AuthContext, studentID, classID uint) ([]model.Invoice, error) {
	if err := actor.RequireFinanceAdmin(); err != nil {
		return nil, err
	}

	var issued []model.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireStudentAndClass(tx, studentID, classID); err != nil {
			return err
		}

		var class model.ClassBatch
		if err := tx.First(&class, classID).Error; err != nil {
			return fmt.Errorf("failed to load class: %w", err)
		}
		var program model.Program
		if err := tx.First(&program, class.ProgramID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "program", ID: class.ProgramID}
			}
			return fmt.Errorf("failed to load program: %w", err)
		}

		var plan model.PaymentPlan
		err := tx.Where("program_id = ? AND program_type = ? AND is_active = ?", program.ID, program.ProgramType, true).
			First(&plan).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewValidationError("program_id", fmt.Sprintf("program %s has no active payment plan", program.Code))
			}
			return fmt.Errorf("failed to load payment plan: %w", err)
		}

		start := class.StartDate
		if start.IsZero() {
			start = s.now()
		}
		lines, err := BuildSchedule(&plan, program.TotalFee, start)
		if err != nil {
			return err
		}

		for _, line := range lines {
			invoice, err := s.insertInvoice(tx, actor, InvoiceInput{
				StudentID:    studentID,
				ClassBatchID: classID,
				InvoiceType:  line.InvoiceType,
				Amount:       line.Amount,
				DueDate:      line.DueDate,
				Description:  fmt.Sprintf("%s - %s", program.Name, line.InvoiceType),
			})
			if err != nil {
				return err
			}
			issued = append(issued, *invoice)
		}
		return nil
	})
	if err != nil {
		return nil, txFailure("[LEDGER]", "generate enrollment invoices", err)
	}

	log.Printf("[LEDGER] issued %d enrollment invoices for student %d in class %d", len(issued), studentID, classID)
	for i := range issued {
		s.notifier.Notify(ctx, NewInvoiceNotice(model.NotificationEventInvoiceIssued, &issued[i], ""))
	}
	s.activity.LogActivity(ctx, actor, "invoice_generate",
		fmt.Sprintf("Issued %d enrollment invoices", len(issued)), "class_batches", classID,
		map[string]interface{}{"student_id": studentID})
	return issued, nil
}

// PaymentInput records money received against an invoice
type PaymentInput struct {
	Amount        decimal.Decimal         `json:"amount" validate:"gt=0"`
	PaymentMethod string                  `json:"payment_method" validate:"max=50"`
	Note          string                  `json:"note" validate:"max=1000"`
	Status        model.TransactionStatus `json:"status" validate:"omitempty,oneof=pending completed"`
}

// lockInvoice loads an invoice under a row lock
func lockInvoice(tx *gorm.DB, id uint) (*model.Invoice, error) {
	var invoice model.Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&invoice, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "invoice", ID: id}
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return &invoice, nil
}

// checkPayable rejects closed invoices and payments above the balance
func checkPayable(invoice *model.Invoice, amount decimal.Decimal, completedSoFar decimal.Decimal) error {
	if invoice.Status.IsClosed() {
		return &InvoiceStateError{InvoiceID: invoice.ID, Status: string(invoice.Status), Op: "record payment on"}
	}
	remaining := invoice.Amount.Sub(completedSoFar)
	if amount.GreaterThan(remaining) {
		return NewValidationError("amount", fmt.Sprintf("payment %s exceeds outstanding balance %s", amount.StringFixed(2), remaining.StringFixed(2)))
	}
	return nil
}

// RecordPayment adds a transaction to an invoice. Completed payments recompute the
// invoice immediately; pending ones wait for CompleteTransaction.
func (s *LedgerService) RecordPayment(ctx context.Context, actor AuthContext, invoiceID uint, input PaymentInput) (*model.Invoice, error) {
	if err := actor.RequireFinanceAdmin(); err != nil {
		return nil, err
	}
	if input.Status == "" {
		input.Status = model.TransactionStatusCompleted
	}
	if err := validateInput(s.validator, &input); err != nil {
		return nil, err
	}
	amount := input.Amount.Round(2)

	var invoice *model.Invoice
	var payment model.FinancialTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoice(tx, invoiceID)
		if err != nil {
			return err
		}

		paid, err := completedTotal(tx, invoice.ID)
		if err != nil {
			return err
		}
		if err := checkPayable(invoice, amount, paid); err != nil {
			return err
		}

		now := s.now()
		payment = model.FinancialTransaction{
			InvoiceID:     invoice.ID,
			Reference:     uuid.New(),
			Amount:        amount,
			Status:        input.Status,
			PaymentMethod: strings.TrimSpace(input.PaymentMethod),
			Note:          strings.TrimSpace(input.Note),
			RecordedBy:    actor.UserID,
		}
		if input.Status == model.TransactionStatusCompleted {
			payment.CompletedAt = &now
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		if input.Status != model.TransactionStatusCompleted {
			return nil
		}
		_, err = s.recompute(tx, invoice, actor.UserID, "payment "+payment.Reference.String(), true)
		return err
	})
	if err != nil {
		return nil, txFailure("[LEDGER]", "record payment", err)
	}

	log.Printf("[LEDGER] %s payment %s of %s on %s -> %s (balance %s)",
		payment.Status, payment.Reference, amount.StringFixed(2), invoice.InvoiceNumber, invoice.Status, invoice.Balance.StringFixed(2))
	if payment.Status == model.TransactionStatusCompleted {
		s.notifier.Notify(ctx, NewInvoiceNotice(model.NotificationEventPaymentReceived, invoice, payment.Reference.String()))
	}
	s.activity.LogActivity(ctx, actor, "payment_record",
		fmt.Sprintf("Recorded %s payment of %s on %s", payment.Status, amount.StringFixed(2), invoice.InvoiceNumber),
		"invoices", invoice.ID, map[string]interface{}{"reference": payment.Reference.String()})
	return invoice, nil
}

// CompleteTransaction settles a pending transaction and recomputes its invoice
func (s *LedgerService) CompleteTransaction(ctx context.Context, actor AuthContext, transactionID uint) (*model.Invoice, error) {
	if err := actor.RequireFinanceAdmin(); err != nil {
		return nil, err
	}

	var invoice *model.Invoice
	var payment model.FinancialTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadPendingTransaction(tx, transactionID, &payment); err != nil {
			return err
		}

		var err error
		invoice, err = lockInvoice(tx, payment.InvoiceID)
		if err != nil {
			return err
		}
		paid, err := completedTotal(tx, invoice.ID)
		if err != nil {
			return err
		}
		if err := checkPayable(invoice, payment.Amount, paid); err != nil {
			return err
		}

		now := s.now()
		err = tx.Model(&payment).Updates(map[string]interface{}{
			"status":       model.TransactionStatusCompleted,
			"completed_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to complete transaction: %w", err)
		}
		_, err = s.recompute(tx, invoice, actor.UserID, "payment "+payment.Reference.String(), true)
		return err
	})
	if err != nil {
		return nil, txFailure("[LEDGER]", "complete transaction", err)
	}

	s.notifier.Notify(ctx, NewInvoiceNotice(model.NotificationEventPaymentReceived, invoice, payment.Reference.String()))
	s.activity.LogActivity(ctx, actor, "payment_complete",
		fmt.Sprintf("Completed payment %s on %s", payment.Reference, invoice.InvoiceNumber), "invoices", invoice.ID, nil)
	return invoice, nil
}

// FailTransaction marks a pending transaction failed. Failed transactions never count.
func (s *LedgerService) FailTransaction(ctx context.Context, actor AuthContext, transactionID uint, reason string) error {
	if err := actor.RequireFinanceAdmin(); err != nil {
		return err
	}

	var payment model.FinancialTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadPendingTransaction(tx, transactionID, &payment); err != nil {
			return err
		}
		updates := map[string]interface{}{"status": model.TransactionStatusFailed}
		if reason = strings.TrimSpace(reason); reason != "" {
			updates["note"] = reason
		}
		return tx.Model(&payment).Updates(updates).Error
	})
	if err != nil {
		return txFailure("[LEDGER]", "fail transaction", err)
	}

	s.activity.LogActivity(ctx, actor, "payment_fail",
		fmt.Sprintf("Payment %s failed", payment.Reference), "invoices", payment.InvoiceID, nil)
	return nil
}

func loadPendingTransaction(tx *gorm.DB, id uint, out *model.FinancialTransaction) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(out, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: "transaction", ID: id}
		}
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if out.Status != model.TransactionStatusPending {
		return NewValidationError("status", fmt.Sprintf("transaction %d is already %s", id, out.Status))
	}
	return nil
}

// completedTotal sums the completed transactions of an invoice
func completedTotal(tx *gorm.DB, invoiceID uint) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.Model(&model.FinancialTransaction{}).
		Where("invoice_id = ? AND status = ?", invoiceID, model.TransactionStatusCompleted).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

// recompute derives paid amount, balance and status from the persisted completed
// transactions and writes them back. It only reads committed state so concurrent
// recomputes converge. An override status is kept unless clearOverride is set.
func (s *LedgerService) recompute(tx *gorm.DB, invoice *model.Invoice, changedBy uint, reason string, clearOverride bool) (bool, error) {
	if invoice.Status == model.InvoiceStatusCancelled {
		return false, nil
	}

	paid, err := completedTotal(tx, invoice.ID)
	if err != nil {
		return false, err
	}
	balance := invoice.Amount.Sub(paid)

	status := invoice.Status
	source := invoice.StatusSource
	if source != model.StatusSourceOverride || clearOverride {
		status = ComputeStatus(invoice.Amount, paid, invoice.DueDate, s.now())
		source = model.StatusSourceComputed
	}

	moneyChanged := !paid.Equal(invoice.PaidAmount) || !balance.Equal(invoice.Balance)
	statusChanged := status != invoice.Status
	if !moneyChanged && !statusChanged && source == invoice.StatusSource {
		return false, nil
	}

	err = tx.Model(invoice).Updates(map[string]interface{}{
		"paid_amount":   paid,
		"balance":       balance,
		"status":        status,
		"status_source": source,
	}).Error
	if err != nil {
		return false, fmt.Errorf("failed to update invoice: %w", err)
	}

	if statusChanged {
		change := model.InvoiceStatusChange{
			InvoiceID:  invoice.ID,
			FromStatus: invoice.Status,
			ToStatus:   status,
			Source:     model.StatusSourceComputed,
			Reason:     reason,
			ChangedBy:  changedBy,
		}
		if err := tx.Create(&change).Error; err != nil {
			return false, fmt.Errorf("failed to record status change: %w", err)
		}
	}

	invoice.PaidAmount = paid
	invoice.Balance = balance
	invoice.Status = status
	invoice.StatusSource = source
	return statusChanged, nil
}

// RecomputeInvoice re-derives one invoice from its transactions and persists the result
func (s *LedgerService) RecomputeInvoice(ctx context.Context, id uint) (*model.Invoice, error) {
	var invoice *model.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoice(tx, id)
		if err != nil {
			return err
		}
		_, err = s.recompute(tx, invoice, 0, "recompute", false)
		return err
	})
	if err != nil {
		return nil, txFailure("[LEDGER]", "recompute invoice", err)
	}
	return invoice, nil
}

// GetInvoice recomputes the invoice, then returns it with its transactions and status history
func (s *LedgerService) GetInvoice(ctx context.Context, actor AuthContext, id uint) (*model.Invoice, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	if _, err := s.RecomputeInvoice(ctx, id); err != nil {
		return nil, err
	}

	var invoice model.Invoice
	err := s.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Preload("StatusChanges", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Preload("Student").
		First(&invoice, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "invoice", ID: id}
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return &invoice, nil
}

// InvoiceFilter narrows ListInvoices
type InvoiceFilter struct {
	StudentID    uint
	ClassBatchID uint
	Status       model.InvoiceStatus
	Page         int
	Limit        int
}

// ListInvoices returns invoices newest first with the total count
func (s *LedgerService) ListInvoices(ctx context.Context, actor AuthContext, filter InvoiceFilter) ([]model.Invoice, int64, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, 0, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Invoice{})
	if filter.StudentID != 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.ClassBatchID != 0 {
		query = query.Where("class_batch_id = ?", filter.ClassBatchID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	var invoices []model.Invoice
	err := query.Order("created_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, total, nil
}

// OverrideInvoiceStatus sets a status by hand. The override is recorded with its reason
// and holds until the next completed payment. paid is only accepted once the completed
// payments cover the amount.
func (s *LedgerService) OverrideInvoiceStatus(ctx context.Context, actor AuthContext, id uint, status model.InvoiceStatus, reason string) (*model.Invoice, error) {
	if err := actor.RequireFinanceAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	verr := &ValidationError{}
	if reason == "" {
		verr.Add("reason", "reason is required")
	}
	if !status.IsValid() || status == model.InvoiceStatusCancelled {
		verr.Add("status", fmt.Sprintf("status %q cannot be set by override", status))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var invoice *model.Invoice
	var from model.InvoiceStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if invoice.Status.IsClosed() {
			return &InvoiceStateError{InvoiceID: id, Status: string(invoice.Status), Op: "override"}
		}
		if status == model.InvoiceStatusPaid {
			// paid is terminal, so it must match the money actually received
			paid, err := completedTotal(tx, id)
			if err != nil {
				return err
			}
			if paid.LessThan(invoice.Amount) {
				return NewValidationError("status", fmt.Sprintf("invoice still has an outstanding balance of %s", invoice.Amount.Sub(paid).StringFixed(2)))
			}
		}
		from = invoice.Status
		return s.writeManualStatus(tx, invoice, status, reason, actor.UserID)
	})
	if err != nil {
		return nil, txFailure("[LEDGER]", "override invoice status", err)
	}

	log.Printf("[LEDGER] %s status overridden %s -> %s by user %d", invoice.InvoiceNumber, from, status, actor.UserID)
	s.activity.LogActivity(ctx, actor, "invoice_override",
		fmt.Sprintf("Overrode %s status %s -> %s: %s", invoice.InvoiceNumber, from, status, reason),
		"invoices", id, map[string]interface{}{"from": from, "to": status})
	return invoice, nil
}

// CancelInvoice closes an unpaid invoice. It stays on record and frees its
// student, class and type slot for a replacement.
func (s *LedgerService) CancelInvoice(ctx context.Context, actor AuthContext, id uint, reason string) (*model.Invoice, error) {
	if err := actor.RequireFinanceAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, NewValidationError("reason", "reason is required")
	}

	var invoice *model.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoice(tx, id)
		if err != nil {
			return err
		}
		if invoice.Status.IsClosed() {
			return &InvoiceStateError{InvoiceID: id, Status: string(invoice.Status), Op: "cancel"}
		}
		return s.writeManualStatus(tx, invoice, model.InvoiceStatusCancelled, reason, actor.UserID)
	})
	if err != nil {
		return nil, txFailure("[LEDGER]", "cancel invoice", err)
	}

	log.Printf("[LEDGER] %s cancelled by user %d", invoice.InvoiceNumber, actor.UserID)
	s.activity.LogActivity(ctx, actor, "invoice_cancel",
		fmt.Sprintf("Cancelled %s: %s", invoice.InvoiceNumber, reason), "invoices", id, nil)
	return invoice, nil
}

func (s *LedgerService) writeManualStatus(tx *gorm.DB, invoice *model.Invoice, status model.InvoiceStatus, reason string, userID uint) error {
	err := tx.Model(invoice).Updates(map[string]interface{}{
		"status":        status,
		"status_source": model.StatusSourceOverride,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	change := model.InvoiceStatusChange{
		InvoiceID:  invoice.ID,
		FromStatus: invoice.Status,
		ToStatus:   status,
		Source:     model.StatusSourceOverride,
		Reason:     reason,
		ChangedBy:  userID,
	}
	if err := tx.Create(&change).Error; err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}

	invoice.Status = status
	invoice.StatusSource = model.StatusSourceOverride
	return nil
}

// RefreshOverdue recomputes pending invoices whose due date has passed and
// returns how many became overdue.
func (s *LedgerService) RefreshOverdue(ctx context.Context) (int, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("status = ? AND status_source = ? AND due_date < ?",
			model.InvoiceStatusPending, model.StatusSourceComputed, s.now()).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find due invoices: %w", err)
	}

	flipped := 0
	for _, id := range ids {
		var invoice *model.Invoice
		var changed bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			invoice, err = lockInvoice(tx, id)
			if err != nil {
				return err
			}
			changed, err = s.recompute(tx, invoice, 0, "due date passed", false)
			return err
		})
		if err != nil {
			log.Printf("[LEDGER] overdue refresh failed for invoice %d: %v", id, err)
			continue
		}
		if changed && invoice.Status == model.InvoiceStatusOverdue {
			flipped++
			s.notifier.Notify(ctx, NewInvoiceNotice(model.NotificationEventInvoiceOverdue, invoice, ""))
		}
	}
	return flipped, nil
}
