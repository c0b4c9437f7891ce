package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestComputeStatus(t *testing.T) {
	now := testNow
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		amount string
		paid   string
		due    time.Time
		want   model.InvoiceStatus
	}{
		{"fully paid", "50000", "50000", future, model.InvoiceStatusPaid},
		{"paid beats overdue", "50000", "50000", past, model.InvoiceStatusPaid},
		{"partial", "50000", "100", future, model.InvoiceStatusPartial},
		{"partial beats overdue", "50000", "100", past, model.InvoiceStatusPartial},
		{"overdue", "50000", "0", past, model.InvoiceStatusOverdue},
		{"pending", "50000", "0", future, model.InvoiceStatusPending},
		{"due exactly now is not overdue", "50000", "0", now, model.InvoiceStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStatus(dec(tt.amount), dec(tt.paid), tt.due, now))
		})
	}
}

func TestEndOfDay(t *testing.T) {
	in := time.Date(2026, 5, 10, 3, 4, 5, 6, time.FixedZone("WAT", 3600))
	assert.Equal(t, time.Date(2026, 5, 10, 23, 59, 59, 0, time.UTC), endOfDay(in))
}

func TestCreateInvoiceAndPayInFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)

	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "50000", testNow.AddDate(0, 0, 30))
	assert.Equal(t, "INV-2026-00001", inv.InvoiceNumber)
	assert.Equal(t, model.InvoiceStatusPending, inv.Status)
	assert.Equal(t, "50000.00", inv.Balance.StringFixed(2))
	assert.True(t, inv.PaidAmount.IsZero())

	paid, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("50000"), PaymentMethod: "bank_transfer"})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.True(t, paid.Balance.IsZero())
	assert.Equal(t, "50000.00", paid.PaidAmount.StringFixed(2))

	got, err := f.ledger.GetInvoice(ctx, financeActor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, got.Status)
	require.Len(t, got.Transactions, 1)
	assert.NotNil(t, got.Transactions[0].CompletedAt)
	require.Len(t, got.StatusChanges, 2)
	assert.Equal(t, "issued", got.StatusChanges[0].Reason)
	assert.Equal(t, model.InvoiceStatusPending, got.StatusChanges[1].FromStatus)
	assert.Equal(t, model.InvoiceStatusPaid, got.StatusChanges[1].ToStatus)
	assert.Equal(t, model.StatusSourceComputed, got.StatusChanges[1].Source)
	require.NotNil(t, got.Student)
	assert.Equal(t, "Ada Obi", got.Student.Name)

	assert.Equal(t, []model.NotificationEvent{
		model.NotificationEventInvoiceIssued,
		model.NotificationEventPaymentReceived,
	}, f.notifier.events())
}

func TestPartialPaymentsAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))

	got, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("250.50")})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPartial, got.Status)
	assert.Equal(t, "749.50", got.Balance.StringFixed(2))

	got, err = f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("749.50")})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, got.Status)
	assert.True(t, got.Balance.IsZero())
	assert.True(t, got.Amount.Sub(got.PaidAmount).Equal(got.Balance))
}

func TestInvoiceIssuedPastDueIsOverdue(t *testing.T) {
	f := newFixture(t)
	b := f.billing(t)

	inv := f.issueInvoice(t, b, model.InvoiceTypeOther, "50000", testNow.AddDate(0, 0, -1))
	assert.Equal(t, model.InvoiceStatusOverdue, inv.Status)

	// Due today is still payable without being overdue.
	today := f.issueInvoice(t, b, model.InvoiceTypeLateFee, "100", testNow)
	assert.Equal(t, model.InvoiceStatusPending, today.Status)
}

func TestDuplicateInvoiceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	first := f.issueInvoice(t, b, model.InvoiceTypeRegistration, "5000", testNow.AddDate(0, 0, 7))

	_, err := f.ledger.CreateInvoice(ctx, financeActor, InvoiceInput{
		StudentID: b.student.ID, ClassBatchID: b.class.ID, InvoiceType: model.InvoiceTypeRegistration,
		Amount: dec("5000"), DueDate: testNow.AddDate(0, 0, 7),
	})
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, "invoice", dup.Entity)
	assert.Equal(t, int64(1), count(t, f.db, &model.Invoice{}))

	// Cancelling frees the slot for a replacement.
	_, err = f.ledger.CancelInvoice(ctx, financeActor, first.ID, "wrong amount")
	require.NoError(t, err)
	replacement := f.issueInvoice(t, b, model.InvoiceTypeRegistration, "4500", testNow.AddDate(0, 0, 7))
	assert.Equal(t, "INV-2026-00002", replacement.InvoiceNumber)
}

func TestInvoiceNumbersContinuePastFiveDigits(t *testing.T) {
	f := newFixture(t)
	b := f.billing(t)
	other := f.createStudent(t, "Bola Ade", "bola@example.com", "")

	for _, seed := range []struct {
		number string
		kind   model.InvoiceType
	}{
		{"INV-2026-99999", model.InvoiceTypeRegistration},
		{"INV-2026-100000", model.InvoiceTypeTuitionBlock1},
	} {
		require.NoError(t, f.db.Create(&model.Invoice{
			InvoiceNumber: seed.number, StudentID: other.ID, ClassBatchID: b.class.ID, InvoiceType: seed.kind,
			Amount: dec("100"), PaidAmount: dec("0"), Balance: dec("100"),
			Status: model.InvoiceStatusPending, StatusSource: model.StatusSourceComputed,
			DueDate: testNow.AddDate(0, 0, 7),
		}).Error)
	}

	inv := f.issueInvoice(t, b, model.InvoiceTypeRegistration, "5000", testNow.AddDate(0, 0, 7))
	assert.Equal(t, "INV-2026-100001", inv.InvoiceNumber)
}

func TestTakenInvoiceNumberIsRedrawn(t *testing.T) {
	f := newFixture(t)
	b := f.billing(t)
	other := f.createStudent(t, "Bola Ade", "bola@example.com", "")

	// Another writer claims the number between the sequence read and the insert.
	attempts := 0
	err := f.db.Callback().Create().Before("gorm:create").Register("test:steal_invoice_number", func(tx *gorm.DB) {
		inv, ok := tx.Statement.Dest.(*model.Invoice)
		if !ok || inv.StudentID != b.student.ID {
			return
		}
		attempts++
		if attempts > 1 {
			return
		}
		_ = tx.Session(&gorm.Session{NewDB: true}).Create(&model.Invoice{
			InvoiceNumber: inv.InvoiceNumber, StudentID: other.ID, ClassBatchID: b.class.ID,
			InvoiceType: model.InvoiceTypeOther, Amount: dec("10"), PaidAmount: dec("0"), Balance: dec("10"),
			Status: model.InvoiceStatusPending, StatusSource: model.StatusSourceComputed, DueDate: testNow,
		}).Error
	})
	require.NoError(t, err)

	inv, err := f.ledger.CreateInvoice(context.Background(), financeActor, InvoiceInput{
		StudentID: b.student.ID, ClassBatchID: b.class.ID, InvoiceType: model.InvoiceTypeRegistration,
		Amount: dec("5000"), DueDate: testNow.AddDate(0, 0, 7),
	})
	require.NoError(t, err, "a number clash is not a duplicate invoice")
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "INV-2026-00001", inv.InvoiceNumber)
	assert.Equal(t, int64(1), count(t, f.db, &model.Invoice{}, "student_id = ?", b.student.ID))
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)

	_, err := f.ledger.CreateInvoice(ctx, financeActor, InvoiceInput{
		StudentID: b.student.ID, ClassBatchID: b.class.ID, InvoiceType: "donation", Amount: dec("0"),
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Len(t, verr.Fields, 3)

	_, err = f.ledger.CreateInvoice(ctx, financeActor, InvoiceInput{
		StudentID: 999, ClassBatchID: b.class.ID, InvoiceType: model.InvoiceTypeOther, Amount: dec("1"), DueDate: testNow,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ledger.CreateInvoice(ctx, teacherActor, InvoiceInput{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOverpaymentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))
	_, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("600")})
	require.NoError(t, err)

	_, err = f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("400.01")})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "amount", verr.Fields[0].Field)
	assert.Equal(t, int64(1), count(t, f.db, &model.FinancialTransaction{}))
}

func TestPaymentOnClosedOrMissingInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))
	_, err := f.ledger.CancelInvoice(ctx, financeActor, inv.ID, "student withdrew")
	require.NoError(t, err)

	_, err = f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("10")})
	var state *InvoiceStateError
	require.True(t, errors.As(err, &state), "got %v", err)
	assert.Equal(t, "cancelled", state.Status)

	_, err = f.ledger.RecordPayment(ctx, financeActor, 4242, PaymentInput{Amount: dec("10")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, count(t, f.db, &model.FinancialTransaction{}))
}

func TestPendingTransactionsDoNotCountUntilCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))

	got, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("1000"), Status: model.TransactionStatusPending})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPending, got.Status)
	assert.True(t, got.PaidAmount.IsZero())

	var pending model.FinancialTransaction
	require.NoError(t, f.db.Where("invoice_id = ?", inv.ID).First(&pending).Error)
	assert.Nil(t, pending.CompletedAt)

	got, err = f.ledger.CompleteTransaction(ctx, financeActor, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, got.Status)
	assert.True(t, got.Balance.IsZero())

	_, err = f.ledger.CompleteTransaction(ctx, financeActor, pending.ID)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr), "completing twice must fail, got %v", err)
}

func TestFailedTransactionNeverCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))

	_, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("300"), Status: model.TransactionStatusPending})
	require.NoError(t, err)
	var pending model.FinancialTransaction
	require.NoError(t, f.db.Where("invoice_id = ?", inv.ID).First(&pending).Error)

	require.NoError(t, f.ledger.FailTransaction(ctx, financeActor, pending.ID, "card declined"))

	got, err := f.ledger.GetInvoice(ctx, financeActor, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
	assert.Equal(t, model.InvoiceStatusPending, got.Status)
	require.Len(t, got.Transactions, 1)
	assert.Equal(t, model.TransactionStatusFailed, got.Transactions[0].Status)
	assert.Equal(t, "card declined", got.Transactions[0].Note)

	_, err = f.ledger.CompleteTransaction(ctx, financeActor, pending.ID)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr), "got %v", err)
}

func TestPendingPaymentCannotCompleteOverBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))

	_, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("800"), Status: model.TransactionStatusPending})
	require.NoError(t, err)
	var pending model.FinancialTransaction
	require.NoError(t, f.db.Where("invoice_id = ?", inv.ID).First(&pending).Error)

	_, err = f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("500")})
	require.NoError(t, err)

	_, err = f.ledger.CompleteTransaction(ctx, financeActor, pending.ID)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)

	var stored model.FinancialTransaction
	require.NoError(t, f.db.First(&stored, pending.ID).Error)
	assert.Equal(t, model.TransactionStatusPending, stored.Status)
}

func TestOverrideSurvivesRecomputeUntilNextPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))

	got, err := f.ledger.OverrideInvoiceStatus(ctx, financeActor, inv.ID, model.InvoiceStatusOverdue, "agreed with parent")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusOverdue, got.Status)
	assert.Equal(t, model.StatusSourceOverride, got.StatusSource)

	got, err = f.ledger.GetInvoice(ctx, financeActor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusOverdue, got.Status, "viewing must not undo an override")
	last := got.StatusChanges[len(got.StatusChanges)-1]
	assert.Equal(t, model.StatusSourceOverride, last.Source)
	assert.Equal(t, "agreed with parent", last.Reason)
	assert.Equal(t, financeActor.UserID, last.ChangedBy)

	got, err = f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPartial, got.Status)
	assert.Equal(t, model.StatusSourceComputed, got.StatusSource)
}

func TestOverrideRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))

	var verr *ValidationError
	_, err := f.ledger.OverrideInvoiceStatus(ctx, financeActor, inv.ID, model.InvoiceStatusPaid, "  ")
	require.True(t, errors.As(err, &verr), "reason required, got %v", err)

	_, err = f.ledger.OverrideInvoiceStatus(ctx, financeActor, inv.ID, model.InvoiceStatusCancelled, "use cancel")
	require.True(t, errors.As(err, &verr), "cancel is not an override, got %v", err)

	_, err = f.ledger.OverrideInvoiceStatus(ctx, teacherActor, inv.ID, model.InvoiceStatusPaid, "x")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("1000")})
	require.NoError(t, err)

	_, err = f.ledger.OverrideInvoiceStatus(ctx, financeActor, inv.ID, model.InvoiceStatusPending, "reopen")
	var state *InvoiceStateError
	assert.True(t, errors.As(err, &state), "paid invoices are closed, got %v", err)

	_, err = f.ledger.CancelInvoice(ctx, financeActor, inv.ID, "too late")
	assert.True(t, errors.As(err, &state), "paid invoices cannot be cancelled, got %v", err)
}

func TestOverrideToPaidNeedsFullPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))

	_, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("400")})
	require.NoError(t, err)

	_, err = f.ledger.OverrideInvoiceStatus(ctx, financeActor, inv.ID, model.InvoiceStatusPaid, "parent says paid")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "status", verr.Fields[0].Field)
	assert.Contains(t, verr.Fields[0].Message, "600.00")

	got, err := f.ledger.GetInvoice(ctx, financeActor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPartial, got.Status)
	assert.Equal(t, model.StatusSourceComputed, got.StatusSource)

	// The invoice stays open for the rest of the money.
	got, err = f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("600")})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, got.Status)
	assert.True(t, got.Balance.IsZero())
}

func TestCancelledInvoiceIsNotRecomputed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, -3))

	_, err := f.ledger.CancelInvoice(ctx, financeActor, inv.ID, "duplicate enrollment")
	require.NoError(t, err)

	got, err := f.ledger.GetInvoice(ctx, financeActor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusCancelled, got.Status)
	assert.Equal(t, model.StatusSourceOverride, got.StatusSource)
}

func TestRefreshOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)

	due := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 5))
	partial := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock2, "1000", testNow.AddDate(0, 0, 5))
	later := f.issueInvoice(t, b, model.InvoiceTypeLateFee, "50", testNow.AddDate(0, 0, 60))
	_, err := f.ledger.RecordPayment(ctx, financeActor, partial.ID, PaymentInput{Amount: dec("10")})
	require.NoError(t, err)

	f.ledger.SetClock(func() time.Time { return testNow.AddDate(0, 0, 10) })

	flipped, err := f.ledger.RefreshOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	var stored model.Invoice
	require.NoError(t, f.db.First(&stored, due.ID).Error)
	assert.Equal(t, model.InvoiceStatusOverdue, stored.Status)
	require.NoError(t, f.db.First(&stored, partial.ID).Error)
	assert.Equal(t, model.InvoiceStatusPartial, stored.Status, "partial stays partial after the due date")
	require.NoError(t, f.db.First(&stored, later.ID).Error)
	assert.Equal(t, model.InvoiceStatusPending, stored.Status)

	assert.Contains(t, f.notifier.events(), model.NotificationEventInvoiceOverdue)

	flipped, err = f.ledger.RefreshOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, flipped, "refresh is idempotent")
}

func TestRecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 0, 30))
	_, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("400")})
	require.NoError(t, err)

	// Corrupt the cached totals; a recompute restores them from the transactions.
	require.NoError(t, f.db.Model(&model.Invoice{}).Where("id = ?", inv.ID).
		Updates(map[string]interface{}{"paid_amount": dec("0"), "balance": dec("1000")}).Error)

	first, err := f.ledger.RecomputeInvoice(ctx, inv.ID)
	require.NoError(t, err)
	second, err := f.ledger.RecomputeInvoice(ctx, inv.ID)
	require.NoError(t, err)

	for _, got := range []*model.Invoice{first, second} {
		assert.Equal(t, "400.00", got.PaidAmount.StringFixed(2))
		assert.Equal(t, "600.00", got.Balance.StringFixed(2))
		assert.Equal(t, model.InvoiceStatusPartial, got.Status)
	}
	assert.Equal(t, int64(2), count(t, f.db, &model.InvoiceStatusChange{}, "invoice_id = ?", inv.ID),
		"money-only corrections add no status history")
}

func TestGenerateEnrollmentInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)

	invoices, err := f.ledger.GenerateEnrollmentInvoices(ctx, financeActor, b.student.ID, b.class.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 3)

	start := b.class.StartDate
	want := []struct {
		kind   model.InvoiceType
		amount string
		due    time.Time
	}{
		{model.InvoiceTypeRegistration, "5000.00", endOfDay(start)},
		{model.InvoiceTypeTuitionBlock1, "84000.00", endOfDay(start.AddDate(0, 0, 30))},
		{model.InvoiceTypeTuitionBlock2, "36000.00", endOfDay(start.AddDate(0, 0, 60))},
	}
	for i, w := range want {
		assert.Equal(t, w.kind, invoices[i].InvoiceType)
		assert.Equal(t, w.amount, invoices[i].Amount.StringFixed(2))
		assert.True(t, w.due.Equal(invoices[i].DueDate), "line %d due %s", i, invoices[i].DueDate)
		assert.Equal(t, model.InvoiceStatusPending, invoices[i].Status)
	}

	_, err = f.ledger.GenerateEnrollmentInvoices(ctx, financeActor, b.student.ID, b.class.ID)
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, int64(3), count(t, f.db, &model.Invoice{}))
}

func TestGenerateEnrollmentInvoicesIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock2, "36000", testNow.AddDate(0, 2, 0))

	_, err := f.ledger.GenerateEnrollmentInvoices(ctx, financeActor, b.student.ID, b.class.ID)
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Contains(t, dup.Value, string(model.InvoiceTypeTuitionBlock2))

	assert.Equal(t, int64(1), count(t, f.db, &model.Invoice{}), "registration and block 1 lines must roll back")
	assert.Equal(t, int64(1), count(t, f.db, &model.InvoiceStatusChange{}))
}

func TestGenerateEnrollmentInvoicesNeedsActivePlan(t *testing.T) {
	f := newFixture(t)
	school := f.createProgram(t, ProgramInput{Code: "G7", Name: "Grade 7", ProgramType: model.ProgramTypeSchool, BaseFee: dec("45000")})
	course := f.createCourse(t, school.ID, "G7-MATH")
	class := f.createClass(t, course, model.ClassStatusActive, testNow)
	student := f.createStudent(t, "Ben", "", "")

	_, err := f.ledger.GenerateEnrollmentInvoices(context.Background(), financeActor, student.ID, class.ID)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "program_id", verr.Fields[0].Field)
	assert.Zero(t, count(t, f.db, &model.Invoice{}))
}

func TestListInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	f.issueInvoice(t, b, model.InvoiceTypeRegistration, "10", testNow.AddDate(0, 0, -1))
	f.issueInvoice(t, b, model.InvoiceTypeOther, "20", testNow.AddDate(0, 0, 10))

	all, total, err := f.ledger.ListInvoices(ctx, financeActor, InvoiceFilter{StudentID: b.student.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	overdue, total, err := f.ledger.ListInvoices(ctx, financeActor, InvoiceFilter{Status: model.InvoiceStatusOverdue})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, model.InvoiceTypeRegistration, overdue[0].InvoiceType)

	_, _, err = f.ledger.ListInvoices(ctx, teacherActor, InvoiceFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
}
