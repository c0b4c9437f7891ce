package services

import (
	"fmt"
	"time"

	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/shopspring/decimal"
)

// Default block plan terms for online and onsite programs
const (
	DefaultBlock1Percentage = 70
	DefaultBlock2Percentage = 30
	DefaultBlock1DueDays    = 30
	DefaultBlock2DueDays    = 60
	DefaultSuspensionDays   = 21
	DefaultRefundPolicyDays = 14
)

// DefaultPaymentPlan builds the two-block plan attached to new online and onsite programs.
// The returned plan is not yet bound to a program.
func DefaultPaymentPlan(programType model.ProgramType, registrationFee, lateFeePercentage decimal.Decimal) (*model.PaymentPlan, error) {
	if !programType.UsesBlockPlan() {
		return nil, fmt.Errorf("program type %q has no default payment plan", programType)
	}

	plan := &model.PaymentPlan{
		ProgramType:       programType,
		RegistrationFee:   registrationFee,
		Block1Percentage:  DefaultBlock1Percentage,
		Block2Percentage:  DefaultBlock2Percentage,
		Block1DueDays:     DefaultBlock1DueDays,
		Block2DueDays:     DefaultBlock2DueDays,
		LateFeePercentage: lateFeePercentage,
		SuspensionDays:    DefaultSuspensionDays,
		RefundPolicyDays:  DefaultRefundPolicyDays,
		IsActive:          true,
	}

	if err := ValidatePaymentPlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ValidatePaymentPlan checks the block split and day offsets
func ValidatePaymentPlan(plan *model.PaymentPlan) error {
	verr := &ValidationError{}
	if plan.Block1Percentage < 0 || plan.Block2Percentage < 0 {
		verr.Add("block_percentage", "block percentages must not be negative")
	}
	if plan.Block1Percentage+plan.Block2Percentage != 100 {
		verr.Add("block_percentage", fmt.Sprintf("block percentages must sum to 100, got %d", plan.Block1Percentage+plan.Block2Percentage))
	}
	if plan.Block1DueDays < 0 || plan.Block2DueDays < plan.Block1DueDays {
		verr.Add("block_due_days", "block 2 must not fall due before block 1")
	}
	if plan.RegistrationFee.IsNegative() {
		verr.Add("registration_fee", "registration fee must not be negative")
	}
	return verr.OrNil()
}

// ScheduleLine is one invoice a plan produces for an enrollment
type ScheduleLine struct {
	InvoiceType model.InvoiceType `json:"invoice_type"`
	Amount      decimal.Decimal   `json:"amount"`
	DueDate     time.Time         `json:"due_date"`
}

// BuildSchedule splits total into the plan's blocks, counting due days from start.
// Block 2 absorbs the rounding remainder so the blocks always add up to total.
func BuildSchedule(plan *model.PaymentPlan, total decimal.Decimal, start time.Time) ([]ScheduleLine, error) {
	if err := ValidatePaymentPlan(plan); err != nil {
		return nil, err
	}

	var lines []ScheduleLine
	if plan.RegistrationFee.IsPositive() {
		lines = append(lines, ScheduleLine{
			InvoiceType: model.InvoiceTypeRegistration,
			Amount:      plan.RegistrationFee.Round(2),
			DueDate:     start,
		})
	}

	block1 := total.Mul(decimal.NewFromInt(int64(plan.Block1Percentage))).Div(decimal.NewFromInt(100)).Round(2)
	block2 := total.Round(2).Sub(block1)

	if block1.IsPositive() {
		lines = append(lines, ScheduleLine{
			InvoiceType: model.InvoiceTypeTuitionBlock1,
			Amount:      block1,
			DueDate:     start.AddDate(0, 0, plan.Block1DueDays),
		})
	}
	if block2.IsPositive() {
		lines = append(lines, ScheduleLine{
			InvoiceType: model.InvoiceTypeTuitionBlock2,
			Amount:      block2,
			DueDate:     start.AddDate(0, 0, plan.Block2DueDays),
		})
	}
	return lines, nil
}
