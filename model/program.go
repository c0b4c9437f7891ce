package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProgramType classifies how a program is delivered
type ProgramType string

const (
	ProgramTypeOnline ProgramType = "online"
	ProgramTypeOnsite ProgramType = "onsite"
	ProgramTypeSchool ProgramType = "school"
)

// IsValid reports whether t is a known program type
func (t ProgramType) IsValid() bool {
	switch t {
	case ProgramTypeOnline, ProgramTypeOnsite, ProgramTypeSchool:
		return true
	}
	return false
}

// UsesBlockPlan reports whether programs of this type get a default block payment plan
func (t ProgramType) UsesBlockPlan() bool {
	return t == ProgramTypeOnline || t == ProgramTypeOnsite
}

// PaymentPlanType describes how the total fee is collected
type PaymentPlanType string

const (
	PaymentPlanFull        PaymentPlanType = "full"
	PaymentPlanInstallment PaymentPlanType = "installment"
	PaymentPlanBlock       PaymentPlanType = "block"
)

// ProgramStatus is the lifecycle state of a program
type ProgramStatus string

const (
	ProgramStatusActive   ProgramStatus = "active"
	ProgramStatusInactive ProgramStatus = "inactive"
	ProgramStatusUpcoming ProgramStatus = "upcoming"
)

// Program represents a course of study with a fee and payment structure
type Program struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Code        string      `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name        string      `gorm:"not null" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	ProgramType ProgramType `gorm:"type:varchar(20);not null;index" json:"program_type"`
	Duration    int         `gorm:"default:0" json:"duration_months"`

	// Fee components. TotalFee is always derived from ProgramType and the components.
	BaseFee         decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0" json:"base_fee"`
	RegistrationFee decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0" json:"registration_fee"`
	OnlineFee       decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"online_fee"`
	OnsiteFee       decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"onsite_fee"`
	TotalFee        decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0" json:"total_fee"`

	PaymentPlanType   PaymentPlanType `gorm:"type:varchar(20);default:'full'" json:"payment_plan_type"`
	InstallmentCount  int             `gorm:"default:1" json:"installment_count"`
	LateFeePercentage decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"late_fee_percentage"`

	Status    ProgramStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`
	CreatedBy uint          `gorm:"index" json:"created_by"`
	SchoolID  *uint         `gorm:"index" json:"school_id,omitempty"`

	// Relationships
	PaymentPlans []PaymentPlan `gorm:"foreignKey:ProgramID" json:"payment_plans,omitempty"`
	Courses      []Course      `gorm:"foreignKey:ProgramID" json:"courses,omitempty"`
}

// TableName specifies the table name for Program
func (Program) TableName() string {
	return "programs"
}

// PaymentPlan is the fee collection schedule attached to a program
type PaymentPlan struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ProgramID   uint        `gorm:"not null;uniqueIndex:idx_payment_plan_active_type,where:is_active = true" json:"program_id"`
	ProgramType ProgramType `gorm:"type:varchar(20);not null;uniqueIndex:idx_payment_plan_active_type,where:is_active = true" json:"program_type"`

	RegistrationFee   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"registration_fee"`
	Block1Percentage  int             `gorm:"not null" json:"block1_percentage"`
	Block2Percentage  int             `gorm:"not null" json:"block2_percentage"`
	Block1DueDays     int             `gorm:"not null" json:"block1_due_days"`
	Block2DueDays     int             `gorm:"not null" json:"block2_due_days"`
	LateFeePercentage decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"late_fee_percentage"`
	SuspensionDays    int             `gorm:"not null" json:"suspension_days"`
	RefundPolicyDays  int             `gorm:"not null" json:"refund_policy_days"`
	IsActive          bool            `gorm:"not null" json:"is_active"`

	// Relationships
	Program *Program `gorm:"foreignKey:ProgramID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for PaymentPlan
func (PaymentPlan) TableName() string {
	return "payment_plans"
}
