package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/utils/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxCodeSequence = 999
	maxCloneSuffix  = 1000
)

// ProgramService runs the program cascades: create, update, clone, delete and status changes.
// Each cascade is one database transaction.
type ProgramService struct {
	db        *gorm.DB
	validator *validation.Validator
	activity  *ActivityService
}

// NewProgramService creates a new program service
func NewProgramService(db *gorm.DB, activity *ActivityService) *ProgramService {
	return &ProgramService{
		db:        db,
		validator: validation.NewValidator(),
		activity:  activity,
	}
}

// ProgramInput is the editable part of a program. TotalFee is never accepted from callers.
type ProgramInput struct {
	Code              string                `json:"code" validate:"omitempty,max=50"`
	Name              string                `json:"name" validate:"required,max=255"`
	Description       string                `json:"description"`
	ProgramType       model.ProgramType     `json:"program_type" validate:"required,oneof=online onsite school"`
	Duration          int                   `json:"duration_months" validate:"gte=0"`
	BaseFee           decimal.Decimal       `json:"base_fee" validate:"gte=0"`
	RegistrationFee   decimal.Decimal       `json:"registration_fee" validate:"gte=0"`
	OnlineFee         decimal.NullDecimal   `json:"online_fee" validate:"omitempty,gte=0"`
	OnsiteFee         decimal.NullDecimal   `json:"onsite_fee" validate:"omitempty,gte=0"`
	PaymentPlanType   model.PaymentPlanType `json:"payment_plan_type" validate:"omitempty,oneof=full installment block"`
	InstallmentCount  int                   `json:"installment_count" validate:"omitempty,gte=1,lte=24"`
	LateFeePercentage decimal.Decimal       `json:"late_fee_percentage" validate:"gte=0,lte=100"`
	Status            model.ProgramStatus   `json:"status" validate:"omitempty,oneof=active inactive upcoming"`
	SchoolID          *uint                 `json:"school_id"`
}

func (in *ProgramInput) normalize() {
	in.Code = strings.ToUpper(validation.SanitizeString(in.Code))
	in.Name = validation.SanitizeString(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.PaymentPlanType == "" {
		if in.ProgramType.UsesBlockPlan() {
			in.PaymentPlanType = model.PaymentPlanBlock
		} else {
			in.PaymentPlanType = model.PaymentPlanFull
		}
	}
	if in.InstallmentCount == 0 {
		in.InstallmentCount = 1
	}
}

func (in *ProgramInput) applyTo(p *model.Program) {
	p.Name = in.Name
	p.Description = in.Description
	p.ProgramType = in.ProgramType
	p.Duration = in.Duration
	p.BaseFee = in.BaseFee.Round(2)
	p.RegistrationFee = in.RegistrationFee.Round(2)
	p.OnlineFee = in.OnlineFee
	p.OnsiteFee = in.OnsiteFee
	p.PaymentPlanType = in.PaymentPlanType
	p.InstallmentCount = in.InstallmentCount
	p.LateFeePercentage = in.LateFeePercentage
	if in.Status != "" {
		p.Status = in.Status
	}
	p.SchoolID = in.SchoolID
	applyTotalFee(p)
}

// CreateProgram inserts a program and, for online and onsite programs, its default payment plan
func (s *ProgramService) CreateProgram(ctx context.Context, actor AuthContext, input ProgramInput) (*model.Program, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	input.normalize()
	if err := validateInput(s.validator, &input); err != nil {
		return nil, err
	}

	program := &model.Program{CreatedBy: actor.UserID, Status: model.ProgramStatusActive}
	input.applyTo(program)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.resolveCode(tx, input.Code, input.Name)
		if err != nil {
			return err
		}
		program.Code = code

		if err := tx.Create(program).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return &DuplicateError{Entity: "program", Field: "code", Value: program.Code}
			}
			return fmt.Errorf("failed to create program: %w", err)
		}

		if !program.ProgramType.UsesBlockPlan() {
			return nil
		}

		plan, err := DefaultPaymentPlan(program.ProgramType, program.RegistrationFee, program.LateFeePercentage)
		if err != nil {
			return err
		}
		plan.ProgramID = program.ID
		if err := tx.Create(plan).Error; err != nil {
			return fmt.Errorf("failed to create default payment plan: %w", err)
		}
		program.PaymentPlans = []model.PaymentPlan{*plan}
		return nil
	})
	if err != nil {
		return nil, txFailure("[PROGRAM]", "create program", err)
	}

	log.Printf("[PROGRAM] created program %s (id=%d, total_fee=%s)", program.Code, program.ID, program.TotalFee.StringFixed(2))
	s.activity.LogActivity(ctx, actor, "program_create",
		fmt.Sprintf("Created program %s - %s", program.Code, program.Name), "programs", program.ID, nil)

	return program, nil
}

// resolveCode validates a requested code or suggests one when none was given
func (s *ProgramService) resolveCode(tx *gorm.DB, requested, name string) (string, error) {
	if requested == "" {
		return suggestProgramCode(tx, name)
	}
	exists, err := programCodeExists(tx, requested)
	if err != nil {
		return "", err
	}
	if exists {
		return "", &DuplicateError{Entity: "program", Field: "code", Value: requested}
	}
	return requested, nil
}

// SuggestProgramCode returns the first free code built from the name's initials
func (s *ProgramService) SuggestProgramCode(ctx context.Context, name string) (string, error) {
	return suggestProgramCode(s.db.WithContext(ctx), name)
}

// programInitials turns "Bachelor of Science" into "BOS"
func programInitials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
		if b.Len() >= 6 {
			break
		}
	}
	if b.Len() == 0 {
		return "PRG"
	}
	return b.String()
}

func suggestProgramCode(tx *gorm.DB, name string) (string, error) {
	prefix := programInitials(name)

	var taken []string
	if err := tx.Model(&model.Program{}).Where("code LIKE ?", prefix+"%").Pluck("code", &taken).Error; err != nil {
		return "", fmt.Errorf("failed to load existing codes: %w", err)
	}
	used := make(map[string]struct{}, len(taken))
	for _, c := range taken {
		used[c] = struct{}{}
	}

	for seq := 1; seq <= maxCodeSequence; seq++ {
		candidate := fmt.Sprintf("%s%03d", prefix, seq)
		if _, ok := used[candidate]; !ok {
			return candidate, nil
		}
	}

	// Every sequence number is taken.
	return fmt.Sprintf("%s-%s", prefix, time.Now().UTC().Format("060102150405")), nil
}

func programCodeExists(tx *gorm.DB, code string) (bool, error) {
	var count int64
	if err := tx.Model(&model.Program{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check program code: %w", err)
	}
	return count > 0, nil
}

// lockProgram loads a program with a row lock held until the transaction ends
func lockProgram(tx *gorm.DB, id uint) (*model.Program, error) {
	var program model.Program
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&program, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "program", ID: id}
		}
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	return &program, nil
}

// GetProgram returns a program with its payment plans
func (s *ProgramService) GetProgram(ctx context.Context, actor AuthContext, id uint) (*model.Program, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	return s.loadProgram(ctx, id)
}

func (s *ProgramService) loadProgram(ctx context.Context, id uint) (*model.Program, error) {
	var program model.Program
	err := s.db.WithContext(ctx).Preload("PaymentPlans").First(&program, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "program", ID: id}
		}
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	return &program, nil
}

// ProgramFilter narrows ListPrograms
type ProgramFilter struct {
	Status      model.ProgramStatus
	ProgramType model.ProgramType
	SchoolID    *uint
	Page        int
	Limit       int
}

// ListPrograms returns programs ordered by code with the total count
func (s *ProgramService) ListPrograms(ctx context.Context, actor AuthContext, filter ProgramFilter) ([]model.Program, int64, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, 0, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Program{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ProgramType != "" {
		query = query.Where("program_type = ?", filter.ProgramType)
	}
	if filter.SchoolID != nil {
		query = query.Where("school_id = ?", *filter.SchoolID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count programs: %w", err)
	}

	var programs []model.Program
	err := query.Order("code ASC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&programs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list programs: %w", err)
	}
	return programs, total, nil
}

// UpdateProgram edits a program and re-derives its total fee. An empty status keeps the current one.
// Switching between online and onsite re-labels the active plan without recalculating its terms;
// switching to school retires it.
func (s *ProgramService) UpdateProgram(ctx context.Context, actor AuthContext, id uint, input ProgramInput) (*model.Program, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	input.normalize()
	if err := validateInput(s.validator, &input); err != nil {
		return nil, err
	}

	var program *model.Program
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		program, err = lockProgram(tx, id)
		if err != nil {
			return err
		}

		if input.Code != "" && input.Code != program.Code {
			exists, err := programCodeExists(tx, input.Code)
			if err != nil {
				return err
			}
			if exists {
				return &DuplicateError{Entity: "program", Field: "code", Value: input.Code}
			}
			program.Code = input.Code
		}

		oldType := program.ProgramType
		input.applyTo(program)

		if err := tx.Save(program).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return &DuplicateError{Entity: "program", Field: "code", Value: program.Code}
			}
			return fmt.Errorf("failed to update program: %w", err)
		}

		if oldType != program.ProgramType {
			return s.retagPlans(tx, program, oldType)
		}
		return nil
	})
	if err != nil {
		return nil, txFailure("[PROGRAM]", "update program", err)
	}

	s.activity.LogActivity(ctx, actor, "program_update",
		fmt.Sprintf("Updated program %s", program.Code), "programs", program.ID, nil)

	return s.loadProgram(ctx, program.ID)
}

// retagPlans follows a program type change. Block percentages and due days are kept as they were.
func (s *ProgramService) retagPlans(tx *gorm.DB, program *model.Program, oldType model.ProgramType) error {
	newType := program.ProgramType
	if !newType.UsesBlockPlan() {
		result := tx.Model(&model.PaymentPlan{}).
			Where("program_id = ? AND is_active = ?", program.ID, true).
			Update("is_active", false)
		if result.Error != nil {
			return fmt.Errorf("failed to retire payment plans: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			log.Printf("[PROGRAM] program %s changed %s -> %s; retired %d payment plan(s)",
				program.Code, oldType, newType, result.RowsAffected)
		}
		return nil
	}

	var existing int64
	if err := tx.Model(&model.PaymentPlan{}).
		Where("program_id = ? AND program_type = ? AND is_active = ?", program.ID, newType, true).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("failed to check payment plans: %w", err)
	}
	if existing > 0 {
		// The program already has an active plan for the new type; retire the old one.
		return tx.Model(&model.PaymentPlan{}).
			Where("program_id = ? AND program_type = ? AND is_active = ?", program.ID, oldType, true).
			Update("is_active", false).Error
	}

	if oldType.UsesBlockPlan() {
		result := tx.Model(&model.PaymentPlan{}).
			Where("program_id = ? AND program_type = ? AND is_active = ?", program.ID, oldType, true).
			Update("program_type", newType)
		if result.Error != nil {
			return fmt.Errorf("failed to re-tag payment plan: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			log.Printf("[PROGRAM] WARNING: program %s changed %s -> %s; payment plan re-tagged without recalculating block terms",
				program.Code, oldType, newType)
			return nil
		}
	}

	plan, err := DefaultPaymentPlan(newType, program.RegistrationFee, program.LateFeePercentage)
	if err != nil {
		return err
	}
	plan.ProgramID = program.ID
	if err := tx.Create(plan).Error; err != nil {
		return fmt.Errorf("failed to create default payment plan: %w", err)
	}
	return nil
}

// SetProgramStatus changes only the lifecycle status
func (s *ProgramService) SetProgramStatus(ctx context.Context, actor AuthContext, id uint, status model.ProgramStatus) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	switch status {
	case model.ProgramStatusActive, model.ProgramStatusInactive, model.ProgramStatusUpcoming:
	default:
		return NewValidationError("status", fmt.Sprintf("unknown program status %q", status))
	}

	var code string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		program, err := lockProgram(tx, id)
		if err != nil {
			return err
		}
		code = program.Code
		return tx.Model(program).Update("status", status).Error
	})
	if err != nil {
		return txFailure("[PROGRAM]", "set program status", err)
	}

	s.activity.LogActivity(ctx, actor, "program_status",
		fmt.Sprintf("Set program %s to %s", code, status), "programs", id,
		map[string]interface{}{"status": status})
	return nil
}

// CloneProgram copies a program and its active payment plans under a fresh "-COPY" code.
// The clone always starts inactive.
func (s *ProgramService) CloneProgram(ctx context.Context, actor AuthContext, id uint) (*model.Program, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var clone model.Program
	var sourceCode string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var source model.Program
		err := tx.Preload("PaymentPlans", "is_active = ?", true).First(&source, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "program", ID: id}
			}
			return fmt.Errorf("failed to load source program: %w", err)
		}
		sourceCode = source.Code

		code, err := cloneCode(tx, source.Code)
		if err != nil {
			return err
		}

		clone = model.Program{
			Code:              code,
			Name:              source.Name + " (Copy)",
			Description:       source.Description,
			ProgramType:       source.ProgramType,
			Duration:          source.Duration,
			BaseFee:           source.BaseFee,
			RegistrationFee:   source.RegistrationFee,
			OnlineFee:         source.OnlineFee,
			OnsiteFee:         source.OnsiteFee,
			TotalFee:          source.TotalFee,
			PaymentPlanType:   source.PaymentPlanType,
			InstallmentCount:  source.InstallmentCount,
			LateFeePercentage: source.LateFeePercentage,
			Status:            model.ProgramStatusInactive,
			CreatedBy:         actor.UserID,
			SchoolID:          source.SchoolID,
		}
		if err := tx.Omit("PaymentPlans", "Courses").Create(&clone).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return &DuplicateError{Entity: "program", Field: "code", Value: clone.Code}
			}
			return fmt.Errorf("failed to create cloned program: %w", err)
		}

		for _, plan := range source.PaymentPlans {
			copied := plan
			copied.ID = 0
			copied.ProgramID = clone.ID
			copied.CreatedAt = time.Time{}
			copied.UpdatedAt = time.Time{}
			copied.Program = nil
			if err := tx.Create(&copied).Error; err != nil {
				return fmt.Errorf("failed to copy payment plan %d: %w", plan.ID, err)
			}
			clone.PaymentPlans = append(clone.PaymentPlans, copied)
		}
		return nil
	})
	if err != nil {
		return nil, txFailure("[PROGRAM]", "clone program", err)
	}

	log.Printf("[PROGRAM] cloned %s -> %s (%d plans)", sourceCode, clone.Code, len(clone.PaymentPlans))
	s.activity.LogActivity(ctx, actor, "program_clone",
		fmt.Sprintf("Cloned program %s as %s", sourceCode, clone.Code), "programs", clone.ID,
		map[string]interface{}{"source_id": id})

	return &clone, nil
}

// cloneCode finds the first free CODE-COPY, CODE-COPY2, CODE-COPY3, ...
func cloneCode(tx *gorm.DB, code string) (string, error) {
	base := code + "-COPY"
	for n := 1; n <= maxCloneSuffix; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s%d", base, n)
		}
		exists, err := programCodeExists(tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s-%s", base, time.Now().UTC().Format("060102150405")), nil
}

// DeleteProgram removes a program and its payment plans. Any course, application or
// class batch still referencing the program blocks the delete. The check runs under
// the program's row lock in the same transaction as the delete.
func (s *ProgramService) DeleteProgram(ctx context.Context, actor AuthContext, id uint) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}

	var code string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		program, err := lockProgram(tx, id)
		if err != nil {
			return err
		}
		code = program.Code

		blockers, err := programDependents(tx, id)
		if err != nil {
			return err
		}
		if len(blockers) > 0 {
			return &ReferentialBlockError{Entity: "program", ID: id, Reasons: blockers}
		}

		if err := tx.Where("program_id = ?", id).Delete(&model.PaymentPlan{}).Error; err != nil {
			return fmt.Errorf("failed to delete payment plans: %w", err)
		}
		if err := tx.Where("program_id = ?", id).Delete(&model.ProgramRequirementsMeta{}).Error; err != nil {
			return fmt.Errorf("failed to delete requirements meta: %w", err)
		}
		if err := tx.Delete(&model.Program{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete program: %w", err)
		}
		return nil
	})
	if err != nil {
		return txFailure("[PROGRAM]", "delete program", err)
	}

	log.Printf("[PROGRAM] deleted program %s (id=%d)", code, id)
	s.activity.LogActivity(ctx, actor, "program_delete",
		fmt.Sprintf("Deleted program %s", code), "programs", id, nil)
	return nil
}

// programDependents describes every row type that still references the program
func programDependents(tx *gorm.DB, programID uint) ([]string, error) {
	checks := []struct {
		table interface{}
		label string
	}{
		{&model.Course{}, "course"},
		{&model.Application{}, "application"},
		{&model.ClassBatch{}, "class batch"},
	}

	var reasons []string
	for _, c := range checks {
		var count int64
		if err := tx.Model(c.table).Where("program_id = ?", programID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s rows: %w", c.label, err)
		}
		if count > 0 {
			reasons = append(reasons, pluralize(count, c.label))
		}
	}
	return reasons, nil
}

func pluralize(n int64, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "ch") || strings.HasSuffix(noun, "s") {
		return fmt.Sprintf("%d %ses", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
