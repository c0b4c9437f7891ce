package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/utils/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CurriculumService manages the courses of a program and its graduation requirements
type CurriculumService struct {
	db        *gorm.DB
	validator *validation.Validator
	activity  *ActivityService
}

// NewCurriculumService creates a new curriculum service
func NewCurriculumService(db *gorm.DB, activity *ActivityService) *CurriculumService {
	return &CurriculumService{
		db:        db,
		validator: validation.NewValidator(),
		activity:  activity,
	}
}

// CourseInput describes a course to add to a program
type CourseInput struct {
	Code            string           `json:"code" validate:"required,max=50"`
	Name            string           `json:"name" validate:"required,max=255"`
	Credits         int              `json:"credits" validate:"gte=0,lte=60"`
	CourseType      model.CourseType `json:"course_type" validate:"omitempty,oneof=core elective"`
	PrerequisiteIDs []uint           `json:"prerequisite_ids"`
}

// CreateCourse adds a course to a program. When CourseType is set the course is
// also listed as a requirement, and prerequisite links are written in the same transaction.
func (s *CurriculumService) CreateCourse(ctx context.Context, actor AuthContext, programID uint, input CourseInput) (*model.Course, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	input.Code = strings.ToUpper(validation.SanitizeString(input.Code))
	input.Name = validation.SanitizeString(input.Name)
	if err := validateInput(s.validator, &input); err != nil {
		return nil, err
	}

	course := &model.Course{
		ProgramID: programID,
		Code:      input.Code,
		Name:      input.Name,
		Credits:   input.Credits,
		Status:    model.CourseStatusActive,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProgram(tx, programID); err != nil {
			return err
		}

		var dup int64
		if err := tx.Model(&model.Course{}).Where("program_id = ? AND code = ?", programID, input.Code).Count(&dup).Error; err != nil {
			return fmt.Errorf("failed to check course code: %w", err)
		}
		if dup > 0 {
			return &DuplicateError{Entity: "course", Field: "code", Value: input.Code}
		}

		if err := tx.Create(course).Error; err != nil {
			return fmt.Errorf("failed to create course: %w", err)
		}

		if input.CourseType != "" {
			req := model.ProgramRequirement{ProgramID: programID, CourseID: course.ID, CourseType: input.CourseType}
			if err := tx.Create(&req).Error; err != nil {
				return fmt.Errorf("failed to add requirement: %w", err)
			}
		}

		if len(input.PrerequisiteIDs) == 0 {
			return nil
		}
		valid, err := programCourseIDs(tx, programID)
		if err != nil {
			return err
		}
		for _, pid := range input.PrerequisiteIDs {
			if _, ok := valid[pid]; !ok || pid == course.ID {
				return NewValidationError("prerequisite_ids", fmt.Sprintf("course %d is not part of this program", pid))
			}
			link := model.CoursePrerequisite{CourseID: course.ID, PrerequisiteID: pid}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return fmt.Errorf("failed to link prerequisite: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, txFailure("[PROGRAM]", "create course", err)
	}

	s.activity.LogActivity(ctx, actor, "course_create",
		fmt.Sprintf("Added course %s to program %d", course.Code, programID), "courses", course.ID, nil)
	return course, nil
}

// programCourseIDs returns the set of course ids owned by the program
func programCourseIDs(tx *gorm.DB, programID uint) (map[uint]struct{}, error) {
	var ids []uint
	if err := tx.Model(&model.Course{}).Where("program_id = ?", programID).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load program courses: %w", err)
	}
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// RequirementsMetaInput holds the graduation rules of a program
type RequirementsMetaInput struct {
	MinElectives   int    `json:"min_electives" validate:"gte=0"`
	MaxElectives   int    `json:"max_electives" validate:"gte=0,gtefield=MinElectives"`
	TotalCredits   int    `json:"total_credits" validate:"gte=0"`
	MinGrade       string `json:"min_grade" validate:"max=4"`
	GraduationText string `json:"graduation_text"`
}

// RequirementsInput replaces a program's requirement lists and rules
type RequirementsInput struct {
	CoreCourseIDs     []uint                `json:"core_course_ids"`
	ElectiveCourseIDs []uint                `json:"elective_course_ids"`
	Meta              RequirementsMetaInput `json:"meta"`
}

// RequirementsResult reports what was stored
type RequirementsResult struct {
	CoreCount     int    `json:"core_count"`
	ElectiveCount int    `json:"elective_count"`
	SkippedIDs    []uint `json:"skipped_ids,omitempty"`
}

// UpdateRequirements replaces the program's core and elective lists and upserts its rules.
// Course ids that do not belong to the program are skipped. A course listed as both
// core and elective is stored as core.
func (s *CurriculumService) UpdateRequirements(ctx context.Context, actor AuthContext, programID uint, input RequirementsInput) (*RequirementsResult, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	input.Meta.MinGrade = strings.ToUpper(strings.TrimSpace(input.Meta.MinGrade))
	if err := validateInput(s.validator, &input.Meta); err != nil {
		return nil, err
	}

	result := &RequirementsResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProgram(tx, programID); err != nil {
			return err
		}

		owned, err := programCourseIDs(tx, programID)
		if err != nil {
			return err
		}

		if err := tx.Where("program_id = ?", programID).Delete(&model.ProgramRequirement{}).Error; err != nil {
			return fmt.Errorf("failed to clear requirements: %w", err)
		}

		seen := make(map[uint]struct{})
		var rows []model.ProgramRequirement
		add := func(ids []uint, kind model.CourseType) int {
			n := 0
			for _, id := range ids {
				if _, dup := seen[id]; dup {
					continue
				}
				if _, ok := owned[id]; !ok {
					result.SkippedIDs = append(result.SkippedIDs, id)
					continue
				}
				seen[id] = struct{}{}
				rows = append(rows, model.ProgramRequirement{ProgramID: programID, CourseID: id, CourseType: kind})
				n++
			}
			return n
		}
		result.CoreCount = add(input.CoreCourseIDs, model.CourseTypeCore)
		result.ElectiveCount = add(input.ElectiveCourseIDs, model.CourseTypeElective)

		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert requirements: %w", err)
			}
		}

		meta := model.ProgramRequirementsMeta{
			ProgramID:      programID,
			MinElectives:   input.Meta.MinElectives,
			MaxElectives:   input.Meta.MaxElectives,
			TotalCredits:   input.Meta.TotalCredits,
			MinGrade:       input.Meta.MinGrade,
			GraduationText: strings.TrimSpace(input.Meta.GraduationText),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "program_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"min_electives", "max_electives", "total_credits", "min_grade", "graduation_text", "updated_at",
			}),
		}).Create(&meta).Error
		if err != nil {
			return fmt.Errorf("failed to save requirements meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, txFailure("[PROGRAM]", "update requirements", err)
	}

	if len(result.SkippedIDs) > 0 {
		log.Printf("[PROGRAM] requirements for program %d skipped foreign course ids %v", programID, result.SkippedIDs)
	}
	s.activity.LogActivity(ctx, actor, "requirements_update",
		fmt.Sprintf("Updated requirements: %d core, %d elective", result.CoreCount, result.ElectiveCount),
		"programs", programID, nil)
	return result, nil
}

// RequirementsView is a program's requirement lists with their rules
type RequirementsView struct {
	ProgramID uint                           `json:"program_id"`
	Core      []model.Course                 `json:"core"`
	Electives []model.Course                 `json:"electives"`
	Meta      *model.ProgramRequirementsMeta `json:"meta,omitempty"`
}

// GetRequirements loads the requirement lists of a program
func (s *CurriculumService) GetRequirements(ctx context.Context, actor AuthContext, programID uint) (*RequirementsView, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var program model.Program
	if err := db.Select("id").First(&program, programID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "program", ID: programID}
		}
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	view := &RequirementsView{ProgramID: programID, Core: []model.Course{}, Electives: []model.Course{}}
	for _, kind := range []model.CourseType{model.CourseTypeCore, model.CourseTypeElective} {
		var courses []model.Course
		err := db.Joins("JOIN program_requirements pr ON pr.course_id = courses.id").
			Where("pr.program_id = ? AND pr.course_type = ?", programID, kind).
			Order("courses.code").
			Find(&courses).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load %s courses: %w", kind, err)
		}
		if kind == model.CourseTypeCore {
			view.Core = courses
		} else {
			view.Electives = courses
		}
	}

	var meta model.ProgramRequirementsMeta
	err := db.Where("program_id = ?", programID).First(&meta).Error
	switch {
	case err == nil:
		view.Meta = &meta
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load requirements meta: %w", err)
	}
	return view, nil
}

// CourseRemovalResult summarizes what a removal touched
type CourseRemovalResult struct {
	CourseID           uint  `json:"course_id"`
	Hard               bool  `json:"hard"`
	ClassesDeleted     int64 `json:"classes_deleted,omitempty"`
	EnrollmentsDeleted int64 `json:"enrollments_deleted,omitempty"`
	InvoicesDeleted    int64 `json:"invoices_deleted,omitempty"`
}

// RemoveCourse takes a course out of a program. Soft removal marks it inactive and keeps
// every dependent row; hard removal deletes the course with its classes, enrollments,
// grades, invoices and payments. Both modes are refused while the course has active
// classes, enrolled students, or is a prerequisite of another course in the program.
func (s *CurriculumService) RemoveCourse(ctx context.Context, actor AuthContext, programID, courseID uint, hard bool) (*CourseRemovalResult, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	result := &CourseRemovalResult{CourseID: courseID, Hard: hard}
	var code string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course model.Course
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND program_id = ?", courseID, programID).
			First(&course).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "course", ID: courseID}
			}
			return fmt.Errorf("failed to load course: %w", err)
		}
		code = course.Code

		reasons, err := courseRemovalBlockers(tx, &course, hard)
		if err != nil {
			return err
		}
		if len(reasons) > 0 {
			return &ReferentialBlockError{Entity: "course", ID: courseID, Reasons: reasons}
		}

		if !hard {
			return tx.Model(&course).Update("status", model.CourseStatusInactive).Error
		}
		return hardDeleteCourse(tx, &course, result)
	})
	if err != nil {
		return nil, txFailure("[PROGRAM]", "remove course", err)
	}

	mode := "deactivated"
	if hard {
		mode = "deleted"
	}
	log.Printf("[PROGRAM] course %s %s from program %d", code, mode, programID)
	s.activity.LogActivity(ctx, actor, "course_remove",
		fmt.Sprintf("Course %s %s", code, mode), "courses", courseID,
		map[string]interface{}{"program_id": programID, "hard": hard})
	return result, nil
}

func courseRemovalBlockers(tx *gorm.DB, course *model.Course, hard bool) ([]string, error) {
	var reasons []string

	var activeClasses int64
	if err := tx.Model(&model.ClassBatch{}).
		Where("course_id = ? AND status = ?", course.ID, model.ClassStatusActive).
		Count(&activeClasses).Error; err != nil {
		return nil, fmt.Errorf("failed to count active classes: %w", err)
	}
	if activeClasses > 0 {
		reasons = append(reasons, pluralize(activeClasses, "active class"))
	}

	var enrolled int64
	if err := tx.Model(&model.Enrollment{}).
		Joins("JOIN class_batches cb ON cb.id = enrollments.class_batch_id").
		Where("cb.course_id = ? AND enrollments.status = ?", course.ID, model.EnrollmentStatusEnrolled).
		Distinct("enrollments.student_id").
		Count(&enrolled).Error; err != nil {
		return nil, fmt.Errorf("failed to count enrolled students: %w", err)
	}
	if enrolled > 0 {
		reasons = append(reasons, pluralize(enrolled, "enrolled student"))
	}

	var dependents []string
	if err := tx.Model(&model.Course{}).
		Joins("JOIN course_prerequisites cp ON cp.course_id = courses.id").
		Where("cp.prerequisite_id = ? AND courses.program_id = ? AND courses.id <> ?", course.ID, course.ProgramID, course.ID).
		Pluck("courses.code", &dependents).Error; err != nil {
		return nil, fmt.Errorf("failed to check prerequisite links: %w", err)
	}
	if len(dependents) > 0 {
		reasons = append(reasons, fmt.Sprintf("prerequisite for %s", strings.Join(dependents, ", ")))
	}

	if hard {
		var paid int64
		if err := tx.Model(&model.Invoice{}).
			Joins("JOIN class_batches cb ON cb.id = invoices.class_batch_id").
			Where("cb.course_id = ? AND invoices.status = ?", course.ID, model.InvoiceStatusPaid).
			Count(&paid).Error; err != nil {
			return nil, fmt.Errorf("failed to count paid invoices: %w", err)
		}
		if paid > 0 {
			reasons = append(reasons, pluralize(paid, "paid invoice"))
		}
	}

	return reasons, nil
}

// hardDeleteCourse removes the course and everything hanging off it, children first
func hardDeleteCourse(tx *gorm.DB, course *model.Course, result *CourseRemovalResult) error {
	var classIDs []uint
	if err := tx.Model(&model.ClassBatch{}).Where("course_id = ?", course.ID).Pluck("id", &classIDs).Error; err != nil {
		return fmt.Errorf("failed to load classes: %w", err)
	}

	if len(classIDs) > 0 {
		var enrollmentIDs []uint
		if err := tx.Model(&model.Enrollment{}).Where("class_batch_id IN ?", classIDs).Pluck("id", &enrollmentIDs).Error; err != nil {
			return fmt.Errorf("failed to load enrollments: %w", err)
		}
		if len(enrollmentIDs) > 0 {
			if err := tx.Where("enrollment_id IN ?", enrollmentIDs).Delete(&model.Grade{}).Error; err != nil {
				return fmt.Errorf("failed to delete grades: %w", err)
			}
			res := tx.Where("id IN ?", enrollmentIDs).Delete(&model.Enrollment{})
			if res.Error != nil {
				return fmt.Errorf("failed to delete enrollments: %w", res.Error)
			}
			result.EnrollmentsDeleted = res.RowsAffected
		}

		var invoiceIDs []uint
		if err := tx.Model(&model.Invoice{}).Where("class_batch_id IN ?", classIDs).Pluck("id", &invoiceIDs).Error; err != nil {
			return fmt.Errorf("failed to load invoices: %w", err)
		}
		if len(invoiceIDs) > 0 {
			for _, table := range []interface{}{&model.FinancialTransaction{}, &model.InvoiceStatusChange{}, &model.InvoiceNotification{}} {
				if err := tx.Where("invoice_id IN ?", invoiceIDs).Delete(table).Error; err != nil {
					return fmt.Errorf("failed to delete invoice history: %w", err)
				}
			}
			res := tx.Where("id IN ?", invoiceIDs).Delete(&model.Invoice{})
			if res.Error != nil {
				return fmt.Errorf("failed to delete invoices: %w", res.Error)
			}
			result.InvoicesDeleted = res.RowsAffected
		}

		res := tx.Where("id IN ?", classIDs).Delete(&model.ClassBatch{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete classes: %w", res.Error)
		}
		result.ClassesDeleted = res.RowsAffected
	}

	if err := tx.Where("course_id = ? OR prerequisite_id = ?", course.ID, course.ID).Delete(&model.CoursePrerequisite{}).Error; err != nil {
		return fmt.Errorf("failed to delete prerequisite links: %w", err)
	}
	if err := tx.Where("course_id = ?", course.ID).Delete(&model.ProgramRequirement{}).Error; err != nil {
		return fmt.Errorf("failed to delete requirements: %w", err)
	}
	if err := tx.Delete(course).Error; err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	return nil
}
