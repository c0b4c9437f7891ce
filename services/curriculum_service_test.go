package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCourseWithRequirementAndPrerequisite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.onsiteProgram(t, "CUL")

	intro, err := f.curriculum.CreateCourse(ctx, adminActor, p.ID, CourseInput{Code: "cul-101", Name: "Knife Skills", Credits: 3, CourseType: model.CourseTypeCore})
	require.NoError(t, err)
	assert.Equal(t, "CUL-101", intro.Code)

	advanced, err := f.curriculum.CreateCourse(ctx, adminActor, p.ID, CourseInput{
		Code: "CUL-201", Name: "Sauces", CourseType: model.CourseTypeElective, PrerequisiteIDs: []uint{intro.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), count(t, f.db, &model.ProgramRequirement{}, "program_id = ?", p.ID))
	assert.Equal(t, int64(1), count(t, f.db, &model.CoursePrerequisite{}, "course_id = ? AND prerequisite_id = ?", advanced.ID, intro.ID))
}

func TestCreateCourseRejectsDuplicateCodeInProgram(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.onsiteProgram(t, "CUL")
	other := f.onsiteProgram(t, "BAK")

	_, err := f.curriculum.CreateCourse(ctx, adminActor, p.ID, CourseInput{Code: "C-1", Name: "One"})
	require.NoError(t, err)
	_, err = f.curriculum.CreateCourse(ctx, adminActor, other.ID, CourseInput{Code: "C-1", Name: "Same code elsewhere"})
	require.NoError(t, err)

	_, err = f.curriculum.CreateCourse(ctx, adminActor, p.ID, CourseInput{Code: "c-1", Name: "Again"})
	var dup *DuplicateError
	assert.True(t, errors.As(err, &dup), "got %v", err)
}

func TestCreateCourseWithForeignPrerequisiteRollsBack(t *testing.T) {
	f := newFixture(t)
	p := f.onsiteProgram(t, "CUL")
	other := f.onsiteProgram(t, "BAK")
	foreign := f.createCourse(t, other.ID, "BAK-101")

	_, err := f.curriculum.CreateCourse(context.Background(), adminActor, p.ID, CourseInput{
		Code: "CUL-101", Name: "Knife Skills", CourseType: model.CourseTypeCore, PrerequisiteIDs: []uint{foreign.ID},
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "prerequisite_ids", verr.Fields[0].Field)
	assert.Zero(t, count(t, f.db, &model.Course{}, "program_id = ?", p.ID))
	assert.Zero(t, count(t, f.db, &model.ProgramRequirement{}))
}

func TestUpdateRequirementsReplacesListsAndSkipsForeignCourses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.onsiteProgram(t, "CUL")
	a := f.createCourse(t, p.ID, "CUL-101")
	b := f.createCourse(t, p.ID, "CUL-102")
	c := f.createCourse(t, p.ID, "CUL-103")
	foreign := f.createCourse(t, f.onsiteProgram(t, "BAK").ID, "BAK-101")

	res, err := f.curriculum.UpdateRequirements(ctx, adminActor, p.ID, RequirementsInput{
		CoreCourseIDs:     []uint{a.ID, b.ID},
		ElectiveCourseIDs: []uint{b.ID, c.ID, foreign.ID},
		Meta:              RequirementsMetaInput{MinElectives: 1, MaxElectives: 2, TotalCredits: 30, MinGrade: " c "},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CoreCount)
	assert.Equal(t, 1, res.ElectiveCount, "a course listed twice stays core")
	assert.Equal(t, []uint{foreign.ID}, res.SkippedIDs)

	view, err := f.curriculum.GetRequirements(ctx, financeActor, p.ID)
	require.NoError(t, err)
	require.Len(t, view.Core, 2)
	require.Len(t, view.Electives, 1)
	assert.Equal(t, "CUL-103", view.Electives[0].Code)
	require.NotNil(t, view.Meta)
	assert.Equal(t, "C", view.Meta.MinGrade)

	// A second update replaces everything, including the meta row.
	res, err = f.curriculum.UpdateRequirements(ctx, adminActor, p.ID, RequirementsInput{
		CoreCourseIDs: []uint{c.ID},
		Meta:          RequirementsMetaInput{TotalCredits: 12, GraduationText: "Pass the capstone"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CoreCount)
	assert.Equal(t, int64(1), count(t, f.db, &model.ProgramRequirement{}, "program_id = ?", p.ID))
	assert.Equal(t, int64(1), count(t, f.db, &model.ProgramRequirementsMeta{}, "program_id = ?", p.ID))

	var meta model.ProgramRequirementsMeta
	require.NoError(t, f.db.Where("program_id = ?", p.ID).First(&meta).Error)
	assert.Equal(t, 12, meta.TotalCredits)
	assert.Equal(t, "Pass the capstone", meta.GraduationText)
}

func TestUpdateRequirementsValidatesMeta(t *testing.T) {
	f := newFixture(t)
	p := f.onsiteProgram(t, "CUL")

	_, err := f.curriculum.UpdateRequirements(context.Background(), adminActor, p.ID, RequirementsInput{
		Meta: RequirementsMetaInput{MinElectives: 3, MaxElectives: 1},
	})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr), "got %v", err)
	assert.Zero(t, count(t, f.db, &model.ProgramRequirementsMeta{}))
}

func TestGetRequirementsMissingProgram(t *testing.T) {
	f := newFixture(t)
	_, err := f.curriculum.GetRequirements(context.Background(), adminActor, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveCourseBlockedByActiveClassAndEnrollment(t *testing.T) {
	f := newFixture(t)
	p := f.onsiteProgram(t, "CUL")
	course := f.createCourse(t, p.ID, "CUL-101")
	class := f.createClass(t, course, model.ClassStatusActive, testNow)
	student := f.createStudent(t, "Ada", "", "")
	require.NoError(t, f.db.Create(&model.Enrollment{ClassBatchID: class.ID, StudentID: student.ID, Status: model.EnrollmentStatusEnrolled}).Error)

	for _, hard := range []bool{false, true} {
		_, err := f.curriculum.RemoveCourse(context.Background(), adminActor, p.ID, course.ID, hard)

		var blocked *ReferentialBlockError
		require.True(t, errors.As(err, &blocked), "hard=%v: got %v", hard, err)
		assert.Contains(t, blocked.Reasons, "1 active class")
		assert.Contains(t, blocked.Reasons, "1 enrolled student")
	}

	var stored model.Course
	require.NoError(t, f.db.First(&stored, course.ID).Error)
	assert.Equal(t, model.CourseStatusActive, stored.Status)
	assert.Equal(t, int64(1), count(t, f.db, &model.Enrollment{}))
}

func TestRemoveCourseBlockedWhilePrerequisite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.onsiteProgram(t, "CUL")
	intro, err := f.curriculum.CreateCourse(ctx, adminActor, p.ID, CourseInput{Code: "CUL-101", Name: "Intro"})
	require.NoError(t, err)
	_, err = f.curriculum.CreateCourse(ctx, adminActor, p.ID, CourseInput{Code: "CUL-201", Name: "Next", PrerequisiteIDs: []uint{intro.ID}})
	require.NoError(t, err)

	_, err = f.curriculum.RemoveCourse(ctx, adminActor, p.ID, intro.ID, false)

	var blocked *ReferentialBlockError
	require.True(t, errors.As(err, &blocked), "got %v", err)
	assert.Equal(t, []string{"prerequisite for CUL-201"}, blocked.Reasons)
}

func TestSoftRemoveCourseKeepsHistory(t *testing.T) {
	f := newFixture(t)
	p := f.onsiteProgram(t, "CUL")
	course := f.createCourse(t, p.ID, "CUL-101")
	f.createClass(t, course, model.ClassStatusCompleted, testNow)

	res, err := f.curriculum.RemoveCourse(context.Background(), adminActor, p.ID, course.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Hard)

	var stored model.Course
	require.NoError(t, f.db.First(&stored, course.ID).Error)
	assert.Equal(t, model.CourseStatusInactive, stored.Status)
	assert.Equal(t, int64(1), count(t, f.db, &model.ClassBatch{}))
}

func TestHardRemoveCourseDeletesDownstreamRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	require.NoError(t, f.db.Model(b.class).Update("status", model.ClassStatusCompleted).Error)

	enrollment := model.Enrollment{ClassBatchID: b.class.ID, StudentID: b.student.ID, Status: model.EnrollmentStatusCompleted}
	require.NoError(t, f.db.Create(&enrollment).Error)
	require.NoError(t, f.db.Create(&model.Grade{EnrollmentID: enrollment.ID, Assessment: "final", Score: 81, Letter: "B"}).Error)

	inv := f.issueInvoice(t, b, model.InvoiceTypeTuitionBlock1, "1000", testNow.AddDate(0, 1, 0))
	_, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("400")})
	require.NoError(t, err)

	_, err = f.curriculum.UpdateRequirements(ctx, adminActor, b.program.ID, RequirementsInput{CoreCourseIDs: []uint{b.course.ID}})
	require.NoError(t, err)

	res, err := f.curriculum.RemoveCourse(ctx, adminActor, b.program.ID, b.course.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Hard)
	assert.Equal(t, int64(1), res.ClassesDeleted)
	assert.Equal(t, int64(1), res.EnrollmentsDeleted)
	assert.Equal(t, int64(1), res.InvoicesDeleted)

	for _, m := range []interface{}{
		&model.Course{}, &model.ClassBatch{}, &model.Enrollment{}, &model.Grade{},
		&model.Invoice{}, &model.FinancialTransaction{}, &model.InvoiceStatusChange{}, &model.ProgramRequirement{},
	} {
		assert.Zero(t, count(t, f.db, m), "%T left behind", m)
	}
	assert.Equal(t, int64(1), count(t, f.db, &model.Program{}))
}

func TestHardRemoveCourseBlockedByPaidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.billing(t)
	require.NoError(t, f.db.Model(b.class).Update("status", model.ClassStatusCompleted).Error)

	inv := f.issueInvoice(t, b, model.InvoiceTypeRegistration, "500", testNow.AddDate(0, 1, 0))
	_, err := f.ledger.RecordPayment(ctx, financeActor, inv.ID, PaymentInput{Amount: dec("500")})
	require.NoError(t, err)

	_, err = f.curriculum.RemoveCourse(ctx, adminActor, b.program.ID, b.course.ID, true)
	var blocked *ReferentialBlockError
	require.True(t, errors.As(err, &blocked), "got %v", err)
	assert.Equal(t, []string{"1 paid invoice"}, blocked.Reasons)

	// Soft removal is still allowed: the paid invoice stays on record.
	_, err = f.curriculum.RemoveCourse(ctx, adminActor, b.program.ID, b.course.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, f.db, &model.Invoice{}))
}

func TestRemoveCourseFromWrongProgram(t *testing.T) {
	f := newFixture(t)
	p := f.onsiteProgram(t, "CUL")
	other := f.onsiteProgram(t, "BAK")
	course := f.createCourse(t, other.ID, "BAK-101")

	_, err := f.curriculum.RemoveCourse(context.Background(), adminActor, p.ID, course.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
}
