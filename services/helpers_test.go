package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	adminActor   = AuthContext{UserID: 1, Role: model.RoleAdmin}
	financeActor = AuthContext{UserID: 2, Role: model.RoleFinance}
	teacherActor = AuthContext{UserID: 3, Role: model.RoleTeacher}

	testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := database.OpenSQLite(database.MemoryDSN(name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	db := store.GetDB().(*gorm.DB)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

type fixture struct {
	db         *gorm.DB
	activity   *ActivityService
	programs   *ProgramService
	curriculum *CurriculumService
	ledger     *LedgerService
	notifier   *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	activity := NewActivityService(db)
	notifier := &recordingNotifier{}
	ledger := NewLedgerService(db, activity, notifier)
	ledger.SetClock(func() time.Time { return testNow })
	return &fixture{
		db:         db,
		activity:   activity,
		programs:   NewProgramService(db, activity),
		curriculum: NewCurriculumService(db, activity),
		ledger:     ledger,
		notifier:   notifier,
	}
}

func (f *fixture) createProgram(t *testing.T, input ProgramInput) *model.Program {
	t.Helper()
	p, err := f.programs.CreateProgram(context.Background(), adminActor, input)
	require.NoError(t, err)
	return p
}

func (f *fixture) onsiteProgram(t *testing.T, code string) *model.Program {
	t.Helper()
	return f.createProgram(t, ProgramInput{
		Code:            code,
		Name:            "Culinary Arts " + code,
		ProgramType:     model.ProgramTypeOnsite,
		BaseFee:         dec("100000"),
		RegistrationFee: dec("5000"),
	})
}

func (f *fixture) createCourse(t *testing.T, programID uint, code string) *model.Course {
	t.Helper()
	course := &model.Course{ProgramID: programID, Code: code, Name: "Course " + code, Status: model.CourseStatusActive}
	require.NoError(t, f.db.Create(course).Error)
	return course
}

func (f *fixture) createClass(t *testing.T, course *model.Course, status model.ClassStatus, start time.Time) *model.ClassBatch {
	t.Helper()
	class := &model.ClassBatch{
		CourseID:  course.ID,
		ProgramID: course.ProgramID,
		Name:      course.Code + " cohort",
		StartDate: start,
		Status:    status,
	}
	require.NoError(t, f.db.Create(class).Error)
	return class
}

func (f *fixture) createStudent(t *testing.T, name, email, phone string) *model.Student {
	t.Helper()
	s := &model.Student{Name: name, Email: email, Phone: phone}
	require.NoError(t, f.db.Create(s).Error)
	return s
}

// billingSetup is a student placed in a class of an onsite program
type billingSetup struct {
	program *model.Program
	course  *model.Course
	class   *model.ClassBatch
	student *model.Student
}

func (f *fixture) billing(t *testing.T) billingSetup {
	t.Helper()
	program := f.onsiteProgram(t, "CUL")
	course := f.createCourse(t, program.ID, "CUL-101")
	class := f.createClass(t, course, model.ClassStatusActive, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	student := f.createStudent(t, "Ada Obi", "ada@example.com", "+2348000000001")
	return billingSetup{program: program, course: course, class: class, student: student}
}

func (f *fixture) issueInvoice(t *testing.T, b billingSetup, kind model.InvoiceType, amount string, due time.Time) *model.Invoice {
	t.Helper()
	inv, err := f.ledger.CreateInvoice(context.Background(), financeActor, InvoiceInput{
		StudentID:    b.student.ID,
		ClassBatchID: b.class.ID,
		InvoiceType:  kind,
		Amount:       dec(amount),
		DueDate:      due,
	})
	require.NoError(t, err)
	return inv
}

func count(t *testing.T, db *gorm.DB, m interface{}, where ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(m)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []InvoiceNotice
}

func (r *recordingNotifier) Notify(_ context.Context, n InvoiceNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) events() []model.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NotificationEvent, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Event)
	}
	return out
}
