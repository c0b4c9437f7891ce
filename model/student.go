package model

import (
	"time"
)

// Student is a learner who can apply to programs and be invoiced
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"type:varchar(255);index" json:"email"`
	Phone     string    `gorm:"type:varchar(32)" json:"phone"` // E.164, used for SMS
}

// TableName specifies the table name for Student
func (Student) TableName() string {
	return "students"
}

// EnrollmentStatus tracks a student's seat in a class
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment places a student in a class batch
type Enrollment struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	ClassBatchID uint             `gorm:"not null;index" json:"class_batch_id"`
	StudentID    uint             `gorm:"not null;index" json:"student_id"`
	Status       EnrollmentStatus `gorm:"type:varchar(20);default:'enrolled';index" json:"status"`

	// Relationships
	Grades []Grade `gorm:"foreignKey:EnrollmentID" json:"grades,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}

// Grade is an assessment result recorded against an enrollment
type Grade struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	EnrollmentID uint      `gorm:"not null;index" json:"enrollment_id"`
	Assessment   string    `gorm:"type:varchar(100)" json:"assessment"`
	Score        float64   `json:"score"`
	Letter       string    `gorm:"type:varchar(4)" json:"letter"`
}

// TableName specifies the table name for Grade
func (Grade) TableName() string {
	return "grades"
}

// ApplicationStatus is the admission state of an application
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Application is a student's request to join a program
type Application struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ProgramID uint              `gorm:"not null;index" json:"program_id"`
	StudentID uint              `gorm:"not null;index" json:"student_id"`
	Status    ApplicationStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
}

// TableName specifies the table name for Application
func (Application) TableName() string {
	return "applications"
}
