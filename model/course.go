package model

import (
	"time"
)

// CourseStatus marks whether a course is still offered
type CourseStatus string

const (
	CourseStatusActive   CourseStatus = "active"
	CourseStatusInactive CourseStatus = "inactive"
)

// Course is a unit of study offered inside a program
type Course struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ProgramID uint         `gorm:"not null;index" json:"program_id"`
	Code      string       `gorm:"type:varchar(50);not null" json:"code"`
	Name      string       `gorm:"not null" json:"name"`
	Credits   int          `gorm:"default:0" json:"credits"`
	Status    CourseStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`

	// Relationships
	Program       *Program             `gorm:"foreignKey:ProgramID;constraint:OnDelete:RESTRICT" json:"program,omitempty"`
	ClassBatches  []ClassBatch         `gorm:"foreignKey:CourseID" json:"class_batches,omitempty"`
	Prerequisites []CoursePrerequisite `gorm:"foreignKey:CourseID" json:"prerequisites,omitempty"`
}

// TableName specifies the table name for Course
func (Course) TableName() string {
	return "courses"
}

// CoursePrerequisite says CourseID cannot be taken before PrerequisiteID
type CoursePrerequisite struct {
	CourseID       uint `gorm:"primaryKey" json:"course_id"`
	PrerequisiteID uint `gorm:"primaryKey;index" json:"prerequisite_id"`
}

// TableName specifies the table name for CoursePrerequisite
func (CoursePrerequisite) TableName() string {
	return "course_prerequisites"
}

// ClassStatus is the lifecycle of a class batch
type ClassStatus string

const (
	ClassStatusActive    ClassStatus = "active"
	ClassStatusCompleted ClassStatus = "completed"
	ClassStatusCancelled ClassStatus = "cancelled"
)

// ClassBatch is a scheduled cohort of a course
type ClassBatch struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	CourseID  uint        `gorm:"not null;index" json:"course_id"`
	ProgramID uint        `gorm:"not null;index" json:"program_id"`
	Name      string      `gorm:"not null" json:"name"`
	StartDate time.Time   `json:"start_date"`
	Status    ClassStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`

	// Relationships
	Course      *Course      `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:ClassBatchID" json:"enrollments,omitempty"`
}

// TableName specifies the table name for ClassBatch
func (ClassBatch) TableName() string {
	return "class_batches"
}
