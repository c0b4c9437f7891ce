package model

import (
	"time"
)

// CourseType marks a requirement as mandatory or elective
type CourseType string

const (
	CourseTypeCore     CourseType = "core"
	CourseTypeElective CourseType = "elective"
)

// ProgramRequirement lists a course as core or elective for a program
type ProgramRequirement struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	ProgramID  uint       `gorm:"not null;uniqueIndex:idx_program_requirement_course" json:"program_id"`
	CourseID   uint       `gorm:"not null;uniqueIndex:idx_program_requirement_course;index" json:"course_id"`
	CourseType CourseType `gorm:"type:varchar(20);not null" json:"course_type"`
}

// TableName specifies the table name for ProgramRequirement
func (ProgramRequirement) TableName() string {
	return "program_requirements"
}

// ProgramRequirementsMeta holds the graduation rules of a program
type ProgramRequirementsMeta struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ProgramID      uint      `gorm:"not null;uniqueIndex" json:"program_id"`
	MinElectives   int       `gorm:"default:0" json:"min_electives"`
	MaxElectives   int       `gorm:"default:0" json:"max_electives"`
	TotalCredits   int       `gorm:"default:0" json:"total_credits"`
	MinGrade       string    `gorm:"type:varchar(4)" json:"min_grade"`
	GraduationText string    `gorm:"type:text" json:"graduation_text"`
}

// TableName specifies the table name for ProgramRequirementsMeta
func (ProgramRequirementsMeta) TableName() string {
	return "program_requirements_meta"
}
