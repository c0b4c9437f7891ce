package model

import (
	"time"

	"gorm.io/gorm"
)

// Staff roles
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleFinance    = "finance"
	RoleRegistrar  = "registrar"
	RoleTeacher    = "teacher"
)

// User is a back-office staff account
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Role         string         `gorm:"type:varchar(20);default:'teacher'" json:"role"`
	SchoolID     *uint          `gorm:"index" json:"school_id,omitempty"`
	TokenVersion int            `gorm:"default:0" json:"-"` // Increment to invalidate all user tokens
}
