package model

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is the audit trail for back-office actions
type ActivityLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"` // 0 for system jobs
	Action      string         `gorm:"type:varchar(100);not null;index" json:"action"` // e.g. "program_clone", "invoice_override"
	Resource    string         `gorm:"type:varchar(100)" json:"resource"`              // e.g. "programs", "invoices"
	ResourceID  uint           `gorm:"index" json:"resource_id"`
	Description string         `gorm:"type:text" json:"description"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	IPAddress   string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for ActivityLog
func (ActivityLog) TableName() string {
	return "activity_logs"
}
