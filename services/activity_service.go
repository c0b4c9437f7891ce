package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/sahilchouksey/school-backoffice/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityService writes the back-office audit trail. Writes are best-effort:
// a failure is logged and never reaches the caller.
type ActivityService struct {
	db *gorm.DB
}

// NewActivityService creates a new activity service
func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

// LogActivity records action against entityType/entityID. Call it after the mutation committed.
func (s *ActivityService) LogActivity(ctx context.Context, actor AuthContext, action, message, entityType string, entityID uint, metadata map[string]interface{}) {
	if s == nil || s.db == nil {
		return
	}

	entry := model.ActivityLog{
		UserID:      actor.UserID,
		Action:      action,
		Resource:    entityType,
		ResourceID:  entityID,
		Description: message,
		IPAddress:   actor.IP,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("[ACTIVITY] failed to record %s on %s %d: %v", action, entityType, entityID, err)
	}
}

// ActivityFilter narrows ListActivity
type ActivityFilter struct {
	Resource   string
	ResourceID uint
	UserID     uint
	Page       int
	Limit      int
}

// ListActivity returns the newest entries first along with the total count
func (s *ActivityService) ListActivity(ctx context.Context, filter ActivityFilter) ([]model.ActivityLog, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.ActivityLog{})
	if filter.Resource != "" {
		query = query.Where("resource = ?", filter.Resource)
	}
	if filter.ResourceID != 0 {
		query = query.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.ActivityLog
	err := query.Order("created_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&logs).Error
	return logs, total, err
}
