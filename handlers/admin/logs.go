package admin

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/handlers"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/sahilchouksey/school-backoffice/utils/response"
	"gorm.io/gorm"
)

// ListActivityLogs retrieves the back-office activity trail
// GET /admin/activity-logs
func ListActivityLogs(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	page, limit := handlers.ParsePage(c)
	filter := services.ActivityFilter{
		Resource: c.Query("resource"),
		Page:     page,
		Limit:    limit,
	}
	if v, err := strconv.ParseUint(c.Query("resource_id"), 10, 64); err == nil {
		filter.ResourceID = uint(v)
	}
	if v, err := strconv.ParseUint(c.Query("user_id"), 10, 64); err == nil {
		filter.UserID = uint(v)
	}

	logs, total, err := services.NewActivityService(db).ListActivity(c.UserContext(), filter)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch activity logs")
	}
	return response.Paginated(c, logs, response.CalculatePagination(page, limit, total))
}

// ListCronLogs retrieves background job runs, newest first
// GET /admin/cron-logs
func ListCronLogs(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	page, limit := handlers.ParsePage(c)
	query := db.WithContext(c.UserContext()).Model(&model.CronJobLog{})
	if job := c.Query("job_name"); job != "" {
		query = query.Where("job_name = ?", job)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count cron logs")
	}

	var logs []model.CronJobLog
	if err := query.Order("started_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch cron logs")
	}
	return response.Paginated(c, logs, response.CalculatePagination(page, limit, total))
}

// ListInvoiceNotifications retrieves delivery attempts for one invoice
// GET /admin/invoices/:id/notifications
func ListInvoiceNotifications(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid invoice id")
	}

	var records []model.InvoiceNotification
	if err := db.WithContext(c.UserContext()).
		Where("invoice_id = ?", id).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch notifications")
	}
	return response.Success(c, records)
}
