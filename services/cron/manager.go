package cron

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/school-backoffice/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OverdueRefresher flips past-due invoices to overdue
type OverdueRefresher interface {
	RefreshOverdue(ctx context.Context) (int, error)
}

// TokenCleaner purges expired revoked tokens
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron      *cron.Cron
	db        *gorm.DB
	ledger    OverdueRefresher
	blacklist TokenCleaner
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, ledger OverdueRefresher, blacklist TokenCleaner) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:      c,
		db:        db,
		ledger:    ledger,
		blacklist: blacklist,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// 1. Daily at 00:15: flip past-due invoices to overdue
	_, err := m.cron.AddFunc("0 15 0 * * *", m.RefreshOverdueInvoices)
	if err != nil {
		return err
	}

	// 2. Every hour: drop expired revoked tokens
	_, err = m.cron.AddFunc("0 0 * * * *", m.CleanupTokenBlacklist)
	if err != nil {
		return err
	}

	// 3. Daily at 2 AM: cleanup old logs
	_, err = m.cron.AddFunc("0 0 2 * * *", m.CleanupOldLogs)
	if err != nil {
		return err
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// logJobStart records a running job and returns its log row
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	cronLog := &model.CronJobLog{
		JobName:   jobName,
		Status:    "running",
		StartedAt: time.Now(),
		Metadata:  datatypes.JSON("{}"),
	}
	if err := m.db.Create(cronLog).Error; err != nil {
		log.Printf("[CRON] Failed to record start of %s: %v", jobName, err)
	}
	return cronLog
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(cronLog *model.CronJobLog, message string) {
	log.Printf("[CRON] Completed job: %s - %s", cronLog.JobName, message)
	m.finishJob(cronLog, map[string]interface{}{
		"status":  "completed",
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(cronLog *model.CronJobLog, err error) {
	log.Printf("[CRON] Error in job: %s - %v", cronLog.JobName, err)
	m.finishJob(cronLog, map[string]interface{}{
		"status":    "failed",
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finishJob(cronLog *model.CronJobLog, updates map[string]interface{}) {
	if cronLog.ID == 0 {
		return
	}
	now := time.Now()
	updates["completed_at"] = now
	updates["duration"] = int(now.Sub(cronLog.StartedAt).Milliseconds())
	if err := m.db.Model(cronLog).Updates(updates).Error; err != nil {
		log.Printf("[CRON] Failed to update log for %s: %v", cronLog.JobName, err)
	}
}
