package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/school-backoffice/model"
)

const (
	cronLogRetention         = 90 * 24 * time.Hour
	notificationLogRetention = 365 * 24 * time.Hour
)

// RefreshOverdueInvoices recomputes pending invoices whose due date has passed
// Runs daily just after midnight
func (m *CronManager) RefreshOverdueInvoices() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cronLog := m.logJobStart("refresh_overdue_invoices")

	flipped, err := m.ledger.RefreshOverdue(ctx)
	if err != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to refresh overdue invoices: %w", err))
		return
	}

	m.logJobComplete(cronLog, fmt.Sprintf("Marked %d invoices overdue", flipped))
}

// CleanupTokenBlacklist removes revoked tokens that have expired anyway
// Runs every hour
func (m *CronManager) CleanupTokenBlacklist() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cronLog := m.logJobStart("cleanup_token_blacklist")

	removed, err := m.blacklist.CleanupExpiredTokens(ctx)
	if err != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to clean token blacklist: %w", err))
		return
	}

	m.logJobComplete(cronLog, fmt.Sprintf("Removed %d expired tokens", removed))
}

// CleanupOldLogs removes old cron and notification logs
// Runs daily at 2 AM. Activity logs and invoice status history are never purged.
func (m *CronManager) CleanupOldLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cronLog := m.logJobStart("cleanup_old_logs")
	totalCleaned := int64(0)

	result := m.db.WithContext(ctx).
		Where("created_at < ? AND id <> ?", time.Now().Add(-cronLogRetention), cronLog.ID).
		Delete(&model.CronJobLog{})
	if result.Error != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to clean cron logs: %w", result.Error))
		return
	}
	log.Printf("[CRON] Cleaned %d old cron logs", result.RowsAffected)
	totalCleaned += result.RowsAffected

	result = m.db.WithContext(ctx).
		Where("created_at < ?", time.Now().Add(-notificationLogRetention)).
		Delete(&model.InvoiceNotification{})
	if result.Error != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to clean notification logs: %w", result.Error))
		return
	}
	log.Printf("[CRON] Cleaned %d old notification logs", result.RowsAffected)
	totalCleaned += result.RowsAffected

	m.logJobComplete(cronLog, fmt.Sprintf("Cleaned %d records", totalCleaned))
}
