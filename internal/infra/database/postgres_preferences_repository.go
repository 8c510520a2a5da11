package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq" // For pq.Array

	"perm_tracker/internal/domain/user"
)

type PostgresPreferencesRepository struct {
	db *sql.DB
}

func NewPostgresPreferencesRepository(db *sql.DB) *PostgresPreferencesRepository {
	return &PostgresPreferencesRepository{db: db}
}

const preferencesColumns = `user_id, email_notifications_enabled, email_deadline_reminders, email_status_updates,
	email_rfe_alerts, email_weekly_digest, reminder_days_before,
	quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone, created_at, updated_at`

func scanPreferences(row rowScanner) (*user.Preferences, error) {
	p := &user.Preferences{}
	var days []int64
	err := row.Scan(
		&p.UserID, &p.EmailNotificationsEnabled, &p.EmailDeadlineReminders, &p.EmailStatusUpdates,
		&p.EmailRfeAlerts, &p.EmailWeeklyDigest, pq.Array(&days),
		&p.QuietHoursEnabled, &p.QuietHoursStart, &p.QuietHoursEnd, &p.Timezone, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ReminderDaysBefore = make([]int, len(days))
	for i, d := range days {
		p.ReminderDaysBefore[i] = int(d)
	}
	return p, nil
}

func (r *PostgresPreferencesRepository) Get(ctx context.Context, userID string) (*user.Preferences, error) {
	query := `SELECT ` + preferencesColumns + ` FROM notification_preferences WHERE user_id = $1`
	p, err := scanPreferences(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("error getting notification preferences: %w", err)
	}
	return p, nil
}

func (r *PostgresPreferencesRepository) Upsert(ctx context.Context, p *user.Preferences) error {
	days := make([]int64, len(p.ReminderDaysBefore))
	for i, d := range p.ReminderDaysBefore {
		days[i] = int64(d)
	}
	query := `INSERT INTO notification_preferences (` + preferencesColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			email_notifications_enabled = EXCLUDED.email_notifications_enabled,
			email_deadline_reminders = EXCLUDED.email_deadline_reminders,
			email_status_updates = EXCLUDED.email_status_updates,
			email_rfe_alerts = EXCLUDED.email_rfe_alerts,
			email_weekly_digest = EXCLUDED.email_weekly_digest,
			reminder_days_before = EXCLUDED.reminder_days_before,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.EmailNotificationsEnabled, p.EmailDeadlineReminders, p.EmailStatusUpdates,
		p.EmailRfeAlerts, p.EmailWeeklyDigest, pq.Array(days),
		p.QuietHoursEnabled, p.QuietHoursStart, p.QuietHoursEnd, p.Timezone, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error upserting notification preferences: %w", err)
	}
	return nil
}

func (r *PostgresPreferencesRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notification_preferences WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error deleting notification preferences: %w", err)
	}
	return nil
}

func (r *PostgresPreferencesRepository) ListDigestRecipients(ctx context.Context) ([]*user.Preferences, error) {
	// Users without a preferences row get the column defaults.
	query := `SELECT u.id,
			COALESCE(p.email_notifications_enabled, TRUE),
			COALESCE(p.email_deadline_reminders, TRUE),
			COALESCE(p.email_status_updates, TRUE),
			COALESCE(p.email_rfe_alerts, TRUE),
			COALESCE(p.email_weekly_digest, TRUE),
			COALESCE(p.reminder_days_before, '{1,3,7,14,30}'::INTEGER[]),
			COALESCE(p.quiet_hours_enabled, FALSE),
			COALESCE(p.quiet_hours_start, '22:00'),
			COALESCE(p.quiet_hours_end, '08:00'),
			COALESCE(p.timezone, 'UTC'),
			COALESCE(p.created_at, u.created_at),
			COALESCE(p.updated_at, u.updated_at)
		FROM users u
		LEFT JOIN notification_preferences p ON p.user_id = u.id
		WHERE u.deleted_at IS NULL
		  AND COALESCE(p.email_notifications_enabled, TRUE)
		  AND COALESCE(p.email_weekly_digest, TRUE)
		ORDER BY u.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing digest recipients: %w", err)
	}
	defer rows.Close()

	var out []*user.Preferences
	for rows.Next() {
		p, err := scanPreferences(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning preferences row: %w", err)
		}
		out = append(out, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences rows: %w", err)
	}
	return out, nil
}
