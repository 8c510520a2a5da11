// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/notification"
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

const notificationColumns = `id, user_id, case_id, type, title, message, priority,
	deadline_date, deadline_type, days_until_deadline,
	is_read, read_at, email_sent, email_sent_at, created_at, updated_at`

const reminderTypesSQL = `('deadline_reminder', 'rfi_alert', 'rfe_alert')`

func scanNotification(row rowScanner) (*notification.Notification, error) {
	n := &notification.Notification{}
	var (
		caseID, deadlineType sql.NullString
		daysUntil            sql.NullInt64
		readAt, emailSentAt  sql.NullTime
	)
	err := row.Scan(
		&n.ID, &n.UserID, &caseID, &n.Type, &n.Title, &n.Message, &n.Priority,
		&n.DeadlineDate, &deadlineType, &daysUntil,
		&n.IsRead, &readAt, &n.EmailSent, &emailSentAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.CaseID = caseID.String
	n.DeadlineType = cases.DeadlineType(deadlineType.String)
	if daysUntil.Valid {
		d := int(daysUntil.Int64)
		n.DaysUntilDeadline = &d
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	if emailSentAt.Valid {
		t := emailSentAt.Time
		n.EmailSentAt = &t
	}
	return n, nil
}

func insertArgs(n *notification.Notification) []any {
	var daysUntil sql.NullInt64
	if n.DaysUntilDeadline != nil {
		daysUntil = sql.NullInt64{Int64: int64(*n.DaysUntilDeadline), Valid: true}
	}
	return []any{
		n.ID, n.UserID, nullString(n.CaseID), n.Type, n.Title, n.Message, n.Priority,
		n.DeadlineDate, nullString(string(n.DeadlineType)), daysUntil,
		n.IsRead, n.ReadAt, n.EmailSent, n.EmailSentAt, n.CreatedAt, n.UpdatedAt,
	}
}

const insertNotificationSQL = `INSERT INTO notifications (` + notificationColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if _, err := r.db.ExecContext(ctx, insertNotificationSQL, insertArgs(n)...); err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

// CreateReminder relies on uq_notifications_reminder: a concurrent sweep that
// lost the race inserts nothing.
func (r *PostgresNotificationRepository) CreateReminder(ctx context.Context, n *notification.Notification) (bool, error) {
	query := insertNotificationSQL + `
	ON CONFLICT (user_id, case_id, deadline_type, deadline_date, days_until_deadline)
	WHERE type IN ` + reminderTypesSQL + ` AND days_until_deadline IS NOT NULL
	DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, insertArgs(n)...)
	if err != nil {
		return false, fmt.Errorf("error creating reminder: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected for reminder: %w", err)
	}
	return rows == 1, nil
}

func (r *PostgresNotificationRepository) ExistsReminder(ctx context.Context, key notification.ReminderKey) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM notifications
		WHERE user_id = $1 AND case_id = $2 AND deadline_type = $3
		  AND deadline_date = $4 AND days_until_deadline = $5
		  AND type IN ` + reminderTypesSQL + `)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		key.UserID, key.CaseID, key.DeadlineType, key.DeadlineDate, key.DaysUntilDeadline,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking reminder existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("error getting notification by ID: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer rows.Close()

	out := []*notification.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification row: %w", err)
		}
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return out, nil
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting unread notifications: %w", err)
	}
	return count, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notifications SET is_read = TRUE, read_at = $2, updated_at = $2 WHERE id = $1`
	return r.execOne(ctx, "marking notification read", query, id, at)
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `UPDATE notifications SET is_read = TRUE, read_at = $2, updated_at = $2
		WHERE user_id = $1 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("error marking all notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresNotificationRepository) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notifications SET email_sent = TRUE, email_sent_at = $2, updated_at = $2 WHERE id = $1`
	return r.execOne(ctx, "marking notification email sent", query, id, at)
}

func (r *PostgresNotificationRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "deleting notification", `DELETE FROM notifications WHERE id = $1`, id)
}

func (r *PostgresNotificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `DELETE FROM notifications WHERE id IN (
		SELECT id FROM notifications
		WHERE is_read = TRUE AND read_at < $1
		ORDER BY read_at
		LIMIT $2)`
	res, err := r.db.ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("error deleting old notifications: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresNotificationRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting notifications for user: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresNotificationRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error %s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected when %s: %w", op, err)
	}
	if rows == 0 {
		return notification.ErrNotFound
	}
	return nil
}
