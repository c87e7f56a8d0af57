package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"brewline/internal/domain"
)

const notificationColumns = `id,kind,subject_id,title,body,fire_at,created_at,delivered_at,canceled_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n                   domain.Notification
		kind                string
		fireAt, createdAt   string
		delivered, canceled sql.NullString
	)
	if err := row.Scan(&n.ID, &kind, &n.SubjectID, &n.Title, &n.Body, &fireAt, &createdAt, &delivered, &canceled); err != nil {
		if err == sql.ErrNoRows {
			return n, ErrNotFound
		}
		return n, err
	}
	n.Kind = domain.NotificationKind(kind)
	var err error
	if n.FireAt, err = parseTime(fireAt); err != nil {
		return n, fmt.Errorf("notification %s fire_at: %w", n.ID, err)
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return n, fmt.Errorf("notification %s created_at: %w", n.ID, err)
	}
	if n.DeliveredAt, err = parseNullTime(delivered); err != nil {
		return n, err
	}
	if n.CanceledAt, err = parseNullTime(canceled); err != nil {
		return n, err
	}
	return n, nil
}

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, string(n.Kind), n.SubjectID, n.Title, n.Body, formatTime(n.FireAt), formatTime(n.CreatedAt),
		formatTimePtr(n.DeliveredAt), formatTimePtr(n.CanceledAt))
	return err
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	return scanNotification(r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id))
}

// CancelNotification marks a pending notification canceled. Already delivered,
// canceled or unknown ids are left alone.
func (r Repo) CancelNotification(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET canceled_at=? WHERE id=? AND delivered_at IS NULL AND canceled_at IS NULL`,
		formatTime(at), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PendingNotifications lists notifications neither delivered nor canceled, soonest first.
func (r Repo) PendingNotifications(ctx context.Context) ([]domain.Notification, error) {
	return r.queryNotifications(ctx, `SELECT `+notificationColumns+` FROM notifications
WHERE delivered_at IS NULL AND canceled_at IS NULL ORDER BY fire_at ASC, id ASC`)
}

// DueNotifications lists pending notifications whose fire time is at or before now.
func (r Repo) DueNotifications(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryNotifications(ctx, `SELECT `+notificationColumns+` FROM notifications
WHERE delivered_at IS NULL AND canceled_at IS NULL AND fire_at <= ? ORDER BY fire_at ASC, id ASC LIMIT ?`,
		formatTime(now), limit)
}

func (r Repo) MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET delivered_at=? WHERE id=? AND delivered_at IS NULL`, formatTime(at), id)
	return err
}

func (r Repo) queryNotifications(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
