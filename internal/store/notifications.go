package store

import (
	"context"
	"time"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

func (s *SQLite) RecordNotification(ctx context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (kind, target, from_identity, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(n.Kind), n.Target, n.From, n.Text, n.CreatedAt.UnixMilli())
	return err
}

// ListNotifications returns the newest notices for target first.
func (s *SQLite) ListNotifications(ctx context.Context, target string, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, target, from_identity, text, created_at
		FROM notifications
		WHERE target = ?
		ORDER BY id DESC
		LIMIT ?
	`, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var (
			n         models.Notification
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &kind, &n.Target, &n.From, &n.Text, &createdAt); err != nil {
			return nil, err
		}
		n.Kind = models.NotificationKind(kind)
		n.CreatedAt = time.UnixMilli(createdAt)
		list = append(list, n)
	}
	return list, rows.Err()
}
