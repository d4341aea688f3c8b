package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"campuspay/internal/notification"
	"campuspay/pkg/db"
)

type NotificationRepository struct {
	db db.DBTX
}

func NewNotificationRepository(conn db.DBTX) *NotificationRepository {
	return &NotificationRepository{db: conn}
}

// Create assigns an id when missing and inserts the row.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Priority == "" {
		n.Priority = notification.PriorityNormal
	}
	metadata := "{}"
	if n.Metadata != nil {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return err
		}
		metadata = string(b)
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, priority, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.Priority, metadata,
	).Scan(&n.CreatedAt)
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, type, priority, is_read, metadata, created_at, read_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n := &notification.Notification{}
		var metadata []byte
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Priority,
			&n.IsRead, &metadata, &n.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, err
			}
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips is_read for a notification owned by userID.
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, userID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2`, id, userID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}
