package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the notification does not exist.
var ErrNotFound = errors.New("notify: not found")

// Repository provides PostgreSQL backed persistence for notifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one notification. Replaying the same (event, recipient)
// pair is a no-op; Insert reports whether a new row was created.
func (r *Repository) Insert(ctx context.Context, n Notification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO notifications (id, event_id, recipient_id, type, title, body, ref_type, ref_id, silent, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10)
ON CONFLICT (event_id, recipient_id) DO NOTHING`,
		n.ID, n.EventID, n.RecipientID, n.Type, n.Title, n.Body, n.RefType, n.RefID, n.Silent, n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// List returns one page of a user's notifications, most recent first.
func (r *Repository) List(ctx context.Context, recipientID int64, offset, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, event_id, recipient_id, type, title, body, ref_type, ref_id, silent, is_read, created_at
FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EventID, &n.RecipientID, &n.Type, &n.Title, &n.Body,
			&n.RefType, &n.RefID, &n.Silent, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkRead flips is_read. Marking an already-read row again is a no-op, not
// an error.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID, recipientID int64) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id=$1 AND recipient_id=$2)`,
		id, recipientID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	_, err = r.pool.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_id=$2 AND NOT is_read`,
		id, recipientID)
	return err
}

// MarkAllRead flips every unread row for the user.
func (r *Repository) MarkAllRead(ctx context.Context, recipientID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE recipient_id=$1 AND NOT is_read`, recipientID)
	return err
}

// PurgeRead deletes read notifications older than the cutoff. Unread rows
// stay regardless of age.
func (r *Repository) PurgeRead(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE is_read AND created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread returns the unread badge count.
func (r *Repository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT is_read`, recipientID).Scan(&count)
	return count, err
}
