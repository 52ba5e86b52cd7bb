package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-hq/atelier/internal/identity"
)

// Repository provides PostgreSQL backed persistence for chat messages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const messageColumns = `id, project_id, sender_id, sender_deleted, body, attachments, visible_to_roles, priority, created_at, edited_at, deleted`

// Insert persists a new message.
func (r *Repository) Insert(ctx context.Context, m Message) error {
	roles := make([]string, 0, len(m.VisibleToRoles))
	for _, role := range m.VisibleToRoles {
		roles = append(roles, string(role))
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO chat_messages (id, project_id, sender_id, body, attachments, visible_to_roles, priority, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ProjectID, m.SenderID, m.Body, m.Attachments, roles, string(m.Priority), m.CreatedAt)
	return err
}

// Get fetches one message by id, including soft-deleted rows.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, id)
	return scanMessage(row)
}

// UpdateBody stores an edited body and stamps edited_at.
func (r *Repository) UpdateBody(ctx context.Context, id uuid.UUID, body string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_messages SET body=$2, edited_at=$3 WHERE id=$1 AND NOT deleted`, id, body, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks the message deleted without removing the row.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_messages SET deleted=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByProject returns one page of a project's live messages, newest
// first.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID, offset, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+messageColumns+` FROM chat_messages
WHERE project_id=$1 AND NOT deleted ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	var roles []string
	var priority string
	err := row.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.SenderDeleted, &m.Body, &m.Attachments,
		&roles, &priority, &m.CreatedAt, &m.EditedAt, &m.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	for _, role := range roles {
		m.VisibleToRoles = append(m.VisibleToRoles, identity.Role(role))
	}
	m.Priority = notifyPriority(priority)
	return m, nil
}
