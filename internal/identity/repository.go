package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-hq/atelier/internal/platform/db"
)

// ErrNotFound indicates the requested actor does not exist.
var ErrNotFound = errors.New("identity: actor not found")

// Repository provides PostgreSQL backed access to actors.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const actorColumns = `id, name, email, role, is_active, password_hash, created_at`

// GetActor fetches an actor by id.
func (r *Repository) GetActor(ctx context.Context, id int64) (Actor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM users WHERE id=$1`, id)
	return scanActor(row)
}

// FindByEmail fetches an actor by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Actor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+actorColumns+` FROM users WHERE email=$1`, email)
	return scanActor(row)
}

// DeleteActor removes an actor and applies the data-lifecycle policy in one
// transaction: notifications are deleted, audit history is retained,
// chat messages keep a tombstoned sender reference, and open work-item
// assignments are cleared.
func (r *Repository) DeleteActor(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM notifications WHERE recipient_id=$1`, id); err != nil {
			return fmt.Errorf("delete notifications: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE chat_messages SET sender_deleted=TRUE WHERE sender_id=$1`, id); err != nil {
			return fmt.Errorf("tombstone chat messages: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE work_items SET assigned_to=NULL WHERE assigned_to=$1`, id); err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete actor: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func scanActor(row pgx.Row) (Actor, error) {
	var a Actor
	var role string
	err := row.Scan(&a.ID, &a.Name, &a.Email, &role, &a.IsActive, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, err
	}
	a.Role = Role(role)
	return a, nil
}
