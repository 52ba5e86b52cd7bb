package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for work items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const workItemColumns = `id, kind, project_id, status, assigned_to, created_by, title, note, attachments, last_transition_at, created_at`

// Get fetches a work item by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (WorkItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id=$1`, id)
	return scanWorkItem(row)
}

// Create inserts a new work item.
func (r *Repository) Create(ctx context.Context, item WorkItem) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO work_items (id, kind, project_id, status, assigned_to, created_by, title, note, attachments, last_transition_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, string(item.Kind), item.ProjectID, string(item.Status), item.AssignedTo,
		item.CreatedBy, item.Title, item.Note, item.Attachments, item.LastTransitionAt, item.CreatedAt)
	return err
}

// CompareAndSetStatus advances the item only when its stored status still
// matches expected, storing the transition payload alongside. It reports
// whether the swap applied; a false result means a concurrent transition
// won the race.
func (r *Repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, payload Payload, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE work_items
SET status=$3, note=$4, attachments=COALESCE($5, attachments), last_transition_at=$6
WHERE id=$1 AND status=$2`,
		id, string(expected), string(next), payload.Note, payload.Attachments, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByProject returns every work item of the kind on the project.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID, kind Kind) ([]WorkItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE project_id=$1 AND kind=$2 ORDER BY created_at`,
		projectID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanWorkItem(row pgx.Row) (WorkItem, error) {
	var item WorkItem
	var kind, status string
	err := row.Scan(&item.ID, &kind, &item.ProjectID, &status, &item.AssignedTo, &item.CreatedBy,
		&item.Title, &item.Note, &item.Attachments, &item.LastTransitionAt, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkItem{}, ErrNotFound
		}
		return WorkItem{}, err
	}
	item.Kind = Kind(kind)
	item.Status = Status(status)
	return item, nil
}
