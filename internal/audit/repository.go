package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, old_value, new_value, ip, user_agent, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		entry.ActorID, entry.Action, entry.EntityType, entry.EntityID,
		entry.OldValue, entry.NewValue, entry.IP, entry.UserAgent, entry.At)
	return err
}

// List returns entries matching the filter, most recent first. It fetches
// one row beyond the page size so the caller can tell whether a next page
// exists.
func (r *Repository) List(ctx context.Context, f Filter, offset, limit int) ([]Entry, error) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != 0 {
		add("actor_id=$%d", f.ActorID)
	}
	if f.Action != "" {
		add("action=$%d", f.Action)
	}
	if f.EntityType != "" {
		add("entity_type=$%d", f.EntityType)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}
	query := `SELECT id, actor_id, action, entity_type, entity_id, old_value, new_value, ip, user_agent, occurred_at FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID,
			&e.OldValue, &e.NewValue, &e.IP, &e.UserAgent, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats aggregates the trail: total counts per window and top buckets.
func (r *Repository) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var s Stats
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	err := r.pool.QueryRow(ctx, `SELECT
  COUNT(*) FILTER (WHERE occurred_at >= $1),
  COUNT(*) FILTER (WHERE occurred_at >= $2),
  COUNT(*) FILTER (WHERE occurred_at >= $3),
  COUNT(*)
FROM audit_logs`, dayStart, weekStart, monthStart).
		Scan(&s.Today, &s.ThisWeek, &s.ThisMonth, &s.Total)
	if err != nil {
		return Stats{}, err
	}

	s.TopActions, err = r.topBuckets(ctx, "action")
	if err != nil {
		return Stats{}, err
	}
	s.TopTargets, err = r.topBuckets(ctx, "entity_type")
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (r *Repository) topBuckets(ctx context.Context, column string) ([]Bucket, error) {
	// column is one of two fixed identifiers, never user input.
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s, COUNT(*) AS n FROM audit_logs GROUP BY %s ORDER BY n DESC LIMIT 5`, column, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
