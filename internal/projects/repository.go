package projects

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-hq/atelier/internal/identity"
)

// ErrNotFound indicates the project does not exist.
var ErrNotFound = errors.New("projects: not found")

// Repository provides PostgreSQL backed access to projects and memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches a project by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	var p Project
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, name, status, manager_id, team_lead_id, designer_id, created_at, updated_at
FROM projects WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &status, &p.ManagerID, &p.TeamLeadID, &p.DesignerID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	p.Status = Status(status)
	return p, nil
}

// ListMembers returns every actor with an active membership on the project,
// ordered by actor id for stable fan-out.
func (r *Repository) ListMembers(ctx context.Context, projectID uuid.UUID) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.actor_id, u.role
FROM project_members m JOIN users u ON u.id = m.actor_id
WHERE m.project_id=$1 AND u.is_active ORDER BY m.actor_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		var role string
		if err := rows.Scan(&m.ActorID, &role); err != nil {
			return nil, err
		}
		m.Role = identity.Role(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

// IsMember reports whether the actor has a membership on the project.
func (r *Repository) IsMember(ctx context.Context, projectID uuid.UUID, actorID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id=$1 AND actor_id=$2)`,
		projectID, actorID).Scan(&exists)
	return exists, err
}

// CompareAndSetStatus updates the project status only when the stored status
// still matches expected. It reports whether the swap applied.
func (r *Repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`,
		id, string(expected), string(next))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
