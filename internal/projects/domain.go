package projects

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/identity"
)

// Status is the coarse project lifecycle derived from child work items.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusReview    Status = "REVIEW"
	StatusCompleted Status = "COMPLETED"
)

// Project holds the project roster referenced by workflow and chat.
type Project struct {
	ID         uuid.UUID
	Name       string
	Status     Status
	ManagerID  int64
	TeamLeadID *int64
	DesignerID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Member is an actor with an active role-membership on a project.
type Member struct {
	ActorID int64
	Role    identity.Role
}
