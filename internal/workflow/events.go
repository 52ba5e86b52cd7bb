package workflow

import (
	"time"

	"github.com/google/uuid"
)

// TransitionEvent describes one applied state-graph edge. The event id is
// the deduplication key for notification fan-out: replaying the same event
// never produces duplicate notifications.
type TransitionEvent struct {
	ID         uuid.UUID
	Kind       Kind
	WorkItemID uuid.UUID
	ProjectID  uuid.UUID
	From       Status
	To         Status
	ActorID    int64
	AssignedTo *int64
	CreatedBy  int64
	Title      string
	At         time.Time
}
