package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/projects"
)

// Kind discriminates the work item flavours sharing the transition pipeline.
type Kind string

const (
	KindTask     Kind = "TASK"
	KindAsset    Kind = "ASSET"
	KindRevision Kind = "REVISION"
	// KindProject only appears on derived transition events, never on a
	// stored work item.
	KindProject Kind = "PROJECT"
)

// Status enumerates work item lifecycle states across all kinds. Which
// states apply to which kind is defined by the per-kind graphs below.
type Status string

const (
	StatusAssigned   Status = "ASSIGNED"
	StatusRequested  Status = "REQUESTED"
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusCompleted  Status = "COMPLETED"
	StatusAccepted   Status = "ACCEPTED"
)

// graphs holds the direct-successor edges per kind. A transition is legal
// only along one of these edges; multi-hop jumps are rejected for every role.
var graphs = map[Kind]map[Status][]Status{
	KindTask: {
		StatusAssigned:   {StatusInProgress},
		StatusInProgress: {StatusSubmitted},
		StatusSubmitted:  {StatusApproved, StatusRejected},
		StatusRejected:   {StatusInProgress},
	},
	KindAsset: {
		StatusRequested:  {StatusInProgress},
		StatusInProgress: {StatusSubmitted},
		StatusSubmitted:  {StatusApproved, StatusRejected},
		StatusRejected:   {StatusInProgress},
	},
	KindRevision: {
		StatusCreated:    {StatusInProgress},
		StatusInProgress: {StatusCompleted},
		StatusCompleted:  {StatusAccepted, StatusInProgress},
	},
}

// InitialStatus returns the entry state for a kind.
func InitialStatus(kind Kind) Status {
	switch kind {
	case KindTask:
		return StatusAssigned
	case KindAsset:
		return StatusRequested
	case KindRevision:
		return StatusCreated
	}
	return ""
}

// Successors returns the direct successors of from for the given kind.
func Successors(kind Kind, from Status) []Status {
	return graphs[kind][from]
}

// IsDirectSuccessor reports whether from -> to is a single edge in the
// kind's state graph.
func IsDirectSuccessor(kind Kind, from, to Status) bool {
	for _, s := range graphs[kind][from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsReviewEdge reports whether the edge is a review decision requiring a
// reviewer one tier above the assignee and never the assignee themselves.
func IsReviewEdge(kind Kind, from, to Status) bool {
	switch kind {
	case KindTask, KindAsset:
		return from == StatusSubmitted && (to == StatusApproved || to == StatusRejected)
	case KindRevision:
		return from == StatusCompleted && (to == StatusAccepted || to == StatusInProgress)
	}
	return false
}

// IsSelfReportEdge reports whether the edge is self-reported progress only
// the assigned actor may take.
func IsSelfReportEdge(kind Kind, from, to Status) bool {
	switch kind {
	case KindTask, KindAsset:
		switch {
		case from == StatusInProgress && to == StatusSubmitted:
			return true
		case from == StatusRejected && to == StatusInProgress:
			return true
		}
	case KindRevision:
		if from == StatusInProgress && to == StatusCompleted {
			return true
		}
	}
	return false
}

// WorkItem generalizes Task, Asset and Revision.
type WorkItem struct {
	ID               uuid.UUID
	Kind             Kind
	ProjectID        uuid.UUID
	Status           Status
	AssignedTo       *int64
	CreatedBy        int64
	Title            string
	Note             string
	Attachments      []string
	LastTransitionAt time.Time
	CreatedAt        time.Time
}

// Payload carries the optional note and attachments stored alongside a
// transition.
type Payload struct {
	Note        string
	Attachments []string
}

// DeriveProjectStatus reduces the statuses of a project's tasks to the
// coarse project status. The reduction is pure and idempotent: the same
// multiset of task statuses always yields the same answer.
func DeriveProjectStatus(taskStatuses []Status) projects.Status {
	if len(taskStatuses) == 0 {
		return projects.StatusActive
	}
	allApproved := true
	allSubmittedOrLater := true
	for _, s := range taskStatuses {
		if s != StatusApproved {
			allApproved = false
		}
		switch s {
		case StatusSubmitted, StatusApproved:
		default:
			allSubmittedOrLater = false
		}
	}
	switch {
	case allApproved:
		return projects.StatusCompleted
	case allSubmittedOrLater:
		return projects.StatusReview
	default:
		return projects.StatusActive
	}
}
