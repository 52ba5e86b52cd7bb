package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/audit"
	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/projects"
)

// ItemStore abstracts work item persistence for the engine.
type ItemStore interface {
	Get(ctx context.Context, id uuid.UUID) (WorkItem, error)
	Create(ctx context.Context, item WorkItem) error
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, payload Payload, at time.Time) (bool, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, kind Kind) ([]WorkItem, error)
}

// ProjectStore abstracts the project rows touched by status derivation.
type ProjectStore interface {
	Get(ctx context.Context, id uuid.UUID) (projects.Project, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next projects.Status) (bool, error)
}

// ActorResolver resolves an actor id to a live actor.
type ActorResolver interface {
	Resolve(ctx context.Context, id int64) (identity.Actor, error)
}

// Authorizer answers the static role/edge questions. Backed by the authz
// matrix in production.
type Authorizer interface {
	Allowed(role identity.Role, kind Kind, from, to Status) bool
	CanReview(reviewer, assignee identity.Role) bool
	CanCreate(role identity.Role, kind Kind) bool
	IsSelfApproval(actorID int64, item WorkItem) bool
}

// Recorder appends to the audit trail. Append is best-effort and never
// fails the transition.
type Recorder interface {
	Append(ctx context.Context, actorID int64, action, entityType, entityID, oldValue, newValue string, meta audit.Metadata)
}

// Dispatcher fans a transition event out to notifications. Dispatch
// failures are soft: the transition already committed.
type Dispatcher interface {
	DispatchTransition(ctx context.Context, event TransitionEvent) error
}

// Service owns the work item state machines and the project status
// derivation built on top of them.
type Service struct {
	items    ItemStore
	projects ProjectStore
	actors   ActorResolver
	authz    Authorizer
	audit    Recorder
	dispatch Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the workflow engine.
func NewService(items ItemStore, projectStore ProjectStore, actors ActorResolver, authorizer Authorizer, recorder Recorder, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		items:    items,
		projects: projectStore,
		actors:   actors,
		authz:    authorizer,
		audit:    recorder,
		dispatch: dispatcher,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateWorkItem creates a new item in its kind's initial state.
func (s *Service) CreateWorkItem(ctx context.Context, actorID int64, kind Kind, projectID uuid.UUID, title string, assignedTo *int64, meta audit.Metadata) (WorkItem, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return WorkItem{}, err
	}
	if !s.authz.CanCreate(actor.Role, kind) {
		return WorkItem{}, fmt.Errorf("%w: %s may not create %s", ErrForbidden, actor.Role, kind)
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return WorkItem{}, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	now := s.now()
	item := WorkItem{
		ID:               uuid.New(),
		Kind:             kind,
		ProjectID:        projectID,
		Status:           InitialStatus(kind),
		AssignedTo:       assignedTo,
		CreatedBy:        actorID,
		Title:            title,
		LastTransitionAt: now,
		CreatedAt:        now,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return WorkItem{}, fmt.Errorf("create work item: %w", err)
	}
	s.audit.Append(ctx, actorID, "work_item.create", string(kind), item.ID.String(), "", string(item.Status), meta)
	return item, nil
}

// Transition applies one direct state-graph edge on behalf of the actor.
// It returns the updated item, or one of ErrNotFound, ErrInvalidTransition,
// ErrForbidden and ErrConflict; all four are distinguishable by the caller
// and none is retried here.
func (s *Service) Transition(ctx context.Context, actorID int64, workItemID uuid.UUID, target Status, payload Payload, meta audit.Metadata) (WorkItem, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return WorkItem{}, err
	}
	item, err := s.items.Get(ctx, workItemID)
	if err != nil {
		return WorkItem{}, err
	}
	if !IsDirectSuccessor(item.Kind, item.Status, target) {
		return WorkItem{}, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, item.Kind, item.Status, target)
	}
	if err := s.authorize(ctx, actor, item, target); err != nil {
		return WorkItem{}, err
	}

	from := item.Status
	at := s.now()
	applied, err := s.items.CompareAndSetStatus(ctx, item.ID, from, target, payload, at)
	if err != nil {
		return WorkItem{}, fmt.Errorf("apply transition: %w", err)
	}
	if !applied {
		return WorkItem{}, fmt.Errorf("%w: %s no longer %s", ErrConflict, item.ID, from)
	}

	item.Status = target
	item.Note = payload.Note
	if payload.Attachments != nil {
		item.Attachments = payload.Attachments
	}
	item.LastTransitionAt = at

	// Audit and fan-out run after the mutation committed and never undo it.
	s.audit.Append(ctx, actorID, "work_item.transition", string(item.Kind), item.ID.String(), string(from), string(target), meta)
	event := TransitionEvent{
		ID:         uuid.New(),
		Kind:       item.Kind,
		WorkItemID: item.ID,
		ProjectID:  item.ProjectID,
		From:       from,
		To:         target,
		ActorID:    actorID,
		AssignedTo: item.AssignedTo,
		CreatedBy:  item.CreatedBy,
		Title:      item.Title,
		At:         at,
	}
	if err := s.dispatch.DispatchTransition(ctx, event); err != nil {
		s.logger.Error("dispatch transition event", slog.String("work_item", item.ID.String()), slog.Any("error", err))
	}

	if item.Kind == KindTask || item.Kind == KindAsset {
		s.deriveProjectStatus(ctx, item.ProjectID, actorID, at)
	}
	return item, nil
}

// resolveActor maps a missing actor to ErrNotFound and keeps every other
// store error intact.
func (s *Service) resolveActor(ctx context.Context, actorID int64) (identity.Actor, error) {
	actor, err := s.actors.Resolve(ctx, actorID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Actor{}, fmt.Errorf("%w: actor %d", ErrNotFound, actorID)
		}
		return identity.Actor{}, fmt.Errorf("resolve actor %d: %w", actorID, err)
	}
	return actor, nil
}

func (s *Service) authorize(ctx context.Context, actor identity.Actor, item WorkItem, target Status) error {
	if IsSelfReportEdge(item.Kind, item.Status, target) {
		if item.AssignedTo == nil || *item.AssignedTo != actor.ID {
			return fmt.Errorf("%w: only the assigned actor may report progress", ErrForbidden)
		}
	}
	if IsReviewEdge(item.Kind, item.Status, target) {
		if s.authz.IsSelfApproval(actor.ID, item) {
			return fmt.Errorf("%w: self-approval is denied", ErrForbidden)
		}
		if item.AssignedTo != nil {
			assignee, err := s.actors.Resolve(ctx, *item.AssignedTo)
			if err == nil && !s.authz.CanReview(actor.Role, assignee.Role) {
				return fmt.Errorf("%w: %s may not review %s work", ErrForbidden, actor.Role, assignee.Role)
			}
		}
	}
	if !s.authz.Allowed(actor.Role, item.Kind, item.Status, target) {
		return fmt.Errorf("%w: %s may not move %s from %s to %s", ErrForbidden, actor.Role, item.Kind, item.Status, target)
	}
	return nil
}

// deriveProjectStatus recomputes the project status from its tasks. The
// reduction is idempotent, so losing the conditional write race just means
// a later transition recomputes the same answer.
func (s *Service) deriveProjectStatus(ctx context.Context, projectID uuid.UUID, actorID int64, at time.Time) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		s.logger.Error("derive project status: load project", slog.String("project", projectID.String()), slog.Any("error", err))
		return
	}
	tasks, err := s.items.ListByProject(ctx, projectID, KindTask)
	if err != nil {
		s.logger.Error("derive project status: list tasks", slog.String("project", projectID.String()), slog.Any("error", err))
		return
	}
	statuses := make([]Status, 0, len(tasks))
	for _, t := range tasks {
		statuses = append(statuses, t.Status)
	}
	next := DeriveProjectStatus(statuses)
	if next == project.Status {
		return
	}
	applied, err := s.projects.CompareAndSetStatus(ctx, projectID, project.Status, next)
	if err != nil {
		s.logger.Error("derive project status: update", slog.String("project", projectID.String()), slog.Any("error", err))
		return
	}
	if !applied {
		return
	}
	event := TransitionEvent{
		ID:         uuid.New(),
		Kind:       KindProject,
		WorkItemID: projectID,
		ProjectID:  projectID,
		From:       Status(project.Status),
		To:         Status(next),
		ActorID:    actorID,
		CreatedBy:  project.ManagerID,
		Title:      project.Name,
		At:         at,
	}
	if err := s.dispatch.DispatchTransition(ctx, event); err != nil {
		s.logger.Error("dispatch project event", slog.String("project", projectID.String()), slog.Any("error", err))
	}
}
