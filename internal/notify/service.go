package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/observability"
	"github.com/atelier-hq/atelier/internal/projects"
	"github.com/atelier-hq/atelier/internal/workflow"
)

// Store abstracts notification persistence.
type Store interface {
	Insert(ctx context.Context, n Notification) (bool, error)
	List(ctx context.Context, recipientID int64, offset, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID int64) error
	MarkAllRead(ctx context.Context, recipientID int64) error
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
}

// Publisher delivers an event to every live session of a user. Delivery is
// best-effort; an offline recipient is not an error.
type Publisher interface {
	PublishToUser(userID int64, payload any) error
}

// MemberLister resolves the roster of a project.
type MemberLister interface {
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]projects.Member, error)
}

// ActorResolver resolves counterparty roles.
type ActorResolver interface {
	Resolve(ctx context.Context, id int64) (identity.Actor, error)
}

// Mailer enqueues the email side effect for events that warrant one.
type Mailer interface {
	EnqueueEmail(ctx context.Context, recipientID int64, subject, body string) error
}

// UserEvent is the realtime envelope for a persisted notification.
type UserEvent struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}

// ChatUserEvent is the realtime envelope for a chat fan-out.
type ChatUserEvent struct {
	Type        string `json:"type"`
	Message     any    `json:"message"`
	ProjectName string `json:"projectName"`
}

// Service computes recipient sets, persists one notification per recipient
// and publishes to the broker. Persistence is the correctness guarantee;
// publishing is opportunistic.
type Service struct {
	store    Store
	members  MemberLister
	actors   ActorResolver
	settings SettingsSource
	broker   Publisher
	mailer   Mailer
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the fan-out engine. Mailer and metrics may be nil.
func NewService(store Store, members MemberLister, actors ActorResolver, settings SettingsSource, broker Publisher, mailer Mailer, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		members:  members,
		actors:   actors,
		settings: settings,
		broker:   broker,
		mailer:   mailer,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// DispatchTransition fans a work item or project transition out to its
// recipient set. Replaying the same event id never creates duplicate rows.
func (s *Service) DispatchTransition(ctx context.Context, event workflow.TransitionEvent) error {
	r, ok := ruleFor(event)
	if !ok {
		return nil
	}
	settings := s.loadSettings(ctx)
	recipients, err := s.transitionRecipients(ctx, event, r)
	if err != nil {
		return err
	}

	notificationType := typeFor(event.Kind, r.Verb)
	title := titleFor(event.Kind, r.Verb)
	body := bodyFor(event, r.Verb)
	refType := "work_item"
	if event.Kind == workflow.KindProject {
		refType = "project"
	}

	for recipientID, role := range recipients {
		n := Notification{
			ID:          uuid.New(),
			EventID:     event.ID,
			RecipientID: recipientID,
			Type:        notificationType,
			Title:       title,
			Body:        body,
			RefType:     refType,
			RefID:       event.WorkItemID.String(),
			Silent:      settings.SilentFor(notificationType, role),
			CreatedAt:   s.now(),
		}
		if err := s.deliver(ctx, n); err != nil {
			// One bad row must not suppress the rest of the fan-out.
			s.logger.Warn("deliver notification", slog.Int64("recipient", recipientID), slog.Any("error", err))
			continue
		}
		if s.mailer != nil && isReviewVerb(r.Verb) {
			if err := s.mailer.EnqueueEmail(ctx, recipientID, title, body); err != nil {
				s.logger.Warn("enqueue notification email", slog.Int64("recipient", recipientID), slog.Any("error", err))
			}
		}
	}
	return nil
}

// DispatchChat fans a chat message out to project members whose role may
// see it, excluding the sender.
func (s *Service) DispatchChat(ctx context.Context, event ChatEvent, message any) error {
	members, err := s.members.ListMembers(ctx, event.ProjectID)
	if err != nil {
		return fmt.Errorf("list project members: %w", err)
	}
	settings := s.loadSettings(ctx)

	title := "New message in " + event.ProjectName
	if event.Priority == PriorityHigh {
		title = "High priority message in " + event.ProjectName
	}

	for _, member := range members {
		if member.ActorID == event.SenderID {
			continue
		}
		if !roleVisible(event.VisibleToRoles, member.Role) {
			continue
		}
		n := Notification{
			ID:          uuid.New(),
			EventID:     event.ID,
			RecipientID: member.ActorID,
			Type:        "chat_message",
			Title:       title,
			Body:        event.Preview,
			RefType:     "chat_message",
			RefID:       event.MessageID.String(),
			Silent:      settings.SilentFor("chat_message", member.Role),
			CreatedAt:   s.now(),
		}
		inserted, err := s.store.Insert(ctx, n)
		if err != nil {
			s.logger.Warn("persist chat notification", slog.Int64("recipient", member.ActorID), slog.Any("error", err))
			continue
		}
		if !inserted {
			continue
		}
		if s.metrics != nil {
			s.metrics.NotificationCreated()
		}
		s.publish(member.ActorID, ChatUserEvent{Type: "chat:notification", Message: message, ProjectName: event.ProjectName})
		if s.mailer != nil && event.Priority == PriorityHigh {
			if err := s.mailer.EnqueueEmail(ctx, member.ActorID, title, event.Preview); err != nil {
				s.logger.Warn("enqueue chat email", slog.Int64("recipient", member.ActorID), slog.Any("error", err))
			}
		}
	}
	return nil
}

// List returns one page of a user's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID int64, page int) ([]Notification, error) {
	const pageSize = 20
	if page <= 0 {
		page = 1
	}
	return s.store.List(ctx, recipientID, (page-1)*pageSize, pageSize)
}

// MarkRead flips one notification to read; idempotent.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, recipientID int64) error {
	return s.store.MarkRead(ctx, id, recipientID)
}

// MarkAllRead flips every unread notification for the user.
func (s *Service) MarkAllRead(ctx context.Context, recipientID int64) error {
	return s.store.MarkAllRead(ctx, recipientID)
}

// CountUnread returns the unread badge count.
func (s *Service) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	return s.store.CountUnread(ctx, recipientID)
}

func (s *Service) deliver(ctx context.Context, n Notification) error {
	inserted, err := s.store.Insert(ctx, n)
	if err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	if !inserted {
		// Replay of an already-dispatched event; the row is the durable copy.
		return nil
	}
	if s.metrics != nil {
		s.metrics.NotificationCreated()
	}
	s.publish(n.RecipientID, UserEvent{Type: "notification:new", Notification: n})
	return nil
}

func (s *Service) publish(recipientID int64, payload any) {
	if s.broker == nil {
		return
	}
	if err := s.broker.PublishToUser(recipientID, payload); err != nil {
		// Expected when the recipient has no live session; the persisted
		// row is delivered on their next fetch.
		s.logger.Debug("realtime publish skipped", slog.Int64("recipient", recipientID), slog.Any("error", err))
	}
}

func (s *Service) loadSettings(ctx context.Context) Settings {
	if s.settings == nil {
		return DefaultSettings()
	}
	settings, err := s.settings.Load(ctx)
	if err != nil {
		s.logger.Warn("load notification settings", slog.Any("error", err))
		return DefaultSettings()
	}
	return settings
}

func (s *Service) transitionRecipients(ctx context.Context, event workflow.TransitionEvent, r rule) (map[int64]identity.Role, error) {
	recipients := make(map[int64]identity.Role)

	var counterpartyID int64
	switch r.Counterparty {
	case notifyAssignee:
		if event.AssignedTo != nil {
			counterpartyID = *event.AssignedTo
		}
	case notifyCreator:
		counterpartyID = event.CreatedBy
	}
	if counterpartyID != 0 && counterpartyID != event.ActorID {
		role := identity.Role("")
		if actor, err := s.actors.Resolve(ctx, counterpartyID); err == nil {
			role = actor.Role
		}
		recipients[counterpartyID] = role
	}

	if len(r.Roles) > 0 {
		members, err := s.members.ListMembers(ctx, event.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("list project members: %w", err)
		}
		for _, member := range members {
			if member.ActorID == event.ActorID {
				continue
			}
			if roleVisible(r.Roles, member.Role) {
				recipients[member.ActorID] = member.Role
			}
		}
		if event.Kind == workflow.KindProject && event.CreatedBy != 0 && event.CreatedBy != event.ActorID {
			if _, ok := recipients[event.CreatedBy]; !ok {
				recipients[event.CreatedBy] = identity.RoleManager
			}
		}
	}
	return recipients, nil
}

func roleVisible(visible []identity.Role, role identity.Role) bool {
	if len(visible) == 0 {
		return true
	}
	for _, r := range visible {
		if r == role {
			return true
		}
	}
	return false
}

func isReviewVerb(verb string) bool {
	switch verb {
	case "approved", "rejected", "accepted":
		return true
	default:
		return false
	}
}
