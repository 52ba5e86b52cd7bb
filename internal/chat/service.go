package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/notify"
	"github.com/atelier-hq/atelier/internal/projects"
)

const previewLength = 120

// MessageStore abstracts message persistence.
type MessageStore interface {
	Insert(ctx context.Context, m Message) error
	Get(ctx context.Context, id uuid.UUID) (Message, error)
	UpdateBody(ctx context.Context, id uuid.UUID, body string, at time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListByProject(ctx context.Context, projectID uuid.UUID, offset, limit int) ([]Message, error)
}

// ProjectStore resolves project names and memberships.
type ProjectStore interface {
	Get(ctx context.Context, id uuid.UUID) (projects.Project, error)
	IsMember(ctx context.Context, projectID uuid.UUID, actorID int64) (bool, error)
}

// ActorResolver resolves the viewer's role for visibility filtering.
type ActorResolver interface {
	Resolve(ctx context.Context, id int64) (identity.Actor, error)
}

// Fanout persists per-recipient notifications for a chat event.
type Fanout interface {
	DispatchChat(ctx context.Context, event notify.ChatEvent, message any) error
}

// RoomPublisher broadcasts to the project room for instantly visible chat.
type RoomPublisher interface {
	PublishToProject(projectID uuid.UUID, payload any, excludeUserID int64) error
}

// RoomEvent is the payload broadcast to a project room when a message
// arrives, changes or is removed.
type RoomEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// Service is the workflow-less message stream scoped to a project. It
// reuses the broker for room broadcast and the fan-out engine for
// persisted notifications.
type Service struct {
	store    MessageStore
	projects ProjectStore
	actors   ActorResolver
	fanout   Fanout
	rooms    RoomPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the chat service.
func NewService(store MessageStore, projectStore ProjectStore, actors ActorResolver, fanout Fanout, rooms RoomPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		projects: projectStore,
		actors:   actors,
		fanout:   fanout,
		rooms:    rooms,
		logger:   logger,
		now:      time.Now,
	}
}

// Send persists a message from a project member, broadcasts it to the
// project room and fans out notifications to members whose role may see
// it. Fan-out and broadcast failures are soft: the message is stored.
func (s *Service) Send(ctx context.Context, senderID int64, projectID uuid.UUID, body string, attachments []string, priority notify.Priority, visibleToRoles []identity.Role) (Message, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return Message{}, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	member, err := s.projects.IsMember(ctx, projectID, senderID)
	if err != nil {
		return Message{}, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return Message{}, fmt.Errorf("%w: sender is not a project member", ErrForbidden)
	}
	if priority == "" {
		priority = notify.PriorityNormal
	}

	msg := Message{
		ID:             uuid.New(),
		ProjectID:      projectID,
		SenderID:       senderID,
		Body:           body,
		Attachments:    attachments,
		VisibleToRoles: visibleToRoles,
		Priority:       priority,
		CreatedAt:      s.now(),
	}
	if err := s.store.Insert(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("persist message: %w", err)
	}

	s.broadcast(projectID, RoomEvent{Type: "chat:message", Message: msg}, senderID)

	event := notify.ChatEvent{
		ID:             uuid.New(),
		MessageID:      msg.ID,
		ProjectID:      projectID,
		ProjectName:    project.Name,
		SenderID:       senderID,
		Preview:        preview(body),
		Priority:       priority,
		VisibleToRoles: visibleToRoles,
		At:             msg.CreatedAt,
	}
	if err := s.fanout.DispatchChat(ctx, event, msg); err != nil {
		s.logger.Error("chat fan-out failed",
			slog.String("message", msg.ID.String()), slog.Any("error", err))
	}
	return msg, nil
}

// Edit replaces the body of the sender's own message.
func (s *Service) Edit(ctx context.Context, actorID int64, messageID uuid.UUID, body string) (Message, error) {
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if msg.Deleted {
		return Message{}, ErrNotFound
	}
	if msg.SenderID != actorID {
		return Message{}, fmt.Errorf("%w: only the sender may edit", ErrForbidden)
	}
	at := s.now()
	if err := s.store.UpdateBody(ctx, messageID, body, at); err != nil {
		return Message{}, err
	}
	msg.Body = body
	msg.EditedAt = &at
	s.broadcast(msg.ProjectID, RoomEvent{Type: "chat:edited", Message: msg}, 0)
	return msg, nil
}

// Delete soft-deletes the sender's own message.
func (s *Service) Delete(ctx context.Context, actorID int64, messageID uuid.UUID) error {
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		return fmt.Errorf("%w: only the sender may delete", ErrForbidden)
	}
	if err := s.store.SoftDelete(ctx, messageID); err != nil {
		return err
	}
	msg.Deleted = true
	s.broadcast(msg.ProjectID, RoomEvent{Type: "chat:deleted", Message: Message{ID: msg.ID, ProjectID: msg.ProjectID}}, 0)
	return nil
}

// History returns one page of the project's messages the viewer may see,
// newest first.
func (s *Service) History(ctx context.Context, viewerID int64, projectID uuid.UUID, page int) ([]Message, error) {
	const pageSize = 50
	member, err := s.projects.IsMember(ctx, projectID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, fmt.Errorf("%w: viewer is not a project member", ErrForbidden)
	}
	viewer, err := s.actors.Resolve(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: actor %d", ErrNotFound, viewerID)
	}
	if page <= 0 {
		page = 1
	}
	messages, err := s.store.ListByProject(ctx, projectID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	visible := messages[:0]
	for _, m := range messages {
		if m.VisibleTo(viewerID, viewer.Role) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

func (s *Service) broadcast(projectID uuid.UUID, event RoomEvent, excludeUserID int64) {
	if s.rooms == nil {
		return
	}
	if err := s.rooms.PublishToProject(projectID, event, excludeUserID); err != nil {
		s.logger.Debug("room broadcast skipped",
			slog.String("project", projectID.String()), slog.Any("error", err))
	}
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= previewLength {
		return body
	}
	// Back off to a rune boundary so the cut never splits a multi-byte rune.
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "…"
}
