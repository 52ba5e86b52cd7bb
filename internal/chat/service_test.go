package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/notify"
	"github.com/atelier-hq/atelier/internal/projects"
)

type memoryMessages struct {
	mu   sync.Mutex
	rows map[uuid.UUID]Message
}

func newMemoryMessages() *memoryMessages {
	return &memoryMessages{rows: make(map[uuid.UUID]Message)}
}

func (s *memoryMessages) Insert(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.ID] = m
	return nil
}

func (s *memoryMessages) Get(_ context.Context, id uuid.UUID) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m, nil
}

func (s *memoryMessages) UpdateBody(_ context.Context, id uuid.UUID, body string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	m.Body = body
	m.EditedAt = &at
	s.rows[id] = m
	return nil
}

func (s *memoryMessages) SoftDelete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	m.Deleted = true
	s.rows[id] = m
	return nil
}

func (s *memoryMessages) ListByProject(_ context.Context, projectID uuid.UUID, offset, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.rows {
		if m.ProjectID == projectID && !m.Deleted {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubProjects struct {
	project projects.Project
	members map[int64]bool
}

func (s *stubProjects) Get(_ context.Context, id uuid.UUID) (projects.Project, error) {
	if id != s.project.ID {
		return projects.Project{}, projects.ErrNotFound
	}
	return s.project, nil
}

func (s *stubProjects) IsMember(_ context.Context, _ uuid.UUID, actorID int64) (bool, error) {
	return s.members[actorID], nil
}

type stubActors struct {
	roles map[int64]identity.Role
}

func (s *stubActors) Resolve(_ context.Context, id int64) (identity.Actor, error) {
	role, ok := s.roles[id]
	if !ok {
		return identity.Actor{}, identity.ErrNotFound
	}
	return identity.Actor{ID: id, Role: role}, nil
}

type recordedFanout struct {
	mu     sync.Mutex
	events []notify.ChatEvent
}

func (f *recordedFanout) DispatchChat(_ context.Context, event notify.ChatEvent, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type recordedRooms struct {
	mu       sync.Mutex
	events   []RoomEvent
	excluded []int64
}

func (r *recordedRooms) PublishToProject(_ uuid.UUID, payload any, excludeUserID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, payload.(RoomEvent))
	r.excluded = append(r.excluded, excludeUserID)
	return nil
}

const (
	managerID  = int64(2)
	teamLeadID = int64(3)
	devID      = int64(4)
	outsiderID = int64(9)
)

type fixture struct {
	svc    *Service
	store  *memoryMessages
	fanout *recordedFanout
	rooms  *recordedRooms
	proj   uuid.UUID
}

func newFixture() *fixture {
	projectID := uuid.New()
	store := newMemoryMessages()
	fanout := &recordedFanout{}
	rooms := &recordedRooms{}
	svc := NewService(store,
		&stubProjects{
			project: projects.Project{ID: projectID, Name: "Brand Refresh"},
			members: map[int64]bool{managerID: true, teamLeadID: true, devID: true},
		},
		&stubActors{roles: map[int64]identity.Role{
			managerID:  identity.RoleManager,
			teamLeadID: identity.RoleTeamLead,
			devID:      identity.RoleDeveloper,
		}},
		fanout, rooms, nil)
	return &fixture{svc: svc, store: store, fanout: fanout, rooms: rooms, proj: projectID}
}

func TestSendRequiresMembership(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Send(context.Background(), outsiderID, f.proj, "hello", nil, "", nil)
	require.ErrorIs(t, err, ErrForbidden)
	require.Empty(t, f.rooms.events)
	require.Empty(t, f.fanout.events)
}

func TestSendUnknownProject(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Send(context.Background(), devID, uuid.New(), "hello", nil, "", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSendBroadcastsAndFansOut(t *testing.T) {
	f := newFixture()
	msg, err := f.svc.Send(context.Background(), devID, f.proj, "Pushed the new assets", []string{"hero.png"}, "", nil)
	require.NoError(t, err)
	require.Equal(t, notify.PriorityNormal, msg.Priority)

	require.Len(t, f.rooms.events, 1)
	require.Equal(t, "chat:message", f.rooms.events[0].Type)
	require.Equal(t, msg.ID, f.rooms.events[0].Message.ID)
	require.Equal(t, []int64{devID}, f.rooms.excluded, "room broadcast excludes the sender")

	require.Len(t, f.fanout.events, 1)
	require.Equal(t, "Brand Refresh", f.fanout.events[0].ProjectName)
	require.Equal(t, "Pushed the new assets", f.fanout.events[0].Preview)
	require.Equal(t, msg.ID, f.fanout.events[0].MessageID)
}

func TestSendTruncatesPreview(t *testing.T) {
	f := newFixture()
	long := ""
	for i := 0; i < 40; i++ {
		long += "lorem "
	}
	_, err := f.svc.Send(context.Background(), devID, f.proj, long, nil, notify.PriorityHigh, nil)
	require.NoError(t, err)
	require.Len(t, f.fanout.events, 1)
	require.Len(t, []byte(f.fanout.events[0].Preview), previewLength+len("…"))
	require.Equal(t, notify.PriorityHigh, f.fanout.events[0].Priority)
}

func TestSendPreviewNeverSplitsRunes(t *testing.T) {
	f := newFixture()
	long := "a" + strings.Repeat("☃", 80)
	_, err := f.svc.Send(context.Background(), devID, f.proj, long, nil, notify.PriorityNormal, nil)
	require.NoError(t, err)
	require.Len(t, f.fanout.events, 1)

	got := f.fanout.events[0].Preview
	require.True(t, utf8.ValidString(got), "preview must stay valid UTF-8")
	require.True(t, strings.HasSuffix(got, "…"))
	require.Less(t, len(got), len(long))
}

func TestEditOnlyBySender(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	msg, err := f.svc.Send(ctx, devID, f.proj, "draft", nil, "", nil)
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, teamLeadID, msg.ID, "hijacked")
	require.ErrorIs(t, err, ErrForbidden)

	edited, err := f.svc.Edit(ctx, devID, msg.ID, "final")
	require.NoError(t, err)
	require.Equal(t, "final", edited.Body)
	require.NotNil(t, edited.EditedAt)

	stored, err := f.store.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "final", stored.Body)
	require.Equal(t, "chat:edited", f.rooms.events[len(f.rooms.events)-1].Type)
}

func TestDeleteOnlyBySender(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	msg, err := f.svc.Send(ctx, devID, f.proj, "oops", nil, "", nil)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, managerID, msg.ID), ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, devID, msg.ID))

	_, err = f.svc.Edit(ctx, devID, msg.ID, "too late")
	require.ErrorIs(t, err, ErrNotFound)

	last := f.rooms.events[len(f.rooms.events)-1]
	require.Equal(t, "chat:deleted", last.Type)
	require.Empty(t, last.Message.Body, "deleted broadcast carries no content")
}

func TestHistoryFiltersByRoleVisibility(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Send(ctx, teamLeadID, f.proj, "for everyone", nil, "", nil)
	require.NoError(t, err)
	restricted, err := f.svc.Send(ctx, teamLeadID, f.proj, "management only", nil, "", []identity.Role{identity.RoleManager})
	require.NoError(t, err)

	devView, err := f.svc.History(ctx, devID, f.proj, 1)
	require.NoError(t, err)
	require.Len(t, devView, 1)
	require.Equal(t, "for everyone", devView[0].Body)

	managerView, err := f.svc.History(ctx, managerID, f.proj, 1)
	require.NoError(t, err)
	require.Len(t, managerView, 2)

	// The sender always sees their own restricted message.
	senderView, err := f.svc.History(ctx, teamLeadID, f.proj, 1)
	require.NoError(t, err)
	require.Len(t, senderView, 2)
	require.Equal(t, restricted.ID, senderView[0].ID)
}

func TestHistoryRequiresMembership(t *testing.T) {
	f := newFixture()
	_, err := f.svc.History(context.Background(), outsiderID, f.proj, 1)
	require.ErrorIs(t, err, ErrForbidden)
}
