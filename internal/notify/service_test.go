package notify

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/projects"
	"github.com/atelier-hq/atelier/internal/workflow"
)

type memoryStore struct {
	mu   sync.Mutex
	rows []Notification
	seen map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{seen: make(map[string]bool)}
}

func (s *memoryStore) Insert(_ context.Context, n Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := n.EventID.String() + "/" + strconv.FormatInt(n.RecipientID, 10)
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.rows = append(s.rows, n)
	return true, nil
}

func (s *memoryStore) List(_ context.Context, recipientID int64, offset, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].RecipientID == recipientID {
			out = append(out, s.rows[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) MarkRead(_ context.Context, id uuid.UUID, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].RecipientID == recipientID {
			s.rows[i].IsRead = true
		}
	}
	return nil
}

func (s *memoryStore) MarkAllRead(_ context.Context, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].RecipientID == recipientID {
			s.rows[i].IsRead = true
		}
	}
	return nil
}

func (s *memoryStore) CountUnread(_ context.Context, recipientID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.RecipientID == recipientID && !row.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) forRecipient(recipientID int64) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, row := range s.rows {
		if row.RecipientID == recipientID {
			out = append(out, row)
		}
	}
	return out
}

type stubMembers struct {
	members []projects.Member
}

func (s *stubMembers) ListMembers(context.Context, uuid.UUID) ([]projects.Member, error) {
	return s.members, nil
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

type stubBroker struct {
	mu        sync.Mutex
	published map[int64][]any
	offline   bool
}

func (s *stubBroker) PublishToUser(userID int64, payload any) error {
	if s.offline {
		return errors.New("no live sessions")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published == nil {
		s.published = make(map[int64][]any)
	}
	s.published[userID] = append(s.published[userID], payload)
	return nil
}

type stubMailer struct {
	mu     sync.Mutex
	emails map[int64][]string
}

func (s *stubMailer) EnqueueEmail(_ context.Context, recipientID int64, subject, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emails == nil {
		s.emails = make(map[int64][]string)
	}
	s.emails[recipientID] = append(s.emails[recipientID], subject)
	return nil
}

type staticSettings struct {
	settings Settings
	err      error
}

func (s *staticSettings) Load(context.Context) (Settings, error) {
	return s.settings, s.err
}

const (
	managerID  = int64(2)
	teamLeadID = int64(3)
	devID      = int64(4)
	designerID = int64(5)
)

func roster() []projects.Member {
	return []projects.Member{
		{ActorID: managerID, Role: identity.RoleManager},
		{ActorID: teamLeadID, Role: identity.RoleTeamLead},
		{ActorID: devID, Role: identity.RoleDeveloper},
		{ActorID: designerID, Role: identity.RoleDesigner},
	}
}

func newTestService(store Store, broker Publisher, mailer Mailer, settings SettingsSource) *Service {
	actors := &stubActors{roles: map[int64]identity.Role{
		managerID:  identity.RoleManager,
		teamLeadID: identity.RoleTeamLead,
		devID:      identity.RoleDeveloper,
		designerID: identity.RoleDesigner,
	}}
	return NewService(store, &stubMembers{members: roster()}, actors, settings, broker, mailer, nil, nil)
}

func submittedEvent() workflow.TransitionEvent {
	dev := devID
	return workflow.TransitionEvent{
		ID:         uuid.New(),
		Kind:       workflow.KindTask,
		WorkItemID: uuid.New(),
		ProjectID:  uuid.New(),
		From:       workflow.StatusInProgress,
		To:         workflow.StatusSubmitted,
		ActorID:    devID,
		AssignedTo: &dev,
		CreatedBy:  teamLeadID,
		Title:      "Homepage hero",
		At:         time.Now(),
	}
}

func TestDispatchTransitionNotifiesCreator(t *testing.T) {
	store := newMemoryStore()
	broker := &stubBroker{}
	svc := newTestService(store, broker, nil, nil)

	require.NoError(t, svc.DispatchTransition(context.Background(), submittedEvent()))

	rows := store.forRecipient(teamLeadID)
	require.Len(t, rows, 1)
	require.Equal(t, "task_submitted", rows[0].Type)
	require.Equal(t, "Task Submitted", rows[0].Title)
	require.Equal(t, "work_item", rows[0].RefType)
	require.Empty(t, store.forRecipient(devID), "actor never notifies themselves")
	require.Len(t, broker.published[teamLeadID], 1)
}

func TestDispatchTransitionReplayIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	broker := &stubBroker{}
	svc := newTestService(store, broker, nil, nil)

	event := submittedEvent()
	require.NoError(t, svc.DispatchTransition(context.Background(), event))
	require.NoError(t, svc.DispatchTransition(context.Background(), event))

	require.Len(t, store.forRecipient(teamLeadID), 1)
	require.Len(t, broker.published[teamLeadID], 1, "replay must not publish again")
}

func TestDispatchTransitionOfflineRecipientStillPersisted(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, &stubBroker{offline: true}, nil, nil)

	require.NoError(t, svc.DispatchTransition(context.Background(), submittedEvent()))
	require.Len(t, store.forRecipient(teamLeadID), 1)
}

func TestDispatchTransitionReviewVerbSendsEmail(t *testing.T) {
	store := newMemoryStore()
	mailer := &stubMailer{}
	svc := newTestService(store, &stubBroker{}, mailer, nil)

	dev := devID
	approved := workflow.TransitionEvent{
		ID:         uuid.New(),
		Kind:       workflow.KindTask,
		WorkItemID: uuid.New(),
		ProjectID:  uuid.New(),
		From:       workflow.StatusSubmitted,
		To:         workflow.StatusApproved,
		ActorID:    teamLeadID,
		AssignedTo: &dev,
		CreatedBy:  teamLeadID,
		Title:      "Homepage hero",
		At:         time.Now(),
	}
	require.NoError(t, svc.DispatchTransition(context.Background(), approved))

	require.Len(t, store.forRecipient(devID), 1)
	require.Equal(t, []string{"Task Approved"}, mailer.emails[devID])

	// A plain progress report warrants no email.
	require.NoError(t, svc.DispatchTransition(context.Background(), submittedEvent()))
	require.Empty(t, mailer.emails[teamLeadID])
}

func TestDispatchTransitionProjectStatusTargetsManagement(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, &stubBroker{}, nil, nil)

	event := workflow.TransitionEvent{
		ID:         uuid.New(),
		Kind:       workflow.KindProject,
		WorkItemID: uuid.New(),
		ProjectID:  uuid.New(),
		From:       workflow.Status("ACTIVE"),
		To:         workflow.Status("REVIEW"),
		ActorID:    devID,
		CreatedBy:  managerID,
		Title:      "Brand Refresh",
		At:         time.Now(),
	}
	require.NoError(t, svc.DispatchTransition(context.Background(), event))

	require.Len(t, store.forRecipient(managerID), 1)
	require.Equal(t, "project", store.forRecipient(managerID)[0].RefType)
	require.Empty(t, store.forRecipient(devID))
	require.Empty(t, store.forRecipient(designerID))
}

func TestDispatchTransitionSilentFlagNeverBlocksDelivery(t *testing.T) {
	store := newMemoryStore()
	broker := &stubBroker{}
	settings := &staticSettings{settings: Settings{
		SoundEnabled: true,
		EnabledTypes: map[string]bool{"chat_message": true},
	}}
	svc := newTestService(store, broker, nil, settings)

	require.NoError(t, svc.DispatchTransition(context.Background(), submittedEvent()))

	rows := store.forRecipient(teamLeadID)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Silent, "disabled type marks the row silent")
	require.Len(t, broker.published[teamLeadID], 1, "silent shapes presentation, not delivery")
}

func TestDispatchTransitionSettingsErrorFallsBackToDefaults(t *testing.T) {
	store := newMemoryStore()
	settings := &staticSettings{err: errors.New("redis down")}
	svc := newTestService(store, &stubBroker{}, nil, settings)

	require.NoError(t, svc.DispatchTransition(context.Background(), submittedEvent()))
	rows := store.forRecipient(teamLeadID)
	require.Len(t, rows, 1)
	require.False(t, rows[0].Silent)
}

// faultyStore fails Insert for one recipient and delegates the rest.
type faultyStore struct {
	*memoryStore
	failFor int64
}

func (s *faultyStore) Insert(ctx context.Context, n Notification) (bool, error) {
	if n.RecipientID == s.failFor {
		return false, errors.New("insert failed")
	}
	return s.memoryStore.Insert(ctx, n)
}

func TestDispatchTransitionFailedRecipientDoesNotStarveOthers(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(&faultyStore{memoryStore: store, failFor: managerID}, &stubBroker{}, nil, nil)

	event := workflow.TransitionEvent{
		ID:         uuid.New(),
		Kind:       workflow.KindProject,
		WorkItemID: uuid.New(),
		ProjectID:  uuid.New(),
		From:       workflow.Status("ACTIVE"),
		To:         workflow.Status("REVIEW"),
		ActorID:    devID,
		CreatedBy:  teamLeadID,
		Title:      "Brand Refresh",
		At:         time.Now(),
	}
	require.NoError(t, svc.DispatchTransition(context.Background(), event))

	require.Empty(t, store.forRecipient(managerID))
	require.Len(t, store.forRecipient(teamLeadID), 1, "remaining recipients still fan out")
}

func TestDispatchChatFailedRecipientDoesNotStarveOthers(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(&faultyStore{memoryStore: store, failFor: managerID}, &stubBroker{}, nil, nil)

	event := ChatEvent{
		ID:          uuid.New(),
		MessageID:   uuid.New(),
		ProjectID:   uuid.New(),
		ProjectName: "Brand Refresh",
		SenderID:    teamLeadID,
		Preview:     "Deck is ready for review",
		Priority:    PriorityNormal,
		At:          time.Now(),
	}
	require.NoError(t, svc.DispatchChat(context.Background(), event, nil))

	require.Empty(t, store.forRecipient(managerID))
	require.Len(t, store.forRecipient(devID), 1)
	require.Len(t, store.forRecipient(designerID), 1)
}

func TestDispatchChatExcludesSenderAndFiltersRoles(t *testing.T) {
	store := newMemoryStore()
	broker := &stubBroker{}
	svc := newTestService(store, broker, nil, nil)

	event := ChatEvent{
		ID:             uuid.New(),
		MessageID:      uuid.New(),
		ProjectID:      uuid.New(),
		ProjectName:    "Brand Refresh",
		SenderID:       teamLeadID,
		Preview:        "Deck is ready for review",
		Priority:       PriorityNormal,
		VisibleToRoles: []identity.Role{identity.RoleManager, identity.RoleTeamLead},
		At:             time.Now(),
	}
	require.NoError(t, svc.DispatchChat(context.Background(), event, map[string]any{"id": event.MessageID}))

	require.Len(t, store.forRecipient(managerID), 1)
	require.Empty(t, store.forRecipient(teamLeadID), "sender is excluded even when their role is visible")
	require.Empty(t, store.forRecipient(devID))
	require.Empty(t, store.forRecipient(designerID))
	require.Equal(t, "New message in Brand Refresh", store.forRecipient(managerID)[0].Title)
}

func TestDispatchChatEmptyVisibilityReachesWholeRoster(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, &stubBroker{}, nil, nil)

	event := ChatEvent{
		ID:          uuid.New(),
		MessageID:   uuid.New(),
		ProjectID:   uuid.New(),
		ProjectName: "Brand Refresh",
		SenderID:    devID,
		Preview:     "Pushed the new assets",
		Priority:    PriorityNormal,
		At:          time.Now(),
	}
	require.NoError(t, svc.DispatchChat(context.Background(), event, nil))

	for _, id := range []int64{managerID, teamLeadID, designerID} {
		require.Len(t, store.forRecipient(id), 1)
	}
	require.Empty(t, store.forRecipient(devID))
}

func TestDispatchChatHighPrioritySendsEmail(t *testing.T) {
	store := newMemoryStore()
	mailer := &stubMailer{}
	svc := newTestService(store, &stubBroker{}, mailer, nil)

	event := ChatEvent{
		ID:          uuid.New(),
		MessageID:   uuid.New(),
		ProjectID:   uuid.New(),
		ProjectName: "Brand Refresh",
		SenderID:    managerID,
		Preview:     "Client call moved to 3pm",
		Priority:    PriorityHigh,
		At:          time.Now(),
	}
	require.NoError(t, svc.DispatchChat(context.Background(), event, nil))

	require.Equal(t, []string{"High priority message in Brand Refresh"}, mailer.emails[teamLeadID])
	require.Equal(t, "High priority message in Brand Refresh", store.forRecipient(devID)[0].Title)
}

func TestUnreadLifecycle(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, &stubBroker{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.DispatchTransition(ctx, submittedEvent()))
	require.NoError(t, svc.DispatchTransition(ctx, submittedEvent()))

	count, err := svc.CountUnread(ctx, teamLeadID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	rows := store.forRecipient(teamLeadID)
	require.NoError(t, svc.MarkRead(ctx, rows[0].ID, teamLeadID))
	count, err = svc.CountUnread(ctx, teamLeadID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, svc.MarkAllRead(ctx, teamLeadID))
	count, err = svc.CountUnread(ctx, teamLeadID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSilentFor(t *testing.T) {
	base := DefaultSettings()
	require.False(t, base.SilentFor("task_approved", identity.RoleDeveloper))

	muted := Settings{SoundEnabled: false}
	require.True(t, muted.SilentFor("task_approved", identity.RoleDeveloper))

	override := Settings{SoundEnabled: false, RoleSoundOverrides: map[identity.Role]bool{identity.RoleAdmin: true}}
	require.False(t, override.SilentFor("task_approved", identity.RoleAdmin))
	require.True(t, override.SilentFor("task_approved", identity.RoleDeveloper))

	typed := Settings{SoundEnabled: true, EnabledTypes: map[string]bool{"chat_message": true}}
	require.True(t, typed.SilentFor("task_approved", identity.RoleDeveloper))
	require.False(t, typed.SilentFor("chat_message", identity.RoleDeveloper))
}
