package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/observability"
)

// CredentialResolver maps connect credentials to an actor id. Backed by the
// identity session store in production.
type CredentialResolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// Broker maintains the live session registry and the project rooms, and
// hides transport details from publishers. All methods are safe for
// concurrent use; registry locks are held only around map bookkeeping,
// never during writes to a connection.
type Broker struct {
	auth    CredentialResolver
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	users    map[int64]map[string]*Session
	rooms    map[uuid.UUID]map[string]*Session

	ping func(Conn) error
}

// NewBroker constructs a Broker. Metrics may be nil.
func NewBroker(auth CredentialResolver, logger *slog.Logger, metrics *observability.Metrics) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		auth:     auth,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*Session),
		users:    make(map[int64]map[string]*Session),
		rooms:    make(map[uuid.UUID]map[string]*Session),
	}
}

// SetPing installs the transport heartbeat used by session write loops.
func (b *Broker) SetPing(ping func(Conn) error) {
	b.ping = ping
}

// Connect authenticates the credentials and registers a brand-new session
// on the connection. It fails with ErrUnauthenticated when the credentials
// do not resolve to a live actor.
func (b *Broker) Connect(ctx context.Context, credentials string, conn Conn) (*Session, error) {
	userID, err := b.auth.Resolve(ctx, credentials)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	sess := newSession(userID, conn, b.logger)
	sess.onClose = b.remove
	sess.onDrop = b.metrics.EventDropped

	b.mu.Lock()
	b.sessions[sess.ID] = sess
	userSessions := b.users[userID]
	if userSessions == nil {
		userSessions = make(map[string]*Session)
		b.users[userID] = userSessions
	}
	userSessions[sess.ID] = sess
	b.mu.Unlock()

	b.metrics.SessionOpened()
	go sess.writeLoop(b.ping)
	return sess, nil
}

// Disconnect tears a session down and immediately drops all of its room
// memberships. Rejoining after reconnect is the client's responsibility.
func (b *Broker) Disconnect(sess *Session) {
	if sess == nil {
		return
	}
	sess.Close()
}

// JoinProject subscribes the session to the project room. Membership is
// session-scoped and not durable.
func (b *Broker) JoinProject(sess *Session, projectID uuid.UUID) {
	if sess == nil || sess.Closed() {
		return
	}
	b.mu.Lock()
	if _, tracked := b.sessions[sess.ID]; !tracked {
		b.mu.Unlock()
		return
	}
	room := b.rooms[projectID]
	if room == nil {
		room = make(map[string]*Session)
		b.rooms[projectID] = room
	}
	room[sess.ID] = sess
	// Inside the registry lock so a concurrent remove either sees this
	// membership or has already unregistered the session.
	sess.joinRoom(projectID)
	b.mu.Unlock()
}

// LeaveProject unsubscribes the session from the project room.
func (b *Broker) LeaveProject(sess *Session, projectID uuid.UUID) {
	if sess == nil {
		return
	}
	b.mu.Lock()
	if room := b.rooms[projectID]; room != nil {
		delete(room, sess.ID)
		if len(room) == 0 {
			delete(b.rooms, projectID)
		}
	}
	b.mu.Unlock()
	sess.leaveRoom(projectID)
}

// PublishToUser delivers the payload to every live session of the user,
// at most once per session. Offline users yield ErrNoLiveSessions.
func (b *Broker) PublishToUser(userID int64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode payload: %w", err)
	}

	b.mu.RLock()
	targets := make([]*Session, 0, len(b.users[userID]))
	for _, sess := range b.users[userID] {
		targets = append(targets, sess)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w: user %d", ErrNoLiveSessions, userID)
	}
	for _, sess := range targets {
		if err := sess.Enqueue(data); err != nil {
			b.logger.Debug("enqueue to session failed",
				slog.String("session", sess.ID), slog.Any("error", err))
		}
	}
	return nil
}

// PublishToProject delivers the payload to every session currently joined
// to the project room, optionally excluding one user (typically the
// sender). Pass 0 to exclude nobody.
func (b *Broker) PublishToProject(projectID uuid.UUID, payload any, excludeUserID int64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode payload: %w", err)
	}

	b.mu.RLock()
	room := b.rooms[projectID]
	targets := make([]*Session, 0, len(room))
	for _, sess := range room {
		if excludeUserID != 0 && sess.UserID == excludeUserID {
			continue
		}
		targets = append(targets, sess)
	}
	b.mu.RUnlock()

	for _, sess := range targets {
		if err := sess.Enqueue(data); err != nil {
			b.logger.Debug("enqueue to session failed",
				slog.String("session", sess.ID), slog.Any("error", err))
		}
	}
	return nil
}

// SessionCount reports the number of live sessions for a user.
func (b *Broker) SessionCount(userID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.users[userID])
}

// Shutdown closes every live session. Used on server shutdown.
func (b *Broker) Shutdown() {
	b.mu.RLock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, sess := range b.sessions {
		sessions = append(sessions, sess)
	}
	b.mu.RUnlock()
	for _, sess := range sessions {
		sess.Close()
	}
}

// remove unregisters a closed session from the registry and every room it
// joined. Invoked exactly once via Session.Close.
func (b *Broker) remove(sess *Session) {
	b.mu.Lock()
	rooms := sess.roomSnapshot()
	delete(b.sessions, sess.ID)
	if userSessions := b.users[sess.UserID]; userSessions != nil {
		delete(userSessions, sess.ID)
		if len(userSessions) == 0 {
			delete(b.users, sess.UserID)
		}
	}
	for _, projectID := range rooms {
		if room := b.rooms[projectID]; room != nil {
			delete(room, sess.ID)
			if len(room) == 0 {
				delete(b.rooms, projectID)
			}
		}
	}
	b.mu.Unlock()
	b.metrics.SessionClosed()
}
