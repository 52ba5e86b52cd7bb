package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// sendQueueSize bounds the per-session outbound queue. A slow client
	// loses its oldest pending events instead of blocking publishers.
	sendQueueSize = 64
	writeWait     = 5 * time.Second
	pingPeriod    = 30 * time.Second
)

// Conn is the transport-level connection a session writes to. Satisfied by
// *websocket.Conn; tests substitute an in-memory implementation.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const textMessage = 1 // mirrors websocket.TextMessage

// Session is one live connection for one user. A user may hold several
// concurrent sessions (browser tabs); each has its own room set and its own
// bounded outbound queue. Sessions are ephemeral: disconnect destroys all
// state and reconnection starts from scratch.
type Session struct {
	ID     string
	UserID int64

	conn   Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once

	// roomsMu guards only this session's membership set; the broker holds
	// its own registry lock separately.
	roomsMu sync.Mutex
	rooms   map[uuid.UUID]struct{}

	onClose func(*Session)
	onDrop  func()
	logger  *slog.Logger
}

func newSession(userID int64, conn Conn, logger *slog.Logger) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
		rooms:  make(map[uuid.UUID]struct{}),
		logger: logger,
	}
}

// Enqueue queues a payload for delivery. When the queue is full the oldest
// pending event is dropped and logged; the publisher never blocks.
func (s *Session) Enqueue(payload []byte) error {
	for {
		select {
		case <-s.closed:
			return ErrSessionClosed
		case s.send <- payload:
			return nil
		default:
		}
		select {
		case dropped := <-s.send:
			s.logger.Warn("session queue full, dropping oldest event",
				slog.String("session", s.ID),
				slog.Int64("user", s.UserID),
				slog.Int("dropped_bytes", len(dropped)))
			if s.onDrop != nil {
				s.onDrop()
			}
		default:
		}
	}
}

// Close tears the session down exactly once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) joinRoom(projectID uuid.UUID) {
	s.roomsMu.Lock()
	s.rooms[projectID] = struct{}{}
	s.roomsMu.Unlock()
}

func (s *Session) leaveRoom(projectID uuid.UUID) {
	s.roomsMu.Lock()
	delete(s.rooms, projectID)
	s.roomsMu.Unlock()
}

func (s *Session) roomSnapshot() []uuid.UUID {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	out := make([]uuid.UUID, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// writeLoop drains the outbound queue onto the connection. A failed or
// timed-out write marks the session dead and tears it down.
func (s *Session) writeLoop(ping func(Conn) error) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.send:
			if err := s.write(payload); err != nil {
				s.logger.Debug("session write failed",
					slog.String("session", s.ID), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if ping == nil {
				continue
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ping(s.conn); err != nil {
				return
			}
		}
	}
}

func (s *Session) write(payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(textMessage, payload)
}
