package realtime

import "errors"

var (
	// ErrUnauthenticated indicates connect credentials that do not resolve
	// to a live actor.
	ErrUnauthenticated = errors.New("realtime: unauthenticated")
	// ErrNoLiveSessions indicates a publish found no connected session for
	// the target. Expected for offline recipients; the persisted
	// notification row is the fallback.
	ErrNoLiveSessions = errors.New("realtime: no live sessions")
	// ErrSessionClosed indicates an enqueue on a torn-down session.
	ErrSessionClosed = errors.New("realtime: session closed")
)
