package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/identity"
)

// Notification is one persisted row per recipient per event. Rows are the
// durable fallback when realtime delivery finds no live session.
type Notification struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	RecipientID int64
	Type        string
	Title       string
	Body        string
	RefType     string
	RefID       string
	Silent      bool
	IsRead      bool
	CreatedAt   time.Time
}

// Priority of a chat message, carried through to delivery.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// ChatEvent describes a chat message to fan out. VisibleToRoles empty means
// every member of the project sees it; the sender is always excluded.
type ChatEvent struct {
	ID             uuid.UUID
	MessageID      uuid.UUID
	ProjectID      uuid.UUID
	ProjectName    string
	SenderID       int64
	Preview        string
	Priority       Priority
	VisibleToRoles []identity.Role
	At             time.Time
}

// Settings is the global notification configuration consulted at dispatch
// time. Settings shape presentation only: a disabled type or muted sound
// marks rows silent but never prevents persistence or delivery.
type Settings struct {
	SoundEnabled       bool                   `json:"sound_enabled"`
	EnabledTypes       map[string]bool        `json:"enabled_types"`
	RoleSoundOverrides map[identity.Role]bool `json:"role_sound_overrides"`
}

// DefaultSettings returns the configuration used when none is stored.
func DefaultSettings() Settings {
	return Settings{SoundEnabled: true}
}

// SilentFor reports whether a notification of the given type for a
// recipient role should be presented without sound.
func (s Settings) SilentFor(notificationType string, role identity.Role) bool {
	if len(s.EnabledTypes) > 0 && !s.EnabledTypes[notificationType] {
		return true
	}
	if enabled, ok := s.RoleSoundOverrides[role]; ok {
		return !enabled
	}
	return !s.SoundEnabled
}
