package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/notify"
)

var (
	// ErrNotFound indicates the message or project does not exist.
	ErrNotFound = errors.New("chat: not found")
	// ErrForbidden indicates the actor may not act on the message,
	// typically editing or deleting someone else's.
	ErrForbidden = errors.New("chat: forbidden")
)

// Message is one project-scoped chat message. Immutable once broadcast
// except for body/edited_at (sender edit) and the soft-delete flag.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ProjectID      uuid.UUID       `json:"projectId"`
	SenderID       int64           `json:"senderId"`
	SenderDeleted  bool            `json:"senderDeleted"`
	Body           string          `json:"body"`
	Attachments    []string        `json:"attachments,omitempty"`
	VisibleToRoles []identity.Role `json:"visibleToRoles,omitempty"`
	Priority       notify.Priority `json:"priority"`
	CreatedAt      time.Time       `json:"createdAt"`
	EditedAt       *time.Time      `json:"editedAt,omitempty"`
	Deleted        bool            `json:"-"`
}

// VisibleTo reports whether a viewer with the given role and id may see the
// message. An empty role set means every member of the project; the sender
// always sees their own messages.
func (m Message) VisibleTo(viewerID int64, role identity.Role) bool {
	if m.SenderID == viewerID {
		return true
	}
	if len(m.VisibleToRoles) == 0 {
		return true
	}
	for _, r := range m.VisibleToRoles {
		if r == role {
			return true
		}
	}
	return false
}

func notifyPriority(p string) notify.Priority {
	if p == string(notify.PriorityHigh) {
		return notify.PriorityHigh
	}
	return notify.PriorityNormal
}
