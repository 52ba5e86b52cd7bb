package audit

import "time"

// Entry represents a record stored in audit_logs. Entries are append-only;
// nothing in the engine mutates or deletes them.
type Entry struct {
	ID         int64
	ActorID    int64
	Action     string
	EntityType string
	EntityID   string
	OldValue   string
	NewValue   string
	IP         string
	UserAgent  string
	At         time.Time
}

// Metadata carries request-level context attached to an entry.
type Metadata struct {
	IP        string
	UserAgent string
}

// Filter narrows audit listings.
type Filter struct {
	ActorID    int64
	Action     string
	EntityType string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// Stats summarizes the trail for the operator-facing audit view.
type Stats struct {
	Today      int64
	ThisWeek   int64
	ThisMonth  int64
	Total      int64
	TopActions []Bucket
	TopTargets []Bucket
}

// Bucket is a labelled count.
type Bucket struct {
	Label string
	Count int64
}
