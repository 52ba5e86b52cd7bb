package audit

import (
	"context"
	"log/slog"
	"time"
)

// Writer persists entries.
type Writer interface {
	Insert(ctx context.Context, entry Entry) error
}

// Recorder appends audit entries on a best-effort basis. A failed write
// must not roll back the mutation that produced it, so Append never returns
// an error; failures are logged for the operator since they weaken the
// forensic trail.
type Recorder struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(writer Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{writer: writer, logger: logger, now: time.Now}
}

// Append records one mutation attempt. It retries a failed write once
// before giving up.
func (r *Recorder) Append(ctx context.Context, actorID int64, action, entityType, entityID, oldValue, newValue string, meta Metadata) {
	entry := Entry{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OldValue:   oldValue,
		NewValue:   newValue,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		At:         r.now(),
	}
	err := r.writer.Insert(ctx, entry)
	if err != nil {
		err = r.writer.Insert(ctx, entry)
	}
	if err != nil {
		r.logger.Error("audit append failed",
			slog.String("action", action),
			slog.String("entity", entityType),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
	}
}
