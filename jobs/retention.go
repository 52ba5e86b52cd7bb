package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atelier-hq/atelier/internal/jobs"
)

// NotificationPurger removes read notifications past the retention window.
type NotificationPurger interface {
	PurgeRead(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetentionHandler processes TaskTypeRetention tasks.
type RetentionHandler struct {
	purger  NotificationPurger
	maxAge  time.Duration
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRetentionHandler constructs a RetentionHandler.
func NewRetentionHandler(purger NotificationPurger, maxAge time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *RetentionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionHandler{purger: purger, maxAge: maxAge, metrics: metrics, logger: logger, now: time.Now}
}

// Handle deletes read notifications older than the retention window.
func (h *RetentionHandler) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("notification_retention")
	cutoff := h.now().Add(-h.maxAge)
	deleted, err := h.purger.PurgeRead(ctx, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	h.logger.Info("notification retention pass",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
