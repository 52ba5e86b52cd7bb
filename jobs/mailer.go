package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"

	"github.com/atelier-hq/atelier/internal/identity"
	jobmetrics "github.com/atelier-hq/atelier/internal/jobs"
)

// Enqueuer submits email jobs to the queue. It satisfies the notification
// service's mailer contract.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(redisOpts asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpts)}
}

// EnqueueEmail queues a notification email for the actor.
func (e *Enqueuer) EnqueueEmail(ctx context.Context, recipientID int64, subject, body string) error {
	task, err := NewSendEmailTask(SendEmailPayload{RecipientID: recipientID, Subject: subject, Body: body})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
	return err
}

// Close releases client resources.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// SMTPConfig configures the outbound mail dialer.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// SMTPSender delivers mail through the configured relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers one message.
func (s *SMTPSender) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, "", "")
	return d.DialAndSend(m)
}

// ActorResolver resolves an actor id into a full actor.
type ActorResolver interface {
	Resolve(ctx context.Context, id int64) (identity.Actor, error)
}

// MailSender delivers a single message to one address.
type MailSender interface {
	Send(to, subject, body string) error
}

// EmailHandler processes TaskTypeSendEmail tasks.
type EmailHandler struct {
	actors  ActorResolver
	sender  MailSender
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewEmailHandler constructs an EmailHandler.
func NewEmailHandler(actors ActorResolver, sender MailSender, metrics *jobmetrics.Metrics, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{actors: actors, sender: sender, metrics: metrics, logger: logger}
}

// Handle resolves the recipient and sends the email. A recipient deleted
// after enqueue drops the task without retry.
func (h *EmailHandler) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("send_email")
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	actor, err := h.actors.Resolve(ctx, payload.RecipientID)
	if err != nil {
		h.logger.Warn("email recipient unavailable", slog.Int64("recipient_id", payload.RecipientID))
		return tracker.End(asynq.SkipRetry)
	}
	if err := h.sender.Send(actor.Email, payload.Subject, payload.Body); err != nil {
		return tracker.End(fmt.Errorf("jobs: send email: %w", err))
	}
	return tracker.End(nil)
}
