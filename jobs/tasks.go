// Package jobs contains the background task definitions and the Asynq
// worker that processes them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail delivers a notification email to an actor.
	TaskTypeSendEmail = "notify:email"
	// TaskTypeRetention purges read notifications past the retention window.
	TaskTypeRetention = "notify:retention"
)

// SendEmailPayload describes the information required to send an email.
// The recipient is referenced by actor id so address changes between
// enqueue and delivery are picked up.
type SendEmailPayload struct {
	RecipientID int64  `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewRetentionTask constructs the periodic retention task.
func NewRetentionTask() *asynq.Task {
	return asynq.NewTask(TaskTypeRetention, nil)
}
