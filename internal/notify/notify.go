// Package notify delivers submitter and operator notifications.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"workflowhook/internal/records"
)

// Notification subjects.
const (
	SubjectComplete        = "Workflow Complete"
	SubjectFailed          = "Workflow Failed"
	SubjectLogsAvailable   = "Workflow Logs Available"
	SubjectPipelineFailure = "Submission Pipeline Failed"
)

// Message is one notification to a user or team.
type Message struct {
	Recipient    string `json:"recipient"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	SubmissionID string `json:"submissionId,omitempty"`
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Messenger sends messages through the record API.
type Messenger struct {
	client records.Client
}

// NewMessenger creates a Messenger.
func NewMessenger(client records.Client) *Messenger {
	return &Messenger{client: client}
}

func (m *Messenger) Notify(ctx context.Context, msg Message) error {
	return m.client.SendMessage(ctx, msg.Recipient, msg.Subject, msg.Body)
}

// Mirror receives a copy of every delivered message. Mirrors never block or
// fail the primary delivery.
type Mirror interface {
	Publish(msg Message) error
}

// Fanout delivers through a primary notifier and copies successful
// deliveries to mirrors.
type Fanout struct {
	primary Notifier
	mirrors []Mirror
	metrics MetricsRecorder
	logger  *slog.Logger
}

// MetricsRecorder is an optional interface for recording notification metrics.
type MetricsRecorder interface {
	RecordNotification(ctx context.Context, subject string, err error)
}

// NewFanout creates a Fanout. metrics may be nil.
func NewFanout(primary Notifier, metrics MetricsRecorder, mirrors ...Mirror) *Fanout {
	return &Fanout{
		primary: primary,
		mirrors: mirrors,
		metrics: metrics,
		logger:  slog.With("component", "notify"),
	}
}

func (f *Fanout) Notify(ctx context.Context, msg Message) error {
	err := f.primary.Notify(ctx, msg)
	if f.metrics != nil {
		f.metrics.RecordNotification(ctx, msg.Subject, err)
	}
	if err != nil {
		return err
	}
	f.logger.Info("Notification sent", "recipient", msg.Recipient, "subject", msg.Subject, "submissionId", msg.SubmissionID)
	for _, m := range f.mirrors {
		if err := m.Publish(msg); err != nil && !errors.Is(err, ErrBufferFull) {
			f.logger.Warn("Notification mirror failed", "subject", msg.Subject, "error", err)
		}
	}
	return nil
}
