package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the CloudEvents type of a mirrored notification.
const EventType = "workflowhook.notification"

// CloudEvent is a CloudEvents 1.0 structured-mode event.
type CloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            Message   `json:"data"`
}

// NewEvent wraps a message. The subject is the submission id when there is
// one, otherwise the recipient.
func NewEvent(source string, msg Message) *CloudEvent {
	subject := msg.SubmissionID
	if subject == "" {
		subject = msg.Recipient
	}
	return &CloudEvent{
		SpecVersion:     "1.0",
		Type:            EventType,
		Source:          source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            msg,
	}
}

// Sign computes the X-Signature-256 value of an event body.
func Sign(event *CloudEvent, key string) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return signature(body, key), nil
}

func signature(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
