package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookLog is the raw capture of one inbound webhook delivery. Write-once,
// except for attaching the processing outcome.
type WebhookLog struct {
	ID             uuid.UUID         `json:"id"`
	InstanceID     *uuid.UUID        `json:"instance_id,omitempty"`
	EventKind      EventKind         `json:"event_kind"`
	Payload        json.RawMessage   `json:"payload"`
	Headers        map[string]string `json:"headers,omitempty"`
	Processed      bool              `json:"processed"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	ConversationID *uuid.UUID        `json:"conversation_id,omitempty"`
	MessageID      *uuid.UUID        `json:"message_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func NewWebhookLog(instanceID *uuid.UUID, payload []byte, headers map[string]string) *WebhookLog {
	return &WebhookLog{
		ID:         uuid.New(),
		InstanceID: instanceID,
		EventKind:  EventOther,
		Payload:    json.RawMessage(payload),
		Headers:    headers,
		CreatedAt:  time.Now().UTC(),
	}
}
