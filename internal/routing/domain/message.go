package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageDirection distinguishes contact-originated from agent-originated
// messages.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

func (d MessageDirection) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// MessageType is the canonical content type across providers.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
	TypeSticker  MessageType = "sticker"
	TypeLocation MessageType = "location"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeDocument, TypeSticker, TypeLocation:
		return true
	}
	return false
}

// DeliveryStatus is the message delivery lifecycle. sent/delivered/read only
// move forward; failed is terminal and reachable from any non-terminal state.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// rank orders the forward progression. failed has no rank; it is handled as
// the terminal absorbing state.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return -1
}

// CanAdvanceTo reports whether a status update from s to target should be
// applied. Backward moves are ignored by callers, not erred.
func (s DeliveryStatus) CanAdvanceTo(target DeliveryStatus) bool {
	if s == StatusFailed {
		return false
	}
	if target == StatusFailed {
		return true
	}
	return target.rank() > s.rank()
}

// Message belongs to exactly one conversation. ProviderMessageID is unique
// per instance and is the idempotency key for webhook redelivery.
type Message struct {
	ID                uuid.UUID        `json:"id"`
	ConversationID    uuid.UUID        `json:"conversation_id"`
	InstanceID        uuid.UUID        `json:"instance_id"`
	ProviderMessageID string           `json:"provider_message_id,omitempty"`
	Direction         MessageDirection `json:"direction"`
	Type              MessageType      `json:"type"`
	Content           string           `json:"content,omitempty"`
	MediaURL          string           `json:"media_url,omitempty"`
	MediaFilename     string           `json:"media_filename,omitempty"`
	MediaMimeType     string           `json:"media_mime_type,omitempty"`
	MediaSize         int64            `json:"media_size,omitempty"`
	Status            DeliveryStatus   `json:"status"`
	ErrorMessage      *string          `json:"error_message,omitempty"`
	IsRead            bool             `json:"is_read"`
	ReadBy            *uuid.UUID       `json:"read_by,omitempty"`
	SenderAgentID     *uuid.UUID       `json:"sender_agent_id,omitempty"`
	SenderName        string           `json:"sender_name,omitempty"`
	ProviderTimestamp time.Time        `json:"provider_timestamp"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time       `json:"delivered_at,omitempty"`
	ReadAt            *time.Time       `json:"read_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewMessage creates a message in its initial delivery state: inbound
// messages are already sent from the provider's perspective, outbound ones
// start pending until the provider accepts them.
func NewMessage(conversationID, instanceID uuid.UUID, direction MessageDirection, msgType MessageType) *Message {
	now := time.Now().UTC()
	status := StatusPending
	if direction == DirectionInbound {
		status = StatusSent
	}
	return &Message{
		ID:                uuid.New(),
		ConversationID:    conversationID,
		InstanceID:        instanceID,
		Direction:         direction,
		Type:              msgType,
		Status:            status,
		ProviderTimestamp: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
