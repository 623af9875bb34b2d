package domain

import "time"

// EventKind classifies a normalized webhook payload.
type EventKind string

const (
	EventMessage    EventKind = "message"
	EventStatus     EventKind = "status"
	EventConnection EventKind = "connection"
	// EventOther marks an unrecognized payload shape. Logged, not processed;
	// not an error.
	EventOther EventKind = "other"
)

// MessageEvent is a provider-agnostic inbound message.
type MessageEvent struct {
	ProviderMessageID string      `json:"provider_message_id"`
	Phone             string      `json:"phone"`
	SenderName        string      `json:"sender_name,omitempty"`
	Type              MessageType `json:"type"`
	Text              string      `json:"text,omitempty"`
	MediaURL          string      `json:"media_url,omitempty"`
	MediaFilename     string      `json:"media_filename,omitempty"`
	MediaMimeType     string      `json:"media_mime_type,omitempty"`
	MediaSize         int64       `json:"media_size,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
	FromMe            bool        `json:"from_me,omitempty"`
}

// StatusEvent is a provider-agnostic delivery report for one message.
type StatusEvent struct {
	ProviderMessageID string         `json:"provider_message_id"`
	Status            DeliveryStatus `json:"status"`
	ErrorMessage      string         `json:"error_message,omitempty"`
}

// ConnectionEvent reports a change of an instance's provider link.
type ConnectionEvent struct {
	Status ConnectionStatus `json:"status"`
	Phone  string           `json:"phone,omitempty"`
	QRCode string           `json:"qr_code,omitempty"`
}

// CanonicalEvent is the normalizer's output: exactly one of the payload
// fields is set, according to Kind.
type CanonicalEvent struct {
	Kind       EventKind        `json:"kind"`
	Message    *MessageEvent    `json:"message,omitempty"`
	Status     *StatusEvent     `json:"status,omitempty"`
	Connection *ConnectionEvent `json:"connection,omitempty"`
}
