package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the routing state of a conversation.
type ConversationStatus string

const (
	ConversationUnassigned ConversationStatus = "unassigned"
	ConversationAssigned   ConversationStatus = "assigned"
	ConversationInProgress ConversationStatus = "in_progress"
	ConversationResolved   ConversationStatus = "resolved"
	ConversationArchived   ConversationStatus = "archived"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationUnassigned, ConversationAssigned, ConversationInProgress,
		ConversationResolved, ConversationArchived:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to target is a defined
// transition. Archive is reachable from anywhere except archived itself;
// nothing leads out of archived (reopening on inbound is handled explicitly
// by the registry, not by this table).
func (s ConversationStatus) CanTransition(target ConversationStatus) bool {
	if target == ConversationArchived {
		return s != ConversationArchived
	}
	switch s {
	case ConversationUnassigned:
		return target == ConversationAssigned
	case ConversationAssigned:
		return target == ConversationAssigned || // transfer to another agent
			target == ConversationInProgress ||
			target == ConversationResolved
	case ConversationInProgress:
		return target == ConversationResolved
	}
	return false
}

// Conversation is the unit of routing: all messages exchanged with one phone
// number on one instance. Unique per (instance, phone).
type Conversation struct {
	ID              uuid.UUID          `json:"id"`
	InstanceID      uuid.UUID          `json:"instance_id"`
	Phone           string             `json:"phone"`
	DisplayName     string             `json:"display_name,omitempty"`
	ContactID       *uuid.UUID         `json:"contact_id,omitempty"`
	AssignedAgentID *uuid.UUID         `json:"assigned_agent_id,omitempty"`
	Status          ConversationStatus `json:"status"`
	UnreadCount     int                `json:"unread_count"`
	MessageCount    int                `json:"message_count"`
	LastMessageText string             `json:"last_message_text,omitempty"`
	LastMessageType MessageType        `json:"last_message_type,omitempty"`
	LastMessageAt   *time.Time         `json:"last_message_at,omitempty"`
	Archived        bool               `json:"archived"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewConversation creates an unassigned conversation for a phone number that
// has not been seen on this instance before.
func NewConversation(instanceID uuid.UUID, phone, displayName string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:          uuid.New(),
		InstanceID:  instanceID,
		Phone:       phone,
		DisplayName: displayName,
		Status:      ConversationUnassigned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// InstanceStats aggregates conversation counts for one instance.
type InstanceStats struct {
	InstanceID  uuid.UUID                  `json:"instance_id"`
	ByStatus    map[ConversationStatus]int `json:"by_status"`
	TotalUnread int                        `json:"total_unread"`
}

// AgentStats aggregates one agent's current workload on an instance.
type AgentStats struct {
	AgentID       uuid.UUID `json:"agent_id"`
	InstanceID    uuid.UUID `json:"instance_id"`
	AssignedCount int       `json:"assigned_count"`
	ResolvedCount int       `json:"resolved_count"`
	UnreadCount   int       `json:"unread_count"`
}
