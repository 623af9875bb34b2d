package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentBinding is the membership of one user in one instance, with the
// permission flags and capacity limit the registry and assignment engine
// consult. Mutated by supervisor actions.
type AgentBinding struct {
	ID                 uuid.UUID `json:"id"`
	UserID             uuid.UUID `json:"user_id"`
	InstanceID         uuid.UUID `json:"instance_id"`
	CanReceiveChats    bool      `json:"can_receive_chats"`
	CanSendMessages    bool      `json:"can_send_messages"`
	CanTransferChats   bool      `json:"can_transfer_chats"`
	IsSupervisor       bool      `json:"is_supervisor"`
	MaxConcurrentChats int       `json:"max_concurrent_chats"`
	IsOnline           bool      `json:"is_online"`
	AutoAssignNewChats bool      `json:"auto_assign_new_chats"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AgentLoad pairs a binding with the agent's current assigned-conversation
// count, as read by the assignment engine in one query.
type AgentLoad struct {
	Binding       AgentBinding `json:"binding"`
	AssignedCount int          `json:"assigned_count"`
}

// HasCapacity reports whether the agent can take one more conversation.
func (l AgentLoad) HasCapacity() bool {
	return l.AssignedCount < l.Binding.MaxConcurrentChats
}
