package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transfer is one immutable audit row per assignment or transfer. FromAgentID
// is nil for the initial assignment; ActorID is nil when the assignment
// engine (or a reopen) acted rather than a human.
type Transfer struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	FromAgentID    *uuid.UUID `json:"from_agent_id,omitempty"`
	ToAgentID      *uuid.UUID `json:"to_agent_id,omitempty"`
	ActorID        *uuid.UUID `json:"actor_id,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Note           string     `json:"note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NewTransfer(conversationID uuid.UUID, from, to, actor *uuid.UUID, reason, note string) *Transfer {
	return &Transfer{
		ID:             uuid.New(),
		ConversationID: conversationID,
		FromAgentID:    from,
		ToAgentID:      to,
		ActorID:        actor,
		Reason:         reason,
		Note:           note,
		CreatedAt:      time.Now().UTC(),
	}
}
