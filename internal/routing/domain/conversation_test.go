package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestConversationStatusCanTransition(t *testing.T) {
	tests := []struct {
		from   ConversationStatus
		to     ConversationStatus
		expect bool
	}{
		{ConversationUnassigned, ConversationAssigned, true},
		{ConversationUnassigned, ConversationInProgress, false},
		{ConversationUnassigned, ConversationResolved, false},
		{ConversationAssigned, ConversationAssigned, true}, // transfer
		{ConversationAssigned, ConversationInProgress, true},
		{ConversationAssigned, ConversationResolved, true},
		{ConversationInProgress, ConversationResolved, true},
		{ConversationInProgress, ConversationAssigned, false},
		{ConversationResolved, ConversationAssigned, false},
		{ConversationUnassigned, ConversationArchived, true},
		{ConversationAssigned, ConversationArchived, true},
		{ConversationInProgress, ConversationArchived, true},
		{ConversationResolved, ConversationArchived, true},
		{ConversationArchived, ConversationArchived, false},
		{ConversationArchived, ConversationAssigned, false},
		{ConversationArchived, ConversationUnassigned, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestNewConversationDefaults(t *testing.T) {
	instID := uuid.New()
	conv := NewConversation(instID, "5511999998888", "Maria")

	assert.Equal(t, ConversationUnassigned, conv.Status)
	assert.Nil(t, conv.AssignedAgentID)
	assert.Zero(t, conv.UnreadCount)
	assert.Zero(t, conv.MessageCount)
	assert.False(t, conv.Archived)
	assert.Equal(t, instID, conv.InstanceID)
}

func TestAuthConfigValidate(t *testing.T) {
	t.Run("session requires credentials", func(t *testing.T) {
		err := AuthConfig{Method: AuthSession, Email: "a@b.c"}.Validate()
		assert.ErrorIs(t, err, ErrValidation)

		err = AuthConfig{Method: AuthSession, Email: "a@b.c", Password: "pw", TokenEndpoint: "https://api/token"}.Validate()
		assert.NoError(t, err)
	})

	t.Run("query token requires param name", func(t *testing.T) {
		err := AuthConfig{Method: AuthToken, Token: "tk", TokenIn: "query"}.Validate()
		assert.ErrorIs(t, err, ErrValidation)

		err = AuthConfig{Method: AuthToken, Token: "tk", TokenIn: "query", ParamName: "token"}.Validate()
		assert.NoError(t, err)
	})

	t.Run("custom requires headers", func(t *testing.T) {
		err := AuthConfig{Method: AuthCustom}.Validate()
		assert.ErrorIs(t, err, ErrValidation)

		err = AuthConfig{Method: AuthCustom, Headers: map[string]string{"X-Key": "v"}}.Validate()
		assert.NoError(t, err)
	})

	t.Run("unknown method", func(t *testing.T) {
		err := AuthConfig{Method: "oauth"}.Validate()
		assert.ErrorIs(t, err, ErrValidation)
	})
}
