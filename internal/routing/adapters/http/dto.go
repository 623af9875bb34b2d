package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/provider"
)

var validate = validator.New()

// decodeValid decodes the request body into dst and runs struct validation.
func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

type createInstanceRequest struct {
	TenantID      uuid.UUID           `json:"tenant_id" validate:"required"`
	Name          string              `json:"name" validate:"required,max=100"`
	Provider      domain.ProviderKind `json:"provider" validate:"required"`
	APIBaseURL    string              `json:"api_base_url" validate:"required,url"`
	Auth          domain.AuthConfig   `json:"auth" validate:"required"`
	WebhookSecret string              `json:"webhook_secret,omitempty"`
}

type putTemplateRequest struct {
	Template provider.OperationTemplate `json:"template" validate:"required"`
}

type assignRequest struct {
	AgentID uuid.UUID `json:"agent_id" validate:"required"`
}

type transferRequest struct {
	ToAgentID uuid.UUID `json:"to_agent_id" validate:"required"`
	Reason    string    `json:"reason,omitempty" validate:"max=200"`
	Note      string    `json:"note,omitempty" validate:"max=1000"`
}

type markReadRequest struct {
	MessageIDs []uuid.UUID `json:"message_ids,omitempty"`
}

type sendTextRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
}

type sendMediaRequest struct {
	Type          domain.MessageType `json:"type" validate:"required"`
	MediaURL      string             `json:"media_url" validate:"required,url"`
	MediaFilename string             `json:"media_filename,omitempty" validate:"max=255"`
	MediaMimeType string             `json:"media_mime_type,omitempty" validate:"max=100"`
	MediaSize     int64              `json:"media_size,omitempty" validate:"min=0"`
	Caption       string             `json:"caption,omitempty" validate:"max=1024"`
}

type updateBindingRequest struct {
	CanReceiveChats    *bool `json:"can_receive_chats,omitempty"`
	CanSendMessages    *bool `json:"can_send_messages,omitempty"`
	CanTransferChats   *bool `json:"can_transfer_chats,omitempty"`
	IsSupervisor       *bool `json:"is_supervisor,omitempty"`
	MaxConcurrentChats *int  `json:"max_concurrent_chats,omitempty" validate:"omitempty,min=0,max=100"`
	AutoAssignNewChats *bool `json:"auto_assign_new_chats,omitempty"`
}

type presenceRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type autoAssignRequest struct {
	BatchSize int `json:"batch_size,omitempty" validate:"min=0,max=100"`
}
