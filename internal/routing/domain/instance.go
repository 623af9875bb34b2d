package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProviderKind identifies which messaging provider an instance talks to.
type ProviderKind string

const (
	ProviderZAPI      ProviderKind = "zapi"
	ProviderEvolution ProviderKind = "evolution"
	ProviderCustom    ProviderKind = "custom"
)

func (p ProviderKind) Valid() bool {
	switch p {
	case ProviderZAPI, ProviderEvolution, ProviderCustom:
		return true
	}
	return false
}

// ConnectionStatus is the lifecycle of an instance's link to its provider.
type ConnectionStatus string

const (
	ConnectionInactive     ConnectionStatus = "inactive"
	ConnectionQRPending    ConnectionStatus = "qr_pending"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

// AuthMethod selects how the adapter authenticates against the provider.
type AuthMethod string

const (
	// AuthSession exchanges email/password for a short-lived token.
	AuthSession AuthMethod = "session"
	// AuthToken sends a static token, as a bearer header or query parameter.
	AuthToken AuthMethod = "token"
	// AuthCustom sends the configured headers verbatim.
	AuthCustom AuthMethod = "custom"
)

// AuthConfig is the instance's provider auth material. It is stored as JSONB
// but always round-trips through this struct so malformed configuration is
// caught when the instance is saved, not when a send fails.
type AuthConfig struct {
	Method AuthMethod `json:"method"`

	// Session auth.
	Email         string `json:"email,omitempty"`
	Password      string `json:"password,omitempty"`
	TokenEndpoint string `json:"token_endpoint,omitempty"`

	// Static token auth. TokenIn is "header" or "query"; ParamName is the
	// query parameter name when TokenIn is "query".
	Token     string `json:"token,omitempty"`
	TokenIn   string `json:"token_in,omitempty"`
	ParamName string `json:"param_name,omitempty"`

	// Custom auth headers, sent as-is.
	Headers map[string]string `json:"headers,omitempty"`
}

// Validate rejects auth configurations that could not possibly authenticate.
func (a AuthConfig) Validate() error {
	switch a.Method {
	case AuthSession:
		if a.Email == "" || a.Password == "" || a.TokenEndpoint == "" {
			return fmt.Errorf("%w: session auth requires email, password and token_endpoint", ErrValidation)
		}
	case AuthToken:
		if a.Token == "" {
			return fmt.Errorf("%w: token auth requires a token", ErrValidation)
		}
		if a.TokenIn == "query" && a.ParamName == "" {
			return fmt.Errorf("%w: query token auth requires param_name", ErrValidation)
		}
	case AuthCustom:
		if len(a.Headers) == 0 {
			return fmt.Errorf("%w: custom auth requires at least one header", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown auth method %q", ErrValidation, a.Method)
	}
	return nil
}

// Instance is one tenant-configured messaging line. Never hard-deleted; a
// decommissioned instance is soft-deactivated.
type Instance struct {
	ID            uuid.UUID        `json:"id"`
	TenantID      uuid.UUID        `json:"tenant_id"`
	Name          string           `json:"name"`
	Provider      ProviderKind     `json:"provider"`
	APIBaseURL    string           `json:"api_base_url"`
	Auth          AuthConfig       `json:"auth"`
	WebhookKey    string           `json:"webhook_key"`
	WebhookSecret string           `json:"-"`
	Connection    ConnectionStatus `json:"connection_status"`
	PhoneNumber   string           `json:"phone_number,omitempty"`
	Active        bool             `json:"active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewInstance creates an inactive-connection instance for a tenant.
func NewInstance(tenantID uuid.UUID, name string, provider ProviderKind, apiBaseURL string, auth AuthConfig, webhookSecret string) *Instance {
	now := time.Now().UTC()
	return &Instance{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Name:          name,
		Provider:      provider,
		APIBaseURL:    apiBaseURL,
		Auth:          auth,
		WebhookKey:    uuid.NewString(),
		WebhookSecret: webhookSecret,
		Connection:    ConnectionInactive,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
