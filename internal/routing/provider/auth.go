package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// Credential is the resolved auth material for one provider call.
type Credential struct {
	Headers map[string]string
	Query   map[string]string
}

// Authenticator resolves an instance's auth configuration into a credential.
// Session tokens are cached per instance and reused while valid.
type Authenticator struct {
	cache    *gocache.Cache
	client   *resty.Client
	logger   *slog.Logger
	tokenTTL time.Duration
}

func NewAuthenticator(logger *slog.Logger) *Authenticator {
	return &Authenticator{
		cache:    gocache.New(30*time.Minute, 10*time.Minute),
		client:   resty.New().SetTimeout(10 * time.Second),
		logger:   logger.With("component", "provider_auth"),
		tokenTTL: 30 * time.Minute,
	}
}

// Credential resolves auth for the instance. For session auth it exchanges
// email/password at the configured endpoint once and serves the cached token
// afterwards.
func (a *Authenticator) Credential(ctx context.Context, inst *domain.Instance) (*Credential, error) {
	switch inst.Auth.Method {
	case domain.AuthToken:
		if inst.Auth.TokenIn == "query" {
			return &Credential{Query: map[string]string{inst.Auth.ParamName: inst.Auth.Token}}, nil
		}
		return &Credential{Headers: map[string]string{"Authorization": "Bearer " + inst.Auth.Token}}, nil

	case domain.AuthCustom:
		headers := make(map[string]string, len(inst.Auth.Headers))
		for k, v := range inst.Auth.Headers {
			headers[k] = v
		}
		return &Credential{Headers: headers}, nil

	case domain.AuthSession:
		token, err := a.sessionToken(ctx, inst)
		if err != nil {
			return nil, err
		}
		return &Credential{Headers: map[string]string{"Authorization": "Bearer " + token}}, nil
	}
	return nil, fmt.Errorf("%w: unknown auth method %q", domain.ErrValidation, inst.Auth.Method)
}

// Invalidate drops a cached session token, forcing re-authentication on the
// next call. Used after the provider answers 401.
func (a *Authenticator) Invalidate(instanceID string) {
	a.cache.Delete(instanceID)
}

func (a *Authenticator) sessionToken(ctx context.Context, inst *domain.Instance) (string, error) {
	key := inst.ID.String()
	if cached, ok := a.cache.Get(key); ok {
		return cached.(string), nil
	}

	var body map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": inst.Auth.Email, "password": inst.Auth.Password}).
		SetResult(&body).
		Post(inst.Auth.TokenEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: session token exchange: %v", domain.ErrProvider, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: session token exchange returned %d", domain.ErrProvider, resp.StatusCode())
	}

	token := firstTokenField(body)
	if token == "" {
		return "", fmt.Errorf("%w: session token missing in response", domain.ErrProvider)
	}

	a.cache.Set(key, token, a.tokenTTL)
	a.logger.DebugContext(ctx, "session token refreshed", "instance_id", key)
	return token, nil
}

func firstTokenField(body map[string]any) string {
	for _, key := range []string{"token", "access_token", "accessToken"} {
		if v, ok := body[key].(string); ok && v != "" {
			return v
		}
	}
	if data, ok := body["data"].(map[string]any); ok {
		return firstTokenField(data)
	}
	return ""
}
