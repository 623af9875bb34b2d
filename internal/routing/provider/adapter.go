// Package provider encapsulates outbound HTTP operations against messaging
// providers: per-instance auth, editable request templates and response
// mapping. Provider failures never escape as errors; they come back as a
// typed InvokeResult the caller turns into a failed message.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// InvokeResult is the adapter's typed outcome. OK=false carries the captured
// failure reason; it is not an error return.
type InvokeResult struct {
	OK                bool
	StatusCode        int
	ProviderMessageID string
	ErrorMessage      string
	Body              []byte
}

// Failure wraps a non-OK result in ErrProvider for errors.Is callers.
func (r *InvokeResult) Failure() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrProvider, r.ErrorMessage)
}

// Adapter executes provider operations for instances. Templates come from
// the store with built-in defaults as fallback.
type Adapter struct {
	store          TemplateStore
	auth           *Authenticator
	logger         *slog.Logger
	defaultTimeout time.Duration
}

func NewAdapter(store TemplateStore, auth *Authenticator, logger *slog.Logger, defaultTimeout time.Duration) *Adapter {
	if defaultTimeout <= 0 {
		defaultTimeout = 15 * time.Second
	}
	return &Adapter{
		store:          store,
		auth:           auth,
		logger:         logger.With("component", "provider_adapter"),
		defaultTimeout: defaultTimeout,
	}
}

// Invoke runs one operation. The returned error is non-nil only for
// configuration problems (no template, bad auth config); provider-side
// failures and timeouts come back as InvokeResult{OK: false}.
func (a *Adapter) Invoke(ctx context.Context, inst *domain.Instance, op OperationType, data map[string]string) (*InvokeResult, error) {
	tpl, err := a.resolveTemplate(ctx, inst, op)
	if err != nil {
		return nil, err
	}

	cred, err := a.auth.Credential(ctx, inst)
	if err != nil {
		if errors.Is(err, domain.ErrProvider) {
			// auth endpoint unreachable: a provider failure, not a config one
			return &InvokeResult{OK: false, ErrorMessage: err.Error()}, nil
		}
		return nil, err
	}

	tokens := a.tokenSet(inst, data)
	timeout := a.defaultTimeout
	if tpl.TimeoutSeconds > 0 {
		timeout = time.Duration(tpl.TimeoutSeconds) * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(tpl.RetryAttempts).
		SetRetryWaitTime(500 * time.Millisecond)

	req := client.R().SetContext(ctx)
	for k, v := range tpl.Headers {
		req.SetHeader(k, renderText(v, tokens))
	}
	for k, v := range cred.Headers {
		req.SetHeader(k, v)
	}
	if len(cred.Query) > 0 {
		req.SetQueryParams(cred.Query)
	}
	if tpl.Body != "" {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(renderJSON(tpl.Body, tokens))
	}

	url := renderText(tpl.URL, tokens)
	resp, err := req.Execute(tpl.Method, url)
	if err != nil {
		a.logger.WarnContext(ctx, "provider request failed",
			"instance_id", inst.ID, "operation", string(op), "error", err)
		return &InvokeResult{OK: false, ErrorMessage: err.Error()}, nil
	}

	result := a.mapResponse(resp, tpl.Response)
	if resp.StatusCode() == 401 && inst.Auth.Method == domain.AuthSession {
		a.auth.Invalidate(inst.ID.String())
	}
	if !result.OK {
		a.logger.WarnContext(ctx, "provider returned failure",
			"instance_id", inst.ID, "operation", string(op),
			"status_code", result.StatusCode, "error", result.ErrorMessage)
	}
	return result, nil
}

func (a *Adapter) resolveTemplate(ctx context.Context, inst *domain.Instance, op OperationType) (*OperationTemplate, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, op)
	}
	if a.store != nil {
		tpl, err := a.store.Get(ctx, inst.ID, op)
		if err == nil {
			return tpl, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if tpl, ok := DefaultTemplate(inst.Provider, op); ok {
		return tpl, nil
	}
	return nil, fmt.Errorf("%w: no template configured for %s/%s", domain.ErrValidation, inst.Provider, op)
}

// tokenSet builds the placeholder values available to templates.
func (a *Adapter) tokenSet(inst *domain.Instance, data map[string]string) map[string]string {
	tokens := map[string]string{
		"baseURL":      strings.TrimRight(inst.APIBaseURL, "/"),
		"instanceName": inst.Name,
		"phoneNumber":  inst.PhoneNumber,
	}
	for k, v := range data {
		tokens[k] = v
	}
	return tokens
}

func (a *Adapter) mapResponse(resp *resty.Response, mapping ResponseMapping) *InvokeResult {
	result := &InvokeResult{StatusCode: resp.StatusCode(), Body: resp.Body()}

	var body map[string]any
	_ = json.Unmarshal(resp.Body(), &body)

	result.OK = resp.StatusCode() >= 200 && resp.StatusCode() < 300
	if mapping.SuccessPath != "" && body != nil {
		result.OK = truthy(lookupPath(body, mapping.SuccessPath))
	}

	if mapping.MessageIDPath != "" && body != nil {
		switch v := lookupPath(body, mapping.MessageIDPath).(type) {
		case string:
			result.ProviderMessageID = v
		case float64:
			result.ProviderMessageID = fmt.Sprintf("%.0f", v)
		}
	}

	if !result.OK {
		if mapping.ErrorPath != "" && body != nil {
			if msg, ok := lookupPath(body, mapping.ErrorPath).(string); ok && msg != "" {
				result.ErrorMessage = msg
				return result
			}
		}
		result.ErrorMessage = fmt.Sprintf("provider returned status %d", resp.StatusCode())
	}
	return result
}

func lookupPath(body map[string]any, path string) any {
	var cur any = body
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "success" || t == "ok" || t == "connected"
	case float64:
		return t != 0
	}
	return false
}
