package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// OperationType names an outbound provider operation.
type OperationType string

const (
	OpSendText    OperationType = "send_text"
	OpSendMedia   OperationType = "send_media"
	OpFetchQR     OperationType = "fetch_qr"
	OpFetchStatus OperationType = "fetch_status"
)

func (o OperationType) Valid() bool {
	switch o {
	case OpSendText, OpSendMedia, OpFetchQR, OpFetchStatus:
		return true
	}
	return false
}

// ResponseMapping tells the adapter where to find the outcome in a provider
// response body. Paths are dot-separated. An empty SuccessPath means any 2xx
// response is a success.
type ResponseMapping struct {
	SuccessPath   string `json:"success_path,omitempty"`
	MessageIDPath string `json:"message_id_path,omitempty"`
	ErrorPath     string `json:"error_path,omitempty"`
}

// OperationTemplate is the stored, editable request recipe for one
// (instance, operation) pair. Placeholders of the form {{name}} are rendered
// from the instance and the request data; see tokenSet in adapter.go.
type OperationTemplate struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	Response       ResponseMapping   `json:"response"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	RetryAttempts  int               `json:"retry_attempts"`
}

// Validate rejects templates that would fail at call time. Called when a
// template is saved, so misconfiguration surfaces to the editing admin.
func (t *OperationTemplate) Validate() error {
	switch t.Method {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
	default:
		return fmt.Errorf("%w: unsupported method %q", domain.ErrValidation, t.Method)
	}
	if !strings.Contains(t.URL, "://") && !strings.HasPrefix(t.URL, "{{baseURL}}") {
		return fmt.Errorf("%w: url must be absolute or start with {{baseURL}}", domain.ErrValidation)
	}
	if t.TimeoutSeconds < 0 || t.TimeoutSeconds > 120 {
		return fmt.Errorf("%w: timeout_seconds out of range", domain.ErrValidation)
	}
	if t.RetryAttempts < 0 || t.RetryAttempts > 5 {
		return fmt.Errorf("%w: retry_attempts out of range", domain.ErrValidation)
	}
	if t.Body != "" {
		probe := renderJSON(t.Body, probeTokens(t.Body))
		if !json.Valid([]byte(probe)) {
			return fmt.Errorf("%w: body template does not render to valid JSON", domain.ErrValidation)
		}
	}
	return nil
}

// TemplateStore resolves the stored template for an (instance, operation)
// pair; ErrNotFound when the instance has no override.
type TemplateStore interface {
	Get(ctx context.Context, instanceID uuid.UUID, op OperationType) (*OperationTemplate, error)
	Put(ctx context.Context, instanceID uuid.UUID, op OperationType, t *OperationTemplate) error
}

// renderText substitutes {{name}} placeholders verbatim. Used for URLs and
// header values.
func renderText(tpl string, tokens map[string]string) string {
	for k, v := range tokens {
		tpl = strings.ReplaceAll(tpl, "{{"+k+"}}", v)
	}
	return tpl
}

// renderJSON substitutes {{name}} placeholders with JSON-escaped values so a
// message containing quotes cannot break the body.
func renderJSON(tpl string, tokens map[string]string) string {
	for k, v := range tokens {
		quoted, _ := json.Marshal(v)
		tpl = strings.ReplaceAll(tpl, "{{"+k+"}}", string(quoted[1:len(quoted)-1]))
	}
	return tpl
}

// probeTokens builds a dummy value for every placeholder present in tpl, for
// validation-time rendering.
func probeTokens(tpl string) map[string]string {
	tokens := map[string]string{}
	rest := tpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			break
		}
		tokens[rest[start+2:start+end]] = "probe"
		rest = rest[start+end+2:]
	}
	return tokens
}

// DefaultTemplate returns the built-in recipe for providers with a known API
// so instances work without any stored override.
func DefaultTemplate(kind domain.ProviderKind, op OperationType) (*OperationTemplate, bool) {
	switch kind {
	case domain.ProviderZAPI:
		switch op {
		case OpSendText:
			return &OperationTemplate{
				Method: "POST", URL: "{{baseURL}}/send-text",
				Body:     `{"phone": "{{phone}}", "message": "{{message}}"}`,
				Response: ResponseMapping{MessageIDPath: "messageId"},
			}, true
		case OpSendMedia:
			return &OperationTemplate{
				Method: "POST", URL: "{{baseURL}}/send-document/{{mimeType}}",
				Body:     `{"phone": "{{phone}}", "document": "{{mediaURL}}", "fileName": "{{fileName}}", "caption": "{{caption}}"}`,
				Response: ResponseMapping{MessageIDPath: "messageId"},
			}, true
		case OpFetchQR:
			return &OperationTemplate{
				Method: "GET", URL: "{{baseURL}}/qr-code",
				Response: ResponseMapping{},
			}, true
		case OpFetchStatus:
			return &OperationTemplate{
				Method: "GET", URL: "{{baseURL}}/status",
				Response: ResponseMapping{SuccessPath: "connected"},
			}, true
		}
	case domain.ProviderEvolution:
		switch op {
		case OpSendText:
			return &OperationTemplate{
				Method: "POST", URL: "{{baseURL}}/message/sendText/{{instanceName}}",
				Body:     `{"number": "{{phone}}", "text": "{{message}}"}`,
				Response: ResponseMapping{MessageIDPath: "key.id"},
			}, true
		case OpSendMedia:
			return &OperationTemplate{
				Method: "POST", URL: "{{baseURL}}/message/sendMedia/{{instanceName}}",
				Body:     `{"number": "{{phone}}", "mediatype": "{{mediaKind}}", "media": "{{mediaURL}}", "fileName": "{{fileName}}", "caption": "{{caption}}"}`,
				Response: ResponseMapping{MessageIDPath: "key.id"},
			}, true
		case OpFetchQR:
			return &OperationTemplate{
				Method: "GET", URL: "{{baseURL}}/instance/connect/{{instanceName}}",
				Response: ResponseMapping{MessageIDPath: ""},
			}, true
		case OpFetchStatus:
			return &OperationTemplate{
				Method: "GET", URL: "{{baseURL}}/instance/connectionState/{{instanceName}}",
				Response: ResponseMapping{},
			}, true
		}
	}
	return nil, false
}
