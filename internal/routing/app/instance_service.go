package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/provider"
)

// InstanceService manages the tenant's messaging lines: creation with auth
// validation, soft deactivation, template overrides and the QR/status
// passthrough to the provider.
type InstanceService struct {
	instances domain.InstanceRepository
	templates provider.TemplateStore
	invoker   ProviderInvoker
	logger    *slog.Logger
}

func NewInstanceService(instances domain.InstanceRepository, templates provider.TemplateStore, invoker ProviderInvoker, logger *slog.Logger) *InstanceService {
	return &InstanceService{
		instances: instances,
		templates: templates,
		invoker:   invoker,
		logger:    logger.With("service", "instance"),
	}
}

// Create validates and persists a new instance. The generated webhook key
// addresses the ingress endpoint for this line.
func (s *InstanceService) Create(ctx context.Context, tenantID uuid.UUID, name string, kind domain.ProviderKind, apiBaseURL string, auth domain.AuthConfig, webhookSecret string) (*domain.Instance, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: instance name is required", domain.ErrValidation)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, kind)
	}
	if apiBaseURL == "" {
		return nil, fmt.Errorf("%w: api_base_url is required", domain.ErrValidation)
	}
	if err := auth.Validate(); err != nil {
		return nil, err
	}

	inst := domain.NewInstance(tenantID, name, kind, apiBaseURL, auth, webhookSecret)
	if err := s.instances.Create(ctx, inst); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "instance created", "instance_id", inst.ID, "provider", kind)
	return inst, nil
}

func (s *InstanceService) Get(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	return s.instances.GetByID(ctx, id)
}

func (s *InstanceService) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Instance, error) {
	return s.instances.ListByTenant(ctx, tenantID)
}

// Deactivate soft-disables the instance; its webhook key stops resolving.
func (s *InstanceService) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.instances.Deactivate(ctx, id)
}

// FetchQR asks the provider for the pairing QR code and flips the instance to
// qr_pending. The raw provider body is returned for the UI to render.
func (s *InstanceService) FetchQR(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.invoker.Invoke(ctx, inst, provider.OpFetchQR, nil)
	if err != nil {
		return nil, err
	}
	providerInvocations.WithLabelValues(string(provider.OpFetchQR), outcomeLabel(result.OK)).Inc()
	if !result.OK {
		return nil, result.Failure()
	}
	if err := s.instances.UpdateConnection(ctx, id, domain.ConnectionQRPending, ""); err != nil {
		s.logger.WarnContext(ctx, "error updating connection status", "instance_id", id, "error", err)
	}
	return json.RawMessage(result.Body), nil
}

// FetchStatus queries the provider's live connection state without mutating
// the stored one; connection webhooks own that.
func (s *InstanceService) FetchStatus(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.invoker.Invoke(ctx, inst, provider.OpFetchStatus, nil)
	if err != nil {
		return nil, err
	}
	providerInvocations.WithLabelValues(string(provider.OpFetchStatus), outcomeLabel(result.OK)).Inc()
	if !result.OK {
		return nil, result.Failure()
	}
	return json.RawMessage(result.Body), nil
}

// PutTemplate validates and stores an operation template override for one
// instance.
func (s *InstanceService) PutTemplate(ctx context.Context, instanceID uuid.UUID, op provider.OperationType, tpl *provider.OperationTemplate) error {
	if !op.Valid() {
		return fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, op)
	}
	if err := tpl.Validate(); err != nil {
		return err
	}
	if _, err := s.instances.GetByID(ctx, instanceID); err != nil {
		return err
	}
	return s.templates.Put(ctx, instanceID, op, tpl)
}
