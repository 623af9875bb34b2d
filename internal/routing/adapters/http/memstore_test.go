package http

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// In-memory repositories backing the handler tests, so requests exercise the
// full service stack without a database.

type memTxManager struct{}

func (memTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memStore struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*domain.Instance
	convs     map[uuid.UUID]*domain.Conversation
	messages  map[uuid.UUID]*domain.Message
	bindings  map[uuid.UUID]*domain.AgentBinding
	transfers []*domain.Transfer
	logs      []*domain.WebhookLog
}

func newMemStore() *memStore {
	return &memStore{
		instances: map[uuid.UUID]*domain.Instance{},
		convs:     map[uuid.UUID]*domain.Conversation{},
		messages:  map[uuid.UUID]*domain.Message{},
		bindings:  map[uuid.UUID]*domain.AgentBinding{},
	}
}

type memInstanceRepo struct{ s *memStore }

func (r memInstanceRepo) Create(_ context.Context, inst *domain.Instance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.instances[inst.ID] = inst
	return nil
}

func (r memInstanceRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if inst, ok := r.s.instances[id]; ok {
		return inst, nil
	}
	return nil, domain.ErrNotFound
}

func (r memInstanceRepo) GetByWebhookKey(_ context.Context, key string) (*domain.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inst := range r.s.instances {
		if inst.WebhookKey == key && inst.Active {
			return inst, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memInstanceRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Instance
	for _, inst := range r.s.instances {
		if inst.TenantID == tenantID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (r memInstanceRepo) UpdateConnection(_ context.Context, id uuid.UUID, status domain.ConnectionStatus, phone string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	inst.Connection = status
	if phone != "" {
		inst.PhoneNumber = phone
	}
	return nil
}

func (r memInstanceRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	inst.Active = false
	return nil
}

type memConversationRepo struct{ s *memStore }

func (r memConversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.convs {
		if c.InstanceID == conv.InstanceID && c.Phone == conv.Phone {
			return domain.ErrDuplicateEntry
		}
	}
	r.s.convs[conv.ID] = conv
	return nil
}

func (r memConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.convs[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (r memConversationRepo) GetByIDLocked(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return r.GetByID(ctx, id)
}

func (r memConversationRepo) GetByInstanceAndPhone(_ context.Context, instanceID uuid.UUID, phone string) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.convs {
		if c.InstanceID == instanceID && c.Phone == phone {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memConversationRepo) List(_ context.Context, f domain.ConversationFilter) ([]*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Conversation
	for _, c := range r.s.convs {
		if c.InstanceID != f.InstanceID {
			continue
		}
		if c.Archived && !f.IncludeArchived {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.AssignedAgentID != nil && (c.AssignedAgentID == nil || *c.AssignedAgentID != *f.AssignedAgentID) {
			continue
		}
		if f.UnreadOnly && c.UnreadCount == 0 {
			continue
		}
		if f.Search != "" && !strings.Contains(c.Phone, f.Search) && !strings.Contains(strings.ToLower(c.DisplayName), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r memConversationRepo) ListUnassigned(_ context.Context, instanceID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Conversation
	for _, c := range r.s.convs {
		if c.InstanceID == instanceID && c.Status == domain.ConversationUnassigned && !c.Archived {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memConversationRepo) UpdateAssignment(_ context.Context, id uuid.UUID, agentID *uuid.UUID, status domain.ConversationStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.AssignedAgentID = agentID
	c.Status = status
	c.Archived = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memConversationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ConversationStatus, archived bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = status
	c.Archived = archived
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memConversationRepo) ApplyMessage(_ context.Context, id uuid.UUID, inbound bool, preview string, msgType domain.MessageType, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.MessageCount++
	if inbound {
		c.UnreadCount++
	}
	c.LastMessageText = preview
	c.LastMessageType = msgType
	c.LastMessageAt = &at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memConversationRepo) ResetUnread(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	unread := 0
	for _, m := range r.s.messages {
		if m.ConversationID == id && m.Direction == domain.DirectionInbound && !m.IsRead {
			unread++
		}
	}
	c.UnreadCount = unread
	return nil
}

func (r memConversationRepo) CountAssignedToAgent(_ context.Context, instanceID, agentID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.convs {
		if c.InstanceID == instanceID && c.AssignedAgentID != nil && *c.AssignedAgentID == agentID &&
			(c.Status == domain.ConversationAssigned || c.Status == domain.ConversationInProgress) && !c.Archived {
			n++
		}
	}
	return n, nil
}

func (r memConversationRepo) StatsByInstance(_ context.Context, instanceID uuid.UUID) (*domain.InstanceStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := &domain.InstanceStats{InstanceID: instanceID, ByStatus: map[domain.ConversationStatus]int{}}
	for _, c := range r.s.convs {
		if c.InstanceID != instanceID {
			continue
		}
		stats.ByStatus[c.Status]++
		stats.TotalUnread += c.UnreadCount
	}
	return stats, nil
}

func (r memConversationRepo) StatsByAgent(_ context.Context, instanceID, agentID uuid.UUID) (*domain.AgentStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := &domain.AgentStats{AgentID: agentID, InstanceID: instanceID}
	for _, c := range r.s.convs {
		if c.InstanceID != instanceID || c.AssignedAgentID == nil || *c.AssignedAgentID != agentID {
			continue
		}
		switch c.Status {
		case domain.ConversationAssigned, domain.ConversationInProgress:
			stats.AssignedCount++
		case domain.ConversationResolved:
			stats.ResolvedCount++
		}
		stats.UnreadCount += c.UnreadCount
	}
	return stats, nil
}

type memMessageRepo struct{ s *memStore }

func (r memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if msg.ProviderMessageID != "" {
		for _, m := range r.s.messages {
			if m.InstanceID == msg.InstanceID && m.ProviderMessageID == msg.ProviderMessageID {
				return domain.ErrDuplicateEntry
			}
		}
	}
	r.s.messages[msg.ID] = msg
	return nil
}

func (r memMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.messages[id]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func (r memMessageRepo) GetByProviderMessageID(_ context.Context, instanceID uuid.UUID, providerMessageID string) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.InstanceID == instanceID && m.ProviderMessageID == providerMessageID {
			return m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memMessageRepo) GetByProviderMessageIDLocked(ctx context.Context, instanceID uuid.UUID, providerMessageID string) (*domain.Message, error) {
	return r.GetByProviderMessageID(ctx, instanceID, providerMessageID)
}

func (r memMessageRepo) ListByConversation(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderTimestamp.After(out[j].ProviderTimestamp) })
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memMessageRepo) UpdateDeliveryStatus(_ context.Context, id uuid.UUID, status domain.DeliveryStatus, errorMessage *string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	if status == domain.StatusFailed {
		m.ErrorMessage = errorMessage
	}
	return nil
}

func (r memMessageRepo) SetProviderMessageID(_ context.Context, id uuid.UUID, providerMessageID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.ProviderMessageID = providerMessageID
	return nil
}

func (r memMessageRepo) MarkRead(_ context.Context, conversationID, readerID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := map[uuid.UUID]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var n int64
	for _, m := range r.s.messages {
		if m.ConversationID != conversationID || m.Direction != domain.DirectionInbound || m.IsRead {
			continue
		}
		if len(wanted) > 0 && !wanted[m.ID] {
			continue
		}
		m.IsRead = true
		m.ReadBy = &readerID
		m.ReadAt = &at
		n++
	}
	return n, nil
}

func (r memMessageRepo) Purge(_ context.Context, conversationID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.messages {
		if m.ConversationID == conversationID {
			delete(r.s.messages, id)
			n++
		}
	}
	return n, nil
}

func (r memMessageRepo) CountUnread(_ context.Context, conversationID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && m.Direction == domain.DirectionInbound && !m.IsRead {
			n++
		}
	}
	return n, nil
}

type memBindingRepo struct{ s *memStore }

func (r memBindingRepo) GetByUserAndInstance(_ context.Context, userID, instanceID uuid.UUID) (*domain.AgentBinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bindings {
		if b.UserID == userID && b.InstanceID == instanceID {
			return b, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memBindingRepo) ListByInstance(_ context.Context, instanceID uuid.UUID) ([]*domain.AgentBinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.AgentBinding
	for _, b := range r.s.bindings {
		if b.InstanceID == instanceID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r memBindingRepo) ListEligible(ctx context.Context, instanceID uuid.UUID) ([]*domain.AgentLoad, error) {
	r.s.mu.Lock()
	bindings := make([]*domain.AgentBinding, 0, len(r.s.bindings))
	for _, b := range r.s.bindings {
		if b.InstanceID == instanceID && b.CanReceiveChats && b.AutoAssignNewChats && b.IsOnline {
			bindings = append(bindings, b)
		}
	}
	r.s.mu.Unlock()

	var out []*domain.AgentLoad
	for _, b := range bindings {
		n, _ := memConversationRepo{s: r.s}.CountAssignedToAgent(ctx, instanceID, b.UserID)
		out = append(out, &domain.AgentLoad{Binding: *b, AssignedCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignedCount != out[j].AssignedCount {
			return out[i].AssignedCount < out[j].AssignedCount
		}
		return out[i].Binding.LastActivityAt.Before(out[j].Binding.LastActivityAt)
	})
	return out, nil
}

func (r memBindingRepo) Upsert(_ context.Context, b *domain.AgentBinding) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.bindings[b.ID] = b
	return nil
}

func (r memBindingRepo) TouchActivity(_ context.Context, userID, instanceID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bindings {
		if b.UserID == userID && b.InstanceID == instanceID {
			b.LastActivityAt = at
			return nil
		}
	}
	return domain.ErrNotFound
}

type memTransferRepo struct{ s *memStore }

func (r memTransferRepo) Create(_ context.Context, t *domain.Transfer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.transfers = append(r.s.transfers, t)
	return nil
}

func (r memTransferRepo) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]*domain.Transfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Transfer
	for _, t := range r.s.transfers {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memWebhookLogRepo struct{ s *memStore }

func (r memWebhookLogRepo) Create(_ context.Context, l *domain.WebhookLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.logs = append(r.s.logs, l)
	return nil
}

func (r memWebhookLogRepo) AttachOutcome(_ context.Context, id uuid.UUID, kind domain.EventKind, processed bool, failureReason string, conversationID, messageID *uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.logs {
		if l.ID == id {
			l.EventKind = kind
			l.Processed = processed
			l.FailureReason = failureReason
			l.ConversationID = conversationID
			l.MessageID = messageID
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r memWebhookLogRepo) ListByInstance(_ context.Context, instanceID uuid.UUID, limit int) ([]*domain.WebhookLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.WebhookLog
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		l := r.s.logs[i]
		if l.InstanceID != nil && *l.InstanceID == instanceID {
			out = append(out, l)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
