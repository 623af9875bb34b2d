package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

const previewMaxRunes = 100

// LedgerService owns message persistence and the conversation counters that
// must move with it. Every write goes through one transaction so the ledger
// and the counters cannot drift.
type LedgerService struct {
	tx        domain.TxManager
	messages  domain.MessageRepository
	convs     domain.ConversationRepository
	publisher EventPublisher
	logger    *slog.Logger
}

func NewLedgerService(tx domain.TxManager, messages domain.MessageRepository, convs domain.ConversationRepository, publisher EventPublisher, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		tx:        tx,
		messages:  messages,
		convs:     convs,
		publisher: publisher,
		logger:    logger.With("service", "ledger"),
	}
}

// Record inserts the message and applies its effect on the conversation:
// message counter, unread counter for inbound, last-message preview. Returns
// ErrDuplicateEntry when the provider message id was already recorded on the
// instance.
func (s *LedgerService) Record(ctx context.Context, msg *domain.Message) error {
	if !msg.Direction.Valid() {
		return fmt.Errorf("%w: invalid direction %q", domain.ErrValidation, msg.Direction)
	}
	if !msg.Type.Valid() {
		return fmt.Errorf("%w: invalid message type %q", domain.ErrValidation, msg.Type)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.messages.Create(ctx, msg); err != nil {
			return err
		}
		inbound := msg.Direction == domain.DirectionInbound
		return s.convs.ApplyMessage(ctx, msg.ConversationID, inbound, Preview(msg), msg.Type, msg.ProviderTimestamp)
	})
	if err != nil {
		return err
	}

	messagesRecorded.WithLabelValues(string(msg.Direction)).Inc()
	if msg.Direction == domain.DirectionInbound {
		s.publisher.MessageReceived(ctx, msg.InstanceID, msg)
	}
	return nil
}

// UpdateStatus applies a delivery report addressed by provider message id.
// Backward moves are dropped silently; an unknown id returns ErrNotFound so
// the webhook pipeline can log the drop.
func (s *LedgerService) UpdateStatus(ctx context.Context, instanceID uuid.UUID, providerMessageID string, status domain.DeliveryStatus, errorMessage string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid delivery status %q", domain.ErrValidation, status)
	}

	// locked read so two concurrent status webhooks for the same message
	// serialize instead of interleaving the check and the write
	var advanced *uuid.UUID
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		msg, err := s.messages.GetByProviderMessageIDLocked(ctx, instanceID, providerMessageID)
		if err != nil {
			return err
		}
		if !msg.Status.CanAdvanceTo(status) {
			s.logger.DebugContext(ctx, "ignoring out-of-order status update",
				"message_id", msg.ID, "current", msg.Status, "reported", status)
			return nil
		}

		var reason *string
		if status == domain.StatusFailed && errorMessage != "" {
			reason = &errorMessage
		}
		if err := s.messages.UpdateDeliveryStatus(ctx, msg.ID, status, reason, time.Now().UTC()); err != nil {
			return err
		}
		advanced = &msg.ID
		return nil
	})
	if err != nil {
		return err
	}
	if advanced != nil {
		s.publisher.MessageStatusChanged(ctx, instanceID, *advanced, status)
	}
	return nil
}

// MarkRead flags the given inbound messages (all unread when ids is empty) as
// read by readerID and resyncs the conversation's unread counter in the same
// transaction. Returns how many messages were flagged.
func (s *LedgerService) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, ids []uuid.UUID) (int64, error) {
	var flagged int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.messages.MarkRead(ctx, conversationID, readerID, ids, time.Now().UTC())
		if err != nil {
			return err
		}
		flagged = n
		return s.convs.ResetUnread(ctx, conversationID)
	})
	return flagged, err
}

// ListMessages pages a conversation's history, newest first.
func (s *LedgerService) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID, limit, offset)
}

// Purge removes a conversation's entire history. Explicit agent action only.
func (s *LedgerService) Purge(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	return s.messages.Purge(ctx, conversationID)
}

// Preview derives the conversation list snippet for a message: text is
// truncated rune-safe, media types get a fixed label, documents show their
// filename.
func Preview(msg *domain.Message) string {
	switch msg.Type {
	case domain.TypeText:
		runes := []rune(msg.Content)
		if len(runes) > previewMaxRunes {
			return string(runes[:previewMaxRunes])
		}
		return msg.Content
	case domain.TypeImage:
		return "[image]"
	case domain.TypeAudio:
		return "[audio]"
	case domain.TypeVideo:
		return "[video]"
	case domain.TypeSticker:
		return "[sticker]"
	case domain.TypeLocation:
		return "[location]"
	case domain.TypeDocument:
		if msg.MediaFilename != "" {
			return "[document] " + msg.MediaFilename
		}
		return "[document]"
	}
	return msg.Content
}
