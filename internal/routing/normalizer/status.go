package normalizer

import (
	"strings"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// mapAckCode maps numeric provider acks onto the canonical delivery set.
// Unrecognized codes default to sent.
func mapAckCode(code int) domain.DeliveryStatus {
	switch code {
	case -1, 5:
		return domain.StatusFailed
	case 1:
		return domain.StatusSent
	case 2:
		return domain.StatusDelivered
	case 3, 4: // 4 is "played" for voice notes
		return domain.StatusRead
	}
	return domain.StatusSent
}

// mapStatusName maps named provider statuses onto the canonical delivery set.
// Unrecognized names default to sent.
func mapStatusName(name string) domain.DeliveryStatus {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sent", "server_ack", "pending_ack":
		return domain.StatusSent
	case "delivered", "delivery_ack", "received":
		return domain.StatusDelivered
	case "read", "read_ack", "viewed", "played":
		return domain.StatusRead
	case "failed", "error", "undeliverable", "rejected":
		return domain.StatusFailed
	}
	return domain.StatusSent
}
