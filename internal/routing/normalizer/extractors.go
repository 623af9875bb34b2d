package normalizer

import (
	"time"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// zapiExtractor understands Z-API's flat callbacks: inbound messages carry
// messageId/phone at the top level, delivery reports carry ack codes with an
// ids list. Anything else falls back to the generic cascade.
type zapiExtractor struct{}

func (zapiExtractor) extract(m map[string]any, receivedAt time.Time) *domain.CanonicalEvent {
	if _, hasID := m["messageId"]; hasID {
		if _, hasAck := m["ack"]; !hasAck {
			if _, hasPhone := m["phone"]; hasPhone {
				return &domain.CanonicalEvent{Kind: domain.EventMessage, Message: messageFrom(m, m, receivedAt)}
			}
		}
	}
	if _, hasAck := m["ack"]; hasAck {
		if ev := statusFrom(m); ev != nil {
			return ev
		}
	}
	return genericExtractor{}.extract(m, receivedAt)
}

// evolutionExtractor understands Evolution API's event envelopes
// (messages.upsert / messages.update / connection.update with a data object).
// Anything else falls back to the generic cascade.
type evolutionExtractor struct{}

func (evolutionExtractor) extract(m map[string]any, receivedAt time.Time) *domain.CanonicalEvent {
	event := firstString(m, []string{"event"})
	data, _ := firstMap(m, []string{"data"})

	switch event {
	case "messages.upsert":
		if data == nil {
			return nil
		}
		msgObj, ok := firstMap(data, []string{"message"})
		if !ok {
			msgObj = data
		}
		ev := messageFrom(data, msgObj, receivedAt)
		if ev.ProviderMessageID == "" {
			ev.ProviderMessageID = firstString(data, []string{"key", "id"})
		}
		if ev.Phone == "" {
			ev.Phone = phoneFromJID(firstString(data, []string{"key", "remoteJid"}))
		}
		return &domain.CanonicalEvent{Kind: domain.EventMessage, Message: ev}

	case "messages.update":
		if data == nil {
			return nil
		}
		st := &domain.StatusEvent{
			ProviderMessageID: firstString(data, []string{"keyId"}, []string{"key", "id"}, []string{"messageId"}),
		}
		if code, ok := numberField(data, "status", "ack"); ok {
			st.Status = mapAckCode(code)
		} else {
			st.Status = mapStatusName(firstString(data, []string{"status"}, []string{"update", "status"}))
		}
		st.ErrorMessage = firstString(data, []string{"error"})
		if st.ProviderMessageID == "" {
			return nil
		}
		return &domain.CanonicalEvent{Kind: domain.EventStatus, Status: st}

	case "connection.update":
		state := firstString(data, []string{"state"}, []string{"connection"})
		conn := &domain.ConnectionEvent{Phone: phoneFromJID(firstString(data, []string{"wid"}, []string{"number"}))}
		switch state {
		case "open":
			conn.Status = domain.ConnectionConnected
		case "close":
			conn.Status = domain.ConnectionDisconnected
		case "connecting":
			conn.Status = domain.ConnectionQRPending
		default:
			conn.Status = domain.ConnectionError
		}
		return &domain.CanonicalEvent{Kind: domain.EventConnection, Connection: conn}

	case "qrcode.updated":
		qr := firstString(data, []string{"qrcode", "code"}, []string{"qrcode"}, []string{"qr"})
		if qr == "" {
			return nil
		}
		return &domain.CanonicalEvent{Kind: domain.EventConnection, Connection: &domain.ConnectionEvent{
			Status: domain.ConnectionQRPending, QRCode: qr,
		}}
	}
	return genericExtractor{}.extract(m, receivedAt)
}
