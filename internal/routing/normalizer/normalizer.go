// Package normalizer converts heterogeneous provider webhook payloads into
// canonical message / delivery-status / connection events. Parsing is pure:
// no I/O, no persistence.
package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

type Normalizer struct {
	countryCode string
	extractors  map[domain.ProviderKind]extractor
}

// New builds a normalizer. countryCode is prepended to national phone
// numbers, see NormalizePhone.
func New(countryCode string) *Normalizer {
	return &Normalizer{
		countryCode: countryCode,
		extractors: map[domain.ProviderKind]extractor{
			domain.ProviderZAPI:      zapiExtractor{},
			domain.ProviderEvolution: evolutionExtractor{},
		},
	}
}

// Normalize classifies and extracts one webhook payload. An unrecognized
// shape yields an EventOther event, not an error; a message or status event
// missing its required identifiers is rejected with ErrValidation.
func (n *Normalizer) Normalize(provider domain.ProviderKind, payload []byte, receivedAt time.Time) (*domain.CanonicalEvent, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %v", domain.ErrValidation, err)
	}

	ex, ok := n.extractors[provider]
	if !ok {
		ex = genericExtractor{}
	}
	ev := ex.extract(m, receivedAt)
	if ev == nil {
		return &domain.CanonicalEvent{Kind: domain.EventOther}, nil
	}

	switch ev.Kind {
	case domain.EventMessage:
		if ev.Message.ProviderMessageID == "" || ev.Message.Phone == "" {
			return nil, fmt.Errorf("%w: invalid message data", domain.ErrValidation)
		}
		ev.Message.Phone = NormalizePhone(ev.Message.Phone, n.countryCode)
		if ev.Message.Timestamp.IsZero() {
			ev.Message.Timestamp = receivedAt
		}
		if !ev.Message.Type.Valid() {
			ev.Message.Type = domain.TypeText
		}
	case domain.EventStatus:
		if ev.Status.ProviderMessageID == "" {
			return nil, fmt.Errorf("%w: invalid status data", domain.ErrValidation)
		}
	}
	return ev, nil
}

// extractor is the per-provider strategy. Returning nil means the shape was
// not recognized.
type extractor interface {
	extract(m map[string]any, receivedAt time.Time) *domain.CanonicalEvent
}

// genericExtractor handles the common payload shapes shared by providers and
// serves custom integrations: a nested data.message/message object is a
// message event, data.ack/messageStatus is a delivery report, and
// qr/connected/ready markers are connection updates.
type genericExtractor struct{}

func (genericExtractor) extract(m map[string]any, receivedAt time.Time) *domain.CanonicalEvent {
	if msgObj, ok := firstMap(m, []string{"data", "message"}, []string{"message"}); ok {
		return &domain.CanonicalEvent{Kind: domain.EventMessage, Message: messageFrom(m, msgObj, receivedAt)}
	}
	if ev := statusFrom(m); ev != nil {
		return ev
	}
	if ev := connectionFrom(m); ev != nil {
		return ev
	}
	return nil
}

// messageFrom assembles a message event from a payload and its message
// object, trying the field spellings of every supported provider.
func messageFrom(root, msgObj map[string]any, receivedAt time.Time) *domain.MessageEvent {
	ev := &domain.MessageEvent{
		ProviderMessageID: firstString(msgObj, []string{"id"}, []string{"key", "id"}, []string{"messageId"}),
		Phone:             firstString(msgObj, []string{"phone"}, []string{"from"}, []string{"chatId"}, []string{"key", "remoteJid"}),
		SenderName:        firstString(msgObj, []string{"senderName"}, []string{"pushName"}, []string{"notifyName"}, []string{"sender", "name"}),
	}
	if ev.ProviderMessageID == "" {
		ev.ProviderMessageID = firstString(root, []string{"messageId"}, []string{"data", "messageId"}, []string{"id"})
	}
	if ev.Phone == "" {
		ev.Phone = firstString(root, []string{"phone"}, []string{"from"}, []string{"data", "phone"})
	}
	ev.Phone = phoneFromJID(ev.Phone)
	if ev.SenderName == "" {
		ev.SenderName = firstString(root, []string{"senderName"}, []string{"pushName"}, []string{"data", "pushName"})
	}
	if v, ok := firstValue(msgObj, []string{"fromMe"}, []string{"key", "fromMe"}); ok {
		ev.FromMe, _ = v.(bool)
	}
	fillContent(ev, msgObj)
	if ts := firstTimestamp(msgObj, root); !ts.IsZero() {
		ev.Timestamp = ts
	} else {
		ev.Timestamp = receivedAt
	}
	return ev
}

func statusFrom(m map[string]any) *domain.CanonicalEvent {
	ackVal, ackOK := firstValue(m, []string{"data", "ack"}, []string{"ack"})
	statusName := firstString(m, []string{"messageStatus"}, []string{"data", "messageStatus"})
	if !ackOK && statusName == "" {
		return nil
	}

	ev := &domain.StatusEvent{}
	switch ack := ackVal.(type) {
	case map[string]any:
		ev.ProviderMessageID = firstString(ack, []string{"id"}, []string{"messageId"})
		if code, ok := numberField(ack, "ack", "status", "code"); ok {
			ev.Status = mapAckCode(code)
		} else {
			ev.Status = mapStatusName(firstString(ack, []string{"status"}))
		}
		ev.ErrorMessage = firstString(ack, []string{"error"})
	case float64:
		ev.Status = mapAckCode(int(ack))
	default:
		ev.Status = mapStatusName(statusName)
	}

	if ev.ProviderMessageID == "" {
		ev.ProviderMessageID = firstString(m, []string{"messageId"}, []string{"id"}, []string{"data", "messageId"}, []string{"data", "id"})
	}
	if ev.ProviderMessageID == "" {
		if ids, ok := firstValue(m, []string{"ids"}, []string{"data", "ids"}); ok {
			if list, ok := ids.([]any); ok && len(list) > 0 {
				ev.ProviderMessageID, _ = list[0].(string)
			}
		}
	}
	if ev.ErrorMessage == "" {
		ev.ErrorMessage = firstString(m, []string{"error"}, []string{"data", "error"})
	}
	return &domain.CanonicalEvent{Kind: domain.EventStatus, Status: ev}
}

func connectionFrom(m map[string]any) *domain.CanonicalEvent {
	phone := firstString(m, []string{"phone"}, []string{"wid"}, []string{"number"}, []string{"data", "phone"})

	if qr := firstString(m, []string{"qr"}, []string{"qrcode"}, []string{"data", "qr"}); qr != "" {
		return &domain.CanonicalEvent{Kind: domain.EventConnection, Connection: &domain.ConnectionEvent{
			Status: domain.ConnectionQRPending, QRCode: qr, Phone: phone,
		}}
	}
	if v, ok := firstValue(m, []string{"connected"}, []string{"data", "connected"}); ok {
		if connected, isBool := v.(bool); isBool {
			status := domain.ConnectionDisconnected
			if connected {
				status = domain.ConnectionConnected
			}
			return &domain.CanonicalEvent{Kind: domain.EventConnection, Connection: &domain.ConnectionEvent{
				Status: status, Phone: phone,
			}}
		}
	}
	if v, ok := firstValue(m, []string{"ready"}, []string{"data", "ready"}); ok {
		if ready, isBool := v.(bool); isBool && ready {
			return &domain.CanonicalEvent{Kind: domain.EventConnection, Connection: &domain.ConnectionEvent{
				Status: domain.ConnectionConnected, Phone: phone,
			}}
		}
	}
	return nil
}

// fillContent resolves the canonical type, text content and media reference
// out of the message object.
func fillContent(ev *domain.MessageEvent, msgObj map[string]any) {
	for name, mt := range mediaKinds {
		media, ok := firstMap(msgObj, []string{name}, []string{name + "Message"})
		if !ok {
			continue
		}
		ev.Type = mt
		ev.MediaURL = firstString(media, []string{"url"}, []string{"mediaUrl"}, []string{"imageUrl"}, []string{"documentUrl"})
		ev.MediaFilename = firstString(media, []string{"fileName"}, []string{"filename"}, []string{"title"})
		ev.MediaMimeType = firstString(media, []string{"mimeType"}, []string{"mimetype"})
		if size, ok := numberField(media, "fileLength", "size", "fileSize"); ok {
			ev.MediaSize = int64(size)
		}
		ev.Text = firstString(media, []string{"caption"})
		return
	}

	if textObj, ok := firstMap(msgObj, []string{"text"}); ok {
		ev.Type = domain.TypeText
		ev.Text = firstString(textObj, []string{"message"}, []string{"body"})
		return
	}
	ev.Type = typeFromName(firstString(msgObj, []string{"type"}, []string{"messageType"}))
	ev.Text = firstString(msgObj, []string{"conversation"}, []string{"body"}, []string{"text"}, []string{"caption"},
		[]string{"extendedTextMessage", "text"})
}

var mediaKinds = map[string]domain.MessageType{
	"image":    domain.TypeImage,
	"audio":    domain.TypeAudio,
	"video":    domain.TypeVideo,
	"document": domain.TypeDocument,
	"sticker":  domain.TypeSticker,
	"location": domain.TypeLocation,
}

func typeFromName(name string) domain.MessageType {
	switch name {
	case "chat", "text", "conversation", "extendedTextMessage", "":
		return domain.TypeText
	case "image", "imageMessage":
		return domain.TypeImage
	case "audio", "audioMessage", "ptt":
		return domain.TypeAudio
	case "video", "videoMessage":
		return domain.TypeVideo
	case "document", "documentMessage":
		return domain.TypeDocument
	case "sticker", "stickerMessage":
		return domain.TypeSticker
	case "location", "locationMessage":
		return domain.TypeLocation
	}
	return domain.TypeText
}

// --- payload traversal helpers ---

func dig(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func firstValue(m map[string]any, paths ...[]string) (any, bool) {
	for _, p := range paths {
		if v, ok := dig(m, p...); ok {
			return v, true
		}
	}
	return nil, false
}

func firstMap(m map[string]any, paths ...[]string) (map[string]any, bool) {
	for _, p := range paths {
		if v, ok := dig(m, p...); ok {
			if obj, isMap := v.(map[string]any); isMap {
				return obj, true
			}
		}
	}
	return nil, false
}

func firstString(m map[string]any, paths ...[]string) string {
	for _, p := range paths {
		v, ok := dig(m, p...)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", s)
		}
	}
	return ""
}

func numberField(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return int(n), true
			case string:
				var parsed float64
				if _, err := fmt.Sscanf(n, "%f", &parsed); err == nil {
					return int(parsed), true
				}
			}
		}
	}
	return 0, false
}

// firstTimestamp reads a provider timestamp in seconds or milliseconds from
// the message object or the payload root.
func firstTimestamp(objs ...map[string]any) time.Time {
	for _, m := range objs {
		if n, ok := numberField(m, "timestamp", "messageTimestamp", "momment", "moment"); ok && n > 0 {
			if n > 1_000_000_000_000 { // milliseconds
				return time.UnixMilli(int64(n)).UTC()
			}
			return time.Unix(int64(n), 0).UTC()
		}
	}
	return time.Time{}
}
