package normalizer

import "strings"

// NormalizePhone canonicalizes a phone number deterministically:
// non-digits are stripped; a national trunk prefix "0" is dropped; national
// numbers (10 or 11 digits) get the configured country code prepended;
// anything else passes through as digits.
//
//	"011987654321"  -> "5511987654321"
//	"1198765432"    -> "551198765432"
//	"5511987654321" -> "5511987654321"
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if (len(digits) == 11 || len(digits) == 12) && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) == 10 || len(digits) == 11 {
		return countryCode + digits
	}
	return digits
}

// phoneFromJID extracts the number part of a WhatsApp JID such as
// "5511999998888@s.whatsapp.net" or "5511999998888@c.us".
func phoneFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
