package privacy

import (
	"strings"
	"sync/atomic"

	"github.com/mariovalmir/chatwoot/internal/constants"
)

var disabled atomic.Bool

// SetEnabled toggles masking process wide. Verbose mode turns it off.
func SetEnabled(enabled bool) {
	disabled.Store(!enabled)
}

// MaskPhoneNumber masks a phone number showing only the last digits
// Example: "+5511999887766" -> "+*********7766"
func MaskPhoneNumber(phone string) string {
	if phone == "" || disabled.Load() {
		return phone
	}
	keep := constants.DefaultPhoneMaskLength

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		return "+" + maskString(phone[1:], keep)
	}
	return maskString(phone, keep)
}

// MaskJID masks the node of a WhatsApp address and keeps its server, so
// logs still show whether it was a LID, a group or a user.
// Example: "5511999887766@s.whatsapp.net" -> "*********7766@s.whatsapp.net"
func MaskJID(value string) string {
	if value == "" || disabled.Load() {
		return value
	}
	node, server, ok := strings.Cut(value, "@")
	if !ok {
		return maskString(value, constants.DefaultPhoneMaskLength)
	}
	return maskString(node, constants.DefaultPhoneMaskLength) + "@" + server
}

// MaskMessageID masks a message ID while preserving composite structure
// Example: "true_5511999887766@c.us_3EB0A1B2C3D4" -> "true_*********7766@c.us_********C3D4"
func MaskMessageID(messageID string) string {
	if messageID == "" || disabled.Load() {
		return messageID
	}

	parts := strings.Split(messageID, "_")
	if len(parts) >= 3 && (parts[0] == "true" || parts[0] == "false") {
		out := []string{parts[0], MaskJID(parts[1]), maskString(parts[2], 4)}
		for _, participant := range parts[3:] {
			out = append(out, MaskJID(participant))
		}
		return strings.Join(out, "_")
	}

	return maskString(messageID, constants.DefaultMessageIDLength)
}

// MaskSessionName keeps the last three characters of a gateway session.
func MaskSessionName(sessionName string) string {
	if sessionName == "" || disabled.Load() {
		return sessionName
	}
	return maskString(sessionName, 3)
}

func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "phone_number":
			masked[k] = MaskPhoneNumber(s)
		case "chat_id", "remote_jid", "participant", "lid", "from", "to":
			masked[k] = MaskJID(s)
		case "message_id", "source_id", "external_id":
			masked[k] = MaskMessageID(s)
		case "session":
			masked[k] = MaskSessionName(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
