// Package jid classifies and normalizes WhatsApp addresses.
//
// Two families exist: plain identifiers derived from a phone number
// (5511999@s.whatsapp.net, 5511999@c.us) or a group (120363...@g.us), and
// opaque linked identifiers (123456@lid) that carry no phone information.
package jid

import (
	"regexp"
	"strings"
)

const (
	ServerUser       = "s.whatsapp.net"
	ServerLegacyUser = "c.us"
	ServerGroup      = "g.us"
	ServerLID        = "lid"
	ServerBroadcast  = "broadcast"
	ServerNewsletter = "newsletter"
	ServerCall       = "call"
)

// Kind is the chat category a JID addresses
type Kind string

const (
	KindUser       Kind = "user"
	KindGroup      Kind = "group"
	KindStatus     Kind = "status"
	KindBroadcast  Kind = "broadcast"
	KindNewsletter Kind = "newsletter"
	KindCall       Kind = "call"
	KindUnknown    Kind = "unknown"
)

var boolPrefix = regexp.MustCompile(`(?i)^(true|false)_`)

// Server returns the domain part of a JID, or "" when there is none.
func Server(value string) string {
	_, server, ok := strings.Cut(strings.TrimSpace(value), "@")
	if !ok {
		return ""
	}
	return server
}

// Node returns the part before '@'.
func Node(value string) string {
	node, _, _ := strings.Cut(strings.TrimSpace(value), "@")
	return node
}

func KindOf(value string) Kind {
	switch Server(value) {
	case ServerUser, ServerLegacyUser, ServerLID:
		return KindUser
	case ServerGroup:
		return KindGroup
	case ServerBroadcast:
		if strings.HasPrefix(strings.TrimSpace(value), "status@") {
			return KindStatus
		}
		return KindBroadcast
	case ServerNewsletter:
		return KindNewsletter
	case ServerCall:
		return KindCall
	default:
		return KindUnknown
	}
}

// Processable reports whether events addressed to value should be ingested.
func Processable(value string) bool {
	k := KindOf(value)
	return k == KindUser || k == KindGroup
}

func IsLID(value string) bool {
	return Server(value) == ServerLID
}

func IsGroup(value string) bool {
	return strings.HasSuffix(strings.TrimSpace(value), "@"+ServerGroup)
}

// IsPlainUser reports a non-blank identifier that is neither a LID nor a group.
func IsPlainUser(value string) bool {
	v := strings.TrimSpace(value)
	return v != "" && !IsLID(v) && !IsGroup(v)
}

// NormalizeNumber reduces a phone-bearing token to its digits. Composite ids
// ("true_5511999@c.us_ABC"), device suffixes ("5511999:12@s.whatsapp.net")
// and domains are stripped. An empty result means unresolved.
func NormalizeNumber(value string) string {
	node := Node(value)
	if strings.Contains(node, "_") {
		node = boolPrefix.ReplaceAllString(node, "")
	}
	node, _, _ = strings.Cut(node, ":")
	node, _, _ = strings.Cut(node, "_")
	return Digits(node)
}

// Digits keeps only ASCII digits.
func Digits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserJID returns digits@s.whatsapp.net, or "" when value has no digits.
func UserJID(value string) string {
	digits := NormalizeNumber(value)
	if digits == "" {
		return ""
	}
	return digits + "@" + ServerUser
}

// LegacyUserJID rewrites an @s.whatsapp.net address to its @c.us form.
func LegacyUserJID(value string) string {
	return strings.Replace(value, "@"+ServerUser, "@"+ServerLegacyUser, 1)
}

// Variants returns the family of spellings a chat or participant address may
// appear under: the raw value, each user-domain rewrite, and the bare node.
func Variants(value string) []string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}

	var out []string
	if node, domain, ok := strings.Cut(v, "@"); ok {
		out = append(out, v)
		if domain != ServerUser {
			out = append(out, node+"@"+ServerUser)
		}
		if domain != ServerLegacyUser {
			out = append(out, node+"@"+ServerLegacyUser)
		}
		out = append(out, node)
	} else {
		out = append(out, v)
		if digits := Digits(v); digits != "" {
			out = append(out, digits+"@"+ServerUser, digits+"@"+ServerLegacyUser)
		}
	}
	return Unique(out)
}

// Unique trims values, drops blanks and removes duplicates preserving order.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
