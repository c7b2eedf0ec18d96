package utils

import (
	"net/mail"
	"strings"
)

// ExtractEmailAddress returns the bare address from a header value like
// "Alice <alice@example.com>". Falls back to the trimmed input when the
// value does not parse as an RFC 5322 address.
func ExtractEmailAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		// Handle bare "<addr>" or plain "addr" forms
		value = strings.Trim(value, "<>")
		return strings.TrimSpace(value)
	}
	return addr.Address
}

// NormalizeHeaderKey lower-cases a header name for map lookups.
func NormalizeHeaderKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
