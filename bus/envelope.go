// SPDX-License-Identifier: MIT

package bus

import (
	"unicode"
	"unicode/utf8"
)

// MethodNamespace prefixes every derived envelope method.
const MethodNamespace = "notifications"

// Envelope is the canonical message unit flowing through the bus: a
// namespaced method name plus an opaque payload. Envelopes are immutable
// once constructed and never deduplicated; every publish yields exactly
// one dispatch round.
type Envelope struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// NewEnvelope wraps a producer payload into an envelope whose method is
// derived from the event type.
func NewEnvelope(eventType string, params any) Envelope {
	return Envelope{
		Method: MethodFor(eventType),
		Params: params,
	}
}

// MethodFor derives the wire method for an event type, e.g.
// "CommandStatus" -> "notifications/commandStatus".
func MethodFor(eventType string) string {
	return MethodNamespace + "/" + lowerCamel(eventType)
}

// lowerCamel lowers the first rune and leaves the remainder unchanged.
// The empty string passes through.
func lowerCamel(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}
