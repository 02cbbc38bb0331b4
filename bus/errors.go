// SPDX-License-Identifier: MIT

package bus

import "errors"

// Sentinel errors for the notification bus.
var (
	// ErrEmptyEventType is returned when an event type is the empty string.
	ErrEmptyEventType = errors.New("event type must not be empty")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler must not be nil")

	// ErrHandlerPanic marks a handler panic isolated during dispatch.
	ErrHandlerPanic = errors.New("handler panicked")
)
