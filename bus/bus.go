// SPDX-License-Identifier: MIT

// Package bus implements a best-effort, in-process notification bus:
// producers publish typed events, zero or more subscribers receive them
// as immutable envelopes via concurrent fan-out with per-handler fault
// isolation. Delivery is fire-and-forget; there is no persistence,
// replay, or cross-type ordering.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdrescher/notibus/internal/log"
	"github.com/mdrescher/notibus/internal/metrics"
)

// Bus routes published events to subscribers keyed by exact event-type
// string. A process typically owns a single Bus for its lifetime.
//
// Dispatch is globally gated by an enablement flag driven purely by
// subscriber-count transitions: the first subscription enables the bus,
// removal of the last one disables it. While disabled, Publish skips
// handler lookup and envelope construction entirely, so producers in
// listener-less deployments pay nothing.
type Bus struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	byType map[string]*Registry
	byID   map[string]subEntry

	enabled atomic.Bool

	published     atomic.Uint64
	dropped       atomic.Uint64
	handlerErrors atomic.Uint64
}

type subEntry struct {
	eventType string
	handlerID string
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates an empty, disabled bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger: log.WithComponent("bus"),
		byType: make(map[string]*Registry),
		byID:   make(map[string]subEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the given event type and returns an
// opaque subscription id. Event types match by exact string; no
// normalization or hierarchy is applied.
func (b *Bus) Subscribe(eventType string, h Handler) (string, error) {
	if eventType == "" {
		return "", ErrEmptyEventType
	}
	if h == nil {
		return "", ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	reg, ok := b.byType[eventType]
	if !ok {
		reg = b.newTypeRegistry(eventType)
		b.byType[eventType] = reg
	}

	id := uuid.NewString()
	b.byID[id] = subEntry{eventType: eventType, handlerID: reg.Register(h)}

	if len(b.byID) == 1 {
		b.enabled.Store(true)
		b.logger.Debug().
			Str("event", "bus.enabled").
			Str("event_type", eventType).
			Msg("first subscriber registered, notifications enabled")
	}
	return id, nil
}

// SubscribeParams registers a handler that receives only the payload of
// each envelope. It is a thin adapter over Subscribe; dispatch behaves
// identically.
func (b *Bus) SubscribeParams(eventType string, fn func(ctx context.Context, params any) error) (string, error) {
	if fn == nil {
		return "", ErrNilHandler
	}
	return b.Subscribe(eventType, func(ctx context.Context, env Envelope) error {
		return fn(ctx, env.Params)
	})
}

// Unsubscribe removes the subscription with the given id. It returns
// false, with no other effect, if the id is unknown or already removed.
// Removing the last subscription disables the bus.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)

	if reg, ok := b.byType[e.eventType]; ok {
		reg.Unregister(e.handlerID)
		if reg.Count() == 0 {
			delete(b.byType, e.eventType)
		}
	}

	if len(b.byID) == 0 {
		b.enabled.Store(false)
		b.logger.Debug().
			Str("event", "bus.disabled").
			Msg("last subscriber removed, notifications disabled")
	}
	return true
}

// Publish wraps params into an envelope and fans it out to every handler
// currently subscribed to eventType, blocking until all of them finish.
// It returns an error only for an empty event type. Handler failures are
// isolated inside dispatch; a publish with no listeners is silently
// counted and dropped.
func (b *Bus) Publish(ctx context.Context, eventType string, params any) error {
	if eventType == "" {
		return ErrEmptyEventType
	}
	if !b.enabled.Load() {
		b.dropped.Add(1)
		metrics.IncDropped(eventType, metrics.DropReasonDisabled)
		return nil
	}

	b.mu.RLock()
	reg := b.byType[eventType]
	b.mu.RUnlock()

	if reg == nil {
		// Normal for event types nobody listens to; unlike the global
		// disabled gate this is logged, at trace only.
		b.dropped.Add(1)
		metrics.IncDropped(eventType, metrics.DropReasonNoSubscribers)
		b.logger.Trace().
			Str("event", "bus.no_subscribers").
			Str("event_type", eventType).
			Msg("publish dropped, no subscribers for event type")
		return nil
	}

	b.published.Add(1)
	metrics.IncPublished(eventType)
	reg.Dispatch(ctx, NewEnvelope(eventType, params))
	return nil
}

// Enabled reports whether at least one subscription exists.
func (b *Bus) Enabled() bool {
	return b.enabled.Load()
}

// SubscriberCount returns the number of live subscriptions across all
// event types.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Close removes every subscription atomically and disables the bus.
// It is safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, reg := range b.byType {
		reg.Clear()
	}
	b.byType = make(map[string]*Registry)
	b.byID = make(map[string]subEntry)
	b.enabled.Store(false)
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Published     uint64
	Dropped       uint64
	HandlerErrors uint64
	Subscriptions int
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:     b.published.Load(),
		Dropped:       b.dropped.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		Subscriptions: b.SubscriberCount(),
	}
}

func (b *Bus) newTypeRegistry(eventType string) *Registry {
	return NewRegistry(
		WithRegistryLogger(b.logger.With().Str("event_type", eventType).Logger()),
		WithErrorHandler(func(string, error) {
			b.handlerErrors.Add(1)
			metrics.IncHandlerError(eventType)
		}),
	)
}
