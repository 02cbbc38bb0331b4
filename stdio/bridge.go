// SPDX-License-Identifier: MIT

// Package stdio bridges the notification bus onto a line-oriented
// transport: every envelope received from the bus is serialized as one
// JSON document and written as one newline-terminated line on a shared
// writer. Writes are serialized by a dedicated mutex so concurrent
// dispatches never interleave partial lines.
package stdio

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mdrescher/notibus/bus"
	"github.com/mdrescher/notibus/internal/log"
	"github.com/mdrescher/notibus/internal/metrics"
	"github.com/mdrescher/notibus/notify"
)

// rpcEnvelope is the JSON-RPC framing applied when WithJSONRPC is set.
type rpcEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Bridge subscribes to every known event category and forwards envelopes
// to a shared output stream. Lifecycle:
//
//	Uninitialized -> Running <-> Stopped -> Disposed (terminal)
//
// Init, Start, Stop and Dispose are all idempotent; after Dispose no
// subscription work or write is ever performed again.
type Bridge struct {
	logger  zerolog.Logger
	bus     *bus.Bus
	jsonrpc bool

	// wmu guards the output stream only; it is never held together with
	// state, so a slow write cannot block lifecycle transitions.
	wmu sync.Mutex
	out io.Writer

	state    sync.Mutex
	subIDs   []string
	running  bool
	inited   bool
	disposed bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithJSONRPC wraps every line as {"jsonrpc":"2.0","method":...,"params":...}.
func WithJSONRPC() Option {
	return func(b *Bridge) {
		b.jsonrpc = true
	}
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a bridge over the given bus and output stream. The bridge
// is inert until Init is called.
func New(nb *bus.Bus, out io.Writer, opts ...Option) *Bridge {
	b := &Bridge{
		logger: log.WithComponent("stdio_bridge"),
		bus:    nb,
		out:    out,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init subscribes the bridge to every known event category and marks it
// running. Calling Init again after the first successful call, or after
// Dispose, is a no-op.
func (b *Bridge) Init() error {
	b.state.Lock()
	defer b.state.Unlock()

	if b.inited || b.disposed {
		return nil
	}

	for _, et := range notify.EventTypes() {
		id, err := b.bus.Subscribe(et, b.Send)
		if err != nil {
			// Known types are never empty and Send is never nil, so this
			// is unreachable; unwind anyway rather than half-subscribe.
			for _, sid := range b.subIDs {
				b.bus.Unsubscribe(sid)
			}
			b.subIDs = nil
			return err
		}
		b.subIDs = append(b.subIDs, id)
	}

	b.inited = true
	b.running = true
	b.logger.Info().
		Str("event", "bridge.initialized").
		Int("subscriptions", len(b.subIDs)).
		Msg("stdio bridge subscribed to notification bus")
	return nil
}

// Start resumes output after a Stop. Subscriptions are untouched.
func (b *Bridge) Start() {
	b.state.Lock()
	defer b.state.Unlock()
	if b.disposed {
		return
	}
	b.running = true
}

// Stop pauses output without tearing down subscriptions; envelopes
// received while stopped are dropped.
func (b *Bridge) Stop() {
	b.state.Lock()
	defer b.state.Unlock()
	b.running = false
}

// Running reports whether Send currently writes.
func (b *Bridge) Running() bool {
	b.state.Lock()
	defer b.state.Unlock()
	return b.running && !b.disposed
}

// Send serializes one envelope and writes it as a single line. It is the
// bridge's bus handler: serialization and write failures are logged and
// counted but never returned, so they cannot disturb sibling handlers or
// the publisher.
func (b *Bridge) Send(_ context.Context, env bus.Envelope) error {
	if !b.Running() {
		return nil
	}

	var payload any = env
	if b.jsonrpc {
		payload = rpcEnvelope{JSONRPC: "2.0", Method: env.Method, Params: env.Params}
	}

	line, err := json.Marshal(payload)
	if err != nil {
		metrics.IncBridgeWriteError()
		b.logger.Error().
			Err(err).
			Str("event", "bridge.marshal_failed").
			Str("method", env.Method).
			Msg("failed to serialize envelope")
		return nil
	}
	line = append(line, '\n')

	b.wmu.Lock()
	_, err = b.out.Write(line)
	b.wmu.Unlock()

	if err != nil {
		metrics.IncBridgeWriteError()
		b.logger.Error().
			Err(err).
			Str("event", "bridge.write_failed").
			Str("method", env.Method).
			Msg("failed to write envelope line")
		return nil
	}
	metrics.IncBridgeWrite()
	return nil
}

// Dispose unsubscribes everything acquired by Init and stops the bridge
// permanently. Safe to call multiple times.
func (b *Bridge) Dispose() {
	b.state.Lock()
	defer b.state.Unlock()

	if b.disposed {
		return
	}
	for _, id := range b.subIDs {
		b.bus.Unsubscribe(id)
	}
	b.subIDs = nil
	b.running = false
	b.disposed = true
	b.logger.Info().
		Str("event", "bridge.disposed").
		Msg("stdio bridge unsubscribed and stopped")
}
