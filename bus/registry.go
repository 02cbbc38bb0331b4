// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdrescher/notibus/internal/log"
)

// Handler processes one envelope. Errors are isolated and logged during
// dispatch; they never reach the publisher.
type Handler func(ctx context.Context, env Envelope) error

// Registry is a flat, internally synchronized table of handler callbacks.
// It has no notion of event types; the bus keeps one registry per type.
// Register and Unregister are safe to call concurrently with Dispatch.
type Registry struct {
	logger  zerolog.Logger
	onError func(handlerID string, err error)

	mu       sync.RWMutex
	handlers map[string]Handler
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for dispatch failures.
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithErrorHandler installs a hook observing every isolated handler
// failure. The hook runs on the dispatching goroutine and must not block.
func WithErrorHandler(fn func(handlerID string, err error)) RegistryOption {
	return func(r *Registry) {
		r.onError = fn
	}
}

// NewRegistry creates an empty handler registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   log.WithComponent("registry"),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores the handler under a fresh unique id and returns the id.
// It never rejects.
func (r *Registry) Register(h Handler) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.handlers[id] = h
	r.mu.Unlock()
	return id
}

// Unregister removes the handler with the given id. Removing an unknown
// or already-removed id is a no-op and returns false.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[id]; !ok {
		return false
	}
	delete(r.handlers, id)
	return true
}

// UnregisterFunc removes the first handler matching h by function
// identity, for callers that retained the closure but not the id.
// Closures created from the same function literal share identity.
func (r *Registry) UnregisterFunc(h Handler) bool {
	if h == nil {
		return false
	}
	target := reflect.ValueOf(h).Pointer()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, stored := range r.handlers {
		if reflect.ValueOf(stored).Pointer() == target {
			delete(r.handlers, id)
			return true
		}
	}
	return false
}

// Dispatch delivers the envelope to a point-in-time snapshot of the
// registered handlers, invoking all of them concurrently and waiting for
// completion. Handlers added or removed while a dispatch is in flight are
// deterministically excluded from that dispatch. A failing or panicking
// handler is logged and reported to the error hook; it never cancels its
// siblings and never surfaces to the caller.
func (r *Registry) Dispatch(ctx context.Context, env Envelope) {
	r.mu.RLock()
	if len(r.handlers) == 0 {
		r.mu.RUnlock()
		return
	}
	type entry struct {
		id string
		h  Handler
	}
	snapshot := make([]entry, 0, len(r.handlers))
	for id, h := range r.handlers {
		snapshot = append(snapshot, entry{id: id, h: h})
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(snapshot))
	for _, e := range snapshot {
		go func(id string, h Handler) {
			defer wg.Done()
			r.invoke(ctx, id, h, env)
		}(e.id, e.h)
	}
	wg.Wait()
}

func (r *Registry) invoke(ctx context.Context, id string, h Handler, env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
			r.fail(id, env, err)
		}
	}()
	if err := h(ctx, env); err != nil {
		r.fail(id, env, err)
	}
}

func (r *Registry) fail(id string, env Envelope, err error) {
	r.logger.Warn().
		Err(err).
		Str("event", "registry.handler_failed").
		Str("handler_id", id).
		Str("method", env.Method).
		Msg("notification handler failed")
	if r.onError != nil {
		r.onError(id, err)
	}
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// IDs returns the ids of all registered handlers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	return ids
}

// Clear removes all handlers atomically.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.handlers = make(map[string]Handler)
	r.mu.Unlock()
}
