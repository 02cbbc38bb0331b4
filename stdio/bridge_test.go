// SPDX-License-Identifier: MIT

package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/mdrescher/notibus/bus"
	"github.com/mdrescher/notibus/notify"
)

// syncBuffer is a goroutine-safe capture target for bridge output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSuffix(b.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("pipe closed")
}

func TestBridgeInitSubscribesOnce(t *testing.T) {
	b := bus.New()
	var out syncBuffer
	br := New(b, &out)

	require.NoError(t, br.Init())
	require.Equal(t, len(notify.EventTypes()), b.SubscriberCount())
	require.True(t, br.Running())

	// Second Init must not add subscriptions.
	require.NoError(t, br.Init())
	require.Equal(t, len(notify.EventTypes()), b.SubscriberCount())
}

func TestBridgeWritesOneLinePerEnvelope(t *testing.T) {
	b := bus.New()
	var out syncBuffer
	br := New(b, &out)
	require.NoError(t, br.Init())

	n := notify.NewNotifier(b)
	require.NoError(t, n.ServerHealth(context.Background(), notify.ServerHealth{
		Status: "ok", QueueSize: 1,
	}))

	lines := out.Lines()
	require.Len(t, lines, 1)

	var env struct {
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &env))
	require.Equal(t, "notifications/serverHealth", env.Method)
	require.Equal(t, "ok", env.Params["status"])
}

func TestBridgeConcurrentPublishesDoNotInterleave(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := bus.New()
	var out syncBuffer
	br := New(b, &out)
	require.NoError(t, br.Init())

	n := notify.NewNotifier(b)
	var g errgroup.Group
	g.Go(func() error {
		return n.CommandStatus(context.Background(), notify.CommandStatus{
			CommandID: "c-1", Status: notify.StatusExecuting,
		})
	})
	g.Go(func() error {
		return n.Heartbeat(context.Background(), notify.CommandHeartbeat{
			CommandID: "c-1", ElapsedSeconds: 1,
		})
	})
	require.NoError(t, g.Wait())

	lines := out.Lines()
	require.Len(t, lines, 2)

	methods := make(map[string]bool)
	for _, line := range lines {
		var env struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &env), "line is not one complete JSON document: %q", line)
		methods[env.Method] = true
	}
	require.True(t, methods["notifications/commandStatus"])
	require.True(t, methods["notifications/commandHeartbeat"])
}

func TestBridgeStopAndStartGateOutput(t *testing.T) {
	b := bus.New()
	var out syncBuffer
	br := New(b, &out)
	require.NoError(t, br.Init())

	n := notify.NewNotifier(b)

	br.Stop()
	require.False(t, br.Running())
	require.NoError(t, n.ToolsListChanged(context.Background()))
	require.Empty(t, out.Lines(), "stopped bridge must not write")
	require.Equal(t, len(notify.EventTypes()), b.SubscriberCount(), "stop must keep subscriptions")

	br.Start()
	require.NoError(t, n.ToolsListChanged(context.Background()))
	require.Len(t, out.Lines(), 1)
}

func TestBridgeDisposeIsTerminalAndIdempotent(t *testing.T) {
	b := bus.New()
	var out syncBuffer
	br := New(b, &out)
	require.NoError(t, br.Init())

	br.Dispose()
	br.Dispose() // must not panic

	require.Equal(t, 0, b.SubscriberCount())
	require.False(t, b.Enabled())

	n := notify.NewNotifier(b)
	require.NoError(t, n.ToolsListChanged(context.Background()))
	require.Empty(t, out.Lines(), "disposed bridge must produce no output")

	// Neither Init nor Start revive a disposed bridge.
	require.NoError(t, br.Init())
	br.Start()
	require.False(t, br.Running())
	require.Equal(t, 0, b.SubscriberCount())
}

func TestBridgeJSONRPCFraming(t *testing.T) {
	b := bus.New()
	var out syncBuffer
	br := New(b, &out, WithJSONRPC())
	require.NoError(t, br.Init())

	n := notify.NewNotifier(b)
	require.NoError(t, n.ServerHealth(context.Background(), notify.ServerHealth{Status: "ok"}))

	lines := out.Lines()
	require.Len(t, lines, 1)

	var env struct {
		JSONRPC string         `json:"jsonrpc"`
		Method  string         `json:"method"`
		Params  map[string]any `json:"params"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &env))
	require.Equal(t, "2.0", env.JSONRPC)
	require.Equal(t, "notifications/serverHealth", env.Method)
}

func TestBridgeWriteFailureStaysInsideBridge(t *testing.T) {
	b := bus.New()
	br := New(b, failWriter{})
	require.NoError(t, br.Init())

	// The write fails, the publisher never sees it.
	n := notify.NewNotifier(b)
	require.NoError(t, n.ToolsListChanged(context.Background()))
	require.Equal(t, uint64(0), b.Stats().HandlerErrors, "write failures are logged in the bridge, not surfaced to dispatch")
}

func TestBridgeSendUnmarshalableParams(t *testing.T) {
	b := bus.New()
	var out syncBuffer
	br := New(b, &out)
	require.NoError(t, br.Init())

	// Channels cannot be marshaled; the envelope is dropped, nothing propagates.
	require.NoError(t, b.Publish(context.Background(), notify.EventSessionEvent, make(chan int)))
	require.Empty(t, out.Lines())
}
