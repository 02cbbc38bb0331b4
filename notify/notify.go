// SPDX-License-Identifier: MIT

// Package notify defines the event categories carried over the
// notification bus and a Notifier with one convenience method per
// category. Each category has a single canonical payload shape; optional
// fields are omitted from the wire when unset.
package notify

import (
	"context"

	"github.com/mdrescher/notibus/bus"
)

// Event type tokens. These are the exact subscription keys; the bus
// derives wire methods from them (e.g. "CommandStatus" becomes
// "notifications/commandStatus").
const (
	EventCommandStatus    = "CommandStatus"
	EventCommandHeartbeat = "CommandHeartbeat"
	EventSessionEvent     = "SessionEvent"
	EventSessionRecovery  = "SessionRecovery"
	EventServerHealth     = "ServerHealth"
	EventToolsListChanged = "ToolsListChanged"
)

// EventTypes returns every known event type token.
func EventTypes() []string {
	return []string{
		EventCommandStatus,
		EventCommandHeartbeat,
		EventSessionEvent,
		EventSessionRecovery,
		EventServerHealth,
		EventToolsListChanged,
	}
}

// Command lifecycle states reported via CommandStatus.
const (
	StatusQueued    = "queued"
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Session lifecycle events reported via SessionEvent.
const (
	SessionCreated   = "created"
	SessionRecovered = "recovered"
	SessionClosed    = "closed"
)

// CommandStatus reports a command lifecycle transition.
type CommandStatus struct {
	CommandID     string `json:"commandId"`
	Command       string `json:"command,omitempty"`
	Status        string `json:"status"`
	Result        string `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	QueuePosition int    `json:"queuePosition,omitempty"`
	Message       string `json:"message,omitempty"`
}

// CommandHeartbeat signals that a long-running command is still alive.
type CommandHeartbeat struct {
	CommandID      string  `json:"commandId"`
	Command        string  `json:"command,omitempty"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	Message        string  `json:"message,omitempty"`
}

// SessionEvent reports a debugger session lifecycle change.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

// SessionRecovery reports an automatic session recovery attempt.
type SessionRecovery struct {
	Reason        string `json:"reason"`
	Success       bool   `json:"success"`
	AttemptNumber int    `json:"attemptNumber,omitempty"`
	Message       string `json:"message,omitempty"`
}

// ServerHealth is a periodic snapshot of server vitals.
type ServerHealth struct {
	Status           string `json:"status"`
	CdbSessionActive bool   `json:"cdbSessionActive"`
	QueueSize        int    `json:"queueSize"`
	ActiveCommands   int    `json:"activeCommands"`
}

// ToolsListChanged signals that the advertised tool set changed. It
// carries no payload fields.
type ToolsListChanged struct{}

// Notifier is the producer-facing sugar over a Bus: one method per event
// category, each taking the category's full payload struct.
type Notifier struct {
	bus *bus.Bus
}

// NewNotifier wraps an existing bus.
func NewNotifier(b *bus.Bus) *Notifier {
	return &Notifier{bus: b}
}

// CommandStatus publishes a command lifecycle notification.
func (n *Notifier) CommandStatus(ctx context.Context, p CommandStatus) error {
	return n.bus.Publish(ctx, EventCommandStatus, p)
}

// Heartbeat publishes a command keep-alive notification.
func (n *Notifier) Heartbeat(ctx context.Context, p CommandHeartbeat) error {
	return n.bus.Publish(ctx, EventCommandHeartbeat, p)
}

// SessionEvent publishes a session lifecycle notification.
func (n *Notifier) SessionEvent(ctx context.Context, p SessionEvent) error {
	return n.bus.Publish(ctx, EventSessionEvent, p)
}

// SessionRecovery publishes a session recovery notification.
func (n *Notifier) SessionRecovery(ctx context.Context, p SessionRecovery) error {
	return n.bus.Publish(ctx, EventSessionRecovery, p)
}

// ServerHealth publishes a server vitals snapshot.
func (n *Notifier) ServerHealth(ctx context.Context, p ServerHealth) error {
	return n.bus.Publish(ctx, EventServerHealth, p)
}

// ToolsListChanged publishes a tools-changed notification.
func (n *Notifier) ToolsListChanged(ctx context.Context) error {
	return n.bus.Publish(ctx, EventToolsListChanged, ToolsListChanged{})
}
