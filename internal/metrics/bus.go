// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus counters for the notification bus
// and its transport bridges. Counters are registered on the default
// registry; exposition is left to the embedding process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notibus_published_total",
		Help: "Total number of notifications accepted for dispatch",
	}, []string{"event_type"})

	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notibus_dropped_total",
		Help: "Total number of notifications dropped before dispatch by event type and reason",
	}, []string{"event_type", "reason"})

	HandlerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notibus_handler_errors_total",
		Help: "Total number of handler failures isolated during dispatch",
	}, []string{"event_type"})

	BridgeWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notibus_bridge_writes_total",
		Help: "Total number of envelope lines written by the stdio bridge",
	})

	BridgeWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notibus_bridge_write_errors_total",
		Help: "Total number of envelope serialization or write failures in the stdio bridge",
	})
)

// Drop reasons recorded by the bus.
const (
	DropReasonDisabled      = "disabled"
	DropReasonNoSubscribers = "no_subscribers"
)

// IncPublished records a notification accepted for dispatch.
func IncPublished(eventType string) {
	PublishedTotal.WithLabelValues(orUnknown(eventType)).Inc()
}

// IncDropped records a notification dropped before dispatch with a concrete reason.
func IncDropped(eventType, reason string) {
	DroppedTotal.WithLabelValues(orUnknown(eventType), orUnknown(reason)).Inc()
}

// IncHandlerError records a handler failure isolated during dispatch.
func IncHandlerError(eventType string) {
	HandlerErrorsTotal.WithLabelValues(orUnknown(eventType)).Inc()
}

// IncBridgeWrite records a successful bridge write.
func IncBridgeWrite() {
	BridgeWritesTotal.Inc()
}

// IncBridgeWriteError records a failed bridge serialization or write.
func IncBridgeWriteError() {
	BridgeWriteErrorsTotal.Inc()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
