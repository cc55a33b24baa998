// Package rmmevents defines the structured events the dispatcher emits for
// every mutating operation, following the Event/Emitter split used
// throughout the ambient event plumbing this core was adapted from: a
// per-event struct implements EventType and Event, and callers supply an
// Emitter to receive them.
package rmmevents

import "github.com/google/uuid"

// Event is a structured state change emitted by the dispatcher.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event; it is the default for callers that do
// not need to observe dispatcher activity.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// Record is the wire-agnostic representation of an event: a type tag, a
// flat attribute map, and a correlation id linking every event emitted
// within one multiprocess batch.
type Record struct {
	Type          string            `json:"type"`
	Attributes    map[string]string `json:"attributes"`
	CorrelationID string            `json:"correlationId"`
}

// NewCorrelationID returns a fresh v4 UUID suitable for stamping a batch of
// events emitted by one dispatcher call.
func NewCorrelationID() string {
	return uuid.NewString()
}
