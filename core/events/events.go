// Package events carries the structured state-change notifications emitted by
// the settlement engines so downstream consumers (API, indexers, relayers) can
// observe transitions without polling state.
package events

import (
	"log/slog"
	"sort"
)

// Event is a typed state change with flat string attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies Emitter while discarding all events. Engines default to
// it so event wiring stays optional.
type NoopEmitter struct{}

func (NoopEmitter) Emit(*Event) {}

// SlogEmitter writes every event to a structured logger. It is the default
// sink for the fusiond server.
type SlogEmitter struct {
	Logger *slog.Logger
}

func (e SlogEmitter) Emit(evt *Event) {
	if evt == nil {
		return
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keys := make([]string, 0, len(evt.Attributes))
	for key := range evt.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2*len(keys))
	for _, key := range keys {
		args = append(args, slog.String(key, evt.Attributes[key]))
	}
	logger.Info(evt.Type, args...)
}

// MemoryEmitter records events in order. Tests use it to assert emission.
type MemoryEmitter struct {
	Events []*Event
}

func (e *MemoryEmitter) Emit(evt *Event) {
	if evt == nil {
		return
	}
	e.Events = append(e.Events, evt)
}
