package events

import "time"

// Kind is the namespaced identity of an event, e.g. "session.connected".
type Kind string

// Event is anything the orchestration core emits: session transitions, turn
// lifecycle, playback, capture. Timestamps are assigned at construction so
// consumers can order events across callback boundaries.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the kind and timestamp every concrete event embeds.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind { return b.kind }

func (b Base) Timestamp() time.Time { return b.timestamp }
