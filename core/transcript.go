package orchestration

import (
	"fmt"
	"sync"
	"time"

	"github.com/jayallenwarren/elaralo-sub000/core/events"
)

// EntryKind classifies a transcript entry.
type EntryKind string

const (
	EntryKindUser        EntryKind = "user"
	EntryKindCompanion   EntryKind = "companion"
	EntryKindPlaceholder EntryKind = "placeholder"
	EntryKindNotice      EntryKind = "notice"
	EntryKindError       EntryKind = "error"
)

// Entry is one line of the visible conversation.
type Entry struct {
	Kind EntryKind
	Text string
	At   time.Time
}

// transcript owns the ordered visible conversation. Placeholders rendered
// for deferred turns are replaced in place so the transcript order matches
// send order even when replies arrive long after the fact.
type transcript struct {
	mu      sync.RWMutex
	entries []Entry

	emitEvent eventEmitter
}

func newTranscript() *transcript {
	return &transcript{emitEvent: noopEventEmitter}
}

func (t *transcript) setEventEmitter(emitEvent eventEmitter) {
	if t == nil {
		return
	}
	if emitEvent != nil {
		t.emitEvent = emitEvent
	} else {
		t.emitEvent = noopEventEmitter
	}
}

// Append adds an entry and returns its index.
func (t *transcript) Append(kind EntryKind, text string) int {
	t.mu.Lock()
	t.entries = append(t.entries, Entry{Kind: kind, Text: text, At: time.Now()})
	index := len(t.entries) - 1
	t.mu.Unlock()

	t.emitEvent(events.NewEntryAppended(index))
	return index
}

// ReplacePlaceholder swaps the placeholder at index for the companion's
// eventual reply, in place.
func (t *transcript) ReplacePlaceholder(index int, text string) error {
	t.mu.Lock()
	if index < 0 || index >= len(t.entries) {
		t.mu.Unlock()
		return fmt.Errorf("transcript index %d out of range", index)
	}
	if t.entries[index].Kind != EntryKindPlaceholder {
		t.mu.Unlock()
		return fmt.Errorf("transcript entry %d is not a placeholder", index)
	}
	t.entries[index] = Entry{Kind: EntryKindCompanion, Text: text, At: time.Now()}
	t.mu.Unlock()

	t.emitEvent(events.NewPlaceholderReplaced(index, text))
	return nil
}

// Entry returns a copy of the entry at index.
func (t *transcript) Entry(index int) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[index], true
}

// Snapshot returns a point-in-time copy of all entries.
func (t *transcript) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

func (t *transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
