package orchestration

import (
	"testing"

	"github.com/jayallenwarren/elaralo-sub000/core/events"
)

func TestTranscriptAppendsInOrder(t *testing.T) {
	recorder := &eventRecorder{}
	log := newTranscript()
	log.setEventEmitter(recorder.emit)

	first := log.Append(EntryKindUser, "hello")
	second := log.Append(EntryKindCompanion, "hi")

	if first != 0 || second != 1 {
		t.Fatalf("expected sequential indices, got %d and %d", first, second)
	}
	if log.Len() != 2 {
		t.Fatalf("expected two entries, got %d", log.Len())
	}
	if !recorder.has(events.KindEntryAppended) {
		t.Fatal("expected entry appended events")
	}
}

func TestReplacePlaceholderKeepsPosition(t *testing.T) {
	recorder := &eventRecorder{}
	log := newTranscript()
	log.setEventEmitter(recorder.emit)

	log.Append(EntryKindUser, "are you there?")
	slot := log.Append(EntryKindPlaceholder, "…")
	log.Append(EntryKindUser, "hello?")

	if err := log.ReplacePlaceholder(slot, "I am now!"); err != nil {
		t.Fatalf("expected replacement to succeed, got: %v", err)
	}

	entry, ok := log.Entry(slot)
	if !ok || entry.Kind != EntryKindCompanion || entry.Text != "I am now!" {
		t.Fatalf("expected the reply in the reserved slot, got %+v", entry)
	}
	if log.Len() != 3 {
		t.Fatalf("expected replacement in place, got %d entries", log.Len())
	}
	if !recorder.has(events.KindPlaceholderReplaced) {
		t.Fatal("expected a placeholder replaced event")
	}
}

func TestReplacePlaceholderRejectsNonPlaceholders(t *testing.T) {
	log := newTranscript()
	index := log.Append(EntryKindUser, "hello")

	if err := log.ReplacePlaceholder(index, "nope"); err == nil {
		t.Fatal("expected replacement of a non-placeholder to fail")
	}
	if err := log.ReplacePlaceholder(42, "nope"); err == nil {
		t.Fatal("expected replacement out of range to fail")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	log := newTranscript()
	log.Append(EntryKindUser, "hello")

	snapshot := log.Snapshot()
	snapshot[0].Text = "mutated"

	entry, _ := log.Entry(0)
	if entry.Text != "hello" {
		t.Fatal("expected snapshot mutation to leave the transcript untouched")
	}
}
