package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jayallenwarren/elaralo-sub000/core/chat"
)

func TestFlushReplaysInOrderWithChainedHistory(t *testing.T) {
	queue := newDeferredQueue()
	base := []chat.Turn{
		{Role: chat.RoleUser, Text: "earlier question"},
		{Role: chat.RoleCompanion, Text: "earlier answer"},
	}

	queue.Enqueue("first", chat.State{"mood": "curious"}, base, 2)
	queue.Enqueue("second", chat.State{"mood": "curious"}, base, 4)

	var replayed [][]chat.Turn
	var delivered []string
	failed, err := queue.Flush(context.Background(),
		func(_ context.Context, history []chat.Turn, _ chat.State) (*chat.Reply, error) {
			recorded := make([]chat.Turn, len(history))
			copy(recorded, history)
			replayed = append(replayed, recorded)
			return &chat.Reply{ReplyText: "re: " + history[len(history)-1].Text}, nil
		},
		func(item deferredTurn, reply *chat.Reply) {
			delivered = append(delivered, fmt.Sprintf("%d:%s", item.PlaceholderIndex, reply.ReplyText))
		},
	)
	if err != nil || failed != nil {
		t.Fatalf("expected clean flush, got failed=%v err=%v", failed, err)
	}

	if len(delivered) != 2 || delivered[0] != "2:re: first" || delivered[1] != "4:re: second" {
		t.Fatalf("expected in-order delivery against reserved slots, got %v", delivered)
	}

	// The second replay sees the base history plus the first exchange.
	if len(replayed) != 2 {
		t.Fatalf("expected two replay calls, got %d", len(replayed))
	}
	second := replayed[1]
	if len(second) != len(base)+3 {
		t.Fatalf("expected chained history, got %d entries", len(second))
	}
	if second[len(second)-2].Text != "re: first" || second[len(second)-1].Text != "second" {
		t.Fatalf("expected the first reply threaded before the second turn, got %v", second)
	}

	if queue.Len() != 0 {
		t.Fatalf("expected an empty queue after flush, got %d", queue.Len())
	}
}

func TestFlushUsesStateSnapshotFromSendTime(t *testing.T) {
	queue := newDeferredQueue()

	state := chat.State{"scene": "garden"}
	queue.Enqueue("first", state, nil, 0)

	// Mutations after enqueue must not leak into the snapshot.
	state["scene"] = "castle"

	queue.Enqueue("second", state, nil, 1)

	var seen []chat.State
	_, err := queue.Flush(context.Background(),
		func(_ context.Context, _ []chat.Turn, state chat.State) (*chat.Reply, error) {
			seen = append(seen, state)
			return &chat.Reply{
				ReplyText:           "ok",
				SessionStateUpdates: chat.State{"visited": true},
			}, nil
		},
		func(deferredTurn, *chat.Reply) {},
	)
	if err != nil {
		t.Fatalf("expected clean flush, got: %v", err)
	}

	if seen[0]["scene"] != "garden" {
		t.Fatalf("expected the first item's send-time state, got %v", seen[0])
	}
	if seen[1]["scene"] != "castle" {
		t.Fatalf("expected the second item's send-time state, got %v", seen[1])
	}
	if seen[1]["visited"] != true {
		t.Fatal("expected updates from the first reply merged into the second item's state")
	}
	if _, leaked := seen[0]["visited"]; leaked {
		t.Fatal("expected no reply updates in the first item's state")
	}
}

func TestFlushFailureRetainsRemainder(t *testing.T) {
	queue := newDeferredQueue()
	queue.Enqueue("first", nil, nil, 0)
	queue.Enqueue("second", nil, nil, 1)
	queue.Enqueue("third", nil, nil, 2)

	calls := 0
	failed, err := queue.Flush(context.Background(),
		func(_ context.Context, history []chat.Turn, _ chat.State) (*chat.Reply, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("backend unavailable")
			}
			return &chat.Reply{ReplyText: "ok"}, nil
		},
		func(deferredTurn, *chat.Reply) {},
	)

	if err == nil || failed == nil {
		t.Fatal("expected the flush to abort with the failed item")
	}
	if failed.Text != "second" {
		t.Fatalf("expected the second item to fail, got %q", failed.Text)
	}

	remaining := queue.Snapshot()
	if len(remaining) != 2 || remaining[0].Text != "second" || remaining[1].Text != "third" {
		t.Fatalf("expected the failed item and its successors retained, got %v", remaining)
	}
}

func TestFlushIsSingleFlight(t *testing.T) {
	queue := newDeferredQueue()
	queue.Enqueue("only", nil, nil, 0)

	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = queue.Flush(context.Background(),
			func(context.Context, []chat.Turn, chat.State) (*chat.Reply, error) {
				close(entered)
				<-release
				return &chat.Reply{ReplyText: "ok"}, nil
			},
			func(deferredTurn, *chat.Reply) {},
		)
	}()

	<-entered
	// A concurrent flush while one is running processes nothing.
	failed, err := queue.Flush(context.Background(),
		func(context.Context, []chat.Turn, chat.State) (*chat.Reply, error) {
			t.Error("second flush must not process items")
			return nil, nil
		},
		func(deferredTurn, *chat.Reply) {},
	)
	if failed != nil || err != nil {
		t.Fatalf("expected concurrent flush to be a no-op, got failed=%v err=%v", failed, err)
	}

	close(release)
	wg.Wait()

	if queue.Len() != 0 {
		t.Fatalf("expected the first flush to drain the queue, got %d", queue.Len())
	}
}

func TestEnqueueAssignsUniqueIdentities(t *testing.T) {
	queue := newDeferredQueue()
	first := queue.Enqueue("a", nil, nil, 0)
	second := queue.Enqueue("b", nil, nil, 1)

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct queue identities, got %q and %q", first.ID, second.ID)
	}
	if first.QueuedAt.IsZero() {
		t.Fatal("expected the enqueue time to be recorded")
	}
}
