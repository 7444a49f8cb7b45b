package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jayallenwarren/elaralo-sub000/core/chat"
	"github.com/jinzhu/copier"
)

// deferredTurn is one user message queued while a broadcast the user is not
// part of holds the shared chat. It freezes the conversational state as of
// send time so the eventual reply reflects what the user saw, not what the
// broadcast did to the session afterwards.
type deferredTurn struct {
	ID            string
	Text          string
	StateSnapshot chat.State
	QueuedAt      time.Time
	// PlaceholderIndex is the transcript slot reserved for the reply.
	PlaceholderIndex int
}

// deferredQueue holds turns deferred during a live broadcast, strictly FIFO.
// The replay base is the history snapshot taken at first enqueue; replay
// chains each reply into the history for the next item so the flushed
// conversation reads as if it had happened live.
type deferredQueue struct {
	mu         sync.Mutex
	items      []deferredTurn
	replayBase []chat.Turn

	// flushing makes the flush single-flight; the ended transition can be
	// observed by more than one path in the same tick.
	flushing atomic.Bool
}

func newDeferredQueue() *deferredQueue {
	return &deferredQueue{}
}

// Enqueue snapshots state and appends a deferred turn. The first enqueue of
// a deferral episode also snapshots the history the replay will build on.
func (q *deferredQueue) Enqueue(text string, state chat.State, history []chat.Turn, placeholderIndex int) deferredTurn {
	item := deferredTurn{
		ID:               uuid.NewString(),
		Text:             text,
		StateSnapshot:    cloneState(state),
		QueuedAt:         time.Now(),
		PlaceholderIndex: placeholderIndex,
	}

	q.mu.Lock()
	if len(q.items) == 0 {
		q.replayBase = cloneHistory(history)
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	return item
}

func (q *deferredQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queued turns in order.
func (q *deferredQueue) Snapshot() []deferredTurn {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]deferredTurn, len(q.items))
	copy(items, q.items)
	return items
}

// replyFunc produces the companion's reply for one replayed turn.
type replyFunc func(ctx context.Context, history []chat.Turn, state chat.State) (*chat.Reply, error)

// deliveredFunc commits one replayed reply, replacing the item's transcript
// placeholder and extending the durable conversation log.
type deliveredFunc func(item deferredTurn, reply *chat.Reply)

// Flush replays the queue in order. Single-flight: a concurrent call while a
// flush is running returns immediately with no items processed. A reply
// failure aborts the flush, retaining the failed item and everything behind
// it for the next trigger, and returns the error with the failed item.
func (q *deferredQueue) Flush(ctx context.Context, reply replyFunc, delivered deliveredFunc) (failed *deferredTurn, err error) {
	if !q.flushing.CompareAndSwap(false, true) {
		return nil, nil
	}
	defer q.flushing.Store(false)

	ctx, span := tracer.Start(ctx, "flush deferred turns")
	defer span.End()

	q.mu.Lock()
	pending := make([]deferredTurn, len(q.items))
	copy(pending, q.items)
	history := cloneHistory(q.replayBase)
	q.mu.Unlock()

	accumulated := chat.State{}
	processed := 0
	for _, item := range pending {
		state := item.StateSnapshot.Merge(accumulated)
		history = append(history, chat.Turn{Role: chat.RoleUser, Text: item.Text, At: item.QueuedAt})

		itemReply, replyErr := reply(ctx, history, state)
		if replyErr != nil {
			q.dropProcessed(processed)
			failedItem := item
			return &failedItem, replyErr
		}

		delivered(item, itemReply)
		history = append(history, chat.Turn{Role: chat.RoleCompanion, Text: itemReply.ReplyText, At: time.Now()})
		accumulated = accumulated.Merge(itemReply.SessionStateUpdates)
		processed++
	}

	q.dropProcessed(processed)
	return nil, nil
}

// dropProcessed removes count items from the front; turns enqueued during
// the flush stay behind the retained remainder. An emptied queue also drops
// its replay base so the next episode snapshots fresh history.
func (q *deferredQueue) dropProcessed(count int) {
	q.mu.Lock()
	if count >= len(q.items) {
		q.items = q.items[:0]
	} else {
		q.items = append(q.items[:0], q.items[count:]...)
	}
	if len(q.items) == 0 {
		q.replayBase = nil
	}
	q.mu.Unlock()
}

func cloneState(state chat.State) chat.State {
	if state == nil {
		return chat.State{}
	}
	cloned := chat.State{}
	if err := copier.CopyWithOption(&cloned, &state, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("deep copy of session state failed, falling back to shallow merge", "error", err)
		return state.Merge(nil)
	}
	return cloned
}

func cloneHistory(history []chat.Turn) []chat.Turn {
	cloned := make([]chat.Turn, len(history))
	copy(cloned, history)
	return cloned
}
