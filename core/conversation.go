package orchestration

import (
	"sync"
	"time"

	"github.com/jayallenwarren/elaralo-sub000/core/chat"
)

// conversation is the durable chat log sent to the reply endpoint, distinct
// from the visible transcript: deferred turns enter the transcript
// immediately but join this log only when their replay commits.
type conversation struct {
	mu     sync.RWMutex
	system string
	turns  []chat.Turn
	state  chat.State
}

func newConversation() *conversation {
	return &conversation{state: chat.State{}}
}

// seedSystem installs the leading system entry that survives history
// bounding.
func (c *conversation) seedSystem(prompt string) {
	c.mu.Lock()
	c.system = prompt
	c.mu.Unlock()
}

func (c *conversation) appendUser(text string) {
	c.append(chat.Turn{Role: chat.RoleUser, Text: text, At: time.Now()})
}

func (c *conversation) appendCompanion(text string) {
	c.append(chat.Turn{Role: chat.RoleCompanion, Text: text, At: time.Now()})
}

func (c *conversation) append(turn chat.Turn) {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
}

// History returns the log as reply-endpoint turns, system entry first.
func (c *conversation) History() []chat.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := make([]chat.Turn, 0, len(c.turns)+1)
	if c.system != "" {
		history = append(history, chat.Turn{Role: chat.RoleSystem, Text: c.system})
	}
	history = append(history, c.turns...)
	return history
}

// State returns a snapshot of the opaque session state.
func (c *conversation) State() chat.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Merge(nil)
}

// applyStateUpdates merges backend state updates into the durable state.
func (c *conversation) applyStateUpdates(updates chat.State) {
	if len(updates) == 0 {
		return
	}
	c.mu.Lock()
	c.state = c.state.Merge(updates)
	c.mu.Unlock()
}
