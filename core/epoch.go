package orchestration

import "sync/atomic"

// epochCounter is the sole cancellation primitive. Explicit stop/clear
// actions advance it; any asynchronous work started under an older epoch
// must discard its result on completion instead of committing it.
type epochCounter struct {
	current atomic.Int64
}

func (c *epochCounter) Current() int64 {
	return c.current.Load()
}

// Advance invalidates all in-flight work tagged with the previous epoch and
// returns the new one.
func (c *epochCounter) Advance() int64 {
	return c.current.Add(1)
}

// NewTask tags a unit of asynchronous work with the current epoch.
func (c *epochCounter) NewTask() epochTask {
	return epochTask{counter: c, epoch: c.current.Load()}
}

// epochTask is carried by every asynchronous operation; callers check Stale
// before acting on a result. A stale result is not an error, the user
// already cancelled, so it is discarded silently.
type epochTask struct {
	counter *epochCounter
	epoch   int64
}

func (t epochTask) Epoch() int64 {
	return t.epoch
}

func (t epochTask) Stale() bool {
	return t.counter == nil || t.counter.current.Load() != t.epoch
}
