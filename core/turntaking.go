package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jayallenwarren/elaralo-sub000/core/events"
	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
	"github.com/jayallenwarren/elaralo-sub000/core/speech"
	"go.opentelemetry.io/otel/codes"
)

// captureState gates hands-free input around companion playback. The turn
// controller is its single writer; the capture transcript path only reads.
type captureState struct {
	mu      sync.Mutex
	enabled bool
	paused  bool
	// ignoreUntil drops finalized transcripts whose utterance ended inside
	// the playback window, so the companion does not converse with its own
	// echo on devices without acoustic echo cancellation.
	ignoreUntil time.Time
}

func (c *captureState) setEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	if !enabled {
		c.paused = false
		c.ignoreUntil = time.Time{}
	}
	c.mu.Unlock()
}

func (c *captureState) setPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

func (c *captureState) extendIgnoreWindow(until time.Time) {
	c.mu.Lock()
	if until.After(c.ignoreUntil) {
		c.ignoreUntil = until
	}
	c.mu.Unlock()
}

func (c *captureState) clearIgnoreWindow() {
	c.mu.Lock()
	c.ignoreUntil = time.Time{}
	c.mu.Unlock()
}

func (c *captureState) snapshot() (enabled, paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled, c.paused
}

// shouldAccept reports whether a finalized transcript counts as new user
// input. Screening keys off when the utterance ended, not when the text
// arrived, so a final delayed in transit cannot slip past the window.
func (c *captureState) shouldAccept(finalizedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && !c.paused && finalizedAt.After(c.ignoreUntil)
}

// turnController paces a conversational turn from reply text to settled
// playback: capture gating, speech asset resolution, channel selection, and
// the bounded playback wait.
type turnController struct {
	resolver     SpeechResolver
	localSpeaker LocalSpeaker
	voiceID      string
	timing       TimingConfig

	session *sessionController
	capture captureState

	// active enforces one turn at a time; delivery is already serialized by
	// the runtime queue, this flag guards against direct re-entry.
	active atomic.Bool

	// speakEnded receives one signal per avatar speak-ended notification.
	speakEnded chan struct{}

	emitEvent eventEmitter

	// clock hooks, overridden in tests
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func newTurnController() *turnController {
	return &turnController{
		timing:     defaultTimingConfig(),
		speakEnded: make(chan struct{}, 1),
		emitEvent:  noopEventEmitter,
		now:        time.Now,
		after:      time.After,
	}
}

func (t *turnController) configure(session *sessionController, emitEvent eventEmitter) {
	if t == nil {
		return
	}
	t.session = session
	if emitEvent != nil {
		t.emitEvent = emitEvent
	}
	// Fill in only the missing estimator; custom margins and waits from
	// WithTiming stay as supplied.
	if t.timing.Estimator.WordsPerMinute == 0 {
		t.timing.Estimator = speech.DefaultEstimator()
	}
}

// signalSpeakEnded records an avatar speak-ended notification. Non-blocking;
// a signal with no waiter is coalesced into the buffered slot.
func (t *turnController) signalSpeakEnded() {
	select {
	case t.speakEnded <- struct{}{}:
	default:
	}
}

func (t *turnController) drainSpeakEnded() {
	select {
	case <-t.speakEnded:
	default:
	}
}

// deliver plays one companion reply and blocks until playback settles or the
// turn goes stale. It returns whether playback was attempted. Delivery never
// fails the turn: a reply that cannot be synthesized or played is still a
// completed text-only turn.
func (t *turnController) deliver(ctx context.Context, task epochTask, turnID, text string) bool {
	ctx, span := tracer.Start(ctx, "deliver reply")
	defer span.End()

	if !t.active.CompareAndSwap(false, true) {
		logger.Warn("reply delivery re-entered, skipping playback", "turnID", turnID)
		return false
	}
	defer t.active.Store(false)

	t.pauseCapture()
	defer t.resumeCapture()

	estimate := t.timing.Estimator.Estimate(text)
	t.capture.extendIgnoreWindow(t.now().Add(estimate + t.timing.SafetyMargin))

	asset := t.resolveAsset(ctx, text)
	if task.Stale() {
		return false
	}

	spokenDuration := estimate
	assetURL := ""
	if asset != nil {
		assetURL = asset.URL
		if asset.Duration > spokenDuration {
			spokenDuration = asset.Duration
		}
	}
	t.capture.extendIgnoreWindow(t.now().Add(spokenDuration + t.timing.SafetyMargin))

	wait := spokenDuration + t.timing.SafetyMargin
	if wait > t.timing.MaxPlaybackWait {
		wait = t.timing.MaxPlaybackWait
	}

	switch {
	case t.avatarConnected():
		if t.speakThroughAvatar(ctx, task, turnID, text, assetURL, wait) {
			return true
		}
		// Avatar playback failed past recovery; the reply is already in the
		// transcript, so the turn settles text-only.
		t.capture.clearIgnoreWindow()
		return false

	case asset != nil && t.localSpeaker != nil && t.captureEnabled():
		return t.speakLocally(ctx, task, turnID, text, assetURL, wait)

	default:
		// Text-only: nothing plays aloud, so there is no echo to screen.
		t.capture.clearIgnoreWindow()
		return false
	}
}

func (t *turnController) resolveAsset(ctx context.Context, text string) *asset {
	if t.resolver == nil {
		return nil
	}

	resolved, err := t.resolver.Resolve(ctx, text, t.voiceID)
	if err != nil {
		// Resolution failure downgrades to text-only, it never fails the turn.
		logger.Warn("failed to resolve speech asset", "error", err)
		return nil
	}
	if resolved == nil {
		return nil
	}
	return &asset{URL: resolved.URL, Duration: resolved.Duration}
}

// asset mirrors speech.Asset without importing it into every call site.
type asset struct {
	URL      string
	Duration time.Duration
}

func (t *turnController) avatarConnected() bool {
	if t.session == nil || t.session.avatar == nil {
		return false
	}
	session := t.session.Snapshot()
	return session.Provider == livesessions.ProviderAvatarSynthesis &&
		session.Status == livesessions.StatusConnected
}

func (t *turnController) captureEnabled() bool {
	enabled, _ := t.capture.snapshot()
	return enabled
}

// speakThroughAvatar drives the avatar channel. A recoverable session fault
// gets one reconnect-and-retry; anything further reports failure so the
// caller can settle text-only.
func (t *turnController) speakThroughAvatar(ctx context.Context, task epochTask, turnID, text, assetURL string, wait time.Duration) bool {
	ctx, span := tracer.Start(ctx, "speak through avatar")
	defer span.End()

	t.drainSpeakEnded()

	err := t.session.avatar.Speak(ctx, text, assetURL)
	if err != nil && livesessions.IsRecoverable(err) && !task.Stale() {
		logger.Info("avatar session expired mid-turn, reconnecting", "turnID", turnID)
		if reconnectErr := t.session.Reconnect(ctx); reconnectErr == nil {
			err = t.session.avatar.Speak(ctx, text, assetURL)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	if task.Stale() {
		return false
	}

	t.emitEvent(events.NewPlaybackStarted(turnID, events.PlaybackChannelAvatar))
	t.awaitPlayback(ctx, wait, t.speakEnded)
	t.emitEvent(events.NewPlaybackEnded(turnID))
	return true
}

func (t *turnController) speakLocally(ctx context.Context, task epochTask, turnID, text, assetURL string, wait time.Duration) bool {
	ctx, span := tracer.Start(ctx, "speak locally")
	defer span.End()

	ended := make(chan struct{}, 1)
	err := t.localSpeaker.Speak(ctx, text, assetURL, func() {
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("local playback failed, settling text-only", "error", err)
		t.capture.clearIgnoreWindow()
		return false
	}
	if task.Stale() {
		return false
	}

	t.emitEvent(events.NewPlaybackStarted(turnID, events.PlaybackChannelLocal))
	t.awaitPlayback(ctx, wait, ended)
	t.emitEvent(events.NewPlaybackEnded(turnID))
	return true
}

// awaitPlayback blocks until the channel reports playback ended or the
// bounded wait elapses. The bound means a provider that never sends its
// ended notification, or a measured duration that lied, cannot hang a turn.
func (t *turnController) awaitPlayback(ctx context.Context, wait time.Duration, ended <-chan struct{}) {
	select {
	case <-ended:
	case <-t.after(wait):
		logger.Debug("playback wait elapsed without ended signal", "wait", wait.String())
	case <-ctx.Done():
	}
}

func (t *turnController) pauseCapture() {
	enabled, paused := t.capture.snapshot()
	if !enabled || paused {
		return
	}
	t.capture.setPaused(true)
	t.emitEvent(events.NewCaptureStateChanged(true, true))
}

func (t *turnController) resumeCapture() {
	enabled, paused := t.capture.snapshot()
	if !enabled || !paused {
		return
	}
	t.capture.setPaused(false)
	t.emitEvent(events.NewCaptureStateChanged(true, false))
}

// interrupt halts any in-flight playback on every channel and unblocks the
// playback wait. Called after the epoch has been advanced, so the delivery
// discards its result on wake.
func (t *turnController) interrupt() {
	if t == nil {
		return
	}

	if t.avatarConnected() {
		if err := t.session.avatar.StopSpeaking(); err != nil {
			logger.Warn("failed to stop avatar speech", "error", err)
		}
	}
	if t.localSpeaker != nil {
		if err := t.localSpeaker.Stop(); err != nil {
			logger.Warn("failed to stop local playback", "error", err)
		}
	}
	t.signalSpeakEnded()
	t.capture.clearIgnoreWindow()
}
