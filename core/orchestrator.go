package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jayallenwarren/elaralo-sub000/core/capture"
	"github.com/jayallenwarren/elaralo-sub000/core/chat"
	"github.com/jayallenwarren/elaralo-sub000/core/events"
	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const commandQueueCapacity = 10

// command is one unit of serialized orchestration work. Everything that
// mutates conversation history, the transcript, or the deferred queue runs
// on the single runtime consumer, so those structures never race.
type command struct {
	name     string
	run      func(ctx context.Context)
	queuedAt time.Time
}

// Orchestrator is the client-side core of a companion conversation: it
// routes user turns to the chat backend, paces reply playback, manages the
// live channel, and defers turns while someone else's broadcast holds the
// shared chat.
type Orchestrator struct {
	companionID string

	chatBackend   ChatBackend
	captureClient CaptureClient

	session      *sessionController
	turns        *turnController
	conversation *conversation
	deferred     *deferredQueue
	transcript   *transcript

	epochs epochCounter

	queue     chan command
	closeCh   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool

	// turnCancel cancels the context of the in-flight turn; guarded by
	// turnMu because StopAllCommunication races turn starts.
	turnMu     sync.Mutex
	turnCancel context.CancelFunc

	captureMu     sync.Mutex
	captureCancel context.CancelFunc

	watcherMu      sync.Mutex
	requestWatcher *poller

	emitEvent          eventEmitter
	orchestrateOptions OrchestrateOptions
	baseContext        context.Context
}

func NewOrchestrator(companionID string, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		companionID:  companionID,
		session:      newSessionController(companionID),
		turns:        newTurnController(),
		conversation: newConversation(),
		deferred:     newDeferredQueue(),
		transcript:   newTranscript(),
		queue:        make(chan command, commandQueueCapacity),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
		emitEvent:    noopEventEmitter,
		baseContext:  context.Background(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Orchestrate wires the caller's callbacks and starts the runtime consumer.
// Call it once; subsequent calls are no-ops.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	if o == nil {
		return fmt.Errorf("orchestrator is required")
	}
	if o.chatBackend == nil {
		return fmt.Errorf("a chat backend is required")
	}

	o.startOnce.Do(func() {
		for _, opt := range opts {
			opt(&o.orchestrateOptions)
		}

		o.baseContext = ctx
		o.emitEvent = newCallbackEventEmitter(o.orchestrateOptions)
		o.transcript.setEventEmitter(o.emitEvent)
		o.turns.configure(o.session, o.emitEvent)
		o.session.onSpeakEnded = o.turns.signalSpeakEnded
		o.session.configure(ctx, o.emitEvent, func() {
			// The ended transition can be observed on the runtime consumer
			// itself (broadcast status rides in on chat replies), so the
			// flush trigger must never block on its own queue.
			if !o.tryEnqueue("flush deferred", o.processFlush) {
				go o.enqueue("flush deferred", o.processFlush)
			}
		})

		o.started.Store(true)
		go func() {
			defer close(o.done)
			for {
				select {
				case <-o.closeCh:
					return
				case queued := <-o.queue:
					if o.isClosed() {
						return
					}
					o.process(queued)
				}
			}
		}()
	})

	return nil
}

func (o *Orchestrator) process(queued command) {
	ctx, span := tracer.Start(o.baseContext, queued.name)
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	o.turnMu.Lock()
	o.turnCancel = cancel
	o.turnMu.Unlock()
	defer func() {
		cancel()
		o.turnMu.Lock()
		o.turnCancel = nil
		o.turnMu.Unlock()
	}()

	queued.run(ctx)
}

func (o *Orchestrator) isClosed() bool {
	select {
	case <-o.closeCh:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) enqueue(name string, run func(ctx context.Context)) bool {
	if o == nil || !o.started.Load() || o.isClosed() {
		return false
	}

	item := command{name: name, run: run, queuedAt: time.Now()}
	select {
	case <-o.closeCh:
		return false
	case o.queue <- item:
		return true
	}
}

// tryEnqueue is the non-blocking variant for callers that may already be
// running on the consumer goroutine.
func (o *Orchestrator) tryEnqueue(name string, run func(ctx context.Context)) bool {
	if o == nil || !o.started.Load() || o.isClosed() {
		return false
	}

	select {
	case o.queue <- command{name: name, run: run, queuedAt: time.Now()}:
		return true
	default:
		return false
	}
}

// SendText submits one user turn. Turns are processed strictly in
// submission order on the runtime consumer.
func (o *Orchestrator) SendText(text string) error {
	if text == "" {
		return fmt.Errorf("text is required")
	}
	if !o.enqueue("process user turn", func(ctx context.Context) {
		o.processText(ctx, text)
	}) {
		return fmt.Errorf("orchestrator is not running")
	}
	return nil
}

// processText runs the turn protocol for one user message, or defers it
// when a broadcast the user is not part of holds the shared chat.
func (o *Orchestrator) processText(ctx context.Context, text string) {
	task := o.epochs.NewTask()
	turnID := uuid.NewString()

	o.transcript.Append(EntryKindUser, text)

	if o.session.BroadcastLive() {
		// A joined participant's message belongs to the broadcast's shared
		// chat; it is relayed through the provider and never reaches the
		// chat backend, not even as conversation context.
		if o.session.JoinedBroadcast() {
			o.relayBroadcastChat(ctx, text)
			return
		}
		placeholderIndex := o.transcript.Append(EntryKindPlaceholder, "…")
		o.deferred.Enqueue(text, o.conversation.State(), o.conversation.History(), placeholderIndex)
		return
	}

	o.emitEvent(events.NewTurnStarted(turnID))

	// Capture pauses for the whole exchange, not just playback, so speech
	// overheard while the reply is in flight cannot queue a second turn.
	o.turns.pauseCapture()
	defer o.turns.resumeCapture()

	o.conversation.appendUser(text)

	reply, err := o.chatBackend.Reply(ctx, o.conversation.History(), o.conversation.State())
	if err != nil {
		if task.Stale() || ctx.Err() != nil {
			return
		}
		detail := fmt.Sprintf("I couldn't reach the conversation service: %v", err)
		o.transcript.Append(EntryKindError, detail)
		o.emitEvent(events.NewTurnFailed(turnID, detail))
		return
	}
	if task.Stale() {
		return
	}

	o.session.noteBroadcastStatus(reply.SessionStatus.BroadcastLive, reply.SessionStatus.RoomID)
	o.conversation.appendCompanion(reply.ReplyText)
	o.conversation.applyStateUpdates(reply.SessionStateUpdates)
	o.transcript.Append(EntryKindCompanion, reply.ReplyText)
	if o.orchestrateOptions.onReply != nil {
		o.orchestrateOptions.onReply(reply.ReplyText)
	}

	spoken := o.turns.deliver(ctx, task, turnID, reply.ReplyText)
	if task.Stale() {
		return
	}
	o.emitEvent(events.NewTurnCompleted(turnID, spoken))
}

// relayBroadcastChat hands a joined participant's message to the broadcast
// provider's shared chat.
func (o *Orchestrator) relayBroadcastChat(ctx context.Context, text string) {
	if o.session.broadcast == nil {
		return
	}
	roomID := o.session.Snapshot().RoomID
	if err := o.session.broadcast.RelayChat(ctx, roomID, text); err != nil {
		logger.Warn("failed to relay broadcast chat", "error", err)
	}
}

// processFlush replays the deferred queue after a broadcast ends.
func (o *Orchestrator) processFlush(ctx context.Context) {
	failed, err := o.deferred.Flush(ctx,
		func(ctx context.Context, history []chat.Turn, state chat.State) (*chat.Reply, error) {
			return o.chatBackend.Reply(ctx, history, state)
		},
		func(item deferredTurn, reply *chat.Reply) {
			if replaceErr := o.transcript.ReplacePlaceholder(item.PlaceholderIndex, reply.ReplyText); replaceErr != nil {
				logger.Warn("failed to replace deferred placeholder", "error", replaceErr)
			}
			o.conversation.append(chat.Turn{Role: chat.RoleUser, Text: item.Text, At: item.QueuedAt})
			o.conversation.appendCompanion(reply.ReplyText)
			o.conversation.applyStateUpdates(reply.SessionStateUpdates)
			if o.orchestrateOptions.onReply != nil {
				o.orchestrateOptions.onReply(reply.ReplyText)
			}
		},
	)
	if err != nil {
		detail := fmt.Sprintf("I couldn't catch up on your earlier message: %v", err)
		o.transcript.Append(EntryKindError, detail)
		turnID := ""
		if failed != nil {
			turnID = failed.ID
		}
		o.emitEvent(events.NewTurnFailed(turnID, detail))
	}
}

// StartLive begins a live session with the configured provider.
func (o *Orchestrator) StartLive(ctx context.Context, provider livesessions.Provider, roleHint livesessions.Role) error {
	if o == nil {
		return fmt.Errorf("orchestrator is required")
	}

	if err := o.session.Start(ctx, provider, roleHint); err != nil {
		return err
	}

	session := o.session.Snapshot()
	if session.Role == livesessions.RolePresenter &&
		session.Status == livesessions.StatusConnected {
		o.watchJoinRequests(ctx, session.RoomID)
	}
	return nil
}

// StopLive releases the live channel. Safe to call at any time, from any
// state, repeatedly.
func (o *Orchestrator) StopLive(ctx context.Context) {
	if o == nil {
		return
	}
	o.stopJoinRequestWatcher()
	o.session.Stop(ctx)
}

// ReconnectLive re-establishes the live channel after a recoverable fault.
func (o *Orchestrator) ReconnectLive(ctx context.Context) error {
	if o == nil {
		return fmt.Errorf("orchestrator is required")
	}
	return o.session.Reconnect(ctx)
}

// StopAllCommunication cancels the in-flight turn, halts playback on every
// channel, and discards any results still in flight. Deferred turns are
// durable and survive it.
func (o *Orchestrator) StopAllCommunication() {
	if o == nil {
		return
	}

	o.epochs.Advance()

	o.turnMu.Lock()
	cancel := o.turnCancel
	o.turnMu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.turns.interrupt()
	o.emitEvent(events.NewTurnCancelled())
}

// EnableCapture opens the hands-free input channel. A capture client that
// cannot start (no permission, no device) leaves capture disabled and
// surfaces a notice; it never fails a turn.
func (o *Orchestrator) EnableCapture(ctx context.Context) error {
	if o == nil {
		return fmt.Errorf("orchestrator is required")
	}
	if o.captureClient == nil {
		return fmt.Errorf("no capture client configured")
	}

	o.captureMu.Lock()
	defer o.captureMu.Unlock()
	if o.captureCancel != nil {
		return nil
	}

	captureCtx, cancel := context.WithCancel(ctx)
	err := o.captureClient.Transcribe(captureCtx,
		capture.WithTranscriptionCallback(o.handleFinalTranscript),
	)
	if err != nil {
		cancel()
		span := trace.SpanFromContext(ctx)
		recordedErr := fmt.Errorf("failed to start capture: %w", err)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		if o.orchestrateOptions.onNotice != nil {
			o.orchestrateOptions.onNotice("Voice input is unavailable right now.")
		}
		return recordedErr
	}

	o.captureCancel = cancel
	o.turns.capture.setEnabled(true)
	o.emitEvent(events.NewCaptureStateChanged(true, false))
	return nil
}

// DisableCapture closes the hands-free input channel. Idempotent.
func (o *Orchestrator) DisableCapture() {
	if o == nil {
		return
	}

	o.captureMu.Lock()
	cancel := o.captureCancel
	o.captureCancel = nil
	o.captureMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	o.turns.capture.setEnabled(false)
	o.emitEvent(events.NewCaptureStateChanged(false, false))
}

// SendAudio forwards raw input audio to the capture client.
func (o *Orchestrator) SendAudio(audio []byte) {
	if o == nil || o.captureClient == nil {
		return
	}
	if err := o.captureClient.SendAudio(audio); err != nil {
		logger.Warn("failed to forward capture audio", "error", err)
	}
}

// SendTranscript submits externally captured speech as a user turn. The
// transcript is screened against the capture ignore window exactly like
// hands-free input, so companion speech echoed back by a third-party
// transcriber is still discarded.
func (o *Orchestrator) SendTranscript(transcript string, finalizedAt time.Time) {
	if o == nil {
		return
	}
	o.handleFinalTranscript(transcript, finalizedAt)
}

// handleFinalTranscript screens a finalized utterance against the capture
// gate and submits it as a user turn when it qualifies.
func (o *Orchestrator) handleFinalTranscript(transcript string, finalizedAt time.Time) {
	if transcript == "" {
		return
	}
	if !o.turns.capture.shouldAccept(finalizedAt) {
		logger.Debug("dropping transcript finalized inside ignore window", "finalizedAt", finalizedAt)
		return
	}

	o.emitEvent(events.NewCaptureTranscriptFinal(transcript))
	if err := o.SendText(transcript); err != nil {
		logger.Warn("failed to submit captured transcript", "error", err)
	}
}

// watchJoinRequests polls the pending join-request list while presenting.
func (o *Orchestrator) watchJoinRequests(ctx context.Context, roomID string) {
	if o.orchestrateOptions.onJoinRequests == nil || o.session.broadcast == nil {
		return
	}

	o.stopJoinRequestWatcher()
	watcher := startPoller(ctx, o.session.pollInterval, func(ctx context.Context) bool {
		requests, err := o.session.broadcast.PendingJoinRequests(ctx, roomID)
		if err != nil {
			logger.Warn("failed to poll pending join requests", "error", err)
			return true
		}
		o.orchestrateOptions.onJoinRequests(requests)
		return true
	})

	o.watcherMu.Lock()
	o.requestWatcher = watcher
	o.watcherMu.Unlock()
}

func (o *Orchestrator) stopJoinRequestWatcher() {
	o.watcherMu.Lock()
	watcher := o.requestWatcher
	o.requestWatcher = nil
	o.watcherMu.Unlock()

	watcher.Stop()
}

// PendingJoinRequests lists unresolved admission requests for the room the
// presenter currently holds.
func (o *Orchestrator) PendingJoinRequests(ctx context.Context) ([]livesessions.JoinRequest, error) {
	session := o.session.Snapshot()
	if session.Role != livesessions.RolePresenter || o.session.broadcast == nil {
		return nil, fmt.Errorf("join requests are only visible to the presenter")
	}
	return o.session.broadcast.PendingJoinRequests(ctx, session.RoomID)
}

// Admit grants a pending join request. Idempotent: the backend treats
// admitting an already-resolved request as a no-op.
func (o *Orchestrator) Admit(ctx context.Context, requestID string) error {
	if o.session.broadcast == nil {
		return fmt.Errorf("no broadcast provider configured")
	}
	return o.session.broadcast.Admit(ctx, requestID)
}

// Deny declines a pending join request. Idempotent, like Admit.
func (o *Orchestrator) Deny(ctx context.Context, requestID string) error {
	if o.session.broadcast == nil {
		return fmt.Errorf("no broadcast provider configured")
	}
	return o.session.broadcast.Deny(ctx, requestID)
}

// Session returns a snapshot of the live session.
func (o *Orchestrator) Session() LiveSession {
	return o.session.Snapshot()
}

// Transcript returns a snapshot of the visible conversation.
func (o *Orchestrator) Transcript() []Entry {
	return o.transcript.Snapshot()
}

// DeferredCount reports how many turns await the next flush.
func (o *Orchestrator) DeferredCount() int {
	return o.deferred.Len()
}

// Close stops the runtime, cancels all in-flight work, and releases the
// live channel and capture client.
func (o *Orchestrator) Close() {
	if o == nil {
		return
	}

	o.closeOnce.Do(func() {
		o.StopAllCommunication()
		o.DisableCapture()
		o.StopLive(o.baseContext)

		close(o.closeCh)
		if o.started.Load() {
			<-o.done
		}
	})
}
