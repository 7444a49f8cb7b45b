package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jayallenwarren/elaralo-sub000/core/events"
	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LiveSession is the current real-time channel. The session controller is
// its single writer; every other component reads snapshots.
type LiveSession struct {
	Provider    livesessions.Provider
	Status      livesessions.Status
	Role        livesessions.Role
	RoomID      string
	ErrorDetail string
}

// sessionController owns the live-channel lifecycle for the current
// companion: connection attempts, reconnects, stop, broadcast liveness
// observation, and the admission handshake hand-off.
type sessionController struct {
	mu      sync.RWMutex
	session LiveSession

	// generation invalidates callbacks from superseded connection attempts.
	// Stop bumps it, so a transition to Idle always wins a same-tick race
	// against a late success callback.
	generation atomic.Int64

	// reconnecting serializes reconnect attempts; a second Reconnect while
	// one is in flight is a no-op.
	reconnecting atomic.Bool
	// autoReconnectUsed caps automatic recovery at one reconnect per outage.
	autoReconnectUsed atomic.Bool

	avatar    AvatarProvider
	broadcast BroadcastProvider

	companionID  string
	displayName  string
	pollInterval time.Duration

	credential livesessions.Credential

	// broadcastLive tracks whether a broadcast is active in the companion's
	// room, whether or not the local participant is connected to it. It is
	// fed by the room-status poller and by session status piggybacked on
	// chat replies.
	broadcastLive   bool
	broadcastRoomID string

	admission   *admissionController
	roomWatcher *poller

	emitEvent eventEmitter
	// onBroadcastEnded is the deferred-queue flush trigger; fired exactly
	// once per observed live -> ended transition.
	onBroadcastEnded func()
	// onSpeakEnded forwards avatar playback-ended notifications to the turn
	// controller's bounded wait.
	onSpeakEnded func()

	baseContext context.Context
}

func newSessionController(companionID string) *sessionController {
	return &sessionController{
		session:          LiveSession{Status: livesessions.StatusIdle},
		companionID:      companionID,
		pollInterval:     defaultPollInterval,
		emitEvent:        noopEventEmitter,
		onBroadcastEnded: func() {},
		onSpeakEnded:     func() {},
		baseContext:      context.Background(),
	}
}

func (s *sessionController) configure(ctx context.Context, emitEvent eventEmitter, onBroadcastEnded func()) {
	if s == nil {
		return
	}

	s.baseContext = ctx
	if emitEvent != nil {
		s.emitEvent = emitEvent
	}
	if onBroadcastEnded != nil {
		s.onBroadcastEnded = onBroadcastEnded
	}
	s.admission = newAdmissionController(s.broadcast, s.pollInterval, s.resolveAdmission)
}

// Snapshot returns a point-in-time copy of the session value.
func (s *sessionController) Snapshot() LiveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// transition is the pure state-transition function consuming the typed
// provider event enum. It has no side effects so the machine is testable
// independent of any concrete transport.
func transition(session LiveSession, event events.Event) LiveSession {
	switch typedEvent := event.(type) {
	case events.SessionConnected:
		if typedEvent.RoomID != "" {
			session.RoomID = typedEvent.RoomID
		}
		session.Status = livesessions.StatusConnected
		session.ErrorDetail = ""
	case events.SessionConnectFailed:
		session.Status = livesessions.StatusError
		session.ErrorDetail = typedEvent.Detail
	case events.SessionDropped:
		session.Status = livesessions.StatusError
		session.ErrorDetail = typedEvent.Detail
	case events.BroadcastEnded:
		session = LiveSession{Provider: session.Provider, Status: livesessions.StatusIdle}
	case events.AdmissionResolved:
		if session.Status == livesessions.StatusWaiting && typedEvent.Admitted {
			session.Status = livesessions.StatusConnected
			session.ErrorDetail = ""
		}
	}
	return session
}

// applyEvent runs the transition function under the single-writer lock,
// discarding events tagged with a superseded connection generation.
func (s *sessionController) applyEvent(generation int64, event events.Event) {
	s.mu.Lock()
	if generation != s.generation.Load() {
		s.mu.Unlock()
		logger.Debug("discarding session event from superseded attempt", "kind", string(event.Kind()))
		return
	}
	s.session = transition(s.session, event)
	s.mu.Unlock()

	s.emitEvent(event)
}

// Start begins a live session. Valid from Idle or, on user retry, from
// Error; network errors do not retry automatically, the caller re-invokes
// Start.
func (s *sessionController) Start(ctx context.Context, provider livesessions.Provider, roleHint livesessions.Role) error {
	ctx, span := tracer.Start(ctx, "start live session")
	defer span.End()

	s.mu.Lock()
	// Error is terminal only until the user retries; a retry re-enters
	// Connecting through the same path as a fresh start.
	if s.session.Status != livesessions.StatusIdle && s.session.Status != livesessions.StatusError {
		s.mu.Unlock()
		return fmt.Errorf("live session can only be started from idle or error, currently %s", s.session.Status)
	}
	generation := s.generation.Add(1)
	s.session = LiveSession{Provider: provider, Status: livesessions.StatusConnecting, Role: roleHint}
	s.mu.Unlock()
	s.autoReconnectUsed.Store(false)
	s.notifyChanged()

	var err error
	switch provider {
	case livesessions.ProviderAvatarSynthesis:
		err = s.startAvatar(ctx, generation)
	case livesessions.ProviderBroadcast:
		err = s.startBroadcast(ctx, generation)
	default:
		err = fmt.Errorf("unknown live provider: %s", provider)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.applyEvent(generation, events.NewSessionConnectFailed(err.Error(), livesessions.IsRecoverable(err)))
	}
	return err
}

func (s *sessionController) startAvatar(ctx context.Context, generation int64) error {
	if s.avatar == nil {
		return fmt.Errorf("no avatar provider configured")
	}

	return s.avatar.Connect(ctx,
		livesessions.WithConnectedCallback(func(roomID string) {
			s.autoReconnectUsed.Store(false)
			s.applyEvent(generation, events.NewSessionConnected(roomID))
		}),
		livesessions.WithSpeakEndedCallback(func(string) {
			s.onSpeakEnded()
		}),
		livesessions.WithDisconnectedCallback(func(err error, recoverable bool) {
			s.handleDrop(generation, err, recoverable)
		}),
		livesessions.WithErrorCallback(func(err error) {
			s.handleDrop(generation, err, livesessions.IsRecoverable(err))
		}),
	)
}

// handleDrop applies the failure taxonomy: a recoverable session fault gets
// at most one automatic reconnect per outage; everything else surfaces.
func (s *sessionController) handleDrop(generation int64, err error, recoverable bool) {
	if recoverable && s.autoReconnectUsed.CompareAndSwap(false, true) {
		go func() {
			if reconnectErr := s.Reconnect(s.baseContext); reconnectErr != nil {
				logger.Warn("automatic reconnect failed", "error", reconnectErr)
			}
		}()
		return
	}
	s.applyEvent(generation, events.NewSessionDropped(err.Error(), recoverable))
}

func (s *sessionController) startBroadcast(ctx context.Context, generation int64) error {
	if s.broadcast == nil {
		return fmt.Errorf("no broadcast provider configured")
	}

	room, err := s.broadcast.ResolveRoom(ctx, s.companionID)
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast room: %w", err)
	}

	role, err := s.broadcast.ResolveRole(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast role: %w", err)
	}

	s.mu.Lock()
	if generation == s.generation.Load() {
		s.session.Role = role
		s.session.RoomID = room.ID
	}
	s.mu.Unlock()

	switch role {
	case livesessions.RolePresenter:
		credential, err := s.broadcast.Start(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("failed to start broadcast: %w", err)
		}
		s.setCredential(*credential)
		s.noteBroadcastStatus(true, room.ID)
		s.applyEvent(generation, events.NewSessionConnected(room.ID))

	case livesessions.RoleAttendee:
		credential, err := s.broadcast.SubscriberCredential(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("failed to join broadcast: %w", err)
		}
		s.setCredential(*credential)
		s.applyEvent(generation, events.NewSessionConnected(room.ID))

	case livesessions.RoleObserver:
		if room.Live {
			credential, err := s.broadcast.SubscriberCredential(ctx, room.ID)
			if err != nil {
				return fmt.Errorf("failed to join live broadcast: %w", err)
			}
			s.setCredential(*credential)
			s.applyEvent(generation, events.NewSessionConnected(room.ID))
			break
		}

		s.mu.Lock()
		if generation == s.generation.Load() {
			s.session.Status = livesessions.StatusWaiting
		}
		s.mu.Unlock()
		s.notifyChanged()
		if err := s.admission.begin(ctx, room.ID, s.displayName); err != nil {
			return fmt.Errorf("failed to request admission: %w", err)
		}

	default:
		return fmt.Errorf("unresolved broadcast role")
	}

	s.watchRoom(ctx, room.ID)
	return nil
}

func (s *sessionController) setCredential(credential livesessions.Credential) {
	s.mu.Lock()
	s.credential = credential
	s.mu.Unlock()
}

// Credential returns the current provider credential, if any.
func (s *sessionController) Credential() livesessions.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// resolveAdmission is the admission controller's terminal callback.
func (s *sessionController) resolveAdmission(event events.AdmissionResolved) {
	if event.Admitted {
		s.setCredential(livesessions.Credential{Token: event.Credential})
	}
	s.applyEvent(s.generation.Load(), event)
	s.notifyChanged()
}

// watchRoom polls broadcast liveness while any broadcast interest exists.
// The poll stops itself once the room reports not-live after having been
// live, which is the single flush trigger for the deferred queue.
func (s *sessionController) watchRoom(ctx context.Context, roomID string) {
	s.mu.Lock()
	if s.roomWatcher != nil {
		s.mu.Unlock()
		return
	}
	watcher := startPoller(ctx, s.pollInterval, func(ctx context.Context) bool {
		room, err := s.broadcast.RoomStatus(ctx, roomID)
		if err != nil {
			logger.Warn("failed to poll room status", "error", err)
			return true
		}
		wasLive := s.BroadcastLive()
		s.noteBroadcastStatus(room.Live, roomID)
		// Keep watching through the not-yet-live phase; stop only after
		// the live -> ended transition has been handled.
		return !(wasLive && !room.Live)
	})
	s.roomWatcher = watcher
	s.mu.Unlock()
}

func (s *sessionController) stopRoomWatcher() {
	s.mu.Lock()
	watcher := s.roomWatcher
	s.roomWatcher = nil
	s.mu.Unlock()

	if watcher != nil {
		go watcher.Stop()
	}
}

// noteBroadcastStatus records backend-observed broadcast liveness. Both the
// room-status poller and session status piggybacked on chat replies feed it;
// the transition detection here deduplicates so the ended trigger fires once.
func (s *sessionController) noteBroadcastStatus(live bool, roomID string) {
	s.mu.Lock()
	wasLive := s.broadcastLive
	s.broadcastLive = live
	if live {
		s.broadcastRoomID = roomID
	}
	s.mu.Unlock()

	switch {
	case live && !wasLive:
		s.emitEvent(events.NewBroadcastStarted(roomID))
	case !live && wasLive:
		s.handleBroadcastEnded(roomID)
	}
}

func (s *sessionController) handleBroadcastEnded(roomID string) {
	s.mu.Lock()
	s.broadcastRoomID = ""
	connected := s.session.Provider == livesessions.ProviderBroadcast &&
		(s.session.Status == livesessions.StatusConnected || s.session.Status == livesessions.StatusWaiting)
	if connected {
		s.session = transition(s.session, events.NewBroadcastEnded(roomID))
		s.credential = livesessions.Credential{}
	}
	s.mu.Unlock()

	s.admission.stop()
	s.stopRoomWatcher()
	s.emitEvent(events.NewBroadcastEnded(roomID))
	s.onBroadcastEnded()
}

// BroadcastLive reports whether a broadcast is active in the room,
// regardless of whether the local participant is connected to it.
func (s *sessionController) BroadcastLive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadcastLive
}

// JoinedBroadcast reports whether the local participant is inside the live
// broadcast's shared chat (presenter, attendee, or admitted observer).
// Participants who are joined never have turns deferred.
func (s *sessionController) JoinedBroadcast() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Provider == livesessions.ProviderBroadcast &&
		s.session.Status == livesessions.StatusConnected
}

// Stop releases the live channel. Idempotent and safe under concurrent
// triggers: exactly one caller performs the resource release, and the
// generation bump means Idle wins any same-tick race with a late success.
func (s *sessionController) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.session.Status == livesessions.StatusIdle {
		s.mu.Unlock()
		return
	}
	s.generation.Add(1)
	previous := s.session
	s.session = LiveSession{Status: livesessions.StatusIdle}
	s.credential = livesessions.Credential{}
	s.mu.Unlock()

	s.admission.stop()
	s.stopRoomWatcher()

	if previous.Provider == livesessions.ProviderAvatarSynthesis && s.avatar != nil {
		if err := s.avatar.Disconnect(); err != nil {
			recordedErr := fmt.Errorf("failed to disconnect avatar session: %w", err)
			span := trace.SpanFromContext(ctx)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}
	}

	// An observer stopping must not end the session for everyone else;
	// only the presenter notifies the backend.
	if previous.Provider == livesessions.ProviderBroadcast &&
		previous.Role == livesessions.RolePresenter && s.broadcast != nil {
		if err := s.broadcast.Stop(ctx, previous.RoomID); err != nil {
			logger.Warn("failed to notify backend of broadcast stop", "error", err)
		}
		s.noteBroadcastStatus(false, previous.RoomID)
	}

	s.notifyChanged()
}

// Reconnect re-establishes the live channel after a named recoverable
// fault. Attempts are serialized: a second call while one is in flight is a
// no-op. Success returns to Connected; failure lands in Idle with detail.
func (s *sessionController) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	status := s.session.Status
	if status != livesessions.StatusConnected && status != livesessions.StatusError {
		s.mu.Unlock()
		return fmt.Errorf("reconnect is only valid from connected or error, currently %s", status)
	}
	if !s.reconnecting.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	// Reconnect continues the current logical connection, so it reuses its
	// generation; only Stop and Start supersede attempts.
	generation := s.generation.Load()
	provider := s.session.Provider
	roomID := s.session.RoomID
	s.session.Status = livesessions.StatusReconnecting
	s.mu.Unlock()
	defer s.reconnecting.Store(false)
	s.notifyChanged()

	var err error
	switch provider {
	case livesessions.ProviderAvatarSynthesis:
		if s.avatar == nil {
			err = fmt.Errorf("no avatar provider configured")
		} else {
			err = s.avatar.Reconnect(ctx)
		}
	case livesessions.ProviderBroadcast:
		var credential *livesessions.Credential
		if s.broadcast == nil {
			err = fmt.Errorf("no broadcast provider configured")
		} else if credential, err = s.broadcast.SubscriberCredential(ctx, roomID); err == nil {
			s.setCredential(*credential)
		}
	default:
		err = fmt.Errorf("unknown live provider: %s", provider)
	}

	if err != nil {
		s.mu.Lock()
		if generation == s.generation.Load() {
			s.session = LiveSession{Provider: provider, Status: livesessions.StatusIdle, ErrorDetail: err.Error()}
		}
		s.mu.Unlock()
		s.notifyChanged()
		return err
	}

	s.autoReconnectUsed.Store(false)
	s.applyEvent(generation, events.NewSessionConnected(roomID))
	return nil
}

// notifyChanged emits the generic change event for transitions that have no
// typed provider event of their own.
func (s *sessionController) notifyChanged() {
	s.emitEvent(events.NewSessionChanged())
}
