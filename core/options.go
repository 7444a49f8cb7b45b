package orchestration

import (
	"context"
	"time"

	"github.com/jayallenwarren/elaralo-sub000/core/capture"
	"github.com/jayallenwarren/elaralo-sub000/core/chat"
	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
	"github.com/jayallenwarren/elaralo-sub000/core/speech"
)

type OrchestratorOption func(*Orchestrator)

// ChatBackend produces the companion's reply to one user turn.
type ChatBackend interface {
	Reply(ctx context.Context, history []chat.Turn, state chat.State) (*chat.Reply, error)
}

func WithChatBackend(client ChatBackend) OrchestratorOption {
	return func(o *Orchestrator) { o.chatBackend = client }
}

// SpeechResolver turns reply text into a playable asset, or nil when the
// text cannot be synthesized.
type SpeechResolver interface {
	Resolve(ctx context.Context, text, voiceID string) (*speech.Asset, error)
}

func WithSpeechResolver(resolver SpeechResolver) OrchestratorOption {
	return func(o *Orchestrator) { o.turns.resolver = resolver }
}

// AvatarProvider is the talking-avatar live channel.
type AvatarProvider interface {
	Connect(ctx context.Context, opts ...livesessions.ConnectOption) error
	Reconnect(ctx context.Context) error
	Speak(ctx context.Context, text, assetURL string) error
	StopSpeaking() error
	Disconnect() error
}

func WithAvatarProvider(provider AvatarProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.session.avatar = provider }
}

// BroadcastProvider is the human broadcast/conferencing backend surface:
// room and role resolution, presenter start/stop, subscriber credentials,
// live status, and the admission handshake.
type BroadcastProvider interface {
	ResolveRoom(ctx context.Context, companionID string) (*livesessions.Room, error)
	ResolveRole(ctx context.Context, roomID string) (livesessions.Role, error)
	Start(ctx context.Context, roomID string) (*livesessions.Credential, error)
	Stop(ctx context.Context, roomID string) error
	SubscriberCredential(ctx context.Context, roomID string) (*livesessions.Credential, error)
	RoomStatus(ctx context.Context, roomID string) (*livesessions.Room, error)
	RelayChat(ctx context.Context, roomID, text string) error
	CreateJoinRequest(ctx context.Context, roomID, displayName string) (*livesessions.JoinRequest, error)
	JoinRequestStatus(ctx context.Context, requestID string) (*livesessions.JoinRequest, error)
	PendingJoinRequests(ctx context.Context, roomID string) ([]livesessions.JoinRequest, error)
	Admit(ctx context.Context, requestID string) error
	Deny(ctx context.Context, requestID string) error
}

func WithBroadcastProvider(provider BroadcastProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.session.broadcast = provider }
}

// CaptureClient is the speech-to-text primitive feeding hands-free input.
type CaptureClient interface {
	Transcribe(ctx context.Context, opts ...capture.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithCaptureClient(client CaptureClient) OrchestratorOption {
	return func(o *Orchestrator) { o.captureClient = client }
}

// LocalSpeaker plays synthesized speech through a local output device when
// no avatar channel is connected. onEnded fires when playback drains; the
// turn controller still bounds the wait so a silent device cannot hang a
// turn.
type LocalSpeaker interface {
	Speak(ctx context.Context, text, assetURL string, onEnded func()) error
	Stop() error
}

func WithLocalSpeaker(speaker LocalSpeaker) OrchestratorOption {
	return func(o *Orchestrator) { o.turns.localSpeaker = speaker }
}

// WithVoice selects the synthesized voice used for speech asset resolution.
func WithVoice(voiceID string) OrchestratorOption {
	return func(o *Orchestrator) { o.turns.voiceID = voiceID }
}

// WithDisplayName sets the name shown on this participant's join requests.
func WithDisplayName(displayName string) OrchestratorOption {
	return func(o *Orchestrator) { o.session.displayName = displayName }
}

// WithSystemPrompt seeds the conversation with a leading system entry that
// survives history bounding.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.conversation.seedSystem(prompt)
	}
}

// WithTiming overrides the empirically tuned turn-timing defaults.
func WithTiming(timing TimingConfig) OrchestratorOption {
	return func(o *Orchestrator) { o.turns.timing = timing }
}

// WithPollInterval overrides the 1s default for all polling loops.
func WithPollInterval(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.session.pollInterval = interval }
}

// TimingConfig carries the turn controller's tuned numbers. They are
// deployment defaults, not contracts.
type TimingConfig struct {
	// Estimator computes the spoken-duration fallback from reply text.
	Estimator speech.Estimator
	// SafetyMargin is added to the playback wait and the ignore window.
	SafetyMargin time.Duration
	// MaxPlaybackWait caps the wait so a stalled asset never hangs a turn.
	MaxPlaybackWait time.Duration
}

func defaultTimingConfig() TimingConfig {
	return TimingConfig{
		Estimator:       speech.DefaultEstimator(),
		SafetyMargin:    900 * time.Millisecond,
		MaxPlaybackWait: 90 * time.Second,
	}
}

type OrchestrateOptions struct {
	onReply               func(reply string)
	onReplyEnd            func(spoken bool)
	onTurnFailed          func(detail string)
	onCancellation        func()
	onSessionChanged      func()
	onNotice              func(notice string)
	onCaptureStateChanged func(enabled, paused bool)
	onPlaybackStarted     func(channel string)
	onPlaybackEnded       func()
	onEntryAppended       func(index int)
	onPlaceholderReplaced func(index int, text string)
	onJoinRequests        func(requests []livesessions.JoinRequest)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithReplyCallback registers a callback for companion reply text, fired
// when the reply is revealed in the transcript.
func WithReplyCallback(callback func(reply string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onReply = callback
	}
}

// WithReplyEndCallback registers a callback for turn completion; spoken
// reports whether playback was attempted.
func WithReplyEndCallback(callback func(spoken bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onReplyEnd = callback
	}
}

// WithTurnFailedCallback registers a callback for surfaced turn failures.
func WithTurnFailedCallback(callback func(detail string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnFailed = callback
	}
}

func WithCancellationCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCancellation = callback
	}
}

// WithSessionChangedCallback registers a callback fired whenever the live
// session value transitions; read the new value with [Orchestrator.Session].
func WithSessionChangedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSessionChanged = callback
	}
}

// WithNoticeCallback registers a callback for one-line user-facing notices
// (admission denials, capture permission failures).
func WithNoticeCallback(callback func(notice string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onNotice = callback
	}
}

func WithCaptureStateChangedCallback(callback func(enabled, paused bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCaptureStateChanged = callback
	}
}

func WithPlaybackStartedCallback(callback func(channel string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPlaybackStarted = callback
	}
}

func WithPlaybackEndedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPlaybackEnded = callback
	}
}

// WithEntryAppendedCallback registers a callback for new transcript entries.
func WithEntryAppendedCallback(callback func(index int)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onEntryAppended = callback
	}
}

// WithPlaceholderReplacedCallback registers a callback for in-place
// placeholder replacements during a deferred-queue flush.
func WithPlaceholderReplacedCallback(callback func(index int, text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPlaceholderReplaced = callback
	}
}

// WithJoinRequestsCallback registers a presenter-side callback fired with
// the pending join-request list on every poll while presenting.
func WithJoinRequestsCallback(callback func(requests []livesessions.JoinRequest)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onJoinRequests = callback
	}
}
