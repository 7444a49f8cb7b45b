package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jayallenwarren/elaralo-sub000/core/capture"
	"github.com/jayallenwarren/elaralo-sub000/core/chat"
	"github.com/jayallenwarren/elaralo-sub000/core/livesessions"
	"github.com/jayallenwarren/elaralo-sub000/core/speech"
)

type fakeChatBackend struct {
	mu        sync.Mutex
	histories [][]chat.Turn
	states    []chat.State
	replyFn   func(history []chat.Turn, state chat.State) (*chat.Reply, error)
}

func newFakeChatBackend() *fakeChatBackend {
	return &fakeChatBackend{
		replyFn: func(history []chat.Turn, state chat.State) (*chat.Reply, error) {
			last := ""
			if len(history) > 0 {
				last = history[len(history)-1].Text
			}
			return &chat.Reply{ReplyText: "re: " + last}, nil
		},
	}
}

func (f *fakeChatBackend) Reply(_ context.Context, history []chat.Turn, state chat.State) (*chat.Reply, error) {
	f.mu.Lock()
	recorded := make([]chat.Turn, len(history))
	copy(recorded, history)
	f.histories = append(f.histories, recorded)
	f.states = append(f.states, state.Merge(nil))
	replyFn := f.replyFn
	f.mu.Unlock()
	return replyFn(history, state)
}

func (f *fakeChatBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

type fakeAvatar struct {
	mu            sync.Mutex
	opts          livesessions.ConnectOptions
	connectErr    error
	speakErrs     []error
	spoken        []string
	reconnects    int
	reconnectErr  error
	reconnectGate chan struct{}
	stops         int
	disconnects   int
	connectRoomID string
	// deferConnected suppresses the synchronous connected callback so tests
	// can fire it late through fireConnected.
	deferConnected bool
}

func (f *fakeAvatar) Connect(_ context.Context, opts ...livesessions.ConnectOption) error {
	f.mu.Lock()
	for _, opt := range opts {
		opt(&f.opts)
	}
	connected := f.opts.ConnectedCallback
	roomID := f.connectRoomID
	err := f.connectErr
	deferred := f.deferConnected
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !deferred && connected != nil {
		connected(roomID)
	}
	return nil
}

func (f *fakeAvatar) fireConnected() {
	f.mu.Lock()
	connected := f.opts.ConnectedCallback
	roomID := f.connectRoomID
	f.mu.Unlock()
	if connected != nil {
		connected(roomID)
	}
}

func (f *fakeAvatar) Reconnect(context.Context) error {
	f.mu.Lock()
	f.reconnects++
	gate := f.reconnectGate
	err := f.reconnectErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAvatar) Speak(_ context.Context, text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	if len(f.speakErrs) > 0 {
		err := f.speakErrs[0]
		f.speakErrs = f.speakErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAvatar) StopSpeaking() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeAvatar) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeAvatar) speakEnded() {
	f.mu.Lock()
	callback := f.opts.SpeakEndedCallback
	f.mu.Unlock()
	if callback != nil {
		callback("")
	}
}

func (f *fakeAvatar) dropConnection(err error, recoverable bool) {
	f.mu.Lock()
	callback := f.opts.DisconnectedCallback
	f.mu.Unlock()
	if callback != nil {
		callback(err, recoverable)
	}
}

func (f *fakeAvatar) spokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoken)
}

func (f *fakeAvatar) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

func (f *fakeAvatar) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

type fakeBroadcast struct {
	mu sync.Mutex

	room       livesessions.Room
	role       livesessions.Role
	credential livesessions.Credential

	// joinStatuses is consumed one per JoinRequestStatus poll; the last
	// entry repeats.
	joinStatuses []livesessions.JoinRequestStatus
	joinPolls    int
	joinToken    string

	pending []livesessions.JoinRequest

	startErr      error
	credentialErr error

	starts   int
	stops    int
	admits   []string
	denies   []string
	requests []string
	relayed  []string
}

func newFakeBroadcast() *fakeBroadcast {
	return &fakeBroadcast{
		room:       livesessions.Room{ID: "room-1", Live: true},
		role:       livesessions.RoleObserver,
		credential: livesessions.Credential{Token: "subscribe-token"},
	}
}

func (f *fakeBroadcast) ResolveRoom(context.Context, string) (*livesessions.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.room
	return &room, nil
}

func (f *fakeBroadcast) ResolveRole(context.Context, string) (livesessions.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role, nil
}

func (f *fakeBroadcast) Start(context.Context, string) (*livesessions.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.room.Live = true
	credential := livesessions.Credential{Token: "publish-token", CanPublish: true}
	return &credential, nil
}

func (f *fakeBroadcast) Stop(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.room.Live = false
	return nil
}

func (f *fakeBroadcast) SubscriberCredential(context.Context, string) (*livesessions.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credentialErr != nil {
		return nil, f.credentialErr
	}
	credential := f.credential
	return &credential, nil
}

func (f *fakeBroadcast) RoomStatus(context.Context, string) (*livesessions.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.room
	return &room, nil
}

func (f *fakeBroadcast) RelayChat(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayed = append(f.relayed, text)
	return nil
}

func (f *fakeBroadcast) relayedChat() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	relayed := make([]string, len(f.relayed))
	copy(relayed, f.relayed)
	return relayed
}

func (f *fakeBroadcast) setLive(live bool) {
	f.mu.Lock()
	f.room.Live = live
	f.mu.Unlock()
}

func (f *fakeBroadcast) CreateJoinRequest(_ context.Context, roomID, displayName string) (*livesessions.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("req-%d", len(f.requests)+1)
	f.requests = append(f.requests, id)
	return &livesessions.JoinRequest{
		ID:          id,
		DisplayName: displayName,
		RoomID:      roomID,
		Status:      livesessions.JoinRequestPending,
	}, nil
}

func (f *fakeBroadcast) JoinRequestStatus(_ context.Context, requestID string) (*livesessions.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := livesessions.JoinRequestPending
	if len(f.joinStatuses) > 0 {
		status = f.joinStatuses[0]
		if len(f.joinStatuses) > 1 {
			f.joinStatuses = f.joinStatuses[1:]
		}
	}
	f.joinPolls++

	request := &livesessions.JoinRequest{ID: requestID, Status: status}
	if status == livesessions.JoinRequestAdmitted {
		request.Credential = &livesessions.Credential{Token: f.joinToken}
	}
	return request, nil
}

func (f *fakeBroadcast) PendingJoinRequests(context.Context, string) ([]livesessions.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := make([]livesessions.JoinRequest, len(f.pending))
	copy(pending, f.pending)
	return pending, nil
}

func (f *fakeBroadcast) Admit(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admits = append(f.admits, requestID)
	return nil
}

func (f *fakeBroadcast) Deny(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denies = append(f.denies, requestID)
	return nil
}

type fakeResolver struct {
	mu     sync.Mutex
	asset  *speech.Asset
	err    error
	texts  []string
	voices []string
}

func (f *fakeResolver) Resolve(_ context.Context, text, voiceID string) (*speech.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.voices = append(f.voices, voiceID)
	return f.asset, f.err
}

type fakeSpeaker struct {
	mu       sync.Mutex
	spoken   []string
	stops    int
	err      error
	holdEnds bool
	onEnded  func()
}

func (f *fakeSpeaker) Speak(_ context.Context, text, _ string, onEnded func()) error {
	f.mu.Lock()
	if f.err != nil {
		defer f.mu.Unlock()
		return f.err
	}
	f.spoken = append(f.spoken, text)
	hold := f.holdEnds
	f.onEnded = onEnded
	f.mu.Unlock()

	if !hold && onEnded != nil {
		onEnded()
	}
	return nil
}

func (f *fakeSpeaker) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type fakeCaptureClient struct {
	mu      sync.Mutex
	opts    capture.TranscriptionOptions
	err     error
	audio   [][]byte
	started int
}

func (f *fakeCaptureClient) Transcribe(_ context.Context, opts ...capture.TranscriptionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, opt := range opts {
		opt(&f.opts)
	}
	f.started++
	return nil
}

func (f *fakeCaptureClient) SendAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio)
	return nil
}

func (f *fakeCaptureClient) finalTranscript() func(string, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts.TranscriptionCallback
}
