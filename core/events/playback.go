package events

const (
	// KindPlaybackStarted identifies the start of reply playback.
	KindPlaybackStarted Kind = "playback.started"
	// KindPlaybackEnded identifies playback settling for the current reply.
	KindPlaybackEnded Kind = "playback.ended"
)

// PlaybackChannel names the channel a reply is played through.
type PlaybackChannel string

const (
	// PlaybackChannelAvatar plays through the live avatar connection.
	PlaybackChannelAvatar PlaybackChannel = "avatar"
	// PlaybackChannelLocal plays through local speech synthesis.
	PlaybackChannelLocal PlaybackChannel = "local"
)

// PlaybackStarted marks the start of reply playback on a channel.
type PlaybackStarted struct {
	Base
	TurnID  string
	Channel PlaybackChannel
}

// NewPlaybackStarted creates a playback started event.
func NewPlaybackStarted(turnID string, channel PlaybackChannel) PlaybackStarted {
	return PlaybackStarted{Base: NewBase(KindPlaybackStarted), TurnID: turnID, Channel: channel}
}

// PlaybackEnded marks playback settling, whether by completion, failure, or
// bounded timeout.
type PlaybackEnded struct {
	Base
	TurnID string
}

// NewPlaybackEnded creates a playback ended event.
func NewPlaybackEnded(turnID string) PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded), TurnID: turnID}
}
