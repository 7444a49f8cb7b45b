package events

const (
	// KindCaptureTranscriptFinal identifies a finalized user utterance.
	KindCaptureTranscriptFinal Kind = "capture.transcript_final"
	// KindCaptureStateChanged identifies a capture-channel state change.
	KindCaptureStateChanged Kind = "capture.state_changed"
)

// CaptureTranscriptFinal carries a finalized user utterance. Its timestamp
// is screened against the turn controller's ignore window before the text is
// treated as new input.
type CaptureTranscriptFinal struct {
	Base
	Transcript string
}

// NewCaptureTranscriptFinal creates a finalized capture transcript event.
func NewCaptureTranscriptFinal(transcript string) CaptureTranscriptFinal {
	return CaptureTranscriptFinal{Base: NewBase(KindCaptureTranscriptFinal), Transcript: transcript}
}

// CaptureStateChanged carries the current capture-channel state.
type CaptureStateChanged struct {
	Base
	Enabled bool
	Paused  bool
}

// NewCaptureStateChanged creates a capture state changed event.
func NewCaptureStateChanged(enabled, paused bool) CaptureStateChanged {
	return CaptureStateChanged{Base: NewBase(KindCaptureStateChanged), Enabled: enabled, Paused: paused}
}
