package orchestration

import "github.com/jayallenwarren/elaralo-sub000/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// newCallbackEventEmitter fans typed orchestration events out to the
// caller-facing callbacks registered through Orchestrate options.
func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.SessionChanged:
			if opts.onSessionChanged != nil {
				opts.onSessionChanged()
			}
		case events.SessionConnected:
			if opts.onSessionChanged != nil {
				opts.onSessionChanged()
			}
		case events.SessionConnectFailed:
			if opts.onSessionChanged != nil {
				opts.onSessionChanged()
			}
		case events.SessionDropped:
			if opts.onSessionChanged != nil {
				opts.onSessionChanged()
			}
		case events.BroadcastStarted:
			if opts.onSessionChanged != nil {
				opts.onSessionChanged()
			}
		case events.BroadcastEnded:
			if opts.onSessionChanged != nil {
				opts.onSessionChanged()
			}
		case events.AdmissionResolved:
			if opts.onNotice != nil && typedEvent.Notice != "" {
				opts.onNotice(typedEvent.Notice)
			}
			if opts.onSessionChanged != nil {
				opts.onSessionChanged()
			}
		case events.TurnCompleted:
			if opts.onReplyEnd != nil {
				opts.onReplyEnd(typedEvent.Spoken)
			}
		case events.TurnFailed:
			if opts.onTurnFailed != nil {
				opts.onTurnFailed(typedEvent.Detail)
			}
		case events.TurnCancelled:
			if opts.onCancellation != nil {
				opts.onCancellation()
			}
		case events.CaptureStateChanged:
			if opts.onCaptureStateChanged != nil {
				opts.onCaptureStateChanged(typedEvent.Enabled, typedEvent.Paused)
			}
		case events.PlaybackStarted:
			if opts.onPlaybackStarted != nil {
				opts.onPlaybackStarted(string(typedEvent.Channel))
			}
		case events.PlaybackEnded:
			if opts.onPlaybackEnded != nil {
				opts.onPlaybackEnded()
			}
		case events.EntryAppended:
			if opts.onEntryAppended != nil {
				opts.onEntryAppended(typedEvent.Index)
			}
		case events.PlaceholderReplaced:
			if opts.onPlaceholderReplaced != nil {
				opts.onPlaceholderReplaced(typedEvent.Index, typedEvent.Text)
			}
		}
	}
}
