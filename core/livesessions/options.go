package livesessions

// ConnectOptions carries the callbacks a provider connection reports through.
type ConnectOptions struct {
	ConnectedCallback    func(roomID string)
	DisconnectedCallback func(err error, recoverable bool)
	SpeakEndedCallback   func(text string)
	ErrorCallback        func(err error)
}

type ConnectOption func(*ConnectOptions)

func WithConnectedCallback(callback func(roomID string)) ConnectOption {
	return func(o *ConnectOptions) {
		o.ConnectedCallback = callback
	}
}

func WithDisconnectedCallback(callback func(err error, recoverable bool)) ConnectOption {
	return func(o *ConnectOptions) {
		o.DisconnectedCallback = callback
	}
}

func WithSpeakEndedCallback(callback func(text string)) ConnectOption {
	return func(o *ConnectOptions) {
		o.SpeakEndedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) ConnectOption {
	return func(o *ConnectOptions) {
		o.ErrorCallback = callback
	}
}
