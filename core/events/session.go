package events

const (
	// KindSessionConnected identifies a usable live-provider connection.
	KindSessionConnected Kind = "session.connected"
	// KindSessionConnectFailed identifies a failed connection attempt.
	KindSessionConnectFailed Kind = "session.connect_failed"
	// KindSessionDropped identifies loss of an established connection.
	KindSessionDropped Kind = "session.dropped"
	// KindBroadcastStarted identifies a broadcast going live in the room.
	KindBroadcastStarted Kind = "session.broadcast_started"
	// KindBroadcastEnded identifies the end of a live broadcast.
	KindBroadcastEnded Kind = "session.broadcast_ended"
	// KindAdmissionResolved identifies resolution of a pending join request.
	KindAdmissionResolved Kind = "session.admission_resolved"
	// KindSessionChanged identifies any change to the session snapshot not
	// already carried by a more specific event.
	KindSessionChanged Kind = "session.changed"
)

// SessionConnected marks a usable connection reported by the live provider.
type SessionConnected struct {
	Base
	RoomID string
}

// NewSessionConnected creates a session connected event.
func NewSessionConnected(roomID string) SessionConnected {
	return SessionConnected{Base: NewBase(KindSessionConnected), RoomID: roomID}
}

// SessionConnectFailed marks a failed connection attempt.
type SessionConnectFailed struct {
	Base
	Detail      string
	Recoverable bool
}

// NewSessionConnectFailed creates a session connect failed event.
func NewSessionConnectFailed(detail string, recoverable bool) SessionConnectFailed {
	return SessionConnectFailed{Base: NewBase(KindSessionConnectFailed), Detail: detail, Recoverable: recoverable}
}

// SessionDropped marks loss of an established provider connection.
type SessionDropped struct {
	Base
	Detail      string
	Recoverable bool
}

// NewSessionDropped creates a session dropped event.
func NewSessionDropped(detail string, recoverable bool) SessionDropped {
	return SessionDropped{Base: NewBase(KindSessionDropped), Detail: detail, Recoverable: recoverable}
}

// BroadcastStarted marks a broadcast going live in the companion's room.
type BroadcastStarted struct {
	Base
	RoomID string
}

// NewBroadcastStarted creates a broadcast started event.
func NewBroadcastStarted(roomID string) BroadcastStarted {
	return BroadcastStarted{Base: NewBase(KindBroadcastStarted), RoomID: roomID}
}

// BroadcastEnded marks the end of a live broadcast.
type BroadcastEnded struct {
	Base
	RoomID string
}

// NewBroadcastEnded creates a broadcast ended event.
func NewBroadcastEnded(roomID string) BroadcastEnded {
	return BroadcastEnded{Base: NewBase(KindBroadcastEnded), RoomID: roomID}
}

// SessionChanged marks a session snapshot change made without a more
// specific provider event, such as entering Connecting or Waiting.
type SessionChanged struct {
	Base
}

// NewSessionChanged creates a session changed event.
func NewSessionChanged() SessionChanged {
	return SessionChanged{Base: NewBase(KindSessionChanged)}
}

// AdmissionResolved marks resolution of an observer's join request.
type AdmissionResolved struct {
	Base
	RequestID  string
	Admitted   bool
	Credential string
	Notice     string
}

// NewAdmissionResolved creates an admission resolved event.
func NewAdmissionResolved(requestID string, admitted bool, credential, notice string) AdmissionResolved {
	return AdmissionResolved{
		Base:       NewBase(KindAdmissionResolved),
		RequestID:  requestID,
		Admitted:   admitted,
		Credential: credential,
		Notice:     notice,
	}
}
