// Package livesessions defines the provider-neutral contract shared by the
// live-channel backends: the talking-avatar synthesizer and the human
// broadcast/conferencing provider.
package livesessions

import (
	"errors"
	"time"
)

// Provider identifies which backend renders the live experience.
type Provider string

const (
	ProviderAvatarSynthesis Provider = "avatar_synthesis"
	ProviderBroadcast       Provider = "broadcast"
)

// Role is the local participant's relation to the current session.
type Role string

const (
	RoleUnknown   Role = "unknown"
	RolePresenter Role = "presenter"
	RoleAttendee  Role = "attendee"
	RoleObserver  Role = "observer"
)

// Status is the connection lifecycle state of the live channel.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusWaiting      Status = "waiting"
	StatusError        Status = "error"
)

// ErrSessionExpired is the named recoverable provider fault. It is the only
// error kind that entitles the session controller to one automatic
// reconnect; every other provider error surfaces as-is.
var ErrSessionExpired = errors.New("live session expired")

// IsRecoverable reports whether err is the named recoverable session fault.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// Credential is a provider token handed out by the backend. Observers
// receive subscribe-only credentials; presenters may publish.
type Credential struct {
	Token      string    `json:"token"`
	CanPublish bool      `json:"canPublish"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// IsZero reports whether the credential is unusable.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// Room is a shared live session resolved by the backend.
type Room struct {
	ID   string `json:"id"`
	Live bool   `json:"live"`
}

// JoinRequestStatus is the lifecycle state of an admission request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestAdmitted JoinRequestStatus = "admitted"
	JoinRequestDenied   JoinRequestStatus = "denied"
	JoinRequestExpired  JoinRequestStatus = "expired"
)

// Resolved reports whether the request reached a terminal status.
func (s JoinRequestStatus) Resolved() bool {
	return s == JoinRequestAdmitted || s == JoinRequestDenied || s == JoinRequestExpired
}

// JoinRequest is an observer's admission request into a restricted room.
// The backend holds the authoritative copy; clients only ever see snapshots
// through polling.
type JoinRequest struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	RoomID      string            `json:"roomId"`
	Status      JoinRequestStatus `json:"status"`
	Credential  *Credential       `json:"credential,omitempty"`
}
