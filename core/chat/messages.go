package chat

import "time"

// Role identifies who authored a history entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleCompanion Role = "companion"
)

// Turn is one history entry sent to the reply endpoint.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at,omitempty"`
}

// State is the opaque conversational session state the backend threads
// through replies. The orchestrator treats it as a value to snapshot and
// merge, never to interpret.
type State map[string]any

// Merge returns a copy of s with updates applied on top. A nil receiver
// yields a copy of updates.
func (s State) Merge(updates State) State {
	merged := make(State, len(s)+len(updates))
	for key, value := range s {
		merged[key] = value
	}
	for key, value := range updates {
		merged[key] = value
	}
	return merged
}

// SessionStatus is the backend's view of the companion's live session,
// piggybacked on every reply so clients without a push channel still observe
// broadcast transitions.
type SessionStatus struct {
	BroadcastLive bool   `json:"broadcastLive"`
	RoomID        string `json:"roomId,omitempty"`
}

// Reply is the backend's answer to one user turn.
type Reply struct {
	ReplyText           string        `json:"replyText"`
	SessionStatus       SessionStatus `json:"sessionStatus"`
	SessionStateUpdates State         `json:"sessionStateUpdates,omitempty"`
}

// boundHistory keeps the leading system entry (when present) plus the most
// recent maxExchanges user/companion exchanges, bounding request size.
func boundHistory(history []Turn, maxExchanges int) []Turn {
	if maxExchanges <= 0 {
		return history
	}

	var system []Turn
	rest := history
	if len(history) > 0 && history[0].Role == RoleSystem {
		system = history[:1]
		rest = history[1:]
	}

	maxEntries := maxExchanges * 2
	if len(rest) > maxEntries {
		rest = rest[len(rest)-maxEntries:]
	}

	bounded := make([]Turn, 0, len(system)+len(rest))
	bounded = append(bounded, system...)
	bounded = append(bounded, rest...)
	return bounded
}
