package events

const (
	// KindTurnStarted identifies the start of a conversational turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies successful completion of a turn.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies a failed turn with a surfaced error entry.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies turn cancellation via an epoch bump.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks the start of the current turn.
type TurnStarted struct {
	Base
	TurnID string
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(turnID string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), TurnID: turnID}
}

// TurnCompleted marks completion of the current turn.
type TurnCompleted struct {
	Base
	TurnID string
	Spoken bool
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID string, spoken bool) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID, Spoken: spoken}
}

// TurnFailed marks failure of the current turn.
type TurnFailed struct {
	Base
	TurnID string
	Detail string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(turnID, detail string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), TurnID: turnID, Detail: detail}
}

// TurnCancelled marks cancellation of the current turn.
type TurnCancelled struct{ Base }

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled() TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled)}
}
