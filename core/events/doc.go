// Package events defines the typed orchestration event contract for the
// companion session core.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session.*
//   - turn_state.*
//   - capture.*
//   - playback.*
//   - transcript.*
//
// session events
//
//   - SessionConnected (session.connected): the live provider reported a
//     usable connection.
//   - SessionConnectFailed (session.connect_failed): a connection attempt
//     failed; carries detail and whether the fault is a known recoverable
//     provider kind.
//   - SessionDropped (session.dropped): an established connection was lost;
//     carries detail and recoverability.
//   - BroadcastStarted (session.broadcast_started): a live broadcast went
//     live in the companion's room.
//   - BroadcastEnded (session.broadcast_ended): the live broadcast ended;
//     this is the deferred-queue flush trigger.
//   - AdmissionResolved (session.admission_resolved): an observer's pending
//     join request was admitted, denied, or expired.
//   - SessionChanged (session.changed): the session snapshot changed without
//     a more specific provider event, such as entering Connecting or
//     Waiting.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a conversational turn started.
//   - TurnCompleted (turn_state.completed): the turn completed, spoken or
//     text-only.
//   - TurnFailed (turn_state.failed): the backend or playback failed; an
//     error entry was surfaced.
//   - TurnCancelled (turn_state.cancelled): the turn was cancelled by an
//     epoch bump; no error is surfaced.
//
// capture events
//
//   - CaptureTranscriptFinal (capture.transcript_final): a finalized user
//     utterance; timestamp is screened against the controller's ignore
//     window before it is treated as new input.
//   - CaptureStateChanged (capture.state_changed): the hands-free capture
//     channel was enabled, disabled, paused, or resumed.
//
// playback events
//
//   - PlaybackStarted (playback.started): reply playback began on the named
//     channel (avatar or local synthesis).
//   - PlaybackEnded (playback.ended): playback settled (success, failure,
//     or timeout) and capture may resume.
//
// transcript events
//
//   - EntryAppended (transcript.entry_appended): a new transcript entry was
//     appended at the carried index.
//   - PlaceholderReplaced (transcript.placeholder_replaced): a deferred-turn
//     placeholder was replaced in place by its eventual reply.
package events
