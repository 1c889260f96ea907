package session

import "errors"

var (
	// ErrUnauthorized is returned when a non-admin participant attempts a
	// state-mutating playback command.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidState is returned when a command is illegal in the current
	// playback state (e.g. seek while stopped).
	ErrInvalidState = errors.New("invalid state")
	// ErrNoMediaSelected is returned by Play when no media is selected.
	ErrNoMediaSelected = errors.New("no media selected")
	// ErrEmptyMessage is returned when a chat body trims to empty.
	ErrEmptyMessage = errors.New("empty message")
	// ErrAdminSlotTaken is returned when a second admin tries to join while
	// the admin slot is held.
	ErrAdminSlotTaken = errors.New("admin slot taken")
	// ErrResyncRequired is returned when a replay point has aged out of the
	// retention window; the caller must take a full snapshot instead.
	ErrResyncRequired = errors.New("resync required")
	// ErrSessionClosed is returned for any operation on a torn-down session.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnknownParticipant is returned when a participant ID is not
	// registered (and not pending reconnection).
	ErrUnknownParticipant = errors.New("unknown participant")
)

// ReasonCode maps an engine error to the reason string carried by a
// command_rejected message. Unknown errors map to "internal".
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNoMediaSelected):
		return "no_media_selected"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, ErrAdminSlotTaken):
		return "admin_slot_taken"
	case errors.Is(err, ErrResyncRequired):
		return "resync_required"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrUnknownParticipant):
		return "unknown_participant"
	default:
		return "internal"
	}
}
