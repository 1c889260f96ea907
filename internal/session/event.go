package session

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags the variants of a broadcast event.
type EventType string

const (
	EventStateDelta        EventType = "state_delta"
	EventChatAppended      EventType = "chat_appended"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventSessionClosed     EventType = "session_closed"
)

// Event is the unit of broadcast. Seq values form the single global order
// for the session; events are immutable once emitted.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// StateDeltaPayload carries the playback state after an accepted command.
type StateDeltaPayload struct {
	Playback PlaybackState `json:"playback"`
}

// ChatAppendedPayload carries one appended chat message.
type ChatAppendedPayload struct {
	Message ChatMessage `json:"message"`
}

// ParticipantInfo is the public view of a participant.
type ParticipantInfo struct {
	ID          uuid.UUID `json:"id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ParticipantJoinedPayload announces a new participant; Notice is the system
// chat message recorded in the log under the same sequence number.
type ParticipantJoinedPayload struct {
	Participant ParticipantInfo `json:"participant"`
	Notice      string          `json:"notice"`
}

// ParticipantLeftPayload announces a confirmed departure.
type ParticipantLeftPayload struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Notice        string    `json:"notice"`
}

// SessionClosedPayload is the terminal notice sent when a session tears down.
type SessionClosedPayload struct {
	Reason string `json:"reason"`
}

// Snapshot is a full, self-consistent copy of current playback plus recent
// chat, given to a newly joined or resyncing client. LastSeq is the highest
// sequence number reflected in the snapshot.
type Snapshot struct {
	SessionID uuid.UUID     `json:"session_id"`
	Playback  PlaybackState `json:"playback"`
	LastSeq   uint64        `json:"last_seq"`
	ChatTail  []ChatMessage `json:"chat_tail"`
}

// Outbound is one message queued to a participant connection: a live event,
// a unicast snapshot, or a reconnection replay batch (the whole gap occupies
// one queue slot so a replay can never overflow the outbound buffer).
// Resync marks a snapshot forced by a replay point that aged out of
// retention.
type Outbound struct {
	Event    *Event    `json:"event,omitempty"`
	Replay   []Event   `json:"replay,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Resync   bool      `json:"resync,omitempty"`
}

// Sink is the delivery side of a participant connection, owned by the
// transport. Deliver must not block: it reports false when the outbound
// queue is full, which causes the engine to drop the participant. Kick asks
// the transport to close the underlying connection.
type Sink interface {
	Deliver(Outbound) bool
	Kick(reason string)
}
