package realtime

import (
	"encoding/json"

	"github.com/NWB-044/movietime-gather/internal/session"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names (client -> engine).
const (
	EventJoin       = "join"
	EventCommand    = "command"
	EventChat       = "chat"
	EventResumeFrom = "resume_from"
	EventAck        = "ack"
)

// Outbound event names not derived from a session.EventType.
const (
	EventSnapshot        = "snapshot"
	EventReplay          = "replay"
	EventCommandRejected = "command_rejected"
	EventResumeRequired  = "resume_required"
)

// JoinPayload carries the participant token issued at login; the same token
// serves as the resume token on reconnection.
type JoinPayload struct {
	Token string `json:"token"`
}

// Command kinds.
const (
	CommandSelectMedia = "select_media"
	CommandPlay        = "play"
	CommandPause       = "pause"
	CommandStop        = "stop"
	CommandSeek        = "seek"
	CommandSetAutoPlay = "set_auto_play"
)

// CommandPayload is an admin playback command.
type CommandPayload struct {
	Kind         string  `json:"kind"`
	MediaRef     string  `json:"media_ref,omitempty"`
	DeltaSeconds float64 `json:"delta_seconds,omitempty"`
	Enabled      bool    `json:"enabled,omitempty"`
}

// ChatPayload is an outgoing chat message body.
type ChatPayload struct {
	Body string `json:"body"`
}

// SeqPayload carries a sequence number (resume_from, ack).
type SeqPayload struct {
	Seq uint64 `json:"seq"`
}

// RejectionPayload is the unicast command_rejected data.
type RejectionPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type snapshotFrame struct {
	session.Snapshot
	Resync bool `json:"resync,omitempty"`
}

type replayFrame struct {
	Events []session.Event `json:"events"`
}

func encode(event string, v any) WSMessage {
	data, _ := json.Marshal(v)
	return WSMessage{Event: event, Data: data}
}

// rejection builds the unicast command_rejected frame.
func rejection(reason, detail string) WSMessage {
	return encode(EventCommandRejected, RejectionPayload{Reason: reason, Detail: detail})
}

// fromOutbound converts an engine outbound message into its wire frame.
func fromOutbound(out session.Outbound) WSMessage {
	switch {
	case out.Snapshot != nil:
		return encode(EventSnapshot, snapshotFrame{Snapshot: *out.Snapshot, Resync: out.Resync})
	case out.Replay != nil:
		return encode(EventReplay, replayFrame{Events: out.Replay})
	case out.Event != nil:
		return encode(string(out.Event.Type), out.Event)
	default:
		return WSMessage{}
	}
}
