package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes user chat from server-generated notices.
type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindSystem MessageKind = "system"
)

// ChatMessage is one entry in the session's chat log. Immutable once
// appended; Seq is assigned by the event bus and totally orders the log.
type ChatMessage struct {
	Seq         uint64      `json:"seq"`
	AuthorID    uuid.UUID   `json:"author_id"`
	DisplayName string      `json:"display_name"`
	Body        string      `json:"body"`
	Kind        MessageKind `json:"kind"`
	SentAt      time.Time   `json:"sent_at"`
}

// ChatLog is an append-only, bounded sequence of chat and system messages.
// Retention is a ring: once capacity is reached the oldest message is
// evicted. Not safe for concurrent use; the owning Session serializes access.
type ChatLog struct {
	buf   []ChatMessage
	start int
	count int
}

// NewChatLog creates a chat log retaining at most capacity messages.
func NewChatLog(capacity int) *ChatLog {
	if capacity < 1 {
		capacity = 1
	}
	return &ChatLog{buf: make([]ChatMessage, capacity)}
}

// ValidateBody reports ErrEmptyMessage if body trims to empty, and returns
// the trimmed body otherwise.
func ValidateBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	return trimmed, nil
}

// Append stores an already-sequenced message, evicting the oldest entry if
// the log is full.
func (l *ChatLog) Append(msg ChatMessage) {
	if l.count < len(l.buf) {
		l.buf[(l.start+l.count)%len(l.buf)] = msg
		l.count++
		return
	}
	l.buf[l.start] = msg
	l.start = (l.start + 1) % len(l.buf)
}

// Since returns all retained messages with sequence number > seq in
// ascending order. Idempotent: the same seq always yields the same result
// for the retained window.
func (l *ChatLog) Since(seq uint64) []ChatMessage {
	var out []ChatMessage
	for i := 0; i < l.count; i++ {
		m := l.buf[(l.start+i)%len(l.buf)]
		if m.Seq > seq {
			out = append(out, m)
		}
	}
	return out
}

// Tail returns the most recent n messages in ascending order.
func (l *ChatLog) Tail(n int) []ChatMessage {
	if n > l.count {
		n = l.count
	}
	out := make([]ChatMessage, 0, n)
	for i := l.count - n; i < l.count; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

// Len returns the number of retained messages.
func (l *ChatLog) Len() int { return l.count }
