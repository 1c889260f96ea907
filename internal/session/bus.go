package session

// EventBus assigns sequence numbers and retains a bounded window of emitted
// events for reconnection replay. It is the single serialization point for
// the session's event order: callers hold the session lock, so no two events
// ever share a sequence number. Fan-out to participant sinks is done by the
// Session, which owns the registry.
type EventBus struct {
	seq   uint64
	ring  []Event
	start int
	count int
}

// NewEventBus creates a bus retaining the last capacity events.
func NewEventBus(capacity int) *EventBus {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBus{ring: make([]Event, capacity)}
}

// Emit assigns the next sequence number, records the event in the retention
// ring, and returns it. The first emitted event has seq 1.
func (b *EventBus) Emit(t EventType, payload any) Event {
	b.seq++
	ev := Event{Seq: b.seq, Type: t, Payload: payload}
	if b.count < len(b.ring) {
		b.ring[(b.start+b.count)%len(b.ring)] = ev
		b.count++
	} else {
		b.ring[b.start] = ev
		b.start = (b.start + 1) % len(b.ring)
	}
	return ev
}

// LastSeq returns the most recently assigned sequence number (0 before the
// first event).
func (b *EventBus) LastSeq() uint64 { return b.seq }

// OldestRetained returns the lowest sequence number still in the ring, or 0
// when nothing is retained.
func (b *EventBus) OldestRetained() uint64 {
	if b.count == 0 {
		return 0
	}
	return b.ring[b.start].Seq
}

// Since returns all retained events with sequence number > seq in ascending
// order. It returns ErrResyncRequired when events after seq have already
// been evicted, so the caller must fall back to a full snapshot rather than
// silently skip the gap.
func (b *EventBus) Since(seq uint64) ([]Event, error) {
	if seq >= b.seq {
		return nil, nil
	}
	if b.count == 0 || seq+1 < b.ring[b.start].Seq {
		return nil, ErrResyncRequired
	}
	out := make([]Event, 0, b.seq-seq)
	for i := 0; i < b.count; i++ {
		ev := b.ring[(b.start+i)%len(b.ring)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out, nil
}
