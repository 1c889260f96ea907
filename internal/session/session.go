package session

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the engine constants the product leaves to the operator:
// reconnection grace period, retention windows, and snapshot chat tail size.
type Config struct {
	// GracePeriod is how long a disconnected participant keeps its identity
	// (and the admin keeps the slot) before the departure is confirmed.
	GracePeriod time.Duration
	// EventRetention is the number of events kept for reconnection replay.
	EventRetention int
	// ChatRetention is the number of chat/system messages kept in the log.
	ChatRetention int
	// ChatTail is how many recent messages a snapshot carries.
	ChatTail int
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Session is one watch-party instance: one admin, any number of viewers,
// one playback state, one chat log. All mutation passes through the single
// mutex, so sequence assignment is atomic and every participant observes
// events in the same order.
type Session struct {
	ID        uuid.UUID
	AdminName string
	CreatedAt time.Time

	mu       sync.Mutex
	playback PlaybackState
	chat     *ChatLog
	reg      *Registry
	bus      *EventBus
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
	closed   bool

	// arrival fires if the admin never connects after creating the session.
	arrival  *time.Timer
	onClosed func(id uuid.UUID)
}

// NewSession creates a session for the given admin display name. The admin
// is expected to connect within the grace period; otherwise the session
// tears itself down.
func NewSession(adminName string, cfg Config, log *zap.Logger, onClosed func(uuid.UUID)) *Session {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	s := &Session{
		ID:        uuid.New(),
		AdminName: adminName,
		CreatedAt: now(),
		playback:  PlaybackState{Status: StatusStopped, LastUpdateAt: now()},
		chat:      NewChatLog(cfg.ChatRetention),
		reg:       NewRegistry(),
		bus:       NewEventBus(cfg.EventRetention),
		cfg:       cfg,
		log:       log,
		now:       now,
		onClosed:  onClosed,
	}
	if cfg.GracePeriod > 0 {
		s.arrival = time.AfterFunc(cfg.GracePeriod, func() {
			s.mu.Lock()
			noAdmin := !s.closed && s.reg.AdminID() == uuid.Nil
			var cb func(uuid.UUID)
			if noAdmin {
				cb = s.closeLocked("admin never connected")
			}
			s.mu.Unlock()
			if cb != nil {
				cb(s.ID)
			}
		})
	}
	return s
}

// Join registers a participant connection. A fresh identity is added,
// announced to everyone else, and handed a snapshot through its sink before
// any later live event, so it observes a gapless stream from the snapshot's
// sequence number. A participant reconnecting within the grace period is
// recognized by ID: no snapshot is delivered and its sink is not attached
// yet; it must call ResumeFrom to replay the gap first (resumed is true).
func (s *Session) Join(id uuid.UUID, role Role, displayName string, sink Sink) (resumed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}

	if p, ok := s.reg.Get(id); ok {
		// Same identity with a connection the server still believes open:
		// the old one is stale. Replace it without announcements.
		if p.sink != nil {
			p.sink.Kick("replaced by new connection")
		}
		p.sink = nil
		snap := s.snapshotLocked()
		sink.Deliver(Outbound{Snapshot: &snap})
		p.sink = sink
		return false, nil
	}

	if _, ok := s.reg.Pending(id); ok {
		return true, nil
	}

	if role == RoleAdmin {
		if admin := s.reg.AdminID(); admin != uuid.Nil && admin != id {
			return false, ErrAdminSlotTaken
		}
		if s.arrival != nil {
			s.arrival.Stop()
		}
	}

	p := &Participant{ID: id, Role: role, DisplayName: displayName, ConnectedAt: s.now()}
	notice := displayName + " joined"
	ev := s.emitLocked(EventParticipantJoined, ParticipantJoinedPayload{Participant: p.Info(), Notice: notice})
	s.appendSystemLocked(ev.Seq, notice)

	if err := s.reg.Add(p); err != nil {
		return false, err
	}
	snap := s.snapshotLocked()
	sink.Deliver(Outbound{Snapshot: &snap})
	p.sink = sink
	p.LastAckedSeq = snap.LastSeq

	s.log.Info("participant joined",
		zap.String("session_id", s.ID.String()),
		zap.String("participant_id", id.String()),
		zap.String("role", string(role)),
		zap.Uint64("seq", ev.Seq))
	return false, nil
}

// ResumeFrom replays all retained events after seq to the reconnecting
// participant and re-attaches its sink, preserving identity and acked
// position. If seq has aged out of retention the participant receives a
// forced snapshot flagged as a resync instead of a silent gap. Only valid
// for participants pending reconnection.
func (s *Session) ResumeFrom(id uuid.UUID, seq uint64, sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.reg.Pending(id); !ok {
		return ErrUnknownParticipant
	}

	events, err := s.bus.Since(seq)
	p, _ := s.reg.Resume(id, sink)
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	if err != nil {
		snap := s.snapshotLocked()
		sink.Deliver(Outbound{Snapshot: &snap, Resync: true})
		p.LastAckedSeq = snap.LastSeq
		s.log.Info("resume point aged out, forced resync",
			zap.String("session_id", s.ID.String()),
			zap.String("participant_id", id.String()),
			zap.Uint64("requested_seq", seq),
			zap.Uint64("oldest_retained", s.bus.OldestRetained()))
		return nil
	}
	if len(events) > 0 {
		sink.Deliver(Outbound{Replay: events})
	}
	p.LastAckedSeq = s.bus.LastSeq()
	s.log.Debug("participant resumed",
		zap.String("session_id", s.ID.String()),
		zap.String("participant_id", id.String()),
		zap.Uint64("from_seq", seq),
		zap.Int("replayed", len(events)))
	return nil
}

// MarkDisconnected detaches a participant's connection without removing its
// identity: the record moves to pending for the grace period, and only if
// no reconnection happens is the departure announced. Called by the
// transport on connection closure or delivery failure. The closing sink
// must be passed so a connection already replaced by a newer one cannot
// suspend the participant out from under it; a nil sink suspends
// unconditionally.
func (s *Session) MarkDisconnected(id uuid.UUID, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if sink != nil {
		if p, ok := s.reg.Get(id); ok && p.sink != nil && p.sink != sink {
			return
		}
	}
	s.suspendLocked(id)
}

// Leave removes a participant immediately with a departure announcement.
// Returns whether the departing participant was the admin (which tears the
// session down).
func (s *Session) Leave(id uuid.UUID) bool {
	s.mu.Lock()
	wasAdmin := s.removeLocked(id)
	var cb func(uuid.UUID)
	if wasAdmin {
		cb = s.closeLocked("admin left")
	}
	s.mu.Unlock()
	if cb != nil {
		cb(s.ID)
	}
	return wasAdmin
}

// SelectMedia sets the media reference. Playback restarts from position 0;
// with auto-play enabled the new selection starts playing immediately.
func (s *Session) SelectMedia(caller uuid.UUID, mediaRef string) error {
	return s.command(caller, func() error {
		if mediaRef == "" {
			return ErrInvalidState
		}
		pb := s.playback.Rebased(s.now())
		pb.MediaRef = mediaRef
		pb.PositionSeconds = 0
		if pb.AutoPlay {
			pb.Status = StatusPlaying
		} else {
			pb.Status = StatusStopped
		}
		s.applyPlaybackLocked(pb, "select_media")
		return nil
	})
}

// Play starts or resumes playback of the selected media.
func (s *Session) Play(caller uuid.UUID) error {
	return s.command(caller, func() error {
		if s.playback.MediaRef == "" {
			return ErrNoMediaSelected
		}
		pb := s.playback.Rebased(s.now())
		pb.Status = StatusPlaying
		s.applyPlaybackLocked(pb, "play")
		return nil
	})
}

// Pause freezes playback at the current estimated position.
func (s *Session) Pause(caller uuid.UUID) error {
	return s.command(caller, func() error {
		if s.playback.Status == StatusStopped {
			return ErrInvalidState
		}
		pb := s.playback.Rebased(s.now())
		pb.Status = StatusPaused
		s.applyPlaybackLocked(pb, "pause")
		return nil
	})
}

// Stop halts playback and resets the position to zero.
func (s *Session) Stop(caller uuid.UUID) error {
	return s.command(caller, func() error {
		pb := s.playback.Rebased(s.now())
		pb.Status = StatusStopped
		pb.PositionSeconds = 0
		s.applyPlaybackLocked(pb, "stop")
		return nil
	})
}

// Seek moves the position by delta seconds, clamped at zero. The server
// does not know media duration, so there is no upper clamp.
func (s *Session) Seek(caller uuid.UUID, delta float64) error {
	return s.command(caller, func() error {
		if s.playback.Status == StatusStopped {
			return ErrInvalidState
		}
		pb := s.playback.Rebased(s.now())
		pb.PositionSeconds = math.Max(0, pb.PositionSeconds+delta)
		s.applyPlaybackLocked(pb, "seek")
		return nil
	})
}

// SetAutoPlay toggles automatic playback of newly selected media.
func (s *Session) SetAutoPlay(caller uuid.UUID, enabled bool) error {
	return s.command(caller, func() error {
		pb := s.playback.Rebased(s.now())
		pb.AutoPlay = enabled
		s.applyPlaybackLocked(pb, "set_auto_play")
		return nil
	})
}

// SendChat appends a chat message from any connected participant and
// broadcasts it. Fails with ErrEmptyMessage when the body trims to empty.
func (s *Session) SendChat(caller uuid.UUID, body string) error {
	trimmed, err := ValidateBody(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	p, ok := s.reg.Get(caller)
	if !ok {
		return ErrUnknownParticipant
	}
	msg := ChatMessage{
		Seq:         s.bus.LastSeq() + 1,
		AuthorID:    caller,
		DisplayName: p.DisplayName,
		Body:        trimmed,
		Kind:        KindChat,
		SentAt:      s.now(),
	}
	s.emitLocked(EventChatAppended, ChatAppendedPayload{Message: msg})
	s.chat.Append(msg)
	return nil
}

// Ack records the highest event sequence number a participant has received.
func (s *Session) Ack(id uuid.UUID, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.reg.Get(id); ok && seq > p.LastAckedSeq {
		p.LastAckedSeq = seq
	}
}

// Snapshot returns the current playback state with its position re-based to
// now, the last assigned sequence number, and the recent chat tail.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	return s.snapshotLocked(), nil
}

// ChatSince returns retained chat messages with sequence number > seq.
func (s *Session) ChatSince(seq uint64) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.Since(seq)
}

// Stats is the admin-facing view of session health.
type Stats struct {
	SessionID    uuid.UUID `json:"session_id"`
	Participants int       `json:"participants"`
	LastSeq      uint64    `json:"last_seq"`
	CreatedAt    time.Time `json:"created_at"`
}

// CurrentStats returns participant count and sequence position.
func (s *Session) CurrentStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{SessionID: s.ID, Participants: s.reg.Count(), LastSeq: s.bus.LastSeq(), CreatedAt: s.CreatedAt}
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down: every participant receives a terminal
// session_closed event and all connections are kicked.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	cb := s.closeLocked(reason)
	s.mu.Unlock()
	if cb != nil {
		cb(s.ID)
	}
}

// command runs fn under the write lock after the admin-only gate. Rejected
// commands mutate nothing and consume no sequence number.
func (s *Session) command(caller uuid.UUID, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.reg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return fn()
}

func (s *Session) applyPlaybackLocked(pb PlaybackState, op string) {
	s.playback = pb
	ev := s.emitLocked(EventStateDelta, StateDeltaPayload{Playback: pb})
	s.log.Info("playback command applied",
		zap.String("session_id", s.ID.String()),
		zap.String("op", op),
		zap.String("status", string(pb.Status)),
		zap.Float64("position", pb.PositionSeconds),
		zap.Uint64("seq", ev.Seq))
}

// emitLocked assigns the next sequence number and fans the event out to
// every attached sink. A sink that cannot accept the event is kicked and
// its participant suspended; the write path never blocks on a slow
// consumer.
func (s *Session) emitLocked(t EventType, payload any) Event {
	ev := s.bus.Emit(t, payload)
	out := Outbound{Event: &ev}
	for _, p := range s.reg.All() {
		if p.sink == nil {
			continue
		}
		if !p.sink.Deliver(out) {
			s.log.Warn("dropping slow participant",
				zap.String("session_id", s.ID.String()),
				zap.String("participant_id", p.ID.String()),
				zap.Uint64("seq", ev.Seq))
			p.sink.Kick("slow consumer")
			s.suspendLocked(p.ID)
		}
	}
	return ev
}

func (s *Session) appendSystemLocked(seq uint64, text string) {
	s.chat.Append(ChatMessage{Seq: seq, DisplayName: "system", Body: text, Kind: KindSystem, SentAt: s.now()})
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: s.ID,
		Playback:  s.playback.Rebased(s.now()),
		LastSeq:   s.bus.LastSeq(),
		ChatTail:  s.chat.Tail(s.cfg.ChatTail),
	}
}

func (s *Session) suspendLocked(id uuid.UUID) {
	p, ok := s.reg.Suspend(id)
	if !ok {
		return
	}
	p.graceTimer = time.AfterFunc(s.cfg.GracePeriod, func() { s.expireParticipant(id) })
}

// expireParticipant confirms a departure after the grace period elapsed
// without a resume. The admin expiring tears the session down.
func (s *Session) expireParticipant(id uuid.UUID) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.reg.Pending(id); !ok {
		s.mu.Unlock()
		return
	}
	wasAdmin := s.removeLocked(id)
	var cb func(uuid.UUID)
	if wasAdmin {
		cb = s.closeLocked("admin disconnected")
	}
	s.mu.Unlock()
	if cb != nil {
		cb(s.ID)
	}
}

// removeLocked drops the record and emits exactly one departure
// announcement, shared between the participant_left event and the system
// chat notice.
func (s *Session) removeLocked(id uuid.UUID) bool {
	p, wasAdmin := s.reg.Remove(id)
	if p == nil {
		return false
	}
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	if p.sink != nil {
		p.sink.Kick("left")
		p.sink = nil
	}
	notice := p.DisplayName + " left"
	ev := s.emitLocked(EventParticipantLeft, ParticipantLeftPayload{ParticipantID: p.ID, DisplayName: p.DisplayName, Notice: notice})
	s.appendSystemLocked(ev.Seq, notice)
	s.log.Info("participant left",
		zap.String("session_id", s.ID.String()),
		zap.String("participant_id", id.String()),
		zap.Uint64("seq", ev.Seq))
	return wasAdmin
}

func (s *Session) closeLocked(reason string) func(uuid.UUID) {
	if s.closed {
		return nil
	}
	s.emitLocked(EventSessionClosed, SessionClosedPayload{Reason: reason})
	for _, p := range s.reg.All() {
		if p.sink != nil {
			p.sink.Kick("session closed")
			p.sink = nil
		}
	}
	if s.arrival != nil {
		s.arrival.Stop()
	}
	s.closed = true
	s.log.Info("session closed", zap.String("session_id", s.ID.String()), zap.String("reason", reason))
	return s.onClosed
}
