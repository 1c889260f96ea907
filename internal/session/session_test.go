package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// testSink records everything delivered to a participant connection.
type testSink struct {
	mu     sync.Mutex
	outs   []Outbound
	limit  int // 0 = unbounded; otherwise Deliver fails once reached
	kicked int
}

func (s *testSink) Deliver(out Outbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.outs) >= s.limit {
		return false
	}
	s.outs = append(s.outs, out)
	return true
}

func (s *testSink) Kick(string) {
	s.mu.Lock()
	s.kicked++
	s.mu.Unlock()
}

// events returns all delivered events in order, replay batches flattened.
func (s *testSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, o := range s.outs {
		if o.Event != nil {
			out = append(out, *o.Event)
		}
		out = append(out, o.Replay...)
	}
	return out
}

func (s *testSink) snapshots() []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Outbound
	for _, o := range s.outs {
		if o.Snapshot != nil {
			out = append(out, o)
		}
	}
	return out
}

func (s *testSink) eventsOfType(t EventType) []Event {
	var out []Event
	for _, ev := range s.events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func testConfig(clk *fakeClock) Config {
	return Config{
		GracePeriod:    time.Hour,
		EventRetention: 512,
		ChatRetention:  256,
		ChatTail:       50,
		Clock:          clk.Now,
	}
}

func newTestSession(t *testing.T, clk *fakeClock) *Session {
	t.Helper()
	s := NewSession("Bipho", testConfig(clk), zap.NewNop(), nil)
	t.Cleanup(func() { s.Close("test done") })
	return s
}

func joinFresh(t *testing.T, s *Session, role Role, name string) (uuid.UUID, *testSink) {
	t.Helper()
	id := uuid.New()
	sink := &testSink{}
	resumed, err := s.Join(id, role, name, sink)
	require.NoError(t, err)
	require.False(t, resumed)
	return id, sink
}

func TestScenarioAdminDrivesViewerFollows(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)

	adminID, adminSink := joinFresh(t, s, RoleAdmin, "Bipho")

	// Admin join is event 1 and lands in the chat log as a system notice.
	snaps := adminSink.snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, uint64(1), snaps[0].Snapshot.LastSeq)
	require.Len(t, snaps[0].Snapshot.ChatTail, 1)
	assert.Equal(t, KindSystem, snaps[0].Snapshot.ChatTail[0].Kind)
	assert.Equal(t, uint64(1), snaps[0].Snapshot.ChatTail[0].Seq)

	require.NoError(t, s.SelectMedia(adminID, "movie1.mp4"))
	require.NoError(t, s.Play(adminID))

	deltas := adminSink.eventsOfType(EventStateDelta)
	require.Len(t, deltas, 2)
	assert.Equal(t, uint64(2), deltas[0].Seq)
	assert.Equal(t, uint64(3), deltas[1].Seq)
	play := deltas[1].Payload.(StateDeltaPayload).Playback
	assert.Equal(t, StatusPlaying, play.Status)
	assert.Equal(t, 0.0, play.PositionSeconds)

	// Viewer joins 5 seconds into playback: snapshot is rebased to ~5s.
	clk.Advance(5 * time.Second)
	viewerID, viewerSink := joinFresh(t, s, RoleViewer, "guest")
	vsnap := viewerSink.snapshots()[0].Snapshot
	assert.Equal(t, uint64(4), vsnap.LastSeq) // viewer join consumed seq 4
	assert.Equal(t, StatusPlaying, vsnap.Playback.Status)
	assert.InDelta(t, 5.0, vsnap.Playback.PositionSeconds, 0.001)

	// Seek +10 at t=6: position rebases to 6, then jumps to 16.
	clk.Advance(1 * time.Second)
	require.NoError(t, s.Seek(adminID, 10))
	seek := adminSink.eventsOfType(EventStateDelta)[2]
	assert.Equal(t, uint64(5), seek.Seq)
	assert.InDelta(t, 16.0, seek.Payload.(StateDeltaPayload).Playback.PositionSeconds, 0.001)

	// Viewer flaps: disconnect at seq 5, resume from 5, nothing was lost.
	s.MarkDisconnected(viewerID, nil)
	sink2 := &testSink{}
	resumed, err := s.Join(viewerID, RoleViewer, "guest", sink2)
	require.NoError(t, err)
	require.True(t, resumed)
	require.NoError(t, s.ResumeFrom(viewerID, 5, sink2))
	assert.Empty(t, sink2.events())

	// Chat lands after the resume and reaches the reconnected viewer.
	require.NoError(t, s.SendChat(adminID, "hello"))
	chats := sink2.eventsOfType(EventChatAppended)
	require.Len(t, chats, 1)
	assert.Equal(t, uint64(6), chats[0].Seq)
	assert.Equal(t, "hello", chats[0].Payload.(ChatAppendedPayload).Message.Body)

	// Viewer pause attempt: rejected, no seq consumed, nothing broadcast.
	before := len(adminSink.events())
	err = s.Pause(viewerID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, before, len(adminSink.events()))
	stats := s.CurrentStats()
	assert.Equal(t, uint64(6), stats.LastSeq)
}

func TestViewerConvergesWithDirectReplay(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	adminID, _ := joinFresh(t, s, RoleAdmin, "Bipho")
	_, viewerSink := joinFresh(t, s, RoleViewer, "guest")

	require.NoError(t, s.SetAutoPlay(adminID, true))
	require.NoError(t, s.SelectMedia(adminID, "series/ep1.mkv")) // auto-plays
	clk.Advance(3 * time.Second)
	require.NoError(t, s.Seek(adminID, 30))
	clk.Advance(2 * time.Second)
	require.NoError(t, s.Pause(adminID))
	require.NoError(t, s.Play(adminID))
	clk.Advance(4 * time.Second)
	require.NoError(t, s.Stop(adminID))
	require.NoError(t, s.SelectMedia(adminID, "series/ep2.mkv"))

	// The state folded from delivered deltas must equal the authority's.
	deltas := viewerSink.eventsOfType(EventStateDelta)
	require.NotEmpty(t, deltas)
	folded := deltas[len(deltas)-1].Payload.(StateDeltaPayload).Playback

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap.Playback.Status, folded.Status)
	assert.Equal(t, snap.Playback.MediaRef, folded.MediaRef)
	assert.Equal(t, snap.Playback.AutoPlay, folded.AutoPlay)
	assert.InDelta(t, snap.Playback.PositionSeconds, folded.EffectivePosition(clk.Now()), 0.001)
}

func TestContinuousDeliveryHasNoGapsOrDuplicates(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	adminID, _ := joinFresh(t, s, RoleAdmin, "Bipho")
	_, viewerSink := joinFresh(t, s, RoleViewer, "guest")

	require.NoError(t, s.SelectMedia(adminID, "movie1.mp4"))
	require.NoError(t, s.Play(adminID))
	for i := 0; i < 10; i++ {
		clk.Advance(time.Second)
		require.NoError(t, s.Seek(adminID, 5))
		require.NoError(t, s.SendChat(adminID, "msg"))
	}

	snap := viewerSink.snapshots()[0].Snapshot
	next := snap.LastSeq + 1
	for _, ev := range viewerSink.events() {
		assert.Equal(t, next, ev.Seq, "sequence must be contiguous")
		next++
	}
	assert.Greater(t, next, snap.LastSeq+1)
}

func TestStoppedImpliesPositionZero(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	adminID, adminSink := joinFresh(t, s, RoleAdmin, "Bipho")

	require.NoError(t, s.SelectMedia(adminID, "movie1.mp4"))
	require.NoError(t, s.Play(adminID))
	clk.Advance(42 * time.Second)
	require.NoError(t, s.Stop(adminID))

	deltas := adminSink.eventsOfType(EventStateDelta)
	last := deltas[len(deltas)-1].Payload.(StateDeltaPayload).Playback
	assert.Equal(t, StatusStopped, last.Status)
	assert.Equal(t, 0.0, last.PositionSeconds)
}

func TestCommandValidation(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	adminID, _ := joinFresh(t, s, RoleAdmin, "Bipho")

	assert.ErrorIs(t, s.Play(adminID), ErrNoMediaSelected)
	assert.ErrorIs(t, s.Seek(adminID, 10), ErrInvalidState)
	assert.ErrorIs(t, s.Pause(adminID), ErrInvalidState)
	assert.ErrorIs(t, s.SelectMedia(adminID, ""), ErrInvalidState)
	assert.ErrorIs(t, s.SendChat(adminID, "   \t\n"), ErrEmptyMessage)

	// Rejections consume no sequence numbers.
	assert.Equal(t, uint64(1), s.CurrentStats().LastSeq)

	// Seek clamps at zero.
	require.NoError(t, s.SelectMedia(adminID, "movie1.mp4"))
	require.NoError(t, s.Play(adminID))
	require.NoError(t, s.Seek(adminID, -100))
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Playback.PositionSeconds)
}

func TestSecondAdminRejected(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	joinFresh(t, s, RoleAdmin, "Bipho")

	intruder := uuid.New()
	_, err := s.Join(intruder, RoleAdmin, "mallory", &testSink{})
	assert.ErrorIs(t, err, ErrAdminSlotTaken)
}

func TestFlakyReconnectEmitsNoDuplicateJoinLeave(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	adminID, adminSink := joinFresh(t, s, RoleAdmin, "Bipho")
	viewerID, _ := joinFresh(t, s, RoleViewer, "guest")

	s.MarkDisconnected(viewerID, nil)
	sink2 := &testSink{}
	resumed, err := s.Join(viewerID, RoleViewer, "guest", sink2)
	require.NoError(t, err)
	require.True(t, resumed)
	require.NoError(t, s.ResumeFrom(viewerID, s.CurrentStats().LastSeq, sink2))

	require.NoError(t, s.SendChat(adminID, "still here?"))
	assert.Len(t, sink2.eventsOfType(EventChatAppended), 1)

	// One join announcement total, zero leave announcements.
	assert.Len(t, adminSink.eventsOfType(EventParticipantJoined), 1)
	assert.Empty(t, adminSink.eventsOfType(EventParticipantLeft))
}

func TestGraceExpiryAnnouncesLeaveOnce(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	_, adminSink := joinFresh(t, s, RoleAdmin, "Bipho")
	viewerID, _ := joinFresh(t, s, RoleViewer, "guest")

	s.MarkDisconnected(viewerID, nil)
	assert.Empty(t, adminSink.eventsOfType(EventParticipantLeft))

	s.expireParticipant(viewerID)
	lefts := adminSink.eventsOfType(EventParticipantLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, viewerID, lefts[0].Payload.(ParticipantLeftPayload).ParticipantID)

	// A second expiry is a no-op.
	s.expireParticipant(viewerID)
	assert.Len(t, adminSink.eventsOfType(EventParticipantLeft), 1)
}

func TestResumeAfterRetentionForcesResync(t *testing.T) {
	clk := newFakeClock()
	cfg := testConfig(clk)
	cfg.EventRetention = 4
	s := NewSession("Bipho", cfg, zap.NewNop(), nil)
	defer s.Close("test done")

	adminID := uuid.New()
	_, err := s.Join(adminID, RoleAdmin, "Bipho", &testSink{})
	require.NoError(t, err)
	viewerID, _ := joinFresh(t, s, RoleViewer, "guest")

	s.MarkDisconnected(viewerID, nil)
	require.NoError(t, s.SelectMedia(adminID, "movie1.mp4"))
	require.NoError(t, s.Play(adminID))
	for i := 0; i < 6; i++ {
		require.NoError(t, s.Seek(adminID, 1))
	}

	sink2 := &testSink{}
	resumed, err := s.Join(viewerID, RoleViewer, "guest", sink2)
	require.NoError(t, err)
	require.True(t, resumed)
	require.NoError(t, s.ResumeFrom(viewerID, 2, sink2))

	snaps := sink2.snapshots()
	require.Len(t, snaps, 1, "aged-out resume point must force a snapshot")
	assert.True(t, snaps[0].Resync)
	assert.Equal(t, s.CurrentStats().LastSeq, snaps[0].Snapshot.LastSeq)
}

func TestSlowConsumerIsDroppedWithoutStallingBroadcast(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	adminID, adminSink := joinFresh(t, s, RoleAdmin, "Bipho")

	slowID := uuid.New()
	slow := &testSink{limit: 1} // room for the snapshot only
	_, err := s.Join(slowID, RoleViewer, "laggard", slow)
	require.NoError(t, err)

	require.NoError(t, s.SelectMedia(adminID, "movie1.mp4"))
	assert.Equal(t, 1, slow.kicked)

	// The laggard is suspended, not yet announced gone; after the grace
	// period expires the departure is announced exactly once.
	assert.Empty(t, adminSink.eventsOfType(EventParticipantLeft))
	s.expireParticipant(slowID)
	assert.Len(t, adminSink.eventsOfType(EventParticipantLeft), 1)

	// The write path stayed healthy for everyone else.
	require.NoError(t, s.Play(adminID))
	deltas := adminSink.eventsOfType(EventStateDelta)
	assert.Len(t, deltas, 2)
}

func TestAdminExpiryClosesSession(t *testing.T) {
	clk := newFakeClock()
	var closedID uuid.UUID
	s := NewSession("Bipho", testConfig(clk), zap.NewNop(), func(id uuid.UUID) { closedID = id })

	adminID, _ := joinFresh(t, s, RoleAdmin, "Bipho")
	_, viewerSink := joinFresh(t, s, RoleViewer, "guest")

	s.MarkDisconnected(adminID, nil)
	s.expireParticipant(adminID)

	assert.True(t, s.Closed())
	assert.Equal(t, s.ID, closedID)
	closes := viewerSink.eventsOfType(EventSessionClosed)
	require.Len(t, closes, 1)

	_, err := s.Join(uuid.New(), RoleViewer, "late", &testSink{})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestExplicitLeaveByAdminClosesSession(t *testing.T) {
	clk := newFakeClock()
	s := NewSession("Bipho", testConfig(clk), zap.NewNop(), nil)
	adminID, _ := joinFresh(t, s, RoleAdmin, "Bipho")

	wasAdmin := s.Leave(adminID)
	assert.True(t, wasAdmin)
	assert.True(t, s.Closed())
}

func TestChatSinceIsIdempotentAndMonotonic(t *testing.T) {
	clk := newFakeClock()
	s := newTestSession(t, clk)
	adminID, _ := joinFresh(t, s, RoleAdmin, "Bipho")

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, s.SendChat(adminID, body))
	}

	first := s.ChatSince(1)
	second := s.ChatSince(1)
	assert.Equal(t, first, second)

	higher := s.ChatSince(first[0].Seq)
	assert.Len(t, higher, len(first)-1)
	assert.Subset(t, seqsOf(first), seqsOf(higher))
}

func seqsOf(msgs []ChatMessage) []uint64 {
	out := make([]uint64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}
