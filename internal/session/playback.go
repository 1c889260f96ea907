package session

import "time"

// Status is the playback status of a session.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// PlaybackState is the canonical record of what is currently selected and
// playing. Position is server-estimated: while playing it advances with wall
// time from LastUpdateAt instead of being broadcast continuously.
type PlaybackState struct {
	MediaRef        string    `json:"media_ref,omitempty"`
	Status          Status    `json:"status"`
	PositionSeconds float64   `json:"position_seconds"`
	LastUpdateAt    time.Time `json:"last_update_at"`
	AutoPlay        bool      `json:"auto_play"`
}

// EffectivePosition returns the extrapolated position at now. It equals
// PositionSeconds unless the session is playing.
func (p PlaybackState) EffectivePosition(now time.Time) float64 {
	if p.Status != StatusPlaying {
		return p.PositionSeconds
	}
	return p.PositionSeconds + now.Sub(p.LastUpdateAt).Seconds()
}

// Rebased returns a copy with PositionSeconds set to the effective position
// at now and LastUpdateAt reset. Every mutation rebases first so the stored
// position stays consistent with the extrapolation clients perform.
func (p PlaybackState) Rebased(now time.Time) PlaybackState {
	p.PositionSeconds = p.EffectivePosition(now)
	p.LastUpdateAt = now
	return p
}
