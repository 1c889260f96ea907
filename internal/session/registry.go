package session

import (
	"time"

	"github.com/google/uuid"
)

// Role of a participant in a session. Exactly one participant may hold
// RoleAdmin at a time.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Participant is one registered identity in the session. The connection
// itself belongs to the transport; the registry only holds the delivery
// sink and the identity attributes needed for resume.
type Participant struct {
	ID           uuid.UUID
	Role         Role
	DisplayName  string
	ConnectedAt  time.Time
	LastAckedSeq uint64

	sink       Sink
	graceTimer *time.Timer
}

// Info returns the public view of the participant.
func (p *Participant) Info() ParticipantInfo {
	return ParticipantInfo{ID: p.ID, Role: p.Role, DisplayName: p.DisplayName, ConnectedAt: p.ConnectedAt}
}

// Registry tracks connected participants plus identities that disconnected
// within the reconnection grace period (pending). Not safe for concurrent
// use; the owning Session serializes access.
type Registry struct {
	active  map[uuid.UUID]*Participant
	pending map[uuid.UUID]*Participant
	adminID uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active:  make(map[uuid.UUID]*Participant),
		pending: make(map[uuid.UUID]*Participant),
	}
}

// Get returns the active participant with the given ID.
func (r *Registry) Get(id uuid.UUID) (*Participant, bool) {
	p, ok := r.active[id]
	return p, ok
}

// Pending returns the disconnected-within-grace participant with the given ID.
func (r *Registry) Pending(id uuid.UUID) (*Participant, bool) {
	p, ok := r.pending[id]
	return p, ok
}

// AdminID returns the participant ID holding the admin slot (zero when
// none). The slot is held by both connected and pending admins: a flaky
// admin keeps the slot for the grace period.
func (r *Registry) AdminID() uuid.UUID { return r.adminID }

// IsAdmin reports whether id currently holds the admin slot.
func (r *Registry) IsAdmin(id uuid.UUID) bool {
	return r.adminID != uuid.Nil && id == r.adminID
}

// Add registers a new active participant. It fails with ErrAdminSlotTaken
// when the participant claims RoleAdmin while another identity holds the
// slot.
func (r *Registry) Add(p *Participant) error {
	if p.Role == RoleAdmin {
		if r.adminID != uuid.Nil && r.adminID != p.ID {
			return ErrAdminSlotTaken
		}
		r.adminID = p.ID
	}
	r.active[p.ID] = p
	return nil
}

// Suspend moves an active participant to pending (disconnected, resumable
// within the grace period) and detaches its sink. Returns the record.
func (r *Registry) Suspend(id uuid.UUID) (*Participant, bool) {
	p, ok := r.active[id]
	if !ok {
		return nil, false
	}
	delete(r.active, id)
	p.sink = nil
	r.pending[id] = p
	return p, true
}

// Resume moves a pending participant back to active with a new sink,
// preserving its identity and LastAckedSeq.
func (r *Registry) Resume(id uuid.UUID, sink Sink) (*Participant, bool) {
	p, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	p.sink = sink
	r.active[id] = p
	return p, true
}

// Remove drops a participant record entirely (active or pending) and
// releases the admin slot if it held it. Returns the record and whether it
// was the admin.
func (r *Registry) Remove(id uuid.UUID) (*Participant, bool) {
	p, ok := r.active[id]
	if ok {
		delete(r.active, id)
	} else if p, ok = r.pending[id]; ok {
		delete(r.pending, id)
	}
	if p == nil {
		return nil, false
	}
	wasAdmin := r.adminID == id
	if wasAdmin {
		r.adminID = uuid.Nil
	}
	return p, wasAdmin
}

// All returns the current connected set, for broadcast fan-out.
func (r *Registry) All() []*Participant {
	out := make([]*Participant, 0, len(r.active))
	for _, p := range r.active {
		out = append(out, p)
	}
	return out
}

// Count returns the number of connected participants.
func (r *Registry) Count() int { return len(r.active) }
