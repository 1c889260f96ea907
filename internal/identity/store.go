package identity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/NWB-044/movietime-gather/internal/session"
)

// Record is an issued participant identity. Records outlive individual
// connections: a reconnecting client is recognized by its record, and an
// admin re-authenticating within the record's lifetime gets their existing
// session back instead of a second one.
type Record struct {
	ParticipantID uuid.UUID    `json:"participant_id"`
	SessionID     uuid.UUID    `json:"session_id"`
	Role          session.Role `json:"role"`
	DisplayName   string       `json:"display_name"`
}

// Store persists issued identities with a bounded lifetime. RedisStore keeps
// them across server restarts; MemoryStore is the single-process fallback.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Find(ctx context.Context, participantID uuid.UUID) (*Record, error)
	FindAdmin(ctx context.Context, displayName string) (*Record, error)
	Delete(ctx context.Context, participantID uuid.UUID) error
}

// MemoryStore is an in-process Store with lazy TTL expiry.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[uuid.UUID]memoryEntry
	admins  map[string]uuid.UUID
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory identity store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		records: make(map[uuid.UUID]memoryEntry),
		admins:  make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ParticipantID] = memoryEntry{rec: rec, expiresAt: time.Now().Add(s.ttl)}
	if rec.Role == session.RoleAdmin {
		s.admins[rec.DisplayName] = rec.ParticipantID
	}
	return nil
}

func (s *MemoryStore) Find(_ context.Context, participantID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[participantID]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.records, participantID)
		return nil, nil
	}
	rec := e.rec
	return &rec, nil
}

func (s *MemoryStore) FindAdmin(ctx context.Context, displayName string) (*Record, error) {
	s.mu.Lock()
	id, ok := s.admins[displayName]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.Find(ctx, id)
}

func (s *MemoryStore) Delete(_ context.Context, participantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.records[participantID]; ok && e.rec.Role == session.RoleAdmin {
		delete(s.admins, e.rec.DisplayName)
	}
	delete(s.records, participantID)
	return nil
}

const (
	recordKeyPrefix = "identity:participant:"
	adminKeyPrefix  = "identity:admin:"
)

// RedisStore keeps identity records in Redis with TTL expiry, so resume
// tokens survive a server restart.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed identity store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, recordKeyPrefix+rec.ParticipantID.String(), body, s.ttl).Err(); err != nil {
		return err
	}
	if rec.Role == session.RoleAdmin {
		return s.client.Set(ctx, adminKeyPrefix+rec.DisplayName, rec.ParticipantID.String(), s.ttl).Err()
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, participantID uuid.UUID) (*Record, error) {
	raw, err := s.client.Get(ctx, recordKeyPrefix+participantID.String()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) FindAdmin(ctx context.Context, displayName string) (*Record, error) {
	raw, err := s.client.Get(ctx, adminKeyPrefix+displayName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, id)
}

func (s *RedisStore) Delete(ctx context.Context, participantID uuid.UUID) error {
	rec, err := s.Find(ctx, participantID)
	if err != nil {
		return err
	}
	if rec != nil && rec.Role == session.RoleAdmin {
		if err := s.client.Del(ctx, adminKeyPrefix+rec.DisplayName).Err(); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, recordKeyPrefix+participantID.String()).Err()
}
