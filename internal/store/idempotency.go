// Package store – idempotency records
//
// In-memory TTL store backing the Idempotency-Key support on the
// session-creation endpoint. The checkout flow is expected to call
// create-session-and-join exactly once per completed order; when its HTTP
// client retries, the recorded session is replayed instead of minting a
// second session and access code. Records are scoped per venue and expire
// after a configurable window.
package store

import (
	"sync"
	"time"
)

// IdempotencyRecord remembers the outcome of a completed session creation.
type IdempotencyRecord struct {
	VenueID   string
	Key       string
	SessionID string
	ExpiresAt time.Time
}

// IdempotencyStore is a concurrency-safe (venue, key) → record map with TTL
// expiry. Expired entries are invisible to Get and reclaimed by Sweep.
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[idemKey]IdempotencyRecord
	ttl     time.Duration
	now     func() time.Time // test seam
}

type idemKey struct {
	venueID string
	key     string
}

// NewIdempotencyStore constructs a store whose records live for ttl.
// A ttl <= 0 defaults to 24h.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		records: make(map[idemKey]IdempotencyRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put records a completed creation under (venueID, key). The first completed
// request wins: an existing record is left untouched and returned so the
// caller can discard its own result in favor of the winner's. The boolean
// reports whether this call created the record.
func (s *IdempotencyStore) Put(venueID, key, sessionID string) (IdempotencyRecord, bool) {
	k := idemKey{venueID: venueID, key: key}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, exists := s.records[k]; exists {
		return rec, false
	}
	rec := IdempotencyRecord{
		VenueID:   venueID,
		Key:       key,
		SessionID: sessionID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.records[k] = rec
	return rec, true
}

// Get returns the still-valid record for (venueID, key), if any.
func (s *IdempotencyStore) Get(venueID, key string) (IdempotencyRecord, bool) {
	s.mu.RLock()
	rec, ok := s.records[idemKey{venueID: venueID, key: key}]
	s.mu.RUnlock()
	if !ok || !rec.ExpiresAt.After(s.now()) {
		return IdempotencyRecord{}, false
	}
	return rec, true
}

// Sweep drops expired records and returns how many were removed.
func (s *IdempotencyStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, k)
			removed++
		}
	}
	return removed
}
