// Package store – SessionRegistry
//
// This file implements the registry that owns all live sessions. It mints
// session ids and access codes, validates display-name input, and drives the
// one-way Active → Left lifecycle. Access codes are guaranteed unique among
// currently Active sessions; uniqueness is enforced under the registry lock
// so two concurrent creations can never be handed the same code.
package store

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tbourn/go-venue-chat-backend/internal/domain"
)

// codeAlphabet deliberately omits characters that read ambiguously on a
// printed receipt (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NicknameGenerator supplies anonymous display names on demand.
type NicknameGenerator interface {
	Generate() string
}

// CreateSessionParams carries the caller-supplied inputs for CreateSession.
// DisplayName is optional for anonymous sessions (a nickname is generated
// when absent) and required for named ones. Avatar is honored only for named
// sessions.
type CreateSessionParams struct {
	VenueID     string
	Anonymous   bool
	DisplayName string
	Avatar      string
}

// SessionRegistry is the concurrency-safe owner of the session table.
// Entries are keyed by session id and independently updatable; no
// cross-session ordering is provided or needed.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	// codes indexes access codes of Active sessions for O(1) uniqueness
	// checks. Entries are released when a session leaves.
	codes map[string]string

	names   NicknameGenerator
	codeLen int
	maxName int

	now func() time.Time // test seam
}

// RegistryOption customizes a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithAccessCodeLength sets the issued access-code length. Values outside
// [6,8] are clamped.
func WithAccessCodeLength(n int) RegistryOption {
	return func(r *SessionRegistry) {
		if n < 6 {
			n = 6
		}
		if n > 8 {
			n = 8
		}
		r.codeLen = n
	}
}

// WithMaxDisplayNameRunes caps requested display names by rune length.
func WithMaxDisplayNameRunes(n int) RegistryOption {
	return func(r *SessionRegistry) {
		if n > 0 {
			r.maxName = n
		}
	}
}

// NewSessionRegistry constructs an empty registry backed by the given
// nickname generator.
func NewSessionRegistry(names NicknameGenerator, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		sessions: make(map[string]*domain.Session),
		codes:    make(map[string]string),
		names:    names,
		codeLen:  6,
		maxName:  20,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CreateSession validates the input, resolves the display identity, mints a
// unique access code, and registers a new Active session. The returned
// session is a copy; callers never hold references into the registry.
func (r *SessionRegistry) CreateSession(p CreateSessionParams) (domain.Session, error) {
	if strings.TrimSpace(p.VenueID) == "" {
		return domain.Session{}, ErrVenueRequired
	}

	name := strings.TrimSpace(p.DisplayName)
	if r.maxName > 0 && utf8.RuneCountInString(name) > r.maxName {
		return domain.Session{}, ErrDisplayNameTooLong
	}

	var id domain.Identity
	if p.Anonymous {
		// A supplied-but-blank nickname is an input error; an absent one
		// means "generate for me".
		if p.DisplayName != "" && name == "" {
			return domain.Session{}, ErrNicknameRequired
		}
		if name == "" {
			name = r.names.Generate()
		}
		id = domain.NewAnonymousIdentity(name)
	} else {
		if name == "" {
			return domain.Session{}, ErrDisplayNameRequired
		}
		id = domain.NewNamedIdentity(name, strings.TrimSpace(p.Avatar))
	}

	now := r.now()
	s := &domain.Session{
		ID:         uuid.NewString(),
		VenueID:    p.VenueID,
		Identity:   id,
		CreatedAt:  now,
		LastSeenAt: now,
		Status:     domain.SessionActive,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Retry on collision; with a 31^6 code space this loop effectively runs
	// once, but the invariant is enforced here, not left to probability.
	for {
		code := randomCode(r.codeLen)
		if _, taken := r.codes[code]; taken {
			continue
		}
		s.AccessCode = code
		break
	}
	r.codes[s.AccessCode] = s.ID
	r.sessions[s.ID] = s
	sessionsCreated.Inc()
	activeSessions.Inc()
	return *s, nil
}

// Get returns a copy of the session, or ErrSessionNotFound.
func (r *SessionRegistry) Get(sessionID string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	return *s, nil
}

// Touch bumps the session's LastSeenAt. Unknown ids are ignored.
func (r *SessionRegistry) Touch(sessionID string) {
	r.mu.Lock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastSeenAt = r.now()
	}
	r.mu.Unlock()
}

// Invalidate marks the session Left and releases its access code. The
// operation is idempotent: invalidating an already-Left session succeeds.
func (r *SessionRegistry) Invalidate(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status == domain.SessionLeft {
		return nil
	}
	s.Status = domain.SessionLeft
	delete(r.codes, s.AccessCode)
	sessionsLeft.Inc()
	activeSessions.Dec()
	return nil
}

// ExpireIdle marks every Active session whose LastSeenAt is older than ttl
// as Left and returns copies of the expired sessions so the caller can
// remove them from their chatrooms. A ttl <= 0 disables expiry.
func (r *SessionRegistry) ExpireIdle(ttl time.Duration) []domain.Session {
	if ttl <= 0 {
		return nil
	}
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.Session
	for _, s := range r.sessions {
		if s.Status != domain.SessionActive || !s.LastSeenAt.Before(cutoff) {
			continue
		}
		s.Status = domain.SessionLeft
		delete(r.codes, s.AccessCode)
		sessionsExpired.Inc()
		activeSessions.Dec()
		expired = append(expired, *s)
	}
	return expired
}

// ActiveCount returns the number of Active sessions across all venues.
func (r *SessionRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.Status == domain.SessionActive {
			n++
		}
	}
	return n
}

// randomCode draws n characters from codeAlphabet using crypto/rand; access
// codes end up on receipts, so they must not be predictable from prior ones.
func randomCode(n int) string {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// there is no reasonable fallback for a code generator.
			panic(err)
		}
		b[i] = codeAlphabet[v.Int64()]
	}
	return string(b)
}
