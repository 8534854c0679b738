// Package store – ChatroomStore
//
// This file implements the per-venue chatrooms: an append-only message log
// plus the set of currently joined sessions, one room per venue, created
// lazily on first join. Appends for one venue are serialized under that
// room's lock so acceptance order is a strict total order; rooms for
// different venues share nothing and never block each other.
//
// Fan-out to subscribers is fire-and-forget relative to the append path: a
// subscriber whose buffer is full simply misses the message (it can recover
// via a snapshot), and the writer never waits on it.
package store

import (
	"sync"
	"time"

	"github.com/tbourn/go-venue-chat-backend/internal/domain"
)

// chatroom is one venue's state. All fields are guarded by mu; holding mu
// during Append is what establishes acceptance order.
type chatroom struct {
	mu           sync.RWMutex
	nextSeq      int64
	messages     []domain.ChatMessage
	members      map[string]struct{}
	subs         map[uint64]chan domain.ChatMessage
	nextSubID    uint64
	lastActivity time.Time
}

// ChatroomStore owns every chatroom, keyed by venue id.
type ChatroomStore struct {
	mu    sync.RWMutex
	rooms map[string]*chatroom

	streamBuf int
	now       func() time.Time // test seam
}

// ChatroomOption customizes a ChatroomStore.
type ChatroomOption func(*ChatroomStore)

// WithStreamBuffer sets the per-subscriber channel buffer. Values < 1 are
// coerced to 1.
func WithStreamBuffer(n int) ChatroomOption {
	return func(s *ChatroomStore) {
		if n < 1 {
			n = 1
		}
		s.streamBuf = n
	}
}

// NewChatroomStore constructs an empty store.
func NewChatroomStore(opts ...ChatroomOption) *ChatroomStore {
	s := &ChatroomStore{
		rooms:     make(map[string]*chatroom),
		streamBuf: 32,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// room returns the venue's chatroom, creating it when create is true.
func (s *ChatroomStore) room(venueID string, create bool) *chatroom {
	s.mu.RLock()
	r := s.rooms[venueID]
	s.mu.RUnlock()
	if r != nil || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r = s.rooms[venueID]; r == nil {
		r = &chatroom{
			members:      make(map[string]struct{}),
			subs:         make(map[uint64]chan domain.ChatMessage),
			lastActivity: s.now(),
		}
		s.rooms[venueID] = r
	}
	return r
}

// Join adds the session to the venue's membership, creating the chatroom on
// first join. Joining twice is a no-op.
func (s *ChatroomStore) Join(venueID, sessionID string) {
	r := s.room(venueID, true)
	r.mu.Lock()
	r.members[sessionID] = struct{}{}
	r.lastActivity = s.now()
	r.mu.Unlock()
}

// Leave removes the session from the venue's membership. Message history is
// retained; leaving a venue the session never joined is a no-op.
func (s *ChatroomStore) Leave(venueID, sessionID string) {
	r := s.room(venueID, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.members, sessionID)
	r.lastActivity = s.now()
	r.mu.Unlock()
}

// Append validates membership and commits the message to the venue's log,
// assigning its position in acceptance order. The caller supplies identity
// snapshot, text, id, and timestamp; Seq is owned by the store. Ordering is
// by arrival at this lock, never by the client-side timestamp, so two
// concurrent senders are deterministically ordered the instant both are
// accepted.
func (s *ChatroomStore) Append(venueID string, msg domain.ChatMessage) (domain.ChatMessage, error) {
	r := s.room(venueID, false)
	if r == nil {
		return domain.ChatMessage{}, ErrNotAMember
	}

	r.mu.Lock()
	if _, ok := r.members[msg.SessionID]; !ok {
		r.mu.Unlock()
		return domain.ChatMessage{}, ErrNotAMember
	}
	msg.Seq = r.nextSeq
	r.nextSeq++
	r.messages = append(r.messages, msg)
	r.lastActivity = s.now()

	// Non-blocking fan-out while still holding the lock keeps delivery in
	// acceptance order for every subscriber that keeps up.
	for _, ch := range r.subs {
		select {
		case ch <- msg:
		default:
			fanoutDropped.Inc()
		}
	}
	r.mu.Unlock()

	messagesAppended.Inc()
	return msg, nil
}

// Snapshot returns a consistent point-in-time view of the venue's log and
// membership. Readers always observe a prefix of the acceptance order, never
// a reordering and never a partial message. Venues with no chatroom yet
// yield an empty snapshot.
func (s *ChatroomStore) Snapshot(venueID string) domain.ChatroomSnapshot {
	snap := domain.ChatroomSnapshot{VenueID: venueID}
	r := s.room(venueID, false)
	if r == nil {
		return snap
	}

	r.mu.RLock()
	snap.Messages = make([]domain.ChatMessage, len(r.messages))
	copy(snap.Messages, r.messages)
	snap.ActiveSessions = make([]string, 0, len(r.members))
	for id := range r.members {
		snap.ActiveSessions = append(snap.ActiveSessions, id)
	}
	r.mu.RUnlock()
	return snap
}

// Subscribe registers a push subscriber for the venue and returns its
// channel plus a cancel function. The channel is closed on cancel. Slow
// subscribers lose individual messages rather than stalling Append.
func (s *ChatroomStore) Subscribe(venueID string) (<-chan domain.ChatMessage, func()) {
	r := s.room(venueID, true)
	ch := make(chan domain.ChatMessage, s.streamBuf)

	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// PruneIdle removes chatrooms that have no members, no subscribers, and no
// activity within maxAge. This is purely a memory bound; correctness never
// depends on it. Returns the number of rooms removed.
func (s *ChatroomStore) PruneIdle(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for venueID, r := range s.rooms {
		r.mu.RLock()
		idle := len(r.members) == 0 && len(r.subs) == 0 && r.lastActivity.Before(cutoff)
		r.mu.RUnlock()
		if idle {
			delete(s.rooms, venueID)
			pruned++
		}
	}
	if pruned > 0 {
		chatroomsPruned.Add(float64(pruned))
	}
	return pruned
}
