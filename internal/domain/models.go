// Package domain defines the core types of the venue chatroom subsystem:
// sessions, participant identities, chat messages, and chatroom snapshots.
// All state is ephemeral and held in memory; these types carry no
// persistence mapping.
package domain

import "time"

// SessionStatus is the lifecycle state of a session. The only transition is
// Active → Left, one-way and terminal.
type SessionStatus string

const (
	// SessionActive marks a session that may join rooms and post messages.
	SessionActive SessionStatus = "active"
	// SessionLeft marks a terminated session. A left session never becomes
	// active again; callers must create a new session instead.
	SessionLeft SessionStatus = "left"
)

// Identity is a participant's display identity: either a named identity
// (real name plus optional avatar) or an anonymous one (generated or
// user-chosen nickname, never an avatar). The fields are unexported so the
// two cases cannot be constructed inconsistently; use NewNamedIdentity or
// NewAnonymousIdentity.
type Identity struct {
	displayName string
	avatar      string
	anonymous   bool
}

// NewNamedIdentity builds an identity backed by the caller's real name and
// an optional avatar reference.
func NewNamedIdentity(displayName, avatar string) Identity {
	return Identity{displayName: displayName, avatar: avatar}
}

// NewAnonymousIdentity builds an anonymous identity. Anonymous identities
// never carry an avatar.
func NewAnonymousIdentity(nickname string) Identity {
	return Identity{displayName: nickname, anonymous: true}
}

// DisplayName returns the name shown to other participants.
func (i Identity) DisplayName() string { return i.displayName }

// Avatar returns the avatar reference, always empty for anonymous identities.
func (i Identity) Avatar() string {
	if i.anonymous {
		return ""
	}
	return i.avatar
}

// IsAnonymous reports whether this is an anonymous identity.
func (i Identity) IsAnonymous() bool { return i.anonymous }

// Session is a caller's ephemeral, venue-scoped identity and access grant.
// VenueID is fixed at creation; a session is never reassigned to another
// venue.
type Session struct {
	ID         string        `json:"id"`
	VenueID    string        `json:"venue_id"`
	Identity   Identity      `json:"-"`
	AccessCode string        `json:"access_code"`
	CreatedAt  time.Time     `json:"created_at"`
	Status     SessionStatus `json:"status"`

	// LastSeenAt is bumped on every gateway operation and drives optional
	// idle-session expiry. Informational, not part of the access check.
	LastSeenAt time.Time `json:"-"`
}

// IsActive reports whether the session may still act on its venue.
func (s *Session) IsActive() bool { return s.Status == SessionActive }

// ChatMessage is one entry in a venue's append-only log. Identity fields are
// a snapshot of the author taken at post time; they never change after the
// message is accepted. Seq is the message's position in acceptance order and
// is the authoritative ordering key; Timestamp is display-only.
type ChatMessage struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	SessionID   string    `json:"session_id"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar,omitempty"`
	IsAnonymous bool      `json:"is_anonymous"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatroomSnapshot is a consistent point-in-time view of one venue's
// chatroom: a prefix of the accepted message order plus the current
// membership. Messages are ordered by Seq ascending.
type ChatroomSnapshot struct {
	VenueID        string        `json:"venue_id"`
	Messages       []ChatMessage `json:"messages"`
	ActiveSessions []string      `json:"active_sessions"`
}

// ParticipantCount returns the number of currently joined sessions.
func (s ChatroomSnapshot) ParticipantCount() int { return len(s.ActiveSessions) }
