// Package store holds the in-memory state of the chatroom subsystem: the
// session registry, the per-venue chatrooms, and idempotency records for the
// session-creation endpoint. This file centralizes the sentinel errors the
// stores return so that the service layer can map them consistently.
package store

import "errors"

var (
	// ErrVenueRequired is returned when a session is requested for an empty
	// venue id.
	ErrVenueRequired = errors.New("venue id is required")

	// ErrNicknameRequired is returned when an anonymous session supplies a
	// nickname that is empty after trimming.
	ErrNicknameRequired = errors.New("nickname is empty")

	// ErrDisplayNameRequired is returned when a named session supplies no
	// display name.
	ErrDisplayNameRequired = errors.New("display name is required")

	// ErrDisplayNameTooLong is returned when a requested display name exceeds
	// the configured rune bound.
	ErrDisplayNameTooLong = errors.New("display name too long")

	// ErrSessionNotFound indicates the session id is unknown to the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotAMember indicates a message was submitted by a session that is
	// not currently joined to the target venue's chatroom. The gateway
	// surfaces this to callers as an access denial.
	ErrNotAMember = errors.New("session is not a member of this chatroom")
)
