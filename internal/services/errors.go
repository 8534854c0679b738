// Package services implements the chat gateway, the single entry point the
// calling screens use to reach the session registry and the chatroom store.
// This file centralizes the service-level error values so they can be
// consistently returned by gateway methods and mapped to HTTP results at the
// handler layer.
package services

import (
	"errors"

	"github.com/tbourn/go-venue-chat-backend/internal/store"
)

var (
	// ErrAccessDenied is returned when a session is unknown, no longer
	// active, or scoped to a different venue than the one targeted. The
	// three causes are deliberately indistinguishable so a stale session id
	// cannot be used to probe which venue it belonged to.
	ErrAccessDenied = errors.New("access denied")

	// ErrSessionNotFound indicates an unknown session id on operations that
	// address the session itself (leave-room) rather than a venue.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyMessage is returned when a message is empty after trimming.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrMessageTooLong is returned when a message exceeds the configured
	// rune bound.
	ErrMessageTooLong = errors.New("message text too long")
)

// IsInvalidInput reports whether err belongs to the invalid-input family:
// form-level validation failures the caller can fix and resubmit.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrMessageTooLong) ||
		errors.Is(err, store.ErrVenueRequired) ||
		errors.Is(err, store.ErrNicknameRequired) ||
		errors.Is(err, store.ErrDisplayNameRequired) ||
		errors.Is(err, store.ErrDisplayNameTooLong)
}
