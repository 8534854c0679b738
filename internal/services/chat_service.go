// Package services – ChatService
//
// This file implements the chat gateway. It is the access-control boundary
// of the subsystem: every operation takes the caller's session id as an
// explicit parameter, re-validates it against the registry, and only then
// delegates to the chatroom store. The gateway never exposes store internals
// to callers; they hold opaque session ids and copies of domain values.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// venue and session identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-venue-chat-backend/internal/domain"
	"github.com/tbourn/go-venue-chat-backend/internal/store"
)

// SessionRegistry defines the session operations the gateway requires.
type SessionRegistry interface {
	// CreateSession validates input and registers a new Active session.
	CreateSession(p store.CreateSessionParams) (domain.Session, error)
	// Get returns a copy of the session or store.ErrSessionNotFound.
	Get(sessionID string) (domain.Session, error)
	// Invalidate marks the session Left; idempotent.
	Invalidate(sessionID string) error
	// Touch bumps the session's idle timer.
	Touch(sessionID string)
}

// ChatroomStore defines the chatroom operations the gateway requires.
type ChatroomStore interface {
	// Join adds the session to the venue's chatroom, creating it if absent.
	Join(venueID, sessionID string)
	// Leave removes the session from the venue's chatroom.
	Leave(venueID, sessionID string)
	// Append commits a membership-checked message in acceptance order.
	Append(venueID string, msg domain.ChatMessage) (domain.ChatMessage, error)
	// Snapshot returns a consistent view of the venue's log and membership.
	Snapshot(venueID string) domain.ChatroomSnapshot
	// Subscribe registers a push subscriber for the venue.
	Subscribe(venueID string) (<-chan domain.ChatMessage, func())
}

// NicknameGenerator supplies anonymous nickname suggestions.
type NicknameGenerator interface {
	Generate() string
}

// ChatService coordinates the registry and the chatroom store behind the
// four public operations plus nickname suggestions and push subscriptions.
type ChatService struct {
	Registry SessionRegistry
	Rooms    ChatroomStore
	Names    NicknameGenerator

	// MaxMessageRunes caps message text by rune length.
	MaxMessageRunes int

	now func() time.Time // test seam
}

// NewChatService constructs a ChatService with the default message bound.
func NewChatService(reg SessionRegistry, rooms ChatroomStore, names NicknameGenerator) *ChatService {
	return &ChatService{
		Registry:        reg,
		Rooms:           rooms,
		Names:           names,
		MaxMessageRunes: 500,
		now:             time.Now,
	}
}

// CreateSessionAndJoin mints a session for the venue and joins it to the
// venue's chatroom in one step; either both happen or neither does. The
// access code inside the returned session is shown to the caller exactly
// once, as a confirmation artifact.
func (s *ChatService) CreateSessionAndJoin(ctx context.Context, p store.CreateSessionParams) (domain.Session, error) {
	tr := otel.Tracer("services/ChatService")
	_, span := tr.Start(ctx, "CreateSessionAndJoin",
		trace.WithAttributes(
			attribute.String("venue.id", p.VenueID),
			attribute.Bool("session.anonymous", p.Anonymous),
		),
	)
	defer span.End()

	sess, err := s.Registry.CreateSession(p)
	if err != nil {
		return domain.Session{}, err
	}
	s.Rooms.Join(sess.VenueID, sess.ID)
	return sess, nil
}

// SendMessage enforces the access invariant, snapshots the author's display
// identity at post time, and appends the message to the venue's log. The
// returned message carries its assigned position in acceptance order.
func (s *ChatService) SendMessage(ctx context.Context, sessionID, venueID, text string) (domain.ChatMessage, error) {
	tr := otel.Tracer("services/ChatService")
	_, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("venue.id", venueID),
			attribute.String("session.id", sessionID),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return domain.ChatMessage{}, ErrMessageTooLong
	}

	sess, err := s.authorize(sessionID, venueID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	msg := domain.ChatMessage{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		DisplayName: sess.Identity.DisplayName(),
		Avatar:      sess.Identity.Avatar(),
		IsAnonymous: sess.Identity.IsAnonymous(),
		Text:        text,
		Timestamp:   s.now(),
	}
	accepted, err := s.Rooms.Append(venueID, msg)
	if err != nil {
		// Membership failures surface identically to the access check.
		if errors.Is(err, store.ErrNotAMember) {
			return domain.ChatMessage{}, ErrAccessDenied
		}
		return domain.ChatMessage{}, err
	}
	s.Registry.Touch(sess.ID)
	return accepted, nil
}

// LeaveRoom removes the session from its venue's chatroom and invalidates
// it. The session is terminal afterwards; any later SendMessage with the
// same id is denied. Leaving twice succeeds both times.
func (s *ChatService) LeaveRoom(ctx context.Context, sessionID string) error {
	tr := otel.Tracer("services/ChatService")
	_, span := tr.Start(ctx, "LeaveRoom",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, err := s.Registry.Get(sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.Rooms.Leave(sess.VenueID, sess.ID)
	return s.Registry.Invalidate(sess.ID)
}

// GetChatroom runs the same access check as SendMessage and returns a
// consistent snapshot of the venue's chatroom.
func (s *ChatService) GetChatroom(ctx context.Context, sessionID, venueID string) (domain.ChatroomSnapshot, error) {
	tr := otel.Tracer("services/ChatService")
	_, span := tr.Start(ctx, "GetChatroom",
		trace.WithAttributes(
			attribute.String("venue.id", venueID),
			attribute.String("session.id", sessionID),
		),
	)
	defer span.End()

	sess, err := s.authorize(sessionID, venueID)
	if err != nil {
		return domain.ChatroomSnapshot{}, err
	}
	s.Registry.Touch(sess.ID)
	return s.Rooms.Snapshot(venueID), nil
}

// SubscribeChatroom runs the access check and registers a push subscriber
// for the venue. The access invariant is re-checked on every delivery, so a
// subscriber whose session leaves or expires stops receiving messages and
// its channel is closed; each delivery also bumps the session's idle timer,
// keeping a quietly watching client from being expired mid-stream. The
// caller must invoke cancel when done.
func (s *ChatService) SubscribeChatroom(ctx context.Context, sessionID, venueID string) (<-chan domain.ChatMessage, func(), error) {
	tr := otel.Tracer("services/ChatService")
	_, span := tr.Start(ctx, "SubscribeChatroom",
		trace.WithAttributes(
			attribute.String("venue.id", venueID),
			attribute.String("session.id", sessionID),
		),
	)
	defer span.End()

	if _, err := s.authorize(sessionID, venueID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.Rooms.Subscribe(venueID)

	out := make(chan domain.ChatMessage)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			close(done)
		})
	}

	go func() {
		defer close(out)
		for {
			select {
			case msg, open := <-ch:
				if !open {
					return
				}
				if _, err := s.authorize(sessionID, venueID); err != nil {
					stop()
					return
				}
				s.Registry.Touch(sessionID)
				select {
				case out <- msg:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()
	return out, stop, nil
}

// SuggestNickname returns a fresh anonymous nickname suggestion. Callers may
// reroll as often as they like before committing one to CreateSessionAndJoin.
func (s *ChatService) SuggestNickname() string {
	return s.Names.Generate()
}

// authorize resolves the session and checks the access invariant: the
// session must exist, be Active, and be scoped to venueID. All failure modes
// collapse into ErrAccessDenied.
func (s *ChatService) authorize(sessionID, venueID string) (domain.Session, error) {
	sess, err := s.Registry.Get(sessionID)
	if err != nil {
		return domain.Session{}, ErrAccessDenied
	}
	if !sess.IsActive() || sess.VenueID != venueID {
		return domain.Session{}, ErrAccessDenied
	}
	return sess, nil
}
