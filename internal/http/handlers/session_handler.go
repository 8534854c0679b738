// Session HTTP handlers.
//
// This file exposes the session side of the chat API:
//   - POST   /venues/{id}/chatroom/sessions  (create-session-and-join)
//   - DELETE /chatroom/session               (leave-room)
//   - GET    /chatroom/nickname              (anonymous nickname suggestion)
//
// Handlers are transport-thin: they validate input, call the gateway, and
// translate results into HTTP responses. Session creation supports
// Idempotency-Key replay so a retried checkout call never mints a second
// access code.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-venue-chat-backend/internal/domain"
	"github.com/tbourn/go-venue-chat-backend/internal/http/middleware"
	"github.com/tbourn/go-venue-chat-backend/internal/services"
	"github.com/tbourn/go-venue-chat-backend/internal/store"
)

// ChatGateway defines the gateway operations consumed by the HTTP handlers.
// Implementations must be safe for concurrent use.
type ChatGateway interface {
	// CreateSessionAndJoin mints a session and joins it to the venue's room.
	CreateSessionAndJoin(ctx context.Context, p store.CreateSessionParams) (domain.Session, error)
	// SendMessage posts text to the venue's chatroom as the given session.
	SendMessage(ctx context.Context, sessionID, venueID, text string) (domain.ChatMessage, error)
	// LeaveRoom removes the session from its room and invalidates it.
	LeaveRoom(ctx context.Context, sessionID string) error
	// GetChatroom returns a consistent snapshot of the venue's chatroom.
	GetChatroom(ctx context.Context, sessionID, venueID string) (domain.ChatroomSnapshot, error)
	// SubscribeChatroom registers a push subscriber after the access check.
	SubscribeChatroom(ctx context.Context, sessionID, venueID string) (<-chan domain.ChatMessage, func(), error)
	// SuggestNickname returns a fresh anonymous nickname suggestion.
	SuggestNickname() string
}

// SessionReplayer resolves previously created sessions for idempotent
// replays. The registry satisfies this.
type SessionReplayer interface {
	Get(sessionID string) (domain.Session, error)
}

// IdempotencyRecorder persists (venue, key) → session outcomes for replay.
// Put is first-write-wins: it returns the stored record plus whether this
// call created it, so a caller that lost a concurrent race can defer to the
// winner.
type IdempotencyRecorder interface {
	Put(venueID, key, sessionID string) (store.IdempotencyRecord, bool)
	Get(venueID, key string) (store.IdempotencyRecord, bool)
}

// Handlers groups the HTTP endpoints of the chat API.
type Handlers struct {
	gateway  ChatGateway
	sessions SessionReplayer
	idem     IdempotencyRecorder
}

// New constructs a Handlers instance bound to the given collaborators.
func New(gateway ChatGateway, sessions SessionReplayer, idem IdempotencyRecorder) *Handlers {
	return &Handlers{gateway: gateway, sessions: sessions, idem: idem}
}

// sessionID extracts the caller's session id from the X-Session-ID header.
func sessionID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(middleware.HeaderSessionID))
}

//
// DTOs
//

// CreateSessionRequest is the JSON payload for creating a session.
type CreateSessionRequest struct {
	// Anonymous selects a generated/custom nickname identity with no avatar.
	Anonymous bool `json:"anonymous"`
	// Nickname optionally overrides the generated nickname (anonymous) or
	// supplies the caller's real name (named). Max 20 characters.
	Nickname string `json:"nickname" example:"Alex"`
	// Avatar is an optional image reference, honored only for named sessions.
	Avatar string `json:"avatar,omitempty" example:"https://cdn.example.com/a/alex.png"`
}

// SessionResponse is the session descriptor returned on creation. The access
// code appears here exactly once; it is not retrievable later.
type SessionResponse struct {
	ID          string `json:"id"`
	VenueID     string `json:"venue_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
	AccessCode  string `json:"access_code"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// NicknameResponse wraps a nickname suggestion.
type NicknameResponse struct {
	Nickname string `json:"nickname" example:"Crimson Otter"`
}

func toSessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		VenueID:     s.VenueID,
		DisplayName: s.Identity.DisplayName(),
		Avatar:      s.Identity.Avatar(),
		IsAnonymous: s.Identity.IsAnonymous(),
		AccessCode:  s.AccessCode,
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

//
// Handlers
//

// CreateSession godoc
// @ID          createSession
// @Summary     Create a session and join the venue's chatroom
// @Description Mints a venue-scoped session, joins it to the chatroom, and returns the one-time access code.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       id               path    string  true  "Venue ID"
// @Param       Idempotency-Key  header  string  false "Dedupe key for checkout retries"
// @Param       body             body    handlers.CreateSessionRequest true "Create session payload"
//
// @Success     201  {object}  handlers.SessionResponse
// @Success     200  {object}  handlers.SessionResponse "Replay of a prior creation"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /venues/{id}/chatroom/sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	venueID := c.Param("id")

	// Serve recorded replays before touching the registry.
	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey && middleware.IsReplay(c) {
		if rec, found := h.idem.Get(venueID, key); found {
			if sess, err := h.sessions.Get(rec.SessionID); err == nil {
				ok(c, http.StatusOK, toSessionResponse(sess))
				return
			}
		}
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sess, err := h.gateway.CreateSessionAndJoin(c.Request.Context(), store.CreateSessionParams{
		VenueID:     venueID,
		Anonymous:   req.Anonymous,
		DisplayName: req.Nickname,
		Avatar:      req.Avatar,
	})
	if err != nil {
		if services.IsInvalidInput(err) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey {
		if rec, created := h.idem.Put(venueID, key, sess.ID); !created {
			// A concurrent request with the same key finished first. Keep its
			// session so the key maps to exactly one access code, and release
			// the one minted here.
			if winner, err := h.sessions.Get(rec.SessionID); err == nil {
				_ = h.gateway.LeaveRoom(c.Request.Context(), sess.ID)
				ok(c, http.StatusOK, toSessionResponse(winner))
				return
			}
		}
	}
	ok(c, http.StatusCreated, toSessionResponse(sess))
}

// LeaveRoom godoc
// @ID          leaveRoom
// @Summary     Leave the chatroom and invalidate the session
// @Description Removes the caller's session from its chatroom and marks it terminal. Safe to call repeatedly.
// @Tags        Sessions
// @Produce     json
//
// @Param       X-Session-ID  header  string  true "Session ID"
//
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "No session supplied"
// @Failure     404  {object} handlers.ErrorResponse "Unknown session"
// @Router      /chatroom/session [delete]
func (h *Handlers) LeaveRoom(c *gin.Context) {
	sid := sessionID(c)
	if sid == "" {
		fail(c, http.StatusForbidden, ErrCodeAccessDenied, "you need to place an order to access this chatroom")
		return
	}

	if err := h.gateway.LeaveRoom(c.Request.Context(), sid); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// SuggestNickname godoc
// @ID          suggestNickname
// @Summary     Suggest an anonymous nickname
// @Description Returns a fresh random nickname. Call repeatedly to reroll before creating the session.
// @Tags        Sessions
// @Produce     json
//
// @Success     200  {object} handlers.NicknameResponse
// @Router      /chatroom/nickname [get]
func (h *Handlers) SuggestNickname(c *gin.Context) {
	ok(c, http.StatusOK, NicknameResponse{Nickname: h.gateway.SuggestNickname()})
}
