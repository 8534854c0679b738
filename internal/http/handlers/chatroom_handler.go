// Chatroom HTTP handlers.
//
// This file exposes the message side of the chat API:
//   - POST /venues/{id}/chatroom/messages  (send-message)
//   - GET  /venues/{id}/chatroom           (get-current-chatroom)
//   - GET  /venues/{id}/chatroom/stream    (SSE push subscription)
//
// The chatroom view renders the snapshot's ordered list and distinguishes
// "own" messages by comparing session_id against the locally held session.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-venue-chat-backend/internal/domain"
	"github.com/tbourn/go-venue-chat-backend/internal/services"
	"github.com/tbourn/go-venue-chat-backend/internal/utils"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for posting a message.
type SendMessageRequest struct {
	// Text is the message body, 1–500 characters after trimming.
	Text string `json:"text" binding:"required" example:"hello"`
}

// ChatroomResponse wraps a chatroom snapshot for the chatroom view.
type ChatroomResponse struct {
	VenueID          string               `json:"venue_id"`
	Messages         []domain.ChatMessage `json:"messages"`
	ParticipantCount int                  `json:"participant_count"`
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Post a message to a venue's chatroom
// @Description Appends the message to the venue's log and returns it with its assigned position.
// @Tags        Chatroom
// @Accept      json
// @Produce     json
//
// @Param       id            path    string  true  "Venue ID"
// @Param       X-Session-ID  header  string  true  "Session ID"
// @Param       body          body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  domain.ChatMessage
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Access denied"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /venues/{id}/chatroom/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	venueID := c.Param("id")
	sid := sessionID(c)
	if sid == "" {
		fail(c, http.StatusForbidden, ErrCodeAccessDenied, "you need to place an order to access this chatroom")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.gateway.SendMessage(c.Request.Context(), sid, venueID, req.Text)
	if err != nil {
		writeGatewayError(c, err)
		return
	}
	ok(c, http.StatusCreated, msg)
}

// GetChatroom godoc
// @ID          getChatroom
// @Summary     Read the venue's chatroom
// @Description Returns the ordered message log and active participant count. Use ?limit=N for the log tail.
// @Tags        Chatroom
// @Produce     json
//
// @Param       id            path    string  true  "Venue ID"
// @Param       X-Session-ID  header  string  true  "Session ID"
// @Param       limit         query   int     false "Return only the last N messages" minimum(1)
//
// @Success     200  {object}  handlers.ChatroomResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Access denied"
// @Router      /venues/{id}/chatroom [get]
func (h *Handlers) GetChatroom(c *gin.Context) {
	venueID := c.Param("id")
	sid := sessionID(c)
	if sid == "" {
		fail(c, http.StatusForbidden, ErrCodeAccessDenied, "you need to place an order to access this chatroom")
		return
	}

	snap, err := h.gateway.GetChatroom(c.Request.Context(), sid, venueID)
	if err != nil {
		writeGatewayError(c, err)
		return
	}

	msgs := snap.Messages
	if limit := utils.AtoiDefault(c.Query("limit"), 0); limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}

	ok(c, http.StatusOK, ChatroomResponse{
		VenueID:          snap.VenueID,
		Messages:         msgs,
		ParticipantCount: snap.ParticipantCount(),
	})
}

// StreamChatroom godoc
// @ID          streamChatroom
// @Summary     Subscribe to a venue's chatroom
// @Description Streams accepted messages as Server-Sent Events until the client disconnects.
// @Tags        Chatroom
// @Produce     text/event-stream
//
// @Param       id            path    string  true  "Venue ID"
// @Param       X-Session-ID  header  string  true  "Session ID"
//
// @Success     200  {string}  string  "event stream"
// @Failure     403  {object}  handlers.ErrorResponse  "Access denied"
// @Router      /venues/{id}/chatroom/stream [get]
func (h *Handlers) StreamChatroom(c *gin.Context) {
	venueID := c.Param("id")
	sid := sessionID(c)
	if sid == "" {
		fail(c, http.StatusForbidden, ErrCodeAccessDenied, "you need to place an order to access this chatroom")
		return
	}

	ch, cancel, err := h.gateway.SubscribeChatroom(c.Request.Context(), sid, venueID)
	if err != nil {
		writeGatewayError(c, err)
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, open := <-ch:
			if !open {
				return false
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				return false
			}
			c.SSEvent("message", string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// writeGatewayError maps gateway errors onto the standard envelope.
func writeGatewayError(c *gin.Context, err error) {
	switch {
	case services.IsInvalidInput(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrAccessDenied):
		fail(c, http.StatusForbidden, ErrCodeAccessDenied, "you need to place an order to access this chatroom")
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
