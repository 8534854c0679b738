// Package httpapi wires the HTTP transport (Gin) to the chat gateway,
// middleware, and route handlers. It centralizes cross-cutting concerns:
// tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, compression, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Callers hold opaque session ids only; stores stay behind the gateway
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-venue-chat-backend/internal/config"
	"github.com/tbourn/go-venue-chat-backend/internal/http/handlers"
	"github.com/tbourn/go-venue-chat-backend/internal/http/middleware"
	"github.com/tbourn/go-venue-chat-backend/internal/identity"
	"github.com/tbourn/go-venue-chat-backend/internal/services"
	"github.com/tbourn/go-venue-chat-backend/internal/store"
)

// Stores bundles the in-memory state handed to RegisterRoutes. Callers (the
// server entrypoint, tests) construct them once and share them with the
// background sweeps.
type Stores struct {
	Registry *store.SessionRegistry
	Rooms    *store.ChatroomStore
	Idem     *store.IdempotencyStore
	Names    *identity.Generator
}

// NewStores builds the full store set from configuration.
func NewStores(cfg config.Config) Stores {
	names := identity.NewGenerator()
	return Stores{
		Registry: store.NewSessionRegistry(names,
			store.WithAccessCodeLength(cfg.Chat.AccessCodeLength),
			store.WithMaxDisplayNameRunes(cfg.Chat.MaxNicknameRunes),
		),
		Rooms: store.NewChatroomStore(store.WithStreamBuffer(cfg.Chat.StreamBuffer)),
		Idem:  store.NewIdempotencyStore(cfg.IdempotencyTTL),
		Names: names,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with session ids scrubbed
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per session/IP, bypassed on replay)
//  9. Gzip (SSE excluded), CORS, and security headers
func RegisterRoutes(r *gin.Engine, st Stores, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging; session ids are access grants, never log them
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (64 KiB is generous for 500-char messages)
	r.Use(limitBody(64 << 10))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, venueID, key string, now time.Time) (bool, error) {
			_, exists := st.Idem.Get(venueID, key)
			return exists, nil
		},
	))

	// 8) Token-bucket rate limiter per session/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySessionOrIP())
	r.Use(rl.Handler())

	// 9) Compression; the SSE stream must not be buffered by gzip
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`.*/chatroom/stream$`})))

	// CORS posture (safe defaults: allow all if none configured)
	corsHeaders := []string{
		"Origin", "Content-Type", "Accept",
		middleware.HeaderSessionID, middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers; session responses carry access codes, keep them out
	// of shared caches
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (spec registered by the swag-generated docs when present)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: gateway ← stores
	gw := services.NewChatService(st.Registry, st.Rooms, st.Names)
	gw.MaxMessageRunes = cfg.Chat.MaxMessageRunes
	h := handlers.New(gw, st.Registry, st.Idem)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	{
		// Sessions
		api.POST("/venues/:id/chatroom/sessions", h.CreateSession)
		api.DELETE("/chatroom/session", h.LeaveRoom)
		api.GET("/chatroom/nickname", h.SuggestNickname)

		// Chatroom
		api.POST("/venues/:id/chatroom/messages", h.PostMessage)
		api.GET("/venues/:id/chatroom", h.GetChatroom)
		api.GET("/venues/:id/chatroom/stream", h.StreamChatroom)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on downstream reads.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
