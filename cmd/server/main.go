// Command server runs the venue chat backend: an HTTP API in front of the
// in-memory session registry and chatroom store, with background sweeps for
// idle sessions, empty chatrooms, and expired idempotency records.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-venue-chat-backend/internal/config"
	httpapi "github.com/tbourn/go-venue-chat-backend/internal/http"
	"github.com/tbourn/go-venue-chat-backend/internal/observability"
	"github.com/tbourn/go-venue-chat-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments use actual env vars.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		sysutil.UsePrettyLogs()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	gin.SetMode(cfg.GinMode)
	engine := gin.New()

	stores := httpapi.NewStores(cfg)
	httpapi.RegisterRoutes(engine, stores, cfg)

	go runSweeps(ctx, stores, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// runSweeps drives the periodic housekeeping: idle-session expiry (sessions
// abandoned without leave-room), empty-chatroom GC, and idempotency-record
// expiry. Expired sessions are also removed from their chatroom so the
// membership invariant holds.
func runSweeps(ctx context.Context, st httpapi.Stores, cfg config.Config) {
	ticker := time.NewTicker(cfg.Chat.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sess := range st.Registry.ExpireIdle(cfg.Chat.SessionTTL) {
				st.Rooms.Leave(sess.VenueID, sess.ID)
				log.Debug().
					Str("venue_id", sess.VenueID).
					Msg("idle session expired")
			}
			if n := st.Rooms.PruneIdle(cfg.Chat.ChatroomIdleTTL); n > 0 {
				log.Debug().Int("rooms", n).Msg("idle chatrooms pruned")
			}
			st.Idem.Sweep()
		}
	}
}
