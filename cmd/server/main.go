// Command server runs the recipe assistant backend: the websocket relay
// clients talk to, the CouchDB-backed interaction store behind it, and
// the analytics HTTP API on top of the aggregation views.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/souschef/recipe-assistant/internal/config"
	"github.com/souschef/recipe-assistant/internal/couch"
	"github.com/souschef/recipe-assistant/internal/engine"
	"github.com/souschef/recipe-assistant/internal/httpapi"
	"github.com/souschef/recipe-assistant/internal/observability"
	"github.com/souschef/recipe-assistant/internal/store"
	"github.com/souschef/recipe-assistant/internal/ws"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	docs, err := couch.Open(cfg.CouchURL, cfg.CouchDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("document store unreachable")
	}
	st := store.New(docs)
	if err := st.EnsureDatabase(ctx); err != nil {
		log.Fatal().Err(err).Str("db", cfg.CouchDBName).Msg("database setup failed")
	}

	bot := engine.NewBot(st)
	reg := ws.NewRegistry(func(s *ws.Session, text string) {
		mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Send(bot.Respond(mctx, s.ID(), text)); err != nil {
			log.Debug().Err(err).Str("session_id", s.ID()).Msg("reply not delivered")
		}
	}, cfg.FrameRPS, cfg.FrameBurst)
	reg.NotifyClose(func(s *ws.Session) { bot.Forget(s.ID()) })

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(cfg, st, reg),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
