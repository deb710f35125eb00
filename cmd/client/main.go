// Command client is the terminal chat client. It keeps a websocket
// session to the relay with keepalive pings, mirrors recipe documents
// into a local SQLite replica in the background, and falls back to the
// replica-backed offline flow whenever the relay is unreachable.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/souschef/recipe-assistant/internal/client"
	"github.com/souschef/recipe-assistant/internal/config"
	"github.com/souschef/recipe-assistant/internal/couch"
	"github.com/souschef/recipe-assistant/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replica, err := client.OpenReplica(cfg.ReplicaPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ReplicaPath).Msg("local replica unavailable")
	}
	defer func() {
		if err := replica.Close(); err != nil {
			log.Warn().Err(err).Msg("replica close")
		}
	}()

	go syncLoop(ctx, replica, cfg)

	dial := func(ctx context.Context) (client.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.ServerWSURL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	ticker := time.NewTicker(cfg.KeepaliveInterval)
	defer ticker.Stop()

	sess := client.NewSession(dial, client.NewOfflineFlow(replica), ticker.C)
	go sess.Run(ctx)

	go func() {
		for reply := range sess.Replies() {
			fmt.Println(reply)
		}
	}()

	// Feed stdin into the session until EOF or interrupt.
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			select {
			case sess.Input() <- line:
			case <-ctx.Done():
				return
			}
		}
	}
}

// syncLoop mirrors recipe documents from the relay's document store into
// the local replica. Failures only delay the next attempt; the client
// keeps whatever it last pulled.
func syncLoop(ctx context.Context, replica *client.Replica, cfg config.Config) {
	docs, err := couch.Open(cfg.CouchURL, cfg.CouchDBName)
	if err != nil {
		log.Warn().Err(err).Msg("document store unreachable, replica will not refresh")
		return
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		if err := replica.Sync(ctx, docs, store.ReplicaFilter); err != nil {
			log.Warn().Err(err).Msg("replica sync failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	// Interactive tool: keep log noise human-readable on stderr.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
