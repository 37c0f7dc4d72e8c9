package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/substitwt/recaster/internal/bot"
	"github.com/substitwt/recaster/internal/captcha"
	"github.com/substitwt/recaster/internal/config"
	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/logging"
	"github.com/substitwt/recaster/internal/server"
	"github.com/substitwt/recaster/internal/stream"
	"github.com/substitwt/recaster/internal/twitter"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func connectFeed(ctx context.Context, url string) *websocket.Conn {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		slog.Error("Failed to connect event feed", "error", err)
		os.Exit(1)
	}
	return conn
}

func runGracefulShutdown(cancel context.CancelFunc, srv *server.Server, feedConn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		cancel()
		_ = feedConn.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := &domain.AppState{}

	relayClient := twitter.NewClient(twitter.Credentials{
		ConsumerKey:       cfg.ConsumerKey,
		ConsumerSecret:    cfg.ConsumerSecret,
		AccessToken:       cfg.AccessToken,
		AccessTokenSecret: cfg.AccessTokenSecret,
	}, clock)

	// Invalid credentials are fatal at startup and stay fatal on every
	// periodic re-verification.
	verifier := twitter.NewVerifier(relayClient, state, clock)
	if err := verifier.VerifyOnce(ctx); err != nil {
		slog.Error("Credential verification failed", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := verifier.Run(ctx); err != nil {
			slog.Error("Credential re-verification failed, stopping", "error", err)
			cancel()
		}
	}()

	captchaProvider := captcha.NewProvider(cfg.TextCaptchaKey)

	limits := bot.Limits{
		RateLimit:         cfg.RateLimit,
		RateWindow:        cfg.RateWindow,
		MaxExceeds:        cfg.MaxExceeds,
		ExceedWindow:      cfg.ExceedWindow,
		WaitBeforeFirstDM: cfg.WaitBeforeFirstDM,
	}
	registry := bot.NewRegistry(relayClient, captchaProvider, clock, limits)
	moderation := bot.NewModerationFilter(relayClient, cfg.ModerationUserID)
	dispatcher := bot.NewDispatcher(registry, relayClient, moderation, state, clock, cfg.DeleteDelay)

	feedConn := connectFeed(ctx, cfg.StreamURL)
	feed := stream.NewFeed(feedConn)

	go func() {
		if err := feed.Run(ctx); err != nil {
			slog.Error("Event feed terminated", "error", err)
			cancel()
		}
	}()
	go dispatcher.Run(ctx, feed.Events())

	var homepage *server.GistFetcher
	if cfg.HomepageGistID != "" {
		homepage = server.NewGistFetcher(cfg.HomepageGistID, "homepage.md", state, clock)
	}

	srv, err := server.NewServer(cfg, state, registry, homepage)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(cancel, srv, feedConn)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
