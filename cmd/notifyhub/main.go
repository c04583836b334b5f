package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notify-hub/internal/api"
	"github.com/jwalitptl/notify-hub/internal/config"
	"github.com/jwalitptl/notify-hub/internal/devserver"
	"github.com/jwalitptl/notify-hub/internal/feedback"
	"github.com/jwalitptl/notify-hub/internal/live"
	"github.com/jwalitptl/notify-hub/internal/store"
	"github.com/jwalitptl/notify-hub/pkg/logger"
	"github.com/jwalitptl/notify-hub/pkg/metrics"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "tail":
		runTail()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: notifyhub <serve|tail>")
	fmt.Fprintln(os.Stderr, "  serve  run the in-memory dev backend")
	fmt.Fprintln(os.Stderr, "  tail   follow the notification feed of a backend")
}

func runServe() {
	cfg, err := devserver.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.DebugLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	token, err := devserver.IssueToken(cfg.JWTSecret, "dev", cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue dev token")
	}
	appLogger.Info("dev token for user 'dev'", "token", token)

	server := devserver.NewServer(cfg, appLogger)
	if err := server.Run(); err != nil {
		log.Fatal().Err(err).Msg("dev server exited")
	}
}

func runTail() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logger.InfoLevel
	}
	appLogger := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	m := metrics.NewMetrics("notifyhub", nil)
	apiClient := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, appLogger)
	liveClient := live.NewClient(live.Config{
		URL:            cfg.Backend.WSURL,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
	}, appLogger, m)

	toasts := &feedback.LogToaster{Logger: appLogger}
	feed := store.New(apiClient, liveClient, toasts, feedback.AutoConfirm(true),
		appLogger, m, store.Config{
			PageSize:        cfg.Feed.PageSize,
			ReplayThreshold: cfg.Feed.ReplayThreshold,
		})
	defer feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	feed.Load(ctx)
	cancel()
	feed.StartLive(context.Background(), cfg.Backend.Token)

	view := feed.View()
	appLogger.Info("notification feed",
		"total", view.Total, "unread", view.Unread, "page", view.Page)
	now := time.Now()
	for _, n := range view.Items {
		marker := " "
		if !n.Read {
			marker = "*"
		}
		fmt.Printf("%s [%s] %-40s %s\n", marker, n.Type, n.Title, n.Age(now))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down")
}
