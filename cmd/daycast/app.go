package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daycast/syncengine/internal/offline/cache"
	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/queue"
	"github.com/daycast/syncengine/internal/offline/reachability"
	"github.com/daycast/syncengine/internal/offline/remote"
	"github.com/daycast/syncengine/internal/offline/repository"
	offsync "github.com/daycast/syncengine/internal/offline/sync"
)

// app is the wired offline stack shared by every command.
type app struct {
	store     *db.DB
	cache     *cache.Cache
	queue     *queue.Queue
	client    *remote.Client
	monitor   *reachability.Monitor
	repo      *repository.Repository
	processor offsync.Processor
	tokens    remote.FileTokenSource
}

// openApp opens the local database and builds the stack on top of it.
// listener may be nil.
func openApp(listener offsync.Listener) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	base := logger.Logger
	c := cache.NewWithConfig(store, &cache.Config{
		RetentionDays: cfg.Cache.RetentionDays,
		Logger:        base.WithPrefix("cache"),
	})
	q := queue.NewWithConfig(store, &queue.Config{
		AttachmentDir: queue.DefaultConfig(cfg.DataDir).AttachmentDir,
		MaxRetries:    cfg.Sync.MaxRetries,
		Logger:        base.WithPrefix("queue"),
	})

	tokens := remote.FileTokenSource{Path: cfg.TokenPath()}
	var source remote.TokenSource = tokens
	if cfg.API.Token != "" {
		source = remote.StaticToken(cfg.API.Token)
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL:   cfg.API.BaseURL,
		ClientID:  cfg.API.ClientID,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		Tokens:    source,
		Logger:    base.WithPrefix("remote"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	monitor := reachability.NewWithConfig(client, &reachability.Config{
		ProbeTimeout: cfg.Reachability.ProbeTimeout,
		ProbeStep:    cfg.Reachability.ProbeStep,
		ProbeMax:     cfg.Reachability.ProbeMax,
		Logger:       base.WithPrefix("reachability"),
	})
	monitor.SetNetwork(!offline && reachability.HasUsableInterface())

	repo := repository.NewWithConfig(client, c, q, monitor, &repository.Config{
		Logger: base.WithPrefix("repository"),
	})
	processor := offsync.NewWithConfig(repo.API(), q, c, &offsync.Config{
		Listener: listener,
		Logger:   base.WithPrefix("sync"),
	})

	return &app{
		store:     store,
		cache:     c,
		queue:     q,
		client:    client,
		monitor:   monitor,
		repo:      repo,
		processor: processor,
		tokens:    tokens,
	}, nil
}

// mustOpenApp is openApp for commands that cannot continue without it.
func mustOpenApp(listener offsync.Listener) *app {
	a, err := openApp(listener)
	if err != nil {
		fatal("%v", err)
	}
	return a
}

// Close stops probing and closes the database.
func (a *app) Close() {
	a.monitor.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close database", "error", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
