package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/davparache/auditory-updated/cache"
	"github.com/davparache/auditory-updated/internal/config"
	"github.com/davparache/auditory-updated/inventory"
	"github.com/davparache/auditory-updated/session"
	"github.com/davparache/auditory-updated/session/dynamo"
	"github.com/davparache/auditory-updated/session/postgres"
	"github.com/davparache/auditory-updated/tracker"
)

// Cache keys the CLI persists its session under.
const (
	sessionIDKey  = "session.id"
	sessionPinKey = "session.pin"
)

// snapshotWait caps how long commands wait for the first remote
// snapshot before falling back to the cached inventory.
const snapshotWait = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "auditory",
	Short: "Warehouse inventory tracker with synced count sessions",
	Long: `auditory tracks warehouse part counts in a local cache and keeps
them in sync with a shared count session.

Commands work offline against the cache; anything touching the remote
session reuses the credentials saved by "auditory connect".`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(zonesCmd)
}

// app bundles the wired-up pieces of one CLI invocation.
type app struct {
	cache   *cache.Cache
	tracker *tracker.Tracker
	engine  *session.Engine

	// onSnapshot is an extra per-snapshot hook, set before connect.
	onSnapshot func(m inventory.Map, readOnly bool)

	snapOnce  sync.Once
	firstSnap chan struct{}
}

// openApp wires the cache, tracker and engine. The engine is created
// but not connected; commands that talk to the backend call connect
// with the saved or supplied credentials.
func openApp() (*app, error) {
	a := &app{firstSnap: make(chan struct{})}

	path := cfg.Cache.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache path: %w", err)
		}
		path = filepath.Join(home, ".auditory")
	}

	c, err := cache.Open(cache.Config{Path: path, FlushInterval: cfg.Cache.FlushInterval})
	if err != nil {
		return nil, err
	}
	a.cache = c

	tr, err := tracker.New(tracker.Config{Cache: c})
	if err != nil {
		c.Close()
		return nil, err
	}
	a.tracker = tr

	eng, err := session.New(session.Config{
		Dial: dialStore,
		OnSnapshot: func(m inventory.Map, readOnly bool) {
			tr.ApplySnapshot(m, readOnly)
			a.snapOnce.Do(func() { close(a.firstSnap) })
			if a.onSnapshot != nil {
				a.onSnapshot(m, readOnly)
			}
		},
	})
	if err != nil {
		tr.Close()
		c.Close()
		return nil, err
	}
	a.engine = eng
	tr.AttachEngine(eng)

	return a, nil
}

// close tears the invocation down in sync order: the tracker first so
// a queued push drains through the still-connected engine.
func (a *app) close() {
	a.tracker.Close()
	a.engine.Disconnect()
	if err := a.cache.Close(); err != nil {
		slog.Warn("cache close failed", "error", err)
	}
}

// connect establishes the session and waits briefly for the first
// snapshot so commands mutate the freshest state available.
func (a *app) connect(ctx context.Context, id, pin string) error {
	if err := a.engine.Connect(ctx, id, pin); err != nil {
		return err
	}
	select {
	case <-a.firstSnap:
	case <-time.After(snapshotWait):
		slog.Warn("no snapshot yet, working from cached inventory")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// connectSaved joins the session a previous connect stored. Without
// one, or when the backend is unreachable, the command stays offline
// and works purely against the cache.
func (a *app) connectSaved(ctx context.Context) {
	id, pin := a.savedSession()
	if id == "" {
		slog.Debug("no saved session, staying offline")
		return
	}
	if err := a.connect(ctx, id, pin); err != nil {
		slog.Warn("session unavailable, working offline", "session", id, "error", err)
	}
}

// savedSession returns the credentials stored by a previous connect.
func (a *app) savedSession() (id, pin string) {
	if b, err := a.cache.Get(sessionIDKey); err == nil {
		id = string(b)
	}
	if b, err := a.cache.Get(sessionPinKey); err == nil {
		pin = string(b)
	}
	return id, pin
}

// saveSession remembers the credentials for later commands.
func (a *app) saveSession(id, pin string) error {
	if err := a.cache.Put(sessionIDKey, []byte(id)); err != nil {
		return err
	}
	return a.cache.Put(sessionPinKey, []byte(pin))
}

// dialStore opens the configured session backend.
func dialStore(ctx context.Context) (session.Store, error) {
	switch cfg.Backend.Kind {
	case config.BackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return dynamo.New(client, dynamo.Config{
			Table:        cfg.Backend.Table,
			PollInterval: cfg.Backend.PollInterval,
		}), nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Backend.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st := postgres.New(pool, postgres.Config{
			Table:   cfg.Backend.Table,
			Channel: cfg.Backend.Channel,
		})
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return st, nil

	case config.BackendMemory:
		return session.NewMemStore(), nil
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
}
