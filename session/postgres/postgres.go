// Package postgres implements the session store on PostgreSQL, one
// row per session, with LISTEN/NOTIFY watches.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davparache/auditory-updated/session"
)

// Config holds configuration for the Store.
type Config struct {
	// Table is the name of the sessions table.
	// Default: "sessions"
	Table string

	// Channel is the NOTIFY channel carrying change events.
	// Default: "sessions_changed"
	Channel string

	// Logger receives watch diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:   "sessions",
		Channel: "sessions_changed",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "sessions"
	}
	if c.Channel == "" {
		c.Channel = "sessions_changed"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store implements session.Store on a PostgreSQL pool.
type Store struct {
	pool   *pgxpool.Pool
	config Config
	table  string
}

// New creates a new Store instance.
func New(pool *pgxpool.Pool, config Config) *Store {
	config.validate()
	return &Store{
		pool:   pool,
		config: config,
		table:  pgx.Identifier{config.Table}.Sanitize(),
	}
}

// EnsureSchema creates the sessions table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id text PRIMARY KEY,
		json text NOT NULL DEFAULT '',
		admin_pin text NOT NULL DEFAULT '',
		updated text NOT NULL DEFAULT ''
	)`, s.table)
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Get retrieves a session document.
func (s *Store) Get(ctx context.Context, id string) (session.Document, error) {
	q := fmt.Sprintf(`SELECT id, json, admin_pin, updated FROM %s WHERE id = $1`, s.table)
	var doc session.Document
	err := s.pool.QueryRow(ctx, q, id).Scan(&doc.ID, &doc.JSON, &doc.AdminPin, &doc.Updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Document{}, session.ErrNotFound
	}
	if err != nil {
		return session.Document{}, mapErr(err)
	}
	return doc, nil
}

// Create writes a new document, leaving an existing one untouched.
func (s *Store) Create(ctx context.Context, doc session.Document) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, json, admin_pin, updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, q, doc.ID, doc.JSON, doc.AdminPin, doc.Updated)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrAlreadyExists
	}
	return s.notify(ctx, doc.ID)
}

// Put writes the full document, creating or replacing it.
func (s *Store) Put(ctx context.Context, doc session.Document) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, json, admin_pin, updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			json = EXCLUDED.json,
			admin_pin = EXCLUDED.admin_pin,
			updated = EXCLUDED.updated`, s.table)
	if _, err := s.pool.Exec(ctx, q, doc.ID, doc.JSON, doc.AdminPin, doc.Updated); err != nil {
		return mapErr(err)
	}
	return s.notify(ctx, doc.ID)
}

// Claim atomically takes the admin pin of an unclaimed document.
func (s *Store) Claim(ctx context.Context, id, pin, updated string) error {
	q := fmt.Sprintf(`UPDATE %s SET admin_pin = $2, updated = $3
		WHERE id = $1 AND admin_pin = ''`, s.table)
	tag, err := s.pool.Exec(ctx, q, id, pin, updated)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		// A follow-up read tells a missing row apart from a claimed one.
		if _, gerr := s.Get(ctx, id); errors.Is(gerr, session.ErrNotFound) {
			return session.ErrNotFound
		}
		return session.ErrAlreadyClaimed
	}
	return s.notify(ctx, id)
}

// UpdateSnapshot replaces the payload of a document the pin holds.
func (s *Store) UpdateSnapshot(ctx context.Context, id, pin, json, updated string) error {
	q := fmt.Sprintf(`UPDATE %s SET json = $2, updated = $3
		WHERE id = $1 AND admin_pin = $4`, s.table)
	tag, err := s.pool.Exec(ctx, q, id, json, updated, pin)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := s.Get(ctx, id); errors.Is(gerr, session.ErrNotFound) {
			return session.ErrNotFound
		}
		return session.ErrReadOnly
	}
	return s.notify(ctx, id)
}

// Touch merge-writes only the timestamp, creating the row if missing.
func (s *Store) Touch(ctx context.Context, id, updated string) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, updated) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET updated = EXCLUDED.updated`, s.table)
	if _, err := s.pool.Exec(ctx, q, id, updated); err != nil {
		return mapErr(err)
	}
	return s.notify(ctx, id)
}

// notify wakes the watchers after a write. The write itself has
// already committed when this fails.
func (s *Store) notify(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, s.config.Channel, id); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	return nil
}

// mapErr converts PostgreSQL errors onto the session sentinels.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501", "28000", "28P01":
			return fmt.Errorf("%w: %s", session.ErrPermissionDenied, pgErr.Message)
		case "42P01":
			return fmt.Errorf("%w: %s", session.ErrUnavailable, pgErr.Message)
		}
	}
	return err
}
