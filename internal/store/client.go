// Copyright 2025 ChaosChain
//
// Postgres-backed persistent store: a database/sql + lib/pq pool, a
// go:embed migrations/*.sql bootstrap, and a ClientOption construction
// pattern over workflow/step records.

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Client wraps a Postgres connection pool and applies embedded migrations
// on construction.
type Client struct {
	db *sql.DB
}

// ClientOption configures a Client at construction time.
type ClientOption func(*sql.DB)

// WithMaxOpenConns bounds the pool's open connection count.
func WithMaxOpenConns(n int) ClientOption {
	return func(db *sql.DB) { db.SetMaxOpenConns(n) }
}

// WithConnMaxLifetime bounds how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) ClientOption {
	return func(db *sql.DB) { db.SetConnMaxLifetime(d) }
}

// Open connects to storeURL, applies pending migrations, and returns a
// ready Client.
func Open(ctx context.Context, storeURL string, opts ...ClientOption) (*Client, error) {
	db, err := sql.Open("postgres", storeURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	c := &Client{db: db}
	if err := c.migrate(ctx); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return c, nil
}

func (c *Client) migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		raw, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := c.db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("exec migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Close releases the underlying pool.
func (c *Client) Close() error { return c.db.Close() }
