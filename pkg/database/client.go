// Copyright 2025 Certen Protocol
//
// Package database provides the optional Postgres-backed audit trail
// for component G (pkg/uploader): one row per key-block handover the
// uploaders submit, so an operator can reconcile what was sent against
// what a given bridge contract reports on-chain. Grounded on the
// teacher's database.Client connection-pooling and migration pattern,
// cut down to the single table this service actually needs.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client owns the pooled connection to the audit database.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// Config configures the audit client. Mirrors config.AuditConfig plus
// the pool-sizing knobs the teacher's client exposed.
type Config struct {
	DatabaseURL  string
	MaxConns     int
	MinConns     int
	MaxIdleTime  time.Duration
	MaxLifetime  time.Duration
	Logger       *log.Logger
}

// NewClient opens a pooled connection and verifies it with a ping,
// same sequencing as the teacher's NewClient.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database: database url cannot be empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[audit] ", log.LstdFlags)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	minConns := cfg.MinConns
	if minConns < 0 {
		minConns = 0
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	if cfg.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	logger.Printf("connected to audit database (max_conns=%d, min_conns=%d)", maxConns, minConns)
	return &Client{db: db, logger: logger}, nil
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Migration represents one embedded migration file.
type Migration struct {
	Version string
	SQL     string
}

// MigrateUp applies every migration under migrations/ not yet recorded
// in schema_migrations, in version order. Same shape as the teacher's
// MigrateUp, trimmed of the migration-info listing API nothing in this
// service calls.
func (c *Client) MigrateUp(ctx context.Context) error {
	migrations, err := c.readMigrations()
	if err != nil {
		return fmt.Errorf("database: read migrations: %w", err)
	}

	applied, err := c.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("database: applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := c.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("database: apply %s: %w", m.Version, err)
		}
		c.logger.Printf("applied migration %s", m.Version)
	}
	return nil
}

func (c *Client) readMigrations() ([]Migration, error) {
	var out []Migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return err
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(d.Name(), ".sql"),
			SQL:     string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (c *Client) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (c *Client) applyMigration(ctx context.Context, m Migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return tx.Commit()
}
