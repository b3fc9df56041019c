// Package postgres wraps a lib/pq connection pool with transaction and schema
// helpers shared by the indexer and the searcher.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and pings the server once.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// Connect calls New until it succeeds or cfg.ConnectAttempts is used up,
// backing off between attempts.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	var client *Client
	err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
		MaxAttempts:    cfg.ConnectAttempts,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		JitterFraction: 0.1,
	}, func() error {
		var err error
		client, err = New(cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// EnsureSchema creates the index and analytics tables if they do not exist
// yet.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
