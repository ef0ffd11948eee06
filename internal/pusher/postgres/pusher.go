// Package postgres persists batches into a Postgres table, one row per message.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

const defaultTable = "topic_batches"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Pusher inserts every message of a batch in a single statement.
type Pusher struct {
	pool  execCloser
	table string
}

// New connects a pool and returns a Pusher writing to cfg.Table.
func New(ctx context.Context, cfg Config) (*Pusher, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Pusher{pool: pool, table: table}, nil
}

// NewWithPool constructs a Pusher from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Pusher, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Pusher{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the batch table when it does not exist.
func (p *Pusher) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	batch_id     TEXT        NOT NULL,
	seq          INTEGER     NOT NULL,
	topic        TEXT        NOT NULL,
	payload      BYTEA       NOT NULL,
	flush_reason TEXT        NOT NULL,
	enqueued_at  TIMESTAMPTZ NOT NULL,
	flushed_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (batch_id, seq)
)`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", p.table, err)
	}
	return nil
}

const columnsPerRow = 7

// Push inserts the batch. Rows keep the batch order through seq.
func (p *Pusher) Push(ctx context.Context, batch pipeline.Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("validate batch: %w", err)
	}
	query, args := p.insert(batch)
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}
	if int(tag.RowsAffected()) != batch.Len() {
		return fmt.Errorf("insert batch %s: wrote %d of %d rows", batch.ID, tag.RowsAffected(), batch.Len())
	}
	return nil
}

func (p *Pusher) insert(batch pipeline.Batch) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (batch_id, seq, topic, payload, flush_reason, enqueued_at, flushed_at) VALUES ", p.table)
	args := make([]any, 0, batch.Len()*columnsPerRow)
	for i, msg := range batch.Messages {
		if i > 0 {
			b.WriteString(",")
		}
		base := i * columnsPerRow
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			batch.ID,
			i,
			batch.Topic,
			msg.Payload,
			string(batch.Reason),
			msg.EnqueuedAt,
			batch.FlushedAt,
		)
	}
	return b.String(), args
}

// Close releases the pool.
func (p *Pusher) Close(context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}
