package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/audichuang/openclaw-telegram-files/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_audit (
	id         BIGSERIAL PRIMARY KEY,
	at         TIMESTAMPTZ NOT NULL,
	op         TEXT NOT NULL,
	path       TEXT NOT NULL,
	session    TEXT NOT NULL,
	ok         BOOLEAN NOT NULL,
	detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS file_audit_at_idx ON file_audit (at DESC);
`

// Postgres writes audit entries to a PostgreSQL table.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to databaseURL and ensures the audit table exists.
// The initial ping is retried so the gateway may start before the database.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.Do(ctx, retry.StartupPolicy, func(ctx context.Context) error {
		return retry.Transient(db.PingContext(ctx))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an already open database. The table must exist.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO file_audit (at, op, path, session, ok, detail) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.At, e.Op, e.Path, e.Session, e.OK, e.Detail)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT at, op, path, session, ok, detail FROM file_audit ORDER BY at DESC, id DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.At, &e.Op, &e.Path, &e.Session, &e.OK, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}
