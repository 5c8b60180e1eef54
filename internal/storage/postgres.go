package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists recordings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			filename TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			duration DOUBLE PRECISION NOT NULL,
			sample_rate INTEGER NOT NULL,
			channels INTEGER NOT NULL,
			source_mode TEXT NOT NULL,
			session_id TEXT,
			params JSONB NOT NULL,
			audio BYTEA NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings (created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Recording) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recordings (filename, created_at, duration, sample_rate, channels, source_mode, session_id, params, audio)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.Filename,
		rec.CreatedAt,
		rec.Duration,
		rec.SampleRate,
		rec.Channels,
		string(rec.SourceMode),
		rec.SessionID,
		rec.Params,
		rec.Audio,
	)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT filename, created_at, duration, sample_rate, channels, source_mode
		 FROM recordings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var items []Summary
	for rows.Next() {
		var r Summary
		var mode string
		if err := rows.Scan(&r.Filename, &r.CreatedAt, &r.Duration, &r.SampleRate, &r.Channels, &mode); err != nil {
			return nil, fmt.Errorf("scan recording row: %w", err)
		}
		r.SourceMode = SourceMode(mode)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recording rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Get(ctx context.Context, filename string) (Recording, error) {
	var rec Recording
	var mode string
	err := s.pool.QueryRow(ctx,
		`SELECT filename, created_at, duration, sample_rate, channels, source_mode, session_id, params, audio
		 FROM recordings WHERE filename=$1`, filename).
		Scan(&rec.Filename, &rec.CreatedAt, &rec.Duration, &rec.SampleRate, &rec.Channels, &mode, &rec.SessionID, &rec.Params, &rec.Audio)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recording{}, ErrNotFound
		}
		return Recording{}, fmt.Errorf("get recording: %w", err)
	}
	rec.SourceMode = SourceMode(mode)
	return rec, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
