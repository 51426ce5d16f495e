package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call summaries in PostgreSQL.
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
		`CREATE TABLE IF NOT EXISTS call_summaries (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			persona TEXT NOT NULL,
			reason TEXT NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			turn_count INTEGER NOT NULL,
			transcript_json TEXT NOT NULL DEFAULT '[]',
			intent_summary TEXT NOT NULL DEFAULT '',
			ended_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_summaries_ended ON call_summaries (ended_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, record SummaryRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_summaries (id, session_id, persona, reason, duration_seconds, turn_count, transcript_json, intent_summary, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID,
		record.SessionID,
		record.Persona,
		record.Reason,
		record.DurationSeconds,
		record.TurnCount,
		record.TranscriptJSON,
		record.IntentSummary,
		record.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentSummaries(ctx context.Context, limit int) ([]SummaryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, persona, reason, duration_seconds, turn_count, transcript_json, intent_summary, ended_at
		 FROM call_summaries ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	items := make([]SummaryRecord, 0, limit)
	for rows.Next() {
		var r SummaryRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Persona, &r.Reason, &r.DurationSeconds, &r.TurnCount, &r.TranscriptJSON, &r.IntentSummary, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
