package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS voice_turns (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		lora_path    TEXT NOT NULL DEFAULT '',
		language     TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '',
		user_text    TEXT NOT NULL,
		reply_text   TEXT NOT NULL,
		audio_url    TEXT NOT NULL DEFAULT '',
		degraded     BOOLEAN NOT NULL DEFAULT FALSE,
		pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS voice_turns_session_created_idx ON voice_turns (session_id, created_at)`,
}

const insertTurnSQL = `INSERT INTO voice_turns
	(id, session_id, lora_path, language, source, user_text, reply_text, audio_url, degraded, pii_redacted, created_at)
	VALUES (@id, @session_id, @lora_path, @language, @source, @user_text, @reply_text, @audio_url, @degraded, @pii_redacted, @created_at)`

// Columns are listed in TurnRecord field order for RowToStructByPos.
const recentTurnsSQL = `SELECT id, session_id, lora_path, language, source, user_text, reply_text, audio_url, degraded, pii_redacted, created_at
	FROM (
		SELECT * FROM voice_turns WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2
	) newest
	ORDER BY created_at ASC`

// PostgresStore archives turns in the voice_turns table.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	r := stamp(record, s.now())
	_, err := s.pool.Exec(ctx, insertTurnSQL, pgx.NamedArgs{
		"id":           r.ID,
		"session_id":   r.SessionID,
		"lora_path":    r.LoraPath,
		"language":     r.Language,
		"source":       r.Source,
		"user_text":    r.UserText,
		"reply_text":   r.ReplyText,
		"audio_url":    r.AudioURL,
		"degraded":     r.Degraded,
		"pii_redacted": r.PIIRedacted,
		"created_at":   r.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("save turn %s: %w", r.ID, err)
	}
	return nil
}

// RecentTurns returns up to limit turns, oldest first; limit <= 0 means 10.
func (s *PostgresStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, recentTurnsSQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, pgx.RowToStructByPos[TurnRecord])
	if err != nil {
		return nil, fmt.Errorf("collect recent turns: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
