package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"switchboard/internal/domain"
)

// timeLayout is RFC3339 with fixed nanosecond padding so the TEXT
// created_at column compares lexically in time order. RFC3339Nano trims
// trailing zeros, which breaks that within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InteractionStore is the append-only SQLite log of routing decisions and
// tool executions. It is a sink: callers record best-effort and never let a
// log failure fail the routed operation.
type InteractionStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInteractionStore opens (or creates) the database at path and runs the
// schema migration.
func NewInteractionStore(path string, logger *slog.Logger) (*InteractionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open interactions db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS interactions (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			session_id  TEXT NOT NULL DEFAULT '',
			intent      TEXT NOT NULL,
			target      TEXT NOT NULL,
			success     INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			detail      TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate interactions db: %w", err)
	}
	return &InteractionStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *InteractionStore) Close() error {
	return s.db.Close()
}

// Record appends one interaction. A zero id or timestamp is filled in, and
// a missing session id falls back to the one carried on the context.
func (s *InteractionStore) Record(ctx context.Context, rec domain.InteractionRecord) error {
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	if rec.SessionID == "" {
		rec.SessionID = domain.SessionIDFromContext(ctx)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("marshal interaction detail: %w", err)
	}

	success := 0
	if rec.Success {
		success = 1
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO interactions (id, kind, session_id, intent, target, success, duration_ms, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, string(rec.Kind), rec.SessionID, rec.Intent, rec.Target,
		success, rec.DurationMS, string(detail), rec.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// Recent returns the newest records of one kind, newest first.
func (s *InteractionStore) Recent(ctx context.Context, kind domain.InteractionKind, limit int) ([]domain.InteractionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, session_id, intent, target, success, duration_ms, detail, created_at FROM interactions WHERE kind = ? ORDER BY id DESC LIMIT ?",
		string(kind), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InteractionRecord
	for rows.Next() {
		rec, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SummarizeByIntent aggregates outcomes per intent for one kind, most-used
// intents first.
func (s *InteractionStore) SummarizeByIntent(ctx context.Context, kind domain.InteractionKind) ([]domain.InteractionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT intent, COUNT(*), SUM(success), AVG(duration_ms)
		FROM interactions WHERE kind = ?
		GROUP BY intent ORDER BY COUNT(*) DESC, intent`,
		string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InteractionSummary
	for rows.Next() {
		var sum domain.InteractionSummary
		if err := rows.Scan(&sum.Intent, &sum.Total, &sum.Succeeded, &sum.AvgMS); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes records created before cutoff, returning how many went.
func (s *InteractionStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM interactions WHERE created_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("interactions pruned", "removed", n, "cutoff", cutoff)
	}
	return n, nil
}

func scanInteraction(rows *sql.Rows) (domain.InteractionRecord, error) {
	var rec domain.InteractionRecord
	var kind, detailStr, createdStr string
	var success int
	if err := rows.Scan(&rec.ID, &kind, &rec.SessionID, &rec.Intent, &rec.Target,
		&success, &rec.DurationMS, &detailStr, &createdStr); err != nil {
		return rec, err
	}
	rec.Kind = domain.InteractionKind(kind)
	rec.Success = success != 0
	if err := json.Unmarshal([]byte(detailStr), &rec.Detail); err != nil {
		rec.Detail = nil
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}
