package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
)

// Record is a stored event plus ingestion metadata.
type Record struct {
	event.Event
	AnonymousID string    `json:"anonymousId"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// SQLStore keeps received events in SQLite, one row per event id.
type SQLStore struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the event database at path.
func OpenStore(path string) (*SQLStore, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS telemetry_events(
	  event_id        TEXT    PRIMARY KEY,
	  event_name      TEXT    NOT NULL,
	  event_version   TEXT    NOT NULL,
	  anonymous_id    TEXT    NOT NULL,
	  occurred_at     TEXT    NOT NULL,
	  received_at     INTEGER NOT NULL,
	  properties_json TEXT    NOT NULL CHECK (json_valid(properties_json))
	);
	CREATE INDEX IF NOT EXISTS idx_telemetry_events_received ON telemetry_events(received_at);
	CREATE INDEX IF NOT EXISTS idx_telemetry_events_name     ON telemetry_events(event_name);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Insert stores events in one transaction. Events whose id is already
// stored are skipped and counted as duplicates.
func (s *SQLStore) Insert(ctx context.Context, anonymousID string, events []event.Event, receivedAt time.Time) (inserted, duplicates int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO telemetry_events(event_id, event_name, event_version, anonymous_id, occurred_at, received_at, properties_json)
	VALUES(?,?,?,?,?,?,json(?))
	ON CONFLICT(event_id) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		props, err := json.Marshal(ev.Properties)
		if err != nil {
			_ = tx.Rollback()
			return 0, 0, fmt.Errorf("failed to marshal properties of %s: %w", ev.ID, err)
		}
		res, err := stmt.ExecContext(ctx, ev.ID, string(ev.Name), ev.Version, anonymousID,
			ev.OccurredAt.UTC().Format(time.RFC3339Nano), receivedAt.UnixMilli(), string(props))
		if err != nil {
			_ = tx.Rollback()
			return 0, 0, fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			duplicates++
		} else {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, duplicates, nil
}

// Recent returns up to limit events, newest received first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT event_id, event_name, event_version, anonymous_id, occurred_at, received_at, properties_json
	FROM telemetry_events
	ORDER BY received_at DESC, rowid DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec        Record
			name       string
			occurredAt string
			receivedMs int64
			props      string
		)
		if err := rows.Scan(&rec.ID, &name, &rec.Version, &rec.AnonymousID, &occurredAt, &receivedMs, &props); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Name = event.Name(name)
		if rec.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
			return nil, fmt.Errorf("event %s occurred_at: %w", rec.ID, err)
		}
		rec.ReceivedAt = time.UnixMilli(receivedMs).UTC()
		if err := json.Unmarshal([]byte(props), &rec.Properties); err != nil {
			return nil, fmt.Errorf("event %s properties: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored events.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
