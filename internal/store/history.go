// Package store keeps a SQLite history of usage snapshots and token totals.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/theirongolddev/ccquota/internal/model"
)

// ErrEmpty is returned by Latest when no snapshot has been stored.
var ErrEmpty = errors.New("store: no snapshots recorded")

// History provides SQLite-backed snapshot history.
type History struct {
	db *sql.DB
}

// Entry is one stored snapshot.
type Entry struct {
	ID        int64
	FetchedAt time.Time
	Snapshot  model.UsageSnapshot
}

// TokenEntry is one stored local token aggregate.
type TokenEntry struct {
	RecordedAt  time.Time
	Since       time.Time
	TotalTokens int64
	RecordCount int
}

// Open opens or creates the history database at the given path.
func Open(dbPath string) (*History, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the history database.
func (h *History) Close() error {
	return h.db.Close()
}

func nullPct(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// SaveSnapshot appends a snapshot. The raw payload is not stored.
func (h *History) SaveSnapshot(s *model.UsageSnapshot) error {
	if s == nil {
		return nil
	}
	stored := *s
	stored.RawPayload = nil

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = h.db.Exec(`INSERT INTO snapshots
		(fetched_at, source, five_hour_pct, seven_day_pct, usage_percent, reset_time, schema_version, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Timestamp.UTC().Format(time.RFC3339Nano), s.Source,
		nullPct(s.FiveHour.Utilization), nullPct(s.SevenDay.Utilization), nullPct(s.UsagePercent),
		s.ResetTime, s.SchemaVersion, string(data),
	)
	return err
}

// SaveTokens appends a local token aggregate.
func (h *History) SaveTokens(a model.AggregateUsage, at time.Time) error {
	since := ""
	if !a.Since.IsZero() {
		since = a.Since.UTC().Format(time.RFC3339Nano)
	}
	_, err := h.db.Exec(`INSERT INTO token_totals
		(recorded_at, since, total_tokens, input_tokens, output_tokens, cache_creation, cache_read, record_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano), since,
		a.TotalTokens, a.InputTokens, a.OutputTokens, a.CacheCreationTokens, a.CacheReadTokens, a.RecordCount,
	)
	return err
}

// Latest returns the most recent snapshot, or ErrEmpty.
func (h *History) Latest() (*Entry, error) {
	entries, err := h.Recent(1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	return &entries[0], nil
}

// Recent returns up to limit snapshots, newest first.
func (h *History) Recent(limit int) ([]Entry, error) {
	rows, err := h.db.Query(`SELECT id, fetched_at, snapshot_json FROM snapshots
		ORDER BY fetched_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []Entry
	for rows.Next() {
		var e Entry
		var fetched, data string
		if err := rows.Scan(&e.ID, &fetched, &data); err != nil {
			return nil, err
		}
		e.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetched)
		if err := json.Unmarshal([]byte(data), &e.Snapshot); err != nil {
			return nil, fmt.Errorf("decoding snapshot %d: %w", e.ID, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// RecentTokens returns up to limit token aggregates, newest first.
func (h *History) RecentTokens(limit int) ([]TokenEntry, error) {
	rows, err := h.db.Query(`SELECT recorded_at, since, total_tokens, record_count FROM token_totals
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []TokenEntry
	for rows.Next() {
		var e TokenEntry
		var recorded string
		var since sql.NullString
		if err := rows.Scan(&recorded, &since, &e.TotalTokens, &e.RecordCount); err != nil {
			return nil, err
		}
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		if since.Valid && since.String != "" {
			e.Since, _ = time.Parse(time.RFC3339Nano, since.String)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Prune deletes history older than before and returns the number of
// snapshots removed.
func (h *History) Prune(before time.Time) (int64, error) {
	cutoff := before.UTC().Format(time.RFC3339Nano)

	tx, err := h.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("DELETE FROM snapshots WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec("DELETE FROM token_totals WHERE recorded_at < ?", cutoff); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
