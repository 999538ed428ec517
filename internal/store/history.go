// Package store keeps a SQLite log of scan results
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/phishlens/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no scan matches
var ErrNotFound = errors.New("scan not found")

// History is an append-only scan log
type History struct {
	db *sql.DB
}

// Open opens or creates the history database at path. ":memory:" is accepted for tests.
func Open(path string) (*History, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &History{db: db}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

// Save appends a scan result. Results without an ID get one.
func (h *History) Save(ctx context.Context, r *model.ScanResult) error {
	if r == nil {
		return errors.New("nil scan result")
	}

	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	scannedAt := r.Timestamp
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}

	features, err := json.Marshal(r.SignificantFeatures)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	threats, err := json.Marshal(nonNil(r.Threats))
	if err != nil {
		return fmt.Errorf("marshal threats: %w", err)
	}
	sources, err := json.Marshal(nonNil(r.Sources))
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO scans (id, url, display_host, risk_score, risk_tier, probability, blocked,
		                   features_json, threats_json, sources_json, error, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.URL, r.DisplayHost, r.RiskScore, string(r.RiskTier), r.ClassifierProbability, r.Blocked,
		string(features), string(threats), string(sources), r.Error, scannedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

const selectColumns = `id, url, display_host, risk_score, risk_tier, probability, blocked,
	features_json, threats_json, sources_json, error, scanned_at`

// Recent returns up to limit scans, newest first
func (h *History) Recent(ctx context.Context, limit int) ([]model.ScanResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM scans ORDER BY scanned_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var out []model.ScanResult
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Last returns the most recent scan of rawURL
func (h *History) Last(ctx context.Context, rawURL string) (*model.ScanResult, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM scans WHERE url = ? ORDER BY scanned_at DESC, rowid DESC LIMIT 1`, rawURL)

	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// TierCounts returns how many scans fell into each tier
func (h *History) TierCounts(ctx context.Context) (map[model.RiskTier]int, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT risk_tier, COUNT(*) FROM scans GROUP BY risk_tier`)
	if err != nil {
		return nil, fmt.Errorf("count tiers: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.RiskTier]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		counts[model.RiskTier(tier)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*model.ScanResult, error) {
	var (
		r                          model.ScanResult
		tier                       string
		features, threats, sources string
		scannedAt                  int64
	)

	err := s.Scan(&r.ID, &r.URL, &r.DisplayHost, &r.RiskScore, &tier, &r.ClassifierProbability, &r.Blocked,
		&features, &threats, &sources, &r.Error, &scannedAt)
	if err != nil {
		return nil, err
	}

	r.RiskTier = model.RiskTier(tier)
	r.Timestamp = time.UnixMilli(scannedAt)

	if err := json.Unmarshal([]byte(features), &r.SignificantFeatures); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal([]byte(threats), &r.Threats); err != nil {
		return nil, fmt.Errorf("decode threats: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
