package recorder

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"BetaBasket/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists snapshots to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id       TEXT NOT NULL,
			generation       INTEGER NOT NULL,
			timestamp        INTEGER NOT NULL,
			selections       TEXT,
			points           INTEGER,
			last_value       REAL,
			total_return_pct REAL,
			annual_vol_pct   REAL,
			sharpe           REAL,
			max_drawdown_pct REAL,
			rsi              REAL,
			sma              REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, id)`,

		`CREATE TABLE IF NOT EXISTS index_points (
			snapshot_id INTEGER NOT NULL,
			timestamp   INTEGER NOT NULL,
			value       REAL NOT NULL,
			PRIMARY KEY (snapshot_id, timestamp)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSnapshot stores the snapshot header and its index series in one transaction.
func (r *SQLiteRecorder) RecordSnapshot(sessionID string, snap model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sels, err := json.Marshal(snap.Selections)
	if err != nil {
		return fmt.Errorf("marshal selections: %w", err)
	}
	var last float64
	if p, ok := snap.Last(); ok {
		last = p.Value
	}
	ts := snap.ComputedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO snapshots
		(session_id, generation, timestamp, selections, points, last_value,
		 total_return_pct, annual_vol_pct, sharpe, max_drawdown_pct, rsi, sma)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sessionID, int64(snap.Generation), ts.Unix(), string(sels), len(snap.Points), last,
		snap.Stats.TotalReturnPct, snap.Stats.AnnualizedVolPct, snap.Stats.Sharpe, snap.Stats.MaxDrawdownPct,
		snap.Stats.RSI, snap.Stats.SMA,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO index_points (snapshot_id, timestamp, value) VALUES (?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare points: %w", err)
	}
	defer stmt.Close()
	for _, p := range snap.Points {
		if _, err := stmt.Exec(id, p.Time.UnixMilli(), p.Value); err != nil {
			return fmt.Errorf("insert point: %w", err)
		}
	}
	return tx.Commit()
}

// LatestSnapshot loads the most recent snapshot recorded for sessionID.
func (r *SQLiteRecorder) LatestSnapshot(sessionID string) (*SnapshotRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &SnapshotRecord{SessionID: sessionID}
	var (
		gen  int64
		ts   int64
		sels string
	)
	err := r.db.QueryRow(`SELECT id, generation, timestamp, selections,
		total_return_pct, annual_vol_pct, sharpe, max_drawdown_pct, rsi, sma
		FROM snapshots WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID).
		Scan(&rec.ID, &gen, &ts, &sels,
			&rec.Stats.TotalReturnPct, &rec.Stats.AnnualizedVolPct, &rec.Stats.Sharpe, &rec.Stats.MaxDrawdownPct,
			&rec.Stats.RSI, &rec.Stats.SMA)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	rec.Generation = uint64(gen)
	rec.Timestamp = time.Unix(ts, 0)
	if sels != "" {
		if err := json.Unmarshal([]byte(sels), &rec.Selections); err != nil {
			return nil, fmt.Errorf("decode selections: %w", err)
		}
	}

	rows, err := r.db.Query(`SELECT timestamp, value FROM index_points
		WHERE snapshot_id = ? ORDER BY timestamp`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ms int64
		var v float64
		if err := rows.Scan(&ms, &v); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		rec.Points = append(rec.Points, model.IndexPoint{Time: time.UnixMilli(ms).UTC(), Value: v})
	}
	return rec, rows.Err()
}

// Close closes the underlying database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
