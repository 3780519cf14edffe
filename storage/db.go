package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/config"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

// HistoryLimit is the number of score history entries kept.
const HistoryLimit = 100

// ErrNotFound is returned when a scan or state key does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		scope TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id INTEGER,
		rule_id TEXT NOT NULL,
		cve_id TEXT NOT NULL DEFAULT '',
		cwe TEXT NOT NULL DEFAULT '',
		owasp TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL,
		confidence TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		line INTEGER,
		function_name TEXT NOT NULL DEFAULT '',
		hook_name TEXT NOT NULL DEFAULT '',
		trace_json TEXT CHECK(trace_json IS NULL OR json_valid(trace_json)),
		sample_payload TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		score INTEGER NOT NULL,
		risk_level TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL CHECK(json_valid(value)),
		updated_at DATETIME NOT NULL
	);
`

// SQLStore keeps findings, scan runs, score history and keyed state in SQLite.
type SQLStore struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
	now func() time.Time
}

// Open connects to the configured database and applies the schema.
func Open(cfg config.DatabaseConfig, log *zap.SugaredLogger) (*SQLStore, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db, log), nil
}

// NewSQLStore wraps an already migrated database.
func NewSQLStore(db *sqlx.DB, log *zap.SugaredLogger) *SQLStore {
	return &SQLStore{
		db:  db,
		log: logging.OrNop(log).With("component", "storage"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the tables when missing.
func Migrate(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

// InsertFinding appends a finding and returns its id. Findings are never
// updated or deleted.
func (s *SQLStore) InsertFinding(ctx context.Context, f *models.Finding) (int64, error) {
	var id int64
	err := s.executeInTransaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO findings (
			asset_id, rule_id, cve_id, cwe, owasp, severity, confidence,
			path, line, function_name, hook_name, trace_json, sample_payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.AssetID, f.RuleID, f.CVEID, f.CWE, f.OWASP, f.Severity, f.Confidence,
			f.Path, f.Line, f.FunctionName, f.HookName, f.Trace, f.SamplePayload, f.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert finding failed: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get finding ID failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

// QueryFindings returns the findings of the given severity, oldest first.
// An empty severity returns every finding.
func (s *SQLStore) QueryFindings(ctx context.Context, severity string) ([]models.Finding, error) {
	query := `SELECT
		id, asset_id, rule_id, cve_id, cwe, owasp, severity, confidence, path, line,
		function_name, hook_name, trace_json, sample_payload, created_at
		FROM findings`
	var args []interface{}
	if severity != "" {
		query += ` WHERE severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY id`

	findings := []models.Finding{}
	if err := s.db.SelectContext(ctx, &findings, query, args...); err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	return findings, nil
}

// StartScan records a new scan run in the running state.
func (s *SQLStore) StartScan(ctx context.Context, scope, runID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO scans (run_id, started_at, scope, status) VALUES (?, ?, ?, ?)",
		runID, s.now(), scope, models.ScanRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("insert scan failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get scan ID failed: %w", err)
	}
	return id, nil
}

// FinishScan moves a scan run to its final status.
func (s *SQLStore) FinishScan(ctx context.Context, id int64, status models.ScanStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE scans SET finished_at = ?, status = ? WHERE id = ?",
		s.now(), status, id,
	)
	if err != nil {
		return fmt.Errorf("update scan %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scan %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) GetScan(ctx context.Context, id int64) (models.ScanRun, error) {
	var run models.ScanRun
	err := s.db.GetContext(ctx, &run,
		"SELECT id, run_id, started_at, finished_at, scope, status FROM scans WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("scan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return run, fmt.Errorf("get scan %d: %w", id, err)
	}
	return run, nil
}

// AppendHistory adds an entry and drops the oldest ones beyond HistoryLimit.
func (s *SQLStore) AppendHistory(ctx context.Context, e models.HistoryEntry) error {
	return s.executeInTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO history (timestamp, score, risk_level) VALUES (?, ?, ?)",
			e.Timestamp.UTC(), e.Score, e.RiskLevel,
		); err != nil {
			return fmt.Errorf("insert history failed: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)",
			HistoryLimit,
		); err != nil {
			return fmt.Errorf("trim history failed: %w", err)
		}
		return nil
	})
}

// ListHistory returns the kept history, oldest first.
func (s *SQLStore) ListHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	entries := []models.HistoryEntry{}
	if err := s.db.SelectContext(ctx, &entries,
		"SELECT timestamp, score, risk_level FROM history ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// PutState stores v as JSON under key, replacing any previous value.
func (s *SQLStore) PutState(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), s.now(),
	)
	if err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

// GetState decodes the value stored under key into dest.
func (s *SQLStore) GetState(ctx context.Context, key string, dest interface{}) error {
	var raw string
	err := s.db.GetContext(ctx, &raw, "SELECT value FROM state WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("state %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get state %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}
