package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"global-universe/internal/models"
)

// SQLiteLedger implements RunLedger using SQLite.
type SQLiteLedger struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[models.RunKind]time.Time
}

// NewSQLiteLedger opens (or creates) the run ledger database.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	l := &SQLiteLedger{
		db:        db,
		syncTimes: make(map[models.RunKind]time.Time),
	}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	schema := `
	-- One row per update run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		entries INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Per-entry outcome of a run
	CREATE TABLE IF NOT EXISTS run_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		country TEXT,
		category TEXT,
		name TEXT,
		symbol TEXT,
		primary_symbol TEXT,
		used_symbol TEXT,
		fallback INTEGER DEFAULT 0,
		file TEXT,
		rows_added INTEGER DEFAULT 0,
		updated INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		reason TEXT,
		run_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Last successful run per kind
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_entries_run ON run_entries(run_id);
	CREATE INDEX IF NOT EXISTS idx_entries_symbol ON run_entries(symbol);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// RecordRun stores a run header and all its entries in one transaction.
func (l *SQLiteLedger) RecordRun(ctx context.Context, summary *models.RunSummary) error {
	if summary == nil {
		return nil
	}
	counts := summary.Counts()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, kind, started_at, finished_at, entries, updated, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, summary.ID, string(summary.Kind), summary.StartedAt.UTC(), summary.FinishedAt.UTC(),
		len(summary.Rows), summary.Updated(), counts[models.StatusError])
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_entries (run_id, country, category, name, symbol, primary_symbol, used_symbol, fallback, file, rows_added, updated, status, reason, run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range summary.Rows {
		_, err := stmt.ExecContext(ctx, summary.ID, r.Country, r.Category, r.Name, r.Symbol,
			r.Primary, r.UsedSymbol, boolToInt(r.Fallback), r.File, r.RowsAdded,
			boolToInt(r.Updated), string(r.Status), r.Reason, r.RunAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert run entry: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns run headers, newest first.
func (l *SQLiteLedger) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := "SELECT id, kind, started_at, finished_at, entries, updated, errors FROM runs WHERE 1=1"
	args := []interface{}{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.StartedAt, &r.FinishedAt, &r.Entries, &r.Updated, &r.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Kind = models.RunKind(kind)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunEntries returns the entries of one run, optionally filtered by status.
func (l *SQLiteLedger) RunEntries(ctx context.Context, runID string, status models.Status) ([]models.SummaryRow, error) {
	query := entrySelect + " WHERE run_id = ?"
	args := []interface{}{runID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id"
	return l.queryEntries(ctx, query, args...)
}

// SymbolHistory returns the most recent entries touching symbol, newest first.
func (l *SQLiteLedger) SymbolHistory(ctx context.Context, symbol string, limit int) ([]models.SummaryRow, error) {
	query := entrySelect + " WHERE symbol = ? OR used_symbol = ? ORDER BY run_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return l.queryEntries(ctx, query, symbol, symbol)
}

const entrySelect = `SELECT run_id, country, category, name, symbol, primary_symbol, used_symbol, fallback, file, rows_added, updated, status, reason, run_at FROM run_entries`

func (l *SQLiteLedger) queryEntries(ctx context.Context, query string, args ...interface{}) ([]models.SummaryRow, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run entries: %w", err)
	}
	defer rows.Close()

	var out []models.SummaryRow
	for rows.Next() {
		var r models.SummaryRow
		var country, category, name, symbol, primary, used, file, reason sql.NullString
		var fallback, updated int
		var status string
		if err := rows.Scan(&r.RunID, &country, &category, &name, &symbol, &primary, &used,
			&fallback, &file, &r.RowsAdded, &updated, &status, &reason, &r.RunAt); err != nil {
			return nil, fmt.Errorf("failed to scan run entry: %w", err)
		}
		r.Country = country.String
		r.Category = category.String
		r.Name = name.String
		r.Symbol = symbol.String
		r.Primary = primary.String
		r.UsedSymbol = used.String
		r.File = file.String
		r.Reason = reason.String
		r.Fallback = fallback != 0
		r.Updated = updated != 0
		r.Status = models.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLastSync returns the last successful run time for a kind.
func (l *SQLiteLedger) GetLastSync(kind models.RunKind) time.Time {
	l.mu.RLock()
	if t, ok := l.syncTimes[kind]; ok {
		l.mu.RUnlock()
		return t
	}
	l.mu.RUnlock()

	var lastSync time.Time
	err := l.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, string(kind)).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	l.mu.Lock()
	l.syncTimes[kind] = lastSync
	l.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last successful run time for a kind.
func (l *SQLiteLedger) SetLastSync(kind models.RunKind, t time.Time) error {
	_, err := l.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, string(kind), t.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	l.mu.Lock()
	l.syncTimes[kind] = t
	l.mu.Unlock()

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
