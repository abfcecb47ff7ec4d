package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"breakout/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ CacheIndex = (*SQLiteStore)(nil)
var _ LedgerStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS cache_index (
	symbol     TEXT PRIMARY KEY,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id         INTEGER NOT NULL REFERENCES runs(id),
	seq            INTEGER NOT NULL,
	symbol         TEXT NOT NULL,
	action         TEXT NOT NULL,
	date           TEXT NOT NULL,
	price          REAL NOT NULL,
	quantity       INTEGER NOT NULL,
	commission     REAL NOT NULL,
	slippage       REAL NOT NULL,
	resulting_cash REAL NOT NULL,
	note           TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS equity (
	run_id       INTEGER NOT NULL REFERENCES runs(id),
	date         TEXT NOT NULL,
	total_equity REAL NOT NULL,
	PRIMARY KEY (run_id, date)
);
`

// SQLiteStore implements CacheIndex and LedgerStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// CacheIndex implementation
// ---------------------------------------------------------------------------

const dateLayout = "2006-01-02"

// Entry returns the cache entry for a symbol, or nil if none exists. A row
// whose dates fail to parse wraps domain.ErrCacheCorrupt so callers can
// treat the entry as absent and re-fetch.
func (s *SQLiteStore) Entry(ctx context.Context, symbol string) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT start_date, end_date, fetched_at FROM cache_index WHERE symbol = ?`, symbol)

	var startStr, endStr string
	var fetchedAt int64
	if err := row.Scan(&startStr, &endStr, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache entry for %s: %w", symbol, err)
	}

	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad start_date %q", domain.ErrCacheCorrupt, symbol, startStr)
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad end_date %q", domain.ErrCacheCorrupt, symbol, endStr)
	}

	return &CacheEntry{
		Symbol:    symbol,
		Start:     start,
		End:       end,
		FetchedAt: time.Unix(fetchedAt, 0).UTC(),
	}, nil
}

// PutEntry inserts or replaces the cache entry for entry.Symbol.
func (s *SQLiteStore) PutEntry(ctx context.Context, entry CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_index (symbol, start_date, end_date, fetched_at) VALUES (?, ?, ?, ?)`,
		entry.Symbol,
		entry.Start.Format(dateLayout),
		entry.End.Format(dateLayout),
		entry.FetchedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry for %s: %w", entry.Symbol, err)
	}
	return nil
}

// DeleteEntry removes the cache entry for a symbol.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_index WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("deleting cache entry for %s: %w", symbol, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// LedgerStore implementation
// ---------------------------------------------------------------------------

// SaveRun stores a completed run in a single transaction and returns its
// assigned run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, strategy string, trades []domain.TradeRecord, equity []domain.EquityPoint) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning run transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (strategy, created_at) VALUES (?, ?)`,
		strategy, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	for seq, t := range trades {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trades (run_id, seq, symbol, action, date, price, quantity, commission, slippage, resulting_cash, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, seq, t.Symbol, string(t.Action), t.Date.Format(dateLayout),
			t.Price, t.Quantity, t.Commission, t.Slippage, t.ResultingCash, t.Note)
		if err != nil {
			return 0, fmt.Errorf("inserting trade %d: %w", seq, err)
		}
	}

	for _, p := range equity {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO equity (run_id, date, total_equity) VALUES (?, ?, ?)`,
			runID, p.Date.Format(dateLayout), p.TotalEquity)
		if err != nil {
			return 0, fmt.Errorf("inserting equity point %s: %w", p.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// ReadTrades returns the trade ledger of a stored run in insertion order.
func (s *SQLiteStore) ReadTrades(ctx context.Context, runID int64) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, action, date, price, quantity, commission, slippage, resulting_cash, note
		 FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading trades for run %d: %w", runID, err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var action, dateStr string
		if err := rows.Scan(&t.Symbol, &action, &dateStr, &t.Price, &t.Quantity,
			&t.Commission, &t.Slippage, &t.ResultingCash, &t.Note); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.Action = domain.Action(action)
		if t.Date, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("parsing trade date %q: %w", dateStr, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ReadEquity returns the equity curve of a stored run in date order.
func (s *SQLiteStore) ReadEquity(ctx context.Context, runID int64) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, total_equity FROM equity WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading equity for run %d: %w", runID, err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		var dateStr string
		if err := rows.Scan(&dateStr, &p.TotalEquity); err != nil {
			return nil, fmt.Errorf("scanning equity point: %w", err)
		}
		if p.Date, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("parsing equity date %q: %w", dateStr, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
