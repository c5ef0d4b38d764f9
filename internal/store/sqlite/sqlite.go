// Package sqlite implements store.Store on a local SQLite file. The latest
// view is a window-function ranking over the append-only deal_records table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

// Store provides SQLite-backed deal history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path and applies pending migrations.
// Every pooled connection gets WAL, busy_timeout and immediate transactions
// so concurrent appends queue on the write lock instead of failing.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	version, dirty, err := runMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("deal store ready", "path", path, "schema_version", version, "dirty", dirty)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const insertRecord = `
INSERT INTO deal_records (
    key_title, key_authors, seller, format,
    title, authors, price, currency, list_price, timepoint, deleted
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Append inserts all records in one transaction.
func (s *Store) Append(ctx context.Context, records []deal.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &deal.StoreWriteError{Op: "begin append", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return &deal.StoreWriteError{Op: "prepare append", Err: err}
	}
	defer stmt.Close()

	for _, r := range records {
		key := r.Key()
		_, err := stmt.ExecContext(ctx,
			key.Title,
			key.Authors,
			string(r.Seller),
			string(r.Format),
			r.Title,
			r.Authors,
			r.Price.Amount.String(),
			r.Price.Currency,
			r.ListPrice.String(),
			r.Timepoint.UnixNano(),
			r.Deleted,
		)
		if err != nil {
			return &deal.StoreWriteError{Op: "append " + key.String(), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &deal.StoreWriteError{Op: "commit append", Err: err}
	}

	s.logger.Debug("appended deal records", "count", len(records))
	return nil
}

const recordColumns = `seq, title, authors, seller, format, price, currency, list_price, timepoint, deleted`

// Rank 1 per key is the newest timepoint; equal timepoints fall back to the
// highest seq. BINARY collation on the key columns matches Go string order.
const latestViewQuery = `
SELECT ` + recordColumns + `
FROM (
    SELECT *,
        ROW_NUMBER() OVER (
            PARTITION BY key_title, key_authors, seller, format
            ORDER BY timepoint DESC, seq DESC
        ) AS rn
    FROM deal_records
    WHERE timepoint <= ?
)
WHERE rn = 1 AND deleted = 0
ORDER BY key_title, key_authors, seller, format`

func (s *Store) LatestView(ctx context.Context, asOf *time.Time) ([]deal.View, error) {
	cutoff := time.Now()
	if asOf != nil {
		cutoff = *asOf
	}

	rows, err := s.db.QueryContext(ctx, latestViewQuery, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query latest view: %w", err)
	}
	return scanViews(rows)
}

func (s *Store) History(ctx context.Context, key deal.Key) ([]deal.View, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM deal_records
WHERE key_title = ? AND key_authors = ? AND seller = ? AND format = ?
ORDER BY timepoint, seq`,
		key.Title, key.Authors, string(key.Seller), string(key.Format))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanViews(rows)
}

func (s *Store) AllRecords(ctx context.Context) ([]deal.View, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM deal_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanViews(rows)
}

func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	sellers := make([]string, len(run.Sellers))
	for i, sel := range run.Sellers {
		sellers[i] = string(sel)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, timepoint, sellers, records, warnings) VALUES (?, ?, ?, ?, ?)`,
		run.ID.String(),
		run.Timepoint.UnixNano(),
		strings.Join(sellers, ","),
		run.Records,
		run.Warnings,
	)
	if err != nil {
		return &deal.StoreWriteError{Op: "record run", Err: err}
	}
	return nil
}

func (s *Store) LastRun(ctx context.Context) (*store.Run, error) {
	return s.queryRun(ctx,
		`SELECT id, timepoint, sellers, records, warnings FROM runs ORDER BY timepoint DESC, rowid DESC LIMIT 1`)
}

func (s *Store) RunAt(ctx context.Context, asOf time.Time) (*store.Run, error) {
	return s.queryRun(ctx,
		`SELECT id, timepoint, sellers, records, warnings FROM runs WHERE timepoint <= ? ORDER BY timepoint DESC, rowid DESC LIMIT 1`,
		asOf.UnixNano())
}

func (s *Store) queryRun(ctx context.Context, query string, args ...any) (*store.Run, error) {
	var (
		id        string
		timepoint int64
		sellers   string
		run       store.Run
	)
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&id, &timepoint, &sellers, &run.Records, &run.Warnings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	run.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.Timepoint = time.Unix(0, timepoint).UTC()
	for _, name := range strings.Split(sellers, ",") {
		if name != "" {
			run.Sellers = append(run.Sellers, seller.Seller(name))
		}
	}
	return &run, nil
}

func scanViews(rows *sql.Rows) ([]deal.View, error) {
	defer rows.Close()

	var views []deal.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return views, nil
}

func scanView(rows *sql.Rows) (deal.View, error) {
	var (
		v         deal.View
		sel       string
		format    string
		price     string
		listPrice string
		timepoint int64
	)
	err := rows.Scan(
		&v.Seq,
		&v.Title,
		&v.Authors,
		&sel,
		&format,
		&price,
		&v.Price.Currency,
		&listPrice,
		&timepoint,
		&v.Deleted,
	)
	if err != nil {
		return deal.View{}, fmt.Errorf("scan record: %w", err)
	}

	v.Seller = seller.Seller(sel)
	v.Format = seller.Format(format)
	v.Timepoint = time.Unix(0, timepoint).UTC()

	if v.Price.Amount, err = decimal.NewFromString(price); err != nil {
		return deal.View{}, fmt.Errorf("parse price of record %d: %w", v.Seq, err)
	}
	if v.ListPrice, err = decimal.NewFromString(listPrice); err != nil {
		return deal.View{}, fmt.Errorf("parse list price of record %d: %w", v.Seq, err)
	}
	return v, nil
}
