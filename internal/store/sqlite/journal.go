// Package sqlite persists backtest runs to a SQLite journal.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"market-analyzer/internal/ledger"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"
	"market-analyzer/internal/state"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Config configures the journal.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/journal.db"
}

// Run is one backtest run.
type Run struct {
	ID         string
	Symbol     string
	Strategy   string
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      int
	Volume     decimal.Decimal
	Profit     decimal.Decimal
	Summary    ledger.Summary
}

// Journal writes runs, their transactions and their recorded errors.
type Journal struct {
	db  *sql.DB
	sq  squirrel.StatementBuilderType
	log *slog.Logger

	// OnCommit is called with the duration of every write (optional, metrics hook).
	OnCommit func(d time.Duration)
}

// Open opens (or creates) the journal with WAL mode and the schema.
func Open(cfg Config, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	j := &Journal{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		log: logger.For(log, "journal"),
	}
	j.log.Info("opened journal", "path", cfg.DBPath)
	return j, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT    PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			strategy    TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			steps       INTEGER NOT NULL DEFAULT 0,
			volume      TEXT    NOT NULL DEFAULT '0',
			profit      TEXT    NOT NULL DEFAULT '0',
			min_volume  TEXT    NOT NULL DEFAULT '0',
			max_volume  TEXT    NOT NULL DEFAULT '0',
			min_profit  TEXT    NOT NULL DEFAULT '0',
			max_profit  TEXT    NOT NULL DEFAULT '0',
			min_lot     TEXT    NOT NULL DEFAULT '0',
			max_lot     TEXT    NOT NULL DEFAULT '0',
			total_lots  TEXT    NOT NULL DEFAULT '0'
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			price   TEXT    NOT NULL,
			volume  TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_run ON transactions(run_id, id);

		CREATE TABLE IF NOT EXISTS errors (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			op      TEXT    NOT NULL,
			status  TEXT    NOT NULL,
			comment TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_errors_run ON errors(run_id, id);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordRun inserts or replaces a run row.
func (j *Journal) RecordRun(ctx context.Context, r Run) error {
	defer j.commit(time.Now())

	var finished any
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UnixNano()
	}
	_, err := j.sq.
		Insert("runs").
		Options("OR REPLACE").
		Columns(
			"id", "symbol", "strategy", "started_at", "finished_at", "steps", "volume", "profit",
			"min_volume", "max_volume", "min_profit", "max_profit", "min_lot", "max_lot", "total_lots",
		).
		Values(
			r.ID, r.Symbol, r.Strategy, r.StartedAt.UnixNano(), finished, r.Steps, r.Volume, r.Profit,
			r.Summary.MinVolume, r.Summary.MaxVolume, r.Summary.MinProfit, r.Summary.MaxProfit,
			r.Summary.MinLot, r.Summary.MaxLot, r.Summary.TotalLots,
		).
		RunWith(j.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordTransaction appends one transaction to a run.
func (j *Journal) RecordTransaction(ctx context.Context, runID string, tx ledger.Transaction) error {
	return j.RecordTransactions(ctx, runID, []ledger.Transaction{tx})
}

// RecordTransactions appends a batch of transactions in a single SQL transaction.
func (j *Journal) RecordTransactions(ctx context.Context, runID string, txs []ledger.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	defer j.commit(time.Now())

	sqlTx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	q := j.sq.Insert("transactions").Columns("run_id", "ts", "price", "volume")
	for _, tx := range txs {
		q = q.Values(runID, tx.Time.UnixNano(), tx.Price, tx.Volume)
	}
	if _, err := q.RunWith(sqlTx).ExecContext(ctx); err != nil {
		sqlTx.Rollback()
		return fmt.Errorf("insert transactions: %w", err)
	}
	return sqlTx.Commit()
}

// RecordError appends a recorded collaborator error to a run.
func (j *Journal) RecordError(ctx context.Context, runID string, e state.ErrorOccurrence) error {
	defer j.commit(time.Now())

	_, err := j.sq.
		Insert("errors").
		Columns("run_id", "ts", "op", "status", "comment").
		Values(runID, e.Time.UnixNano(), e.Op.String(), e.Status.String(), e.Comment).
		RunWith(j.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// Runs returns the last limit runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.sq.
		Select(
			"id", "symbol", "strategy", "started_at", "finished_at", "steps", "volume", "profit",
			"min_volume", "max_volume", "min_profit", "max_profit", "min_lot", "max_lot", "total_lots",
		).
		From("runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		RunWith(j.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(
			&r.ID, &r.Symbol, &r.Strategy, &started, &finished, &r.Steps, &r.Volume, &r.Profit,
			&r.Summary.MinVolume, &r.Summary.MaxVolume, &r.Summary.MinProfit, &r.Summary.MaxProfit,
			&r.Summary.MinLot, &r.Summary.MaxLot, &r.Summary.TotalLots,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64).UTC()
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Transactions returns a run's transactions in insertion order.
func (j *Journal) Transactions(ctx context.Context, runID string) ([]ledger.Transaction, error) {
	rows, err := j.sq.
		Select("ts", "price", "volume").
		From("transactions").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("id ASC").
		RunWith(j.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var ts int64
		if err := rows.Scan(&ts, &tx.Price, &tx.Volume); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Time = time.Unix(0, ts).UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Errors returns a run's recorded errors in insertion order.
func (j *Journal) Errors(ctx context.Context, runID string) ([]state.ErrorOccurrence, error) {
	rows, err := j.sq.
		Select("ts", "op", "status", "comment").
		From("errors").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("id ASC").
		RunWith(j.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	var out []state.ErrorOccurrence
	for rows.Next() {
		var e state.ErrorOccurrence
		var ts int64
		var op, status string
		var comment sql.NullString
		if err := rows.Scan(&ts, &op, &status, &comment); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		e.Time = time.Unix(0, ts).UTC()
		e.Op = model.ParseResponseType(op)
		e.Status = model.ParseStatus(status)
		e.Comment = comment.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) commit(start time.Time) {
	if j.OnCommit != nil {
		j.OnCommit(time.Since(start))
	}
}
