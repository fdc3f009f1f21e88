// Package journal keeps a local SQLite history of send runs and their chunks.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("journal: run not found")

type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	ChainID    int64
	Token      string
	Symbol     string
	Sender     string
	Contract   string
	Recipients int
	Total      string // base units
	Chunks     int
	Status     string

	Confirmed int // chunks with status confirmed; filled by ListRuns
}

type Chunk struct {
	RunID   int64
	Index   int
	Size    int
	Total   string
	TxHash  string
	Status  string
	Error   string
	GasUsed uint64
	Block   uint64
}

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file if needed and applies migrations.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if err := runMigrations(path); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) stamp() string { return j.now().UTC().Format(time.RFC3339Nano) }

// StartRun inserts a run in the running state and returns its id.
func (j *Journal) StartRun(ctx context.Context, r Run) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, chain_id, token, symbol, sender, contract, recipients, total, chunks, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.stamp(), r.ChainID, r.Token, r.Symbol, r.Sender, r.Contract, r.Recipients, r.Total, r.Chunks, RunRunning)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// RecordChunk stores the latest state of a chunk; later calls for the same index overwrite it.
func (j *Journal) RecordChunk(ctx context.Context, c Chunk) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO chunks (run_id, idx, size, total, tx_hash, status, error, gas_used, block, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			tx_hash = CASE WHEN excluded.tx_hash <> '' THEN excluded.tx_hash ELSE chunks.tx_hash END,
			status = excluded.status, error = excluded.error,
			gas_used = excluded.gas_used, block = excluded.block, updated_at = excluded.updated_at`,
		c.RunID, c.Index, c.Size, c.Total, c.TxHash, c.Status, c.Error, int64(c.GasUsed), int64(c.Block), j.stamp())
	if err != nil {
		return fmt.Errorf("record chunk %d of run %d: %w", c.Index, c.RunID, err)
	}
	return nil
}

func (j *Journal) FinishRun(ctx context.Context, id int64, status string) error {
	res, err := j.db.ExecContext(ctx, `UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`, status, j.stamp(), id)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRuns returns the newest runs first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, COALESCE(r.finished_at, ''), r.chain_id, r.token, r.symbol, r.sender, r.contract,
		       r.recipients, r.total, r.chunks, r.status,
		       (SELECT COUNT(*) FROM chunks c WHERE c.run_id = r.id AND c.status = 'confirmed')
		FROM runs r ORDER BY r.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.ChainID, &r.Token, &r.Symbol, &r.Sender, &r.Contract,
			&r.Recipients, &r.Total, &r.Chunks, &r.Status, &r.Confirmed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Chunks returns the chunks of one run in index order.
func (j *Journal) Chunks(ctx context.Context, runID int64) ([]Chunk, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, idx, size, total, tx_hash, status, error, gas_used, block
		FROM chunks WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var gas, block int64
		if err := rows.Scan(&c.RunID, &c.Index, &c.Size, &c.Total, &c.TxHash, &c.Status, &c.Error, &gas, &block); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.GasUsed, c.Block = uint64(gas), uint64(block)
		out = append(out, c)
	}
	return out, rows.Err()
}
