package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const defaultDSN = "postgres://localhost/omicsreport?sslmode=disable"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// dialect holds the statements that differ between SQLite and Postgres.
type dialect struct {
	name   string
	create string
	upsert string
	get    string
	list   string
	all    string
}

var sqliteDialect = dialect{
	name: "sqlite",
	create: `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		payload BLOB NOT NULL
	)`,
	upsert: `INSERT INTO runs(id,status,started_at,payload) VALUES(?,?,?,?) ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload`,
	get:    `SELECT payload FROM runs WHERE id = ?`,
	list:   `SELECT payload FROM runs ORDER BY started_at DESC, id ASC LIMIT ?`,
	all:    `SELECT payload FROM runs ORDER BY started_at DESC, id ASC`,
}

var postgresDialect = dialect{
	name: "postgres",
	create: `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	upsert: `INSERT INTO runs(id,status,started_at,payload) VALUES($1,$2,$3,$4) ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload`,
	get:    `SELECT payload FROM runs WHERE id = $1`,
	list:   `SELECT payload FROM runs ORDER BY started_at DESC, id ASC LIMIT $1`,
	all:    `SELECT payload FROM runs ORDER BY started_at DESC, id ASC`,
}

// SQL is a database/sql backed ledger storing each run as a JSON payload.
type SQL struct {
	db *sql.DB
	d  dialect
	mu sync.Mutex
}

// NewSQLite opens the ledger in an SQLite file, creating it if needed.
func NewSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		path = "omicsreport.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newSQL(ctx, db, sqliteDialect)
}

// NewPostgres opens the ledger on Postgres through pgx.
func NewPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen("pgx", dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQL(ctx, db, postgresDialect)
}

func newSQL(ctx context.Context, db *sql.DB, d dialect) (*SQL, error) {
	if _, err := db.ExecContext(ctx, d.create); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &SQL{db: db, d: d}, nil
}

// Save upserts the run.
func (s *SQL) Save(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("ledger: run id required")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var started any = run.StartedAt.UTC()
	if s.d.name == "sqlite" {
		started = run.StartedAt.UTC().Format("2006-01-02T15:04:05.000000000Z")
	}
	if _, err := s.db.ExecContext(ctx, s.d.upsert, run.ID, string(run.Status), started, payload); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns a run by id.
func (s *SQL) Get(ctx context.Context, id string) (Run, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.d.get, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("select run %s: %w", id, err)
	}
	var r Run
	if err := json.Unmarshal(payload, &r); err != nil {
		return Run{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return r, nil
}

// List returns runs newest first.
func (s *SQL) List(ctx context.Context, limit int) ([]Run, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, s.d.list, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.d.all)
	}
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Run
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var r Run
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQL) Close() error { return s.db.Close() }
