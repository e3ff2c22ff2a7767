package geneinfo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Cache persists annotations, including misses, in SQLite.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenCache opens (and creates) the cache at path. ttl <= 0 keeps entries
// forever.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
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
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS gene_annotations (
		symbol TEXT PRIMARY KEY,
		found INTEGER NOT NULL,
		payload BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create gene_annotations table: %w", err)
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached annotations and the symbols that need a lookup.
// A cached miss counts as resolved and is absent from both results.
func (c *Cache) Get(ctx context.Context, symbols []string) (Annotations, []string, error) {
	found := make(Annotations)
	resolved := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		var isFound int
		var payload []byte
		var fetched int64
		err := c.db.QueryRowContext(ctx,
			`SELECT found, payload, fetched_at FROM gene_annotations WHERE symbol = ?`, s).
			Scan(&isFound, &payload, &fetched)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("select %s: %w", s, err)
		}
		if c.ttl > 0 && c.now().Sub(time.Unix(fetched, 0)) > c.ttl {
			continue
		}
		resolved[s] = true
		if isFound == 0 {
			continue
		}
		var a Annotation
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", s, err)
		}
		found[s] = a
	}
	var missing []string
	for _, s := range symbols {
		if !resolved[s] {
			missing = append(missing, s)
		}
	}
	return found, missing, nil
}

// Put stores the annotations and records every other queried symbol as a
// miss.
func (c *Cache) Put(ctx context.Context, queried []string, found Annotations) (retErr error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	now := c.now().Unix()
	for _, s := range queried {
		a, ok := found[s]
		payload := []byte("{}")
		if ok {
			if payload, err = json.Marshal(a); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gene_annotations(symbol, found, payload, fetched_at) VALUES(?,?,?,?)
			ON CONFLICT(symbol) DO UPDATE SET found=excluded.found, payload=excluded.payload, fetched_at=excluded.fetched_at`,
			s, boolInt(ok), payload, now); err != nil {
			return fmt.Errorf("upsert %s: %w", s, err)
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Cached serves lookups from the cache and asks the remote only for the
// symbols it has never seen.
type Cached struct {
	remote Lookuper
	cache  *Cache
	log    *zap.Logger
}

// NewCached wraps remote with cache.
func NewCached(remote Lookuper, cache *Cache, log *zap.Logger) *Cached {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{remote: remote, cache: cache, log: log}
}

// Lookup implements Lookuper.
func (c *Cached) Lookup(ctx context.Context, symbols []string) (Annotations, error) {
	clean := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	out, missing, err := c.cache.Get(ctx, clean)
	if err != nil {
		return nil, err
	}
	c.log.Debug("gene annotation cache", zap.Int("hits", len(clean)-len(missing)), zap.Int("misses", len(missing)))
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := c.remote.Lookup(ctx, missing)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, missing, fetched); err != nil {
		return nil, fmt.Errorf("cache gene annotations: %w", err)
	}
	for k, v := range fetched {
		out[k] = v
	}
	return out, nil
}
