package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// stubConn is a database/sql connection that understands exactly the
// statements the Postgres dialect issues, so the pgx code path can be
// exercised without a server.
type stubConn struct {
	mu       sync.Mutex
	execs    []string
	rows     map[string]stubRow
	failPing bool
	failExec bool
}

type stubRow struct {
	started time.Time
	payload []byte
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{rows: make(map[string]stubRow)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, fmt.Errorf("not implemented") }

func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, strings.TrimSpace(query))
	if c.failExec {
		return nil, fmt.Errorf("exec fail")
	}
	if strings.HasPrefix(query, "INSERT INTO runs") {
		if !strings.Contains(query, "$4") {
			return nil, fmt.Errorf("expected postgres placeholders: %s", query)
		}
		id, _ := args[0].Value.(string)
		started, ok := args[2].Value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("started_at must bind as time.Time, got %T", args[2].Value)
		}
		payload, _ := args[3].Value.([]byte)
		c.rows[id] = stubRow{started: started, payload: append([]byte(nil), payload...)}
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case strings.Contains(query, "WHERE id = $1"):
		id, _ := args[0].Value.(string)
		r, ok := c.rows[id]
		if !ok {
			return &stubRows{}, nil
		}
		return &stubRows{values: [][]byte{r.payload}}, nil
	case strings.Contains(query, "ORDER BY started_at DESC"):
		ids := make([]string, 0, len(c.rows))
		for id := range c.rows {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, b := c.rows[ids[i]], c.rows[ids[j]]
			if !a.started.Equal(b.started) {
				return a.started.After(b.started)
			}
			return ids[i] < ids[j]
		})
		if len(args) == 1 {
			if n, ok := args[0].Value.(int64); ok && int(n) < len(ids) {
				ids = ids[:n]
			}
		}
		out := &stubRows{}
		for _, id := range ids {
			out.values = append(out.values, c.rows[id].payload)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

type stubRows struct {
	values [][]byte
	idx    int
}

func (r *stubRows) Columns() []string { return []string{"payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	dest[0] = r.values[r.idx]
	r.idx++
	return nil
}
