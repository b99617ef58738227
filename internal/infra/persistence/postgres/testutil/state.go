// Package testutil provides a database/sql driver double for the postgres
// widget store. It understands only the statements the store issues against
// its bucket table and keeps upserts staged until the transaction commits.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"widgetcore/internal/infra/persistence/memory"
)

var driverSeq atomic.Int64

// StateConn is the fake connection. Buckets holds committed payloads keyed by
// bucket name; tests may seed or inspect it directly.
type StateConn struct {
	Buckets      map[string][]byte
	Statements   []string
	TableCreated bool

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailSelect bool
	// FailUpsert names a bucket whose upsert is rejected.
	FailUpsert string

	mu      sync.Mutex
	pending map[string][]byte
}

// NewStateDB registers a fresh driver instance and returns a sql.DB bound to it.
func NewStateDB() (*sql.DB, *StateConn) {
	conn := &StateConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("widgetstate%d", driverSeq.Add(1))
	sql.Register(name, stateDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stateDriver struct{ conn *StateConn }

func (d stateDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

type statement int

const (
	stmtUnknown statement = iota
	stmtCreate
	stmtUpsert
	stmtSelect
)

func classify(query string) statement {
	q := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	switch {
	case strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS STATE"):
		return stmtCreate
	case strings.HasPrefix(q, "INSERT INTO STATE(BUCKET,PAYLOAD)") && strings.Contains(q, "ON CONFLICT(BUCKET)"):
		return stmtUpsert
	case q == "SELECT BUCKET, PAYLOAD FROM STATE":
		return stmtSelect
	}
	return stmtUnknown
}

// Prepare is unused; the store only issues context-aware calls.
func (c *StateConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *StateConn) Close() error { return nil }

func (c *StateConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StateConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("connection refused")
	}
	return nil
}

func (c *StateConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, errors.New("begin refused")
	}
	if c.pending != nil {
		return nil, errors.New("transaction already open")
	}
	c.pending = make(map[string][]byte)
	return stateTx{conn: c}, nil
}

func (c *StateConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statements = append(c.Statements, query)
	switch classify(query) {
	case stmtCreate:
		c.TableCreated = true
		return driver.RowsAffected(0), nil
	case stmtUpsert:
		return c.upsert(args)
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

func (c *StateConn) upsert(args []driver.NamedValue) (driver.Result, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("upsert wants 2 args, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok || !slices.Contains(memory.Buckets, bucket) {
		return nil, fmt.Errorf("unknown bucket %v", args[0].Value)
	}
	if bucket == c.FailUpsert {
		return nil, fmt.Errorf("upsert %s rejected", bucket)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("payload for %s is %T", bucket, args[1].Value)
	}
	payload = slices.Clone(payload)
	if c.pending != nil {
		c.pending[bucket] = payload
	} else {
		c.Buckets[bucket] = payload
	}
	return driver.RowsAffected(1), nil
}

func (c *StateConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statements = append(c.Statements, query)
	if classify(query) != stmtSelect {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	if c.FailSelect {
		return nil, errors.New("relation state is unavailable")
	}
	rows := &bucketRows{}
	for _, bucket := range memory.Buckets {
		if payload, ok := c.Buckets[bucket]; ok {
			rows.buckets = append(rows.buckets, bucket)
			rows.payloads = append(rows.payloads, slices.Clone(payload))
		}
	}
	return rows, nil
}

type stateTx struct{ conn *StateConn }

func (t stateTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	staged := c.pending
	c.pending = nil
	if c.FailCommit {
		return errors.New("could not serialize access")
	}
	for bucket, payload := range staged {
		c.Buckets[bucket] = payload
	}
	return nil
}

func (t stateTx) Rollback() error {
	t.conn.mu.Lock()
	t.conn.pending = nil
	t.conn.mu.Unlock()
	return nil
}

type bucketRows struct {
	buckets  []string
	payloads [][]byte
	pos      int
}

func (r *bucketRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *bucketRows) Close() error      { return nil }

func (r *bucketRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.buckets) {
		return io.EOF
	}
	dest[0] = r.buckets[r.pos]
	dest[1] = r.payloads[r.pos]
	r.pos++
	return nil
}
