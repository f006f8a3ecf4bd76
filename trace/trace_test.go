package trace

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/pagever/kit"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// captureLogs routes slog.Default to a JSON buffer for the test.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func openTraced(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDriverRegistered(t *testing.T) {
	for _, d := range sql.Drivers() {
		if d == DriverName {
			return
		}
	}
	t.Fatalf("%s driver not registered", DriverName)
}

func TestStatementsAreLogged(t *testing.T) {
	buf := captureLogs(t)
	db := openTraced(t)
	ctx := kit.WithTraceID(context.Background(), "trc_1")

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO t VALUES (?)", 1); err != nil {
		t.Fatal(err)
	}
	var id int
	if err := db.QueryRowContext(ctx, "SELECT id\n\t FROM t").Scan(&id); err != nil || id != 1 {
		t.Fatalf("select: %d, %v", id, err)
	}

	var sel map[string]any
	for _, r := range buf.records(t) {
		if r["msg"] != "sql: statement" {
			t.Errorf("unexpected message %v", r["msg"])
		}
		if r["trace_id"] != "trc_1" {
			t.Errorf("record without trace id: %v", r)
		}
		if r["query"] == "SELECT id FROM t" {
			sel = r
		}
	}
	if sel == nil {
		t.Fatal("select statement not logged with compacted query")
	}
	if sel["level"] != "DEBUG" || sel["op"] != "Query" {
		t.Errorf("select record = %v", sel)
	}
}

func TestFailedStatementLogsError(t *testing.T) {
	buf := captureLogs(t)
	db := openTraced(t)

	if _, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO t VALUES (1)"); err == nil {
		t.Fatal("duplicate insert succeeded")
	}

	var found bool
	for _, r := range buf.records(t) {
		if r["level"] == "ERROR" && r["error"] != nil {
			found = true
		}
	}
	if !found {
		t.Error("no ERROR record for the failed insert")
	}
}

func TestTransactionsAreLogged(t *testing.T) {
	buf := captureLogs(t)
	db := openTraced(t)

	if _, err := db.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatal(err)
	}
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err = db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	ops := map[string]bool{}
	for _, r := range buf.records(t) {
		if op, ok := r["op"].(string); ok {
			ops[op] = true
		}
	}
	if !ops["Commit"] || !ops["Rollback"] {
		t.Errorf("ops = %v, want Commit and Rollback", ops)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil || n != 1 {
		t.Errorf("rows = %d, %v", n, err)
	}
}

func TestPragmaNoiseIsSkipped(t *testing.T) {
	buf := captureLogs(t)
	db := openTraced(t)

	var v int64
	if err := db.QueryRow("PRAGMA data_version").Scan(&v); err != nil {
		t.Fatal(err)
	}
	for _, r := range buf.records(t) {
		if strings.HasPrefix(r["query"].(string), "PRAGMA") {
			t.Errorf("pragma logged: %v", r)
		}
	}
}
