package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("CREATE TABLE heads (k TEXT PRIMARY KEY, n INTEGER NOT NULL)"); err != nil {
		t.Fatal(err)
	}
	return db
}

func bump(t *testing.T, db *sql.DB, k string, n int) {
	t.Helper()
	q := fmt.Sprintf("INSERT INTO heads (k, n) VALUES ('%s', %d) ON CONFLICT(k) DO UPDATE SET n = excluded.n", k, n)
	if _, err := db.Exec(q); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPragmaDataVersion(t *testing.T) {
	v, err := PragmaDataVersion(context.Background(), testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if v < 0 {
		t.Fatalf("data_version = %d", v)
	}
}

func TestSumDetector(t *testing.T) {
	db := testDB(t)
	det := SumDetector("heads", "n")
	ctx := context.Background()

	v, err := det(ctx, db)
	if err != nil || v != 0 {
		t.Fatalf("empty table: %d, %v", v, err)
	}
	bump(t, db, "a", 2)
	bump(t, db, "b", 3)
	if v, _ = det(ctx, db); v != 5 {
		t.Fatalf("sum = %d, want 5", v)
	}
}

func TestOnChange_Fires(t *testing.T) {
	db := testDB(t)
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: SumDetector("heads", "n")})

	bump(t, db, "seed", 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Prime(ctx); err != nil {
		t.Fatal(err)
	}
	if w.Token() != 3 {
		t.Fatalf("primed token = %d, want 3", w.Token())
	}

	var fired atomic.Int32
	go w.OnChange(ctx, func() error { fired.Add(1); return nil })

	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })
	if fired.Load() != 0 {
		t.Fatal("fired without a change")
	}

	bump(t, db, "a", 1)
	waitFor(t, "first change", func() bool { return fired.Load() == 1 })
	bump(t, db, "a", 2)
	waitFor(t, "second change", func() bool { return fired.Load() == 2 })
	if w.Token() != 5 {
		t.Errorf("token = %d, want 5", w.Token())
	}
}

func TestOnChange_Debounce(t *testing.T) {
	db := testDB(t)
	w := New(db, Options{
		Interval: 5 * time.Millisecond,
		Debounce: 150 * time.Millisecond,
		Detector: SumDetector("heads", "n"),
	})

	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error { fired.Add(1); return nil })

	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })
	for i := 1; i <= 5; i++ {
		bump(t, db, "a", i)
		time.Sleep(15 * time.Millisecond)
	}
	waitFor(t, "debounced fire", func() bool { return fired.Load() >= 1 })
	time.Sleep(200 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("fired %d times, want 1", n)
	}
	if w.Token() != 5 {
		t.Errorf("token = %d, want 5", w.Token())
	}
}

func TestOnChange_RetriesFailedAction(t *testing.T) {
	db := testDB(t)
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: SumDetector("heads", "n")})

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	})

	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })
	bump(t, db, "a", 7)
	waitFor(t, "retry", func() bool { return w.Token() == 7 })
	if calls.Load() < 2 {
		t.Errorf("calls = %d, want at least 2", calls.Load())
	}
	if w.Stats().Errors == 0 {
		t.Error("failed action not counted")
	}
}

func TestOnChange_StopsOnCancel(t *testing.T) {
	w := New(testDB(t), Options{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.OnChange(ctx, func() error { return nil })
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnChange did not return after cancel")
	}
}
