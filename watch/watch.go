// Package watch polls a SQLite database for a change token and runs an
// action once the token has been stable for a debounce window.
//
//	w := watch.New(db, watch.Options{Interval: time.Second})
//	go w.OnChange(ctx, func() error { cache.Invalidate(); return nil })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Detector reads a change token. Two different tokens mean the database
// changed in between.
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval between polls. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action runs.
	// A new token during the window restarts it. 0 fires on the poll that
	// saw the change.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector Detector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher runs the poll loop. Stats and Token are safe to call while
// OnChange is running.
type Watcher struct {
	db   *sql.DB
	opts Options

	token  atomic.Int64
	primed atomic.Bool

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	fired   atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks  int64 `json:"checks"`
	Changes int64 `json:"changes"`
	Errors  int64 `json:"errors"`
	Fired   int64 `json:"fired"`
}

// New creates a Watcher. Call OnChange to start polling.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:  w.checks.Load(),
		Changes: w.changes.Load(),
		Errors:  w.errors.Load(),
		Fired:   w.fired.Load(),
	}
}

// Token returns the last token for which the action succeeded.
func (w *Watcher) Token() int64 { return w.token.Load() }

// Prime reads the current token so that a following OnChange reacts only
// to changes made after Prime returns.
func (w *Watcher) Prime(ctx context.Context) error {
	v, err := w.opts.Detector(ctx, w.db)
	if err != nil {
		return err
	}
	w.token.Store(v)
	w.primed.Store(true)
	return nil
}

// OnChange blocks until ctx is done. When the detector reports a new token
// and the debounce window passes, action runs. A failed action leaves the
// token unchanged so the next poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if !w.primed.Load() {
		if err := w.Prime(ctx); err != nil {
			log.Warn("watch: initial check failed", "error", err)
		}
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending int64
		waiting bool
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.errors.Add(1)
				log.Warn("watch: check failed", "error", err)
				continue
			}
			if cur == w.token.Load() || (waiting && cur == pending) {
				continue
			}
			w.changes.Add(1)
			pending, waiting = cur, true
			if w.opts.Debounce <= 0 {
				w.fire(action, pending)
				waiting = false
				continue
			}
			stopTimer()
			timer = time.NewTimer(w.opts.Debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if waiting {
				w.fire(action, pending)
				waiting = false
			}
		}
	}
}

func (w *Watcher) fire(action func() error, token int64) {
	if err := action(); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: action failed", "error", err, "token", token)
		return
	}
	w.fired.Add(1)
	w.token.Store(token)
	w.opts.Logger.Debug("watch: change handled", "token", token)
}

// PragmaDataVersion reads PRAGMA data_version, which moves when another
// connection commits to the same database file.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// SumDetector returns a Detector reading SUM(column) of table. It suits
// tables whose values only grow, such as high-water marks.
func SumDetector(table, column string) Detector {
	query := "SELECT COALESCE(SUM(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
