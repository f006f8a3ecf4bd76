// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and logs every statement through slog.
//
//	import _ "github.com/hazyhaar/pagever/trace"
//
//	db, _ := sql.Open("sqlite-trace", "pagever.db")
//
// Statements log at Debug, at Warn when slower than SlowQuery, and at Error
// when they fail. The trace id set by kit.WithTraceID on the statement
// context is attached to the record.
package trace

import (
	"database/sql"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// SlowQuery is the duration above which a statement logs at Warn.
const SlowQuery = 100 * time.Millisecond

func init() {
	sql.Register(DriverName, &TracingDriver{Driver: &sqlite.Driver{}})
}
