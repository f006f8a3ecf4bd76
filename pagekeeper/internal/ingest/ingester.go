// Package ingest turns snapshots into immutable versions.
//
// Flow for one snapshot:
//  1. Validate the identifiers and the root shape
//  2. Hash the whole tree; decompose it and hash every component
//  3. Lock the (document, lineage) key
//  4. Skip when the latest version carries the same snapshot hash
//  5. Write the next version atomically; on conflict re-read and retry
//  6. Record the attempt in the ingest log and notify the observer
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pagever/canon"
	"github.com/hazyhaar/pagever/decompose"
	"github.com/hazyhaar/pagever/idgen"
	"github.com/hazyhaar/pagever/pagekeeper/internal/store"
)

// ErrInvalidSnapshot is returned for snapshots that cannot become a version.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is one raw ingestion event.
type Snapshot struct {
	DocumentPath string      `json:"document_path"`
	Lineage      string      `json:"lineage"`
	Tree         canon.Value `json:"tree"`
	SourceFile   string      `json:"source_file,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Status is the kind of a successful Outcome.
type Status string

const (
	Created Status = "created"
	Skipped Status = "skipped"
)

// ReasonIdentical is the Skipped reason for a hash-identical resubmission.
const ReasonIdentical = "identical"

// Outcome describes a successful ingestion. For Skipped, VersionNumber is the
// existing latest version.
type Outcome struct {
	Status         Status `json:"status"`
	Reason         string `json:"reason,omitempty"`
	VersionNumber  int    `json:"version_number"`
	SnapshotHash   string `json:"snapshot_hash"`
	ComponentCount int    `json:"component_count"`
}

// Error is a failed ingestion. Version is the version number that was being
// written, or 0 when the failure happened before allocation.
type Error struct {
	DocumentPath string
	Lineage      string
	Version      int
	Err          error
}

func (e *Error) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("ingest %s [%s] version %d: %v", e.DocumentPath, e.Lineage, e.Version, e.Err)
	}
	return fmt.Sprintf("ingest %s [%s]: %v", e.DocumentPath, e.Lineage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Event is passed to the observer after every Ingest call.
type Event struct {
	Snapshot *Snapshot
	Outcome  *Outcome // nil on failure
	Err      error
	Duration time.Duration
}

// Ingester writes snapshots into the store.
type Ingester struct {
	store    *store.Store
	logger   *slog.Logger
	newID    idgen.Generator
	retries  int
	workers  int
	observer func(Event)
	locks    *keyLock
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Ingester) { g.logger = l }
}

// WithRetries sets how many times a conflicting or failed write is retried.
func WithRetries(n int) Option {
	return func(g *Ingester) { g.retries = max(n, 0) }
}

// WithWorkers bounds the parallelism of IngestAll.
func WithWorkers(n int) Option {
	return func(g *Ingester) { g.workers = max(n, 1) }
}

// WithObserver registers a callback run after every Ingest.
func WithObserver(fn func(Event)) Option {
	return func(g *Ingester) { g.observer = fn }
}

// WithIDGenerator sets the ingest log ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(g *Ingester) { g.newID = gen }
}

// New creates an Ingester.
func New(s *store.Store, opts ...Option) *Ingester {
	g := &Ingester{
		store:   s,
		logger:  slog.Default(),
		newID:   idgen.Prefixed("ing_", idgen.Default),
		retries: 2,
		workers: 4,
		locks:   newKeyLock(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Ingest stores snap as a new version unless it is identical to the latest
// one. A Skipped outcome is a success.
func (g *Ingester) Ingest(ctx context.Context, snap Snapshot) (*Outcome, error) {
	start := time.Now()
	out, err := g.ingest(ctx, &snap)
	if g.observer != nil {
		g.observer(Event{Snapshot: &snap, Outcome: out, Err: err, Duration: time.Since(start)})
	}
	return out, err
}

func (g *Ingester) ingest(ctx context.Context, snap *Snapshot) (*Outcome, error) {
	fail := func(version int, err error) error {
		return &Error{DocumentPath: snap.DocumentPath, Lineage: snap.Lineage, Version: version, Err: err}
	}
	if err := validate(snap); err != nil {
		return nil, fail(0, err)
	}

	hash, err := canon.Hash(snap.Tree)
	if err != nil {
		return nil, fail(0, err)
	}
	comps, err := components(snap.Tree)
	if err != nil {
		return nil, fail(0, err)
	}

	unlock := g.locks.Lock(snap.DocumentPath + "\x00" + snap.Lineage)
	defer unlock()

	log := g.logger.With("document_path", snap.DocumentPath, "lineage", snap.Lineage, "snapshot_hash", hash)
	entry := &store.IngestEntry{
		ID:           g.newID(),
		DocumentPath: snap.DocumentPath,
		Lineage:      snap.Lineage,
		SourceFile:   snap.SourceFile,
		SnapshotHash: hash,
	}
	if err := g.store.InsertIngestEntry(ctx, entry); err != nil {
		log.Warn("ingest: log entry", "error", err)
	}

	out, version, err := g.write(ctx, log, snap, hash, comps)
	switch {
	case err != nil:
		entry.Status, entry.VersionNumber, entry.ErrorMessage = store.IngestFailed, version, err.Error()
	case out.Status == Skipped:
		entry.Status, entry.VersionNumber = store.IngestSkipped, out.VersionNumber
	default:
		entry.Status, entry.VersionNumber, entry.ComponentCount = store.IngestCreated, out.VersionNumber, out.ComponentCount
	}
	if cerr := g.store.CompleteIngestEntry(context.WithoutCancel(ctx), entry); cerr != nil {
		log.Warn("ingest: complete log entry", "error", cerr)
	}
	if err != nil {
		log.Error("ingest: failed", "version_number", version, "error", err)
		return nil, fail(version, err)
	}
	log.Info("ingest: "+string(out.Status), "version_number", out.VersionNumber, "components", out.ComponentCount)
	return out, nil
}

// write runs the read-compare-insert cycle, retrying from a fresh read of
// the latest version on conflict or store failure. It returns the version
// number of the last attempt alongside any error.
func (g *Ingester) write(ctx context.Context, log *slog.Logger, snap *Snapshot, hash string, comps []*store.Component) (*Outcome, int, error) {
	for attempt := 0; ; attempt++ {
		latest, err := g.store.LatestVersion(ctx, snap.DocumentPath, snap.Lineage)
		readFailed := err != nil
		base := 0
		if err == nil && latest != nil {
			if latest.SnapshotHash == hash {
				return &Outcome{
					Status:         Skipped,
					Reason:         ReasonIdentical,
					VersionNumber:  latest.VersionNumber,
					SnapshotHash:   hash,
					ComponentCount: latest.ComponentCount,
				}, latest.VersionNumber, nil
			}
			base = latest.VersionNumber
		}

		v := &store.Version{
			DocumentPath:      snap.DocumentPath,
			Lineage:           snap.Lineage,
			VersionNumber:     base + 1,
			SnapshotHash:      hash,
			SourceFile:        snap.SourceFile,
			SnapshotTimestamp: snap.Timestamp.UnixMilli(),
		}
		if err == nil {
			err = g.store.InsertVersion(ctx, v, comps, base)
		}
		if err == nil {
			return &Outcome{
				Status:         Created,
				VersionNumber:  v.VersionNumber,
				SnapshotHash:   hash,
				ComponentCount: len(comps),
			}, v.VersionNumber, nil
		}

		attempted := v.VersionNumber
		if readFailed {
			attempted = 0
		}
		retryable := errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrUnavailable)
		if !retryable || attempt >= g.retries || ctx.Err() != nil {
			return nil, attempted, err
		}
		log.Warn("ingest: retrying", "attempt", attempt+1, "version_number", attempted, "error", err)
	}
}

func validate(snap *Snapshot) error {
	switch {
	case snap.DocumentPath == "":
		return fmt.Errorf("%w: empty document path", ErrInvalidSnapshot)
	case snap.Lineage == "":
		return fmt.Errorf("%w: empty lineage", ErrInvalidSnapshot)
	case snap.Tree.Kind() != canon.Object:
		return fmt.Errorf("%w: root is %s, want object", ErrInvalidSnapshot, snap.Tree.Kind())
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	return nil
}

// components decomposes tree and stamps each node with its content hash.
func components(tree canon.Value) ([]*store.Component, error) {
	nodes := decompose.Decompose(tree)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no components", ErrInvalidSnapshot)
	}
	// Child keys containing "/items/" can collide with nested paths.
	if err := decompose.Validate(nodes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	comps := make([]*store.Component, len(nodes))
	for i, n := range nodes {
		h, err := canon.HashMap(n.Content)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", n.Path, err)
		}
		comps[i] = &store.Component{
			Path:       n.Path,
			ParentPath: n.ParentPath,
			Order:      n.Order,
			Type:       n.Type,
			Content:    n.Content,
			Hash:       h,
		}
	}
	return comps, nil
}

// Result pairs an IngestAll input with its outcome.
type Result struct {
	Outcome *Outcome
	Err     error
}

// IngestAll ingests snaps on a bounded pool. Results are index-aligned with
// snaps. Snapshots for the same key serialize on the key lock; other keys
// run in parallel. Cancelling ctx fails the snapshots not yet started.
func (g *Ingester) IngestAll(ctx context.Context, snaps []Snapshot) []Result {
	results := make([]Result, len(snaps))
	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for i := range snaps {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = &Error{DocumentPath: snaps[i].DocumentPath, Lineage: snaps[i].Lineage, Err: err}
				return nil
			}
			results[i].Outcome, results[i].Err = g.Ingest(ctx, snaps[i])
			return nil
		})
	}
	eg.Wait()
	return results
}
