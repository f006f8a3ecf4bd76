// Package pagekeeper is the pagever orchestrator. It keeps an append-only
// history of page snapshots per (document path, lineage), answers component
// queries over that history, and diffs two versions for translation review.
//
//	upstream collector → inbox / POST /api/snapshots → ingest → store
//	store → query → diff → report (JSON, Markdown, translation pairs)
//
// Usage:
//
//	k, err := pagekeeper.New(cfg, logger)
//	defer k.Close()
//	k.RegisterMCP(mcpServer)
//	http.ListenAndServe(cfg.API.Addr, k.Handler())
//	k.Start(ctx)
package pagekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/pagever/dbopen"
	"github.com/hazyhaar/pagever/decompose"
	"github.com/hazyhaar/pagever/idgen"
	"github.com/hazyhaar/pagever/kit"
	"github.com/hazyhaar/pagever/pagekeeper/internal/inbox"
	"github.com/hazyhaar/pagever/pagekeeper/internal/ingest"
	"github.com/hazyhaar/pagever/pagekeeper/internal/store"
	"github.com/hazyhaar/pagever/report"
	_ "github.com/hazyhaar/pagever/trace" // registers "sqlite-trace"
	"github.com/hazyhaar/pagever/watch"
)

// Keeper is the pagever orchestrator.
type Keeper struct {
	store    *store.Store
	ingester *ingest.Ingester
	metrics  *Metrics
	gatherer prometheus.Gatherer
	catalog  *catalogCache
	renderer *report.Renderer
	logger   *slog.Logger
	config   *Config
}

type options struct {
	registry *prometheus.Registry
	newID    idgen.Generator
}

// Option configures New.
type Option func(*options)

// WithRegistry registers the Keeper's collectors on reg instead of a fresh
// private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithIDGenerator sets the generator for ingest log ids.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(o *options) { o.newID = gen }
}

// New opens the database and wires the ingestion pipeline. cfg may be nil.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Keeper, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	var dbOpts []dbopen.Option
	if cfg.TraceSQL {
		dbOpts = append(dbOpts, dbopen.WithTrace())
	}
	s, err := store.Open(cfg.DBPath, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("pagekeeper: open %s: %w", cfg.DBPath, err)
	}

	m := newMetrics(o.registry)
	k := &Keeper{
		store:    s,
		metrics:  m,
		gatherer: o.registry,
		catalog:  &catalogCache{store: s, metrics: m},
		renderer: report.NewRenderer(),
		logger:   logger,
		config:   cfg,
	}
	ingOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithRetries(*cfg.Ingest.ConflictRetries),
		ingest.WithObserver(k.observe),
	}
	if o.newID != nil {
		ingOpts = append(ingOpts, ingest.WithIDGenerator(o.newID))
	}
	k.ingester = ingest.New(s, ingOpts...)
	return k, nil
}

func (k *Keeper) observe(ev ingest.Event) {
	k.metrics.observe(ev)
	if ev.Err == nil && ev.Outcome.Status == ingest.Created {
		k.catalog.invalidate()
	}
}

// Start runs the catalog watcher and, when an inbox directory is configured,
// the inbox watcher. It returns once they are running; both stop with ctx.
func (k *Keeper) Start(ctx context.Context) error {
	w := watch.New(k.store.DB, watch.Options{
		Interval: k.config.Catalog.PollInterval,
		Detector: watch.SumDetector("version_heads", "last_version"),
		Logger:   k.logger,
	})
	if err := w.Prime(ctx); err != nil {
		return fmt.Errorf("pagekeeper: catalog watch: %w", err)
	}
	go w.OnChange(ctx, func() error {
		k.catalog.invalidate()
		return nil
	})

	if dir := k.config.Inbox.Dir; dir != "" {
		if _, err := k.IngestDir(ctx, dir); err != nil {
			k.logger.Warn("pagekeeper: initial inbox scan", "dir", dir, "error", err)
		}
		iw, err := inbox.NewWatcher(dir, k.config.Inbox.Debounce, k.ingestFile, k.logger)
		if err != nil {
			return fmt.Errorf("pagekeeper: inbox %s: %w", dir, err)
		}
		go iw.Run(ctx)
	}
	k.logger.Info("pagekeeper: started", "db", k.config.DBPath, "inbox", k.config.Inbox.Dir)
	return nil
}

// Close closes the database.
func (k *Keeper) Close() error {
	return k.store.Close()
}

// Config returns the effective configuration, defaults applied.
func (k *Keeper) Config() Config { return *k.config }

// Gatherer exposes the Keeper's metrics registry.
func (k *Keeper) Gatherer() prometheus.Gatherer { return k.gatherer }

// --- ingestion ---

// Ingest stores snap as a new version unless it matches the latest one.
func (k *Keeper) Ingest(ctx context.Context, snap Snapshot) (*Outcome, error) {
	return k.ingester.Ingest(ctx, snap)
}

// IngestAll ingests snaps on the bounded worker pool. Results are aligned
// with snaps.
func (k *Keeper) IngestAll(ctx context.Context, snaps []Snapshot) []IngestResult {
	return k.ingester.IngestAll(ctx, snaps)
}

// FileResult is the outcome of ingesting one inbox file.
type FileResult struct {
	Path    string   `json:"path"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// IngestDir ingests every snapshot file under dir. Unreadable files are
// reported in their FileResult and do not stop the others.
func (k *Keeper) IngestDir(ctx context.Context, dir string) ([]FileResult, error) {
	files, err := inbox.Scan(dir)
	if err != nil {
		return nil, err
	}
	results := make([]FileResult, len(files))
	snaps := make([]Snapshot, 0, len(files))
	idx := make([]int, 0, len(files))
	for i, f := range files {
		results[i].Path = f
		snap, err := inbox.Load(dir, f)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		snaps = append(snaps, snap)
		idx = append(idx, i)
	}
	ctx = kit.WithTransport(ctx, "inbox")
	for j, r := range k.ingester.IngestAll(ctx, snaps) {
		i := idx[j]
		results[i].Outcome = r.Outcome
		if r.Err != nil {
			results[i].Error = r.Err.Error()
		}
	}
	return results, nil
}

func (k *Keeper) ingestFile(ctx context.Context, path string) {
	snap, err := inbox.Load(k.config.Inbox.Dir, path)
	if err != nil {
		k.logger.Warn("pagekeeper: inbox file skipped", "path", path, "error", err)
		return
	}
	ctx = kit.WithTransport(ctx, "inbox")
	// Outcomes are logged by the ingester.
	_, _ = k.ingester.Ingest(ctx, snap)
}

// --- queries ---

// LatestComponents returns, for every component path ever recorded for the
// key, the row from the newest version containing it. Removed components
// therefore remain visible; use CurrentComponents for a single version.
func (k *Keeper) LatestComponents(ctx context.Context, doc, lineage string) ([]*Component, error) {
	return k.store.LatestComponents(ctx, doc, lineage)
}

// VersionComponents returns the components of exactly version n, or
// ErrNotFound.
func (k *Keeper) VersionComponents(ctx context.Context, doc, lineage string, n int) ([]*Component, error) {
	return k.store.VersionComponents(ctx, doc, lineage, n)
}

// CurrentComponents returns the components of the latest version, or an
// empty slice when the key has no versions.
func (k *Keeper) CurrentComponents(ctx context.Context, doc, lineage string) ([]*Component, error) {
	comps, _, err := k.current(ctx, doc, lineage)
	return comps, err
}

func (k *Keeper) current(ctx context.Context, doc, lineage string) ([]*Component, int, error) {
	v, err := k.store.LatestVersion(ctx, doc, lineage)
	if err != nil {
		return nil, 0, err
	}
	if v == nil {
		return []*Component{}, 0, nil
	}
	comps, err := k.store.VersionComponents(ctx, doc, lineage, v.VersionNumber)
	if errors.Is(err, store.ErrNotFound) {
		// A retention delete between the two reads.
		return []*Component{}, 0, nil
	}
	return comps, v.VersionNumber, err
}

// LatestVersionNumber returns the latest version number of the key, or 1
// when it has none. Callers that must tell the two apart use LatestVersion.
func (k *Keeper) LatestVersionNumber(ctx context.Context, doc, lineage string) (int, error) {
	n, ok, err := k.LatestVersion(ctx, doc, lineage)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return n, nil
}

// LatestVersion returns the latest version number and whether one exists.
func (k *Keeper) LatestVersion(ctx context.Context, doc, lineage string) (int, bool, error) {
	v, err := k.store.LatestVersion(ctx, doc, lineage)
	if err != nil || v == nil {
		return 0, false, err
	}
	return v.VersionNumber, true, nil
}

// ListVersions returns the versions of the key, newest first.
func (k *Keeper) ListVersions(ctx context.Context, doc, lineage string) ([]*Version, error) {
	return k.store.ListVersions(ctx, doc, lineage)
}

// Documents lists document paths, restricted to lineage when it is set.
func (k *Keeper) Documents(ctx context.Context, lineage string) ([]string, error) {
	return k.store.Documents(ctx, lineage)
}

// Catalog returns one entry per (lineage, version number).
func (k *Keeper) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	return k.catalog.get(ctx)
}

// IngestLog returns the most recent ingest attempts, newest first.
func (k *Keeper) IngestLog(ctx context.Context, limit int) ([]*IngestEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return k.store.RecentIngestEntries(ctx, limit)
}

// Stats holds pagever counts.
type Stats struct {
	Counts
	DBPath    string `json:"db_path"`
	UpdatedAt int64  `json:"updated_at"`
}

// Stats returns current store statistics.
func (k *Keeper) Stats(ctx context.Context) (*Stats, error) {
	c, err := k.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Counts: *c, DBPath: k.config.DBPath, UpdatedAt: time.Now().UnixMilli()}, nil
}

// nodes converts stored components back into decomposer nodes for diffing.
func nodes(comps []*Component) []decompose.Node {
	out := make([]decompose.Node, len(comps))
	for i, c := range comps {
		out[i] = decompose.Node{
			Path:       c.Path,
			ParentPath: c.ParentPath,
			Order:      c.Order,
			Type:       c.Type,
			Content:    c.Content,
			Hash:       c.Hash,
		}
	}
	return out
}
