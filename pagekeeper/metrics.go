package pagekeeper

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazyhaar/pagever/kit"
	"github.com/hazyhaar/pagever/pagekeeper/internal/ingest"
)

// Metrics are the Prometheus collectors of one Keeper, registered on the
// Keeper's registry.
type Metrics struct {
	ingestTotal       *prometheus.CounterVec
	ingestDuration    prometheus.Histogram
	componentsWritten prometheus.Counter
	analysesTotal     *prometheus.CounterVec
	catalogLoads      prometheus.Counter
	toolCalls         *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ingestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagever",
			Name:      "ingest_total",
			Help:      "Snapshots ingested, by outcome (created, skipped, failed).",
		}, []string{"outcome"}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pagever",
			Name:      "ingest_duration_seconds",
			Help:      "Time to ingest one snapshot, including lock wait and retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		componentsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pagever",
			Name:      "components_written_total",
			Help:      "Component rows written by created versions.",
		}),
		analysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagever",
			Name:      "analyses_total",
			Help:      "Analyses run, by version selection (latest, exact).",
		}, []string{"mode"}),
		catalogLoads: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pagever",
			Name:      "catalog_loads_total",
			Help:      "Catalog reloads from the database.",
		}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagever",
			Name:      "tool_calls_total",
			Help:      "MCP tool calls, by tool and outcome (ok, error).",
		}, []string{"tool", "outcome"}),
	}
}

// observe is the ingester's observer.
func (m *Metrics) observe(ev ingest.Event) {
	m.ingestDuration.Observe(ev.Duration.Seconds())
	switch {
	case ev.Err != nil:
		m.ingestTotal.WithLabelValues("failed").Inc()
	case ev.Outcome.Status == ingest.Created:
		m.ingestTotal.WithLabelValues("created").Inc()
		m.componentsWritten.Add(float64(ev.Outcome.ComponentCount))
	default:
		m.ingestTotal.WithLabelValues("skipped").Inc()
	}
}

func (m *Metrics) analysis(exact bool) {
	mode := "latest"
	if exact {
		mode = "exact"
	}
	m.analysesTotal.WithLabelValues(mode).Inc()
}

// countCalls counts the calls of the endpoint named tool.
func (m *Metrics) countCalls(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			resp, err := next(ctx, req)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.toolCalls.WithLabelValues(tool, outcome).Inc()
			return resp, err
		}
	}
}
