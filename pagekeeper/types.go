package pagekeeper

import (
	"github.com/hazyhaar/pagever/pagekeeper/internal/ingest"
	"github.com/hazyhaar/pagever/pagekeeper/internal/store"
)

// Re-exported types from the internal packages for cmd/ and external callers.
type (
	Version      = store.Version
	Component    = store.Component
	CatalogEntry = store.CatalogEntry
	Counts       = store.Counts
	IngestEntry  = store.IngestEntry
	Snapshot     = ingest.Snapshot
	Outcome      = ingest.Outcome
	IngestError  = ingest.Error
	IngestResult = ingest.Result
)

// Ingestion statuses.
const (
	Created = ingest.Created
	Skipped = ingest.Skipped
)
