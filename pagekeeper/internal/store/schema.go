package store

// Schema is the pagever DDL. Every statement is idempotent; it runs on each
// open. Versions and components are append-only: UPDATE on either table
// aborts. Deleting a version row cascades to its components.
const Schema = `
-- One row per allocated version of a (document, lineage).
CREATE TABLE IF NOT EXISTS versions (
    document_path      TEXT NOT NULL,
    lineage            TEXT NOT NULL,
    version_number     INTEGER NOT NULL CHECK (version_number > 0),
    snapshot_hash      TEXT NOT NULL,
    source_file        TEXT NOT NULL DEFAULT '',
    snapshot_timestamp INTEGER NOT NULL,
    component_count    INTEGER NOT NULL,
    created_at         INTEGER NOT NULL,
    PRIMARY KEY (document_path, lineage, version_number)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_versions_lineage ON versions(lineage, version_number DESC);

-- High-water mark per (document, lineage); numbers above it are never reused,
-- even after old versions are deleted.
CREATE TABLE IF NOT EXISTS version_heads (
    document_path  TEXT NOT NULL,
    lineage        TEXT NOT NULL,
    last_version   INTEGER NOT NULL,
    PRIMARY KEY (document_path, lineage)
) WITHOUT ROWID;

-- Flattened tree nodes, one row per component per version.
CREATE TABLE IF NOT EXISTS components (
    document_path         TEXT NOT NULL,
    lineage               TEXT NOT NULL,
    version_number        INTEGER NOT NULL,
    component_path        TEXT NOT NULL,
    parent_component_path TEXT,
    component_order       INTEGER NOT NULL,
    component_type        TEXT,
    component_content     TEXT NOT NULL DEFAULT '{}',
    component_hash        TEXT NOT NULL,
    snapshot_hash         TEXT NOT NULL,
    PRIMARY KEY (document_path, lineage, version_number, component_path),
    FOREIGN KEY (document_path, lineage, version_number)
        REFERENCES versions(document_path, lineage, version_number) ON DELETE CASCADE
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_components_path
    ON components(document_path, lineage, component_path, version_number DESC);

CREATE TRIGGER IF NOT EXISTS versions_append_only BEFORE UPDATE ON versions
BEGIN
    SELECT RAISE(ABORT, 'versions are append-only');
END;
CREATE TRIGGER IF NOT EXISTS components_append_only BEFORE UPDATE ON components
BEGIN
    SELECT RAISE(ABORT, 'components are append-only');
END;

-- Ingest log: one row per ingestion attempt.
CREATE TABLE IF NOT EXISTS ingest_log (
    id              TEXT PRIMARY KEY,
    document_path   TEXT NOT NULL,
    lineage         TEXT NOT NULL,
    source_file     TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending',
    version_number  INTEGER NOT NULL DEFAULT 0,
    snapshot_hash   TEXT NOT NULL DEFAULT '',
    component_count INTEGER NOT NULL DEFAULT 0,
    error_message   TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    completed_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_ingest_doc ON ingest_log(document_path, lineage);
CREATE INDEX IF NOT EXISTS idx_ingest_time ON ingest_log(created_at DESC);
`
