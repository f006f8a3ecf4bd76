package pagekeeper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pagever configuration.
type Config struct {
	DBPath   string         `yaml:"db_path"`
	TraceSQL bool           `yaml:"trace_sql"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Analysis AnalysisConfig `yaml:"analysis"`
	API      APIConfig      `yaml:"api"`
	Inbox    InboxConfig    `yaml:"inbox"`
	Catalog  CatalogConfig  `yaml:"catalog"`
}

// IngestConfig bounds the ingestion pipeline. ConflictRetries is a pointer
// so that an explicit 0 disables retries; nil means the default of 2.
type IngestConfig struct {
	Workers         int  `yaml:"workers"`
	ConflictRetries *int `yaml:"conflict_retries"`
}

// AnalysisConfig names the lineages compared when a request leaves them out.
type AnalysisConfig struct {
	SourceLineage string `yaml:"source_lineage"`
	TargetLineage string `yaml:"target_lineage"`
	InlineEdits   bool   `yaml:"inline_edits"`
}

// APIConfig controls the HTTP API. Basic auth is enabled when both
// Username and PasswordHash (bcrypt) are set.
type APIConfig struct {
	Addr         string `yaml:"addr"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// InboxConfig enables the snapshot-file watcher when Dir is set.
type InboxConfig struct {
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// CatalogConfig controls how often the catalog cache checks for writes
// from other processes.
type CatalogConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "pagever.db"
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.ConflictRetries == nil {
		n := 2
		c.Ingest.ConflictRetries = &n
	}
	if c.Analysis.SourceLineage == "" {
		c.Analysis.SourceLineage = "lm-en"
	}
	if c.Analysis.TargetLineage == "" {
		c.Analysis.TargetLineage = "spac-ko_KR"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8087"
	}
	if c.Inbox.Debounce <= 0 {
		c.Inbox.Debounce = 2 * time.Second
	}
	if c.Catalog.PollInterval <= 0 {
		c.Catalog.PollInterval = time.Second
	}
}

// LoadConfigFile reads a YAML config file. Unset fields keep their zero
// value until New applies the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("pagekeeper: config %s: %w", path, err)
	}
	return cfg, nil
}
