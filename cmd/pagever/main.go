// Command pagever records page snapshots per lineage and diffs them for
// translation review.
//
// Usage:
//
//	pagever -config pagever.yaml -serve          # HTTP API, inbox and catalog watchers
//	pagever -db pagever.db -ingest ./inbox       # ingest a directory and exit
//	pagever -db pagever.db -analyze /home        # diff lm-en against spac-ko_KR
//	pagever -db pagever.db -analyze /home -format md -source-version 3
//	pagever -db pagever.db -versions /home -source lm-en
//	pagever -db pagever.db -stats
//	pagever -db pagever.db -mcp                  # MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagever/pagekeeper"
)

const version = "0.1.0"

type cliFlags struct {
	configPath    string
	dbPath        string
	ingestDir     string
	analyzeDoc    string
	versionsDoc   string
	source        string
	target        string
	sourceVersion int
	targetVersion int
	format        string
	edits         bool
	textOnly      bool
	stats         bool
	serve         bool
	mcp           bool
}

func main() {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "path to pagever.yaml config file")
	flag.StringVar(&f.dbPath, "db", "", "path to SQLite database (overrides config)")
	flag.StringVar(&f.ingestDir, "ingest", "", "ingest every snapshot file under dir and exit")
	flag.StringVar(&f.analyzeDoc, "analyze", "", "document path to analyze (exit after report)")
	flag.StringVar(&f.versionsDoc, "versions", "", "document path whose versions to list (lineage from -source)")
	flag.StringVar(&f.source, "source", "", "source lineage (default from config)")
	flag.StringVar(&f.target, "target", "", "target lineage (default from config)")
	flag.IntVar(&f.sourceVersion, "source-version", 0, "source version number, 0 for latest")
	flag.IntVar(&f.targetVersion, "target-version", 0, "target version number, 0 for latest")
	flag.StringVar(&f.format, "format", "json", "analysis output: json or md")
	flag.BoolVar(&f.edits, "edits", false, "include inline edits for modified components")
	flag.BoolVar(&f.textOnly, "text-only", false, "also list the added and modified components carrying source text")
	flag.BoolVar(&f.stats, "stats", false, "show stats and exit")
	flag.BoolVar(&f.serve, "serve", false, "serve the HTTP API and run the watchers")
	flag.BoolVar(&f.mcp, "mcp", false, "serve MCP tools over stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("pagever: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f cliFlags) error {
	cfg, err := resolveConfig(f.configPath, f.dbPath)
	if err != nil {
		return err
	}

	k, err := pagekeeper.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer k.Close()

	switch {
	case f.ingestDir != "":
		results, err := k.IngestDir(ctx, f.ingestDir)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		return printJSON(results)

	case f.analyzeDoc != "":
		req := pagekeeper.AnalyzeRequest{
			DocumentPath:  f.analyzeDoc,
			SourceLineage: f.source,
			TargetLineage: f.target,
			SourceVersion: f.sourceVersion,
			TargetVersion: f.targetVersion,
			InlineEdits:   f.edits,
			TextOnly:      f.textOnly,
		}
		switch f.format {
		case "md", "markdown":
			return k.WriteMarkdown(ctx, os.Stdout, req)
		case "json", "":
			a, err := k.Analyze(ctx, req)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			return printJSON(a)
		default:
			return fmt.Errorf("unknown format %q", f.format)
		}

	case f.versionsDoc != "":
		lineage := f.source
		if lineage == "" {
			lineage = k.Config().Analysis.SourceLineage
		}
		versions, err := k.ListVersions(ctx, f.versionsDoc, lineage)
		if err != nil {
			return fmt.Errorf("versions: %w", err)
		}
		return printJSON(versions)

	case f.stats:
		stats, err := k.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		return printJSON(stats)

	case f.mcp:
		srv := mcp.NewServer(&mcp.Implementation{Name: "pagever", Version: version}, nil)
		k.RegisterMCP(srv)
		if err := k.Start(ctx); err != nil {
			return err
		}
		logger.Info("pagever: mcp on stdio", "db", cfg.DBPath)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil

	case f.serve:
		return serve(ctx, logger, k)
	}

	fmt.Fprintln(os.Stderr, "usage: pagever [-config file | -db path] -serve | -mcp | -ingest dir | -analyze doc | -versions doc | -stats")
	flag.PrintDefaults()
	return nil
}

func serve(ctx context.Context, logger *slog.Logger, k *pagekeeper.Keeper) error {
	cfg := k.Config()
	if err := k.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           k.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("pagever: listening", "addr", cfg.API.Addr, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("pagever: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func resolveConfig(configPath, dbPath string) (*pagekeeper.Config, error) {
	cfg := &pagekeeper.Config{}
	if configPath != "" {
		loaded, err := pagekeeper.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
