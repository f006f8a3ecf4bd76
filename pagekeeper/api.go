package pagekeeper

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/pagever/kit"
)

const (
	maxSnapshotBody = 32 << 20 // POST /api/snapshots
	maxBatchBody    = 1 << 20  // POST /api/analysis/batch
)

// Handler returns the HTTP API. /health and /metrics are always open; the
// /api routes require basic auth when the config sets a username and a
// password hash.
func (k *Keeper) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(kit.RequestContext(nil))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(k.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(k.basicAuth)

		r.Post("/snapshots", k.handleSnapshots)
		r.Get("/catalog", k.handleCatalog)
		r.Get("/documents", k.handleDocuments)
		r.Get("/versions", k.handleVersions)
		r.Get("/versions/latest", k.handleLatestVersion)
		r.Get("/components", k.handleComponents)
		r.Get("/analysis", k.handleAnalysis)
		r.Post("/analysis/batch", k.handleAnalysisBatch)
		r.Get("/structure", k.handleStructure)
		r.Get("/translation-pairs", k.handleTranslationPairs)
		r.Get("/ingest-log", k.handleIngestLog)
		r.Get("/stats", k.handleStats)
	})
	return r
}

func (k *Keeper) basicAuth(next http.Handler) http.Handler {
	user, hash := k.config.API.Username, k.config.API.PasswordHash
	if user == "" || hash == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="pagever"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(kit.WithUser(r.Context(), u)))
	})
}

// --- handlers ---

func (k *Keeper) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSnapshotBody)).Decode(&raw); err != nil {
		k.writeError(w, r, fmt.Errorf("%w: body: %w", ErrInvalidRequest, err))
		return
	}

	if b := bytes.TrimSpace(raw); len(b) > 0 && b[0] == '[' {
		var snaps []Snapshot
		if err := json.Unmarshal(b, &snaps); err != nil {
			k.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err))
			return
		}
		results := k.IngestAll(r.Context(), snaps)
		out := make([]map[string]any, len(results))
		for i, res := range results {
			out[i] = map[string]any{"outcome": res.Outcome}
			if res.Err != nil {
				out[i]["error"] = res.Err.Error()
			}
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		k.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err))
		return
	}
	out, err := k.Ingest(r.Context(), snap)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if out.Status == Created {
		code = http.StatusCreated
	}
	writeJSON(w, code, out)
}

func (k *Keeper) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := k.Catalog(r.Context())
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (k *Keeper) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := k.Documents(r.Context(), r.URL.Query().Get("lineage"))
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

func (k *Keeper) handleVersions(w http.ResponseWriter, r *http.Request) {
	doc, lineage, err := keyParams(r)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	versions, err := k.ListVersions(r.Context(), doc, lineage)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(versions))
}

func (k *Keeper) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	doc, lineage, err := keyParams(r)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	n, ok, err := k.LatestVersion(r.Context(), doc, lineage)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_path":  doc,
		"lineage":        lineage,
		"version_number": n,
		"exists":         ok,
	})
}

func (k *Keeper) handleComponents(w http.ResponseWriter, r *http.Request) {
	doc, lineage, err := keyParams(r)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	var comps []*Component
	switch v := r.URL.Query().Get("version"); v {
	case "", "current":
		comps, err = k.CurrentComponents(r.Context(), doc, lineage)
	case "latest":
		comps, err = k.LatestComponents(r.Context(), doc, lineage)
	default:
		n, perr := strconv.Atoi(v)
		if perr != nil || n <= 0 {
			k.writeError(w, r, fmt.Errorf("%w: version %q", ErrInvalidRequest, v))
			return
		}
		comps, err = k.VersionComponents(r.Context(), doc, lineage, n)
	}
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(comps))
}

func (k *Keeper) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	req, err := analyzeParams(r)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "md" {
		var buf bytes.Buffer
		if err := k.WriteMarkdown(r.Context(), &buf, req); err != nil {
			k.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}
	a, err := k.Analyze(r.Context(), req)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type batchRequest struct {
	Documents []string `json:"documents"`
	AnalyzeRequest
}

func (k *Keeper) handleAnalysisBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
		k.writeError(w, r, fmt.Errorf("%w: body: %w", ErrInvalidRequest, err))
		return
	}
	if len(req.Documents) == 0 {
		k.writeError(w, r, fmt.Errorf("%w: documents is required", ErrInvalidRequest))
		return
	}
	writeJSON(w, http.StatusOK, k.AnalyzeBatch(r.Context(), req.Documents, req.AnalyzeRequest))
}

func (k *Keeper) handleStructure(w http.ResponseWriter, r *http.Request) {
	req, err := analyzeParams(r)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	rep, err := k.Structure(r.Context(), req)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (k *Keeper) handleTranslationPairs(w http.ResponseWriter, r *http.Request) {
	req, err := analyzeParams(r)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	res, err := k.TranslationPairs(r.Context(), req)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (k *Keeper) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			k.writeError(w, r, fmt.Errorf("%w: limit %q", ErrInvalidRequest, v))
			return
		}
		limit = n
	}
	entries, err := k.IngestLog(r.Context(), limit)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (k *Keeper) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := k.Stats(r.Context())
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- helpers ---

func keyParams(r *http.Request) (doc, lineage string, err error) {
	q := r.URL.Query()
	doc, lineage = q.Get("document"), q.Get("lineage")
	if doc == "" || lineage == "" {
		return "", "", fmt.Errorf("%w: document and lineage are required", ErrInvalidRequest)
	}
	return doc, lineage, nil
}

func analyzeParams(r *http.Request) (AnalyzeRequest, error) {
	q := r.URL.Query()
	req := AnalyzeRequest{
		DocumentPath:  q.Get("document"),
		SourceLineage: q.Get("source"),
		TargetLineage: q.Get("target"),
	}
	for name, dst := range map[string]*int{"source_version": &req.SourceVersion, "target_version": &req.TargetVersion} {
		v := q.Get(name)
		if v == "" || v == "latest" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: %s %q", ErrInvalidRequest, name, v)
		}
		*dst = n
	}
	req.InlineEdits = flagParam(q.Get("edits"))
	req.TextOnly = flagParam(q.Get("text_only"))
	return req, nil
}

func flagParam(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (k *Keeper) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		k.logger.Error("pagekeeper: request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", kit.GetRequestID(r.Context()), "error", err)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		code = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
