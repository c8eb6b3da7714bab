package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/pipeline"
	"github.com/codeqa/codeqa/internal/probe"
	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

const maxBodyBytes = 1 << 20

var (
	errBadRequest       = errors.New("bad request")
	errForbiddenRoot    = errors.New("path is outside the allowed roots")
	errUnsupportedMedia = errors.New("content type must be application/json")
)

type AnalyzeRequest struct {
	Path      string   `json:"path"`
	Ports     []int    `json:"ports"`
	Languages []string `json:"languages"`
}

type ProbeRequest struct {
	Ports []int `json:"ports"`
}

type RuleResponse struct {
	ID       string          `json:"id"`
	Severity report.Severity `json:"severity"`
	Pattern  string          `json:"pattern"`
	Message  string          `json:"message"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type Router struct {
	analyzer *pipeline.Analyzer
	prober   *probe.Prober
	roots    []string
	logger   logging.Logger
	version  string
}

// NewRouter builds the API. Cross-origin access is only granted to
// cfg.AllowedOrigins; with none configured no CORS headers are sent.
func NewRouter(analyzer *pipeline.Analyzer, prober *probe.Prober, cfg *config.ServerConfig, logger logging.Logger, version string) http.Handler {
	logger = logging.OrNoOp(logger)
	r := &Router{analyzer: analyzer, prober: prober, logger: logger, version: version}
	for _, root := range cfg.AllowedRoots {
		r.roots = append(r.roots, filepath.Clean(root))
	}

	mux := chi.NewRouter()
	mux.Use(requestIDMiddleware)
	mux.Use(loggingMiddleware(logger))
	if len(cfg.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", r.wrap(r.handleHealth))
	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Post("/probe", r.wrap(r.handleProbe))
		rt.Get("/rules", r.wrap(r.handleRules))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, scanner.ErrRootNotFound):
			status = http.StatusNotFound
		case errors.Is(err, errBadRequest), errors.Is(err, pipeline.ErrUnknownLanguage):
			status = http.StatusBadRequest
		case errors.Is(err, errForbiddenRoot):
			status = http.StatusForbidden
		case errors.Is(err, errUnsupportedMedia):
			status = http.StatusUnsupportedMediaType
		}
		if status == http.StatusInternalServerError {
			r.logger.Error("request failed", logging.F("request_id", RequestID(req.Context())), logging.Err(err))
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: RequestID(req.Context())})
	}
}

// GET /health
func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": r.version,
	})
}

// POST /v1/analyze
// Body: {"path": "<dir>", "ports": [3000], "languages": ["python"]}
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body AnalyzeRequest
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	if body.Path == "" {
		return fmt.Errorf("%w: path is required", errBadRequest)
	}
	if err := r.checkRoot(body.Path); err != nil {
		return err
	}

	result, err := r.analyzer.Analyze(req.Context(), body.Path, pipeline.Options{
		Ports:     body.Ports,
		Languages: body.Languages,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

// POST /v1/probe
// Body: {"ports": [3000, 8000]}
func (r *Router) handleProbe(w http.ResponseWriter, req *http.Request) error {
	var body ProbeRequest
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	if len(body.Ports) == 0 {
		return fmt.Errorf("%w: ports are required", errBadRequest)
	}
	return writeJSON(w, http.StatusOK, r.prober.Probe(req.Context(), body.Ports))
}

// GET /v1/rules
func (r *Router) handleRules(w http.ResponseWriter, _ *http.Request) error {
	rules := r.analyzer.Catalog().Rules()
	response := make([]RuleResponse, len(rules))
	for i, rule := range rules {
		response[i] = RuleResponse{
			ID:       rule.ID,
			Severity: rule.Severity,
			Pattern:  rule.Expr(),
			Message:  rule.Message,
		}
	}
	return writeJSON(w, http.StatusOK, response)
}

// checkRoot rejects paths outside the configured roots.
func (r *Router) checkRoot(path string) error {
	if len(r.roots) == 0 {
		return nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", errForbiddenRoot, path)
}

// decodeBody requires a JSON content type, so browsers must preflight
// cross-origin calls.
func decodeBody(req *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errUnsupportedMedia
	}

	decoder := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
