// Package api exposes console trees and dictionaries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jacentio/canopy/dict"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/tree"
)

// Forests lists a node table as a forest. *store.Store satisfies it.
type Forests interface {
	Forest(ctx context.Context, table string, cfg tree.Config) (tree.Result, error)
}

// Server routes API requests.
type Server struct {
	forests  Forests
	registry *store.Registry
	dicts    *dict.Service
	logger   *slog.Logger
}

// NewServer creates a Server. dicts may be nil, in which case the dictionary
// routes answer 503.
func NewServer(forests Forests, registry *store.Registry, dicts *dict.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		forests:  forests,
		registry: registry,
		dicts:    dicts,
		logger:   logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/kinds", s.handleKinds)
		r.Get("/trees/{kind}", s.handleTree)
		r.Get("/trees/{kind}/keys", s.handleKeys)
		r.Get("/dicts/{types}", s.handleDicts)
		r.Delete("/dicts", s.handleInvalidate)
		r.Delete("/dicts/{types}", s.handleInvalidate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path)
	})
	return r
}

type kindView struct {
	Name          string `json:"name"`
	Table         string `json:"table"`
	IDField       string `json:"idField"`
	ParentIDField string `json:"parentIdField"`

	// Children lists the kinds that may hang below this one.
	Children []string `json:"children"`
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	kinds := s.registry.Kinds()
	views := make([]kindView, 0, len(kinds))
	for _, k := range kinds {
		cfg := k.Tree
		if cfg.IDField == "" {
			cfg.IDField = tree.DefaultIDField
		}
		if cfg.ParentIDField == "" {
			cfg.ParentIDField = tree.DefaultParentIDField
		}
		children := []string{}
		for _, rel := range s.registry.ChildrenOf(k.Name) {
			children = append(children, rel.ChildKind)
		}
		views = append(views, kindView{
			Name:          k.Name,
			Table:         k.Table,
			IDField:       cfg.IDField,
			ParentIDField: cfg.ParentIDField,
			Children:      children,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleTree answers {"tree": [...], "flatData": [...]}. Query parameters
// narrow flatData to records whose field equals the given value.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	_, res, ok := s.forest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	spec, res, ok := s.forest(w, r)
	if !ok {
		return
	}
	keys := tree.CollectKeysWith(res.Tree, spec.Tree)
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

func (s *Server) forest(w http.ResponseWriter, r *http.Request) (store.KindSpec, tree.Result, bool) {
	spec, err := s.registry.Kind(chi.URLParam(r, "kind"))
	if err != nil {
		s.fail(w, r, err)
		return store.KindSpec{}, tree.Result{}, false
	}

	cfg := spec.Tree
	if filter := queryFilter(r, cfg.Filter); filter != nil {
		cfg.Filter = filter
	}

	res, err := s.forests.Forest(r.Context(), spec.Table, cfg)
	if err != nil {
		s.fail(w, r, err)
		return store.KindSpec{}, tree.Result{}, false
	}
	return spec, res, true
}

// queryFilter ANDs one equality predicate per query parameter onto base.
func queryFilter(r *http.Request, base tree.Predicate) tree.Predicate {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil
	}
	return func(rec tree.Record) bool {
		if base != nil && !base(rec) {
			return false
		}
		for field, values := range query {
			if rec.String(field) != values[0] {
				return false
			}
		}
		return true
	}
}

func (s *Server) handleDicts(w http.ResponseWriter, r *http.Request) {
	if s.dicts == nil {
		writeError(w, http.StatusServiceUnavailable, "dicts_disabled", "dictionaries are not configured")
		return
	}
	types := splitTypes(chi.URLParam(r, "types"))

	if r.URL.Query().Get("shape") == "options" {
		opts, err := s.dicts.Options(r.Context(), types...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, opts)
		return
	}

	rec, err := s.dicts.Record(r.Context(), types...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.dicts == nil {
		writeError(w, http.StatusServiceUnavailable, "dicts_disabled", "dictionaries are not configured")
		return
	}
	types := splitTypes(chi.URLParam(r, "types"))
	if err := s.dicts.Invalidate(r.Context(), types...); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func splitTypes(param string) []string {
	var types []string
	for _, t := range strings.Split(param, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// fail maps err to a status and error code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, store.ErrUnknownKind):
		status, code = http.StatusNotFound, "unknown_kind"
	case errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, dict.ErrNoSource):
		status, code = http.StatusServiceUnavailable, "dicts_disabled"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"requestID", middleware.GetReqID(r.Context()),
			"error", err,
		)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

type errorBody struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Msg: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}
