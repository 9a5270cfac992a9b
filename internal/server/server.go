// Package server exposes the datastore over HTTP: catalog discovery,
// regional streaming queries, attribute summaries and the optional SQL
// inspection endpoint. Query results are streamed as chunked JSON
// arrays, flushed batch by batch.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kaelis/skyshard/internal/catalog"
	"github.com/kaelis/skyshard/internal/config"
	"github.com/kaelis/skyshard/internal/errors"
	"github.com/kaelis/skyshard/internal/inspect"
	"github.com/kaelis/skyshard/internal/logging"
	"github.com/kaelis/skyshard/internal/pixel"
	"github.com/kaelis/skyshard/internal/query"
	"github.com/kaelis/skyshard/internal/stats"
)

// Server serves the HTTP query frontend.
type Server struct {
	cfg       *config.Config
	store     *catalog.Datastore
	searcher  pixel.ConeSearcher // optional; enables /cone
	inspector *inspect.Inspector // optional; enables /sql
	log       *slog.Logger

	http   *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a Server. searcher and inspector may be nil; the
// corresponding endpoints then report their feature as unavailable.
func New(cfg *config.Config, store *catalog.Datastore, searcher pixel.ConeSearcher, inspector *inspect.Inspector) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		store:     store,
		searcher:  searcher,
		inspector: inspector,
		log:       logging.Component("server"),
		ctx:       ctx,
		cancel:    cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /catalogs", s.handleCatalogs)
	mux.HandleFunc("GET /sources", s.handleSources)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /cone", s.handleCone)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /sql", s.handleSQL)

	s.http = &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: mux,
	}
	return s
}

// Start runs the initial datastore reload, the periodic reload worker
// and the HTTP listener.
func (s *Server) Start() error {
	if err := s.store.Reload(); err != nil {
		return fmt.Errorf("initial reload: %w", err)
	}

	s.wg.Add(1)
	go s.reloadWorker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("listening", "addr", s.cfg.Server.Listen)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)

	s.wg.Wait()
	return err
}

// Handler returns the HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// reloadWorker re-checks the dataset freshness marker periodically.
func (s *Server) reloadWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Reload.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.Reload(); err != nil {
				s.log.Error("periodic reload failed", "error", err)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "catalogs": len(s.store.Namespaces())})
}

type catalogInfo struct {
	Name              string          `json:"name"`
	Partitions        int             `json:"partitions"`
	Attributes        []attributeInfo `json:"attributes"`
	DefaultAttributes []string        `json:"default_attributes,omitempty"`
}

type attributeInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleCatalogs(w http.ResponseWriter, r *http.Request) {
	var out []catalogInfo
	for _, name := range s.store.Namespaces() {
		idx, ok := s.store.Index(name)
		if !ok {
			continue
		}
		meta, err := idx.Metadata()
		if err != nil {
			s.writeError(w, err)
			return
		}
		var attrs []attributeInfo
		for _, c := range meta.Columns() {
			attrs = append(attrs, attributeInfo{Name: c.Name, Type: c.Type.String()})
		}
		out = append(out, catalogInfo{
			Name:              name,
			Partitions:        len(idx.Partitions()),
			Attributes:        attrs,
			DefaultAttributes: meta.DefaultAttributes,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"catalogs": out})
}

// handleSources streams every source of the selected catalogs.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	selector := r.URL.Query().Get("catalogs")

	indexes, err := s.store.Resolve(orStar(selector))
	if err != nil {
		s.writeError(w, err)
		return
	}

	coarse := pixel.NewCoarseSet()
	for _, idx := range indexes {
		for _, p := range idx.Partitions() {
			coarse.Add(p.Pixel())
		}
	}

	q, err := query.New(s.store, query.Spec{Catalogs: orStar(selector), Coarse: coarse})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.stream(w, r, q)
}

type queryRequest struct {
	Catalogs string         `json:"catalogs"`
	Coarse   []uint32       `json:"coarse"`
	Fine     []uint64       `json:"fine"`
	Filters  map[string]any `json:"filters"`
}

// handleQuery runs a regional search over explicit pixel sets.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req queryRequest
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	q, err := query.New(s.store, query.Spec{
		Catalogs: orStar(req.Catalogs),
		Coarse:   pixel.NewCoarseSet(req.Coarse...),
		Fine:     pixel.NewFineSet(req.Fine...),
		Filters:  req.Filters,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.stream(w, r, q)
}

// coneParams are the reserved /cone query parameters; every other
// parameter is treated as an attribute threshold.
var coneParams = map[string]bool{"ra": true, "dec": true, "radius": true, "catalogs": true}

// handleCone resolves a spherical cone through the configured pixel
// provider, then runs the regional search.
func (s *Server) handleCone(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		http.Error(w, "no cone-search provider configured", http.StatusNotImplemented)
		return
	}

	params := r.URL.Query()
	ra, err1 := strconv.ParseFloat(params.Get("ra"), 64)
	dec, err2 := strconv.ParseFloat(params.Get("dec"), 64)
	radius, err3 := strconv.ParseFloat(params.Get("radius"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		http.Error(w, "ra, dec and radius must be numeric", http.StatusBadRequest)
		return
	}

	coarse, fine, err := s.searcher.PixelSets(ra, dec, radius)
	if err != nil {
		http.Error(w, fmt.Sprintf("cone search: %v", err), http.StatusBadGateway)
		return
	}

	filters := make(map[string]any)
	for key, vals := range params {
		if coneParams[key] || len(vals) == 0 {
			continue
		}
		if f, err := strconv.ParseFloat(vals[0], 64); err == nil {
			filters[key] = f
		} else {
			// Left as a string so the query logs and skips it.
			filters[key] = vals[0]
		}
	}

	q, err := query.New(s.store, query.Spec{
		Catalogs: orStar(params.Get("catalogs")),
		Coarse:   coarse,
		Fine:     fine,
		Filters:  filters,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.stream(w, r, q)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("catalog")
	idx, ok := s.store.Index(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown catalog %q", name), http.StatusNotFound)
		return
	}

	summary, err := stats.Summarize(idx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type sqlRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	if s.inspector == nil || !s.cfg.Server.EnableSQL {
		s.writeError(w, errors.ErrSQLDisabled)
		return
	}

	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	rows, err := s.inspector.Query(r.Context(), req.Query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}

// stream writes a query's results as a chunked JSON array.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, q *query.Query) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if err := q.Stream(r.Context(), w); err != nil {
		// Headers are out; all we can do is abort the body.
		s.log.Error("query stream aborted", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrSQLDisabled):
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func orStar(selector string) string {
	if selector == "" {
		return "*"
	}
	return selector
}
