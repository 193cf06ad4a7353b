// Package api serves the cached objects and their visibility windows over
// HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/skywatch/internal/auth"
	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/health"
	"github.com/star/skywatch/internal/httputil"
	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/refresh"
	"github.com/star/skywatch/internal/transform"
	"github.com/star/skywatch/internal/visibility"
)

// Config configures the HTTP server.
type Config struct {
	Addr       string
	Auth       auth.Config
	TrustProxy bool

	// MaxConcurrentPerIP caps in-flight requests per client. Zero disables it.
	MaxConcurrentPerIP int
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	cat        *Catalog
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, cat *Catalog, logger *slog.Logger) *Server {
	s := &Server{cat: cat, logger: logger.With("component", "api")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(cat.Ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/objects", s.listObjects)
	mux.HandleFunc("GET /api/v1/objects/{id}", s.getObject)

	// metrics -> logging -> limit -> auth -> mux
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = httputil.Limit(cfg.MaxConcurrentPerIP, httputil.DefaultMaxTotal, cfg.TrustProxy)(handler)
	handler = httputil.AccessLog(s.logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// objectView is the JSON form of one cached object.
type objectView struct {
	catalog.Record
	Window visibility.Window `json:"window"`
	Error  string            `json:"error,omitempty"`
}

func view(e refresh.Entry) objectView {
	v := objectView{Record: e.Record, Window: e.Window}
	if e.Err != nil {
		v.Error = e.Err.Error()
	}
	return v
}

type listResponse struct {
	SavedAt time.Time    `json:"saved_at"`
	Site    siteView     `json:"site"`
	Moon    moonView     `json:"moon"`
	Count   int          `json:"count"`
	Objects []objectView `json:"objects"`
}

// moonView is the Moon at the start of the window.
type moonView struct {
	Illumination float64 `json:"illumination"`
	Phase        string  `json:"phase"`
}

type siteView struct {
	LatitudeDeg  float64   `json:"latitude_deg"`
	LongitudeDeg float64   `json:"longitude_deg"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	snap := s.cat.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot not loaded")
		return
	}

	var f refresh.Filter
	q := r.URL.Query()
	if v := q.Get("visible_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid visible_only: "+v)
			return
		}
		f.VisibleOnly = b
	}
	if v := q.Get("max_magnitude"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_magnitude: "+v)
			return
		}
		f.MaxMagnitude = &m
	}

	site := s.cat.Site()
	moon := transform.MoonAt(site.Start)
	resp := listResponse{
		SavedAt: snap.SavedAt,
		Site: siteView{
			LatitudeDeg:  site.LatitudeDeg,
			LongitudeDeg: site.LongitudeDeg,
			Start:        site.Start,
			End:          site.End,
		},
		Moon:    moonView{Illumination: moon.Illumination, Phase: moon.Phase},
		Objects: []objectView{},
	}
	for e := range refresh.Filtered(refresh.Entries(snap, site), f) {
		resp.Objects = append(resp.Objects, view(e))
	}
	resp.Count = len(resp.Objects)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request) {
	snap := s.cat.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot not loaded")
		return
	}

	id, err := catalog.NewID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, ok := snap.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "object not cached: "+id.String())
		return
	}
	writeJSON(w, http.StatusOK, view(refresh.EntryFor(rec, s.cat.Site())))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
