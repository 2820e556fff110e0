package runtime

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/drblury/cotflow/internal/runtime/archive"
	configpkg "github.com/drblury/cotflow/internal/runtime/config"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	"github.com/drblury/cotflow/internal/runtime/jsoncodec"
)

// RuntimeSnapshot is the process section of the status report.
type RuntimeSnapshot struct {
	Goroutines int       `json:"goroutines"`
	HeapBytes  uint64    `json:"heap_bytes"`
	NumGC      uint32    `json:"num_gc"`
	Taken      time.Time `json:"taken"`
}

// StatusReport is served on /api/status.
type StatusReport struct {
	Service   string          `json:"service"`
	Transport string          `json:"transport"`
	Running   bool            `json:"running"`
	Handlers  []*HandlerInfo  `json:"handlers"`
	Runtime   RuntimeSnapshot `json:"runtime"`
}

// StartStatusServer mounts the status API on StatusPort. Nothing is served
// unless StatusEnabled is set.
func (s *Service) StartStatusServer() {
	if !s.Conf.StatusEnabled {
		return
	}

	port := s.Conf.StatusPort
	if port == 0 {
		port = configpkg.DefaultStatusPort
	}

	s.RegisterHTTPHandler(port, "/api/", s.statusHandler())
	s.RegisterHTTPHandler(port, "/healthz", http.HandlerFunc(s.handleHealth))
}

func (s *Service) statusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleGetStatus)
	mux.HandleFunc("GET /api/handlers", s.handleGetHandlers)
	mux.HandleFunc("GET /api/archive", s.handleListArchive)
	mux.HandleFunc("GET /api/archive/{id}", s.handleGetArchive)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.getAllowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-s.router.Running():
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	default:
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}
}

func (s *Service) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	running := false
	select {
	case <-s.router.Running():
		running = true
	default:
	}

	s.writeJSON(w, http.StatusOK, StatusReport{
		Service:   s.Conf.ServiceName,
		Transport: s.Conf.PubSubSystem,
		Running:   running,
		Handlers:  s.Handlers(),
		Runtime:   takeRuntimeSnapshot(),
	})
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Handlers())
}

func (s *Service) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, errspkg.ErrArchiveRequired.Error(), http.StatusNotFound)
		return
	}

	query := archive.Query{
		UID:      r.URL.Query().Get("uid"),
		Category: r.URL.Query().Get("category"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		query.Limit = limit
	}

	records, err := s.archive.List(r.Context(), query)
	if err != nil {
		s.Logger.Error("Failed to list archive", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Service) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, errspkg.ErrArchiveRequired.Error(), http.StatusNotFound)
		return
	}

	rec, err := s.archive.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, errspkg.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		s.Logger.Error("Failed to read archive", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode response", err, nil)
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range s.Conf.StatusCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

func takeRuntimeSnapshot() RuntimeSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeSnapshot{
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
		Taken:      time.Now().UTC(),
	}
}
