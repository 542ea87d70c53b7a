// Package adminapi implements the Admin API service: a local HTTPS server
// on a fixed port exposing read-only status of the sibling services
// (spec §4.6).
package adminapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetforge/compiler-worker/internal/ledger"
)

// ServiceStatus is the read-only view of one sibling service, per spec
// §4.6's {name, started, working, cpu, memory, version}. CPU/memory are
// populated by the external process supervisor this design treats as an
// out-of-scope collaborator (spec §1); they are left zero here.
type ServiceStatus struct {
	Name    string    `json:"name"`
	Started time.Time `json:"started"`
	Working bool      `json:"working"`
	CPU     float64   `json:"cpu"`
	Memory  int64     `json:"memory"`
	Version string    `json:"version"`
}

// StatusProvider reports one sibling service's status. FileStatusProvider
// implements it from the files each service publishes in the workspace root.
type StatusProvider interface {
	Status() ServiceStatus
}

// Server is the Admin API's HTTP surface.
type Server struct {
	Services map[string]StatusProvider
	Ledger   *ledger.Ledger
	Registry *prom.Registry // nil falls back to the default Prometheus registry
	LogDir   string         // workspace root; each service's {id}.log lives under here
	Port     int
	Token    string
	CertFile string
	KeyFile  string

	router chi.Router
}

// New builds a Server and wires its routes. port is normally 55555 (spec
// §4.6) but is taken from config rather than hardcoded so deployments can
// relocate it behind a different front door.
func New(services map[string]StatusProvider, l *ledger.Ledger, reg *prom.Registry, logDir string, port int, token, certFile, keyFile string) *Server {
	s := &Server{Services: services, Ledger: l, Registry: reg, LogDir: logDir, Port: port, Token: token, CertFile: certFile, KeyFile: keyFile}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)

	metricsHandler := promhttp.Handler()
	if s.Registry != nil {
		metricsHandler = promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
	}

	r.Get("/api/", s.handleIdentity)
	r.Get("/metrics", metricsHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.Token))
		r.Get("/api/services", s.handleListServices)
		r.Get("/api/services/{id}", s.handleGetService)
		r.Get("/api/services/{id}/log", s.handleServiceLog)
		r.Get("/api/services/{id}/notifications/dlq", s.handleDLQ)
	})

	return r
}

// ListenAndServeTLS starts the server, normally on port 55555 per spec §4.6.
func (s *Server) ListenAndServeTLS(ctx context.Context) error {
	srv := &http.Server{
		Addr:      ":" + strconv.Itoa(s.Port),
		Handler:   s.router,
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return srv.ListenAndServeTLS(s.CertFile, s.KeyFile)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "compiler-worker-admin"})
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	out := make([]ServiceStatus, 0, len(s.Services))
	for _, svc := range s.Services {
		out = append(out, svc.Status())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc, ok := s.Services[id]
	if !ok {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, svc.Status())
}

func (s *Server) handleServiceLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.Services[id]; !ok {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}
	lines, err := tailLines(s.LogDir+"/"+id+".log", 100)
	if err != nil {
		http.Error(w, "log unavailable", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeJSON(w, http.StatusOK, []ledger.DiscardedNotification{})
		return
	}
	entries, err := s.Ledger.ListDiscarded(r.Context())
	if err != nil {
		http.Error(w, "ledger unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// tailLines returns the last n lines of path, per spec §4.6's "last 100
// lines" log endpoint.
func tailLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
