package web

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nyaruka/librato"
	"github.com/nyaruka/partition/runtime"
)

// Server is the admin HTTP server which exposes partition resolution and routed writes for registered models
type Server struct {
	rt *runtime.Runtime

	httpServer *http.Server
	router     *chi.Mux
	waitGroup  *sync.WaitGroup
	stopChan   chan bool
}

// NewServer creates a new server for the given runtime. The server will have to be started afterwards.
func NewServer(rt *runtime.Runtime) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Compress(5))
	router.Use(middleware.StripSlashes)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	s := &Server{rt: rt, router: router, waitGroup: &sync.WaitGroup{}, stopChan: make(chan bool)}

	router.NotFound(s.handle404)
	router.MethodNotAllowed(s.handle405)
	router.Get("/", s.handleIndex)
	router.Get("/status", s.handleStatus)

	router.Route("/models/{model}", func(r chi.Router) {
		r.Post("/resolve", s.handleResolve)
		r.Get("/records", s.handleList)
		r.Post("/records", s.handleCreate)
		r.Patch("/records", s.handleUpdate)
		r.Delete("/records", s.handleDelete)
	})

	return s
}

// Handler returns the HTTP handler for this server
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the server listening for requests and reporting stats
func (s *Server) Start() {
	// configure librato if we have configuration options for it
	host, _ := os.Hostname()
	if s.rt.Config.LibratoUsername != "" {
		librato.Configure(s.rt.Config.LibratoUsername, s.rt.Config.LibratoToken, host, time.Second, s.waitGroup)
		librato.Start()
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.rt.Config.Address, s.rt.Config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("error listening", "comp", "server", "state", "stopping", "error", err)
		}
	}()

	// start our heartbeat
	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()

		for {
			select {
			case <-s.stopChan:
				return
			case <-time.After(time.Minute):
				s.ReportStats()
			}
		}
	}()

	slog.Info("server listening", "comp", "server", "port", s.rt.Config.Port, "state", "started", "version", s.rt.Config.Version)
}

// Stop stops the server, returning only after all requests have finished
func (s *Server) Stop() {
	log := slog.With("comp", "server")
	log.Info("stopping server", "state", "stopping")

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		log.Error("error shutting down server", "error", err)
	}

	close(s.stopChan)

	// report what's left and stop our librato sender
	s.ReportStats()
	librato.Stop()

	s.waitGroup.Wait()

	log.Info("server stopped", "state", "stopped")
}

// ReportStats extracts the stats collected since the last report and sends them to librato as gauges
func (s *Server) ReportStats() map[string]float64 {
	if s.rt.Stats == nil {
		return nil
	}

	gauges := s.rt.Stats.Extract().Gauges()
	for name, value := range gauges {
		librato.Gauge(name, value)
	}

	slog.Debug("reported stats", "comp", "server", "statements", gauges["partition.statements"])
	return gauges
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	buf.WriteString(splash)
	buf.WriteString(s.rt.Config.Version)
	buf.WriteString("\n\n")

	for _, name := range s.rt.Models.Names() {
		m, _ := s.rt.Models.Get(name)
		if m.IsPartitioned() {
			fmt.Fprintf(&buf, "%-20s %s by %s\n", name, m.Table(), strings.Join(m.PartitionKeys(), ", "))
		} else {
			fmt.Fprintf(&buf, "%-20s %s\n", name, m.Table())
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.rt.Config.StatusUsername != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.rt.Config.StatusUsername || pass != s.rt.Config.StatusPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="Authenticate"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorised.\n"))
			return
		}
	}

	problems := s.rt.Health(r.Context())
	if problems == nil {
		problems = []string{}
	}

	writeJSON(w, http.StatusOK, &statusResponse{
		Version:  s.rt.Config.Version,
		Problems: problems,
		Stats:    s.rt.Stats.Snapshot(),
	})
}

func (s *Server) handle404(w http.ResponseWriter, r *http.Request) {
	slog.Info("not found", "url", r.URL.String(), "method", r.Method, "resp_status", "404")
	writeJSON(w, http.StatusNotFound, &errorResponse{Error: fmt.Sprintf("not found: %s", r.URL.String())})
}

func (s *Server) handle405(w http.ResponseWriter, r *http.Request) {
	slog.Info("invalid method", "url", r.URL.String(), "method", r.Method, "resp_status", "405")
	writeJSON(w, http.StatusMethodNotAllowed, &errorResponse{Error: fmt.Sprintf("method not allowed: %s", r.Method)})
}

var splash = `
                  _   _ _   _                 _ 
  _ __   __ _ _ _| |_(_) |_(_) ___  _ __   __| |
 | '_ \ / _' | '_| __| | __| |/ _ \| '_ \ / _' |
 | |_) | (_| | | | |_| | |_| | (_) | | | | (_| |
 | .__/ \__,_|_|  \__|_|\__|_|\___/|_| |_|\__,_|
 |_|                                           v`
