// Package observe serves a read-mostly HTTP view of a running navigator:
// state snapshots, a websocket state stream, the fetch journal, Prometheus
// metrics and a small command endpoint.
package observe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jask/dexnav/internal/journal"
	"github.com/jask/dexnav/internal/navigator"
	"github.com/jask/dexnav/internal/sequencer"
)

// Navigator is the part of *navigator.Controller the server drives.
type Navigator interface {
	Snapshot() navigator.State
	Subscribe() (<-chan navigator.State, func())
	Range() sequencer.Range
	InFlight() int
	GoNext() bool
	GoPrevious() bool
	Reload() bool
	ForceInvalid(id int) bool
	GoTo(id int) bool
}

// History is the part of *journal.Journal the server reads.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	Stats(ctx context.Context) (map[navigator.Outcome]int, error)
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistory exposes the journal under /journal.
func WithHistory(h History) Option { return func(s *Server) { s.history = h } }

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithInvalidID sets the id POST /commands/invalid requests when none is given.
func WithInvalidID(id int) Option { return func(s *Server) { s.invalidID = id } }

// Server is the observer HTTP server.
type Server struct {
	nav       Navigator
	history   History
	metrics   http.Handler
	logger    *slog.Logger
	invalidID int

	router chi.Router
	srv    *http.Server
}

// New builds the router. Call Start to listen, or use Handler directly.
func New(nav Navigator, opts ...Option) *Server {
	s := &Server{
		nav:       nav,
		logger:    slog.Default(),
		invalidID: 9990,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/state", s.handleState)
	r.Get("/ws", s.handleStream)
	r.Post("/commands/{name}", s.handleCommand)

	if s.history != nil {
		r.Route("/journal", func(r chi.Router) {
			r.Get("/recent", s.handleRecent)
			r.Get("/stats", s.handleStats)
		})
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr asks for port 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no WriteTimeout: /ws connections are long-lived
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observer server failed", "error", err)
		}
	}()
	s.logger.Info("observer server listening", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type stateResponse struct {
	navigator.State
	InFlight int    `json:"in_flight"`
	Range    string `json:"range"`
}

func (s *Server) snapshot() stateResponse {
	return stateResponse{
		State:    s.nav.Snapshot(),
		InFlight: s.nav.InFlight(),
		Range:    s.nav.Range().String(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := navigator.Command(chi.URLParam(r, "name"))

	id, hasID, err := queryID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var accepted bool
	switch name {
	case navigator.CommandNext:
		accepted = s.nav.GoNext()
	case navigator.CommandPrevious:
		accepted = s.nav.GoPrevious()
	case navigator.CommandReload:
		accepted = s.nav.Reload()
	case navigator.CommandInvalid:
		if !hasID {
			id = s.invalidID
		}
		accepted = s.nav.ForceInvalid(id)
	case navigator.CommandGoTo:
		if !hasID {
			s.writeError(w, http.StatusBadRequest, "goto requires ?id=")
			return
		}
		accepted = s.nav.GoTo(id)
	default:
		s.writeError(w, http.StatusNotFound, "unknown command "+strconv.Quote(string(name)))
		return
	}

	if !accepted {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error": "command suppressed",
			"state": s.snapshot(),
		})
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.snapshot())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal recent", "error", err)
		s.writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.logger.Error("journal stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func queryID(r *http.Request) (int, bool, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, errors.New("id must be an integer")
	}
	return id, true, nil
}

// requestLogger logs through slog instead of chi's stdout logger, which
// would draw over the TUI.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("observe: encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
