// Package httpapi serves the read-only status surface: health, a JSON
// status document, Prometheus metrics and a websocket stream of bus events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"matchbot/internal/eventbus"
	"matchbot/internal/runtime/supervisor"
	"matchbot/internal/task/engine"
	"matchbot/internal/task/scheduler"
	"matchbot/internal/tracker"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

type Config struct {
	Addr           string
	AllowedOrigins []string
	// StaleAfter makes /healthz fail when the last good tick is older.
	// Zero disables the check.
	StaleAfter time.Duration
	// Pprof mounts the runtime profiler under /debug/pprof.
	Pprof bool
}

type StatusSource interface {
	Status() tracker.Status
}

type EngineSource interface {
	Snapshot() engine.Snapshot
}

type SchedulerSource interface {
	Snapshot() scheduler.Snapshot
}

// Deps are all optional; missing sources are left out of /api/status.
type Deps struct {
	Tracker     StatusSource
	Engine      EngineSource
	Scheduler   SchedulerSource
	Supervisors *supervisor.Registry
	Metrics     *metrics.Manager
	Bus         eventbus.Bus
}

type Server struct {
	cfg      Config
	deps     Deps
	log      logx.Logger
	hub      *Hub
	upgrader websocket.Upgrader
	started  time.Time
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		hub:     NewHub(deps.Bus, log.With(logx.Comp("httpapi.ws"))),
		started: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/supervisors", s.handleSupervisors).Methods(http.MethodGet)

	if s.deps.Metrics != nil {
		router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	if s.cfg.Pprof {
		dbg := router.PathPrefix("/debug/pprof").Subrouter()
		dbg.HandleFunc("/cmdline", pprof.Cmdline)
		dbg.HandleFunc("/profile", pprof.Profile)
		dbg.HandleFunc("/symbol", pprof.Symbol)
		dbg.HandleFunc("/trace", pprof.Trace)
		dbg.PathPrefix("/").HandlerFunc(pprof.Index)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := s.allowedOrigins()
	return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

// Run listens on cfg.Addr and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down within five seconds.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go func() { _ = s.hub.Run(hubCtx) }()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Warn("http api shutdown", logx.Err(err))
		return err
	}
	s.log.Info("http api stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status": "ok",
		"time":   time.Now().Unix(),
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	code := http.StatusOK
	if s.deps.Tracker != nil && s.cfg.StaleAfter > 0 {
		last := s.deps.Tracker.Status().LastGoodTick
		if !last.IsZero() && time.Since(last) > s.cfg.StaleAfter {
			body["status"] = "stale"
			body["last_good_tick"] = last
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, body)
}

type statusDoc struct {
	Time          time.Time                      `json:"time"`
	Uptime        string                         `json:"uptime"`
	Tracker       *tracker.Status                `json:"tracker,omitempty"`
	Engine        *engine.Snapshot               `json:"engine,omitempty"`
	Scheduler     *scheduler.Snapshot            `json:"scheduler,omitempty"`
	Supervisors   map[string]supervisor.Snapshot `json:"supervisors,omitempty"`
	WSClients     int                            `json:"ws_clients"`
	EventsDropped uint64                         `json:"events_dropped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	doc := statusDoc{
		Time:          time.Now(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Supervisors:   s.deps.Supervisors.Snapshots(),
		WSClients:     s.hub.Clients(),
		EventsDropped: eventbus.Dropped(s.deps.Bus),
	}
	if s.deps.Tracker != nil {
		st := s.deps.Tracker.Status()
		doc.Tracker = &st
	}
	if s.deps.Engine != nil {
		snap := s.deps.Engine.Snapshot()
		doc.Engine = &snap
	}
	if s.deps.Scheduler != nil {
		snap := s.deps.Scheduler.Snapshot()
		doc.Scheduler = &snap
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSupervisors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"names":       s.deps.Supervisors.Names(),
		"supervisors": s.deps.Supervisors.Snapshots(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws upgrade failed", logx.Err(err))
		return
	}
	if !s.hub.attach(conn) {
		_ = conn.Close()
	}
}
