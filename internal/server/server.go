// Package server serves a hydrated site for local preview and tells connected
// browsers to reload after every rebuild.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/conneroisu/hydrate/internal/logging"
	"github.com/conneroisu/hydrate/internal/site"
	"github.com/conneroisu/hydrate/internal/version"
)

// Routes under this prefix belong to the preview server, not the site.
const (
	ReloadPath   = "/_hydrate/reload"
	HealthPath   = "/_hydrate/health"
	ManifestPath = "/_hydrate/manifest"
	ReportPath   = "/_hydrate/report"
	MetricsPath  = "/_hydrate/metrics"
)

// Message types sent over the reload socket.
const (
	MessageReload     = "reload"
	MessageBuildError = "build_error"
)

// Config configures a Server.
type Config struct {
	Host string
	Port int
	// Root is the directory served, normally the build output directory.
	Root string
	// Fs backs Root. Defaults to the OS filesystem.
	Fs afero.Fs
	// Dev appends the live reload script to served pages.
	Dev bool
	// AllowedOrigins are extra origin patterns accepted by the reload socket.
	AllowedOrigins []string
	// Gatherer exposes build metrics. Nil disables the metrics route.
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	BuildID   string    `json:"build_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Server serves the site and the reload socket.
type Server struct {
	config *Config
	fs     afero.Fs
	logger logging.Logger
	router chi.Router

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	done         chan struct{}

	files http.Handler

	manifestMutex sync.RWMutex
	manifest      *site.Manifest
	lastError     error

	shutdownOnce sync.Once
}

// New creates a server. Nothing listens until Start.
func New(cfg *Config) *Server {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		config:     cfg,
		fs:         fs,
		logger:     logger.WithComponent("server"),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
	s.files = http.FileServer(afero.NewHttpFs(fs).Dir(cfg.Root))
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get(ReloadPath, s.handleWebSocket)
	r.Get(HealthPath, s.handleHealth)
	r.Get(ManifestPath, s.handleManifest)
	r.Get(ReportPath, s.handleReport)
	if s.config.Gatherer != nil {
		r.Handle(MetricsPath, promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/*", s.handleStatic)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start runs the websocket hub and serves HTTP until ctx is done or the
// server is shut down.
func (s *Server) Start(ctx context.Context) error {
	go s.runWebSocketHub(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Preview server listening", "addr", "http://"+s.Addr(), "root", s.config.Root)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Notify records the outcome of a build and tells browsers about it. m may
// be nil when the build failed before producing a manifest.
func (s *Server) Notify(m *site.Manifest, buildErr error) {
	s.manifestMutex.Lock()
	if m != nil {
		s.manifest = m
	}
	s.lastError = buildErr
	s.manifestMutex.Unlock()

	msg := UpdateMessage{Type: MessageReload, Timestamp: time.Now()}
	if m != nil {
		msg.BuildID = m.BuildID
	}
	if buildErr != nil {
		msg.Type = MessageBuildError
		msg.Content = buildErr.Error()
	}
	s.broadcastMessage(msg)
}

// Manifest returns the manifest of the last build.
func (s *Server) Manifest() *site.Manifest {
	s.manifestMutex.RLock()
	defer s.manifestMutex.RUnlock()
	return s.manifest
}

func (s *Server) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to marshal message")
		data = []byte(`{"type":"reload"}`)
	}
	select {
	case s.broadcast <- data:
	default:
		s.logger.Warn(context.Background(), nil, "Dropping reload message, hub is busy")
	}
}

// Shutdown gracefully shuts down the server and closes every socket.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")
		close(s.done)

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMutex.RLock()
	clients := len(s.clients)
	s.clientsMutex.RUnlock()

	s.manifestMutex.RLock()
	status := "healthy"
	lastError := ""
	if s.lastError != nil {
		status = "degraded"
		lastError = s.lastError.Error()
	}
	s.manifestMutex.RUnlock()

	health := map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"clients":    clients,
		"last_error": lastError,
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m := s.Manifest()
	if m == nil {
		http.Error(w, "no build yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	m := s.Manifest()
	if m == nil {
		http.Error(w, "no build yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := site.Report(m).Render(r.Context(), w); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to render report")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
