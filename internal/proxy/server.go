package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/prompt-shield/internal/cache"
	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/metrics"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"github.com/raaihank/prompt-shield/internal/web"
	"github.com/raaihank/prompt-shield/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info
const Version = "0.1.0"

// Server represents the detection API and privacy proxy
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	detector *privacy.Detector
	cache    *cache.VerdictCache
	metrics  *metrics.Metrics
	wsHub    *websocket.Hub
	limiter  *RateLimiter
	router   *mux.Router
	server   *http.Server
	upstream map[string]*httputil.ReverseProxy
}

// Option configures optional server collaborators
type Option func(*Server)

// WithCache enables the detect verdict cache
func WithCache(c *cache.VerdictCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithMetrics records into m instead of a private registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHub publishes detection events to the dashboard hub. The caller owns
// the hub's Run loop.
func WithHub(h *websocket.Hub) Option {
	return func(s *Server) { s.wsHub = h }
}

// New creates a new proxy server instance
func New(cfg *config.Config, detector *privacy.Detector, log *logger.Logger, opts ...Option) (*Server, error) {
	if detector == nil {
		return nil, fmt.Errorf("privacy detector is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("proxy"),
		detector: detector,
		router:   mux.NewRouter(),
		upstream: make(map[string]*httputil.ReverseProxy),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.metrics.SetEntityRecognizer(detector.RecognizerName())

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit)
	}

	for name, raw := range cfg.Upstream.Targets() {
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid %s upstream URL %q", name, raw)
		}
		s.upstream[name] = s.newReverseProxy(name, target)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, s.metrics.Handler()).Methods(http.MethodGet)
	}

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
		s.router.Handle("/dashboard", s.wsHub.RequireAuth(web.Dashboard(s.config.WebSocket.Path))).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost)
	api.HandleFunc("/mask", s.handleMask).Methods(http.MethodPost)

	for _, name := range s.providers() {
		handler := s.handleProxy(name)
		sub := s.router.PathPrefix("/" + name).Subrouter()
		sub.Use(s.loggingMiddleware)
		sub.Use(s.rateLimitMiddleware)
		sub.Use(s.privacyMiddleware)
		sub.PathPrefix("/").HandlerFunc(handler)
	}
}

func (s *Server) providers() []string {
	names := make([]string, 0, len(s.upstream))
	for name := range s.upstream {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("Starting prompt-shield server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("privacy_enabled", s.config.Privacy.Enabled),
		zap.Strings("providers", s.providers()),
		zap.Bool("cache_enabled", s.cache != nil),
	)

	if s.limiter != nil {
		s.limiter.StartCleanupRoutine(time.Hour)
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping prompt-shield server")
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type infoResponse struct {
	Name             string             `json:"name"`
	Version          string             `json:"version"`
	PrivacyEnabled   bool               `json:"privacy_enabled"`
	Categories       []privacy.Category `json:"categories"`
	EntityRecognizer string             `json:"entity_recognizer"`
	CacheEnabled     bool               `json:"cache_enabled"`
	Providers        []string           `json:"providers"`
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Name:             "prompt-shield",
		Version:          Version,
		PrivacyEnabled:   s.config.Privacy.Enabled,
		Categories:       s.detector.EnabledCategories(),
		EntityRecognizer: s.detector.RecognizerName(),
		CacheEnabled:     s.cache != nil,
		Providers:        s.providers(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
