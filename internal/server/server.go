package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/entityscan/entityscan/internal/cache"
	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/extract"
	"github.com/entityscan/entityscan/internal/logger"
	"github.com/entityscan/entityscan/internal/store"
	"github.com/entityscan/entityscan/internal/web"
	"github.com/entityscan/entityscan/internal/websocket"
	"go.uber.org/zap"
)

// Server represents the main extraction API server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	extractor *extract.Extractor
	cache     *cache.ResultCache
	store     *store.MatchStore
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiters  *clientLimiters

	startTime        time.Time
	totalRequests    int64
	totalExtractions int64
	done             chan struct{}

	extractorMu sync.RWMutex
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	extractor, err := extract.New(cfg.Extractor, log.WithComponent("extract"))
	if err != nil {
		return nil, fmt.Errorf("failed to create entity extractor: %w", err)
	}

	// The cache is a pure-result memo; the server runs without it.
	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		resultCache, err = cache.New(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
			resultCache = nil
		}
	}

	var matchStore *store.MatchStore
	if cfg.Store.Enabled {
		matchStore, err = store.New(&cfg.Store, log.WithComponent("store").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create match store: %w", err)
		}
	}

	wsHub := websocket.NewHub(&cfg.WebSocket, log.WithComponent("websocket").Logger)

	router := mux.NewRouter()

	server := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		extractor: extractor,
		cache:     resultCache,
		store:     matchStore,
		router:    router,
		wsHub:     wsHub,
		limiters:  newClientLimiters(),
		startTime: time.Now(),
		done:      make(chan struct{}),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket endpoint for dashboard
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	// Extraction API
	apiRouter := s.router.PathPrefix("/v1").Subrouter()
	apiRouter.Use(s.loggingMiddleware)
	apiRouter.Use(s.rateLimitMiddleware)
	apiRouter.HandleFunc("/extract", s.handleExtract).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting EntityScan server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("cache_enabled", s.cache != nil),
		zap.Bool("store_enabled", s.store != nil),
	)

	go s.wsHub.Run()
	go s.reportSystemStatus()

	return s.server.ListenAndServe()
}

// reportSystemStatus periodically pushes server health to the dashboard feed
func (s *Server) reportSystemStatus() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			extractor := s.getExtractor()
			activeRules := 0
			for _, entityType := range extract.EntityTypes {
				if extractor.IsEnabled(entityType) {
					activeRules++
				}
			}

			hubStats := s.wsHub.GetStats()
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data: websocket.SystemStatusEvent{
					Status:           "healthy",
					Uptime:           time.Since(s.startTime).String(),
					TotalRequests:    atomic.LoadInt64(&s.totalRequests),
					TotalExtractions: atomic.LoadInt64(&s.totalExtractions),
					ActiveRules:      activeRules,
					ConnectedClients: int(hubStats.ActiveConnections),
				},
			})
		}
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping EntityScan server")

	close(s.done)

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("Failed to close result cache", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close match store", zap.Error(err))
		}
	}

	return nil
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

// getExtractor returns the current extractor; ReloadConfig may swap it at
// any time.
func (s *Server) getExtractor() *extract.Extractor {
	s.extractorMu.RLock()
	defer s.extractorMu.RUnlock()
	return s.extractor
}

func (s *Server) extractorEnabled() bool {
	s.extractorMu.RLock()
	defer s.extractorMu.RUnlock()
	return s.config.Extractor.Enabled
}

// ReloadConfig applies a changed extractor configuration to the running
// server. Settings that need a restart (port, timeouts, backends) are
// ignored here.
func (s *Server) ReloadConfig(newCfg *config.Config) {
	extractor, err := extract.New(newCfg.Extractor, s.logger)
	if err != nil {
		s.logger.Error("Rejected reloaded extractor configuration", zap.Error(err))
		return
	}

	s.extractorMu.Lock()
	s.extractor = extractor
	s.config.Extractor = newCfg.Extractor
	s.extractorMu.Unlock()

	s.logger.Info("Extractor configuration reloaded",
		zap.Strings("detectors", newCfg.Extractor.Detectors),
		zap.Bool("enabled", newCfg.Extractor.Enabled),
	)
}
