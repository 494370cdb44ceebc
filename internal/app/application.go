package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"retroboard/internal/api"
	"retroboard/internal/clock"
	"retroboard/internal/config"
	"retroboard/internal/database"
	"retroboard/internal/hub"
	"retroboard/internal/relay"
	"retroboard/internal/session"
	"retroboard/internal/storage"
	"retroboard/internal/websocket"
	pkgdatabase "retroboard/pkg/database"
	"retroboard/pkg/interfaces"
)

// limiterCleanupInterval is how often idle rate-limit windows are dropped
const limiterCleanupInterval = time.Minute

// Application coordinates all system components
// Store → Session → Registry → Relay → Hub → WebSocket → API → HTTP
type Application struct {
	config         *config.Config
	store          interfaces.SessionStore
	sessionManager *session.Manager
	registry       *websocket.Registry
	limiter        *relay.RateLimiter
	relay          *relay.Relay
	hub            *hub.Hub
	apiServer      *api.Server
	httpServer     *http.Server

	listener    net.Listener
	stopCleanup chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewApplication builds every component and restores the persisted session
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := newStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.Storage.Backend, err)
	}

	sessionManager := session.NewManager(store,
		session.WithDefaultTimerDuration(cfg.Retro.DefaultTimerDuration))
	if err := sessionManager.LoadActiveSession(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}

	registry := websocket.NewRegistry()
	limiter := relay.NewRateLimiter(cfg.Retro.CommandsPerMinute, clock.New())

	eventRelay, err := relay.NewRelay(sessionManager, registry, limiter)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize relay: %w", err)
	}

	messageHub := hub.NewHub(eventRelay)

	wsHandler := websocket.NewHandler(registry, messageHub, websocket.Config{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	apiServer := api.NewServer(sessionManager, store, registry,
		api.WithWebSocketHandler(http.HandlerFunc(wsHandler.HandleWebSocket)),
		api.WithCORSOrigin(cfg.HTTP.CORSOrigin),
		api.WithStats("hub", messageHub),
		api.WithStats("relay", eventRelay),
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		store:          store,
		sessionManager: sessionManager,
		registry:       registry,
		limiter:        limiter,
		relay:          eventRelay,
		hub:            messageHub,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

// newStore opens the configured session store backend
func newStore(cfg *config.StorageConfig) (interfaces.SessionStore, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return storage.NewFileStore(cfg.DataDir)

	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.SQLitePath
		dbConfig.WriteTimeout = cfg.SQLiteTimeout
		return database.NewManager(dbConfig)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store, err := storage.NewRedisStore(&storage.RedisConfig{RedisClient: client})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil

	case config.BackendMemory:
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Start starts the hub, then accepts connections. It returns once the
// listener is bound.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting retroboard: addr=%s storage=%s", app.httpServer.Addr, app.config.Storage.Backend)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	app.stopCleanup = make(chan struct{})
	app.wg.Add(1)
	go app.cleanupLimiter(app.stopCleanup)

	log.Printf("Retroboard listening on %s", listener.Addr())
	return nil
}

func (app *Application) cleanupLimiter(stop <-chan struct{}) {
	defer app.wg.Done()

	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.limiter.Cleanup()
		case <-stop:
			return
		}
	}
}

// Stop shuts down in reverse order: HTTP, hub, then the store. Later
// calls are no-ops.
func (app *Application) Stop(ctx context.Context) error {
	app.stopOnce.Do(func() { app.stop(ctx) })
	return nil
}

func (app *Application) stop(ctx context.Context) {
	log.Printf("Shutting down retroboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if app.stopCleanup != nil {
		close(app.stopCleanup)
		app.stopCleanup = nil
	}
	app.wg.Wait()

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Hub shutdown error: %v", err)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("Retroboard shutdown complete")
}

// GetAddr returns the bound listen address once started, the configured
// one before.
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler returns the root HTTP handler
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
