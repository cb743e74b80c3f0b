// ABOUTME: App wires the cache, event bus, API client, session manager and conversation store
// ABOUTME: Owns startup ordering (restore session, then conversations) and shutdown

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/config"
	"github.com/2389/compliai/internal/conversation"
	"github.com/2389/compliai/internal/events"
	"github.com/2389/compliai/internal/session"
	"github.com/2389/compliai/internal/store"
)

// App is the client process: one session, one conversation store.
type App struct {
	config *config.Config
	logger *slog.Logger

	cache    store.Cache
	bus      *events.Bus
	client   *client.Client
	sessions *session.Manager
	chat     *conversation.Store
}

// New opens the configured cache and builds every component.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	cache, err := OpenCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	return NewWithCache(cfg, cache, logger), nil
}

// NewWithCache builds the components over an already-open cache, which the
// App then owns and closes.
func NewWithCache(cfg *config.Config, cache store.Cache, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	bus := events.NewBus(logger)
	api := client.New(cfg.Server.URL,
		client.WithTimeout(cfg.Server.Timeout),
		client.WithLogger(logger),
	)

	sessions := session.NewManager(api, cache, bus, logger)
	sessions.SetValidationInterval(cfg.Session.ValidationInterval)
	api.SetTokenSource(sessions)

	return &App{
		config:   cfg,
		logger:   logger.With("component", "app"),
		cache:    cache,
		bus:      bus,
		client:   api,
		sessions: sessions,
		chat:     conversation.NewStore(api, cache, bus, logger),
	}
}

// OpenCache opens the cache backend named by cfg.Driver.
func OpenCache(cfg config.CacheConfig) (store.Cache, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryCache(), nil
	case config.DriverSQLite, config.DriverSQLite3:
		c, err := store.NewSQLiteCacheWithDriver(cfg.Driver, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// Start restores the persisted session and, when it survives, the persisted
// conversation state followed by a refresh of the conversation list.
// Conversation state left behind without a session is discarded.
func (a *App) Start(ctx context.Context) {
	a.sessions.Init(ctx)

	if !a.sessions.IsAuthenticated() {
		a.chat.ClearAllData()
		a.logger.Debug("started without a session")
		return
	}

	a.chat.Init(ctx)
	if !a.chat.LoadConversations(ctx) {
		a.logger.Warn("refreshing conversations at startup failed", "error", a.chat.LastError())
	}
	a.logger.Info("session resumed", "user_id", a.sessions.Session().UserID)
}

// Close stops background validation, detaches the components from the bus
// and closes the cache.
func (a *App) Close() error {
	a.sessions.Close()
	a.chat.Close()

	var errs []error
	if err := a.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing cache: %w", err))
	}
	return errors.Join(errs...)
}

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Conversations returns the conversation store.
func (a *App) Conversations() *conversation.Store { return a.chat }

// Bus returns the event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Client returns the API client.
func (a *App) Client() *client.Client { return a.client }

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.config }
