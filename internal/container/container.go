package container

import (
	"fmt"
	"log/slog"
	"net/http"

	appMiddleware "github.com/FACorreiaa/citizen-portal/app/middleware"
	"github.com/FACorreiaa/citizen-portal/app/observability/metrics"
	"github.com/FACorreiaa/citizen-portal/config"
	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/api/auth"
	"github.com/FACorreiaa/citizen-portal/internal/api/user"
	"github.com/FACorreiaa/citizen-portal/internal/guard"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/session"
	"github.com/FACorreiaa/citizen-portal/internal/store"
)

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Client  *api.Client
	Cache   *querycache.Cache
	Store   *store.Store
	History *guard.History
	Guard   *guard.Guard
	Hooks   *session.Hooks

	AuthService *auth.AuthServiceImpl
	UserService *user.UserServiceImpl
	AuthHandler *auth.HandlerImpl
	UserHandler *user.HandlerImpl

	unwatch func()
}

// NewContainer initializes and returns a new dependency container.
// httpClient may be nil, in which case the API client builds its own.
func NewContainer(cfg *config.Config, logger *slog.Logger, httpClient *http.Client) (*Container, error) {
	metrics.InitAppMetrics()

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: httpClient,
		Timeout:    cfg.API.Timeout,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to create API client", slog.Any("error", err))
		return nil, fmt.Errorf("api client: %w", err)
	}

	retry := querycache.DefaultRetry()
	retry.MaxRetries = cfg.Cache.MaxRetries
	retry.ShouldRetry = api.IsTransient

	cache := querycache.New(querycache.Config{
		StaleTime: cfg.Cache.StaleTime,
		GCTime:    cfg.Cache.GCTime,
		Retry:     retry,
		Logger:    logger,
		Metrics:   metrics.Get(),
	})

	st := store.New(logger)
	history := guard.NewHistory(api.LoginPath)
	hooks := session.New(cache, st, history, logger)
	g := guard.New(history, api.LoginPath, logger)

	validator := api.NewValidator()

	authRepo := auth.NewRESTAuthRepo(client, logger)
	authService := auth.NewAuthService(authRepo, cache, hooks, validator, logger)
	authHandler := auth.NewHandlerImpl(authService, st, history, hooks, client, logger)

	userRepo := user.NewRESTUserRepo(client, logger)
	userService := user.NewUserService(userRepo, cache, st, hooks, validator, logger).WithRetry(retry)
	userHandler := user.NewHandlerImpl(userService, st, logger)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Client:      client,
		Cache:       cache,
		Store:       st,
		History:     history,
		Guard:       g,
		Hooks:       hooks,
		AuthService: authService,
		UserService: userService,
		AuthHandler: authHandler,
		UserHandler: userHandler,
		unwatch:     g.Watch(cache, session.CurrentUserKey),
	}, nil
}

// GuardMiddleware protects the portal's private screens.
func (c *Container) GuardMiddleware() func(http.Handler) http.Handler {
	wait := c.Config.Guard.Wait
	if wait <= 0 {
		wait = appMiddleware.DefaultGuardWait
	}
	return appMiddleware.Guard(appMiddleware.GuardConfig{
		Guard:   c.Guard,
		Session: c.UserService,
		History: c.History,
		Wait:    wait,
		Logger:  c.Logger,
	})
}

// Close detaches the session hooks and the guard from the cache.
func (c *Container) Close() {
	if c.unwatch != nil {
		c.unwatch()
	}
	c.Hooks.Close()
	c.Cache.Clear()
	c.Logger.Debug("Container closed")
}
