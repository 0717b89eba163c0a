// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opslink/statuswatch/internal/catalog"
	"github.com/opslink/statuswatch/internal/checks"
	"github.com/opslink/statuswatch/internal/config"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/identity"
	"github.com/opslink/statuswatch/internal/incidents"
	"github.com/opslink/statuswatch/internal/maintenance"
	"github.com/opslink/statuswatch/internal/monitor"
	"github.com/opslink/statuswatch/internal/notifications"
	"github.com/opslink/statuswatch/internal/notifications/discord"
	"github.com/opslink/statuswatch/internal/notifications/mattermost"
	"github.com/opslink/statuswatch/internal/pkg/ctxlog"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
	"github.com/opslink/statuswatch/internal/pkg/redis"
	"github.com/opslink/statuswatch/internal/status"
	"github.com/opslink/statuswatch/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *database
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server
	scheduler     *monitor.Scheduler
	notifier      *notifications.Notifier

	background       context.Context
	backgroundCancel context.CancelFunc
	monitorDone      chan struct{}
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := openDatabase(connectCtx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	background, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		background:       background,
		backgroundCancel: backgroundCancel,
	}

	if cfg.Cache.RedisURL != "" {
		client, err := redis.NewClient(connectCtx, cfg.Cache.RedisURL)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.redis = client
	}

	go app.collectDBMetrics(background)

	router, err := app.setupRouter(background)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the monitor loop and the HTTP servers. It blocks until the main server stops.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.monitorDone = make(chan struct{})
		go func() {
			defer close(a.monitorDone)
			a.scheduler.Run(a.background)
		}()
	} else {
		a.logger.Warn("no services configured, monitor is idle")
	}

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
// HTTP servers stop first, then the monitor, then queued notifications are delivered.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.backgroundCancel()
	if a.monitorDone != nil {
		select {
		case <-a.monitorDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for monitor: %w", ctx.Err()))
		}
	}

	a.close()

	return errors.Join(errs...)
}

func (a *App) close() {
	a.backgroundCancel()

	if a.notifier != nil {
		a.notifier.Stop()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	a.db.recordMetrics()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.db.recordMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the monitor scheduler, nil when no services are configured.
// Tests drive ticks through it directly.
func (a *App) Scheduler() *monitor.Scheduler {
	return a.scheduler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	catalogService, err := catalog.New(a.config.Monitor.Services)
	if err != nil {
		return nil, fmt.Errorf("load service catalog: %w", err)
	}

	repos := a.db.repositories()

	checksService := checks.NewService(repos.checks)
	maintenanceService := maintenance.NewService(repos.maintenance, catalogService)

	var cache status.Cache
	if a.redis != nil {
		cache = status.NewRedisCache(a.redis, a.config.Cache.StatusTTL)
	}
	invalidator := status.NewCacheInvalidator(cache)
	maintenanceService.SetInvalidator(invalidator)

	opts := []incidents.Option{incidents.WithInvalidator(invalidator)}

	notifier, err := a.setupNotifier(ctx, catalogService)
	if err != nil {
		return nil, err
	}
	if notifier != nil {
		a.notifier = notifier
		opts = append(opts, incidents.WithNotifier(notifier))
	}

	if a.config.Monitor.MaintenancePolicy == config.MaintenancePolicySuppress {
		opts = append(opts, incidents.WithMaintenanceSuppression(maintenanceService))
	}

	incidentsService := incidents.NewService(repos.incidents, checksService, catalogService, opts...)

	statusService := status.NewService(status.Config{
		HistoryWindow:  a.config.Status.HistoryWindow,
		IncidentWindow: a.config.Status.IncidentWindow,
	}, catalogService, checksService, incidentsService, maintenanceService, cache)

	identityService := identity.NewService(identity.Config{
		AdminEmail:        a.config.Admin.Email,
		AdminPasswordHash: a.config.Admin.PasswordHash,
		SecretKey:         a.config.JWT.SecretKey,
		TokenDuration:     a.config.JWT.AccessTokenDuration,
	})
	if !identityService.Enabled() {
		slog.Warn("admin credentials are not configured: admin API will reject every request")
	}

	if len(a.config.Monitor.Services) > 0 {
		poller := monitor.NewPanelPoller(monitor.PanelConfig{
			BaseURL:   a.config.Monitor.PanelURL,
			APIKey:    a.config.Monitor.APIKey,
			Timeout:   a.config.Monitor.PollTimeout,
			RateLimit: a.config.Monitor.PanelRateLimit,
			Burst:     a.config.Monitor.Concurrency,
		})

		var pruner monitor.Pruner
		if a.config.Monitor.Retention > 0 {
			pruner = checksService
		}

		a.scheduler = monitor.NewScheduler(monitor.SchedulerConfig{
			Interval:    a.config.Monitor.Interval,
			Concurrency: a.config.Monitor.Concurrency,
			Retention:   a.config.Monitor.Retention,
		}, catalogService.List(), poller, incidentsService, pruner)
	}

	catalogHandler := catalog.NewHandler(catalogService)
	checksHandler := checks.NewHandler(checksService, catalogService, a.config.Status.HistoryWindow)
	statusHandler := status.NewHandler(statusService)
	incidentsHandler := incidents.NewHandler(incidentsService)
	maintenanceHandler := maintenance.NewHandler(maintenanceService)
	identityHandler := identity.NewHandler(identityService)

	r.Route("/api/v1", func(r chi.Router) {
		catalogHandler.RegisterRoutes(r)
		checksHandler.RegisterRoutes(r)
		statusHandler.RegisterRoutes(r)
		incidentsHandler.RegisterPublicRoutes(r)
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))
			r.Use(httputil.RequireRole(domain.RoleAdmin))

			identityHandler.RegisterProtectedRoutes(r)
			incidentsHandler.RegisterRoutes(r)
			maintenanceHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

// setupNotifier builds and starts the notifier. It returns nil when notifications
// are disabled or no webhook is configured.
func (a *App) setupNotifier(ctx context.Context, names notifications.ServiceNameResolver) (*notifications.Notifier, error) {
	cfg := a.config.Notifications

	var senders []notifications.Sender
	if cfg.Discord.WebhookURL != "" {
		senders = append(senders, discord.NewSender(discord.Config{
			WebhookURL: cfg.Discord.WebhookURL,
			Username:   cfg.Discord.Username,
			Timeout:    cfg.SendTimeout,
		}))
	}
	if cfg.Mattermost.WebhookURL != "" {
		senders = append(senders, mattermost.NewSender(mattermost.Config{
			WebhookURL: cfg.Mattermost.WebhookURL,
			Username:   cfg.Mattermost.Username,
			IconURL:    cfg.Mattermost.IconURL,
			Timeout:    cfg.SendTimeout,
		}))
	}

	slog.Info("notifications configured",
		"enabled", cfg.Enabled,
		"discord_enabled", cfg.Discord.WebhookURL != "",
		"mattermost_enabled", cfg.Mattermost.WebhookURL != "",
	)

	if !cfg.Enabled || len(senders) == 0 {
		return nil, nil
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	notifier := notifications.NewNotifier(notifications.Config{
		QueueSize:   cfg.QueueSize,
		NumWorkers:  cfg.NumWorkers,
		SendTimeout: cfg.SendTimeout,
		BaseURL:     cfg.BaseURL,
	}, renderer, names, senders...)
	notifier.Start(ctx)

	return notifier, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Cache unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
