// Package server wires the Request Manager components together and runs the
// HTTP API, the gRPC health endpoint and the token purge loop until a
// termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/auth"
	"github.com/dmitrijs2005/requestmanager/internal/server/config"
	"github.com/dmitrijs2005/requestmanager/internal/server/httpapi"
	"github.com/dmitrijs2005/requestmanager/internal/server/ratelimit"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/requestmanager/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/requestmanager/internal/server/grpc"
)

// App owns the long-lived connections and services of the server.
type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	auth       *services.AuthService
	breakglass *services.BreakglassService
	health     *services.HealthService
	settings   *services.SettingsProvider
}

// NewApp opens the database, optionally migrates it, connects Redis when
// configured and builds the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(logging.Options{Format: c.LogFormat, Level: c.LogLevel})

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if c.MigrateOnStart {
		if err := rm.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db migration error: %w", err)
		}
	}

	app := &App{config: c, logger: logger, db: db}

	var throttle services.Throttle = ratelimit.Nop{}
	if c.RedisAddr != "" {
		client, err := ratelimit.Connect(ctx, ratelimit.Config{Addr: c.RedisAddr, DB: c.RedisDB})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.redis = client
		throttle = ratelimit.NewRedisThrottle(client, c.LoginAttemptLimit, c.LoginAttemptWindow)
	}

	hasher := auth.NewHasher(auth.DefaultParams)
	app.settings = services.NewSettingsProvider(db, rm)
	app.auth = services.NewAuthService(db, rm, app.settings, hasher, throttle, logger)
	app.breakglass = services.NewBreakglassService(db, rm, hasher, logger)
	app.health = services.NewHealthService(db, rm, logger)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(httpapi.Deps{
		Auth:          app.auth,
		Breakglass:    app.breakglass,
		Health:        app.health,
		Settings:      app.settings,
		Logger:        app.logger,
		SecureCookies: app.config.SecureCookies,
	})

	s := httpapi.NewServer(app.config.HTTPAddr, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.health, app.config.HealthCheckInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

// Purger removes expired sessions.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// purgeLoop calls p every interval until ctx is done. A non-positive
// interval disables it.
func purgeLoop(ctx context.Context, p Purger, interval time.Duration, log logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn(ctx, "token purge failed", "error", err)
				}
				continue
			}
			if n > 0 {
				log.Info(ctx, "expired tokens purged", "count", n)
			}
		}
	}
}

// Run blocks until a termination signal or a fatal server error, then
// releases the database and Redis connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		purgeLoop(ctx, app.auth, app.config.TokenPurgeInterval, app.logger)
	}()

	wg.Wait()

	if app.redis != nil {
		_ = app.redis.Close()
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close failed", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
