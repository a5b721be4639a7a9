// Package bootstrap wires the process-level resources shared by the
// binaries under cmd/: config, logger, database and, on request, redis.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/scentmarket-backend/api"
	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/db"
	"github.com/angelmondragon/scentmarket-backend/pkg/instance"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/migrate"
	"github.com/angelmondragon/scentmarket-backend/pkg/redis"
)

// Runtime is a started process. Close releases resources in reverse order
// of acquisition.
type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

type options struct {
	redis bool
}

// Option adjusts Start.
type Option func(*options)

// WithRedis connects redis after the database.
func WithRedis() Option {
	return func(o *options) { o.redis = true }
}

// Start loads .env and config, builds the logger, opens the database and
// applies dev migrations. On error everything opened so far is closed.
func Start(ctx context.Context, kind string, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(ctx, ".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	rt := &Runtime{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}

	if err := rt.open(ctx, o); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, o options) error {
	dbClient, err := db.New(ctx, rt.Config.DB, rt.Config.FeatureFlags.UseSQLite, rt.Logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	rt.DB = dbClient
	rt.onClose("database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	if o.redis {
		redisClient, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rt.Redis = redisClient
		rt.onClose("redis", redisClient.Close)
	}
	return nil
}

func (rt *Runtime) onClose(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

// Close runs registered closers last-in first-out and logs their failures.
func (rt *Runtime) Close() {
	var errs error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	rt.closers = nil
	if errs != nil {
		rt.Logger.Error(context.Background(), "shutdown left resources open", errs)
	}
}

// LogContext tags ctx with the fields every line from this process carries.
func (rt *Runtime) LogContext(ctx context.Context) context.Context {
	return rt.Logger.WithFields(ctx, map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": rt.Kind,
		"instance":    instance.GetID(),
	})
}

// Fatal logs err and exits. Deferred Close calls do not run.
func Fatal(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		logg = logger.New(logger.Options{})
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

// ServeMetrics exposes reg on /metrics for worker binaries that have no
// other HTTP surface. The returned func stops the server.
func (rt *Runtime) ServeMetrics(ctx context.Context, reg *prometheus.Registry) func() {
	mux := chi.NewRouter()
	mux.Handle("/metrics", metrics.Handler(reg))
	server := api.NewServer(rt.Config, os.Getenv("PORT"), mux)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error(ctx, "metrics server stopped", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Error(ctx, "metrics server shutdown failed", err)
		}
	}
}
