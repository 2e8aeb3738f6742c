// Package server assembles the tunevault HTTP service: it opens the database,
// runs migrations, builds the object store client, and serves the API until
// the process is signalled to stop.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tunevault/internal/logging"
	"github.com/dmitrijs2005/tunevault/internal/server/auth"
	"github.com/dmitrijs2005/tunevault/internal/server/config"
	apihttp "github.com/dmitrijs2005/tunevault/internal/server/http"
	"github.com/dmitrijs2005/tunevault/internal/server/metrics"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tunevault/internal/server/services"
	"github.com/dmitrijs2005/tunevault/internal/server/storage"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	// Uploads of large files over slow links need generous body timeouts.
	readTimeout      = 10 * time.Minute
	writeTimeout     = 10 * time.Minute
	idleTimeout      = 2 * time.Minute
	limiterSweepTick = 3 * time.Minute
)

// insecureDefaultSecret is the development signing key from LoadDefaults.
const insecureDefaultSecret = "secretKey"

var openDB = sql.Open

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	bucket      bucketEnsurer
	limiter     *apihttp.RateLimiter
	handler     http.Handler
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.Env, c.LogLevel)

	if logging.IsProd(c.Env) && c.SecretKey == insecureDefaultSecret {
		return nil, errors.New("refusing to start in prod with the default secret key")
	}

	db, err := openDB(repomanager.DriverName, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	objects, err := storage.NewS3Store(context.Background(), c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	mx := metrics.New()
	codec := auth.NewCodec([]byte(c.SecretKey))

	userService := services.NewUserService(db, rm, codec, c)
	fileService := services.NewFileService(db, rm, objects, c, mx, logger)
	gate := auth.NewGate(codec, rm.Users(db), mx, logger)
	limiter := apihttp.NewRateLimiter(c.RateLimitPerMinute, 0)

	h := apihttp.NewHandler(apihttp.HandlerConfig{
		MaxUploadBytes:     c.MaxUploadBytes,
		CORSAllowedOrigins: c.CORSAllowedOrigins,
		HealthCheck:        db.PingContext,
	}, fileService, userService, gate, limiter, mx, logger)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		bucket:      objects,
		limiter:     limiter,
		handler:     h.Router(),
	}, nil
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
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "http server failed", "error", err)
		}
		cancelFunc()
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "http server shutdown", "error", err)
	}
	app.logger.Info(ctx, "http server stopped")
}

// Run migrates the schema, then serves until ctx is cancelled or a
// termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if err := app.bucket.EnsureBucket(ctx); err != nil {
		app.logger.Warn(ctx, "object bucket check failed", "error", err)
	}

	var wg sync.WaitGroup

	if app.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.limiter.Run(ctx, limiterSweepTick)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
	return nil
}
