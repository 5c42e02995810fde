// Package server wires the file service to its backing stores and runs the
// HTTP and gRPC endpoints until the process is signalled.
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

	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/filekeeper/internal/server/cache"
	"github.com/dmitrijs2005/filekeeper/internal/server/config"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filekeeper/internal/server/rest"
	"github.com/dmitrijs2005/filekeeper/internal/server/services"
	"github.com/dmitrijs2005/filekeeper/internal/waiter"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/filekeeper/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	cache       *cache.Hint
	fileService *services.FileService
}

// NewApp connects to PostgreSQL, S3 and (when configured) Redis, waiting up
// to StartupTimeout for each, and applies pending migrations.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db}

	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	if err := waiter.Wait(ctx, "postgres", c.StartupTimeout, app.logger, app.db.PingContext); err != nil {
		return err
	}
	rm := repomanager.NewPostgresRepositoryManager()
	schema, err := rm.RunMigrations(ctx, app.db)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	app.logger.Info(ctx, "schema migrated", "version", schema)

	blobs, err := blobstore.New(ctx, blobstore.Config{
		Region:    c.S3Region,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Endpoint:  c.S3BaseEndpoint,
		Bucket:    c.S3Bucket,
		ChunkSize: c.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("blob store init error: %w", err)
	}
	if err := waiter.Wait(ctx, "s3", c.StartupTimeout, app.logger, blobs.Check); err != nil {
		return err
	}
	if err := blobs.EnsureBucket(ctx, c.S3Bucket); err != nil {
		return fmt.Errorf("default bucket: %w", err)
	}

	// a nil *cache.Hint must not end up inside the interface
	var hint services.CacheHint
	if c.RedisAddr != "" {
		app.cache = cache.New(c.RedisAddr, c.RedisPassword, c.RedisDB, c.CacheTTL)
		if err := waiter.Wait(ctx, "redis", c.StartupTimeout, app.logger, app.cache.Ping); err != nil {
			return err
		}
		hint = app.cache
	}

	app.fileService = services.NewFileService(app.db, rm, blobs, hint, app.logger, c)
	return nil
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
	s := rest.NewServer(app.config.EndpointAddrHTTP, app.logger, app.fileService, app.config.SecretKey, app.config.S3Bucket)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.fileService, app.config.HealthInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until SIGINT/SIGTERM/SIGQUIT or until ctx is cancelled, then
// releases every connection.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	var errs []error
	if app.cache != nil {
		errs = append(errs, app.cache.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(ctx, "close", "error", err)
	}
}
