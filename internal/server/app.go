// Package server initializes and runs the application: it connects storage,
// runs migrations, wires the command and event handlers onto the message bus,
// and dispatches the startup event that provisions existing resources.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/spraakbanken/karp-backend/internal/logging"
	"github.com/spraakbanken/karp-backend/internal/server/auth"
	"github.com/spraakbanken/karp-backend/internal/server/bus"
	"github.com/spraakbanken/karp-backend/internal/server/config"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/export"
	"github.com/spraakbanken/karp-backend/internal/server/index"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/repomanager"
	"github.com/spraakbanken/karp-backend/internal/server/schema"
	"github.com/spraakbanken/karp-backend/internal/server/services"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	bus      *bus.MessageBus
	auth     *auth.Service
	resolver *services.ReferenceResolver
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	// The database may still be coming up when we are started alongside it.
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	mgr := repomanager.NewPostgresRepositoryManager()
	if err := mgr.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	resourceUOW := uow.NewSQLResourceUnitOfWork(db, mgr)
	entryUOW := uow.NewSQLEntryUnitOfWork(db, mgr)
	schemas := schema.NewValidatorRegistry()

	var busOpts []bus.Option
	if cfg.RaiseOnAllErrors {
		busOpts = append(busOpts, bus.WithRaiseOnAllErrors())
	}
	b := bus.NewMessageBus(logger, busOpts...)

	exporter := export.NewS3Exporter(export.Options{
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		BaseEndpoint: cfg.S3BaseEndpoint,
		Bucket:       cfg.S3Bucket,
	})

	services.Register(b, services.Handlers{
		Entries:   services.NewEntryHandlers(entryUOW, schemas, logger),
		Resources: services.NewResourceHandlers(resourceUOW, schemas, logger),
		Index:     services.NewIndexHandlers(entryUOW, index.NewLogService(logger), logger),
		Export:    services.NewExportHandlers(entryUOW, exporter, logger),
	})

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		bus:      b,
		auth:     auth.NewService([]byte(cfg.SecretKey), resourceUOW),
		resolver: services.NewReferenceResolver(resourceUOW, entryUOW),
	}, nil
}

// Bus exposes the message bus for the transport layer.
func (app *App) Bus() *bus.MessageBus { return app.bus }

// Auth exposes the authentication service for the transport layer.
func (app *App) Auth() *auth.Service { return app.auth }

// Resolver exposes the reference resolver for the transport layer.
func (app *App) Resolver() *services.ReferenceResolver { return app.resolver }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	if err := app.bus.Handle(ctx, domain.AppStarted{Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("startup dispatch error: %w", err)
	}

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")
	return app.db.Close()
}
