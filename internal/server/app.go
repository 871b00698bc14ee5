// Package server wires the escrow application together: database, migrations,
// repositories, domain services, the event sink and its notification drain,
// and graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/teamvault/escrow/internal/logging"
	"github.com/teamvault/escrow/internal/server/archive"
	"github.com/teamvault/escrow/internal/server/config"
	"github.com/teamvault/escrow/internal/server/events"
	"github.com/teamvault/escrow/internal/server/repositories/repomanager"
	"github.com/teamvault/escrow/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	sink   *events.ChannelSink

	PolicyService      *services.PolicyService
	EscrowService      *services.EscrowService
	UserSettingService *services.UserSettingService
	RequestService     *services.RequestService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	sink := events.NewChannelSink(c.EventBufferSize)
	archiver := archive.NewS3Archiver(archive.S3Options{
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})

	policyService := services.NewPolicyService(db, rm, sink, archiver, logger)
	escrowService := services.NewEscrowService(db, rm, policyService)
	userSettingService := services.NewUserSettingService(db, rm, policyService)
	requestService := services.NewRequestService(db, rm, policyService, sink, []byte(c.SecretKey), c.RequestTokenValidityDuration)

	return &App{
		config:             c,
		logger:             logger,
		db:                 db,
		sink:               sink,
		PolicyService:      policyService,
		EscrowService:      escrowService,
		UserSettingService: userSettingService,
		RequestService:     requestService,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// drainEvents consumes domain events and logs them for the notification
// collaborators hanging off the log pipeline.
func (app *App) drainEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-app.sink.Events():
			app.logger.Info(ctx, "domain event",
				"event", e.Name, "actor_id", e.ActorID, "occurred", e.Occurred)
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.drainEvents(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
