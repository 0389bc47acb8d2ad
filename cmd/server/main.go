// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pino/internal/comport"
	"pino/internal/config"
	"pino/internal/deploy"
	"pino/internal/handler"
	"pino/internal/routes"
	"pino/internal/service"
	"pino/internal/utils"
)

// Version is set at build time
var Version = "dev"

const (
	boardRetryInterval = 10 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server
	router *routes.Router

	// Services
	boardService     *service.BoardService
	discoveryService *service.DiscoveryService
	eventBus         *handler.EventBus

	cancel context.CancelFunc
}

func main() {
	configPath := flag.String("config", "", "board file (default: pino.yaml in . or ./config)")
	flag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "pino")
	serviceLogger.LogServiceStart(Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initializeServer()
	return app, nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	c := comport.Derive(app.config.Comport).
		WithLogger(app.logger).
		WithDeployer(deploy.NewArduinoCLI(app.config.Comport.DeployTemplate, app.logger))
	if err := c.Err(); err != nil {
		return err
	}

	app.eventBus = handler.NewEventBus(app.logger)
	app.boardService = service.NewBoardService(app.config, c, app.logger)
	app.boardService.SetEventPublisher(app.eventBus)
	app.discoveryService = service.NewDiscoveryService(app.config, app.logger)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		Version,
		app.boardService,
		app.discoveryService,
		app.eventBus,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices(ctx context.Context) {
	go app.eventBus.Start(ctx)
	go app.router.StartEventForwarding(ctx)

	if app.config.Comport.Port != "" {
		go app.superviseBoard(ctx)
	} else {
		app.logger.Warn("No comport.port configured, board must be started over the API")
	}

	app.logger.Info("Background services started")
}

// superviseBoard starts the board and retries until it connects
func (app *Application) superviseBoard(ctx context.Context) {
	for {
		err := app.boardService.Start(ctx)
		if err == nil {
			return
		}
		app.logger.Warn("Board start failed, retrying",
			zap.Error(err),
			zap.Duration("retry_in", boardRetryInterval),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(boardRetryInterval):
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "pino")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.cancel()
	app.boardService.Stop()
	app.logger.Info("Board disconnected")

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP and runs until a shutdown signal arrives
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices(ctx)
	app.waitForShutdown()
	return nil
}
