// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "obd-service/docs"
	"obd-service/internal/bus"
	"obd-service/internal/config"
	"obd-service/internal/driver/elm327"
	"obd-service/internal/engine"
	"obd-service/internal/model"
	"obd-service/internal/repository"
	"obd-service/internal/routes"
	"obd-service/internal/service"
	"obd-service/internal/transport"
	"obd-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	// Event plumbing
	eventBus  *bus.EventBus
	stateRepo repository.StateRepository

	// Services
	engineService    *service.EngineService
	discoveryService *service.DiscoveryService

	// Candidate table for the transmission temperature scan
	candidates []model.Candidate
}

// @title OBD Diagnostic Service API
// @version 1.0.0
// @description Vehicle diagnostic service speaking OBD-II and UDS through an ELM327 adapter
// @termsOfService http://swagger.io/terms/

// @contact.name OBD Service API Support
// @contact.email support@obdservice.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8092
// @BasePath /api/v1
func main() {
	// Initialize application
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Start the application
	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create service logger
	serviceLogger := utils.NewServiceLogger(logger, "obd-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	// Initialize components
	if err := app.initializeDiscovery(); err != nil {
		return nil, fmt.Errorf("failed to initialize discovery: %w", err)
	}

	if err := app.initializeCandidates(); err != nil {
		return nil, fmt.Errorf("failed to initialize candidate table: %w", err)
	}

	if err := app.initializeEngine(); err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDiscovery sets up port discovery and resolves serial.port=auto
func (app *Application) initializeDiscovery() error {
	app.discoveryService = service.NewDiscoveryService(app.config, app.logger)

	// The transport needs a concrete device path before it opens
	if app.config.Serial.Mode == "serial" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		port, err := app.discoveryService.ResolvePort(ctx, app.config.Serial.Port)
		if err != nil {
			return err
		}
		app.config.Serial.Port = port
	}

	app.logger.Info("Discovery initialized successfully")
	return nil
}

// initializeCandidates loads the transmission temperature candidate table
func (app *Application) initializeCandidates() error {
	candidates, err := config.LoadCandidates(app.config.Discovery.CandidateTable)
	if err != nil {
		return err
	}

	app.candidates = candidates
	app.logger.Info("Candidate table loaded",
		zap.Int("candidates", len(candidates)),
		zap.String("source", app.config.Discovery.CandidateTable),
	)
	return nil
}

// initializeEngine builds the transport, session, event bus and engine loop
func (app *Application) initializeEngine() error {
	adapterTransport, err := transport.NewTransport(&app.config.Serial, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	session := elm327.NewSession(adapterTransport, utils.NewAdapterLogger(app.logger, app.config.Serial.Port))

	app.eventBus = bus.NewEventBus(app.logger)
	app.stateRepo = repository.NewStateRepository(app.logger)

	diagnosticEngine := engine.NewDiagnosticEngine(
		app.config,
		session,
		app.eventBus,
		app.candidates,
		utils.NewEngineLogger(app.logger),
	)

	app.engineService = service.NewEngineService(
		diagnosticEngine,
		app.stateRepo,
		app.eventBus,
		app.config,
		app.logger,
	)

	app.logger.Info("Diagnostic engine initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	// Create router
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.eventBus,
		app.engineService,
		app.discoveryService,
	)

	// Setup router with all routes
	router := routerManager.SetupRouter()

	// Create HTTP server
	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	// Create channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform graceful shutdown
	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "obd-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server first so no new commands arrive
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Stop the engine loop, close the adapter and drain state events
	if err := app.engineService.Shutdown(ctx); err != nil {
		app.logger.Error("Engine service shutdown error", zap.Error(err))
	} else {
		app.logger.Info("Engine service stopped")
	}

	// Close the event bus
	app.eventBus.Close()

	// Flush logger
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}

	app.logger.Info("Application shutdown completed")
}

func (app *Application) Start() error {
	// Start the engine loop before accepting traffic
	if err := app.engineService.Start(); err != nil {
		return fmt.Errorf("failed to start engine service: %w", err)
	}

	// Start server in goroutine
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	app.waitForShutdown()

	return nil
}
