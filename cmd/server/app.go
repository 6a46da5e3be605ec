package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/jobstate"
	"github.com/phrazzld/genqueue/internal/progress"
	"github.com/phrazzld/genqueue/internal/sampler"
	"github.com/phrazzld/genqueue/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Shared job state and bookkeeping
	state    *jobstate.JobContext
	registry *progress.MemoryRegistry
	memory   *sampler.MemoryMonitor

	// Execution
	queue     *task.Queue
	generator *generation.Simulator
}

// newApplication creates a new application instance with all dependencies initialized.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	app := &application{
		config: cfg,
		logger: logger,
		state:  jobstate.New(),
	}

	// Initialize job bookkeeping
	app.registry = progress.NewMemoryRegistry(cfg.Queue.RecentTasks, logger)
	app.memory = sampler.NewMemoryMonitor(sampler.RuntimeSource{}, cfg.Queue.MemoryPollInterval(), logger)

	// Initialize the serialized job queue
	app.queue = task.NewQueue(queueConfig(cfg.Queue), app.state, app.registry, app.memory, logger)
	logger.Info("Job queue initialized",
		"profile", cfg.Queue.Profile,
		"memory_sampling", cfg.Queue.MemorySampling && !app.memory.Disabled())

	// Create the generator; the model itself is loaded later by loadModel
	simConfig := generation.DefaultSimulatorConfig()
	simConfig.StepDelay = cfg.Generator.StepDelay()
	simConfig.MaxSteps = cfg.Generator.MaxSteps

	var err error
	app.generator, err = generation.NewSimulator(simConfig, logger.With("component", "generator"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// queueConfig maps the loaded queue settings onto the task package's config.
func queueConfig(cfg config.QueueConfig) task.QueueConfig {
	qc := task.DefaultQueueConfig()
	qc.CollectStats = cfg.CollectStats
	qc.Stream.Profile = cfg.Profile
	qc.Stream.ProfileTopN = cfg.ProfileTopN
	qc.Stream.MemorySampling = cfg.MemorySampling
	qc.Stream.ArgLogLimit = cfg.ArgLogLimit
	return qc
}

// loadModel loads the generator while holding the execution slot, so no job
// can start against a half-loaded model.
func (app *application) loadModel(ctx context.Context) error {
	start := time.Now()
	app.logger.Info("Loading model")

	if err := app.queue.Do(ctx, app.generator.Load); err != nil {
		app.logger.Error("Failed to load model", "error", err)
		return fmt.Errorf("failed to load model: %w", err)
	}

	app.logger.Info("Model loaded", "duration", time.Since(start))
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	// requests arriving before the load finishes get a 503
	go func() {
		_ = app.loadModel(ctx)
	}()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	// Interrupt the running job so streaming clients get their final result
	if app.state != nil && app.state.InterruptRunning() {
		app.logger.Info("Interrupted running job")
	}
	if app.memory != nil {
		app.memory.Stop()
	}

	app.logger.Info("Application shutdown completed")
}
