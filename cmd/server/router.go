package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/genqueue/internal/api"
	apiMiddleware "github.com/phrazzld/genqueue/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	// Create a router
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(
		apiMiddleware.NewTraceMiddleware(app.logger),
	) // Add trace IDs for improved error handling

	// Create API handlers using the application's components
	jobHandler := api.NewJobHandler(app.queue, app.generator, app.config.Generator.MaxSteps, app.logger)
	controlHandler := api.NewControlHandler(app.state, app.registry, app.logger)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", jobHandler.CreateJob)
		r.Get("/progress/{id}", controlHandler.GetProgress)
		r.Get("/state", controlHandler.GetState)

		// Controls on the running job
		r.Post("/interrupt", controlHandler.Interrupt)
		r.Post("/skip", controlHandler.Skip)
		r.Post("/pause", controlHandler.Pause)
		r.Post("/resume", controlHandler.Resume)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
