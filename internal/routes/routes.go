package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/marminbh/toxicity-score-svc/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(app *fiber.App, healthHandler *handlers.HealthHandler, commentsHandler *handlers.CommentsHandler, metricsHandler http.Handler) {
	// Health check endpoint
	app.Get("/health", healthHandler.HealthCheck)

	// Prometheus scrape endpoint
	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"message": "Toxicity Score Service API v1",
				"status":  "running",
			})
		})
		api.Get("/comments/:id", commentsHandler.GetComment)
	}
}
