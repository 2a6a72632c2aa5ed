package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// NewApp builds the Fiber app with middleware, error handling and all routes.
func NewApp(deps Deps, log logrus.FieldLogger) *fiber.App {
	if log == nil {
		log = logrus.StandardLogger()
	}
	app := fiber.New(fiber.Config{
		AppName:               "weather-assistant",
		DisableStartupMessage: true,
		// request strings outlive the handler as cache keys and stored names
		Immutable:   true,
		ReadTimeout: 10 * time.Second,
		// chat requests wait on the model and several upstream calls
		WriteTimeout: 60 * time.Second,
		ErrorHandler: ErrorHandler(log.WithField("component", "http")),
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${status} ${latency} ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))
	app.Use(cors.New())

	RegisterRoutes(app, deps)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "route not found")
	})
	return app
}
