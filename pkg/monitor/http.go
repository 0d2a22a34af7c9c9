package monitor

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp exposes the windows of m over HTTP.
func NewApp(m *Monitor) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "faas-monitor",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP", "key": m.key})
	})
	app.Get("/windows", func(c *fiber.Ctx) error {
		return c.JSON(m.Windows())
	})
	app.Get("/summary", func(c *fiber.Ctx) error {
		return c.JSON(m.Summary())
	})
	return app
}

// Serve runs app on address until ctx is cancelled.
func Serve(ctx context.Context, app *fiber.App, address string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return app.Shutdown()
	}
}
