package server

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck is an optional standalone TCP responder (spec.md 4.8/6): any
// accepted connection gets a plain 200 "OK" with no dispatcher involvement,
// for load-balancer liveness probes that should not exercise upstream
// targets.
type HealthCheck struct {
	app *fiber.App
	ln  net.Listener
}

const healthCheckReadTimeout = 5 * time.Second

// NewHealthCheck binds addr (e.g. ":8090") and installs the fixed OK handler.
func NewHealthCheck(addr string) (*HealthCheck, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           healthCheckReadTimeout,
	})
	app.Use(func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
		return c.Status(fiber.StatusOK).SendString("OK\n")
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &HealthCheck{app: app, ln: ln}, nil
}

func (h *HealthCheck) Serve() error {
	return h.app.Listener(h.ln)
}

func (h *HealthCheck) Shutdown(ctx context.Context) error {
	return h.app.ShutdownWithContext(ctx)
}
