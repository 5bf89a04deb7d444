// Package server implements the Listener (C8): one accept loop per
// configured listener, each serving HTTP/1.1 and routing every inbound
// request through the Request Dispatcher.
package server

import (
	"context"
	"net"

	"github.com/gofiber/fiber/v2"

	"dragonfly/config"
	mslogger "dragonfly/logger"

	"dragonfly/internal/dispatcher"
	"dragonfly/internal/headers"
	"dragonfly/internal/httpsclient"
	"dragonfly/internal/substitution"
	"dragonfly/internal/target"
)

// Listener owns one bound TCP socket and the fiber app serving it. Using a
// dedicated *fiber.App per listener (rather than one shared app with
// prefix-based routing) is the natural generalization of the teacher's
// single-app StartServer to the gateway's many-independent-sockets model.
type Listener struct {
	ID   string
	Addr string

	app *fiber.App
	ln  net.Listener
}

// New builds (but does not yet start accepting on) a Listener for cfg.
func New(cfg config.ListenerConfig, clients *httpsclient.Cache, root *substitution.Context) (*Listener, error) {
	exec := target.New(clients)
	disp := dispatcher.New(cfg, exec, root)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Timeout,
		ErrorHandler:          fiberErrorHandler,
	})
	app.Use(requestHandler(disp))

	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return nil, err
	}

	return &Listener{ID: cfg.ID, Addr: cfg.BindAddr, app: app, ln: ln}, nil
}

// Serve blocks, accepting connections until Shutdown is called or the
// listener errors.
func (l *Listener) Serve() error {
	mslogger.LogListenerStart(l.ID, l.Addr)
	return l.app.Listener(l.ln)
}

// Shutdown drains in-flight connections cooperatively; no forced
// cancellation, per spec.md 5.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.app.ShutdownWithContext(ctx)
}

func fiberErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
}

// requestHandler adapts a fasthttp-backed fiber.Ctx into the dispatcher's
// InboundRequest/Response shapes. The body is read in full here (fiber/
// fasthttp already buffers the whole request before invoking handlers),
// satisfying spec.md 4.7 Phase A's "materialize the inbound body once".
func requestHandler(disp *dispatcher.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in := dispatcher.InboundRequest{
			Method:   c.Method(),
			Path:     string(c.Request().URI().Path()),
			Host:     string(c.Request().Host()),
			Query:    string(c.Request().URI().QueryString()),
			SourceIP: c.IP(),
			Headers:  extractHeaders(c),
			Body:     append([]byte(nil), c.Body()...),
		}

		resp := disp.Handle(in)

		for name, values := range resp.Header {
			for _, v := range values {
				c.Response().Header.Add(name, v)
			}
		}
		return c.Status(resp.Status).Send(resp.Body)
	}
}

func extractHeaders(c *fiber.Ctx) headers.Header {
	h := headers.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		name := string(key)
		h[name] = append(h[name], string(value))
	})
	return h
}
