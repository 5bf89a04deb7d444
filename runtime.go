package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"dragonfly/config"
	mslogger "dragonfly/logger"

	"dragonfly/internal/httpsclient"
	"dragonfly/internal/report"
	"dragonfly/internal/substitution"
	"dragonfly/server"
)

// Runtime holds every live listener plus the shared state (HTTPS client
// cache, substitution root) a config reload needs to rebuild them from a
// freshly loaded Config. One Runtime exists per process.
type Runtime struct {
	mu sync.Mutex

	configPath string
	envMask    *regexp.Regexp
	healthPort int

	cfg         *config.Config
	clients     *httpsclient.Cache
	listeners   []*server.Listener
	healthCheck *server.HealthCheck
}

// NewRuntime loads configPath and builds (but does not start) every
// listener it declares.
func NewRuntime(configPath string, envMask *regexp.Regexp, healthPort int) (*Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		configPath: configPath,
		envMask:    envMask,
		healthPort: healthPort,
		clients:    httpsclient.New(),
	}
	if err := rt.rebuild(cfg); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) rebuild(cfg *config.Config) error {
	root := substitution.Root(os.Environ(), appName, appVersion, rt.envMask)

	listeners := make([]*server.Listener, 0, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		ln, err := server.New(l, rt.clients, root)
		if err != nil {
			return fmt.Errorf("listener %q: %w", l.ID, err)
		}
		listeners = append(listeners, ln)
	}

	var hc *server.HealthCheck
	if rt.healthPort > 0 {
		var err error
		hc, err = server.NewHealthCheck(fmt.Sprintf(":%d", rt.healthPort))
		if err != nil {
			return fmt.Errorf("healthcheck: %w", err)
		}
	}

	rt.cfg = cfg
	rt.listeners = listeners
	rt.healthCheck = hc
	return nil
}

// Start begins accepting on every listener and the health-check responder,
// none of which block the caller.
func (rt *Runtime) Start() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	report.Print(rt.cfg)

	for _, l := range rt.listeners {
		l := l
		go func() {
			if err := l.Serve(); err != nil {
				mslogger.LogError(fmt.Sprintf("listener %q stopped: %v", l.ID, err))
			}
		}()
	}
	if rt.healthCheck != nil {
		go func() {
			if err := rt.healthCheck.Serve(); err != nil {
				mslogger.LogError(fmt.Sprintf("healthcheck stopped: %v", err))
			}
		}()
	}
}

// Reload loads the config file fresh, starts a new listener set, and only
// then shuts down the old set, so an invalid reload never takes down a
// healthy gateway.
func (rt *Runtime) Reload() {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		mslogger.LogError(fmt.Sprintf("reload aborted: %v", err))
		return
	}

	rt.mu.Lock()
	old := rt.listeners
	oldHealth := rt.healthCheck
	if err := rt.rebuild(cfg); err != nil {
		mslogger.LogError(fmt.Sprintf("reload aborted: %v", err))
		rt.mu.Unlock()
		return
	}
	rt.mu.Unlock()

	rt.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, l := range old {
		_ = l.Shutdown(ctx)
	}
	if oldHealth != nil {
		_ = oldHealth.Shutdown(ctx)
	}
	mslogger.LogSuccess("Configuration reloaded")
}

// Shutdown drains every listener and the health-check responder.
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for _, l := range rt.listeners {
		_ = l.Shutdown(ctx)
	}
	if rt.healthCheck != nil {
		_ = rt.healthCheck.Shutdown(ctx)
	}
}
