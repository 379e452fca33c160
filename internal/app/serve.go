package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"nanoclaw/internal/config"
	"nanoclaw/internal/slice"
	"nanoclaw/pkg/logging"
)

const (
	// HeartbeatInterval is how often running components are health checked
	// and their heartbeat persisted.
	HeartbeatInterval = 30 * time.Second

	shutdownGrace = 5 * time.Second
)

// runServe starts the components and blocks until ctx is done or the process
// receives SIGINT or SIGTERM.
//
// While running it serves Prometheus metrics and a JSON health summary,
// reloads the route table when the configuration file changes, records
// heartbeats for healthy components and notifies systemd of readiness.
func runServe(ctx context.Context, a *Application) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services := a.services
	if err := services.Start(ctx); err != nil {
		logging.Warn("Serve", "Some components failed to start: %v", err)
	}

	serverErr := make(chan error, 1)
	var server *http.Server
	if a.settings.Metrics.Enabled {
		var err error
		server, _, err = startHTTP(a.settings.Metrics, services, serverErr)
		if err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), a.stopTimeout())
			defer cancel()
			_ = services.Stop(stopCtx)
			return err
		}
	}

	var watcher *config.Watcher
	if a.configFile != "" {
		w, err := config.Watch(a.configFile, config.WatcherOptions{
			OnChange: func(cfg config.Config) { a.applyRoutes(cfg) },
		})
		if err != nil {
			logging.Warn("Serve", "Configuration reload disabled: %v", err)
		} else {
			watcher = w
		}
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		a.heartbeat(hbCtx, HeartbeatInterval)
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn("Serve", "systemd notify failed: %v", err)
	} else if sent {
		logging.Debug("Serve", "Notified systemd of readiness")
	}
	logging.Info("Serve", "nanoclaw is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("Serve", "Shutting down")
	case runErr = <-serverErr:
		logging.Error("Serve", runErr, "HTTP server failed, shutting down")
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	hbCancel()
	hbDone.Wait()
	if watcher != nil {
		watcher.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Serve", "HTTP server shutdown: %v", err)
		}
		cancel()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), a.stopTimeout())
	defer cancel()
	if err := services.Stop(stopCtx); err != nil {
		logging.Warn("Serve", "Shutdown completed with errors: %v", err)
	}
	return runErr
}

// startHTTP binds the metrics listener synchronously so address errors are
// reported before Run blocks.
func startHTTP(cfg config.MetricsConfig, services *Services, errCh chan<- error) (*http.Server, net.Addr, error) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, services.Collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := services.Orchestrator.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == slice.HealthUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, nil, err
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logging.Info("Serve", "Serving metrics on http://%s%s", ln.Addr(), cfg.Path)
	return server, ln.Addr(), nil
}

// stopTimeout bounds the final shutdown. Each component gets the hook
// timeout for its own hooks, so the total is scaled by the component count.
func (a *Application) stopTimeout() time.Duration {
	timeout := a.settings.Orchestrator.HookTimeout
	if timeout <= 0 {
		timeout = config.DefaultHookTimeout
	}
	n := len(a.settings.Components)
	if n < 1 {
		n = 1
	}
	return timeout * time.Duration(2*n)
}

func (a *Application) applyRoutes(cfg config.Config) {
	table, err := cfg.RouteTable()
	if err != nil {
		logging.Warn("Serve", "Ignoring route change: %v", err)
		return
	}
	a.services.Orchestrator.SetRoutes(table)
}

func (a *Application) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.beat(ctx)
		}
	}
}

// beat health checks every component and stamps the heartbeat of the
// healthy ones.
func (a *Application) beat(ctx context.Context) {
	reports := a.services.Orchestrator.HealthCheck(ctx)
	for id, report := range reports {
		if report.Status != slice.HealthHealthy {
			logging.Warn("Serve", "Component %s reports %s", id, report.Status)
			continue
		}
		if a.services.Store == nil {
			continue
		}
		if err := a.services.Store.Heartbeat(ctx, id); err != nil {
			logging.Debug("Serve", "Heartbeat for %s not recorded: %v", id, err)
		}
	}
}
