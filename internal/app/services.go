package app

import (
	"context"
	"errors"
	"fmt"

	"nanoclaw/internal/allocator"
	"nanoclaw/internal/api"
	"nanoclaw/internal/config"
	"nanoclaw/internal/events"
	"nanoclaw/internal/metrics"
	"nanoclaw/internal/orchestrator"
	"nanoclaw/internal/slice/builtin"
	"nanoclaw/internal/store"
	"nanoclaw/pkg/logging"
)

// Services holds everything the host process wires around the orchestrator.
type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Collector    *metrics.Collector

	// Store and Journal are nil when disabled in configuration.
	Store   *store.SQLiteStore
	Journal *events.FileSink

	// AutoStart lists components registered before StartAll; Deferred are
	// registered afterwards and left in the Registered state.
	AutoStart []config.ComponentConfig
	Deferred  []config.ComponentConfig
}

// InitializeServices builds the orchestrator and its supporting services
// from settings and registers the auto-start components.
func InitializeServices(settings config.Config) (*Services, error) {
	s := &Services{Collector: metrics.NewCollector()}

	routes, err := settings.RouteTable()
	if err != nil {
		return nil, fmt.Errorf("building route table: %w", err)
	}

	sinks := events.MultiSink{events.LogSink{}}
	if dir := settings.Storage.EventsDir; dir != "" {
		journal, err := events.NewFileSink(dir)
		if err != nil {
			return nil, fmt.Errorf("opening event journal: %w", err)
		}
		s.Journal = journal
		sinks = append(sinks, journal)
		logging.Info("Services", "Writing event journal to %s", journal.Dir())
	}

	orchCfg := orchestrator.Config{
		Allocator: allocator.Options{
			Totals: allocator.Totals{
				MemoryMB:            settings.Allocator.MemoryMB,
				CPUPercent:          settings.Allocator.CPUPercent,
				ThroughputPerMinute: settings.Allocator.ThroughputPerMinute,
			},
			NearCapacityRatio: settings.Allocator.NearCapacityRatio,
		},
		HookTimeout:    settings.Orchestrator.HookTimeout,
		DefaultTimeout: settings.Orchestrator.DefaultTimeout,
		Routes:         routes,
		Sink:           sinks,
		Collector:      s.Collector,
	}
	if settings.Allocator.HostSampling {
		orchCfg.Allocator.Sampler = allocator.GopsutilSampler{}
	}

	if path := settings.Storage.StateDB; path != "" {
		st, err := store.Open(path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("opening state store: %w", err)
		}
		s.Store = st
		orchCfg.Store = st
		logging.Info("Services", "Persisting component state to %s", st.Path())
	}

	s.Orchestrator = orchestrator.New(orchCfg)

	for _, comp := range settings.Components {
		if comp.AutoStart {
			s.AutoStart = append(s.AutoStart, comp)
		} else {
			s.Deferred = append(s.Deferred, comp)
		}
	}
	if err := s.register(s.AutoStart); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) register(comps []config.ComponentConfig) error {
	for _, comp := range comps {
		factory, err := builtin.Factory(comp.Kind, comp.ID)
		if err != nil {
			return fmt.Errorf("component %s: %w", comp.ID, err)
		}
		quota := comp.Quota
		if quota.IsZero() {
			quota = api.DefaultQuota()
		}
		if err := s.Orchestrator.RegisterComponent(comp.ID, factory, quota); err != nil {
			return fmt.Errorf("registering %s: %w", comp.ID, err)
		}
		logging.Debug("Services", "Registered %s component %s", comp.Kind, comp.ID)
	}
	return nil
}

// Start initializes and starts the auto-start components, then registers the
// deferred ones. It returns an error naming every component that failed.
func (s *Services) Start(ctx context.Context) error {
	var errs []error
	for _, r := range s.Orchestrator.StartAll(ctx) {
		if !r.OK() {
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Operation, r.ComponentID, r.Err))
		}
	}
	if err := s.register(s.Deferred); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stop shuts down every component and releases the store and journal.
func (s *Services) Stop(ctx context.Context) error {
	var errs []error
	for _, r := range s.Orchestrator.Shutdown(ctx) {
		if !r.OK() {
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Operation, r.ComponentID, r.Err))
		}
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the store and journal without touching components.
func (s *Services) Close() error {
	var errs []error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing state store: %w", err))
		}
		s.Store = nil
	}
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event journal: %w", err))
		}
		s.Journal = nil
	}
	return errors.Join(errs...)
}
