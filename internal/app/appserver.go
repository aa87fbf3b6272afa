package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"sandboxdemo/internal/core/health"
	"sandboxdemo/internal/core/responder"
	"sandboxdemo/internal/firewall"
	"sandboxdemo/internal/service/monitor"
	"sandboxdemo/internal/shared/logger"
	"sandboxdemo/internal/shared/settings"
	"sandboxdemo/internal/shared/types"
)

// AppServer is the application's main struct. It wires the responder,
// the access engine, the self health checker and the monitor API
// together and owns their shared lifecycle.
type AppServer struct {
	cfg *types.Config

	settingsManager *settings.SettingsManager

	hub       *monitor.Hub
	firewall  firewall.Firewall
	responder *responder.Responder

	healthChecker     *health.Checker
	healthCheckTicker *time.Ticker

	// stateLock protects the self-probe results below.
	stateLock     sync.RWMutex
	healthStatus  types.HealthStatus
	healthLatency int64

	monitorLock   sync.Mutex
	monitorServer *monitor.Server

	startedAt time.Time

	waitGroup sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// AppServer must implement the monitor's StatusProvider interface.
var _ monitor.StatusProvider = (*AppServer)(nil)

// New creates a new AppServer instance. configDir is where settings.json
// lives; pass "" to keep runtime settings purely in memory.
func New(cfg *types.Config, configDir string) (*AppServer, error) {
	s := &AppServer{
		cfg:           cfg,
		healthChecker: health.New(5 * time.Second),
		healthLatency: -1,
		startedAt:     time.Now(),
		stopCh:        make(chan struct{}),
	}
	if cfg.ProbeInterval > 0 {
		s.healthCheckTicker = time.NewTicker(time.Duration(cfg.ProbeInterval) * time.Second)
	}

	settingsPath := ""
	if configDir != "" {
		settingsPath = filepath.Join(configDir, "settings.json")
	}
	sm, err := settings.NewSettingsManager(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settings manager: %w", err)
	}
	s.settingsManager = sm

	hub := monitor.NewHub()
	s.hub = hub

	// Create the access engine and inject the initial configuration.
	initialSettings := sm.Get()
	fw := firewall.NewEngine()
	s.firewall = fw

	// Register the modules that react to runtime settings updates.
	sm.Register("access", fw)
	sm.Register("logging", logLevelModule{})

	if err := s.firewall.OnSettingsUpdate("access", initialSettings.Access); err != nil {
		return nil, fmt.Errorf("failed to apply initial access settings: %w", err)
	}
	if initialSettings.Logging != nil && initialSettings.Logging.Level != "" {
		if err := logger.SetLevel(initialSettings.Logging.Level); err != nil {
			logger.Warn().Err(err).Str("level", initialSettings.Logging.Level).Msg("Ignoring invalid log level from settings")
		}
	}

	s.responder = responder.New(cfg, fw, hub)

	return s, nil
}

// Run is the server's entry point. It binds the listener, starts the
// background loops and blocks until Stop is called. A failure to bind
// is returned to the caller instead of being retried.
func (s *AppServer) Run() error {
	logger.Info().Msg("Starting server in 'local' mode...")

	if _, err := s.responder.InitializeListener(); err != nil {
		return err
	}

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.responder.Serve()
	}()

	s.waitGroup.Add(1)
	go s.statsLoop()

	if s.healthCheckTicker != nil {
		s.waitGroup.Add(1)
		go s.healthCheckLoop()
	}

	go s.hub.Run()

	srv := monitor.StartServer(&s.waitGroup, s.cfg, s.settingsManager, s, s.hub)
	s.monitorLock.Lock()
	s.monitorServer = srv
	s.monitorLock.Unlock()

	s.Wait()
	return nil
}

// Stop gracefully shuts down the server. Safe to call more than once
// and from any goroutine.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		if s.healthCheckTicker != nil {
			s.healthCheckTicker.Stop()
		}

		s.responder.Close()

		s.monitorLock.Lock()
		srv := s.monitorServer
		s.monitorLock.Unlock()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("Monitor API shutdown did not finish cleanly")
			}
		}
	})
}

// Wait blocks until every background goroutine has exited.
func (s *AppServer) Wait() {
	s.waitGroup.Wait()
}

// ListenerInfo returns the bound responder address, nil before Run.
func (s *AppServer) ListenerInfo() *types.ListenerInfo {
	return s.responder.GetListenerInfo()
}

// statsLoop periodically derives traffic rates from the responder's
// byte totals and pushes them to the dashboard.
func (s *AppServer) statsLoop() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastBytesIn, lastBytesOut uint64
	var lastTimestamp time.Time

	for {
		select {
		case <-ticker.C:
			traffic := s.responder.GetTrafficStats()
			metrics := s.responder.GetMetrics()

			now := time.Now()
			var inRate, outRate uint64
			if !lastTimestamp.IsZero() {
				elapsed := now.Sub(lastTimestamp).Seconds()
				if elapsed > 0 {
					inRate = uint64(float64(traffic.BytesIn-lastBytesIn) / elapsed)
					outRate = uint64(float64(traffic.BytesOut-lastBytesOut) / elapsed)
				}
			}

			lastBytesIn = traffic.BytesIn
			lastBytesOut = traffic.BytesOut
			lastTimestamp = now

			s.hub.BroadcastDashboardUpdate(&monitor.DashboardStats{
				Timestamp:        now,
				TotalConnections: metrics.TotalConnections,
				BytesInRate:      inRate,
				BytesOutRate:     outRate,
			})

		case <-s.stopCh:
			return
		}
	}
}

// logLevelModule applies "logging" settings updates to the global logger.
type logLevelModule struct{}

func (logLevelModule) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	ls, ok := newSettings.(*settings.LoggingSettings)
	if !ok {
		return fmt.Errorf("logging module received settings of unexpected type %T", newSettings)
	}
	if ls.Level == "" {
		return nil
	}
	if err := logger.SetLevel(ls.Level); err != nil {
		return err
	}
	logger.Info().Str("level", ls.Level).Msg("Log level updated from settings")
	return nil
}
