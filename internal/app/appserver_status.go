package app

import (
	"net"
	"strconv"
	"time"

	"sandboxdemo/internal/service/monitor"
	"sandboxdemo/internal/shared/logger"
	"sandboxdemo/internal/shared/types"
)

// healthCheckLoop probes the responder's own listening port on every
// tick. The first probe runs immediately so the dashboard does not show
// "unknown" for a full interval after startup.
func (s *AppServer) healthCheckLoop() {
	defer s.waitGroup.Done()

	s.runHealthCheck()
	for {
		select {
		case <-s.healthCheckTicker.C:
			s.runHealthCheck()
		case <-s.stopCh:
			return
		}
	}
}

// runHealthCheck performs one self probe and publishes the result when
// the status flips.
func (s *AppServer) runHealthCheck() {
	addr := s.probeAddr()
	if addr == "" {
		return
	}

	latency, serverTime, err := s.healthChecker.Check(addr)

	newStatus := types.StatusUp
	if err != nil {
		newStatus = types.StatusDown
		latency = -1
	}

	s.stateLock.Lock()
	stateChanged := s.healthStatus != newStatus
	s.healthStatus = newStatus
	s.healthLatency = latency
	s.stateLock.Unlock()

	if !stateChanged {
		return
	}

	if err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("[HealthChecker] Self probe failed, marking server DOWN.")
	} else {
		logger.Info().
			Str("addr", addr).
			Int64("latency_ms", latency).
			Str("server_time", serverTime).
			Msg("[HealthChecker] Self probe passed, marking server UP.")
	}
	s.hub.BroadcastStatusUpdate()
}

// probeAddr derives a dialable address from the listener info. Wildcard
// listen hosts are probed over loopback.
func (s *AppServer) probeAddr() string {
	info := s.responder.GetListenerInfo()
	if info == nil {
		return ""
	}
	host := info.Address
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(info.Port))
}

// StatusSnapshot implements the monitor.StatusProvider interface.
func (s *AppServer) StatusSnapshot() *monitor.StatusSnapshot {
	s.stateLock.RLock()
	status := s.healthStatus
	latency := s.healthLatency
	s.stateLock.RUnlock()

	listenAddr := ""
	if info := s.responder.GetListenerInfo(); info != nil {
		listenAddr = net.JoinHostPort(info.Address, strconv.Itoa(info.Port))
	}

	return &monitor.StatusSnapshot{
		StartedAt:       s.startedAt,
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		ListenAddr:      listenAddr,
		Health:          status.String(),
		HealthLatencyMS: latency,
		Metrics:         s.responder.GetMetrics(),
		Traffic:         s.responder.GetTrafficStats(),
	}
}
