package responder

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"

	"sandboxdemo/internal/firewall"
	"sandboxdemo/internal/service/monitor"
	"sandboxdemo/internal/shared"
	"sandboxdemo/internal/shared/logger"
	"sandboxdemo/internal/shared/settings"
	"sandboxdemo/internal/shared/types"
)

// Responder owns the TCP listener and serves the canned responses. One
// connection is one read, one classification and one write.
type Responder struct {
	cfg          *types.Config
	engine       firewall.Firewall
	hub          *monitor.Hub
	listener     net.Listener
	listenerInfo *types.ListenerInfo
	closeOnce    sync.Once
	waitGroup    sync.WaitGroup

	totalConnections  atomic.Int64
	healthRequests    atomic.Int64
	defaultRequests   atomic.Int64
	readFailures      atomic.Int64
	deniedConnections atomic.Int64
	bytesIn           atomic.Uint64
	bytesOut          atomic.Uint64
}

// New creates a responder. Both the access engine and the hub are
// required; pass a fresh engine and hub when no sharing is needed.
func New(cfg *types.Config, engine firewall.Firewall, hub *monitor.Hub) *Responder {
	return &Responder{
		cfg:    cfg,
		engine: engine,
		hub:    hub,
	}
}

// InitializeListener binds the serving port without blocking. It
// returns the port actually bound, which differs from the configured
// one when the configuration asks for port 0.
func (r *Responder) InitializeListener() (int, error) {
	listenAddr := fmt.Sprintf("%s:%d", r.cfg.ListenHost, r.cfg.ListenPort)
	lc := net.ListenConfig{Control: controlReuseAddr}
	listener, err := lc.Listen(context.Background(), "tcp", listenAddr)
	if err != nil {
		return 0, fmt.Errorf("responder failed to listen on %s: %w", listenAddr, err)
	}

	tcpAddr := listener.Addr().(*net.TCPAddr)
	r.listenerInfo = &types.ListenerInfo{
		Address: tcpAddr.IP.String(),
		Port:    tcpAddr.Port,
	}

	// Admission control: Accept hands out at most MaxConnections slots
	// at a time, everyone else waits in the kernel backlog. The default
	// of 1 serves clients strictly one after another.
	r.listener = netutil.LimitListener(listener, r.cfg.MaxConnections)

	logger.Info().
		Str("listen_addr", listener.Addr().String()).
		Int("max_connections", r.cfg.MaxConnections).
		Msg(">>> Responder is listening.")

	return r.listenerInfo.Port, nil
}

// Serve runs the blocking accept loop. InitializeListener must have
// been called first.
func (r *Responder) Serve() {
	if r.listener == nil {
		logger.Error().Msg("Responder.Serve() called before InitializeListener()")
		return
	}
	r.waitGroup.Add(1)
	r.acceptLoop()
}

// GetListenerInfo returns the bound address, nil before initialization.
func (r *Responder) GetListenerInfo() *types.ListenerInfo {
	return r.listenerInfo
}

// GetMetrics returns a snapshot of the serving counters.
func (r *Responder) GetMetrics() *types.Metrics {
	return &types.Metrics{
		TotalConnections:  r.totalConnections.Load(),
		HealthRequests:    r.healthRequests.Load(),
		DefaultRequests:   r.defaultRequests.Load(),
		ReadFailures:      r.readFailures.Load(),
		DeniedConnections: r.deniedConnections.Load(),
	}
}

// GetTrafficStats returns the byte totals for both directions.
func (r *Responder) GetTrafficStats() types.TrafficStats {
	return types.TrafficStats{
		BytesIn:  r.bytesIn.Load(),
		BytesOut: r.bytesOut.Load(),
	}
}

func (r *Responder) acceptLoop() {
	defer r.waitGroup.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok && strings.Contains(opErr.Err.Error(), "use of closed network connection") {
				logger.Info().Msg("Responder listener is closing.")
				return
			}
			logger.Warn().Err(err).Msg("Responder failed to accept connection")
			continue
		}

		if r.engine.Check(conn.RemoteAddr()) == settings.ActionDeny {
			r.deniedConnections.Add(1)
			logger.Warn().Str("client_ip", conn.RemoteAddr().String()).Msg("Responder: connection denied by access rules")
			conn.Close()
			continue
		}

		r.waitGroup.Add(1)
		go r.handleConnection(conn)
	}
}

func (r *Responder) handleConnection(inboundConn net.Conn) {
	defer r.waitGroup.Done()
	defer inboundConn.Close()

	traceID := uuid.NewString()
	l := log.With().Str("trace_id", traceID).Logger()
	clientIP := inboundConn.RemoteAddr().String()

	r.totalConnections.Add(1)
	conn := shared.NewCountedConn(inboundConn, &r.bytesIn, &r.bytesOut)

	// A request is whatever arrives in one read. Later segments of a
	// slow sender are never waited for.
	buffer := make([]byte, r.cfg.BufferSize-1)
	n, err := conn.Read(buffer)
	if n <= 0 {
		r.readFailures.Add(1)
		if err != nil && err != io.EOF {
			l.Warn().Err(err).Str("client_ip", clientIP).Msg("Responder: read failed, dropping connection without a response")
		} else {
			l.Debug().Str("client_ip", clientIP).Msg("Responder: client closed before sending data")
		}
		return
	}

	route := Classify(buffer[:n])
	response := BuildResponse(route, time.Now())

	// Write errors are ignored; the response is fire-and-forget.
	written, _ := conn.Write(response)

	switch route {
	case RouteHealth:
		r.healthRequests.Add(1)
	default:
		r.defaultRequests.Add(1)
	}

	r.hub.BroadcastRequestLog(&monitor.RequestLogEntry{
		Timestamp:     time.Now(),
		TraceID:       traceID,
		ClientIP:      clientIP,
		Route:         string(route),
		RequestBytes:  n,
		ResponseBytes: written,
	})

	l.Debug().
		Str("client_ip", clientIP).
		Str("route", string(route)).
		Int("request_bytes", n).
		Msg("Responder: request served")
}

// Close shuts the listener and waits for in-flight handlers to finish.
func (r *Responder) Close() {
	r.closeOnce.Do(func() {
		if r.listener != nil {
			r.listener.Close()
		}
		r.waitGroup.Wait()
		log.Info().Msg("Responder has been shut down")
	})
}
