package health

import (
	"net"
	"regexp"
	"strconv"
	"testing"
	"time"

	"sandboxdemo/internal/core/responder"
	"sandboxdemo/internal/firewall"
	"sandboxdemo/internal/service/monitor"
	"sandboxdemo/internal/shared/config"
)

var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)

func startLiveResponder(t *testing.T) string {
	t.Helper()

	cfg := config.Default()
	cfg.LocalConf.ListenHost = "127.0.0.1"
	cfg.LocalConf.ListenPort = 0

	r := responder.New(cfg, firewall.NewEngine(), monitor.NewHub())
	if _, err := r.InitializeListener(); err != nil {
		t.Fatalf("InitializeListener failed: %v", err)
	}
	go r.Serve()
	t.Cleanup(r.Close)

	info := r.GetListenerInfo()
	return net.JoinHostPort(info.Address, strconv.Itoa(info.Port))
}

// startScriptedServer answers every connection with a fixed payload
// after an optional delay.
func startScriptedServer(t *testing.T, response string, delay time.Duration) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start scripted server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1024)
				c.Read(buf)
				if delay > 0 {
					time.Sleep(delay)
				}
				if response != "" {
					c.Write([]byte(response))
				}
			}(conn)
		}
	}()

	return listener.Addr().String()
}

func TestCheck_AgainstLiveResponder(t *testing.T) {
	addr := startLiveResponder(t)

	checker := New(2 * time.Second)
	latency, serverTime, err := checker.Check(addr)
	if err != nil {
		t.Fatalf("Check failed against a live responder: %v", err)
	}
	if latency < 0 {
		t.Errorf("Expected a non-negative latency, got %d", latency)
	}
	if !timestampPattern.MatchString(serverTime) {
		t.Errorf("Server time '%s' does not match YYYY-MM-DDTHH:MM:SSZ", serverTime)
	}
}

func TestCheck_DialFailure(t *testing.T) {
	// Grab a port and release it again so nothing listens there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve a port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	checker := New(500 * time.Millisecond)
	if _, _, err := checker.Check(addr); err == nil {
		t.Fatal("Expected a dial error against a closed port, got nil")
	}
}

func TestCheck_RejectsWrongContentType(t *testing.T) {
	addr := startScriptedServer(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nHello from agentkernel sandbox!\n", 0)

	checker := New(2 * time.Second)
	if _, _, err := checker.Check(addr); err == nil {
		t.Fatal("Expected an error for a text/plain health response, got nil")
	}
}

func TestCheck_RejectsNon200(t *testing.T) {
	addr := startScriptedServer(t, "HTTP/1.1 500 Internal Server Error\r\nContent-Type: application/json\r\n\r\n{}\n", 0)

	checker := New(2 * time.Second)
	if _, _, err := checker.Check(addr); err == nil {
		t.Fatal("Expected an error for a 500 response, got nil")
	}
}

func TestCheck_RejectsBadStatusField(t *testing.T) {
	addr := startScriptedServer(t, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"status\": \"degraded\"}\n", 0)

	checker := New(2 * time.Second)
	if _, _, err := checker.Check(addr); err == nil {
		t.Fatal("Expected an error for status != ok, got nil")
	}
}

func TestCheck_TimesOutOnSilentServer(t *testing.T) {
	addr := startScriptedServer(t, "", 500*time.Millisecond)

	checker := New(100 * time.Millisecond)
	if _, _, err := checker.Check(addr); err == nil {
		t.Fatal("Expected a timeout error for a silent server, got nil")
	}
}
