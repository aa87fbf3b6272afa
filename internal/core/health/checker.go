package health

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"sandboxdemo/internal/shared/logger"
)

// Checker probes a running responder from the client side and verifies
// the canned health contract end to end.
type Checker struct {
	timeout time.Duration
}

// New creates a Checker. The timeout bounds the whole probe: dial,
// write and read.
func New(timeout time.Duration) *Checker {
	return &Checker{timeout: timeout}
}

type healthBody struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Check dials addr, sends a health request and validates the response:
// a 200 status line, an application/json content type and a body whose
// status is "ok". It returns the probe latency in milliseconds and the
// timestamp reported by the server.
func (c *Checker) Check(addr string) (latency int64, serverTime string, err error) {
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		return 0, "", fmt.Errorf("health probe dial failed: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	request := fmt.Sprintf("GET /health HTTP/1.1\r\nHost: %s\r\n\r\n", addr)
	if _, err := conn.Write([]byte(request)); err != nil {
		return 0, "", fmt.Errorf("health probe write failed: %w", err)
	}

	// The responder writes once and closes, so EOF terminates the read.
	raw, err := io.ReadAll(conn)
	if err != nil {
		return 0, "", fmt.Errorf("health probe read failed: %w", err)
	}
	latency = time.Since(start).Milliseconds()

	serverTime, err = parseHealthResponse(raw)
	if err != nil {
		return latency, "", err
	}

	logger.Debug().
		Str("addr", addr).
		Int64("latency_ms", latency).
		Str("server_time", serverTime).
		Msg("HealthCheck: probe passed.")
	return latency, serverTime, nil
}

func parseHealthResponse(raw []byte) (string, error) {
	head, body, found := strings.Cut(string(raw), "\r\n\r\n")
	if !found {
		return "", fmt.Errorf("health probe: malformed response: %q", raw)
	}

	lines := strings.Split(head, "\r\n")
	if !strings.HasPrefix(lines[0], "HTTP/1.1 200") {
		return "", fmt.Errorf("health probe: unexpected status line: %q", lines[0])
	}

	contentTypeOK := false
	for _, line := range lines[1:] {
		if strings.EqualFold(strings.TrimSpace(line), "content-type: application/json") {
			contentTypeOK = true
			break
		}
	}
	if !contentTypeOK {
		return "", fmt.Errorf("health probe: response is not application/json")
	}

	var payload healthBody
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return "", fmt.Errorf("health probe: invalid JSON body: %w", err)
	}
	if payload.Status != "ok" {
		return "", fmt.Errorf("health probe: unexpected status '%s'", payload.Status)
	}
	return payload.Timestamp, nil
}
