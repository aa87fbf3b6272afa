package responder

import (
	"bytes"
	"fmt"
	"time"
)

// Route identifies which canned response a request receives.
type Route string

const (
	RouteHealth  Route = "health"
	RouteDefault Route = "default"
)

// healthToken is matched as a literal substring anywhere in the request
// buffer. A request carrying the token in a header or body is still
// classified as a health check; that looseness is part of the demo's
// contract and keeps the classifier to a single byte scan.
var healthToken = []byte("GET /health")

const (
	healthResponseFormat = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"status\": \"ok\", \"timestamp\": \"%s\"}\n"
	defaultResponse      = "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nHello from agentkernel sandbox!\n"
	timestampLayout      = "2006-01-02T15:04:05Z"
)

// Classify decides the route for a single request buffer.
func Classify(request []byte) Route {
	if bytes.Contains(request, healthToken) {
		return RouteHealth
	}
	return RouteDefault
}

// BuildResponse renders the canned response for a route. The health
// body embeds now as an ISO 8601 UTC timestamp; the default body is
// constant and ignores it.
func BuildResponse(route Route, now time.Time) []byte {
	if route == RouteHealth {
		return []byte(fmt.Sprintf(healthResponseFormat, now.UTC().Format(timestampLayout)))
	}
	return []byte(defaultResponse)
}
