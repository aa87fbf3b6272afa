package types

// ListenerInfo holds the runtime listening info of the responder.
type ListenerInfo struct {
	Address string
	Port    int
}

// Metrics holds counters accumulated while serving connections.
type Metrics struct {
	TotalConnections  int64 `json:"totalConnections"`
	HealthRequests    int64 `json:"healthRequests"`
	DefaultRequests   int64 `json:"defaultRequests"`
	ReadFailures      int64 `json:"readFailures"`
	DeniedConnections int64 `json:"deniedConnections"`
}

// TrafficStats reports byte totals for both directions of the wire.
type TrafficStats struct {
	BytesIn  uint64 `json:"bytesIn"`  // read from clients
	BytesOut uint64 `json:"bytesOut"` // written to clients
}
