package types

// HealthStatus is the outcome of the most recent self-probe.
type HealthStatus int

const (
	StatusUnknown HealthStatus = iota // Default value
	StatusUp
	StatusDown
)

func (s HealthStatus) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	default:
		return "unknown"
	}
}
