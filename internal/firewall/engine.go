// FILE: internal/firewall/engine.go
package firewall

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"sandboxdemo/internal/shared/logger"
	"sandboxdemo/internal/shared/settings"
)

// Firewall decides whether an inbound connection may be served.
type Firewall interface {
	Check(source net.Addr) settings.AccessAction
	settings.ConfigurableModule
}

type parsedAccessRule struct {
	original   *settings.AccessRule
	sourceNets []*net.IPNet
}

// Engine implements the Firewall interface. The zero value is a
// disabled engine that allows everything.
type Engine struct {
	mu      sync.RWMutex
	rules   []*parsedAccessRule
	enabled bool
}

// NewEngine creates a new access engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// OnSettingsUpdate implements settings.ConfigurableModule and hot
// reloads the rule set.
func (e *Engine) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	if moduleKey != "access" {
		return nil
	}
	cfg, ok := newSettings.(*settings.AccessSettings)
	if !ok {
		return fmt.Errorf("access: received incorrect settings type")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = cfg.Enabled
	if !e.enabled {
		logger.Info().Msg("Access control is disabled by configuration. All clients will be served.")
		e.rules = nil
		return nil
	}

	validRules := make([]*parsedAccessRule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		pr, err := parseRule(rule)
		if err != nil {
			logger.Error().Err(err).Interface("rule", rule).Msg("Failed to parse access rule, skipping.")
			continue
		}
		validRules = append(validRules, pr)
	}

	sort.SliceStable(validRules, func(i, j int) bool {
		return validRules[i].original.Priority < validRules[j].original.Priority
	})

	e.rules = validRules
	logger.Info().Int("count", len(e.rules)).Msg("Access rules updated successfully.")
	return nil
}

// Check evaluates the rules against the source of a connection. The
// first matching rule wins. With the engine enabled and no rule
// matching, the connection is denied.
func (e *Engine) Check(source net.Addr) settings.AccessAction {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.enabled || len(e.rules) == 0 {
		return settings.ActionAllow
	}

	var srcIP net.IP
	if tcpSrc, ok := source.(*net.TCPAddr); ok {
		srcIP = tcpSrc.IP
	} else if udpSrc, ok := source.(*net.UDPAddr); ok {
		srcIP = udpSrc.IP
	} else {
		return settings.ActionAllow // unparseable source, let it through
	}

	for _, rule := range e.rules {
		if rule.matches(srcIP) {
			logger.Debug().
				Str("action", string(rule.original.Action)).
				Int("priority", rule.original.Priority).
				Str("src", srcIP.String()).
				Msg("Access rule matched.")
			return rule.original.Action
		}
	}

	logger.Debug().
		Str("action", string(settings.ActionDeny)).
		Str("reason", "No rule matched, default deny").
		Str("src", srcIP.String()).
		Msg("Access check finished.")

	// Safe default: deny when enabled and nothing matched.
	return settings.ActionDeny
}

func (pr *parsedAccessRule) matches(srcIP net.IP) bool {
	// An empty network list matches every source.
	if len(pr.sourceNets) == 0 {
		return true
	}
	for _, network := range pr.sourceNets {
		if network.Contains(srcIP) {
			return true
		}
	}
	return false
}

func parseRule(rule *settings.AccessRule) (*parsedAccessRule, error) {
	pr := &parsedAccessRule{original: rule}
	var err error

	pr.sourceNets, err = parseCIDRs(rule.SourceCIDR)
	if err != nil {
		return nil, err
	}

	return pr, nil
}

func parseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	if len(cidrs) == 0 {
		return nil, nil
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidrStr := range cidrs {
		trimmedCidr := strings.TrimSpace(cidrStr)
		if trimmedCidr == "" {
			continue
		}

		// A bare IP gets the host mask for its family.
		if !strings.Contains(trimmedCidr, "/") {
			ip := net.ParseIP(trimmedCidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP address format: '%s'", trimmedCidr)
			}
			if ip.To4() != nil {
				trimmedCidr += "/32" // IPv4
			} else {
				trimmedCidr += "/128" // IPv6
			}
		}

		_, network, err := net.ParseCIDR(trimmedCidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR '%s': %w", trimmedCidr, err)
		}
		nets = append(nets, network)
	}
	return nets, nil
}
