package firewall

import (
	"net"
	"testing"

	"sandboxdemo/internal/shared/settings"
)

func applyAccessSettings(t *testing.T, e *Engine, cfg *settings.AccessSettings) {
	t.Helper()
	if err := e.OnSettingsUpdate("access", cfg); err != nil {
		t.Fatalf("OnSettingsUpdate failed: %v", err)
	}
}

func tcpSource(ip string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 54321}
}

func TestCheck_ZeroValueEngineAllows(t *testing.T) {
	e := NewEngine()
	if action := e.Check(tcpSource("203.0.113.7")); action != settings.ActionAllow {
		t.Errorf("Expected allow from a fresh engine, got '%s'", action)
	}
}

func TestCheck_DisabledAllowsEverything(t *testing.T) {
	e := NewEngine()
	applyAccessSettings(t, e, &settings.AccessSettings{
		Enabled: false,
		Rules: []*settings.AccessRule{
			{Priority: 1, SourceCIDR: []string{"0.0.0.0/0"}, Action: settings.ActionDeny},
		},
	})
	if action := e.Check(tcpSource("203.0.113.7")); action != settings.ActionAllow {
		t.Errorf("Expected allow while disabled, got '%s'", action)
	}
}

func TestCheck_DefaultDenyWhenEnabled(t *testing.T) {
	e := NewEngine()
	applyAccessSettings(t, e, &settings.AccessSettings{
		Enabled: true,
		Rules: []*settings.AccessRule{
			{Priority: 1, SourceCIDR: []string{"192.168.0.0/16"}, Action: settings.ActionAllow},
		},
	})

	if action := e.Check(tcpSource("192.168.1.10")); action != settings.ActionAllow {
		t.Errorf("Expected allow for 192.168.1.10, got '%s'", action)
	}
	if action := e.Check(tcpSource("203.0.113.7")); action != settings.ActionDeny {
		t.Errorf("Expected default deny for 203.0.113.7, got '%s'", action)
	}
}

func TestCheck_BareIPGetsHostMask(t *testing.T) {
	e := NewEngine()
	applyAccessSettings(t, e, &settings.AccessSettings{
		Enabled: true,
		Rules: []*settings.AccessRule{
			{Priority: 1, SourceCIDR: []string{"127.0.0.1"}, Action: settings.ActionAllow},
		},
	})

	if action := e.Check(tcpSource("127.0.0.1")); action != settings.ActionAllow {
		t.Errorf("Expected allow for 127.0.0.1, got '%s'", action)
	}
	if action := e.Check(tcpSource("127.0.0.2")); action != settings.ActionDeny {
		t.Errorf("Expected deny for 127.0.0.2, got '%s'", action)
	}
}

func TestCheck_PriorityOrderWins(t *testing.T) {
	e := NewEngine()
	applyAccessSettings(t, e, &settings.AccessSettings{
		Enabled: true,
		Rules: []*settings.AccessRule{
			{Priority: 20, Action: settings.ActionAllow}, // matches all
			{Priority: 10, SourceCIDR: []string{"10.0.0.0/8"}, Action: settings.ActionDeny},
		},
	})

	if action := e.Check(tcpSource("10.1.2.3")); action != settings.ActionDeny {
		t.Errorf("Expected the priority-10 deny rule to win, got '%s'", action)
	}
	if action := e.Check(tcpSource("203.0.113.7")); action != settings.ActionAllow {
		t.Errorf("Expected the catch-all allow rule, got '%s'", action)
	}
}

func TestCheck_UDPSource(t *testing.T) {
	e := NewEngine()
	applyAccessSettings(t, e, &settings.AccessSettings{
		Enabled: true,
		Rules: []*settings.AccessRule{
			{Priority: 1, SourceCIDR: []string{"10.0.0.0/8"}, Action: settings.ActionAllow},
		},
	})
	source := &net.UDPAddr{IP: net.ParseIP("10.9.8.7"), Port: 4444}
	if action := e.Check(source); action != settings.ActionAllow {
		t.Errorf("Expected allow for UDP source in 10.0.0.0/8, got '%s'", action)
	}
}

func TestOnSettingsUpdate_SkipsInvalidRules(t *testing.T) {
	e := NewEngine()
	applyAccessSettings(t, e, &settings.AccessSettings{
		Enabled: true,
		Rules: []*settings.AccessRule{
			{Priority: 1, SourceCIDR: []string{"not-an-ip"}, Action: settings.ActionDeny},
			{Priority: 2, SourceCIDR: []string{"127.0.0.1/32"}, Action: settings.ActionAllow},
		},
	})

	if action := e.Check(tcpSource("127.0.0.1")); action != settings.ActionAllow {
		t.Errorf("Expected the valid rule to survive, got '%s'", action)
	}
}

func TestOnSettingsUpdate_WrongType(t *testing.T) {
	e := NewEngine()
	if err := e.OnSettingsUpdate("access", "not-a-settings-struct"); err == nil {
		t.Fatal("Expected an error for a wrong settings type, got nil")
	}
}

func TestOnSettingsUpdate_IgnoresOtherModules(t *testing.T) {
	e := NewEngine()
	applyAccessSettings(t, e, &settings.AccessSettings{
		Enabled: true,
		Rules: []*settings.AccessRule{
			{Priority: 1, SourceCIDR: []string{"127.0.0.1/32"}, Action: settings.ActionAllow},
		},
	})

	if err := e.OnSettingsUpdate("logging", &settings.LoggingSettings{Level: "debug"}); err != nil {
		t.Fatalf("Expected other module keys to be ignored, got error: %v", err)
	}
	if action := e.Check(tcpSource("127.0.0.1")); action != settings.ActionAllow {
		t.Errorf("Expected rules to stay loaded after an unrelated update, got '%s'", action)
	}
}
