package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockModule records OnSettingsUpdate calls on a channel so tests can
// wait for the asynchronous notify.
type mockModule struct {
	received chan interface{}
}

func newMockModule() *mockModule {
	return &mockModule{received: make(chan interface{}, 1)}
}

func (m *mockModule) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	m.received <- newSettings
	return nil
}

func TestNewSettingsManager_InMemoryDefaults(t *testing.T) {
	sm, err := NewSettingsManager("")
	if err != nil {
		t.Fatalf("NewSettingsManager failed: %v", err)
	}

	current := sm.Get()
	if current.Access == nil {
		t.Fatal("Expected default access settings, got nil")
	}
	if current.Access.Enabled {
		t.Error("Expected access control to be disabled by default")
	}
	if len(current.Access.Rules) != 1 || current.Access.Rules[0].Action != ActionAllow {
		t.Errorf("Expected a single default allow rule, got %+v", current.Access.Rules)
	}
	if current.Logging == nil {
		t.Fatal("Expected default logging settings, got nil")
	}
}

func TestNewSettingsManager_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if _, err := NewSettingsManager(path); err != nil {
		t.Fatalf("NewSettingsManager failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected settings.json to be created: %v", err)
	}
	var onDisk RuntimeSettings
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("settings.json is not valid JSON: %v", err)
	}
	if onDisk.Access == nil {
		t.Error("Expected persisted defaults to contain the access module")
	}
}

func TestNewSettingsManager_LoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	content := `{"access": {"enabled": true, "rules": [{"priority": 1, "source_cidr": ["127.0.0.1/32"], "action": "allow"}]}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write settings fixture: %v", err)
	}

	sm, err := NewSettingsManager(path)
	if err != nil {
		t.Fatalf("NewSettingsManager failed: %v", err)
	}

	current := sm.Get()
	if !current.Access.Enabled {
		t.Error("Expected access.enabled=true from file")
	}
	if current.Logging == nil {
		t.Error("Expected missing logging module to be filled with defaults")
	}
}

func TestUpdate_SwapsSnapshotAndNotifies(t *testing.T) {
	sm, err := NewSettingsManager("")
	if err != nil {
		t.Fatalf("NewSettingsManager failed: %v", err)
	}

	module := newMockModule()
	sm.Register("access", module)

	before := sm.Get()

	raw := json.RawMessage(`{"enabled": true, "rules": [{"priority": 1, "source_cidr": ["10.0.0.0/8"], "action": "deny"}]}`)
	if err := sm.Update("access", raw); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	after := sm.Get()
	if !after.Access.Enabled {
		t.Error("Expected updated snapshot to have access enabled")
	}
	if before.Access.Enabled {
		t.Error("Expected the old snapshot to stay unchanged")
	}
	if before.Access.Rules[0].Priority != 9999 || before.Access.Rules[0].Action != ActionAllow {
		t.Errorf("Expected the old snapshot's rules to stay unchanged, got %+v", before.Access.Rules[0])
	}

	select {
	case received := <-module.received:
		accessSettings, ok := received.(*AccessSettings)
		if !ok {
			t.Fatalf("Expected *AccessSettings, got %T", received)
		}
		if len(accessSettings.Rules) != 1 || accessSettings.Rules[0].Action != ActionDeny {
			t.Errorf("Subscriber received wrong rules: %+v", accessSettings.Rules)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscriber was not notified within 2s")
	}
}

func TestUpdate_PersistsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	sm, err := NewSettingsManager(path)
	if err != nil {
		t.Fatalf("NewSettingsManager failed: %v", err)
	}

	raw := json.RawMessage(`{"level": "debug"}`)
	if err := sm.Update("logging", raw); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read persisted settings: %v", err)
	}
	var onDisk RuntimeSettings
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("Persisted settings are not valid JSON: %v", err)
	}
	if onDisk.Logging == nil || onDisk.Logging.Level != "debug" {
		t.Errorf("Expected persisted logging level 'debug', got %+v", onDisk.Logging)
	}
}

func TestUpdate_UnknownModule(t *testing.T) {
	sm, err := NewSettingsManager("")
	if err != nil {
		t.Fatalf("NewSettingsManager failed: %v", err)
	}
	if err := sm.Update("bogus", json.RawMessage(`{}`)); err == nil {
		t.Fatal("Expected an error for an unknown module key, got nil")
	}
}

func TestUpdate_RejectsMalformedJSON(t *testing.T) {
	sm, err := NewSettingsManager("")
	if err != nil {
		t.Fatalf("NewSettingsManager failed: %v", err)
	}
	if err := sm.Update("access", json.RawMessage(`{not json`)); err == nil {
		t.Fatal("Expected an error for malformed JSON, got nil")
	}
	if sm.Get().Access.Enabled {
		t.Error("Expected settings to stay unchanged after a failed update")
	}
}
