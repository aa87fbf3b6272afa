package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// SettingsManager owns the runtime configuration. Reads are lock-free
// snapshots; updates go through a publish/subscribe cycle so modules
// can react to changes without restarting the process.
type SettingsManager struct {
	filePath    string
	settings    atomic.Value // holds a *RuntimeSettings pointer
	subscribers map[string][]ConfigurableModule
	mu          sync.RWMutex // guards subscribers and file writes
}

// NewSettingsManager creates and initializes a settings manager. It
// loads the file at filePath immediately; an empty path runs the
// manager purely in memory.
func NewSettingsManager(filePath string) (*SettingsManager, error) {
	sm := &SettingsManager{
		filePath:    filePath,
		subscribers: make(map[string][]ConfigurableModule),
	}

	if filePath == "" {
		sm.settings.Store(createDefaultSettings())
		return sm, nil
	}

	if err := sm.load(); err != nil {
		return nil, fmt.Errorf("failed to load initial settings: %w", err)
	}

	return sm, nil
}

// load reads settings.json from disk. A missing file initializes the
// defaults; failing to write them back is only a warning so the binary
// still runs from a read-only or absent config directory.
func (sm *SettingsManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	settings := &RuntimeSettings{}

	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", sm.filePath).Msg("settings.json not found, creating with default values.")
			settings = createDefaultSettings()
			if err := sm.persist(settings); err != nil {
				log.Warn().Err(err).Str("path", sm.filePath).Msg("Could not write default settings file, continuing in-memory.")
			}
		} else {
			return fmt.Errorf("failed to read settings file: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, settings); err != nil {
			return fmt.Errorf("failed to parse settings.json: %w", err)
		}
		// Modules missing from the JSON must not stay nil.
		ensureDefaultModules(settings)
	}

	sm.settings.Store(settings)
	return nil
}

// Register subscribes a module to updates of one settings key.
func (sm *SettingsManager) Register(moduleKey string, module ConfigurableModule) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.subscribers[moduleKey] = append(sm.subscribers[moduleKey], module)
}

// Get returns a snapshot of the current runtime settings. Lock-free.
func (sm *SettingsManager) Get() *RuntimeSettings {
	return sm.settings.Load().(*RuntimeSettings)
}

// Update takes raw JSON for one module, atomically swaps the in-memory
// configuration, persists it to disk and notifies the subscribers.
func (sm *SettingsManager) Update(moduleKey string, newSettingsData json.RawMessage) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// 1. Copy the current settings so readers of the old snapshot are
	// never mutated under their feet.
	currentSettings := sm.Get()
	newSettings := deepCopy(currentSettings)

	// 2. Unmarshal the new JSON into the module of the copy.
	targetModule := getModuleByKey(newSettings, moduleKey)
	if targetModule == nil {
		return fmt.Errorf("unknown settings module: %s", moduleKey)
	}
	if err := json.Unmarshal(newSettingsData, targetModule); err != nil {
		return fmt.Errorf("failed to parse JSON for module %s: %w", moduleKey, err)
	}

	// 3. Persist to file (skipped in in-memory mode).
	if sm.filePath != "" {
		if err := sm.persist(newSettings); err != nil {
			return fmt.Errorf("failed to save updated settings to disk: %w", err)
		}
	}

	// 4. Atomically replace the settings pointer.
	sm.settings.Store(newSettings)

	// 5. Notify subscribers asynchronously.
	go sm.notify(moduleKey, targetModule)

	return nil
}

// persist writes the full settings structure to settings.json.
func (sm *SettingsManager) persist(settings *RuntimeSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sm.filePath, data, 0644)
}

// notify calls every subscriber registered for the module key.
func (sm *SettingsManager) notify(moduleKey string, newSettings interface{}) {
	sm.mu.RLock()
	subscribers, ok := sm.subscribers[moduleKey]
	sm.mu.RUnlock()

	if ok {
		log.Debug().Str("module", moduleKey).Int("subscribers", len(subscribers)).Msg("Notifying subscribers of settings update.")
		for _, sub := range subscribers {
			if err := sub.OnSettingsUpdate(moduleKey, newSettings); err != nil {
				log.Error().Err(err).Str("module", moduleKey).Msg("Error notifying subscriber.")
			}
		}
	}
}

// --- helpers ---

func deepCopy(s *RuntimeSettings) *RuntimeSettings {
	newS := *s
	if s.Access != nil {
		accessCopy := *s.Access
		// Rule elements are copied by value. Unmarshalling into the copy
		// must never mutate rules an older snapshot still points to.
		accessCopy.Rules = make([]*AccessRule, len(s.Access.Rules))
		for i, rule := range s.Access.Rules {
			ruleCopy := *rule
			accessCopy.Rules[i] = &ruleCopy
		}
		newS.Access = &accessCopy
	}
	if s.Logging != nil {
		loggingCopy := *s.Logging
		newS.Logging = &loggingCopy
	}
	return &newS
}

func getModuleByKey(s *RuntimeSettings, key string) interface{} {
	switch key {
	case "access":
		return s.Access
	case "logging":
		return s.Logging
	default:
		return nil
	}
}
