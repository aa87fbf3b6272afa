package settings

// AccessAction decides what happens to an inbound connection.
type AccessAction string

const (
	ActionAllow AccessAction = "allow"
	ActionDeny  AccessAction = "deny"
)

// AccessRule matches inbound connections by their source address.
// An empty SourceCIDR list matches every source.
type AccessRule struct {
	Priority   int          `json:"priority"` // Lower value means higher priority
	SourceCIDR []string     `json:"source_cidr,omitempty"`
	Action     AccessAction `json:"action"` // "allow" or "deny"
}

// AccessSettings corresponds to the "access" module of settings.json.
type AccessSettings struct {
	Enabled bool          `json:"enabled"`
	Rules   []*AccessRule `json:"rules"`
}

// LoggingSettings corresponds to the "logging" module of settings.json.
// An empty level leaves the startup level untouched.
type LoggingSettings struct {
	Level string `json:"level"`
}

// ConfigurableModule is implemented by every module whose configuration
// can be managed online. The SettingsManager invokes the callback when
// the module's settings change.
type ConfigurableModule interface {
	// OnSettingsUpdate is called by the SettingsManager on change.
	// moduleKey names the module whose settings changed (e.g. "access").
	// newSettings is a pointer to the parsed settings structure of that
	// module (e.g. *AccessSettings).
	OnSettingsUpdate(moduleKey string, newSettings interface{}) error
}

// RuntimeSettings is the top-level structure of settings.json. Pointer
// fields stay nil when a module is absent from the file, which lets the
// loader tell "missing" from "empty".
type RuntimeSettings struct {
	Access  *AccessSettings  `json:"access"`
	Logging *LoggingSettings `json:"logging"`
}

func createDefaultSettings() *RuntimeSettings {
	return &RuntimeSettings{
		Access: &AccessSettings{
			Enabled: false,
			Rules: []*AccessRule{
				{Priority: 9999, Action: ActionAllow},
			},
		},
		Logging: &LoggingSettings{},
	}
}

func ensureDefaultModules(s *RuntimeSettings) {
	if s.Access == nil {
		s.Access = &AccessSettings{Rules: []*AccessRule{}}
	}
	if s.Logging == nil {
		s.Logging = &LoggingSettings{}
	}
}
