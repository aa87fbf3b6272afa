package types

// CommonConf holds behavior shared by every serving component.
type CommonConf struct {
	MaxConnections int `ini:"maxConnections"`
	BufferSize     int `ini:"bufferSize"`
}

// LocalConf holds the listening endpoints of the demo binary.
type LocalConf struct {
	ListenHost  string `ini:"listen_host"`
	ListenPort  int    `ini:"listen_port"`
	WebPort     int    `ini:"web_port"`
	WebUser     string `ini:"web_user"`
	WebPassword string `ini:"web_password"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// HealthConf controls the periodic self-probe. An interval of 0
// disables the probe loop.
type HealthConf struct {
	ProbeInterval int `ini:"probe_interval"` // seconds
}

// Config is the unified behavior configuration of the demo server.
type Config struct {
	CommonConf `ini:"common"`
	LocalConf  `ini:"local"`
	LogConf    `ini:"log"`
	HealthConf `ini:"health"`
}
