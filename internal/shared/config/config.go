package config

import (
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"sandboxdemo/internal/shared/types"
)

const (
	// DefaultListenPort matches the original demo binary.
	DefaultListenPort = 8080
	// DefaultBufferSize is the size of the single read buffer. One
	// request never reads more than DefaultBufferSize-1 bytes.
	DefaultBufferSize = 4096
	// DefaultMaxConnections keeps the demo serving one client at a time.
	DefaultMaxConnections = 1
)

// Default returns the configuration the binary runs with when no ini
// file is present: port 8080, a 4096-byte buffer and a single
// connection slot.
func Default() *types.Config {
	cfg := &types.Config{}
	cfg.CommonConf.BufferSize = DefaultBufferSize
	cfg.CommonConf.MaxConnections = DefaultMaxConnections
	cfg.LocalConf.ListenHost = "0.0.0.0"
	cfg.LocalConf.ListenPort = DefaultListenPort
	cfg.LogConf.Level = "info"
	return cfg
}

// LoadIni loads the behavior configuration file on top of cfg.
// A missing file is not an error: the built-in defaults stay in effect
// so the binary runs unconfigured. The PORT environment variable wins
// over both.
func LoadIni(cfg *types.Config, fileName string) error {
	if _, err := os.Stat(fileName); err == nil {
		iniFile, err := ini.Load(fileName)
		if err != nil {
			return err
		}
		if err := iniFile.MapTo(cfg); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	overrideFromEnvInt(&cfg.LocalConf.ListenPort, "PORT")
	normalize(cfg)
	return nil
}

// normalize clamps values the serving loop cannot work with back to
// their defaults instead of failing startup.
func normalize(cfg *types.Config) {
	if cfg.CommonConf.BufferSize < 2 {
		cfg.CommonConf.BufferSize = DefaultBufferSize
	}
	if cfg.CommonConf.MaxConnections < 1 {
		cfg.CommonConf.MaxConnections = DefaultMaxConnections
	}
	if cfg.LocalConf.ListenPort < 0 || cfg.LocalConf.ListenPort > 65535 {
		cfg.LocalConf.ListenPort = DefaultListenPort
	}
	if cfg.LocalConf.ListenHost == "" {
		cfg.LocalConf.ListenHost = "0.0.0.0"
	}
	if cfg.HealthConf.ProbeInterval < 0 {
		cfg.HealthConf.ProbeInterval = 0
	}
	if cfg.LocalConf.WebPort < 0 || cfg.LocalConf.WebPort > 65535 {
		cfg.LocalConf.WebPort = 0
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
