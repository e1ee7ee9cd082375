package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader reads configuration from files, environment, and flag bindings.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a loader with a fresh viper instance.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance,
// allowing CLI flag bindings to participate in precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "ORQUESTA",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration from all sources.
// Precedence (highest to lowest):
//  1. CLI flags (bound via viper.BindPFlag)
//  2. Environment variables (ORQUESTA_*)
//  3. Project config (.orquesta.yaml in current directory)
//  4. User config (~/.config/orquesta/config.yaml)
//  5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".orquesta")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "orquesta"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("engine.max_concurrent_workflows", 10)
	l.v.SetDefault("engine.default_timeout", "5m")
	l.v.SetDefault("engine.max_node_execution_time", "1m")
	l.v.SetDefault("engine.max_history_size", 500)
	l.v.SetDefault("engine.loop_max_iterations", 1000)
	l.v.SetDefault("engine.loop_timeout", "30s")
	l.v.SetDefault("engine.assets_root", os.TempDir())

	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 8087)
	l.v.SetDefault("server.read_timeout", "15s")
	l.v.SetDefault("server.write_timeout", "30s")
	l.v.SetDefault("server.idle_timeout", "60s")
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	l.v.SetDefault("server.enable_cors", true)

	l.v.SetDefault("memory.enabled", true)
	l.v.SetDefault("memory.interval", "10s")
	l.v.SetDefault("memory.warning_mb", 1024)
	l.v.SetDefault("memory.critical_mb", 2048)
	l.v.SetDefault("memory.history_size", 360)
	l.v.SetDefault("memory.alert_cooldown", "1m")

	l.v.SetDefault("definitions.dir", "workflows")
	l.v.SetDefault("definitions.watch", false)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
