// Package config loads the runtime configuration from files, environment
// variables, and CLI flags, in that reverse order of precedence.
package config

import (
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Server      ServerConfig      `mapstructure:"server"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig bounds workflow execution.
type EngineConfig struct {
	MaxConcurrentWorkflows int           `mapstructure:"max_concurrent_workflows"`
	DefaultTimeout         time.Duration `mapstructure:"default_timeout"`
	MaxNodeExecutionTime   time.Duration `mapstructure:"max_node_execution_time"`
	MaxHistorySize         int           `mapstructure:"max_history_size"`
	LoopMaxIterations      int           `mapstructure:"loop_max_iterations"`
	LoopTimeout            time.Duration `mapstructure:"loop_timeout"`
	AssetsRoot             string        `mapstructure:"assets_root"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	EnableCORS      bool          `mapstructure:"enable_cors"`
}

// MemoryConfig controls the process memory monitor.
type MemoryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	WarningMB     float64       `mapstructure:"warning_mb"`
	CriticalMB    float64       `mapstructure:"critical_mb"`
	HistorySize   int           `mapstructure:"history_size"`
	AlertCooldown time.Duration `mapstructure:"alert_cooldown"`
}

// DefinitionsConfig controls workflow definition loading.
type DefinitionsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}
