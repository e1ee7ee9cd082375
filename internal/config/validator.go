package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"json": true,
	"text": true,
}

// Validate checks the loaded configuration for values the runtime cannot
// work with. Zero-valued durations are allowed; the engine substitutes
// its own defaults.
func (c *Config) Validate() error {
	var problems []string

	if !validLogLevels[c.Log.Level] {
		problems = append(problems, fmt.Sprintf("log.level: unknown level %q", c.Log.Level))
	}
	if !validLogFormats[c.Log.Format] {
		problems = append(problems, fmt.Sprintf("log.format: unknown format %q", c.Log.Format))
	}

	if c.Engine.MaxConcurrentWorkflows < 0 {
		problems = append(problems, "engine.max_concurrent_workflows: must not be negative")
	}
	if c.Engine.MaxHistorySize < 0 {
		problems = append(problems, "engine.max_history_size: must not be negative")
	}
	if c.Engine.LoopMaxIterations < 0 {
		problems = append(problems, "engine.loop_max_iterations: must not be negative")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port: %d out of range", c.Server.Port))
	}

	if c.Memory.Enabled {
		if c.Memory.WarningMB <= 0 {
			problems = append(problems, "memory.warning_mb: must be positive")
		}
		if c.Memory.CriticalMB <= c.Memory.WarningMB {
			problems = append(problems, "memory.critical_mb: must exceed memory.warning_mb")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
