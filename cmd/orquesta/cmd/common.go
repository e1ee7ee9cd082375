package cmd

import (
	"fmt"
	"strings"

	"github.com/hmolina-dev/orquesta/internal/config"
	"github.com/hmolina-dev/orquesta/internal/events"
	"github.com/hmolina-dev/orquesta/internal/logging"
	"github.com/hmolina-dev/orquesta/internal/memmon"
	"github.com/hmolina-dev/orquesta/internal/nodes"
	"github.com/hmolina-dev/orquesta/internal/registry"
	"github.com/hmolina-dev/orquesta/internal/runtime"
)

// buildRegistry creates a registry with the built-in node palette.
func buildRegistry(logger *logging.Logger) (*registry.Registry, error) {
	reg := registry.New(logger)
	if err := nodes.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("registering built-in nodes: %w", err)
	}
	return reg, nil
}

// buildEngine assembles an engine from the loaded configuration.
func buildEngine(cfg *config.Config, logger *logging.Logger, publisher events.Publisher) (*runtime.Engine, *memmon.Monitor, error) {
	reg, err := buildRegistry(logger)
	if err != nil {
		return nil, nil, err
	}

	var monitor *memmon.Monitor
	if cfg.Memory.Enabled {
		monitor = memmon.New(memmon.Config{
			Interval:      cfg.Memory.Interval,
			WarningMB:     cfg.Memory.WarningMB,
			CriticalMB:    cfg.Memory.CriticalMB,
			HistorySize:   cfg.Memory.HistorySize,
			AlertCooldown: cfg.Memory.AlertCooldown,
		}, logger)
	}

	engine := runtime.NewEngine(runtime.Config{
		MaxConcurrentWorkflows: cfg.Engine.MaxConcurrentWorkflows,
		DefaultTimeout:         cfg.Engine.DefaultTimeout,
		MaxNodeExecutionTime:   cfg.Engine.MaxNodeExecutionTime,
		MaxHistorySize:         cfg.Engine.MaxHistorySize,
		LoopMaxIterations:      cfg.Engine.LoopMaxIterations,
		LoopTimeout:            cfg.Engine.LoopTimeout,
		AssetsRoot:             cfg.Engine.AssetsRoot,
	}, runtime.Deps{
		Logger:    logger,
		Registry:  reg,
		Monitor:   monitor,
		Publisher: publisher,
	})
	return engine, monitor, nil
}

// parseInputs turns repeated key=value flags into the initial variable
// map of a run.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid input %q, want key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}
