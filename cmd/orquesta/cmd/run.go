package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmolina-dev/orquesta/internal/definition"
	"github.com/hmolina-dev/orquesta/internal/events"
	"github.com/hmolina-dev/orquesta/internal/runtime"
)

var runInputs []string

var runCmd = &cobra.Command{
	Use:   "run <definition-file>",
	Short: "Execute one workflow definition and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflow,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil,
		"initial run variable as key=value (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	def, err := definition.Load(args[0])
	if err != nil {
		return err
	}
	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}

	bus := events.NewBus(256)
	defer bus.Close()
	engine, monitor, err := buildEngine(cfg, logger, bus)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if monitor != nil {
		monitor.Start(ctx)
	}

	progress := bus.Subscribe(events.TopicNodeStatus)
	go func() {
		for msg := range progress {
			if p, ok := msg.Payload.(events.NodeStatusPayload); ok {
				logger.Info("node "+p.Status, "node_id", p.NodeID)
			}
		}
	}()

	runID, err := engine.Submit(def, inputs)
	if err != nil {
		return err
	}
	logger.Info("run submitted", "run_id", runID, "definition_id", def.ID)

	snap, err := waitForRun(ctx, engine, runID)
	if err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", "error", err)
	}

	switch snap.Status {
	case runtime.StatusCompleted:
		logger.Info("run completed",
			"duration", snap.Duration,
			"nodes_completed", len(snap.CompletedNodes))
		return nil
	case runtime.StatusStopped:
		return fmt.Errorf("run %s was stopped", runID)
	default:
		if snap.FailedNode != "" {
			return fmt.Errorf("run %s failed at node %s: %s", runID, snap.FailedNode, snap.Error)
		}
		return fmt.Errorf("run %s failed: %s", runID, snap.Error)
	}
}

// waitForRun polls until the run reaches a terminal status. An
// interrupt requests a cooperative stop and keeps waiting.
func waitForRun(ctx context.Context, engine *runtime.Engine, runID string) (runtime.RunSnapshot, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case <-done:
			engine.Stop(runID)
			done = nil
		case <-ticker.C:
		}

		snap, ok := engine.GetRun(runID)
		if !ok {
			return runtime.RunSnapshot{}, fmt.Errorf("run %s disappeared", runID)
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
	}
}
