package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmolina-dev/orquesta/internal/api"
	"github.com/hmolina-dev/orquesta/internal/definition"
	"github.com/hmolina-dev/orquesta/internal/events"
	"github.com/hmolina-dev/orquesta/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow engine behind an HTTP API",
	RunE:  serve,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

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

	serverCfg := api.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		EnableCORS:      cfg.Server.EnableCORS,
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		serverCfg.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		serverCfg.Port = port
	}

	server := api.New(serverCfg, engine, logger, api.WithEventBus(bus))

	if cfg.Definitions.Watch {
		w := watcher.New(cfg.Definitions.Dir, 0, func(path string) {
			def, err := definition.Load(path)
			if err != nil {
				logger.Warn("definition reload failed", "path", path, "error", err)
				return
			}
			if err := engine.Validate(def); err != nil {
				logger.Warn("changed definition is invalid", "path", path, "error", err)
				return
			}
			logger.Info("definition validated", "path", path, "definition_id", def.ID)
		}, logger)
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("definitions watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", "error", err)
	}
	return nil
}
