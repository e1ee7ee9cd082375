package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hmolina-dev/orquesta/internal/definition"
	"github.com/hmolina-dev/orquesta/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file-or-directory>",
	Short: "Validate workflow definitions without executing them",
	Args:  cobra.ExactArgs(1),
	RunE:  validateDefinitions,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateDefinitions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := buildRegistry(newLogger(cfg))
	if err != nil {
		return err
	}

	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}

	var defs []*graph.Definition
	if info.IsDir() {
		defs, err = definition.LoadDir(args[0])
	} else {
		var def *graph.Definition
		def, err = definition.Load(args[0])
		defs = []*graph.Definition{def}
	}
	if err != nil {
		return err
	}

	failures := 0
	for _, def := range defs {
		if err := graph.Validate(def, reg); err != nil {
			failures++
			var verr *graph.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(cmd.OutOrStdout(), "INVALID %s\n", def.ID)
				for _, p := range verr.Problems {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
				}
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "INVALID %s: %v\n", def.ID, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK      %s (%d nodes, %d connections)\n",
			def.ID, len(def.Nodes), len(def.Connections))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failures, len(defs))
	}
	return nil
}
