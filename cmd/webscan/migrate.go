package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/webscan/internal/infra/executor/process"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the record table and its index if missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.store.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("schema ready", "driver", cfg.Database.Driver, "table", cfg.Database.Table)
		return nil
	},
}

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List configured engines and whether their binaries are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := process.NewRunner(cfg.Scan.TempDir, logger)
		runner.Docker = cfg.Scan.Docker

		out := cmd.OutOrStdout()
		for _, e := range cfg.EngineConfigs() {
			status := "ok"
			if err := runner.Check(e); err != nil {
				status = err.Error()
			}
			fmt.Fprintf(out, "%-8s timeout=%-6s %s\n", e.Name, e.Timeout, status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, enginesCmd)
}
