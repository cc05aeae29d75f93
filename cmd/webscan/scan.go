package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/webscan/internal/config"
	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
	"github.com/bryanwahyu/webscan/internal/middleware"
)

var (
	scanEngines    string
	scanStore      string
	scanSequential bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Run the engines against one target and print the combined record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scanStore != "" {
			cfg.Database.Driver = scanStore
		}
		if cmd.Flags().Changed("sequential") {
			cfg.Scan.Sequential = scanSequential
		}

		// Ctrl-C must reach the engines: they run in their own process groups
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		if err := a.store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		rec, err := runScan(ctx, a, cfg, args[0], scanEngines)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

// runScan runs every configured engine, or the subset named in engines,
// and returns the record as stored.
func runScan(ctx context.Context, a *app, cfg *config.Config, raw, engines string) (*domain.Record, error) {
	if engines == "" {
		return a.service.Analyze(ctx, raw)
	}
	selected, err := selectEngines(cfg, engines)
	if err != nil {
		return nil, err
	}
	target, err := domain.ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	rec, err := a.service.RunAll(ctx, target, selected)
	if err != nil {
		return nil, err
	}
	stored, err := a.service.Get(ctx, rec.RunID)
	if err != nil {
		return nil, fmt.Errorf("%w: run %s: %w", domain.ErrStoreRead, rec.RunID, err)
	}
	return stored, nil
}

// selectEngines picks a subset of engines, keeping the configured settings
// of each and falling back to defaults for unconfigured ones.
func selectEngines(cfg *config.Config, list string) ([]domain.EngineConfig, error) {
	names, err := middleware.ValidateEngines(list)
	if err != nil {
		return nil, err
	}
	configured := map[domain.Engine]domain.EngineConfig{}
	for _, e := range cfg.EngineConfigs() {
		configured[e.Name] = e
	}
	out := make([]domain.EngineConfig, 0, len(names))
	for _, n := range names {
		e, ok := configured[n]
		if !ok {
			e = domain.EngineConfig{Name: n, Timeout: cfg.Scan.DefaultTimeout}
		}
		out = append(out, e)
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	scanCmd.Flags().StringVar(&scanEngines, "engines", "", "comma separated subset of engines (default: all configured)")
	scanCmd.Flags().StringVar(&scanStore, "store", "", "override database.driver (postgres, mysql or memory)")
	scanCmd.Flags().BoolVar(&scanSequential, "sequential", false, "run engines one at a time")
	rootCmd.AddCommand(scanCmd)
}
