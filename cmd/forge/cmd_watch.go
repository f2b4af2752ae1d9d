// Package main implements the classforge CLI. This file handles watch
// mode: re-enhance whenever the compiled classes change.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"classforge/internal/diag"
	"classforge/internal/watch"
)

var flagDebounce time.Duration

// watchCmd keeps enhancing as the build output changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the classes directory and re-enhance on change",
	Long: `Runs one enhancement pass, then watches the classes directory. Each
settled batch of class file changes triggers another pass, so the
enhanced output tracks the build.

Example:
  forge watch --enable-dirty-tracking --debounce 1s`,
	RunE: runWatch,
}

func init() {
	addEnhanceFlags(watchCmd)
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 0, "Settle window before a change batch triggers a run (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadRunConfig()
	if err != nil {
		return err
	}
	if err := applyEnhanceFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	debounce := cfg.GetWatchDebounce()
	if cmd.Flags().Changed("debounce") {
		debounce = flagDebounce
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runOnce := func(ctx context.Context) {
		collector := diag.NewCollector()
		o, cleanup, err := buildOrchestrator(cfg, ws, collector)
		if err != nil {
			logger.Error("failed to build run", zap.Error(err))
			return
		}
		defer cleanup()

		report, err := o.Run(ctx)
		if err != nil {
			logger.Error("run aborted", zap.String("run_id", report.RunID), zap.Error(err))
		}
		fmt.Printf("enhancement %s: %d scanned, %d enhanced, %d unchanged, %d failed (run %s)\n",
			report.State, report.Scanned, report.Enhanced, report.Unchanged, report.Failed, report.RunID)
	}

	// Initial pass before the watch starts
	runOnce(ctx)

	w, err := watch.New(cfg.ClassesDir(ws), debounce, runOnce)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Printf("watching %s (debounce %s), press Ctrl+C to stop\n", cfg.ClassesDir(ws), debounce)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nStopping")
	w.Stop()

	stats := w.Stats()
	fmt.Printf("saw %d events, triggered %d runs\n", stats.EventsSeen, stats.RunsTriggered)
	return nil
}
