// Package main implements the classforge CLI. This file handles the
// one-shot enhance command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"classforge/internal/classpath"
	"classforge/internal/config"
	"classforge/internal/diag"
	"classforge/internal/enhance"
	"classforge/internal/transform"
)

var (
	flagDir             string
	flagFailOnError     bool
	flagLazyInit        bool
	flagDirtyTracking   bool
	flagAssociationMgmt bool
	flagExtended        bool
	flagDependencies    []string
	flagTransformer     string
	flagDiagnosticsOut  string
)

// enhanceCmd runs one enhancement pass over the classes directory
var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Enhance the compiled classes once",
	Long: `Runs one enhancement pass: scans the classes directory, builds the
loading context, transforms every class file, and writes the rewrites
back in place.

Example:
  forge enhance --enable-dirty-tracking --dependency lib/core.jar=compile`,
	RunE: runEnhance,
}

func init() {
	addEnhanceFlags(enhanceCmd)
}

// addEnhanceFlags registers the flags shared by enhance and watch.
func addEnhanceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagDir, "dir", "", "Classes directory (default: detected from build layout)")
	cmd.Flags().BoolVar(&flagFailOnError, "fail-on-error", true, "Abort the run on the first failure")
	cmd.Flags().BoolVar(&flagLazyInit, "enable-lazy-initialization", false, "Enhance for lazy initialization")
	cmd.Flags().BoolVar(&flagDirtyTracking, "enable-dirty-tracking", false, "Enhance for dirty tracking")
	cmd.Flags().BoolVar(&flagAssociationMgmt, "enable-association-management", false, "Enhance for association management")
	cmd.Flags().BoolVar(&flagExtended, "enable-extended-enhancement", false, "Enhance classes beyond entities (use with care)")
	cmd.Flags().StringSliceVar(&flagDependencies, "dependency", nil, "Classpath dependency as path=scope (repeatable)")
	cmd.Flags().StringVar(&flagTransformer, "transformer", "", "Transformer to run (noop, exec, script)")
	cmd.Flags().StringVar(&flagDiagnosticsOut, "diagnostics-out", "", "Append diagnostics to this JSON-lines file")
}

// applyEnhanceFlags folds explicitly set flags over the loaded config.
func applyEnhanceFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("dir") {
		cfg.Dir = flagDir
	}
	if flags.Changed("fail-on-error") {
		cfg.FailOnError = flagFailOnError
	}
	if flags.Changed("enable-lazy-initialization") {
		cfg.Enhance.LazyInitialization = flagLazyInit
	}
	if flags.Changed("enable-dirty-tracking") {
		cfg.Enhance.DirtyTracking = flagDirtyTracking
	}
	if flags.Changed("enable-association-management") {
		cfg.Enhance.AssociationManagement = flagAssociationMgmt
	}
	if flags.Changed("enable-extended-enhancement") {
		cfg.Enhance.ExtendedEnhancement = flagExtended
	}
	if flags.Changed("transformer") {
		cfg.Transformer.Name = flagTransformer
	}
	if flags.Changed("diagnostics-out") {
		cfg.Diagnostics.File = flagDiagnosticsOut
	}
	if flags.Changed("dependency") {
		deps := make([]config.Dependency, 0, len(flagDependencies))
		for _, raw := range flagDependencies {
			path, scope := raw, ""
			if i := strings.LastIndex(raw, "="); i >= 0 {
				path, scope = raw[:i], raw[i+1:]
			}
			if path == "" {
				return fmt.Errorf("invalid dependency %q (expected path=scope)", raw)
			}
			deps = append(deps, config.Dependency{Path: path, Scope: scope})
		}
		cfg.Dependencies = deps
	}

	return nil
}

// resolvePath anchors a config-relative path at the workspace.
func resolvePath(ws, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ws, path)
}

// buildOrchestrator assembles the orchestrator and its sinks from the
// effective config. The caller owns the returned cleanup.
func buildOrchestrator(cfg *config.Config, ws string, collector *diag.Collector) (*enhance.Orchestrator, func(), error) {
	deps := make([]classpath.Entry, 0, len(cfg.Dependencies))
	for _, d := range cfg.Dependencies {
		scope, err := classpath.ParseScope(d.Scope)
		if err != nil {
			return nil, nil, fmt.Errorf("dependency %s: %w", d.Path, err)
		}
		deps = append(deps, classpath.Entry{Path: resolvePath(ws, d.Path), Scope: scope})
	}

	transformer, err := transform.New(cfg.Transformer.Name, transform.Settings{
		Command: cfg.Transformer.Command,
		Args:    cfg.Transformer.Args,
		Script:  resolvePath(ws, cfg.Transformer.Script),
	})
	if err != nil {
		return nil, nil, err
	}

	sinks := []diag.Sink{collector, diag.NewZapSink(logger)}
	cleanup := func() {}
	if cfg.Diagnostics.File != "" {
		fileSink, err := diag.NewFileSink(resolvePath(ws, cfg.Diagnostics.File))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileSink)
		cleanup = func() { _ = fileSink.Close() }
	}

	o := enhance.New(enhance.Options{
		ClassesDir:   cfg.ClassesDir(ws),
		Dependencies: deps,
		Capabilities: enhance.Capabilities{
			LazyInitialization:    cfg.Enhance.LazyInitialization,
			DirtyTracking:         cfg.Enhance.DirtyTracking,
			AssociationManagement: cfg.Enhance.AssociationManagement,
			ExtendedEnhancement:   cfg.Enhance.ExtendedEnhancement,
		},
		FailOnError: cfg.FailOnError,
		Transformer: transformer,
		Sink:        diag.Multi(sinks...),
		Logger:      logger,
	})

	return o, cleanup, nil
}

func runEnhance(cmd *cobra.Command, args []string) error {
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

	collector := diag.NewCollector()
	o, cleanup, err := buildOrchestrator(cfg, ws, collector)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	report, runErr := o.Run(ctx)

	fmt.Printf("enhancement %s: %d scanned, %d enhanced, %d unchanged, %d failed (run %s, %s)\n",
		report.State, report.Scanned, report.Enhanced, report.Unchanged, report.Failed,
		report.RunID, report.Duration.Round(time.Millisecond))
	if n := collector.Count(diag.SeverityWarning) + collector.Count(diag.SeverityError); n > 0 {
		fmt.Printf("%d diagnostics recorded\n", n)
	}

	return runErr
}
