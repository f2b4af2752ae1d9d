package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"classforge/internal/config"
	"classforge/internal/logging"
)

var (
	// Global flags
	verbose   bool
	cfgFile   string
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "classforge - build-time bytecode enhancement for compiled classes",
	Long: `classforge rewrites compiled class files after the build: it discovers
the class artifacts in your output directory, assembles their loading
context from the declared dependencies, runs each class through the
configured transformer, and persists every rewrite atomically.

Configuration comes from classforge.yaml at the workspace root,
FORGE_* environment variables, and command-line flags, in rising
order of precedence.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(resolveWorkspace()); err != nil {
			logger.Warn("debug logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: <workspace>/classforge.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	// Add commands to root
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(transformersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the workspace root, defaulting to the
// current directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// loadRunConfig loads the effective configuration and returns it with
// the resolved workspace.
func loadRunConfig() (*config.Config, string, error) {
	ws := resolveWorkspace()

	path := cfgFile
	if path == "" {
		path = filepath.Join(ws, config.DefaultFileName)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Workspace = ws
	logging.ConfigDebug("loaded config from %s (transformer=%s fail_on_error=%v)",
		path, cfg.Transformer.Name, cfg.FailOnError)

	return cfg, ws, nil
}
