package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up at the workspace root.
const DefaultFileName = "classforge.yaml"

// Config holds all classforge configuration.
type Config struct {
	// Workspace is the project root. Set at runtime, never from YAML.
	Workspace string `yaml:"-"`

	// Dir overrides the compiled classes directory. Relative paths
	// resolve against the workspace.
	Dir string `yaml:"dir"`

	// FailOnError aborts the run on the first failure instead of
	// recording it and continuing.
	FailOnError bool `yaml:"fail_on_error"`

	// Enhancement capabilities
	Enhance EnhanceConfig `yaml:"enhance"`

	// Extra classpath entries for the loading context
	Dependencies []Dependency `yaml:"dependencies"`

	// Transformer selection
	Transformer TransformerConfig `yaml:"transformer"`

	// Diagnostics output
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`
}

// EnhanceConfig selects which enhancement capabilities are applied.
type EnhanceConfig struct {
	LazyInitialization    bool `yaml:"lazy_initialization"`
	DirtyTracking         bool `yaml:"dirty_tracking"`
	AssociationManagement bool `yaml:"association_management"`
	ExtendedEnhancement   bool `yaml:"extended_enhancement"`
}

// Dependency is one classpath entry contributed to the loading context.
type Dependency struct {
	Path  string `yaml:"path"`
	Scope string `yaml:"scope"` // compile, runtime, provided, system, test
}

// TransformerConfig configures the bytecode transformer.
type TransformerConfig struct {
	Name    string   `yaml:"name"` // noop, exec, script
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Script  string   `yaml:"script"`
}

// DiagnosticsConfig configures diagnostic persistence.
type DiagnosticsConfig struct {
	File string `yaml:"file"`
}

// LoggingConfig configures debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FailOnError: true,
		Transformer: TransformerConfig{
			Name: "noop",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("FORGE_DIR"); dir != "" {
		c.Dir = dir
	}
	if v := os.Getenv("FORGE_FAIL_ON_ERROR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FailOnError = b
		}
	}
	if name := os.Getenv("FORGE_TRANSFORMER"); name != "" {
		c.Transformer.Name = name
	}
	if cmd := os.Getenv("FORGE_TRANSFORMER_COMMAND"); cmd != "" {
		c.Transformer.Command = cmd
	}
	if script := os.Getenv("FORGE_TRANSFORMER_SCRIPT"); script != "" {
		c.Transformer.Script = script
	}
	if file := os.Getenv("FORGE_DIAGNOSTICS_FILE"); file != "" {
		c.Diagnostics.File = file
	}
	if level := os.Getenv("FORGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetWatchDebounce returns the watch debounce as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// ValidScopes lists all supported dependency scopes.
var ValidScopes = []string{"compile", "runtime", "provided", "system", "test"}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Transformer.Name == "" {
		return fmt.Errorf("transformer name not configured")
	}
	if c.Transformer.Name == "exec" && c.Transformer.Command == "" {
		return fmt.Errorf("exec transformer requires a command")
	}
	if c.Transformer.Name == "script" && c.Transformer.Script == "" {
		return fmt.Errorf("script transformer requires a script path")
	}

	for _, dep := range c.Dependencies {
		if dep.Path == "" {
			return fmt.Errorf("dependency with empty path")
		}
		if dep.Scope == "" {
			continue
		}
		valid := false
		for _, s := range ValidScopes {
			if dep.Scope == s {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid dependency scope: %s (valid: %v)", dep.Scope, ValidScopes)
		}
	}

	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch debounce: %w", err)
		}
	}

	return nil
}

// ClassesDir resolves the compiled classes directory for a workspace.
// An explicit Dir wins; otherwise the build layout is detected.
func (c *Config) ClassesDir(workspace string) string {
	if c.Dir != "" {
		if filepath.IsAbs(c.Dir) {
			return c.Dir
		}
		return filepath.Join(workspace, c.Dir)
	}
	return DetectClassesDir(workspace)
}

// DetectClassesDir guesses the compiled classes directory from the
// build files present at the workspace root.
func DetectClassesDir(workspace string) string {
	if _, err := os.Stat(filepath.Join(workspace, "pom.xml")); err == nil {
		return filepath.Join(workspace, "target", "classes")
	}
	for _, f := range []string{"build.gradle", "build.gradle.kts"} {
		if _, err := os.Stat(filepath.Join(workspace, f)); err == nil {
			return filepath.Join(workspace, "build", "classes", "java", "main")
		}
	}
	return filepath.Join(workspace, "target", "classes")
}
