// Package transform provides the pluggable bytecode transformers an
// enhancement run can drive. Implementations register here by name;
// the configured name selects one at startup.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"classforge/internal/enhance"
	"classforge/internal/logging"
)

// Settings carries the transformer-specific configuration.
type Settings struct {
	Command string
	Args    []string
	Script  string
}

// Factory builds a transformer from its settings.
type Factory func(Settings) (enhance.Transformer, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a factory under a name. An existing factory with the
// same name is replaced.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	logging.TransformDebug("registering transformer factory %s", name)
	factories[name] = f
}

// New builds the named transformer.
func New(name string, s Settings) (enhance.Transformer, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transformer %s (available: %s)", name, strings.Join(Names(), ", "))
	}
	return f(s)
}

// Names lists the registered transformer names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("noop", func(Settings) (enhance.Transformer, error) {
		return NewNoop(), nil
	})
	Register("exec", func(s Settings) (enhance.Transformer, error) {
		return NewExec(s.Command, s.Args)
	})
	Register("script", func(s Settings) (enhance.Transformer, error) {
		return LoadScript(s.Script)
	})
}
