package transform

import (
	"context"
	"fmt"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"classforge/internal/artifact"
	"classforge/internal/classpath"
	"classforge/internal/enhance"
	"classforge/internal/logging"
)

// scriptFuncName is the symbol a transformer script must export.
const scriptFuncName = "Transform"

// scriptFunc is the signature a transformer script must implement:
// class name, class bytes, classpath roots, capability switches in,
// rewritten bytes out (nil for unchanged).
type scriptFunc func(name string, code []byte, roots []string, caps map[string]bool) ([]byte, error)

// Script runs a Go source file as the transformer, interpreted with
// yaegi. The script is loaded once and reused for every class.
type Script struct {
	path string
	fn   scriptFunc
}

// LoadScript loads and type-checks a transformer script.
func LoadScript(path string) (*Script, error) {
	if path == "" {
		return nil, fmt.Errorf("script transformer requires a script path")
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}

	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("failed to evaluate script %s: %w", path, err)
	}

	sym, err := i.Eval(scriptFuncName)
	if err != nil {
		return nil, fmt.Errorf("script %s does not define %s: %w", path, scriptFuncName, err)
	}

	fn, ok := sym.Interface().(func(string, []byte, []string, map[string]bool) ([]byte, error))
	if !ok {
		return nil, fmt.Errorf("script %s: %s has incorrect signature (expected: func(string, []byte, []string, map[string]bool) ([]byte, error))", path, scriptFuncName)
	}

	logging.Transform("loaded transformer script %s", path)
	return &Script{path: path, fn: fn}, nil
}

// Transform invokes the script for one class. The context is not
// threaded through: an interpreted script cannot be interrupted, so a
// hanging script hangs the run.
func (s *Script) Transform(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps enhance.Capabilities) ([]byte, error) {
	return s.fn(class.Name, code, loading.Roots(), caps.Map())
}
