package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"classforge/internal/artifact"
	"classforge/internal/classpath"
	"classforge/internal/enhance"
	"classforge/internal/logging"
)

// Exec bridges to an external enhancer process. The class bytes go to
// the command's stdin, the rewritten bytes come back on stdout. Empty
// stdout with exit 0 means the class is unchanged. The class name,
// file path, loading context, and enabled capabilities are passed via
// FORGE_* environment variables.
type Exec struct {
	command string
	args    []string
}

// NewExec creates an external command transformer.
func NewExec(command string, args []string) (*Exec, error) {
	if command == "" {
		return nil, fmt.Errorf("exec transformer requires a command")
	}
	return &Exec{command: command, args: args}, nil
}

// Transform runs the command for one class.
func (e *Exec) Transform(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps enhance.Capabilities) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Stdin = bytes.NewReader(code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Env = mergeEnv(os.Environ(),
		"FORGE_CLASS="+class.Name,
		"FORGE_CLASS_FILE="+class.Path,
		"FORGE_CLASSPATH="+loading.AsClasspath(),
		"FORGE_CAPABILITIES="+caps.String(),
	)

	logging.TransformDebug("running %s for class %s", e.command, class.Name)
	if err := cmd.Run(); err != nil {
		detail := firstLine(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("command %s failed: %w: %s", e.command, err, detail)
		}
		return nil, fmt.Errorf("command %s failed: %w", e.command, err)
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
