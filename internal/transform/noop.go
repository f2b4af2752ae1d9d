package transform

import (
	"context"

	"classforge/internal/artifact"
	"classforge/internal/classpath"
	"classforge/internal/enhance"
)

// Noop leaves every class unchanged. It is the default transformer,
// useful for dry runs and for exercising the pipeline end to end.
type Noop struct{}

// NewNoop creates a no-op transformer.
func NewNoop() *Noop {
	return &Noop{}
}

// Transform reports every class as unchanged.
func (n *Noop) Transform(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps enhance.Capabilities) ([]byte, error) {
	return nil, nil
}
