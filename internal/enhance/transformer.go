package enhance

import (
	"context"

	"classforge/internal/artifact"
	"classforge/internal/classpath"
)

// Transformer rewrites the bytecode of one class. It returns the new
// bytes, or nil when the class needs no change. The loading context
// lets a transformer resolve referenced classes.
type Transformer interface {
	Transform(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps Capabilities) ([]byte, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps Capabilities) ([]byte, error)

// Transform calls f.
func (f TransformerFunc) Transform(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps Capabilities) ([]byte, error) {
	return f(ctx, class, code, loading, caps)
}
