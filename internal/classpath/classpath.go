// Package classpath builds the ordered loading context for an
// enhancement run: the classes directory first, then every
// non-test dependency in declaration order. Class bytes resolve
// against directories and jar archives, first hit wins.
package classpath

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"classforge/internal/artifact"
	"classforge/internal/logging"
)

// Scope mirrors the dependency scopes of JVM build tools.
type Scope string

const (
	ScopeCompile  Scope = "compile"
	ScopeRuntime  Scope = "runtime"
	ScopeProvided Scope = "provided"
	ScopeSystem   Scope = "system"
	ScopeTest     Scope = "test"
)

// ParseScope parses a scope string. The empty string means compile.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "":
		return ScopeCompile, nil
	case "compile", "runtime", "provided", "system", "test":
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown dependency scope: %s", s)
	}
}

// Entry is one candidate classpath element.
type Entry struct {
	Path  string
	Scope Scope
}

// Unresolved records an entry that could not be added to the context.
type Unresolved struct {
	Entry Entry
	Err   error
}

// Context is the ordered set of classpath roots.
type Context struct {
	roots []string
}

// Build assembles the loading context. The classes root always comes
// first. Test-scoped entries are skipped, entries whose path does not
// exist are reported as unresolved and left out.
func Build(root string, deps []Entry) (*Context, []Unresolved) {
	ctx := &Context{roots: []string{root}}

	var unresolved []Unresolved
	for _, dep := range deps {
		if dep.Scope == ScopeTest {
			logging.ClasspathDebug("skipping test-scoped entry %s", dep.Path)
			continue
		}
		if _, err := os.Stat(dep.Path); err != nil {
			unresolved = append(unresolved, Unresolved{Entry: dep, Err: err})
			continue
		}
		logging.ClasspathDebug("adding classpath entry %s (%s)", dep.Path, dep.Scope)
		ctx.roots = append(ctx.roots, dep.Path)
	}

	logging.Classpath("loading context has %d roots, %d unresolved", len(ctx.roots), len(unresolved))
	return ctx, unresolved
}

// Roots returns a copy of the ordered roots.
func (c *Context) Roots() []string {
	out := make([]string, len(c.roots))
	copy(out, c.roots)
	return out
}

// Size returns how many roots the context holds.
func (c *Context) Size() int {
	return len(c.roots)
}

// AsClasspath renders the context in platform classpath notation.
func (c *Context) AsClasspath() string {
	return strings.Join(c.roots, string(os.PathListSeparator))
}

// Resolve returns the bytes of the named class from the first root
// that carries it.
func (c *Context) Resolve(name string) ([]byte, error) {
	rel := strings.ReplaceAll(name, ".", "/") + artifact.Ext

	for _, root := range c.roots {
		data, err := readFrom(root, rel)
		if err != nil {
			continue
		}
		return data, nil
	}

	return nil, fmt.Errorf("class %s not found in loading context", name)
}

// readFrom reads a class entry from a directory or jar root.
func readFrom(root, rel string) ([]byte, error) {
	if isArchive(root) {
		return readFromArchive(root, rel)
	}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func isArchive(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jar", ".zip":
		return true
	}
	return false
}

func readFromArchive(path, rel string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != rel {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	return nil, fmt.Errorf("entry %s not in archive %s", rel, path)
}
