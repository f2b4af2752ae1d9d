// Package artifact discovers compiled class files under a classes
// directory and maps them to their binary class names.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"classforge/internal/logging"
)

// Ext is the file extension of compiled class artifacts.
const Ext = ".class"

// Class is one discovered artifact.
type Class struct {
	// Path is the absolute path of the class file on disk.
	Path string

	// Name is the dot-separated binary class name relative to the
	// scan root, e.g. "com.example.Order".
	Name string
}

// Scanner walks a classes directory for artifacts.
type Scanner struct {
	root string
}

// NewScanner creates a scanner rooted at the given classes directory.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Scan discovers every class file under the root. Subdirectories are
// visited before files at each level, so deeper artifacts come first.
// A missing root is not an error: it returns an empty result.
func (s *Scanner) Scan(ctx context.Context) ([]Class, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			logging.ScanDebug("classes directory %s does not exist", s.root)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat classes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("classes path %s is not a directory", s.root)
	}

	var classes []Class
	if err := s.walk(ctx, s.root, &classes); err != nil {
		return nil, err
	}

	logging.Scan("discovered %d class files under %s", len(classes), s.root)
	return classes, nil
}

func (s *Scanner) walk(ctx context.Context, dir string, out *[]Class) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	// Subdirectories first, then files at this level
	for _, e := range entries {
		if e.IsDir() {
			if err := s.walk(ctx, filepath.Join(dir, e.Name()), out); err != nil {
				return err
			}
		}
	}

	for _, e := range entries {
		if e.IsDir() || !e.Type().IsRegular() {
			continue
		}
		if filepath.Ext(e.Name()) != Ext {
			continue
		}
		path := filepath.Join(dir, e.Name())
		name, err := s.className(path)
		if err != nil {
			return err
		}
		logging.ScanDebug("found class %s at %s", name, path)
		*out = append(*out, Class{Path: path, Name: name})
	}

	return nil
}

// className derives the binary class name from a file path under the
// scan root.
func (s *Scanner) className(path string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve class name for %s: %w", path, err)
	}
	rel = strings.TrimSuffix(rel, Ext)
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "."), nil
}
