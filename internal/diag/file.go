package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink appends diagnostics to a JSON-lines file, one object per
// line, so runs can be inspected and diffed after the fact.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileSink opens path for appending, creating parent directories
// as needed.
func NewFileSink(path string) (*FileSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics file: %w", err)
	}

	return &FileSink{
		file: file,
		path: path,
	}, nil
}

// Write appends one diagnostic to the file.
func (s *FileSink) Write(d Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("diagnostics file not open")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	_, err = s.file.Write(append(data, '\n'))
	return err
}

// Record implements Sink. Write errors are dropped so a broken
// diagnostics file never takes down a run.
func (s *FileSink) Record(d Diagnostic) {
	_ = s.Write(d)
}

// Close closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// Rotate renames the current file to a timestamped backup and opens
// a fresh one.
func (s *FileSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("diagnostics file not open")
	}

	if err := s.file.Close(); err != nil {
		return err
	}

	backupPath := fmt.Sprintf("%s.%s", s.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(s.path, backupPath); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	s.file = file
	return nil
}
