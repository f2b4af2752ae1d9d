package diag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCollectorRecordsInOrder(t *testing.T) {
	c := NewCollector()

	c.Record(Diagnostic{Kind: KindClasspath, Severity: SeverityWarning, Message: "first"})
	c.Record(Diagnostic{Kind: KindTransform, Severity: SeverityWarning, Message: "second"})
	c.Record(Diagnostic{Kind: KindPersist, Severity: SeverityError, Message: "third"})

	all := c.All()
	if len(all) != 3 {
		t.Fatalf("Expected 3 diagnostics, got %d", len(all))
	}
	if all[0].Message != "first" || all[1].Message != "second" || all[2].Message != "third" {
		t.Errorf("Diagnostics out of order: %+v", all)
	}

	if got := c.Count(SeverityWarning); got != 2 {
		t.Errorf("Expected 2 warnings, got %d", got)
	}
	if got := c.Count(SeverityError); got != 1 {
		t.Errorf("Expected 1 error, got %d", got)
	}
}

func TestCollectorAllReturnsCopy(t *testing.T) {
	c := NewCollector()
	c.Record(Diagnostic{Message: "original"})

	all := c.All()
	all[0].Message = "mutated"

	if c.All()[0].Message != "original" {
		t.Error("All() must return a copy, not the backing slice")
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Record(Diagnostic{Kind: KindTransform, Severity: SeverityWarning})
			}
		}()
	}
	wg.Wait()

	if got := len(c.All()); got != 500 {
		t.Errorf("Expected 500 diagnostics, got %d", got)
	}
}

func TestMultiFansOutAndSkipsNil(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	m := Multi(a, nil, b, nil)
	m.Record(Diagnostic{Message: "fan out"})

	if len(a.All()) != 1 || len(b.All()) != 1 {
		t.Errorf("Expected both sinks to receive the diagnostic, got %d and %d", len(a.All()), len(b.All()))
	}
}

func TestZapSinkNilLogger(t *testing.T) {
	s := NewZapSink(nil)
	// Must not panic
	s.Record(Diagnostic{Kind: KindPersist, Severity: SeverityError, Message: "write failed", Artifact: "com.example.A", Cause: "disk full"})
	s.Record(Diagnostic{Kind: KindTransform, Severity: SeverityWarning, Message: "transform failed"})
}

func TestDiscard(t *testing.T) {
	Discard.Record(Diagnostic{Message: "dropped"})
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "diag_file_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "nested", "diag.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	sink.Record(Diagnostic{
		RunID:    "run-1",
		Artifact: "com.example.Order",
		Kind:     KindTransform,
		Severity: SeverityWarning,
		Message:  "unable to enhance class com.example.Order",
		Cause:    "bad magic",
		Time:     now,
	})
	sink.Record(Diagnostic{
		RunID:    "run-1",
		Kind:     KindClasspath,
		Severity: SeverityWarning,
		Message:  "unable to resolve classpath entry lib/missing.jar",
		Time:     now,
	})

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read diagnostics file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var first Diagnostic
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("Line 1 is not valid JSON: %v", err)
	}
	if first.Artifact != "com.example.Order" || first.Kind != KindTransform {
		t.Errorf("Unexpected first diagnostic: %+v", first)
	}

	// omitempty: the second line has no artifact and no cause
	if strings.Contains(lines[1], "artifact") || strings.Contains(lines[1], "cause") {
		t.Errorf("Empty fields should be omitted, got: %s", lines[1])
	}
}

func TestFileSinkAppends(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "diag_append_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "diag.jsonl")

	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(path)
		if err != nil {
			t.Fatalf("NewFileSink failed: %v", err)
		}
		sink.Record(Diagnostic{RunID: "run", Kind: KindTransform, Severity: SeverityWarning, Message: "m"})
		if err := sink.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read diagnostics file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("Expected reopened sink to append, got %d lines", len(lines))
	}
}

func TestFileSinkWriteAfterClose(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "diag_closed_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	sink, err := NewFileSink(filepath.Join(tempDir, "diag.jsonl"))
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := sink.Write(Diagnostic{Message: "late"}); err == nil {
		t.Error("Expected Write after Close to fail")
	}
	// Record must swallow the error
	sink.Record(Diagnostic{Message: "late"})
}

func TestFileSinkRotate(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "diag_rotate_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "diag.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	defer sink.Close()

	sink.Record(Diagnostic{RunID: "before", Kind: KindPersist, Severity: SeverityError, Message: "old"})

	if err := sink.Rotate(); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	sink.Record(Diagnostic{RunID: "after", Kind: KindPersist, Severity: SeverityError, Message: "new"})

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read temp dir: %v", err)
	}

	backups := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "diag.jsonl.") {
			backups++
		}
	}
	if backups != 1 {
		t.Errorf("Expected 1 backup file, got %d", backups)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read current file: %v", err)
	}
	if !strings.Contains(string(data), "after") || strings.Contains(string(data), "before") {
		t.Errorf("Current file should only hold post-rotate entries, got: %s", string(data))
	}
}
