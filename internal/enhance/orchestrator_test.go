package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"classforge/internal/artifact"
	"classforge/internal/classpath"
	"classforge/internal/diag"
)

// writeTree creates class files under root from slash-relative paths.
func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, data := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, data, 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
	}
}

// recorder is a transformer that records call order and applies a
// per-class behavior.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	results map[string]func(code []byte) ([]byte, error)
}

func newRecorder() *recorder {
	return &recorder{results: make(map[string]func([]byte) ([]byte, error))}
}

func (r *recorder) on(name string, fn func(code []byte) ([]byte, error)) *recorder {
	r.results[name] = fn
	return r
}

func (r *recorder) Transform(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps Capabilities) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, class.Name)
	r.mu.Unlock()
	if fn, ok := r.results[class.Name]; ok {
		return fn(code)
	}
	return nil, nil
}

func (r *recorder) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func enhanced(marker string) func([]byte) ([]byte, error) {
	return func(code []byte) ([]byte, error) {
		return append([]byte(marker+":"), code...), nil
	}
}

func failing(msg string) func([]byte) ([]byte, error) {
	return func([]byte) ([]byte, error) {
		return nil, errors.New(msg)
	}
}

func TestRunSkipsWithoutCapabilities(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"A.class": []byte("a")})

	rec := newRecorder()
	o := New(Options{
		ClassesDir:  dir,
		Transformer: rec,
	})

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.State != StateDone {
		t.Errorf("Expected state done, got %s", report.State)
	}
	if report.SkipReason != SkipNoCapability {
		t.Errorf("Expected skip reason %q, got %q", SkipNoCapability, report.SkipReason)
	}
	if len(rec.called()) != 0 {
		t.Errorf("Transformer must not run without capabilities, called for %v", rec.called())
	}

	data, _ := os.ReadFile(filepath.Join(dir, "A.class"))
	if string(data) != "a" {
		t.Errorf("No-op run must leave files untouched, got %q", data)
	}
}

func TestRunSkipsMissingClassesDir(t *testing.T) {
	o := New(Options{
		ClassesDir:   filepath.Join(t.TempDir(), "missing"),
		Capabilities: Capabilities{DirtyTracking: true},
		Transformer:  newRecorder(),
	})

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.State != StateDone || report.SkipReason != SkipNoClassesDir {
		t.Errorf("Expected done/%s, got %s/%s", SkipNoClassesDir, report.State, report.SkipReason)
	}
}

func TestRunSkipsEmptyClassesDir(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"readme.txt": []byte("not a class")})

	o := New(Options{
		ClassesDir:   dir,
		Capabilities: Capabilities{DirtyTracking: true},
		Transformer:  newRecorder(),
	})

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.State != StateDone || report.SkipReason != SkipNoClasses {
		t.Errorf("Expected done/%s, got %s/%s", SkipNoClasses, report.State, report.SkipReason)
	}
	if report.Scanned != 0 {
		t.Errorf("Expected 0 scanned, got %d", report.Scanned)
	}
}

func TestRunEnhancesAndCounts(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"A.class":                    []byte("a-code"),
		"com/example/Order.class":    []byte("order-code"),
		"com/example/Customer.class": []byte("customer-code"),
	})

	rec := newRecorder().
		on("com.example.Order", enhanced("ENH")).
		on("A", enhanced("ENH"))
	// com.example.Customer stays unchanged

	collector := diag.NewCollector()
	o := New(Options{
		ClassesDir:   dir,
		Capabilities: Capabilities{LazyInitialization: true, DirtyTracking: true},
		Transformer:  rec,
		Sink:         collector,
	})

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.State != StateDone {
		t.Errorf("Expected state done, got %s", report.State)
	}
	if report.Scanned != 3 || report.Enhanced != 2 || report.Unchanged != 1 || report.Failed != 0 {
		t.Errorf("Unexpected counts: %+v", report)
	}
	if report.SkipReason != SkipNone {
		t.Errorf("Expected no skip reason, got %q", report.SkipReason)
	}
	if len(collector.All()) != 0 {
		t.Errorf("Clean run must record no diagnostics, got %v", collector.All())
	}

	// Subdirectories before files at each level
	wantOrder := []string{"com.example.Customer", "com.example.Order", "A"}
	if diff := cmp.Diff(wantOrder, rec.called()); diff != "" {
		t.Errorf("Processing order mismatch (-want +got):\n%s", diff)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "com", "example", "Order.class"))
	if string(data) != "ENH:order-code" {
		t.Errorf("Enhanced bytes not persisted, got %q", data)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "com", "example", "Customer.class"))
	if string(data) != "customer-code" {
		t.Errorf("Unchanged class must keep original bytes, got %q", data)
	}
}

func TestRunToleratesTransformFailure(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"Good.class": []byte("good"),
		"Bad.class":  []byte("bad"),
	})

	rec := newRecorder().
		on("Good", enhanced("ENH")).
		on("Bad", failing("bytecode version unsupported"))

	collector := diag.NewCollector()
	o := New(Options{
		ClassesDir:   dir,
		Capabilities: Capabilities{DirtyTracking: true},
		FailOnError:  false,
		Transformer:  rec,
		Sink:         collector,
	})

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Tolerant run must not fail: %v", err)
	}

	if report.State != StateDone {
		t.Errorf("Expected state done, got %s", report.State)
	}
	if report.Enhanced != 1 || report.Failed != 1 {
		t.Errorf("Unexpected counts: %+v", report)
	}

	diags := collector.All()
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}
	d := diags[0]
	if d.Kind != diag.KindTransform || d.Severity != diag.SeverityWarning {
		t.Errorf("Unexpected diagnostic kind/severity: %+v", d)
	}
	if !strings.Contains(d.Message, "Bad") {
		t.Errorf("Diagnostic must name the artifact, got %q", d.Message)
	}
	if d.Artifact != filepath.Join(dir, "Bad.class") {
		t.Errorf("Unexpected artifact path: %q", d.Artifact)
	}
	if d.RunID != report.RunID {
		t.Errorf("Diagnostic run id %q does not match report %q", d.RunID, report.RunID)
	}

	// The good class was still enhanced
	data, _ := os.ReadFile(filepath.Join(dir, "Good.class"))
	if string(data) != "ENH:good" {
		t.Errorf("Expected good class enhanced, got %q", data)
	}
}

func TestRunFailFastAbortsOnTransformFailure(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"aaa/First.class": []byte("first"),
		"Last.class":      []byte("last"),
	})

	rec := newRecorder().
		on("aaa.First", failing("boom")).
		on("Last", enhanced("ENH"))

	collector := diag.NewCollector()
	o := New(Options{
		ClassesDir:   dir,
		Capabilities: Capabilities{DirtyTracking: true},
		FailOnError:  true,
		Transformer:  rec,
		Sink:         collector,
	})

	report, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("Expected fail-fast run to return an error")
	}
	if !strings.Contains(err.Error(), "aaa.First") {
		t.Errorf("Error must name the artifact, got %q", err.Error())
	}
	if report.State != StateAborted {
		t.Errorf("Expected state aborted, got %s", report.State)
	}
	if len(collector.All()) != 0 {
		t.Errorf("Aborting failure is returned, not recorded, got %v", collector.All())
	}

	// Processing stopped at the first failure
	want := []string{"aaa.First"}
	if diff := cmp.Diff(want, rec.called()); diff != "" {
		t.Errorf("Expected processing to stop (-want +got):\n%s", diff)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "Last.class"))
	if string(data) != "last" {
		t.Errorf("Artifacts after the failure must stay untouched, got %q", data)
	}
}

func TestRunToleratesUnresolvedDependency(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"A.class": []byte("a")})

	missing := filepath.Join(t.TempDir(), "gone.jar")
	collector := diag.NewCollector()
	o := New(Options{
		ClassesDir:   dir,
		Dependencies: []classpath.Entry{{Path: missing, Scope: classpath.ScopeCompile}},
		Capabilities: Capabilities{DirtyTracking: true},
		FailOnError:  false,
		Transformer:  newRecorder().on("A", enhanced("ENH")),
		Sink:         collector,
	})

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Tolerant run must not fail: %v", err)
	}
	if report.State != StateDone || report.Enhanced != 1 {
		t.Errorf("Run must proceed past unresolved dependency: %+v", report)
	}

	diags := collector.All()
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Kind != diag.KindClasspath || diags[0].Severity != diag.SeverityWarning {
		t.Errorf("Unexpected diagnostic: %+v", diags[0])
	}
	if !strings.Contains(diags[0].Message, missing) {
		t.Errorf("Diagnostic must name the entry, got %q", diags[0].Message)
	}
}

func TestRunFailFastAbortsOnUnresolvedDependency(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"A.class": []byte("a")})

	rec := newRecorder()
	o := New(Options{
		ClassesDir:   dir,
		Dependencies: []classpath.Entry{{Path: filepath.Join(t.TempDir(), "gone.jar"), Scope: classpath.ScopeCompile}},
		Capabilities: Capabilities{DirtyTracking: true},
		FailOnError:  true,
		Transformer:  rec,
	})

	report, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("Expected fail-fast run to abort")
	}
	if report.State != StateAborted {
		t.Errorf("Expected state aborted, got %s", report.State)
	}
	if len(rec.called()) != 0 {
		t.Errorf("Transformer must not run after classpath abort, called for %v", rec.called())
	}
}

func TestRunRecordsPersistFailureAsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Directory permissions not enforced on Windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("Directory permissions not enforced for root")
	}

	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"sealed/A.class": []byte("a"),
		"Z.class":        []byte("z"),
	})

	sealed := filepath.Join(dir, "sealed")
	if err := os.Chmod(sealed, 0555); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	defer os.Chmod(sealed, 0755)

	collector := diag.NewCollector()
	o := New(Options{
		ClassesDir:   dir,
		Capabilities: Capabilities{DirtyTracking: true},
		FailOnError:  false,
		Transformer: newRecorder().
			on("sealed.A", enhanced("ENH")).
			on("Z", enhanced("ENH")),
		Sink: collector,
	})

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Tolerant run must not fail: %v", err)
	}
	if report.State != StateDone {
		t.Errorf("Expected state done, got %s", report.State)
	}
	if report.Failed != 1 || report.Enhanced != 1 {
		t.Errorf("Expected 1 failed and 1 enhanced, got %+v", report)
	}

	diags := collector.All()
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Kind != diag.KindPersist || diags[0].Severity != diag.SeverityError {
		t.Errorf("Persistence failures carry error severity, got %+v", diags[0])
	}
	if diags[0].Artifact != filepath.Join(sealed, "A.class") {
		t.Errorf("Diagnostic must name the artifact, got %q", diags[0].Artifact)
	}

	// Processing continued past the failed write
	data, _ := os.ReadFile(filepath.Join(dir, "Z.class"))
	if string(data) != "ENH:z" {
		t.Errorf("Expected later class enhanced, got %q", data)
	}
}

func TestRunFailFastAbortsOnPersistFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Directory permissions not enforced on Windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("Directory permissions not enforced for root")
	}

	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"sealed/A.class": []byte("a")})

	sealed := filepath.Join(dir, "sealed")
	if err := os.Chmod(sealed, 0555); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	defer os.Chmod(sealed, 0755)

	collector := diag.NewCollector()
	o := New(Options{
		ClassesDir:   dir,
		Capabilities: Capabilities{DirtyTracking: true},
		FailOnError:  true,
		Transformer:  newRecorder().on("sealed.A", enhanced("ENH")),
		Sink:         collector,
	})

	report, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("Expected fail-fast run to abort on write failure")
	}
	if !strings.Contains(err.Error(), "sealed.A") {
		t.Errorf("Error must name the artifact, got %q", err.Error())
	}
	if report.State != StateAborted {
		t.Errorf("Expected state aborted, got %s", report.State)
	}
	if len(collector.All()) != 0 {
		t.Errorf("Aborting failure is returned, not recorded, got %v", collector.All())
	}
}

func TestRunTransformerSeesLoadingContext(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"A.class": []byte("a")})
	dep := t.TempDir()

	var roots []string
	fn := TransformerFunc(func(ctx context.Context, class artifact.Class, code []byte, loading *classpath.Context, caps Capabilities) ([]byte, error) {
		roots = loading.Roots()
		if !caps.DirtyTracking {
			return nil, fmt.Errorf("capabilities not passed through")
		}
		return nil, nil
	})

	o := New(Options{
		ClassesDir:   dir,
		Dependencies: []classpath.Entry{{Path: dep, Scope: classpath.ScopeRuntime}},
		Capabilities: Capabilities{DirtyTracking: true},
		Transformer:  fn,
	})

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{dir, dep}
	if diff := cmp.Diff(want, roots); diff != "" {
		t.Errorf("Loading context mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCanceledContextAborts(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"A.class": []byte("a")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(Options{
		ClassesDir:   dir,
		Capabilities: Capabilities{DirtyTracking: true},
		Transformer:  newRecorder(),
	})

	report, err := o.Run(ctx)
	if err == nil {
		t.Fatal("Expected canceled run to return an error")
	}
	if report.State != StateAborted {
		t.Errorf("Expected state aborted, got %s", report.State)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateIdle:          "idle",
		StateConfigChecked: "config-checked",
		StateScanning:      "scanning",
		StateContextBuilt:  "context-built",
		StateProcessing:    "processing",
		StateDone:          "done",
		StateAborted:       "aborted",
		State(99):          "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestCapabilities(t *testing.T) {
	none := Capabilities{}
	if none.Any() {
		t.Error("Empty capabilities must report Any() == false")
	}
	if none.String() != "none" {
		t.Errorf("Expected \"none\", got %q", none.String())
	}

	all := Capabilities{
		LazyInitialization:    true,
		DirtyTracking:         true,
		AssociationManagement: true,
		ExtendedEnhancement:   true,
	}
	if !all.Any() {
		t.Error("Full capabilities must report Any() == true")
	}
	want := "lazy-initialization,dirty-tracking,association-management,extended-enhancement"
	if all.String() != want {
		t.Errorf("Expected %q, got %q", want, all.String())
	}

	m := Capabilities{DirtyTracking: true}.Map()
	if !m["dirty_tracking"] || m["lazy_initialization"] {
		t.Errorf("Unexpected capability map: %v", m)
	}
}
