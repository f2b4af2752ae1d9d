// Package enhance orchestrates a build-time enhancement run: discover
// the compiled classes, assemble their loading context, push each one
// through the configured transformer, and persist every rewrite.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classforge/internal/artifact"
	"classforge/internal/classpath"
	"classforge/internal/diag"
	"classforge/internal/logging"
)

// State tracks where in its lifecycle a run is.
type State int

const (
	StateIdle State = iota
	StateConfigChecked
	StateScanning
	StateContextBuilt
	StateProcessing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigChecked:
		return "config-checked"
	case StateScanning:
		return "scanning"
	case StateContextBuilt:
		return "context-built"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SkipReason explains why a run finished without processing anything.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipNoCapability SkipReason = "no-capability"
	SkipNoClassesDir SkipReason = "no-classes-directory"
	SkipNoClasses    SkipReason = "no-classes"
)

// Options configures an Orchestrator.
type Options struct {
	// ClassesDir is the root holding the compiled classes.
	ClassesDir string

	// Dependencies joins the loading context after the classes root.
	Dependencies []classpath.Entry

	// Capabilities selects the enhancement behaviors. A run with
	// none enabled is a no-op.
	Capabilities Capabilities

	// FailOnError aborts the run on the first failure. When false,
	// failures become diagnostics and the run continues.
	FailOnError bool

	// Transformer rewrites class bytes.
	Transformer Transformer

	// Sink receives tolerated failures. Nil discards them.
	Sink diag.Sink

	// Logger receives run progress. Nil disables it.
	Logger *zap.Logger
}

// Orchestrator drives one enhancement run at a time.
type Orchestrator struct {
	opts   Options
	writer *Writer
	sink   diag.Sink
	log    *zap.Logger

	mu    sync.Mutex
	state State
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	sink := opts.Sink
	if sink == nil {
		sink = diag.Discard
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		opts:   opts,
		writer: NewWriter(),
		sink:   sink,
		log:    log,
		state:  StateIdle,
	}
}

// Report summarizes a finished run.
type Report struct {
	RunID      string
	State      State
	Scanned    int
	Enhanced   int
	Unchanged  int
	Failed     int
	SkipReason SkipReason
	Duration   time.Duration
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	logging.EnhanceDebug("state %s -> %s", prev, s)
}

// Run executes one enhancement pass. The returned report is always
// populated; the error is non-nil only when the run aborted.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.log.With(zap.String("run_id", runID))
	report := &Report{RunID: runID}

	o.setState(StateIdle)
	logging.Enhance("run %s starting for %s", runID, o.opts.ClassesDir)

	o.setState(StateConfigChecked)
	// Nothing enabled means nothing to do.
	if !o.opts.Capabilities.Any() {
		log.Warn("skipping enhancement: no capability enabled")
		report.SkipReason = SkipNoCapability
		o.setState(StateDone)
		return o.finish(report, start), nil
	}
	if o.opts.Capabilities.ExtendedEnhancement {
		log.Warn("extended enhancement is enabled, classes other than entities may be modified")
	}

	o.setState(StateScanning)
	info, err := os.Stat(o.opts.ClassesDir)
	if err != nil || !info.IsDir() {
		log.Info("skipping enhancement: no classes directory", zap.String("dir", o.opts.ClassesDir))
		report.SkipReason = SkipNoClassesDir
		o.setState(StateDone)
		return o.finish(report, start), nil
	}

	classes, err := artifact.NewScanner(o.opts.ClassesDir).Scan(ctx)
	if err != nil {
		o.setState(StateAborted)
		return o.finish(report, start), fmt.Errorf("failed to scan classes directory: %w", err)
	}
	report.Scanned = len(classes)

	if len(classes) == 0 {
		log.Info("skipping enhancement: no classes to enhance", zap.String("dir", o.opts.ClassesDir))
		report.SkipReason = SkipNoClasses
		o.setState(StateDone)
		return o.finish(report, start), nil
	}

	log.Info("starting enhancement",
		zap.String("dir", o.opts.ClassesDir),
		zap.Int("classes", len(classes)),
		zap.String("capabilities", o.opts.Capabilities.String()))

	loading, unresolved := classpath.Build(o.opts.ClassesDir, o.opts.Dependencies)
	for _, u := range unresolved {
		msg := fmt.Sprintf("unable to resolve classpath entry %s", u.Entry.Path)
		if err := o.fail(runID, diag.KindClasspath, diag.SeverityWarning, "", msg, u.Err); err != nil {
			o.setState(StateAborted)
			return o.finish(report, start), err
		}
	}
	for _, root := range loading.Roots() {
		log.Debug("classpath entry", zap.String("path", root))
	}
	o.setState(StateContextBuilt)

	o.setState(StateProcessing)
	for _, class := range classes {
		if ctx.Err() != nil {
			o.setState(StateAborted)
			return o.finish(report, start), ctx.Err()
		}

		code, err := os.ReadFile(class.Path)
		if err != nil {
			msg := fmt.Sprintf("unable to read class %s", class.Name)
			if ferr := o.fail(runID, diag.KindTransform, diag.SeverityWarning, class.Path, msg, err); ferr != nil {
				o.setState(StateAborted)
				return o.finish(report, start), ferr
			}
			report.Failed++
			continue
		}

		logging.TransformDebug("transforming %s (%d bytes)", class.Name, len(code))
		out, err := o.opts.Transformer.Transform(ctx, class, code, loading, o.opts.Capabilities)
		if err != nil {
			msg := fmt.Sprintf("unable to enhance class %s", class.Name)
			if ferr := o.fail(runID, diag.KindTransform, diag.SeverityWarning, class.Path, msg, err); ferr != nil {
				o.setState(StateAborted)
				return o.finish(report, start), ferr
			}
			report.Failed++
			continue
		}

		if len(out) == 0 {
			report.Unchanged++
			continue
		}

		if err := o.writer.Write(class.Path, out); err != nil {
			msg := fmt.Sprintf("failed to write enhanced class %s", class.Name)
			if ferr := o.fail(runID, diag.KindPersist, diag.SeverityError, class.Path, msg, err); ferr != nil {
				o.setState(StateAborted)
				return o.finish(report, start), ferr
			}
			report.Failed++
			continue
		}

		report.Enhanced++
		log.Info("enhanced class", zap.String("class", class.Name))
	}

	o.setState(StateDone)
	return o.finish(report, start), nil
}

// fail handles one tolerable failure. With FailOnError set it returns
// the error so the caller aborts the run; otherwise it records a
// diagnostic and returns nil.
func (o *Orchestrator) fail(runID string, kind diag.Kind, sev diag.Severity, artifactPath, msg string, cause error) error {
	if o.opts.FailOnError {
		if cause != nil {
			return fmt.Errorf("%s: %w", msg, cause)
		}
		return errors.New(msg)
	}

	d := diag.Diagnostic{
		RunID:    runID,
		Artifact: artifactPath,
		Kind:     kind,
		Severity: sev,
		Message:  msg,
		Time:     time.Now(),
	}
	if cause != nil {
		d.Cause = cause.Error()
	}
	o.sink.Record(d)
	logging.EnhanceWarn("%s: %v", msg, cause)
	return nil
}

func (o *Orchestrator) finish(report *Report, start time.Time) *Report {
	report.State = o.State()
	report.Duration = time.Since(start)
	logging.Enhance("run %s finished in %s: state=%s scanned=%d enhanced=%d unchanged=%d failed=%d",
		report.RunID, report.Duration, report.State, report.Scanned, report.Enhanced, report.Unchanged, report.Failed)
	return report
}
