// Package diag collects and records the failures an enhancement run
// tolerates instead of aborting on. Each failure becomes a Diagnostic
// routed to one or more sinks, such as the in-memory collector backing
// run reports or the JSON-lines file sink.
package diag

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies how serious a diagnostic is.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind identifies which stage of the run produced a diagnostic.
type Kind string

const (
	KindClasspath Kind = "classpath"
	KindTransform Kind = "transform"
	KindPersist   Kind = "persist"
)

// Diagnostic is one recorded failure.
type Diagnostic struct {
	RunID    string    `json:"run_id"`
	Artifact string    `json:"artifact,omitempty"`
	Kind     Kind      `json:"kind"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Cause    string    `json:"cause,omitempty"`
	Time     time.Time `json:"time"`
}

// Sink receives diagnostics as they are produced.
type Sink interface {
	Record(d Diagnostic)
}

// Collector accumulates diagnostics in memory.
type Collector struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends a diagnostic.
func (c *Collector) Record(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, d)
}

// All returns a copy of the recorded diagnostics in record order.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

// Count returns how many diagnostics carry the given severity.
func (c *Collector) Count(sev Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.diags {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// multiSink fans out to several sinks.
type multiSink []Sink

func (m multiSink) Record(d Diagnostic) {
	for _, s := range m {
		s.Record(d)
	}
}

// Multi combines sinks into one. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// ZapSink mirrors diagnostics onto a zap logger.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps a logger. A nil logger becomes a no-op.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

// Record logs the diagnostic at a level matching its severity.
func (z *ZapSink) Record(d Diagnostic) {
	fields := []zap.Field{
		zap.String("run_id", d.RunID),
		zap.String("kind", string(d.Kind)),
	}
	if d.Artifact != "" {
		fields = append(fields, zap.String("artifact", d.Artifact))
	}
	if d.Cause != "" {
		fields = append(fields, zap.String("cause", d.Cause))
	}
	if d.Severity == SeverityError {
		z.log.Error(d.Message, fields...)
	} else {
		z.log.Warn(d.Message, fields...)
	}
}

type discardSink struct{}

func (discardSink) Record(Diagnostic) {}

// Discard drops every diagnostic.
var Discard Sink = discardSink{}
