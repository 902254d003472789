// Package diagnostics records the decisions a redefinition makes. Sinks are
// best effort: a failing or panicking sink never affects the outcome of the
// operation it observes.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/types"
)

// Kind classifies an Event.
type Kind string

const (
	KindMatch   Kind = "match"
	KindRename  Kind = "rename"
	KindHotName Kind = "hot_name"
	KindRemoved Kind = "removed"
	KindFetch   Kind = "fetch"
	KindCommit  Kind = "commit"
	KindFailure Kind = "failure"
)

// Event is one decision. Name is the type the decision is about and Target
// the name it resolved to, if any.
type Event struct {
	Kind   Kind
	Loader types.LoaderID
	Name   string
	Target string
	Score  int
	Err    error
	Time   time.Time
}

func (e Event) String() string {
	switch e.Kind {
	case KindMatch:
		return fmt.Sprintf("%s %s:%s -> %s (score %d)", e.Kind, e.Loader, e.Name, e.Target, e.Score)
	case KindRename, KindHotName:
		return fmt.Sprintf("%s %s:%s -> %s", e.Kind, e.Loader, e.Name, e.Target)
	case KindCommit:
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.Loader, e.Target)
	case KindFailure:
		return fmt.Sprintf("%s %s:%s: %v", e.Kind, e.Loader, e.Name, e.Err)
	default:
		return fmt.Sprintf("%s %s:%s", e.Kind, e.Loader, e.Name)
	}
}

// Sink receives events.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Record calls f.
func (f SinkFunc) Record(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Safe wraps s so that a panic inside Record is swallowed and events
// without a timestamp get one.
func Safe(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return safeSink{s}
}

type safeSink struct {
	next Sink
}

func (s safeSink) Record(e Event) {
	defer func() {
		if r := recover(); r != nil {
			debug.Log("DIAG", "sink panicked on %s: %v\n", e.Kind, r)
		}
	}()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.next.Record(e)
}

// Multi fans events out to several sinks.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(e Event) {
	for _, s := range m {
		Safe(s).Record(e)
	}
}

// SlogSink writes events as structured log records.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink logs to logger, or to slog.Default when logger is nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record implements Sink.
func (s *SlogSink) Record(e Event) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.String("loader", e.Loader.String()),
		slog.String("type", e.Name),
	}
	if e.Target != "" {
		attrs = append(attrs, slog.String("target", e.Target))
	}
	if e.Kind == KindMatch {
		attrs = append(attrs, slog.Int("score", e.Score))
	}
	if e.Err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	s.logger.LogAttrs(context.Background(), level, "redefine", attrs...)
}

// DebugSink forwards events to the debug log.
type DebugSink struct{}

// Record implements Sink.
func (DebugSink) Record(e Event) {
	debug.LogRedefine("%s\n", e)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Sink.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
