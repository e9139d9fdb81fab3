package events

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Action string

const (
	ActionPreview   Action = "preview"
	ActionDelete    Action = "delete"
	ActionSkip      Action = "skip"
	ActionFail      Action = "fail"
	ActionReadError Action = "read-error"
)

// Event is one thing that happened to one path during a run. The core emits
// events and never formats text; sinks decide how to present them.
type Event struct {
	Time        time.Time
	RunID       string
	Job         string
	Path        string
	Action      Action
	Kind        string
	Bytes       int64
	Reason      string
	Err         error
	Fingerprint string
}

// Sink receives events. Implementations must be safe for concurrent use
// because disjoint jobs run in parallel.
type Sink interface {
	Emit(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "events").Logger()}
}

func (s *LogSink) Emit(e Event) {
	var ev *zerolog.Event
	switch e.Action {
	case ActionFail, ActionReadError:
		ev = s.logger.Warn()
	case ActionSkip:
		ev = s.logger.Debug()
	default:
		ev = s.logger.Info()
	}
	ev = ev.Time("at", e.Time).
		Str("run_id", e.RunID).
		Str("job", e.Job).
		Str("action", string(e.Action)).
		Str("path", e.Path).
		Str("object", e.Kind).
		Int64("bytes", e.Bytes)
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg("cleanup event")
}

// Recorder keeps every event in memory. Tests and callers that want the
// raw stream use it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Paths returns the sorted paths of events with the given action.
func (r *Recorder) Paths(a Action) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Action == a {
			out = append(out, e.Path)
		}
	}
	sort.Strings(out)
	return out
}
