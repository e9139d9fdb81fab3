package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"sdclean/internal/decision"
	"sdclean/internal/events"
	"sdclean/internal/fsops"
	"sdclean/internal/limiter"
	"sdclean/internal/metrics"
	"sdclean/internal/safety"
	"sdclean/internal/scan"
)

// ErrGuardViolation marks a delete target that the walker and decision
// engine should never have produced. It aborts the whole job.
var ErrGuardViolation = errors.New("guard violation")

// GuardViolation carries the target and the validator's reason.
type GuardViolation struct {
	Path string
	Err  error
}

func (e *GuardViolation) Error() string {
	return fmt.Sprintf("guard violation: refusing %s: %v", e.Path, e.Err)
}

func (e *GuardViolation) Unwrap() error { return e.Err }

func (e *GuardViolation) Is(target error) bool { return target == ErrGuardViolation }

// DeleteError reports one entry that could not be removed. The job
// continues after it.
type DeleteError struct {
	Path string
	Err  error
	// Vanished is set when the entry was already gone at delete time.
	Vanished bool
}

func (e *DeleteError) Error() string {
	if e.Vanished {
		return fmt.Sprintf("delete %s: vanished before removal", e.Path)
	}
	return fmt.Sprintf("delete %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

type OutcomeKind int

const (
	Skipped OutcomeKind = iota
	Previewed
	Deleted
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Skipped:
		return "skipped"
	case Previewed:
		return "previewed"
	case Deleted:
		return "deleted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what Apply did with one decision.
type Outcome struct {
	Kind   OutcomeKind
	Path   string
	Object string
	Bytes  int64
	Reason string
	// Err is a *DeleteError when Kind is Failed.
	Err error
}

// RunInfo identifies the run an executor works for; it is stamped on every
// event.
type RunInfo struct {
	Job         string
	RunID       string
	Fingerprint string
}

// TargetValidator is the last check on a path before it is deleted.
// *safety.Validator is the implementation.
type TargetValidator interface {
	ValidateDeleteTarget(path string) error
}

// Executor applies decisions, either as a side-effect free preview or as
// real deletes.
type Executor struct {
	run       RunInfo
	validator TargetValidator
	deleter   fsops.Deleter
	pacer     *limiter.Pacer
	sink      events.Sink
	logger    zerolog.Logger
	now       func() time.Time
}

// NewExecutor creates an executor bound to one job's validator.
func NewExecutor(run RunInfo, validator TargetValidator, logger zerolog.Logger) *Executor {
	return &Executor{
		run:       run,
		validator: validator,
		deleter:   fsops.OSDeleter{},
		sink:      events.Discard,
		logger:    logger.With().Str("component", "executor").Str("job", run.Job).Logger(),
		now:       time.Now,
	}
}

// SetDeleter replaces the filesystem deleter (tests use fsops.FakeDeleter)
func (x *Executor) SetDeleter(d fsops.Deleter) { x.deleter = d }

// SetPacer throttles live deletes
func (x *Executor) SetPacer(p *limiter.Pacer) { x.pacer = p }

// SetSink sets where events go
func (x *Executor) SetSink(s events.Sink) {
	if s == nil {
		s = events.Discard
	}
	x.sink = s
}

// Apply carries out one decision. Rejected decisions are skipped. Accepted
// ones pass the delete-target validator in both modes, so a preview never
// lists something a live run would refuse. The only error returned is a
// *GuardViolation or a context error; per-entry failures come back as a
// Failed outcome.
func (x *Executor) Apply(ctx context.Context, d decision.Decision, dryRun bool) (Outcome, error) {
	c := d.Candidate
	out := Outcome{Path: c.Path, Object: c.Kind.String(), Reason: d.Reason}

	if !d.Accepted() {
		out.Kind = Skipped
		metrics.RecordReject(x.run.Job, d.Reason)
		x.emit(out, events.ActionSkip)
		return out, nil
	}

	if err := x.validator.ValidateDeleteTarget(c.Path); err != nil {
		if !errors.Is(err, safety.ErrSymlinkEscape) {
			gv := &GuardViolation{Path: c.Path, Err: err}
			x.logger.Error().Err(err).Str("path", c.Path).Msg("guard violation, aborting job")
			return out, gv
		}
		return x.fail(out, &DeleteError{Path: c.Path, Err: err}), nil
	}

	if dryRun {
		out.Kind = Previewed
		out.Bytes = c.Size()
		metrics.RecordEntry(x.run.Job, string(events.ActionPreview), out.Bytes)
		x.emit(out, events.ActionPreview)
		return out, nil
	}

	if err := x.pacer.Wait(ctx); err != nil {
		return out, err
	}

	size := c.Size()
	var err error
	if c.Kind == scan.KindSubtree {
		err = x.deleter.RemoveAll(c.Path)
	} else {
		err = x.deleter.Remove(c.Path)
	}
	if err != nil {
		de := &DeleteError{Path: c.Path, Err: err}
		if errors.Is(err, os.ErrNotExist) {
			de.Vanished = true
		}
		return x.fail(out, de), nil
	}

	out.Kind = Deleted
	out.Bytes = size
	metrics.RecordEntry(x.run.Job, string(events.ActionDelete), size)
	x.emit(out, events.ActionDelete)
	return out, nil
}

func (x *Executor) fail(out Outcome, de *DeleteError) Outcome {
	out.Kind = Failed
	out.Err = de
	metrics.RecordEntry(x.run.Job, string(events.ActionFail), 0)
	x.emit(out, events.ActionFail)
	return out
}

func (x *Executor) emit(out Outcome, action events.Action) {
	x.sink.Emit(events.Event{
		Time:        x.now(),
		RunID:       x.run.RunID,
		Job:         x.run.Job,
		Path:        out.Path,
		Action:      action,
		Kind:        out.Object,
		Bytes:       out.Bytes,
		Reason:      out.Reason,
		Err:         out.Err,
		Fingerprint: x.run.Fingerprint,
	})
}
