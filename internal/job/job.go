package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sdclean/internal/cleanup"
	"sdclean/internal/decision"
	"sdclean/internal/disk"
	"sdclean/internal/events"
	"sdclean/internal/fsops"
	"sdclean/internal/limiter"
	"sdclean/internal/metrics"
	"sdclean/internal/rules"
	"sdclean/internal/safety"
	"sdclean/internal/scan"
)

// ConfigError rejects a job before anything on disk is touched.
type ConfigError struct {
	Job string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("job %s: invalid configuration: %v", e.Job, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var (
	ErrNoRoots         = errors.New("no scope roots")
	ErrRootNotAbsolute = errors.New("scope root must be an absolute path")
	ErrRootNotDir      = errors.New("scope root is not a directory")
	ErrNoRules         = errors.New("no rule set")
	ErrProtectedInJunk = errors.New("protected path lies inside a junk directory")
)

// Definition is everything needed to run one job.
type Definition struct {
	Name   string
	Roots  []string
	Rules  *rules.RuleSet
	Vetoes []decision.Veto
	// EmptyDirs enables the empty-directory pass when non-nil.
	EmptyDirs *scan.EmptyDirPolicy
}

// PathError is one failed or unreadable path in a RunResult.
type PathError struct {
	Path string
	Err  error
}

// RunResult summarizes one job run. It is complete when RunCleanup returns
// and must not be modified afterwards.
type RunResult struct {
	Job         string
	RunID       string
	DryRun      bool
	Fingerprint string
	Start       time.Time
	End         time.Time

	// Previewed or Deleted holds the affected paths in walk order,
	// depending on DryRun.
	Previewed []string
	Deleted   []string
	Entries   int
	Bytes     int64
	Skipped   int

	Failures   []PathError
	ReadErrors []PathError

	// FreeBefore and FreeAfter map each root to the free bytes of its
	// filesystem. Roots that could not be sampled are absent.
	FreeBefore map[string]uint64
	FreeAfter  map[string]uint64

	// Aborted is set when a guard violation or cancellation cut the run
	// short.
	Aborted bool
}

func (r *RunResult) Duration() time.Duration { return r.End.Sub(r.Start) }

// Paths returns whichever of Previewed or Deleted applies to the run.
func (r *RunResult) Paths() []string {
	if r.DryRun {
		return r.Previewed
	}
	return r.Deleted
}

func (r *RunResult) add(out cleanup.Outcome) {
	switch out.Kind {
	case cleanup.Skipped:
		r.Skipped++
	case cleanup.Previewed:
		r.Previewed = append(r.Previewed, out.Path)
		r.Entries++
		r.Bytes += out.Bytes
	case cleanup.Deleted:
		r.Deleted = append(r.Deleted, out.Path)
		r.Entries++
		r.Bytes += out.Bytes
	case cleanup.Failed:
		r.Failures = append(r.Failures, PathError{Path: out.Path, Err: out.Err})
	}
}

// Runner executes cleanup jobs against a shared guard. A Runner may run
// several jobs concurrently as long as their roots are disjoint.
type Runner struct {
	guard   *safety.Guard
	logger  zerolog.Logger
	sink    events.Sink
	pacer   *limiter.Pacer
	deleter fsops.Deleter
	health  *metrics.Health
	newID   func() string

	newValidator func(roots []string, guard *safety.Guard) cleanup.TargetValidator
}

func NewRunner(guard *safety.Guard, logger zerolog.Logger) *Runner {
	return &Runner{
		guard:        guard,
		logger:       logger.With().Str("component", "job").Logger(),
		sink:         events.NewLogSink(logger),
		deleter:      fsops.OSDeleter{},
		newID:        uuid.NewString,
		newValidator: newValidator,
	}
}

func newValidator(roots []string, guard *safety.Guard) cleanup.TargetValidator {
	return safety.NewValidator(roots, guard)
}

func (r *Runner) SetSink(s events.Sink) {
	if s == nil {
		s = events.Discard
	}
	r.sink = s
}

func (r *Runner) SetPacer(p *limiter.Pacer)   { r.pacer = p }
func (r *Runner) SetDeleter(d fsops.Deleter)  { r.deleter = d }
func (r *Runner) SetHealth(h *metrics.Health) { r.health = h }
func (r *Runner) Guard() *safety.Guard        { return r.guard }

// RunCleanup runs the junk pass over roots with ruleSet and no vetoes.
func (r *Runner) RunCleanup(ctx context.Context, jobName string, roots []string, ruleSet *rules.RuleSet, dryRun bool) (*RunResult, error) {
	return r.Run(ctx, Definition{Name: jobName, Roots: roots, Rules: ruleSet}, dryRun)
}

// Run validates def, then walks, decides and applies every root in order.
// A *ConfigError is returned before any filesystem change with a nil result.
// A guard violation or cancellation stops the job and is returned together
// with the result accumulated so far. Per-entry read and delete errors are
// recorded in the result and never stop the job.
func (r *Runner) Run(ctx context.Context, def Definition, dryRun bool) (*RunResult, error) {
	roots, err := r.validate(def)
	if err != nil {
		metrics.IncErrors()
		if r.health != nil {
			r.health.Record(def.Name, 0, err)
		}
		return nil, err
	}

	res := &RunResult{
		Job:         def.Name,
		RunID:       r.newID(),
		DryRun:      dryRun,
		Fingerprint: def.Rules.Fingerprint(),
		Start:       time.Now(),
	}
	logger := r.logger.With().Str("job", def.Name).Str("run_id", res.RunID).Bool("dry_run", dryRun).Logger()
	logger.Info().Strs("roots", roots).Str("rules", res.Fingerprint).Msg("job starting")

	res.FreeBefore = r.sampleFree(ctx, roots)

	exec := cleanup.NewExecutor(cleanup.RunInfo{
		Job:         def.Name,
		RunID:       res.RunID,
		Fingerprint: res.Fingerprint,
	}, r.newValidator(roots, r.guard), logger)
	exec.SetDeleter(r.deleter)
	exec.SetPacer(r.pacer)
	exec.SetSink(r.sink)

	engine := decision.NewEngine(r.guard, def.Rules, def.Vetoes...)
	walker := scan.NewWalker(def.Rules, r.guard, logger)

	var runErr error
	for _, root := range roots {
		if runErr = r.runRoot(ctx, res, root, def, walker, engine, exec, dryRun); runErr != nil {
			res.Aborted = true
			break
		}
	}

	res.FreeAfter = r.sampleFree(context.WithoutCancel(ctx), roots)
	res.End = time.Now()
	metrics.RecordRun(def.Name, dryRun, res.Duration())
	if runErr != nil {
		metrics.IncErrors()
	}
	if r.health != nil {
		r.health.Record(def.Name, len(res.Failures), runErr)
	}

	ev := logger.Info()
	if runErr != nil {
		ev = logger.Error().Err(runErr)
	}
	ev.Int("entries", res.Entries).
		Int64("bytes", res.Bytes).
		Int("skipped", res.Skipped).
		Int("failures", len(res.Failures)).
		Int("read_errors", len(res.ReadErrors)).
		Dur("duration", res.Duration()).
		Msg("job finished")
	return res, runErr
}

func (r *Runner) runRoot(ctx context.Context, res *RunResult, root string, def Definition, walker *scan.Walker, engine *decision.Engine, exec *cleanup.Executor, dryRun bool) error {
	gone := make(map[string]bool)
	// The empty-dir pass rereads directories; report each one once.
	unreadable := make(map[string]bool)

	apply := func(c *scan.Candidate, err error) error {
		if err != nil {
			var re *scan.ReadError
			if errors.As(err, &re) {
				if !unreadable[re.Path] {
					unreadable[re.Path] = true
					r.readError(res, re)
				}
				return nil
			}
			return err
		}
		out, err := exec.Apply(ctx, engine.Decide(c), dryRun)
		if err != nil {
			return err
		}
		res.add(out)
		if out.Kind == cleanup.Previewed || out.Kind == cleanup.Deleted {
			gone[out.Path] = true
		}
		return nil
	}

	for c, err := range walker.Walk(ctx, root) {
		if err := apply(c, err); err != nil {
			return err
		}
	}
	if def.EmptyDirs == nil {
		return nil
	}
	for c, err := range walker.EmptyDirs(ctx, root, gone, *def.EmptyDirs) {
		if err := apply(c, err); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) readError(res *RunResult, re *scan.ReadError) {
	res.ReadErrors = append(res.ReadErrors, PathError{Path: re.Path, Err: re.Err})
	metrics.RecordReadError(res.Job)
	r.sink.Emit(events.Event{
		Time:        time.Now(),
		RunID:       res.RunID,
		Job:         res.Job,
		Path:        re.Path,
		Action:      events.ActionReadError,
		Err:         re.Err,
		Fingerprint: res.Fingerprint,
	})
}

func (r *Runner) sampleFree(ctx context.Context, roots []string) map[string]uint64 {
	out := make(map[string]uint64, len(roots))
	for root, u := range disk.Sample(ctx, roots) {
		out[root] = u.FreeBytes
		metrics.UpdateRootUsage(root, u.FreeBytes, u.TotalBytes)
	}
	return out
}

// validate normalizes and collapses the roots and checks that no protected
// path is nested inside a directory the rules would take as a whole subtree.
func (r *Runner) validate(def Definition) ([]string, error) {
	fail := func(err error) ([]string, error) {
		return nil, &ConfigError{Job: def.Name, Err: err}
	}
	if def.Name == "" {
		return fail(errors.New("job name is empty"))
	}
	if def.Rules == nil {
		return fail(ErrNoRules)
	}
	if len(def.Roots) == 0 {
		return fail(ErrNoRoots)
	}

	roots := make([]string, 0, len(def.Roots))
	for _, root := range def.Roots {
		p, err := safety.NormalizePath(root)
		if err != nil {
			return fail(fmt.Errorf("%w: %q", ErrRootNotAbsolute, root))
		}
		// A missing root is a read error at walk time, not a config error.
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return fail(fmt.Errorf("%w: %s", ErrRootNotDir, p))
		}
		roots = append(roots, p)
	}
	roots = collapseRoots(roots)

	for _, root := range roots {
		for _, base := range []string{root, safety.ResolveRoot(root)} {
			for _, prot := range r.guard.Paths() {
				if junk := junkAncestor(def.Rules, base, prot); junk != "" {
					return fail(fmt.Errorf("%w: %s under %s", ErrProtectedInJunk, prot, junk))
				}
			}
		}
	}
	return roots, nil
}

// collapseRoots drops every root that lies within another root of the same
// list, lexically or after symlink resolution, so no entry is walked twice.
// Of two roots naming the same directory the first is kept.
func collapseRoots(roots []string) []string {
	resolved := make([]string, len(roots))
	for i, root := range roots {
		resolved[i] = safety.ResolveRoot(root)
	}
	within := func(i, j int) bool {
		return safety.WithinPath(roots[i], roots[j]) || safety.WithinPath(resolved[i], resolved[j])
	}

	out := make([]string, 0, len(roots))
	for i, root := range roots {
		covered := false
		for j := range roots {
			if i == j || !within(i, j) {
				continue
			}
			// Mutual containment means the same directory.
			if !within(j, i) || j < i {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, root)
		}
	}
	return out
}

// junkAncestor returns the first directory strictly between root and prot
// that the rules match as a junk directory.
func junkAncestor(rs *rules.RuleSet, root, prot string) string {
	if prot == root || !safety.WithinPath(prot, root) {
		return ""
	}
	rel, err := filepath.Rel(root, prot)
	if err != nil {
		return ""
	}
	dir := root
	segs := safety.Segments(rel)
	for _, seg := range segs[:len(segs)-1] {
		dir = filepath.Join(dir, seg)
		if rs.MatchesDir(dir) {
			return dir
		}
	}
	return ""
}
