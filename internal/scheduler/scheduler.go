package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sdclean/internal/cleanup"
	"sdclean/internal/job"
	"sdclean/internal/safety"
)

// Runner is what the scheduler needs from job.Runner.
type Runner interface {
	Run(ctx context.Context, def job.Definition, dryRun bool) (*job.RunResult, error)
}

// Outcome pairs a job with what its run returned.
type Outcome struct {
	Job    string
	Result *job.RunResult
	Err    error
}

// RunJobs runs defs, serializing jobs whose roots overlap and running
// disjoint groups concurrently. Outcomes come back in the order of defs.
// A guard violation in any job cancels every other group; the returned
// error is that violation. Other per-job errors are only reported in the
// outcomes.
func RunJobs(ctx context.Context, r Runner, defs []job.Definition, dryRun bool, logger zerolog.Logger) ([]Outcome, error) {
	outcomes := make([]Outcome, len(defs))
	for i, d := range defs {
		outcomes[i].Job = d.Name
	}

	groups := Groups(defs)
	logger.Debug().Int("jobs", len(defs)).Int("groups", len(groups)).Msg("scheduling jobs")

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		g.Go(func() error {
			for _, i := range group {
				if err := gctx.Err(); err != nil {
					outcomes[i].Err = err
					continue
				}
				res, err := r.Run(gctx, defs[i], dryRun)
				outcomes[i].Result, outcomes[i].Err = res, err
				if errors.Is(err, cleanup.ErrGuardViolation) {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return outcomes, err
}

// Groups partitions job indexes so that jobs with overlapping roots share
// a group. Each group keeps the input order.
func Groups(defs []job.Definition) [][]int {
	parent := make([]int, len(defs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range defs {
		for j := i + 1; j < len(defs); j++ {
			if overlaps(defs[i].Roots, defs[j].Roots) {
				if a, b := find(i), find(j); a != b {
					parent[b] = a
				}
			}
		}
	}

	index := make(map[int]int)
	var out [][]int
	for i := range defs {
		root := find(i)
		gi, ok := index[root]
		if !ok {
			gi = len(out)
			index[root] = gi
			out = append(out, nil)
		}
		out[gi] = append(out[gi], i)
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			for _, xp := range []string{x, safety.ResolveRoot(x)} {
				for _, yp := range []string{y, safety.ResolveRoot(y)} {
					if safety.WithinPath(xp, yp) || safety.WithinPath(yp, xp) {
						return true
					}
				}
			}
		}
	}
	return false
}

// Every calls fn once immediately and then on each tick until ctx ends.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context), logger zerolog.Logger) error {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}
