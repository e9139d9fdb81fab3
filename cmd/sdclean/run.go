package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sdclean/internal/cleanup"
	"sdclean/internal/exitcodes"
	"sdclean/internal/job"
	"sdclean/internal/lock"
	"sdclean/internal/metrics"
	"sdclean/internal/scheduler"
)

type runOpts struct {
	dryRun bool
	all    bool
	json   bool
	limit  int
}

func newRunCmd(g *globalOpts) *cobra.Command {
	opts := &runOpts{}
	cmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Run cleanup jobs",
		Example: `  sdclean run --dry-run shared-junk
  sdclean run downloads-junk external-caches
  sdclean run --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !opts.all {
				return exit(exitcodes.InvalidConfig, errors.New("name at least one job or pass --all"))
			}
			a, err := g.load()
			if err != nil {
				return err
			}
			defer a.close()

			dryRun := a.cfg.DryRun
			if cmd.Flags().Changed("dry-run") {
				dryRun = opts.dryRun
			}
			limit := a.cfg.ReportLimit
			if cmd.Flags().Changed("limit") {
				limit = opts.limit
			}

			defs, err := a.definitions(args)
			if err != nil {
				return exit(exitcodes.InvalidConfig, err)
			}

			pid, err := lock.Acquire(a.cfg.LockPath)
			if err != nil {
				return exit(exitcodes.RuntimeError, err)
			}
			defer pid.Release()

			metrics.Init()
			db := a.openHistory()
			if db != nil {
				defer db.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			outs, runErr := scheduler.RunJobs(ctx, a.newRunner(db), defs, dryRun, a.logger)

			w := cmd.OutOrStdout()
			if opts.json {
				err = writeJSONReport(w, outs)
			} else {
				err = writeReport(w, outs, limit)
			}
			if err != nil {
				return exit(exitcodes.RuntimeError, err)
			}
			if code := exitCode(outs, runErr); code != exitcodes.Success {
				return exit(code, runErr)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "preview only, delete nothing (default from config dry_run)")
	f.BoolVar(&opts.all, "all", false, "run every built-in and configured job")
	f.BoolVar(&opts.json, "json", false, "print the full results as JSON")
	f.IntVar(&opts.limit, "limit", 0, "paths listed per job in the report (default from config report_limit)")
	return cmd
}

// exitCode maps run outcomes to the process exit status.
func exitCode(outs []scheduler.Outcome, runErr error) int {
	if errors.Is(runErr, cleanup.ErrGuardViolation) {
		return exitcodes.SafetyViolation
	}
	code := exitcodes.Success
	for _, o := range outs {
		var ce *job.ConfigError
		switch {
		case errors.Is(o.Err, cleanup.ErrGuardViolation):
			return exitcodes.SafetyViolation
		case errors.As(o.Err, &ce):
			code = worse(code, exitcodes.InvalidConfig)
		case o.Err != nil:
			code = worse(code, exitcodes.RuntimeError)
		case o.Result != nil && len(o.Result.Failures) > 0:
			code = worse(code, exitcodes.PartialFailure)
		}
	}
	return code
}

var severity = map[int]int{
	exitcodes.Success:         0,
	exitcodes.PartialFailure:  1,
	exitcodes.RuntimeError:    2,
	exitcodes.InvalidConfig:   3,
	exitcodes.SafetyViolation: 4,
}

func worse(a, b int) int {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
