package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sdclean/internal/config"
	"sdclean/internal/exitcodes"
	"sdclean/internal/job"
	"sdclean/internal/lock"
	"sdclean/internal/metrics"
	"sdclean/internal/scheduler"
)

type serveOpts struct {
	interval time.Duration
	jobs     []string
	dryRun   bool
}

func newServeCmd(g *globalOpts) *cobra.Command {
	opts := &serveOpts{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose metrics and run jobs on trigger, signal or interval",
		Long: `serve keeps sdclean resident. It serves /metrics, /health and
POST /trigger/{job} on prometheus.bind:prometheus.port (loopback by
default), runs the selected jobs when it receives SIGUSR1, and optionally
every --interval. Triggers preview unless the request passes dry_run=false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			defer a.close()

			dryRun := a.cfg.DryRun
			if cmd.Flags().Changed("dry-run") {
				dryRun = opts.dryRun
			}
			defs, err := a.definitions(opts.jobs)
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
			health := metrics.NewHealth()
			runner := a.newRunner(db)
			runner.SetHealth(health)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := &dispatcher{
				ctx:      ctx,
				cfg:      a.cfg,
				runner:   runner,
				forceDry: a.cfg.DryRun,
				logger:   a.logger.With().Str("component", "serve").Logger(),
			}

			server := metrics.NewServer(a.cfg.PrometheusAddress(), d.trigger, health, a.logger)
			server.SetTriggerToken(a.cfg.Prometheus.TriggerToken)
			if err := server.Start(); err != nil {
				return exit(exitcodes.RuntimeError, err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(sctx); err != nil {
					a.logger.Warn().Err(err).Msg("metrics server shutdown")
				}
			}()

			usr1 := make(chan os.Signal, 1)
			signal.Notify(usr1, syscall.SIGUSR1)
			defer signal.Stop(usr1)

			if opts.interval > 0 {
				go scheduler.Every(ctx, opts.interval, func(context.Context) {
					if err := d.start(defs, dryRun); errors.Is(err, metrics.ErrBusy) {
						d.logger.Info().Msg("previous run still in progress, skipping tick")
					}
				}, d.logger)
			}

			d.logger.Info().Str("addr", server.Addr()).Int("jobs", len(defs)).Bool("dry_run", dryRun).Msg("serving")
			for {
				select {
				case <-ctx.Done():
					d.logger.Info().Msg("shutting down, waiting for running jobs")
					d.wait()
					return nil
				case <-usr1:
					if err := d.start(defs, dryRun); errors.Is(err, metrics.ErrBusy) {
						d.logger.Warn().Msg("SIGUSR1 ignored, a run is in progress")
					}
				}
			}
		},
	}

	f := cmd.Flags()
	f.DurationVar(&opts.interval, "interval", 0, "also run the jobs on this interval (0 disables)")
	f.StringSliceVar(&opts.jobs, "jobs", nil, "jobs run on SIGUSR1 and interval (default every job)")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "signal and interval runs only preview (default from config dry_run)")
	return cmd
}

// dispatcher starts at most one batch of jobs at a time in the background.
type dispatcher struct {
	ctx      context.Context
	cfg      *config.Config
	runner   *job.Runner
	forceDry bool
	logger   zerolog.Logger

	busy sync.Mutex
	wg   sync.WaitGroup
}

// trigger is the HTTP entry point. Config dry_run forces previews.
func (d *dispatcher) trigger(name string, dryRun bool) error {
	jc, ok := job.Lookup(d.cfg, name)
	if !ok {
		return metrics.ErrUnknownJob
	}
	def, err := job.Build(d.cfg, jc)
	if err != nil {
		return err
	}
	return d.start([]job.Definition{def}, dryRun || d.forceDry)
}

func (d *dispatcher) start(defs []job.Definition, dryRun bool) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	if !d.busy.TryLock() {
		return metrics.ErrBusy
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.busy.Unlock()
		d.run(defs, dryRun)
	}()
	return nil
}

func (d *dispatcher) run(defs []job.Definition, dryRun bool) {
	outs, err := scheduler.RunJobs(d.ctx, d.runner, defs, dryRun, d.logger)
	if err != nil {
		d.logger.Error().Err(err).Msg("run aborted")
	}
	for _, o := range outs {
		if o.Err != nil && !errors.Is(o.Err, err) {
			d.logger.Error().Err(o.Err).Str("job", o.Job).Msg("job did not complete")
		}
	}
}

func (d *dispatcher) wait() { d.wg.Wait() }
