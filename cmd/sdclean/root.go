package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sdclean/internal/config"
	"sdclean/internal/database"
	"sdclean/internal/events"
	"sdclean/internal/exitcodes"
	"sdclean/internal/job"
	"sdclean/internal/limiter"
	"sdclean/internal/logging"
	"sdclean/internal/safety"
)

// Populated by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = config.DefaultStateDir + "/config.yaml"

type globalOpts struct {
	configPath string
	logLevel   string
	pretty     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:   "sdclean",
		Short: "Guarded junk cleanup for Android shared storage",
		Long: `sdclean removes cache directories, temporary files and other junk from
shared storage while never touching protected media and document folders.

Every job can be previewed with --dry-run; the preview lists exactly what a
live run would delete.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $SDCLEAN_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "human-readable console logs")

	root.AddCommand(
		newRunCmd(opts),
		newJobsCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sdclean %s (%s) built %s\n", version, commit, date)
		},
	}
}

// loadConfig reads the config file. Without an explicit path a missing
// file means built-in defaults.
func (o *globalOpts) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("SDCLEAN_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
	guard  *safety.Guard
}

func (o *globalOpts) load() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, exit(exitcodes.InvalidConfig, err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.pretty {
		cfg.Logging.Pretty = true
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, exit(exitcodes.RuntimeError, err)
	}
	guard, err := safety.NewGuard(cfg.ProtectedPaths...)
	if err != nil {
		closer.Close()
		return nil, exit(exitcodes.InvalidConfig, err)
	}
	return &app{cfg: cfg, logger: logger, closer: closer, guard: guard}, nil
}

func (a *app) close() {
	if err := a.closer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
}

// openHistory opens the history database. History is best effort: a
// database that cannot be opened is logged and runs go on without it.
func (a *app) openHistory() *database.HistoryDB {
	db, err := database.NewHistoryDB(a.cfg.DatabasePath)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", a.cfg.DatabasePath).Msg("history disabled")
		return nil
	}
	db.SetLogger(a.logger)
	return db
}

func (a *app) newRunner(db *database.HistoryDB) *job.Runner {
	r := job.NewRunner(a.guard, a.logger)
	sinks := events.Multi{events.NewLogSink(a.logger)}
	if db != nil {
		sinks = append(sinks, db)
	}
	r.SetSink(sinks)
	r.SetPacer(limiter.NewPacer(a.cfg.Limits.MaxDeletesPerSecond, a.cfg.Limits.Burst))
	return r
}

// definitions builds the named jobs, or every catalog job when names is
// empty.
func (a *app) definitions(names []string) ([]job.Definition, error) {
	var cfgs []config.JobCfg
	if len(names) == 0 {
		cfgs = job.Catalog(a.cfg)
	}
	for _, name := range names {
		jc, ok := job.Lookup(a.cfg, name)
		if !ok {
			return nil, fmt.Errorf("unknown job %q (see `sdclean jobs`)", name)
		}
		cfgs = append(cfgs, jc)
	}

	defs := make([]job.Definition, 0, len(cfgs))
	for _, jc := range cfgs {
		def, err := job.Build(a.cfg, jc)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
