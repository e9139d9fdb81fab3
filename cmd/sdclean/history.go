package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sdclean/internal/database"
	"sdclean/internal/events"
	"sdclean/internal/exitcodes"
)

type historyOpts struct {
	recent int
	action string
	job    string
	path   string
	run    string
	stats  bool
	days   int
	prune  int
	vacuum bool
	info   bool
	json   bool
}

func newHistoryCmd(g *globalOpts) *cobra.Command {
	opts := &historyOpts{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the cleanup history database",
		Example: `  sdclean history --recent 20
  sdclean history --stats --days 7
  sdclean history --action delete --job shared-junk
  sdclean history --path '/sdcard/Download/%'
  sdclean history --prune 90 --vacuum`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			defer a.close()

			db, err := database.NewHistoryDB(a.cfg.DatabasePath)
			if err != nil {
				return exit(exitcodes.RuntimeError, err)
			}
			defer db.Close()

			if err := opts.exec(cmd.OutOrStdout(), db); err != nil {
				return exit(exitcodes.RuntimeError, err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.recent, "recent", 20, "number of records to show")
	f.StringVar(&opts.action, "action", "", "filter by action (preview, delete, skip, fail, read-error)")
	f.StringVar(&opts.job, "job", "", "filter by job name")
	f.StringVar(&opts.path, "path", "", "filter by path pattern (SQL LIKE syntax)")
	f.StringVar(&opts.run, "run", "", "show every event of one run ID")
	f.BoolVar(&opts.stats, "stats", false, "show aggregate statistics")
	f.IntVar(&opts.days, "days", 30, "statistics window in days")
	f.IntVar(&opts.prune, "prune", 0, "delete records older than N days")
	f.BoolVar(&opts.vacuum, "vacuum", false, "compact the database file")
	f.BoolVar(&opts.info, "info", false, "show database size and time range")
	f.BoolVar(&opts.json, "json", false, "output JSON")
	return cmd
}

func (o *historyOpts) exec(w io.Writer, db *database.HistoryDB) error {
	if o.prune > 0 || o.vacuum {
		if o.prune > 0 {
			n, err := db.Prune(o.prune)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "pruned %d records older than %d days\n", n, o.prune)
		}
		if o.vacuum {
			if err := db.Vacuum(); err != nil {
				return err
			}
			fmt.Fprintln(w, "database vacuumed")
		}
		return nil
	}

	switch {
	case o.info:
		info, err := db.Info()
		if err != nil {
			return err
		}
		if o.json {
			return printJSON(w, info)
		}
		fmt.Fprintf(w, "records: %d\nsize:    %s\n", info.TotalRecords, humanize.IBytes(uint64(info.SizeBytes)))
		if info.TotalRecords > 0 {
			fmt.Fprintf(w, "range:   %s .. %s\n", info.Oldest.Local().Format("2006-01-02 15:04"), info.Newest.Local().Format("2006-01-02 15:04"))
		}
		return nil
	case o.stats:
		st, err := db.Stats(o.days)
		if err != nil {
			return err
		}
		if o.json {
			return printJSON(w, st)
		}
		return printStats(w, st, o.days)
	}

	var (
		records []database.Record
		err     error
	)
	switch {
	case o.run != "":
		records, err = db.ByRun(o.run)
	case o.action != "":
		if !validAction(o.action) {
			return fmt.Errorf("unknown action %q", o.action)
		}
		records, err = db.ByAction(events.Action(o.action), o.recent)
	case o.job != "":
		records, err = db.ByJob(o.job, o.recent)
	case o.path != "":
		records, err = db.ByPath(o.path, o.recent)
	default:
		if o.recent <= 0 {
			return errors.New("--recent must be positive")
		}
		records, err = db.Recent(o.recent)
	}
	if err != nil {
		return err
	}
	if o.json {
		return printJSON(w, records)
	}
	return printRecords(w, records)
}

func validAction(a string) bool {
	switch events.Action(a) {
	case events.ActionPreview, events.ActionDelete, events.ActionSkip, events.ActionFail, events.ActionReadError:
		return true
	}
	return false
}

func printStats(w io.Writer, st *database.Stats, days int) error {
	fmt.Fprintf(w, "History (last %d days, %s to %s)\n\n", days, st.Start.Local().Format("2006-01-02"), st.End.Local().Format("2006-01-02"))
	fmt.Fprintf(w, "Deleted:      %d (%s freed)\n", st.Deleted, humanize.IBytes(uint64(st.BytesFreed)))
	fmt.Fprintf(w, "Previewed:    %d (%s)\n", st.Previewed, humanize.IBytes(uint64(st.BytesPreviewed)))
	fmt.Fprintf(w, "Skipped:      %d\n", st.Skipped)
	fmt.Fprintf(w, "Failed:       %d\n", st.Failed)
	fmt.Fprintf(w, "Read errors:  %d\n", st.ReadErrors)

	if len(st.ByJob) == 0 {
		return nil
	}
	names := make([]string, 0, len(st.ByJob))
	for name := range st.ByJob {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "\nDeleted by job:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-20s %d\n", name, st.ByJob[name])
	}
	return nil
}

func printRecords(w io.Writer, records []database.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No records found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tJOB\tACTION\tTYPE\tSIZE\tPATH")
	for _, r := range records {
		path := r.Path
		if r.ErrorMessage != "" {
			path += " (" + r.ErrorMessage + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Job, r.Action, r.ObjectType, humanize.IBytes(uint64(r.Size)), path)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
