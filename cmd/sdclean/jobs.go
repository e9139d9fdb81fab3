package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sdclean/internal/job"
)

func newJobsCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List built-in and configured jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			defer a.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROOTS\tEMPTY DIRS\tDESCRIPTION")
			for _, jc := range job.Catalog(a.cfg) {
				desc := job.Description(jc.Name)
				if desc == "" {
					desc = "(configured)"
				}
				empty := "no"
				if jc.EmptyDirs.Enabled {
					empty = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", jc.Name, strings.Join(jc.Roots, ","), empty, desc)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nprotected: %s\n", strings.Join(a.guard.Paths(), ", "))
			return nil
		},
	}
}
