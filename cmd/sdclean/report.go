package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"sdclean/internal/job"
	"sdclean/internal/scheduler"
)

// writeReport prints a short per-job summary, listing at most limit paths
// of each kind. limit <= 0 lists none.
func writeReport(w io.Writer, outs []scheduler.Outcome, limit int) error {
	p := &printer{w: w}
	for i, o := range outs {
		if i > 0 {
			p.printf("\n")
		}
		if o.Result == nil {
			p.printf("%s: not run: %v\n", o.Job, o.Err)
			continue
		}
		res := o.Result

		mode, verb := "live", "freed"
		if res.DryRun {
			mode, verb = "dry run", "would be freed"
		}
		p.printf("%s (%s, run %s)\n", res.Job, mode, shortID(res.RunID))
		p.printf("  %d %s, %s %s, %d skipped, %s\n",
			res.Entries, plural(res.Entries, "entry", "entries"),
			humanize.IBytes(uint64(res.Bytes)), verb,
			res.Skipped, res.Duration().Round(time.Millisecond))
		p.list(res.Paths(), limit)

		if n := len(res.Failures); n > 0 {
			p.printf("  %d failed:\n", n)
			p.errors(res.Failures, limit)
		}
		if n := len(res.ReadErrors); n > 0 {
			p.printf("  %d unreadable:\n", n)
			p.errors(res.ReadErrors, limit)
		}
		for _, root := range sortedKeys(res.FreeAfter) {
			before, ok := res.FreeBefore[root]
			if !ok {
				continue
			}
			p.printf("  free on %s: %s -> %s\n", root, humanize.IBytes(before), humanize.IBytes(res.FreeAfter[root]))
		}
		if o.Err != nil {
			p.printf("  aborted: %v\n", o.Err)
		}
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) list(paths []string, limit int) {
	for i, path := range paths {
		if i >= limit {
			p.printf("    ... and %d more\n", len(paths)-i)
			return
		}
		p.printf("    %s\n", path)
	}
}

func (p *printer) errors(errs []job.PathError, limit int) {
	for i, e := range errs {
		if i >= limit {
			p.printf("    ... and %d more\n", len(errs)-i)
			return
		}
		p.printf("    %s: %v\n", e.Path, e.Err)
	}
}

type jsonPathError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type jsonJob struct {
	Job         string            `json:"job"`
	RunID       string            `json:"run_id,omitempty"`
	DryRun      bool              `json:"dry_run"`
	Fingerprint string            `json:"rules_fingerprint,omitempty"`
	Entries     int               `json:"entries"`
	Bytes       int64             `json:"bytes"`
	Skipped     int               `json:"skipped"`
	Paths       []string          `json:"paths"`
	Failures    []jsonPathError   `json:"failures"`
	ReadErrors  []jsonPathError   `json:"read_errors"`
	FreeBefore  map[string]uint64 `json:"free_before,omitempty"`
	FreeAfter   map[string]uint64 `json:"free_after,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
	Aborted     bool              `json:"aborted"`
	Error       string            `json:"error,omitempty"`
}

// writeJSONReport prints every result in full.
func writeJSONReport(w io.Writer, outs []scheduler.Outcome) error {
	jobs := make([]jsonJob, 0, len(outs))
	for _, o := range outs {
		j := jsonJob{Job: o.Job, Paths: []string{}, Failures: []jsonPathError{}, ReadErrors: []jsonPathError{}}
		if o.Err != nil {
			j.Error = o.Err.Error()
		}
		if res := o.Result; res != nil {
			j.RunID = res.RunID
			j.DryRun = res.DryRun
			j.Fingerprint = res.Fingerprint
			j.Entries = res.Entries
			j.Bytes = res.Bytes
			j.Skipped = res.Skipped
			j.Paths = append(j.Paths, res.Paths()...)
			j.Failures = toJSON(res.Failures)
			j.ReadErrors = toJSON(res.ReadErrors)
			j.FreeBefore = res.FreeBefore
			j.FreeAfter = res.FreeAfter
			j.DurationMS = res.Duration().Milliseconds()
			j.Aborted = res.Aborted
		}
		jobs = append(jobs, j)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jobs)
}

func toJSON(errs []job.PathError) []jsonPathError {
	out := make([]jsonPathError, 0, len(errs))
	for _, e := range errs {
		out = append(out, jsonPathError{Path: e.Path, Error: e.Err.Error()})
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
