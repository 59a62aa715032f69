package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"rulehistory/internal/gitrepo"
	"rulehistory/internal/report"
	"rulehistory/internal/search"
	"rulehistory/internal/store"
)

var timeNow = time.Now

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, s report.Summary) {
	c := s.Counts
	mode := s.Mode
	if !s.Apply {
		mode += " (dry run)"
	}
	fmt.Fprintf(w, "run %s: %s %s\n", s.RunID, mode, strings.Join(s.Categories, ","))
	fmt.Fprintf(w, "documents %d, unchanged %d, new versions %d, corrections %d, conflicts %d, skipped records %d\n",
		c.Documents, c.Unchanged, c.NewVersions, c.Corrections, c.Conflicts, c.SkippedRecords)
	fmt.Fprintf(w, "planned %d, applied %d, already applied %d\n", c.Planned, c.Applied, c.AlreadyApplied)

	if len(s.Plan) > 0 {
		fmt.Fprintln(w, "\nplan:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for i, p := range s.Plan {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", i+1, p.Kind, p.Path, p.Key, p.Digest)
		}
		_ = tw.Flush()
	}
	if len(s.Problems) > 0 {
		fmt.Fprintln(w, "\nproblems:")
		for _, p := range s.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if s.Fatal != "" {
		fmt.Fprintf(w, "\nfatal: %s\n", s.Fatal)
	}
}

func printHistory(w io.Writer, commits []gitrepo.CommitInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commits {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortHash(c.Hash), c.When.Format("2006-01-02"), c.Key, c.Subject)
	}
	_ = tw.Flush()
}

func printRuns(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tDOCS\tNEW\tCORR\tCONFLICTS\tAPPLIED\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, runMode(r), r.StartedAt.Format(time.RFC3339), r.Documents, r.NewVersions,
			r.Corrections, r.Conflicts, r.MutationsApplied, runStatus(r))
	}
	_ = tw.Flush()
}

func printRun(w io.Writer, r store.Run, problems []store.RunProblem) {
	fmt.Fprintf(w, "run %s: %s %s\n", r.ID, runMode(r), strings.Join(r.Categories, ","))
	fmt.Fprintf(w, "started %s, finished %s, status %s\n",
		r.StartedAt.Format(time.RFC3339), r.FinishedAt.Format(time.RFC3339), runStatus(r))
	fmt.Fprintf(w, "documents %d, new versions %d, corrections %d, conflicts %d, applied %d\n",
		r.Documents, r.NewVersions, r.Corrections, r.Conflicts, r.MutationsApplied)
	if r.Fatal != "" {
		fmt.Fprintf(w, "fatal: %s\n", r.Fatal)
	}
	for _, p := range problems {
		dates := ""
		if len(p.Dates) > 0 {
			dates = " [" + strings.Join(p.Dates, ", ") + "]"
		}
		fmt.Fprintf(w, "  %s %s%s: %s\n", p.Kind, p.Document, dates, p.Reason)
	}
}

func printSearch(w io.Writer, resp search.Response) {
	fmt.Fprintf(w, "%d results for %q\n", resp.Total, resp.Query)
	for _, r := range resp.Results {
		key := r.Effective
		if r.Suffix != "" {
			key += " " + r.Suffix
		}
		fmt.Fprintf(w, "\n%s (%s) %s\n", r.Document, key, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(w, "  %s\n", r.Snippet)
		}
	}
}

func runMode(r store.Run) string {
	if r.Applied {
		return r.Mode
	}
	return r.Mode + " (dry run)"
}

func runStatus(r store.Run) string {
	switch {
	case r.Fatal != "":
		return "fatal"
	case r.Conflicts > 0:
		return "conflicts"
	default:
		return "ok"
	}
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}
