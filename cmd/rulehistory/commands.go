package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rulehistory/internal/app"
	"rulehistory/internal/export"
	"rulehistory/internal/report"
	"rulehistory/internal/rules"
	"rulehistory/internal/search"
	"rulehistory/internal/store"
)

type runFlags struct {
	categories []string
	apply      bool
	json       bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.categories, "categories", nil, "comma-separated categories (default: config, then every source category)")
	cmd.Flags().BoolVar(&f.apply, "apply", false, "write to the repositories; without it only the plan is printed")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the run summary as JSON")
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	var (
		flags runFlags
		force bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create the repositories and record every version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, root, func(rt *runtime) error {
				cats, err := rt.categories(flags.categories)
				if err != nil {
					return err
				}
				summary, err := rt.engine.Build(cmd.Context(), cats, force, flags.apply)
				return finishRun(cmd, flags, summary, err)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "delete and rebuild the repositories from scratch")
	return cmd
}

func newUpdateCmd(root *rootOptions) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Record new versions and corrections in existing repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, root, func(rt *runtime) error {
				cats, err := rt.categories(flags.categories)
				if err != nil {
					return err
				}
				summary, err := rt.engine.Update(cmd.Context(), cats, flags.apply)
				return finishRun(cmd, flags, summary, err)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// finishRun prints the summary and maps unresolved conflicts to their own
// exit status.
func finishRun(cmd *cobra.Command, flags runFlags, summary report.Summary, runErr error) error {
	out := cmd.OutOrStdout()
	if flags.json {
		if err := writeJSON(out, summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return &exitError{code: app.ExitFailure}
		}
		return runErr
	}
	if summary.Counts.Conflicts > 0 {
		return &exitError{code: app.ExitConflicts}
	}
	return nil
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <category>/<slug>",
		Short: "List the recorded versions of one document, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rules.ParseDocumentID(args[0])
			if err != nil {
				return usageError{err}
			}
			return withRuntime(cmd, root, func(rt *runtime) error {
				commits, err := rt.engine.History(id, limit)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), commits)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many versions (0 for all)")
	return cmd
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var (
		asOf   string
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <category>/<slug>",
		Short: "Render a document as it read on a given date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rules.ParseDocumentID(args[0])
			if err != nil {
				return usageError{err}
			}
			date := rules.DateOf(timeNow())
			if asOf != "" {
				if date, err = rules.ParseDate(asOf); err != nil {
					return usagef("--as-of: %w", err)
				}
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return usageError{err}
			}
			return withRuntime(cmd, root, func(rt *runtime) error {
				res, err := rt.engine.Export(cmd.Context(), rt.export, rules.Document{ID: id}, date, f)
				if err != nil {
					return err
				}
				if out == "" {
					_, err = cmd.OutOrStdout().Write(res.Data)
					return err
				}
				if info, statErr := os.Stat(out); statErr == nil && info.IsDir() {
					out = filepath.Join(out, res.Filename)
				}
				if err := os.WriteFile(out, res.Data, 0o644); err != nil {
					return err
				}
				rt.log.Info().Str("document", id.String()).Str("version", res.Version.Key.String()).
					Str("file", out).Msg("exported")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "date the document is read on (default today)")
	cmd.Flags().StringVar(&format, "format", "html", "md, html, pdf or docx")
	cmd.Flags().StringVarP(&out, "output", "o", "", "file or directory to write; stdout when empty")
	return cmd
}

func newRunsCmd(root *rootOptions) *cobra.Command {
	var (
		limit int
		show  string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the run store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, root, func(rt *runtime) error {
				if rt.runs == nil {
					return usagef("runs requires database.url")
				}
				ctx := cmd.Context()
				if show != "" {
					run, err := rt.runs.GetRun(ctx, show)
					if errors.Is(err, store.ErrNotFound) {
						return usagef("run %s not found", show)
					}
					if err != nil {
						return err
					}
					problems, err := rt.runs.ListRunProblems(ctx, run.ID)
					if err != nil {
						return err
					}
					printRun(cmd.OutOrStdout(), run, problems)
					return nil
				}
				runs, err := rt.runs.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().StringVar(&show, "show", "", "print one run with its problems")
	return cmd
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		category string
		asOf     string
		limit    int
		offset   int
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Full-text search over recorded versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := search.Query{
				Text:           strings.Join(args, " "),
				FilterCategory: category,
				Limit:          limit,
				Offset:         offset,
			}
			if asOf != "" {
				d, err := rules.ParseDate(asOf)
				if err != nil {
					return usagef("--as-of: %w", err)
				}
				q.AsOf = &d
			}
			return withRuntime(cmd, root, func(rt *runtime) error {
				if rt.search == nil {
					return usagef("search requires meili.url or database.url")
				}
				resp, err := rt.search.Search(q)
				if err != nil {
					return err
				}
				printSearch(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "restrict to one category")
	cmd.Flags().StringVar(&asOf, "as-of", "", "only versions effective on or before this date")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}
