// Command rulehistory maintains git repositories recording every effective
// version of the North Dakota court rules.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rulehistory/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries an exit code for outcomes that are not errors, such as
// a run that finished with unresolved conflicts.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return app.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(stderr, "error:", err)
	if isUsageError(err) {
		return app.ExitUsage
	}
	return app.ExitCode(err)
}

type usageError struct{ error }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func isUsageError(err error) bool {
	var ue usageError
	return errors.As(err, &ue)
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "rulehistory",
		Short:         "Record the version history of North Dakota court rules in git",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		newBuildCmd(opts),
		newUpdateCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
		newRunsCmd(opts),
		newSearchCmd(opts),
	)
	return root
}

// withRuntime loads configuration, wires the engine and hands it to fn.
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(*runtime) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return usageError{err}
	}
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
