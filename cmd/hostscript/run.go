package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect, run every script once, and disconnect",
		Long: `Connect to the interpreter, load the scripts directory and run each
script once in lexical order.

Examples:
  hostscript run --dir ./scripts
  hostscript run --lang python --python-wasm python.wasm --initial-value 5`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := s.engine.Connect(ctx); err != nil {
		return err
	}
	defer s.engine.Disconnect()

	summary, err := s.engine.RunAll(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range summary.Results {
		if res.Error != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", res.Error)
		}
	}
	fmt.Fprintf(out, "ran %d script(s), %d failed\n", summary.Attempted, summary.Failed)
	fmt.Fprintf(out, "state: %d\n", s.state.Get())
	return nil
}
