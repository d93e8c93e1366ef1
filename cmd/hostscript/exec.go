package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var errNoCode = errors.New("no code given: use -c, a file argument or stdin")

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Run one piece of code against a connected engine",
		Long: `Connect, run the given code once, and disconnect. Scripts in the
scripts directory are loaded but not run.

Code can be provided via:
  - File argument: hostscript exec snippet.lua
  - Inline flag: hostscript exec -c 'print(Module.test(2))'
  - Stdin: echo 'print(1)' | hostscript exec`,
		Args: cobra.MaximumNArgs(1),
		RunE: runExec,
	}
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	return cmd
}

func readSource(cmd *cobra.Command, args []string) (string, error) {
	if code, _ := cmd.Flags().GetString("code"); code != "" {
		return code, nil
	}
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", errNoCode
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", errNoCode
	}
	return string(data), nil
}

func runExec(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}

	s, err := newSession(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := s.engine.Connect(ctx); err != nil {
		return err
	}
	defer s.engine.Disconnect()

	res := s.engine.RunCode(ctx, source)
	if res.Error != nil {
		return res.Error
	}
	return nil
}
