package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/caffeineduck/hostscript/language/lua"
	"github.com/caffeineduck/hostscript/language/python"
	"github.com/caffeineduck/hostscript/scripts"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scripts a run would load, without running them",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ext := languageExtension(cfg.Language)
	if cfg.Extension != nil {
		ext = *cfg.Extension
	}

	paths, err := scripts.List(cfg.ScriptsDir, ext)
	if err != nil {
		return err
	}
	records, errs := scripts.LoadAll(paths)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tLINES\tBYTES")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\n", rec.Path, strings.Count(rec.Source, "\n"), len(rec.Source))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, err := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", err)
	}
	return nil
}

// languageExtension avoids reading the Python interpreter build just to list
// files.
func languageExtension(name string) string {
	if name == "python" {
		return python.New(nil).Extension()
	}
	return lua.New().Extension()
}
