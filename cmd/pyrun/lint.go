package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/runner"
)

var lintJSONFlag bool

var lintCmd = &cobra.Command{
	Use:   "lint [file|-]",
	Short: "Check Python code with pyflakes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLint,
}

var (
	lineFlag int
	chFlag   int
)

var completeCmd = &cobra.Command{
	Use:   "complete <file>",
	Short: "List completions at a cursor position",
	Long: `List jedi completions for the cursor at --line and --ch.

Both are zero-based, the way editors report cursor positions.

Example:
  pyrun complete script.py --line 3 --ch 7`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	lintCmd.Flags().BoolVar(&lintJSONFlag, "json", false, "Print diagnostics as JSON")
	completeCmd.Flags().IntVar(&lineFlag, "line", 0, "Zero-based cursor line")
	completeCmd.Flags().IntVar(&chFlag, "ch", 0, "Zero-based cursor column")
	rootCmd.AddCommand(lintCmd, completeCmd)
}

// analysisService starts a service without the interpreter pool or history.
func analysisService() (context.Context, *runner.Stack, error) {
	ctx, err := logContext()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	stack, err := runner.Start(ctx, cfg, runner.StartOptions{})
	if err != nil {
		return nil, nil, err
	}
	return ctx, stack, nil
}

func runLint(cmd *cobra.Command, args []string) error {
	code, err := readSource(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	ctx, stack, err := analysisService()
	if err != nil {
		return err
	}
	defer stack.Close()

	diags := stack.Service.Lint(ctx, code)

	out := cmd.OutOrStdout()
	if lintJSONFlag {
		return json.NewEncoder(out).Encode(diags)
	}
	name := "<stdin>"
	if len(args) > 0 && args[0] != "-" {
		name = args[0]
	}
	printDiagnostics(out, name, diags)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	code, err := readSource(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if lineFlag < 0 || chFlag < 0 {
		return errors.New("--line and --ch must not be negative")
	}
	ctx, stack, err := analysisService()
	if err != nil {
		return err
	}
	defer stack.Close()

	items, err := stack.Service.Complete(ctx, code, analysis.Cursor{Line: lineFlag, Ch: chFlag})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range items {
		dimColor.Fprintf(out, "%-10s ", c.Kind)
		out.Write([]byte(c.Label + "\n"))
	}
	return nil
}
