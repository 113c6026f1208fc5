package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/runner"
	"github.com/michaelbrown/pyrun/internal/storage"
)

var (
	imagesFlag string
	jsonFlag   bool
)

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Run a Python snippet and print its output",
	Long: `Run a Python file (or stdin) in the sandbox and print what it produced.

Printed text is written as is. Figures are listed in order, and written as PNG
files when --images is set.

Examples:
  pyrun run plot.py --images ./out
  echo 'print(1 + 1)' | pyrun run
  pyrun run script.py --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&imagesFlag, "images", "", "Directory to write figures to as PNG files")
	runCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, err := logContext()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 && stdinIsTerminal() {
		return errors.New("no input: pass a file or pipe code on stdin")
	}
	code, err := readSource(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	// One snippet needs one interpreter.
	cfg.Sandbox.Workers = 1
	stack, err := runner.Start(ctx, cfg, runner.StartOptions{Sandbox: true, History: true})
	if err != nil {
		return err
	}
	defer stack.Close()

	res, id := stack.Service.Run(ctx, storage.SourceCLI, code)

	out := cmd.OutOrStdout()
	if jsonFlag {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		if err := printResult(out, res, imagesFlag, id[:8]); err != nil {
			return err
		}
	}

	if res.Failed() {
		return errRunFailed
	}
	return nil
}

// stdinIsTerminal reports whether stdin is interactive.
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
