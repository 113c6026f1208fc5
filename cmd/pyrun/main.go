package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/config"
)

var (
	configFlag    string
	debugFlag     bool
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "pyrun",
	Short: "pyrun - Python code runner",
	Long: `pyrun executes Python snippets in sandboxed interpreters and returns their
printed text and rendered figures in order. It also lints code with pyflakes
and completes it with jedi.

Serve the HTTP API with "pyrun serve", or use the run, lint, complete and repl
commands directly from the terminal.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./pyrun.yaml or ~/.pyrun/pyrun.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logs")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: terminal, text or json (default: terminal on a TTY, json otherwise)")
}

// errRunFailed reports a snippet fault that was already printed.
var errRunFailed = errors.New("run failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// logContext returns a context carrying a logger configured from the flags.
func logContext() (context.Context, error) {
	format := log.FormatJSON
	switch logFormatFlag {
	case "":
		if log.IsTerminal() {
			format = log.FormatTerminal
		}
	case "terminal":
		format = log.FormatTerminal
	case "text":
		format = log.FormatText
	case "json":
	default:
		return nil, fmt.Errorf("unknown log format: %s", logFormatFlag)
	}

	ctx := log.Context(context.Background(), log.WithFormat(format))
	if debugFlag {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	return ctx, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
