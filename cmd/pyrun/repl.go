package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/runner"
	"github.com/michaelbrown/pyrun/internal/storage"
)

var replImagesFlag string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Run snippets interactively",
	Long: `Start an interactive prompt that runs each snippet in the sandbox.

A single line that does not open a block runs immediately. Lines ending in ":"
start a block, which runs when you enter a blank line. Every snippet starts
with a fresh namespace.

Examples:
  pyrun repl
  pyrun repl --images ./figures`,
	RunE: runREPL,
}

func init() {
	replCmd.Flags().StringVar(&replImagesFlag, "images", "", "Directory to write figures to as PNG files")
	rootCmd.AddCommand(replCmd)
}

// snippetBuffer collects input lines until a snippet is complete.
type snippetBuffer struct {
	lines []string
}

// add appends line and returns the snippet when it is ready to run.
func (b *snippetBuffer) add(line string) (string, bool) {
	if strings.TrimSpace(line) == "" {
		if len(b.lines) == 0 {
			return "", false
		}
		return b.flush(), true
	}

	b.lines = append(b.lines, line)
	if len(b.lines) == 1 && !opensBlock(line) {
		return b.flush(), true
	}
	return "", false
}

func (b *snippetBuffer) pending() bool { return len(b.lines) > 0 }

func (b *snippetBuffer) reset() { b.lines = nil }

func (b *snippetBuffer) flush() string {
	code := strings.Join(b.lines, "\n") + "\n"
	b.lines = nil
	return code
}

func opensBlock(line string) bool {
	s := strings.TrimRight(line, " \t")
	return strings.HasSuffix(s, ":") || strings.HasSuffix(s, "\\") ||
		strings.HasPrefix(strings.TrimSpace(s), "@")
}

func runREPL(cmd *cobra.Command, args []string) error {
	ctx, err := logContext()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cfg.Sandbox.Workers = 1
	stack, err := runner.Start(ctx, cfg, runner.StartOptions{Sandbox: true, History: true})
	if err != nil {
		return err
	}
	defer stack.Close()

	fmt.Printf("pyrun - Python code runner\n")
	fmt.Printf("Sandbox: %s | Timeout: %s\n", cfg.Sandbox.Launcher, cfg.Sandbox.Timeout)
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	primary := promptColor.Sprint(">>> ")
	continuation := promptColor.Sprint("... ")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          primary,
		HistoryFile:     filepath.Join(os.TempDir(), "pyrun_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the running snippet, not the whole app.
	var (
		mu        sync.Mutex
		runCancel context.CancelFunc
	)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			mu.Lock()
			if runCancel != nil {
				runCancel()
			}
			mu.Unlock()
		}
	}()

	var buf snippetBuffer
	for {
		if buf.pending() {
			rl.SetPrompt(continuation)
		} else {
			rl.SetPrompt(primary)
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && buf.pending() {
				buf.reset()
				continue
			}
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		if !buf.pending() && strings.HasPrefix(strings.TrimSpace(line), "/") {
			if quit := handleCommand(strings.TrimSpace(line)); quit {
				return nil
			}
			continue
		}

		code, ready := buf.add(line)
		if !ready {
			continue
		}

		runCtx, cancel := context.WithCancel(ctx)
		mu.Lock()
		runCancel = cancel
		mu.Unlock()

		res, id := stack.Service.Run(runCtx, storage.SourceCLI, code)
		interrupted := runCtx.Err() != nil

		mu.Lock()
		runCancel = nil
		mu.Unlock()
		cancel()

		if interrupted {
			fmt.Println("(interrupted)")
		}
		if err := printResult(os.Stdout, res, replImagesFlag, id[:8]); err != nil {
			errorColor.Printf("error: %s\n", err)
		}
	}
}

// handleCommand runs a slash command and reports whether to exit.
func handleCommand(input string) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
		fmt.Println("Lines ending in ':' start a block; a blank line runs it.")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return false
}
