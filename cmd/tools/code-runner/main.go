// Command code-runner serves the Python runner as MCP tools over stdio.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/config"
	"github.com/michaelbrown/pyrun/internal/runner"
)

func main() {
	// stdout carries the protocol.
	ctx := log.Context(context.Background(), log.WithOutput(os.Stderr), log.WithFormat(log.FormatText))

	cfg, err := config.Load()
	if err != nil {
		log.Errorf(ctx, err, "loading config")
		os.Exit(1)
	}

	stack, err := runner.Start(ctx, cfg, runner.StartOptions{Sandbox: true, History: true})
	if err != nil {
		log.Errorf(ctx, err, "starting runner")
		os.Exit(1)
	}
	defer stack.Close()

	s := server.NewMCPServer("pyrun-code-runner", "0.1.0")
	registerTools(s, &tools{svc: stack.Service, ctx: ctx})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}
}

func registerTools(s *server.MCPServer, t *tools) {
	s.AddTool(mcp.Tool{
		Name:        "run_python",
		Description: "Execute a Python snippet in a sandbox. Returns printed text and matplotlib figures (PNG) in the order they were produced.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source code to execute",
				},
			},
			Required: []string{"code"},
		},
	}, t.handleRun)

	s.AddTool(mcp.Tool{
		Name:        "lint_python",
		Description: "Check Python code with pyflakes. Returns one line per problem.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source code to check",
				},
			},
			Required: []string{"code"},
		},
	}, t.handleLint)

	s.AddTool(mcp.Tool{
		Name:        "complete_python",
		Description: "List jedi completions at a zero-based cursor position.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source code",
				},
				"line": map[string]any{
					"type":        "integer",
					"description": "Zero-based cursor line",
				},
				"ch": map[string]any{
					"type":        "integer",
					"description": "Zero-based cursor column",
				},
			},
			Required: []string{"code", "line", "ch"},
		},
	}, t.handleComplete)
}
