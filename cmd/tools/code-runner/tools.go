package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/capture"
	"github.com/michaelbrown/pyrun/internal/storage"
)

// maxText bounds each text block returned to the client.
const maxText = 4000

// service is the part of runner.Service the tools call.
type service interface {
	Run(ctx context.Context, source storage.Source, code string) (capture.Result, string)
	Lint(ctx context.Context, code string) []analysis.Diagnostic
	Complete(ctx context.Context, code string, cur analysis.Cursor) ([]analysis.Completion, error)
}

type tools struct {
	svc service
	ctx context.Context // carries the logger
}

func (t *tools) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	code, ok := args["code"].(string)
	if !ok {
		return errResult("error: 'code' is required"), nil
	}

	res, id := t.svc.Run(t.logContext(ctx), storage.SourceMCP, code)
	return runResult(res, id), nil
}

func (t *tools) handleLint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	code, ok := args["code"].(string)
	if !ok {
		return errResult("error: 'code' is required"), nil
	}

	diags := t.svc.Lint(t.logContext(ctx), code)
	if len(diags) == 0 {
		return textResult("no problems found"), nil
	}
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "line %d: %s\n", d.From.Line+1, d.Message)
	}
	return textResult(b.String()), nil
}

func (t *tools) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	code, ok := args["code"].(string)
	if !ok {
		return errResult("error: 'code' is required"), nil
	}
	// JSON numbers decode as float64.
	line, _ := args["line"].(float64)
	ch, _ := args["ch"].(float64)
	if line < 0 || ch < 0 {
		return errResult("error: 'line' and 'ch' must not be negative"), nil
	}

	items, err := t.svc.Complete(t.logContext(ctx), code, analysis.Cursor{Line: int(line), Ch: int(ch)})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	if len(items) == 0 {
		return textResult("no completions"), nil
	}
	var b strings.Builder
	for _, c := range items {
		fmt.Fprintf(&b, "%s (%s)\n", c.Label, c.Kind)
	}
	return textResult(b.String()), nil
}

// logContext attaches the server logger to a request context.
func (t *tools) logContext(ctx context.Context) context.Context {
	if t.ctx == nil {
		return ctx
	}
	return log.WithContext(ctx, t.ctx)
}

// runResult maps a run onto MCP content in output order. Consecutive text
// items are merged into one block, one line per item; each figure becomes a
// PNG image block.
func runResult(res capture.Result, runID string) *mcp.CallToolResult {
	var (
		content []mcp.Content
		text    strings.Builder
	)
	flush := func() {
		if text.Len() == 0 {
			return
		}
		content = append(content, mcp.TextContent{Type: "text", Text: clip(text.String())})
		text.Reset()
	}

	for _, it := range res.Outputs {
		switch it.Type {
		case capture.TypeText:
			text.WriteString(it.Content + "\n")
		case capture.TypeImage:
			flush()
			content = append(content, mcp.ImageContent{Type: "image", Data: it.Content, MIMEType: "image/png"})
		}
	}
	if res.Failed() {
		text.WriteString("error: " + res.ErrorMessage() + "\n")
	}
	flush()

	if len(content) == 0 {
		content = append(content, mcp.TextContent{Type: "text", Text: "(no output)"})
	}
	if runID != "" {
		content = append(content, mcp.TextContent{Type: "text", Text: "run " + runID})
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: res.Failed(),
	}
}

func clip(s string) string {
	if len(s) > maxText {
		return s[:maxText] + "\n... (output truncated)"
	}
	return s
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
