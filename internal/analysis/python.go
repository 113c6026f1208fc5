package analysis

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

//go:embed lint.py
var lintScript string

//go:embed complete.py
var completeScript string

// PythonProvider runs pyflakes and jedi in a short-lived Python process per
// request.
type PythonProvider struct {
	Python  string
	Timeout time.Duration
}

// NewPythonProvider creates a provider using the given interpreter.
func NewPythonProvider(python string, timeout time.Duration) *PythonProvider {
	return &PythonProvider{Python: python, Timeout: timeout}
}

// Check runs pyflakes over code and returns its report.
func (p *PythonProvider) Check(ctx context.Context, code string) (string, error) {
	out, err := p.run(ctx, lintScript, []byte(code))
	if err != nil {
		return "", fmt.Errorf("pyflakes: %w", err)
	}
	return string(out), nil
}

type completeRequest struct {
	Code   string `json:"code"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Complete runs jedi at the one-based line and column.
func (p *PythonProvider) Complete(ctx context.Context, code string, line, column int) ([]Completion, error) {
	req, err := json.Marshal(completeRequest{Code: code, Line: line, Column: column})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out, err := p.run(ctx, completeScript, req)
	if err != nil {
		return nil, fmt.Errorf("jedi: %w", err)
	}
	var items []Completion
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("decoding jedi output: %w", err)
	}
	return items, nil
}

func (p *PythonProvider) run(ctx context.Context, script string, input []byte) ([]byte, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	python := p.Python
	if python == "" {
		python = "python3"
	}
	cmd := exec.CommandContext(ctx, python, "-c", script)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errors.New(lastLine(stderr.String(), exitErr.Error()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// lastLine returns the final non-empty line of s, which for a Python
// traceback is the exception itself.
func lastLine(s, fallback string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last
	}
	return fallback
}
