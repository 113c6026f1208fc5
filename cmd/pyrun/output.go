package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/capture"
)

var (
	errorColor  = color.New(color.FgRed, color.Bold)
	imageColor  = color.New(color.FgMagenta)
	dimColor    = color.New(color.FgHiBlack)
	promptColor = color.New(color.FgCyan)
	okColor     = color.New(color.FgGreen)
)

// readSource reads code from the named file, or from stdin for "-" or no name.
func readSource(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// printResult writes each text output and each image as its own line, then the
// fault if there is one. Images are saved under imageDir when it is set.
func printResult(w io.Writer, res capture.Result, imageDir, prefix string) error {
	n := 0
	for _, it := range res.Outputs {
		switch it.Type {
		case capture.TypeText:
			fmt.Fprintln(w, it.Content)
		case capture.TypeImage:
			n++
			if imageDir == "" {
				imageColor.Fprintf(w, "[figure %d: %d bytes base64]\n", n, len(it.Content))
				continue
			}
			path, err := saveImage(imageDir, prefix, n, it)
			if err != nil {
				return err
			}
			imageColor.Fprintf(w, "[figure %d: %s]\n", n, path)
		}
	}
	if res.Failed() {
		errorColor.Fprintf(w, "error: %s\n", res.ErrorMessage())
	}
	return nil
}

// saveImage decodes an image item into dir/<prefix>-<n>.png.
func saveImage(dir, prefix string, n int, it capture.Item) (string, error) {
	data, err := base64.StdEncoding.DecodeString(it.Content)
	if err != nil {
		return "", fmt.Errorf("decoding figure %d: %w", n, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating image directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", prefix, n))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func printDiagnostics(w io.Writer, name string, diags []analysis.Diagnostic) {
	if len(diags) == 0 {
		okColor.Fprintln(w, "no problems found")
		return
	}
	for _, d := range diags {
		fmt.Fprintf(w, "%s:%d: %s\n", name, d.From.Line+1, errorColor.Sprint(d.Message))
	}
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// firstLine returns the first non-blank line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
