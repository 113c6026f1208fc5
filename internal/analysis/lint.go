package analysis

import (
	"context"
	"strconv"
	"strings"

	"goa.design/clue/log"
)

// Severity is the editor severity of a diagnostic.
type Severity string

const SeverityError Severity = "error"

// Diagnostic is one lint finding over a zero-based range.
type Diagnostic struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	From     Position `json:"from"`
	To       Position `json:"to"`
}

// DiagnosticProvider runs an analyzer over source text and returns its raw
// report, one "<file>:<line>:[<col>:] <message>" finding per line.
type DiagnosticProvider interface {
	Check(ctx context.Context, code string) (string, error)
}

// Linter translates provider reports into diagnostics.
type Linter struct {
	provider DiagnosticProvider
	width    int
	cache    *resultCache[Diagnostic]
}

// LinterOption configures a Linter.
type LinterOption func(*Linter)

// WithLineWidth sets the end column of every diagnostic range.
func WithLineWidth(width int) LinterOption {
	return func(l *Linter) {
		if width > 0 {
			l.width = width
		}
	}
}

// NewLinter creates a linter caching up to cacheSize reports. A cacheSize of
// zero disables caching.
func NewLinter(provider DiagnosticProvider, cacheSize int, opts ...LinterOption) (*Linter, error) {
	cache, err := newResultCache[Diagnostic](cacheSize)
	if err != nil {
		return nil, err
	}
	l := &Linter{provider: provider, width: DefaultLineWidth, cache: cache}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Lint returns the diagnostics for code. It never fails: a provider fault is
// reported as a single diagnostic on the first line.
func (l *Linter) Lint(ctx context.Context, code string) []Diagnostic {
	key := cacheKey(code)
	if diags, ok := l.cache.get(key); ok {
		return diags
	}

	report, err := l.provider.Check(ctx, code)
	if err != nil {
		log.Errorf(ctx, err, "lint provider")
		return []Diagnostic{{
			Message:  err.Error(),
			Severity: SeverityError,
			From:     Position{Line: 0, Ch: 0},
			To:       Position{Line: 0, Ch: 1},
		}}
	}

	diags := ParseReport(report, l.width)
	l.cache.put(key, diags)
	return diags
}

// ParseReport converts an analyzer report into diagnostics spanning columns
// 0 to width on each reported line. Lines without a numeric line field, such
// as the source echo under a syntax error, are skipped.
func ParseReport(report string, width int) []Diagnostic {
	diags := []Diagnostic{}
	for _, raw := range strings.Split(strings.TrimSpace(report), "\n") {
		d, ok := parseReportLine(raw, width)
		if ok {
			diags = append(diags, d)
		}
	}
	return diags
}

func parseReportLine(raw string, width int) (Diagnostic, bool) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 {
		return Diagnostic{}, false
	}
	line, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || line < 1 {
		return Diagnostic{}, false
	}

	rest := parts[2:]
	if len(rest) == 2 {
		if _, err := strconv.Atoi(strings.TrimSpace(rest[0])); err == nil {
			rest = rest[1:]
		}
	}
	msg := strings.TrimSpace(strings.Join(rest, ":"))

	return Diagnostic{
		Message:  msg,
		Severity: SeverityError,
		From:     Position{Line: line - 1, Ch: 0},
		To:       Position{Line: line - 1, Ch: width},
	}, true
}
