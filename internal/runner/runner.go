// Package runner is the service layer shared by the HTTP server, the MCP tool
// server and the CLI. It runs snippets, lints and completes code, and records
// run history and metrics around each call.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/capture"
	"github.com/michaelbrown/pyrun/internal/sandbox"
	"github.com/michaelbrown/pyrun/internal/storage"
	"github.com/michaelbrown/pyrun/internal/telemetry"
)

// Executor runs a snippet to completion.
type Executor interface {
	Run(ctx context.Context, code string) sandbox.Execution
}

// Linter returns diagnostics for source text.
type Linter interface {
	Lint(ctx context.Context, code string) []analysis.Diagnostic
}

// Completer returns completions at a cursor.
type Completer interface {
	Complete(ctx context.Context, code string, cur analysis.Cursor) ([]analysis.Completion, error)
}

// PoolStats reports interpreter pool occupancy.
type PoolStats interface {
	Stats() (size, idle int)
}

// Status is a snapshot of service health.
type Status struct {
	Workers int  `json:"workers"`
	Idle    int  `json:"idle"`
	History bool `json:"history"`
}

// Service wires the executor and analyzers to history and metrics.
type Service struct {
	exec      Executor
	linter    Linter
	completer Completer

	store   storage.Store
	metrics *telemetry.Metrics
	pool    PoolStats
}

// Option configures a Service.
type Option func(*Service)

// WithStore records every run in store.
func WithStore(store storage.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithMetrics records metrics on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPoolStats reports pool occupancy in Status.
func WithPoolStats(p PoolStats) Option {
	return func(s *Service) { s.pool = p }
}

// New creates a service.
func New(exec Executor, linter Linter, completer Completer, opts ...Option) *Service {
	s := &Service{exec: exec, linter: linter, completer: completer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes code and returns its result and the ID it was recorded under.
// A history write failure is logged and does not affect the result.
func (s *Service) Run(ctx context.Context, source storage.Source, code string) (capture.Result, string) {
	id := uuid.New().String()
	ctx = log.With(ctx, log.KV{K: "run", V: id[:8]})

	exec := s.exec.Run(ctx, code)
	s.metrics.RecordRun(ctx, string(exec.Status), exec.Duration)

	text, images := exec.Result.Count()
	log.Print(ctx,
		log.KV{K: "msg", V: "run finished"},
		log.KV{K: "status", V: exec.Status},
		log.KV{K: "text", V: text},
		log.KV{K: "images", V: images},
		log.KV{K: "duration", V: exec.Duration.String()},
	)

	if s.store != nil {
		run := &storage.Run{
			ID:         id,
			Source:     source,
			Status:     storage.RunStatus(exec.Status),
			Error:      exec.Result.ErrorMessage(),
			Code:       code,
			TextItems:  text,
			ImageItems: images,
			DurationMS: exec.Duration.Milliseconds(),
			CreatedAt:  time.Now().UTC(),
		}
		// Recorded even when the request was cancelled.
		if err := s.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
			log.Errorf(ctx, err, "recording run")
		}
	}

	return exec.Result, id
}

// Lint returns diagnostics for code.
func (s *Service) Lint(ctx context.Context, code string) []analysis.Diagnostic {
	diags := s.linter.Lint(ctx, code)
	s.metrics.RecordLint(ctx, len(diags))
	return diags
}

// Complete returns completions at cur. The error wraps analysis.ErrProvider
// when the completion engine failed; the slice is then empty.
func (s *Service) Complete(ctx context.Context, code string, cur analysis.Cursor) ([]analysis.Completion, error) {
	items, err := s.completer.Complete(ctx, code, cur)
	outcome := telemetry.OutcomeOK
	if err != nil {
		outcome = telemetry.OutcomeError
	}
	s.metrics.RecordCompletion(ctx, outcome)
	return items, err
}

// ErrHistoryDisabled is returned by history operations without a store.
var ErrHistoryDisabled = errors.New("run history disabled")

// History returns the run store.
func (s *Service) History() (storage.Store, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store, nil
}

// Status reports pool occupancy and whether history is on.
func (s *Service) Status() Status {
	st := Status{History: s.store != nil}
	if s.pool != nil {
		st.Workers, st.Idle = s.pool.Stats()
	}
	return st
}
