// Package sandbox runs submitted Python snippets in interpreter worker
// processes and multiplexes their text and figure output into one ordered
// result.
//
// Each interpreter owns a Host: the process-wide text target and display
// operation that snippets write to. A run installs capture hooks on the host,
// evaluates the snippet and restores the previous targets on every exit path.
// Installation holds the host's run lock, so runs on one interpreter are
// serialized and a pool of interpreters provides concurrency without sharing
// hook state.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/capture"
)

// Status classifies how a run ended.
type Status string

const (
	StatusOK          Status = "ok"
	StatusFailed      Status = "failed"
	StatusTimeout     Status = "timeout"
	StatusUnavailable Status = "unavailable"
)

// Execution is a run's result plus bookkeeping for history and metrics.
type Execution struct {
	Result   capture.Result
	Status   Status
	Duration time.Duration
}

// Interpreters is the source of interpreters for the engine.
type Interpreters interface {
	Acquire(ctx context.Context) (Interpreter, error)
	Release(it Interpreter)
}

// Engine executes snippets against pooled interpreters.
type Engine struct {
	pool    Interpreters
	timeout time.Duration
}

// NewEngine creates an engine. A zero timeout disables the per-run limit.
func NewEngine(pool Interpreters, timeout time.Duration) *Engine {
	return &Engine{pool: pool, timeout: timeout}
}

// Execute runs code and returns its ordered outputs and fault, if any.
func (e *Engine) Execute(ctx context.Context, code string) capture.Result {
	return e.Run(ctx, code).Result
}

// Run is Execute with status and timing.
func (e *Engine) Run(ctx context.Context, code string) Execution {
	start := time.Now()
	sink := capture.NewSink()

	it, err := e.pool.Acquire(ctx)
	if err != nil {
		log.Errorf(ctx, err, "acquiring interpreter")
		return Execution{
			Result:   capture.Failure(sink, fmt.Sprintf("no interpreter available: %v", err)),
			Status:   StatusUnavailable,
			Duration: time.Since(start),
		}
	}
	defer e.pool.Release(it)

	err = e.eval(ctx, it, sink, code)
	exec := Execution{Duration: time.Since(start)}

	var fault *Fault
	switch {
	case err == nil:
		exec.Result = capture.Success(sink)
		exec.Status = StatusOK
	case errors.As(err, &fault):
		exec.Result = capture.Failure(sink, fault.Message)
		exec.Status = StatusFailed
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		exec.Result = capture.Failure(sink, fmt.Sprintf("execution timed out after %s", e.timeout))
		exec.Status = StatusTimeout
	default:
		exec.Result = capture.Failure(sink, err.Error())
		exec.Status = StatusFailed
	}
	return exec
}

// eval is the install → run → restore critical section.
func (e *Engine) eval(ctx context.Context, it Interpreter, sink *capture.Sink, code string) error {
	ns := NewNamespace()

	inst := it.Host().Install(capture.NewTextHook(sink), capture.NewVisualHook(sink))
	defer inst.Restore()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return it.Eval(ctx, ns, code)
}
