package runner

import (
	"context"
	"errors"
	"fmt"

	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/capture"
	"github.com/michaelbrown/pyrun/internal/config"
	"github.com/michaelbrown/pyrun/internal/sandbox"
	"github.com/michaelbrown/pyrun/internal/storage"
	"github.com/michaelbrown/pyrun/internal/storage/sqlite"
	"github.com/michaelbrown/pyrun/internal/telemetry"
)

// StartOptions selects which parts of the stack Start brings up.
type StartOptions struct {
	// Sandbox starts the interpreter pool. Without it Run reports the
	// sandbox as unavailable.
	Sandbox bool
	// History opens the run store when storage.history is on.
	History bool
}

// Stack is a started service and the resources it owns.
type Stack struct {
	Service *Service
	Pool    *sandbox.Pool
	Store   storage.Store
}

// Start builds a Service from cfg. ctx bounds the interpreter processes.
func Start(ctx context.Context, cfg *config.Config, opts StartOptions) (*Stack, error) {
	st := &Stack{}
	var exec Executor = offline{}

	if opts.Sandbox {
		launcher := cfg.Launcher()
		policy := cfg.Policy()
		pool, err := sandbox.NewPool(ctx, cfg.Sandbox.Workers, func(ctx context.Context) (sandbox.Interpreter, error) {
			w, err := sandbox.StartPython(ctx, launcher, policy)
			if err != nil {
				return nil, err
			}
			return w, nil
		})
		if err != nil {
			return nil, fmt.Errorf("starting interpreter pool: %w", err)
		}
		st.Pool = pool
		exec = sandbox.NewEngine(pool, policy.MaxTimeout)
	}

	provider := analysis.NewPythonProvider(cfg.Analysis.Python, cfg.Analysis.Timeout)
	linter, err := analysis.NewLinter(provider, cfg.Analysis.CacheSize, analysis.WithLineWidth(cfg.Analysis.LineWidth))
	if err != nil {
		st.Close()
		return nil, err
	}
	completer, err := analysis.NewCompleter(provider, cfg.Analysis.CacheSize)
	if err != nil {
		st.Close()
		return nil, err
	}

	metrics, err := telemetry.NewGlobal()
	if err != nil {
		st.Close()
		return nil, err
	}
	svcOpts := []Option{WithMetrics(metrics)}

	if opts.History && cfg.Storage.History {
		store, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("opening run history: %w", err)
		}
		st.Store = store
		svcOpts = append(svcOpts, WithStore(store))
		log.Debugf(ctx, "run history at %s", cfg.Storage.DBPath)
	}
	if st.Pool != nil {
		svcOpts = append(svcOpts, WithPoolStats(st.Pool))
	}

	st.Service = New(exec, linter, completer, svcOpts...)
	return st, nil
}

// Close stops the interpreter pool and closes the run store.
func (st *Stack) Close() error {
	var errs []error
	if st.Pool != nil {
		errs = append(errs, st.Pool.Close())
	}
	if st.Store != nil {
		errs = append(errs, st.Store.Close())
	}
	return errors.Join(errs...)
}

// offline is the executor used when no interpreter pool was started.
type offline struct{}

func (offline) Run(ctx context.Context, code string) sandbox.Execution {
	return sandbox.Execution{
		Result: capture.Failure(capture.NewSink(), "sandbox not started"),
		Status: sandbox.StatusUnavailable,
	}
}
