package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/michaelbrown/pyrun/internal/capture"
)

// program is a scripted snippet. It looks up the host's targets on every
// call, the way interpreter code resolves sys.stdout at write time.
type program func(ctx context.Context, h *Host) error

type fakeInterpreter struct {
	host     *Host
	programs map[string]program
	broken   atomic.Bool
	closed   atomic.Int32

	mu     sync.Mutex
	lastNS Namespace
}

func newFakeInterpreter(programs map[string]program) *fakeInterpreter {
	return &fakeInterpreter{
		host:     NewHost(&bufferTarget{}, &countingDisplay{}),
		programs: programs,
	}
}

func (f *fakeInterpreter) Host() *Host { return f.host }

func (f *fakeInterpreter) Eval(ctx context.Context, ns Namespace, code string) error {
	f.mu.Lock()
	f.lastNS = ns
	f.mu.Unlock()
	p, ok := f.programs[code]
	if !ok {
		return nil
	}
	err := p(ctx, f.host)
	if ctx.Err() != nil {
		// A real worker is killed when its run is abandoned.
		f.broken.Store(true)
	}
	return err
}

func (f *fakeInterpreter) Healthy() bool { return !f.broken.Load() }

func (f *fakeInterpreter) Close() error {
	f.closed.Add(1)
	return nil
}

func printLine(h *Host, s string) {
	h.Stdout().Write([]byte(s))
	h.Stdout().Write([]byte("\n"))
}

func showFigure(h *Host, png string) error {
	return h.Display().Show(&memFigure{data: []byte(png)})
}

func raise(msg string) error {
	return &Fault{Message: msg}
}

type memFigure struct {
	data []byte
}

func (m *memFigure) PNG() ([]byte, error) {
	if m.data == nil {
		return nil, errors.New("no figure")
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memFigure) Clear() { m.data = nil }

// bufferTarget is a default text target that records what reached it.
type bufferTarget struct {
	mu  sync.Mutex
	buf []byte
}

func (b *bufferTarget) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	b.mu.Unlock()
	return len(p), nil
}

func (b *bufferTarget) Flush() error { return nil }

func (b *bufferTarget) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

type countingDisplay struct {
	shown atomic.Int32
}

func (c *countingDisplay) Show(fig capture.Figure) error {
	c.shown.Add(1)
	fig.Clear()
	return nil
}

func fakeFactory(programs map[string]program, started *[]*fakeInterpreter) Factory {
	var mu sync.Mutex
	return func(ctx context.Context) (Interpreter, error) {
		f := newFakeInterpreter(programs)
		mu.Lock()
		*started = append(*started, f)
		mu.Unlock()
		return f, nil
	}
}
