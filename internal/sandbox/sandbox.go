package sandbox

import (
	"context"
	"io"
	"maps"
	"sync"

	"github.com/michaelbrown/pyrun/internal/capture"
)

// TextTarget is where an interpreter's default text output goes.
type TextTarget interface {
	io.Writer
	Flush() error
}

// Display is the renderer's "display now" operation.
type Display interface {
	Show(fig capture.Figure) error
}

// Interpreter evaluates source text against a namespace. Its side effects
// reach the caller only through the targets currently installed on Host.
type Interpreter interface {
	Host() *Host
	Eval(ctx context.Context, ns Namespace, code string) error
	// Healthy is false once the interpreter can no longer accept runs.
	Healthy() bool
	Close() error
}

// Host is the process-wide hookable output state of one interpreter.
type Host struct {
	run sync.Mutex // held from Install to Restore

	mu      sync.RWMutex
	stdout  TextTarget
	display Display

	base fixedTargets
}

// NewHost creates a host with the given default targets.
func NewHost(stdout TextTarget, display Display) *Host {
	return &Host{
		stdout:  stdout,
		display: display,
		base:    fixedTargets{stdout: stdout, display: display},
	}
}

// Stdout returns the current text target.
func (h *Host) Stdout() TextTarget {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stdout
}

// Display returns the current display operation.
func (h *Host) Display() Display {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.display
}

func (h *Host) swap(stdout TextTarget, display Display) (TextTarget, Display) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prevOut, prevDisplay := h.stdout, h.display
	h.stdout, h.display = stdout, display
	return prevOut, prevDisplay
}

// Installation is the restoration token returned by Install.
type Installation struct {
	host        *Host
	prevStdout  TextTarget
	prevDisplay Display
	once        sync.Once
}

// Install takes the host's run lock and swaps in the given hooks. It blocks
// while another installation on the same host is active. Callers must defer
// Restore on the returned token.
func (h *Host) Install(stdout TextTarget, display Display) *Installation {
	h.run.Lock()
	prevOut, prevDisplay := h.swap(stdout, display)
	return &Installation{host: h, prevStdout: prevOut, prevDisplay: prevDisplay}
}

// Restore puts the previous targets back and releases the run lock. Only the
// first call has an effect.
func (in *Installation) Restore() {
	in.once.Do(func() {
		in.host.swap(in.prevStdout, in.prevDisplay)
		in.host.run.Unlock()
	})
}

// Renderer binding injected into every namespace.
const (
	RendererBinding = "plt"
	RendererModule  = "matplotlib.pyplot"
)

// Namespace is the set of global bindings a snippet starts with, as a map of
// name to the module the interpreter imports for it.
type Namespace struct {
	bindings map[string]string
}

// NewNamespace builds a fresh namespace holding only the renderer binding.
func NewNamespace() Namespace {
	return Namespace{bindings: map[string]string{RendererBinding: RendererModule}}
}

// Bindings returns a copy of the namespace bindings.
func (n Namespace) Bindings() map[string]string {
	return maps.Clone(n.bindings)
}

type fixedTargets struct {
	stdout  TextTarget
	display Display
}

func (f fixedTargets) Stdout() TextTarget { return f.stdout }
func (f fixedTargets) Display() Display   { return f.display }

// defaults returns the targets the host was created with, regardless of what
// is installed now.
func (h *Host) defaults() fixedTargets {
	return fixedTargets{stdout: h.base.stdout, display: h.base.display}
}
