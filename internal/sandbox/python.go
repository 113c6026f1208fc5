package sandbox

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/capture"
)

//go:embed harness.py
var harnessSource string

const harnessScript = "harness.py"

// Harness protocol messages.
type harnessRequest struct {
	Seq      uint64            `json:"seq"`
	Code     string            `json:"code"`
	Bindings map[string]string `json:"bindings"`
}

type harnessEvent struct {
	Event    string  `json:"event"`
	Seq      uint64  `json:"seq"`
	Data     string  `json:"data"`
	Error    *string `json:"error"`
	Renderer bool    `json:"renderer"`
	Dirty    bool    `json:"dirty"`
}

// PythonWorker is a long-lived Python process running the embedded harness.
// It evaluates one snippet at a time.
type PythonWorker struct {
	id     string
	logCtx context.Context
	host   *Host
	policy Policy

	dir     string
	cmd     *exec.Cmd
	stopper Stopper
	stdin   io.WriteCloser
	events  chan harnessEvent
	exited  chan struct{}
	quit    chan struct{}
	stop    sync.Once
	halt    sync.Once

	seq      uint64
	renderer bool
	broken   atomic.Bool

	mu      sync.Mutex
	readErr error
}

// StartPython launches a harness process with launcher and waits for it to
// report ready. ctx bounds the process lifetime and carries the logger.
func StartPython(ctx context.Context, launcher Launcher, policy Policy) (*PythonWorker, error) {
	dir, err := os.MkdirTemp("", "pyrun-worker-*")
	if err != nil {
		return nil, fmt.Errorf("creating worker dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, harnessScript), []byte(harnessSource), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing harness: %w", err)
	}

	cmd, err := launcher.Command(ctx, dir, harnessScript)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	w := &PythonWorker{
		id:     uuid.New().String()[:8],
		policy: policy,
		dir:    dir,
		cmd:    cmd,
		events: make(chan harnessEvent, 64),
		exited: make(chan struct{}),
		quit:   make(chan struct{}),
	}
	w.stopper, _ = launcher.(Stopper)
	w.logCtx = log.With(ctx, log.KV{K: "worker", V: w.id})
	w.host = NewHost(logTarget{ctx: w.logCtx}, dropDisplay{ctx: w.logCtx})

	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	w.stdin = stdin

	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("starting interpreter: %w", err)
	}

	// Wait must not run before both pipes are drained.
	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		w.readEvents(stdout)
	}()
	go func() {
		defer pipes.Done()
		w.logStderr(stderr)
	}()
	go func() {
		pipes.Wait()
		w.cmd.Wait()
		close(w.exited)
	}()

	if err := w.awaitReady(ctx); err != nil {
		w.Close()
		return nil, err
	}

	log.Print(w.logCtx, log.KV{K: "msg", V: "interpreter ready"}, log.KV{K: "renderer", V: w.renderer})
	return w, nil
}

func (w *PythonWorker) awaitReady(ctx context.Context) error {
	timeout := w.policy.StartTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-w.events:
		if !ok {
			return fmt.Errorf("%w: %s", ErrInterpreterExited, w.exitReason())
		}
		if ev.Event != "ready" {
			return fmt.Errorf("%w: expected ready, got %q", ErrInterpreterExited, ev.Event)
		}
		w.renderer = ev.Renderer
		return nil
	case <-timer.C:
		return fmt.Errorf("interpreter not ready after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *PythonWorker) readEvents(r io.Reader) {
	defer close(w.events)

	limit := w.policy.MaxOutput
	if limit <= 0 {
		limit = DefaultPolicy().MaxOutput
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), limit)
	for scanner.Scan() {
		var ev harnessEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			w.setReadErr(fmt.Errorf("decoding harness event: %w", err))
			return
		}
		select {
		case w.events <- ev:
		case <-w.quit:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		w.setReadErr(fmt.Errorf("reading harness events: %w", err))
	}
}

func (w *PythonWorker) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Print(w.logCtx, log.KV{K: "stderr", V: scanner.Text()})
	}
}

func (w *PythonWorker) setReadErr(err error) {
	w.mu.Lock()
	w.readErr = err
	w.mu.Unlock()
}

func (w *PythonWorker) exitReason() string {
	w.mu.Lock()
	err := w.readErr
	w.mu.Unlock()
	if err != nil {
		return err.Error()
	}
	select {
	case <-w.exited:
		if state := w.cmd.ProcessState; state != nil {
			return state.String()
		}
	default:
	}
	return "event stream closed"
}

// Host returns the worker's hookable output state.
func (w *PythonWorker) Host() *Host {
	return w.host
}

// Renderer reports whether the harness could import the renderer.
func (w *PythonWorker) Renderer() bool {
	return w.renderer
}

// Healthy reports whether the worker can accept another run.
func (w *PythonWorker) Healthy() bool {
	if w.broken.Load() {
		return false
	}
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

// Eval sends code to the harness and dispatches the resulting events to the
// host's current targets until the run completes. A snippet error is returned
// as *Fault. Cancelling ctx kills the process.
func (w *PythonWorker) Eval(ctx context.Context, ns Namespace, code string) error {
	if !w.Healthy() {
		return fmt.Errorf("%w: %s", ErrInterpreterExited, w.exitReason())
	}

	w.seq++
	seq := w.seq
	req, err := json.Marshal(harnessRequest{Seq: seq, Code: code, Bindings: ns.Bindings()})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	if _, err := w.stdin.Write(append(req, '\n')); err != nil {
		w.kill()
		return fmt.Errorf("%w: %v", ErrInterpreterExited, err)
	}

	var hookErr error
	for {
		select {
		case <-ctx.Done():
			w.kill()
			return ctx.Err()
		case ev, ok := <-w.events:
			if !ok {
				w.kill()
				return fmt.Errorf("%w: %s", ErrInterpreterExited, w.exitReason())
			}
			if ev.Seq != seq {
				w.dispatch(w.host.defaults(), ev)
				continue
			}
			if ev.Event == "done" {
				if ev.Dirty {
					// Threads still running would write into the next run.
					log.Print(w.logCtx, log.KV{K: "msg", V: "snippet left threads running, retiring worker"})
					w.broken.Store(true)
				}
				if ev.Error != nil {
					return &Fault{Message: *ev.Error}
				}
				return hookErr
			}
			if err := w.dispatch(w.host, ev); err != nil && hookErr == nil {
				hookErr = err
			}
		}
	}
}

type targets interface {
	Stdout() TextTarget
	Display() Display
}

func (w *PythonWorker) dispatch(t targets, ev harnessEvent) error {
	switch ev.Event {
	case "write":
		_, err := t.Stdout().Write([]byte(ev.Data))
		return err
	case "show":
		data, err := base64.StdEncoding.DecodeString(ev.Data)
		if err != nil {
			return fmt.Errorf("decoding figure: %w", err)
		}
		return t.Display().Show(snapshot(data))
	case "done", "ready":
		return nil
	default:
		log.Print(w.logCtx, log.KV{K: "msg", V: "unknown harness event"}, log.KV{K: "event", V: ev.Event})
		return nil
	}
}

func (w *PythonWorker) kill() {
	w.broken.Store(true)
	w.stop.Do(func() { close(w.quit) })
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	if w.stopper != nil {
		w.halt.Do(func() {
			if err := w.stopper.Stop(w.dir); err != nil {
				log.Errorf(w.logCtx, err, "stopping harness")
			}
		})
	}
}

// Close stops the harness and removes its working directory.
func (w *PythonWorker) Close() error {
	w.broken.Store(true)
	w.stop.Do(func() { close(w.quit) })
	w.stdin.Close()

	select {
	case <-w.exited:
	case <-time.After(2 * time.Second):
		w.kill()
		<-w.exited
	}
	return os.RemoveAll(w.dir)
}

// snapshot is a figure already serialized by the harness, which closes the
// matplotlib figure before forwarding the bytes.
type snapshot []byte

func (s snapshot) PNG() ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.New("empty figure")
	}
	return s, nil
}

func (s snapshot) Clear() {}

// logTarget is the default text target: output arriving outside a run is logged.
type logTarget struct {
	ctx context.Context
}

func (l logTarget) Write(p []byte) (int, error) {
	log.Print(l.ctx, log.KV{K: "msg", V: "stray output"}, log.KV{K: "data", V: string(p)})
	return len(p), nil
}

func (logTarget) Flush() error { return nil }

// dropDisplay is the default display: figures shown outside a run are dropped.
type dropDisplay struct {
	ctx context.Context
}

func (d dropDisplay) Show(fig capture.Figure) error {
	log.Print(d.ctx, log.KV{K: "msg", V: "stray figure dropped"})
	fig.Clear()
	return nil
}
