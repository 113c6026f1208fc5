package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"goa.design/clue/log"
	"golang.org/x/sync/errgroup"
)

// Factory starts a new interpreter.
type Factory func(ctx context.Context) (Interpreter, error)

// Pool hands out interpreters to one run at a time. Each slot holds either a
// live interpreter or nil, meaning a replacement is started on next Acquire.
type Pool struct {
	ctx     context.Context
	factory Factory
	size    int
	slots   chan Interpreter

	mu     sync.Mutex
	closed bool
}

// NewPool starts size interpreters concurrently. ctx bounds their lifetime.
func NewPool(ctx context.Context, size int, factory Factory) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		ctx:     ctx,
		factory: factory,
		size:    size,
		slots:   make(chan Interpreter, size),
	}

	started := make([]Interpreter, size)
	// Not errgroup.WithContext: its context ends with Wait, and it would
	// take the interpreter processes with it.
	var g errgroup.Group
	for i := range size {
		g.Go(func() error {
			it, err := factory(ctx)
			if err != nil {
				return fmt.Errorf("starting interpreter %d: %w", i, err)
			}
			started[i] = it
			return nil
		})
	}
	err := g.Wait()

	for _, it := range started {
		if it == nil {
			continue
		}
		if err != nil {
			it.Close()
			continue
		}
		p.slots <- it
	}
	if err != nil {
		return nil, err
	}

	log.Infof(ctx, "interpreter pool started with %d workers", size)
	return p, nil
}

// Acquire waits for a free interpreter. The caller must Release it.
func (p *Pool) Acquire(ctx context.Context) (Interpreter, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case it := <-p.slots:
		if p.isClosed() {
			p.slots <- it
			return nil, ErrPoolClosed
		}
		if it != nil && it.Healthy() {
			return it, nil
		}
		if it != nil {
			p.discard(it)
		}
		fresh, err := p.factory(p.ctx)
		if err != nil {
			p.slots <- nil
			return nil, fmt.Errorf("replacing interpreter: %w", err)
		}
		return fresh, nil
	}
}

// Release returns an interpreter to the pool. Broken interpreters are closed
// and their slot is refilled lazily.
func (p *Pool) Release(it Interpreter) {
	if p.isClosed() {
		p.discard(it)
		p.slots <- nil
		return
	}
	if !it.Healthy() {
		log.Infof(p.ctx, "discarding broken interpreter")
		p.discard(it)
		p.slots <- nil
		return
	}
	p.slots <- it
}

func (p *Pool) discard(it Interpreter) {
	if err := it.Close(); err != nil {
		log.Errorf(p.ctx, err, "closing interpreter")
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns the pool size and the number of slots not handed out.
func (p *Pool) Stats() (size, idle int) {
	return p.size, len(p.slots)
}

// Close stops every interpreter. Interpreters in use are closed by Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case it := <-p.slots:
			if it != nil {
				if err := it.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		default:
			return errors.Join(errs...)
		}
	}
}
