package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolReplacesBrokenInterpreter(t *testing.T) {
	var started []*fakeInterpreter
	p, err := NewPool(context.Background(), 1, fakeFactory(nil, &started))
	require.NoError(t, err)
	defer p.Close()

	it, err := p.Acquire(context.Background())
	require.NoError(t, err)
	it.(*fakeInterpreter).broken.Store(true)
	p.Release(it)

	assert.EqualValues(t, 1, started[0].closed.Load())

	next, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, it, next)
	assert.Len(t, started, 2)
	p.Release(next)

	size, idle := p.Stats()
	assert.Equal(t, 1, size)
	assert.Equal(t, 1, idle)
}

func TestPoolReplacementFailureKeepsSlot(t *testing.T) {
	var calls atomic.Int32
	factory := func(ctx context.Context) (Interpreter, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("no python")
		}
		return newFakeInterpreter(nil), nil
	}
	p, err := NewPool(context.Background(), 1, factory)
	require.NoError(t, err)
	defer p.Close()

	it, err := p.Acquire(context.Background())
	require.NoError(t, err)
	it.(*fakeInterpreter).broken.Store(true)
	p.Release(it)

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no python")

	// The slot is still there for the next attempt.
	_, idle := p.Stats()
	assert.Equal(t, 1, idle)
}

func TestNewPoolClosesStartedOnFailure(t *testing.T) {
	var started []*fakeInterpreter
	var calls atomic.Int32
	ok := fakeFactory(nil, &started)
	factory := func(ctx context.Context) (Interpreter, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("boom")
		}
		return ok(ctx)
	}

	_, err := NewPool(context.Background(), 3, factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	require.Len(t, started, 2)
	for _, f := range started {
		assert.EqualValues(t, 1, f.closed.Load())
	}
}

func TestPoolClose(t *testing.T) {
	var started []*fakeInterpreter
	p, err := NewPool(context.Background(), 2, fakeFactory(nil, &started))
	require.NoError(t, err)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	// The interpreter in use is closed when it comes back.
	p.Release(held)
	for _, f := range started {
		assert.EqualValues(t, 1, f.closed.Load())
	}
}
