package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallRestore(t *testing.T) {
	out, display := &bufferTarget{}, &countingDisplay{}
	h := NewHost(out, display)

	hookOut, hookDisplay := &bufferTarget{}, &countingDisplay{}
	inst := h.Install(hookOut, hookDisplay)
	assert.True(t, h.Stdout() == TextTarget(hookOut))
	assert.True(t, h.Display() == Display(hookDisplay))

	inst.Restore()
	assert.True(t, h.Stdout() == TextTarget(out))
	assert.True(t, h.Display() == Display(display))

	// A second Restore must not unlock twice or swap again.
	inst.Restore()
	assert.True(t, h.Stdout() == TextTarget(out))
}

func TestInstallBlocksUntilRestore(t *testing.T) {
	h := NewHost(&bufferTarget{}, &countingDisplay{})
	first := h.Install(&bufferTarget{}, &countingDisplay{})

	second := &bufferTarget{}
	installed := make(chan *Installation)
	go func() {
		installed <- h.Install(second, &countingDisplay{})
	}()

	select {
	case <-installed:
		t.Fatal("second Install did not wait for the first Restore")
	case <-time.After(50 * time.Millisecond):
	}

	first.Restore()
	select {
	case inst := <-installed:
		assert.True(t, h.Stdout() == TextTarget(second))
		inst.Restore()
	case <-time.After(time.Second):
		t.Fatal("second Install never proceeded")
	}
}

func TestDefaultsIgnoreInstalledHooks(t *testing.T) {
	out := &bufferTarget{}
	h := NewHost(out, &countingDisplay{})
	inst := h.Install(&bufferTarget{}, &countingDisplay{})
	defer inst.Restore()

	d := h.defaults()
	assert.True(t, d.Stdout() == TextTarget(out))
}

func TestNamespaceBindingsAreCopies(t *testing.T) {
	ns := NewNamespace()
	b := ns.Bindings()
	require.Equal(t, map[string]string{RendererBinding: RendererModule}, b)

	b["np"] = "numpy"
	assert.NotContains(t, ns.Bindings(), "np")
	assert.Len(t, NewNamespace().Bindings(), 1)
}
