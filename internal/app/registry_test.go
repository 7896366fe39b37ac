package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peercall/internal/core"
	"peercall/internal/domain"
)

// fakeConn captures frames and records closes; full simulates backpressure.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) lastFrame(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.frames)
	var m map[string]any
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], &m))
	return m
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func Test_Registry(t *testing.T) {
	t.Run("register and resolve", func(t *testing.T) {
		r := NewRegistry()
		c := &fakeConn{}
		id, err := r.Register("  Alice ", c)
		require.NoError(t, err)
		assert.Equal(t, domain.PeerID("alice"), id)

		got, ok := r.Resolve("ALICE")
		require.True(t, ok)
		assert.Same(t, c, got.(*fakeConn))
	})

	t.Run("empty identifier is rejected", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Register("   ", &fakeConn{})
		assert.ErrorIs(t, err, domain.ErrPeerIDEmpty)
		assert.Equal(t, 0, r.Count())
	})

	t.Run("last register wins and evicts", func(t *testing.T) {
		r := NewRegistry()
		c1 := &fakeConn{}
		c2 := &fakeConn{}
		_, err := r.Register("dave", c1)
		require.NoError(t, err)
		_, err = r.Register("Dave", c2)
		require.NoError(t, err)

		assert.True(t, c1.isClosed())
		assert.False(t, c2.isClosed())
		got, ok := r.Resolve("dave")
		require.True(t, ok)
		assert.Same(t, c2, got.(*fakeConn))
		assert.Equal(t, 1, r.Count())
	})

	t.Run("release from an evicted connection keeps the new owner", func(t *testing.T) {
		r := NewRegistry()
		c1 := &fakeConn{}
		c2 := &fakeConn{}
		id, _ := r.Register("dave", c1)
		_, _ = r.Register("dave", c2)

		// The evicted connection's teardown arrives late.
		r.Release(id, c1)

		got, ok := r.Resolve("dave")
		require.True(t, ok)
		assert.Same(t, c2, got.(*fakeConn))
	})

	t.Run("release by the current owner unbinds", func(t *testing.T) {
		r := NewRegistry()
		c := &fakeConn{}
		id, _ := r.Register("eve", c)

		r.Release(id, c)
		_, ok := r.Resolve("eve")
		assert.False(t, ok)

		// Double release is a no-op.
		r.Release(id, c)
		assert.Equal(t, 0, r.Count())
	})

	t.Run("concurrent registers settle on one owner", func(t *testing.T) {
		r := NewRegistry()
		const n = 32
		conns := make([]*fakeConn, n)
		var wg sync.WaitGroup
		for i := range conns {
			conns[i] = &fakeConn{}
			wg.Add(1)
			go func(c *fakeConn) {
				defer wg.Done()
				_, err := r.Register("carol", c)
				assert.NoError(t, err)
			}(conns[i])
		}
		wg.Wait()

		assert.Equal(t, 1, r.Count())
		winner, ok := r.Resolve("carol")
		require.True(t, ok)
		open := 0
		for _, c := range conns {
			if !c.isClosed() {
				open++
				assert.Same(t, c, winner.(*fakeConn))
			}
		}
		assert.Equal(t, 1, open)
	})
}
