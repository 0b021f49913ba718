package jitapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	var resets int
	p := NewPool[int](func(i *int) { resets++; *i = 0 })
	for i := 0; i < poolPageSize*3+5; i++ {
		v := p.Allocate()
		require.Zero(t, *v)
		*v = i
	}
	require.Equal(t, poolPageSize*3+5, p.Allocated())
	require.Equal(t, poolPageSize*3+5, resets)
	for i := 0; i < p.Allocated(); i++ {
		require.Equal(t, i, *p.View(i))
	}

	p.Reset()
	require.Zero(t, p.Allocated())
	// Pages are reused after Reset and resetFn clears the stale value.
	require.Zero(t, *p.Allocate())
	require.Equal(t, 1, len(p.pages))
}

func TestArena(t *testing.T) {
	t.Run("zeroed across reset", func(t *testing.T) {
		a := NewArena(0)
		b, err := a.Allocate(16)
		require.NoError(t, err)
		for i := range b {
			b[i] = 0xff
		}
		a.Reset()
		b, err = a.Allocate(16)
		require.NoError(t, err)
		require.Equal(t, make([]byte, 16), b)
	})
	t.Run("blocks do not overlap", func(t *testing.T) {
		a := NewArena(0)
		x, err := a.Allocate(8)
		require.NoError(t, err)
		y, err := a.Allocate(8)
		require.NoError(t, err)
		x[7] = 1
		require.Zero(t, y[0])
		require.Equal(t, 8, cap(x))
		require.Equal(t, int64(16), a.Used())
	})
	t.Run("spills into new block", func(t *testing.T) {
		a := NewArena(0)
		_, err := a.Allocate(arenaBlockSize - 4)
		require.NoError(t, err)
		b, err := a.Allocate(8)
		require.NoError(t, err)
		require.Len(t, b, 8)
		require.Equal(t, 2, len(a.blocks))
		big, err := a.Allocate(arenaBlockSize * 2)
		require.NoError(t, err)
		require.Len(t, big, arenaBlockSize*2)
	})
	t.Run("limit", func(t *testing.T) {
		a := NewArena(32)
		_, err := a.Allocate(24)
		require.NoError(t, err)
		_, err = a.Allocate(16)
		require.ErrorIs(t, err, ErrResourceExhaustion)
		a.Reset()
		_, err = a.Allocate(32)
		require.NoError(t, err)
	})
}
