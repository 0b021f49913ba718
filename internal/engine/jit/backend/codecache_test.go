package backend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

func TestCodeCache(t *testing.T) {
	c := NewCodeCache(0x10000, 100)
	seg, err := c.Reserve(40)
	require.NoError(t, err)
	require.Equal(t, uint64(0x10000), seg.Base())

	addr, err := seg.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, uint64(0x10000), addr)
	addr, err = seg.Allocate(20)
	require.NoError(t, err)
	require.Equal(t, uint64(0x10010), addr)
	_, err = seg.Allocate(20)
	require.ErrorIs(t, err, ErrResourceExhaustion)

	seg2, err := c.Reserve(40)
	require.NoError(t, err)
	require.Equal(t, uint64(0x10030), seg2.Base())
	require.Equal(t, uint64(96), c.Used())

	_, err = c.Reserve(40)
	require.ErrorIs(t, err, ErrResourceExhaustion)
}

func TestCodeCache_release(t *testing.T) {
	c := NewCodeCache(0x10000, 0x100)
	reserve := func(size uint64) *CodeSegment {
		seg, err := c.Reserve(size)
		require.NoError(t, err)
		return seg
	}
	a, b, d := reserve(0x40), reserve(0x40), reserve(0x40)
	require.Equal(t, uint64(0x10080), d.Base())

	// Trimming keeps the allocated bytes, rounded up to 16.
	_, err := a.Allocate(0x14)
	require.NoError(t, err)
	a.Trim()
	require.Equal(t, uint64(0x20), a.Size())
	require.Equal(t, uint64(0xa0), c.Used())
	_, err = a.Allocate(0x10)
	require.ErrorIs(t, err, ErrResourceExhaustion)

	// The lowest extent large enough is reused first.
	e := reserve(0x10)
	require.Equal(t, uint64(0x10020), e.Base())

	// Released neighbours coalesce.
	b.Release()
	e.Release()
	f := reserve(0x60)
	require.Equal(t, uint64(0x10020), f.Base())

	// Releasing the highest segment lowers the top.
	d.Release()
	b.Release()
	require.Equal(t, uint64(0x80), c.Used())
	g := reserve(0x80)
	require.Equal(t, uint64(0x10080), g.Base())
	_, err = c.Reserve(0x10)
	require.ErrorIs(t, err, ErrResourceExhaustion)

	a.Release()
	f.Release()
	g.Release()
	require.Zero(t, c.Used())
	require.Equal(t, uint64(0x10000), reserve(0x100).Base())
}

func TestCodeCache_concurrent(t *testing.T) {
	c := NewCodeCache(0, 1<<20)
	var wg sync.WaitGroup
	bases := make([]uint64, 64)
	for i := range bases {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seg, err := c.Reserve(32)
			require.NoError(t, err)
			bases[i] = seg.Base()
		}(i)
	}
	wg.Wait()
	seen := map[uint64]bool{}
	for _, b := range bases {
		require.False(t, seen[b])
		seen[b] = true
	}
}

func TestTrampolineTable(t *testing.T) {
	tt := NewTrampolineTable(0x8000, 2, 8, func(slot []byte, target uint64) {
		slot[0] = byte(target)
	})
	f := ir.SymbolRef{Name: "f"}
	g := ir.SymbolRef{Name: "g"}

	a, err := tt.Lookup(f, 0x11)
	require.NoError(t, err)
	require.Equal(t, uint64(0x8000), a)
	again, err := tt.Lookup(f, 0x11)
	require.NoError(t, err)
	require.Equal(t, a, again)

	b, err := tt.Lookup(g, 0x22)
	require.NoError(t, err)
	require.Equal(t, uint64(0x8008), b)
	require.Equal(t, 2, tt.Len())
	code := tt.Code()
	require.Equal(t, byte(0x11), code[0])
	require.Equal(t, byte(0x22), code[8])

	_, err = tt.Lookup(ir.HelperMonitorEnter, 0x33)
	require.ErrorIs(t, err, ErrResourceExhaustion)
	_, err = tt.Lookup(f, 0x44)
	require.ErrorIs(t, err, ErrInternalConsistency)
}

func TestSymbolTable(t *testing.T) {
	f := ir.SymbolRef{Name: "f"}
	st := NewSymbolTable(map[ir.SymbolRef]uint64{f: 0x100})
	addr, deferred := st.Resolve(f)
	require.False(t, deferred)
	require.Equal(t, uint64(0x100), addr)

	_, deferred = st.Resolve(ir.HelperMonitorExit)
	require.True(t, deferred)
	st.Define(ir.HelperMonitorExit, 0x200)
	addr, deferred = st.Resolve(ir.HelperMonitorExit)
	require.False(t, deferred)
	require.Equal(t, uint64(0x200), addr)
}
