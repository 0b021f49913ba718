package backend

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type patchRecord struct {
	group []*testNode
	addr  uint64
}

type recordingPatcher struct {
	patched []patchRecord
	err     error
}

func (p *recordingPatcher) PatchGroup(group []*testNode, addr uint64) error {
	p.patched = append(p.patched, patchRecord{group: group, addr: addr})
	return p.err
}

func groupOf(n int) []*testNode {
	ret := make([]*testNode, n)
	for i := range ret {
		ret[i] = &testNode{id: i}
	}
	return ret
}

func newTestPool() *ConstantPool[*testNode] {
	return NewConstantPool[*testNode](func(ConstantType) int { return 4 })
}

func TestConstantPool(t *testing.T) {
	p := newTestPool()
	pi := math.Float64bits(math.Pi)

	// Two requests of the same double share an entry, the float of equal bits does not.
	g1, g2, g3 := groupOf(4), groupOf(4), groupOf(8)
	e1, err := p.Request(pi, ConstantDouble, g1)
	require.NoError(t, err)
	e2, err := p.Request(pi, ConstantDouble, g2)
	require.NoError(t, err)
	require.Same(t, e1, e2)
	e3, err := p.Request(uint64(math.Float32bits(1.5)), ConstantFloat, g3)
	require.NoError(t, err)
	require.NotSame(t, e1, e3)
	require.Len(t, p.Entries(), 2)
	require.Equal(t, [][]*testNode{g1, g2}, e1.Groups)

	end := p.Layout(100)
	require.Equal(t, int64(112), p.Start())
	require.Equal(t, int64(112), e1.Offset)
	require.Equal(t, int64(120), e3.Offset)
	require.Equal(t, int64(128), end)

	code := make([]byte, end)
	for i := range code {
		code[i] = 0xff
	}
	p.Emit(code)
	require.Equal(t, pi, binary.LittleEndian.Uint64(code[112:]))
	require.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(code[120:]))
	require.Equal(t, []byte{0, 0, 0, 0}, code[124:128])

	patcher := &recordingPatcher{}
	require.NoError(t, p.Patch(0x1000, patcher))
	require.Len(t, patcher.patched, 3)
	require.Equal(t, uint64(0x1000+112), patcher.patched[0].addr)
	require.Equal(t, uint64(0x1000+112), patcher.patched[1].addr)
	require.Equal(t, uint64(0x1000+120), patcher.patched[2].addr)

	patcher.err = errors.Wrap(ErrInternalConsistency, "immediate out of range")
	require.ErrorIs(t, p.Patch(0x1000, patcher), ErrInternalConsistency)

	p.Reset()
	require.Empty(t, p.Entries())
	require.Equal(t, int64(40), p.Layout(40))
}

func TestConstantPool_Request_badGroup(t *testing.T) {
	p := newTestPool()
	_, err := p.Request(1, ConstantAddress, groupOf(3))
	require.ErrorIs(t, err, ErrInternalConsistency)
	_, err = p.Request(1, ConstantAddress, nil)
	require.ErrorIs(t, err, ErrInternalConsistency)
	require.Empty(t, p.Entries())
}

// TestConstantPool_dedup checks that entries are distinct pairs, each group is patched once
// with the address of its own value, and slots do not overlap.
func TestConstantPool_dedup(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := newTestPool()
		type request struct {
			value uint64
			typ   ConstantType
			group []*testNode
		}
		var requests []request
		n := rapid.IntRange(1, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			r := request{
				value: rapid.Uint64Range(0, 4).Draw(t, "value"),
				typ:   ConstantType(rapid.IntRange(0, 2).Draw(t, "typ")),
				group: groupOf(4 * rapid.IntRange(1, 2).Draw(t, "groups")),
			}
			_, err := p.Request(r.value, r.typ, r.group)
			require.NoError(t, err)
			requests = append(requests, r)
		}

		distinct := map[constantKey]bool{}
		for _, r := range requests {
			distinct[constantKey{value: r.value, typ: r.typ}] = true
		}
		require.Len(t, p.Entries(), len(distinct))

		end := p.Layout(rapid.Int64Range(0, 64).Draw(t, "start"))
		offsets := map[int64]bool{}
		for _, e := range p.Entries() {
			require.Zero(t, e.Offset%ConstantSlotSize)
			require.False(t, offsets[e.Offset])
			offsets[e.Offset] = true
			require.LessOrEqual(t, e.Offset+ConstantSlotSize, end)
		}

		code := make([]byte, end)
		p.Emit(code)
		patcher := &recordingPatcher{}
		require.NoError(t, p.Patch(0, patcher))
		require.Len(t, patcher.patched, len(requests))
		for _, rec := range patcher.patched {
			var r request
			for _, req := range requests {
				if &req.group[0] == &rec.group[0] {
					r = req
				}
			}
			slot := code[rec.addr : rec.addr+ConstantSlotSize]
			if r.typ == ConstantFloat {
				require.Equal(t, uint32(r.value), binary.LittleEndian.Uint32(slot))
			} else {
				require.Equal(t, r.value, binary.LittleEndian.Uint64(slot))
			}
		}
	})
}
