package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilder_Format(t *testing.T) {
	b := NewBuilder()
	b.Init("add_loop", &Signature{Params: []Type{TypeI64, TypeI64}, Result: TypeI64})
	entry := b.EntryBlock()
	loop := b.AllocateBasicBlock()
	exit := b.AllocateBasicBlock()
	acc := loop.AddParam(b, TypeI64)

	b.InsertInstruction(b.AllocateInstruction().AsJump([]Value{entry.Param(0)}, loop))

	b.SetCurrentBlock(loop)
	add := b.AllocateInstruction().AsBinary(OpcodeIadd, acc, entry.Param(1))
	b.InsertInstruction(add)
	cmp := b.AllocateInstruction().AsIcmp(add.Return(), entry.Param(1), IntegerCmpCondUnsignedLessThan)
	b.InsertInstruction(cmp)
	b.InsertInstruction(b.AllocateInstruction().AsBrz(cmp.Return(), exit, BranchHintUnlikely))
	b.InsertInstruction(b.AllocateInstruction().AsJump([]Value{add.Return()}, loop))

	b.SetCurrentBlock(exit)
	b.InsertInstruction(b.AllocateInstruction().AsReturn(acc))

	require.Equal(t, `add_loop
blk0: (v0:i64, v1:i64)
	Jump blk1, v0
blk1: (v2:i64) <-- (blk0, blk1)
	v3:i64 = Iadd v2, v1
	v4:i32 = Icmp lt_u, v3, v1
	Brz v4, blk2 (unlikely)
	Jump blk1, v3
blk2 <-- (blk1)
	Return v2
`, b.Format())

	require.Equal(t, 5, b.NumValues())
	require.Equal(t, []int{1, 2, 2, 2, 1}, b.ValueRefCounts())
	require.Equal(t, 2, loop.Succs())
	require.Equal(t, exit, loop.Succ(0))
	require.Equal(t, loop, loop.Succ(1))
	require.True(t, entry.EntryBlock())
	require.False(t, loop.EntryBlock())
}

func TestBuilder_InsertAfterTerminator(t *testing.T) {
	b := NewBuilder()
	b.Init("f", &Signature{})
	b.InsertInstruction(b.AllocateInstruction().AsReturn(ValueInvalid))
	require.Panics(t, func() {
		b.InsertInstruction(b.AllocateInstruction().AsReturn(ValueInvalid))
	})
}

func TestBuilder_Reset(t *testing.T) {
	b := NewBuilder()
	b.Init("f", &Signature{Params: []Type{TypeF64}})
	c := b.AllocateInstruction().AsF64const(1.5)
	b.InsertInstruction(c)
	require.Equal(t, "v1:f64 = F64const 1.5", c.Format())

	b.Init("g", &Signature{})
	require.Equal(t, "g", b.Name())
	require.Len(t, b.Blocks(), 1)
	require.Zero(t, b.NumValues())
	require.Nil(t, b.EntryBlock().Root())
}
