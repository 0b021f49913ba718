// Package testcases holds the IR functions shared by the backend and engine tests.
package testcases

import (
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// TestCase is a named IR function.
type TestCase struct {
	Name      string
	Signature *ir.Signature
	build     func(b ir.Builder)
}

// Build initializes b with the function of the test case and returns it.
func (c TestCase) Build(b ir.Builder) ir.Builder {
	b.Init(c.Name, c.Signature)
	c.build(b)
	return b
}

// New builds the function of the test case into a new ir.Builder.
func (c TestCase) New() ir.Builder {
	return c.Build(ir.NewBuilder())
}

// Symbols referenced by the test cases.
var (
	Callee  = ir.SymbolRef{Kind: ir.SymbolFunction, Name: "callee"}
	Counter = ir.SymbolRef{Kind: ir.SymbolStatic, Name: "counter"}
	Object  = ir.SymbolRef{Kind: ir.SymbolClass, Name: "java/lang/Object"}
)

// PoolAddress is the address literal PoolConstants materializes twice.
const PoolAddress = 0x1000

var (
	// Empty returns nothing.
	Empty = TestCase{
		Name:      "empty",
		Signature: &ir.Signature{},
		build: func(b ir.Builder) {
			b.InsertInstruction(b.AllocateInstruction().AsReturn(ir.ValueInvalid))
		},
	}

	// AddParams returns x+y.
	AddParams = TestCase{
		Name:      "add_params",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			entry := b.EntryBlock()
			add := insert(b, b.AllocateInstruction().AsBinary(ir.OpcodeIadd, entry.Param(0), entry.Param(1)))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(add.Return()))
		},
	}

	// SumLoop returns n + (n-1) + ... + 1.
	//
	//	blk0(n):      jump blk1(0, n)
	//	blk1(acc, i): brnz i == 0, blk2; jump blk3
	//	blk2:         return acc
	//	blk3:         jump blk1(acc+i, i-1)
	SumLoop = TestCase{
		Name:      "sum_loop",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeI64}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			entry := b.EntryBlock()
			loop, exit, body := b.AllocateBasicBlock(), b.AllocateBasicBlock(), b.AllocateBasicBlock()
			acc, i := loop.AddParam(b, ir.TypeI64), loop.AddParam(b, ir.TypeI64)

			zero := insert(b, b.AllocateInstruction().AsIconst64(0))
			b.InsertInstruction(b.AllocateInstruction().AsJump([]ir.Value{zero.Return(), entry.Param(0)}, loop))

			b.SetCurrentBlock(loop)
			cmpZero := insert(b, b.AllocateInstruction().AsIconst64(0))
			done := insert(b, b.AllocateInstruction().AsIcmp(i, cmpZero.Return(), ir.IntegerCmpCondEqual))
			b.InsertInstruction(b.AllocateInstruction().AsBrnz(done.Return(), exit, ir.BranchHintNone))
			b.InsertInstruction(b.AllocateInstruction().AsJump(nil, body))

			b.SetCurrentBlock(exit)
			b.InsertInstruction(b.AllocateInstruction().AsReturn(acc))

			b.SetCurrentBlock(body)
			sum := insert(b, b.AllocateInstruction().AsBinary(ir.OpcodeIadd, acc, i))
			minusOne := insert(b, b.AllocateInstruction().AsIconst64(^uint64(0)))
			next := insert(b, b.AllocateInstruction().AsBinary(ir.OpcodeIadd, i, minusOne.Return()))
			b.InsertInstruction(b.AllocateInstruction().AsJump([]ir.Value{sum.Return(), next.Return()}, loop))
		},
	}

	// Max returns the greatest of x and y as signed integers.
	Max = TestCase{
		Name:      "max",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			entry := b.EntryBlock()
			x, y := entry.Param(0), entry.Param(1)
			takeY, join := b.AllocateBasicBlock(), b.AllocateBasicBlock()
			r := join.AddParam(b, ir.TypeI64)

			less := insert(b, b.AllocateInstruction().AsIcmp(x, y, ir.IntegerCmpCondSignedLessThan))
			b.InsertInstruction(b.AllocateInstruction().AsBrnz(less.Return(), takeY, ir.BranchHintNone))
			b.InsertInstruction(b.AllocateInstruction().AsJump([]ir.Value{x}, join))

			b.SetCurrentBlock(takeY)
			b.InsertInstruction(b.AllocateInstruction().AsJump([]ir.Value{y}, join))

			b.SetCurrentBlock(join)
			b.InsertInstruction(b.AllocateInstruction().AsReturn(r))
		},
	}

	// PoolConstants adds PoolAddress to itself, materializing it twice.
	PoolConstants = TestCase{
		Name:      "pool_constants",
		Signature: &ir.Signature{Result: ir.TypeI64},
		build: func(b ir.Builder) {
			a := insert(b, b.AllocateInstruction().AsAconst(PoolAddress))
			c := insert(b, b.AllocateInstruction().AsAconst(PoolAddress))
			add := insert(b, b.AllocateInstruction().AsBinary(ir.OpcodeIadd, a.Return(), c.Return()))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(add.Return()))
		},
	}

	// FloatConstants returns 1.5 + 2.25.
	FloatConstants = TestCase{
		Name:      "float_constants",
		Signature: &ir.Signature{Result: ir.TypeF64},
		build: func(b ir.Builder) {
			x := insert(b, b.AllocateInstruction().AsF64const(1.5))
			y := insert(b, b.AllocateInstruction().AsF64const(2.25))
			sum := insert(b, b.AllocateInstruction().AsBinary(ir.OpcodeFadd, x.Return(), y.Return()))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(sum.Return()))
		},
	}

	// CallResult returns Callee(x).
	CallResult = TestCase{
		Name:      "call_result",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeI64}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			c := insert(b, b.AllocateInstruction().AsCall(Callee, []ir.Value{b.EntryBlock().Param(0)}, ir.TypeI64))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(c.Return()))
		},
	}

	// CallAcross calls Callee(x) and returns x, which lives across the call.
	CallAcross = TestCase{
		Name:      "call_across",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeI64}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			x := b.EntryBlock().Param(0)
			b.InsertInstruction(b.AllocateInstruction().AsCall(Callee, []ir.Value{x}, ir.TypeInvalid))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(x))
		},
	}

	// Monitor enters then exits the monitor of obj.
	Monitor = TestCase{
		Name:      "monitor",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeRef}},
		build: func(b ir.Builder) {
			obj := b.EntryBlock().Param(0)
			b.InsertInstruction(b.AllocateInstruction().AsMonitorEnter(obj))
			b.InsertInstruction(b.AllocateInstruction().AsMonitorExit(obj))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(ir.ValueInvalid))
		},
	}

	// MonitorAcross enters the monitor of obj then adds two values live across the helper call.
	MonitorAcross = TestCase{
		Name:      "monitor_across",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeRef, ir.TypeI64, ir.TypeI64}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			entry := b.EntryBlock()
			b.InsertInstruction(b.AllocateInstruction().AsMonitorEnter(entry.Param(0)))
			sum := insert(b, b.AllocateInstruction().AsBinary(ir.OpcodeIadd, entry.Param(1), entry.Param(2)))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(sum.Return()))
		},
	}

	// LoadStatic returns the static field Counter.
	LoadStatic = TestCase{
		Name:      "load_static",
		Signature: &ir.Signature{Result: ir.TypeI64},
		build: func(b ir.Builder) {
			v := insert(b, b.AllocateInstruction().AsLoadStatic(Counter, ir.TypeI64))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(v.Return()))
		},
	}

	// ClassAddress returns the address of the class Object.
	ClassAddress = TestCase{
		Name:      "class_address",
		Signature: &ir.Signature{Result: ir.TypeI64},
		build: func(b ir.Builder) {
			v := insert(b, b.AllocateInstruction().AsSymbolAddr(Object))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(v.Return()))
		},
	}

	// LoadStore stores v into obj then loads a field out of the reach of a displacement.
	LoadStore = TestCase{
		Name:      "load_store",
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeRef, ir.TypeI64}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			obj, v := b.EntryBlock().Param(0), b.EntryBlock().Param(1)
			b.InsertInstruction(b.AllocateInstruction().AsStore(v, obj, 16))
			x := insert(b, b.AllocateInstruction().AsLoad(obj, 0x10000, ir.TypeI64))
			b.InsertInstruction(b.AllocateInstruction().AsReturn(x.Return()))
		},
	}

	// TooManyArgs takes more integer arguments than there are argument registers.
	TooManyArgs = TestCase{
		Name: "too_many_args",
		Signature: &ir.Signature{Params: []ir.Type{
			ir.TypeI64, ir.TypeI64, ir.TypeI64, ir.TypeI64, ir.TypeI64,
			ir.TypeI64, ir.TypeI64, ir.TypeI64, ir.TypeI64,
		}, Result: ir.TypeI64},
		build: func(b ir.Builder) {
			b.InsertInstruction(b.AllocateInstruction().AsReturn(b.EntryBlock().Param(8)))
		},
	}
)

// All lists the test cases which compile.
var All = []TestCase{
	Empty, AddParams, SumLoop, Max, PoolConstants, FloatConstants,
	CallResult, CallAcross, Monitor, MonitorAcross, LoadStatic, ClassAddress, LoadStore,
}

func insert(b ir.Builder, i *ir.Instruction) *ir.Instruction {
	b.InsertInstruction(i)
	return i
}
