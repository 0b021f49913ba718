package ir

import (
	"fmt"
	"math"
	"strings"
)

// Opcode represents an IR instruction.
type Opcode uint32

// Instruction represents an instruction whose opcode is specified by
// Opcode. Since Go doesn't have union type, we use this flattened type
// for all instructions, and therefore each field has different meaning
// depending on Opcode.
type Instruction struct {
	opcode     Opcode
	u64        uint64
	v          Value
	v2         Value
	vs         []Value
	typ        Type
	cond       IntegerCmpCond
	hint       BranchHint
	sym        SymbolRef
	blk        BasicBlock
	prev, next *Instruction

	rValue Value
}

const (
	// OpcodeJump takes the list of args to the `block` and unconditionally jumps to it.
	OpcodeJump Opcode = 1 + iota

	// OpcodeBrz branches into `blk` if the value `c` equals zero: `Brz c, blk`.
	OpcodeBrz

	// OpcodeBrnz branches into `blk` if the value `c` is not zero: `Brnz c, blk`.
	OpcodeBrnz

	// OpcodeReturn returns from the function: `return v?`.
	OpcodeReturn

	// OpcodeCall calls a function specified by the symbol with arguments `args`: `v? = Call sym, args...`.
	OpcodeCall

	// OpcodeCallHelper calls a runtime helper: `v? = CallHelper sym, args...`.
	OpcodeCallHelper

	// OpcodeIconst materializes an integer constant: `v = iconst N`.
	OpcodeIconst

	// OpcodeF32const materializes a 32-bit float constant: `v = f32const N`.
	OpcodeF32const

	// OpcodeF64const materializes a 64-bit float constant: `v = f64const N`.
	OpcodeF64const

	// OpcodeAconst materializes an address literal: `v = aconst 0xN`.
	OpcodeAconst

	// OpcodeSymbolAddr materializes the address of a symbol: `v = symbol_addr sym`.
	OpcodeSymbolAddr

	// OpcodeIadd performs an integer addition: `v = Iadd x, y`.
	OpcodeIadd

	// OpcodeIsub performs an integer subtraction: `v = Isub x, y`.
	OpcodeIsub

	// OpcodeImul performs an integer multiplication: `v = Imul x, y`.
	OpcodeImul

	// OpcodeBand performs a binary and: `v = Band x, y`.
	OpcodeBand

	// OpcodeBor performs a binary or: `v = Bor x, y`.
	OpcodeBor

	// OpcodeBxor performs a binary xor: `v = Bxor x, y`.
	OpcodeBxor

	// OpcodeIshl does logical shift left: `v = Ishl x, y`.
	OpcodeIshl

	// OpcodeFadd performs a floating point addition: `v = Fadd x, y`.
	OpcodeFadd

	// OpcodeFsub performs a floating point subtraction: `v = Fsub x, y`.
	OpcodeFsub

	// OpcodeIcmp compares two integer values with the given condition: `v = icmp Cond, x, y`.
	OpcodeIcmp

	// OpcodeLoad loads a Type value from the [base + offset] address: `v = Load base, offset`.
	OpcodeLoad

	// OpcodeStore stores a value at the [base + offset] address: `Store v, base, offset`.
	OpcodeStore

	// OpcodeLoadStatic loads a static field whose address may not be resolved yet: `v = LoadStatic sym`.
	OpcodeLoadStatic

	// OpcodeMonitorEnter acquires the monitor of the object: `MonitorEnter obj`.
	OpcodeMonitorEnter

	// OpcodeMonitorExit releases the monitor of the object: `MonitorExit obj`.
	OpcodeMonitorExit

	// opcodeEnd marks the end of the opcode list.
	opcodeEnd
)

// Opcode returns the opcode of this instruction.
func (i *Instruction) Opcode() Opcode {
	return i.opcode
}

// Return returns the Value produced by this instruction, or ValueInvalid.
func (i *Instruction) Return() Value {
	return i.rValue
}

// Next returns the next instruction laid out next to itself.
func (i *Instruction) Next() *Instruction {
	return i.next
}

// Prev returns the previous instruction laid out prior to itself.
func (i *Instruction) Prev() *Instruction {
	return i.prev
}

// Arg returns the first argument to this instruction.
func (i *Instruction) Arg() Value {
	return i.v
}

// Arg2 returns the first two arguments to this instruction.
func (i *Instruction) Arg2() (Value, Value) {
	return i.v, i.v2
}

// Args returns the variadic arguments to this instruction (call arguments, jump arguments).
func (i *Instruction) Args() []Value {
	return i.vs
}

// ConstantVal returns the raw bits of a constant-producing instruction.
func (i *Instruction) ConstantVal() uint64 {
	return i.u64
}

// Offset returns the memory offset of Load and Store.
func (i *Instruction) Offset() int32 {
	return int32(i.u64)
}

// Cond returns the comparison condition of Icmp.
func (i *Instruction) Cond() IntegerCmpCond {
	return i.cond
}

// Hint returns the static hint of Brz and Brnz.
func (i *Instruction) Hint() BranchHint {
	return i.hint
}

// Symbol returns the symbol referenced by Call, CallHelper, SymbolAddr and LoadStatic.
func (i *Instruction) Symbol() SymbolRef {
	return i.sym
}

// Target returns the target block of a branch.
func (i *Instruction) Target() BasicBlock {
	return i.blk
}

// Type returns the type of the produced value, TypeInvalid if nothing is produced.
func (i *Instruction) Type() Type {
	return i.typ
}

// IsBranching returns true if this instruction is a branch.
func (i *Instruction) IsBranching() bool {
	switch i.opcode {
	case OpcodeJump, OpcodeBrz, OpcodeBrnz:
		return true
	}
	return false
}

// AsIconst64 initializes this instruction as a 64-bit integer constant instruction with OpcodeIconst.
func (i *Instruction) AsIconst64(v uint64) *Instruction {
	i.opcode = OpcodeIconst
	i.typ = TypeI64
	i.u64 = v
	return i
}

// AsIconst32 initializes this instruction as a 32-bit integer constant instruction with OpcodeIconst.
func (i *Instruction) AsIconst32(v uint32) *Instruction {
	i.opcode = OpcodeIconst
	i.typ = TypeI32
	i.u64 = uint64(v)
	return i
}

// AsF32const initializes this instruction as a 32-bit floating-point constant instruction with OpcodeF32const.
func (i *Instruction) AsF32const(f float32) *Instruction {
	i.opcode = OpcodeF32const
	i.typ = TypeF32
	i.u64 = uint64(math.Float32bits(f))
	return i
}

// AsF64const initializes this instruction as a 64-bit floating-point constant instruction with OpcodeF64const.
func (i *Instruction) AsF64const(f float64) *Instruction {
	i.opcode = OpcodeF64const
	i.typ = TypeF64
	i.u64 = math.Float64bits(f)
	return i
}

// AsAconst initializes this instruction as an address literal with OpcodeAconst.
func (i *Instruction) AsAconst(addr uint64) *Instruction {
	i.opcode = OpcodeAconst
	i.typ = TypeI64
	i.u64 = addr
	return i
}

// AsSymbolAddr initializes this instruction as the address of sym with OpcodeSymbolAddr.
func (i *Instruction) AsSymbolAddr(sym SymbolRef) *Instruction {
	i.opcode = OpcodeSymbolAddr
	i.typ = TypeI64
	i.sym = sym
	return i
}

// AsBinary initializes this instruction as a two-operand arithmetic instruction.
// The result has the type of x.
func (i *Instruction) AsBinary(op Opcode, x, y Value) *Instruction {
	switch op {
	case OpcodeIadd, OpcodeIsub, OpcodeImul, OpcodeBand, OpcodeBor, OpcodeBxor, OpcodeIshl, OpcodeFadd, OpcodeFsub:
	default:
		panic("BUG: not a binary opcode: " + op.String())
	}
	i.opcode = op
	i.v, i.v2 = x, y
	i.typ = x.Type()
	return i
}

// AsIcmp initializes this instruction as an integer comparison instruction with OpcodeIcmp.
func (i *Instruction) AsIcmp(x, y Value, c IntegerCmpCond) *Instruction {
	i.opcode = OpcodeIcmp
	i.v, i.v2 = x, y
	i.cond = c
	i.typ = TypeI32
	return i
}

// AsLoad initializes this instruction as a load instruction with OpcodeLoad.
func (i *Instruction) AsLoad(ptr Value, offset int32, typ Type) *Instruction {
	i.opcode = OpcodeLoad
	i.v = ptr
	i.u64 = uint64(uint32(offset))
	i.typ = typ
	return i
}

// AsStore initializes this instruction as a store instruction with OpcodeStore.
func (i *Instruction) AsStore(value, ptr Value, offset int32) *Instruction {
	i.opcode = OpcodeStore
	i.v, i.v2 = value, ptr
	i.u64 = uint64(uint32(offset))
	return i
}

// AsLoadStatic initializes this instruction as a load of the static field sym with OpcodeLoadStatic.
func (i *Instruction) AsLoadStatic(sym SymbolRef, typ Type) *Instruction {
	i.opcode = OpcodeLoadStatic
	i.sym = sym
	i.typ = typ
	return i
}

// AsMonitorEnter initializes this instruction with OpcodeMonitorEnter.
func (i *Instruction) AsMonitorEnter(obj Value) *Instruction {
	i.opcode = OpcodeMonitorEnter
	i.v = obj
	return i
}

// AsMonitorExit initializes this instruction with OpcodeMonitorExit.
func (i *Instruction) AsMonitorExit(obj Value) *Instruction {
	i.opcode = OpcodeMonitorExit
	i.v = obj
	return i
}

// AsCall initializes this instruction as a call to sym with OpcodeCall.
// ret is TypeInvalid when the callee returns nothing.
func (i *Instruction) AsCall(sym SymbolRef, args []Value, ret Type) *Instruction {
	i.opcode = OpcodeCall
	i.sym = sym
	i.vs = args
	i.typ = ret
	return i
}

// AsCallHelper initializes this instruction as a call to the runtime helper sym with OpcodeCallHelper.
func (i *Instruction) AsCallHelper(sym SymbolRef, args []Value, ret Type) *Instruction {
	i.opcode = OpcodeCallHelper
	i.sym = sym
	i.vs = args
	i.typ = ret
	return i
}

// AsReturn initializes this instruction as a return instruction with OpcodeReturn.
// v is ValueInvalid for functions returning nothing.
func (i *Instruction) AsReturn(v Value) *Instruction {
	i.opcode = OpcodeReturn
	i.v = v
	return i
}

// AsJump initializes this instruction as a jump instruction with OpcodeJump.
func (i *Instruction) AsJump(args []Value, target BasicBlock) *Instruction {
	i.opcode = OpcodeJump
	i.vs = args
	i.blk = target
	return i
}

// AsBrz initializes this instruction as a branch-if-zero instruction with OpcodeBrz.
func (i *Instruction) AsBrz(v Value, target BasicBlock, hint BranchHint) *Instruction {
	i.opcode = OpcodeBrz
	i.v = v
	i.blk = target
	i.hint = hint
	return i
}

// AsBrnz initializes this instruction as a branch-if-not-zero instruction with OpcodeBrnz.
func (i *Instruction) AsBrnz(v Value, target BasicBlock, hint BranchHint) *Instruction {
	i.opcode = OpcodeBrnz
	i.v = v
	i.blk = target
	i.hint = hint
	return i
}

// Format returns a string representation of this instruction.
func (i *Instruction) Format() string {
	var instSuffix string
	switch i.opcode {
	case OpcodeIconst:
		instSuffix = fmt.Sprintf(" %#x", i.u64)
	case OpcodeAconst:
		instSuffix = fmt.Sprintf(" %#x", i.u64)
	case OpcodeF32const:
		instSuffix = fmt.Sprintf(" %g", math.Float32frombits(uint32(i.u64)))
	case OpcodeF64const:
		instSuffix = fmt.Sprintf(" %g", math.Float64frombits(i.u64))
	case OpcodeSymbolAddr, OpcodeLoadStatic:
		instSuffix = " " + i.sym.String()
	case OpcodeIadd, OpcodeIsub, OpcodeImul, OpcodeBand, OpcodeBor, OpcodeBxor, OpcodeIshl, OpcodeFadd, OpcodeFsub:
		instSuffix = fmt.Sprintf(" %s, %s", i.v, i.v2)
	case OpcodeIcmp:
		instSuffix = fmt.Sprintf(" %s, %s, %s", i.cond, i.v, i.v2)
	case OpcodeLoad:
		instSuffix = fmt.Sprintf(" %s, %#x", i.v, i.Offset())
	case OpcodeStore:
		instSuffix = fmt.Sprintf(" %s, %s, %#x", i.v, i.v2, i.Offset())
	case OpcodeMonitorEnter, OpcodeMonitorExit:
		instSuffix = " " + i.v.String()
	case OpcodeCall, OpcodeCallHelper:
		instSuffix = " " + i.sym.String() + formatValues(i.vs, ", ")
	case OpcodeReturn:
		if i.v.Valid() {
			instSuffix = " " + i.v.String()
		}
	case OpcodeJump:
		instSuffix = " " + i.blk.Name() + formatValues(i.vs, ", ")
	case OpcodeBrz, OpcodeBrnz:
		instSuffix = fmt.Sprintf(" %s, %s", i.v, i.blk.Name())
		if h := i.hint.String(); h != "" {
			instSuffix += " (" + h + ")"
		}
	default:
		panic(fmt.Sprintf("invalid opcode %s", i.opcode))
	}

	instr := i.opcode.String() + instSuffix
	if i.rValue.Valid() {
		return i.rValue.formatWithType() + " = " + instr
	}
	return instr
}

func formatValues(vs []Value, prefix string) string {
	if len(vs) == 0 {
		return ""
	}
	strs := make([]string, len(vs))
	for i, v := range vs {
		strs[i] = v.String()
	}
	return prefix + strings.Join(strs, ", ")
}

// String implements fmt.Stringer.
func (o Opcode) String() (ret string) {
	switch o {
	case OpcodeJump:
		return "Jump"
	case OpcodeBrz:
		return "Brz"
	case OpcodeBrnz:
		return "Brnz"
	case OpcodeReturn:
		return "Return"
	case OpcodeCall:
		return "Call"
	case OpcodeCallHelper:
		return "CallHelper"
	case OpcodeIconst:
		return "Iconst"
	case OpcodeF32const:
		return "F32const"
	case OpcodeF64const:
		return "F64const"
	case OpcodeAconst:
		return "Aconst"
	case OpcodeSymbolAddr:
		return "SymbolAddr"
	case OpcodeIadd:
		return "Iadd"
	case OpcodeIsub:
		return "Isub"
	case OpcodeImul:
		return "Imul"
	case OpcodeBand:
		return "Band"
	case OpcodeBor:
		return "Bor"
	case OpcodeBxor:
		return "Bxor"
	case OpcodeIshl:
		return "Ishl"
	case OpcodeFadd:
		return "Fadd"
	case OpcodeFsub:
		return "Fsub"
	case OpcodeIcmp:
		return "Icmp"
	case OpcodeLoad:
		return "Load"
	case OpcodeStore:
		return "Store"
	case OpcodeLoadStatic:
		return "LoadStatic"
	case OpcodeMonitorEnter:
		return "MonitorEnter"
	case OpcodeMonitorExit:
		return "MonitorExit"
	}
	panic(fmt.Sprintf("unknown opcode %d", o))
}
