package ppc64

import (
	"math"

	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// Offset of the lock word in an object header. Zero when the monitor is free,
// the owning thread otherwise.
const lockWordOffset = 8

// LowerTrees implements backend.Machine.
func (m *machine) LowerTrees() error {
	fn := m.ctx.Function()
	if entry := fn.EntryBlock(); entry.Preds() > 0 {
		return errors.Wrapf(backend.ErrInternalConsistency, "entry block %s has %d predecessors", entry.Name(), entry.Preds())
	}

	blocks := fn.Blocks()
	for range blocks {
		m.blockLabels = append(m.blockLabels, m.allocateLabel())
	}

	var next [regalloc.NumRegType]int
	for _, v := range m.ctx.Liveness().CrossBlock() {
		typ := regalloc.RegTypeOf(v.Type())
		if regs := globalRegs[typ]; next[typ] < len(regs) {
			m.globals[v.ID()] = global{reg: regs[next[typ]]}
			next[typ]++
		} else {
			m.globals[v.ID()] = global{auto: m.allocateAuto(v.Type())}
		}
	}

	for _, blk := range blocks {
		for cur := blk.Root(); cur != nil; cur = cur.Next() {
			switch cur.Opcode() {
			case ir.OpcodeIadd, ir.OpcodeIcmp:
				_, y := cur.Arg2()
				if m.foldable(y, ir.OpcodeIconst) && immFits(cur, m.ctx.ValueDefinition(y).Instr) {
					m.folded[m.ctx.ValueDefinition(y).Instr] = true
				}
			case ir.OpcodeBrz, ir.OpcodeBrnz:
				// The compare must be right above the branch so that nothing clobbers cr0 in between.
				if v := cur.Arg(); m.foldable(v, ir.OpcodeIcmp) && cur.Prev() == m.ctx.ValueDefinition(v).Instr {
					m.folded[cur.Prev()] = true
				}
			}
		}
	}
	return nil
}

// matchInstr returns true if v is produced by an instruction of the opcode, and the instruction being lowered is its only user.
func (m *machine) matchInstr(v ir.Value, opcode ir.Opcode) bool {
	def := m.ctx.ValueDefinition(v)
	return def.IsFromInstr() && def.Instr.Opcode() == opcode && def.RefCount < 2
}

// foldable returns true if the definition of v can be lowered as part of its user.
func (m *machine) foldable(v ir.Value, opcode ir.Opcode) bool {
	_, isGlobal := m.globals[v.ID()]
	return !isGlobal && m.matchInstr(v, opcode)
}

// immFits returns true if the constant c fits the immediate field of the instruction user lowers to.
func immFits(user, c *ir.Instruction) bool {
	if user.Opcode() == ir.OpcodeIcmp && !user.Cond().Signed() {
		return unsignedConst(c) <= math.MaxUint16
	}
	return fitsSigned16(signedConst(c))
}

func signedConst(c *ir.Instruction) int64 {
	if c.Type() == ir.TypeI32 {
		return int64(int32(c.ConstantVal()))
	}
	return int64(c.ConstantVal())
}

func unsignedConst(c *ir.Instruction) uint64 {
	if c.Type() == ir.TypeI32 {
		return uint64(uint32(c.ConstantVal()))
	}
	return c.ConstantVal()
}

// foldedImm returns the immediate of v if its constant definition was folded into the instruction being lowered.
func (m *machine) foldedImm(v ir.Value, signed bool) (int64, bool) {
	def := m.ctx.ValueDefinition(v)
	if !def.IsFromInstr() || !m.folded[def.Instr] {
		return 0, false
	}
	if signed {
		return signedConst(def.Instr), true
	}
	return int64(unsignedConst(def.Instr)), true
}

// SelectInstructions implements backend.Machine.
func (m *machine) SelectInstructions() error {
	for _, blk := range m.ctx.Function().Blocks() {
		if err := m.lowerBlock(blk); err != nil {
			return err
		}
	}
	return m.snippets.CheckBalanced()
}

func (m *machine) lowerBlock(blk ir.BasicBlock) error {
	if blk.EntryBlock() {
		if err := m.lowerEntry(blk); err != nil {
			return err
		}
	} else {
		m.lowerBlockLabel(blk)
	}

	for cur := blk.Root(); cur != nil; cur = cur.Next() {
		if m.folded[cur] {
			continue
		}
		if err := m.lowerInstr(cur); err != nil {
			return errors.WithMessagef(err, "lowering %s in %s", cur.Format(), blk.Name())
		}
	}

	if tail := blk.Tail(); tail == nil || (tail.Opcode() != ir.OpcodeJump && tail.Opcode() != ir.OpcodeReturn) {
		return errors.Wrapf(backend.ErrInternalConsistency, "%s does not end with a jump or a return", blk.Name())
	}
	return nil
}

// lowerEntry defines the function parameters in their argument registers.
func (m *machine) lowerEntry(blk ir.BasicBlock) error {
	n := blk.Params()
	deps := regalloc.NewDependencyConditions(0, n)
	var args argRegs
	for i := 0; i < n; i++ {
		p := blk.Param(i)
		r, err := args.next(p.Type())
		if err != nil {
			return err
		}
		deps.AddPost(m.ctx.VRegOf(p), r)
	}
	m.emit(m.allocateInstr().asEntry(deps))
	for i := 0; i < n; i++ {
		m.define(blk.Param(i))
	}
	return nil
}

// lowerBlockLabel starts a block. Values flowing in through global registers are pinned there.
func (m *machine) lowerBlockLabel(blk ir.BasicBlock) {
	live := m.ctx.Liveness().LiveIn(blk)
	deps := regalloc.NewDependencyConditions(len(live)+blk.Params(), 0)
	pin := func(v ir.Value) {
		if g := m.globals[v.ID()]; g.reg != regalloc.RealRegInvalid {
			deps.AddPre(m.ctx.VRegOf(v), g.reg)
		}
	}
	for _, v := range live {
		pin(v)
	}
	for i := 0; i < blk.Params(); i++ {
		pin(blk.Param(i))
	}
	l := m.allocateInstr().asNop0(m.blockLabels[blk.ID()])
	l.blockLabel = true
	l.deps = deps
	m.emit(l)
}

// edgeDeps pins the values live into target to their global registers.
func (m *machine) edgeDeps(target ir.BasicBlock, extra int) (*regalloc.DependencyConditions, map[regalloc.VRegID]bool) {
	live := m.ctx.Liveness().LiveIn(target)
	deps := regalloc.NewDependencyConditions(len(live)+extra, 0)
	named := map[regalloc.VRegID]bool{}
	for _, v := range live {
		if g := m.globals[v.ID()]; g.reg != regalloc.RealRegInvalid {
			vr := m.ctx.VRegOf(v)
			deps.AddPre(vr, g.reg)
			named[vr.ID()] = true
		}
	}
	return deps, named
}

// operand returns the virtual register holding v. A value living in an automatic slot
// is reloaded into a new virtual register at every use.
func (m *machine) operand(v ir.Value) regalloc.VReg {
	if g, ok := m.globals[v.ID()]; ok && g.reg == regalloc.RealRegInvalid {
		tmp := m.ctx.AllocateVReg(v.Type())
		m.emit(m.allocateInstr().asLoad(loadKind(v.Type()), tmp, spVReg, int64(g.auto)).withFrame(frameAuto))
		return tmp
	}
	return m.ctx.VRegOf(v)
}

// define stores v to its automatic slot, if it has one.
func (m *machine) define(v ir.Value) {
	if g, ok := m.globals[v.ID()]; ok && g.reg == regalloc.RealRegInvalid {
		m.emit(m.allocateInstr().asStore(storeKind(v.Type()), m.ctx.VRegOf(v), spVReg, int64(g.auto)).withFrame(frameAuto))
	}
}

func (i *instruction) withFrame(f frameRef) *instruction {
	i.frame = f
	return i
}

func loadKind(typ ir.Type) instructionKind {
	switch typ {
	case ir.TypeI32:
		return lwz
	case ir.TypeF32:
		return lfs
	case ir.TypeF64:
		return lfd
	default:
		return ld
	}
}

func storeKind(typ ir.Type) instructionKind {
	switch typ {
	case ir.TypeI32:
		return stw
	case ir.TypeF32:
		return stfs
	case ir.TypeF64:
		return stfd
	default:
		return std
	}
}

// argRegs hands out the argument registers in order.
type argRegs struct {
	ints, floats int
}

func (a *argRegs) next(typ ir.Type) (regalloc.RealReg, error) {
	if typ.IsFloat() {
		if a.floats == len(floatArgRegs) {
			return 0, errors.Wrapf(backend.ErrResourceExhaustion, "more than %d float arguments", len(floatArgRegs))
		}
		a.floats++
		return floatArgRegs[a.floats-1], nil
	}
	if a.ints == len(intArgRegs) {
		return 0, errors.Wrapf(backend.ErrResourceExhaustion, "more than %d integer arguments", len(intArgRegs))
	}
	a.ints++
	return intArgRegs[a.ints-1], nil
}

func returnReg(typ ir.Type) regalloc.RealReg {
	if typ.IsFloat() {
		return f1
	}
	return r3
}

func (m *machine) lowerInstr(instr *ir.Instruction) error {
	var rd regalloc.VReg
	if r := instr.Return(); r.Valid() {
		rd = m.ctx.VRegOf(r)
	}

	switch op := instr.Opcode(); op {
	case ir.OpcodeIconst:
		m.lowerIconst(rd, signedConst(instr))
	case ir.OpcodeAconst:
		if err := m.lowerPoolLoad(rd, instr.ConstantVal(), backend.ConstantAddress, ld); err != nil {
			return err
		}
	case ir.OpcodeF32const:
		if err := m.lowerPoolLoad(rd, instr.ConstantVal(), backend.ConstantFloat, lfs); err != nil {
			return err
		}
	case ir.OpcodeF64const:
		if err := m.lowerPoolLoad(rd, instr.ConstantVal(), backend.ConstantDouble, lfd); err != nil {
			return err
		}
	case ir.OpcodeSymbolAddr:
		m.symGroups = append(m.symGroups, symbolGroup{sym: instr.Symbol(), group: m.lowerAddressGroup(rd)})
	case ir.OpcodeIadd:
		x, y := instr.Arg2()
		if imm, ok := m.foldedImm(y, true); ok {
			m.emit(m.allocateInstr().asALUImm(addi, rd, m.operand(x), imm))
		} else {
			m.emit(m.allocateInstr().asALU(add, rd, m.operand(x), m.operand(y)))
		}
	case ir.OpcodeIsub:
		x, y := instr.Arg2()
		xr, yr := m.operand(x), m.operand(y)
		m.emit(m.allocateInstr().asALU(subf, rd, yr, xr))
	case ir.OpcodeImul, ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor, ir.OpcodeIshl:
		x, y := instr.Arg2()
		m.emit(m.allocateInstr().asALU(aluKinds[op], rd, m.operand(x), m.operand(y)))
	case ir.OpcodeFadd, ir.OpcodeFsub:
		x, y := instr.Arg2()
		kind := fadd
		switch {
		case op == ir.OpcodeFadd && instr.Type() == ir.TypeF32:
			kind = fadds
		case op == ir.OpcodeFsub && instr.Type() == ir.TypeF32:
			kind = fsubs
		case op == ir.OpcodeFsub:
			kind = fsub
		}
		m.emit(m.allocateInstr().asALU(kind, rd, m.operand(x), m.operand(y)))
	case ir.OpcodeIcmp:
		c := m.lowerCompare(instr)
		m.emit(m.allocateInstr().asSetcc(rd, c))
	case ir.OpcodeBrz, ir.OpcodeBrnz:
		m.lowerCondBranch(instr)
	case ir.OpcodeJump:
		m.lowerJump(instr)
	case ir.OpcodeReturn:
		var deps *regalloc.DependencyConditions
		if v := instr.Arg(); v.Valid() {
			deps = regalloc.NewDependencyConditions(1, 0)
			deps.AddPre(m.operand(v), returnReg(v.Type()))
		}
		m.emit(m.allocateInstr().asRet(deps))
	case ir.OpcodeCall, ir.OpcodeCallHelper:
		if err := m.lowerCall(instr); err != nil {
			return err
		}
	case ir.OpcodeLoad:
		base, off := m.address(m.operand(instr.Arg()), int64(instr.Offset()), instr.Type())
		m.emit(m.allocateInstr().asLoad(loadKind(instr.Type()), rd, base, off))
	case ir.OpcodeStore:
		v, ptr := instr.Arg2()
		val := m.operand(v)
		base, off := m.address(m.operand(ptr), int64(instr.Offset()), v.Type())
		m.emit(m.allocateInstr().asStore(storeKind(v.Type()), val, base, off))
	case ir.OpcodeLoadStatic:
		m.lowerLoadStatic(rd, instr)
	case ir.OpcodeMonitorEnter:
		m.lowerMonitorEnter(m.operand(instr.Arg()))
	case ir.OpcodeMonitorExit:
		m.lowerMonitorExit(m.operand(instr.Arg()))
	default:
		return errors.Wrapf(backend.ErrInternalConsistency, "unsupported opcode %s", op)
	}

	if r := instr.Return(); r.Valid() {
		m.define(r)
	}
	return nil
}

var aluKinds = map[ir.Opcode]instructionKind{
	ir.OpcodeImul: mulld,
	ir.OpcodeBand: and,
	ir.OpcodeBor:  or,
	ir.OpcodeBxor: xor,
	ir.OpcodeIshl: sld,
}

// lowerIconst materializes v in rd with the shortest sequence.
func (m *machine) lowerIconst(rd regalloc.VReg, v int64) {
	switch {
	case fitsSigned16(v):
		m.emit(m.allocateInstr().asALUImm(addi, rd, regalloc.VRegInvalid, v))
	case v == int64(int32(v)):
		m.emit(m.allocateInstr().asALUImm(addis, rd, regalloc.VRegInvalid, v>>16))
		if lo := v & 0xffff; lo != 0 {
			m.emit(m.allocateInstr().asALUImm(ori, rd, rd, lo))
		}
	default:
		u := uint64(v)
		m.emit(m.allocateInstr().asALUImm(addis, rd, regalloc.VRegInvalid, int64(int16(u>>48))))
		m.emit(m.allocateInstr().asALUImm(ori, rd, rd, int64(u>>32&0xffff)))
		m.emit(m.allocateInstr().asALUImm(sldi, rd, rd, 32))
		m.emit(m.allocateInstr().asALUImm(oris, rd, rd, int64(u>>16&0xffff)))
		m.emit(m.allocateInstr().asALUImm(ori, rd, rd, int64(u&0xffff)))
	}
}

// addressGroupSize is the number of immediate-carrying instructions materializing a 64-bit address.
const addressGroupSize = 4

// lowerAddressGroup emits the 5-instruction sequence materializing a 64-bit address in rd,
// with zero immediates, and returns its immediate-carrying members. The address is burned
// or relocated once it is known.
func (m *machine) lowerAddressGroup(rd regalloc.VReg) []*instruction {
	lis := m.allocateInstr().asALUImm(addis, rd, regalloc.VRegInvalid, 0)
	hi := m.allocateInstr().asALUImm(ori, rd, rd, 0)
	shift := m.allocateInstr().asALUImm(sldi, rd, rd, 32)
	mid := m.allocateInstr().asALUImm(oris, rd, rd, 0)
	lo := m.allocateInstr().asALUImm(ori, rd, rd, 0)
	for _, i := range []*instruction{lis, hi, shift, mid, lo} {
		m.emit(i)
	}
	return []*instruction{lis, hi, mid, lo}
}

// lowerPoolLoad loads the pool entry of value into rd.
func (m *machine) lowerPoolLoad(rd regalloc.VReg, value uint64, typ backend.ConstantType, kind instructionKind) error {
	tmp := m.ctx.AllocateVReg(ir.TypeI64)
	if _, err := m.pool.Request(value, typ, m.lowerAddressGroup(tmp)); err != nil {
		return err
	}
	m.emit(m.allocateInstr().asLoad(kind, rd, tmp, 0))
	return nil
}

// address returns the base register and displacement addressing off(base) for an access of typ.
func (m *machine) address(base regalloc.VReg, off int64, typ ir.Type) (regalloc.VReg, int64) {
	k := loadKind(typ)
	if fitsSigned16(off) && (k != ld || off&3 == 0) {
		return base, off
	}
	tmp := m.ctx.AllocateVReg(ir.TypeI64)
	m.lowerIconst(tmp, off)
	sum := m.ctx.AllocateVReg(ir.TypeI64)
	m.emit(m.allocateInstr().asALU(add, sum, base, tmp))
	return sum, 0
}

// lowerCompare sets cr0 from the Icmp and returns the condition testing its result.
func (m *machine) lowerCompare(icmp *ir.Instruction) cond {
	x, y := icmp.Arg2()
	c := icmp.Cond()
	word := x.Type() == ir.TypeI32
	kind, immKind := cmpl, cmpli
	if c.Signed() {
		kind, immKind = cmp, cmpi
	}
	xr := m.operand(x)
	if imm, ok := m.foldedImm(y, c.Signed()); ok {
		m.emit(m.allocateInstr().asCmpImm(immKind, xr, imm, word))
	} else {
		m.emit(m.allocateInstr().asCmp(kind, xr, m.operand(y), word))
	}
	return condOf(c)
}

func (m *machine) lowerCondBranch(instr *ir.Instruction) {
	v := instr.Arg()
	var c cond
	if def := m.ctx.ValueDefinition(v); def.IsFromInstr() && m.folded[def.Instr] {
		c = m.lowerCompare(def.Instr)
	} else {
		m.emit(m.allocateInstr().asCmpImm(cmpi, m.operand(v), 0, v.Type() == ir.TypeI32))
		c = ne
	}
	if instr.Opcode() == ir.OpcodeBrz {
		c = c.invert()
	}
	target := instr.Target()
	deps, _ := m.edgeDeps(target, 0)
	b := m.allocateInstr().asCondBr(c, m.blockLabels[target.ID()], instr.Hint())
	b.deps = deps
	m.emit(b)
}

func (m *machine) lowerJump(instr *ir.Instruction) {
	target := instr.Target()
	args := instr.Args()
	// Every argument is read before any parameter slot is written, as a slot may hold another argument.
	srcs := make([]regalloc.VReg, len(args))
	for i, a := range args {
		srcs[i] = m.operand(a)
	}

	deps, named := m.edgeDeps(target, len(args))
	for i, src := range srcs {
		p := target.Param(i)
		g := m.globals[p.ID()]
		if g.reg == regalloc.RealRegInvalid {
			m.emit(m.allocateInstr().asStore(storeKind(p.Type()), src, spVReg, int64(g.auto)).withFrame(frameAuto))
			continue
		}
		if named[src.ID()] {
			cp := m.ctx.AllocateVReg(p.Type())
			m.emit(m.allocateInstr().asMove(cp, src))
			src = cp
		}
		named[src.ID()] = true
		deps.AddPre(src, g.reg)
	}
	b := m.allocateInstr().asBr(m.blockLabels[target.ID()])
	b.deps = deps
	m.emit(b)
}

func (m *machine) lowerCall(instr *ir.Instruction) error {
	args := instr.Args()
	ret := instr.Return()
	deps := regalloc.NewDependencyConditions(len(args), 2)

	var regs argRegs
	named := map[regalloc.VRegID]bool{}
	for _, a := range args {
		r, err := regs.next(a.Type())
		if err != nil {
			return err
		}
		src := m.operand(a)
		if named[src.ID()] {
			cp := m.ctx.AllocateVReg(a.Type())
			m.emit(m.allocateInstr().asMove(cp, src))
			src = cp
		}
		named[src.ID()] = true
		deps.AddPre(src, r)
	}

	kill := regInfo.CallerSavedRegisters
	if ret.Valid() {
		r := returnReg(ret.Type())
		deps.AddPostAlias(m.ctx.VRegOf(ret), r)
		kill = kill.Remove(r)
	}
	deps.AddKill(kill)
	if err := deps.Validate(regInfo); err != nil {
		return errors.Wrap(backend.ErrInternalConsistency, err.Error())
	}

	c := m.allocateInstr().asCall(instr.Symbol(), deps)
	c.gc = true
	m.emit(c)
	m.hasCalls = true
	return nil
}

// lowerMonitorEnter takes the monitor inline when it is free, and calls the helper otherwise.
//
//	ld    r0, 8(obj)
//	cmpdi r0, 0
//	bne   slow
//	std   r13, 8(obj)
//	restart:
func (m *machine) lowerMonitorEnter(obj regalloc.VReg) {
	m.emit(m.allocateInstr().asLoad(ld, r0VReg, obj, lockWordOffset))
	m.emit(m.allocateInstr().asCmpImm(cmpi, r0VReg, 0, false))
	sn, branch := m.branchToSnippet(backend.SnippetMonitorEnter, ne, obj)
	m.emit(m.allocateInstr().asStore(std, threadVReg, obj, lockWordOffset))
	m.placeRestart(sn, obj)
	m.emitHelperSnippet(sn, branch, ir.HelperMonitorEnter)
}

// lowerMonitorExit releases the monitor inline when the current thread owns it, and calls the helper otherwise.
//
//	ld   r0, 8(obj)
//	cmpd r0, r13
//	bne  slow
//	li   r0, 0
//	std  r0, 8(obj)
//	restart:
func (m *machine) lowerMonitorExit(obj regalloc.VReg) {
	m.emit(m.allocateInstr().asLoad(ld, r0VReg, obj, lockWordOffset))
	m.emit(m.allocateInstr().asCmp(cmp, r0VReg, threadVReg, false))
	sn, branch := m.branchToSnippet(backend.SnippetMonitorExit, ne, obj)
	m.emit(m.allocateInstr().asALUImm(addi, r0VReg, regalloc.VRegInvalid, 0))
	m.emit(m.allocateInstr().asStore(std, r0VReg, obj, lockWordOffset))
	m.placeRestart(sn, obj)
	m.emitHelperSnippet(sn, branch, ir.HelperMonitorExit)
}

// lowerLoadStatic loads the static field through its address, which the resolve helper
// provides while the address group still holds zero.
//
//	lis ... ori addr    ; address of sym
//	cmpdi addr, 0
//	beq   resolve
//	restart:
//	ld    rd, 0(addr)
func (m *machine) lowerLoadStatic(rd regalloc.VReg, instr *ir.Instruction) {
	addr := m.ctx.AllocateVReg(ir.TypeI64)
	m.symGroups = append(m.symGroups, symbolGroup{sym: instr.Symbol(), group: m.lowerAddressGroup(addr), static: true})
	m.emit(m.allocateInstr().asCmpImm(cmpi, addr, 0, false))
	sn, branch := m.branchToSnippet(backend.SnippetUnresolvedData, eq, addr)
	m.placeRestart(sn, addr)
	m.emitResolveDataSnippet(sn, branch)
	m.emit(m.allocateInstr().asLoad(loadKind(instr.Type()), rd, addr, 0))
}
