package regalloc

import (
	"math"
	"slices"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/jitapi"
)

type (
	// Allocator assigns real registers to the virtual registers of a Function.
	// It is reused across compilations; Reset must be called in between.
	Allocator[I Instr] struct {
		info          *RegisterInfo
		allocatable   [NumRegType]RegSet
		maxSpillSlots int
		verify        bool

		f Function[I]
		// state maps every virtual register live at the current point of the reverse walk to its location.
		state, spare map[VRegID]binding
		slots        map[VRegID]int
		pos          map[I]int
		// occurs indexes every occurrence of a virtual register by position, hints the
		// occurrences in single-register dependency conditions.
		occurs, hints  *btree.BTreeG[occurrence]
		used           RegSet
		s              step
		defBuf, useBuf []VReg
	}

	// binding is the location of a live virtual register. reg is RealRegInvalid
	// while the value lives in its spill slot.
	binding struct {
		v   VReg
		reg RealReg
	}

	occurrence struct {
		id  VRegID
		pos int
		reg RealReg
	}

	loc struct {
		reg  RealReg
		slot int
	}

	move struct {
		dst, src loc
		typ      RegType
	}

	// step is the scratch state for allocating a single instruction.
	step struct {
		through, defIDs, useIDs          []VRegID
		inThrough, isDef, isUse, operand map[VRegID]bool
		vregs                            map[VRegID]VReg
		t, u, o, preReg, postReg         map[VRegID]RealReg
		killed, preFixed, postFixed      RegSet
		fixedPre                         bool
	}
)

var (
	// ErrResourceExhaustion is jitapi.ErrResourceExhaustion.
	ErrResourceExhaustion = jitapi.ErrResourceExhaustion
	// ErrInternalConsistency is jitapi.ErrInternalConsistency.
	ErrInternalConsistency = jitapi.ErrInternalConsistency
)

func occurrenceLess(a, b occurrence) bool {
	if a.id != b.id {
		return a.id < b.id
	}
	return a.pos < b.pos
}

// NewAllocator returns a new Allocator. When verify is true every instruction carrying
// dependency conditions is checked against the assignment right after it is allocated.
func NewAllocator[I Instr](info *RegisterInfo, maxSpillSlots int, verify bool) *Allocator[I] {
	a := &Allocator[I]{
		info:          info,
		maxSpillSlots: maxSpillSlots,
		verify:        verify,
		state:         map[VRegID]binding{},
		spare:         map[VRegID]binding{},
		slots:         map[VRegID]int{},
		pos:           map[I]int{},
		occurs:        btree.NewG[occurrence](8, occurrenceLess),
		hints:         btree.NewG[occurrence](8, occurrenceLess),
		s: step{
			inThrough: map[VRegID]bool{},
			isDef:     map[VRegID]bool{},
			isUse:     map[VRegID]bool{},
			operand:   map[VRegID]bool{},
			vregs:     map[VRegID]VReg{},
			t:         map[VRegID]RealReg{},
			u:         map[VRegID]RealReg{},
			o:         map[VRegID]RealReg{},
			preReg:    map[VRegID]RealReg{},
			postReg:   map[VRegID]RealReg{},
		},
	}
	for typ := range info.AllocatableRegisters {
		a.allocatable[typ] = NewRegSet(info.AllocatableRegisters[typ]...)
	}
	return a
}

// Reset clears the state of the previous allocation.
func (a *Allocator[I]) Reset() {
	a.f = nil
	clear(a.state)
	clear(a.spare)
	clear(a.slots)
	clear(a.pos)
	a.occurs.Clear(true)
	a.hints.Clear(true)
	a.used = RegSet{}
}

// UsedRegisters returns every real register the allocation assigned.
func (a *Allocator[I]) UsedRegisters() RegSet {
	return a.used
}

// SpillSlots returns the number of spill slots the allocation needs.
func (a *Allocator[I]) SpillSlots() int {
	return len(a.slots)
}

// DoAllocation allocates the registers of every instruction in f, walking from the tail to the head.
func (a *Allocator[I]) DoAllocation(f Function[I]) error {
	a.f = f
	a.prescan()

	var zero I
	for cur := f.Tail(); cur != zero; {
		// Moves inserted above cur must not be visited, so the predecessor is taken first.
		prev := f.Prev(cur)
		if err := a.allocateInstr(cur, a.pos[cur]); err != nil {
			return errors.WithMessagef(err, "allocating %s", cur)
		}
		cur = prev
	}
	if len(a.state) > 0 {
		return errors.Wrapf(ErrInternalConsistency, "%s is used before being defined", a.state[a.liveIDs()[0]].v)
	}
	return nil
}

func (a *Allocator[I]) prescan() {
	var zero I
	p := 0
	for cur := a.f.Tail(); cur != zero; cur = a.f.Prev(cur) {
		p--
		a.pos[cur] = p
		for _, v := range cur.Defs(&a.defBuf) {
			a.addOccurrence(v, p)
		}
		for _, v := range cur.Uses(&a.useBuf) {
			a.addOccurrence(v, p)
		}
		deps := cur.Dependencies()
		if deps == nil {
			continue
		}
		for _, list := range [2][]Dependency{deps.Pre(), deps.Post()} {
			for _, d := range list {
				if d.Kind == DependencyKill {
					continue
				}
				a.addOccurrence(d.V, p)
				if r, ok := d.Regs.Single(); ok {
					a.hints.ReplaceOrInsert(occurrence{id: d.V.ID(), pos: p, reg: r})
				}
			}
		}
	}
}

func (a *Allocator[I]) addOccurrence(v VReg, p int) {
	if !v.IsRealReg() {
		a.occurs.ReplaceOrInsert(occurrence{id: v.ID(), pos: p})
	}
}

// distanceAbove returns how far above p the virtual register occurs next.
func (a *Allocator[I]) distanceAbove(id VRegID, p int) int {
	d := math.MaxInt
	a.occurs.DescendLessOrEqual(occurrence{id: id, pos: p - 1}, func(o occurrence) bool {
		if o.id == id {
			d = p - o.pos
		}
		return false
	})
	return d
}

// hint returns the register requested by the dependency condition nearest to p naming the virtual register.
func (a *Allocator[I]) hint(id VRegID, p int) RealReg {
	var below, above occurrence
	var hasBelow, hasAbove bool
	a.hints.AscendGreaterOrEqual(occurrence{id: id, pos: p}, func(o occurrence) bool {
		below, hasBelow = o, o.id == id
		return false
	})
	a.hints.DescendLessOrEqual(occurrence{id: id, pos: p - 1}, func(o occurrence) bool {
		above, hasAbove = o, o.id == id
		return false
	})
	switch {
	case hasAbove && (!hasBelow || p-above.pos <= below.pos-p):
		return above.reg
	case hasBelow:
		return below.reg
	}
	return RealRegInvalid
}

// pick returns a free register for v outside of taken, or RealRegInvalid.
func (a *Allocator[I]) pick(v VReg, p int, taken RegSet, prefer RealReg) RealReg {
	typ := v.RegType()
	free := a.allocatable[typ].Minus(taken)
	if free.Empty() {
		return RealRegInvalid
	}
	if prefer != RealRegInvalid && free.Has(prefer) {
		return prefer
	}
	if h := a.hint(v.ID(), p); h != RealRegInvalid && free.Has(h) {
		return h
	}
	for _, r := range a.info.AllocatableRegisters[typ] {
		if free.Has(r) {
			return r
		}
	}
	return RealRegInvalid
}

// evict moves to its spill slot the live-through value of class typ whose next occurrence above p is the furthest.
func (a *Allocator[I]) evict(typ RegType, p int) bool {
	s := &a.s
	var best VRegID
	bestDist := -1
	for _, id := range s.through {
		if s.t[id] == RealRegInvalid || s.vregs[id].RegType() != typ || s.isUse[id] {
			continue
		}
		if d := a.distanceAbove(id, p); d > bestDist {
			best, bestDist = id, d
		}
	}
	if bestDist < 0 {
		return false
	}
	s.t[best] = RealRegInvalid
	return true
}

func (a *Allocator[I]) slotOf(id VRegID) (int, error) {
	if slot, ok := a.slots[id]; ok {
		return slot, nil
	}
	if len(a.slots) >= a.maxSpillSlots {
		return 0, errors.Wrapf(ErrResourceExhaustion, "more than %d spill slots", a.maxSpillSlots)
	}
	slot := len(a.slots)
	a.slots[id] = slot
	return slot, nil
}

func (a *Allocator[I]) liveIDs() []VRegID {
	ids := make([]VRegID, 0, len(a.state))
	for id := range a.state {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// chooseFixed picks the register of d, preferring the current location of its virtual register.
func (a *Allocator[I]) chooseFixed(d Dependency, claimed RegSet) RealReg {
	if r, ok := d.Regs.Single(); ok {
		return r
	}
	if b, ok := a.state[d.V.ID()]; ok && b.reg != RealRegInvalid && d.Regs.Has(b.reg) && !claimed.Has(b.reg) {
		return b.reg
	}
	ret := RealRegInvalid
	d.Regs.Minus(claimed).Range(func(r RealReg) {
		if ret == RealRegInvalid {
			ret = r
		}
	})
	return ret
}

func (a *Allocator[I]) allocateInstr(cur I, p int) error {
	s := &a.s
	s.reset()

	deps := cur.Dependencies()
	var pre, post []Dependency
	if deps != nil {
		pre, post = deps.Pre(), deps.Post()
	}
	// A conditional branch which is rarely taken reconciles its taken edge in a stub,
	// everything else reconciles right after the instruction, i.e. on the fallthrough path.
	s.fixedPre = !(cur.IsConditionalBranch() && cur.BranchHint() == ir.BranchHintUnlikely)

	if cur.EndsBlock() {
		clear(a.state)
	}
	if cur.IsLabel() {
		for _, id := range a.liveIDs() {
			if deps == nil || !deps.Names(id) {
				return errors.Wrapf(ErrInternalConsistency, "%s is live into a label without a dependency", a.state[id].v)
			}
		}
	}

	for _, v := range cur.Defs(&a.defBuf) {
		if !v.IsRealReg() {
			s.def(v)
		}
	}
	for _, v := range cur.Uses(&a.useBuf) {
		if !v.IsRealReg() {
			s.use(v, true)
		}
	}
	for _, d := range post {
		switch d.Kind {
		case DependencyKill:
			s.killed = s.killed.Union(d.Regs)
		case DependencyDef:
			s.def(d.V)
			r := a.chooseFixed(d, s.postFixed)
			s.postReg[d.V.ID()] = r
			s.postFixed = s.postFixed.Add(r)
		}
	}
	var claimed RegSet
	for _, d := range pre {
		s.use(d.V, false)
		r := a.chooseFixed(d, claimed)
		claimed = claimed.Add(r)
		s.preReg[d.V.ID()] = r
	}
	if s.fixedPre {
		s.preFixed = claimed
	}

	for _, id := range a.liveIDs() {
		if s.isDef[id] {
			continue
		}
		s.through = append(s.through, id)
		s.inThrough[id] = true
		s.vregs[id] = a.state[id].v
	}

	if err := a.assignThrough(p); err != nil {
		return err
	}
	if err := a.assignDefs(p); err != nil {
		return err
	}
	if err := a.assignUses(p); err != nil {
		return err
	}

	// Moves from the locations right after the instruction to the state below it.
	var postMoves []move
	for _, id := range s.through {
		m, ok, err := a.transfer(s.vregs[id], s.t[id], a.state[id].reg)
		if err != nil {
			return err
		}
		if ok {
			postMoves = append(postMoves, m)
		}
	}
	for _, id := range s.defIDs {
		if b, live := a.state[id]; live {
			m, ok, err := a.transfer(b.v, s.o[id], b.reg)
			if err != nil {
				return err
			}
			if ok {
				postMoves = append(postMoves, m)
			}
		}
	}
	at := cur
	for _, i := range a.sequence(postMoves) {
		a.f.InsertAfter(at, i)
		at = i
	}

	// A value required in one register by the instruction but kept in another across it is copied beforehand.
	if s.fixedPre {
		var preMoves []move
		for _, id := range s.through {
			if r, ok := s.preReg[id]; ok {
				m, ok, err := a.transfer(s.vregs[id], r, s.t[id])
				if err != nil {
					return err
				}
				if ok {
					preMoves = append(preMoves, m)
				}
			}
		}
		for _, i := range a.sequence(preMoves) {
			a.f.InsertBefore(cur, i)
		}
	} else {
		var stubMoves []move
		for _, d := range pre {
			id := d.V.ID()
			m, ok, err := a.transfer(d.V, s.inputReg(id), s.preReg[id])
			if err != nil {
				return err
			}
			if ok {
				stubMoves = append(stubMoves, m)
			}
		}
		if len(stubMoves) > 0 {
			a.f.NewEdgeStub(cur, a.sequence(stubMoves))
		}
	}

	if cur.IsGCSafePoint() {
		var regs RegSet
		var slots []int
		for _, id := range s.through {
			if !a.f.IsReference(s.vregs[id]) {
				continue
			}
			if r := s.t[id]; r != RealRegInvalid {
				regs = regs.Add(r)
			} else {
				slots = append(slots, a.slots[id])
			}
		}
		cur.SetGCLiveness(regs, slots)
	}

	if a.verify && deps != nil {
		before := func(v VReg) RealReg {
			if s.fixedPre {
				return s.inputReg(v.ID())
			}
			return s.preReg[v.ID()]
		}
		after := func(v VReg) RealReg { return s.o[v.ID()] }
		if err := deps.SatisfiedBy(a.info, before, after); err != nil {
			return errors.Wrap(ErrInternalConsistency, err.Error())
		}
	}

	for i, v := range cur.Uses(&a.useBuf) {
		if !v.IsRealReg() {
			cur.AssignUse(i, v.SetRealReg(s.inputReg(v.ID())))
		}
	}
	for i, v := range cur.Defs(&a.defBuf) {
		if !v.IsRealReg() {
			cur.AssignDef(i, v.SetRealReg(s.o[v.ID()]))
		}
	}

	// The state above the instruction.
	next := a.spare
	clear(next)
	for _, id := range s.through {
		next[id] = binding{v: s.vregs[id], reg: s.t[id]}
		if r, ok := s.preReg[id]; ok && s.fixedPre {
			next[id] = binding{v: s.vregs[id], reg: r}
		}
	}
	for _, id := range s.useIDs {
		if !s.inThrough[id] {
			next[id] = binding{v: s.vregs[id], reg: s.inputReg(id)}
		}
	}
	a.spare, a.state = a.state, next

	for _, m := range []map[VRegID]RealReg{s.t, s.u, s.o} {
		a.used = a.used.Union(regsOf(m))
	}
	a.used = a.used.Union(s.preFixed).Union(s.postFixed)
	return nil
}

// assignThrough decides where each value live across the instruction is kept.
func (a *Allocator[I]) assignThrough(p int) error {
	s := &a.s
	var relocate []VRegID
	for _, id := range s.through {
		r := a.state[id].reg
		pr, hasPre := s.preReg[id]
		reserved := s.killed.Union(s.postFixed).Union(s.preFixedExcept(id)).Union(regsOf(s.t))
		switch {
		case hasPre && s.fixedPre && !s.killed.Has(pr) && !s.postFixed.Has(pr):
			s.t[id] = pr
		case r == RealRegInvalid && !s.needsReg(id):
			s.t[id] = RealRegInvalid
		case r != RealRegInvalid && !reserved.Has(r):
			s.t[id] = r
		default:
			relocate = append(relocate, id)
		}
	}
	for _, id := range relocate {
		v := s.vregs[id]
		for {
			taken := s.killed.Union(s.postFixed).Union(s.preFixedExcept(id)).Union(regsOf(s.t))
			if r := a.pick(v, p, taken, RealRegInvalid); r != RealRegInvalid {
				s.t[id] = r
				break
			}
			if !s.needsReg(id) {
				s.t[id] = RealRegInvalid
				break
			}
			if !a.evict(v.RegType(), p) {
				return errors.Wrapf(ErrResourceExhaustion, "no %s register left for %s", v.RegType(), v)
			}
		}
	}
	return nil
}

// assignDefs picks the output register of each value defined by the instruction.
func (a *Allocator[I]) assignDefs(p int) error {
	s := &a.s
	for _, id := range s.defIDs {
		if r, ok := s.postReg[id]; ok {
			s.o[id] = r
			continue
		}
		v := s.vregs[id]
		prefer := RealRegInvalid
		if b, ok := a.state[id]; ok {
			prefer = b.reg
		}
		for {
			taken := regsOf(s.t).Union(s.postFixed).Union(regsOf(s.o))
			if r := a.pick(v, p, taken, prefer); r != RealRegInvalid {
				s.o[id] = r
				break
			}
			if !a.evict(v.RegType(), p) {
				return errors.Wrapf(ErrResourceExhaustion, "no %s register left for %s", v.RegType(), v)
			}
		}
	}
	return nil
}

// assignUses picks the input register of each value whose last use is the instruction.
func (a *Allocator[I]) assignUses(p int) error {
	s := &a.s
	for _, id := range s.useIDs {
		if s.inThrough[id] {
			continue
		}
		pr, hasPre := s.preReg[id]
		if hasPre && s.fixedPre {
			s.u[id] = pr
			continue
		}
		v := s.vregs[id]
		prefer := RealRegInvalid
		if hasPre {
			prefer = pr
		} else if r, ok := s.o[id]; ok {
			prefer = r
		}
		for {
			taken := regsOf(s.t).Union(regsOf(s.u)).Union(s.preFixed)
			if r := a.pick(v, p, taken, prefer); r != RealRegInvalid {
				s.u[id] = r
				break
			}
			if !a.evict(v.RegType(), p) {
				return errors.Wrapf(ErrResourceExhaustion, "no %s register left for %s", v.RegType(), v)
			}
		}
	}
	return nil
}

// transfer returns the move bringing v from one location to another.
func (a *Allocator[I]) transfer(v VReg, from, to RealReg) (move, bool, error) {
	if from == to {
		return move{}, false, nil
	}
	m := move{typ: v.RegType(), dst: loc{reg: to}, src: loc{reg: from}}
	if from == RealRegInvalid || to == RealRegInvalid {
		slot, err := a.slotOf(v.ID())
		if err != nil {
			return move{}, false, err
		}
		if from == RealRegInvalid {
			m.src.slot = slot
		} else {
			m.dst.slot = slot
		}
	}
	return m, true, nil
}

// sequence orders a parallel move: stores first, then register copies with cycles
// broken through the scratch register, then reloads.
func (a *Allocator[I]) sequence(moves []move) []I {
	var out []I
	var pending []move
	for _, m := range moves {
		switch {
		case m.dst.reg == RealRegInvalid:
			out = append(out, a.f.NewSpill(m.dst.slot, FromRealReg(m.src.reg, m.typ)))
		case m.src.reg != RealRegInvalid:
			pending = append(pending, m)
		}
	}
	for len(pending) > 0 {
		progressed := false
		for i := 0; i < len(pending); {
			m := pending[i]
			if readBy(pending, m.dst.reg, i) {
				i++
				continue
			}
			out = append(out, a.f.NewMove(FromRealReg(m.dst.reg, m.typ), FromRealReg(m.src.reg, m.typ)))
			pending = append(pending[:i], pending[i+1:]...)
			progressed = true
		}
		if !progressed {
			m := pending[0]
			scratch := a.info.ScratchRegisters[m.typ]
			out = append(out, a.f.NewMove(FromRealReg(scratch, m.typ), FromRealReg(m.dst.reg, m.typ)))
			for j := range pending {
				if pending[j].src.reg == m.dst.reg {
					pending[j].src.reg = scratch
				}
			}
		}
	}
	for _, m := range moves {
		if m.src.reg == RealRegInvalid {
			out = append(out, a.f.NewReload(FromRealReg(m.dst.reg, m.typ), m.src.slot))
		}
	}
	return out
}

func readBy(moves []move, r RealReg, except int) bool {
	for j, m := range moves {
		if j != except && m.src.reg == r {
			return true
		}
	}
	return false
}

func regsOf(m map[VRegID]RealReg) (ret RegSet) {
	for _, r := range m {
		if r != RealRegInvalid {
			ret = ret.Add(r)
		}
	}
	return
}

func (s *step) reset() {
	s.through, s.defIDs, s.useIDs = s.through[:0], s.defIDs[:0], s.useIDs[:0]
	clear(s.inThrough)
	clear(s.isDef)
	clear(s.isUse)
	clear(s.operand)
	clear(s.vregs)
	clear(s.t)
	clear(s.u)
	clear(s.o)
	clear(s.preReg)
	clear(s.postReg)
	s.killed, s.preFixed, s.postFixed = RegSet{}, RegSet{}, RegSet{}
}

func (s *step) def(v VReg) {
	id := v.ID()
	s.vregs[id] = v
	if !s.isDef[id] {
		s.isDef[id] = true
		s.defIDs = append(s.defIDs, id)
	}
}

func (s *step) use(v VReg, operand bool) {
	id := v.ID()
	if _, ok := s.vregs[id]; !ok {
		s.vregs[id] = v
	}
	if operand {
		s.operand[id] = true
	}
	if !s.isUse[id] {
		s.isUse[id] = true
		s.useIDs = append(s.useIDs, id)
	}
}

// needsReg returns true if the instruction reads the value from a register other than its fixed one.
func (s *step) needsReg(id VRegID) bool {
	if _, hasPre := s.preReg[id]; hasPre {
		return !s.fixedPre
	}
	return s.operand[id]
}

func (s *step) preFixedExcept(id VRegID) RegSet {
	if r, ok := s.preReg[id]; ok {
		return s.preFixed.Remove(r)
	}
	return s.preFixed
}

// inputReg returns the register the instruction reads the value from.
func (s *step) inputReg(id VRegID) RealReg {
	if r, ok := s.preReg[id]; ok && s.fixedPre {
		return r
	}
	if s.inThrough[id] {
		return s.t[id]
	}
	return s.u[id]
}
