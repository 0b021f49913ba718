package regalloc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

const (
	r1 RealReg = 1 + iota
	r2
	r3
	r4
	r5
	f6
	f7
	f8
)

var testRegInfo = &RegisterInfo{
	AllocatableRegisters: [NumRegType][]RealReg{
		RegTypeInt:   {r1, r2, r3, r4},
		RegTypeFloat: {f6, f7},
	},
	CallerSavedRegisters: NewRegSet(r1, r2, r3, f6),
	CalleeSavedRegisters: NewRegSet(r4, f7),
	ScratchRegisters:     [NumRegType]RealReg{RegTypeInt: r5, RegTypeFloat: f8},
	RealRegName: func(r RealReg) string {
		switch {
		case r == RealRegInvalid:
			return "invalid"
		case r <= r5:
			return fmt.Sprintf("r%d", r)
		default:
			return fmt.Sprintf("f%d", r)
		}
	},
	RealRegType: func(r RealReg) RegType {
		if r <= r5 {
			return RegTypeInt
		}
		return RegTypeFloat
	},
}

type (
	testInstr struct {
		kind       string
		defs, uses []VReg
		deps       *DependencyConditions
		cond       bool
		hint       ir.BranchHint
		label      bool
		ends       bool
		gc         bool
		gcRegs     RegSet
		gcSlots    []int
		slot       int
		prev, next *testInstr
	}

	testFunction struct {
		head, tail *testInstr
		stubs      map[*testInstr][]*testInstr
		refs       map[VRegID]bool
	}
)

func (i *testInstr) String() string {
	var ops []string
	for _, v := range append(append([]VReg{}, i.defs...), i.uses...) {
		if v.IsRealReg() {
			ops = append(ops, testRegInfo.RealRegName(v.RealReg()))
		} else {
			ops = append(ops, v.String())
		}
	}
	switch i.kind {
	case "spill":
		ops = append([]string{fmt.Sprintf("[%d]", i.slot)}, ops...)
	case "reload":
		ops = append(ops, fmt.Sprintf("[%d]", i.slot))
	}
	if len(ops) == 0 {
		return i.kind
	}
	return i.kind + " " + strings.Join(ops, ", ")
}

func (i *testInstr) Defs(*[]VReg) []VReg                 { return i.defs }
func (i *testInstr) Uses(*[]VReg) []VReg                 { return i.uses }
func (i *testInstr) AssignUse(n int, v VReg)             { i.uses[n] = v }
func (i *testInstr) AssignDef(n int, v VReg)             { i.defs[n] = v }
func (i *testInstr) Dependencies() *DependencyConditions { return i.deps }
func (i *testInstr) IsLabel() bool                       { return i.label }
func (i *testInstr) IsConditionalBranch() bool           { return i.cond }
func (i *testInstr) BranchHint() ir.BranchHint           { return i.hint }
func (i *testInstr) EndsBlock() bool                     { return i.ends }
func (i *testInstr) IsGCSafePoint() bool                 { return i.gc }
func (i *testInstr) SetGCLiveness(regs RegSet, slots []int) {
	i.gcRegs, i.gcSlots = regs, slots
}

func newTestFunction(instrs ...*testInstr) *testFunction {
	f := &testFunction{stubs: map[*testInstr][]*testInstr{}, refs: map[VRegID]bool{}}
	for _, i := range instrs {
		if f.tail == nil {
			f.head, f.tail = i, i
			continue
		}
		f.InsertAfter(f.tail, i)
	}
	return f
}

func (f *testFunction) Tail() *testInstr             { return f.tail }
func (f *testFunction) Prev(i *testInstr) *testInstr { return i.prev }

func (f *testFunction) InsertBefore(at, i *testInstr) {
	i.prev, i.next = at.prev, at
	if at.prev != nil {
		at.prev.next = i
	} else {
		f.head = i
	}
	at.prev = i
}

func (f *testFunction) InsertAfter(at, i *testInstr) {
	i.prev, i.next = at, at.next
	if at.next != nil {
		at.next.prev = i
	} else {
		f.tail = i
	}
	at.next = i
}

func (f *testFunction) NewMove(dst, src VReg) *testInstr {
	return &testInstr{kind: "mov", defs: []VReg{dst}, uses: []VReg{src}}
}

func (f *testFunction) NewSpill(slot int, src VReg) *testInstr {
	return &testInstr{kind: "spill", uses: []VReg{src}, slot: slot}
}

func (f *testFunction) NewReload(dst VReg, slot int) *testInstr {
	return &testInstr{kind: "reload", defs: []VReg{dst}, slot: slot}
}

func (f *testFunction) NewEdgeStub(branch *testInstr, moves []*testInstr) {
	f.stubs[branch] = moves
}

func (f *testFunction) IsReference(v VReg) bool { return f.refs[v.ID()] }

func (f *testFunction) format() string {
	var lines []string
	for cur := f.head; cur != nil; cur = cur.next {
		lines = append(lines, cur.String())
	}
	return strings.Join(lines, "\n")
}

func vreg(n int) VReg {
	return VReg(VRegIDNonReservedBegin + VRegID(n)).SetRegType(RegTypeInt)
}

func def(vs ...VReg) *testInstr {
	return &testInstr{kind: "def", defs: vs}
}

func use(vs ...VReg) *testInstr {
	return &testInstr{kind: "use", uses: vs}
}

func pinnedUse(v VReg, r RealReg) *testInstr {
	deps := NewDependencyConditions(1, 0)
	deps.AddPre(v, r)
	return &testInstr{kind: "use", uses: []VReg{v}, deps: deps}
}

func call(arg VReg, argReg RealReg, killed ...RealReg) *testInstr {
	deps := NewDependencyConditions(1, 1)
	deps.AddPre(arg, argReg)
	deps.AddKill(NewRegSet(killed...))
	return &testInstr{kind: "call", deps: deps, gc: true}
}

func TestAllocator_DoAllocation(t *testing.T) {
	v1, v2, v3, v4, v5 := vreg(1), vreg(2), vreg(3), vreg(4), vreg(5)

	for _, tc := range []struct {
		name   string
		instrs func() []*testInstr
		exp    string
		slots  int
	}{
		{
			name:   "straight line",
			instrs: func() []*testInstr { return []*testInstr{def(v1), def(v2), use(v1, v2)} },
			exp:    "def r1\ndef r2\nuse r1, r2",
		},
		{
			// The value is copied to its second register before the call and never kept in r1 across it.
			name: "copy before call",
			instrs: func() []*testInstr {
				return []*testInstr{def(v1), call(v1, r1, r1), pinnedUse(v1, r2)}
			},
			exp: "def r1\nmov r2, r1\ncall\nuse r2",
		},
		{
			name: "evacuate killed register",
			instrs: func() []*testInstr {
				return []*testInstr{def(v1), call(v1, r1, r1, r2, r3), pinnedUse(v1, r2)}
			},
			exp: "def r1\nmov r4, r1\ncall\nmov r2, r4\nuse r2",
		},
		{
			name: "spill furthest next occurrence",
			instrs: func() []*testInstr {
				return []*testInstr{
					def(v1), def(v2), def(v3), def(v4), def(v5),
					use(v1), use(v2), use(v3), use(v4), use(v5),
				}
			},
			exp: `def r4
def r1
spill [0], r1
def r3
def r2
def r1
use r4
reload r4, [0]
use r4
use r3
use r2
use r1`,
			slots: 1,
		},
		{
			name: "swap through scratch",
			instrs: func() []*testInstr {
				post := NewDependencyConditions(0, 2)
				post.AddPost(v1, r1)
				post.AddPost(v2, r2)
				pre := NewDependencyConditions(2, 0)
				pre.AddPre(v1, r2)
				pre.AddPre(v2, r1)
				return []*testInstr{
					{kind: "def", defs: []VReg{v1, v2}, deps: post},
					{kind: "use", uses: []VReg{v1, v2}, deps: pre},
				}
			},
			exp: "def r1, r2\nmov r5, r2\nmov r2, r1\nmov r1, r5\nuse r2, r1",
		},
		{
			name: "label",
			instrs: func() []*testInstr {
				deps := NewDependencyConditions(1, 0)
				deps.AddPre(v1, r3)
				return []*testInstr{def(v1), {kind: "label", label: true, deps: deps}, use(v1)}
			},
			exp: "def r3\nlabel\nuse r3",
		},
		{
			name: "reconcile on fallthrough",
			instrs: func() []*testInstr {
				deps := NewDependencyConditions(1, 0)
				deps.AddPre(v1, r1)
				return []*testInstr{def(v1), {kind: "br", cond: true, deps: deps}, pinnedUse(v1, r2)}
			},
			exp: "def r1\nbr\nmov r2, r1\nuse r2",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newTestFunction(tc.instrs()...)
			a := NewAllocator[*testInstr](testRegInfo, 8, true)
			require.NoError(t, a.DoAllocation(f))
			require.Equal(t, tc.exp, f.format())
			require.Equal(t, tc.slots, a.SpillSlots())
			require.Empty(t, f.stubs)
		})
	}
}

func TestAllocator_edgeStub(t *testing.T) {
	v1 := vreg(1)
	deps := NewDependencyConditions(1, 0)
	deps.AddPre(v1, r1)
	br := &testInstr{kind: "br", cond: true, hint: ir.BranchHintUnlikely, deps: deps}
	f := newTestFunction(def(v1), br, pinnedUse(v1, r2))

	a := NewAllocator[*testInstr](testRegInfo, 8, true)
	require.NoError(t, a.DoAllocation(f))
	require.Equal(t, "def r2\nbr\nuse r2", f.format())
	require.Len(t, f.stubs[br], 1)
	require.Equal(t, "mov r1, r2", f.stubs[br][0].String())
}

// overcommittedBranch returns a rarely taken branch requiring three values in two registers,
// so that one of them reaches the taken edge in its spill slot.
func overcommittedBranch(v1, v2, v3 VReg) *testInstr {
	deps := NewDependencyConditions(3, 0)
	for _, v := range []VReg{v1, v2, v3} {
		deps.AddPreSet(v, NewRegSet(r1, r2))
	}
	return &testInstr{kind: "br", cond: true, hint: ir.BranchHintUnlikely, deps: deps}
}

func TestAllocator_edgeStub_spill(t *testing.T) {
	v1, v2, v3 := vreg(1), vreg(2), vreg(3)
	br := overcommittedBranch(v1, v2, v3)
	f := newTestFunction(def(v1), def(v2), def(v3), br, use(v1, v2, v3))

	a := NewAllocator[*testInstr](testRegInfo, 8, false)
	require.NoError(t, a.DoAllocation(f))
	require.Equal(t, 1, a.SpillSlots())
	var spills int
	for _, i := range f.stubs[br] {
		if i.kind == "spill" {
			spills++
		}
	}
	require.Equal(t, 1, spills)
}

func TestAllocator_gcLiveness(t *testing.T) {
	v1, v2 := vreg(1), vreg(2)
	sp := &testInstr{kind: "safepoint", gc: true}
	f := newTestFunction(def(v1), def(v2), sp, use(v1, v2))
	f.refs[v1.ID()] = true

	a := NewAllocator[*testInstr](testRegInfo, 8, false)
	require.NoError(t, a.DoAllocation(f))
	require.Equal(t, NewRegSet(r1), sp.gcRegs)
	require.Empty(t, sp.gcSlots)
}

func TestAllocator_errors(t *testing.T) {
	v1, v2, v3, v4, v5 := vreg(1), vreg(2), vreg(3), vreg(4), vreg(5)

	for _, tc := range []struct {
		name          string
		instrs        []*testInstr
		maxSpillSlots int
		expErr        error
	}{
		{
			name:          "label without dependency",
			instrs:        []*testInstr{def(v1), {kind: "label", label: true}, use(v1)},
			maxSpillSlots: 8,
			expErr:        ErrInternalConsistency,
		},
		{
			name:          "use before definition",
			instrs:        []*testInstr{use(v1)},
			maxSpillSlots: 8,
			expErr:        ErrInternalConsistency,
		},
		{
			name:          "too many operands",
			instrs:        []*testInstr{def(v1), def(v2), def(v3), def(v4), def(v5), use(v1, v2, v3, v4, v5)},
			maxSpillSlots: 8,
			expErr:        ErrResourceExhaustion,
		},
		{
			name:   "out of spill slots on a rarely taken edge",
			instrs: []*testInstr{def(v1), def(v2), def(v3), overcommittedBranch(v1, v2, v3), use(v1, v2, v3)},
			expErr: ErrResourceExhaustion,
		},
		{
			name: "out of spill slots",
			instrs: []*testInstr{
				def(v1), def(v2), def(v3), def(v4), def(v5),
				use(v1), use(v2), use(v3), use(v4), use(v5),
			},
			expErr: ErrResourceExhaustion,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAllocator[*testInstr](testRegInfo, tc.maxSpillSlots, true)
			err := a.DoAllocation(newTestFunction(tc.instrs...))
			require.ErrorIs(t, err, tc.expErr)
		})
	}
}

func TestAllocator_Reset(t *testing.T) {
	a := NewAllocator[*testInstr](testRegInfo, 8, true)
	v1, v2, v3, v4, v5 := vreg(1), vreg(2), vreg(3), vreg(4), vreg(5)
	build := func() *testFunction {
		return newTestFunction(
			def(v1), def(v2), def(v3), def(v4), def(v5),
			use(v1), use(v2), use(v3), use(v4), use(v5),
		)
	}
	first := build()
	require.NoError(t, a.DoAllocation(first))
	a.Reset()
	require.Zero(t, a.SpillSlots())
	require.True(t, a.UsedRegisters().Empty())

	second := build()
	require.NoError(t, a.DoAllocation(second))
	require.Equal(t, first.format(), second.format())
}

// TestAllocator_simulate allocates random straight-line programs with calls and
// executes the result symbolically: every read must observe the value it names.
func TestAllocator_simulate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var (
			instrs  []*testInstr
			defined []VReg
			next    int
		)
		newValue := func() VReg {
			next++
			v := vreg(next)
			defined = append(defined, v)
			return v
		}
		pickDistinct := func(n int, label string) []VReg {
			if n > len(defined) {
				n = len(defined)
			}
			perm := rapid.Permutation(defined).Draw(t, label)
			return perm[:n]
		}

		n := rapid.IntRange(1, 40).Draw(t, "n")
		for i := 0; i < n; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				instrs = append(instrs, def(newValue()))
			case 1:
				if len(defined) == 0 {
					continue
				}
				instrs = append(instrs, use(pickDistinct(rapid.IntRange(1, 2).Draw(t, "uses"), "operands")...))
			case 2:
				args := pickDistinct(rapid.IntRange(0, 2).Draw(t, "args"), "args")
				ret := rapid.Bool().Draw(t, "ret")
				deps := NewDependencyConditions(2, 2)
				for j, a := range args {
					deps.AddPre(a, []RealReg{r1, r2}[j])
				}
				if ret {
					deps.AddPostAlias(newValue(), r1)
					deps.AddKill(NewRegSet(r2, r3))
				} else {
					deps.AddKill(NewRegSet(r1, r2, r3))
				}
				instrs = append(instrs, &testInstr{kind: "call", deps: deps, gc: true})
			case 3:
				instrs = append(instrs, &testInstr{kind: "safepoint", gc: true})
			}
		}
		if len(instrs) == 0 {
			return
		}

		f := newTestFunction(instrs...)
		a := NewAllocator[*testInstr](testRegInfo, 64, true)
		require.NoError(t, a.DoAllocation(f))

		regs := map[RealReg]VRegID{}
		slots := map[int]VRegID{}
		for cur := f.head; cur != nil; cur = cur.next {
			for _, u := range cur.uses {
				require.True(t, u.IsRealReg(), cur.String())
			}
			for _, d := range cur.defs {
				require.True(t, d.IsRealReg(), cur.String())
			}
			switch cur.kind {
			case "mov":
				regs[cur.defs[0].RealReg()] = regs[cur.uses[0].RealReg()]
				continue
			case "spill":
				slots[cur.slot] = regs[cur.uses[0].RealReg()]
				continue
			case "reload":
				regs[cur.defs[0].RealReg()] = slots[cur.slot]
				continue
			}

			for _, u := range cur.uses {
				require.Equal(t, u.ID(), regs[u.RealReg()], "%s reads a stale register", cur)
			}
			if cur.deps == nil {
				for _, d := range cur.defs {
					regs[d.RealReg()] = d.ID()
				}
				continue
			}
			for _, dep := range cur.deps.Pre() {
				found := false
				dep.Regs.Range(func(r RealReg) {
					found = found || regs[r] == dep.V.ID()
				})
				require.True(t, found, "%s: %s not in %s", cur, dep.V, dep.Regs.Format(testRegInfo))
			}
			for _, dep := range cur.deps.Post() {
				if dep.Kind == DependencyKill {
					dep.Regs.Range(func(r RealReg) { delete(regs, r) })
				}
			}
			for _, dep := range cur.deps.Post() {
				if dep.Kind == DependencyDef {
					r, _ := dep.Regs.Single()
					regs[r] = dep.V.ID()
				}
			}
			for _, d := range cur.defs {
				regs[d.RealReg()] = d.ID()
			}
		}
	})
}
