package regalloc

import (
	"math/bits"
	"strings"
)

// RegSet represents a set of real registers.
type RegSet [4]uint64

// NewRegSet returns a new RegSet with the given registers.
func NewRegSet(regs ...RealReg) RegSet {
	var ret RegSet
	for _, r := range regs {
		ret = ret.Add(r)
	}
	return ret
}

// Add returns the set with r added.
func (rs RegSet) Add(r RealReg) RegSet {
	rs[r/64] |= 1 << (r % 64)
	return rs
}

// Remove returns the set with r removed.
func (rs RegSet) Remove(r RealReg) RegSet {
	rs[r/64] &^= 1 << (r % 64)
	return rs
}

// Has returns true if r is in the set.
func (rs RegSet) Has(r RealReg) bool {
	return rs[r/64]&(1<<(r%64)) != 0
}

// Union returns the union of the two sets.
func (rs RegSet) Union(o RegSet) RegSet {
	for i := range rs {
		rs[i] |= o[i]
	}
	return rs
}

// Intersect returns the intersection of the two sets.
func (rs RegSet) Intersect(o RegSet) RegSet {
	for i := range rs {
		rs[i] &= o[i]
	}
	return rs
}

// Empty returns true if no register is in the set.
func (rs RegSet) Empty() bool {
	return rs == RegSet{}
}

// Len returns the number of registers in the set.
func (rs RegSet) Len() (n int) {
	for _, w := range rs {
		n += bits.OnesCount64(w)
	}
	return
}

// Single returns the only register of the set, or false if the set does not hold exactly one.
func (rs RegSet) Single() (RealReg, bool) {
	if rs.Len() != 1 {
		return RealRegInvalid, false
	}
	var ret RealReg
	rs.Range(func(r RealReg) { ret = r })
	return ret, true
}

// Range calls f for each register in the set in ascending order.
func (rs RegSet) Range(f func(r RealReg)) {
	for i, w := range rs {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			f(RealReg(i*64 + b))
			w &= w - 1
		}
	}
}

// Format returns the human-readable form of the set using the register names of info.
func (rs RegSet) Format(info *RegisterInfo) string {
	var names []string
	rs.Range(func(r RealReg) { names = append(names, info.RealRegName(r)) })
	return "{" + strings.Join(names, ", ") + "}"
}

// Minus returns the registers of rs which are not in o.
func (rs RegSet) Minus(o RegSet) RegSet {
	for i := range rs {
		rs[i] &^= o[i]
	}
	return rs
}
