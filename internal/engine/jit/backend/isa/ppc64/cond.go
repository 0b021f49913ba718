package ppc64

import (
	"fmt"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// cond represents a condition on the cr0 field for conditional branches.
// Whether the comparison was signed is decided by the compare instruction setting cr0.
type cond uint8

const (
	eq cond = iota // eq represents "equal"
	ne             // ne represents "not equal"
	lt             // lt represents "less than"
	ge             // ge represents "greater or equal"
	gt             // gt represents "greater than"
	le             // le represents "less than or equal"
)

// Branch operand fields of bc testing cr0.
const (
	boTrue  = 12 // branch if the CR bit is set
	boFalse = 4  // branch if the CR bit is clear

	biLT = 0
	biGT = 1
	biEQ = 2
)

// String implements fmt.Stringer.
func (c cond) String() string {
	switch c {
	case eq:
		return "eq"
	case ne:
		return "ne"
	case lt:
		return "lt"
	case ge:
		return "ge"
	case gt:
		return "gt"
	case le:
		return "le"
	default:
		panic(fmt.Sprintf("invalid cond %d", c))
	}
}

// invert returns the inverted condition.
func (c cond) invert() cond {
	switch c {
	case eq:
		return ne
	case ne:
		return eq
	case lt:
		return ge
	case ge:
		return lt
	case gt:
		return le
	case le:
		return gt
	default:
		panic(c)
	}
}

// boBI returns the BO and BI fields of the bc branching on c.
func (c cond) boBI() (bo, bi uint32) {
	switch c {
	case eq:
		return boTrue, biEQ
	case ne:
		return boFalse, biEQ
	case lt:
		return boTrue, biLT
	case ge:
		return boFalse, biLT
	case gt:
		return boTrue, biGT
	case le:
		return boFalse, biGT
	default:
		panic(c)
	}
}

// condFromBOBI is the inverse of cond.boBI.
func condFromBOBI(bo, bi uint32) (cond, bool) {
	for c := eq; c <= le; c++ {
		if b, i := c.boBI(); b == bo && i == bi {
			return c, true
		}
	}
	return 0, false
}

// condOf returns the cond testing c once cr0 is set by a compare of the signedness c.Signed() requires.
func condOf(c ir.IntegerCmpCond) cond {
	switch c {
	case ir.IntegerCmpCondEqual:
		return eq
	case ir.IntegerCmpCondNotEqual:
		return ne
	case ir.IntegerCmpCondSignedLessThan, ir.IntegerCmpCondUnsignedLessThan:
		return lt
	case ir.IntegerCmpCondSignedGreaterThanOrEqual, ir.IntegerCmpCondUnsignedGreaterThanOrEqual:
		return ge
	case ir.IntegerCmpCondSignedGreaterThan, ir.IntegerCmpCondUnsignedGreaterThan:
		return gt
	case ir.IntegerCmpCondSignedLessThanOrEqual, ir.IntegerCmpCondUnsignedLessThanOrEqual:
		return le
	default:
		panic(c)
	}
}
