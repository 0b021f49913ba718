package ir

import "fmt"

// IntegerCmpCond is the relation OpcodeIcmp tests between two integer or reference values
// of the same type. The ordered relations come in a signed and an unsigned flavor: they
// differ only in how the backend compares the operands, never in the result type.
type IntegerCmpCond byte

const (
	IntegerCmpCondEqual IntegerCmpCond = iota
	IntegerCmpCondNotEqual
	IntegerCmpCondSignedLessThan
	IntegerCmpCondSignedGreaterThanOrEqual
	IntegerCmpCondSignedGreaterThan
	IntegerCmpCondSignedLessThanOrEqual
	IntegerCmpCondUnsignedLessThan
	IntegerCmpCondUnsignedGreaterThanOrEqual
	IntegerCmpCondUnsignedGreaterThan
	IntegerCmpCondUnsignedLessThanOrEqual

	numIntegerCmpConds
)

// integerCmpCondNames are the names printed by Builder.Format, with the _s and _u suffixes
// telling the signedness of the ordered relations.
var integerCmpCondNames = [numIntegerCmpConds]string{
	IntegerCmpCondEqual:                      "eq",
	IntegerCmpCondNotEqual:                   "neq",
	IntegerCmpCondSignedLessThan:             "lt_s",
	IntegerCmpCondSignedGreaterThanOrEqual:   "ge_s",
	IntegerCmpCondSignedGreaterThan:          "gt_s",
	IntegerCmpCondSignedLessThanOrEqual:      "le_s",
	IntegerCmpCondUnsignedLessThan:           "lt_u",
	IntegerCmpCondUnsignedGreaterThanOrEqual: "ge_u",
	IntegerCmpCondUnsignedGreaterThan:        "gt_u",
	IntegerCmpCondUnsignedLessThanOrEqual:    "le_u",
}

// String implements fmt.Stringer.
func (i IntegerCmpCond) String() string {
	if i >= numIntegerCmpConds {
		panic(fmt.Sprintf("invalid integer comparison condition %d", i))
	}
	return integerCmpCondNames[i]
}

// Signed returns true if the operands are compared as two's complement integers.
// Equality does not depend on signedness and reports false.
func (i IntegerCmpCond) Signed() bool {
	return i >= IntegerCmpCondSignedLessThan && i <= IntegerCmpCondSignedLessThanOrEqual
}
