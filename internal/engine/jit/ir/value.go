package ir

import (
	"fmt"
	"math"
)

// Value represents a value produced by an Instruction or a block parameter.
//
// Higher 32-bit is used to store Type for this value.
type Value uint64

// ValueID is the lower 32bit of Value, which is the pure identifier of Value without type info.
type ValueID uint32

const (
	valueIDInvalid ValueID = math.MaxUint32
	// ValueInvalid is the zero-information Value.
	ValueInvalid Value = Value(valueIDInvalid)
)

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("v%d", v.ID())
}

func (v Value) formatWithType() string {
	return fmt.Sprintf("v%d:%s", v.ID(), v.Type())
}

// Valid returns true if this value is valid.
func (v Value) Valid() bool {
	return v.ID() != valueIDInvalid
}

// Type returns the Type of this value.
func (v Value) Type() Type {
	return Type(v >> 32)
}

// ID returns the ValueID of this value.
func (v Value) ID() ValueID {
	return ValueID(v & 0xffffffff)
}

// setType sets a type of this Value.
func (v Value) setType(typ Type) Value {
	return v | Value(typ)<<32
}
