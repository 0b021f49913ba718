package regalloc

import (
	"fmt"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// VReg represents a register which is assigned to an IR value. This is used to represent a register in the backend.
// A VReg may or may not be a physical register, and the info of physical register can be obtained by RealReg.
// Note that a VReg can be defined more than once (block parameters, spill reloads), that means
// in the backend, we loosen the assumption of SSA.
//
// The lower 32 bits are the VRegID, bits 32-39 hold the assigned RealReg and bits 40-47 the RegType.
type VReg uint64

// VRegID is the lower 32bit of VReg, which is the pure identifier of VReg without RealReg info.
type VRegID uint32

// RealReg returns the RealReg of this VReg.
func (v VReg) RealReg() RealReg {
	return RealReg(v >> 32)
}

// IsRealReg returns true if this VReg is backed by a physical register.
func (v VReg) IsRealReg() bool {
	return v.RealReg() != RealRegInvalid
}

// SetRealReg sets the RealReg of this VReg and returns the updated VReg.
func (v VReg) SetRealReg(r RealReg) VReg {
	return VReg(r)<<32 | v&^(0xff<<32)
}

// RegType returns the RegType of this VReg.
func (v VReg) RegType() RegType {
	return RegType(v >> 40)
}

// SetRegType sets the RegType of this VReg and returns the updated VReg.
func (v VReg) SetRegType(t RegType) VReg {
	return VReg(t)<<40 | v&^(0xff<<40)
}

// ID returns the VRegID of this VReg.
func (v VReg) ID() VRegID {
	return VRegID(v & 0xffffffff)
}

// Valid returns true if this VReg is Valid.
func (v VReg) Valid() bool {
	return v.ID() != vRegIDInvalid && v.RegType() != RegTypeInvalid
}

// FromRealReg returns a VReg which is pinned to the given RealReg from its creation.
// Such VRegs share the VRegID space below VRegIDNonReservedBegin.
func FromRealReg(r RealReg, typ RegType) VReg {
	return VReg(r).SetRealReg(r).SetRegType(typ)
}

// RealReg represents a physical register.
type RealReg byte

const RealRegInvalid RealReg = 0

const (
	vRegIDInvalid VRegID = 1 << 31
	// VRegIDNonReservedBegin is the first VRegID handed out to virtual registers.
	// IDs below it are reserved for the registers created by FromRealReg.
	VRegIDNonReservedBegin VRegID = 128
	// VRegInvalid is the invalid VReg.
	VRegInvalid = VReg(vRegIDInvalid)
)

// String implements fmt.Stringer.
func (v VReg) String() string {
	if v.IsRealReg() {
		return fmt.Sprintf("r%d", v.RealReg())
	}
	return fmt.Sprintf("v%d?", v.ID())
}

// RegType represents the type of a register.
type RegType byte

const (
	RegTypeInvalid RegType = iota
	RegTypeInt
	RegTypeFloat
	NumRegType
)

// String implements fmt.Stringer.
func (r RegType) String() string {
	switch r {
	case RegTypeInt:
		return "int"
	case RegTypeFloat:
		return "float"
	default:
		return "invalid"
	}
}

// RegTypeOf returns the RegType of the given ir.Type.
func RegTypeOf(p ir.Type) RegType {
	switch p {
	case ir.TypeI32, ir.TypeI64, ir.TypeRef:
		return RegTypeInt
	case ir.TypeF32, ir.TypeF64:
		return RegTypeFloat
	default:
		panic(p)
	}
}
