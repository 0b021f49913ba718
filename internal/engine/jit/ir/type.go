package ir

// Type is the type of a Value.
type Type byte

const (
	TypeInvalid Type = iota

	// TypeI32 represents an integer type with 32 bits.
	TypeI32

	// TypeI64 represents an integer type with 64 bits. Raw addresses are TypeI64.
	TypeI64

	// TypeF32 represents 32-bit floats in the IEEE 754.
	TypeF32

	// TypeF64 represents 64-bit floats in the IEEE 754.
	TypeF64

	// TypeRef represents a reference to a collected object. Registers holding
	// a TypeRef value at a GC safe point are reported in the GC map.
	TypeRef
)

// String implements fmt.Stringer.
func (t Type) String() (ret string) {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeRef:
		return "ref"
	default:
		panic(int(t))
	}
}

// IsInt returns true if the type is held in a general purpose register.
func (t Type) IsInt() bool {
	return t == TypeI32 || t == TypeI64 || t == TypeRef
}

// IsFloat returns true if the type is held in a floating point register.
func (t Type) IsFloat() bool {
	return t == TypeF32 || t == TypeF64
}

// Bits returns the number of bits required to represent the type.
func (t Type) Bits() byte {
	switch t {
	case TypeI32, TypeF32:
		return 32
	case TypeI64, TypeF64, TypeRef:
		return 64
	default:
		panic(int(t))
	}
}
