package backend

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ConstantType is the type of a constant pool entry.
type ConstantType byte

const (
	// ConstantAddress is an address literal, patched as an unsigned bit pattern.
	ConstantAddress ConstantType = iota
	// ConstantFloat is a float32 stored as its IEEE-754 bits.
	ConstantFloat
	// ConstantDouble is a float64 stored as its IEEE-754 bits.
	ConstantDouble
)

// String implements fmt.Stringer.
func (t ConstantType) String() string {
	switch t {
	case ConstantAddress:
		return "address"
	case ConstantFloat:
		return "float"
	case ConstantDouble:
		return "double"
	default:
		panic(int(t))
	}
}

// ConstantSlotSize is the size of each pool entry.
const ConstantSlotSize = 8

// ConstantEntry is a distinct (value, type) pair of the pool.
type ConstantEntry[I any] struct {
	// Value holds the bits of the constant: the address, or math.Float32bits / math.Float64bits.
	Value uint64
	Type  ConstantType
	// Groups lists the instruction groups materializing the address of this entry.
	Groups [][]I
	// Offset is the position of the entry from the start of the code buffer, known after Layout.
	Offset int64
}

// String implements fmt.Stringer.
func (e *ConstantEntry[I]) String() string {
	switch e.Type {
	case ConstantFloat:
		return fmt.Sprintf("float %v", math.Float32frombits(uint32(e.Value)))
	case ConstantDouble:
		return fmt.Sprintf("double %v", math.Float64frombits(e.Value))
	default:
		return fmt.Sprintf("address %#x", e.Value)
	}
}

// ConstantPatcher rewrites a requestor group once the address of its entry is known.
type ConstantPatcher[I any] interface {
	// PatchGroup makes the group materialize addr.
	PatchGroup(group []I, addr uint64) error
}

type constantKey struct {
	value uint64
	typ   ConstantType
}

// ConstantPool is the deduplicated table of literals of one compilation.
type ConstantPool[I any] struct {
	entries []*ConstantEntry[I]
	index   map[constantKey]*ConstantEntry[I]
	// groupSize returns the number of instructions cooperating to materialize the address of an entry.
	groupSize func(ConstantType) int
	start     int64
}

// NewConstantPool returns an empty ConstantPool.
func NewConstantPool[I any](groupSize func(ConstantType) int) *ConstantPool[I] {
	return &ConstantPool[I]{index: map[constantKey]*ConstantEntry[I]{}, groupSize: groupSize}
}

// Request records group as a requestor of the constant, creating the entry on first request.
// A group whose size is not a multiple of the architecture group size is a selector defect.
func (p *ConstantPool[I]) Request(value uint64, typ ConstantType, group []I) (*ConstantEntry[I], error) {
	if n := p.groupSize(typ); len(group) == 0 || len(group)%n != 0 {
		return nil, errors.Wrapf(ErrInternalConsistency,
			"requestor group of %d instructions for %s constant %#x, want a multiple of %d", len(group), typ, value, n)
	}
	key := constantKey{value: value, typ: typ}
	e, ok := p.index[key]
	if !ok {
		e = &ConstantEntry[I]{Value: value, Type: typ}
		p.index[key] = e
		p.entries = append(p.entries, e)
	}
	e.Groups = append(e.Groups, group)
	return e, nil
}

// Entries returns the entries in first-request order.
func (p *ConstantPool[I]) Entries() []*ConstantEntry[I] {
	return p.entries
}

// Layout assigns the entry offsets from start aligned to 16 bytes, and returns the end offset.
func (p *ConstantPool[I]) Layout(start int64) int64 {
	if len(p.entries) == 0 {
		p.start = start
		return start
	}
	p.start = AlignUp(start, 16)
	for i, e := range p.entries {
		e.Offset = p.start + int64(i)*ConstantSlotSize
	}
	return p.start + int64(len(p.entries))*ConstantSlotSize
}

// Start returns the offset of the first entry, known after Layout.
func (p *ConstantPool[I]) Start() int64 {
	return p.start
}

// Emit writes the entries into code at their offsets.
func (p *ConstantPool[I]) Emit(code []byte) {
	for _, e := range p.entries {
		slot := code[e.Offset : e.Offset+ConstantSlotSize]
		if e.Type == ConstantFloat {
			binary.LittleEndian.PutUint32(slot, uint32(e.Value))
			clear(slot[4:])
		} else {
			binary.LittleEndian.PutUint64(slot, e.Value)
		}
	}
}

// Patch rewrites every requestor group given the absolute address of the code buffer.
func (p *ConstantPool[I]) Patch(base uint64, patcher ConstantPatcher[I]) error {
	for _, e := range p.entries {
		addr := base + uint64(e.Offset)
		for _, g := range e.Groups {
			if err := patcher.PatchGroup(g, addr); err != nil {
				return errors.WithMessagef(err, "patching %s", e)
			}
		}
	}
	return nil
}

// Reset clears the pool for the next compilation.
func (p *ConstantPool[I]) Reset() {
	p.entries = p.entries[:0]
	clear(p.index)
	p.start = 0
}
