package jitapi

import (
	"github.com/pkg/errors"
)

const arenaBlockSize = 64 << 10

// Arena hands out zero-initialized byte blocks whose lifetime is one compilation.
// Blocks are never freed individually; Reset releases everything at once and keeps
// the regular-sized backing storage for the next compilation.
type Arena struct {
	blocks [][]byte
	// large holds the requests bigger than arenaBlockSize. They are dropped on Reset.
	large [][]byte
	// cur is the index of the block currently bump-allocated from, off the next free byte in it.
	cur, off int
	used     int64
	// limit is the maximum of used. Zero means unlimited.
	limit int64
}

// NewArena returns a new Arena that refuses to hand out more than limit bytes in total.
// A zero limit disables the check.
func NewArena(limit int64) *Arena {
	return &Arena{limit: limit}
}

// Allocate returns a zeroed slice of length size.
func (a *Arena) Allocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Errorf("negative arena allocation: %d", size)
	}
	if a.limit > 0 && a.used+int64(size) > a.limit {
		return nil, errors.Wrapf(ErrResourceExhaustion, "arena: allocating %d bytes with %d/%d in use", size, a.used, a.limit)
	}
	a.used += int64(size)

	if size > arenaBlockSize {
		b := make([]byte, size)
		a.large = append(a.large, b)
		return b, nil
	}

	for a.cur < len(a.blocks) {
		if blk := a.blocks[a.cur]; len(blk)-a.off >= size {
			b := blk[a.off : a.off+size : a.off+size]
			a.off += size
			return b, nil
		}
		a.cur++
		a.off = 0
	}
	a.blocks = append(a.blocks, make([]byte, arenaBlockSize))
	a.off = size
	return a.blocks[a.cur][:size:size], nil
}

// Used returns the number of bytes handed out since the last Reset.
func (a *Arena) Used() int64 {
	return a.used
}

// Reset releases every block handed out so far. Reused blocks are zeroed so that
// the next compilation observes zero-initialized memory.
func (a *Arena) Reset() {
	for i := 0; i <= a.cur && i < len(a.blocks); i++ {
		clear(a.blocks[i])
	}
	a.large = nil
	a.cur, a.off, a.used = 0, 0, 0
}
