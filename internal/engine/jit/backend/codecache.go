package backend

import (
	"sync"

	"github.com/docker/go-units"
	"github.com/google/btree"
	"github.com/pkg/errors"
)

// CodeCache hands out segments of the address range executable code is placed at.
// It is shared by concurrent compilations.
type CodeCache struct {
	mu         sync.Mutex
	base, size uint64
	// top is the end of the highest segment, used the bytes held by segments.
	top, used uint64
	// free holds the released extents below top, coalesced.
	free *btree.BTreeG[extent]
}

// extent is a free range [start, start+size) of offsets in the cache.
type extent struct {
	start, size uint64
}

// NewCodeCache returns a CodeCache covering [base, base+size).
func NewCodeCache(base, size uint64) *CodeCache {
	return &CodeCache{
		base: base,
		size: size,
		free: btree.NewG[extent](8, func(a, b extent) bool { return a.start < b.start }),
	}
}

// Reserve carves a segment of size bytes, rounded up to and aligned on 16 bytes.
// The lowest released extent large enough is reused first.
func (c *CodeCache) Reserve(size uint64) (*CodeSegment, error) {
	size = uint64(AlignUp(int64(size), 16))
	c.mu.Lock()
	defer c.mu.Unlock()

	var fit extent
	c.free.Ascend(func(e extent) bool {
		if e.size >= size {
			fit = e
			return false
		}
		return true
	})

	var start uint64
	if fit.size != 0 {
		c.free.Delete(fit)
		if fit.size > size {
			c.free.ReplaceOrInsert(extent{start: fit.start + size, size: fit.size - size})
		}
		start = fit.start
	} else {
		if c.top+size > c.size {
			return nil, errors.Wrapf(ErrResourceExhaustion, "code cache full: %s of %s used, %s requested",
				units.BytesSize(float64(c.used)), units.BytesSize(float64(c.size)), units.BytesSize(float64(size)))
		}
		start = c.top
		c.top += size
	}
	c.used += size
	return &CodeSegment{cache: c, base: c.base + start, limit: size}, nil
}

// Used returns the number of bytes held by segments.
func (c *CodeCache) Used() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// release gives [start, start+size) back to the cache.
func (c *CodeCache) release(start, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used -= size

	e := extent{start: start, size: size}
	var prev extent
	c.free.DescendLessOrEqual(e, func(p extent) bool {
		prev = p
		return false
	})
	if prev.size != 0 && prev.start+prev.size == e.start {
		c.free.Delete(prev)
		e = extent{start: prev.start, size: prev.size + e.size}
	}
	if next, ok := c.free.Get(extent{start: e.start + e.size}); ok {
		c.free.Delete(next)
		e.size += next.size
	}
	if e.start+e.size == c.top {
		c.top = e.start
		return
	}
	c.free.ReplaceOrInsert(e)
}

// CodeSegment is a reservation of a CodeCache owned by one compilation.
type CodeSegment struct {
	cache             *CodeCache
	base, limit, used uint64
}

// Allocate returns the address of size bytes of the segment, aligned to 16 bytes.
func (s *CodeSegment) Allocate(size uint64) (uint64, error) {
	start := uint64(AlignUp(int64(s.used), 16))
	if start+size > s.limit {
		return 0, errors.Wrapf(ErrResourceExhaustion, "code segment of %s cannot hold %s",
			units.BytesSize(float64(s.limit)), units.BytesSize(float64(size)))
	}
	s.used = start + size
	return s.base + start, nil
}

// Base returns the address of the segment.
func (s *CodeSegment) Base() uint64 {
	return s.base
}

// Size returns the number of bytes the segment holds in its cache.
func (s *CodeSegment) Size() uint64 {
	return s.limit
}

// Trim gives the unallocated tail of the segment back to its cache.
func (s *CodeSegment) Trim() {
	keep := uint64(AlignUp(int64(s.used), 16))
	if keep < s.limit {
		s.cache.release(s.base-s.cache.base+keep, s.limit-keep)
		s.limit = keep
	}
}

// Release gives the whole segment back to its cache. Nothing can be allocated in it afterwards.
func (s *CodeSegment) Release() {
	if s.limit > 0 {
		s.cache.release(s.base-s.cache.base, s.limit)
	}
	s.limit, s.used = 0, 0
}
