package backend

import (
	"sort"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

// Liveness holds, per block, the values live on entry to the block.
// Block parameters are defined by the block and are therefore not live-in.
type Liveness struct {
	liveIn []map[ir.ValueID]ir.Value
	// crossBlock holds every value live-in to some block or passed as a block parameter, sorted by ID.
	crossBlock []ir.Value
}

// Compute recomputes the liveness of the function. Blocks are visited backwards
// until the sets stop changing.
func (l *Liveness) Compute(fn ir.Builder) {
	blocks := fn.Blocks()
	l.reset(len(blocks))

	defs := make([]map[ir.ValueID]bool, len(blocks))
	uses := make([]map[ir.ValueID]ir.Value, len(blocks))
	for i, blk := range blocks {
		def, use := map[ir.ValueID]bool{}, map[ir.ValueID]ir.Value{}
		for p := 0; p < blk.Params(); p++ {
			def[blk.Param(p).ID()] = true
		}
		read := func(v ir.Value) {
			if v.Valid() && !def[v.ID()] {
				use[v.ID()] = v
			}
		}
		for cur := blk.Root(); cur != nil; cur = cur.Next() {
			x, y := cur.Arg2()
			read(x)
			read(y)
			for _, v := range cur.Args() {
				read(v)
			}
			if r := cur.Return(); r.Valid() {
				def[r.ID()] = true
			}
		}
		defs[i], uses[i] = def, use
	}

	for changed := true; changed; {
		changed = false
		for i := len(blocks) - 1; i >= 0; i-- {
			blk := blocks[i]
			in := l.liveIn[blk.ID()]
			add := func(v ir.Value) {
				if _, ok := in[v.ID()]; !ok {
					in[v.ID()] = v
					changed = true
				}
			}
			for _, v := range uses[i] {
				add(v)
			}
			for s := 0; s < blk.Succs(); s++ {
				for id, v := range l.liveIn[blk.Succ(s).ID()] {
					if !defs[i][id] {
						add(v)
					}
				}
			}
		}
	}

	seen := map[ir.ValueID]bool{}
	for _, blk := range blocks {
		if !blk.EntryBlock() {
			for p := 0; p < blk.Params(); p++ {
				v := blk.Param(p)
				seen[v.ID()] = true
				l.crossBlock = append(l.crossBlock, v)
			}
		}
		for id, v := range l.liveIn[blk.ID()] {
			if !seen[id] {
				seen[id] = true
				l.crossBlock = append(l.crossBlock, v)
			}
		}
	}
	sortValues(l.crossBlock)
}

func (l *Liveness) reset(n int) {
	l.liveIn = l.liveIn[:0]
	for i := 0; i < n; i++ {
		l.liveIn = append(l.liveIn, map[ir.ValueID]ir.Value{})
	}
	l.crossBlock = l.crossBlock[:0]
}

// LiveIn returns the values live on entry to blk sorted by ID.
func (l *Liveness) LiveIn(blk ir.BasicBlock) []ir.Value {
	in := l.liveIn[blk.ID()]
	ret := make([]ir.Value, 0, len(in))
	for _, v := range in {
		ret = append(ret, v)
	}
	sortValues(ret)
	return ret
}

// IsLiveIn returns true if v is live on entry to blk.
func (l *Liveness) IsLiveIn(blk ir.BasicBlock, v ir.Value) bool {
	_, ok := l.liveIn[blk.ID()][v.ID()]
	return ok
}

// CrossBlock returns the values which flow between blocks sorted by ID:
// the live-ins of every block and the parameters of every block but the entry.
func (l *Liveness) CrossBlock() []ir.Value {
	return l.crossBlock
}

func sortValues(vs []ir.Value) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID() < vs[j].ID() })
}
