package jit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend/regalloc"
	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/ir"
)

const (
	magic = "OMRJIT"
	// artifactVersion must be bumped whenever the layout of the artifact or of the generated code changes.
	artifactVersion byte = 1
)

// moduleID computes the cache key of m compiled under cfg.
func moduleID(cfg *Config, m *Module) ModuleID {
	h := sha256.New()
	fmt.Fprintf(h, "%s%d\x00%s\x00aot=%v spill=%d stack=%d\x00%s\x00",
		magic, artifactVersion, cfg.Arch, cfg.AOT, cfg.MaxSpillSlots, cfg.StackLimitOffset, m.Name)
	for _, fn := range m.Functions {
		sig := fn.Signature()
		fmt.Fprintf(h, "%s%v%v\x00%s\x00", fn.Name(), sig.Params, sig.Result, fn.Format())
	}
	var id ModuleID
	h.Sum(id[:0])
	return id
}

func (e *Engine) getCompiledModuleFromCache(id ModuleID) (cm *CompiledModule, hit bool) {
	content, ok, err := e.fileCache.Get(id)
	if err != nil {
		glog.Warningf("reading cached module %x: %v", id[:8], err)
		return nil, false
	} else if !ok {
		return nil, false
	}
	defer content.Close()

	cm, err = deserializeCompiledModule(id, content)
	if err != nil {
		// Stale or corrupted: recompiled and replaced.
		glog.Warningf("dropping cached module %x: %v", id[:8], err)
		if err := e.fileCache.Delete(id); err != nil {
			glog.Warningf("deleting cached module %x: %v", id[:8], err)
		}
		return nil, false
	}
	return cm, true
}

func (e *Engine) addCompiledModuleToCache(cm *CompiledModule) {
	if err := e.fileCache.Add(cm.ID, serializeCompiledModule(cm)); err != nil {
		glog.Warningf("caching module %x: %v", cm.ID[:8], err)
	}
}

// serializeCompiledModule encodes cm as
//
//	magic, version, count:u32, then per function:
//	  id[16], name, base:u64, code,
//	  nrelocs:u32, (kind:u8, nsites:u32, sites:i64..., symkind:u8, symname, addend:i64)...
//	  ngc:u32, (offset:i64, regs:[4]u64, nslots:u32, slots:i64...)...
//
// Strings and byte slices are prefixed by their u32 length. Integers are little endian.
func serializeCompiledModule(cm *CompiledModule) io.Reader {
	buf := bytes.NewBuffer(nil)
	buf.WriteString(magic)
	buf.WriteByte(artifactVersion)
	w := func(v any) {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	bs := func(b []byte) {
		w(uint32(len(b)))
		buf.Write(b)
	}

	w(uint32(len(cm.Functions)))
	for _, f := range cm.Functions {
		buf.Write(f.ID[:])
		bs([]byte(f.Name))
		w(f.Base)
		bs(f.Code)

		w(uint32(len(f.Relocations)))
		for _, r := range f.Relocations {
			w(byte(r.Kind))
			w(uint32(len(r.Sites)))
			w(r.Sites)
			w(byte(r.Symbol.Kind))
			bs([]byte(r.Symbol.Name))
			w(r.Addend)
		}

		w(uint32(len(f.GCMap)))
		for _, g := range f.GCMap {
			w(g.Offset)
			w([4]uint64(g.Registers))
			w(uint32(len(g.StackOffsets)))
			w(g.StackOffsets)
		}
	}
	return buf
}

// artifactReader decodes the fields of an artifact, keeping the first error.
type artifactReader struct {
	r   io.Reader
	err error
}

func (a *artifactReader) read(v any) {
	if a.err == nil {
		a.err = binary.Read(a.r, binary.LittleEndian, v)
	}
}

func (a *artifactReader) u32() uint32 {
	var v uint32
	a.read(&v)
	return v
}

func (a *artifactReader) bytes(limit uint32) []byte {
	n := a.u32()
	if a.err != nil {
		return nil
	}
	if n > limit {
		a.err = errors.Errorf("length %d exceeds %d", n, limit)
		return nil
	}
	b := make([]byte, n)
	_, a.err = io.ReadFull(a.r, b)
	return b
}

// maxLength bounds every decoded length so that a corrupted artifact cannot exhaust memory.
const maxLength = 1 << 26

func (a *artifactReader) count() int {
	n := a.u32()
	if a.err == nil && n > maxLength/8 {
		a.err = errors.Errorf("count %d exceeds %d", n, maxLength/8)
	}
	if a.err != nil {
		return 0
	}
	return int(n)
}

func deserializeCompiledModule(id ModuleID, r io.Reader) (*CompiledModule, error) {
	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if string(header[:len(magic)]) != magic {
		return nil, errors.Errorf("invalid magic %q", header[:len(magic)])
	}
	if v := header[len(magic)]; v != artifactVersion {
		return nil, errors.Errorf("artifact version %d, want %d", v, artifactVersion)
	}

	a := &artifactReader{r: r}
	cm := &CompiledModule{ID: id, Functions: make([]*backend.CompiledCode, a.count())}
	for i := range cm.Functions {
		f := &backend.CompiledCode{}
		a.read(&f.ID)
		f.Name = string(a.bytes(maxLength))
		a.read(&f.Base)
		f.Code = a.bytes(maxLength)

		f.Relocations = make([]backend.Relocation, a.count())
		for j := range f.Relocations {
			rel := &f.Relocations[j]
			var kind byte
			a.read(&kind)
			rel.Kind = backend.RelocationKind(kind)
			if a.err == nil && rel.Kind > backend.RelocClassAddress {
				a.err = errors.Errorf("invalid relocation kind %d", kind)
			}
			n := a.count()
			if a.err == nil && n == 0 {
				a.err = errors.New("relocation without site")
			}
			rel.Sites = make([]int64, n)
			a.read(rel.Sites)
			var symKind byte
			a.read(&symKind)
			rel.Symbol = ir.SymbolRef{Kind: ir.SymbolKind(symKind), Name: string(a.bytes(maxLength))}
			if a.err == nil && rel.Symbol.Kind > ir.SymbolClass {
				a.err = errors.Errorf("invalid symbol kind %d", symKind)
			}
			a.read(&rel.Addend)
		}

		if n := a.count(); n > 0 {
			f.GCMap = make([]backend.GCMapEntry, n)
		}
		for j := range f.GCMap {
			g := &f.GCMap[j]
			a.read(&g.Offset)
			var regs [4]uint64
			a.read(&regs)
			g.Registers = regalloc.RegSet(regs)
			if n := a.count(); n > 0 {
				g.StackOffsets = make([]int64, n)
				a.read(g.StackOffsets)
			}
		}
		if a.err != nil {
			return nil, errors.Wrapf(a.err, "decoding function %d", i)
		}
		cm.Functions[i] = f
	}
	if a.err != nil {
		return nil, a.err
	}
	return cm, nil
}
