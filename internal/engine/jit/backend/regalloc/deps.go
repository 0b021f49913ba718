package regalloc

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DependencyKind distinguishes how a Dependency relates to the register it names.
type DependencyKind byte

const (
	// DependencyUse means the virtual register must be in the real register when the instruction reads it.
	DependencyUse DependencyKind = iota
	// DependencyDef means the instruction leaves the virtual register in the real register.
	DependencyDef
	// DependencyKill means the instruction clobbers the real register. V is VRegInvalid.
	DependencyKill
)

// String implements fmt.Stringer.
func (k DependencyKind) String() string {
	switch k {
	case DependencyUse:
		return "use"
	case DependencyDef:
		return "def"
	case DependencyKill:
		return "kill"
	default:
		panic(int(k))
	}
}

// Dependency pins V to one of Regs at a program point.
type Dependency struct {
	V    VReg
	Regs RegSet
	Kind DependencyKind
	// Alias allows Regs to overlap with the registers of the opposite condition list,
	// e.g. a call whose result register is also an argument register.
	Alias bool
}

// DependencyConditions are the register constraints attached to one instruction.
// Pre-conditions must hold immediately before the instruction, post-conditions immediately after.
// Both lists have the capacity given at creation, which is never exceeded.
type DependencyConditions struct {
	pre, post []Dependency
}

// NewDependencyConditions returns DependencyConditions able to hold numPre pre-conditions and numPost post-conditions.
func NewDependencyConditions(numPre, numPost int) *DependencyConditions {
	return &DependencyConditions{
		pre:  make([]Dependency, 0, numPre),
		post: make([]Dependency, 0, numPost),
	}
}

// Pre returns the pre-conditions.
func (d *DependencyConditions) Pre() []Dependency {
	return d.pre
}

// Post returns the post-conditions.
func (d *DependencyConditions) Post() []Dependency {
	return d.post
}

// AddPre requires v to be in r right before the instruction.
func (d *DependencyConditions) AddPre(v VReg, r RealReg) {
	d.AddPreSet(v, NewRegSet(r))
}

// AddPreSet requires v to be in any register of rs right before the instruction.
func (d *DependencyConditions) AddPreSet(v VReg, rs RegSet) {
	d.pre = add(d.pre, Dependency{V: v, Regs: rs, Kind: DependencyUse})
}

// AddPost states that the instruction leaves v in r.
func (d *DependencyConditions) AddPost(v VReg, r RealReg) {
	d.post = add(d.post, Dependency{V: v, Regs: NewRegSet(r), Kind: DependencyDef})
}

// AddPostAlias is AddPost for a register which may also appear in the pre-conditions.
func (d *DependencyConditions) AddPostAlias(v VReg, r RealReg) {
	d.post = add(d.post, Dependency{V: v, Regs: NewRegSet(r), Kind: DependencyDef, Alias: true})
}

// AddKill states that the instruction clobbers every register of rs.
// A killed register may be read by the instruction, so it aliases the pre-conditions.
func (d *DependencyConditions) AddKill(rs RegSet) {
	d.post = add(d.post, Dependency{V: VRegInvalid, Regs: rs, Kind: DependencyKill, Alias: true})
}

func add(list []Dependency, dep Dependency) []Dependency {
	if len(list) == cap(list) {
		panic(fmt.Sprintf("BUG: dependency conditions overflow (capacity %d)", cap(list)))
	}
	return append(list, dep)
}

// Names returns true if v is named by a pre-condition.
func (d *DependencyConditions) Names(v VRegID) bool {
	for _, dep := range d.pre {
		if dep.V.ID() == v {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of the conditions and returns every violation found.
func (d *DependencyConditions) Validate(info *RegisterInfo) error {
	var result *multierror.Error
	check := func(name string, list []Dependency, wantKind func(DependencyKind) bool) {
		seen := map[VRegID]bool{}
		var regs RegSet
		for _, dep := range list {
			if !wantKind(dep.Kind) {
				result = multierror.Append(result, errors.Errorf("%s-condition of kind %s", name, dep.Kind))
			}
			if dep.Regs.Empty() {
				result = multierror.Append(result, errors.Errorf("%s-condition on %s accepts no register", name, dep.V))
			}
			if dep.Kind != DependencyKill {
				if seen[dep.V.ID()] {
					result = multierror.Append(result, errors.Errorf("%s named twice in %s-conditions", dep.V, name))
				}
				seen[dep.V.ID()] = true
				dep.Regs.Range(func(r RealReg) {
					if info.RealRegType(r) != dep.V.RegType() {
						result = multierror.Append(result, errors.Errorf("%s cannot live in %s", dep.V, info.RealRegName(r)))
					}
				})
			}
			if overlap := regs.Intersect(dep.Regs); !overlap.Empty() {
				result = multierror.Append(result, errors.Errorf("%s-conditions share %s", name, overlap.Format(info)))
			}
			regs = regs.Union(dep.Regs)
		}
	}
	check("pre", d.pre, func(k DependencyKind) bool { return k == DependencyUse })
	check("post", d.post, func(k DependencyKind) bool { return k != DependencyUse })

	for _, p := range d.pre {
		for _, q := range d.post {
			if p.Alias || q.Alias {
				continue
			}
			if overlap := p.Regs.Intersect(q.Regs); !overlap.Empty() {
				result = multierror.Append(result, errors.Errorf("%s and %s share %s without alias", p.V, q.V, overlap.Format(info)))
			}
		}
	}
	return result.ErrorOrNil()
}

// SatisfiedBy checks a proposed assignment. before and after return the real register
// holding a virtual register right before and right after the instruction.
func (d *DependencyConditions) SatisfiedBy(info *RegisterInfo, before, after func(VReg) RealReg) error {
	var result *multierror.Error
	for _, dep := range d.pre {
		if r := before(dep.V); !dep.Regs.Has(r) {
			result = multierror.Append(result, errors.Errorf("%s is in %s before, want %s", dep.V, info.RealRegName(r), dep.Regs.Format(info)))
		}
	}
	for _, dep := range d.post {
		if dep.Kind != DependencyDef {
			continue
		}
		if r := after(dep.V); !dep.Regs.Has(r) {
			result = multierror.Append(result, errors.Errorf("%s is in %s after, want %s", dep.V, info.RealRegName(r), dep.Regs.Format(info)))
		}
	}
	return result.ErrorOrNil()
}

// Format returns the human-readable form of the conditions.
func (d *DependencyConditions) Format(info *RegisterInfo) string {
	format := func(list []Dependency) string {
		strs := make([]string, len(list))
		for i, dep := range list {
			if dep.Kind == DependencyKill {
				strs[i] = "kill " + dep.Regs.Format(info)
			} else {
				strs[i] = fmt.Sprintf("%s:%s", dep.V, dep.Regs.Format(info))
			}
		}
		return strings.Join(strs, " ")
	}
	return fmt.Sprintf("pre[%s] post[%s]", format(d.pre), format(d.post))
}
