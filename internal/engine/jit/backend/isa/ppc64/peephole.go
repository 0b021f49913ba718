package ppc64

// Peephole implements backend.Machine.
func (m *machine) Peephole() error {
	c := m.stream.Cursor()
	for c.Next() {
		i := c.Node()
		switch {
		case (i.kind == mr || i.kind == fmr) && i.rd == i.rn:
			c.Remove()
		case i.kind == br && fallsInto(i):
			c.Remove()
		}
	}
	return nil
}

// fallsInto returns true if the target of the branch is reached by falling through it.
func fallsInto(b *instruction) bool {
	for i := b.next; i != nil && i.kind == nop0; i = i.next {
		if i.target == b.target {
			return true
		}
	}
	return false
}
