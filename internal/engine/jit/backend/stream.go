package backend

import "strings"

// Node is an element of a Stream. The links are owned by the Stream and must only be
// changed through it.
type Node[I any] interface {
	comparable
	Prev() I
	Next() I
	SetPrev(I)
	SetNext(I)
}

// Stream is a doubly linked list of instructions. Insertion and removal are O(1) and
// never change the identity of the other nodes.
type Stream[I Node[I]] struct {
	head, tail I
	len        int
}

// Head returns the first node, or the zero value if empty.
func (s *Stream[I]) Head() I {
	return s.head
}

// Tail returns the last node, or the zero value if empty.
func (s *Stream[I]) Tail() I {
	return s.tail
}

// Len returns the number of nodes.
func (s *Stream[I]) Len() int {
	return s.len
}

// Reset empties the stream without touching the nodes.
func (s *Stream[I]) Reset() {
	var zero I
	s.head, s.tail, s.len = zero, zero, 0
}

// Append inserts i at the tail.
func (s *Stream[I]) Append(i I) {
	s.InsertAfter(s.tail, i)
}

// InsertAfter inserts i right after at. A zero at inserts i at the head.
func (s *Stream[I]) InsertAfter(at, i I) {
	var zero I
	s.len++
	if at == zero {
		i.SetPrev(zero)
		i.SetNext(s.head)
		if s.head != zero {
			s.head.SetPrev(i)
		} else {
			s.tail = i
		}
		s.head = i
		return
	}
	next := at.Next()
	i.SetPrev(at)
	i.SetNext(next)
	at.SetNext(i)
	if next != zero {
		next.SetPrev(i)
	} else {
		s.tail = i
	}
}

// InsertBefore inserts i right before at.
func (s *Stream[I]) InsertBefore(at, i I) {
	s.InsertAfter(at.Prev(), i)
}

// Remove unlinks i from the stream.
func (s *Stream[I]) Remove(i I) {
	var zero I
	prev, next := i.Prev(), i.Next()
	if prev != zero {
		prev.SetNext(next)
	} else {
		s.head = next
	}
	if next != zero {
		next.SetPrev(prev)
	} else {
		s.tail = prev
	}
	i.SetPrev(zero)
	i.SetNext(zero)
	s.len--
}

// Cursor returns a Cursor positioned before the head.
func (s *Stream[I]) Cursor() *Cursor[I] {
	return &Cursor[I]{s: s}
}

// Format returns the stream one node per line.
func (s *Stream[I]) Format(format func(I) string) string {
	var zero I
	var strs []string
	for cur := s.head; cur != zero; cur = cur.Next() {
		if str := format(cur); str != "" {
			strs = append(strs, str)
		}
	}
	return strings.Join(strs, "\n")
}

// Cursor walks a Stream in list order while the stream is rewritten around the current node.
//
//	for c := s.Cursor(); c.Next(); {
//		i := c.Node()
//		...
//	}
type Cursor[I Node[I]] struct {
	s *Stream[I]
	// cur is the node returned by Node. pos is the node the walk continues after;
	// the zero value means the head.
	cur, pos I
	done     bool
}

// Next advances to the next node and returns false once the stream is exhausted.
func (c *Cursor[I]) Next() bool {
	var zero I
	if c.done {
		return false
	}
	n := c.s.head
	if c.pos != zero {
		n = c.pos.Next()
	}
	c.cur, c.pos = n, n
	if n == zero {
		c.done = true
		return false
	}
	return true
}

// Node returns the current node.
func (c *Cursor[I]) Node() I {
	return c.cur
}

// InsertAfter splices i right after the current node. It is visited next.
func (c *Cursor[I]) InsertAfter(i I) {
	c.s.InsertAfter(c.cur, i)
}

// InsertBefore splices i right before the current node. It is not visited.
func (c *Cursor[I]) InsertBefore(i I) {
	c.s.InsertBefore(c.cur, i)
}

// Remove removes the current node. The walk resumes with its successor.
func (c *Cursor[I]) Remove() {
	c.Replace()
}

// Replace replaces the current node with nodes, in order. The replacements are
// not visited: the walk resumes after the last of them.
func (c *Cursor[I]) Replace(nodes ...I) {
	at := c.cur
	for _, n := range nodes {
		c.s.InsertAfter(at, n)
		at = n
	}
	if at == c.cur {
		at = c.cur.Prev()
	}
	c.s.Remove(c.cur)
	c.pos = at
}
