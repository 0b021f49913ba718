package backend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type testNode struct {
	id         int
	prev, next *testNode
}

func (n *testNode) Prev() *testNode      { return n.prev }
func (n *testNode) Next() *testNode      { return n.next }
func (n *testNode) SetPrev(p *testNode)  { n.prev = p }
func (n *testNode) SetNext(nx *testNode) { n.next = nx }

func formatNodes(s *Stream[*testNode]) string {
	return s.Format(func(n *testNode) string { return fmt.Sprint(n.id) })
}

func newTestStream(ids ...int) *Stream[*testNode] {
	s := &Stream[*testNode]{}
	for _, id := range ids {
		s.Append(&testNode{id: id})
	}
	return s
}

func TestStream(t *testing.T) {
	s := newTestStream(1, 2, 3)
	require.Equal(t, "1\n2\n3", formatNodes(s))
	require.Equal(t, 3, s.Len())

	two := s.Head().Next()
	s.InsertBefore(two, &testNode{id: 10})
	s.InsertAfter(two, &testNode{id: 20})
	s.InsertAfter(nil, &testNode{id: 0})
	require.Equal(t, "0\n1\n10\n2\n20\n3", formatNodes(s))

	s.Remove(s.Head())
	s.Remove(s.Tail())
	s.Remove(two)
	require.Equal(t, "1\n10\n20", formatNodes(s))
	require.Equal(t, 3, s.Len())
	require.Equal(t, 20, s.Tail().id)
	require.Nil(t, s.Tail().Next())
	require.Nil(t, s.Head().Prev())

	s.Reset()
	require.Nil(t, s.Head())
	require.Zero(t, s.Len())
}

func TestCursor(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		s := newTestStream(1, 2, 3)
		var visited []int
		for c := s.Cursor(); c.Next(); {
			n := c.Node()
			visited = append(visited, n.id)
			if n.id == 2 {
				c.InsertBefore(&testNode{id: 100})
				c.InsertAfter(&testNode{id: 200})
			}
		}
		require.Equal(t, []int{1, 2, 200, 3}, visited)
		require.Equal(t, "1\n100\n2\n200\n3", formatNodes(s))
	})
	t.Run("replace", func(t *testing.T) {
		s := newTestStream(1, 2, 3)
		var visited []int
		for c := s.Cursor(); c.Next(); {
			n := c.Node()
			visited = append(visited, n.id)
			switch n.id {
			case 1:
				c.Remove()
			case 2:
				c.Replace(&testNode{id: 21}, &testNode{id: 22})
			}
		}
		require.Equal(t, []int{1, 2, 3}, visited)
		require.Equal(t, "21\n22\n3", formatNodes(s))
	})
	t.Run("remove tail", func(t *testing.T) {
		s := newTestStream(1, 2)
		c := s.Cursor()
		require.True(t, c.Next())
		require.True(t, c.Next())
		c.Remove()
		require.False(t, c.Next())
		require.False(t, c.Next())
		require.Equal(t, "1", formatNodes(s))
	})
}

// TestCursor_rewrite checks that any sequence of rewrites visits each original node exactly once.
func TestCursor_rewrite(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		ids := make([]int, n)
		for i := range ids {
			ids[i] = i
		}
		s := newTestStream(ids...)
		want := append([]int(nil), ids...)

		var visited, remaining []int
		next := 1000
		for c := s.Cursor(); c.Next(); {
			cur := c.Node()
			if cur.id >= 1000 {
				// Nodes inserted after the current one are visited.
				visited = append(visited, cur.id)
				continue
			}
			visited = append(visited, cur.id)
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				c.Remove()
			case 1:
				c.Replace(&testNode{id: -1})
			case 2:
				c.InsertBefore(&testNode{id: -2})
			case 3:
				c.InsertAfter(&testNode{id: next})
				next++
			}
		}
		for _, id := range visited {
			if id < 1000 {
				remaining = append(remaining, id)
			}
		}
		if len(want) == 0 {
			want = nil
		}
		require.Equal(t, want, remaining)

		length := 0
		for cur := s.Head(); cur != nil; cur = cur.Next() {
			length++
		}
		require.Equal(t, s.Len(), length)
	})
}
