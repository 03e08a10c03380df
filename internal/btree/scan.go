package btree

import (
	"github.com/gertrudedb/gertrude/internal/packer"
	"github.com/gertrudedb/gertrude/internal/value"
)

// Cursor is the stateful scan iterator described in spec §4.4 "Scan": a
// stack of (node_id, cursor) frames, advanced by popping the top frame.
type Cursor struct {
	tree   *Tree
	frames []pathFrame
	op     Op
	bound  value.Value
}

// Scan starts a cursor per spec §4.4:
//   - no op, <, <=: begin at the leftmost leaf.
//   - >=, >, =: begin at find_path(key, lower_bound = op != '>').
func (t *Tree) Scan(op Op, key value.Value) (*Cursor, error) {
	c := &Cursor{tree: t, op: op, bound: key}

	switch op {
	case OpNone, OpLt, OpLe:
		c.frames = []pathFrame{{NodeID: 0, Cursor: 0}}
	case OpGe, OpGt, OpEq:
		path, err := t.descend(key, op != OpGt)
		if err != nil {
			return nil, err
		}
		// Ancestor frames recorded the child index already descended
		// into; resuming must continue at the following child.
		for i := 0; i < len(path)-1; i++ {
			path[i].Cursor++
		}
		c.frames = path
	default:
		c.frames = nil
	}
	return c, nil
}

// Next yields the next (key, heap_id) pair in ascending key order, or
// ok=false once the scan is exhausted or its predicate fails (spec §4.4
// "Guarantees").
func (c *Cursor) Next() (Pair, bool, error) {
	for len(c.frames) > 0 {
		top := c.frames[len(c.frames)-1]
		n, err := c.tree.get(int(top.NodeID))
		if err != nil {
			return Pair{}, false, err
		}

		if n.Kind == packer.KindLeaf {
			if top.Cursor >= len(n.Leaves) {
				c.frames = c.frames[:len(c.frames)-1]
				continue
			}
			item := n.Leaves[top.Cursor]
			stop, err := c.terminates(item.Key)
			if err != nil {
				return Pair{}, false, err
			}
			if stop {
				c.frames = nil
				return Pair{}, false, nil
			}
			c.frames[len(c.frames)-1].Cursor++
			return Pair{Key: item.Key, HeapID: item.HeapID}, true, nil
		}

		if top.Cursor >= len(n.Internals) {
			c.frames = c.frames[:len(c.frames)-1]
			continue
		}
		child := n.Internals[top.Cursor].ChildID
		c.frames[len(c.frames)-1].Cursor++
		c.frames = append(c.frames, pathFrame{NodeID: child, Cursor: 0})
	}
	return Pair{}, false, nil
}

func (c *Cursor) terminates(k value.Value) (bool, error) {
	switch c.op {
	case OpEq:
		return !value.Equal(k, c.bound), nil
	case OpLt:
		cmp, err := value.Compare(k, c.bound)
		if err != nil {
			return false, err
		}
		return cmp >= 0, nil
	case OpLe:
		cmp, err := value.Compare(k, c.bound)
		if err != nil {
			return false, err
		}
		return cmp > 0, nil
	default:
		return false, nil
	}
}
