package btree

import (
	"github.com/gertrudedb/gertrude/internal/packer"
	"github.com/gertrudedb/gertrude/internal/value"
)

// pathFrame is a (node_id, cursor) pair (spec §4.4 TreePath / GLOSSARY).
type pathFrame struct {
	NodeID int64
	Cursor int
}

// bisect finds the leftmost index in [0,n) at which keyAt(i) no longer
// satisfies "at or before key": strictLess selects bisect_left semantics
// (entries < key advance the search), otherwise bisect_right (entries <=
// key advance it).
func bisect(n int, keyAt func(int) value.Value, key value.Value, strictLess bool) (int, error) {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		c, err := value.Compare(keyAt(mid), key)
		if err != nil {
			return 0, err
		}
		var advance bool
		if strictLess {
			advance = c < 0
		} else {
			advance = c <= 0
		}
		if advance {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

func leafKeyAt(items []packer.LeafItem) func(int) value.Value {
	return func(i int) value.Value { return items[i].Key }
}

func internalKeyAt(items []packer.InternalItem) func(int) value.Value {
	return func(i int) value.Value { return items[i].Key }
}

// leafBisect locates the position within a leaf's entries for key: the
// insertion/locate index (spec §4.4 find_path leaf step).
func leafBisect(items []packer.LeafItem, key value.Value, lowerBound bool) (int, error) {
	return bisect(len(items), leafKeyAt(items), key, lowerBound)
}

// internalDescend picks the child to descend into for key: the floor
// position (largest i with entries[i].Key <= key). Every internal node's
// entries[0].Key is the null sentinel (spec invariant 5), so this never
// returns a negative index for a non-null key.
func internalDescend(items []packer.InternalItem, key value.Value) (int, error) {
	r, err := bisect(len(items), internalKeyAt(items), key, false)
	if err != nil {
		return 0, err
	}
	idx := r - 1
	if idx < 0 {
		idx = 0
	}
	return idx, nil
}

// leafInsertPos is where a newly inserted (key, heap_id) pair goes within
// a leaf: after any existing entries with the same key, so that entries
// sharing a key stay in insertion order (spec invariant 3, §4.4 Insert).
func leafInsertPos(items []packer.LeafItem, key value.Value) (int, error) {
	return bisect(len(items), leafKeyAt(items), key, false)
}
