package btree

import "github.com/gertrudedb/gertrude/internal/value"

// chooseSplit picks the split index for a node with n entries whose keys
// are given by keyAt, starting from fanout/2 and widening outward for the
// nearest boundary where the key changes (spec §4.4 "Split policy
// (duplicate-safe)"). It falls back to the exact midpoint when every
// entry shares one key (mono-key node) -- the invariant about not
// splitting a duplicate run cannot be maintained then.
func chooseSplit(n int, keyAt func(int) value.Value) int {
	mid := n / 2
	if mid == 0 {
		mid = 1
	}
	isBoundary := func(i int) bool {
		if i <= 0 || i >= n {
			return false
		}
		c, err := value.Compare(keyAt(i), keyAt(i-1))
		return err == nil && c != 0
	}
	if isBoundary(mid) {
		return mid
	}
	for d := 1; d < n; d++ {
		left, right := mid-d, mid+d
		leftOK, rightOK := isBoundary(left), isBoundary(right)
		switch {
		case leftOK:
			return left
		case rightOK:
			return right
		}
		if left <= 0 && right >= n {
			break
		}
	}
	return mid
}
