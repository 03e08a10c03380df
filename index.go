package gertrude

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gertrudedb/gertrude/internal/btree"
	"github.com/gertrudedb/gertrude/internal/cache"
	"github.com/gertrudedb/gertrude/internal/errs"
	"github.com/gertrudedb/gertrude/internal/packer"
	"github.com/gertrudedb/gertrude/internal/value"
)

// Index wraps one table's B+-tree index, adding the insert-time null and
// uniqueness checks the tree itself does not enforce (spec §4.5
// "test_for_insert").
//
// Grounded on the original implementation's Index class
// (gertrude/index.py), adapted onto internal/btree.Tree.
type Index struct {
	Name     string
	Column   string
	Unique   bool
	Nullable bool

	tree *btree.Tree
}

func createIndex(dir string, c *cache.Cache, log *zap.Logger, name, column string, id int64, keyType value.Type, unique, nullable bool, fanout int, pairs []btree.Pair) (*Index, error) {
	if err := validatePairs(pairs, unique, nullable); err != nil {
		return nil, errors.Wrapf(err, "index %q", name)
	}
	if fanout <= 0 {
		fanout = btree.DefaultFanout
	}
	cfg := btree.Config{
		Name:     name,
		Column:   column,
		ColType:  keyType.String(),
		ID:       id,
		Unique:   unique,
		Nullable: nullable,
		Fanout:   fanout,
	}
	tree, err := btree.Create(dir, c, cfg, pairs, log)
	if err != nil {
		return nil, err
	}
	return &Index{Name: name, Column: column, Unique: unique, Nullable: nullable, tree: tree}, nil
}

func openIndex(dir string, c *cache.Cache, log *zap.Logger) (*Index, error) {
	tree, err := btree.Open(dir, c, log)
	if err != nil {
		return nil, err
	}
	cfg := tree.Config()
	return &Index{Name: cfg.Name, Column: cfg.Column, Unique: cfg.Unique, Nullable: cfg.Nullable, tree: tree}, nil
}

// validatePairs checks unique/nullable constraints across a bulk-load set
// (spec §4.4 "Build (bulk load)": "validate unique/nullable constraints"
// before sorting).
func validatePairs(pairs []btree.Pair, unique, nullable bool) error {
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		key := p.Key
		if key.IsNull() {
			if !nullable {
				return errs.ErrNullNotAllowed
			}
			continue
		}
		if unique {
			k := string(key.Raw())
			if seen[k] {
				return errs.ErrUniqueViolation
			}
			seen[k] = true
		}
	}
	return nil
}

// testForInsert enforces null/uniqueness ahead of a heap write (spec §4.5
// "insert: ... test_for_insert(row) ... fail-fast").
func (idx *Index) testForInsert(key value.Value) error {
	if key.IsNull() {
		if !idx.Nullable {
			return errors.Wrapf(errs.ErrNullNotAllowed, "index %q", idx.Name)
		}
		return nil
	}
	if idx.Unique {
		ok, err := idx.tree.Contains(key)
		if err != nil {
			return err
		}
		if ok {
			return errors.Wrapf(errs.ErrUniqueViolation, "index %q", idx.Name)
		}
	}
	return nil
}

func (idx *Index) insert(key value.Value, heapID int64) error {
	return idx.tree.Insert(key, heapID)
}

func (idx *Index) delete(key value.Value, heapID int64) error {
	return idx.tree.Delete(key, heapID)
}

// scanHeapIDs drains the tree's cursor for op/key into a slice, in
// ascending key order (spec §4.4 "Scan" guarantees).
func (idx *Index) scanHeapIDs(op btree.Op, key value.Value) ([]int64, error) {
	cur, err := idx.tree.Scan(op, key)
	if err != nil {
		return nil, err
	}
	var out []int64
	for {
		p, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, p.HeapID)
	}
	return out, nil
}

func (idx *Index) close(c *cache.Cache) {
	c.Unregister(idx.tree.Config().ID)
}

// Dump walks the tree depth-first and writes one line per node -- kind,
// node id, entry count, and first/last key -- followed by a total entry
// count across every leaf (spec §3 "Table.print_index": "walks the
// B+-tree's frames depth-first and writes one line per node").
func (idx *Index) Dump(w io.Writer) error {
	cfg := idx.tree.Config()
	fmt.Fprintf(w, "index %s on %s (fanout=%d, unique=%v, nullable=%v)\n",
		cfg.Name, cfg.Column, cfg.Fanout, cfg.Unique, cfg.Nullable)

	total := 0
	err := idx.tree.WalkNodes(func(n btree.NodeInfo) error {
		if n.Kind == packer.KindLeaf {
			total += n.Entries
		}
		if n.Entries == 0 {
			fmt.Fprintf(w, "  %s node=%d entries=0\n", n.Kind, n.NodeID)
			return nil
		}
		fmt.Fprintf(w, "  %s node=%d entries=%d first=%v last=%v\n",
			n.Kind, n.NodeID, n.Entries, n.FirstKey.Native(), n.LastKey.Native())
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d total entries\n", total)
	return nil
}
