// Package heap implements the content-addressed row heap (spec §4.2):
// write-once row blobs addressed by a HeapID, sharded two levels deep
// under the table's data directory. Grounded on the teacher's
// content-addressed global heap (internal/structures/globalheap.go,
// global_heap_write.go) -- both store opaque, independently addressable
// blobs under a directory the caller owns, written once and read by id.
package heap

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/heapid"
	"github.com/gertrudedb/gertrude/internal/packer"
	"github.com/gertrudedb/gertrude/internal/utils"
	"github.com/gertrudedb/gertrude/internal/value"
)

// Write serializes a row and persists it under a freshly generated,
// collision-free HeapID beneath root. The heap never rewrites an existing
// path; callers update via delete+write (spec §4.2, §3 "Heap files are
// write-once").
func Write(root string, row []value.Value) (heapid.ID, error) {
	encoded := packer.EncodeRow(row)
	data := utils.GetBuffer(len(encoded))
	copy(data, encoded)
	defer utils.ReleaseBuffer(data)

	for {
		id, err := heapid.Generate()
		if err != nil {
			return 0, err
		}
		target := filepath.Join(root, id.Path())
		if _, err := os.Stat(target); err == nil {
			continue // collision, try another id
		} else if !os.IsNotExist(err) {
			return 0, errors.Wrapf(err, "heap: checking path for %s", id)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return 0, errors.Wrapf(err, "heap: creating shard directory for %s", id)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return 0, errors.Wrapf(err, "heap: writing %s", id)
		}
		return id, nil
	}
}

// Read loads and decodes the row at id, or (nil, nil) if absent.
func Read(root string, id heapid.ID) ([]value.Value, error) {
	target := filepath.Join(root, id.Path())
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "heap: reading %s", id)
	}
	row, err := packer.DecodeRow(data)
	if err != nil {
		return nil, errors.Wrapf(err, "heap: decoding %s", id)
	}
	return row, nil
}

// Delete removes the row at id, returning its decoded content (or nil if
// it did not exist). Empty shard directories are left in place (spec §9
// Open Question 1).
func Delete(root string, id heapid.ID) ([]value.Value, error) {
	row, err := Read(root, id)
	if err != nil || row == nil {
		return row, err
	}
	target := filepath.Join(root, id.Path())
	if err := os.Remove(target); err != nil {
		return nil, errors.Wrapf(err, "heap: deleting %s", id)
	}
	return row, nil
}

// Walk enumerates every row currently stored under root, calling fn with
// each id and decoded row. Used by Table.Scan and by index bulk-load.
func Walk(root string, fn func(id heapid.ID, row []value.Value) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrap(err, "heap: computing relative path")
		}
		segs := splitRel(rel)
		if len(segs) != 3 {
			return nil // not a heap-shaped path; ignore stray files
		}
		id, err := heapid.FromString(segs[0] + segs[1] + segs[2])
		if err != nil {
			return nil // ignore non-heap-id files
		}
		row, err := Read(root, id)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		return fn(id, row)
	})
}

func splitRel(rel string) []string {
	rel = filepath.ToSlash(rel)
	var out []string
	start := 0
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			out = append(out, rel[start:i])
			start = i + 1
		}
	}
	out = append(out, rel[start:])
	return out
}
