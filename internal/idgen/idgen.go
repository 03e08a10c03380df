// Package idgen implements the process-monotonic node/table/index id
// generator described in spec §3 "Lifecycles" and §5 "ID generation":
// ids are persisted every SaveInterval generations (and at Close), with a
// 2*SaveInterval window pre-reserved on open so a crash never reuses an id
// handed out before the last save.
//
// Grounded on the teacher's superblock/config-block persistence style
// (internal/core/superblock.go: a small fixed-layout counter block read
// once at open, rewritten on specific lifecycle events) adapted from
// HDF5's address counters to gertrude's int_id cursor file. The on-disk
// form is the 8-byte big-endian cursor named by spec §6's on-disk layout
// (`int_id binary: {id: int64}`); this matches the same stdlib
// encoding/binary pattern already used by internal/heapid.ID.Bytes --
// there is no third-party fixed-width-counter library in the pack, so
// this stays stdlib like its sibling.
package idgen

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/utils"
)

// SaveInterval is the number of generated ids between persisted saves
// (spec §3/§5).
const SaveInterval = 10

// Generator is the persisted, monotonically increasing id counter.
type Generator struct {
	path    string
	id      int64
	count   int64
	dirty   bool
	onFirst bool
}

// Open loads the cursor at path (if present) and reserves a fresh window
// of 2*SaveInterval ids ahead of the last persisted value (spec §5 "ID
// generation"), or starts a brand-new generator at 0 if the file does not
// yet exist.
func Open(path string) (*Generator, error) {
	g := &Generator{path: path, onFirst: true}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, errors.Wrapf(err, "idgen: reading %s", path)
	}
	if len(data) != 8 {
		return nil, errors.Errorf("idgen: corrupt cursor file %s", path)
	}
	saved := int64(binary.BigEndian.Uint64(data))

	window, err := utils.SafeMultiply(2, uint64(SaveInterval))
	if err != nil {
		return nil, errors.Wrap(err, "idgen: computing reserve window")
	}
	g.id = saved + int64(window)
	return g, nil
}

// Next returns the next id, persisting the cursor every SaveInterval
// generations (and always on the very first call, matching the original
// implementation's on_first flush).
func (g *Generator) Next() (int64, error) {
	g.count++
	g.id++
	g.dirty = true
	if g.count == SaveInterval || g.onFirst {
		if g.count == SaveInterval {
			g.count = 0
		}
		g.onFirst = false
		if err := g.save(); err != nil {
			return 0, err
		}
	}
	return g.id, nil
}

// Close persists the current cursor value if any id was generated since
// the last save; otherwise it writes nothing (spec §4.8a Close semantics).
func (g *Generator) Close() error {
	if !g.dirty {
		return nil
	}
	return g.save()
}

func (g *Generator) save() error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(g.id))
	if err := os.WriteFile(g.path, buf[:], 0o644); err != nil {
		return errors.Wrapf(err, "idgen: writing %s", g.path)
	}
	g.dirty = false
	return nil
}
