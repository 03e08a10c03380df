package gertrude

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/btree"
	"github.com/gertrudedb/gertrude/internal/errs"
	"github.com/gertrudedb/gertrude/internal/heap"
	"github.com/gertrudedb/gertrude/internal/heapid"
	"github.com/gertrudedb/gertrude/internal/schema"
	"github.com/gertrudedb/gertrude/internal/value"
)

func configFilePath(dir string) string { return filepath.Join(dir, "config") }

// defaultConfig is the JSON-serializable form of a schema.Default. Only a
// constant default round-trips through this form; a Producer closure
// cannot be serialized, a limitation this carries over from the original
// implementation (a callable default was never JSON-serializable there
// either, not a regression introduced here).
type defaultConfig struct {
	Value any `json:"value"`
}

// fieldConfig is the JSON-serializable form of one schema.FieldSpec.
type fieldConfig struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	PK       bool           `json:"pk"`
	Unique   bool           `json:"unique"`
	Nullable bool           `json:"nullable"`
	Default  *defaultConfig `json:"default,omitempty"`
}

// tableFileConfig is the JSON-serializable form of a table's on-disk
// `config` file (spec §6 on-disk layout: `tables/<table>/config`).
type tableFileConfig struct {
	ID     int64         `json:"id"`
	Fields []fieldConfig `json:"fields"`
}

func nativeToValue(typ value.Type, native any) value.Value {
	if native == nil {
		return value.Null(typ)
	}
	switch typ {
	case value.TypeInt64:
		switch n := native.(type) {
		case int64:
			return value.NewInt64(n)
		case float64:
			return value.NewInt64(int64(n))
		}
	case value.TypeString:
		if s, ok := native.(string); ok {
			return value.NewString(s)
		}
	case value.TypeFloat64:
		if f, ok := native.(float64); ok {
			return value.NewFloat64(f)
		}
	case value.TypeBool:
		if b, ok := native.(bool); ok {
			return value.NewBool(b)
		}
	}
	return value.Null(typ)
}

func (t *Table) writeConfig() error {
	cfg := tableFileConfig{ID: t.id, Fields: make([]fieldConfig, len(t.spec))}
	for i, f := range t.spec {
		fc := fieldConfig{Name: f.Name, Type: f.Type.String(), PK: f.Options.PK, Unique: f.Options.Unique, Nullable: f.Options.Nullable}
		if d := f.Options.Default; d != nil && d.Const != nil {
			fc.Default = &defaultConfig{Value: d.Const.Native()}
		}
		cfg.Fields[i] = fc
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "table %q: marshaling config", t.name)
	}
	return os.WriteFile(configFilePath(t.dir), data, 0o644)
}

func (t *Table) readConfig() error {
	data, err := os.ReadFile(configFilePath(t.dir))
	if err != nil {
		return errors.Wrapf(err, "table %q: reading config", t.name)
	}
	var cfg tableFileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return errors.Wrapf(errs.ErrCorruptConfig, "table %q: %v", t.name, err)
	}
	t.id = cfg.ID
	spec := make(schema.Spec, len(cfg.Fields))
	for i, fc := range cfg.Fields {
		typ, err := value.ParseType(fc.Type)
		if err != nil {
			return errors.Wrapf(err, "table %q: field %q", t.name, fc.Name)
		}
		opts := schema.Options{PK: fc.PK, Unique: fc.Unique, Nullable: fc.Nullable}
		if fc.Default != nil {
			v := nativeToValue(typ, fc.Default.Value)
			opts.Default = &schema.Default{Const: &v}
		}
		f, err := schema.NewFieldSpec(fc.Name, typ, opts)
		if err != nil {
			return err
		}
		spec[i] = f
	}
	t.spec = spec
	return nil
}

// Table owns one table's schema, heap, and auto/user indexes (spec §4.5).
//
// Grounded on the original implementation's Table class (gertrude/table.py)
// and, for the HOW of a named, typed, ordered member list managed
// alongside on-disk state, the teacher's group.go/group_write.go.
type Table struct {
	name     string
	dir      string
	dataDir  string
	indexDir string
	id       int64
	spec     schema.Spec
	ctx      *DBContext
	indexes  map[string]*Index
}

func tablePaths(dbPath, name string) (dir, dataDir, indexDir string) {
	dir = filepath.Join(dbPath, "tables", name)
	return dir, filepath.Join(dir, "data"), filepath.Join(dir, "index")
}

// createTable creates a brand-new table directory, persists its config,
// and auto-creates its pk_/unq_ indexes (spec §4.5a).
func createTable(ctx *DBContext, name string, spec schema.Spec) (*Table, error) {
	if err := schema.ValidateName(name); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	dir, dataDir, indexDir := tablePaths(ctx.Path, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, errors.Wrapf(errs.ErrDuplicateTable, "%q", name)
	}

	id, err := ctx.IDs.Next()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "table %q: creating data dir", name)
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "table %q: creating index dir", name)
	}

	t := &Table{name: name, dir: dir, dataDir: dataDir, indexDir: indexDir, id: id, spec: spec, ctx: ctx, indexes: map[string]*Index{}}
	if err := t.writeConfig(); err != nil {
		return nil, err
	}
	if err := t.createAutoIndexes(); err != nil {
		return nil, err
	}
	return t, nil
}

// openTable loads an existing table's config and registers its indexes
// with the shared cache (spec §4.8 "open... loads each table's config
// plus its indexes").
func openTable(ctx *DBContext, name string) (*Table, error) {
	dir, dataDir, indexDir := tablePaths(ctx.Path, name)
	t := &Table{name: name, dir: dir, dataDir: dataDir, indexDir: indexDir, ctx: ctx, indexes: map[string]*Index{}}
	if err := t.readConfig(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(indexDir)
	if err != nil {
		return nil, errors.Wrapf(err, "table %q: listing indexes", name)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		idx, err := openIndex(filepath.Join(indexDir, e.Name()), ctx.Cache, ctx.Log)
		if err != nil {
			return nil, errors.Wrapf(err, "table %q: opening index %q", name, e.Name())
		}
		t.indexes[idx.Name] = idx
	}
	return t, nil
}

func (t *Table) createAutoIndexes() error {
	var pk *schema.FieldSpec
	for i := range t.spec {
		if t.spec[i].Options.PK {
			if pk != nil {
				return errors.Wrapf(errs.ErrDuplicateIndex, "table %q has multiple primary keys", t.name)
			}
			f := t.spec[i]
			pk = &f
		}
	}
	if pk != nil {
		if _, err := t.AddIndex("pk_"+pk.Name, pk.Name, true, false); err != nil {
			return err
		}
	}
	for _, f := range t.spec {
		if f.Options.Unique && !f.Options.PK {
			if _, err := t.AddIndex("unq_"+f.Name, f.Name, true, f.Options.Nullable); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddIndex bulk-loads an index over column from the table's current rows
// (spec §4.4 "Build (bulk load)", §4.5a auto-index naming).
func (t *Table) AddIndex(name, column string, unique, nullable bool) (*Index, error) {
	if err := t.ctx.checkWritable(); err != nil {
		return nil, err
	}
	if err := schema.ValidateName(name); err != nil {
		return nil, err
	}
	if _, exists := t.indexes[name]; exists {
		return nil, errors.Wrapf(errs.ErrDuplicateIndex, "%q", name)
	}
	fi := t.spec.Index(column)
	if fi < 0 {
		return nil, errors.Wrapf(errs.ErrUnknownColumn, "%q", column)
	}

	pairs, err := t.collectPairs(fi)
	if err != nil {
		return nil, err
	}

	id, err := t.ctx.IDs.Next()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(t.indexDir, name)
	idx, err := createIndex(dir, t.ctx.Cache, t.ctx.Log, name, column, id, t.spec[fi].Type, unique, nullable, t.ctx.IndexFanout, pairs)
	if err != nil {
		return nil, err
	}
	t.indexes[name] = idx
	return idx, nil
}

// DropIndex removes an index's directory and evicts its cache entries
// (spec §3 "Lifecycles": "dropped by removing their subtree after closing
// the index to invalidate cache entries").
func (t *Table) DropIndex(name string) error {
	if err := t.ctx.checkWritable(); err != nil {
		return err
	}
	idx, ok := t.indexes[name]
	if !ok {
		return errors.Wrapf(errs.ErrUnknownIndex, "%q", name)
	}
	idx.close(t.ctx.Cache)
	delete(t.indexes, name)
	return os.RemoveAll(filepath.Join(t.indexDir, name))
}

func (t *Table) collectPairs(column int) ([]btree.Pair, error) {
	var pairs []btree.Pair
	err := heap.Walk(t.dataDir, func(id heapid.ID, row []value.Value) error {
		pairs = append(pairs, btree.Pair{Key: row[column], HeapID: id.Int64()})
		return nil
	})
	return pairs, err
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// GetSpec returns the table's schema (spec §6 "get_spec").
func (t *Table) GetSpec() schema.Spec { return t.spec }

// IndexList returns the table's index names (spec §4.5 "index_list").
func (t *Table) IndexList() []string {
	out := make([]string, 0, len(t.indexes))
	for name := range t.indexes {
		out = append(out, name)
	}
	return out
}

// Index returns the named index, or ok=false if it does not exist (spec
// §6 "Table.index(name)").
func (t *Table) Index(name string) (*Index, bool) {
	idx, ok := t.indexes[name]
	return idx, ok
}

// IndexForColumn returns the first index found over column, satisfying
// plan.TableLookup's planner hook (spec §4.7 "Planner").
func (t *Table) IndexForColumn(column string) (string, bool) {
	for name, idx := range t.indexes {
		if idx.Column == column {
			return name, true
		}
	}
	return "", false
}

// Insert normalizes row, runs every index's fail-fast check, writes the
// heap blob, then inserts into every index (spec §4.5 "insert").
func (t *Table) Insert(row schema.Row) (heapid.ID, error) {
	if err := t.ctx.checkWritable(); err != nil {
		return 0, err
	}
	positional, err := t.spec.Normalize(row)
	if err != nil {
		return 0, err
	}

	for _, idx := range t.indexes {
		fi := t.spec.Index(idx.Column)
		if err := idx.testForInsert(positional[fi]); err != nil {
			return 0, errors.Wrapf(err, "table %q: insert", t.name)
		}
	}

	id, err := heap.Write(t.dataDir, positional)
	if err != nil {
		return 0, err
	}

	for _, idx := range t.indexes {
		fi := t.spec.Index(idx.Column)
		if err := idx.insert(positional[fi], id.Int64()); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Scan enumerates every row in the heap (spec §4.5 "scan").
func (t *Table) Scan() ([]schema.Row, error) {
	var rows []schema.Row
	err := heap.Walk(t.dataDir, func(_ heapid.ID, positional []value.Value) error {
		rows = append(rows, t.spec.ToDict(positional))
		return nil
	})
	return rows, err
}

// IndexScan defers to the named index's scan, then joins each heap id
// back to its row (spec §4.5 "index_scan").
func (t *Table) IndexScan(name string, key value.Value, op btree.Op) ([]schema.Row, error) {
	idx, ok := t.indexes[name]
	if !ok {
		return nil, errors.Wrapf(errs.ErrUnknownIndex, "%q", name)
	}
	ids, err := idx.scanHeapIDs(op, key)
	if err != nil {
		return nil, err
	}
	rows := make([]schema.Row, 0, len(ids))
	for _, hid := range ids {
		positional, err := heap.Read(t.dataDir, heapid.ID(hid))
		if err != nil {
			return nil, err
		}
		if positional == nil {
			continue
		}
		rows = append(rows, t.spec.ToDict(positional))
	}
	return rows, nil
}

// Delete removes the first row structurally equal to row, from the heap
// and from every index (spec §4.5 "delete").
func (t *Table) Delete(row schema.Row) (bool, error) {
	if err := t.ctx.checkWritable(); err != nil {
		return false, err
	}
	victim, err := t.spec.Normalize(row)
	if err != nil {
		return false, err
	}

	var found bool
	var foundID heapid.ID
	err = heap.Walk(t.dataDir, func(id heapid.ID, positional []value.Value) error {
		if found {
			return nil
		}
		if schema.StructuralEqual(positional, victim) {
			found = true
			foundID = id
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if _, err := heap.Delete(t.dataDir, foundID); err != nil {
		return false, err
	}
	for _, idx := range t.indexes {
		fi := t.spec.Index(idx.Column)
		if err := idx.delete(victim[fi], foundID.Int64()); err != nil {
			return false, err
		}
	}
	return true, nil
}

// PrintIndex writes a depth-first node dump of the named index to w (spec
// §6 "Table.print_index").
func (t *Table) PrintIndex(name string, w io.Writer) error {
	idx, ok := t.indexes[name]
	if !ok {
		return errors.Wrapf(errs.ErrUnknownIndex, "%q", name)
	}
	return idx.Dump(w)
}

// DeleteFromQuery runs q and deletes every resulting row (spec §4.5a
// "delete_from_query": a thin composition of Query.run and Table.delete).
func (t *Table) DeleteFromQuery(q *Query) (int, error) {
	rows, err := q.RunValues()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range rows {
		ok, err := t.Delete(schema.Row(r))
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (t *Table) close() {
	for _, idx := range t.indexes {
		idx.close(t.ctx.Cache)
	}
}
