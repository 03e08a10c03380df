// Package gertrude implements an embedded, file-system-backed relational
// store: typed nullable scalars, a content-addressed row heap, B+-tree
// indexes over a shared LRU block cache, and a small fluent query planner
// and runner.
//
// Grounded on the teacher's file.go/file_write.go (Open/Create lifecycle,
// a small fixed-layout header validated on open, root-object lookup into
// a registry of named children) generalized to gertrude's gertrude.conf +
// table registry + process-monotonic id generator.
package gertrude

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	jsoniter "github.com/json-iterator/go"

	"github.com/gertrudedb/gertrude/internal/btree"
	"github.com/gertrudedb/gertrude/internal/cache"
	"github.com/gertrudedb/gertrude/internal/errs"
	"github.com/gertrudedb/gertrude/internal/idgen"
	"github.com/gertrudedb/gertrude/internal/plan"
	"github.com/gertrudedb/gertrude/internal/schema"
	"github.com/gertrudedb/gertrude/internal/value"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GertrudeVersion and CurrentSchemaVersion are written to gertrude.conf on
// Create and checked on Open (spec §4.8/§7 "Version mismatch on open is
// fatal").
const (
	GertrudeVersion      = "0.0.2"
	CurrentSchemaVersion = 1
)

// Mode is a Database's read/write mode (spec §4.8 "Open(path, mode)").
type Mode string

const (
	ModeReadWrite Mode = "rw"
	ModeReadOnly  Mode = "ro"
)

type dbConfig struct {
	SchemaVersion   int    `json:"schema_version"`
	GertrudeVersion string `json:"gertrude_version"`
	Comment         string `json:"comment"`
	IndexFanout     int    `json:"index_fanout"`
	IndexCacheSize  int    `json:"index_cache_size"`
}

func confPath(path string) string { return filepath.Join(path, "gertrude.conf") }
func idPath(path string) string   { return filepath.Join(path, "int_id") }

// DBContext is the shared state every Table and Index in a Database
// draws from: the id generator, the block cache, the logger, and the
// index fanout new indexes are built with (spec §3 "Lifecycles").
type DBContext struct {
	Path        string
	Mode        Mode
	IDs         *idgen.Generator
	Cache       *cache.Cache
	Log         *zap.Logger
	IndexFanout int
	closed      bool
}

func (c *DBContext) checkWritable() error {
	if c.closed {
		return errs.ErrClosed
	}
	if c.Mode == ModeReadOnly {
		return errs.ErrReadOnly
	}
	return nil
}

// Database is the top-level handle: a gertrude.conf file, a table
// registry, and the shared id generator and block cache every table's
// indexes draw from (spec §4.8).
type Database struct {
	ctx    *DBContext
	tables map[string]*Table
}

// Options holds a Database's recognized creation-time options (spec §6
// "Recognized options" -- Database: `index_fanout:int=80`,
// `index_cache_size:int=128`). A zero Options falls back to both
// defaults; Create also applies the defaults to any individually-zero
// field, so callers only need to set the option they're overriding.
type Options struct {
	IndexFanout    int
	IndexCacheSize int
}

func (o Options) withDefaults() Options {
	if o.IndexFanout <= 0 {
		o.IndexFanout = btree.DefaultFanout
	}
	if o.IndexCacheSize <= 0 {
		o.IndexCacheSize = cache.DefaultCapacity
	}
	return o
}

// Create initializes a brand-new database directory: writes gertrude.conf,
// starts the id generator, and opens an empty table registry. comment is
// stored verbatim and never interpreted; opts supplies the recognized
// `index_fanout`/`index_cache_size` options, defaulting to 80 and 128
// when zero (spec §4.8 "Create(path, comment, opts)", §6).
func Create(path, comment string, opts Options) (*Database, error) {
	opts = opts.withDefaults()
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Wrapf(errs.ErrAlreadyInitialized, "%q", path)
	}
	if err := os.MkdirAll(filepath.Join(path, "tables"), 0o755); err != nil {
		return nil, errors.Wrapf(err, "database: creating %s", path)
	}
	cfg := dbConfig{
		SchemaVersion:   CurrentSchemaVersion,
		GertrudeVersion: GertrudeVersion,
		Comment:         comment,
		IndexFanout:     opts.IndexFanout,
		IndexCacheSize:  opts.IndexCacheSize,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "database: marshaling config")
	}
	if err := os.WriteFile(confPath(path), data, 0o644); err != nil {
		return nil, errors.Wrap(err, "database: writing config")
	}
	return Open(path, ModeReadWrite)
}

// Open loads an existing database directory, validating the persisted
// gertrude.conf version against CurrentSchemaVersion (spec §4.8
// "Open(path, mode)"; §7 version mismatch is fatal), then loads each
// table's config and indexes.
func Open(path string, mode Mode) (*Database, error) {
	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}

	data, err := os.ReadFile(confPath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "database: reading config at %s", path)
	}
	var cfg dbConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(errs.ErrCorruptConfig, "database: %s: %v", path, err)
	}
	if cfg.SchemaVersion != CurrentSchemaVersion {
		return nil, errors.Wrapf(errs.ErrVersionMismatch, "database %q: on-disk schema version %d, expected %d", path, cfg.SchemaVersion, CurrentSchemaVersion)
	}
	opts := Options{IndexFanout: cfg.IndexFanout, IndexCacheSize: cfg.IndexCacheSize}.withDefaults()

	ids, err := idgen.Open(idPath(path))
	if err != nil {
		return nil, err
	}
	blockCache, err := cache.New(opts.IndexCacheSize, log)
	if err != nil {
		return nil, err
	}

	ctx := &DBContext{Path: path, Mode: mode, IDs: ids, Cache: blockCache, Log: log, IndexFanout: opts.IndexFanout}
	db := &Database{ctx: ctx, tables: map[string]*Table{}}

	tablesDir := filepath.Join(path, "tables")
	entries, err := os.ReadDir(tablesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, errors.Wrapf(err, "database: listing tables in %s", path)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := openTable(ctx, e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "database: opening table %q", e.Name())
		}
		db.tables[e.Name()] = t
	}
	return db, nil
}

// AddTable creates a new table under the database (spec §4.8 "add_table").
func (db *Database) AddTable(name string, spec schema.Spec) (*Table, error) {
	if err := db.ctx.checkWritable(); err != nil {
		return nil, err
	}
	if _, exists := db.tables[name]; exists {
		return nil, errors.Wrapf(errs.ErrDuplicateTable, "%q", name)
	}
	t, err := createTable(db.ctx, name, spec)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	return t, nil
}

// DropTable removes a table's directory and unregisters its indexes from
// the cache (spec §4.8 "drop_table").
func (db *Database) DropTable(name string) error {
	if err := db.ctx.checkWritable(); err != nil {
		return err
	}
	t, ok := db.tables[name]
	if !ok {
		return errors.Wrapf(errs.ErrUnknownTable, "%q", name)
	}
	t.close()
	delete(db.tables, name)
	return os.RemoveAll(t.dir)
}

// Table returns the named table, or ok=false if it does not exist.
func (db *Database) Table(name string) (*Table, bool) {
	t, ok := db.tables[name]
	return t, ok
}

// TableList returns every table name in the database.
func (db *Database) TableList() []string {
	out := make([]string, 0, len(db.tables))
	for name := range db.tables {
		out = append(out, name)
	}
	return out
}

// AddIndex adds an index to an existing table (spec §4.8 "add_index").
func (db *Database) AddIndex(table, name, column string, unique, nullable bool) (*Index, error) {
	t, ok := db.tables[table]
	if !ok {
		return nil, errors.Wrapf(errs.ErrUnknownTable, "%q", table)
	}
	return t.AddIndex(name, column, unique, nullable)
}

// DropIndex drops an index from an existing table (spec §4.8 "drop_index").
func (db *Database) DropIndex(table, name string) error {
	t, ok := db.tables[table]
	if !ok {
		return errors.Wrapf(errs.ErrUnknownTable, "%q", table)
	}
	return t.DropIndex(name)
}

// CacheStats exposes the shared block cache's hit/miss/eviction counters
// (spec §4.3 "Observability").
func (db *Database) CacheStats() cache.Stats {
	return db.ctx.Cache.Stats()
}

// Query starts a fluent query against table (spec §4.6).
func (db *Database) Query(table string) (*Query, error) {
	if _, ok := db.tables[table]; !ok {
		return nil, errors.Wrapf(errs.ErrUnknownTable, "%q", table)
	}
	return &Query{db: db, ops: []plan.PlanOp{{Kind: plan.KindRead, Table: table}}}, nil
}

// Close persists the id generator cursor, unregisters every table's
// indexes from the block cache, and marks the database closed; further
// calls return ErrClosed (spec §4.8a Close semantics).
func (db *Database) Close() error {
	if db.ctx.closed {
		return nil
	}
	for _, t := range db.tables {
		t.close()
	}
	db.ctx.closed = true
	return db.ctx.IDs.Close()
}

// Scan implements plan.TableLookup by delegating to the named table and
// converting each schema.Row to a plan.Row. Go disallows a bulk slice
// conversion between the two (distinctly named map types, even though
// structurally identical), so this is an explicit per-element loop.
func (db *Database) Scan(table string) ([]plan.Row, error) {
	t, ok := db.tables[table]
	if !ok {
		return nil, errors.Wrapf(errs.ErrUnknownTable, "%q", table)
	}
	rows, err := t.Scan()
	if err != nil {
		return nil, err
	}
	return toPlanRows(rows), nil
}

// IndexForColumn implements plan.TableLookup.
func (db *Database) IndexForColumn(table, column string) (string, bool) {
	t, ok := db.tables[table]
	if !ok {
		return "", false
	}
	return t.IndexForColumn(column)
}

// IndexScan implements plan.TableLookup.
func (db *Database) IndexScan(table, indexName string, key value.Value, op btree.Op) ([]plan.Row, error) {
	t, ok := db.tables[table]
	if !ok {
		return nil, errors.Wrapf(errs.ErrUnknownTable, "%q", table)
	}
	rows, err := t.IndexScan(indexName, key, op)
	if err != nil {
		return nil, err
	}
	return toPlanRows(rows), nil
}

func toPlanRows(rows []schema.Row) []plan.Row {
	out := make([]plan.Row, len(rows))
	for i, r := range rows {
		out[i] = plan.Row(r)
	}
	return out
}
