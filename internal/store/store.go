package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	arc "github.com/hashicorp/golang-lru/arc/v2"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/translate"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - catalog_tables bookkeeping and generated entity tables
const currentSchemaVersion = 1

// DefaultCacheSize is the number of translated trees a store keeps.
const DefaultCacheSize = 256

// Store is a SQLite database holding the tables of a catalog.
type Store struct {
	db         *sql.DB
	catalog    *mapping.Catalog
	translator *translate.Translator
	cache      *arc.ARCCache[string, *statement]
	logger     *zap.Logger
	provider   *Provider
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	cacheSize int
}

// WithLogger sets the logger for SQL statements. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCacheSize sets how many translated trees are cached.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// Open creates or opens a SQLite database at path and creates the tables
// of catalog. Use ":memory:" for a private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Reopening a database created for a different catalog fails.
func Open(path string, catalog *mapping.Catalog, opts ...Option) (*Store, error) {
	o := options{logger: zap.NewNop(), cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and a private :memory:
	// database lives on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, catalog); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	cache, err := arc.NewARC[string, *statement](o.cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create translation cache: %w", err)
	}

	s := &Store{
		db:         db,
		catalog:    catalog,
		translator: translate.New(catalog),
		cache:      cache,
		logger:     o.logger,
	}
	s.provider = &Provider{store: s}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Provider returns the provider the store's tables run on.
func (s *Store) Provider() *Provider {
	return s.provider
}

// Catalog returns the catalog the store was opened with.
func (s *Store) Catalog() *mapping.Catalog {
	return s.catalog
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates bookkeeping and entity tables if they don't exist.
// This function is idempotent.
func applySchema(db *sql.DB, catalog *mapping.Catalog) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	for _, e := range catalog.Entities() {
		if err := createTable(db, catalog, e); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func createTable(db *sql.DB, catalog *mapping.Catalog, e *mapping.Entity) error {
	columns := strings.Join(e.Columns(), ",")

	var existing string
	err := db.QueryRow(`SELECT columns FROM catalog_tables WHERE table_name = ?`, e.Table).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("read catalog_tables: %w", err)
	case existing != columns:
		return fmt.Errorf("table %s has columns (%s), catalog maps (%s)", e.Table, existing, columns)
	default:
		return nil
	}

	if _, err := db.Exec(tableDDL(e)); err != nil {
		return fmt.Errorf("create table %s: %w", e.Table, err)
	}
	for _, col := range foreignKeys(catalog, e) {
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			quote("idx_"+e.Table+"_"+col), quote(e.Table), quote(col))
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("index %s.%s: %w", e.Table, col, err)
		}
	}
	_, err = db.Exec(`INSERT INTO catalog_tables (table_name, entity, columns) VALUES (?, ?, ?)`,
		e.Table, e.Name, columns)
	if err != nil {
		return fmt.Errorf("record table %s: %w", e.Table, err)
	}
	return nil
}

var columnTypes = map[mapping.Kind]string{
	mapping.KindInt:    "INTEGER",
	mapping.KindString: "TEXT",
	mapping.KindBool:   "INTEGER",
}

func tableDDL(e *mapping.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", quote(e.Table))
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", quote(f.Column), columnTypes[f.Kind])
		if f.Name == e.Key {
			b.WriteString(" PRIMARY KEY")
		} else {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

// foreignKeys returns the columns of e that relations join on.
func foreignKeys(c *mapping.Catalog, e *mapping.Entity) []string {
	seen := map[string]bool{}
	var out []string
	for _, owner := range c.Entities() {
		for _, r := range owner.Relations() {
			holder := owner
			if r.Many {
				holder = r.Entity()
			}
			if holder == e && r.ForeignKey != e.KeyField().Column && !seen[r.ForeignKey] {
				seen[r.ForeignKey] = true
				out = append(out, r.ForeignKey)
			}
		}
	}
	return out
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
