// Package store is the SQLite reference provider for expanded query trees.
//
// A Store owns one database whose entity tables are generated from a
// mapping catalog. Table returns a query source per entity; queries built
// on it are translated to SQL (internal/translate, internal/querysql) and
// run against the database:
//
//	s, err := store.Open("blog.db", catalog)
//	posts, err := s.Table("Post")
//	q := query.From(query.AsExpandable(posts)).Apply(blog.FilterActivePosts)
//	list, err := query.ToList[*blog.Post](ctx, q)
//
// # Determinism
//
// Every row query carries ORDER BY over primary keys with COLLATE BINARY,
// so results are identical across runs. Strings are normalized to NFC on
// write and in query parameters.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Navigation properties (has-many slices, belongs-to pointers) are not
// loaded when rows are materialized; queries traverse them in SQL.
package store
