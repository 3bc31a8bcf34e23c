// Package queryir is the relational intermediate representation between
// expanded query trees and the SQL backend.
//
// ARCHITECTURE:
//
//	[query tree] -> translate -> [Query IR] -> querysql -> [SQLite]
//
// The IR is deliberately small. A Select reads one relation (a table or a
// derived sub-select), optionally joins further relations, filters with a
// Predicate and produces one of three result shapes:
//
//   - Rows: the mapped columns of one alias, materialized as entities
//   - Value: one scalar expression per row
//   - Count: a single row holding COUNT(*)
//
// Scalar expressions (Value) and predicates (Predicate) are separate
// sealed hierarchies. Predicates appear in a value position through
// Condition; values appear in a predicate position through Truth.
//
// SEALED INTERFACES:
//
// Relation, Result, Value and Predicate are sealed with marker methods so
// backends can switch over them exhaustively:
//
//	switch v := value.(type) {
//	case *Column:
//	case *Literal:
//	...
//	}
//
// DETERMINISM:
//
// Every Select that returns rows carries an OrderBy over primary keys.
// Results are therefore stable across runs and SQLite versions, which the
// golden tests rely on.
package queryir
