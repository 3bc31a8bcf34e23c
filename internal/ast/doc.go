// Package ast defines the typed expression trees that qexpand rewrites.
//
// A tree describes a query the way a tree-based query provider sees it:
// lambdas are quoted (Quote) rather than compiled, captured variables are
// field reads on a closure constant, and sequence operators are calls to
// well-known methods.
//
// SEALED INTERFACE:
//
// Node is sealed with an unexported marker method. Only the variants in
// this package implement it, so passes and providers can switch over the
// complete set:
//
//	switch n := node.(type) {
//	case *Constant, *Param:
//	case *Member, *Index, *Convert, *Unary, *Binary:
//	case *Call:
//	case *Quote:
//	}
//
// IMMUTABILITY:
//
// Nodes are never mutated after construction. Rewrite reconstructs only the
// spine above a changed sub-tree and returns unchanged sub-trees by
// reference, so callers may compare results with == to detect "no change".
//
// Builders panic on shapes that could never be valid (unknown field,
// operand type mismatch). Trees are written by programmers, in the same
// spirit as regexp.MustCompile.
package ast
