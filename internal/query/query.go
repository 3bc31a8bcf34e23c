// Package query defines the source/provider protocol for tree-based
// queries and the transparent decorator that runs rewriting passes over
// every tree before a provider sees it.
//
// A Source pairs an expression with the Provider that understands it.
// Composing a query builds a new tree and asks the provider for a new
// source (CreateQuery); running it hands the tree to Execute or, for
// providers that stream, Enumerate.
//
//	table, err := s.Table("Post")
//	posts := query.AsExpandable(table)
//	q := query.From(posts).Apply(blog.FilterActivePosts).Take(5)
//	list, err := query.ToList[*blog.Post](ctx, q)
package query

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
)

// Source is a query: an expression and the provider that runs it.
type Source interface {
	Expression() ast.Node
	Provider() Provider
}

// Provider builds and runs queries from trees.
type Provider interface {
	// CreateQuery returns a source for expr without running it.
	CreateQuery(expr ast.Node) (Source, error)

	// Execute runs expr and returns its value: a slice for sequence
	// trees, a scalar for Count/Any.
	Execute(ctx context.Context, expr ast.Node) (any, error)
}

// Enumerator is implemented by providers that stream rows.
type Enumerator interface {
	Enumerate(ctx context.Context, expr ast.Node) (Cursor, error)
}

// Cursor iterates query results.
//
//	for cur.Next(ctx) {
//		row := cur.Value()
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor interface {
	Next(ctx context.Context) bool
	Value() any
	Err() error
	Close() error
}

// Pass is a tree rewriting pass. A pass must be idempotent: rewriting its
// own output returns the same tree.
type Pass interface {
	Name() string
	Rewrite(n ast.Node) (ast.Node, error)
}

// Enumerate iterates src. Providers that do not implement Enumerator are
// executed and their result is iterated in memory.
func Enumerate(ctx context.Context, src Source) (Cursor, error) {
	return enumerate(ctx, src.Provider(), src.Expression())
}

func enumerate(ctx context.Context, p Provider, expr ast.Node) (Cursor, error) {
	if en, ok := p.(Enumerator); ok {
		return en.Enumerate(ctx, expr)
	}
	v, err := p.Execute(ctx, expr)
	if err != nil {
		return nil, err
	}
	return NewSliceCursor(v)
}

type sliceCursor struct {
	rows reflect.Value
	pos  int
	cur  any
	err  error
}

// NewSliceCursor iterates a slice or array value.
func NewSliceCursor(v any) (Cursor, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return &sliceCursor{rows: reflect.ValueOf([]any{})}, nil
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return &sliceCursor{rows: rv}, nil
	}
	return nil, fmt.Errorf("query result is %T, not a sequence", v)
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= c.rows.Len() {
		c.cur = nil
		return false
	}
	c.cur = c.rows.Index(c.pos).Interface()
	c.pos++
	return true
}

func (c *sliceCursor) Value() any {
	return c.cur
}

func (c *sliceCursor) Err() error {
	return c.err
}

func (c *sliceCursor) Close() error {
	c.pos = c.rows.Len()
	return nil
}

func render(src Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return ast.String(src.Expression())
}
