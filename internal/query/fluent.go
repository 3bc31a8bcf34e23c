package query

import (
	"context"
	"fmt"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/combinator"
	"github.com/roach88/qexpand/internal/seq"
)

// Query composes a source step by step. The first failing step is kept
// and returned by every terminal operation.
type Query struct {
	src Source
	err error
}

// From starts a query over src.
func From(src Source) *Query {
	return &Query{src: src}
}

// Source returns the current source, nil after an error.
func (q *Query) Source() Source {
	return q.src
}

// Err returns the first composition error.
func (q *Query) Err() error {
	return q.err
}

// Expression returns the current tree, nil after an error.
func (q *Query) Expression() ast.Node {
	if q.err != nil {
		return nil
	}
	return q.src.Expression()
}

// Compose applies build to the current tree and creates the result
// through the provider.
func (q *Query) Compose(build func(src ast.Node) ast.Node) *Query {
	if q.err != nil {
		return q
	}
	expr, err := safeBuild(build, q.src.Expression())
	if err != nil {
		return &Query{err: err}
	}
	next, err := q.src.Provider().CreateQuery(expr)
	if err != nil {
		return &Query{err: err}
	}
	return &Query{src: next}
}

// Tree builders panic on shape errors; inside a fluent chain they become
// the query's error.
func safeBuild(build func(ast.Node) ast.Node, src ast.Node) (out ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build query: %v", r)
		}
	}()
	return build(src), nil
}

// Where filters by pred, a func(E) bool node.
func (q *Query) Where(pred ast.Node) *Query {
	return q.Compose(func(src ast.Node) ast.Node { return seq.NewWhere(src, pred) })
}

// Select projects with proj.
func (q *Query) Select(proj ast.Node) *Query {
	return q.Compose(func(src ast.Node) ast.Node { return seq.NewSelect(src, proj) })
}

// SelectMany flattens the sequences proj yields.
func (q *Query) SelectMany(proj ast.Node) *Query {
	return q.Compose(func(src ast.Node) ast.Node { return seq.NewSelectMany(src, proj) })
}

// Take keeps the first n rows.
func (q *Query) Take(n int) *Query {
	return q.Compose(func(src ast.Node) ast.Node { return seq.NewTake(src, ast.Const(n)) })
}

// Apply calls a combinator with the current tree as its source.
func (q *Query) Apply(def *combinator.Def, args ...ast.Node) *Query {
	return q.Compose(func(src ast.Node) ast.Node { return def.Call(src, args...) })
}

// Count runs src.Count().
func (q *Query) Count(ctx context.Context) (int, error) {
	v, err := q.scalar(ctx, func(src ast.Node) ast.Node { return seq.NewCount(src) })
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("count returned %T", v)
	}
	return n, nil
}

// Any runs src.Any().
func (q *Query) Any(ctx context.Context) (bool, error) {
	v, err := q.scalar(ctx, func(src ast.Node) ast.Node { return seq.NewAny(src) })
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("any returned %T", v)
	}
	return b, nil
}

func (q *Query) scalar(ctx context.Context, build func(ast.Node) ast.Node) (any, error) {
	if q.err != nil {
		return nil, q.err
	}
	expr, err := safeBuild(build, q.src.Expression())
	if err != nil {
		return nil, err
	}
	return q.src.Provider().Execute(ctx, expr)
}

// ToSlice executes the query and returns the provider's result.
func (q *Query) ToSlice(ctx context.Context) (any, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.src.Provider().Execute(ctx, q.src.Expression())
}

// Cursor enumerates the query.
func (q *Query) Cursor(ctx context.Context) (Cursor, error) {
	if q.err != nil {
		return nil, q.err
	}
	return Enumerate(ctx, q.src)
}

func (q *Query) String() string {
	if q.err != nil {
		return "error: " + q.err.Error()
	}
	return render(q.src)
}

// ToList enumerates q into a []T.
func ToList[T any](ctx context.Context, q *Query) ([]T, error) {
	cur, err := q.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []T
	for cur.Next(ctx) {
		v, ok := cur.Value().(T)
		if !ok {
			return nil, fmt.Errorf("row is %T, not %s", cur.Value(), ast.TypeOf[T]())
		}
		out = append(out, v)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
