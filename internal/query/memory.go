package query

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/eval"
	"github.com/roach88/qexpand/internal/seq"
)

// Table is an in-memory data source. In a tree it appears as a constant
// of type []E that renders as the table name.
type Table struct {
	name string
	rows any
	elem reflect.Type
	node *ast.Constant
}

var (
	_ Source            = (*Table)(nil)
	_ ast.Source        = (*Table)(nil)
	_ eval.Materializer = (*Table)(nil)
)

// FromSlice returns a table over rows. The slice is read, never copied or
// modified.
func FromSlice[T any](name string, rows []T) *Table {
	if rows == nil {
		rows = []T{}
	}
	t := &Table{name: name, rows: rows, elem: ast.TypeOf[T]()}
	t.node = ast.TypedConst(t, seq.Of(t.elem))
	return t
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// ElemType implements ast.Source.
func (t *Table) ElemType() reflect.Type {
	return t.elem
}

// Materialize implements eval.Materializer.
func (t *Table) Materialize() (any, error) {
	return t.rows, nil
}

// Expression returns the table's constant node. The node is the same on
// every call.
func (t *Table) Expression() ast.Node {
	return t.node
}

// Provider returns the in-memory provider.
func (t *Table) Provider() Provider {
	return Memory{}
}

func (t *Table) String() string {
	return t.name
}

// Memory runs trees in process with the compiled evaluator.
type Memory struct{}

// CreateQuery returns an in-memory query for expr.
func (Memory) CreateQuery(expr ast.Node) (Source, error) {
	if free := ast.FreeParams(expr); len(free) > 0 {
		return nil, &eval.UnboundParameterError{Param: free[0], Node: expr}
	}
	return &memoryQuery{expr: expr}, nil
}

// Execute compiles and runs expr.
func (Memory) Execute(ctx context.Context, expr ast.Node) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prog, err := eval.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", ast.String(expr), err)
	}
	return prog.Run()
}

type memoryQuery struct {
	expr ast.Node
}

func (q *memoryQuery) Expression() ast.Node {
	return q.expr
}

func (q *memoryQuery) Provider() Provider {
	return Memory{}
}

func (q *memoryQuery) String() string {
	return ast.String(q.expr)
}
