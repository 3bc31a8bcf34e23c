package rebind

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/seq"
)

type doc struct {
	ID      int64
	OwnerID int64
	Title   string
}

type owner struct {
	ID   int64
	Docs []*doc
}

type marker struct{ id int }

func (*marker) ElemType() reflect.Type { return reflect.TypeOf(&doc{}) }

func TestRebind(t *testing.T) {
	ph := &marker{id: 1}
	docsType := reflect.TypeOf([]*doc(nil))
	args := ast.NewClosure().Bind("ownerID", int64(0))

	body := seq.NewWhere(ast.TypedConst(ph, docsType), ast.Lambda1[*doc]("d", func(d *ast.Param) ast.Node {
		return ast.Eq(ast.Field(d, "OwnerID"), args.Var("ownerID"))
	}))

	o := ast.ParamOf[*owner]("o")
	src := ast.Field(o, "Docs")
	actual := ast.Field(o, "ID")

	r := New(ph, src, []Replacement{{Name: "ownerID", Node: actual}})
	out, err := r.Rebind(body)
	require.NoError(t, err)
	assert.Empty(t, r.Unconsumed())

	want := seq.NewWhere(src, ast.Lambda1[*doc]("d", func(d *ast.Param) ast.Node {
		return ast.Eq(ast.Field(d, "OwnerID"), actual)
	}))
	assert.True(t, ast.Equal(want, out), ast.String(out))
	assert.Equal(t, "o.Docs.Where(d => (d.OwnerID == o.ID))", ast.String(out))
}

func TestRebindLeavesOtherReferences(t *testing.T) {
	ph := &marker{id: 1}
	other := &marker{id: 2}
	docsType := reflect.TypeOf([]*doc(nil))
	lit := ast.TypedConst(other, docsType)
	tree := seq.NewAny(lit)

	r := New(ph, ast.Const([]*doc{}), nil)
	out, err := r.Rebind(tree)
	require.NoError(t, err)
	assert.Same(t, tree, out, "nothing matched, tree must be shared")
}

func TestRebindScopedClosure(t *testing.T) {
	mine := ast.NewClosure().Bind("n", 1)
	theirs := ast.NewClosure().Bind("n", 2)
	tree := ast.Add(mine.Var("n"), theirs.Var("n"))

	r := New(nil, nil, []Replacement{{Name: "n", Node: ast.Const(10)}})
	r.Closure = mine
	out, err := r.Rebind(tree)
	require.NoError(t, err)

	got := out.(*ast.Binary)
	assert.Equal(t, "10", ast.String(got.Left))
	assert.Same(t, tree.Right, got.Right)
}

func TestUnconsumed(t *testing.T) {
	r := New(nil, nil, []Replacement{{Name: "a", Node: ast.Const(1)}, {Name: "b", Node: ast.Const(2)}})
	_, err := r.Rebind(ast.Capture("a", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, r.Unconsumed())

	err = fmt.Errorf("expand: %w", &AmbiguousReplacementError{Combinator: "F", Names: r.Unconsumed()})
	assert.True(t, IsAmbiguous(err))
	assert.Contains(t, err.Error(), "[b]")
}

func TestNewRejectsValueIdentity(t *testing.T) {
	assert.Panics(t, func() { New(42, ast.Const(1), nil) })
}

func TestReplaceParams(t *testing.T) {
	left := ast.ParamOf[*doc]("l")
	right := ast.ParamOf[*doc]("r")
	body := ast.Eq(ast.Field(right, "Title"), ast.Const("x"))

	out, err := ReplaceParams(body, map[*ast.Param]ast.Node{right: left})
	require.NoError(t, err)
	assert.Equal(t, []*ast.Param{left}, ast.FreeParams(out))
	assert.Equal(t, `(l.Title == "x")`, ast.String(out))
}
