package combinator

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/eval"
	"github.com/roach88/qexpand/internal/eval/mock"
	"github.com/roach88/qexpand/internal/rebind"
	"github.com/roach88/qexpand/internal/seq"
	"github.com/roach88/qexpand/internal/testutil"
)

type member struct {
	ID     int64
	Login  string
	Active bool
	Notes  noteList
}

type note struct {
	ID       int64
	AuthorID int64
	Text     string
	Deleted  bool
}

type noteList []*note

var (
	memberType = reflect.TypeOf(&member{})
	noteType   = reflect.TypeOf(&note{})
	stringType = reflect.TypeOf("")
	int64Type  = reflect.TypeOf(int64(0))
	intType    = reflect.TypeOf(0)
)

var byLogin = New(Def{
	Owner: "members", Name: "ByLogin", Elem: memberType,
	Params: []Param{{Name: "login", Type: stringType}},
	Body: func(src ast.Node, args *Args) (ast.Node, error) {
		return seq.NewWhere(src, ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
			return ast.Eq(ast.Field(m, "Login"), args.Ref("login"))
		})), nil
	},
})

var live = New(Def{
	Owner: "notes", Name: "Live", Elem: noteType,
	Body: func(src ast.Node, _ *Args) (ast.Node, error) {
		return seq.NewWhere(src, ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
			return ast.Eq(ast.Field(n, "Deleted"), ast.Const(false))
		})), nil
	},
})

var byAuthor = New(Def{
	Owner: "notes", Name: "ByAuthor", Elem: noteType,
	Params: []Param{{Name: "authorID", Type: int64Type}},
	Body: func(src ast.Node, args *Args) (ast.Node, error) {
		return seq.NewWhere(live.Call(src), ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
			return ast.Eq(ast.Field(n, "AuthorID"), args.Ref("authorID"))
		})), nil
	},
})

var recent = New(Def{
	Owner: "notes", Name: "Recent", Elem: noteType,
	Params: []Param{{Name: "limit", Type: intType, Default: 10, HasDefault: true}},
	Body: func(src ast.Node, args *Args) (ast.Node, error) {
		return seq.NewTake(src, args.Ref("limit")), nil
	},
})

var filter = New(Def{
	Owner: "seqs", Name: "Filter",
	Params: []Param{{Name: "pred"}},
	Body: func(src ast.Node, args *Args) (ast.Node, error) {
		return seq.NewWhere(src, args.Expr("pred")), nil
	},
})

var mapTo = New(Def{
	Owner: "seqs", Name: "Map",
	Params: []Param{{Name: "proj"}},
	Result: func(_ reflect.Type, args []reflect.Type) reflect.Type { return seq.Of(args[0].Out(0)) },
	Body: func(src ast.Node, args *Args) (ast.Node, error) {
		proj, err := args.Quote("proj")
		if err != nil {
			return nil, err
		}
		return seq.NewSelect(src, proj), nil
	},
})

// skipAhead nests n filters by recursing into itself.
var skipAhead *Def

func init() {
	skipAhead = New(Def{
		Owner: "notes", Name: "SkipAhead", Elem: noteType,
		Params: []Param{{Name: "n", Type: intType}},
		Body: func(src ast.Node, args *Args) (ast.Node, error) {
			n := args.Value("n").(int)
			if n == 0 {
				return src, nil
			}
			step := seq.NewWhere(src, ast.Lambda1[*note]("x", func(x *ast.Param) ast.Node {
				return ast.Gt(ast.Field(x, "ID"), ast.Const(int64(0)))
			}))
			return skipAhead.Call(step, ast.Const(n-1)), nil
		},
	})
}

var forever *Def

func init() {
	forever = New(Def{
		Owner: "notes", Name: "Forever", Elem: noteType,
		Body: func(src ast.Node, _ *Args) (ast.Node, error) {
			return forever.Call(src), nil
		},
	})
}

var baked = New(Def{
	Owner: "notes", Name: "Baked", Elem: noteType,
	Params: []Param{{Name: "authorID", Type: int64Type}},
	Body: func(src ast.Node, args *Args) (ast.Node, error) {
		id := args.Value("authorID").(int64)
		return seq.NewWhere(src, ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
			return ast.Eq(ast.Field(n, "AuthorID"), ast.Const(id))
		})), nil
	},
})

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(byLogin, live, byAuthor, recent, filter, mapTo, skipAhead, forever, baked)
	require.NoError(t, err)
	return reg
}

func newTestExpander(t *testing.T, opts ...Option) *Expander {
	t.Helper()
	opts = append([]Option{WithIDs(testutil.NewSequentialIDs(""))}, opts...)
	return NewExpander(testRegistry(t), opts...)
}

func membersSource() *ast.Constant { return ast.Const([]*member{}) }
func notesSource() *ast.Constant   { return ast.Const([]*note{}) }

func TestExpandSimpleCombinator(t *testing.T) {
	members := membersSource()
	login := "alice"
	tree := byLogin.Call(members, ast.Capture("login", login))

	got, err := newTestExpander(t).Rewrite(tree)
	require.NoError(t, err)

	want := seq.NewWhere(members, ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
		return ast.Eq(ast.Field(m, "Login"), ast.Const("alice"))
	}))
	testutil.AssertTree(t, want, got)
	assert.Equal(t, `value([]*combinator.member).Where(m => (m.Login == "alice"))`, ast.String(got))
}

func TestExpandNestedCombinators(t *testing.T) {
	notes := notesSource()
	got, err := newTestExpander(t).Rewrite(byAuthor.Call(notes, ast.Const(int64(3))))
	require.NoError(t, err)

	want := seq.NewWhere(
		seq.NewWhere(notes, ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
			return ast.Eq(ast.Field(n, "Deleted"), ast.Const(false))
		})),
		ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
			return ast.Eq(ast.Field(n, "AuthorID"), ast.Const(int64(3)))
		}))
	testutil.AssertTree(t, want, got)
}

func TestExpandDeferredArgument(t *testing.T) {
	notes := notesSource()
	members := membersSource()

	// members.Where(m => notes.ByAuthor(m.ID).Any())
	tree := seq.NewWhere(members, ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
		return seq.NewAny(byAuthor.Call(notes, ast.Field(m, "ID")))
	}))

	got, err := newTestExpander(t).Rewrite(tree)
	require.NoError(t, err)

	want := seq.NewWhere(members, ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
		return seq.NewAny(seq.NewWhere(
			seq.NewWhere(notes, ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
				return ast.Eq(ast.Field(n, "Deleted"), ast.Const(false))
			})),
			ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
				return ast.Eq(ast.Field(n, "AuthorID"), ast.Field(m, "ID"))
			})))
	}))
	testutil.AssertTree(t, want, got)
}

func TestExpandWrapsNonCanonicalSource(t *testing.T) {
	// members.Where(m => m.Notes.Live().Any())
	tree := seq.NewWhere(membersSource(), ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
		return seq.NewAny(live.Call(ast.Field(m, "Notes")))
	}))

	got, err := newTestExpander(t).Rewrite(tree)
	require.NoError(t, err)
	assert.Contains(t, ast.String(got), "m.Notes.AsSequence().Where(n => (n.Deleted == false)).Any()")
}

func TestExpandOptionalParameter(t *testing.T) {
	notes := notesSource()
	exp := newTestExpander(t)

	got, err := exp.Rewrite(recent.Call(notes))
	require.NoError(t, err)
	testutil.AssertTree(t, seq.NewTake(notes, ast.Const(10)), got)

	got, err = exp.Rewrite(recent.Call(notes, ast.Const(3)))
	require.NoError(t, err)
	testutil.AssertTree(t, seq.NewTake(notes, ast.Const(3)), got)
}

func TestExpandGenericCombinators(t *testing.T) {
	exp := newTestExpander(t)

	ints := ast.Const([]int{1, 2, 3})
	even := ast.Lambda1[int]("i", func(i *ast.Param) ast.Node {
		return ast.Eq(ast.Bin(ast.OpMod, i, ast.Const(2)), ast.Const(0))
	})
	got, err := exp.Rewrite(filter.Call(ints, even))
	require.NoError(t, err)
	testutil.AssertTree(t, seq.NewWhere(ints, even), got)

	v, err := eval.Evaluate(got)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, v)

	logins := ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node { return ast.Field(m, "Login") })
	tree := mapTo.Call(filter.Call(membersSource(), ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
		return ast.Field(m, "Active")
	})), logins)
	assert.Equal(t, reflect.TypeOf([]string(nil)), tree.Type())

	got, err = exp.Rewrite(tree)
	require.NoError(t, err)
	assert.False(t, ast.Contains(got, func(n ast.Node) bool {
		c, ok := n.(*ast.Call)
		return ok && c.Method.Expandable
	}))
	assert.Equal(t, "Select", got.(*ast.Call).Method.Name)
}

func TestExpandBoundLambdaArgument(t *testing.T) {
	// members.Where(m => notes.Filter(n => n.AuthorID == m.ID).Any())
	notes := notesSource()
	tree := seq.NewWhere(membersSource(), ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
		return seq.NewAny(filter.Call(notes, ast.Lambda1[*note]("n", func(n *ast.Param) ast.Node {
			return ast.Eq(ast.Field(n, "AuthorID"), ast.Field(m, "ID"))
		})))
	}))

	got, err := newTestExpander(t).Rewrite(tree)
	require.NoError(t, err)
	assert.Equal(t, "m => value([]*combinator.note).Where(n => (n.AuthorID == m.ID)).Any()",
		ast.String(got.(*ast.Call).Args[1]))
}

func TestExpandRecursiveCombinator(t *testing.T) {
	notes := notesSource()
	got, err := newTestExpander(t).Rewrite(skipAhead.Call(notes, ast.Const(3)))
	require.NoError(t, err)

	depth := 0
	for c, ok := got.(*ast.Call); ok; c, ok = c.Args[0].(*ast.Call) {
		assert.Same(t, seq.Where, c.Method)
		depth++
	}
	assert.Equal(t, 3, depth)

	_, err = newTestExpander(t, WithMaxDepth(8)).Rewrite(forever.Call(notes))
	var de *DepthError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "notes.Forever", de.Combinator)
	assert.Equal(t, 8, de.MaxDepth)
}

func TestExpandBakedDeferredArgument(t *testing.T) {
	tree := seq.NewWhere(membersSource(), ast.Lambda1[*member]("m", func(m *ast.Param) ast.Node {
		return seq.NewAny(baked.Call(notesSource(), ast.Field(m, "ID")))
	}))
	_, err := newTestExpander(t).Rewrite(tree)
	require.Error(t, err)
	assert.True(t, rebind.IsAmbiguous(err))

	// The same combinator is fine when the argument can be evaluated.
	_, err = newTestExpander(t).Rewrite(baked.Call(notesSource(), ast.Const(int64(1))))
	assert.NoError(t, err)
}

func TestExpandArgumentFailureAborts(t *testing.T) {
	tree := recent.Call(notesSource(), ast.Bin(ast.OpDiv, ast.Const(1), ast.Const(0)))
	_, err := newTestExpander(t).Rewrite(tree)
	require.Error(t, err)
	assert.ErrorIs(t, err, eval.ErrDivideByZero)
	assert.Contains(t, err.Error(), "notes.Recent: evaluate argument limit")
}

func TestExpandUnregistered(t *testing.T) {
	reg, err := NewRegistry(live)
	require.NoError(t, err)
	_, err = NewExpander(reg).Rewrite(recent.Call(notesSource()))
	var ue *UnregisteredError
	require.ErrorAs(t, err, &ue)
	assert.Same(t, recent.Method(), ue.Method)
}

func TestExpandIsIdempotent(t *testing.T) {
	exp := newTestExpander(t)
	once, err := exp.Rewrite(byAuthor.Call(notesSource(), ast.Const(int64(1))))
	require.NoError(t, err)
	twice, err := exp.Rewrite(once)
	require.NoError(t, err)
	assert.Same(t, once, twice)
}

func TestExpandUsesEvaluator(t *testing.T) {
	ctrl := gomock.NewController(t)
	ev := mock.NewMockEvaluator(ctrl)

	arg := ast.Capture("authorID", int64(0))
	ev.EXPECT().Evaluate(arg).Return(int64(42), nil)

	got, err := newTestExpander(t, WithEvaluator(ev)).Rewrite(seq.NewAny(baked.Call(notesSource(), arg)))
	require.NoError(t, err)
	assert.Contains(t, ast.String(got), "(n.AuthorID == 42)")

	boom := errors.New("boom")
	ev.EXPECT().Evaluate(gomock.Any()).Return(nil, boom)
	_, err = newTestExpander(t, WithEvaluator(ev)).Rewrite(baked.Call(notesSource(), arg))
	assert.ErrorIs(t, err, boom)
}

func TestPlaceholderIDs(t *testing.T) {
	ids := testutil.NewFixedIDs("first", "second")
	_, err := newTestExpander(t, WithIDs(ids)).Rewrite(byAuthor.Call(notesSource(), ast.Const(int64(1))))
	require.NoError(t, err)
	assert.Panics(t, func() { ids.Generate() }, "byAuthor and the nested live call use one placeholder each")
}

func TestRegistry(t *testing.T) {
	reg := testRegistry(t)
	d, ok := reg.ByName("notes", "Recent")
	require.True(t, ok)
	assert.Same(t, recent, d)

	d, ok = reg.Lookup(byLogin.Method())
	require.True(t, ok)
	assert.Same(t, byLogin, d)

	assert.Equal(t, 9, reg.Len())
	assert.Equal(t, "members.ByLogin", reg.Defs()[0].String())

	dup := New(Def{Owner: "notes", Name: "Live", Body: live.Body})
	_, err := NewRegistry(live, dup)
	assert.Error(t, err)
}

func TestCallShapeChecks(t *testing.T) {
	assert.Panics(t, func() { byLogin.Call(membersSource()) }, "missing required argument")
	assert.Panics(t, func() { byLogin.Call(membersSource(), ast.Const(1)) }, "wrong argument type")
	assert.Panics(t, func() { byLogin.Call(notesSource(), ast.Const("x")) }, "wrong element type")
	assert.Panics(t, func() { New(Def{Name: "NoBody"}) })

	body := func(src ast.Node, _ *Args) (ast.Node, error) { return src, nil }
	intType := reflect.TypeOf(0)
	assert.Panics(t, func() {
		New(Def{Name: "NilDefault", Body: body, Params: []Param{{Name: "n", Type: intType, HasDefault: true}}})
	}, "nil default for a non-nillable parameter")
	assert.Panics(t, func() {
		New(Def{Name: "WrongDefault", Body: body, Params: []Param{{Name: "n", Type: intType, Default: "x", HasDefault: true}}})
	})
	assert.NotPanics(t, func() {
		New(Def{Name: "NilPointerDefault", Body: body, Params: []Param{{Name: "n", Type: reflect.TypeOf((*int)(nil)), HasDefault: true}}})
	})
}

func TestDefaultRegistry(t *testing.T) {
	d := Define(Def{
		Owner: "notes", Name: "Everything", Elem: noteType,
		Body: func(src ast.Node, _ *Args) (ast.Node, error) { return src, nil },
	})
	reg := Default()
	got, ok := reg.Lookup(d.Method())
	require.True(t, ok)
	assert.Same(t, d, got)
	assert.Same(t, reg, Default())

	assert.Panics(t, func() {
		Define(Def{Owner: "notes", Name: "TooLate", Body: d.Body})
	})

	out, err := NewExpander(nil).Rewrite(d.Call(notesSource()))
	require.NoError(t, err)
	_, isConst := out.(*ast.Constant)
	assert.True(t, isConst)
}
