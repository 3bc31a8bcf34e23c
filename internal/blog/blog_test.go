package blog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/query"
	"github.com/roach88/qexpand/internal/seq"
	"github.com/roach88/qexpand/internal/specification"
	"github.com/roach88/qexpand/internal/store"
	"github.com/roach88/qexpand/internal/testutil"
	"github.com/roach88/qexpand/internal/translate"
)

func pinToday(t *testing.T, date string) {
	t.Helper()
	day, err := time.Parse(DateLayout, date)
	require.NoError(t, err)
	saved := Now
	Now = func() time.Time { return day }
	t.Cleanup(func() { Now = saved })
}

func dataset(t *testing.T) *Dataset {
	t.Helper()
	ds, err := LoadDataset()
	require.NoError(t, err)
	return ds
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	c, err := Catalog()
	require.NoError(t, err)
	s, err := store.Open(filepath.Join(t.TempDir(), "blog.db"), c)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fx, err := Fixtures()
	require.NoError(t, err)
	_, err = s.Load(context.Background(), fx)
	require.NoError(t, err)
	return s
}

func TestLoadDatasetLinksNavigation(t *testing.T) {
	ds := dataset(t)
	require.Len(t, ds.Users, 3)
	require.Len(t, ds.Posts, 6)

	admin := ds.Users[0]
	assert.Equal(t, "admin", admin.Login)
	require.Len(t, admin.Posts, 3)
	assert.Same(t, admin, admin.Posts[0].Author)
	assert.Equal(t, "2024-05-01", admin.Posts[0].CreatedOn)
	assert.True(t, ds.Users[1].IsDeleted)
}

func TestDecodeRowRejectsMismatches(t *testing.T) {
	assert.ErrorContains(t, decodeRow(map[string]any{"Email": "x"}, &User{}), `unknown field "Email"`)
	assert.ErrorContains(t, decodeRow(map[string]any{"ID": "one"}, &User{}), "does not fit int64")
	assert.ErrorContains(t, decodeRow(map[string]any{"Login": 7}, &User{}), "does not fit string")

	u := &User{}
	require.NoError(t, decodeRow(map[string]any{"ID": 4, "IsDeleted": true, "Login": nil}, u))
	assert.Equal(t, &User{ID: 4, IsDeleted: true}, u)
}

func TestCatalogBindsTypes(t *testing.T) {
	c, err := Catalog()
	require.NoError(t, err)

	post, ok := c.Entity("Post")
	require.True(t, ok)
	assert.Equal(t, postType, post.Type())
	author, ok := post.Relation("Author")
	require.True(t, ok)
	assert.Equal(t, "author_id", author.ForeignKey)
}

func TestQueries(t *testing.T) {
	qs := Queries()
	require.Len(t, qs, len(queries))
	for i := 1; i < len(qs); i++ {
		assert.Less(t, qs[i-1].Name, qs[i].Name)
	}

	q, ok := Lookup("todays-posts")
	require.True(t, ok)
	assert.Equal(t, "todays-posts", q.Name)
	_, ok = Lookup("nope")
	assert.False(t, ok)
}

// The composed query from the package example must expand to the chain a
// developer would write by hand.
func TestExpansionMatchesHandWritten(t *testing.T) {
	ds := dataset(t)
	plain := ds.Sources()
	q, _ := Lookup("admin-editor-post-counts")

	got := q.Build(Expandable(plain))
	require.NoError(t, got.Err())

	want := seq.NewSelect(
		seq.NewWhere(
			seq.NewWhere(plain.Users.Expression(), ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
				return ast.Not(ast.Field(u, "IsDeleted"))
			})),
			ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
				return ast.Eq(ast.Field(u, "Login"), ast.Const("admin"))
			})),
		ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
			edited := seq.NewWhere(ast.Field(u, "Posts"), ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
				return ast.Eq(ast.Field(p, "UpdaterUserID"), ast.Const(int64(1)))
			}))
			return seq.NewCount(seq.NewWhere(edited, ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
				return ast.Not(ast.Field(p, "IsDeleted"))
			})))
		}),
	)
	testutil.AssertTree(t, want, got.Expression())
	assert.Equal(t, ast.String(want), got.String())

	counts, err := query.ToList[int](context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, counts)
}

func TestDeferredArgumentBindsLambdaParameter(t *testing.T) {
	pinToday(t, "2024-05-01")
	q, _ := Lookup("own-edits-today")

	got := q.Build(Expandable(dataset(t).Sources()))
	require.NoError(t, got.Err())

	call, ok := got.Expression().(*ast.Call)
	require.True(t, ok)
	outer := call.Args[1].(*ast.Quote).Params[0]
	require.NotNil(t, outer)
	assert.True(t, ast.Contains(got.Expression(), func(n ast.Node) bool {
		m, ok := n.(*ast.Member)
		return ok && m.Name == "ID" && m.Target == outer
	}), "u.ID refers to the projection's own parameter")

	counts, err := query.ToList[int](context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, counts)
}

func TestFilterTodayDefaultLimit(t *testing.T) {
	pinToday(t, "2024-05-01")
	q, _ := Lookup("todays-posts")

	got := q.Build(Expandable(dataset(t).Sources()))
	require.NoError(t, got.Err())
	assert.Equal(t,
		`posts.Where(p => !p.IsDeleted).Where(p => (p.CreatedOn >= "2024-05-01")).Take(10)`,
		got.String())

	posts, err := query.ToList[*Post](context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 13, 15}, ids(posts))
}

func ids(posts []*Post) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestGenericCombinatorsTakeSpecifications(t *testing.T) {
	q, _ := Lookup("active-post-titles")
	got := q.Build(Expandable(dataset(t).Sources()))
	require.NoError(t, got.Err())
	assert.Equal(t, "posts.Where(p => !p.IsDeleted).Select(p => p.Title)", got.String())

	titles, err := query.ToList[string](context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome", "Release notes", "Editor's pick", "Old news", "Tomorrow"}, titles)
}

func TestOpenParameterIsRejected(t *testing.T) {
	src := Expandable(dataset(t).Sources())
	q := query.From(src.Users).Select(ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
		spec := specification.Embed(ast.Static(NewPostByContent, ast.Field(u, "Login")))
		return seq.NewCount(ast.Field(u, "Posts"), spec)
	}))

	var ope *specification.OpenParameterError
	require.ErrorAs(t, q.Err(), &ope)
}

func TestSpecificationsEvaluateDirectly(t *testing.T) {
	ds := dataset(t)
	byID := map[int64]*Post{}
	for _, p := range ds.Posts {
		byID[p.ID] = p
	}

	cases := []struct {
		name string
		spec specification.Specification[*Post]
		post int64
		want bool
	}{
		{"active", PostActive, 10, true},
		{"deleted", PostActive, 11, false},
		{"title", PostByTitle{Title: "Welcome"}, 10, true},
		{"other title", PostByTitle{Title: "Welcome"}, 12, false},
		{"content", PostByContent("content"), 13, true},
		{"recursive via sibling", PostRecursive("hello"), 12, true},
		{"recursive other author", PostRecursive("hello"), 13, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := tc.spec.IsSatisfiedBy(byID[tc.post])
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

// rowKeys renders results so that entities loaded from SQLite, which carry
// no navigation properties, compare with their in-memory counterparts.
func rowKeys(t *testing.T, v any) []any {
	t.Helper()
	var out []any
	switch rows := v.(type) {
	case []*User:
		for _, u := range rows {
			out = append(out, u.ID)
		}
	case []*Post:
		for _, p := range rows {
			out = append(out, p.ID)
		}
	case []int:
		for _, n := range rows {
			out = append(out, n)
		}
	case []string:
		for _, s := range rows {
			out = append(out, s)
		}
	default:
		t.Fatalf("unexpected result %T", v)
	}
	return out
}

func TestBackendsAgree(t *testing.T) {
	pinToday(t, "2024-05-01")
	ctx := context.Background()
	mem := Expandable(dataset(t).Sources())
	stored, err := StoreSources(openStore(t))
	require.NoError(t, err)
	sql := Expandable(stored)

	for _, q := range Queries() {
		t.Run(q.Name, func(t *testing.T) {
			want, err := q.Build(mem).ToSlice(ctx)
			require.NoError(t, err)

			built := q.Build(sql)
			if q.Name == "own-edits-today" {
				_, err := built.ToSlice(ctx)
				assert.True(t, translate.IsUnsupported(err), "%v", err)
				return
			}
			require.NoError(t, built.Err())
			got, err := built.ToSlice(ctx)
			require.NoError(t, err)
			assert.Equal(t, rowKeys(t, want), rowKeys(t, got))
		})
	}
}
