package store

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/combinator"
	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/query"
	"github.com/roach88/qexpand/internal/seq"
	"github.com/roach88/qexpand/internal/translate"
)

const modelCUE = `
entity: User: {
	table: "users"
	fields: {
		ID:        {column: "id", type: int}
		Login:     {column: "login", type: string}
		IsDeleted: {column: "is_deleted", type: bool}
	}
	has_many: Posts: {entity: "Post", foreign_key: "author_id"}
}

entity: Post: {
	table: "posts"
	fields: {
		ID:        {column: "id", type: int}
		Title:     {column: "title", type: string}
		AuthorID:  {column: "author_id", type: int}
		IsDeleted: {column: "is_deleted", type: bool}
	}
	belongs_to: Author: {entity: "User", foreign_key: "author_id"}
}
`

const fixturesYAML = `
- entity: User
  rows:
    - {ID: 1, Login: admin}
    - {ID: 2, Login: guest, IsDeleted: true}
- entity: Post
  rows:
    - {ID: 10, Title: Welcome, AuthorID: 1}
    - {ID: 11, Title: Drafts, AuthorID: 1, IsDeleted: true}
    - {ID: 12, Title: Hello, AuthorID: 2}
    - {ID: 13, Title: "Café", AuthorID: 1}
`

type postList []*post

type user struct {
	ID        int64
	Login     string
	IsDeleted bool
	Posts     postList
}

type post struct {
	ID        int64
	Title     string
	AuthorID  int64
	IsDeleted bool
	Author    *user
}

func testCatalog(t *testing.T) *mapping.Catalog {
	t.Helper()
	c, err := mapping.Load("model.cue", []byte(modelCUE))
	require.NoError(t, err)
	require.NoError(t, mapping.Bind[user](c, "User"))
	require.NoError(t, mapping.Bind[post](c, "Post"))
	return c
}

func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), testCatalog(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seededStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := createTestStore(t, opts...)
	fx, err := ParseFixtures(strings.NewReader(fixturesYAML))
	require.NoError(t, err)
	n, err := s.Load(context.Background(), fx)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	return s
}

func table(t *testing.T, s *Store, name string) *Table {
	t.Helper()
	tbl, err := s.Table(name)
	require.NoError(t, err)
	return tbl
}

func TestLoadIsIdempotent(t *testing.T) {
	s := seededStore(t)
	fx, err := ParseFixtures(strings.NewReader(fixturesYAML))
	require.NoError(t, err)

	_, err = s.Load(context.Background(), fx)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count))
	assert.Equal(t, 4, count)
}

func TestLoadRejectsBadFixtures(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, Fixtures{{Entity: "Comment"}})
	assert.ErrorContains(t, err, `unknown entity "Comment"`)

	_, err = s.Load(ctx, Fixtures{{Entity: "User", Rows: []map[string]any{{"ID": 1, "Email": "x"}}}})
	assert.ErrorContains(t, err, `unknown field "Email"`)

	_, err = s.Load(ctx, Fixtures{{Entity: "User", Rows: []map[string]any{{"ID": "one"}}}})
	assert.ErrorContains(t, err, "is not a valid int")

	_, err = ParseFixtures(strings.NewReader("- entity: User\n  columns: []\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestTable(t *testing.T) {
	s := createTestStore(t)
	posts := table(t, s, "Post")

	assert.Equal(t, "posts", ast.String(posts.Expression()))
	assert.Same(t, posts.Expression(), posts.Expression())
	assert.Equal(t, reflect.TypeOf(&post{}), posts.ElemType())

	_, err := s.Table("Comment")
	assert.ErrorContains(t, err, "unknown entity")
}

func TestExecuteEntities(t *testing.T) {
	s := seededStore(t)
	users := table(t, s, "User")
	ctx := context.Background()

	active := query.From(users).Where(ast.Lambda1[*user]("u", func(u *ast.Param) ast.Node {
		return ast.Not(ast.Field(u, "IsDeleted"))
	}))
	require.NoError(t, active.Err())

	got, err := query.ToList[*user](ctx, active)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, &user{ID: 1, Login: "admin"}, got[0])
}

func TestExecuteValuesAndScalars(t *testing.T) {
	s := seededStore(t)
	posts := table(t, s, "Post")
	ctx := context.Background()

	titles := query.From(posts).Select(ast.Lambda1[*post]("p", func(p *ast.Param) ast.Node {
		return ast.Field(p, "Title")
	}))
	got, err := query.ToList[string](ctx, titles)
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome", "Drafts", "Hello", "Café"}, got, "ordered by key, NFC on write")

	n, err := query.From(posts).Take(2).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := query.From(posts).Where(ast.Lambda1[*post]("p", func(p *ast.Param) ast.Node {
		return ast.Eq(ast.Path(p, "Author", "Login"), ast.Const("nobody"))
	})).Any(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEnumerateStreams(t *testing.T) {
	s := seededStore(t)
	posts := table(t, s, "Post")
	ctx := context.Background()

	cur, err := query.From(posts).Take(3).Cursor(ctx)
	require.NoError(t, err)
	defer cur.Close()
	require.IsType(t, &rowsCursor{}, cur)

	var ids []int64
	for cur.Next(ctx) {
		ids = append(ids, cur.Value().(*post).ID)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []int64{10, 11, 12}, ids)
}

func TestEnumerateHonorsCancellation(t *testing.T) {
	s := seededStore(t)
	posts := table(t, s, "Post")

	ctx, cancel := context.WithCancel(context.Background())
	cur, err := query.Enumerate(ctx, posts)
	require.NoError(t, err)
	defer cur.Close()

	require.True(t, cur.Next(ctx))
	cancel()
	assert.False(t, cur.Next(ctx))
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}

var filterActive = combinator.New(combinator.Def{
	Owner: "posts", Name: "FilterActive", Elem: reflect.TypeOf(&post{}),
	Body: func(src ast.Node, _ *combinator.Args) (ast.Node, error) {
		return seq.NewWhere(src, ast.Lambda1[*post]("p", func(p *ast.Param) ast.Node {
			return ast.Not(ast.Field(p, "IsDeleted"))
		})), nil
	},
})

func TestRejectsUnexpandedCombinators(t *testing.T) {
	s := seededStore(t)
	posts := table(t, s, "Post")

	q := query.From(posts).Apply(filterActive)
	require.Error(t, q.Err())
	assert.True(t, translate.IsUnsupported(q.Err()))

	reg, err := combinator.NewRegistry(filterActive)
	require.NoError(t, err)
	expanded := query.From(query.AsExpandable(posts, query.WithRegistry(reg))).Apply(filterActive)
	n, err := expanded.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTranslationCache(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := seededStore(t, WithLogger(zap.New(core)))
	users := table(t, s, "User")

	byLogin := func(login string) ast.Node {
		return seq.NewWhere(users.Expression(), ast.Lambda1[*user]("u", func(u *ast.Param) ast.Node {
			return ast.Eq(ast.Field(u, "Login"), ast.Capture("login", login))
		}))
	}

	sql1, params1, err := s.provider.Statement(byLogin("admin"))
	require.NoError(t, err)
	_, _, err = s.provider.Statement(byLogin("admin"))
	require.NoError(t, err)
	_, params2, err := s.provider.Statement(byLogin("guest"))
	require.NoError(t, err)

	assert.Contains(t, sql1, `WHERE (t0."login" = ?)`)
	assert.Equal(t, []any{"admin"}, params1)
	assert.Equal(t, []any{"guest"}, params2)
	assert.Equal(t, 2, s.cache.Len())
	assert.Equal(t, 2, logs.FilterMessage("translated query").Len())

	// Captured structs render opaquely and are never cached.
	byAuthor := seq.NewWhere(table(t, s, "Post").Expression(), ast.Lambda1[*post]("p", func(p *ast.Param) ast.Node {
		return ast.Eq(ast.Field(p, "Author"), ast.Capture("author", &user{ID: 2}))
	}))
	_, params, err := s.provider.Statement(byAuthor)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2)}, params)
	assert.Equal(t, 2, s.cache.Len())
}

func TestAssign(t *testing.T) {
	var n int
	require.NoError(t, assign(reflect.ValueOf(&n).Elem(), int64(4)))
	assert.Equal(t, 4, n)

	var b bool
	require.NoError(t, assign(reflect.ValueOf(&b).Elem(), int64(1)))
	assert.True(t, b)

	var s *string
	require.NoError(t, assign(reflect.ValueOf(&s).Elem(), []byte("x")))
	require.NotNil(t, s)
	assert.Equal(t, "x", *s)

	require.NoError(t, assign(reflect.ValueOf(&s).Elem(), nil))
	assert.ErrorContains(t, assign(reflect.ValueOf(&n).Elem(), "4"), "cannot store string in int")
}
