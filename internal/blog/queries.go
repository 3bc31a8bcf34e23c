package blog

import (
	"sort"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/query"
	"github.com/roach88/qexpand/internal/seq"
	"github.com/roach88/qexpand/internal/specification"
)

// Query is a named query over the blog tables.
type Query struct {
	Name        string
	Description string

	// Build composes the query. Over expandable sources the result holds
	// the expanded tree; over plain sources it holds the calls as written.
	Build func(src Sources) *query.Query
}

var queries = []Query{
	{
		Name:        "active-users",
		Description: "users that are not deleted",
		Build: func(src Sources) *query.Query {
			return query.From(src.Users).Apply(FilterActiveUsers)
		},
	},
	{
		Name:        "admin-editor-post-counts",
		Description: "for each active admin, the number of their active posts last edited by user 1",
		Build: func(src Sources) *query.Query {
			return query.From(src.Users).
				Apply(FilterByLogin, ast.Capture("login", "admin")).
				Select(ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
					edited := FilterByEditor.Call(ast.Field(u, "Posts"), ast.Capture("updaterID", int64(1)))
					return seq.NewCount(FilterActivePosts.Call(edited))
				}))
		},
	},
	{
		Name:        "own-edits-today",
		Description: "for each active admin, how many of today's posts they edited themselves",
		Build: func(src Sources) *query.Query {
			return query.From(src.Users).
				Apply(FilterByLogin, ast.Capture("login", "admin")).
				Select(ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
					own := FilterByEditor.Call(ast.Field(u, "Posts"), ast.Field(u, "ID"))
					return seq.NewCount(FilterToday.Call(own, ast.Const(5)))
				}))
		},
	},
	{
		Name:        "todays-posts",
		Description: "active posts created today, at most 10",
		Build: func(src Sources) *query.Query {
			return query.From(src.Posts).Apply(FilterToday)
		},
	},
	{
		Name:        "todays-top-posts",
		Description: "the first two active posts created today",
		Build: func(src Sources) *query.Query {
			return query.From(src.Posts).Apply(FilterToday, ast.Const(2))
		},
	},
	{
		Name:        "active-post-titles",
		Description: "titles of active posts, filtered with a specification passed to a generic combinator",
		Build: func(src Sources) *query.Query {
			return query.From(src.Posts).
				Apply(Filter, specification.Use[*Post](PostActive)).
				Apply(Map, ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
					return ast.Field(p, "Title")
				}))
		},
	},
	{
		Name:        "active-authors-posts",
		Description: "posts of active users, flattened with a generic combinator",
		Build: func(src Sources) *query.Query {
			return query.From(src.Users).
				Apply(FilterActiveUsers).
				Apply(FlatMap, ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
					return ast.Field(u, "Posts")
				}))
		},
	},
	{
		Name:        "welcome-posts",
		Description: "posts titled Welcome, through an explicit ToAST call on a captured specification",
		Build: func(src Sources) *query.Query {
			spec := ast.Capture("spec", PostByTitle{Title: "Welcome"})
			return query.From(src.Users).
				SelectMany(ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
					return seq.NewWhere(ast.Field(u, "Posts"), specification.Extract(spec))
				}))
		},
	},
	{
		Name:        "content-or-welcome-counts",
		Description: "per user, posts mentioning content or titled Welcome",
		Build: func(src Sources) *query.Query {
			either := specification.Or[*Post](PostByContent("content"), PostByTitle{Title: "Welcome"})
			return query.From(src.Users).
				Select(ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
					return seq.NewCount(ast.Field(u, "Posts"), specification.Use[*Post](either))
				}))
		},
	},
	{
		Name:        "posts-by-hello-authors",
		Description: "posts whose author wrote a post mentioning hello",
		Build: func(src Sources) *query.Query {
			return query.From(src.Users).
				SelectMany(ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
					return seq.NewWhere(ast.Field(u, "Posts"), specification.Use[*Post](PostRecursive("hello")))
				}))
		},
	},
	{
		Name:        "admin-sibling-posts",
		Description: "for every post, the posts of its author when that author is admin",
		Build: func(src Sources) *query.Query {
			return query.From(src.Posts).Apply(SiblingPostsByAuthorLogin, ast.Capture("login", "admin"))
		},
	},
}

// Queries returns the named queries sorted by name.
func Queries() []Query {
	out := append([]Query(nil), queries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a query by name.
func Lookup(name string) (Query, bool) {
	for _, q := range queries {
		if q.Name == name {
			return q, true
		}
	}
	return Query{}, false
}
