package blog

import (
	"reflect"
	"time"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/combinator"
	"github.com/roach88/qexpand/internal/seq"
)

// DateLayout is the format of Post.CreatedOn.
const DateLayout = "2006-01-02"

// Now is the clock FilterToday reads.
var Now = time.Now

// Today returns the current UTC date in DateLayout.
func Today() string {
	return Now().UTC().Format(DateLayout)
}

var (
	userType = reflect.TypeOf(&User{})
	postType = reflect.TypeOf(&Post{})
)

// FilterActiveUsers keeps users that are not deleted.
var FilterActiveUsers = combinator.Define(combinator.Def{
	Owner: "users", Name: "FilterIsActive", Elem: userType,
	Body: func(src ast.Node, _ *combinator.Args) (ast.Node, error) {
		return seq.NewWhere(src, ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
			return ast.Not(ast.Field(u, "IsDeleted"))
		})), nil
	},
})

// FilterByLogin keeps active users with the given login.
var FilterByLogin = combinator.Define(combinator.Def{
	Owner: "users", Name: "FilterByLogin", Elem: userType,
	Params: []combinator.Param{{Name: "login", Type: reflect.TypeOf("")}},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		return seq.NewWhere(FilterActiveUsers.Call(src), ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
			return ast.Eq(ast.Field(u, "Login"), args.Ref("login"))
		})), nil
	},
})

// FilterActivePosts keeps posts that are not deleted.
var FilterActivePosts = combinator.Define(combinator.Def{
	Owner: "posts", Name: "FilterIsActive", Elem: postType,
	Body: func(src ast.Node, _ *combinator.Args) (ast.Node, error) {
		return seq.NewWhere(src, ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
			return ast.Not(ast.Field(p, "IsDeleted"))
		})), nil
	},
})

// FilterToday keeps at most limit active posts created today or later.
var FilterToday = combinator.Define(combinator.Def{
	Owner: "posts", Name: "FilterToday", Elem: postType,
	Params: []combinator.Param{{Name: "limit", Type: reflect.TypeOf(0), Default: 10, HasDefault: true}},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		today := Today()
		recent := seq.NewWhere(FilterActivePosts.Call(src), ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
			return ast.Ge(ast.Field(p, "CreatedOn"), ast.Capture("today", today))
		}))
		return seq.NewTake(recent, args.Ref("limit")), nil
	},
})

// FilterByEditor keeps posts last updated by editorID.
var FilterByEditor = combinator.Define(combinator.Def{
	Owner: "posts", Name: "FilterByEditor", Elem: postType,
	Params: []combinator.Param{{Name: "editorID", Type: reflect.TypeOf(int64(0))}},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		return seq.NewWhere(src, ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
			return ast.Eq(ast.Field(p, "UpdaterUserID"), args.Ref("editorID"))
		})), nil
	},
})

// Filter is Where as a combinator. It applies to any element type.
var Filter = combinator.Define(combinator.Def{
	Owner: "generic", Name: "Filter",
	Params: []combinator.Param{{Name: "predicate"}},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		return seq.NewWhere(src, args.Expr("predicate")), nil
	},
})

// Map is Select as a combinator.
var Map = combinator.Define(combinator.Def{
	Owner: "generic", Name: "Map",
	Params: []combinator.Param{{Name: "projection"}},
	Result: func(_ reflect.Type, args []reflect.Type) reflect.Type {
		return seq.Of(args[0].Out(0))
	},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		return seq.NewSelect(src, args.Expr("projection")), nil
	},
})

// FlatMap is SelectMany as a combinator.
var FlatMap = combinator.Define(combinator.Def{
	Owner: "generic", Name: "FlatMap",
	Params: []combinator.Param{{Name: "projection"}},
	Result: func(_ reflect.Type, args []reflect.Type) reflect.Type {
		elem, _ := seq.Elem(args[0].Out(0))
		return seq.Of(elem)
	},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		return seq.NewSelectMany(src, args.Expr("projection")), nil
	},
})

// HasPostsWithAuthorByLogin keeps posts whose author has the given login.
var HasPostsWithAuthorByLogin = combinator.Define(combinator.Def{
	Owner: "nested", Name: "HasPostsWithAuthorByLogin", Elem: postType,
	Params: []combinator.Param{{Name: "login", Type: reflect.TypeOf("")}},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		return seq.NewWhere(src, ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
			return ast.Eq(ast.Path(p, "Author", "Login"), args.Ref("login"))
		})), nil
	},
})

// SiblingPostsByAuthorLogin flattens, for every post, the posts of its
// author when that author has the given login. The inner call is expanded
// inside the lambda.
var SiblingPostsByAuthorLogin = combinator.Define(combinator.Def{
	Owner: "nested", Name: "SiblingPostsByAuthorLogin", Elem: postType,
	Params: []combinator.Param{{Name: "login", Type: reflect.TypeOf("")}},
	Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
		return seq.NewSelectMany(src, ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
			return HasPostsWithAuthorByLogin.Call(ast.Path(p, "Author", "Posts"), args.Ref("login"))
		})), nil
	},
})
