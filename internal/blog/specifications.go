package blog

import (
	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/seq"
	"github.com/roach88/qexpand/internal/specification"
)

// PostActive is satisfied by posts that are not deleted.
var PostActive = specification.New[*Post]("PostActive", func(p *ast.Param) ast.Node {
	return ast.Not(ast.Field(p, "IsDeleted"))
})

// PostByTitle matches posts by exact title. It implements the
// specification protocol directly instead of wrapping a Predicate.
type PostByTitle struct {
	Title string
}

var _ specification.Specification[*Post] = PostByTitle{}

// ToAST implements ast.Expressible.
func (s PostByTitle) ToAST() *ast.Quote {
	return ast.Lambda1[*Post]("p", func(p *ast.Param) ast.Node {
		return ast.Eq(ast.Field(p, "Title"), ast.Capture("title", s.Title))
	})
}

// IsSatisfiedBy reports whether p has the title.
func (s PostByTitle) IsSatisfiedBy(p *Post) (bool, error) {
	return p.Title == s.Title, nil
}

// PostByContent matches posts whose content contains text.
func PostByContent(text string) *specification.Predicate[*Post] {
	return specification.New[*Post]("PostByContent", func(p *ast.Param) ast.Node {
		return seq.NewContains(ast.Field(p, "Content"), ast.Capture("content", text))
	})
}

// PostRecursive matches posts whose author wrote some post containing
// text. It is defined in terms of PostByContent over the author's posts.
func PostRecursive(text string) *specification.Predicate[*Post] {
	return specification.New[*Post]("PostRecursive", func(p *ast.Param) ast.Node {
		return seq.NewAny(ast.Path(p, "Author", "Posts"), specification.Use[*Post](PostByContent(text)))
	})
}

// NewPostByContent is PostByContent as a tree method, for queries that
// construct the specification inside the tree.
var NewPostByContent = &ast.Method{Owner: "blog", Name: "PostByContent", Fn: PostByContent}
