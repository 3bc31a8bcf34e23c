package combinator

import (
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
)

// Args gives a combinator body access to its arguments.
type Args struct {
	def      *Def
	elem     reflect.Type
	values   map[string]any
	types    map[string]reflect.Type
	nodes    map[string]ast.Node
	deferred map[string]bool
	baked    map[string]bool
	refs     *ast.Closure
}

func newArgs(def *Def, elem reflect.Type) *Args {
	return &Args{
		def:      def,
		elem:     elem,
		values:   map[string]any{},
		types:    map[string]reflect.Type{},
		nodes:    map[string]ast.Node{},
		deferred: map[string]bool{},
		baked:    map[string]bool{},
		refs:     ast.NewClosure(),
	}
}

func (a *Args) set(name string, v any, t reflect.Type, n ast.Node) {
	a.values[name] = v
	a.types[name] = t
	a.nodes[name] = n
	if ast.Assignable(v, t) {
		a.refs.BindTyped(name, v, t)
	}
}

func (a *Args) check(name string) {
	if _, ok := a.values[name]; !ok {
		panic(fmt.Sprintf("combinator: %s has no parameter %q", a.def, name))
	}
}

// Elem is the source element type.
func (a *Args) Elem() reflect.Type {
	return a.elem
}

// Value returns the evaluated argument. For an argument that depends on a
// lambda parameter it returns the stand-in value; building that value into
// the expansion is reported as an ambiguous replacement.
func (a *Args) Value(name string) any {
	a.check(name)
	if a.deferred[name] {
		a.baked[name] = true
	}
	return a.values[name]
}

// Deferred reports whether the argument could not be evaluated at
// expansion time.
func (a *Args) Deferred(name string) bool {
	a.check(name)
	return a.deferred[name]
}

// Ref returns a reference to the argument suitable for embedding in the
// expansion. Evaluated arguments keep their value; deferred arguments are
// rebound to the caller's sub-tree.
func (a *Args) Ref(name string) ast.Node {
	a.check(name)
	if _, ok := a.refs.Lookup(name); !ok {
		panic(fmt.Sprintf("combinator: %s argument %s evaluates to %T and cannot be referenced; use Expr", a.def, name, a.values[name]))
	}
	return a.refs.Var(name)
}

// Expr returns the call-site sub-tree of the argument, or a constant
// holding the default when the call site omitted it. Use it for lambda
// arguments that are spliced into the expansion as they are.
func (a *Args) Expr(name string) ast.Node {
	a.check(name)
	if n := a.nodes[name]; n != nil {
		return n
	}
	return ast.TypedConst(a.values[name], a.types[name])
}

// Quote returns a quoted-lambda argument.
func (a *Args) Quote(name string) (*ast.Quote, error) {
	switch v := a.Value(name).(type) {
	case *ast.Quote:
		return v, nil
	case ast.Expressible:
		return v.ToAST(), nil
	}
	if q, ok := a.Expr(name).(*ast.Quote); ok {
		return q, nil
	}
	return nil, fmt.Errorf("%s: argument %s is %s, not a lambda", a.def, name, a.types[name])
}

func (a *Args) bakedNames(unconsumed []string) []string {
	var out []string
	for _, name := range unconsumed {
		if a.baked[name] {
			out = append(out, name)
		}
	}
	return out
}
