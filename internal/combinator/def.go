// Package combinator defines reusable query fragments and the pass that
// inlines them.
//
// A combinator is a Go function that builds a query tree from a source
// tree and a set of arguments. Calls to combinators appear in query trees
// as calls of an Expandable method; providers cannot execute them, so the
// Expander runs each body natively against a placeholder source and
// splices the result into the caller's tree:
//
//	var ByLogin = combinator.Define(combinator.Def{
//		Owner: "users", Name: "FilterByLogin", Elem: userType,
//		Params: []combinator.Param{{Name: "login", Type: stringType}},
//		Body: func(src ast.Node, args *combinator.Args) (ast.Node, error) {
//			return seq.NewWhere(src, ast.Lambda1[*User]("u", func(u *ast.Param) ast.Node {
//				return ast.Eq(ast.Field(u, "Login"), args.Ref("login"))
//			})), nil
//		},
//	})
//
// Arguments that depend on an enclosing lambda parameter cannot be
// evaluated at expansion time. The body sees a stand-in value for them and
// every Ref to such an argument is rebound to the caller's sub-tree.
package combinator

import (
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/seq"
)

// Param is a formal combinator parameter.
type Param struct {
	Name string

	// Type is the static parameter type. Nil accepts any argument, which
	// generic combinators use for element-typed lambdas.
	Type reflect.Type

	// Default is used when the call site omits the argument and as the
	// stand-in when the argument cannot be evaluated.
	Default    any
	HasDefault bool
}

// Def describes a combinator.
type Def struct {
	Owner string
	Name  string

	// Elem restricts the source to sequences of Elem. Nil makes the
	// combinator generic over the source element type.
	Elem reflect.Type

	Params []Param

	// Result computes the result type from the source element type and the
	// argument types. Nil means the combinator returns []elem.
	Result func(elem reflect.Type, args []reflect.Type) reflect.Type

	// Body builds the expansion. src is a constant standing for the source.
	Body func(src ast.Node, args *Args) (ast.Node, error)

	method *ast.Method
}

// New validates d and returns it ready for use in a Registry. Most code
// calls Define instead, which also registers the combinator with the
// default registry.
func New(d Def) *Def {
	if d.Name == "" || d.Body == nil {
		panic("combinator: Def needs a Name and a Body")
	}
	seen := map[string]bool{}
	for i, p := range d.Params {
		if p.Name == "" || seen[p.Name] {
			panic(fmt.Sprintf("combinator: %s parameter %d has an empty or duplicate name", d.Name, i))
		}
		seen[p.Name] = true
		if p.HasDefault && p.Type != nil && !ast.Assignable(p.Default, p.Type) {
			panic(fmt.Sprintf("combinator: %s default for %s is %s, not %s", d.Name, p.Name, ast.FormatValue(p.Default), p.Type))
		}
	}
	def := &d
	def.method = &ast.Method{
		Owner:      d.Owner,
		Name:       d.Name,
		Expandable: true,
		Returns:    def.resultType,
	}
	return def
}

// String returns Owner.Name.
func (d *Def) String() string {
	return d.method.String()
}

// Method returns the tagged method that identifies calls of d.
func (d *Def) Method() *ast.Method {
	return d.method
}

func (d *Def) elemOf(src reflect.Type) reflect.Type {
	elem, ok := seq.Elem(src)
	if !ok {
		panic(fmt.Sprintf("combinator: %s source %s is not a sequence", d, src))
	}
	if d.Elem != nil && elem != d.Elem {
		panic(fmt.Sprintf("combinator: %s applies to sequences of %s, got %s", d, d.Elem, src))
	}
	return elem
}

func (d *Def) resultType(operands []reflect.Type) reflect.Type {
	elem := d.elemOf(operands[0])
	if d.Result != nil {
		return d.Result(elem, operands[1:])
	}
	return seq.Of(elem)
}

// Call builds src.Name(args...). Trailing arguments may be omitted when
// their parameters declare defaults.
func (d *Def) Call(src ast.Node, args ...ast.Node) *ast.Call {
	if len(args) > len(d.Params) {
		panic(fmt.Sprintf("combinator: %s takes %d arguments, got %d", d, len(d.Params), len(args)))
	}
	for i, p := range d.Params {
		if i >= len(args) {
			if !p.HasDefault {
				panic(fmt.Sprintf("combinator: %s missing argument %s", d, p.Name))
			}
			continue
		}
		if p.Type != nil && !args[i].Type().AssignableTo(p.Type) {
			panic(fmt.Sprintf("combinator: %s argument %s is %s, not %s", d, p.Name, args[i].Type(), p.Type))
		}
	}
	return ast.Static(d.method, append([]ast.Node{src}, args...)...)
}
