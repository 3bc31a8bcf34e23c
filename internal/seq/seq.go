// Package seq is the sequence-operator vocabulary shared by query trees,
// the in-memory evaluator and downstream providers.
//
// A sequence is any slice or array; the canonical sequence type for
// element E is []E. Operators are static calls whose first argument is the
// source, so ast.String renders them in extension style:
//
//	users.Where(u => u.IsActive).Take(10)
package seq

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/qexpand/internal/ast"
)

const owner = "seq"

var (
	boolType = reflect.TypeOf(true)
	intType  = reflect.TypeOf(0)
)

// Operators. Identity is the pointer; compare calls with call.Method == seq.Where.
var (
	Where = &ast.Method{Owner: owner, Name: "Where", Returns: func(ts []reflect.Type) reflect.Type {
		return Of(mustElem(ts[0]))
	}}
	Select = &ast.Method{Owner: owner, Name: "Select", Returns: func(ts []reflect.Type) reflect.Type {
		return Of(ts[1].Out(0))
	}}
	SelectMany = &ast.Method{Owner: owner, Name: "SelectMany", Returns: func(ts []reflect.Type) reflect.Type {
		return Of(mustElem(ts[1].Out(0)))
	}}
	Take = &ast.Method{Owner: owner, Name: "Take", Returns: func(ts []reflect.Type) reflect.Type {
		return Of(mustElem(ts[0]))
	}}
	Count = &ast.Method{Owner: owner, Name: "Count", Returns: func([]reflect.Type) reflect.Type {
		return intType
	}}
	Any = &ast.Method{Owner: owner, Name: "Any", Returns: func([]reflect.Type) reflect.Type {
		return boolType
	}}
	AsSequence = &ast.Method{Owner: owner, Name: "AsSequence", Returns: func(ts []reflect.Type) reflect.Type {
		return Of(mustElem(ts[0]))
	}}

	// Contains reports whether a string contains a substring.
	Contains = &ast.Method{Owner: "strings", Name: "Contains", Fn: strings.Contains}

	// HasPrefix reports whether a string starts with a prefix.
	HasPrefix = &ast.Method{Owner: "strings", Name: "HasPrefix", Fn: strings.HasPrefix}
)

var operators = map[*ast.Method]bool{
	Where: true, Select: true, SelectMany: true, Take: true,
	Count: true, Any: true, AsSequence: true,
}

// IsOperator reports whether m is one of the sequence operators.
func IsOperator(m *ast.Method) bool {
	return operators[m]
}

// Of returns the canonical sequence type []elem.
func Of(elem reflect.Type) reflect.Type {
	return reflect.SliceOf(elem)
}

// Elem returns the element type of a sequence type.
func Elem(t reflect.Type) (reflect.Type, bool) {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem(), true
	}
	return nil, false
}

// IsSequence reports whether t is a slice or array type.
func IsSequence(t reflect.Type) bool {
	_, ok := Elem(t)
	return ok
}

// IsCanonical reports whether t is exactly []elem.
func IsCanonical(t reflect.Type, elem reflect.Type) bool {
	return t == Of(elem)
}

func mustElem(t reflect.Type) reflect.Type {
	e, ok := Elem(t)
	if !ok {
		panic(fmt.Sprintf("seq: %s is not a sequence", t))
	}
	return e
}

func checkPredicate(src, pred ast.Node) {
	elem := mustElem(src.Type())
	if in, ok := ast.IsPredicate(pred.Type()); !ok || in != elem {
		panic(fmt.Sprintf("seq: predicate for %s must be func(%s) bool, got %s", src.Type(), elem, pred.Type()))
	}
}

func checkProjection(src, proj ast.Node) {
	elem := mustElem(src.Type())
	pt := proj.Type()
	if pt.Kind() != reflect.Func || pt.NumIn() != 1 || pt.NumOut() != 1 || pt.In(0) != elem {
		panic(fmt.Sprintf("seq: projection for %s must be func(%s) R, got %s", src.Type(), elem, pt))
	}
}

// NewWhere builds src.Where(pred).
func NewWhere(src, pred ast.Node) *ast.Call {
	checkPredicate(src, pred)
	return ast.Static(Where, src, pred)
}

// NewSelect builds src.Select(proj).
func NewSelect(src, proj ast.Node) *ast.Call {
	checkProjection(src, proj)
	return ast.Static(Select, src, proj)
}

// NewSelectMany builds src.SelectMany(proj) where proj yields a sequence.
func NewSelectMany(src, proj ast.Node) *ast.Call {
	checkProjection(src, proj)
	mustElem(proj.Type().Out(0))
	return ast.Static(SelectMany, src, proj)
}

// NewTake builds src.Take(n).
func NewTake(src, n ast.Node) *ast.Call {
	mustElem(src.Type())
	if n.Type() != intType {
		panic(fmt.Sprintf("seq: Take count must be int, got %s", n.Type()))
	}
	return ast.Static(Take, src, n)
}

// NewCount builds src.Count() or src.Count(pred).
func NewCount(src ast.Node, pred ...ast.Node) *ast.Call {
	return optionalPredicate(Count, src, pred)
}

// NewAny builds src.Any() or src.Any(pred).
func NewAny(src ast.Node, pred ...ast.Node) *ast.Call {
	return optionalPredicate(Any, src, pred)
}

func optionalPredicate(m *ast.Method, src ast.Node, pred []ast.Node) *ast.Call {
	mustElem(src.Type())
	switch len(pred) {
	case 0:
		return ast.Static(m, src)
	case 1:
		checkPredicate(src, pred[0])
		return ast.Static(m, src, pred[0])
	}
	panic(fmt.Sprintf("seq: %s takes at most one predicate", m.Name))
}

// NewAsSequence converts any slice or array source to the canonical []E.
func NewAsSequence(src ast.Node) *ast.Call {
	return ast.Static(AsSequence, src)
}

// NewContains builds strings.Contains(s, sub).
func NewContains(s, sub ast.Node) *ast.Call {
	return ast.Static(Contains, s, sub)
}

// NewHasPrefix builds strings.HasPrefix(s, prefix).
func NewHasPrefix(s, prefix ast.Node) *ast.Call {
	return ast.Static(HasPrefix, s, prefix)
}
