package ast

import (
	"fmt"
	"reflect"
)

// Node is an immutable, typed expression tree node.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	// Type is the static type of the value the node produces.
	Type() reflect.Type

	node() // Marker method - seals interface to this package
}

// Constant is a literal value embedded in the tree.
//
// Constants also carry query sources (see Source) and closures (see
// Closure). Equality of source constants is identity: two constants refer
// to the same source only if they hold the same pointer.
type Constant struct {
	Value any
	typ   reflect.Type
}

func (*Constant) node() {}

// Type implements Node.
func (c *Constant) Type() reflect.Type { return c.typ }

// Param is a lambda parameter. Identity is the pointer: two parameters with
// the same name and type are different parameters.
type Param struct {
	Name string
	typ  reflect.Type
}

func (*Param) node() {}

// Type implements Node.
func (p *Param) Type() reflect.Type { return p.typ }

// MemberKind distinguishes how a Member is read.
type MemberKind int

const (
	// FieldMember reads a struct field, dereferencing pointers.
	FieldMember MemberKind = iota

	// MethodMember calls a zero-argument method (a property getter).
	MethodMember

	// ClosureMember reads a captured variable from a *Closure constant.
	ClosureMember
)

// Member reads a named member of Target.
type Member struct {
	Target Node
	Name   string
	Kind   MemberKind
	typ    reflect.Type
}

func (*Member) node() {}

// Type implements Node.
func (m *Member) Type() reflect.Type { return m.typ }

// IsClosureVar reports whether m reads a captured variable, that is, a
// field of a compiler-synthesized closure constant.
func (m *Member) IsClosureVar() bool {
	if m.Kind != ClosureMember {
		return false
	}
	_, ok := m.Target.(*Constant)
	return ok
}

// Index reads an element of a slice, array, string or map.
type Index struct {
	Target Node
	Args   []Node
	typ    reflect.Type
}

func (*Index) node() {}

// Type implements Node.
func (x *Index) Type() reflect.Type { return x.typ }

// Convert changes the static type of Operand.
//
// Pointer targets model nullable values: converting T to *T boxes the
// value, converting *T to T unboxes it.
type Convert struct {
	Operand Node
	typ     reflect.Type
}

func (*Convert) node() {}

// Type implements Node.
func (c *Convert) Type() reflect.Type { return c.typ }

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpLen
)

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Node
	typ     reflect.Type
}

func (*Unary) node() {}

// Type implements Node.
func (u *Unary) Type() reflect.Type { return u.typ }

// BinaryOp is a binary operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAndAlso
	OpOrElse
)

// IsComparison reports whether op yields a bool from two operands of the
// same type.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports whether op is a short-circuit boolean operator.
func (op BinaryOp) IsLogical() bool {
	return op == OpAndAlso || op == OpOrElse
}

// Binary applies a binary operator.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
	typ   reflect.Type
}

func (*Binary) node() {}

// Type implements Node.
func (b *Binary) Type() reflect.Type { return b.typ }

// Call invokes Method. Target is nil for static calls; sequence operators
// and combinators are static calls whose first argument is the source.
type Call struct {
	Target Node
	Method *Method
	Args   []Node
	typ    reflect.Type
}

func (*Call) node() {}

// Type implements Node.
func (c *Call) Type() reflect.Type { return c.typ }

// Operands returns the target (if any) followed by the arguments.
func (c *Call) Operands() []Node {
	if c.Target == nil {
		return c.Args
	}
	out := make([]Node, 0, len(c.Args)+1)
	out = append(out, c.Target)
	return append(out, c.Args...)
}

// Quote is a quoted lambda: the tree of a function rather than a compiled
// function. Its type is func(params...) body.
type Quote struct {
	Params []*Param
	Body   Node
	typ    reflect.Type
}

func (*Quote) node() {}

// Type implements Node.
func (q *Quote) Type() reflect.Type { return q.typ }

// Method describes a callable referenced by a Call node. Identity is the
// pointer.
type Method struct {
	// Owner names the declaring package or type, used for rendering and for
	// registry lookups by name.
	Owner string

	// Name is the method name.
	Name string

	// Fn optionally backs the method with a Go function for in-memory
	// execution. For instance calls the receiver is the first argument.
	// Fn may return (T) or (T, error).
	Fn any

	// Returns computes the result type from the operand types (target
	// first, for instance calls). Nil means Fn's first result type.
	Returns func(operands []reflect.Type) reflect.Type

	// Expandable marks combinators: calls that must be inlined before a
	// provider sees the tree.
	Expandable bool
}

// String returns Owner.Name.
func (m *Method) String() string {
	if m.Owner == "" {
		return m.Name
	}
	return m.Owner + "." + m.Name
}

func (m *Method) resultType(operands []reflect.Type) reflect.Type {
	if m.Returns != nil {
		return m.Returns(operands)
	}
	if m.Fn != nil {
		ft := reflect.TypeOf(m.Fn)
		if ft.Kind() == reflect.Func && ft.NumOut() > 0 {
			return ft.Out(0)
		}
	}
	panic(fmt.Sprintf("ast: method %s has no result type", m))
}

// Source marks constant values that stand for a queryable data source
// rather than a literal.
type Source interface {
	ElemType() reflect.Type
}

// Expressible is implemented by predicate objects that can describe
// themselves as a quoted lambda.
type Expressible interface {
	ToAST() *Quote
}

// Children returns the direct sub-trees of n in evaluation order.
// Lambda parameters are binders, not children.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Constant, *Param:
		return nil
	case *Member:
		return []Node{n.Target}
	case *Index:
		return append([]Node{n.Target}, n.Args...)
	case *Convert:
		return []Node{n.Operand}
	case *Unary:
		return []Node{n.Operand}
	case *Binary:
		return []Node{n.Left, n.Right}
	case *Call:
		return n.Operands()
	case *Quote:
		return []Node{n.Body}
	default:
		panic(fmt.Sprintf("ast: unknown node %T", n))
	}
}
