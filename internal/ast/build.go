package ast

import (
	"fmt"
	"reflect"
)

var boolType = reflect.TypeOf(true)
var intType = reflect.TypeOf(0)

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Const returns a constant typed as v's dynamic type.
func Const(v any) *Constant {
	if v == nil {
		panic("ast: untyped nil constant; use TypedConst or Null")
	}
	return &Constant{Value: v, typ: reflect.TypeOf(v)}
}

// TypedConst returns a constant with an explicit static type.
func TypedConst(v any, t reflect.Type) *Constant {
	checkAssignable(v, t)
	return &Constant{Value: v, typ: t}
}

// Null returns the nil constant of a nillable type.
func Null(t reflect.Type) *Constant {
	return TypedConst(nil, t)
}

// NewParam returns a fresh lambda parameter.
func NewParam(name string, t reflect.Type) *Param {
	return &Param{Name: name, typ: t}
}

// ParamOf returns a fresh lambda parameter of type T.
func ParamOf[T any](name string) *Param {
	return NewParam(name, TypeOf[T]())
}

// Field reads member name of target: a captured variable when target is a
// closure constant, else a zero-argument method, else an exported struct
// field (through any number of pointers).
func Field(target Node, name string) *Member {
	if c, ok := target.(*Constant); ok {
		if cl, ok := c.Value.(*Closure); ok {
			return cl.Var(name)
		}
	}
	t := target.Type()
	if m, ok := t.MethodByName(name); ok {
		in := 1
		if t.Kind() == reflect.Interface {
			in = 0
		}
		if m.Type.NumIn() == in && m.Type.NumOut() == 1 {
			return &Member{Target: target, Name: name, Kind: MethodMember, typ: m.Type.Out(0)}
		}
	}
	st := t
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		if f, ok := st.FieldByName(name); ok && f.IsExported() {
			return &Member{Target: target, Name: name, Kind: FieldMember, typ: f.Type}
		}
	}
	panic(fmt.Sprintf("ast: %s has no readable member %q", t, name))
}

// Path chains Field reads: Path(u, "Author", "Login") is u.Author.Login.
func Path(target Node, names ...string) Node {
	for _, name := range names {
		target = Field(target, name)
	}
	return target
}

// At indexes target with args.
func At(target Node, args ...Node) *Index {
	t := target.Type()
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Array {
		t = t.Elem()
	}
	var elem reflect.Type
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if len(args) != 1 || !isInteger(args[0].Type()) {
			panic(fmt.Sprintf("ast: %s index needs one integer argument", t))
		}
		if t.Kind() == reflect.String {
			elem = reflect.TypeOf(byte(0))
		} else {
			elem = t.Elem()
		}
	case reflect.Map:
		if len(args) != 1 || !args[0].Type().AssignableTo(t.Key()) {
			panic(fmt.Sprintf("ast: %s index needs one %s argument", t, t.Key()))
		}
		elem = t.Elem()
	default:
		panic(fmt.Sprintf("ast: %s is not indexable", t))
	}
	return &Index{Target: target, Args: args, typ: elem}
}

// ConvertTo converts operand to t.
func ConvertTo(operand Node, t reflect.Type) *Convert {
	return &Convert{Operand: operand, typ: t}
}

// Not negates a boolean.
func Not(operand Node) *Unary {
	if operand.Type().Kind() != reflect.Bool {
		panic(fmt.Sprintf("ast: ! applied to %s", operand.Type()))
	}
	return &Unary{Op: OpNot, Operand: operand, typ: operand.Type()}
}

// Neg negates a number.
func Neg(operand Node) *Unary {
	if !isNumeric(operand.Type()) {
		panic(fmt.Sprintf("ast: unary - applied to %s", operand.Type()))
	}
	return &Unary{Op: OpNegate, Operand: operand, typ: operand.Type()}
}

// Len is the length of a slice, array, string or map.
func Len(operand Node) *Unary {
	switch operand.Type().Kind() {
	case reflect.Slice, reflect.Array, reflect.String, reflect.Map:
	default:
		panic(fmt.Sprintf("ast: len applied to %s", operand.Type()))
	}
	return &Unary{Op: OpLen, Operand: operand, typ: intType}
}

// Bin applies op to left and right. Operands must have identical types.
func Bin(op BinaryOp, left, right Node) *Binary {
	lt, rt := left.Type(), right.Type()
	switch {
	case op.IsLogical():
		if lt.Kind() != reflect.Bool || rt.Kind() != reflect.Bool {
			panic(fmt.Sprintf("ast: %s applied to %s and %s", op, lt, rt))
		}
		return &Binary{Op: op, Left: left, Right: right, typ: boolType}
	case lt != rt:
		panic(fmt.Sprintf("ast: mismatched operands %s %s %s", lt, op, rt))
	case op == OpEq || op == OpNe:
		if !lt.Comparable() {
			panic(fmt.Sprintf("ast: %s is not comparable", lt))
		}
		return &Binary{Op: op, Left: left, Right: right, typ: boolType}
	case op.IsComparison():
		if !isOrdered(lt) {
			panic(fmt.Sprintf("ast: %s is not ordered", lt))
		}
		return &Binary{Op: op, Left: left, Right: right, typ: boolType}
	case op == OpAdd && lt.Kind() == reflect.String:
		return &Binary{Op: op, Left: left, Right: right, typ: lt}
	default:
		if !isNumeric(lt) {
			panic(fmt.Sprintf("ast: %s applied to %s", op, lt))
		}
		return &Binary{Op: op, Left: left, Right: right, typ: lt}
	}
}

func Eq(l, r Node) *Binary  { return Bin(OpEq, l, r) }
func Ne(l, r Node) *Binary  { return Bin(OpNe, l, r) }
func Lt(l, r Node) *Binary  { return Bin(OpLt, l, r) }
func Le(l, r Node) *Binary  { return Bin(OpLe, l, r) }
func Gt(l, r Node) *Binary  { return Bin(OpGt, l, r) }
func Ge(l, r Node) *Binary  { return Bin(OpGe, l, r) }
func Add(l, r Node) *Binary { return Bin(OpAdd, l, r) }
func Sub(l, r Node) *Binary { return Bin(OpSub, l, r) }
func Mul(l, r Node) *Binary { return Bin(OpMul, l, r) }
func And(l, r Node) *Binary { return Bin(OpAndAlso, l, r) }
func Or(l, r Node) *Binary  { return Bin(OpOrElse, l, r) }

// NewCall builds a call of m. Target is nil for static calls.
func NewCall(target Node, m *Method, args ...Node) *Call {
	c := &Call{Target: target, Method: m, Args: args}
	types := make([]reflect.Type, 0, len(args)+1)
	for _, op := range c.Operands() {
		types = append(types, op.Type())
	}
	c.typ = m.resultType(types)
	return c
}

// Static builds a static call of m.
func Static(m *Method, args ...Node) *Call {
	return NewCall(nil, m, args...)
}

// Lambda quotes body as a function of params.
func Lambda(body Node, params ...*Param) *Quote {
	in := make([]reflect.Type, len(params))
	for i, p := range params {
		in[i] = p.Type()
	}
	ft := reflect.FuncOf(in, []reflect.Type{body.Type()}, false)
	return &Quote{Params: params, Body: body, typ: ft}
}

// Lambda1 builds a one-parameter lambda over T.
func Lambda1[T any](name string, body func(p *Param) Node) *Quote {
	p := ParamOf[T](name)
	return Lambda(body(p), p)
}

// Predicate returns the func(elem) bool type used for filters.
func Predicate(elem reflect.Type) reflect.Type {
	return reflect.FuncOf([]reflect.Type{elem}, []reflect.Type{boolType}, false)
}

// IsPredicate reports whether t is func(E) bool and returns E.
func IsPredicate(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 1 || t.Out(0).Kind() != reflect.Bool {
		return nil, false
	}
	return t.In(0), true
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNumeric(t reflect.Type) bool {
	return isInteger(t) || t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
}

func isOrdered(t reflect.Type) bool {
	return isNumeric(t) || t.Kind() == reflect.String
}

// withChildren rebuilds n with replacement children, preserving the
// resolved member kind and static types.
func withChildren(n Node, kids []Node) Node {
	switch n := n.(type) {
	case *Member:
		c := *n
		c.Target = kids[0]
		return &c
	case *Index:
		c := *n
		c.Target = kids[0]
		c.Args = kids[1:]
		return &c
	case *Convert:
		c := *n
		c.Operand = kids[0]
		return &c
	case *Unary:
		c := *n
		c.Operand = kids[0]
		return &c
	case *Binary:
		c := *n
		c.Left, c.Right = kids[0], kids[1]
		return &c
	case *Call:
		c := *n
		if n.Target != nil {
			c.Target = kids[0]
			kids = kids[1:]
		}
		c.Args = kids
		return &c
	case *Quote:
		c := *n
		c.Body = kids[0]
		return &c
	default:
		panic(fmt.Sprintf("ast: %T has no children", n))
	}
}
