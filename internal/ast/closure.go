package ast

import (
	"fmt"
	"reflect"
)

// Closure holds captured variables. A reference to a captured variable is
// a Member of kind ClosureMember whose target is a Constant holding the
// closure; this is the shape the rebinder looks for when it re-targets
// combinator arguments.
type Closure struct {
	names []string
	vals  map[string]any
	types map[string]reflect.Type
}

var closureType = reflect.TypeOf((*Closure)(nil))

// NewClosure returns an empty closure.
func NewClosure() *Closure {
	return &Closure{vals: map[string]any{}, types: map[string]reflect.Type{}}
}

// Bind captures v under name, typed as v's dynamic type.
func (c *Closure) Bind(name string, v any) *Closure {
	if v == nil {
		panic(fmt.Sprintf("ast: closure variable %q bound to untyped nil; use BindTyped", name))
	}
	return c.BindTyped(name, v, reflect.TypeOf(v))
}

// BindTyped captures v under name with an explicit static type.
func (c *Closure) BindTyped(name string, v any, t reflect.Type) *Closure {
	checkAssignable(v, t)
	if _, ok := c.vals[name]; !ok {
		c.names = append(c.names, name)
	}
	c.vals[name] = v
	c.types[name] = t
	return c
}

// Lookup returns the value captured under name.
func (c *Closure) Lookup(name string) (any, bool) {
	v, ok := c.vals[name]
	return v, ok
}

// Names returns captured variable names in binding order.
func (c *Closure) Names() []string {
	return append([]string(nil), c.names...)
}

// Var returns a reference to the captured variable name.
func (c *Closure) Var(name string) *Member {
	t, ok := c.types[name]
	if !ok {
		panic(fmt.Sprintf("ast: closure has no variable %q", name))
	}
	return &Member{
		Target: &Constant{Value: c, typ: closureType},
		Name:   name,
		Kind:   ClosureMember,
		typ:    t,
	}
}

// Capture is shorthand for a one-variable closure reference.
func Capture(name string, v any) *Member {
	return NewClosure().Bind(name, v).Var(name)
}

// ClosureValue returns the value of a captured variable reference.
func ClosureValue(m *Member) (any, bool) {
	if !m.IsClosureVar() {
		return nil, false
	}
	c, ok := m.Target.(*Constant).Value.(*Closure)
	if !ok {
		return nil, false
	}
	return c.Lookup(m.Name)
}

// Assignable reports whether v may be held by a constant or closure
// variable of static type t. Sources may stand for any sequence of their
// element type.
func Assignable(v any, t reflect.Type) bool {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	if s, ok := v.(Source); ok {
		if (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem() == s.ElemType() {
			return true
		}
	}
	return reflect.TypeOf(v).AssignableTo(t)
}

func checkAssignable(v any, t reflect.Type) {
	if !Assignable(v, t) {
		panic(fmt.Sprintf("ast: %s is not a valid %s", FormatValue(v), t))
	}
}
