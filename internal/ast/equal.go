package ast

import "reflect"

// Equal reports whether a and b are the same tree up to renaming of lambda
// parameters.
//
// Constants and captured variables compare by static type and value, so a
// tree that captured limit=10 equals one that inlined the constant 10.
// Free parameters compare by identity.
func Equal(a, b Node) bool {
	return equal(a, b, nil)
}

type paramEnv struct {
	a, b   *Param
	parent *paramEnv
}

func (e *paramEnv) lookup(p *Param) (*Param, bool) {
	for ; e != nil; e = e.parent {
		if e.a == p {
			return e.b, true
		}
	}
	return nil, false
}

func equal(a, b Node, env *paramEnv) bool {
	if av, at, ok := leafValue(a); ok {
		bv, bt, ok := leafValue(b)
		return ok && at == bt && valuesEqual(av, bv)
	}
	switch a := a.(type) {
	case *Param:
		b, ok := b.(*Param)
		if !ok {
			return false
		}
		if want, bound := env.lookup(a); bound {
			return want == b
		}
		return a == b
	case *Member:
		b, ok := b.(*Member)
		return ok && a.Name == b.Name && a.Kind == b.Kind && equal(a.Target, b.Target, env)
	case *Index:
		b, ok := b.(*Index)
		return ok && equal(a.Target, b.Target, env) && equalList(a.Args, b.Args, env)
	case *Convert:
		b, ok := b.(*Convert)
		return ok && a.typ == b.typ && equal(a.Operand, b.Operand, env)
	case *Unary:
		b, ok := b.(*Unary)
		return ok && a.Op == b.Op && equal(a.Operand, b.Operand, env)
	case *Binary:
		b, ok := b.(*Binary)
		return ok && a.Op == b.Op && equal(a.Left, b.Left, env) && equal(a.Right, b.Right, env)
	case *Call:
		b, ok := b.(*Call)
		if !ok || a.Method != b.Method || (a.Target == nil) != (b.Target == nil) {
			return false
		}
		if a.Target != nil && !equal(a.Target, b.Target, env) {
			return false
		}
		return equalList(a.Args, b.Args, env)
	case *Quote:
		b, ok := b.(*Quote)
		if !ok || len(a.Params) != len(b.Params) {
			return false
		}
		for i, p := range a.Params {
			if p.typ != b.Params[i].typ {
				return false
			}
			env = &paramEnv{a: p, b: b.Params[i], parent: env}
		}
		return equal(a.Body, b.Body, env)
	}
	return false
}

func equalList(a, b []Node, env *paramEnv) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equal(a[i], b[i], env) {
			return false
		}
	}
	return true
}

func leafValue(n Node) (any, reflect.Type, bool) {
	switch n := n.(type) {
	case *Constant:
		return n.Value, n.typ, true
	case *Member:
		if v, ok := ClosureValue(n); ok {
			return v, n.typ, true
		}
	}
	return nil, nil, false
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	at, bt := reflect.TypeOf(a), reflect.TypeOf(b)
	if at != bt {
		return false
	}
	if at.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
