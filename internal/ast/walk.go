package ast

import (
	"fmt"
	"reflect"
)

// RewriteFunc inspects n before its children. Returning handled=true
// replaces n with repl and skips its children; returning handled=false
// descends into the children.
type RewriteFunc func(n Node) (repl Node, handled bool, err error)

// TypeChangeError reports a rewrite whose replacement cannot stand in for
// the node it replaces.
type TypeChangeError struct {
	Node Node
	From reflect.Type
	To   reflect.Type
}

func (e *TypeChangeError) Error() string {
	return fmt.Sprintf("rewrite of %s changed type %s to %s", String(e.Node), e.From, e.To)
}

// Rewrite walks n pre-order and applies fn. Unchanged sub-trees are
// returned by reference; a node is rebuilt only when one of its children
// changed.
func Rewrite(n Node, fn RewriteFunc) (Node, error) {
	repl, handled, err := fn(n)
	if err != nil {
		return nil, err
	}
	if handled {
		if repl == nil {
			return nil, fmt.Errorf("rewrite of %s returned nil", String(n))
		}
		if repl != n && !repl.Type().AssignableTo(n.Type()) {
			return nil, &TypeChangeError{Node: n, From: n.Type(), To: repl.Type()}
		}
		return repl, nil
	}

	kids := Children(n)
	var out []Node
	for i, kid := range kids {
		nk, err := Rewrite(kid, fn)
		if err != nil {
			return nil, err
		}
		if nk != kid && out == nil {
			out = make([]Node, i, len(kids))
			copy(out, kids[:i])
		}
		if out != nil {
			out = append(out, nk)
		}
	}
	if out == nil {
		return n, nil
	}
	return withChildren(n, out), nil
}

// Inspect walks n pre-order. If fn returns false the children of the
// current node are skipped.
func Inspect(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, kid := range Children(n) {
		Inspect(kid, fn)
	}
}

// Contains reports whether any node in n satisfies pred.
func Contains(n Node, pred func(Node) bool) bool {
	found := false
	Inspect(n, func(x Node) bool {
		if found {
			return false
		}
		if pred(x) {
			found = true
			return false
		}
		return true
	})
	return found
}

// FreeParams returns the parameters referenced in n that no lambda inside
// n binds, in first-reference order.
func FreeParams(n Node) []*Param {
	var free []*Param
	seen := map[*Param]bool{}
	var walk func(Node, map[*Param]bool)
	walk = func(n Node, bound map[*Param]bool) {
		switch n := n.(type) {
		case *Param:
			if !bound[n] && !seen[n] {
				seen[n] = true
				free = append(free, n)
			}
		case *Quote:
			inner := make(map[*Param]bool, len(bound)+len(n.Params))
			for p := range bound {
				inner[p] = true
			}
			for _, p := range n.Params {
				inner[p] = true
			}
			walk(n.Body, inner)
		default:
			for _, kid := range Children(n) {
				walk(kid, bound)
			}
		}
	}
	walk(n, map[*Param]bool{})
	return free
}
