// Package rebind re-targets references inside an expanded combinator body.
//
// A combinator body is built against a placeholder source and against
// references to its own arguments. The Rebinder swaps the placeholder for
// the real source and each deferred argument reference for the caller's
// original sub-tree, leaving everything else untouched.
package rebind

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/qexpand/internal/ast"
)

// Replacement maps a captured argument name to the sub-tree that replaces
// every read of it.
type Replacement struct {
	Name string
	Node ast.Node
}

// Rebinder rewrites one inlined body. It is not safe for reuse across
// bodies: it records which replacements were consumed.
type Rebinder struct {
	// Identity is the placeholder value. Constants holding exactly this
	// pointer are replaced with Source.
	Identity any

	// Source replaces the placeholder constant.
	Source ast.Node

	// Closure, when set, limits argument replacement to variables of this
	// closure. Nil matches captured variables of any closure.
	Closure *ast.Closure

	// Args are the deferred arguments.
	Args []Replacement

	consumed map[string]bool
}

// New returns a Rebinder for the given placeholder and deferred arguments.
func New(identity any, source ast.Node, args []Replacement) *Rebinder {
	if identity != nil && reflect.TypeOf(identity).Kind() != reflect.Pointer {
		panic(fmt.Sprintf("rebind: placeholder identity must be a pointer, got %T", identity))
	}
	return &Rebinder{Identity: identity, Source: source, Args: args}
}

func (r *Rebinder) lookup(name string) (ast.Node, bool) {
	for _, a := range r.Args {
		if a.Name == name {
			return a.Node, true
		}
	}
	return nil, false
}

// Rebind returns n with the placeholder and deferred argument references
// replaced. Sub-trees that contain neither are shared with n.
func (r *Rebinder) Rebind(n ast.Node) (ast.Node, error) {
	r.consumed = map[string]bool{}
	out, err := ast.Rewrite(n, func(n ast.Node) (ast.Node, bool, error) {
		switch n := n.(type) {
		case *ast.Constant:
			if r.Identity != nil && n.Value == r.Identity {
				return r.Source, true, nil
			}
		case *ast.Member:
			if !n.IsClosureVar() {
				return nil, false, nil
			}
			cl, _ := n.Target.(*ast.Constant).Value.(*ast.Closure)
			if r.Closure != nil && cl != r.Closure {
				return nil, false, nil
			}
			if repl, ok := r.lookup(n.Name); ok {
				r.consumed[n.Name] = true
				return repl, true, nil
			}
		}
		return nil, false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebind: %w", err)
	}
	return out, nil
}

// Unconsumed returns the deferred argument names that the last Rebind
// never found a reference to.
func (r *Rebinder) Unconsumed() []string {
	var out []string
	for _, a := range r.Args {
		if !r.consumed[a.Name] {
			out = append(out, a.Name)
		}
	}
	return out
}

// ReplaceParams substitutes parameters with sub-trees. It is how composed
// predicates share one parameter: the right operand's parameter is
// replaced by the left operand's.
func ReplaceParams(n ast.Node, with map[*ast.Param]ast.Node) (ast.Node, error) {
	return ast.Rewrite(n, func(n ast.Node) (ast.Node, bool, error) {
		if p, ok := n.(*ast.Param); ok {
			if repl, ok := with[p]; ok {
				return repl, true, nil
			}
		}
		return nil, false, nil
	})
}

// AmbiguousReplacementError reports a deferred argument whose value was
// baked into an expanded body instead of being referenced. The rebinder
// cannot restore the caller's sub-tree, so the expansion would silently
// use a stand-in value.
type AmbiguousReplacementError struct {
	Combinator string
	Names      []string
}

func (e *AmbiguousReplacementError) Error() string {
	return fmt.Sprintf("%s: arguments [%s] depend on lambda parameters but were read as values; use a reference instead",
		e.Combinator, strings.Join(e.Names, ", "))
}

// IsAmbiguous returns true if err is, or wraps, an AmbiguousReplacementError.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousReplacementError
	return errors.As(err, &ae)
}
