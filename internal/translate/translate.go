// Package translate turns expanded query trees into relational queries.
//
// Only the sequence vocabulary, member access on mapped entities and
// scalar operators have a relational form. Anything else, in particular a
// combinator call or specification conversion that was never expanded, is
// rejected with an UnsupportedError naming the offending node.
//
//	tr := translate.New(catalog)
//	plan, err := tr.Translate(expr)
//	sql, params, err := querysql.NewSQLCompiler().Compile(plan.Query)
package translate

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/queryir"
	"github.com/roach88/qexpand/internal/seq"
)

// ErrUnsupported is wrapped by every UnsupportedError.
var ErrUnsupported = errors.New("no relational translation")

// UnsupportedError reports a node the translator cannot express.
type UnsupportedError struct {
	Node   ast.Node
	Reason string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("cannot translate %s: %s", ast.String(e.Node), e.Reason)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// IsUnsupported reports whether err is or wraps an UnsupportedError.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func unsupported(n ast.Node, format string, args ...any) error {
	return &UnsupportedError{Node: n, Reason: fmt.Sprintf(format, args...)}
}

// TableSource is a source backed by a mapped table.
type TableSource interface {
	ast.Source
	Entity() *mapping.Entity
}

// Shape is the kind of result a plan produces.
type Shape int

const (
	// Entities is a sequence of mapped rows materialized as entity values.
	Entities Shape = iota

	// Values is a sequence of scalars, one per row.
	Values

	// Single is one scalar, the result of Count or Any.
	Single
)

func (s Shape) String() string {
	switch s {
	case Entities:
		return "entities"
	case Values:
		return "values"
	case Single:
		return "single"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Plan is a translated query.
type Plan struct {
	Query *queryir.Select
	Shape Shape

	// Entity is the mapped entity of an Entities plan.
	Entity *mapping.Entity

	// Type is the element type of a sequence plan, or the result type of a
	// Single plan.
	Type reflect.Type
}

// Translator translates trees against a catalog. It holds no mutable
// state and is safe for concurrent use.
type Translator struct {
	catalog *mapping.Catalog
}

// New returns a translator for c.
func New(c *mapping.Catalog) *Translator {
	return &Translator{catalog: c}
}

// Translate converts expr to a plan. expr must be fully expanded.
func (t *Translator) Translate(expr ast.Node) (*Plan, error) {
	if err := checkExpanded(expr); err != nil {
		return nil, err
	}
	tr := &translation{catalog: t.catalog, env: map[*ast.Param]term{}}

	if call, ok := expr.(*ast.Call); ok {
		switch call.Method {
		case seq.Count:
			sel, err := tr.count(call)
			if err != nil {
				return nil, err
			}
			return &Plan{Query: sel, Shape: Single, Type: call.Type()}, nil
		case seq.Any:
			exists, err := tr.exists(call)
			if err != nil {
				return nil, err
			}
			sel := &queryir.Select{Result: &queryir.Scalar{Value: &queryir.Condition{Predicate: exists}}}
			return &Plan{Query: sel, Shape: Single, Type: call.Type()}, nil
		}
	}
	if !seq.IsSequence(expr.Type()) {
		return nil, unsupported(expr, "not a query")
	}

	s, err := tr.sequence(expr)
	if err != nil {
		return nil, err
	}
	if err := s.finalize(); err != nil {
		return nil, err
	}
	plan := &Plan{Query: s.sel, Type: s.elemType}
	if row, ok := s.elem.(*rowTerm); ok {
		plan.Shape = Entities
		plan.Entity = row.entity
	} else {
		plan.Shape = Values
	}
	return plan, nil
}

// checkExpanded rejects vocabulary that only the expansion passes
// understand.
func checkExpanded(expr ast.Node) error {
	var found error
	ast.Inspect(expr, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.Call:
			if n.Method.Expandable {
				found = unsupported(n, "combinator %s was not expanded", n.Method)
			} else if n.Method.Owner == "specification" {
				found = unsupported(n, "specification extraction was not expanded")
			}
		case *ast.Convert:
			if n.Operand.Type().Implements(expressibleType) {
				found = unsupported(n, "specification %s was not expanded", n.Operand.Type())
			}
		}
		return found == nil
	})
	return found
}

var expressibleType = ast.TypeOf[ast.Expressible]()
