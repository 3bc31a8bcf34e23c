package translate

import (
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/queryir"
	"github.com/roach88/qexpand/internal/seq"
)

// translation is the state of one Translate call.
type translation struct {
	catalog *mapping.Catalog
	env     map[*ast.Param]term
	aliases int

	// depth counts enclosing lambdas. Derived tables are only built at
	// depth 0, where they cannot be correlated with an outer row.
	depth int
}

func (tr *translation) alias() string {
	a := fmt.Sprintf("t%d", tr.aliases)
	tr.aliases++
	return a
}

// sequence is a select under construction whose rows are the elements
// of a sequence expression.
type sequence struct {
	sel      *queryir.Select
	elem     term
	elemType reflect.Type
}

func (s *sequence) finalize() error {
	switch e := s.elem.(type) {
	case *rowTerm:
		if e.alias == "" {
			return fmt.Errorf("element of %s has no row alias", e.entity.Name)
		}
		s.sel.Result = &queryir.Rows{Alias: e.alias, Columns: e.entity.Columns()}
	case *valueTerm:
		s.sel.Result = &queryir.Scalar{Value: e.value}
	case *predTerm:
		s.sel.Result = &queryir.Scalar{Value: &queryir.Condition{Predicate: e.pred}}
	default:
		return fmt.Errorf("element %T has no relational form", s.elem)
	}
	return nil
}

func (tr *translation) scan(e *mapping.Entity, n ast.Node) (*sequence, error) {
	if e.Type() == nil {
		return nil, unsupported(n, "entity %s is not bound to a Go type", e.Name)
	}
	a := tr.alias()
	return &sequence{
		sel: &queryir.Select{
			From:    &queryir.Table{Name: e.Table},
			Alias:   a,
			OrderBy: []*queryir.Column{{Alias: a, Name: e.KeyField().Column}},
		},
		elem:     &rowTerm{entity: e, alias: a},
		elemType: e.Type(),
	}, nil
}

// sequence translates a sequence-valued node.
func (tr *translation) sequence(n ast.Node) (*sequence, error) {
	switch n := n.(type) {
	case *ast.Constant:
		if ts, ok := n.Value.(TableSource); ok {
			return tr.scan(ts.Entity(), n)
		}
		return nil, unsupported(n, "source is not a stored table")
	case *ast.Member:
		if v, ok := ast.ClosureValue(n); ok {
			if ts, ok := v.(TableSource); ok {
				return tr.scan(ts.Entity(), n)
			}
			return nil, unsupported(n, "captured sequence is not a stored table")
		}
		t, err := tr.term(n)
		if err != nil {
			return nil, err
		}
		if s, ok := t.(*seqTerm); ok {
			return s.seq, nil
		}
	case *ast.Call:
		switch n.Method {
		case seq.AsSequence:
			return tr.sequence(n.Args[0])
		case seq.Where:
			return tr.where(n)
		case seq.Select:
			return tr.project(n)
		case seq.SelectMany:
			return tr.flatten(n)
		case seq.Take:
			return tr.take(n)
		}
	}
	return nil, unsupported(n, "not a translatable sequence")
}

// navigate builds the rows of a has-many relation of row.
func (tr *translation) navigate(row *rowTerm, rel *mapping.Relation, n ast.Node) (*sequence, error) {
	s, err := tr.scan(rel.Entity(), n)
	if err != nil {
		return nil, err
	}
	a := s.sel.Alias
	s.sel.Where = &queryir.Compare{
		Op:    queryir.Eq,
		Left:  &queryir.Column{Alias: a, Name: rel.ForeignKey},
		Right: row.keyValue(),
	}
	return s, nil
}

// wrap turns s into a derived table so further filters apply after its
// LIMIT.
func (tr *translation) wrap(s *sequence, n ast.Node) (*sequence, error) {
	row, ok := s.elem.(*rowTerm)
	switch {
	case tr.depth > 0:
		return nil, unsupported(n, "cannot filter a limited sequence inside a lambda")
	case !ok:
		return nil, unsupported(n, "cannot filter a limited sequence of projected values")
	case len(s.sel.Joins) > 0:
		return nil, unsupported(n, "cannot filter a limited flattened sequence")
	}
	if err := s.finalize(); err != nil {
		return nil, err
	}
	a := tr.alias()
	return &sequence{
		sel: &queryir.Select{
			From:    &queryir.Derived{Query: s.sel},
			Alias:   a,
			OrderBy: []*queryir.Column{{Alias: a, Name: row.entity.KeyField().Column}},
		},
		elem:     &rowTerm{entity: row.entity, alias: a},
		elemType: s.elemType,
	}, nil
}

func (tr *translation) filter(s *sequence, pred ast.Node, n ast.Node) (*sequence, error) {
	if s.sel.Limit != nil {
		var err error
		if s, err = tr.wrap(s, n); err != nil {
			return nil, err
		}
	}
	q, ok := pred.(*ast.Quote)
	if !ok {
		return nil, unsupported(pred, "predicate is not a lambda")
	}
	body, err := tr.lambda(q, s.elem)
	if err != nil {
		return nil, err
	}
	p, err := asPredicate(body, q.Body)
	if err != nil {
		return nil, err
	}
	s.sel.Where = queryir.Conjoin(s.sel.Where, p)
	return s, nil
}

func (tr *translation) where(call *ast.Call) (*sequence, error) {
	s, err := tr.sequence(call.Args[0])
	if err != nil {
		return nil, err
	}
	return tr.filter(s, call.Args[1], call)
}

func (tr *translation) project(call *ast.Call) (*sequence, error) {
	s, err := tr.sequence(call.Args[0])
	if err != nil {
		return nil, err
	}
	q, ok := call.Args[1].(*ast.Quote)
	if !ok {
		return nil, unsupported(call.Args[1], "projection is not a lambda")
	}
	body, err := tr.lambda(q, s.elem)
	if err != nil {
		return nil, err
	}
	switch b := body.(type) {
	case *rowTerm:
		if b.alias == "" {
			// Belongs-to navigation: join the referenced row.
			a := tr.alias()
			s.sel.Joins = append(s.sel.Joins, queryir.Join{
				From:  &queryir.Table{Name: b.entity.Table},
				Alias: a,
				On: &queryir.Compare{
					Op:    queryir.Eq,
					Left:  &queryir.Column{Alias: a, Name: b.entity.KeyField().Column},
					Right: b.key,
				},
			})
			b = &rowTerm{entity: b.entity, alias: a}
		}
		s.elem = b
	case *valueTerm, *predTerm:
		s.elem = b
	default:
		return nil, unsupported(q.Body, "projection to a sequence; use SelectMany")
	}
	s.elemType = q.Type().Out(0)
	return s, nil
}

func (tr *translation) flatten(call *ast.Call) (*sequence, error) {
	s, err := tr.sequence(call.Args[0])
	if err != nil {
		return nil, err
	}
	if s.sel.Limit != nil {
		return nil, unsupported(call, "cannot flatten a limited sequence")
	}
	q, ok := call.Args[1].(*ast.Quote)
	if !ok {
		return nil, unsupported(call.Args[1], "projection is not a lambda")
	}
	body, err := tr.lambda(q, s.elem)
	if err != nil {
		return nil, err
	}
	inner, ok := body.(*seqTerm)
	if !ok {
		return nil, unsupported(q.Body, "projection is not a sequence")
	}
	in := inner.seq.sel
	if in.Limit != nil {
		return nil, unsupported(q.Body, "cannot flatten limited inner sequences")
	}
	if _, ok := in.From.(*queryir.Table); !ok {
		return nil, unsupported(q.Body, "inner sequence is not a table")
	}

	on := in.Where
	if len(in.Joins) > 0 {
		s.sel.Where = queryir.Conjoin(s.sel.Where, in.Where)
		on = nil
	}
	if on == nil {
		on = &queryir.And{}
	}
	s.sel.Joins = append(s.sel.Joins, queryir.Join{From: in.From, Alias: in.Alias, On: on})
	s.sel.Joins = append(s.sel.Joins, in.Joins...)
	s.sel.OrderBy = append(s.sel.OrderBy, in.OrderBy...)
	s.elem = inner.seq.elem
	s.elemType = inner.seq.elemType
	return s, nil
}

func (tr *translation) take(call *ast.Call) (*sequence, error) {
	s, err := tr.sequence(call.Args[0])
	if err != nil {
		return nil, err
	}
	v, err := tr.evaluate(call.Args[1])
	if err != nil {
		return nil, err
	}
	n, ok := v.(int)
	if !ok {
		return nil, unsupported(call.Args[1], "count is %T, not int", v)
	}
	k := int64(max(0, n))
	if prev, ok := s.sel.Limit.(*queryir.Literal); ok {
		k = min(k, prev.Value.(int64))
	}
	s.sel.Limit = &queryir.Literal{Value: k}
	return s, nil
}

// optionalFilter applies the predicate argument of Count and Any.
func (tr *translation) optionalFilter(call *ast.Call) (*sequence, error) {
	s, err := tr.sequence(call.Args[0])
	if err != nil {
		return nil, err
	}
	if len(call.Args) == 2 {
		return tr.filter(s, call.Args[1], call)
	}
	return s, nil
}

// count builds SELECT COUNT(*) over the rows of call's source.
func (tr *translation) count(call *ast.Call) (*queryir.Select, error) {
	s, err := tr.optionalFilter(call)
	if err != nil {
		return nil, err
	}
	if s.sel.Limit == nil {
		s.sel.Result = &queryir.Count{}
		s.sel.OrderBy = nil
		return s.sel, nil
	}
	if tr.depth > 0 {
		return nil, unsupported(call, "cannot count a limited sequence inside a lambda")
	}
	if err := s.finalize(); err != nil {
		return nil, err
	}
	return &queryir.Select{
		From:   &queryir.Derived{Query: s.sel},
		Alias:  tr.alias(),
		Result: &queryir.Count{},
	}, nil
}

// exists builds EXISTS over the rows of call's source.
func (tr *translation) exists(call *ast.Call) (queryir.Predicate, error) {
	s, err := tr.optionalFilter(call)
	if err != nil {
		return nil, err
	}
	if err := s.finalize(); err != nil {
		return nil, err
	}
	return &queryir.Exists{Query: s.sel}, nil
}
