package translate

import (
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/eval"
	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/queryir"
	"github.com/roach88/qexpand/internal/seq"
)

// term is a translated lambda body or sub-expression.
type term interface {
	term()
}

// rowTerm is an entity row: either a row of a select alias, or a row
// identified only by its key value (a belongs-to reference or a captured
// entity).
type rowTerm struct {
	entity *mapping.Entity
	alias  string
	key    queryir.Value
}

type valueTerm struct {
	value queryir.Value
	typ   reflect.Type
}

type predTerm struct {
	pred queryir.Predicate
}

type seqTerm struct {
	seq *sequence
}

func (*rowTerm) term()   {}
func (*valueTerm) term() {}
func (*predTerm) term()  {}
func (*seqTerm) term()   {}

func (r *rowTerm) keyValue() queryir.Value {
	if r.alias != "" {
		return &queryir.Column{Alias: r.alias, Name: r.entity.KeyField().Column}
	}
	return r.key
}

// column reads a column of the row. Keyed rows read through a scalar
// sub-select unless the column is the key itself.
func (tr *translation) column(r *rowTerm, col string) queryir.Value {
	if r.alias != "" {
		return &queryir.Column{Alias: r.alias, Name: col}
	}
	key := r.entity.KeyField().Column
	if col == key {
		return r.key
	}
	a := tr.alias()
	return &queryir.Subquery{Query: &queryir.Select{
		From:   &queryir.Table{Name: r.entity.Table},
		Alias:  a,
		Where:  &queryir.Compare{Op: queryir.Eq, Left: &queryir.Column{Alias: a, Name: key}, Right: r.key},
		Result: &queryir.Scalar{Value: &queryir.Column{Alias: a, Name: col}},
	}}
}

func asPredicate(t term, n ast.Node) (queryir.Predicate, error) {
	switch t := t.(type) {
	case *predTerm:
		return t.pred, nil
	case *valueTerm:
		if c, ok := t.value.(*queryir.Condition); ok {
			return c.Predicate, nil
		}
		if t.typ.Kind() == reflect.Bool {
			return &queryir.Truth{Value: t.value}, nil
		}
	}
	return nil, unsupported(n, "not a condition")
}

func asValue(t term, n ast.Node) (queryir.Value, error) {
	switch t := t.(type) {
	case *valueTerm:
		return t.value, nil
	case *predTerm:
		if tv, ok := t.pred.(*queryir.Truth); ok {
			return tv.Value, nil
		}
		return &queryir.Condition{Predicate: t.pred}, nil
	case *rowTerm:
		return t.keyValue(), nil
	}
	return nil, unsupported(n, "not a scalar value")
}

func (tr *translation) lambda(q *ast.Quote, args ...term) (term, error) {
	if len(q.Params) != len(args) {
		return nil, unsupported(q, "lambda takes %d parameters, got %d", len(q.Params), len(args))
	}
	for i, p := range q.Params {
		tr.env[p] = args[i]
	}
	tr.depth++
	defer func() {
		tr.depth--
		for _, p := range q.Params {
			delete(tr.env, p)
		}
	}()
	return tr.term(q.Body)
}

// foldable reports whether n can be computed before the query runs: it
// references no lambda parameter and no stored table.
func foldable(n ast.Node) bool {
	switch n.Type().Kind() {
	case reflect.Func, reflect.Slice, reflect.Array, reflect.Map:
		return false
	}
	if len(ast.FreeParams(n)) > 0 {
		return false
	}
	return !ast.Contains(n, func(x ast.Node) bool {
		c, ok := x.(*ast.Constant)
		if !ok {
			return false
		}
		_, src := c.Value.(ast.Source)
		return src
	})
}

func (tr *translation) evaluate(n ast.Node) (any, error) {
	v, err := eval.Evaluate(n)
	if err != nil {
		return nil, unsupported(n, "cannot evaluate: %v", err)
	}
	return v, nil
}

func (tr *translation) term(n ast.Node) (term, error) {
	if foldable(n) {
		v, err := tr.evaluate(n)
		if err != nil {
			return nil, err
		}
		return tr.literal(n, v)
	}

	switch n := n.(type) {
	case *ast.Param:
		if t, ok := tr.env[n]; ok {
			return t, nil
		}
		return nil, unsupported(n, "unbound parameter")
	case *ast.Member:
		if n.IsClosureVar() && seq.IsSequence(n.Type()) {
			s, err := tr.sequence(n)
			if err != nil {
				return nil, err
			}
			return &seqTerm{seq: s}, nil
		}
		return tr.member(n)
	case *ast.Binary:
		return tr.binary(n)
	case *ast.Unary:
		return tr.unary(n)
	case *ast.Convert:
		return tr.convert(n)
	case *ast.Call:
		return tr.call(n)
	case *ast.Constant:
		if seq.IsSequence(n.Type()) {
			s, err := tr.sequence(n)
			if err != nil {
				return nil, err
			}
			return &seqTerm{seq: s}, nil
		}
	}
	return nil, unsupported(n, "no relational form")
}

// literal converts a computed Go value to a parameter.
func (tr *translation) literal(n ast.Node, v any) (term, error) {
	t := n.Type()
	if e, ok := tr.catalog.ByType(t); ok {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || rv.IsNil() {
			return &rowTerm{entity: e, key: &queryir.Literal{}}, nil
		}
		key, err := sqlValue(rv.Elem().FieldByName(e.Key))
		if err != nil {
			return nil, unsupported(n, "%v", err)
		}
		return &rowTerm{entity: e, key: &queryir.Literal{Value: key}}, nil
	}
	x, err := sqlValue(reflect.ValueOf(v))
	if err != nil {
		return nil, unsupported(n, "%v", err)
	}
	return &valueTerm{value: &queryir.Literal{Value: x}, typ: t}, nil
}

type unsupportedValueError struct {
	t reflect.Type
}

func (e *unsupportedValueError) Error() string {
	return "value of type " + e.t.String() + " has no SQL form"
}

func sqlValue(rv reflect.Value) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return sqlValue(rv.Elem())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	return nil, &unsupportedValueError{t: rv.Type()}
}

func (tr *translation) member(n *ast.Member) (term, error) {
	if n.Kind != ast.FieldMember {
		return nil, unsupported(n, "only mapped fields can be read")
	}
	target, err := tr.term(n.Target)
	if err != nil {
		return nil, err
	}
	row, ok := target.(*rowTerm)
	if !ok {
		return nil, unsupported(n, "member of an unmapped value")
	}
	if f, ok := row.entity.Field(n.Name); ok {
		return &valueTerm{value: tr.column(row, f.Column), typ: n.Type()}, nil
	}
	rel, ok := row.entity.Relation(n.Name)
	if !ok {
		return nil, unsupported(n, "%s.%s is not mapped", row.entity.Name, n.Name)
	}
	if rel.Many {
		s, err := tr.navigate(row, rel, n)
		if err != nil {
			return nil, err
		}
		return &seqTerm{seq: s}, nil
	}
	return &rowTerm{entity: rel.Entity(), key: tr.column(row, rel.ForeignKey)}, nil
}

var compareOps = map[ast.BinaryOp]queryir.CompareOp{
	ast.OpEq: queryir.Eq,
	ast.OpNe: queryir.Ne,
	ast.OpLt: queryir.Lt,
	ast.OpLe: queryir.Le,
	ast.OpGt: queryir.Gt,
	ast.OpGe: queryir.Ge,
}

var arithOps = map[ast.BinaryOp]queryir.ArithOp{
	ast.OpAdd: queryir.Add,
	ast.OpSub: queryir.Sub,
	ast.OpMul: queryir.Mul,
	ast.OpDiv: queryir.Div,
	ast.OpMod: queryir.Mod,
}

func isNullLiteral(v queryir.Value) bool {
	lit, ok := v.(*queryir.Literal)
	return ok && lit.Value == nil
}

func (tr *translation) binary(n *ast.Binary) (term, error) {
	l, err := tr.term(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := tr.term(n.Right)
	if err != nil {
		return nil, err
	}

	if n.Op.IsLogical() {
		lp, err := asPredicate(l, n.Left)
		if err != nil {
			return nil, err
		}
		rp, err := asPredicate(r, n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op == ast.OpAndAlso {
			return &predTerm{pred: queryir.Conjoin(lp, rp)}, nil
		}
		return &predTerm{pred: &queryir.Or{Predicates: []queryir.Predicate{lp, rp}}}, nil
	}

	lv, err := asValue(l, n.Left)
	if err != nil {
		return nil, err
	}
	rv, err := asValue(r, n.Right)
	if err != nil {
		return nil, err
	}

	if op, ok := compareOps[n.Op]; ok {
		if op == queryir.Eq || op == queryir.Ne {
			switch {
			case isNullLiteral(rv):
				return &predTerm{pred: &queryir.IsNull{Operand: lv, Negated: op == queryir.Ne}}, nil
			case isNullLiteral(lv):
				return &predTerm{pred: &queryir.IsNull{Operand: rv, Negated: op == queryir.Ne}}, nil
			}
		}
		return &predTerm{pred: &queryir.Compare{Op: op, Left: lv, Right: rv}}, nil
	}

	op := arithOps[n.Op]
	if n.Op == ast.OpAdd && n.Type().Kind() == reflect.String {
		op = queryir.Concat
	}
	return &valueTerm{value: &queryir.Arith{Op: op, Left: lv, Right: rv}, typ: n.Type()}, nil
}

func (tr *translation) unary(n *ast.Unary) (term, error) {
	operand, err := tr.term(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case ast.OpNot:
		p, err := asPredicate(operand, n.Operand)
		if err != nil {
			return nil, err
		}
		return &predTerm{pred: &queryir.Not{Predicate: p}}, nil
	case ast.OpNegate:
		v, err := asValue(operand, n.Operand)
		if err != nil {
			return nil, err
		}
		return &valueTerm{value: &queryir.Negate{Operand: v}, typ: n.Type()}, nil
	case ast.OpLen:
		if s, ok := operand.(*seqTerm); ok {
			return tr.countValue(s.seq, n)
		}
		v, err := asValue(operand, n.Operand)
		if err != nil {
			return nil, err
		}
		return &valueTerm{value: &queryir.Length{Operand: v}, typ: n.Type()}, nil
	}
	return nil, unsupported(n, "unknown operator")
}

func (tr *translation) countValue(s *sequence, n ast.Node) (term, error) {
	if s.sel.Limit != nil {
		return nil, unsupported(n, "cannot count a limited sequence inside a lambda")
	}
	s.sel.Result = &queryir.Count{}
	s.sel.OrderBy = nil
	return &valueTerm{value: &queryir.Subquery{Query: s.sel}, typ: n.Type()}, nil
}

func (tr *translation) convert(n *ast.Convert) (term, error) {
	operand, err := tr.term(n.Operand)
	if err != nil {
		return nil, err
	}
	switch t := operand.(type) {
	case *valueTerm:
		if scalarKind(n.Type()) && scalarKind(t.typ) {
			return &valueTerm{value: t.value, typ: n.Type()}, nil
		}
	case *predTerm:
		if scalarKind(n.Type()) {
			return t, nil
		}
	case *rowTerm:
		if e, ok := tr.catalog.ByType(n.Type()); ok && e == t.entity {
			return t, nil
		}
	case *seqTerm:
		if seq.IsSequence(n.Type()) {
			return t, nil
		}
	}
	return nil, unsupported(n, "conversion has no relational form")
}

func scalarKind(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.String, reflect.Bool:
		return true
	}
	return false
}

func (tr *translation) call(n *ast.Call) (term, error) {
	switch n.Method {
	case seq.Contains, seq.HasPrefix:
		a, err := tr.scalarArgs(n.Args)
		if err != nil {
			return nil, err
		}
		if n.Method == seq.Contains {
			return &predTerm{pred: &queryir.Contains{Operand: a[0], Substring: a[1]}}, nil
		}
		return &predTerm{pred: &queryir.HasPrefix{Operand: a[0], Prefix: a[1]}}, nil
	case seq.Count:
		sel, err := tr.count(n)
		if err != nil {
			return nil, err
		}
		return &valueTerm{value: &queryir.Subquery{Query: sel}, typ: n.Type()}, nil
	case seq.Any:
		p, err := tr.exists(n)
		if err != nil {
			return nil, err
		}
		return &predTerm{pred: p}, nil
	}
	if seq.IsOperator(n.Method) {
		s, err := tr.sequence(n)
		if err != nil {
			return nil, err
		}
		return &seqTerm{seq: s}, nil
	}
	return nil, unsupported(n, "call to %s has no relational form", n.Method)
}

func (tr *translation) scalarArgs(args []ast.Node) ([]queryir.Value, error) {
	out := make([]queryir.Value, len(args))
	for i, a := range args {
		t, err := tr.term(a)
		if err != nil {
			return nil, err
		}
		if out[i], err = asValue(t, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}
