package queryir

import (
	"fmt"
)

// ValidationResult lists structural problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	Problems []string
}

// Err returns the problems as an error, or nil for a valid query.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &InvalidQueryError{Problems: r.Problems}
}

// InvalidQueryError reports a query that failed validation.
type InvalidQueryError struct {
	Problems []string
}

func (e *InvalidQueryError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid query: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid query: %s (and %d more)", e.Problems[0], len(e.Problems)-1)
}

// Validate checks that a query is well formed:
//  1. every column references an alias in scope (correlated sub-selects
//     see the aliases of their enclosing selects)
//  2. aliases are unique within a select
//  3. literals are nil, bool, int64 or string, and NULL is only tested
//     with IsNull
//  4. sub-selects used as values produce a single column
//  5. LIMIT is a non-negative integer literal
//
// Validate is a pure function.
func Validate(q *Select) ValidationResult {
	v := &validator{problems: []string{}}
	if q == nil {
		v.add("nil query")
	} else {
		v.validateSelect(q, nil)
	}
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

type validator struct {
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

type scope struct {
	aliases map[string]bool
	outer   *scope
}

func (s *scope) has(alias string) bool {
	for ; s != nil; s = s.outer {
		if s.aliases[alias] {
			return true
		}
	}
	return false
}

func (v *validator) validateSelect(q *Select, outer *scope) {
	sc := &scope{aliases: map[string]bool{}, outer: outer}
	if q.From == nil {
		if q.Alias != "" || len(q.Joins) > 0 {
			v.add("select without FROM cannot have an alias or joins")
		}
	} else {
		v.validateRelation(q.From, outer)
		v.declare(sc, q.Alias)
	}
	for _, j := range q.Joins {
		v.validateRelation(j.From, outer)
		v.declare(sc, j.Alias)
	}
	for _, j := range q.Joins {
		if j.On == nil {
			v.add("join %s has no condition", j.Alias)
			continue
		}
		v.validatePredicate(j.On, sc)
	}
	if q.Where != nil {
		v.validatePredicate(q.Where, sc)
	}

	switch r := q.Result.(type) {
	case nil:
		v.add("select has no result")
	case *Rows:
		if !sc.aliases[r.Alias] {
			v.add("rows of unknown alias %q", r.Alias)
		}
		if len(r.Columns) == 0 {
			v.add("rows of %s select no columns", r.Alias)
		}
	case *Scalar:
		v.validateValue(r.Value, sc)
	case *Count:
	default:
		v.add("unknown result type %T", q.Result)
	}

	for _, c := range q.OrderBy {
		v.validateValue(c, sc)
	}
	if q.Limit != nil {
		lit, ok := q.Limit.(*Literal)
		if !ok {
			v.add("limit must be a literal")
		} else if n, ok := lit.Value.(int64); !ok || n < 0 {
			v.add("limit must be a non-negative int64, got %v", lit.Value)
		}
	}
}

func (v *validator) declare(sc *scope, alias string) {
	switch {
	case alias == "":
		v.add("relation without alias")
	case sc.aliases[alias]:
		v.add("duplicate alias %q", alias)
	default:
		sc.aliases[alias] = true
	}
}

func (v *validator) validateRelation(r Relation, outer *scope) {
	switch r := r.(type) {
	case *Table:
		if r.Name == "" {
			v.add("table without name")
		}
	case *Derived:
		if r.Query == nil {
			v.add("derived relation without query")
			return
		}
		switch r.Query.Result.(type) {
		case *Rows, *Scalar:
		default:
			v.add("derived relation must select rows or a scalar")
		}
		v.validateSelect(r.Query, outer)
	default:
		v.add("unknown relation type %T", r)
	}
}

func (v *validator) validateValue(x Value, sc *scope) {
	switch x := x.(type) {
	case *Column:
		if !sc.has(x.Alias) {
			v.add("column %s.%s references an unknown alias", x.Alias, x.Name)
		}
	case *Literal:
		switch x.Value.(type) {
		case nil, bool, int64, string:
		default:
			v.add("literal of unsupported type %T", x.Value)
		}
	case *Arith:
		v.validateValue(x.Left, sc)
		v.validateValue(x.Right, sc)
	case *Negate:
		v.validateValue(x.Operand, sc)
	case *Length:
		v.validateValue(x.Operand, sc)
	case *Subquery:
		if x.Query == nil {
			v.add("subquery without query")
			return
		}
		switch x.Query.Result.(type) {
		case *Scalar, *Count:
		default:
			v.add("subquery used as a value must select a scalar or a count")
		}
		v.validateSelect(x.Query, sc)
	case *Condition:
		v.validatePredicate(x.Predicate, sc)
	case nil:
		v.add("nil value")
	default:
		v.add("unknown value type %T", x)
	}
}

func (v *validator) validatePredicate(p Predicate, sc *scope) {
	switch p := p.(type) {
	case *Compare:
		for _, side := range []Value{p.Left, p.Right} {
			if lit, ok := side.(*Literal); ok && lit.Value == nil {
				v.add("comparison with NULL; use IsNull")
			}
		}
		v.validateValue(p.Left, sc)
		v.validateValue(p.Right, sc)
	case *IsNull:
		v.validateValue(p.Operand, sc)
	case *And:
		for _, q := range p.Predicates {
			v.validatePredicate(q, sc)
		}
	case *Or:
		for _, q := range p.Predicates {
			v.validatePredicate(q, sc)
		}
	case *Not:
		v.validatePredicate(p.Predicate, sc)
	case *Exists:
		if p.Query == nil {
			v.add("exists without query")
			return
		}
		v.validateSelect(p.Query, sc)
	case *Contains:
		v.validateValue(p.Operand, sc)
		v.validateValue(p.Substring, sc)
	case *HasPrefix:
		v.validateValue(p.Operand, sc)
		v.validateValue(p.Prefix, sc)
	case *Truth:
		v.validateValue(p.Value, sc)
	case nil:
		v.add("nil predicate")
	default:
		v.add("unknown predicate type %T", p)
	}
}
