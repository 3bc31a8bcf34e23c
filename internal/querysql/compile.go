// Package querysql compiles the relational query IR to parameterized
// SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/qexpand/internal/queryir"
)

// SQLCompiler compiles queryir selects to SQL with ? placeholders.
//
// Literals are never interpolated. String parameters are normalized to
// NFC so they compare equal to the NFC text written by the store.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile validates q and converts it to SQL and its parameters.
func (c *SQLCompiler) Compile(q *queryir.Select) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}
	b := &builder{}
	if err := b.selectStmt(q); err != nil {
		return "", nil, err
	}
	return b.sql.String(), b.params, nil
}

type builder struct {
	sql    strings.Builder
	params []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sql.WriteString(p)
	}
}

func (b *builder) param(v any) error {
	switch v := v.(type) {
	case nil, int64:
		b.params = append(b.params, v)
	case string:
		b.params = append(b.params, norm.NFC.String(v))
	case bool:
		if v {
			b.params = append(b.params, int64(1))
		} else {
			b.params = append(b.params, int64(0))
		}
	default:
		return fmt.Errorf("unsupported parameter type %T", v)
	}
	b.write("?")
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (b *builder) selectStmt(q *queryir.Select) error {
	b.write("SELECT ")
	if err := b.result(q.Result); err != nil {
		return err
	}
	if q.From != nil {
		b.write(" FROM ")
		if err := b.relation(q.From, q.Alias); err != nil {
			return err
		}
	}
	for _, j := range q.Joins {
		b.write(" JOIN ")
		if err := b.relation(j.From, j.Alias); err != nil {
			return err
		}
		b.write(" ON ")
		if err := b.predicate(j.On); err != nil {
			return fmt.Errorf("compile join %s: %w", j.Alias, err)
		}
	}
	if q.Where != nil {
		b.write(" WHERE ")
		if err := b.predicate(q.Where); err != nil {
			return fmt.Errorf("compile filter: %w", err)
		}
	}
	if len(q.OrderBy) > 0 {
		b.write(" ORDER BY ")
		for i, col := range q.OrderBy {
			if i > 0 {
				b.write(", ")
			}
			b.column(col)
			b.write(" ASC COLLATE BINARY")
		}
	}
	if q.Limit != nil {
		b.write(" LIMIT ")
		if err := b.value(q.Limit); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) result(r queryir.Result) error {
	switch r := r.(type) {
	case *queryir.Rows:
		for i, col := range r.Columns {
			if i > 0 {
				b.write(", ")
			}
			b.column(&queryir.Column{Alias: r.Alias, Name: col})
		}
	case *queryir.Scalar:
		if err := b.value(r.Value); err != nil {
			return err
		}
		b.write(" AS ", quote(queryir.ValueColumn))
	case *queryir.Count:
		b.write("COUNT(*)")
	default:
		return fmt.Errorf("unsupported result type: %T", r)
	}
	return nil
}

func (b *builder) relation(r queryir.Relation, alias string) error {
	switch r := r.(type) {
	case *queryir.Table:
		b.write(quote(r.Name))
	case *queryir.Derived:
		b.write("(")
		if err := b.selectStmt(r.Query); err != nil {
			return err
		}
		b.write(")")
	default:
		return fmt.Errorf("unsupported relation type: %T", r)
	}
	b.write(" AS ", alias)
	return nil
}

func (b *builder) column(c *queryir.Column) {
	b.write(c.Alias, ".", quote(c.Name))
}

func (b *builder) value(v queryir.Value) error {
	switch v := v.(type) {
	case *queryir.Column:
		b.column(v)
	case *queryir.Literal:
		return b.param(v.Value)
	case *queryir.Arith:
		return b.binary(v.Left, " "+string(v.Op)+" ", v.Right, b.value)
	case *queryir.Negate:
		b.write("(-")
		if err := b.value(v.Operand); err != nil {
			return err
		}
		b.write(")")
	case *queryir.Length:
		// Byte length, matching len on a Go string.
		b.write("length(CAST(")
		if err := b.value(v.Operand); err != nil {
			return err
		}
		b.write(" AS BLOB))")
	case *queryir.Subquery:
		b.write("(")
		if err := b.selectStmt(v.Query); err != nil {
			return err
		}
		b.write(")")
	case *queryir.Condition:
		b.write("(")
		if err := b.predicate(v.Predicate); err != nil {
			return err
		}
		b.write(")")
	default:
		return fmt.Errorf("unsupported value type: %T", v)
	}
	return nil
}

func (b *builder) binary(l queryir.Value, op string, r queryir.Value, each func(queryir.Value) error) error {
	b.write("(")
	if err := each(l); err != nil {
		return err
	}
	b.write(op)
	if err := each(r); err != nil {
		return err
	}
	b.write(")")
	return nil
}

func (b *builder) predicate(p queryir.Predicate) error {
	switch p := p.(type) {
	case *queryir.Compare:
		return b.binary(p.Left, " "+string(p.Op)+" ", p.Right, b.value)
	case *queryir.IsNull:
		b.write("(")
		if err := b.value(p.Operand); err != nil {
			return err
		}
		if p.Negated {
			b.write(" IS NOT NULL)")
		} else {
			b.write(" IS NULL)")
		}
	case *queryir.And:
		return b.junction(p.Predicates, " AND ", "1")
	case *queryir.Or:
		return b.junction(p.Predicates, " OR ", "0")
	case *queryir.Not:
		b.write("NOT ")
		b.write("(")
		if err := b.predicate(p.Predicate); err != nil {
			return err
		}
		b.write(")")
	case *queryir.Exists:
		b.write("EXISTS (")
		if err := b.selectStmt(p.Query); err != nil {
			return err
		}
		b.write(")")
	case *queryir.Contains:
		b.write("(instr(")
		if err := b.args(p.Operand, p.Substring); err != nil {
			return err
		}
		b.write(") > 0)")
	case *queryir.HasPrefix:
		b.write("(instr(")
		if err := b.args(p.Operand, p.Prefix); err != nil {
			return err
		}
		b.write(") = 1)")
	case *queryir.Truth:
		b.write("(")
		if err := b.value(p.Value); err != nil {
			return err
		}
		b.write(" <> 0)")
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
	return nil
}

func (b *builder) args(vs ...queryir.Value) error {
	for i, v := range vs {
		if i > 0 {
			b.write(", ")
		}
		if err := b.value(v); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) junction(preds []queryir.Predicate, op, empty string) error {
	if len(preds) == 0 {
		b.write(empty)
		return nil
	}
	b.write("(")
	for i, p := range preds {
		if i > 0 {
			b.write(op)
		}
		if err := b.predicate(p); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}
