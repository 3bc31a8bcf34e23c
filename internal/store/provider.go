package store

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/query"
	"github.com/roach88/qexpand/internal/querysql"
	"github.com/roach88/qexpand/internal/translate"
)

// Provider runs trees against a store. Trees must be fully expanded;
// anything else fails with a translate.UnsupportedError.
type Provider struct {
	store *Store
}

var (
	_ query.Provider   = (*Provider)(nil)
	_ query.Enumerator = (*Provider)(nil)
)

// statement is a translated and compiled tree.
type statement struct {
	plan   *translate.Plan
	sql    string
	params []any
}

// Statement returns the SQL and parameters expr runs as.
func (p *Provider) Statement(expr ast.Node) (string, []any, error) {
	st, err := p.prepare(expr)
	if err != nil {
		return "", nil, err
	}
	return st.sql, st.params, nil
}

func (p *Provider) prepare(expr ast.Node) (*statement, error) {
	key, cacheable := cacheKey(expr)
	if cacheable {
		if st, ok := p.store.cache.Get(key); ok {
			return st, nil
		}
	}
	plan, err := p.store.translator.Translate(expr)
	if err != nil {
		return nil, err
	}
	sql, params, err := querysql.NewSQLCompiler().Compile(plan.Query)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", ast.String(expr), err)
	}
	st := &statement{plan: plan, sql: sql, params: params}
	if cacheable {
		p.store.cache.Add(key, st)
	}
	p.store.logger.Debug("translated query",
		zap.String("tree", ast.String(expr)),
		zap.String("sql", sql),
		zap.Bool("cached", cacheable))
	return st, nil
}

// cacheKey keys a tree by its rendering. Trees holding values whose
// rendering does not identify them, such as captured structs, are not
// cached.
func cacheKey(expr ast.Node) (string, bool) {
	opaque := ast.Contains(expr, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Constant:
			switch n.Value.(type) {
			case *ast.Closure, ast.Source:
				return false
			}
			return !renderable(n.Value)
		case *ast.Member:
			if v, ok := ast.ClosureValue(n); ok {
				return !renderable(v)
			}
		}
		return false
	})
	if opaque {
		return "", false
	}
	return ast.String(expr), true
}

func renderable(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// CreateQuery translates expr and returns a source for it. Untranslatable
// trees fail here rather than when run.
func (p *Provider) CreateQuery(expr ast.Node) (query.Source, error) {
	if _, err := p.prepare(expr); err != nil {
		return nil, err
	}
	return &storeQuery{expr: expr, provider: p}, nil
}

// Execute runs expr. Sequences return a slice of the tree's type; Count
// and Any return int and bool.
func (p *Provider) Execute(ctx context.Context, expr ast.Node) (any, error) {
	st, err := p.prepare(expr)
	if err != nil {
		return nil, err
	}
	if st.plan.Shape == translate.Single {
		return p.single(ctx, st)
	}

	cur, err := p.open(ctx, st)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	out := reflect.MakeSlice(reflect.SliceOf(st.plan.Type), 0, 0)
	for cur.Next(ctx) {
		out = reflect.Append(out, reflect.ValueOf(cur.Value()))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if t := expr.Type(); t.Kind() == reflect.Slice && out.Type().ConvertibleTo(t) {
		return out.Convert(t).Interface(), nil
	}
	return out.Interface(), nil
}

func (p *Provider) single(ctx context.Context, st *statement) (any, error) {
	var raw int64
	if err := p.store.db.QueryRowContext(ctx, st.sql, st.params...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	v := reflect.New(st.plan.Type).Elem()
	if err := assign(v, raw); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Enumerate streams the rows of a sequence tree.
func (p *Provider) Enumerate(ctx context.Context, expr ast.Node) (query.Cursor, error) {
	st, err := p.prepare(expr)
	if err != nil {
		return nil, err
	}
	if st.plan.Shape == translate.Single {
		v, err := p.single(ctx, st)
		if err != nil {
			return nil, err
		}
		return query.NewSliceCursor([]any{v})
	}
	return p.open(ctx, st)
}

func (p *Provider) open(ctx context.Context, st *statement) (*rowsCursor, error) {
	rows, err := p.store.db.QueryContext(ctx, st.sql, st.params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &rowsCursor{rows: rows, scan: scanner(st.plan)}, nil
}

type rowsCursor struct {
	rows *sql.Rows
	scan func(*sql.Rows) (any, error)
	cur  any
	err  error
}

func (c *rowsCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	c.cur, c.err = c.scan(c.rows)
	return c.err == nil
}

func (c *rowsCursor) Value() any {
	return c.cur
}

func (c *rowsCursor) Err() error {
	return c.err
}

func (c *rowsCursor) Close() error {
	return c.rows.Close()
}

type storeQuery struct {
	expr     ast.Node
	provider *Provider
}

func (q *storeQuery) Expression() ast.Node {
	return q.expr
}

func (q *storeQuery) Provider() query.Provider {
	return q.provider
}

func (q *storeQuery) String() string {
	return ast.String(q.expr)
}
