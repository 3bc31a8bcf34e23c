package cli

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/blog"
	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/store"
)

// backend is where a command runs its queries: the in-memory dataset, or a
// SQLite store when --db is given.
type backend struct {
	Name    string
	Sources blog.Sources
	Catalog *mapping.Catalog
	Store   *store.Store
}

func (b *backend) Close() error {
	if b.Store == nil {
		return nil
	}
	return b.Store.Close()
}

func openBackend(db string, logger *zap.Logger) (*backend, error) {
	catalog, err := blog.Catalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if db == "" {
		ds, err := blog.LoadDataset()
		if err != nil {
			return nil, err
		}
		return &backend{Name: "memory", Sources: ds.Sources(), Catalog: catalog}, nil
	}
	st, err := store.Open(db, catalog, store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, err
	}
	src, err := blog.StoreSources(st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &backend{Name: "sqlite", Sources: src, Catalog: catalog, Store: st}, nil
}

// lookupQuery resolves a query name or returns a command error listing the
// known names.
func lookupQuery(f *OutputFormatter, name string) (blog.Query, error) {
	q, ok := blog.Lookup(name)
	if ok {
		return q, nil
	}
	names := make([]string, 0)
	for _, q := range blog.Queries() {
		names = append(names, q.Name)
	}
	return blog.Query{}, f.Fail(ExitCommandError, CodeUnknownQuery,
		fmt.Sprintf("unknown query %q", name),
		fmt.Errorf("known queries: %s", strings.Join(names, ", ")))
}

// Row is one result row. Entities are reduced to their mapped fields so
// that navigation cycles never reach the encoder.
type Row struct {
	Entity string         `json:"entity,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Value  any            `json:"value,omitempty"`

	text string
}

func (r Row) String() string {
	return r.text
}

// MarshalJSON writes entities as entity and fields, and other values as
// value, keeping zero values.
func (r Row) MarshalJSON() ([]byte, error) {
	if r.Entity != "" {
		return json.Marshal(struct {
			Entity string         `json:"entity"`
			Fields map[string]any `json:"fields"`
		}{r.Entity, r.Fields})
	}
	return json.Marshal(struct {
		Value any `json:"value"`
	}{r.Value})
}

func renderRow(c *mapping.Catalog, v any) Row {
	if v == nil {
		return Row{text: "null"}
	}
	rv := reflect.ValueOf(v)
	e, ok := c.ByType(rv.Type())
	if !ok || rv.IsNil() {
		return Row{Value: v, text: fmt.Sprint(v)}
	}
	row := Row{Entity: e.Name, Fields: make(map[string]any, len(e.Fields))}
	var b strings.Builder
	fmt.Fprintf(&b, "%s#%v", e.Name, rv.Elem().FieldByName(e.Key).Interface())
	for _, f := range e.Fields {
		val := rv.Elem().FieldByName(f.Name).Interface()
		row.Fields[f.Name] = val
		if f.Name == e.Key {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", f.Name, val)
	}
	row.text = b.String()
	return row
}

// layout breaks a rendered tree before each top-level chained call, so
// that diffs of before and after line up call by call.
func layout(rendered string) string {
	var b strings.Builder
	depth := 0
	inString := false
	for i := 0; i < len(rendered); i++ {
		ch := rendered[i]
		switch {
		case inString:
			if ch == '\\' && i+1 < len(rendered) {
				b.WriteByte(ch)
				i++
				ch = rendered[i]
			} else if ch == '"' {
				inString = false
			}
		case ch == '"':
			inString = true
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		case ch == '.' && depth == 0 && i > 0 && rendered[i-1] == ')':
			b.WriteString("\n  ")
		}
		b.WriteByte(ch)
	}
	return b.String()
}
