package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qexpand/internal/mapping"
)

// Fixtures are rows to load, grouped by entity. In YAML:
//
//	[{entity: User, rows: [{ID: 1, Login: admin}]},
//	 {entity: Post, rows: [{ID: 1, Title: Hello, AuthorID: 1}]}]
//
// Row keys are mapped field names. Omitted fields get their zero value.
type Fixtures []FixtureSet

// FixtureSet holds the rows of one entity.
type FixtureSet struct {
	Entity string           `yaml:"entity"`
	Rows   []map[string]any `yaml:"rows"`
}

// ParseFixtures decodes YAML fixtures.
func ParseFixtures(r io.Reader) (Fixtures, error) {
	var fx Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return fx, nil
}

// Load inserts fixtures in one transaction. Rows whose key already exists
// are replaced, so loading the same fixtures twice is idempotent.
func (s *Store) Load(ctx context.Context, fx Fixtures) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	n := 0
	for _, set := range fx {
		e, ok := s.catalog.Entity(set.Entity)
		if !ok {
			return 0, fmt.Errorf("fixtures: unknown entity %q", set.Entity)
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL(e))
		if err != nil {
			return 0, fmt.Errorf("prepare insert into %s: %w", e.Table, err)
		}
		for i, row := range set.Rows {
			args, err := rowArgs(e, row)
			if err != nil {
				stmt.Close()
				return 0, fmt.Errorf("fixtures: %s row %d: %w", e.Name, i, err)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				stmt.Close()
				return 0, fmt.Errorf("insert into %s: %w", e.Table, err)
			}
			n++
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("fixtures loaded")
	return n, nil
}

func insertSQL(e *mapping.Entity) string {
	cols := make([]string, len(e.Fields))
	marks := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = quote(f.Column)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quote(e.Table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

func rowArgs(e *mapping.Entity, row map[string]any) ([]any, error) {
	for name := range row {
		if _, ok := e.Field(name); !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
	}
	args := make([]any, len(e.Fields))
	for i, f := range e.Fields {
		v, err := columnValue(f, row[f.Name])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func columnValue(f mapping.Field, v any) (any, error) {
	switch f.Kind {
	case mapping.KindInt:
		switch v := v.(type) {
		case nil:
			return int64(0), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
	case mapping.KindString:
		switch v := v.(type) {
		case nil:
			return "", nil
		case string:
			return norm.NFC.String(v), nil
		}
	case mapping.KindBool:
		switch v := v.(type) {
		case nil:
			return int64(0), nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		}
	}
	return nil, fmt.Errorf("field %s: %v (%T) is not a valid %s", f.Name, v, v, f.Kind)
}
