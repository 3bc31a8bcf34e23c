package store

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/translate"
)

// scanner returns the row reader for a plan: entity rows become new
// values of the entity type, scalar rows are converted to the element
// type.
func scanner(plan *translate.Plan) func(*sql.Rows) (any, error) {
	if plan.Shape == translate.Entities {
		e := plan.Entity
		st := e.Type().Elem()
		return func(rows *sql.Rows) (any, error) {
			raw := make([]any, len(e.Fields))
			dest := make([]any, len(raw))
			for i := range raw {
				dest[i] = &raw[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return nil, fmt.Errorf("scan %s: %w", e.Name, err)
			}
			out := reflect.New(st)
			for i, f := range e.Fields {
				if err := assign(out.Elem().FieldByName(f.Name), raw[i]); err != nil {
					return nil, fmt.Errorf("scan %s.%s: %w", e.Name, f.Name, err)
				}
			}
			return out.Interface(), nil
		}
	}
	return func(rows *sql.Rows) (any, error) {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		v := reflect.New(plan.Type).Elem()
		if err := assign(v, raw); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
}

// assign stores a driver value in v. NULL leaves v at its zero value.
func assign(v reflect.Value, raw any) error {
	if raw == nil {
		return nil
	}
	if v.Kind() == reflect.Pointer {
		p := reflect.New(v.Type().Elem())
		if err := assign(p.Elem(), raw); err != nil {
			return err
		}
		v.Set(p)
		return nil
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, ok := raw.(int64); ok {
			v.SetInt(n)
			return nil
		}
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		if n, ok := raw.(int64); ok && n >= 0 {
			v.SetUint(uint64(n))
			return nil
		}
	case reflect.Bool:
		switch b := raw.(type) {
		case int64:
			v.SetBool(b != 0)
			return nil
		case bool:
			v.SetBool(b)
			return nil
		}
	case reflect.String:
		switch s := raw.(type) {
		case string:
			v.SetString(s)
			return nil
		case []byte:
			v.SetString(string(s))
			return nil
		}
	}
	return fmt.Errorf("cannot store %T in %s", raw, v.Type())
}
