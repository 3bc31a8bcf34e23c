package eval

import (
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/seq"
)

// Materializer is implemented by source values that are not slices but can
// produce their rows in memory, such as tables and placeholders.
type Materializer interface {
	Materialize() (any, error)
}

type builtin func(call *ast.Call, args []any) (any, error)

var builtins map[*ast.Method]builtin

func init() {
	builtins = map[*ast.Method]builtin{
		seq.Where:      where,
		seq.Select:     project,
		seq.SelectMany: projectMany,
		seq.Take:       take,
		seq.Count:      count,
		seq.Any:        anyOf,
		seq.AsSequence: asSequence,
	}
}

func items(v any) (reflect.Value, error) {
	if m, ok := v.(Materializer); ok {
		out, err := m.Materialize()
		if err != nil {
			return reflect.Value{}, err
		}
		v = out
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return reflect.Value{}, fmt.Errorf("sequence: %w", ErrNilReference)
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not a sequence", rv.Type())
}

func test(pred Lambda, item reflect.Value) (bool, error) {
	r, err := pred(item.Interface())
	if err != nil {
		return false, err
	}
	b, ok := r.(bool)
	if !ok {
		return false, fmt.Errorf("predicate returned %T, not bool", r)
	}
	return b, nil
}

func where(call *ast.Call, args []any) (any, error) {
	src, err := items(args[0])
	if err != nil {
		return nil, err
	}
	pred, err := asLambda(args[1])
	if err != nil {
		return nil, err
	}
	out := reflect.MakeSlice(call.Type(), 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		ok, err := test(pred, src.Index(i))
		if err != nil {
			return nil, err
		}
		if ok {
			out = reflect.Append(out, src.Index(i))
		}
	}
	return out.Interface(), nil
}

func project(call *ast.Call, args []any) (any, error) {
	src, err := items(args[0])
	if err != nil {
		return nil, err
	}
	proj, err := asLambda(args[1])
	if err != nil {
		return nil, err
	}
	elem := call.Type().Elem()
	out := reflect.MakeSlice(call.Type(), 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		r, err := proj(src.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		v, err := valueOf(r, elem)
		if err != nil {
			return nil, err
		}
		out = reflect.Append(out, v)
	}
	return out.Interface(), nil
}

func projectMany(call *ast.Call, args []any) (any, error) {
	src, err := items(args[0])
	if err != nil {
		return nil, err
	}
	proj, err := asLambda(args[1])
	if err != nil {
		return nil, err
	}
	elem := call.Type().Elem()
	out := reflect.MakeSlice(call.Type(), 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		r, err := proj(src.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if isNil(r) {
			continue
		}
		inner, err := items(r)
		if err != nil {
			return nil, err
		}
		for j := 0; j < inner.Len(); j++ {
			v, err := valueOf(inner.Index(j).Interface(), elem)
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, v)
		}
	}
	return out.Interface(), nil
}

func take(call *ast.Call, args []any) (any, error) {
	src, err := items(args[0])
	if err != nil {
		return nil, err
	}
	n, err := toInt(args[1])
	if err != nil {
		return nil, err
	}
	n = max(0, min(n, src.Len()))
	out := reflect.MakeSlice(call.Type(), 0, n)
	for i := 0; i < n; i++ {
		out = reflect.Append(out, src.Index(i))
	}
	return out.Interface(), nil
}

func count(call *ast.Call, args []any) (any, error) {
	src, err := items(args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return src.Len(), nil
	}
	pred, err := asLambda(args[1])
	if err != nil {
		return nil, err
	}
	n := 0
	for i := 0; i < src.Len(); i++ {
		ok, err := test(pred, src.Index(i))
		if err != nil {
			return nil, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func anyOf(call *ast.Call, args []any) (any, error) {
	src, err := items(args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return src.Len() > 0, nil
	}
	pred, err := asLambda(args[1])
	if err != nil {
		return nil, err
	}
	for i := 0; i < src.Len(); i++ {
		ok, err := test(pred, src.Index(i))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func asSequence(call *ast.Call, args []any) (any, error) {
	if args[0] == nil || isNil(args[0]) {
		return reflect.MakeSlice(call.Type(), 0, 0).Interface(), nil
	}
	src, err := items(args[0])
	if err != nil {
		return nil, err
	}
	if src.Type() == call.Type() {
		return src.Interface(), nil
	}
	out := reflect.MakeSlice(call.Type(), 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		out = reflect.Append(out, src.Index(i))
	}
	return out.Interface(), nil
}
