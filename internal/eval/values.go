package eval

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/roach88/qexpand/internal/ast"
)

func readMember(v any, m *ast.Member) (any, error) {
	switch m.Kind {
	case ast.ClosureMember:
		cl, ok := v.(*ast.Closure)
		if !ok {
			return nil, fmt.Errorf("read %s: target is %T, not a closure", m.Name, v)
		}
		val, ok := cl.Lookup(m.Name)
		if !ok {
			return nil, fmt.Errorf("read %s: closure has no such variable", m.Name)
		}
		return val, nil

	case ast.MethodMember:
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil() && rv.Type().Elem().Kind() == reflect.Struct) {
			return nil, fmt.Errorf("read %s: %w", m.Name, ErrNilReference)
		}
		mv := rv.MethodByName(m.Name)
		if !mv.IsValid() {
			return nil, fmt.Errorf("read %s: %s has no method %s", m.Name, rv.Type(), m.Name)
		}
		return mv.Call(nil)[0].Interface(), nil

	default:
		rv := reflect.ValueOf(v)
		for rv.IsValid() && rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil, fmt.Errorf("read %s: %w", m.Name, ErrNilReference)
			}
			rv = rv.Elem()
		}
		if !rv.IsValid() {
			return nil, fmt.Errorf("read %s: %w", m.Name, ErrNilReference)
		}
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("read %s: %s is not a struct", m.Name, rv.Type())
		}
		f := rv.FieldByName(m.Name)
		if !f.IsValid() {
			return nil, fmt.Errorf("read %s: %s has no field %s", m.Name, rv.Type(), m.Name)
		}
		return f.Interface(), nil
	}
}

func index(v any, args []any, elem reflect.Type) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, ErrNilReference
	}
	if rv.Kind() == reflect.Pointer && rv.Type().Elem().Kind() == reflect.Array {
		if rv.IsNil() {
			return nil, ErrNilReference
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		i, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= rv.Len() {
			return nil, fmt.Errorf("%w [%d] with length %d", ErrIndexOutOfRange, i, rv.Len())
		}
		return rv.Index(i).Interface(), nil
	case reflect.Map:
		key, err := valueOf(args[0], rv.Type().Key())
		if err != nil {
			return nil, err
		}
		got := rv.MapIndex(key)
		if !got.IsValid() {
			return reflect.Zero(elem).Interface(), nil
		}
		return got.Interface(), nil
	}
	return nil, fmt.Errorf("%s is not indexable", rv.Type())
}

func length(v any) (int, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, nil
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String, reflect.Map:
		return rv.Len(), nil
	}
	if m, ok := v.(Materializer); ok {
		items, err := items(m)
		if err != nil {
			return 0, err
		}
		return items.Len(), nil
	}
	return 0, fmt.Errorf("len of %s", rv.Type())
}

// valueOf returns x as a reflect.Value of type t. Nil becomes the zero
// value of t.
func valueOf(x any, t reflect.Type) (reflect.Value, error) {
	if x == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(x)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	out, err := convertValue(x, t)
	if err != nil {
		return reflect.Value{}, err
	}
	if out == nil {
		return reflect.Zero(t), nil
	}
	return reflect.ValueOf(out), nil
}

// convertValue implements Convert. Pointer types act as nullable wrappers
// around their element type. Numeric conversions must round-trip.
func convertValue(v any, t reflect.Type) (any, error) {
	if v == nil {
		if nillable(t) {
			return nil, nil
		}
		return nil, &InvalidConversionError{To: t}
	}
	rv := reflect.ValueOf(v)
	from := rv.Type()
	if from == t {
		return v, nil
	}

	if t.Kind() == reflect.Func {
		if _, ok := v.(Lambda); ok {
			return v, nil
		}
		if e, ok := v.(ast.Expressible); ok {
			return asLambda(e)
		}
	}
	if t.Kind() == reflect.Interface && from.Implements(t) {
		return v, nil
	}

	// Nullable boxing and unboxing.
	if t.Kind() == reflect.Pointer && from.Kind() != reflect.Pointer {
		inner, err := convertValue(v, t.Elem())
		if err != nil {
			return nil, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(inner))
		return p.Interface(), nil
	}
	if from.Kind() == reflect.Pointer && t.Kind() != reflect.Pointer {
		if rv.IsNil() {
			return nil, &InvalidConversionError{From: from, To: t}
		}
		return convertValue(rv.Elem().Interface(), t)
	}
	if from.Kind() == reflect.Pointer && t.Kind() == reflect.Pointer && from.Elem() != t.Elem() {
		if rv.IsNil() {
			return nil, nil
		}
		return convertValue(rv.Elem().Interface(), t)
	}

	if isNumber(from) && isNumber(t) {
		out := rv.Convert(t)
		if isFloat(from) && isFloat(t) {
			return out.Interface(), nil
		}
		if !out.Convert(from).Equal(rv) || (isFloat(from) && math.IsNaN(rv.Float())) {
			return nil, &InvalidConversionError{Value: v, From: from, To: t}
		}
		if isSigned(from) && isUnsigned(t) && rv.Int() < 0 {
			return nil, &InvalidConversionError{Value: v, From: from, To: t}
		}
		if isUnsigned(from) && isSigned(t) && out.Int() < 0 {
			return nil, &InvalidConversionError{Value: v, From: from, To: t}
		}
		return out.Interface(), nil
	}
	if t.Kind() == reflect.String && isNumber(from) {
		return nil, &InvalidConversionError{Value: v, From: from, To: t}
	}
	if from.ConvertibleTo(t) {
		return rv.Convert(t).Interface(), nil
	}
	return nil, &InvalidConversionError{Value: v, From: from, To: t}
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return nillable(rv.Type()) && rv.IsNil()
}

func isSigned(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isFloat(t reflect.Type) bool {
	return t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
}

func isNumber(t reflect.Type) bool {
	return isSigned(t) || isUnsigned(t) || isFloat(t)
}

func toInt(x any) (int, error) {
	rv := reflect.ValueOf(x)
	switch {
	case !rv.IsValid():
		return 0, fmt.Errorf("index is null")
	case isSigned(rv.Type()):
		return int(rv.Int()), nil
	case isUnsigned(rv.Type()):
		return int(rv.Uint()), nil
	}
	return 0, fmt.Errorf("index of type %s is not an integer", rv.Type())
}

func equalValues(l, r any) (bool, error) {
	if isNil(l) || isNil(r) {
		return isNil(l) && isNil(r), nil
	}
	lt := reflect.TypeOf(l)
	if !lt.Comparable() {
		return false, fmt.Errorf("%s is not comparable", lt)
	}
	if rt := reflect.TypeOf(r); !rt.Comparable() {
		return false, fmt.Errorf("%s is not comparable", rt)
	}
	return l == r, nil
}

// compareValues orders two values of the same numeric or string kind.
func compareValues(l, r any) (int, error) {
	lv, rv := reflect.ValueOf(l), reflect.ValueOf(r)
	if !lv.IsValid() || !rv.IsValid() {
		return 0, fmt.Errorf("compare: %w", ErrNilReference)
	}
	t := lv.Type()
	switch {
	case isSigned(t):
		return cmp3(lv.Int() < rv.Int(), lv.Int() > rv.Int()), nil
	case isUnsigned(t):
		return cmp3(lv.Uint() < rv.Uint(), lv.Uint() > rv.Uint()), nil
	case isFloat(t):
		return cmp3(lv.Float() < rv.Float(), lv.Float() > rv.Float()), nil
	case t.Kind() == reflect.String:
		return strings.Compare(lv.String(), rv.String()), nil
	}
	return 0, fmt.Errorf("%s is not ordered", t)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func arith(op ast.BinaryOp, l, r any, t reflect.Type) (any, error) {
	lv, rv := reflect.ValueOf(l), reflect.ValueOf(r)
	if !lv.IsValid() || !rv.IsValid() {
		return nil, fmt.Errorf("%s: %w", op, ErrNilReference)
	}
	var out reflect.Value
	switch {
	case t.Kind() == reflect.String && op == ast.OpAdd:
		out = reflect.ValueOf(lv.String() + rv.String())
	case isSigned(t):
		a, b := lv.Int(), rv.Int()
		if (op == ast.OpDiv || op == ast.OpMod) && b == 0 {
			return nil, ErrDivideByZero
		}
		var x int64
		switch op {
		case ast.OpAdd:
			x = a + b
		case ast.OpSub:
			x = a - b
		case ast.OpMul:
			x = a * b
		case ast.OpDiv:
			x = a / b
		case ast.OpMod:
			x = a % b
		}
		out = reflect.ValueOf(x)
	case isUnsigned(t):
		a, b := lv.Uint(), rv.Uint()
		if (op == ast.OpDiv || op == ast.OpMod) && b == 0 {
			return nil, ErrDivideByZero
		}
		var x uint64
		switch op {
		case ast.OpAdd:
			x = a + b
		case ast.OpSub:
			x = a - b
		case ast.OpMul:
			x = a * b
		case ast.OpDiv:
			x = a / b
		case ast.OpMod:
			x = a % b
		}
		out = reflect.ValueOf(x)
	case isFloat(t):
		a, b := lv.Float(), rv.Float()
		var x float64
		switch op {
		case ast.OpAdd:
			x = a + b
		case ast.OpSub:
			x = a - b
		case ast.OpMul:
			x = a * b
		case ast.OpDiv:
			x = a / b
		case ast.OpMod:
			x = math.Mod(a, b)
		}
		out = reflect.ValueOf(x)
	default:
		return nil, fmt.Errorf("%s is not defined on %s", op, t)
	}
	return out.Convert(t).Interface(), nil
}

func negate(v any, t reflect.Type) (any, error) {
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return nil, fmt.Errorf("negate: %w", ErrNilReference)
	case isSigned(t):
		return reflect.ValueOf(-rv.Int()).Convert(t).Interface(), nil
	case isUnsigned(t):
		return reflect.ValueOf(-rv.Uint()).Convert(t).Interface(), nil
	case isFloat(t):
		return reflect.ValueOf(-rv.Float()).Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("negate is not defined on %s", t)
}
