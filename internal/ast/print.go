package ast

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var binaryOps = [...]string{
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpMod:     "%",
	OpEq:      "==",
	OpNe:      "!=",
	OpLt:      "<",
	OpLe:      "<=",
	OpGt:      ">",
	OpGe:      ">=",
	OpAndAlso: "&&",
	OpOrElse:  "||",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOps) {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpNegate:
		return "-"
	case OpLen:
		return "len"
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// String renders n in lambda notation:
//
//	u => u.Posts.Where(p => (p.IsDeleted == false)).Any()
//
// Static calls render in extension style with the first argument as the
// receiver. Captured variables render as their current value, and string
// literals are NFC-normalized so that renderings are stable across input
// encodings.
func String(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Constant:
		b.WriteString(FormatValue(n.Value))
	case *Param:
		b.WriteString(n.Name)
	case *Member:
		if v, ok := ClosureValue(n); ok {
			b.WriteString(FormatValue(v))
			return
		}
		write(b, n.Target)
		b.WriteByte('.')
		b.WriteString(n.Name)
	case *Index:
		write(b, n.Target)
		b.WriteByte('[')
		writeList(b, n.Args)
		b.WriteByte(']')
	case *Convert:
		b.WriteString("Convert(")
		write(b, n.Operand)
		b.WriteString(", ")
		b.WriteString(n.typ.String())
		b.WriteByte(')')
	case *Unary:
		switch n.Op {
		case OpLen:
			b.WriteString("len(")
			write(b, n.Operand)
			b.WriteByte(')')
		default:
			b.WriteString(n.Op.String())
			write(b, n.Operand)
		}
	case *Binary:
		b.WriteByte('(')
		write(b, n.Left)
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		write(b, n.Right)
		b.WriteByte(')')
	case *Call:
		args := n.Args
		switch {
		case n.Target != nil:
			write(b, n.Target)
			b.WriteByte('.')
		case len(args) > 0:
			write(b, args[0])
			b.WriteByte('.')
			args = args[1:]
		case n.Method.Owner != "":
			b.WriteString(n.Method.Owner)
			b.WriteByte('.')
		}
		b.WriteString(n.Method.Name)
		b.WriteByte('(')
		writeList(b, args)
		b.WriteByte(')')
	case *Quote:
		if len(n.Params) == 1 {
			b.WriteString(n.Params[0].Name)
		} else {
			b.WriteByte('(')
			for i, p := range n.Params {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(p.Name)
			}
			b.WriteByte(')')
		}
		b.WriteString(" => ")
		write(b, n.Body)
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}

func writeList(b *strings.Builder, nodes []Node) {
	for i, n := range nodes {
		if i > 0 {
			b.WriteString(", ")
		}
		write(b, n)
	}
}

// FormatValue renders a constant value.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(norm.NFC.String(v))
	case *Closure:
		return "closure"
	case fmt.Stringer:
		return v.String()
	case Source:
		return "source[" + v.ElemType().String() + "]"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "null"
		}
		if rv.Elem().Kind() != reflect.Struct {
			return FormatValue(rv.Elem().Interface())
		}
		return "value(" + rv.Type().String() + ")"
	case reflect.Slice, reflect.Map, reflect.Func:
		if rv.IsNil() {
			return "null"
		}
		return "value(" + rv.Type().String() + ")"
	}
	return fmt.Sprintf("%v", v)
}
