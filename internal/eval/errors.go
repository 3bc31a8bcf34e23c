package eval

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
)

// ErrInvalidOperation is the class of evaluation failures caused by the
// shape of the tree rather than by the data: a value was requested from a
// sub-tree that still depends on a lambda parameter.
var ErrInvalidOperation = errors.New("invalid operation")

var (
	// ErrNilReference is returned when a member or element is read through nil.
	ErrNilReference = errors.New("nil reference")

	// ErrIndexOutOfRange is returned for slice, array and string indexes
	// outside the operand.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrDivideByZero is returned for integer division or modulo by zero.
	ErrDivideByZero = errors.New("integer divide by zero")
)

// UnboundParameterError reports that a sub-tree references a parameter
// that nothing inside it binds, so it has no value on its own.
type UnboundParameterError struct {
	Param *ast.Param
	Node  ast.Node
}

func (e *UnboundParameterError) Error() string {
	return fmt.Sprintf("%s: parameter %q is not bound in %s", ErrInvalidOperation, e.Param.Name, ast.String(e.Node))
}

// Unwrap classifies the error as ErrInvalidOperation.
func (e *UnboundParameterError) Unwrap() error {
	return ErrInvalidOperation
}

// UnsupportedNodeError reports a node the evaluator cannot execute, such as
// a call with no Go implementation.
type UnsupportedNodeError struct {
	Node   ast.Node
	Reason string
}

func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("unsupported node %s: %s", ast.String(e.Node), e.Reason)
}

// InvalidConversionError reports a conversion that cannot be performed
// without losing the value.
type InvalidConversionError struct {
	Value any
	From  reflect.Type
	To    reflect.Type
}

func (e *InvalidConversionError) Error() string {
	if e.From == nil {
		return fmt.Sprintf("cannot convert null to %s", e.To)
	}
	return fmt.Sprintf("cannot convert %v (%s) to %s", e.Value, e.From, e.To)
}

// IsUnbound returns true if err is, or wraps, an UnboundParameterError.
func IsUnbound(err error) bool {
	var ue *UnboundParameterError
	return errors.As(err, &ue)
}

// IsUnsupported returns true if err is, or wraps, an UnsupportedNodeError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedNodeError
	return errors.As(err, &ue)
}
