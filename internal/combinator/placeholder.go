package combinator

import (
	"reflect"

	"github.com/google/uuid"

	"github.com/roach88/qexpand/internal/seq"
)

// IDGenerator produces placeholder identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 identifiers.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Placeholder is the empty source a combinator body is built against. Its
// pointer identity is what the rebinder replaces; the ID only makes
// renderings of un-rebound bodies readable.
type Placeholder struct {
	ID   string
	elem reflect.Type
}

// ElemType implements ast.Source.
func (p *Placeholder) ElemType() reflect.Type {
	return p.elem
}

// Materialize implements eval.Materializer. A placeholder has no rows.
func (p *Placeholder) Materialize() (any, error) {
	return reflect.MakeSlice(seq.Of(p.elem), 0, 0).Interface(), nil
}

func (p *Placeholder) String() string {
	return "placeholder(" + p.ID + ")"
}
