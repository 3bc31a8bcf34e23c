package store

import (
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/query"
	"github.com/roach88/qexpand/internal/seq"
	"github.com/roach88/qexpand/internal/translate"
)

// Table is the query source for one entity. In a tree it is a constant of
// type []E rendered as the table name.
type Table struct {
	store  *Store
	entity *mapping.Entity
	node   *ast.Constant
}

var (
	_ query.Source          = (*Table)(nil)
	_ translate.TableSource = (*Table)(nil)
)

// Table returns the source for the named entity. The entity must be bound
// to a Go type.
func (s *Store) Table(entity string) (*Table, error) {
	e, ok := s.catalog.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	if e.Type() == nil {
		return nil, fmt.Errorf("entity %s is not bound to a Go type", entity)
	}
	t := &Table{store: s, entity: e}
	t.node = ast.TypedConst(t, seq.Of(e.Type()))
	return t, nil
}

// ElemType implements ast.Source.
func (t *Table) ElemType() reflect.Type {
	return t.entity.Type()
}

// Entity implements translate.TableSource.
func (t *Table) Entity() *mapping.Entity {
	return t.entity
}

// Expression returns the table's constant node, the same on every call.
func (t *Table) Expression() ast.Node {
	return t.node
}

// Provider returns the store's provider.
func (t *Table) Provider() query.Provider {
	return t.store.provider
}

func (t *Table) String() string {
	return t.entity.Table
}
