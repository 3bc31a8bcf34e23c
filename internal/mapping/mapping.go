// Package mapping describes how entity types map onto relational tables.
//
// A catalog is written in CUE and unified with a built-in schema before it
// is parsed, so structural mistakes are reported with file positions:
//
//	entity: User: {
//		table: "users"
//		fields: {
//			ID:    {column: "id", type: int}
//			Login: {column: "login", type: string}
//		}
//		has_many: Posts: {entity: "Post", foreign_key: "author_id"}
//	}
//
// Go types are attached afterwards with Bind, which checks that every
// mapped field exists on the struct with a compatible kind.
package mapping

import (
	"fmt"
	"reflect"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

const schema = `
#Field: {
	column: string
	type:   _
}

#Relation: {
	entity:      string
	foreign_key: string
}

#Entity: {
	table: string
	key:   *"ID" | string
	fields: [string]: #Field
	has_many?: [string]: #Relation
	belongs_to?: [string]: #Relation
}

entity: [string]: #Entity
`

// Kind is the storage type of a mapped field.
type Kind string

const (
	KindInt    Kind = "int"
	KindString Kind = "string"
	KindBool   Kind = "bool"
)

// Field maps a struct field to a column.
type Field struct {
	Name   string
	Column string
	Kind   Kind
}

// Relation is a navigation property. For has-many relations ForeignKey is
// a column of the target table referencing the owner's key; for
// belongs-to relations it is a column of the owner referencing the
// target's key.
type Relation struct {
	Name       string
	Target     string
	ForeignKey string
	Many       bool

	target *Entity
}

// Entity returns the related entity.
func (r *Relation) Entity() *Entity {
	return r.target
}

// Entity is a mapped table.
type Entity struct {
	Name   string
	Table  string
	Key    string
	Fields []Field

	fields    map[string]Field
	relations map[string]*Relation
	typ       reflect.Type
}

// Field looks up a mapped field by struct field name.
func (e *Entity) Field(name string) (Field, bool) {
	f, ok := e.fields[name]
	return f, ok
}

// KeyField returns the primary key field.
func (e *Entity) KeyField() Field {
	return e.fields[e.Key]
}

// Relation looks up a navigation property.
func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relations[name]
	return r, ok
}

// Relations returns the navigation properties sorted by name.
func (e *Entity) Relations() []*Relation {
	out := make([]*Relation, 0, len(e.relations))
	for _, r := range e.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Columns returns the mapped column names in declaration order.
func (e *Entity) Columns() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Column
	}
	return out
}

func (e *Entity) hasColumn(col string) bool {
	for _, f := range e.Fields {
		if f.Column == col {
			return true
		}
	}
	return false
}

// Type returns the bound Go type, a pointer to struct, or nil.
func (e *Entity) Type() reflect.Type {
	return e.typ
}

// Catalog is a set of entities.
type Catalog struct {
	entities map[string]*Entity
	byType   map[reflect.Type]*Entity
}

// Entity looks up an entity by name.
func (c *Catalog) Entity(name string) (*Entity, bool) {
	e, ok := c.entities[name]
	return e, ok
}

// ByType looks up the entity bound to t.
func (c *Catalog) ByType(t reflect.Type) (*Entity, bool) {
	e, ok := c.byType[t]
	return e, ok
}

// Entities returns all entities sorted by name.
func (c *Catalog) Entities() []*Entity {
	out := make([]*Entity, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Load compiles CUE source into a catalog.
func Load(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	base := ctx.CompileString(schema, cue.Filename("schema.cue"))
	if err := base.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v = base.Unify(v)
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v.LookupPath(cue.ParsePath("entity")))
}

// Compile parses the entity struct of a unified CUE value.
func Compile(v cue.Value) (*Catalog, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entities defined"}
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	c := &Catalog{entities: map[string]*Entity{}, byType: map[reflect.Type]*Entity{}}
	for iter.Next() {
		e, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		c.entities[e.Name] = e
	}
	if len(c.entities) == 0 {
		return nil, &CompileError{Field: "entity", Message: "no entities defined", Pos: v.Pos()}
	}
	if err := c.link(); err != nil {
		return nil, err
	}
	return c, nil
}

func compileEntity(name string, v cue.Value) (*Entity, error) {
	e := &Entity{Name: name, fields: map[string]Field{}, relations: map[string]*Relation{}}

	table, err := lookupString(v, "table")
	if err != nil {
		return nil, err
	}
	e.Table = table

	key, _ := v.LookupPath(cue.ParsePath("key")).Default()
	if e.Key, err = key.String(); err != nil {
		return nil, formatCUEError(err)
	}

	fields, err := v.LookupPath(cue.ParsePath("fields")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for fields.Next() {
		fv := fields.Value()
		column, err := lookupString(fv, "column")
		if err != nil {
			return nil, err
		}
		kind, err := extractKind(fv.LookupPath(cue.ParsePath("type")))
		if err != nil {
			return nil, err
		}
		f := Field{Name: fields.Label(), Column: column, Kind: kind}
		e.Fields = append(e.Fields, f)
		e.fields[f.Name] = f
	}
	if _, ok := e.fields[e.Key]; !ok {
		return nil, &CompileError{
			Field:   fmt.Sprintf("entity.%s.key", name),
			Message: fmt.Sprintf("key %q is not a mapped field", e.Key),
			Pos:     v.Pos(),
		}
	}

	for _, label := range []string{"has_many", "belongs_to"} {
		rv := v.LookupPath(cue.ParsePath(label))
		if !rv.Exists() {
			continue
		}
		iter, err := rv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			r := &Relation{Name: iter.Label(), Many: label == "has_many"}
			if r.Target, err = lookupString(iter.Value(), "entity"); err != nil {
				return nil, err
			}
			if r.ForeignKey, err = lookupString(iter.Value(), "foreign_key"); err != nil {
				return nil, err
			}
			if _, dup := e.fields[r.Name]; dup || e.relations[r.Name] != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("entity.%s.%s.%s", name, label, r.Name),
					Message: "name is already used by another field or relation",
					Pos:     iter.Value().Pos(),
				}
			}
			e.relations[r.Name] = r
		}
	}
	return e, nil
}

func (c *Catalog) link() error {
	for _, e := range c.Entities() {
		for _, r := range e.relations {
			target, ok := c.entities[r.Target]
			if !ok {
				return &CompileError{
					Field:   fmt.Sprintf("entity.%s.%s", e.Name, r.Name),
					Message: fmt.Sprintf("unknown entity %q", r.Target),
				}
			}
			r.target = target
			holder := e
			if r.Many {
				holder = target
			}
			if !holder.hasColumn(r.ForeignKey) {
				return &CompileError{
					Field:   fmt.Sprintf("entity.%s.%s.foreign_key", e.Name, r.Name),
					Message: fmt.Sprintf("column %q is not mapped on %s", r.ForeignKey, holder.Name),
				}
			}
		}
	}
	return nil
}

func lookupString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", &CompileError{Field: path, Message: path + " is required", Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// extractKind maps a CUE type to a storage kind. Floats are not
// supported; SQLite round-trips them inexactly.
func extractKind(v cue.Value) (Kind, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return KindString, nil
	case cue.IntKind:
		return KindInt, nil
	case cue.BoolKind:
		return KindBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are not supported - use int",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// Bind attaches the Go struct type T to the named entity. Every mapped
// field must exist on T with a kind matching its storage kind, and every
// relation must be a field holding the related type.
func Bind[T any](c *Catalog, name string) error {
	e, ok := c.entities[name]
	if !ok {
		return fmt.Errorf("bind %s: unknown entity", name)
	}
	st := reflect.TypeOf((*T)(nil)).Elem()
	if st.Kind() != reflect.Struct {
		return fmt.Errorf("bind %s: %s is not a struct", name, st)
	}
	for _, f := range e.Fields {
		sf, ok := st.FieldByName(f.Name)
		if !ok {
			return fmt.Errorf("bind %s: %s has no field %s", name, st, f.Name)
		}
		if !kindMatches(f.Kind, sf.Type) {
			return fmt.Errorf("bind %s: field %s is %s, mapped as %s", name, f.Name, sf.Type, f.Kind)
		}
	}
	for _, r := range e.relations {
		sf, ok := st.FieldByName(r.Name)
		if !ok {
			return fmt.Errorf("bind %s: %s has no field %s", name, st, r.Name)
		}
		want := reflect.Pointer
		if r.Many {
			want = reflect.Slice
		}
		if sf.Type.Kind() != want {
			return fmt.Errorf("bind %s: relation %s is %s, want a %s", name, r.Name, sf.Type, want)
		}
	}
	if other, ok := c.byType[reflect.PointerTo(st)]; ok && other != e {
		return fmt.Errorf("bind %s: %s is already bound to %s", name, st, other.Name)
	}
	e.typ = reflect.PointerTo(st)
	c.byType[e.typ] = e
	return nil
}

func kindMatches(k Kind, t reflect.Type) bool {
	switch k {
	case KindString:
		return t.Kind() == reflect.String
	case KindBool:
		return t.Kind() == reflect.Bool
	case KindInt:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return true
		}
	}
	return false
}

// CompileError is a catalog error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
