package mapping

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogCUE = `
entity: Writer: {
	table: "writers"
	fields: {
		ID:     {column: "id", type: int}
		Handle: {column: "handle", type: string}
	}
	has_many: Notes: {entity: "Note", foreign_key: "writer_id"}
}

entity: Note: {
	table: "notes"
	key:   "NoteID"
	fields: {
		NoteID:   {column: "note_id", type: int}
		WriterID: {column: "writer_id", type: int}
		Hidden:   {column: "hidden", type: bool}
	}
	belongs_to: Writer: {entity: "Writer", foreign_key: "writer_id"}
}
`

type writer struct {
	ID     int64
	Handle string
	Notes  []*note
}

type note struct {
	NoteID   int
	WriterID int64
	Hidden   bool
	Writer   *writer
}

func TestLoad(t *testing.T) {
	c, err := Load("blog.cue", []byte(blogCUE))
	require.NoError(t, err)

	names := []string{}
	for _, e := range c.Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Note", "Writer"}, names)

	w, ok := c.Entity("Writer")
	require.True(t, ok)
	assert.Equal(t, "writers", w.Table)
	assert.Equal(t, "ID", w.Key, "key defaults to ID")
	assert.Equal(t, []string{"id", "handle"}, w.Columns())
	assert.Equal(t, Field{Name: "Handle", Column: "handle", Kind: KindString}, mustField(t, w, "Handle"))

	notes, ok := w.Relation("Notes")
	require.True(t, ok)
	assert.True(t, notes.Many)
	assert.Equal(t, "writer_id", notes.ForeignKey)

	n, _ := c.Entity("Note")
	assert.Equal(t, "note_id", n.KeyField().Column)
	back, ok := n.Relation("Writer")
	require.True(t, ok)
	assert.False(t, back.Many)
	assert.Same(t, w, back.Entity())
	assert.Same(t, n, notes.Entity())
}

func mustField(t *testing.T, e *Entity, name string) Field {
	t.Helper()
	f, ok := e.Field(name)
	require.True(t, ok, "field %s", name)
	return f
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "syntax",
			src:  `entity: {`,
			want: "blog.cue",
		},
		{
			name: "float field",
			src:  `entity: A: {table: "a", fields: {ID: {column: "id", type: int}, Score: {column: "s", type: float}}}`,
			want: "float types are not supported",
		},
		{
			name: "missing key field",
			src:  `entity: A: {table: "a", fields: {Name: {column: "name", type: string}}}`,
			want: `key "ID" is not a mapped field`,
		},
		{
			name: "unknown relation target",
			src:  `entity: A: {table: "a", fields: {ID: {column: "id", type: int}}, has_many: Bs: {entity: "B", foreign_key: "a_id"}}`,
			want: `unknown entity "B"`,
		},
		{
			name: "unmapped foreign key",
			src:  `entity: A: {table: "a", fields: {ID: {column: "id", type: int}}, has_many: As: {entity: "A", foreign_key: "parent_id"}}`,
			want: `column "parent_id" is not mapped on A`,
		},
		{
			name: "schema violation",
			src:  `entity: A: {table: 3, fields: {ID: {column: "id", type: int}}}`,
			want: "conflicting values",
		},
		{
			name: "no entities",
			src:  `other: 1`,
			want: "no entities defined",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("blog.cue", []byte(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestBind(t *testing.T) {
	c, err := Load("blog.cue", []byte(blogCUE))
	require.NoError(t, err)

	require.NoError(t, Bind[writer](c, "Writer"))
	require.NoError(t, Bind[note](c, "Note"))

	e, ok := c.ByType(reflect.TypeOf(&writer{}))
	require.True(t, ok)
	assert.Equal(t, "Writer", e.Name)
	assert.Equal(t, reflect.TypeOf(&note{}), func() reflect.Type { n, _ := c.Entity("Note"); return n.Type() }())

	assert.ErrorContains(t, Bind[note](c, "Writer"), "has no field")
	assert.ErrorContains(t, Bind[writer](c, "Missing"), "unknown entity")
	assert.ErrorContains(t, Bind[int](c, "Writer"), "not a struct")
}

type badKinds struct {
	ID     string
	Handle string
	Notes  []*note
}

type badRelation struct {
	ID     int64
	Handle string
	Notes  *note
}

func TestBindChecksKinds(t *testing.T) {
	c, err := Load("blog.cue", []byte(blogCUE))
	require.NoError(t, err)

	assert.ErrorContains(t, Bind[badKinds](c, "Writer"), "mapped as int")
	assert.ErrorContains(t, Bind[badRelation](c, "Writer"), "want a slice")
}
