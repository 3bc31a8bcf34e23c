package blog

import (
	"bytes"
	_ "embed"
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/query"
	"github.com/roach88/qexpand/internal/store"
)

//go:embed model.cue
var modelCUE []byte

//go:embed seed.yaml
var seedYAML []byte

// User writes posts.
type User struct {
	ID        int64
	Login     string
	IsDeleted bool
	Posts     PostList
}

// PostList is the Posts navigation of a user.
type PostList []*Post

// Post is a blog post. CreatedOn is a YYYY-MM-DD date.
type Post struct {
	ID            int64
	Title         string
	Content       string
	IsDeleted     bool
	CreatedOn     string
	AuthorID      int64
	Author        *User
	CreatorUserID int64
	UpdaterUserID int64
}

// Catalog loads the embedded entity catalog with User and Post bound.
func Catalog() (*mapping.Catalog, error) {
	c, err := mapping.Load("model.cue", modelCUE)
	if err != nil {
		return nil, err
	}
	if err := mapping.Bind[User](c, "User"); err != nil {
		return nil, err
	}
	if err := mapping.Bind[Post](c, "Post"); err != nil {
		return nil, err
	}
	return c, nil
}

// Fixtures returns the embedded seed rows.
func Fixtures() (store.Fixtures, error) {
	return store.ParseFixtures(bytes.NewReader(seedYAML))
}

// Dataset is the seed data in memory with navigation properties linked.
type Dataset struct {
	Users []*User
	Posts []*Post
}

// LoadDataset decodes the seed rows.
func LoadDataset() (*Dataset, error) {
	fx, err := Fixtures()
	if err != nil {
		return nil, err
	}
	ds := &Dataset{}
	for _, set := range fx {
		for i, row := range set.Rows {
			var err error
			switch set.Entity {
			case "User":
				u := &User{}
				err = decodeRow(row, u)
				ds.Users = append(ds.Users, u)
			case "Post":
				p := &Post{}
				err = decodeRow(row, p)
				ds.Posts = append(ds.Posts, p)
			default:
				err = fmt.Errorf("unknown entity")
			}
			if err != nil {
				return nil, fmt.Errorf("seed: %s row %d: %w", set.Entity, i, err)
			}
		}
	}
	ds.link()
	return ds, nil
}

func (ds *Dataset) link() {
	byID := make(map[int64]*User, len(ds.Users))
	for _, u := range ds.Users {
		byID[u.ID] = u
		u.Posts = PostList{}
	}
	for _, p := range ds.Posts {
		if u, ok := byID[p.AuthorID]; ok {
			p.Author = u
			u.Posts = append(u.Posts, p)
		}
	}
}

// decodeRow sets the fields of the struct out points to from a fixture row.
func decodeRow(row map[string]any, out any) error {
	v := reflect.ValueOf(out).Elem()
	for name, raw := range row {
		f := v.FieldByName(name)
		if !f.IsValid() {
			return fmt.Errorf("unknown field %q", name)
		}
		rv := reflect.ValueOf(raw)
		if !rv.IsValid() {
			continue
		}
		if kindClass(rv.Kind()) != kindClass(f.Kind()) {
			return fmt.Errorf("field %s: %v (%T) does not fit %s", name, raw, raw, f.Type())
		}
		f.Set(rv.Convert(f.Type()))
	}
	return nil
}

func kindClass(k reflect.Kind) reflect.Kind {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.Int
	}
	return k
}

// Sources are the tables queries start from.
type Sources struct {
	Users query.Source
	Posts query.Source
}

// Sources returns in-memory tables over the dataset.
func (ds *Dataset) Sources() Sources {
	return Sources{
		Users: query.FromSlice("users", ds.Users),
		Posts: query.FromSlice("posts", ds.Posts),
	}
}

// StoreSources returns the tables of a store opened with Catalog.
func StoreSources(s *store.Store) (Sources, error) {
	users, err := s.Table("User")
	if err != nil {
		return Sources{}, err
	}
	posts, err := s.Table("Post")
	if err != nil {
		return Sources{}, err
	}
	return Sources{Users: users, Posts: posts}, nil
}

// Expandable decorates both sources with the combinator and specification
// expanders and strips the AsSequence markers they leave behind.
func Expandable(src Sources, opts ...query.Option) Sources {
	opts = append([]query.Option{query.WithPasses(query.AsSequenceStripper{})}, opts...)
	return Sources{
		Users: query.AsExpandable(src.Users, opts...),
		Posts: query.AsExpandable(src.Posts, opts...),
	}
}
