// Package blog is the demo domain the CLI and the scenario harness run
// against: users writing posts, the combinators and specifications that
// filter them, and a catalog of named queries built from both.
//
// The same queries run in memory over the embedded seed rows and against
// a SQLite store loaded with them:
//
//	ds, _ := blog.LoadDataset()
//	src := blog.Expandable(ds.Sources())
//	q, _ := blog.Lookup("admin-editor-post-counts")
//	counts, err := q.Build(src).ToSlice(ctx)
//
// FilterToday reads the current date through Now, which scenarios pin.
package blog
