// Package harness runs query scenarios against the blog catalog.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: admin_editor_post_counts
//	description: "What this scenario validates"
//	query: admin-editor-post-counts
//	backends: [memory, sqlite]
//	assertions:
//	  - type: tree_excludes
//	    text: "FilterByEditor("
//	  - type: rows
//	    rows: [1]
//	  - type: error_contains
//	    backend: sqlite
//	    text: "cannot count a limited sequence"
//
// Every scenario names a query from the blog catalog. The harness builds it
// twice: over plain in-memory sources, which keeps the combinator calls and
// specifications as written, and over expandable sources, which yields the
// expanded tree. It then runs the expanded query on each backend.
//
// # Assertion Types
//
//   - tree_contains: the expanded rendering contains text
//   - tree_excludes: the expanded rendering does not contain text
//   - rows: a backend (or every backend) returned exactly these rows
//   - row_count: a backend (or every backend) returned count rows
//   - error_contains: a backend failed with an error containing text
//   - backends_agree: every backend that succeeded returned the same rows
//
// Entity rows are rendered as Type#ID, for example Post#10, so results
// from memory and SQLite compare equal.
//
// # Deterministic Testing
//
// Each scenario gets a fresh dataset and a fresh in-memory SQLite store.
// The blog clock is pinned to Options.Today for the duration of a run, and
// snapshots written for golden comparison contain only renderings and rows.
//
// # Usage
//
//	scenarios, err := harness.LoadDir("testdata/scenarios")
//	results, err := harness.RunAll(ctx, scenarios, harness.Options{})
//	for _, r := range results {
//	    if !r.Pass {
//	        log.Println(r.Errors)
//	    }
//	}
package harness
