package testutil

import (
	"testing"

	"github.com/kr/pretty"

	"github.com/roach88/qexpand/internal/ast"
)

// AssertTree fails t unless got equals want up to parameter renaming. The
// failure message shows both renderings and a field-level diff.
func AssertTree(t testing.TB, want, got ast.Node) bool {
	t.Helper()
	if ast.Equal(want, got) {
		return true
	}
	t.Errorf("trees differ\nwant: %s\n got: %s\ndiff:\n%s",
		ast.String(want), ast.String(got), pretty.Diff(want, got))
	return false
}

// RequireTree is AssertTree followed by t.FailNow on mismatch.
func RequireTree(t testing.TB, want, got ast.Node) {
	t.Helper()
	if !AssertTree(t, want, got) {
		t.FailNow()
	}
}
