package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qexpand/internal/blog"
)

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   T         `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, "%+v", resp.Error)
	return resp.Data
}

func TestQueriesCommand(t *testing.T) {
	out, err := execute(t, "queries")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "admin-editor-post-counts")

	out, err = execute(t, "queries", "--format", "json")
	require.NoError(t, err)
	list := decode[QueryList](t, out)
	assert.Len(t, list.Queries, len(blog.Queries()))
	assert.Equal(t, blog.Queries()[0].Name, list.Queries[0].Name)
}

func TestExpandCommand(t *testing.T) {
	out, err := execute(t, "expand", "admin-editor-post-counts")
	require.NoError(t, err)
	assert.Contains(t, out, "users.Where(u => !u.IsDeleted)\n  .Where(u => (u.Login == \"admin\"))\n  .Select(")
	assert.NotContains(t, out, "FilterByLogin")
}

func TestExpandCommandDiff(t *testing.T) {
	out, err := execute(t, "expand", "todays-posts", "--today", "2024-05-01", "--diff", "--format", "json")
	require.NoError(t, err)

	res := decode[ExpandResult](t, out)
	assert.Equal(t, "posts.FilterToday()", res.Before)
	assert.Equal(t, `posts.Where(p => !p.IsDeleted).Where(p => (p.CreatedOn >= "2024-05-01")).Take(10)`, res.Tree)
	assert.Contains(t, res.Diff, "--- written")
	assert.Contains(t, res.Diff, "+++ expanded")
	assert.Contains(t, res.Diff, "-posts.FilterToday()")
	assert.Contains(t, res.Diff, "+  .Take(10)")
}

func TestExpandCommandSQL(t *testing.T) {
	out, err := execute(t, "expand", "active-users", "--sql", "--format", "json")
	require.NoError(t, err)
	res := decode[ExpandResult](t, out)
	assert.Contains(t, res.SQL, "SELECT")
	assert.Contains(t, res.SQL, "users")
	assert.Empty(t, res.SQLError)

	out, err = execute(t, "expand", "own-edits-today", "--sql", "--format", "json")
	require.NoError(t, err, "untranslatable trees are reported, not fatal")
	res = decode[ExpandResult](t, out)
	assert.Empty(t, res.SQL)
	assert.Contains(t, res.SQLError, "limited sequence")
}

func TestUnknownQuery(t *testing.T) {
	_, err := execute(t, "expand", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "known queries: active-authors-posts")

	out, err := execute(t, "run", "nope", "--format", "json")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeUnknownQuery, resp.Error.Code)
}

func TestRunCommandInMemory(t *testing.T) {
	out, err := execute(t, "run", "active-users")
	require.NoError(t, err)
	assert.Equal(t,
		"User#1 Login=admin IsDeleted=false\nUser#3 Login=editor IsDeleted=false\n(2 rows, memory)\n",
		out)

	out, err = execute(t, "run", "active-users", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 rows, memory)")

	out, err = execute(t, "run", "content-or-welcome-counts", "--format", "json")
	require.NoError(t, err)
	res := decode[RunResult](t, out)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, float64(2), res.Rows[0].Value)
	assert.Empty(t, res.Rows[0].Entity)
}

func TestRunCommandRequiresDBFlagForSeed(t *testing.T) {
	_, err := execute(t, "seed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestSeedThenRunOnSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "blog.db")

	out, err := execute(t, "seed", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Loaded 9 rows into "+db+"\n", out)

	out, err = execute(t, "seed", "--db", db, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, 9, decode[SeedResult](t, out).Loaded)

	out, err = execute(t, "run", "todays-posts", "--db", db, "--today", "2024-05-01", "--format", "json")
	require.NoError(t, err)
	res := decode[RunResult](t, out)
	assert.Equal(t, "sqlite", res.Backend)

	var ids []float64
	for _, row := range res.Rows {
		assert.Equal(t, "Post", row.Entity)
		ids = append(ids, row.Fields["ID"].(float64))
	}
	assert.Equal(t, []float64{10, 13, 15}, ids)
}

func TestRunCommandUnsupportedOnSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "blog.db")
	_, err := execute(t, "seed", "--db", db)
	require.NoError(t, err)

	_, err = execute(t, "run", "own-edits-today", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

const scenarioDir = "../harness/testdata/scenarios"

func TestTestCommand(t *testing.T) {
	golden := t.TempDir()

	out, err := execute(t, "test", scenarioDir, "--golden", golden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ admin_editor_post_counts")
	assert.Contains(t, out, "✓ All scenarios passed")

	out, err = execute(t, "test", scenarioDir, "--golden", golden, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(golden updated)")

	out, err = execute(t, "test", scenarioDir, "--golden", golden, "--format", "json")
	require.NoError(t, err, out)
	res := decode[TestResult](t, out)
	assert.Equal(t, res.Total, res.Passed)
	for _, s := range res.Scenarios {
		assert.Equal(t, "match", s.Golden, s.Name)
	}
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	_, err := execute(t, "test", scenarioDir, "--golden", golden, "--update", "--filter", "todays_*")
	require.NoError(t, err)

	out, err := execute(t, "test", scenarioDir, "--golden", golden, "--filter", "todays_*", "--today", "2024-05-02", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	res := decode[TestResult](t, out)
	require.NotEmpty(t, res.Scenarios)
	for _, s := range res.Scenarios {
		assert.False(t, s.Pass)
		assert.Equal(t, "mismatch", s.Golden)
		assert.Contains(t, s.Diff, "--- golden")
	}
}

func TestTestCommandFilterAndPaths(t *testing.T) {
	out, err := execute(t, "test", scenarioDir, "--golden", t.TempDir(), "--filter", "nothing-*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, err = execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")

	_, err = execute(t, "test", scenarioDir, "--filter", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
