package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/active_users.yaml")
	require.NoError(t, err)

	assert.Equal(t, "active_users", s.Name)
	assert.Equal(t, "active-users", s.Query)
	assert.Equal(t, []string{BackendMemory, BackendSQLite}, s.backends())
	require.Len(t, s.Assertions, 4)
	assert.Equal(t, AssertRows, s.Assertions[2].Type)
	assert.Equal(t, []any{"User#1", "User#3"}, s.Assertions[2].Rows)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\nquery: active-users\nassertion: []\n",
			want: "field assertion not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nquery: active-users\nassertions: [{type: backends_agree}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nquery: active-users\nassertions: [{type: backends_agree}]\n",
			want: "description is required",
		},
		{
			name: "unknown query",
			yaml: "name: x\ndescription: d\nquery: nope\nassertions: [{type: backends_agree}]\n",
			want: `unknown query "nope"`,
		},
		{
			name: "unknown backend",
			yaml: "name: x\ndescription: d\nquery: active-users\nbackends: [postgres]\nassertions: [{type: backends_agree}]\n",
			want: `unknown backend "postgres"`,
		},
		{
			name: "no assertions",
			yaml: "name: x\ndescription: d\nquery: active-users\n",
			want: "assertions list is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: d\nquery: active-users\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "tree assertion without text",
			yaml: "name: x\ndescription: d\nquery: active-users\nassertions: [{type: tree_contains}]\n",
			want: "text is required for tree_contains",
		},
		{
			name: "rows without rows",
			yaml: "name: x\ndescription: d\nquery: active-users\nassertions: [{type: rows}]\n",
			want: "rows is required",
		},
		{
			name: "backend not run",
			yaml: "name: x\ndescription: d\nquery: active-users\nbackends: [memory]\nassertions: [{type: rows, backend: sqlite, rows: []}]\n",
			want: `does not run on "sqlite"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_EmptyRows(t *testing.T) {
	s, err := ParseScenario([]byte("name: x\ndescription: d\nquery: active-users\nassertions: [{type: rows, rows: []}]\n"))
	require.NoError(t, err)
	assert.NotNil(t, s.Assertions[0].Rows)
	assert.Empty(t, s.Assertions[0].Rows)
}

func TestLoadDir(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)
	assert.Equal(t, "active_users", scenarios[0].Name, "sorted by file name")

	dir := t.TempDir()
	data, err := os.ReadFile("testdata/scenarios/active_users.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), data, 0o644))
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, `scenario "active_users" defined in`)

	_, err = LoadDir(t.TempDir())
	assert.ErrorContains(t, err, "no scenarios")
}
