package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldenScenario(t *testing.T) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/todays_top_posts.yaml")
	require.NoError(t, err)
	return s
}

func TestSnapshot_Deterministic(t *testing.T) {
	s := goldenScenario(t)
	r1, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)
	r2, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)

	a, err := Snapshot(r1)
	require.NoError(t, err)
	b, err := Snapshot(r2)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Contains(t, string(a), "scenario: todays_top_posts\n")
	assert.Contains(t, string(a), "query: todays-top-posts\n")
	assert.Contains(t, string(a), "before: posts.FilterToday(2)\n")
	assert.NotContains(t, string(a), "pass:", "pass/fail is not part of the snapshot")
}

func TestRunWithGolden(t *testing.T) {
	s := goldenScenario(t)
	dir := t.TempDir()

	r, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)
	data, err := Snapshot(r)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir(dir), goldie.WithNameSuffix(GoldenSuffix))
	require.NoError(t, g.Update(t, s.Name, data))

	got := RunWithGolden(t, dir, s, Options{})
	assert.True(t, got.Pass, got.Errors)
}

func TestWriteAndCompareGolden(t *testing.T) {
	s := goldenScenario(t)
	dir := filepath.Join(t.TempDir(), "golden")

	r, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)

	_, err = CompareGolden(dir, r)
	assert.ErrorContains(t, err, "read golden file")

	require.NoError(t, WriteGolden(dir, r))
	diff, err := CompareGolden(dir, r)
	require.NoError(t, err)
	assert.Empty(t, diff)

	r.Tree = "changed"
	diff, err = CompareGolden(dir, r)
	require.NoError(t, err)
	assert.Contains(t, diff, "--- golden")
	assert.Contains(t, diff, "+tree: changed")

	_, err = os.Stat(filepath.Join(dir, "todays_top_posts.golden"))
	assert.NoError(t, err)
}
