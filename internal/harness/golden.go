package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sebdah/goldie/v2"
	"gopkg.in/yaml.v3"
)

// GoldenSuffix is the extension of golden snapshot files.
const GoldenSuffix = ".golden"

// Snapshot renders the golden form of a result: the tree as written, the
// expanded tree and each backend's statement and rows. The form is YAML
// with sorted backend keys, so it is byte-identical across runs.
func Snapshot(r *Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// dir/{scenario.Name}.golden. Run the tests with -update to regenerate
// golden files.
func RunWithGolden(t *testing.T, dir string, scenario *Scenario, opts Options) *Result {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	result, err := Run(ctx, scenario, opts)
	if err != nil {
		t.Fatalf("run %s: %v", scenario.Name, err)
	}
	AssertGolden(t, dir, result)
	return result
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, dir string, result *Result) {
	t.Helper()

	data, err := Snapshot(result)
	if err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, result.Scenario, data)
}

// WriteGolden writes the snapshot of result to dir.
func WriteGolden(dir string, result *Result) error {
	data, err := Snapshot(result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(goldenPath(dir, result.Scenario), data, 0o644)
}

// CompareGolden compares the snapshot of result with its golden file and
// returns a unified diff, empty when they match.
func CompareGolden(dir string, result *Result) (string, error) {
	want, err := os.ReadFile(goldenPath(dir, result.Scenario))
	if err != nil {
		return "", fmt.Errorf("read golden file: %w", err)
	}
	got, err := Snapshot(result)
	if err != nil {
		return "", err
	}
	if bytes.Equal(want, got) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(want)),
		B:        difflib.SplitLines(string(got)),
		FromFile: "golden",
		ToFile:   "actual",
		Context:  3,
	})
}

func goldenPath(dir, name string) string {
	return filepath.Join(dir, name+GoldenSuffix)
}
