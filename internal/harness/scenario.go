package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qexpand/internal/blog"
)

// Backend names where a scenario runs.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Scenario defines a query scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Query is the name of a blog catalog query.
	Query string `yaml:"query"`

	// Backends lists where the query runs. Empty means every backend.
	Backends []string `yaml:"backends,omitempty"`

	// Assertions validate the expanded tree and the results.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates a tree or a result.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Backend restricts rows, row_count and error_contains to one backend.
	// Empty means every backend the scenario runs on.
	Backend string `yaml:"backend,omitempty"`

	// Text is the substring for tree_contains, tree_excludes and
	// error_contains.
	Text string `yaml:"text,omitempty"`

	// Rows are the expected rows for rows.
	Rows []any `yaml:"rows,omitempty"`

	// Count is the expected number of rows for row_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTreeContains  = "tree_contains"
	AssertTreeExcludes  = "tree_excludes"
	AssertRows          = "rows"
	AssertRowCount      = "row_count"
	AssertErrorContains = "error_contains"
	AssertBackendsAgree = "backends_agree"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ErrNoScenarios is returned by LoadDir for a directory without scenario
// files.
var ErrNoScenarios = errors.New("no scenarios")

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
// Scenario names must be unique.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoScenarios, dir)
	}
	sort.Strings(paths)

	seen := map[string]string{}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("scenario %q defined in %s and %s", s.Name, prev, p)
		}
		seen[s.Name] = p
		out = append(out, s)
	}
	return out, nil
}

// backends returns the backends the scenario runs on.
func (s *Scenario) backends() []string {
	if len(s.Backends) == 0 {
		return []string{BackendMemory, BackendSQLite}
	}
	return s.Backends
}

func (s *Scenario) runsOn(backend string) bool {
	for _, b := range s.backends() {
		if b == backend {
			return true
		}
	}
	return false
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Query == "" {
		return fmt.Errorf("query is required")
	}
	if _, ok := blog.Lookup(s.Query); !ok {
		return fmt.Errorf("unknown query %q", s.Query)
	}

	for i, b := range s.Backends {
		if b != BackendMemory && b != BackendSQLite {
			return fmt.Errorf("backends[%d]: unknown backend %q", i, b)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, s, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, s *Scenario, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Backend != "" && !s.runsOn(a.Backend) {
		return fmt.Errorf("assertions[%d]: scenario does not run on %q", index, a.Backend)
	}

	switch a.Type {
	case AssertTreeContains, AssertTreeExcludes, AssertErrorContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertRows:
		if a.Rows == nil {
			return fmt.Errorf("assertions[%d]: rows is required for rows (use [] for none)", index)
		}
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertBackendsAgree:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
