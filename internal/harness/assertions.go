package harness

import (
	"fmt"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Backend  string // Backend the assertion looked at, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Tree     string // Expanded rendering for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Backend != "" {
		fmt.Fprintf(&buf, " (%s)", e.Backend)
	}
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Tree != "" {
		fmt.Fprintf(&buf, "\nExpanded tree:\n  %s\n", e.Tree)
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion of s against r and returns
// the failure messages.
func EvaluateAssertions(s *Scenario, r *Result) []string {
	var errs []string
	for i, a := range s.Assertions {
		for _, err := range evaluate(s, r, a) {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err))
		}
	}
	return errs
}

func evaluate(s *Scenario, r *Result, a Assertion) []error {
	switch a.Type {
	case AssertTreeContains:
		return single(assertTree(r, a, true))
	case AssertTreeExcludes:
		return single(assertTree(r, a, false))
	case AssertBackendsAgree:
		return single(assertBackendsAgree(r))
	}

	var errs []error
	for _, name := range targets(s, a) {
		br := r.Backends[name]
		var err error
		switch a.Type {
		case AssertRows:
			err = assertRows(r, name, br, a.Rows)
		case AssertRowCount:
			err = assertRowCount(r, name, br, a.Count)
		case AssertErrorContains:
			err = assertErrorContains(r, name, br, a.Text)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func single(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}

func targets(s *Scenario, a Assertion) []string {
	if a.Backend != "" {
		return []string{a.Backend}
	}
	return s.backends()
}

// assertTree checks the expanded rendering for a substring.
func assertTree(r *Result, a Assertion, want bool) error {
	if r.Tree == "" {
		return &AssertionError{Type: a.Type, Expected: "an expanded tree", Actual: "expansion failed"}
	}
	if strings.Contains(r.Tree, a.Text) == want {
		return nil
	}
	expected := fmt.Sprintf("tree containing %q", a.Text)
	if !want {
		expected = fmt.Sprintf("tree without %q", a.Text)
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: r.Tree}
}

func assertRows(r *Result, backend string, br *BackendResult, want []any) error {
	if br.Error != "" {
		return &AssertionError{Type: AssertRows, Backend: backend, Expected: formatRows(want), Actual: "error: " + br.Error, Tree: r.Tree}
	}
	if formatRows(want) != formatRows(br.Rows) {
		return &AssertionError{Type: AssertRows, Backend: backend, Expected: formatRows(want), Actual: formatRows(br.Rows), Tree: r.Tree}
	}
	return nil
}

func assertRowCount(r *Result, backend string, br *BackendResult, want int) error {
	if br.Error != "" {
		return &AssertionError{Type: AssertRowCount, Backend: backend, Expected: fmt.Sprintf("%d rows", want), Actual: "error: " + br.Error, Tree: r.Tree}
	}
	if len(br.Rows) != want {
		return &AssertionError{Type: AssertRowCount, Backend: backend, Expected: fmt.Sprintf("%d rows", want), Actual: fmt.Sprintf("%d rows", len(br.Rows)), Tree: r.Tree}
	}
	return nil
}

func assertErrorContains(r *Result, backend string, br *BackendResult, text string) error {
	if br.Error == "" {
		return &AssertionError{Type: AssertErrorContains, Backend: backend, Expected: fmt.Sprintf("error containing %q", text), Actual: "rows " + formatRows(br.Rows), Tree: r.Tree}
	}
	if !strings.Contains(br.Error, text) {
		return &AssertionError{Type: AssertErrorContains, Backend: backend, Expected: fmt.Sprintf("error containing %q", text), Actual: br.Error}
	}
	return nil
}

// assertBackendsAgree compares the rows of every backend that succeeded.
func assertBackendsAgree(r *Result) error {
	names := make([]string, 0, len(r.Backends))
	for name, br := range r.Backends {
		if br.Error == "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) < 2 {
		return &AssertionError{Type: AssertBackendsAgree, Expected: "at least two successful backends", Actual: strings.Join(names, ", ")}
	}
	first := formatRows(r.Backends[names[0]].Rows)
	for _, name := range names[1:] {
		if got := formatRows(r.Backends[name].Rows); got != first {
			return &AssertionError{
				Type:     AssertBackendsAgree,
				Expected: fmt.Sprintf("%s: %s", names[0], first),
				Actual:   fmt.Sprintf("%s: %s", name, got),
				Tree:     r.Tree,
			}
		}
	}
	return nil
}

// formatRows renders rows for comparison, so that YAML integers and the
// int64 values a backend returns compare equal.
func formatRows(rows []any) string {
	parts := make([]string, len(rows))
	for i, v := range rows {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
