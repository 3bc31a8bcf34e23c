package harness

// Result is the outcome of a scenario.
type Result struct {
	// Scenario and Query identify what ran.
	Scenario string `yaml:"scenario"`
	Query    string `yaml:"query"`

	// Before is the rendering of the query as written, with combinator
	// calls and specifications in place.
	Before string `yaml:"before"`

	// Tree is the expanded rendering. Empty when expansion failed.
	Tree string `yaml:"tree,omitempty"`

	// Backends holds the outcome per backend.
	Backends map[string]*BackendResult `yaml:"backends"`

	// Pass indicates every assertion held.
	Pass bool `yaml:"-"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `yaml:"-"`
}

// BackendResult is what one backend produced.
type BackendResult struct {
	// SQL and Params are the statement the SQLite backend ran.
	SQL    string `yaml:"sql,omitempty"`
	Params []any  `yaml:"params,omitempty"`

	Rows  []any  `yaml:"rows"`
	Error string `yaml:"error,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(s *Scenario) *Result {
	return &Result{
		Scenario: s.Name,
		Query:    s.Query,
		Backends: map[string]*BackendResult{},
		Pass:     true,
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
