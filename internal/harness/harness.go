package harness

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/blog"
	"github.com/roach88/qexpand/internal/mapping"
	"github.com/roach88/qexpand/internal/query"
	"github.com/roach88/qexpand/internal/store"
)

// DefaultToday is the date scenarios run on unless Options.Today is set.
// The seed data is written around it.
const DefaultToday = "2024-05-01"

// Options configure a run.
type Options struct {
	// Today pins blog.Today, in blog.DateLayout. Defaults to DefaultToday.
	Today string

	// Concurrency bounds how many scenarios run at once. Defaults to
	// GOMAXPROCS.
	Concurrency int

	// Logger receives pass and SQL debug logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// clockMu serializes runs, which pin the package-level blog clock.
var clockMu sync.Mutex

// Harness holds what scenarios share: the catalog and the seed rows.
type Harness struct {
	catalog  *mapping.Catalog
	fixtures store.Fixtures
	logger   *zap.Logger
}

// Run executes a single scenario.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	results, err := RunAll(ctx, []*Scenario{scenario}, opts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// RunAll executes scenarios concurrently and returns their results in
// input order. A scenario whose assertions fail still produces a result;
// an error means a scenario could not be run at all.
func RunAll(ctx context.Context, scenarios []*Scenario, opts Options) ([]*Result, error) {
	if opts.Today == "" {
		opts.Today = DefaultToday
	}
	today, err := time.Parse(blog.DateLayout, opts.Today)
	if err != nil {
		return nil, fmt.Errorf("invalid today %q: %w", opts.Today, err)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	catalog, err := blog.Catalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	fixtures, err := blog.Fixtures()
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	h := &Harness{catalog: catalog, fixtures: fixtures, logger: opts.Logger}

	clockMu.Lock()
	defer clockMu.Unlock()
	saved := blog.Now
	blog.Now = func() time.Time { return today }
	defer func() { blog.Now = saved }()

	results := make([]*Result, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, s := range scenarios {
		i, s := i, s
		g.Go(func() error {
			r, err := h.run(ctx, s)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// run executes one scenario.
//
// Execution flow:
// 1. Build the query over plain sources and render it as written
// 2. Build it over expandable sources and render the expanded tree
// 3. Run the expanded query on each backend
// 4. Evaluate assertions
func (h *Harness) run(ctx context.Context, s *Scenario) (*Result, error) {
	q, ok := blog.Lookup(s.Query)
	if !ok {
		return nil, fmt.Errorf("unknown query %q", s.Query)
	}
	logger := h.logger.With(zap.String("scenario", s.Name))
	result := NewResult(s)

	ds, err := blog.LoadDataset()
	if err != nil {
		return nil, err
	}
	written := q.Build(ds.Sources())
	if err := written.Err(); err != nil {
		return nil, fmt.Errorf("build %s: %w", s.Query, err)
	}
	result.Before = ast.String(written.Expression())

	expanded := q.Build(blog.Expandable(ds.Sources(), query.WithLogger(logger)))
	if expanded.Err() == nil {
		result.Tree = ast.String(expanded.Expression())
	}

	if s.runsOn(BackendMemory) {
		result.Backends[BackendMemory] = execute(ctx, expanded)
	}
	if s.runsOn(BackendSQLite) {
		br, err := h.runSQLite(ctx, q, logger)
		if err != nil {
			return nil, err
		}
		result.Backends[BackendSQLite] = br
	}

	for _, msg := range EvaluateAssertions(s, result) {
		result.AddError(msg)
	}
	return result, nil
}

// runSQLite runs q against a fresh in-memory store loaded with the seed.
func (h *Harness) runSQLite(ctx context.Context, q blog.Query, logger *zap.Logger) (*BackendResult, error) {
	st, err := store.Open(":memory:", h.catalog, store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if _, err := st.Load(ctx, h.fixtures); err != nil {
		return nil, err
	}
	src, err := blog.StoreSources(st)
	if err != nil {
		return nil, err
	}

	built := q.Build(blog.Expandable(src, query.WithLogger(logger)))
	br := execute(ctx, built)
	if built.Err() == nil {
		br.SQL, br.Params, err = st.Provider().Statement(built.Expression())
		if err != nil {
			return nil, err
		}
	}
	return br, nil
}

// execute runs q and renders its rows.
func execute(ctx context.Context, q *query.Query) *BackendResult {
	br := &BackendResult{Rows: []any{}}
	v, err := q.ToSlice(ctx)
	if err != nil {
		br.Error = err.Error()
		return br
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		br.Rows = append(br.Rows, renderRow(v))
		return br
	}
	for i := 0; i < rv.Len(); i++ {
		br.Rows = append(br.Rows, renderRow(rv.Index(i).Interface()))
	}
	return br
}

// renderRow renders entities as Type#ID and leaves other values as they
// are.
func renderRow(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return v
	}
	id := rv.Elem().FieldByName("ID")
	if !id.IsValid() {
		return v
	}
	return fmt.Sprintf("%s#%v", rv.Elem().Type().Name(), id.Interface())
}
