package query

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/combinator"
	"github.com/roach88/qexpand/internal/eval"
	"github.com/roach88/qexpand/internal/specification"
)

// MaxRounds bounds how many times the pass list is re-run while some pass
// keeps changing the tree.
const MaxRounds = 8

// UnstableError reports passes that kept rewriting each other's output.
type UnstableError struct {
	Rounds int
	Passes []string
}

func (e *UnstableError) Error() string {
	return fmt.Sprintf("passes %v did not settle after %d rounds", e.Passes, e.Rounds)
}

// Visitable decorates a source so that every tree handed to the inner
// provider has first been rewritten by the pass list. Queries created
// through it are decorated with the same passes.
type Visitable struct {
	inner    Source
	provider *visitableProvider
}

var (
	_ Source     = (*Visitable)(nil)
	_ Provider   = (*visitableProvider)(nil)
	_ Enumerator = (*visitableProvider)(nil)
)

// Expression returns the inner source's tree. For sources produced by
// composition this is the rewritten tree.
func (v *Visitable) Expression() ast.Node {
	return v.inner.Expression()
}

// Provider returns the rewriting provider.
func (v *Visitable) Provider() Provider {
	return v.provider
}

// Inner returns the decorated source.
func (v *Visitable) Inner() Source {
	return v.inner
}

// Passes returns the active passes in the order they run.
func (v *Visitable) Passes() []Pass {
	return append([]Pass(nil), v.provider.passes...)
}

// Expand runs expr through the pass list without executing it.
func (v *Visitable) Expand(expr ast.Node) (ast.Node, error) {
	return v.provider.Rewrite(expr)
}

// Enumerate iterates the query through the inner provider.
func (v *Visitable) Enumerate(ctx context.Context) (Cursor, error) {
	return v.provider.Enumerate(ctx, v.inner.Expression())
}

func (v *Visitable) String() string {
	return render(v.inner)
}

type visitableProvider struct {
	inner   Provider
	passes  []Pass
	logger  *zap.Logger
	metrics *Metrics
}

// Rewrite runs expr through the pass list until no pass changes it.
func (p *visitableProvider) Rewrite(expr ast.Node) (ast.Node, error) {
	cur := expr
	for round := 0; round < MaxRounds; round++ {
		changed := false
		for _, pass := range p.passes {
			start := time.Now()
			out, err := pass.Rewrite(cur)
			p.metrics.observe(pass.Name(), time.Since(start), err == nil && out != cur, err)
			if err != nil {
				p.logger.Debug("pass failed", zap.String("pass", pass.Name()), zap.Error(err))
				return nil, fmt.Errorf("%s pass: %w", pass.Name(), err)
			}
			if out != cur {
				p.logger.Debug("pass rewrote tree",
					zap.String("pass", pass.Name()),
					zap.Int("round", round),
					zap.String("before", ast.String(cur)),
					zap.String("after", ast.String(out)),
				)
				cur = out
				changed = true
			}
		}
		if !changed {
			return cur, nil
		}
	}
	return nil, &UnstableError{Rounds: MaxRounds, Passes: p.names()}
}

func (p *visitableProvider) names() []string {
	out := make([]string, len(p.passes))
	for i, pass := range p.passes {
		out[i] = pass.Name()
	}
	return out
}

func (p *visitableProvider) CreateQuery(expr ast.Node) (Source, error) {
	rewritten, err := p.Rewrite(expr)
	if err != nil {
		return nil, err
	}
	src, err := p.inner.CreateQuery(rewritten)
	if err != nil {
		return nil, err
	}
	return &Visitable{inner: src, provider: p}, nil
}

func (p *visitableProvider) Execute(ctx context.Context, expr ast.Node) (any, error) {
	rewritten, err := p.Rewrite(expr)
	if err != nil {
		return nil, err
	}
	return p.inner.Execute(ctx, rewritten)
}

func (p *visitableProvider) Enumerate(ctx context.Context, expr ast.Node) (Cursor, error) {
	rewritten, err := p.Rewrite(expr)
	if err != nil {
		return nil, err
	}
	return enumerate(ctx, p.inner, rewritten)
}

// AsVisitable decorates src with passes. Decorating a Visitable adds only
// the pass types it does not already run; when every pass type is already
// present src is returned unchanged.
func AsVisitable(src Source, passes ...Pass) *Visitable {
	return wrap(src, passes, zap.NewNop(), nil)
}

func wrap(src Source, passes []Pass, logger *zap.Logger, metrics *Metrics) *Visitable {
	v, ok := src.(*Visitable)
	if !ok {
		return &Visitable{
			inner: src,
			provider: &visitableProvider{
				inner:   src.Provider(),
				passes:  dedupe(nil, passes),
				logger:  logger,
				metrics: metrics,
			},
		}
	}
	merged := dedupe(v.provider.passes, passes)
	if len(merged) == len(v.provider.passes) {
		return v
	}
	np := *v.provider
	np.passes = merged
	if metrics != nil {
		np.metrics = metrics
	}
	return &Visitable{inner: v.inner, provider: &np}
}

func dedupe(existing, add []Pass) []Pass {
	seen := make(map[reflect.Type]bool, len(existing)+len(add))
	out := make([]Pass, 0, len(existing)+len(add))
	for _, list := range [][]Pass{existing, add} {
		for _, pass := range list {
			t := reflect.TypeOf(pass)
			if seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, pass)
		}
	}
	return out
}

type config struct {
	registry *combinator.Registry
	eval     eval.Evaluator
	ids      combinator.IDGenerator
	logger   *zap.Logger
	metrics  *Metrics
	extra    []Pass
}

// Option configures AsExpandable.
type Option func(*config)

// WithRegistry sets the combinator registry. The default is
// combinator.Default().
func WithRegistry(r *combinator.Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithEvaluator sets the evaluator both expanders use.
func WithEvaluator(ev eval.Evaluator) Option {
	return func(c *config) { c.eval = ev }
}

// WithIDs sets the combinator placeholder ID generator.
func WithIDs(ids combinator.IDGenerator) Option {
	return func(c *config) { c.ids = ids }
}

// WithLogger sets the logger for the decorator and its passes.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics records pass activity.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithPasses appends passes that run after the two expanders.
func WithPasses(passes ...Pass) Option {
	return func(c *config) { c.extra = append(c.extra, passes...) }
}

// AsExpandable decorates src with the combinator expander followed by the
// specification expander. Combinators run first because their bodies may
// embed specifications.
func AsExpandable(src Source, opts ...Option) *Visitable {
	c := config{eval: eval.Partial{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	copts := []combinator.Option{
		combinator.WithEvaluator(c.eval),
		combinator.WithLogger(c.logger.Named("combinator")),
	}
	if c.ids != nil {
		copts = append(copts, combinator.WithIDs(c.ids))
	}
	passes := []Pass{
		combinator.NewExpander(c.registry, copts...),
		specification.NewExpander(
			specification.WithEvaluator(c.eval),
			specification.WithLogger(c.logger.Named("specification")),
		),
	}
	return wrap(src, append(passes, c.extra...), c.logger, c.metrics)
}
