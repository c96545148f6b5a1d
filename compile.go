package goxq

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Code is a compiled program. A Code is safe for concurrent evaluations;
// each evaluation has its own contexts and frames.
type Code struct {
	p        *Program
	logger   *zap.Logger
	metrics  *Metrics
	comparer *GenericComparer
	tz       *time.Location
	now      func() time.Time
	th       TypeHierarchy
	maxDepth int
	stats    *statsCounter
}

// Program returns the compiled program.
func (c *Code) Program() *Program {
	return c.p
}

// Stats returns the counters of the evaluations so far.
func (c *Code) Stats() Stats {
	return c.stats.snapshot()
}

// Run evaluates the main expression with item as the context item and the
// values of the external variables, in declaration order.
//
// It is safe to call this method in goroutines, to reuse a compiled Code.
func (c *Code) Run(item Item, values ...Sequence) Iter {
	return c.RunWithContext(context.Background(), item, values...)
}

// RunWithContext is Run with a context.Context, checked between function
// calls and between tuples.
func (c *Code) RunWithContext(ctx context.Context, item Item, values ...Sequence) Iter {
	env, err := c.mainContext(ctx, item, values)
	if err != nil {
		return &errIter{err}
	}
	iter, err := c.p.iterate(env, c.p.main)
	if err != nil {
		return &errIter{err}
	}
	return iter
}

// Process evaluates the main expression in push mode, writing the result
// to out.
func (c *Code) Process(ctx context.Context, item Item, out Receiver, values ...Sequence) error {
	env, err := c.mainContext(ctx, item, values)
	if err != nil {
		return err
	}
	return c.p.process(env.withReceiver(out), c.p.main)
}

// Events evaluates the main expression in pull-event mode.
func (c *Code) Events(ctx context.Context, item Item, values ...Sequence) EventIter {
	env, err := c.mainContext(ctx, item, values)
	if err != nil {
		return &errEvents{err}
	}
	evs, err := c.p.iterateEvents(env, c.p.main)
	if err != nil {
		return &errEvents{err}
	}
	return evs
}

// EvaluateAll evaluates the main expression for each context item
// concurrently, returning the results in the order of items. The first
// failure cancels the other evaluations.
func (c *Code) EvaluateAll(ctx context.Context, items []Item, values ...Sequence) ([]Extent, error) {
	results := make([]Extent, len(items))
	wp := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, item := range items {
		wp.Go(func(ctx context.Context) error {
			xs, err := Materialize(c.RunWithContext(ctx, item, values...))
			if err != nil {
				return err
			}
			results[i] = xs
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CallFunction calls the user function name with argument values, as a
// dynamic call does.
func (c *Code) CallFunction(ctx context.Context, name QName, args ...Sequence) (Extent, error) {
	fn := c.p.Function(name, len(args))
	if fn == nil {
		return nil, &Error{Code: "XPST0017", Message: "unknown function " + name.String()}
	}
	env := c.newContext(ctx)
	for i, v := range fn.Params {
		if err := checkValue(c.th, v, args[i], "argument of "+fn.String()); err != nil {
			return nil, err
		}
	}
	s, err := c.p.callFunction(env, fn, args)
	if err != nil {
		return nil, err
	}
	return Grounded(s)
}

func (c *Code) mainContext(ctx context.Context, item Item, values []Sequence) (*Context, error) {
	p := c.p
	if p.main == noExpr {
		return nil, &Error{Code: "XPST0003", Message: "the program has no main expression"}
	}
	if len(values) != len(p.externals) {
		return nil, &Error{Code: "XPDY0002", Message: "expected values for the external variables"}
	}
	env := c.newContext(ctx)
	for i, v := range p.externals {
		s := values[i]
		if s == nil {
			s = Empty
		}
		if err := checkValue(c.th, v, s, "value of $"+v.Name); err != nil {
			return nil, err
		}
		env.frame.set(v.Slot, s)
	}
	if item != nil {
		env = env.withItem(item, 1, 1)
	}
	return env, nil
}

func (c *Code) newContext(ctx context.Context) *Context {
	c.metrics.observeEvaluation()
	return &Context{
		ctx: ctx,
		ctl: &controller{
			logger:   c.logger,
			metrics:  c.metrics,
			comparer: c.comparer,
			tz:       c.tz,
			now:      NewDateTime(c.now().In(c.tz)),
			th:       c.th,
			maxDepth: c.maxDepth,
			stats:    c.stats,
		},
		frame: newFrame(c.p.scope.size),
	}
}

// checkValue checks a supplied value against the declared type of v.
func checkValue(th TypeHierarchy, v *Variable, s Sequence, role string) error {
	xs, err := Grounded(s)
	if err != nil {
		return err
	}
	if !v.Type.Card.Subsumes(cardinalityOf(len(xs))) {
		return newTypeError("XPTY0004", "the %s does not match %s: %d items", role, v.Type, len(xs))
	}
	for _, x := range xs {
		if !matchesItemType(th, x, v.Type.Item) {
			return newTypeError("XPTY0004", "the %s does not match %s: %s", role, v.Type, typeErrorPreview(x))
		}
	}
	return nil
}
