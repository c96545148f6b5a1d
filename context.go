package goxq

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Context is the dynamic context of an evaluation. Contexts are derived
// rather than shared: every method returning a *Context returns a copy, and
// a frame belongs to one function call.
type Context struct {
	ctx   context.Context
	ctl   *controller
	frame *frame
	fn    *UserFunction
	item  Item
	pos   int
	size  int
	out   Receiver
	depth int
}

// controller holds the state shared by all the contexts of an evaluation.
type controller struct {
	logger   *zap.Logger
	metrics  *Metrics
	comparer *GenericComparer
	tz       *time.Location
	now      DateTime
	th       TypeHierarchy
	maxDepth int
	stats    *statsCounter
}

type frame struct {
	slots []Sequence
}

func newFrame(size int) *frame {
	return &frame{slots: make([]Sequence, size)}
}

func (f *frame) get(i int) Sequence {
	if f == nil || i >= len(f.slots) || f.slots[i] == nil {
		return Empty
	}
	return f.slots[i]
}

func (f *frame) set(i int, s Sequence) {
	f.slots[i] = s
}

func (f *frame) clone() *frame {
	if f == nil {
		return nil
	}
	return &frame{slots: append([]Sequence(nil), f.slots...)}
}

// snapshot returns a context for deferred evaluation. Later updates to the
// variables of c do not affect the snapshot.
func (c *Context) snapshot() *Context {
	d := *c
	d.frame, d.out = c.frame.clone(), nil
	return &d
}

func (c *Context) withItem(v Item, pos, size int) *Context {
	d := *c
	d.item, d.pos, d.size = v, pos, size
	return &d
}

func (c *Context) withReceiver(out Receiver) *Context {
	d := *c
	d.out = out
	return &d
}

func (c *Context) withFrame(f *frame) *Context {
	d := *c
	d.frame = f
	return &d
}

// newCleanContext returns the context of a call to fn: a fresh frame, no
// context item, one level deeper.
func (c *Context) newCleanContext(fn *UserFunction) *Context {
	return &Context{
		ctx:   c.ctx,
		ctl:   c.ctl,
		frame: newFrame(fn.FrameSize()),
		fn:    fn,
		out:   c.out,
		depth: c.depth + 1,
	}
}

func (c *Context) canceled() error {
	if c.ctx == nil {
		return nil
	}
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return nil
	}
}

func (c *Context) contextItem() (Item, error) {
	if c.item == nil {
		return nil, newDynamicError("XPDY0002", "the context item is absent")
	}
	return c.item, nil
}

func (c *Context) snapshotOf() *Snapshot {
	s := &Snapshot{ContextItem: c.item, Depth: c.depth}
	if c.fn != nil {
		s.Function = c.fn.Name
	}
	return s
}

// Stats are counters of the evaluations of a compiled program.
type Stats struct {
	Calls     int64
	TailCalls int64
	MaxDepth  int64
	Groups    int64
}

type statsCounter struct {
	calls     atomic.Int64
	tailCalls atomic.Int64
	maxDepth  atomic.Int64
	groups    atomic.Int64
}

func (s *statsCounter) observeDepth(depth int) {
	d := int64(depth)
	for {
		cur := s.maxDepth.Load()
		if d <= cur || s.maxDepth.CompareAndSwap(cur, d) {
			return
		}
	}
}

func (s *statsCounter) snapshot() Stats {
	return Stats{
		Calls:     s.calls.Load(),
		TailCalls: s.tailCalls.Load(),
		MaxDepth:  s.maxDepth.Load(),
		Groups:    s.groups.Load(),
	}
}
