package goxq

import (
	"strconv"

	"go.uber.org/zap"
)

// Variable is a local variable or a function parameter, stored in a slot
// of the frame of its function.
type Variable struct {
	Name string
	Type SequenceType
	Slot int
	// RefCount counts the references to the variable; a reference inside
	// a loop counts as ten.
	RefCount int
	// Indexed is set when the variable is filtered by an equality
	// predicate on the context item.
	Indexed bool
}

// Scope allocates frame slots for variables.
type Scope struct {
	size int
}

// Declare allocates a new variable.
func (s *Scope) Declare(name string, t SequenceType) *Variable {
	v := &Variable{Name: name, Type: t, Slot: s.size}
	s.size++
	return v
}

// Size returns the number of slots allocated.
func (s *Scope) Size() int {
	return s.size
}

// UserFunction is a declared function.
type UserFunction struct {
	Name       QName
	Params     []*Variable
	Body       ExprID
	ResultType SequenceType

	scope         Scope
	loc           Location
	recursive     bool
	tailRecursive bool
}

// Scope returns the scope for the local variables of the function.
func (f *UserFunction) Scope() *Scope {
	return &f.scope
}

// FrameSize returns the number of slots of a frame for the function.
func (f *UserFunction) FrameSize() int {
	return f.scope.size
}

// IsTailRecursive reports whether the function calls itself in a tail
// position.
func (f *UserFunction) IsTailRecursive() bool {
	return f.tailRecursive
}

func (f *UserFunction) String() string {
	return f.Name.String() + "#" + strconv.Itoa(len(f.Params))
}

// TailCallMarker records whether a call is in a tail position.
type TailCallMarker uint8

// Tail call markers.
const (
	NotTailCall TailCallMarker = iota
	SelfTailCall
	ForeignTailCall
)

func (m TailCallMarker) String() string {
	switch m {
	case NotTailCall:
		return "not-tail"
	case SelfTailCall:
		return "self-tail"
	case ForeignTailCall:
		return "foreign-tail"
	default:
		panic(m)
	}
}

type callInfo struct {
	name QName
	fn   *UserFunction
	tail TailCallMarker
}

type funcRefInfo struct {
	name  QName
	arity int
	fn    *UserFunction
	call  ExprID
}

// tailCall is a call handed back to the trampoline of the caller.
type tailCall struct {
	fn   *UserFunction
	args []Sequence
}

// completion is the outcome of evaluating a function body: either a
// sequence, or a pending tail call.
type completion struct {
	seq  Sequence
	tail *tailCall
}

// TailCall returns the marker of a user function call.
func (p *Program) TailCall(id ExprID) TailCallMarker {
	if c, ok := p.node(id).v.(*callInfo); ok {
		return c.tail
	}
	return NotTailCall
}

func (p *Program) evaluateArguments(c *Context, id ExprID) ([]Sequence, error) {
	n := p.node(id)
	fn := n.v.(*callInfo).fn
	modes := p.Modes(id)
	args := make([]Sequence, len(n.args))
	for i, a := range n.args {
		s, err := p.evaluateWithMode(c, a, modes[i])
		if err != nil {
			return nil, err
		}
		if cl, ok := s.(*Closure); ok && fn.Params[i].RefCount > 1 {
			if s, err = cl.Reduce(); err != nil {
				return nil, err
			}
		}
		args[i] = s
	}
	return args, nil
}

func bindArguments(c *Context, fn *UserFunction, args []Sequence) {
	for i, v := range fn.Params {
		c.frame.set(v.Slot, args[i])
	}
}

// enter records a call at the depth of c and fails beyond the limit.
func (p *Program) enter(c *Context) error {
	ctl := c.ctl
	ctl.stats.calls.Add(1)
	ctl.metrics.observeCall(c.depth)
	if c.depth > ctl.maxDepth {
		ctl.logger.Debug("call depth exceeded",
			zap.Stringer("function", c.fn), zap.Int("depth", c.depth), zap.Int("limit", ctl.maxDepth))
		err := stackOverflow(c.depth, ctl.maxDepth)
		err.Snapshot = c.snapshotOf()
		return err
	}
	ctl.stats.observeDepth(c.depth)
	return nil
}

// reenter prepares c for the pending tail call in place of the current
// call.
func (p *Program) reenter(c *Context, t *tailCall) (*Context, error) {
	if err := c.canceled(); err != nil {
		return nil, err
	}
	c.ctl.stats.tailCalls.Add(1)
	c.ctl.metrics.observeTailCall()
	d := *c
	d.frame, d.fn = newFrame(t.fn.FrameSize()), t.fn
	bindArguments(&d, t.fn, t.args)
	return &d, nil
}

// callFunction calls fn in a new frame and runs pending tail calls in the
// same frame depth.
func (p *Program) callFunction(c *Context, fn *UserFunction, args []Sequence) (Sequence, error) {
	c = c.newCleanContext(fn)
	if err := p.enter(c); err != nil {
		return nil, err
	}
	bindArguments(c, fn, args)
	for {
		r, err := p.evaluateTail(c, c.fn.Body)
		if err != nil {
			return nil, err
		}
		if r.tail == nil {
			return r.seq, nil
		}
		if c, err = p.reenter(c, r.tail); err != nil {
			return nil, err
		}
	}
}

// processFunction is callFunction in push mode; the new context writes to
// the receiver of c.
func (p *Program) processFunction(c *Context, fn *UserFunction, args []Sequence) error {
	c = c.newCleanContext(fn)
	if err := p.enter(c); err != nil {
		return err
	}
	bindArguments(c, fn, args)
	for {
		t, err := p.processTail(c, c.fn.Body)
		if err != nil || t == nil {
			return err
		}
		if c, err = p.reenter(c, t); err != nil {
			return err
		}
	}
}

// eventsFunction is callFunction in pull-event mode.
func (p *Program) eventsFunction(c *Context, fn *UserFunction, args []Sequence) (EventIter, error) {
	c = c.newCleanContext(fn)
	if err := p.enter(c); err != nil {
		return nil, err
	}
	bindArguments(c, fn, args)
	for {
		evs, t, err := p.eventsTail(c, c.fn.Body)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return evs, nil
		}
		if c, err = p.reenter(c, t); err != nil {
			return nil, err
		}
	}
}

// pendingTailCall evaluates the arguments of a marked call and returns the
// call for the trampoline instead of running it.
func (p *Program) pendingTailCall(c *Context, id ExprID) (*tailCall, bool, error) {
	info, ok := p.node(id).v.(*callInfo)
	if !ok || p.node(id).op != opcall || info.tail == NotTailCall {
		return nil, false, nil
	}
	args, err := p.evaluateArguments(c, id)
	if err != nil {
		return nil, true, locate(err, p.Location(id))
	}
	return &tailCall{info.fn, args}, true, nil
}

// tailBranch returns the sub-expression in tail position that id passes
// control to, after binding the let clauses of a FLWOR. The boolean is
// false when id has no tail position, and id itself must be evaluated.
func (p *Program) tailBranch(c *Context, id ExprID) (ExprID, bool, error) {
	n := p.node(id)
	switch n.op {
	case opif:
		b, err := p.effectiveBooleanValue(c, n.args[0])
		if err != nil {
			return noExpr, true, err
		}
		if b {
			return n.args[1], true, nil
		}
		return n.args[2], true, nil
	case opflwor:
		if !p.isLetOnly(id) {
			break
		}
		ok, err := p.bindLetClauses(c, id)
		if err != nil || !ok {
			return noExpr, true, err
		}
		return n.args[len(n.args)-1], true, nil
	}
	return noExpr, false, nil
}

func (p *Program) evaluateTail(c *Context, id ExprID) (completion, error) {
	for {
		if t, ok, err := p.pendingTailCall(c, id); ok || err != nil {
			return completion{tail: t}, err
		}
		next, ok, err := p.tailBranch(c, id)
		if err != nil {
			return completion{}, err
		}
		if !ok {
			break
		}
		if next == noExpr {
			return completion{seq: Empty}, nil
		}
		id = next
	}
	iter, err := p.iterate(c, id)
	if err != nil {
		return completion{}, err
	}
	xs, err := Materialize(iter)
	if err != nil {
		return completion{}, err
	}
	return completion{seq: xs}, nil
}

func (p *Program) processTail(c *Context, id ExprID) (*tailCall, error) {
	for {
		if t, ok, err := p.pendingTailCall(c, id); ok || err != nil {
			return t, err
		}
		next, ok, err := p.tailBranch(c, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if next == noExpr {
			return nil, nil
		}
		id = next
	}
	return nil, p.process(c, id)
}

func (p *Program) eventsTail(c *Context, id ExprID) (EventIter, *tailCall, error) {
	for {
		if t, ok, err := p.pendingTailCall(c, id); ok || err != nil {
			return nil, t, err
		}
		next, ok, err := p.tailBranch(c, id)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		if next == noExpr {
			return newEvents(), nil, nil
		}
		id = next
	}
	evs, err := p.iterateEvents(c, id)
	return evs, nil, err
}

func (p *Program) iterateCall(c *Context, id ExprID) (Iter, error) {
	fn := p.node(id).v.(*callInfo).fn
	args, err := p.evaluateArguments(c, id)
	if err != nil {
		return nil, err
	}
	s, err := p.callFunction(c, fn, args)
	if err != nil {
		return nil, locate(err, p.Location(id))
	}
	return s.Iterate(), nil
}

func (p *Program) processCall(c *Context, id ExprID) error {
	fn := p.node(id).v.(*callInfo).fn
	args, err := p.evaluateArguments(c, id)
	if err != nil {
		return err
	}
	return locate(p.processFunction(c, fn, args), p.Location(id))
}

func (p *Program) eventsCall(c *Context, id ExprID) (EventIter, error) {
	fn := p.node(id).v.(*callInfo).fn
	args, err := p.evaluateArguments(c, id)
	if err != nil {
		return nil, err
	}
	evs, err := p.eventsFunction(c, fn, args)
	if err != nil {
		return nil, locate(err, p.Location(id))
	}
	return evs, nil
}

// dynamicCall calls the function of f with argument values supplied by the
// caller. The values are placed in a new frame, the parameter expressions
// of the call behind f are evaluated against it, and the function is
// called without tail call redirection.
func (p *Program) dynamicCall(c *Context, f *FunctionItem, args []Sequence) (Sequence, error) {
	fn := f.fn
	if len(args) != len(fn.Params) {
		return nil, newTypeError("XPTY0004", "function %s is called with %d arguments", fn, len(args))
	}
	fr := newFrame(len(args))
	copy(fr.slots, args)
	d := c.withFrame(fr).withItem(nil, 0, 0)
	actual, err := p.evaluateArguments(d, f.call)
	if err != nil {
		return nil, err
	}
	return p.callFunction(c, fn, actual)
}

func (p *Program) iterateDynamicCall(c *Context, id ExprID) (Iter, error) {
	n := p.node(id)
	v, err := p.evaluateSingle(c, n.args[0], "function of a dynamic call")
	if err != nil {
		return nil, err
	}
	f, ok := v.(*FunctionItem)
	if !ok {
		return nil, locate(newTypeError("XPTY0004", "not a function: %s", typeErrorPreview(v)), p.Location(id))
	}
	args := make([]Sequence, len(n.args)-1)
	for i, a := range n.args[1:] {
		if args[i], err = p.evaluateWithMode(c, a, ModeMemo); err != nil {
			return nil, err
		}
	}
	s, err := p.dynamicCall(c, f, args)
	if err != nil {
		return nil, locate(err, p.Location(id))
	}
	return s.Iterate(), nil
}
