package goxq

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// DefaultMaxCallDepth is the depth of nested function calls allowed unless
// WithMaxCallDepth sets another.
const DefaultMaxCallDepth = 10000

const defaultInlineThreshold = 16

type compiler struct {
	p          *Program
	logger     *zap.Logger
	maxDepth   int
	inlineSize int
	collation  *Collation
	tz         *time.Location
	metrics    *Metrics
	th         TypeHierarchy
	now        func() time.Time
	errs       *multierror.Error
}

// Compile checks, rewrites and freezes the program. Every static error is
// reported, joined in a *multierror.Error; the program is unusable after a
// failed compilation.
func Compile(p *Program, options ...CompilerOption) (*Code, error) {
	c := &compiler{
		p:          p,
		logger:     zap.NewNop(),
		maxDepth:   DefaultMaxCallDepth,
		inlineSize: defaultInlineThreshold,
		tz:         time.UTC,
		th:         DefaultTypeHierarchy,
		now:        time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	if p.frozen {
		return nil, &Error{Code: "XPST0003", Message: "program is already compiled", Static: true}
	}
	p.th = c.th
	c.bind()
	if err := c.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	c.analyze()
	c.typeCheckAll()
	if err := c.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	c.analyze()
	c.optimizeAll()
	c.analyze()
	c.markTailCalls()
	if err := c.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	p.freeze()
	c.logger.Debug("compiled program",
		zap.Int("expressions", len(p.nodes)), zap.Int("functions", len(p.funcs)))
	return c.code(), nil
}

func (c *compiler) error(err error) {
	c.errs = multierror.Append(c.errs, err)
}

// bind resolves every call to a user function or a builtin function.
func (c *compiler) bind() {
	p := c.p
	for _, fn := range p.funcs {
		if fn.Body == noExpr {
			c.error(newStaticError("XPST0017", fn.loc, "function %s has no body", fn))
		}
	}
	for _, f := range p.funcrefs {
		info := p.node(f).v.(*funcRefInfo)
		if info.fn = p.Function(info.name, info.arity); info.fn == nil {
			c.error(newStaticError("XPST0017", p.Location(f), "unknown function %s#%d", info.name, info.arity))
			continue
		}
		p.node(info.call).v.(*callInfo).fn = info.fn
	}
	for _, r := range p.roots() {
		if p.isFuncRefCall(r) {
			continue
		}
		p.walk(r, func(id ExprID) bool {
			n := p.node(id)
			if n.op != opcall {
				return true
			}
			info := n.v.(*callInfo)
			if info.fn != nil {
				return true
			}
			if info.fn = p.Function(info.name, len(n.args)); info.fn != nil {
				return true
			}
			if b := lookupBuiltin(info.name); b != nil && b.accepts(len(n.args)) {
				n.op, n.v = opbuiltin, b
				return true
			}
			c.error(newStaticError("XPST0017", n.loc, "unknown function %s#%d", info.name, len(n.args)))
			return true
		})
	}
	c.findRecursion()
}

// callees returns the functions called from the tree of id.
func (p *Program) callees(id ExprID) []*UserFunction {
	var fns []*UserFunction
	p.walk(id, func(id ExprID) bool {
		switch n := p.node(id); n.op {
		case opcall:
			if fn := n.v.(*callInfo).fn; fn != nil {
				fns = append(fns, fn)
			}
		case opfuncref:
			if fn := n.v.(*funcRefInfo).fn; fn != nil {
				fns = append(fns, fn)
			}
		}
		return true
	})
	return fns
}

// findRecursion flags the functions that can reach themselves through
// calls or function references.
func (c *compiler) findRecursion() {
	p := c.p
	graph := make(map[*UserFunction][]*UserFunction, len(p.funcs))
	for _, fn := range p.funcs {
		if fn.Body != noExpr {
			graph[fn] = p.callees(fn.Body)
		}
	}
	for _, fn := range p.funcs {
		seen := make(map[*UserFunction]bool)
		stack := append([]*UserFunction(nil), graph[fn]...)
		for len(stack) > 0 {
			g := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if g == fn {
				fn.recursive = true
				break
			}
			if !seen[g] {
				seen[g] = true
				stack = append(stack, graph[g]...)
			}
		}
	}
}

// calleeOrder returns the functions with callees before their callers,
// where the call graph allows.
func (c *compiler) calleeOrder() []*UserFunction {
	p := c.p
	var order []*UserFunction
	seen := make(map[*UserFunction]bool)
	var visit func(fn *UserFunction)
	visit = func(fn *UserFunction) {
		if seen[fn] {
			return
		}
		seen[fn] = true
		if fn.Body != noExpr {
			for _, g := range p.callees(fn.Body) {
				visit(g)
			}
		}
		order = append(order, fn)
	}
	for _, fn := range p.funcs {
		visit(fn)
	}
	return order
}

// analyze recounts the references to every variable of the program. The
// modes of the calls depend on the counts, so every cached property is
// dropped.
func (c *compiler) analyze() {
	p := c.p
	for _, v := range p.externals {
		v.RefCount, v.Indexed = 0, false
	}
	for _, r := range p.roots() {
		c.analyzeRoot(r)
	}
	p.dropProps()
}

// analyzeRoot recounts the references to the variables bound in the tree
// of root. A reference evaluated once per item of some sequence counts as
// ten. External variables are shared by the roots and reset by analyze.
func (c *compiler) analyzeRoot(root ExprID) {
	p := c.p
	external := make(map[*Variable]bool, len(p.externals))
	for _, v := range p.externals {
		external[v] = true
	}
	for _, fn := range p.funcs {
		if fn.Body == root {
			for _, v := range fn.Params {
				v.RefCount, v.Indexed = 0, false
			}
		}
	}
	p.walk(root, func(id ExprID) bool {
		switch n := p.node(id); n.op {
		case opvar:
			if v := n.v.(*Variable); !external[v] {
				v.RefCount, v.Indexed = 0, false
			}
		case opflwor:
			for _, cl := range n.v.(*flworInfo).clauses {
				for _, v := range cl.vars {
					if v != nil {
						v.RefCount, v.Indexed = 0, false
					}
				}
			}
		}
		return true
	})
	c.countReferences(root, false)
}

func (c *compiler) countReferences(id ExprID, loop bool) {
	p := c.p
	n := p.node(id)
	switch n.op {
	case opvar:
		v := n.v.(*Variable)
		if loop {
			v.RefCount += 10
		} else {
			v.RefCount++
		}
		return
	case oppath:
		c.countReferences(n.args[0], loop)
		c.countReferences(n.args[1], true)
		return
	case opfilter:
		c.countReferences(n.args[0], loop)
		c.countReferences(n.args[1], true)
		if base := p.node(n.args[0]); base.op == opvar {
			if _, ok := p.equalityOnContext(n.args[1]); ok && p.node(n.args[1]).op == opgeneral {
				base.v.(*Variable).Indexed = true
			}
		}
		return
	case opflwor:
		info := n.v.(*flworInfo)
		inner := loop
		for _, cl := range info.clauses {
			for _, a := range n.args[cl.first : cl.first+cl.n] {
				c.countReferences(a, inner)
			}
			if cl.kind == clauseFor {
				inner = true
			}
		}
		c.countReferences(n.args[len(n.args)-1], inner)
		return
	}
	for _, a := range n.args {
		c.countReferences(a, loop)
	}
}

func (c *compiler) code() *Code {
	comparer := NewComparer(c.collation)
	return &Code{
		p:        c.p,
		logger:   c.logger,
		metrics:  c.metrics,
		comparer: comparer,
		tz:       c.tz,
		now:      c.now,
		th:       c.th,
		maxDepth: c.maxDepth,
		stats:    &statsCounter{},
	}
}
