package goxq

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// optimizeAll optimizes the function bodies, callees first so that the
// reference counts seen by the inliner are those of optimized bodies, then
// the calls behind function references and the main expression.
func (c *compiler) optimizeAll() {
	p := c.p
	for _, fn := range c.calleeOrder() {
		if fn.Body == noExpr {
			continue
		}
		p.replace(fn.Body, c.optimize(fn.Body))
		c.analyzeRoot(fn.Body)
		p.dropProps()
	}
	// the call behind a function reference stays a call; a dynamic call
	// evaluates its arguments
	for _, f := range p.funcrefs {
		call := p.node(f).v.(*funcRefInfo).call
		for i := range p.node(call).args {
			old := p.arg(call, i)
			if r := c.optimize(old); r != old {
				p.ReplaceChild(call, i, r)
			}
		}
	}
	if p.main != noExpr {
		p.replace(p.main, c.optimize(p.main))
	}
}

// optimize rewrites id bottom-up and returns the expression replacing it.
func (c *compiler) optimize(id ExprID) ExprID {
	p := c.p
	for i := range p.node(id).args {
		old := p.arg(id, i)
		if r := c.optimize(old); r != old {
			p.ReplaceChild(id, i, r)
		}
	}
	n := p.node(id)
	switch n.op {
	case oparith, opcompare, opgeneral:
		if c.allLiterals(n.args) {
			return c.fold(id)
		}
	case opand, opor:
		short := Boolean(n.op == opor)
		for _, a := range n.args {
			if v, ok := p.singletonLiteral(a); ok && v == short {
				return c.literal(id, short)
			}
		}
		if c.allLiterals(n.args) {
			return c.fold(id)
		}
	case opif:
		if p.isLiteral(n.args[0]) {
			b, err := EffectiveBooleanValue(p.literal(n.args[0]))
			if err != nil {
				break
			}
			if b {
				return c.detach(n.args[1])
			}
			return c.detach(n.args[2])
		}
	case opsequence:
		return c.optimizeSequence(id)
	case opbuiltin:
		if b := n.v.(*builtinFunc); b.deps == 0 && !b.focus && c.allLiterals(n.args) {
			return c.fold(id)
		}
	case opcall:
		if r, ok := c.inline(id); ok {
			return c.optimize(r)
		}
	case opflwor:
		return c.optimizeFLWOR(id)
	}
	return id
}

func (c *compiler) allLiterals(ids []ExprID) bool {
	for _, a := range ids {
		if !c.p.isLiteral(a) {
			return false
		}
	}
	return true
}

func (c *compiler) literal(id ExprID, items ...Item) ExprID {
	r := c.p.Literal(items...)
	c.p.nodes[r].loc = c.p.Location(id)
	return r
}

// detach returns id freed from its parent, for use in place of the parent.
func (c *compiler) detach(id ExprID) ExprID {
	c.p.nodes[id].parent = noExpr
	return id
}

func (c *compiler) foldContext() *Context {
	return &Context{
		ctx: context.Background(),
		ctl: &controller{
			logger:   c.logger,
			comparer: NewComparer(c.collation),
			tz:       c.tz,
			th:       c.th,
			maxDepth: c.maxDepth,
			stats:    &statsCounter{},
		},
	}
}

// fold evaluates an expression over literals now. A failure becomes an
// error expression, raised if the expression is ever evaluated.
func (c *compiler) fold(id ExprID) ExprID {
	xs, err := c.p.evaluate(c.foldContext(), id)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return id
		}
		c.logger.Debug("folded to error", zap.String("code", e.Code), zap.Stringer("location", c.p.Location(id)))
		r := c.p.newNode(operror, e)
		c.p.nodes[r].loc = c.p.Location(id)
		return r
	}
	return c.literal(id, xs...)
}

func (c *compiler) optimizeSequence(id ExprID) ExprID {
	p := c.p
	var args []ExprID
	var flattened bool
	for _, a := range p.args(id) {
		if p.node(a).op == opsequence {
			args = append(args, p.args(a)...)
			flattened = true
		} else {
			args = append(args, a)
		}
	}
	switch {
	case len(args) == 0:
		return c.literal(id)
	case len(args) == 1:
		return c.detach(args[0])
	case c.allLiterals(args):
		var xs Extent
		for _, a := range args {
			xs = append(xs, p.literal(a)...)
		}
		return c.literal(id, xs...)
	case flattened:
		r := p.Seq(args...)
		p.nodes[r].loc = p.Location(id)
		return r
	}
	return id
}

// optimizeFLWOR drops the where clauses with a literal condition.
func (c *compiler) optimizeFLWOR(id ExprID) ExprID {
	p := c.p
	n := p.node(id)
	info := n.v.(*flworInfo)
	for i := 0; i < len(info.clauses); i++ {
		cl := info.clauses[i]
		if cl.kind != clauseWhere {
			continue
		}
		v, ok := p.singletonLiteral(n.args[cl.first])
		if !ok {
			continue
		}
		if b, ok := v.(Boolean); ok && !bool(b) {
			return c.literal(id)
		}
		if v != Boolean(true) {
			continue
		}
		p.nodes[n.args[cl.first]].parent = noExpr
		n.args = append(n.args[:cl.first:cl.first], n.args[cl.first+1:]...)
		info.clauses = append(info.clauses[:i:i], info.clauses[i+1:]...)
		for j := i; j < len(info.clauses); j++ {
			info.clauses[j].first--
		}
		i--
		p.invalidate(id)
	}
	if len(info.clauses) == 0 {
		return c.detach(n.args[len(n.args)-1])
	}
	return id
}

// inline replaces a call to a small non-recursive function by a copy of
// its body with the parameters replaced by the arguments.
func (c *compiler) inline(id ExprID) (ExprID, bool) {
	p := c.p
	n := p.node(id)
	fn := n.v.(*callInfo).fn
	if c.inlineSize <= 0 || fn.recursive || fn.Body == noExpr || p.size(fn.Body) > c.inlineSize || p.bindsVariables(fn.Body) {
		return noExpr, false
	}
	subst := make(map[*Variable]ExprID, len(fn.Params))
	for i, a := range n.args {
		if p.deps(a)&depFocus != 0 {
			return noExpr, false
		}
		switch p.node(p.unwrapChecks(a)).op {
		case opliteral, opvar:
		default:
			if fn.Params[i].RefCount > 1 {
				return noExpr, false
			}
		}
		subst[fn.Params[i]] = a
	}
	r := p.copyTree(fn.Body, subst)
	c.logger.Debug("inlined function call", zap.Stringer("function", fn), zap.Stringer("location", n.loc))
	return r, true
}

// bindsVariables reports whether the tree of id declares local variables.
func (p *Program) bindsVariables(id ExprID) bool {
	var binds bool
	p.walk(id, func(id ExprID) bool {
		if p.node(id).op == opflwor {
			binds = true
		}
		return !binds
	})
	return binds
}
