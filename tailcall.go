package goxq

import "go.uber.org/zap"

func (c *compiler) markTailCalls() {
	for _, fn := range c.p.funcs {
		if fn.Body == noExpr {
			continue
		}
		fn.tailRecursive = c.p.MarkTailCalls(fn.Body, fn.Name, len(fn.Params))
		if fn.tailRecursive {
			c.logger.Debug("tail recursive function", zap.Stringer("function", fn))
		}
	}
}

// MarkTailCalls marks the user function calls in a tail position of the
// body of the function name#arity: the body itself, both branches of a
// conditional, and the return expression of a FLWOR made only of let and
// where clauses. A call that is already marked keeps its marker. It
// reports whether the function calls itself in a tail position.
func (p *Program) MarkTailCalls(body ExprID, name QName, arity int) bool {
	n := p.node(body)
	switch n.op {
	case opcall:
		info := n.v.(*callInfo)
		if info.tail == NotTailCall {
			info.tail = ForeignTailCall
			if keyOf(info.name, len(n.args)) == keyOf(name, arity) {
				info.tail = SelfTailCall
			}
		}
		return info.tail == SelfTailCall
	case opif:
		then := p.MarkTailCalls(n.args[1], name, arity)
		els := p.MarkTailCalls(n.args[2], name, arity)
		return then || els
	case opflwor:
		if p.isLetOnly(body) {
			return p.MarkTailCalls(n.args[len(n.args)-1], name, arity)
		}
	}
	return false
}
