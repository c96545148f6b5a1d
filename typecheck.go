package goxq

import (
	"fmt"
	"strings"
)

// typeCheckAll checks every function body, the calls behind function
// references, and the main expression. Function bodies have no context
// item; the main expression has one of any type.
func (c *compiler) typeCheckAll() {
	p := c.p
	for _, fn := range p.funcs {
		if fn.Body == noExpr {
			continue
		}
		body := c.typeCheck(fn.Body, TypeNone)
		body = c.staticTypeCheck(body, fn.ResultType, "result of function "+fn.String())
		p.replace(fn.Body, body)
	}
	for _, f := range p.funcrefs {
		call := p.node(f).v.(*funcRefInfo).call
		p.replace(call, c.typeCheck(call, TypeNone))
	}
	if p.main != noExpr {
		p.replace(p.main, c.typeCheck(p.main, TypeItem))
	}
}

// typeCheck checks id, whose context item has type ctx (TypeNone when
// there is no context item), and returns the expression replacing it.
func (c *compiler) typeCheck(id ExprID, ctx ItemType) ExprID {
	p := c.p
	switch p.node(id).op {
	case oppath:
		c.typeCheckChild(id, 0, ctx)
		c.typeCheckChild(id, 1, focusType(p.itemType(p.arg(id, 0))))
	case opfilter:
		c.typeCheckChild(id, 0, ctx)
		c.typeCheckChild(id, 1, focusType(p.itemType(p.arg(id, 0))))
	default:
		for i := range p.node(id).args {
			c.typeCheckChild(id, i, ctx)
		}
	}
	n := p.node(id)
	switch n.op {
	case opcontext:
		if ctx == TypeNone {
			c.error(newStaticError("XPDY0002", n.loc, "the context item is absent"))
		} else if n.v.(ItemType) != ctx {
			n.v = ctx
			p.invalidate(id)
		}
	case opstep:
		s := n.v.(stepInfo)
		switch {
		case ctx == TypeNone:
			c.error(newStaticError("XPDY0002", n.loc, "the context item for axis step %s::%s is absent", s.axis, s.test))
		case ctx.IsAtomic():
			c.error(newStaticTypeError("XPTY0020", n.loc, "the context item for axis step %s::%s is not a node: %s", s.axis, s.test, ctx))
		}
	case opcall:
		fn := n.v.(*callInfo).fn
		for i, v := range fn.Params {
			c.coerceChild(id, i, v.Type, fmt.Sprintf("argument %d of %s()", i+1, fn.Name))
		}
	case opbuiltin:
		b := n.v.(*builtinFunc)
		for i := range n.args {
			c.coerceChild(id, i, b.param(i), fmt.Sprintf("argument %d of %s()", i+1, b.name))
		}
		if b.name == "QName" {
			return c.preEvaluateQName(id)
		}
	case opcomment:
		if s, ok := c.literalString(n.args[0]); ok {
			if err := checkComment(s); err != nil {
				e := err.(*Error)
				e.Static = true
				c.error(locate(e, n.loc))
			}
		}
	case opflwor:
		info := n.v.(*flworInfo)
		for _, cl := range info.clauses {
			v := cl.vars
			switch {
			case cl.kind == clauseLet && v[0].Type != AnySequence:
				c.coerceChild(id, cl.first, v[0].Type, "value of $"+v[0].Name)
			case cl.kind == clauseFor && v[0].Type.Item != TypeItem:
				c.coerceChild(id, cl.first, SequenceType{v[0].Type.Item, CardZeroOrMore}, "range of $"+v[0].Name)
			}
		}
	}
	return id
}

// focusType is the context item type inside a path step or a predicate.
func focusType(t ItemType) ItemType {
	if t == TypeNone {
		return TypeItem
	}
	return t
}

func (c *compiler) typeCheckChild(parent ExprID, i int, ctx ItemType) {
	old := c.p.arg(parent, i)
	if r := c.typeCheck(old, ctx); r != old {
		c.p.ReplaceChild(parent, i, r)
	}
}

func (c *compiler) coerceChild(parent ExprID, i int, req SequenceType, role string) {
	old := c.p.arg(parent, i)
	if r := c.staticTypeCheck(old, req, role); r != old {
		c.p.ReplaceChild(parent, i, r)
	}
}

func isCheck(op opcode) bool {
	switch op {
	case opatomize, opconvert, opitemcheck, opcardcheck:
		return true
	}
	return false
}

// staticTypeCheck returns id wrapped in the checks and conversions needed
// for its value to match req. The type error is raised now when no value
// of the static type of id can match.
func (c *compiler) staticTypeCheck(id ExprID, req SequenceType, role string) ExprID {
	p := c.p
	if req == AnySequence || isCheck(p.node(id).op) {
		return id
	}
	loc := p.Location(id)
	r := id
	if req.Card == CardEmpty {
		if card := p.cardinality(r); card != CardEmpty {
			if !card.AllowsZero() {
				c.error(newStaticTypeError("XPTY0004", loc, "the %s must be an empty sequence", role))
				return r
			}
			r = c.wrap(opcardcheck, &checkInfo{typ: TypeNone, card: CardEmpty, role: role}, r)
		}
		return r
	}
	if req.Item.IsAtomic() {
		if t := p.itemType(r); !t.IsAtomic() && t != TypeNone {
			r = c.wrap(opatomize, nil, r)
		}
		if needsConversion(c.th, p.itemType(r), req.Item) {
			r = c.wrap(opconvert, req.Item, r)
		}
	}
	t := p.itemType(r)
	switch c.th.Relationship(t, req.Item) {
	case SameType, Subsumed:
	case Disjoint:
		if !p.cardinality(r).AllowsZero() {
			c.error(newStaticTypeError("XPTY0004", loc,
				"required item type of the %s is %s; supplied value has item type %s", role, req.Item, t))
			return r
		}
		fallthrough
	default:
		r = c.wrap(opitemcheck, &checkInfo{typ: req.Item, card: req.Card, role: role}, r)
	}
	if !req.Card.Subsumes(p.cardinality(r)) {
		r = c.wrap(opcardcheck, &checkInfo{typ: req.Item, card: req.Card, role: role}, r)
	}
	return r
}

// needsConversion reports whether values of type from need the function
// conversion rules to become values of type to: untyped values are cast,
// and numeric values are promoted to xs:double.
func needsConversion(th TypeHierarchy, from, to ItemType) bool {
	if to == TypeUntypedAtomic || to == TypeAnyAtomic || th.IsSubtype(from, to) {
		return false
	}
	switch {
	case from == TypeUntypedAtomic || from == TypeAnyAtomic:
		return true
	case to == TypeDouble:
		return IsNumericType(from)
	}
	return false
}

func (c *compiler) wrap(op opcode, v any, child ExprID) ExprID {
	loc := c.p.Location(child)
	id := c.p.newNode(op, v, child)
	c.p.nodes[id].loc = loc
	return id
}

// literalString returns the string value of a literal, seen through the
// inserted checks.
func (c *compiler) literalString(id ExprID) (string, bool) {
	id = c.p.unwrapChecks(id)
	if !c.p.isLiteral(id) {
		return "", false
	}
	xs := c.p.literal(id)
	ss := make([]string, 0, len(xs))
	for _, x := range xs {
		a, ok := x.(Atomic)
		if !ok {
			return "", false
		}
		ss = append(ss, a.StringValue())
	}
	return strings.Join(ss, " "), true
}

// preEvaluateQName replaces QName() over literal arguments by its value.
func (c *compiler) preEvaluateQName(id ExprID) ExprID {
	p := c.p
	n := p.node(id)
	uri, ok := c.literalString(n.args[0])
	if !ok {
		return id
	}
	lexical, ok := c.literalString(n.args[1])
	if !ok {
		return id
	}
	loc := n.loc
	q, err := makeQName(uri, lexical)
	if err != nil {
		e := err.(*Error)
		e.Static = true
		c.error(locate(e, loc))
		return id
	}
	r := p.Literal(q)
	p.nodes[r].loc = loc
	return r
}
