package goxq

import (
	"slices"
	"strings"
)

// iterate evaluates id in pull mode.
func (p *Program) iterate(c *Context, id ExprID) (Iter, error) {
	iter, err := p.iterateOp(c, id)
	loc := p.nodes[id].loc
	if err != nil {
		return nil, locate(err, loc)
	}
	if !loc.IsZero() {
		return &locatedIter{iter, loc}, nil
	}
	return iter, nil
}

type locatedIter struct {
	base Iter
	loc  Location
}

func (iter *locatedIter) Next() (Item, error) {
	v, err := iter.base.Next()
	if err != nil {
		return nil, locate(err, iter.loc)
	}
	return v, nil
}

func (p *Program) iterateOp(c *Context, id ExprID) (Iter, error) {
	n := p.node(id)
	switch n.op {
	case opliteral:
		return n.v.(Extent).Iterate(), nil
	case opcontext:
		v, err := c.contextItem()
		if err != nil {
			return nil, err
		}
		return &unitIter{v}, nil
	case opvar:
		return c.frame.get(n.v.(*Variable).Slot).Iterate(), nil
	case opsequence:
		fs := make([]func() (Iter, error), len(n.args))
		for i, a := range n.args {
			fs[i] = func() (Iter, error) { return p.iterate(c, a) }
		}
		return concatIters(fs...), nil
	case oprange:
		return p.iterateRange(c, id)
	case oparith:
		v, err := p.evaluateArith(c, id)
		if err != nil || v == nil {
			return emptyIter{}, err
		}
		return &unitIter{v}, nil
	case opcompare:
		v, err := p.evaluateValueComparison(c, id)
		if err != nil || v == nil {
			return emptyIter{}, err
		}
		return &unitIter{v}, nil
	case opgeneral:
		b, err := p.evaluateGeneralComparison(c, id)
		if err != nil {
			return nil, err
		}
		return &unitIter{Boolean(b)}, nil
	case opand, opor:
		b, err := p.evaluateLogic(c, id)
		if err != nil {
			return nil, err
		}
		return &unitIter{Boolean(b)}, nil
	case opif:
		b, err := p.effectiveBooleanValue(c, n.args[0])
		if err != nil {
			return nil, err
		}
		if b {
			return p.iterate(c, n.args[1])
		}
		return p.iterate(c, n.args[2])
	case oppath:
		return p.iteratePath(c, id)
	case opstep:
		return p.iterateStep(c, id)
	case opfilter:
		return p.iterateFilter(c, id)
	case opcall:
		return p.iterateCall(c, id)
	case opbuiltin:
		s, err := n.v.(*builtinFunc).call(p, c, n.args)
		if err != nil {
			return nil, err
		}
		return s.Iterate(), nil
	case opfuncref:
		info := n.v.(*funcRefInfo)
		return &unitIter{&FunctionItem{info.fn, info.call}}, nil
	case opdyncall:
		return p.iterateDynamicCall(c, id)
	case opflwor:
		return p.iterateFLWOR(c, id)
	case opelement, opattribute, optext, opcomment:
		out := NewSequenceOutputter()
		if err := p.process(c.withReceiver(out), id); err != nil {
			return nil, err
		}
		return out.Items().Iterate(), nil
	case operror:
		e := *n.v.(*Error)
		e.Snapshot = c.snapshotOf()
		return nil, &e
	case opatomize:
		base, err := p.iterate(c, n.args[0])
		if err != nil {
			return nil, err
		}
		return &atomizeIter{base: base}, nil
	case opconvert:
		return p.iterateConvert(c, id)
	case opitemcheck:
		return p.iterateItemCheck(c, id)
	case opcardcheck:
		base, err := p.iterate(c, n.args[0])
		if err != nil {
			return nil, err
		}
		info := n.v.(*checkInfo)
		return &cardinalityIter{base: base, card: info.card, role: info.role}, nil
	default:
		panic(n.op)
	}
}

// evaluate materializes the value of id.
func (p *Program) evaluate(c *Context, id ExprID) (Extent, error) {
	iter, err := p.iterate(c, id)
	if err != nil {
		return nil, err
	}
	return Materialize(iter)
}

// evaluateAtomic atomizes the value of id, which must be empty or a
// single value.
func (p *Program) evaluateAtomic(c *Context, id ExprID, role string) (Atomic, error) {
	iter, err := p.iterate(c, id)
	if err != nil {
		return nil, err
	}
	iter = &atomizeIter{base: iter}
	v, err := iter.Next()
	if err != nil || v == nil {
		return nil, err
	}
	w, err := iter.Next()
	if err != nil {
		return nil, err
	}
	if w != nil {
		return nil, locate(newTypeError("XPTY0004", "a sequence of more than one item is not allowed as the %s", role), p.Location(id))
	}
	return v.(Atomic), nil
}

// evaluateSingle returns the only item of the value of id.
func (p *Program) evaluateSingle(c *Context, id ExprID, role string) (Item, error) {
	xs, err := p.evaluate(c, id)
	if err != nil {
		return nil, err
	}
	switch len(xs) {
	case 1:
		return xs[0], nil
	case 0:
		return nil, locate(newTypeError("XPTY0004", "an empty sequence is not allowed as the %s", role), p.Location(id))
	default:
		return nil, locate(newTypeError("XPTY0004", "a sequence of more than one item is not allowed as the %s", role), p.Location(id))
	}
}

func (p *Program) effectiveBooleanValue(c *Context, id ExprID) (bool, error) {
	if v, ok := p.singletonLiteral(id); ok {
		if b, ok := v.(Boolean); ok {
			return bool(b), nil
		}
	}
	iter, err := p.iterate(c, id)
	if err != nil {
		return false, err
	}
	b, err := effectiveBoolean(iter)
	return b, locate(err, p.Location(id))
}

func (p *Program) iterateRange(c *Context, id ExprID) (Iter, error) {
	var bounds [2]int64
	for i, a := range p.args(id) {
		v, err := p.evaluateAtomic(c, a, "operand of 'to'")
		if err != nil || v == nil {
			return emptyIter{}, err
		}
		w, err := castAtomic(v, TypeInteger)
		if err != nil {
			return nil, err
		}
		bounds[i] = int64(w.(Integer))
	}
	return IntegerRange{bounds[0], bounds[1]}.Iterate(), nil
}

func (p *Program) evaluateArith(c *Context, id ExprID) (Atomic, error) {
	n := p.node(id)
	op := n.v.(Operator)
	l, err := p.evaluateAtomic(c, n.args[0], "first operand of '"+op.String()+"'")
	if err != nil || l == nil {
		return nil, err
	}
	r, err := p.evaluateAtomic(c, n.args[1], "second operand of '"+op.String()+"'")
	if err != nil || r == nil {
		return nil, err
	}
	return arith(op, l, r)
}

func (p *Program) evaluateValueComparison(c *Context, id ExprID) (Atomic, error) {
	n := p.node(id)
	op := n.v.(Operator)
	l, err := p.evaluateAtomic(c, n.args[0], "first operand of '"+op.String()+"'")
	if err != nil || l == nil {
		return nil, err
	}
	r, err := p.evaluateAtomic(c, n.args[1], "second operand of '"+op.String()+"'")
	if err != nil || r == nil {
		return nil, err
	}
	b, err := valueCompare(op, l, r, c.ctl.comparer, c.ctl.tz)
	if err != nil {
		return nil, err
	}
	return Boolean(b), nil
}

func (p *Program) evaluateGeneralComparison(c *Context, id ExprID) (bool, error) {
	n := p.node(id)
	op := n.v.(Operator)
	rs, err := p.evaluate(c, n.args[1])
	if err != nil {
		return false, err
	}
	ra, err := Atomize(rs)
	if err != nil || len(ra) == 0 {
		return false, err
	}
	left, err := p.iterate(c, n.args[0])
	if err != nil {
		return false, err
	}
	left = &atomizeIter{base: left}
	for {
		l, err := left.Next()
		if err != nil || l == nil {
			return false, err
		}
		for _, r := range ra {
			b, err := generalCompare(op, l.(Atomic), r, c.ctl.comparer, c.ctl.tz)
			if err != nil {
				return false, err
			}
			if b {
				return true, nil
			}
		}
	}
}

func (p *Program) evaluateLogic(c *Context, id ExprID) (bool, error) {
	n := p.node(id)
	and := n.op == opand
	for _, a := range n.args {
		b, err := p.effectiveBooleanValue(c, a)
		if err != nil {
			return false, err
		}
		if b != and {
			return b, nil
		}
	}
	return and, nil
}

func (p *Program) iteratePath(c *Context, id ExprID) (Iter, error) {
	start, step := p.arg(id, 0), p.arg(id, 1)
	base, err := p.iterate(c, start)
	if err != nil {
		return nil, err
	}
	size := -1
	if p.deps(step)&DepPosition != 0 {
		xs, err := Materialize(base)
		if err != nil {
			return nil, err
		}
		base, size = xs.Iterate(), len(xs)
	}
	iter := mapIter(base, func(v Item, pos int) (Iter, error) {
		return p.iterate(c.withItem(v, pos, size), step)
	})
	if p.SpecialProperties(id)&SpecialOrderedNodeset != 0 {
		return iter, nil
	}
	if t := p.itemType(step); t.IsAtomic() || t == TypeFunction {
		return iter, nil
	}
	xs, err := Materialize(iter)
	if err != nil {
		return nil, err
	}
	xs, err = documentOrder(xs)
	if err != nil {
		return nil, err
	}
	return xs.Iterate(), nil
}

// documentOrder sorts nodes into document order without duplicates. A
// sequence of non-nodes is left alone.
func documentOrder(xs Extent) (Extent, error) {
	var nodes, others int
	for _, x := range xs {
		if _, ok := x.(Node); ok {
			nodes++
		} else {
			others++
		}
	}
	if nodes == 0 {
		return xs, nil
	}
	if others > 0 {
		return nil, newTypeError("XPTY0018", "the result of a path contains both nodes and non-nodes")
	}
	slices.SortStableFunc(xs, func(a, b Item) int {
		return CompareOrder(a.(Node), b.(Node))
	})
	return slices.CompactFunc(xs, func(a, b Item) bool {
		return CompareOrder(a.(Node), b.(Node)) == 0
	}), nil
}

func (p *Program) iterateStep(c *Context, id ExprID) (Iter, error) {
	v, err := c.contextItem()
	if err != nil {
		return nil, err
	}
	node, ok := v.(Node)
	if !ok {
		return nil, newTypeError("XPTY0020", "the context item for an axis step is not a node: %s", typeErrorPreview(v))
	}
	s := p.node(id).v.(stepInfo)
	var xs Extent
	add := func(n Node) {
		if s.test.matches(n) {
			xs = append(xs, n)
		}
	}
	switch s.axis {
	case AxisChild:
		for _, n := range node.Children() {
			add(n)
		}
	case AxisAttribute:
		for _, n := range node.Attributes() {
			add(n)
		}
	case AxisDescendant:
		var walk func(Node)
		walk = func(n Node) {
			for _, c := range n.Children() {
				add(c)
				walk(c)
			}
		}
		walk(node)
	case AxisSelf:
		add(node)
	case AxisParent:
		if parent := node.Parent(); parent != nil {
			add(parent)
		}
	}
	return xs.Iterate(), nil
}

func (p *Program) iterateFilter(c *Context, id ExprID) (Iter, error) {
	base, pred := p.arg(id, 0), p.arg(id, 1)
	if iter, ok, err := p.indexedFilter(c, id); ok || err != nil {
		return iter, err
	}
	if p.deps(pred)&depFocus == 0 {
		xs, err := p.evaluate(c, pred)
		if err != nil {
			return nil, err
		}
		if len(xs) == 1 && IsNumeric(xs[0]) {
			return p.positionalFilter(c, base, xs[0].(Atomic))
		}
		b, err := EffectiveBooleanValue(xs)
		if err != nil || !b {
			return emptyIter{}, err
		}
		return p.iterate(c, base)
	}
	iter, err := p.iterate(c, base)
	if err != nil {
		return nil, err
	}
	size := -1
	if p.deps(pred)&DepPosition != 0 {
		xs, err := Materialize(iter)
		if err != nil {
			return nil, err
		}
		iter, size = xs.Iterate(), len(xs)
	}
	return &filterIter{base: iter, keep: func(v Item, pos int) (bool, error) {
		xs, err := p.evaluate(c.withItem(v, pos, size), pred)
		if err != nil {
			return false, err
		}
		if len(xs) == 1 && IsNumeric(xs[0]) {
			return numericEqualsPosition(xs[0].(Atomic), pos), nil
		}
		return EffectiveBooleanValue(xs)
	}}, nil
}

func numericEqualsPosition(v Atomic, pos int) bool {
	r, unordered := compareNumeric(v, Integer(pos))
	return !unordered && r == 0
}

func (p *Program) positionalFilter(c *Context, base ExprID, v Atomic) (Iter, error) {
	w, err := castAtomic(v, TypeInteger)
	if err != nil || !numericEqualsPosition(v, int(w.(Integer))) || w.(Integer) < 1 {
		return emptyIter{}, nil
	}
	iter, err := p.iterate(c, base)
	if err != nil {
		return nil, err
	}
	if r, ok := iter.(*rangeIter); ok {
		rng := IntegerRange{r.next, r.end}
		return Singleton(rng.ItemAt(int(w.(Integer)) - 1)).Iterate(), nil
	}
	for pos := 1; ; pos++ {
		x, err := iter.Next()
		if err != nil || x == nil {
			return emptyIter{}, err
		}
		if pos == int(w.(Integer)) {
			return &unitIter{x}, nil
		}
	}
}

// indexedFilter answers $v[. = expr] from the index of an indexed
// variable. The boolean is false when the filter does not have that shape
// or the index cannot answer.
func (p *Program) indexedFilter(c *Context, id ExprID) (Iter, bool, error) {
	base, pred := p.node(p.arg(id, 0)), p.node(p.arg(id, 1))
	if base.op != opvar || !base.v.(*Variable).Indexed {
		return nil, false, nil
	}
	key, ok := p.equalityOnContext(p.arg(id, 1))
	if !ok || pred.op != opgeneral {
		return nil, false, nil
	}
	s, ok := c.frame.get(base.v.(*Variable).Slot).(*IndexedExtent)
	if !ok {
		return nil, false, nil
	}
	v, err := p.evaluateAtomic(c, key, "key of an indexed lookup")
	if err != nil {
		return nil, true, err
	}
	if v == nil {
		return emptyIter{}, true, nil
	}
	xs, ok := s.Lookup(v, c.ctl.tz)
	if !ok {
		return nil, false, nil
	}
	return Extent(xs).Iterate(), true, nil
}

// equalityOnContext matches `. = expr` and `expr = .` where expr does not
// depend on the focus, and returns expr.
func (p *Program) equalityOnContext(pred ExprID) (ExprID, bool) {
	n := p.node(pred)
	if n.op != opgeneral && n.op != opcompare || n.v.(Operator) != OpEq {
		return noExpr, false
	}
	l, r := p.unwrapChecks(n.args[0]), p.unwrapChecks(n.args[1])
	switch {
	case p.node(l).op == opcontext && p.deps(r)&depFocus == 0:
		return n.args[1], true
	case p.node(r).op == opcontext && p.deps(l)&depFocus == 0:
		return n.args[0], true
	}
	return noExpr, false
}

func (p *Program) unwrapChecks(id ExprID) ExprID {
	for {
		switch p.node(id).op {
		case opatomize, opconvert, opitemcheck, opcardcheck:
			id = p.arg(id, 0)
		default:
			return id
		}
	}
}

func (p *Program) iterateConvert(c *Context, id ExprID) (Iter, error) {
	n := p.node(id)
	target := n.v.(ItemType)
	base, err := p.iterate(c, n.args[0])
	if err != nil {
		return nil, err
	}
	return mapIter(base, func(v Item, _ int) (Iter, error) {
		a, ok := v.(Atomic)
		if !ok {
			return &unitIter{v}, nil
		}
		switch {
		case a.Type() == TypeUntypedAtomic:
		case target == TypeDouble && IsNumeric(a) && a.Type() != TypeDouble:
		default:
			return &unitIter{a}, nil
		}
		w, err := castAtomic(a, target)
		if err != nil {
			return nil, err
		}
		return &unitIter{w}, nil
	}), nil
}

func (p *Program) iterateItemCheck(c *Context, id ExprID) (Iter, error) {
	n := p.node(id)
	info := n.v.(*checkInfo)
	base, err := p.iterate(c, n.args[0])
	if err != nil {
		return nil, err
	}
	return &filterIter{base: base, keep: func(v Item, _ int) (bool, error) {
		if !matchesItemType(c.ctl.th, v, info.typ) {
			return false, newTypeError("XPTY0004", "required item type of the %s is %s; supplied value has item type %s",
				info.role, info.typ, TypeOf(v))
		}
		return true, nil
	}}, nil
}

// cardinalityIter checks the number of items of base against card. It
// reads two items ahead before returning the first one, so a violation is
// reported before any item is delivered.
type cardinalityIter struct {
	base    Iter
	card    Cardinality
	role    string
	checked bool
}

func (iter *cardinalityIter) Next() (Item, error) {
	if iter.checked {
		return iter.base.Next()
	}
	iter.checked = true
	first, err := iter.base.Next()
	if err != nil {
		return nil, err
	}
	if first == nil {
		if !iter.card.AllowsZero() {
			return nil, newTypeError("XPTY0004", "an empty sequence is not allowed as the %s", iter.role)
		}
		return nil, nil
	}
	if iter.card == CardEmpty {
		return nil, newTypeError("XPTY0004", "the %s must be empty", iter.role)
	}
	second, err := iter.base.Next()
	if err != nil {
		return nil, err
	}
	if second == nil {
		return first, nil
	}
	if !iter.card.AllowsMany() {
		return nil, newTypeError("XPTY0004", "a sequence of more than one item is not allowed as the %s", iter.role)
	}
	iter.base = prepend(second, iter.base)
	return first, nil
}

// stringValueOf joins the atomized value of id with spaces.
func (p *Program) stringValueOf(c *Context, id ExprID) (string, bool, error) {
	xs, err := p.evaluate(c, id)
	if err != nil {
		return "", false, err
	}
	vs, err := Atomize(xs)
	if err != nil || len(vs) == 0 {
		return "", false, err
	}
	var sb strings.Builder
	for i, v := range vs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.StringValue())
	}
	return sb.String(), true, nil
}
