package goxq

import "strings"

// Dependency is a bitmask of what an expression depends on besides its
// sub-expressions.
type Dependency uint8

// Dependencies.
const (
	DepContextItem Dependency = 1 << iota
	DepPosition
	DepLocalVariables
	DepUserFunctions
	DepCurrentDateTime

	depFocus = DepContextItem | DepPosition
)

func (d Dependency) String() string {
	var xs []string
	for _, x := range []struct {
		d    Dependency
		name string
	}{
		{DepContextItem, "context"},
		{DepPosition, "position"},
		{DepLocalVariables, "locals"},
		{DepUserFunctions, "functions"},
		{DepCurrentDateTime, "now"},
	} {
		if d&x.d != 0 {
			xs = append(xs, x.name)
		}
	}
	return strings.Join(xs, ",")
}

// Special is a bitmask of special properties of an expression.
type Special uint8

// Special properties.
const (
	SpecialNonCreative Special = 1 << iota
	SpecialOrderedNodeset
	SpecialSingleDocument
)

func (s Special) String() string {
	var xs []string
	if s&SpecialNonCreative != 0 {
		xs = append(xs, "non-creative")
	}
	if s&SpecialOrderedNodeset != 0 {
		xs = append(xs, "ordered")
	}
	if s&SpecialSingleDocument != 0 {
		xs = append(xs, "single-document")
	}
	return strings.Join(xs, ",")
}

type props struct {
	typ     ItemType
	card    Cardinality
	deps    Dependency
	special Special
	modes   []EvalMode
}

func (p *Program) props(id ExprID) *props {
	n := p.node(id)
	if n.props == nil {
		if p.frozen {
			panic("goxq: properties of a compiled program must be computed before freezing")
		}
		n.props = p.computeProps(id)
	}
	return n.props
}

// StaticType returns the static item type and cardinality of id.
func (p *Program) StaticType(id ExprID) SequenceType {
	pr := p.props(id)
	return SequenceType{pr.typ, pr.card}
}

// Dependencies returns the dependency bitmask of id.
func (p *Program) Dependencies(id ExprID) Dependency {
	return p.props(id).deps
}

// SpecialProperties returns the special-property bitmask of id.
func (p *Program) SpecialProperties(id ExprID) Special {
	return p.props(id).special
}

// Modes returns the evaluation modes of the arguments of a user function
// call, recomputed after any of its arguments is replaced.
func (p *Program) Modes(id ExprID) []EvalMode {
	return p.props(id).modes
}

func (p *Program) itemType(id ExprID) ItemType {
	return p.props(id).typ
}

func (p *Program) cardinality(id ExprID) Cardinality {
	return p.props(id).card
}

func (p *Program) deps(id ExprID) Dependency {
	return p.props(id).deps
}

func (p *Program) computeProps(id ExprID) *props {
	n := p.node(id)
	pr := &props{typ: TypeItem, card: CardZeroOrMore, special: SpecialNonCreative}
	var argDeps Dependency
	for _, a := range n.args {
		ap := p.props(a)
		argDeps |= ap.deps
		if ap.special&SpecialNonCreative == 0 {
			pr.special &^= SpecialNonCreative
		}
	}
	pr.deps = argDeps
	switch n.op {
	case opliteral:
		xs := n.v.(Extent)
		pr.typ, pr.card = TypeNone, cardinalityOf(len(xs))
		for _, x := range xs {
			pr.typ = p.th.CommonSupertype(pr.typ, itemTypeOf(x))
		}
	case opcontext:
		pr.typ, pr.card, pr.deps = n.v.(ItemType), CardExactlyOne, DepContextItem
	case opvar:
		v := n.v.(*Variable)
		pr.typ, pr.card, pr.deps = v.Type.Item, v.Type.Card, DepLocalVariables
	case opsequence:
		pr.typ, pr.card = TypeNone, CardEmpty
		for _, a := range n.args {
			pr.typ = p.th.CommonSupertype(pr.typ, p.itemType(a))
			pr.card = pr.card.Sum(p.cardinality(a))
		}
	case oprange:
		pr.typ = TypeInteger
	case oparith:
		pr.typ, pr.card = arithResultType(n.v.(Operator), p.itemType(n.args[0]), p.itemType(n.args[1])), CardZeroOrOne
		if p.cardinality(n.args[0]) == CardExactlyOne && p.cardinality(n.args[1]) == CardExactlyOne {
			pr.card = CardExactlyOne
		}
	case opcompare:
		pr.typ, pr.card = TypeBoolean, CardZeroOrOne
		if p.cardinality(n.args[0]) == CardExactlyOne && p.cardinality(n.args[1]) == CardExactlyOne {
			pr.card = CardExactlyOne
		}
	case opgeneral, opand, opor:
		pr.typ, pr.card = TypeBoolean, CardExactlyOne
	case opif:
		t, e := n.args[1], n.args[2]
		pr.typ = p.th.CommonSupertype(p.itemType(t), p.itemType(e))
		pr.card = p.cardinality(t).Union(p.cardinality(e))
	case oppath:
		start, step := n.args[0], n.args[1]
		pr.typ = p.itemType(step)
		pr.card = p.cardinality(start).Multiply(p.cardinality(step))
		pr.deps = p.deps(start) | p.deps(step)&^depFocus
		if s, ok := p.node(step).v.(stepInfo); ok && p.node(step).op == opstep {
			switch s.axis {
			case AxisChild, AxisAttribute, AxisSelf, AxisParent:
				if !p.cardinality(start).AllowsMany() {
					pr.special |= SpecialOrderedNodeset
				}
			}
		}
		if p.SpecialProperties(start)&SpecialSingleDocument != 0 {
			pr.special |= SpecialSingleDocument
		}
	case opstep:
		s := n.v.(stepInfo)
		pr.typ, pr.deps = s.test.itemType(), DepContextItem
		pr.special |= SpecialOrderedNodeset | SpecialSingleDocument
		switch s.axis {
		case AxisSelf, AxisParent:
			pr.card = CardZeroOrOne
		}
	case opfilter:
		base, pred := n.args[0], n.args[1]
		pr.typ, pr.card = p.itemType(base), p.cardinality(base).Union(CardEmpty)
		if IsNumericType(p.itemType(pred)) && !p.cardinality(pred).AllowsMany() {
			pr.card = CardZeroOrOne
		}
		pr.deps = p.deps(base) | p.deps(pred)&^depFocus
		pr.special |= p.SpecialProperties(base) & (SpecialOrderedNodeset | SpecialSingleDocument)
	case opcall:
		c := n.v.(*callInfo)
		pr.deps |= DepUserFunctions
		if c.fn != nil {
			pr.typ, pr.card = c.fn.ResultType.Item, c.fn.ResultType.Card
			pr.modes = selectModes(c.fn.Params, p, n.args)
		}
		pr.special &^= SpecialNonCreative
	case opbuiltin:
		b := n.v.(*builtinFunc)
		pr.typ, pr.card = b.result.Item, b.result.Card
		pr.deps |= b.deps
		if b.focus && len(n.args) == 0 {
			pr.deps |= DepContextItem
		}
	case opfuncref:
		pr.typ, pr.card = TypeFunction, CardExactlyOne
	case opdyncall:
		pr.deps |= DepUserFunctions
		pr.special &^= SpecialNonCreative
	case opflwor:
		pr.typ, pr.card = p.flworType(id)
	case opelement:
		pr.typ, pr.card = TypeElement, CardExactlyOne
		pr.special &^= SpecialNonCreative
	case opattribute:
		pr.typ, pr.card = TypeAttribute, CardExactlyOne
		pr.special &^= SpecialNonCreative
	case optext:
		pr.typ, pr.card = TypeText, CardZeroOrOne
		pr.special &^= SpecialNonCreative
	case opcomment:
		pr.typ, pr.card = TypeComment, CardExactlyOne
		pr.special &^= SpecialNonCreative
	case operror:
		pr.typ, pr.card = TypeNone, CardZeroOrMore
	case opatomize:
		a := n.args[0]
		pr.card = p.cardinality(a)
		switch t := p.itemType(a); {
		case t.IsAtomic():
			pr.typ = t
		case t.IsNode():
			pr.typ = TypeUntypedAtomic
		default:
			pr.typ = TypeAnyAtomic
		}
	case opconvert:
		a := n.args[0]
		pr.typ, pr.card = convertResultType(p.th, p.itemType(a), n.v.(ItemType)), p.cardinality(a)
	case opitemcheck:
		a := n.args[0]
		pr.typ, pr.card = n.v.(*checkInfo).typ, p.cardinality(a)
		if p.th.IsSubtype(p.itemType(a), pr.typ) {
			pr.typ = p.itemType(a)
		}
	case opcardcheck:
		a := n.args[0]
		pr.typ = p.itemType(a)
		pr.card = normalizeCardinality(n.v.(*checkInfo).card.Intersect(p.cardinality(a)))
		if pr.card == 0 {
			pr.card = n.v.(*checkInfo).card
		}
	}
	return pr
}

// IsNumericType reports whether t is a numeric type.
func IsNumericType(t ItemType) bool {
	switch t {
	case TypeNumeric, TypeInteger, TypeDecimal, TypeDouble:
		return true
	}
	return false
}

func arithResultType(op Operator, l, r ItemType) ItemType {
	switch {
	case l == TypeUntypedAtomic || r == TypeUntypedAtomic:
		return TypeDouble
	case !IsNumericType(l) || !IsNumericType(r):
		return TypeAnyAtomic
	case op == OpIdiv:
		return TypeInteger
	case l == TypeDouble || r == TypeDouble:
		return TypeDouble
	case l == TypeNumeric || r == TypeNumeric:
		return TypeNumeric
	case op == OpDiv:
		return TypeDecimal
	case l == TypeInteger && r == TypeInteger:
		return TypeInteger
	default:
		return TypeDecimal
	}
}

// convertResultType is the type of converting values of type from for a
// required type to.
func convertResultType(th TypeHierarchy, from, to ItemType) ItemType {
	switch {
	case from == TypeUntypedAtomic:
		return to
	case th.IsSubtype(from, to):
		return from
	case IsNumericType(from) && (to == TypeDouble || to == TypeDecimal && th.IsSubtype(from, TypeDecimal)):
		return to
	default:
		return from
	}
}

func (p *Program) flworType(id ExprID) (ItemType, Cardinality) {
	n := p.node(id)
	info := n.v.(*flworInfo)
	card := CardExactlyOne
	for _, cl := range info.clauses {
		switch cl.kind {
		case clauseFor:
			card = card.Multiply(p.cardinality(n.args[cl.first]))
		case clauseWhere:
			card = card.Union(CardEmpty)
		case clauseGroupBy:
			card = card.Union(CardEmpty)
		}
	}
	ret := n.args[len(n.args)-1]
	return p.itemType(ret), card.Multiply(p.cardinality(ret))
}

// freeze computes the properties of every reachable expression so that
// evaluation never writes to the arena.
func (p *Program) freeze() {
	for _, r := range p.roots() {
		p.walk(r, func(id ExprID) bool {
			p.props(id)
			return true
		})
	}
	p.frozen = true
}
