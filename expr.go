package goxq

import "fmt"

// ExprID addresses an expression in a Program.
type ExprID int32

const noExpr ExprID = -1

// Program is an arena of expressions together with the functions and the
// main expression that use them. Expressions are created through the
// builder methods, rewritten in place by Compile, and are read-only once
// the program is compiled.
type Program struct {
	nodes     []exprNode
	functions map[funcKey]*UserFunction
	funcs     []*UserFunction
	funcrefs  []ExprID
	main      ExprID
	scope     Scope
	externals []*Variable
	th        TypeHierarchy
	frozen    bool
}

type exprNode struct {
	op     opcode
	v      any
	args   []ExprID
	parent ExprID
	loc    Location
	props  *props
}

type funcKey struct {
	space, local string
	arity        int
}

func keyOf(name QName, arity int) funcKey {
	return funcKey{name.Space, name.Local, arity}
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{
		functions: make(map[funcKey]*UserFunction),
		main:      noExpr,
		th:        DefaultTypeHierarchy,
	}
}

func (p *Program) newNode(op opcode, v any, args ...ExprID) ExprID {
	if p.frozen {
		panic("goxq: program is already compiled")
	}
	id := ExprID(len(p.nodes))
	for _, a := range args {
		p.nodes[a].parent = id
	}
	p.nodes = append(p.nodes, exprNode{op: op, v: v, args: args, parent: noExpr})
	return id
}

func (p *Program) node(id ExprID) *exprNode {
	return &p.nodes[id]
}

func (p *Program) args(id ExprID) []ExprID {
	return p.nodes[id].args
}

func (p *Program) arg(id ExprID, i int) ExprID {
	return p.nodes[id].args[i]
}

// Len returns the number of expressions in the arena.
func (p *Program) Len() int {
	return len(p.nodes)
}

// Parent returns the owner of id, or -1 for a root.
func (p *Program) Parent(id ExprID) ExprID {
	return p.nodes[id].parent
}

// Children returns the sub-expressions of id.
func (p *Program) Children(id ExprID) []ExprID {
	return append([]ExprID(nil), p.nodes[id].args...)
}

// Location returns the source location of id.
func (p *Program) Location(id ExprID) Location {
	return p.nodes[id].loc
}

// SetLocation records the source location of id.
func (p *Program) SetLocation(id ExprID, loc Location) ExprID {
	p.nodes[id].loc = loc
	return id
}

// Main returns the main expression.
func (p *Program) Main() ExprID {
	return p.main
}

// SetMain sets the main expression.
func (p *Program) SetMain(id ExprID) {
	p.main = id
}

// Functions returns the declared functions in declaration order.
func (p *Program) Functions() []*UserFunction {
	return p.funcs
}

// Function looks up a declared function by name and arity.
func (p *Program) Function(name QName, arity int) *UserFunction {
	return p.functions[keyOf(name, arity)]
}

// ReplaceChild replaces the i-th sub-expression of parent by child and
// invalidates the cached properties of parent and its ancestors.
func (p *Program) ReplaceChild(parent ExprID, i int, child ExprID) {
	if p.frozen {
		panic("goxq: program is already compiled")
	}
	n := p.node(parent)
	if old := n.args[i]; old != child && p.nodes[old].parent == parent {
		p.nodes[old].parent = noExpr
	}
	n.args[i] = child
	p.nodes[child].parent = parent
	p.invalidate(parent)
}

// replace substitutes id by r in the parent of id, or in the root that
// holds it. When r wraps id, id was a root and r takes its place.
func (p *Program) replace(id, r ExprID) {
	if id == r {
		return
	}
	if parent := p.nodes[id].parent; parent != noExpr && !p.contains(r, id) {
		for i, a := range p.nodes[parent].args {
			if a == id {
				p.ReplaceChild(parent, i, r)
				return
			}
		}
	}
	p.nodes[r].parent = noExpr
	p.replaceRoot(id, r)
}

// contains reports whether id lies in the tree rooted at root.
func (p *Program) contains(root, id ExprID) bool {
	for ; id != noExpr; id = p.nodes[id].parent {
		if id == root {
			return true
		}
	}
	return false
}

func (p *Program) replaceRoot(id, r ExprID) {
	if p.main == id {
		p.main = r
	}
	for _, fn := range p.funcs {
		if fn.Body == id {
			fn.Body = r
		}
	}
	for _, f := range p.funcrefs {
		if info := p.nodes[f].v.(*funcRefInfo); info.call == id {
			info.call = r
		}
	}
}

func (p *Program) invalidate(id ExprID) {
	for ; id != noExpr; id = p.nodes[id].parent {
		p.nodes[id].props = nil
	}
}

func (p *Program) dropProps() {
	for i := range p.nodes {
		p.nodes[i].props = nil
	}
}

// roots returns every expression tree of the program: function bodies,
// the synthesized calls behind function references, and the main
// expression.
func (p *Program) roots() []ExprID {
	var ids []ExprID
	for _, fn := range p.funcs {
		if fn.Body != noExpr {
			ids = append(ids, fn.Body)
		}
	}
	for _, f := range p.funcrefs {
		ids = append(ids, p.nodes[f].v.(*funcRefInfo).call)
	}
	if p.main != noExpr {
		ids = append(ids, p.main)
	}
	return ids
}

// isFuncRefCall reports whether id is the call synthesized for a function
// reference.
func (p *Program) isFuncRefCall(id ExprID) bool {
	for _, f := range p.funcrefs {
		if p.nodes[f].v.(*funcRefInfo).call == id {
			return true
		}
	}
	return false
}

// walk calls f on id and its descendants in preorder. Returning false from
// f skips the children.
func (p *Program) walk(id ExprID, f func(ExprID) bool) {
	if !f(id) {
		return
	}
	for _, a := range p.nodes[id].args {
		p.walk(a, f)
	}
}

// size counts the expressions of a tree.
func (p *Program) size(id ExprID) int {
	var n int
	p.walk(id, func(ExprID) bool { n++; return true })
	return n
}

func (p *Program) isLiteral(id ExprID) bool {
	return p.nodes[id].op == opliteral
}

func (p *Program) literal(id ExprID) Extent {
	return p.nodes[id].v.(Extent)
}

// singletonLiteral returns the atomic value of a one-item literal.
func (p *Program) singletonLiteral(id ExprID) (Atomic, bool) {
	if !p.isLiteral(id) {
		return nil, false
	}
	xs := p.literal(id)
	if len(xs) != 1 {
		return nil, false
	}
	v, ok := xs[0].(Atomic)
	return v, ok
}

func (p *Program) describe(id ExprID) string {
	n := p.node(id)
	switch n.op {
	case opliteral:
		xs := n.v.(Extent)
		if len(xs) == 1 {
			return fmt.Sprintf("literal %s%s", TypeOf(xs[0]), preview(xs[0]))
		}
		return fmt.Sprintf("literal (%d items)", len(xs))
	case opvar:
		return "var $" + n.v.(*Variable).Name
	case oparith, opcompare:
		return n.op.String() + " " + n.v.(Operator).String()
	case opgeneral:
		return n.op.String() + " " + n.v.(Operator).generalSymbol()
	case opstep:
		s := n.v.(stepInfo)
		return "step " + s.axis.String() + "::" + s.test.String()
	case opcall:
		c := n.v.(*callInfo)
		return fmt.Sprintf("call %s#%d %s", c.name, len(n.args), c.tail)
	case opbuiltin:
		return "builtin " + n.v.(*builtinFunc).name
	case opfuncref:
		f := n.v.(*funcRefInfo)
		return fmt.Sprintf("funcref %s#%d", f.name, f.arity)
	case opflwor:
		return "flwor " + n.v.(*flworInfo).String()
	case opelement, opattribute:
		return n.op.String() + " " + n.v.(QName).String()
	case operror:
		return "error " + n.v.(*Error).Code
	case opconvert:
		return "convert " + n.v.(ItemType).String()
	case opitemcheck:
		return "itemcheck " + n.v.(*checkInfo).typ.String()
	case opcardcheck:
		return "cardcheck " + SequenceType{TypeItem, n.v.(*checkInfo).card}.String()
	default:
		return n.op.String()
	}
}

// checkInfo is the payload of the type checks inserted by typeCheck.
type checkInfo struct {
	typ  ItemType
	card Cardinality
	role string
}
