package goxq

type opcode uint8

const (
	opliteral opcode = iota
	opcontext
	opvar
	opsequence
	oprange
	oparith
	opcompare
	opgeneral
	opand
	opor
	opif
	oppath
	opstep
	opfilter
	opcall
	opbuiltin
	opfuncref
	opdyncall
	opflwor
	opelement
	opattribute
	optext
	opcomment
	operror
	opatomize
	opconvert
	opitemcheck
	opcardcheck
)

func (op opcode) String() string {
	switch op {
	case opliteral:
		return "literal"
	case opcontext:
		return "context"
	case opvar:
		return "var"
	case opsequence:
		return "sequence"
	case oprange:
		return "range"
	case oparith:
		return "arith"
	case opcompare:
		return "compare"
	case opgeneral:
		return "general"
	case opand:
		return "and"
	case opor:
		return "or"
	case opif:
		return "if"
	case oppath:
		return "path"
	case opstep:
		return "step"
	case opfilter:
		return "filter"
	case opcall:
		return "call"
	case opbuiltin:
		return "builtin"
	case opfuncref:
		return "funcref"
	case opdyncall:
		return "dyncall"
	case opflwor:
		return "flwor"
	case opelement:
		return "element"
	case opattribute:
		return "attribute"
	case optext:
		return "text"
	case opcomment:
		return "comment"
	case operror:
		return "error"
	case opatomize:
		return "atomize"
	case opconvert:
		return "convert"
	case opitemcheck:
		return "itemcheck"
	case opcardcheck:
		return "cardcheck"
	default:
		panic(op)
	}
}

// Axis is the direction of an axis step.
type Axis uint8

// Axes supported by steps.
const (
	AxisChild Axis = iota
	AxisAttribute
	AxisDescendant
	AxisSelf
	AxisParent
)

func (a Axis) String() string {
	switch a {
	case AxisChild:
		return "child"
	case AxisAttribute:
		return "attribute"
	case AxisDescendant:
		return "descendant"
	case AxisSelf:
		return "self"
	case AxisParent:
		return "parent"
	default:
		panic(a)
	}
}

// NodeTest selects nodes by kind and name. An empty Name matches any name.
type NodeTest struct {
	Kind    NodeKind
	AnyKind bool
	Name    string
	Space   string
}

// AnyNode matches every node.
var AnyNode = NodeTest{AnyKind: true}

// ElementTest matches elements with the local name, or any element for "*".
func ElementTest(name string) NodeTest {
	if name == "*" {
		name = ""
	}
	return NodeTest{Kind: KindElement, Name: name}
}

// AttributeTest matches attributes with the local name, or any for "*".
func AttributeTest(name string) NodeTest {
	if name == "*" {
		name = ""
	}
	return NodeTest{Kind: KindAttribute, Name: name}
}

// TextTest matches text nodes.
var TextTest = NodeTest{Kind: KindText}

func (t NodeTest) matches(n Node) bool {
	if !t.AnyKind && n.Kind() != t.Kind {
		return false
	}
	if t.Name == "" {
		return true
	}
	name := n.Name()
	return name.Local == t.Name && name.Space == t.Space
}

func (t NodeTest) itemType() ItemType {
	if t.AnyKind {
		return TypeNode
	}
	return nodeItemType(t.Kind)
}

func (t NodeTest) String() string {
	if t.AnyKind {
		return "node()"
	}
	switch t.Kind {
	case KindElement, KindAttribute:
		if t.Name == "" {
			return "*"
		}
		if t.Space != "" {
			return "Q{" + t.Space + "}" + t.Name
		}
		return t.Name
	}
	return t.itemType().String()
}

type stepInfo struct {
	axis Axis
	test NodeTest
}
