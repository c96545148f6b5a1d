package goxq

import (
	"io"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadProgram reads a program written as a YAML document of expression
// trees. The document has three optional keys:
//
//	functions: [{name: local:f, params: [{name: n, type: xs:integer}], result: xs:integer, body: EXPR}]
//	variables: [{name: x, type: xs:string*}]
//	main: EXPR
//
// A scalar is a literal (null is the empty sequence), a YAML sequence is a
// sequence expression, and a mapping is an expression named by one of its
// keys, such as {add: [EXPR, EXPR]}, {if: EXPR, then: EXPR, else: EXPR},
// {call: fn:count, args: [EXPR]} or {flwor: [CLAUSE...], return: EXPR}.
// Malformed programs are reported as XPST0003 with the line and column of
// the offending node.
func LoadProgram(module string, r io.Reader) (*Program, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, errors.Errorf("%s: empty program", module)
		}
		return nil, errors.Wrapf(err, "parse %s", module)
	}
	l := &loader{p: NewProgram(), module: module}
	if err := l.load(doc.Content[0]); err != nil {
		return nil, err
	}
	return l.p, nil
}

type loader struct {
	p      *Program
	module string
	scope  *Scope
	env    *binding
}

// binding is a variable in the lexical scope of the expression loaded.
type binding struct {
	name string
	v    *Variable
	next *binding
}

var namespaces = map[string]string{
	"fn":    FunctionNamespace,
	"saxon": SaxonNamespace,
	"local": "http://www.w3.org/2005/xquery-local-functions",
}

var arithOps = map[string]Operator{
	"add": OpAdd, "sub": OpSub, "mul": OpMul,
	"div": OpDiv, "idiv": OpIdiv, "mod": OpMod,
}

var valueOps = map[string]Operator{
	"eq": OpEq, "ne": OpNe, "lt": OpLt,
	"le": OpLe, "gt": OpGt, "ge": OpGe,
}

var generalOps = map[string]Operator{
	"=": OpEq, "!=": OpNe, "<": OpLt,
	"<=": OpLe, ">": OpGt, ">=": OpGe,
}

// exprKeys maps the key naming an expression to the other keys allowed
// alongside it.
var exprKeys = map[string][]string{
	"var": nil, "context": nil,
	"string": nil, "decimal": nil, "dateTime": nil, "date": nil, "untyped": nil,
	"range": nil, "and": nil, "or": nil,
	"if":      {"then", "else"},
	"path":    nil,
	"step":    nil,
	"filter":  {"predicate"},
	"call":    {"args"},
	"funcref": nil,
	"dyncall": {"args"},
	"element": {"content"}, "attribute": {"value"}, "text": nil, "comment": nil,
	"error": {"message"},
	"flwor": {"return"},
}

var clauseKeys = map[string][]string{
	"for":      {"at", "in", "as"},
	"let":      {"value", "as"},
	"where":    nil,
	"count":    nil,
	"order-by": nil,
	"group-by": nil,
}

func init() {
	for _, ops := range []map[string]Operator{arithOps, valueOps, generalOps} {
		for k := range ops {
			exprKeys[k] = nil
		}
	}
}

func (l *loader) errorf(n *yaml.Node, format string, args ...any) error {
	return newStaticError("XPST0003", l.location(n), format, args...)
}

func (l *loader) location(n *yaml.Node) Location {
	return Location{Module: l.module, Line: n.Line, Column: n.Column}
}

func (l *loader) load(root *yaml.Node) error {
	m, err := l.fields(root, "functions", "variables", "main")
	if err != nil {
		return err
	}
	var decls []*functionDecl
	if n := m["functions"]; n != nil {
		if err := l.expectSequence(n); err != nil {
			return err
		}
		for _, fn := range n.Content {
			d, err := l.function(fn)
			if err != nil {
				return err
			}
			decls = append(decls, d)
		}
	}
	l.scope, l.env = l.p.Scope(), nil
	if n := m["variables"]; n != nil {
		if err := l.expectSequence(n); err != nil {
			return err
		}
		for _, v := range n.Content {
			name, t, err := l.param(v)
			if err != nil {
				return err
			}
			l.env = &binding{name, l.p.DeclareVariable(name, t), l.env}
		}
	}
	globals := l.env
	for _, d := range decls {
		l.scope, l.env = d.fn.Scope(), d.env
		body, err := l.expr(d.body)
		if err != nil {
			return err
		}
		l.p.SetBody(d.fn, body)
	}
	if n := m["main"]; n != nil {
		l.scope, l.env = l.p.Scope(), globals
		main, err := l.expr(n)
		if err != nil {
			return err
		}
		l.p.SetMain(main)
	}
	return nil
}

type functionDecl struct {
	fn   *UserFunction
	body *yaml.Node
	env  *binding
}

func (l *loader) function(n *yaml.Node) (*functionDecl, error) {
	m, err := l.fields(n, "name", "params", "result", "body")
	if err != nil {
		return nil, err
	}
	if m["name"] == nil || m["body"] == nil {
		return nil, l.errorf(n, "function declaration needs a name and a body")
	}
	name, err := l.qname(m["name"])
	if err != nil {
		return nil, err
	}
	result := AnySequence
	if m["result"] != nil {
		if result, err = l.sequenceType(m["result"]); err != nil {
			return nil, err
		}
	}
	var params []Param
	if pn := m["params"]; pn != nil {
		if err := l.expectSequence(pn); err != nil {
			return nil, err
		}
		for _, x := range pn.Content {
			name, t, err := l.param(x)
			if err != nil {
				return nil, err
			}
			params = append(params, Param{name, t})
		}
	}
	fn, err := l.p.DeclareFunction(name, result, params...)
	if err != nil {
		return nil, locate(err, l.location(n))
	}
	fn.loc = l.location(n)
	var env *binding
	for i, v := range fn.Params {
		env = &binding{params[i].Name, v, env}
	}
	return &functionDecl{fn, m["body"], env}, nil
}

// param reads a name with an optional type, written either as a plain
// name or as {name: x, type: xs:integer}.
func (l *loader) param(n *yaml.Node) (string, SequenceType, error) {
	if n.Kind == yaml.ScalarNode {
		return n.Value, AnySequence, nil
	}
	m, err := l.fields(n, "name", "type")
	if err != nil {
		return "", SequenceType{}, err
	}
	if m["name"] == nil {
		return "", SequenceType{}, l.errorf(n, "missing name")
	}
	name, err := l.scalar(m["name"])
	if err != nil {
		return "", SequenceType{}, err
	}
	t := AnySequence
	if m["type"] != nil {
		if t, err = l.sequenceType(m["type"]); err != nil {
			return "", SequenceType{}, err
		}
	}
	return name, t, nil
}

func (l *loader) sequenceType(n *yaml.Node) (SequenceType, error) {
	s, err := l.scalar(n)
	if err != nil {
		return SequenceType{}, err
	}
	t, err := ParseSequenceType(s)
	if err != nil {
		return SequenceType{}, locate(err, l.location(n))
	}
	return t, nil
}

// qname reads "prefix:local", "Q{uri}local" or a local name.
func (l *loader) qname(n *yaml.Node) (QName, error) {
	s, err := l.scalar(n)
	if err != nil {
		return QName{}, err
	}
	if rest, ok := strings.CutPrefix(s, "Q{"); ok {
		space, local, ok := strings.Cut(rest, "}")
		if !ok || !isNCName(local) {
			return QName{}, l.errorf(n, "invalid name: %s", s)
		}
		return QName{Space: space, Local: local}, nil
	}
	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		if !isNCName(s) {
			return QName{}, l.errorf(n, "invalid name: %s", s)
		}
		return Name(s), nil
	}
	space, known := namespaces[prefix]
	if !known {
		return QName{}, newStaticError("XPST0081", l.location(n), "unknown namespace prefix: %s", prefix)
	}
	if !isNCName(local) {
		return QName{}, l.errorf(n, "invalid name: %s", s)
	}
	return QName{Prefix: prefix, Space: space, Local: local}, nil
}

func (l *loader) scalar(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", l.errorf(n, "expected a scalar")
	}
	return n.Value, nil
}

func (l *loader) expectSequence(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return l.errorf(n, "expected a sequence")
	}
	return nil
}

// fields returns the values of a mapping by key, rejecting the keys not
// in allowed.
func (l *loader) fields(n *yaml.Node, allowed ...string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, l.errorf(n, "expected a mapping")
	}
	m := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if !contains(allowed, k.Value) {
			return nil, l.errorf(k, "unexpected key: %s", k.Value)
		}
		if _, ok := m[k.Value]; ok {
			return nil, l.errorf(k, "duplicate key: %s", k.Value)
		}
		m[k.Value] = v
	}
	return m, nil
}

// head finds the key of a mapping naming its kind among keys, and checks
// the other keys against the ones allowed for that kind.
func (l *loader) head(n *yaml.Node, keys map[string][]string) (string, map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return "", nil, l.errorf(n, "expected a mapping")
	}
	var head string
	for i := 0; i < len(n.Content); i += 2 {
		if _, ok := keys[n.Content[i].Value]; ok {
			head = n.Content[i].Value
			break
		}
	}
	if head == "" {
		return "", nil, l.errorf(n, "unknown expression")
	}
	m, err := l.fields(n, append([]string{head}, keys[head]...)...)
	if err != nil {
		return "", nil, err
	}
	return head, m, nil
}

func hasKey(n *yaml.Node, key string) bool {
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}

func contains(xs []string, x string) bool {
	for _, y := range xs {
		if x == y {
			return true
		}
	}
	return false
}

func (l *loader) lookup(name string) *Variable {
	for b := l.env; b != nil; b = b.next {
		if b.name == name {
			return b.v
		}
	}
	return nil
}

func (l *loader) bind(name string, t SequenceType) *Variable {
	v := l.scope.Declare(name, t)
	l.env = &binding{name, v, l.env}
	return v
}

func (l *loader) expr(n *yaml.Node) (ExprID, error) {
	if n == nil {
		return noExpr, errors.New("missing expression")
	}
	id, err := l.exprNode(n)
	if err != nil {
		return noExpr, err
	}
	if l.p.Location(id).IsZero() {
		l.p.SetLocation(id, l.location(n))
	}
	return id, nil
}

func (l *loader) exprs(n *yaml.Node) ([]ExprID, error) {
	if err := l.expectSequence(n); err != nil {
		return nil, err
	}
	ids := make([]ExprID, len(n.Content))
	for i, x := range n.Content {
		id, err := l.expr(x)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (l *loader) pair(n *yaml.Node) (ExprID, ExprID, error) {
	ids, err := l.exprs(n)
	if err != nil {
		return noExpr, noExpr, err
	}
	if len(ids) != 2 {
		return noExpr, noExpr, l.errorf(n, "expected two operands")
	}
	return ids[0], ids[1], nil
}

func (l *loader) exprNode(n *yaml.Node) (ExprID, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return l.literal(n)
	case yaml.SequenceNode:
		ids, err := l.exprs(n)
		if err != nil {
			return noExpr, err
		}
		return l.p.Seq(ids...), nil
	case yaml.MappingNode:
		return l.compound(n)
	case yaml.AliasNode:
		return l.exprNode(n.Alias)
	default:
		return noExpr, l.errorf(n, "unexpected node")
	}
}

func (l *loader) literal(n *yaml.Node) (ExprID, error) {
	switch n.ShortTag() {
	case "!!null":
		return l.p.Literal(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return noExpr, l.errorf(n, "invalid boolean: %s", n.Value)
		}
		return l.p.Literal(Boolean(b)), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return noExpr, newStaticError("FOAR0002", l.location(n), "integer out of range: %s", n.Value)
		}
		return l.p.Literal(Integer(i)), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return noExpr, l.errorf(n, "invalid double: %s", n.Value)
		}
		return l.p.Literal(Double(f)), nil
	default:
		return l.p.Literal(String(n.Value)), nil
	}
}

func (l *loader) compound(n *yaml.Node) (ExprID, error) {
	head, m, err := l.head(n, exprKeys)
	if err != nil {
		return noExpr, err
	}
	p, v := l.p, m[head]
	if op, ok := arithOps[head]; ok {
		x, y, err := l.pair(v)
		if err != nil {
			return noExpr, err
		}
		return p.Arith(op, x, y), nil
	}
	if op, ok := valueOps[head]; ok {
		x, y, err := l.pair(v)
		if err != nil {
			return noExpr, err
		}
		return p.ValueCompare(op, x, y), nil
	}
	if op, ok := generalOps[head]; ok {
		x, y, err := l.pair(v)
		if err != nil {
			return noExpr, err
		}
		return p.GeneralCompare(op, x, y), nil
	}
	switch head {
	case "var":
		name, err := l.scalar(v)
		if err != nil {
			return noExpr, err
		}
		x := l.lookup(name)
		if x == nil {
			return noExpr, newStaticError("XPST0008", l.location(v), "undefined variable $%s", name)
		}
		return p.Ref(x), nil
	case "context":
		return p.ContextItem(), nil
	case "string", "untyped", "decimal", "dateTime", "date":
		return l.typedLiteral(head, v)
	case "range":
		x, y, err := l.pair(v)
		if err != nil {
			return noExpr, err
		}
		return p.Range(x, y), nil
	case "and", "or":
		x, y, err := l.pair(v)
		if err != nil {
			return noExpr, err
		}
		if head == "and" {
			return p.And(x, y), nil
		}
		return p.Or(x, y), nil
	case "if":
		if m["then"] == nil || m["else"] == nil {
			return noExpr, l.errorf(n, "conditional needs then and else")
		}
		cond, err := l.expr(v)
		if err != nil {
			return noExpr, err
		}
		then, err := l.expr(m["then"])
		if err != nil {
			return noExpr, err
		}
		els, err := l.expr(m["else"])
		if err != nil {
			return noExpr, err
		}
		return p.If(cond, then, els), nil
	case "path":
		return l.path(v)
	case "step":
		return l.step(v)
	case "filter":
		if m["predicate"] == nil {
			return noExpr, l.errorf(n, "filter needs a predicate")
		}
		base, err := l.expr(v)
		if err != nil {
			return noExpr, err
		}
		pred, err := l.expr(m["predicate"])
		if err != nil {
			return noExpr, err
		}
		return p.Filter(base, pred), nil
	case "call":
		name, err := l.qname(v)
		if err != nil {
			return noExpr, err
		}
		var args []ExprID
		if m["args"] != nil {
			if args, err = l.exprs(m["args"]); err != nil {
				return noExpr, err
			}
		}
		return p.Call(name, args...), nil
	case "funcref":
		return l.funcref(v)
	case "dyncall":
		f, err := l.expr(v)
		if err != nil {
			return noExpr, err
		}
		var args []ExprID
		if m["args"] != nil {
			if args, err = l.exprs(m["args"]); err != nil {
				return noExpr, err
			}
		}
		return p.DynamicCall(f, args...), nil
	case "element":
		name, err := l.qname(v)
		if err != nil {
			return noExpr, err
		}
		var content []ExprID
		if m["content"] != nil {
			if content, err = l.exprs(m["content"]); err != nil {
				return noExpr, err
			}
		}
		return p.Element(name, content...), nil
	case "attribute":
		name, err := l.qname(v)
		if err != nil {
			return noExpr, err
		}
		value := p.Literal()
		if m["value"] != nil {
			if value, err = l.expr(m["value"]); err != nil {
				return noExpr, err
			}
		}
		return p.Attribute(name, value), nil
	case "text", "comment":
		x, err := l.expr(v)
		if err != nil {
			return noExpr, err
		}
		if head == "text" {
			return p.Text(x), nil
		}
		return p.Comment(x), nil
	case "error":
		code, err := l.scalar(v)
		if err != nil {
			return noExpr, err
		}
		var msg string
		if m["message"] != nil {
			if msg, err = l.scalar(m["message"]); err != nil {
				return noExpr, err
			}
		}
		return p.Fail(code, "%s", msg), nil
	case "flwor":
		return l.flwor(n, v, m["return"])
	}
	return noExpr, l.errorf(n, "unknown expression: %s", head)
}

func (l *loader) typedLiteral(kind string, n *yaml.Node) (ExprID, error) {
	s, err := l.scalar(n)
	if err != nil {
		return noExpr, err
	}
	var v Item
	switch kind {
	case "string":
		v = String(s)
	case "untyped":
		v = UntypedAtomic(s)
	case "decimal":
		v, err = ParseDecimal(s)
	case "dateTime":
		v, err = ParseDateTime(s)
	case "date":
		v, err = ParseDate(s)
	}
	if err != nil {
		return noExpr, locate(err, l.location(n))
	}
	return l.p.Literal(v), nil
}

// path reads [START, STEP...]; a string after the start is a step.
func (l *loader) path(n *yaml.Node) (ExprID, error) {
	if err := l.expectSequence(n); err != nil {
		return noExpr, err
	}
	if len(n.Content) < 2 {
		return noExpr, l.errorf(n, "path needs a start and a step")
	}
	id, err := l.expr(n.Content[0])
	if err != nil {
		return noExpr, err
	}
	for _, x := range n.Content[1:] {
		var step ExprID
		if x.Kind == yaml.ScalarNode && x.ShortTag() == "!!str" {
			step, err = l.step(x)
		} else {
			step, err = l.expr(x)
		}
		if err != nil {
			return noExpr, err
		}
		l.p.SetLocation(step, l.location(x))
		id = l.p.SetLocation(l.p.Path(id, step), l.location(x))
	}
	return id, nil
}

var axes = map[string]Axis{
	"child":      AxisChild,
	"attribute":  AxisAttribute,
	"descendant": AxisDescendant,
	"self":       AxisSelf,
	"parent":     AxisParent,
}

// step reads "axis::test", "@name", ".." or a name.
func (l *loader) step(n *yaml.Node) (ExprID, error) {
	s, err := l.scalar(n)
	if err != nil {
		return noExpr, err
	}
	axis, test := AxisChild, s
	switch {
	case s == "..":
		return l.p.Step(AxisParent, AnyNode), nil
	case strings.HasPrefix(s, "@"):
		axis, test = AxisAttribute, s[1:]
	case strings.Contains(s, "::"):
		name, rest, _ := strings.Cut(s, "::")
		var ok bool
		if axis, ok = axes[name]; !ok {
			return noExpr, l.errorf(n, "unknown axis: %s", name)
		}
		test = rest
	}
	var t NodeTest
	switch test {
	case "node()":
		t = AnyNode
	case "text()":
		t = TextTest
	case "comment()":
		t = NodeTest{Kind: KindComment}
	default:
		if test != "*" && !isNCName(test) {
			return noExpr, l.errorf(n, "invalid node test: %s", test)
		}
		if axis == AxisAttribute {
			t = AttributeTest(test)
		} else {
			t = ElementTest(test)
		}
	}
	return l.p.Step(axis, t), nil
}

// funcref reads "name#arity".
func (l *loader) funcref(n *yaml.Node) (ExprID, error) {
	s, err := l.scalar(n)
	if err != nil {
		return noExpr, err
	}
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return noExpr, l.errorf(n, "function reference needs an arity: %s", s)
	}
	arity, err := parseArity(s[i+1:])
	if err != nil {
		return noExpr, l.errorf(n, "invalid arity: %s", s)
	}
	name, err := l.qname(&yaml.Node{Kind: yaml.ScalarNode, Value: s[:i], Line: n.Line, Column: n.Column})
	if err != nil {
		return noExpr, err
	}
	return l.p.FuncRef(name, arity), nil
}

func parseArity(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty arity")
	}
	var n int
	for _, r := range s {
		if r < '0' || r > '9' || n > 1<<16 {
			return 0, errors.Errorf("invalid arity: %s", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// flwor reads the clauses of a FLWOR expression. The variables bound by a
// clause are in scope for the following clauses and the return expression.
func (l *loader) flwor(n, clauses, ret *yaml.Node) (ExprID, error) {
	if ret == nil {
		return noExpr, l.errorf(n, "FLWOR expression needs a return expression")
	}
	if err := l.expectSequence(clauses); err != nil {
		return noExpr, err
	}
	outer := l.env
	defer func() { l.env = outer }()
	var cs []Clause
	for _, cn := range clauses.Content {
		head, m, err := l.head(cn, clauseKeys)
		if err != nil {
			return noExpr, err
		}
		v := m[head]
		switch head {
		case "for":
			cl, err := l.forClause(cn, v, m)
			if err != nil {
				return noExpr, err
			}
			cs = append(cs, cl)
		case "let":
			cl, err := l.letClause(cn, v, m)
			if err != nil {
				return noExpr, err
			}
			cs = append(cs, cl)
		case "where":
			cond, err := l.expr(v)
			if err != nil {
				return noExpr, err
			}
			cs = append(cs, WhereClause{cond})
		case "count":
			name, err := l.scalar(v)
			if err != nil {
				return noExpr, err
			}
			cs = append(cs, CountClause{l.bind(name, SequenceType{TypeInteger, CardExactlyOne})})
		case "order-by":
			cl, err := l.orderBy(v)
			if err != nil {
				return noExpr, err
			}
			cs = append(cs, cl)
		case "group-by":
			cl, err := l.groupBy(cn, v, outer)
			if err != nil {
				return noExpr, err
			}
			cs = append(cs, cl)
		}
	}
	r, err := l.expr(ret)
	if err != nil {
		return noExpr, err
	}
	return l.p.FLWOR(r, cs...), nil
}

func (l *loader) forClause(n, v *yaml.Node, m map[string]*yaml.Node) (ForClause, error) {
	name, err := l.scalar(v)
	if err != nil {
		return ForClause{}, err
	}
	if m["in"] == nil {
		return ForClause{}, l.errorf(n, "for clause needs an in expression")
	}
	in, err := l.expr(m["in"])
	if err != nil {
		return ForClause{}, err
	}
	t := SequenceType{TypeItem, CardExactlyOne}
	if m["as"] != nil {
		if t, err = l.sequenceType(m["as"]); err != nil {
			return ForClause{}, err
		}
	}
	cl := ForClause{Var: l.bind(name, t), In: in}
	if m["at"] != nil {
		pos, err := l.scalar(m["at"])
		if err != nil {
			return ForClause{}, err
		}
		if pos == name {
			return ForClause{}, newStaticError("XQST0089", l.location(m["at"]), "positional variable $%s has the name of the bound variable", pos)
		}
		cl.Pos = l.bind(pos, SequenceType{TypeInteger, CardExactlyOne})
	}
	return cl, nil
}

func (l *loader) letClause(n, v *yaml.Node, m map[string]*yaml.Node) (LetClause, error) {
	name, err := l.scalar(v)
	if err != nil {
		return LetClause{}, err
	}
	if m["value"] == nil {
		return LetClause{}, l.errorf(n, "let clause needs a value")
	}
	value, err := l.expr(m["value"])
	if err != nil {
		return LetClause{}, err
	}
	t := AnySequence
	if m["as"] != nil {
		if t, err = l.sequenceType(m["as"]); err != nil {
			return LetClause{}, err
		}
	}
	return LetClause{Var: l.bind(name, t), Value: value}, nil
}

// orderBy reads a list of sort keys, each an expression or a mapping
// {key: EXPR, descending: true, empty: greatest, collation: URI}.
func (l *loader) orderBy(n *yaml.Node) (OrderByClause, error) {
	if err := l.expectSequence(n); err != nil {
		return OrderByClause{}, err
	}
	var cl OrderByClause
	for _, x := range n.Content {
		if !hasKey(x, "key") {
			key, err := l.expr(x)
			if err != nil {
				return OrderByClause{}, err
			}
			cl.Keys = append(cl.Keys, OrderSpec{Key: key})
			continue
		}
		m, err := l.fields(x, "key", "descending", "empty", "collation")
		if err != nil {
			return OrderByClause{}, err
		}
		key, err := l.expr(m["key"])
		if err != nil {
			return OrderByClause{}, err
		}
		spec := OrderSpec{Key: key}
		if d := m["descending"]; d != nil {
			if err := d.Decode(&spec.Descending); err != nil {
				return OrderByClause{}, l.errorf(d, "invalid boolean: %s", d.Value)
			}
		}
		if e := m["empty"]; e != nil {
			switch e.Value {
			case "greatest":
				spec.EmptyGreatest = true
			case "least":
			default:
				return OrderByClause{}, l.errorf(e, "empty order must be greatest or least: %s", e.Value)
			}
		}
		if c := m["collation"]; c != nil {
			if spec.Comparer, err = l.comparer(c); err != nil {
				return OrderByClause{}, err
			}
		}
		cl.Keys = append(cl.Keys, spec)
	}
	return cl, nil
}

func (l *loader) comparer(n *yaml.Node) (AtomicComparer, error) {
	uri, err := l.scalar(n)
	if err != nil {
		return nil, err
	}
	coll, err := ParseCollation(uri)
	if err != nil {
		return nil, locate(err, l.location(n))
	}
	return NewComparer(coll), nil
}

// groupBy reads a list of grouping specs, each the name of a variable in
// scope or a mapping {var: k, key: EXPR, collation: URI}. The other
// variables bound earlier in the FLWOR are rebound to the concatenation of
// their values over the tuples of each group.
func (l *loader) groupBy(n, specs *yaml.Node, outer *binding) (*GroupByClause, error) {
	if err := l.expectSequence(specs); err != nil {
		return nil, err
	}
	var names []string
	var keys []ExprID
	var comparers []AtomicComparer
	for _, x := range specs.Content {
		var name string
		var keyNode, collation *yaml.Node
		if x.Kind == yaml.ScalarNode {
			name = x.Value
		} else {
			m, err := l.fields(x, "var", "key", "collation")
			if err != nil {
				return nil, err
			}
			if m["var"] == nil {
				return nil, l.errorf(x, "grouping spec needs a variable")
			}
			if name, err = l.scalar(m["var"]); err != nil {
				return nil, err
			}
			keyNode, collation = m["key"], m["collation"]
		}
		var key ExprID
		if keyNode != nil {
			var err error
			if key, err = l.expr(keyNode); err != nil {
				return nil, err
			}
		} else {
			v := l.lookup(name)
			if v == nil {
				return nil, newStaticError("XQST0094", l.location(x), "grouping variable $%s is not in scope", name)
			}
			key = l.p.SetLocation(l.p.Ref(v), l.location(x))
		}
		var cmp AtomicComparer
		if collation != nil {
			var err error
			if cmp, err = l.comparer(collation); err != nil {
				return nil, err
			}
		}
		names = append(names, name)
		keys = append(keys, key)
		comparers = append(comparers, cmp)
	}
	var retained []ExprID
	var retainedNames []string
	seen := make(map[string]bool)
	for b := l.env; b != outer; b = b.next {
		if seen[b.name] || contains(names, b.name) {
			continue
		}
		seen[b.name] = true
		retainedNames = append(retainedNames, b.name)
		retained = append(retained, l.p.SetLocation(l.p.Ref(b.v), l.location(n)))
	}
	slices.Reverse(retainedNames)
	slices.Reverse(retained)
	l.env = outer
	var bindings []*Variable
	for _, name := range names {
		bindings = append(bindings, l.bind(name, SequenceType{TypeAnyAtomic, CardZeroOrOne}))
	}
	for _, name := range retainedNames {
		bindings = append(bindings, l.bind(name, AnySequence))
	}
	cl, err := NewGroupByClause(bindings, keys, retained, comparers)
	if err != nil {
		return nil, l.errorf(n, "%s", err)
	}
	return cl, nil
}
