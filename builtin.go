package goxq

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namespaces of the builtin functions.
const (
	FunctionNamespace = "http://www.w3.org/2005/xpath-functions"
	SaxonNamespace    = "http://saxon.sf.net/"
)

type builtinFunc struct {
	name   string
	space  string
	min    int
	max    int // -1 for variadic
	params []SequenceType
	result SequenceType
	deps   Dependency
	// focus is set when the function reads the context item without
	// arguments.
	focus bool
	call  func(p *Program, c *Context, args []ExprID) (Sequence, error)
}

func (b *builtinFunc) param(i int) SequenceType {
	if i < len(b.params) {
		return b.params[i]
	}
	return b.params[len(b.params)-1]
}

func (b *builtinFunc) accepts(arity int) bool {
	return b.min <= arity && (b.max < 0 || arity <= b.max)
}

var (
	anyItems      = AnySequence
	anyAtomics    = SequenceType{TypeAnyAtomic, CardZeroOrMore}
	optAtomic     = SequenceType{TypeAnyAtomic, CardZeroOrOne}
	optString     = SequenceType{TypeString, CardZeroOrOne}
	oneString     = SequenceType{TypeString, CardExactlyOne}
	oneBoolean    = SequenceType{TypeBoolean, CardExactlyOne}
	oneInteger    = SequenceType{TypeInteger, CardExactlyOne}
	optItem       = SequenceType{TypeItem, CardZeroOrOne}
	stringsType   = SequenceType{TypeString, CardZeroOrMore}
	optNumeric    = SequenceType{TypeNumeric, CardZeroOrOne}
	oneQName      = SequenceType{TypeQName, CardExactlyOne}
	oneDateTime   = SequenceType{TypeDateTime, CardExactlyOne}
	emptySequence = EmptySequenceType
)

var internalFuncs map[string]*builtinFunc

func init() {
	internalFuncs = make(map[string]*builtinFunc)
	for _, b := range []*builtinFunc{
		{name: "count", min: 1, max: 1, params: []SequenceType{anyItems}, result: oneInteger, call: funcCount},
		{name: "sum", min: 1, max: 2, params: []SequenceType{anyAtomics, optAtomic}, result: optAtomic, call: funcSum},
		{name: "empty", min: 1, max: 1, params: []SequenceType{anyItems}, result: oneBoolean, call: funcEmpty},
		{name: "exists", min: 1, max: 1, params: []SequenceType{anyItems}, result: oneBoolean, call: funcExists},
		{name: "not", min: 1, max: 1, params: []SequenceType{anyItems}, result: oneBoolean, call: funcNot},
		{name: "boolean", min: 1, max: 1, params: []SequenceType{anyItems}, result: oneBoolean, call: funcBoolean},
		{name: "string", min: 0, max: 1, params: []SequenceType{optItem}, result: oneString, focus: true, call: funcString},
		{name: "data", min: 0, max: 1, params: []SequenceType{anyItems}, result: anyAtomics, focus: true, call: funcData},
		{name: "concat", min: 2, max: -1, params: []SequenceType{optAtomic}, result: oneString, call: funcConcat},
		{name: "string-join", min: 1, max: 2, params: []SequenceType{stringsType, oneString}, result: oneString, call: funcStringJoin},
		{name: "string-length", min: 0, max: 1, params: []SequenceType{optString}, result: oneInteger, focus: true, call: funcStringLength},
		{name: "upper-case", min: 1, max: 1, params: []SequenceType{optString}, result: oneString, call: funcUpperCase},
		{name: "distinct-values", min: 1, max: 2, params: []SequenceType{anyAtomics, oneString}, result: anyAtomics, call: funcDistinctValues},
		{name: "deep-equal", min: 2, max: 3, params: []SequenceType{anyItems, anyItems, oneString}, result: oneBoolean, call: funcDeepEqual},
		{name: "position", min: 0, max: 0, result: oneInteger, deps: DepPosition, call: funcPosition},
		{name: "last", min: 0, max: 0, result: oneInteger, deps: DepPosition, call: funcLast},
		{name: "error", min: 0, max: 3, params: []SequenceType{optAtomic, oneString, anyItems}, result: emptySequence, call: funcError},
		{name: "QName", min: 2, max: 2, params: []SequenceType{optString, oneString}, result: oneQName, call: funcQName},
		{name: "current-dateTime", min: 0, max: 0, result: oneDateTime, deps: DepCurrentDateTime, call: funcCurrentDateTime},
		{name: "is-whole-number", space: SaxonNamespace, min: 1, max: 1, params: []SequenceType{optNumeric}, result: oneBoolean, call: funcIsWholeNumber},
	} {
		if b.space == "" {
			b.space = FunctionNamespace
		}
		internalFuncs[b.space+"}"+b.name] = b
	}
}

// lookupBuiltin finds a builtin function; names without a namespace are
// looked up in the function namespace.
func lookupBuiltin(name QName) *builtinFunc {
	space := name.Space
	if space == "" {
		space = FunctionNamespace
	}
	return internalFuncs[space+"}"+name.Local]
}

func funcCount(p *Program, c *Context, args []ExprID) (Sequence, error) {
	iter, err := p.iterate(c, args[0])
	if err != nil {
		return nil, err
	}
	var n int64
	for {
		v, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return Singleton(Integer(n)), nil
		}
		n++
	}
}

func funcSum(p *Program, c *Context, args []ExprID) (Sequence, error) {
	xs, err := p.evaluate(c, args[0])
	if err != nil {
		return nil, err
	}
	vs, err := Atomize(xs)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		if len(args) > 1 {
			return p.evaluate(c, args[1])
		}
		return Singleton(Integer(0)), nil
	}
	var acc Atomic
	for _, v := range vs {
		if _, ok := v.(UntypedAtomic); ok {
			if v, err = toDouble(v); err != nil {
				return nil, err
			}
		}
		if !IsNumeric(v) {
			return nil, newTypeError("FORG0006", "sum is not defined for %s", typeErrorPreview(v))
		}
		if acc == nil {
			acc = v
			continue
		}
		if acc, err = funcOpAdd(acc, v); err != nil {
			return nil, err
		}
	}
	return Singleton(acc), nil
}

func funcEmpty(p *Program, c *Context, args []ExprID) (Sequence, error) {
	b, err := p.isEmpty(c, args[0])
	return Singleton(Boolean(b)), err
}

func funcExists(p *Program, c *Context, args []ExprID) (Sequence, error) {
	b, err := p.isEmpty(c, args[0])
	return Singleton(Boolean(!b)), err
}

func (p *Program) isEmpty(c *Context, id ExprID) (bool, error) {
	iter, err := p.iterate(c, id)
	if err != nil {
		return false, err
	}
	v, err := iter.Next()
	return v == nil, err
}

func funcNot(p *Program, c *Context, args []ExprID) (Sequence, error) {
	b, err := p.effectiveBooleanValue(c, args[0])
	return Singleton(Boolean(!b)), err
}

func funcBoolean(p *Program, c *Context, args []ExprID) (Sequence, error) {
	b, err := p.effectiveBooleanValue(c, args[0])
	return Singleton(Boolean(b)), err
}

// focusArg returns the argument, or the context item when there is none.
func (p *Program) focusArg(c *Context, args []ExprID) (Extent, error) {
	if len(args) == 0 {
		v, err := c.contextItem()
		if err != nil {
			return nil, err
		}
		return Singleton(v), nil
	}
	return p.evaluate(c, args[0])
}

func funcString(p *Program, c *Context, args []ExprID) (Sequence, error) {
	xs, err := p.focusArg(c, args)
	if err != nil {
		return nil, err
	}
	switch len(xs) {
	case 0:
		return Singleton(String("")), nil
	case 1:
		if f, ok := xs[0].(*FunctionItem); ok {
			return nil, newTypeError("FOTY0014", "cannot take the string value of a function item: %s", f.StringValue())
		}
		return Singleton(String(xs[0].StringValue())), nil
	default:
		return nil, newTypeError("XPTY0004", "a sequence of more than one item is not allowed as the first argument of string()")
	}
}

func funcData(p *Program, c *Context, args []ExprID) (Sequence, error) {
	xs, err := p.focusArg(c, args)
	if err != nil {
		return nil, err
	}
	vs, err := Atomize(xs)
	if err != nil {
		return nil, err
	}
	ys := make(Extent, len(vs))
	for i, v := range vs {
		ys[i] = v
	}
	return ys, nil
}

// stringArg returns the string value of an optional atomic argument.
func (p *Program) stringArg(c *Context, id ExprID, role string) (string, error) {
	v, err := p.evaluateAtomic(c, id, role)
	if err != nil || v == nil {
		return "", err
	}
	return v.StringValue(), nil
}

func funcConcat(p *Program, c *Context, args []ExprID) (Sequence, error) {
	var sb strings.Builder
	for _, a := range args {
		s, err := p.stringArg(c, a, "argument of concat()")
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	return Singleton(String(sb.String())), nil
}

func funcStringJoin(p *Program, c *Context, args []ExprID) (Sequence, error) {
	xs, err := p.evaluate(c, args[0])
	if err != nil {
		return nil, err
	}
	vs, err := Atomize(xs)
	if err != nil {
		return nil, err
	}
	var sep string
	if len(args) > 1 {
		if sep, err = p.stringArg(c, args[1], "separator of string-join()"); err != nil {
			return nil, err
		}
	}
	ss := make([]string, len(vs))
	for i, v := range vs {
		ss[i] = v.StringValue()
	}
	return Singleton(String(strings.Join(ss, sep))), nil
}

func funcStringLength(p *Program, c *Context, args []ExprID) (Sequence, error) {
	var s string
	if len(args) == 0 {
		v, err := c.contextItem()
		if err != nil {
			return nil, err
		}
		s = v.StringValue()
	} else {
		var err error
		if s, err = p.stringArg(c, args[0], "first argument of string-length()"); err != nil {
			return nil, err
		}
	}
	return Singleton(Integer(utf8.RuneCountInString(s))), nil
}

func funcUpperCase(p *Program, c *Context, args []ExprID) (Sequence, error) {
	s, err := p.stringArg(c, args[0], "first argument of upper-case()")
	if err != nil {
		return nil, err
	}
	return Singleton(String(strings.ToUpper(s))), nil
}

// comparerArg returns the comparer for an optional collation argument.
func (p *Program) comparerArg(c *Context, args []ExprID, i int) (AtomicComparer, error) {
	if len(args) <= i {
		return c.ctl.comparer, nil
	}
	uri, err := p.stringArg(c, args[i], "collation")
	if err != nil {
		return nil, err
	}
	coll, err := ParseCollation(uri)
	if err != nil {
		return nil, err
	}
	return NewComparer(coll), nil
}

func funcDistinctValues(p *Program, c *Context, args []ExprID) (Sequence, error) {
	xs, err := p.evaluate(c, args[0])
	if err != nil {
		return nil, err
	}
	vs, err := Atomize(xs)
	if err != nil {
		return nil, err
	}
	cmp, err := p.comparerArg(c, args, 1)
	if err != nil {
		return nil, err
	}
	seen := make(map[ComparisonKey]struct{}, len(vs))
	var ys Extent
	for _, v := range vs {
		k, err := cmp.ComparisonKey(v, c.ctl.tz)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ys = append(ys, v)
	}
	return ys, nil
}

func funcDeepEqual(p *Program, c *Context, args []ExprID) (Sequence, error) {
	xs, err := p.evaluate(c, args[0])
	if err != nil {
		return nil, err
	}
	ys, err := p.evaluate(c, args[1])
	if err != nil {
		return nil, err
	}
	cmp, err := p.comparerArg(c, args, 2)
	if err != nil {
		return nil, err
	}
	b, err := DeepEqual(xs, ys, cmp, c.ctl.tz)
	if err != nil {
		return nil, err
	}
	return Singleton(Boolean(b)), nil
}

func funcPosition(_ *Program, c *Context, _ []ExprID) (Sequence, error) {
	if c.pos == 0 {
		return nil, newDynamicError("XPDY0002", "the context position is absent")
	}
	return Singleton(Integer(c.pos)), nil
}

func funcLast(_ *Program, c *Context, _ []ExprID) (Sequence, error) {
	if c.pos == 0 {
		return nil, newDynamicError("XPDY0002", "the context size is absent")
	}
	return Singleton(Integer(c.size)), nil
}

func funcError(p *Program, c *Context, args []ExprID) (Sequence, error) {
	code, message := "FOER0000", "error() called"
	if len(args) > 0 {
		v, err := p.evaluateAtomic(c, args[0], "error code")
		if err != nil {
			return nil, err
		}
		switch v := v.(type) {
		case QName:
			code = v.Local
		case nil:
		default:
			code = v.StringValue()
		}
	}
	if len(args) > 1 {
		s, err := p.stringArg(c, args[1], "error description")
		if err != nil {
			return nil, err
		}
		message = s
	}
	if len(args) > 2 {
		xs, err := p.evaluate(c, args[2])
		if err != nil {
			return nil, err
		}
		if len(xs) > 0 {
			message += ": " + preview(xs[0])
		}
	}
	return nil, &Error{Code: code, Message: message, Snapshot: c.snapshotOf()}
}

func funcQName(p *Program, c *Context, args []ExprID) (Sequence, error) {
	uri, err := p.stringArg(c, args[0], "first argument of QName()")
	if err != nil {
		return nil, err
	}
	lexical, err := p.stringArg(c, args[1], "second argument of QName()")
	if err != nil {
		return nil, err
	}
	q, err := makeQName(uri, lexical)
	if err != nil {
		return nil, err
	}
	return Singleton(q), nil
}

// makeQName builds the QName for a namespace URI and a lexical name with an
// optional prefix.
func makeQName(uri, lexical string) (QName, error) {
	prefix, local, ok := strings.Cut(lexical, ":")
	if !ok {
		prefix, local = "", lexical
	}
	if !isNCName(local) || ok && !isNCName(prefix) {
		return QName{}, newDynamicError("FOCA0002", "invalid lexical QName: %q", lexical)
	}
	if prefix != "" && uri == "" {
		return QName{}, newDynamicError("FOCA0002", "prefix %q needs a namespace URI", prefix)
	}
	return QName{Prefix: prefix, Space: uri, Local: local}, nil
}

func isNCName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)):
		default:
			return false
		}
	}
	return true
}

func funcCurrentDateTime(_ *Program, c *Context, _ []ExprID) (Sequence, error) {
	return Singleton(c.ctl.now), nil
}

func funcIsWholeNumber(p *Program, c *Context, args []ExprID) (Sequence, error) {
	v, err := p.evaluateAtomic(c, args[0], "first argument of is-whole-number()")
	if err != nil {
		return nil, err
	}
	return Singleton(Boolean(isWholeNumber(v))), nil
}

func isWholeNumber(v Atomic) bool {
	switch v := v.(type) {
	case Integer:
		return true
	case Decimal:
		return v.Rat().IsInt()
	case Double:
		f := float64(v)
		return !math.IsInf(f, 0) && f == math.Trunc(f)
	case UntypedAtomic:
		f, err := toDouble(v)
		return err == nil && isWholeNumber(f)
	default:
		return false
	}
}
