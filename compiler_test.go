package goxq

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func explainString(t *testing.T, code *Code) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, Explain(&sb, code))
	return sb.String()
}

func TestCompileIdempotent(t *testing.T) {
	programs := map[string]string{
		"tail recursion":     sumProgram,
		"recursion":          depthProgram,
		"mutual recursion":   evenOddProgram,
		"group by":           groupProgram,
		"inlined":            inlineProgram,
		"function reference": funcrefProgram,
	}
	for name, program := range programs {
		t.Run(name, func(t *testing.T) {
			code := compileProgram(t, program)
			before := explainString(t, code)

			p := code.Program()
			p.frozen = false
			c := &compiler{
				p:          p,
				logger:     zap.NewNop(),
				maxDepth:   DefaultMaxCallDepth,
				inlineSize: defaultInlineThreshold,
				tz:         time.UTC,
				th:         DefaultTypeHierarchy,
				now:        time.Now,
			}
			c.analyze()
			c.typeCheckAll()
			c.analyze()
			c.optimizeAll()
			c.analyze()
			c.markTailCalls()
			require.NoError(t, c.errs.ErrorOrNil())
			p.freeze()

			assert.Equal(t, before, explainString(t, code))
		})
	}
}

const groupProgram = `
main:
  flwor:
    - for: b
      in: {path: [{context: null}, descendant::book]}
    - let: lang
      value: {call: string, args: [{path: [{var: b}, "@lang"]}]}
    - group-by: [lang]
    - order-by: [{var: lang}]
  return:
    element: group
    content:
      - {attribute: lang, value: {var: lang}}
      - {call: count, args: [{var: b}]}
`

const inlineProgram = `
functions:
  - name: local:inc
    params: [{name: n, type: xs:integer}]
    result: xs:integer
    body: {add: [{var: n}, 1]}
variables:
  - {name: x, type: xs:integer}
main:
  flwor:
    - let: y
      value: {call: local:inc, args: [{var: x}]}
      as: xs:integer
  return: {call: local:inc, args: [{var: y}]}
`

const funcrefProgram = `
functions:
  - name: local:twice
    params: [f, x]
    body: {dyncall: {var: f}, args: [{dyncall: {var: f}, args: [{var: x}]}]}
  - name: local:inc
    params: [n]
    body: {add: [{var: n}, 1]}
main:
  call: local:twice
  args: [{funcref: "local:inc#1"}, 40]
`

func TestCompileInline(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	code := compileProgram(t, inlineProgram, WithLogger(zap.New(core)))
	out := explainString(t, code)
	assert.NotContains(t, out, "call local:inc#1")
	assert.Equal(t, 2, logs.FilterMessage("inlined function call").Len())

	xs, err := Materialize(code.Run(nil, Singleton(Integer(40))))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(42)}, xs)
	assert.Equal(t, int64(0), code.Stats().Calls)

	code = compileProgram(t, inlineProgram, WithInlineThreshold(0))
	assert.Contains(t, explainString(t, code), "call local:inc#1 not-tail")
	xs, err = Materialize(code.Run(nil, Singleton(Integer(40))))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(42)}, xs)
	assert.Equal(t, int64(2), code.Stats().Calls)
}

func TestCompileFunctionReference(t *testing.T) {
	code := compileProgram(t, funcrefProgram)
	out := explainString(t, code)
	assert.Contains(t, out, "\nfunction reference local:inc#1\n")
	xs, err := Materialize(code.Run(nil))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(42)}, xs)
}

func TestCompileErrors(t *testing.T) {
	testCases := []struct {
		name    string
		program string
		errs    []string
	}{
		{
			name:    "unknown functions",
			program: "main:\n  - {call: undefined}\n  - {call: missing, args: [1]}",
			errs: []string{
				"XPST0017: unknown function undefined#0 at test.yaml:2",
				"XPST0017: unknown function missing#1 at test.yaml:3",
			},
		},
		{
			name:    "builtin with wrong arity",
			program: "main: {call: count}",
			errs:    []string{"XPST0017: unknown function count#0"},
		},
		{
			name:    "unknown function reference",
			program: `main: {funcref: "local:f#1"}`,
			errs:    []string{"XPST0017: unknown function local:f#1"},
		},
		{
			name: "argument of wrong type",
			program: `
functions:
  - name: local:f
    params: [{name: n, type: xs:integer}]
    body: {var: n}
main: {call: local:f, args: [a]}`,
			errs: []string{"XPTY0004: required item type of the argument 1 of local:f() is xs:integer; supplied value has item type xs:string"},
		},
		{
			name: "context item in function body",
			program: `
functions:
  - name: local:f
    body: {context: null}
main: {call: local:f}`,
			errs: []string{"XPDY0002: the context item is absent"},
		},
		{
			name:    "axis step on atomic value",
			program: `main: {path: [1, a]}`,
			errs:    []string{"XPTY0020: the context item for axis step"},
		},
		{
			name:    "invalid comment",
			program: `main: {comment: "a--b"}`,
			errs:    []string{"XQDY0072: invalid characters in comment content"},
		},
		{
			name:    "invalid QName",
			program: `main: {call: QName, args: ["", "a:b"]}`,
			errs:    []string{`FOCA0002: prefix "a" needs a namespace URI`},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := LoadProgram("test.yaml", strings.NewReader(tc.program))
			require.NoError(t, err)
			_, err = Compile(p)
			require.Error(t, err)
			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			require.Len(t, merr.Errors, len(tc.errs))
			for i, e := range merr.Errors {
				assert.Contains(t, e.Error(), tc.errs[i])
				var ge *Error
				require.True(t, errors.As(e, &ge))
				assert.True(t, ge.Static)
			}
		})
	}
}

func TestCompileTwice(t *testing.T) {
	p, err := LoadProgram("test.yaml", strings.NewReader("main: 1"))
	require.NoError(t, err)
	_, err = Compile(p)
	require.NoError(t, err)
	_, err = Compile(p)
	assert.EqualError(t, err, "XPST0003: program is already compiled")
}

func TestCompileResultCheck(t *testing.T) {
	code := compileProgram(t, `
variables: [x]
functions:
  - name: local:id
    params: [a]
    result: xs:integer
    body: {var: a}
main: {call: local:id, args: [{var: x}]}`, WithInlineThreshold(0))
	p := code.Program()
	fn := p.Function(QName{Space: namespaces["local"], Local: "id"}, 1)
	require.NotNil(t, fn)
	assert.Equal(t, noExpr, p.Parent(fn.Body))
	assert.Equal(t, SequenceType{TypeInteger, CardExactlyOne}, p.StaticType(fn.Body))

	testCases := []struct {
		name     string
		value    Sequence
		expected Extent
		err      string
	}{
		{"integer", Singleton(Integer(5)), Extent{Integer(5)}, ""},
		{"string", Singleton(String("x")), nil, "XPTY0004"},
		{"empty", Empty, nil, "XPTY0004"},
		{"two integers", Extent{Integer(1), Integer(2)}, nil, "XPTY0004"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			xs, err := Materialize(code.Run(nil, tc.value))
			if tc.err != "" {
				assert.ErrorIs(t, err, &Error{Code: tc.err})
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, xs)
		})
	}
}

func TestAnalyzeExternalReferences(t *testing.T) {
	p := NewProgram()
	x := p.DeclareVariable("x", AnySequence)
	fn, err := p.DeclareFunction(Name("f"), AnySequence, Param{"a", AnySequence})
	require.NoError(t, err)
	p.SetBody(fn, p.Seq(p.Ref(x), p.Ref(fn.Params[0])))
	p.SetMain(p.Seq(p.Ref(x), p.Ref(x)))

	c := &compiler{p: p, logger: zap.NewNop()}
	for range 2 {
		c.analyze()
		assert.Equal(t, 3, x.RefCount, "references from every root")
		assert.Equal(t, 1, fn.Params[0].RefCount)
	}
}

func TestCompileFunctionWithoutBody(t *testing.T) {
	p := NewProgram()
	_, err := p.DeclareFunction(Name("f"), AnySequence)
	require.NoError(t, err)
	_, err = p.DeclareFunction(Name("f"), AnySequence)
	assert.ErrorIs(t, err, &Error{Code: "XQST0034"})
	_, err = p.DeclareFunction(Name("g"), AnySequence, Param{"x", AnySequence}, Param{"x", AnySequence})
	assert.ErrorIs(t, err, &Error{Code: "XQST0039"})
	p.SetMain(p.Literal(Integer(1)))
	_, err = Compile(p)
	assert.ErrorIs(t, err, &Error{Code: "XPST0017"})
	assert.ErrorContains(t, err, "function f#0 has no body")
}

func TestCopy(t *testing.T) {
	p := NewProgram()
	x := p.DeclareVariable("x", SequenceType{TypeInteger, CardExactlyOne})
	orig := p.FLWOR(
		p.Arith(OpMul, p.Ref(x), p.Literal(Integer(2))),
		WhereClause{p.ValueCompare(OpGt, p.Ref(x), p.Literal(Integer(0)))},
	)
	cp := p.Copy(orig)
	assert.NotEqual(t, orig, cp)
	assert.Equal(t, p.describe(orig), p.describe(cp))
	assert.Equal(t, p.size(orig), p.size(cp))
	assert.Equal(t, ExprID(-1), p.Parent(cp))

	p.ReplaceChild(cp, 1, p.Literal(Integer(3)))
	assert.Equal(t, "var $x", p.describe(p.Children(p.Children(orig)[1])[0]))

	p.SetMain(p.Seq(orig, cp))
	code, err := Compile(p)
	require.NoError(t, err)
	xs, err := Materialize(code.Run(nil, Singleton(Integer(5))))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(10), Integer(3)}, xs)
}
