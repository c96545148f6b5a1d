package goxq

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProgramErrors(t *testing.T) {
	testCases := []struct {
		name    string
		program string
		err     string
	}{
		{
			name:    "empty program",
			program: "",
			err:     "test.yaml: empty program",
		},
		{
			name:    "malformed yaml",
			program: "main: [1, 2",
			err:     "parse test.yaml: ",
		},
		{
			name:    "unexpected top-level key",
			program: "mian: 1",
			err:     "XPST0003: unexpected key: mian at test.yaml:1:1",
		},
		{
			name:    "unknown expression",
			program: "main: {foo: 1}",
			err:     "XPST0003: unknown expression at test.yaml:1:7",
		},
		{
			name:    "unexpected key of expression",
			program: "main: {add: [1, 2], foo: 1}",
			err:     "XPST0003: unexpected key: foo at test.yaml:1:21",
		},
		{
			name:    "missing operand",
			program: "main: {add: [1]}",
			err:     "XPST0003: expected two operands at test.yaml:1:13",
		},
		{
			name:    "undefined variable",
			program: "main: {var: x}",
			err:     "XPST0008: undefined variable $x at test.yaml:1:13",
		},
		{
			name:    "unknown prefix",
			program: "main: {call: foo:bar}",
			err:     "XPST0081: unknown namespace prefix: foo at test.yaml:1:14",
		},
		{
			name:    "unknown type",
			program: "variables: [{name: x, type: xs:foo}]",
			err:     "XPST0051: unknown type: xs:foo at test.yaml:1:29",
		},
		{
			name:    "function without body",
			program: "functions: [{name: local:f}]",
			err:     "XPST0003: function declaration needs a name and a body at test.yaml:1:13",
		},
		{
			name:    "function reference without arity",
			program: "main: {funcref: local:f}",
			err:     "XPST0003: function reference needs an arity: local:f at test.yaml:1:17",
		},
		{
			name: "positional variable with the bound name",
			program: `main:
  flwor:
    - for: x
      at: x
      in: [1]
  return: 1`,
			err: "XQST0089: positional variable $x has the name of the bound variable at test.yaml:4:11",
		},
		{
			name: "grouping variable out of scope",
			program: `main:
  flwor:
    - for: x
      in: [1]
    - group-by: [y]
  return: 1`,
			err: "XQST0094: grouping variable $y is not in scope at test.yaml:5:18",
		},
		{
			name: "variable of a returned FLWOR",
			program: `main:
  - flwor:
      - let: x
        value: 1
    return: {var: x}
  - {var: x}`,
			err: "XPST0008: undefined variable $x at test.yaml:6:11",
		},
		{
			name:    "unsupported collation",
			program: "main: {flwor: [{for: x, in: [a]}, {order-by: [{key: {var: x}, collation: urn:x}]}], return: 1}",
			err:     "FOCH0002: unsupported collation: urn:x",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadProgram("test.yaml", strings.NewReader(tc.program))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestLoadProgramLocations(t *testing.T) {
	p, err := LoadProgram("test.yaml", strings.NewReader(`variables: [x]
main:
  add:
    - 1
    - {var: x}
`))
	require.NoError(t, err)
	main := p.Main()
	assert.Equal(t, Location{"test.yaml", 3, 3}, p.Location(main))
	args := p.Children(main)
	require.Len(t, args, 2)
	assert.Equal(t, Location{"test.yaml", 4, 7}, p.Location(args[0]))
	assert.Equal(t, Location{"test.yaml", 5, 7}, p.Location(args[1]))
	require.Len(t, p.Externals(), 1)
	assert.Equal(t, "x", p.Externals()[0].Name)
}

func TestLoadProgramNames(t *testing.T) {
	p, err := LoadProgram("test.yaml", strings.NewReader(`
functions:
  - name: local:f
    body: 1
  - name: "Q{urn:x}g"
    params: [a, {name: b, type: "xs:string?"}]
    result: xs:string*
    body: {var: b}
main: {call: "Q{http://www.w3.org/2005/xquery-local-functions}f"}`))
	require.NoError(t, err)
	f := p.Function(QName{Space: namespaces["local"], Local: "f"}, 0)
	require.NotNil(t, f)
	g := p.Function(QName{Space: "urn:x", Local: "g"}, 2)
	require.NotNil(t, g)
	assert.Equal(t, SequenceType{TypeString, CardZeroOrMore}, g.ResultType)
	require.Len(t, g.Params, 2)
	assert.Equal(t, AnySequence, g.Params[0].Type)
	assert.Equal(t, SequenceType{TypeString, CardZeroOrOne}, g.Params[1].Type)

	code, err := Compile(p)
	require.NoError(t, err)
	xs, err := Materialize(code.Run(nil))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(1)}, xs)

	xs, err = code.CallFunction(context.Background(), QName{Space: "urn:x", Local: "g"}, Singleton(Integer(1)), Singleton(String("s")))
	require.NoError(t, err)
	assert.Equal(t, Extent{String("s")}, xs)
	_, err = code.CallFunction(context.Background(), QName{Space: "urn:x", Local: "g"}, Empty, Singleton(Integer(1)))
	assert.ErrorIs(t, err, &Error{Code: "XPTY0004"})
}
