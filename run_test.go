package goxq

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileProgram loads and compiles a program written in YAML.
func compileProgram(t *testing.T, program string, options ...CompilerOption) *Code {
	t.Helper()
	p, err := LoadProgram("test.yaml", strings.NewReader(program))
	require.NoError(t, err)
	code, err := Compile(p, options...)
	require.NoError(t, err)
	return code
}

func parseInput(t *testing.T, input string) Item {
	t.Helper()
	if input == "" {
		return nil
	}
	n, err := ParseXML(strings.NewReader(input))
	require.NoError(t, err)
	return n
}

// serialize marshals the items of xs, separated by a space.
func serialize(t *testing.T, xs Extent) string {
	t.Helper()
	ss := make([]string, len(xs))
	for i, x := range xs {
		bs, err := Marshal(x)
		require.NoError(t, err)
		ss[i] = string(bs)
	}
	return strings.Join(ss, " ")
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name     string
		program  string
		input    string
		values   []Sequence
		expected string
		err      string
	}{
		{
			name:     "integer",
			program:  `main: 42`,
			expected: "42",
		},
		{
			name:     "empty sequence",
			program:  `main: null`,
			expected: "",
		},
		{
			name:     "sequence",
			program:  `main: [1, "a", true, 2.5]`,
			expected: "1 a true 2.5",
		},
		{
			name:     "nested sequence",
			program:  `main: [1, [2, [3]], []]`,
			expected: "1 2 3",
		},
		{
			name:     "addition",
			program:  `main: {add: [1, 2]}`,
			expected: "3",
		},
		{
			name:     "decimal division",
			program:  `main: {div: [7, 2]}`,
			expected: "3.5",
		},
		{
			name:     "integer division",
			program:  `main: {idiv: [7, 2]}`,
			expected: "3",
		},
		{
			name:     "division by zero",
			program:  `main: {idiv: [1, 0]}`,
			err:      "FOAR0001: division by zero",
		},
		{
			name:     "decimal literal",
			program:  `main: {add: [{decimal: "0.1"}, {decimal: "0.2"}]}`,
			expected: "0.3",
		},
		{
			name:     "range",
			program:  `main: {range: [1, 5]}`,
			expected: "1 2 3 4 5",
		},
		{
			name:     "empty range",
			program:  `main: {range: [5, 1]}`,
			expected: "",
		},
		{
			name:     "value comparison",
			program:  `main: [{lt: [1, 2]}, {eq: ["a", "b"]}]`,
			expected: "true false",
		},
		{
			name:     "value comparison of incomparable values",
			program:  `main: {eq: [1, "a"]}`,
			err:      "XPTY0004: cannot compare",
		},
		{
			name:     "general comparison",
			program:  `main: {"=": [[1, 2, 3], 3]}`,
			expected: "true",
		},
		{
			name:     "logical operators",
			program:  `main: [{and: [true, false]}, {or: [false, {lt: [1, 2]}]}]`,
			expected: "false true",
		},
		{
			name:     "conditional",
			program:  `main: {if: {call: empty, args: [{range: [1, 0]}]}, then: "none", else: "some"}`,
			expected: "none",
		},
		{
			name:     "child steps",
			program:  `main: {path: [{context: null}, a, b]}`,
			input:    `<a x="1"><b>t</b><c/><b>u</b></a>`,
			expected: "<b>t</b> <b>u</b>",
		},
		{
			name:     "attribute step",
			program:  `main: {call: string, args: [{path: [{context: null}, a, "@x"]}]}`,
			input:    `<a x="1"><b>t</b></a>`,
			expected: "1",
		},
		{
			name:     "descendant step",
			program:  `main: {call: count, args: [{path: [{context: null}, descendant::b]}]}`,
			input:    `<a><b><b/></b><c><b/></c></a>`,
			expected: "3",
		},
		{
			name:     "parent step",
			program:  `main: {path: [{context: null}, descendant::c, "..", "@id"]}`,
			input:    `<a id="top"><c/></a>`,
			expected: `id="top"`,
		},
		{
			name:     "text step",
			program:  `main: {path: [{context: null}, a, text()]}`,
			input:    `<a>x &amp; y</a>`,
			expected: "x &amp; y",
		},
		{
			name:     "context item absent",
			program:  `main: {context: null}`,
			err:      "XPDY0002: the context item is absent",
		},
		{
			name: "filter by position",
			program: `
main:
  filter: {range: [1, 10]}
  predicate: {eq: [{call: position}, 3]}`,
			expected: "3",
		},
		{
			name: "filter by last",
			program: `
main:
  filter: [a, b, c]
  predicate: {eq: [{call: position}, {call: last}]}`,
			expected: "c",
		},
		{
			name:     "count",
			program:  `main: {call: count, args: [{range: [1, 10]}]}`,
			expected: "10",
		},
		{
			name:     "sum",
			program:  `main: {call: sum, args: [{range: [1, 100]}]}`,
			expected: "5050",
		},
		{
			name:     "sum of empty sequence",
			program:  `main: {call: sum, args: [null]}`,
			expected: "0",
		},
		{
			name:     "string-join",
			program:  `main: {call: string-join, args: [[a, b, c], "-"]}`,
			expected: "a-b-c",
		},
		{
			name:     "concat",
			program:  `main: {call: "fn:concat", args: [a, 1, null, true]}`,
			expected: "a1true",
		},
		{
			name:     "distinct-values",
			program:  `main: {call: distinct-values, args: [[1, 2, 1, 3, 2.0]]}`,
			expected: "1 2 3",
		},
		{
			name:     "deep-equal",
			program:  `main: {call: deep-equal, args: [[1, a], [1.0, a]]}`,
			expected: "true",
		},
		{
			name:     "upper-case and string-length",
			program:  `main: [{call: upper-case, args: [abc]}, {call: string-length, args: ["日本語"]}]`,
			expected: "ABC 3",
		},
		{
			name:     "is-whole-number",
			program:  `main: [{call: "saxon:is-whole-number", args: [3.0]}, {call: "saxon:is-whole-number", args: [2.5]}]`,
			expected: "true false",
		},
		{
			name: "element constructor",
			program: `
main:
  element: item
  content:
    - {attribute: id, value: 1}
    - hello`,
			expected: `<item id="1">hello</item>`,
		},
		{
			name: "element constructor with atomic values",
			program: `
main:
  element: list
  content: [1, 2, {element: x}, 3]`,
			expected: `<list>1 2<x/>3</list>`,
		},
		{
			name:     "element constructor copies nodes",
			program:  `main: {element: copy, content: [{path: [{context: null}, a, b]}]}`,
			input:    `<a><b k="v">t</b></a>`,
			expected: `<copy><b k="v">t</b></copy>`,
		},
		{
			name:     "text and comment constructors",
			program:  `main: [{text: "a<b"}, {comment: note}]`,
			expected: "a&lt;b <!--note-->",
		},
		{
			name:     "error expression",
			program:  `main: {error: FOER0000, message: boom}`,
			err:      "FOER0000: boom",
		},
		{
			name:     "fn:error",
			program:  `main: {call: error, args: [{call: QName, args: ["http://example.com/", "ex:failed"]}, "it failed"]}`,
			err:      "failed: it failed",
		},
		{
			name: "let clause",
			program: `
main:
  flwor:
    - let: x
      value: 3
  return: {mul: [{var: x}, {var: x}]}`,
			expected: "9",
		},
		{
			name: "for clause with position, where, order by and count",
			program: `
main:
  flwor:
    - for: x
      at: i
      in: {range: [1, 5]}
    - where: {eq: [{mod: [{var: x}, 2]}, 1]}
    - order-by: [{key: {var: x}, descending: true}]
    - count: n
  return: {call: concat, args: [{var: n}, ":", {var: i}]}`,
			expected: "1:5 2:3 3:1",
		},
		{
			name: "order by with empty keys",
			program: `
main:
  flwor:
    - for: x
      in: {path: [{context: null}, a, b]}
    - order-by: [{key: {path: [{var: x}, "@k"]}, empty: greatest}]
  return: {call: string, args: [{var: x}]}`,
			input:    `<a><b>1</b><b k="b">2</b><b k="a">3</b></a>`,
			expected: "3 2 1",
		},
		{
			name: "order by is stable",
			program: `
main:
  flwor:
    - for: x
      in: {range: [1, 6]}
    - order-by: [{mod: [{var: x}, 2]}]
  return: {var: x}`,
			expected: "2 4 6 1 3 5",
		},
		{
			name: "for clause with declared type",
			program: `
main:
  flwor:
    - for: x
      in: [1, 2]
      as: xs:integer
  return: {add: [{var: x}, 1]}`,
			expected: "2 3",
		},
		{
			name: "for clause with wrong item type",
			program: `
main:
  flwor:
    - for: x
      in: {call: distinct-values, args: [[1, a]]}
      as: xs:integer
  return: {var: x}`,
			err: "XPTY0004",
		},
		{
			name: "user function",
			program: `
functions:
  - name: local:double
    params: [{name: n, type: xs:integer}]
    result: xs:integer
    body: {mul: [{var: n}, 2]}
main:
  call: local:double
  args: [21]`,
			expected: "42",
		},
		{
			name: "user function result check",
			program: `
functions:
  - name: local:one
    params: [n]
    result: xs:integer
    body: {range: [1, {var: n}]}
main:
  call: local:one
  args: [3]`,
			err: "XPTY0004",
		},
		{
			name: "function reference and dynamic call",
			program: `
functions:
  - name: local:double
    params: [n]
    body: {mul: [{var: n}, 2]}
main:
  dyncall: {funcref: "local:double#1"}
  args: [21]`,
			expected: "42",
		},
		{
			name: "function item serialization",
			program: `
functions:
  - name: local:f
    body: 1
main: {funcref: "local:f#0"}`,
			expected: "local:f#0",
		},
		{
			name: "dynamic call of a non-function",
			program: `
main:
  dyncall: 1
  args: []`,
			err: "XPTY0004",
		},
		{
			name: "dynamic call with wrong arity",
			program: `
functions:
  - name: local:f
    params: [x]
    body: {var: x}
main:
  dyncall: {funcref: "local:f#1"}
  args: [1, 2]`,
			err: "XPTY0004",
		},
		{
			name: "external variable",
			program: `
variables:
  - {name: x, type: xs:integer}
main: {add: [{var: x}, 1]}`,
			values:   []Sequence{Singleton(Integer(41))},
			expected: "42",
		},
		{
			name: "external variable of wrong type",
			program: `
variables:
  - {name: x, type: xs:integer}
main: {var: x}`,
			values: []Sequence{Singleton(String("a"))},
			err:    "XPTY0004: the value of $x does not match xs:integer",
		},
		{
			name: "external variable of wrong cardinality",
			program: `
variables:
  - {name: x, type: xs:integer}
main: {var: x}`,
			values: []Sequence{Extent{Integer(1), Integer(2)}},
			err:    "XPTY0004: the value of $x does not match xs:integer: 2 items",
		},
		{
			name: "missing external variable",
			program: `
variables:
  - {name: x, type: xs:integer}
main: {var: x}`,
			err: "XPDY0002: expected values for the external variables",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code := compileProgram(t, tc.program)
			xs, err := Materialize(code.Run(parseInput(t, tc.input), tc.values...))
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, serialize(t, xs))
		})
	}
}

func TestRunModes(t *testing.T) {
	programs := []string{
		`main: [1, {element: a, content: [{attribute: x, value: 2}, 3]}, {comment: c}]`,
		`
functions:
  - name: local:wrap
    params: [n]
    body:
      if: {eq: [{var: n}, 0]}
      then: {element: leaf}
      else: {element: node, content: [{call: local:wrap, args: [{sub: [{var: n}, 1]}]}]}
main: {call: local:wrap, args: [3]}`,
		`
main:
  flwor:
    - for: x
      in: {range: [1, 3]}
  return: {element: n, content: [{var: x}]}`,
	}
	for _, program := range programs {
		code := compileProgram(t, program)
		pulled, err := Materialize(code.Run(nil))
		require.NoError(t, err)
		out := NewSequenceOutputter()
		require.NoError(t, code.Process(context.Background(), nil, out))
		assert.Equal(t, serialize(t, pulled), serialize(t, out.Items()))
		collected := NewSequenceOutputter()
		require.NoError(t, PushEvents(code.Events(context.Background(), nil), collected))
		assert.Equal(t, serialize(t, pulled), serialize(t, collected.Items()))
	}
}

func TestRunCanceled(t *testing.T) {
	code := compileProgram(t, `
functions:
  - name: local:loop
    params: [n]
    body: {call: local:loop, args: [{add: [{var: n}, 1]}]}
main: {call: local:loop, args: [0]}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Materialize(code.RunWithContext(ctx, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallFunction(t *testing.T) {
	code := compileProgram(t, `
functions:
  - name: local:add
    params: [{name: x, type: xs:integer}, {name: y, type: xs:integer}]
    body: {add: [{var: x}, {var: y}]}`)
	name := QName{Prefix: "local", Space: "http://www.w3.org/2005/xquery-local-functions", Local: "add"}
	xs, err := code.CallFunction(context.Background(), name, Singleton(Integer(1)), Singleton(Integer(2)))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(3)}, xs)

	_, err = code.CallFunction(context.Background(), name, Singleton(String("1")), Singleton(Integer(2)))
	assert.ErrorIs(t, err, &Error{Code: "XPTY0004"})

	_, err = code.CallFunction(context.Background(), Name("missing"))
	assert.ErrorIs(t, err, &Error{Code: "XPST0017"})
}

func TestEvaluateAll(t *testing.T) {
	code := compileProgram(t, `main: {call: string, args: [{path: [{context: null}, a, "@n"]}]}`)
	var items []Item
	for _, s := range []string{"1", "2", "3", "4"} {
		items = append(items, parseInput(t, `<a n="`+s+`"/>`))
	}
	results, err := code.EvaluateAll(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, xs := range results {
		assert.Equal(t, Extent{String(rune('1' + i))}, xs)
	}

	_, err = code.EvaluateAll(context.Background(), []Item{items[0], nil})
	assert.ErrorIs(t, err, &Error{Code: "XPDY0002"})
}
