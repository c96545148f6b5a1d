package goxq

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const booksInput = `<library>
  <book lang="en" title="Go"/>
  <book lang="ja" title="XML"/>
  <book lang="en" title="YAML"/>
  <book title="None"/>
</library>`

func TestGroupBy(t *testing.T) {
	testCases := []struct {
		name     string
		program  string
		input    string
		expected string
		err      string
	}{
		{
			name: "groups in first-seen order",
			program: `
main:
  flwor:
    - for: b
      in: {path: [{context: null}, descendant::book]}
    - let: lang
      value: {path: [{var: b}, "@lang"]}
    - group-by: [lang]
  return:
    element: group
    content:
      - {attribute: lang, value: {var: lang}}
      - {call: string-join, args: [{path: [{var: b}, "@title"]}, ","]}`,
			input:    booksInput,
			expected: `<group lang="en">Go,YAML</group> <group lang="ja">XML</group> <group lang="">None</group>`,
		},
		{
			name: "retained values in tuple order",
			program: `
main:
  flwor:
    - for: x
      in: [c, a, b, a, c]
    - let: k
      value: {eq: [{var: x}, a]}
    - group-by: [k]
  return: {call: concat, args: [{var: k}, ":", {call: string-join, args: [{var: x}, " "]}]}`,
			expected: "false:c b c true:a a",
		},
		{
			name: "numeric keys compare by value",
			program: `
main:
  flwor:
    - for: x
      in: [1, 1.0, 2, {decimal: "2.0"}, 3]
    - group-by: [{var: k, key: {var: x}}]
  return: {call: count, args: [{var: x}]}`,
			expected: "2 2 1",
		},
		{
			name: "key with collation",
			program: `
main:
  flwor:
    - for: x
      in: [a, A, b]
    - group-by:
        - var: k
          key: {var: x}
          collation: "http://www.w3.org/2013/collation/UCA?strength=primary"
  return: {call: string-join, args: [{var: x}, ""]}`,
			expected: "aA b",
		},
		{
			name: "two keys",
			program: `
main:
  flwor:
    - for: x
      in: {range: [1, 8]}
    - let: m2
      value: {mod: [{var: x}, 2]}
    - let: m3
      value: {lt: [{var: x}, 5]}
    - group-by: [m2, m3]
  return: {call: count, args: [{var: x}]}`,
			expected: "2 2 2 2",
		},
		{
			name: "count after group by",
			program: `
main:
  flwor:
    - for: x
      in: [a, b, a]
    - group-by: [{var: k, key: {var: x}}]
    - count: n
  return: {call: concat, args: [{var: n}, {var: k}]}`,
			expected: "1a 2b",
		},
		{
			name: "empty input",
			program: `
main:
  flwor:
    - for: b
      in: {path: [{context: null}, descendant::missing]}
    - group-by: [{var: k, key: {var: b}}]
  return: {var: k}`,
			input:    booksInput,
			expected: "",
		},
		{
			name: "key of more than one item",
			program: `
main:
  flwor:
    - for: x
      in: [1, 2]
    - let: k
      value: [{var: x}, {var: x}]
    - group-by: [k]
  return: {var: k}`,
			err: "XPTY0004: grouping key value cannot be a sequence of more than one item",
		},
		{
			name: "key atomizes to more than one item",
			program: `
main:
  flwor:
    - for: b
      in: {path: [{context: null}, library]}
    - group-by: [{var: k, key: {path: [{var: b}, book, "@title"]}}]
  return: {var: k}`,
			input: booksInput,
			err:   "XPTY0004",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code := compileProgram(t, tc.program)
			input := parseInput(t, tc.input)

			pulled, pullErr := drainIter(code.Run(input))
			out := NewSequenceOutputter()
			pushErr := code.Process(context.Background(), input, out)
			if tc.err != "" {
				require.Error(t, pullErr)
				require.Error(t, pushErr)
				assert.Contains(t, pullErr.Error(), tc.err)
				assert.Contains(t, pushErr.Error(), tc.err)
				assert.Empty(t, pulled, "no group is emitted")
				assert.Empty(t, out.Items(), "no group is emitted")
				return
			}
			require.NoError(t, pullErr)
			require.NoError(t, pushErr)
			assert.Equal(t, tc.expected, serialize(t, pulled))
			assert.Equal(t, tc.expected, serialize(t, out.Items()))
		})
	}
}

func TestGroupByStats(t *testing.T) {
	code := compileProgram(t, `
main:
  flwor:
    - for: x
      in: {range: [1, 10]}
    - group-by: [{var: k, key: {mod: [{var: x}, 3]}}]
  return: {var: k}`)
	xs, err := Materialize(code.Run(nil))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(1), Integer(2), Integer(0)}, xs)
	require.NoError(t, code.Process(context.Background(), nil, NewSequenceOutputter()))
	assert.Equal(t, int64(6), code.Stats().Groups)
}

func TestGroupByPullClose(t *testing.T) {
	code := compileProgram(t, `
main:
  flwor:
    - for: x
      in: {range: [1, 100]}
    - group-by: [{var: k, key: {var: x}}]
  return: {var: k}`)
	iter := code.Run(nil)
	v, err := iter.Next()
	require.NoError(t, err)
	assert.Equal(t, Integer(1), v)

	s := &groupByPull{base: &singletonPull{}, table: newGroupTable(), drained: true}
	s.Close()
	s.Close()
	ok, err := s.Next(nil)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestNewGroupByClause(t *testing.T) {
	p := NewProgram()
	scope := p.Scope()
	k := scope.Declare("k", SequenceType{TypeAnyAtomic, CardZeroOrOne})
	r := scope.Declare("r", AnySequence)
	key, retained := p.Literal(Integer(1)), p.Literal(String("a"))

	cl, err := NewGroupByClause([]*Variable{k, r}, []ExprID{key}, []ExprID{retained}, nil)
	require.NoError(t, err)
	assert.Len(t, cl.comparers, 1)

	_, err = NewGroupByClause(nil, nil, nil, nil)
	assert.EqualError(t, err, "group by clause without grouping keys")

	_, err = NewGroupByClause([]*Variable{k}, []ExprID{key}, []ExprID{retained}, nil)
	assert.EqualError(t, err, "group by clause binds a variable for each key and retained expression")

	_, err = NewGroupByClause([]*Variable{k, r}, []ExprID{key}, []ExprID{retained}, []AtomicComparer{nil, nil})
	assert.EqualError(t, err, "group by clause needs a comparer for each key")
}

func TestTupleComparisonKey(t *testing.T) {
	codepoint := NewComparer(nil)
	comparers := []AtomicComparer{codepoint, codepoint}
	key := func(xs ...Sequence) *TupleComparisonKey {
		return NewTupleComparisonKey(xs, comparers[:len(xs)], time.UTC)
	}
	testCases := []struct {
		name  string
		x, y  *TupleComparisonKey
		equal bool
	}{
		{"same integers", key(Singleton(Integer(1))), key(Singleton(Integer(1))), true},
		{"integer and double", key(Singleton(Integer(1))), key(Singleton(Double(1))), true},
		{"integer and decimal", key(Singleton(Integer(2))), key(Singleton(mustDecimal(t, "2.0"))), true},
		{"string and untyped", key(Singleton(String("a"))), key(Singleton(UntypedAtomic("a"))), true},
		{"NaN", key(Singleton(Double(math.NaN()))), key(Singleton(Double(math.NaN()))), true},
		{"empty keys", key(Empty), key(Empty), true},
		{"two values", key(Singleton(Integer(1)), Singleton(String("a"))), key(Singleton(Integer(1)), Singleton(String("a"))), true},
		{"different integers", key(Singleton(Integer(1))), key(Singleton(Integer(2))), false},
		{"integer and string", key(Singleton(Integer(1))), key(Singleton(String("1"))), false},
		{"empty and value", key(Empty), key(Singleton(String(""))), false},
		{"second value differs", key(Singleton(Integer(1)), Singleton(String("a"))), key(Singleton(Integer(1)), Singleton(String("b"))), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.equal, tc.x.Equal(tc.y))
			assert.Equal(t, tc.equal, tc.y.Equal(tc.x))
			if tc.equal {
				assert.Equal(t, tc.x.Hash(), tc.y.Hash())
			}
		})
	}
}

// drainIter reads iter to its end or its first error, keeping the items
// read before the error.
func drainIter(iter Iter) (Extent, error) {
	var xs Extent
	for {
		v, err := iter.Next()
		if err != nil || v == nil {
			return xs, err
		}
		xs = append(xs, v)
	}
}

func mustDecimal(t *testing.T, s string) Decimal {
	t.Helper()
	d, err := ParseDecimal(s)
	require.NoError(t, err)
	return d
}

// keylessComparer compares like the default comparer but has no comparison
// keys.
type keylessComparer struct {
	*GenericComparer
}

func (keylessComparer) ComparisonKey(Atomic, *time.Location) (ComparisonKey, error) {
	return ComparisonKey{}, errors.New("no comparison key")
}

func TestTupleComparisonKeyHashSkipsFailures(t *testing.T) {
	comparers := []AtomicComparer{keylessComparer{NewComparer(nil)}, NewComparer(nil)}
	x := NewTupleComparisonKey([]Sequence{Singleton(String("a")), Singleton(Integer(1))}, comparers, time.UTC)
	y := NewTupleComparisonKey([]Sequence{Singleton(String("b")), Singleton(Integer(1))}, comparers, time.UTC)
	assert.Equal(t, x.Hash(), y.Hash())
	assert.False(t, x.Equal(y))
	assert.True(t, x.Equal(NewTupleComparisonKey([]Sequence{Singleton(String("a")), Singleton(Integer(1))}, comparers, time.UTC)))
}
