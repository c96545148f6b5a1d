package goxq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardinality(t *testing.T) {
	testCases := []struct {
		x, y          Cardinality
		sum, multiply Cardinality
	}{
		{CardEmpty, CardEmpty, CardEmpty, CardEmpty},
		{CardEmpty, CardExactlyOne, CardExactlyOne, CardEmpty},
		{CardExactlyOne, CardExactlyOne, CardOneOrMore, CardExactlyOne},
		{CardExactlyOne, CardZeroOrOne, CardOneOrMore, CardZeroOrOne},
		{CardZeroOrOne, CardZeroOrOne, CardZeroOrMore, CardZeroOrOne},
		{CardOneOrMore, CardExactlyOne, CardOneOrMore, CardOneOrMore},
		{CardZeroOrMore, CardExactlyOne, CardOneOrMore, CardZeroOrMore},
		{CardExactlyOne, CardZeroOrMore, CardOneOrMore, CardZeroOrMore},
	}
	for _, tc := range testCases {
		t.Run(tc.x.String()+","+tc.y.String(), func(t *testing.T) {
			assert.Equal(t, tc.sum, tc.x.Sum(tc.y), "sum")
			assert.Equal(t, tc.sum, tc.y.Sum(tc.x), "sum is commutative")
			assert.Equal(t, tc.multiply, tc.x.Multiply(tc.y), "multiply")
			assert.True(t, tc.x.Union(tc.y).Subsumes(tc.x))
			assert.True(t, tc.x.Union(tc.y).Subsumes(tc.y))
		})
	}
	assert.True(t, CardZeroOrMore.Subsumes(CardOneOrMore))
	assert.False(t, CardExactlyOne.Subsumes(CardZeroOrOne))
	assert.Equal(t, CardExactlyOne, CardZeroOrOne.Intersect(CardOneOrMore))
}

func TestCardinalityString(t *testing.T) {
	assert.Equal(t, "0", CardEmpty.String())
	assert.Equal(t, "", CardExactlyOne.String())
	assert.Equal(t, "?", CardZeroOrOne.String())
	assert.Equal(t, "+", CardOneOrMore.String())
	assert.Equal(t, "*", CardZeroOrMore.String())
}

func TestParseSequenceType(t *testing.T) {
	testCases := []struct {
		src      string
		expected SequenceType
		err      string
	}{
		{src: "", expected: AnySequence},
		{src: "item()*", expected: AnySequence},
		{src: "xs:integer", expected: SequenceType{TypeInteger, CardExactlyOne}},
		{src: " xs:string? ", expected: SequenceType{TypeString, CardZeroOrOne}},
		{src: "node()+", expected: SequenceType{TypeNode, CardOneOrMore}},
		{src: "element()*", expected: SequenceType{TypeElement, CardZeroOrMore}},
		{src: "empty-sequence()", expected: EmptySequenceType},
		{src: "xs:foo", err: "XPST0051: unknown type: xs:foo"},
		{src: "none", err: "XPST0051: unknown type: none"},
	}
	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			got, err := ParseSequenceType(tc.src)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
			if tc.src != "" {
				assert.Equal(t, got, must(ParseSequenceType(got.String())))
			}
		})
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestTypeHierarchy(t *testing.T) {
	th := DefaultTypeHierarchy
	assert.True(t, th.IsSubtype(TypeInteger, TypeNumeric))
	assert.True(t, th.IsSubtype(TypeInteger, TypeAnyAtomic))
	assert.True(t, th.IsSubtype(TypeNone, TypeText))
	assert.True(t, th.IsSubtype(TypeComment, TypeItem))
	assert.False(t, th.IsSubtype(TypeDouble, TypeDecimal))
	assert.False(t, th.IsSubtype(TypeNode, TypeElement))

	assert.Equal(t, SameType, th.Relationship(TypeString, TypeString))
	assert.Equal(t, Subsumes, th.Relationship(TypeDecimal, TypeInteger))
	assert.Equal(t, Subsumed, th.Relationship(TypeElement, TypeNode))
	assert.Equal(t, Disjoint, th.Relationship(TypeString, TypeInteger))

	assert.Equal(t, TypeNumeric, th.CommonSupertype(TypeInteger, TypeDouble))
	assert.Equal(t, TypeDecimal, th.CommonSupertype(TypeInteger, TypeDecimal))
	assert.Equal(t, TypeAnyAtomic, th.CommonSupertype(TypeInteger, TypeString))
	assert.Equal(t, TypeNode, th.CommonSupertype(TypeElement, TypeText))
	assert.Equal(t, TypeItem, th.CommonSupertype(TypeElement, TypeInteger))
	assert.Equal(t, TypeString, th.CommonSupertype(TypeNone, TypeString))
}

func TestSelectMode(t *testing.T) {
	testCases := []struct {
		name     string
		refCount int
		indexed  bool
		deps     Dependency
		expected EvalMode
	}{
		{"unused", 0, false, 0, ModeSuppress},
		{"unused indexed", 0, true, 0, ModeSuppress},
		{"used once", 1, false, DepLocalVariables, ModeLazy},
		{"used twice", 2, false, DepContextItem, ModeMemo},
		{"indexed", 3, true, DepUserFunctions, ModeIndexed},
		{"calls a function", 1, false, DepUserFunctions, ModeEager},
		{"used in a loop", 10, false, 0, ModeMemo},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mode := SelectMode(tc.refCount, tc.indexed, tc.deps)
			assert.Equal(t, tc.expected, mode)
			assert.NotEmpty(t, mode.String())
		})
	}
}

func TestTypeOf(t *testing.T) {
	n, err := ParseXML(strings.NewReader(`<a x="1">t</a>`))
	require.NoError(t, err)
	e := n.Children()[0]
	assert.Equal(t, "document-node()", TypeOf(n))
	assert.Equal(t, "element()", TypeOf(e))
	assert.Equal(t, "attribute()", TypeOf(e.Attributes()[0]))
	assert.Equal(t, "text()", TypeOf(e.Children()[0]))
	assert.Equal(t, "xs:integer", TypeOf(Integer(1)))
	assert.Equal(t, "xs:untypedAtomic", TypeOf(UntypedAtomic("a")))
	assert.Equal(t, "empty-sequence()", TypeOf(nil))
}
