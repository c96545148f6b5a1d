package goxq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sumProgram = `
functions:
  - name: local:sum
    params: [n, acc]
    body:
      if: {eq: [{var: n}, 0]}
      then: {var: acc}
      else:
        call: local:sum
        args:
          - {sub: [{var: n}, 1]}
          - {add: [{var: acc}, {var: n}]}
variables:
  - {name: n, type: xs:integer}
main:
  call: local:sum
  args: [{var: n}, 0]
`

const depthProgram = `
functions:
  - name: local:depth
    params: [n]
    body:
      if: {eq: [{var: n}, 0]}
      then: 0
      else: {add: [1, {call: local:depth, args: [{sub: [{var: n}, 1]}]}]}
variables:
  - {name: n, type: xs:integer}
main:
  call: local:depth
  args: [{var: n}]
`

const evenOddProgram = `
functions:
  - name: local:even
    params: [n]
    body:
      if: {eq: [{var: n}, 0]}
      then: true
      else: {call: local:odd, args: [{sub: [{var: n}, 1]}]}
  - name: local:odd
    params: [n]
    body:
      if: {eq: [{var: n}, 0]}
      then: false
      else:
        flwor:
          - let: m
            value: {sub: [{var: n}, 1]}
        return: {call: local:even, args: [{var: m}]}
variables:
  - {name: n, type: xs:integer}
main:
  call: local:even
  args: [{var: n}]
`

// callMarkers returns the markers of the user function calls in the body
// of fn, by callee name.
func callMarkers(p *Program, fn *UserFunction) map[string]TailCallMarker {
	markers := make(map[string]TailCallMarker)
	p.walk(fn.Body, func(id ExprID) bool {
		if p.node(id).op == opcall {
			markers[p.node(id).v.(*callInfo).name.String()] = p.TailCall(id)
		}
		return true
	})
	return markers
}

func TestTailRecursion(t *testing.T) {
	code := compileProgram(t, sumProgram)
	fn := code.Program().Function(QName{Space: namespaces["local"], Local: "sum"}, 2)
	require.NotNil(t, fn)
	assert.True(t, fn.IsTailRecursive())
	assert.Equal(t, map[string]TailCallMarker{"local:sum": SelfTailCall}, callMarkers(code.Program(), fn))

	xs, err := Materialize(code.Run(nil, Singleton(Integer(100000))))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(5000050000)}, xs)
	stats := code.Stats()
	assert.Equal(t, int64(1), stats.Calls)
	assert.Equal(t, int64(100000), stats.TailCalls)
	assert.Equal(t, int64(1), stats.MaxDepth)
}

func TestTailRecursionPush(t *testing.T) {
	code := compileProgram(t, sumProgram, WithMaxCallDepth(10))
	out := NewSequenceOutputter()
	require.NoError(t, code.Process(context.Background(), nil, out, Singleton(Integer(100000))))
	assert.Equal(t, Extent{Integer(5000050000)}, out.Items())

	collected := NewSequenceOutputter()
	evs := code.Events(context.Background(), nil, Singleton(Integer(1000)))
	require.NoError(t, PushEvents(evs, collected))
	assert.Equal(t, Extent{Integer(500500)}, collected.Items())
	assert.Equal(t, int64(1), code.Stats().MaxDepth)
}

func TestForeignTailCalls(t *testing.T) {
	code := compileProgram(t, evenOddProgram)
	p := code.Program()
	even := p.Function(QName{Space: namespaces["local"], Local: "even"}, 1)
	odd := p.Function(QName{Space: namespaces["local"], Local: "odd"}, 1)
	require.NotNil(t, even)
	require.NotNil(t, odd)
	assert.Equal(t, map[string]TailCallMarker{"local:odd": ForeignTailCall}, callMarkers(p, even))
	assert.Equal(t, map[string]TailCallMarker{"local:even": ForeignTailCall}, callMarkers(p, odd))
	assert.False(t, even.IsTailRecursive())
	assert.Equal(t, NotTailCall, p.TailCall(p.Main()))

	xs, err := Materialize(code.Run(nil, Singleton(Integer(100001))))
	require.NoError(t, err)
	assert.Equal(t, Extent{Boolean(false)}, xs)
	assert.Equal(t, int64(1), code.Stats().MaxDepth)
	assert.Equal(t, int64(100001), code.Stats().TailCalls)
}

func TestStackOverflow(t *testing.T) {
	code := compileProgram(t, depthProgram, WithMaxCallDepth(50))
	fn := code.Program().Function(QName{Space: namespaces["local"], Local: "depth"}, 1)
	require.NotNil(t, fn)
	assert.False(t, fn.IsTailRecursive())
	assert.Equal(t, map[string]TailCallMarker{"local:depth": NotTailCall}, callMarkers(code.Program(), fn))

	xs, err := Materialize(code.Run(nil, Singleton(Integer(40))))
	require.NoError(t, err)
	assert.Equal(t, Extent{Integer(40)}, xs)
	assert.Equal(t, int64(41), code.Stats().MaxDepth)

	_, err = Materialize(code.Run(nil, Singleton(Integer(100))))
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Code: "SXLM0001"})
	var soe *StackOverflowError
	require.True(t, errors.As(err, &soe))
	assert.Equal(t, 51, soe.Depth)
	assert.Equal(t, 50, soe.Limit)
	var e *Error
	require.True(t, errors.As(err, &e))
	require.NotNil(t, e.Snapshot)
	assert.Equal(t, "local:depth", e.Snapshot.Function.String())
	assert.Equal(t, 51, e.Snapshot.Depth)

	err = code.Process(context.Background(), nil, NewSequenceOutputter(), Singleton(Integer(100)))
	assert.ErrorIs(t, err, &Error{Code: "SXLM0001"})
}

func TestTailCallBlockedByResultCheck(t *testing.T) {
	code := compileProgram(t, `
functions:
  - name: local:count
    params: [n, acc]
    result: xs:integer
    body:
      if: {eq: [{var: n}, 0]}
      then: {var: acc}
      else: {call: local:count, args: [{sub: [{var: n}, 1]}, {add: [{var: acc}, 1]}]}
main: {call: local:count, args: [100, 0]}`, WithMaxCallDepth(50))
	fn := code.Program().Function(QName{Space: namespaces["local"], Local: "count"}, 2)
	require.NotNil(t, fn)
	assert.False(t, fn.IsTailRecursive())
	_, err := Materialize(code.Run(nil))
	assert.ErrorIs(t, err, &Error{Code: "SXLM0001"})
}

func TestMarkTailCalls(t *testing.T) {
	p := NewProgram()
	f := QName{Prefix: "local", Space: namespaces["local"], Local: "f"}
	g := QName{Prefix: "local", Space: namespaces["local"], Local: "g"}
	self, other := p.Call(f, p.Literal(Integer(1))), p.Call(g)
	inner := p.Call(f, p.Literal(Integer(2)))
	body := p.If(p.Literal(Boolean(true)), self, p.Seq(other, p.Arith(OpAdd, inner, p.Literal(Integer(1)))))
	assert.True(t, p.MarkTailCalls(body, f, 1))
	assert.Equal(t, SelfTailCall, p.TailCall(self))
	assert.Equal(t, NotTailCall, p.TailCall(other))
	assert.Equal(t, NotTailCall, p.TailCall(inner))

	assert.False(t, p.MarkTailCalls(other, f, 1))
	assert.Equal(t, ForeignTailCall, p.TailCall(other))
	assert.True(t, p.MarkTailCalls(self, g, 0))
	assert.Equal(t, SelfTailCall, p.TailCall(self), "a marked call keeps its marker")

	arity := p.Call(f)
	assert.False(t, p.MarkTailCalls(arity, f, 1))
	assert.Equal(t, ForeignTailCall, p.TailCall(arity))
}

func TestTailCallMarkerString(t *testing.T) {
	assert.Equal(t, "not-tail", NotTailCall.String())
	assert.Equal(t, "self-tail", SelfTailCall.String())
	assert.Equal(t, "foreign-tail", ForeignTailCall.String())
}
