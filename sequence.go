package goxq

import "time"

// Sequence is an ordered list of items, either grounded or deferred.
type Sequence interface {
	Iterate() Iter
}

// Extent is a grounded sequence.
type Extent []Item

// Empty is the empty sequence.
var Empty = Extent(nil)

// Iterate returns an iterator over the items.
func (s Extent) Iterate() Iter {
	iter := sliceIter(s)
	return &iter
}

// Len returns the number of items.
func (s Extent) Len() int {
	return len(s)
}

// ItemAt returns the item at zero-based index i, or nil.
func (s Extent) ItemAt(i int) Item {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

// Singleton returns a one-item sequence, or the empty sequence for nil.
func Singleton(v Item) Extent {
	if v == nil {
		return Empty
	}
	return Extent{v}
}

// IntegerRange is the lazy sequence of integers from Start to End
// inclusive. An IntegerRange with End < Start is empty.
type IntegerRange struct {
	Start, End int64
}

// Iterate returns an iterator over the integers.
func (r IntegerRange) Iterate() Iter {
	return &rangeIter{next: r.Start, end: r.End}
}

// Len returns the number of integers in the range.
func (r IntegerRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return int(r.End - r.Start + 1)
}

// ItemAt returns the integer at zero-based index i, or nil.
func (r IntegerRange) ItemAt(i int) Item {
	if i < 0 || i >= r.Len() {
		return nil
	}
	return Integer(r.Start + int64(i))
}

// Subsequence returns at most length integers starting at zero-based index
// start.
func (r IntegerRange) Subsequence(start, length int) IntegerRange {
	start = max(start, 0)
	if length <= 0 || start >= r.Len() {
		return IntegerRange{1, 0}
	}
	s := r.Start + int64(start)
	e := min(s+int64(length)-1, r.End)
	return IntegerRange{s, e}
}

type rangeIter struct {
	next, end int64
	done      bool
}

func (iter *rangeIter) Next() (Item, error) {
	if iter.done || iter.next > iter.end {
		return nil, nil
	}
	v := iter.next
	if v == iter.end {
		iter.done = true
	} else {
		iter.next++
	}
	return Integer(v), nil
}

// Closure is a deferred evaluation of an expression against a saved
// context. Each read evaluates the expression again.
type Closure struct {
	prog *Program
	id   ExprID
	ctx  *Context
}

func newClosure(p *Program, c *Context, id ExprID) *Closure {
	return &Closure{prog: p, id: id, ctx: c.snapshot()}
}

// Iterate evaluates the expression.
func (c *Closure) Iterate() Iter {
	iter, err := c.prog.iterate(c.ctx, c.id)
	if err != nil {
		return &errIter{err}
	}
	return iter
}

// Reduce materializes the closure.
func (c *Closure) Reduce() (Extent, error) {
	return Materialize(c.Iterate())
}

// MemoClosure is a deferred evaluation whose items are cached as they are
// first read, so later reads share one evaluation.
type MemoClosure struct {
	prog  *Program
	id    ExprID
	ctx   *Context
	buf   []Item
	input Iter
	done  bool
	err   error
}

func newMemoClosure(p *Program, c *Context, id ExprID) *MemoClosure {
	return &MemoClosure{prog: p, id: id, ctx: c.snapshot()}
}

// Iterate returns an iterator reading through the cache.
func (m *MemoClosure) Iterate() Iter {
	return &memoIter{m: m}
}

// Reduce materializes the closure.
func (m *MemoClosure) Reduce() (Extent, error) {
	return Materialize(m.Iterate())
}

type memoIter struct {
	m   *MemoClosure
	pos int
}

func (iter *memoIter) Next() (Item, error) {
	m := iter.m
	if iter.pos < len(m.buf) {
		v := m.buf[iter.pos]
		iter.pos++
		return v, nil
	}
	if m.done {
		return nil, m.err
	}
	if m.input == nil {
		input, err := m.prog.iterate(m.ctx, m.id)
		if err != nil {
			m.done, m.err = true, err
			return nil, err
		}
		m.input = input
	}
	v, err := m.input.Next()
	if err != nil {
		m.done, m.err = true, err
		return nil, err
	}
	if v == nil {
		m.done, m.input, m.ctx = true, nil, nil
		return nil, nil
	}
	m.buf = append(m.buf, v)
	iter.pos++
	return v, nil
}

// IndexedExtent is a grounded sequence with a hash index over the string
// values of its items, built on the first lookup.
type IndexedExtent struct {
	Extent
	cmp    AtomicComparer
	index  map[ComparisonKey][]Item
	built  bool
	usable bool
}

func newIndexedExtent(xs Extent, cmp AtomicComparer) *IndexedExtent {
	return &IndexedExtent{Extent: xs, cmp: cmp}
}

// Lookup returns the items whose atomized value equals key. The boolean is
// false when the index cannot answer for this key, and the caller must scan.
func (s *IndexedExtent) Lookup(key Atomic, tz *time.Location) ([]Item, bool) {
	switch key.(type) {
	case String, UntypedAtomic:
	default:
		return nil, false
	}
	if !s.built {
		s.build(tz)
	}
	if !s.usable {
		return nil, false
	}
	k, err := s.cmp.ComparisonKey(String(key.StringValue()), tz)
	if err != nil {
		return nil, false
	}
	return s.index[k], true
}

func (s *IndexedExtent) build(tz *time.Location) {
	s.built, s.usable = true, true
	s.index = make(map[ComparisonKey][]Item)
	for _, v := range s.Extent {
		xs, err := atomizeItem(v)
		if err != nil {
			s.usable = false
			return
		}
		for _, x := range xs {
			switch x.(type) {
			case String, UntypedAtomic:
			default:
				s.usable = false
				return
			}
			k, err := s.cmp.ComparisonKey(String(x.StringValue()), tz)
			if err != nil {
				s.usable = false
				return
			}
			if items := s.index[k]; len(items) == 0 || items[len(items)-1] != v {
				s.index[k] = append(items, v)
			}
		}
	}
}

// Grounded materializes s unless it is already grounded.
func Grounded(s Sequence) (Extent, error) {
	switch s := s.(type) {
	case Extent:
		return s, nil
	case *IndexedExtent:
		return s.Extent, nil
	default:
		return Materialize(s.Iterate())
	}
}

// firstItem returns the first item of s, or nil.
func firstItem(s Sequence) (Item, error) {
	switch s := s.(type) {
	case Extent:
		return s.ItemAt(0), nil
	case IntegerRange:
		return s.ItemAt(0), nil
	default:
		return s.Iterate().Next()
	}
}
