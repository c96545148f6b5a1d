package goxq

// Iter is an iterator over the items of a sequence. Next returns a nil item
// at the end of the sequence.
type Iter interface {
	Next() (Item, error)
}

// NewIter creates a new Iter from items.
func NewIter(items ...Item) Iter {
	iter := sliceIter(items)
	return &iter
}

type sliceIter []Item

func (iter *sliceIter) Next() (Item, error) {
	if len(*iter) == 0 {
		return nil, nil
	}
	v := (*iter)[0]
	*iter = (*iter)[1:]
	return v, nil
}

type emptyIter struct{}

func (emptyIter) Next() (Item, error) {
	return nil, nil
}

type unitIter struct {
	v Item
}

func (iter *unitIter) Next() (Item, error) {
	v := iter.v
	iter.v = nil
	return v, nil
}

type errIter struct {
	err error
}

func (iter *errIter) Next() (Item, error) {
	return nil, iter.err
}

// concatIter reads the iterators produced by next in turn.
type concatIter struct {
	next func() (Iter, bool, error)
	cur  Iter
}

func (iter *concatIter) Next() (Item, error) {
	for {
		if iter.cur == nil {
			it, ok, err := iter.next()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			iter.cur = it
		}
		v, err := iter.cur.Next()
		if err != nil || v != nil {
			return v, err
		}
		iter.cur = nil
	}
}

// concatIters concatenates a fixed list of iterator constructors.
func concatIters(fs ...func() (Iter, error)) Iter {
	var i int
	return &concatIter{next: func() (Iter, bool, error) {
		if i >= len(fs) {
			return nil, false, nil
		}
		f := fs[i]
		i++
		it, err := f()
		return it, true, err
	}}
}

// mapIter maps every item of base to a sequence and concatenates them.
func mapIter(base Iter, f func(Item, int) (Iter, error)) Iter {
	var pos int
	return &concatIter{next: func() (Iter, bool, error) {
		v, err := base.Next()
		if err != nil || v == nil {
			return nil, false, err
		}
		pos++
		it, err := f(v, pos)
		return it, true, err
	}}
}

type filterIter struct {
	base Iter
	pos  int
	keep func(Item, int) (bool, error)
}

func (iter *filterIter) Next() (Item, error) {
	for {
		v, err := iter.base.Next()
		if err != nil || v == nil {
			return nil, err
		}
		iter.pos++
		ok, err := iter.keep(v, iter.pos)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
	}
}

// Materialize reads the iterator to its end.
func Materialize(iter Iter) (Extent, error) {
	var xs Extent
	for {
		v, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return xs, nil
		}
		xs = append(xs, v)
	}
}
