package goxq

import (
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// GroupByClause groups the tuples by the values of its keys. Bindings holds
// the variables bound by the clause: one per key, then one per retained
// expression.
type GroupByClause struct {
	bindings  []*Variable
	keys      []ExprID
	retained  []ExprID
	comparers []AtomicComparer
}

// NewGroupByClause returns a group by clause. A nil comparer compares the
// key with the default collation.
func NewGroupByClause(bindings []*Variable, keys, retained []ExprID, comparers []AtomicComparer) (*GroupByClause, error) {
	if len(keys) == 0 {
		return nil, errors.New("group by clause without grouping keys")
	}
	if len(bindings) != len(keys)+len(retained) {
		return nil, errors.New("group by clause binds a variable for each key and retained expression")
	}
	if comparers == nil {
		comparers = make([]AtomicComparer, len(keys))
	}
	if len(comparers) != len(keys) {
		return nil, errors.New("group by clause needs a comparer for each key")
	}
	return &GroupByClause{bindings, keys, retained, comparers}, nil
}

// TupleComparisonKey is the grouping key of a tuple: one value, empty or a
// single atomic, per grouping expression.
type TupleComparisonKey struct {
	values    []Sequence
	comparers []AtomicComparer
	tz        *time.Location
}

// NewTupleComparisonKey returns the key for values compared by comparers.
func NewTupleComparisonKey(values []Sequence, comparers []AtomicComparer, tz *time.Location) *TupleComparisonKey {
	return &TupleComparisonKey{values, comparers, tz}
}

// Hash returns a hash consistent with Equal. Values without a comparison
// key do not contribute.
func (k *TupleComparisonKey) Hash() uint64 {
	h := uint64(0x77557755 ^ len(k.values))
	for i, s := range k.values {
		v, err := firstItem(s)
		if err != nil {
			continue
		}
		a, ok := v.(Atomic)
		if !ok {
			continue
		}
		ck, err := k.comparers[i].ComparisonKey(a, k.tz)
		if err != nil {
			continue
		}
		h ^= uint64(i) + ck.hash()
	}
	return h
}

// Equal reports whether the keys are deep-equal position by position. A
// comparison failure counts as unequal.
func (k *TupleComparisonKey) Equal(o *TupleComparisonKey) bool {
	if len(k.values) != len(o.values) {
		return false
	}
	for i := range k.values {
		ok, err := DeepEqual(k.values[i], o.values[i], k.comparers[i], k.tz)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (ck ComparisonKey) hash() uint64 {
	return xxhash.Sum64String(ck.text) ^ uint64(ck.class)<<56
}

// objectToBeGrouped is a tuple waiting for its group.
type objectToBeGrouped struct {
	key      *TupleComparisonKey
	retained []Sequence
}

type group struct {
	key     *TupleComparisonKey
	members []*objectToBeGrouped
}

// groupTable collects the tuples into groups, remembering the order in
// which the groups are first seen.
type groupTable struct {
	buckets map[uint64][]*group
	groups  []*group
	tuples  int
}

func newGroupTable() *groupTable {
	return &groupTable{buckets: make(map[uint64][]*group)}
}

func (t *groupTable) add(obj *objectToBeGrouped) {
	t.tuples++
	h := obj.key.Hash()
	for _, g := range t.buckets[h] {
		if g.key.Equal(obj.key) {
			g.members = append(g.members, obj)
			return
		}
	}
	g := &group{key: obj.key, members: []*objectToBeGrouped{obj}}
	t.buckets[h] = append(t.buckets[h], g)
	t.groups = append(t.groups, g)
}

// groupingObject evaluates the keys and retained expressions of cl for the
// tuple bound in c.
func (p *Program) groupingObject(c *Context, cl clause, args []ExprID) (*objectToBeGrouped, error) {
	values := make([]Sequence, cl.nkeys)
	for i, a := range args[:cl.nkeys] {
		s, err := p.groupingValue(c, a)
		if err != nil {
			return nil, err
		}
		values[i] = s
	}
	comparers := make([]AtomicComparer, cl.nkeys)
	for i, cmp := range cl.comparers {
		if cmp == nil {
			cmp = c.ctl.comparer
		}
		comparers[i] = cmp
	}
	obj := &objectToBeGrouped{
		key:      NewTupleComparisonKey(values, comparers, c.ctl.tz),
		retained: make([]Sequence, len(args)-cl.nkeys),
	}
	for i, a := range args[cl.nkeys:] {
		iter, err := p.iterate(c, a)
		if err != nil {
			return nil, err
		}
		xs, err := Materialize(iter)
		if err != nil {
			return nil, err
		}
		obj.retained[i] = xs
	}
	return obj, nil
}

func (p *Program) groupingValue(c *Context, id ExprID) (Sequence, error) {
	iter, err := p.iterate(c, id)
	if err != nil {
		return nil, err
	}
	xs, err := Materialize(iter)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return Empty, nil
	}
	if len(xs) == 1 {
		if _, ok := xs[0].(Atomic); ok {
			return xs, nil
		}
	}
	vs, err := Atomize(xs)
	if err != nil {
		return nil, err
	}
	switch len(vs) {
	case 0:
		return Empty, nil
	case 1:
		return Singleton(vs[0]), nil
	default:
		return nil, locate(newTypeError("XPTY0004", "grouping key value cannot be a sequence of more than one item"), p.Location(id))
	}
}

// bindGroup binds the variables of cl for g: each key to its value, each
// retained variable to the concatenation of its values over the members.
func bindGroup(c *Context, cl clause, g *group) {
	for i, v := range cl.vars[:cl.nkeys] {
		c.frame.set(v.Slot, g.key.values[i])
	}
	for i, v := range cl.vars[cl.nkeys:] {
		var xs Extent
		for _, m := range g.members {
			s := m.retained[i].(Extent)
			xs = append(xs, s...)
		}
		c.frame.set(v.Slot, xs)
	}
}

func (t *groupTable) report(c *Context) {
	c.ctl.stats.groups.Add(int64(len(t.groups)))
	c.ctl.metrics.observeGroups(len(t.groups))
	c.ctl.logger.Debug("grouped tuples", zap.Int("tuples", t.tuples), zap.Int("groups", len(t.groups)))
}

type groupByPull struct {
	base    tuplePull
	p       *Program
	cl      clause
	args    []ExprID
	table   *groupTable
	next    int
	drained bool
}

func (s *groupByPull) Next(c *Context) (bool, error) {
	if !s.drained {
		s.table = newGroupTable()
		for {
			ok, err := s.base.Next(c)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			obj, err := s.p.groupingObject(c, s.cl, s.args)
			if err != nil {
				return false, err
			}
			s.table.add(obj)
		}
		s.drained = true
		s.table.report(c)
	}
	if s.table == nil || s.next >= len(s.table.groups) {
		return false, nil
	}
	bindGroup(c, s.cl, s.table.groups[s.next])
	s.next++
	return true, nil
}

func (s *groupByPull) Close() {
	s.table = nil
	s.drained = true
	s.base.Close()
}

type groupByPush struct {
	next  tuplePush
	p     *Program
	cl    clause
	args  []ExprID
	st    *pushState
	table *groupTable
}

func (s *groupByPush) ProcessTuple(c *Context) error {
	obj, err := s.p.groupingObject(c, s.cl, s.args)
	if err != nil {
		return err
	}
	if s.table == nil {
		s.table = newGroupTable()
	}
	s.table.add(obj)
	return nil
}

func (s *groupByPush) Close(c *Context) error {
	t := s.table
	s.table = nil
	if t == nil {
		t = newGroupTable()
	}
	if !s.st.failed {
		t.report(c)
		for _, g := range t.groups {
			bindGroup(c, s.cl, g)
			if err := s.next.ProcessTuple(c); err != nil {
				s.st.failed = true
				s.next.Close(c)
				return err
			}
		}
	}
	return s.next.Close(c)
}
