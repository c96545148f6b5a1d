package goxq

import (
	"slices"
	"strings"
)

// Clause is a clause of a FLWOR expression.
type Clause interface {
	isClause()
}

// ForClause binds Var to each item of In, and Pos, if not nil, to its
// position.
type ForClause struct {
	Var *Variable
	Pos *Variable
	In  ExprID
}

// LetClause binds Var to the value of Value.
type LetClause struct {
	Var   *Variable
	Value ExprID
}

// WhereClause drops the tuples for which Cond is false.
type WhereClause struct {
	Cond ExprID
}

// CountClause binds Var to the number of the tuple.
type CountClause struct {
	Var *Variable
}

// OrderByClause sorts the tuples, stably.
type OrderByClause struct {
	Keys []OrderSpec
}

// OrderSpec is one sort key of an order by clause.
type OrderSpec struct {
	Key           ExprID
	Descending    bool
	EmptyGreatest bool
	// Comparer compares the keys; nil means the default collation.
	Comparer AtomicComparer
}

func (ForClause) isClause()      {}
func (LetClause) isClause()      {}
func (WhereClause) isClause()    {}
func (CountClause) isClause()    {}
func (OrderByClause) isClause()  {}
func (*GroupByClause) isClause() {}

type clauseKind uint8

const (
	clauseFor clauseKind = iota
	clauseLet
	clauseWhere
	clauseCount
	clauseOrderBy
	clauseGroupBy
)

func (k clauseKind) String() string {
	switch k {
	case clauseFor:
		return "for"
	case clauseLet:
		return "let"
	case clauseWhere:
		return "where"
	case clauseCount:
		return "count"
	case clauseOrderBy:
		return "order-by"
	case clauseGroupBy:
		return "group-by"
	default:
		panic(k)
	}
}

// clause is a FLWOR clause with its expressions at args[first:first+n] of
// the FLWOR expression.
type clause struct {
	kind      clauseKind
	vars      []*Variable
	first, n  int
	order     []OrderSpec
	comparers []AtomicComparer
	nkeys     int
}

type flworInfo struct {
	clauses []clause
}

func (info *flworInfo) String() string {
	xs := make([]string, len(info.clauses))
	for i, cl := range info.clauses {
		xs[i] = cl.kind.String()
	}
	return strings.Join(xs, " ")
}

func (info *flworInfo) clone() *flworInfo {
	clauses := make([]clause, len(info.clauses))
	for i, cl := range info.clauses {
		cl.vars = slices.Clone(cl.vars)
		cl.order = slices.Clone(cl.order)
		cl.comparers = slices.Clone(cl.comparers)
		clauses[i] = cl
	}
	return &flworInfo{clauses}
}

// FLWOR builds a FLWOR expression from its clauses and return expression.
func (p *Program) FLWOR(ret ExprID, clauses ...Clause) ExprID {
	info := &flworInfo{}
	var args []ExprID
	for _, cl := range clauses {
		first := len(args)
		switch cl := cl.(type) {
		case ForClause:
			info.clauses = append(info.clauses, clause{kind: clauseFor, vars: []*Variable{cl.Var, cl.Pos}, first: first, n: 1})
			args = append(args, cl.In)
		case LetClause:
			info.clauses = append(info.clauses, clause{kind: clauseLet, vars: []*Variable{cl.Var}, first: first, n: 1})
			args = append(args, cl.Value)
		case WhereClause:
			info.clauses = append(info.clauses, clause{kind: clauseWhere, first: first, n: 1})
			args = append(args, cl.Cond)
		case CountClause:
			info.clauses = append(info.clauses, clause{kind: clauseCount, vars: []*Variable{cl.Var}, first: first})
		case OrderByClause:
			specs := slices.Clone(cl.Keys)
			for _, s := range specs {
				args = append(args, s.Key)
			}
			info.clauses = append(info.clauses, clause{kind: clauseOrderBy, first: first, n: len(specs), order: specs})
		case *GroupByClause:
			args = append(args, cl.keys...)
			args = append(args, cl.retained...)
			info.clauses = append(info.clauses, clause{
				kind: clauseGroupBy, vars: slices.Clone(cl.bindings), first: first,
				n: len(cl.keys) + len(cl.retained), nkeys: len(cl.keys), comparers: slices.Clone(cl.comparers),
			})
		}
	}
	args = append(args, ret)
	return p.newNode(opflwor, info, args...)
}

func (p *Program) flwor(id ExprID) (*flworInfo, []ExprID) {
	n := p.node(id)
	return n.v.(*flworInfo), n.args
}

// isLetOnly reports whether the FLWOR has only let and where clauses, so
// its return expression is in the tail position of the FLWOR.
func (p *Program) isLetOnly(id ExprID) bool {
	info, _ := p.flwor(id)
	for _, cl := range info.clauses {
		if cl.kind != clauseLet && cl.kind != clauseWhere {
			return false
		}
	}
	return true
}

// bindLetClauses evaluates the let and where clauses of a let-only FLWOR
// into the frame of c. The boolean is false when a where clause fails.
func (p *Program) bindLetClauses(c *Context, id ExprID) (bool, error) {
	info, args := p.flwor(id)
	for _, cl := range info.clauses {
		switch cl.kind {
		case clauseLet:
			if err := p.bindLet(c, cl, args[cl.first]); err != nil {
				return false, err
			}
		case clauseWhere:
			b, err := p.effectiveBooleanValue(c, args[cl.first])
			if err != nil || !b {
				return false, err
			}
		}
	}
	return true, nil
}

func (p *Program) bindLet(c *Context, cl clause, value ExprID) error {
	v := cl.vars[0]
	s, err := p.evaluateWithMode(c, value, SelectMode(v.RefCount, v.Indexed, p.deps(value)))
	if err != nil {
		return err
	}
	c.frame.set(v.Slot, s)
	return nil
}

// tuplePull is a tuple stream driven by its consumer. Next binds the
// variables of the next tuple in the frame of c.
type tuplePull interface {
	Next(c *Context) (bool, error)
	Close()
}

// tuplePush is a tuple stream driven by its producer. ProcessTuple consumes
// the tuple bound in the frame of c.
type tuplePush interface {
	ProcessTuple(c *Context) error
	Close(c *Context) error
}

func (p *Program) pullPipeline(id ExprID) tuplePull {
	info, args := p.flwor(id)
	var s tuplePull = &singletonPull{}
	for _, cl := range info.clauses {
		switch cl.kind {
		case clauseFor:
			s = &forPull{base: s, p: p, cl: cl, in: args[cl.first]}
		case clauseLet:
			s = &letPull{base: s, p: p, cl: cl, value: args[cl.first]}
		case clauseWhere:
			s = &wherePull{base: s, p: p, cond: args[cl.first]}
		case clauseCount:
			s = &countPull{base: s, v: cl.vars[0]}
		case clauseOrderBy:
			s = &orderByPull{base: s, p: p, cl: cl, keys: args[cl.first : cl.first+cl.n]}
		case clauseGroupBy:
			s = &groupByPull{base: s, p: p, cl: cl, args: args[cl.first : cl.first+cl.n]}
		}
	}
	return s
}

func (p *Program) iterateFLWOR(c *Context, id ExprID) (Iter, error) {
	c = c.snapshot()
	_, args := p.flwor(id)
	ret := args[len(args)-1]
	s := p.pullPipeline(id)
	var closed bool
	return &concatIter{next: func() (Iter, bool, error) {
		if closed {
			return nil, false, nil
		}
		ok, err := s.Next(c)
		if err == nil && ok {
			err = c.canceled()
		}
		if err != nil || !ok {
			s.Close()
			closed = true
			return nil, false, err
		}
		iter, err := p.iterate(c, ret)
		return iter, true, err
	}}, nil
}

func (p *Program) eventsFLWOR(c *Context, id ExprID) (EventIter, error) {
	c = c.snapshot()
	_, args := p.flwor(id)
	ret := args[len(args)-1]
	s := p.pullPipeline(id)
	var closed bool
	return &concatEvents{next: func() (EventIter, bool, error) {
		if closed {
			return nil, false, nil
		}
		ok, err := s.Next(c)
		if err != nil || !ok {
			s.Close()
			closed = true
			return nil, false, err
		}
		evs, err := p.iterateEvents(c, ret)
		return evs, true, err
	}}, nil
}

type singletonPull struct {
	done bool
}

func (s *singletonPull) Next(*Context) (bool, error) {
	if s.done {
		return false, nil
	}
	s.done = true
	return true, nil
}

func (s *singletonPull) Close() {
	s.done = true
}

type forPull struct {
	base tuplePull
	p    *Program
	cl   clause
	in   ExprID
	iter Iter
	pos  int
}

func (s *forPull) Next(c *Context) (bool, error) {
	for {
		if s.iter == nil {
			ok, err := s.base.Next(c)
			if err != nil || !ok {
				return false, err
			}
			if s.iter, err = s.p.iterate(c, s.in); err != nil {
				return false, err
			}
			s.pos = 0
		}
		v, err := s.iter.Next()
		if err != nil {
			return false, err
		}
		if v == nil {
			s.iter = nil
			continue
		}
		s.pos++
		bindFor(c, s.cl, v, s.pos)
		return true, nil
	}
}

func (s *forPull) Close() {
	s.iter = nil
	s.base.Close()
}

func bindFor(c *Context, cl clause, v Item, pos int) {
	c.frame.set(cl.vars[0].Slot, Singleton(v))
	if cl.vars[1] != nil {
		c.frame.set(cl.vars[1].Slot, Singleton(Integer(pos)))
	}
}

type letPull struct {
	base  tuplePull
	p     *Program
	cl    clause
	value ExprID
}

func (s *letPull) Next(c *Context) (bool, error) {
	ok, err := s.base.Next(c)
	if err != nil || !ok {
		return false, err
	}
	return true, s.p.bindLet(c, s.cl, s.value)
}

func (s *letPull) Close() {
	s.base.Close()
}

type wherePull struct {
	base tuplePull
	p    *Program
	cond ExprID
}

func (s *wherePull) Next(c *Context) (bool, error) {
	for {
		ok, err := s.base.Next(c)
		if err != nil || !ok {
			return false, err
		}
		b, err := s.p.effectiveBooleanValue(c, s.cond)
		if err != nil {
			return false, err
		}
		if b {
			return true, nil
		}
	}
}

func (s *wherePull) Close() {
	s.base.Close()
}

type countPull struct {
	base tuplePull
	v    *Variable
	n    int64
}

func (s *countPull) Next(c *Context) (bool, error) {
	ok, err := s.base.Next(c)
	if err != nil || !ok {
		return false, err
	}
	s.n++
	c.frame.set(s.v.Slot, Singleton(Integer(s.n)))
	return true, nil
}

func (s *countPull) Close() {
	s.base.Close()
}

// sortedTuple is a tuple saved by order by with its sort keys.
type sortedTuple struct {
	slots []Sequence
	keys  []Atomic
}

func (p *Program) sortKeys(c *Context, keys []ExprID) (*sortedTuple, error) {
	t := &sortedTuple{slots: slices.Clone(c.frame.slots), keys: make([]Atomic, len(keys))}
	for i, k := range keys {
		v, err := p.evaluateAtomic(c, k, "order by key")
		if err != nil {
			return nil, err
		}
		t.keys[i] = v
	}
	return t, nil
}

func sortTuples(c *Context, cl clause, ts []*sortedTuple) error {
	var err error
	slices.SortStableFunc(ts, func(a, b *sortedTuple) int {
		for i, spec := range cl.order {
			r, e := compareSortKeys(c, spec, a.keys[i], b.keys[i])
			if e != nil {
				if err == nil {
					err = e
				}
				return 0
			}
			if r != 0 {
				if spec.Descending {
					return -r
				}
				return r
			}
		}
		return 0
	})
	return err
}

func compareSortKeys(c *Context, spec OrderSpec, a, b Atomic) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil || b == nil:
		r := 1
		if a == nil {
			r = -1
		}
		if spec.EmptyGreatest {
			r = -r
		}
		return r, nil
	}
	cmp := spec.Comparer
	if cmp == nil {
		cmp = c.ctl.comparer
	}
	if _, ok := a.(UntypedAtomic); ok {
		a = String(a.StringValue())
	}
	if _, ok := b.(UntypedAtomic); ok {
		b = String(b.StringValue())
	}
	return cmp.Compare(a, b, c.ctl.tz)
}

type orderByPull struct {
	base    tuplePull
	p       *Program
	cl      clause
	keys    []ExprID
	tuples  []*sortedTuple
	next    int
	drained bool
}

func (s *orderByPull) Next(c *Context) (bool, error) {
	if !s.drained {
		for {
			ok, err := s.base.Next(c)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			t, err := s.p.sortKeys(c, s.keys)
			if err != nil {
				return false, err
			}
			s.tuples = append(s.tuples, t)
		}
		s.drained = true
		if err := sortTuples(c, s.cl, s.tuples); err != nil {
			return false, err
		}
	}
	if s.next >= len(s.tuples) {
		return false, nil
	}
	copy(c.frame.slots, s.tuples[s.next].slots)
	s.next++
	return true, nil
}

func (s *orderByPull) Close() {
	s.tuples = nil
	s.base.Close()
}

// pushState is shared by the stages of one push evaluation; barrier
// stages emit nothing on Close after a failure.
type pushState struct {
	failed bool
}

func (p *Program) pushPipeline(id ExprID, st *pushState) tuplePush {
	info, args := p.flwor(id)
	var s tuplePush = &returnPush{p: p, ret: args[len(args)-1]}
	for i := len(info.clauses) - 1; i >= 0; i-- {
		cl := info.clauses[i]
		switch cl.kind {
		case clauseFor:
			s = &forPush{next: s, p: p, cl: cl, in: args[cl.first]}
		case clauseLet:
			s = &letPush{next: s, p: p, cl: cl, value: args[cl.first]}
		case clauseWhere:
			s = &wherePush{next: s, p: p, cond: args[cl.first]}
		case clauseCount:
			s = &countPush{next: s, v: cl.vars[0]}
		case clauseOrderBy:
			s = &orderByPush{next: s, p: p, cl: cl, keys: args[cl.first : cl.first+cl.n], st: st}
		case clauseGroupBy:
			s = &groupByPush{next: s, p: p, cl: cl, args: args[cl.first : cl.first+cl.n], st: st}
		}
	}
	return s
}

func (p *Program) processFLWOR(c *Context, id ExprID) error {
	st := &pushState{}
	s := p.pushPipeline(id, st)
	err := s.ProcessTuple(c)
	if err != nil {
		st.failed = true
	}
	if e := s.Close(c); err == nil {
		err = e
	}
	return err
}

type returnPush struct {
	p   *Program
	ret ExprID
}

func (s *returnPush) ProcessTuple(c *Context) error {
	return s.p.process(c, s.ret)
}

func (s *returnPush) Close(*Context) error {
	return nil
}

type forPush struct {
	next tuplePush
	p    *Program
	cl   clause
	in   ExprID
}

func (s *forPush) ProcessTuple(c *Context) error {
	iter, err := s.p.iterate(c, s.in)
	if err != nil {
		return err
	}
	for pos := 1; ; pos++ {
		v, err := iter.Next()
		if err != nil || v == nil {
			return err
		}
		if err := c.canceled(); err != nil {
			return err
		}
		bindFor(c, s.cl, v, pos)
		if err := s.next.ProcessTuple(c); err != nil {
			return err
		}
	}
}

func (s *forPush) Close(c *Context) error {
	return s.next.Close(c)
}

type letPush struct {
	next  tuplePush
	p     *Program
	cl    clause
	value ExprID
}

func (s *letPush) ProcessTuple(c *Context) error {
	if err := s.p.bindLet(c, s.cl, s.value); err != nil {
		return err
	}
	return s.next.ProcessTuple(c)
}

func (s *letPush) Close(c *Context) error {
	return s.next.Close(c)
}

type wherePush struct {
	next tuplePush
	p    *Program
	cond ExprID
}

func (s *wherePush) ProcessTuple(c *Context) error {
	b, err := s.p.effectiveBooleanValue(c, s.cond)
	if err != nil || !b {
		return err
	}
	return s.next.ProcessTuple(c)
}

func (s *wherePush) Close(c *Context) error {
	return s.next.Close(c)
}

type countPush struct {
	next tuplePush
	v    *Variable
	n    int64
}

func (s *countPush) ProcessTuple(c *Context) error {
	s.n++
	c.frame.set(s.v.Slot, Singleton(Integer(s.n)))
	return s.next.ProcessTuple(c)
}

func (s *countPush) Close(c *Context) error {
	return s.next.Close(c)
}

type orderByPush struct {
	next   tuplePush
	p      *Program
	cl     clause
	keys   []ExprID
	st     *pushState
	tuples []*sortedTuple
}

func (s *orderByPush) ProcessTuple(c *Context) error {
	t, err := s.p.sortKeys(c, s.keys)
	if err != nil {
		return err
	}
	s.tuples = append(s.tuples, t)
	return nil
}

func (s *orderByPush) Close(c *Context) error {
	tuples := s.tuples
	s.tuples = nil
	if !s.st.failed {
		if err := sortTuples(c, s.cl, tuples); err != nil {
			s.st.failed = true
			s.next.Close(c)
			return err
		}
		for _, t := range tuples {
			copy(c.frame.slots, t.slots)
			if err := s.next.ProcessTuple(c); err != nil {
				s.st.failed = true
				s.next.Close(c)
				return err
			}
		}
	}
	return s.next.Close(c)
}
