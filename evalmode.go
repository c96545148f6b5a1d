package goxq

// EvalMode is the strategy for computing the value bound to a variable or
// a function parameter.
type EvalMode uint8

// Evaluation modes.
const (
	// ModeSuppress skips the evaluation of a value that is never read.
	ModeSuppress EvalMode = iota
	// ModeEager materializes the value now.
	ModeEager
	// ModeLazy defers the evaluation to each read.
	ModeLazy
	// ModeMemo defers the evaluation and shares it between reads.
	ModeMemo
	// ModeIndexed materializes the value with a hash index for lookups.
	ModeIndexed
)

func (m EvalMode) String() string {
	switch m {
	case ModeSuppress:
		return "suppress"
	case ModeEager:
		return "eager"
	case ModeLazy:
		return "lazy"
	case ModeMemo:
		return "memo"
	case ModeIndexed:
		return "indexed"
	default:
		panic(m)
	}
}

// SelectMode chooses the evaluation mode for a value bound to a variable
// with the reference count and indexed flag, computed by an expression
// with the dependencies.
func SelectMode(refCount int, indexed bool, deps Dependency) EvalMode {
	switch {
	case refCount == 0:
		return ModeSuppress
	case indexed:
		return ModeIndexed
	case deps&DepUserFunctions != 0:
		// a deferred recursive call would run in a later frame
		return ModeEager
	case refCount > 1:
		return ModeMemo
	default:
		return ModeLazy
	}
}

func selectModes(params []*Variable, p *Program, args []ExprID) []EvalMode {
	modes := make([]EvalMode, len(args))
	for i, a := range args {
		if i < len(params) {
			modes[i] = SelectMode(params[i].RefCount, params[i].Indexed, p.deps(a))
		} else {
			modes[i] = ModeEager
		}
	}
	return modes
}

// evaluateWithMode computes the value of id under the mode. Literals and
// variable references give their value directly under every mode but
// suppress.
func (p *Program) evaluateWithMode(c *Context, id ExprID, mode EvalMode) (Sequence, error) {
	if mode == ModeSuppress {
		return Empty, nil
	}
	n := p.node(id)
	switch n.op {
	case opliteral:
		if mode == ModeIndexed {
			return newIndexedExtent(n.v.(Extent), c.ctl.comparer), nil
		}
		return n.v.(Extent), nil
	case opvar:
		s := c.frame.get(n.v.(*Variable).Slot)
		if mode == ModeIndexed {
			if _, ok := s.(*IndexedExtent); !ok {
				xs, err := Grounded(s)
				if err != nil {
					return nil, err
				}
				return newIndexedExtent(xs, c.ctl.comparer), nil
			}
		}
		return s, nil
	}
	switch mode {
	case ModeLazy:
		return newClosure(p, c, id), nil
	case ModeMemo:
		return newMemoClosure(p, c, id), nil
	}
	iter, err := p.iterate(c, id)
	if err != nil {
		return nil, err
	}
	xs, err := Materialize(iter)
	if err != nil {
		return nil, err
	}
	if mode == ModeIndexed {
		return newIndexedExtent(xs, c.ctl.comparer), nil
	}
	return xs, nil
}
