package goxq

import (
	"math"
	"math/big"
	"time"
)

// Operator is an arithmetic or comparison operator.
type Operator int

// Operators.
const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv
	OpIdiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var operatorMap = map[string]Operator{
	"+":    OpAdd,
	"-":    OpSub,
	"*":    OpMul,
	"div":  OpDiv,
	"idiv": OpIdiv,
	"mod":  OpMod,
	"eq":   OpEq,
	"ne":   OpNe,
	"lt":   OpLt,
	"le":   OpLe,
	"gt":   OpGt,
	"ge":   OpGe,
}

// ParseOperator looks up an operator by its value-comparison or arithmetic
// token; general comparison tokens (=, !=, <, <=, >, >=) are also accepted.
func ParseOperator(s string) (Operator, bool) {
	switch s {
	case "=":
		return OpEq, true
	case "!=":
		return OpNe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	}
	op, ok := operatorMap[s]
	return op, ok
}

// String implements Stringer.
func (op Operator) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "div"
	case OpIdiv:
		return "idiv"
	case OpMod:
		return "mod"
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpLt:
		return "lt"
	case OpLe:
		return "le"
	case OpGt:
		return "gt"
	case OpGe:
		return "ge"
	}
	panic(op)
}

// GoString implements GoStringer.
func (op Operator) GoString() string {
	switch op {
	case OpAdd:
		return "OpAdd"
	case OpSub:
		return "OpSub"
	case OpMul:
		return "OpMul"
	case OpDiv:
		return "OpDiv"
	case OpIdiv:
		return "OpIdiv"
	case OpMod:
		return "OpMod"
	case OpEq:
		return "OpEq"
	case OpNe:
		return "OpNe"
	case OpLt:
		return "OpLt"
	case OpLe:
		return "OpLe"
	case OpGt:
		return "OpGt"
	case OpGe:
		return "OpGe"
	}
	panic(op)
}

// generalSymbol returns the token of the operator as a general comparison.
func (op Operator) generalSymbol() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return op.String()
}

// IsComparison reports whether op compares values.
func (op Operator) IsComparison() bool {
	return op >= OpEq
}

// binopTypeSwitch promotes two numeric operands to a common type and calls
// the matching callback.
func binopTypeSwitch(
	l, r Atomic,
	callbackIntegers func(int64, int64) (Atomic, error),
	callbackDecimals func(*big.Rat, *big.Rat) (Atomic, error),
	callbackDoubles func(float64, float64) (Atomic, error),
	fallback func(Atomic, Atomic) (Atomic, error),
) (Atomic, error) {
	if _, ok := l.(UntypedAtomic); ok {
		d, err := toDouble(l)
		if err != nil {
			return nil, err
		}
		l = d
	}
	if _, ok := r.(UntypedAtomic); ok {
		d, err := toDouble(r)
		if err != nil {
			return nil, err
		}
		r = d
	}
	switch l := l.(type) {
	case Integer:
		switch r := r.(type) {
		case Integer:
			return callbackIntegers(int64(l), int64(r))
		case Decimal:
			return callbackDecimals(toRat(l), r.Rat())
		case Double:
			return callbackDoubles(float64(l), float64(r))
		}
	case Decimal:
		switch r := r.(type) {
		case Integer, Decimal:
			return callbackDecimals(l.Rat(), toRat(r))
		case Double:
			f, _ := l.Rat().Float64()
			return callbackDoubles(f, float64(r))
		}
	case Double:
		switch r := r.(type) {
		case Integer, Decimal, Double:
			f, _ := toDouble(r)
			return callbackDoubles(float64(l), float64(f))
		}
	}
	return fallback(l, r)
}

func arithTypeError(op Operator) func(Atomic, Atomic) (Atomic, error) {
	return func(l, r Atomic) (Atomic, error) {
		return nil, newTypeError("XPTY0004", "arithmetic operator %s is not defined for %s and %s",
			op, typeErrorPreview(l), typeErrorPreview(r))
	}
}

func divisionByZero() error {
	return newDynamicError("FOAR0001", "division by zero")
}

func integerOverflow() error {
	return newDynamicError("FOAR0002", "integer overflow")
}

func ratToInteger(r *big.Rat) (Atomic, error) {
	q := new(big.Int).Quo(r.Num(), r.Denom())
	if !q.IsInt64() {
		return nil, integerOverflow()
	}
	return Integer(q.Int64()), nil
}

// arith applies an arithmetic operator to two atomic values.
func arith(op Operator, l, r Atomic) (Atomic, error) {
	switch op {
	case OpAdd:
		return funcOpAdd(l, r)
	case OpSub:
		return funcOpSub(l, r)
	case OpMul:
		return funcOpMul(l, r)
	case OpDiv:
		return funcOpDiv(l, r)
	case OpIdiv:
		return funcOpIdiv(l, r)
	case OpMod:
		return funcOpMod(l, r)
	}
	panic(op)
}

func funcOpAdd(l, r Atomic) (Atomic, error) {
	return binopTypeSwitch(l, r,
		func(l, r int64) (Atomic, error) {
			v := l + r
			if (v > l) != (r > 0) {
				return nil, integerOverflow()
			}
			return Integer(v), nil
		},
		func(l, r *big.Rat) (Atomic, error) { return Decimal{new(big.Rat).Add(l, r)}, nil },
		func(l, r float64) (Atomic, error) { return Double(l + r), nil },
		arithTypeError(OpAdd),
	)
}

func funcOpSub(l, r Atomic) (Atomic, error) {
	return binopTypeSwitch(l, r,
		func(l, r int64) (Atomic, error) {
			v := l - r
			if (v < l) != (r > 0) {
				return nil, integerOverflow()
			}
			return Integer(v), nil
		},
		func(l, r *big.Rat) (Atomic, error) { return Decimal{new(big.Rat).Sub(l, r)}, nil },
		func(l, r float64) (Atomic, error) { return Double(l - r), nil },
		arithTypeError(OpSub),
	)
}

func funcOpMul(l, r Atomic) (Atomic, error) {
	return binopTypeSwitch(l, r,
		func(l, r int64) (Atomic, error) {
			if l == 0 || r == 0 {
				return Integer(0), nil
			}
			v := l * r
			if v/r != l || l == -1 && r == math.MinInt64 || r == -1 && l == math.MinInt64 {
				return nil, integerOverflow()
			}
			return Integer(v), nil
		},
		func(l, r *big.Rat) (Atomic, error) { return Decimal{new(big.Rat).Mul(l, r)}, nil },
		func(l, r float64) (Atomic, error) { return Double(l * r), nil },
		arithTypeError(OpMul),
	)
}

func funcOpDiv(l, r Atomic) (Atomic, error) {
	divideRats := func(l, r *big.Rat) (Atomic, error) {
		if r.Sign() == 0 {
			return nil, divisionByZero()
		}
		return Decimal{new(big.Rat).Quo(l, r)}, nil
	}
	return binopTypeSwitch(l, r,
		func(l, r int64) (Atomic, error) {
			return divideRats(new(big.Rat).SetInt64(l), new(big.Rat).SetInt64(r))
		},
		divideRats,
		func(l, r float64) (Atomic, error) { return Double(l / r), nil },
		arithTypeError(OpDiv),
	)
}

func funcOpIdiv(l, r Atomic) (Atomic, error) {
	return binopTypeSwitch(l, r,
		func(l, r int64) (Atomic, error) {
			if r == 0 {
				return nil, divisionByZero()
			}
			if l == math.MinInt64 && r == -1 {
				return nil, integerOverflow()
			}
			return Integer(l / r), nil
		},
		func(l, r *big.Rat) (Atomic, error) {
			if r.Sign() == 0 {
				return nil, divisionByZero()
			}
			return ratToInteger(new(big.Rat).Quo(l, r))
		},
		func(l, r float64) (Atomic, error) {
			if r == 0 {
				return nil, divisionByZero()
			}
			q := math.Trunc(l / r)
			if math.IsNaN(q) || math.IsInf(q, 0) || q > math.MaxInt64 || q < math.MinInt64 {
				return nil, newDynamicError("FOAR0002", "integer division of %s by %s", formatDouble(l), formatDouble(r))
			}
			return Integer(int64(q)), nil
		},
		arithTypeError(OpIdiv),
	)
}

func funcOpMod(l, r Atomic) (Atomic, error) {
	return binopTypeSwitch(l, r,
		func(l, r int64) (Atomic, error) {
			if r == 0 {
				return nil, divisionByZero()
			}
			if r == -1 {
				return Integer(0), nil
			}
			return Integer(l % r), nil
		},
		func(l, r *big.Rat) (Atomic, error) {
			if r.Sign() == 0 {
				return nil, divisionByZero()
			}
			q := new(big.Rat).Quo(l, r)
			t := new(big.Rat).SetInt(new(big.Int).Quo(q.Num(), q.Denom()))
			return Decimal{new(big.Rat).Sub(l, t.Mul(t, r))}, nil
		},
		func(l, r float64) (Atomic, error) { return Double(math.Mod(l, r)), nil },
		arithTypeError(OpMod),
	)
}

// valueCompare applies a value comparison operator. Untyped operands
// compare as strings.
func valueCompare(op Operator, l, r Atomic, cmp AtomicComparer, tz *time.Location) (bool, error) {
	if v, ok := l.(UntypedAtomic); ok {
		l = String(v)
	}
	if v, ok := r.(UntypedAtomic); ok {
		r = String(v)
	}
	if IsNumeric(l) && IsNumeric(r) && (isNaN(l) || isNaN(r)) {
		return op == OpNe, nil
	}
	if op == OpEq || op == OpNe {
		if _, ok := l.(QName); ok {
			q, ok := r.(QName)
			if !ok {
				return false, newTypeError("XPTY0004", "cannot compare %s with %s", typeErrorPreview(l), typeErrorPreview(r))
			}
			return l.(QName).Equal(q) == (op == OpEq), nil
		}
	}
	c, err := cmp.Compare(l, r, tz)
	if err != nil {
		return false, err
	}
	switch op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	}
	panic(op)
}

// generalCompare applies the operator to one pair of a general comparison,
// converting an untyped operand to the type of the other.
func generalCompare(op Operator, l, r Atomic, cmp AtomicComparer, tz *time.Location) (bool, error) {
	var err error
	_, lu := l.(UntypedAtomic)
	_, ru := r.(UntypedAtomic)
	switch {
	case lu && ru:
	case lu:
		if l, err = promoteUntyped(l, r); err != nil {
			return false, err
		}
	case ru:
		if r, err = promoteUntyped(r, l); err != nil {
			return false, err
		}
	}
	return valueCompare(op, l, r, cmp, tz)
}

func promoteUntyped(v, other Atomic) (Atomic, error) {
	switch {
	case IsNumeric(other):
		return toDouble(v)
	case other.Type() == TypeString:
		return String(v.StringValue()), nil
	default:
		return castAtomic(v, other.Type())
	}
}
