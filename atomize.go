package goxq

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// atomizeItem returns the typed value of v.
func atomizeItem(v Item) ([]Atomic, error) {
	switch v := v.(type) {
	case Atomic:
		return []Atomic{v}, nil
	case Node:
		switch v.Kind() {
		case KindComment:
			return []Atomic{String(v.StringValue())}, nil
		default:
			return []Atomic{UntypedAtomic(v.StringValue())}, nil
		}
	case *FunctionItem:
		return nil, newTypeError("FOTY0013", "cannot atomize a function item: %s", v.StringValue())
	default:
		return nil, newTypeError("XPTY0004", "cannot atomize: %s", typeErrorPreview(v))
	}
}

// atomizeIter atomizes every item of base.
type atomizeIter struct {
	base Iter
	buf  []Atomic
}

func (iter *atomizeIter) Next() (Item, error) {
	for len(iter.buf) == 0 {
		v, err := iter.base.Next()
		if err != nil || v == nil {
			return nil, err
		}
		if a, ok := v.(Atomic); ok {
			return a, nil
		}
		if iter.buf, err = atomizeItem(v); err != nil {
			return nil, err
		}
	}
	v := iter.buf[0]
	iter.buf = iter.buf[1:]
	return v, nil
}

// Atomize returns the atomized values of s.
func Atomize(s Sequence) ([]Atomic, error) {
	iter := &atomizeIter{base: s.Iterate()}
	var xs []Atomic
	for {
		v, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return xs, nil
		}
		xs = append(xs, v.(Atomic))
	}
}

// atomizeOptional atomizes s and requires at most one value.
func atomizeOptional(s Sequence, what string) (Atomic, error) {
	xs, err := Atomize(s)
	if err != nil {
		return nil, err
	}
	switch len(xs) {
	case 0:
		return nil, nil
	case 1:
		return xs[0], nil
	default:
		return nil, newTypeError("XPTY0004", "a sequence of more than one item is not allowed as the %s", what)
	}
}

// EffectiveBooleanValue computes the effective boolean value of s.
func EffectiveBooleanValue(s Sequence) (bool, error) {
	return effectiveBoolean(s.Iterate())
}

func effectiveBoolean(iter Iter) (bool, error) {
	first, err := iter.Next()
	if err != nil || first == nil {
		return false, err
	}
	if _, ok := first.(Node); ok {
		return true, nil
	}
	second, err := iter.Next()
	if err != nil {
		return false, err
	}
	if second != nil {
		return false, newTypeError("FORG0006", "effective boolean value is not defined for a sequence of two or more items starting with an atomic value")
	}
	switch v := first.(type) {
	case Boolean:
		return bool(v), nil
	case String:
		return v != "", nil
	case UntypedAtomic:
		return v != "", nil
	case Integer:
		return v != 0, nil
	case Decimal:
		return v.Rat().Sign() != 0, nil
	case Double:
		return v != 0 && !math.IsNaN(float64(v)), nil
	default:
		return false, newTypeError("FORG0006", "effective boolean value is not defined for %s", typeErrorPreview(first))
	}
}

// Cast converts v to the atomic type t, as "v cast as t" does.
func Cast(v Atomic, t ItemType) (Atomic, error) {
	return castAtomic(v, t)
}

// castAtomic converts v to the atomic type t.
func castAtomic(v Atomic, t ItemType) (Atomic, error) {
	if v.Type() == t || t == TypeAnyAtomic || DefaultTypeHierarchy.IsSubtype(v.Type(), t) {
		return v, nil
	}
	s := v.StringValue()
	switch t {
	case TypeString:
		return String(s), nil
	case TypeUntypedAtomic:
		return UntypedAtomic(s), nil
	case TypeNumeric, TypeDouble:
		return toDouble(v)
	case TypeDecimal:
		switch v := v.(type) {
		case Integer:
			return NewDecimal(new(big.Rat).SetInt64(int64(v))), nil
		case Double:
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, newDynamicError("FOCA0002", "cannot convert %s to xs:decimal", s)
			}
			return NewDecimal(new(big.Rat).SetFloat64(f)), nil
		case Boolean:
			if v {
				return NewDecimal(big.NewRat(1, 1)), nil
			}
			return NewDecimal(new(big.Rat)), nil
		}
		return ParseDecimal(s)
	case TypeInteger:
		switch v := v.(type) {
		case Decimal:
			r := v.Rat()
			q := new(big.Int).Quo(r.Num(), r.Denom())
			if !q.IsInt64() {
				return nil, newDynamicError("FOAR0002", "integer overflow converting %s", s)
			}
			return Integer(q.Int64()), nil
		case Double:
			f := math.Trunc(float64(v))
			if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
				return nil, newDynamicError("FOCA0002", "cannot convert %s to xs:integer", s)
			}
			return Integer(int64(f)), nil
		case Boolean:
			if v {
				return Integer(1), nil
			}
			return Integer(0), nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, newDynamicError("FORG0001", "invalid lexical value for xs:integer: %q", s)
		}
		return Integer(i), nil
	case TypeBoolean:
		switch v := v.(type) {
		case Integer, Decimal, Double:
			return Boolean(v.StringValue() != "0" && v.StringValue() != "NaN" && v.StringValue() != "-0"), nil
		}
		switch strings.TrimSpace(s) {
		case "true", "1":
			return Boolean(true), nil
		case "false", "0":
			return Boolean(false), nil
		}
		return nil, newDynamicError("FORG0001", "invalid lexical value for xs:boolean: %q", s)
	case TypeDateTime:
		return ParseDateTime(s)
	case TypeDate:
		if d, ok := v.(DateTime); ok {
			t := d.Time()
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
			return DateTime{t: t, tz: d.tz, date: true}, nil
		}
		return ParseDate(s)
	case TypeQName:
		return nil, newTypeError("XPTY0117", "cannot cast %s to xs:QName", typeErrorPreview(v))
	}
	return nil, newTypeError("XPTY0004", "cannot cast %s to %s", typeErrorPreview(v), t)
}

func toDouble(v Atomic) (Double, error) {
	switch v := v.(type) {
	case Double:
		return v, nil
	case Integer:
		return Double(v), nil
	case Decimal:
		f, _ := v.Rat().Float64()
		return Double(f), nil
	case Boolean:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	s := strings.TrimSpace(v.StringValue())
	switch s {
	case "INF", "+INF":
		return Double(math.Inf(1)), nil
	case "-INF":
		return Double(math.Inf(-1)), nil
	case "NaN":
		return Double(math.NaN()), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || strings.ContainsAny(s, "xXpP_") || strings.EqualFold(s, "inf") || strings.EqualFold(s, "infinity") {
		return 0, newDynamicError("FORG0001", "invalid lexical value for xs:double: %q", v.StringValue())
	}
	return Double(f), nil
}
