package goxq

import (
	"cmp"
	"math"
	"math/big"
	"strconv"
	"time"
)

// AtomicComparer compares atomic values. The implicit timezone applies to
// date and time values that have no timezone of their own.
type AtomicComparer interface {
	// Compare orders a and b, failing when they are not comparable.
	Compare(a, b Atomic, tz *time.Location) (int, error)
	// Equal tests a and b for deep equality: values of incomparable types
	// are unequal, and NaN equals NaN.
	Equal(a, b Atomic, tz *time.Location) (bool, error)
	// ComparisonKey returns a key that is equal for two values exactly when
	// Equal reports true.
	ComparisonKey(v Atomic, tz *time.Location) (ComparisonKey, error)
}

// ComparisonKey is a comparable stand-in for an atomic value.
type ComparisonKey struct {
	class keyClass
	text  string
}

type keyClass uint8

const (
	keyNumeric keyClass = iota + 1
	keyNaN
	keyString
	keyBoolean
	keyQName
	keyDateTime
	keyDate
	keyOther
)

// GenericComparer compares values of the built-in atomic types, strings
// under a collation.
type GenericComparer struct {
	collation *Collation
}

// NewComparer returns a comparer using the collation; nil means codepoint.
func NewComparer(collation *Collation) *GenericComparer {
	return &GenericComparer{collation}
}

// Collation returns the collation of the comparer.
func (c *GenericComparer) Collation() *Collation {
	return c.collation
}

// Compare a and b with the codepoint collation, returning 0 if a == b, -1
// if a < b, and +1 if a > b.
func Compare(a, b Atomic) (int, error) {
	return (&GenericComparer{}).Compare(a, b, time.UTC)
}

func (c *GenericComparer) Compare(a, b Atomic, tz *time.Location) (int, error) {
	if IsNumeric(a) && IsNumeric(b) {
		r, unordered := compareNumeric(a, b)
		if unordered {
			return cmp.Compare(nanRank(a), nanRank(b)), nil
		}
		return r, nil
	}
	switch a := a.(type) {
	case String, UntypedAtomic:
		switch b.(type) {
		case String, UntypedAtomic:
			return c.collation.Compare(a.StringValue(), b.StringValue()), nil
		}
	case Boolean:
		if b, ok := b.(Boolean); ok {
			return cmp.Compare(boolRank(a), boolRank(b)), nil
		}
	case DateTime:
		if b, ok := b.(DateTime); ok && a.date == b.date {
			return a.instant(tz).Compare(b.instant(tz)), nil
		}
	}
	return 0, newTypeError("XPTY0004", "cannot compare %s with %s", typeErrorPreview(a), typeErrorPreview(b))
}

func (c *GenericComparer) Equal(a, b Atomic, tz *time.Location) (bool, error) {
	if IsNumeric(a) && IsNumeric(b) {
		r, unordered := compareNumeric(a, b)
		if unordered {
			return isNaN(a) && isNaN(b), nil
		}
		return r == 0, nil
	}
	if a, ok := a.(QName); ok {
		b, ok := b.(QName)
		return ok && a.Equal(b), nil
	}
	r, err := c.Compare(a, b, tz)
	if err != nil {
		return false, nil
	}
	return r == 0, nil
}

func (c *GenericComparer) ComparisonKey(v Atomic, tz *time.Location) (ComparisonKey, error) {
	switch v := v.(type) {
	case Integer:
		return ComparisonKey{keyNumeric, strconv.FormatInt(int64(v), 10)}, nil
	case Decimal:
		return ComparisonKey{keyNumeric, ratKey(v.Rat())}, nil
	case Double:
		f := float64(v)
		switch {
		case math.IsNaN(f):
			return ComparisonKey{class: keyNaN}, nil
		case math.IsInf(f, 1):
			return ComparisonKey{keyNumeric, "INF"}, nil
		case math.IsInf(f, -1):
			return ComparisonKey{keyNumeric, "-INF"}, nil
		}
		return ComparisonKey{keyNumeric, ratKey(new(big.Rat).SetFloat64(f))}, nil
	case String:
		return ComparisonKey{keyString, c.collation.Key(string(v))}, nil
	case UntypedAtomic:
		return ComparisonKey{keyString, c.collation.Key(string(v))}, nil
	case Boolean:
		return ComparisonKey{keyBoolean, v.StringValue()}, nil
	case QName:
		return ComparisonKey{keyQName, v.Space + "}" + v.Local}, nil
	case DateTime:
		class := keyDateTime
		if v.date {
			class = keyDate
		}
		return ComparisonKey{class, v.instant(tz).UTC().Format(time.RFC3339Nano)}, nil
	}
	return ComparisonKey{}, newTypeError("XPTY0004", "no comparison key for %s", typeErrorPreview(v))
}

func ratKey(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return r.RatString()
}

// compareNumeric compares two numeric values exactly. The boolean is true
// when either value is NaN.
func compareNumeric(a, b Atomic) (int, bool) {
	if x, ok := a.(Integer); ok {
		if y, ok := b.(Integer); ok {
			return cmp.Compare(x, y), false
		}
	}
	if isNaN(a) || isNaN(b) {
		return 0, true
	}
	fa, fb := infSign(a), infSign(b)
	if fa != 0 || fb != 0 {
		return cmp.Compare(fa, fb), false
	}
	return toRat(a).Cmp(toRat(b)), false
}

func toRat(v Atomic) *big.Rat {
	switch v := v.(type) {
	case Integer:
		return new(big.Rat).SetInt64(int64(v))
	case Decimal:
		return v.Rat()
	case Double:
		return new(big.Rat).SetFloat64(float64(v))
	}
	return new(big.Rat)
}

func isNaN(v Atomic) bool {
	f, ok := v.(Double)
	return ok && math.IsNaN(float64(f))
}

func infSign(v Atomic) int {
	if f, ok := v.(Double); ok && math.IsInf(float64(f), 0) {
		if f > 0 {
			return 1
		}
		return -1
	}
	return 0
}

func nanRank(v Atomic) int {
	if isNaN(v) {
		return 0
	}
	return 1
}

func boolRank(v Boolean) int {
	if v {
		return 1
	}
	return 0
}

// DeepEqual reports whether two sequences are deep-equal under cmp.
func DeepEqual(a, b Sequence, cmp AtomicComparer, tz *time.Location) (bool, error) {
	xs, err := Grounded(a)
	if err != nil {
		return false, err
	}
	ys, err := Grounded(b)
	if err != nil {
		return false, err
	}
	if len(xs) != len(ys) {
		return false, nil
	}
	for i := range xs {
		ok, err := deepEqualItems(xs[i], ys[i], cmp, tz)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func deepEqualItems(x, y Item, cmp AtomicComparer, tz *time.Location) (bool, error) {
	switch x := x.(type) {
	case Atomic:
		y, ok := y.(Atomic)
		if !ok {
			return false, nil
		}
		return cmp.Equal(x, y, tz)
	case Node:
		y, ok := y.(Node)
		if !ok {
			return false, nil
		}
		return deepEqualNodes(x, y), nil
	default:
		return false, newTypeError("FOTY0015", "cannot compare function items")
	}
}

func deepEqualNodes(x, y Node) bool {
	if x.Kind() != y.Kind() || !x.Name().Equal(y.Name()) {
		return false
	}
	switch x.Kind() {
	case KindAttribute, KindText, KindComment:
		return x.StringValue() == y.StringValue()
	}
	xa, ya := x.Attributes(), y.Attributes()
	if len(xa) != len(ya) {
		return false
	}
	for _, a := range xa {
		var found bool
		for _, b := range ya {
			if a.Name().Equal(b.Name()) {
				found = a.StringValue() == b.StringValue()
				break
			}
		}
		if !found {
			return false
		}
	}
	xc, yc := significantChildren(x), significantChildren(y)
	if len(xc) != len(yc) {
		return false
	}
	for i := range xc {
		if !deepEqualNodes(xc[i], yc[i]) {
			return false
		}
	}
	return true
}

func significantChildren(n Node) []Node {
	var xs []Node
	for _, c := range n.Children() {
		if c.Kind() != KindComment {
			xs = append(xs, c)
		}
	}
	return xs
}
