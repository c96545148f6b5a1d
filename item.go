package goxq

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Item is a member of a sequence: an atomic value, a node or a function item.
type Item interface {
	StringValue() string
	isItem()
}

// Atomic is an atomic value labeled with its type.
type Atomic interface {
	Item
	Type() ItemType
}

// String is an xs:string value.
type String string

// UntypedAtomic is an xs:untypedAtomic value, the result of atomizing a node.
type UntypedAtomic string

// Integer is an xs:integer value.
type Integer int64

// Double is an xs:double value.
type Double float64

// Boolean is an xs:boolean value.
type Boolean bool

// Decimal is an xs:decimal value held as an exact rational.
type Decimal struct {
	r *big.Rat
}

// NewDecimal returns a decimal holding a copy of r.
func NewDecimal(r *big.Rat) Decimal {
	return Decimal{new(big.Rat).Set(r)}
}

// ParseDecimal parses the lexical form of an xs:decimal.
func ParseDecimal(s string) (Decimal, error) {
	t := strings.TrimSpace(s)
	if t == "" || strings.ContainsAny(t, "eE/") {
		return Decimal{}, &Error{Code: "FORG0001", Message: "invalid lexical value for xs:decimal: " + strconv.Quote(s)}
	}
	r, ok := new(big.Rat).SetString(t)
	if !ok {
		return Decimal{}, &Error{Code: "FORG0001", Message: "invalid lexical value for xs:decimal: " + strconv.Quote(s)}
	}
	return Decimal{r}, nil
}

// Rat returns the value as a rational.
func (d Decimal) Rat() *big.Rat {
	if d.r == nil {
		return new(big.Rat)
	}
	return d.r
}

// QName is a qualified name; two names are equal when namespace and local
// part are equal, regardless of prefix.
type QName struct {
	Prefix string
	Space  string
	Local  string
}

// Name returns a QName with no namespace.
func Name(local string) QName {
	return QName{Local: local}
}

// Equal reports whether q and o denote the same name.
func (q QName) Equal(o QName) bool {
	return q.Space == o.Space && q.Local == o.Local
}

// String returns the lexical form of the name.
func (q QName) String() string {
	if q.Prefix != "" {
		return q.Prefix + ":" + q.Local
	}
	if q.Space != "" {
		return "Q{" + q.Space + "}" + q.Local
	}
	return q.Local
}

// FunctionItem is a function value referring to a user function.
type FunctionItem struct {
	fn   *UserFunction
	call ExprID
}

// Function returns the referenced user function.
func (f *FunctionItem) Function() *UserFunction {
	return f.fn
}

func (String) isItem()        {}
func (UntypedAtomic) isItem() {}
func (Integer) isItem()       {}
func (Double) isItem()        {}
func (Boolean) isItem()       {}
func (Decimal) isItem()       {}
func (QName) isItem()         {}
func (DateTime) isItem()      {}
func (*FunctionItem) isItem() {}

func (v String) StringValue() string        { return string(v) }
func (v UntypedAtomic) StringValue() string { return string(v) }
func (v Integer) StringValue() string       { return strconv.FormatInt(int64(v), 10) }
func (v Double) StringValue() string        { return formatDouble(float64(v)) }
func (v Decimal) StringValue() string       { return formatDecimal(v.Rat()) }
func (v QName) StringValue() string         { return v.String() }

func (v Boolean) StringValue() string {
	if v {
		return "true"
	}
	return "false"
}

func (f *FunctionItem) StringValue() string {
	return f.fn.Name.String() + "#" + strconv.Itoa(len(f.fn.Params))
}

func (String) Type() ItemType        { return TypeString }
func (UntypedAtomic) Type() ItemType { return TypeUntypedAtomic }
func (Integer) Type() ItemType       { return TypeInteger }
func (Double) Type() ItemType        { return TypeDouble }
func (Boolean) Type() ItemType       { return TypeBoolean }
func (Decimal) Type() ItemType       { return TypeDecimal }
func (QName) Type() ItemType         { return TypeQName }

func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case f == 0:
		if math.Signbit(f) {
			return "-0"
		}
		return "0"
	}
	if a := math.Abs(f); 1e-6 <= a && a < 1e6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'E', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	if exp[0] == '+' {
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if strings.HasPrefix(exp, "-") {
		exp = "-" + strings.TrimLeft(exp[1:], "0")
	}
	return mantissa + "E" + exp
}

func formatDecimal(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// IsNumeric reports whether v is an xs:integer, xs:decimal or xs:double.
func IsNumeric(v Item) bool {
	switch v.(type) {
	case Integer, Decimal, Double:
		return true
	}
	return false
}
