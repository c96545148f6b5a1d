package goxq

import (
	"fmt"
	"strings"
)

// ItemType is a static item type.
type ItemType uint8

// Item types known to the engine.
const (
	TypeItem ItemType = iota
	TypeAnyAtomic
	TypeNumeric
	TypeString
	TypeUntypedAtomic
	TypeInteger
	TypeDecimal
	TypeDouble
	TypeBoolean
	TypeQName
	TypeDateTime
	TypeDate
	TypeNode
	TypeDocument
	TypeElement
	TypeAttribute
	TypeText
	TypeComment
	TypeFunction
	TypeNone
)

var itemTypeNames = [...]string{
	TypeItem:          "item()",
	TypeAnyAtomic:     "xs:anyAtomicType",
	TypeNumeric:       "xs:numeric",
	TypeString:        "xs:string",
	TypeUntypedAtomic: "xs:untypedAtomic",
	TypeInteger:       "xs:integer",
	TypeDecimal:       "xs:decimal",
	TypeDouble:        "xs:double",
	TypeBoolean:       "xs:boolean",
	TypeQName:         "xs:QName",
	TypeDateTime:      "xs:dateTime",
	TypeDate:          "xs:date",
	TypeNode:          "node()",
	TypeDocument:      "document-node()",
	TypeElement:       "element()",
	TypeAttribute:     "attribute()",
	TypeText:          "text()",
	TypeComment:       "comment()",
	TypeFunction:      "function(*)",
	TypeNone:          "none",
}

func (t ItemType) String() string {
	if int(t) < len(itemTypeNames) {
		return itemTypeNames[t]
	}
	panic(fmt.Sprintf("invalid item type: %d", t))
}

// IsAtomic reports whether t is an atomic type.
func (t ItemType) IsAtomic() bool {
	return TypeAnyAtomic <= t && t <= TypeDate
}

// IsNode reports whether t is a node type.
func (t ItemType) IsNode() bool {
	return TypeNode <= t && t <= TypeComment
}

// Relation is the relationship between two item types.
type Relation uint8

// Relations returned by TypeHierarchy.Relationship.
const (
	SameType Relation = iota
	Subsumes
	Subsumed
	Overlaps
	Disjoint
)

// TypeHierarchy answers subtype questions over item types.
type TypeHierarchy interface {
	IsSubtype(sub, super ItemType) bool
	Relationship(a, b ItemType) Relation
	CommonSupertype(a, b ItemType) ItemType
}

// DefaultTypeHierarchy is the type hierarchy of the built-in types.
var DefaultTypeHierarchy TypeHierarchy = builtinHierarchy{}

type builtinHierarchy struct{}

var supertypes = [...]ItemType{
	TypeItem:          TypeItem,
	TypeAnyAtomic:     TypeItem,
	TypeNumeric:       TypeAnyAtomic,
	TypeString:        TypeAnyAtomic,
	TypeUntypedAtomic: TypeAnyAtomic,
	TypeInteger:       TypeDecimal,
	TypeDecimal:       TypeNumeric,
	TypeDouble:        TypeNumeric,
	TypeBoolean:       TypeAnyAtomic,
	TypeQName:         TypeAnyAtomic,
	TypeDateTime:      TypeAnyAtomic,
	TypeDate:          TypeAnyAtomic,
	TypeNode:          TypeItem,
	TypeDocument:      TypeNode,
	TypeElement:       TypeNode,
	TypeAttribute:     TypeNode,
	TypeText:          TypeNode,
	TypeComment:       TypeNode,
	TypeFunction:      TypeItem,
	TypeNone:          TypeNone,
}

func (builtinHierarchy) IsSubtype(sub, super ItemType) bool {
	if sub == TypeNone || sub == super || super == TypeItem {
		return true
	}
	for t := sub; t != TypeItem; {
		t = supertypes[t]
		if t == super {
			return true
		}
	}
	return false
}

func (h builtinHierarchy) Relationship(a, b ItemType) Relation {
	switch {
	case a == b:
		return SameType
	case h.IsSubtype(b, a):
		return Subsumes
	case h.IsSubtype(a, b):
		return Subsumed
	}
	return Disjoint
}

func (h builtinHierarchy) CommonSupertype(a, b ItemType) ItemType {
	if a == TypeNone {
		return b
	}
	if b == TypeNone {
		return a
	}
	for t := a; ; t = supertypes[t] {
		if h.IsSubtype(b, t) {
			return t
		}
		if t == TypeItem {
			return TypeItem
		}
	}
}

// Cardinality is a set of allowed sequence lengths.
type Cardinality uint8

const (
	allowsZero Cardinality = 1 << iota
	allowsOne
	allowsMany
)

// The cardinality lattice, plus the empty sequence.
const (
	CardEmpty      = allowsZero
	CardExactlyOne = allowsOne
	CardZeroOrOne  = allowsZero | allowsOne
	CardOneOrMore  = allowsOne | allowsMany
	CardZeroOrMore = allowsZero | allowsOne | allowsMany
)

// AllowsZero reports whether the empty sequence is allowed.
func (c Cardinality) AllowsZero() bool { return c&allowsZero != 0 }

// AllowsMany reports whether more than one item is allowed.
func (c Cardinality) AllowsMany() bool { return c&allowsMany != 0 }

// Subsumes reports whether every length allowed by o is allowed by c.
func (c Cardinality) Subsumes(o Cardinality) bool {
	return c|o == c
}

// Union is the cardinality of a value that has either cardinality.
func (c Cardinality) Union(o Cardinality) Cardinality {
	return c | o
}

// Sum is the cardinality of the concatenation of two sequences.
func (c Cardinality) Sum(o Cardinality) Cardinality {
	var r Cardinality
	if c.AllowsZero() && o.AllowsZero() {
		r |= allowsZero
	}
	if c&allowsOne != 0 && o.AllowsZero() || c.AllowsZero() && o&allowsOne != 0 {
		r |= allowsOne
	}
	if c.AllowsMany() || o.AllowsMany() || c&^allowsZero != 0 && o&^allowsZero != 0 {
		r |= allowsMany
	}
	return normalizeCardinality(r)
}

// Multiply is the cardinality of mapping each item of c to a sequence of o.
func (c Cardinality) Multiply(o Cardinality) Cardinality {
	if c == CardEmpty || o == CardEmpty {
		return CardEmpty
	}
	var r Cardinality
	if c.AllowsZero() || o.AllowsZero() {
		r |= allowsZero
	}
	if c&^allowsZero != 0 && o&^allowsZero != 0 {
		r |= allowsOne
	}
	if c.AllowsMany() && o&^allowsZero != 0 || o.AllowsMany() {
		r |= allowsMany
	}
	return normalizeCardinality(r)
}

// Intersect is the cardinality allowed by both c and o.
func (c Cardinality) Intersect(o Cardinality) Cardinality {
	return c & o
}

func normalizeCardinality(c Cardinality) Cardinality {
	if c == allowsMany {
		return CardOneOrMore
	}
	if c == allowsZero|allowsMany {
		return CardZeroOrMore
	}
	return c
}

func (c Cardinality) String() string {
	switch c {
	case CardEmpty:
		return "0"
	case CardExactlyOne:
		return ""
	case CardZeroOrOne:
		return "?"
	case CardOneOrMore:
		return "+"
	case CardZeroOrMore:
		return "*"
	default:
		return fmt.Sprintf("cardinality(%d)", uint8(c))
	}
}

// cardinalityOf returns the cardinality of a sequence of n items.
func cardinalityOf(n int) Cardinality {
	switch n {
	case 0:
		return CardEmpty
	case 1:
		return CardExactlyOne
	default:
		return CardOneOrMore
	}
}

// SequenceType is an item type with a cardinality.
type SequenceType struct {
	Item ItemType
	Card Cardinality
}

// AnySequence is item()*.
var AnySequence = SequenceType{TypeItem, CardZeroOrMore}

// EmptySequenceType is empty-sequence().
var EmptySequenceType = SequenceType{TypeNone, CardEmpty}

func (t SequenceType) String() string {
	if t.Card == CardEmpty {
		return "empty-sequence()"
	}
	return t.Item.String() + t.Card.String()
}

// ParseSequenceType parses forms such as xs:integer*, node()? and
// empty-sequence().
func ParseSequenceType(s string) (SequenceType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AnySequence, nil
	}
	if s == "empty-sequence()" {
		return EmptySequenceType, nil
	}
	card := CardExactlyOne
	switch s[len(s)-1] {
	case '?':
		card, s = CardZeroOrOne, s[:len(s)-1]
	case '*':
		card, s = CardZeroOrMore, s[:len(s)-1]
	case '+':
		card, s = CardOneOrMore, s[:len(s)-1]
	}
	for i, name := range itemTypeNames {
		if name == s && ItemType(i) != TypeNone {
			return SequenceType{ItemType(i), card}, nil
		}
	}
	return SequenceType{}, &Error{Code: "XPST0051", Message: "unknown type: " + s, Static: true}
}
