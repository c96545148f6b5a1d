package goxq

import "fmt"

// TypeOf returns the name of the dynamic type of v, such as xs:integer or
// element().
func TypeOf(v Item) string {
	switch v := v.(type) {
	case nil:
		return "empty-sequence()"
	case Atomic:
		return v.Type().String()
	case Node:
		return nodeItemType(v.Kind()).String()
	case *FunctionItem:
		return TypeFunction.String()
	default:
		panic(fmt.Sprintf("invalid item: %[1]T (%[1]v)", v))
	}
}

func typeOf(v Item) string {
	return TypeOf(v)
}

// itemTypeOf returns the most specific static item type of v.
func itemTypeOf(v Item) ItemType {
	switch v := v.(type) {
	case Atomic:
		return v.Type()
	case Node:
		return nodeItemType(v.Kind())
	case *FunctionItem:
		return TypeFunction
	default:
		return TypeItem
	}
}

// matchesItemType reports whether v is an instance of t.
func matchesItemType(th TypeHierarchy, v Item, t ItemType) bool {
	return th.IsSubtype(itemTypeOf(v), t)
}
