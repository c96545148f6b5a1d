package goxq

// prependIter returns first and then the items of rest.
type prependIter struct {
	first Item
	rest  Iter
}

func prepend(first Item, rest Iter) Iter {
	if first == nil {
		return rest
	}
	return &prependIter{first, rest}
}

func (iter *prependIter) Next() (Item, error) {
	if v := iter.first; v != nil {
		iter.first = nil
		return v, nil
	}
	return iter.rest.Next()
}
