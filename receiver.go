package goxq

// Receiver accepts the output of push evaluation: construction events for
// new nodes and whole items.
type Receiver interface {
	StartElement(name QName) error
	Attribute(name QName, value string) error
	EndElement() error
	Text(s string) error
	Comment(s string) error
	Append(v Item) error
}

// SequenceOutputter is a Receiver collecting items; construction events
// build new trees.
type SequenceOutputter struct {
	b          TreeBuilder
	items      Extent
	lastAtomic bool
}

// NewSequenceOutputter returns an empty outputter.
func NewSequenceOutputter() *SequenceOutputter {
	return &SequenceOutputter{}
}

// Items returns the collected items.
func (o *SequenceOutputter) Items() Extent {
	return o.items
}

func (o *SequenceOutputter) StartElement(name QName) error {
	o.lastAtomic = false
	o.b.StartElement(name)
	return nil
}

func (o *SequenceOutputter) Attribute(name QName, value string) error {
	o.lastAtomic = false
	o.b.Attribute(name, value)
	o.collect()
	return nil
}

func (o *SequenceOutputter) EndElement() error {
	if o.b.Depth() == 0 {
		return newDynamicError("SXCH0003", "unbalanced end of element")
	}
	o.lastAtomic = false
	o.b.EndElement()
	o.collect()
	return nil
}

func (o *SequenceOutputter) Text(s string) error {
	o.lastAtomic = false
	o.b.Text(s)
	o.collect()
	return nil
}

func (o *SequenceOutputter) Comment(s string) error {
	o.lastAtomic = false
	o.b.Comment(s)
	o.collect()
	return nil
}

// Append adds an item. Inside an element, nodes are copied and adjacent
// atomic values become text separated by a space.
func (o *SequenceOutputter) Append(v Item) error {
	if o.b.Depth() == 0 {
		o.lastAtomic = false
		o.items = append(o.items, v)
		return nil
	}
	switch v := v.(type) {
	case Node:
		o.lastAtomic = false
		o.b.CopyNode(v)
	case Atomic:
		if o.lastAtomic {
			o.b.Text(" ")
		}
		o.b.Text(v.StringValue())
		o.lastAtomic = true
	default:
		return newTypeError("XQTY0105", "function item in element content: %s", v.StringValue())
	}
	return nil
}

func (o *SequenceOutputter) collect() {
	if o.b.Depth() == 0 {
		for _, n := range o.b.Roots() {
			o.items = append(o.items, n)
		}
	}
}

// EventKind is the kind of an Event.
type EventKind uint8

// Event kinds.
const (
	EventItem EventKind = iota
	EventStartElement
	EventAttribute
	EventEndElement
	EventText
	EventComment
)

// Event is one step of pull-event evaluation.
type Event struct {
	Kind  EventKind
	Item  Item
	Name  QName
	Value string
}

// EventIter is an iterator over events. Next returns nil at the end.
type EventIter interface {
	Next() (*Event, error)
}

type eventSlice []*Event

func (iter *eventSlice) Next() (*Event, error) {
	if len(*iter) == 0 {
		return nil, nil
	}
	e := (*iter)[0]
	*iter = (*iter)[1:]
	return e, nil
}

func newEvents(evs ...*Event) EventIter {
	iter := eventSlice(evs)
	return &iter
}

type itemEvents struct {
	base Iter
}

func (iter *itemEvents) Next() (*Event, error) {
	v, err := iter.base.Next()
	if err != nil || v == nil {
		return nil, err
	}
	return &Event{Kind: EventItem, Item: v}, nil
}

type concatEvents struct {
	next func() (EventIter, bool, error)
	cur  EventIter
}

func (iter *concatEvents) Next() (*Event, error) {
	for {
		if iter.cur == nil {
			it, ok, err := iter.next()
			if err != nil || !ok {
				return nil, err
			}
			iter.cur = it
		}
		e, err := iter.cur.Next()
		if err != nil || e != nil {
			return e, err
		}
		iter.cur = nil
	}
}

type errEvents struct {
	err error
}

func (iter *errEvents) Next() (*Event, error) {
	return nil, iter.err
}

// PushEvents sends every event to the receiver.
func PushEvents(evs EventIter, r Receiver) error {
	for {
		e, err := evs.Next()
		if err != nil || e == nil {
			return err
		}
		switch e.Kind {
		case EventItem:
			err = r.Append(e.Item)
		case EventStartElement:
			err = r.StartElement(e.Name)
		case EventAttribute:
			err = r.Attribute(e.Name, e.Value)
		case EventEndElement:
			err = r.EndElement()
		case EventText:
			err = r.Text(e.Value)
		case EventComment:
			err = r.Comment(e.Value)
		}
		if err != nil {
			return err
		}
	}
}
