package goxq

import "strings"

// process evaluates id in push mode, writing to the receiver of c.
func (p *Program) process(c *Context, id ExprID) error {
	return locate(p.processOp(c, id), p.nodes[id].loc)
}

func (p *Program) processOp(c *Context, id ExprID) error {
	n := p.node(id)
	switch n.op {
	case opsequence:
		for _, a := range n.args {
			if err := p.process(c, a); err != nil {
				return err
			}
		}
		return nil
	case opif:
		b, err := p.effectiveBooleanValue(c, n.args[0])
		if err != nil {
			return err
		}
		if b {
			return p.process(c, n.args[1])
		}
		return p.process(c, n.args[2])
	case opcall:
		return p.processCall(c, id)
	case opflwor:
		return p.processFLWOR(c, id)
	case opelement:
		if err := c.out.StartElement(n.v.(QName)); err != nil {
			return err
		}
		for _, a := range n.args {
			if err := p.process(c, a); err != nil {
				return err
			}
		}
		return c.out.EndElement()
	case opattribute:
		s, _, err := p.stringValueOf(c, n.args[0])
		if err != nil {
			return err
		}
		return c.out.Attribute(n.v.(QName), s)
	case optext:
		s, ok, err := p.stringValueOf(c, n.args[0])
		if err != nil || !ok {
			return err
		}
		return c.out.Text(s)
	case opcomment:
		s, _, err := p.stringValueOf(c, n.args[0])
		if err != nil {
			return err
		}
		if err := checkComment(s); err != nil {
			return err
		}
		return c.out.Comment(s)
	}
	iter, err := p.iterate(c, id)
	if err != nil {
		return err
	}
	for {
		v, err := iter.Next()
		if err != nil || v == nil {
			return err
		}
		if err := c.out.Append(v); err != nil {
			return err
		}
	}
}

func checkComment(s string) error {
	if strings.Contains(s, "--") || strings.HasSuffix(s, "-") {
		return newDynamicError("XQDY0072", "invalid characters in comment content: %q", s)
	}
	return nil
}

// iterateEvents evaluates id in pull-event mode.
func (p *Program) iterateEvents(c *Context, id ExprID) (EventIter, error) {
	evs, err := p.iterateEventsOp(c, id)
	if err != nil {
		return nil, locate(err, p.nodes[id].loc)
	}
	return evs, nil
}

func (p *Program) iterateEventsOp(c *Context, id ExprID) (EventIter, error) {
	n := p.node(id)
	switch n.op {
	case opsequence:
		return p.concatEvents(c, n.args), nil
	case opif:
		b, err := p.effectiveBooleanValue(c, n.args[0])
		if err != nil {
			return nil, err
		}
		if b {
			return p.iterateEvents(c, n.args[1])
		}
		return p.iterateEvents(c, n.args[2])
	case opcall:
		return p.eventsCall(c, id)
	case opflwor:
		return p.eventsFLWOR(c, id)
	case opelement:
		var i int
		parts := []func() (EventIter, error){
			func() (EventIter, error) {
				return newEvents(&Event{Kind: EventStartElement, Name: n.v.(QName)}), nil
			},
			func() (EventIter, error) { return p.concatEvents(c, n.args), nil },
			func() (EventIter, error) { return newEvents(&Event{Kind: EventEndElement}), nil },
		}
		return &concatEvents{next: func() (EventIter, bool, error) {
			if i == len(parts) {
				return nil, false, nil
			}
			i++
			evs, err := parts[i-1]()
			return evs, true, err
		}}, nil
	case opattribute:
		s, _, err := p.stringValueOf(c, n.args[0])
		if err != nil {
			return nil, err
		}
		return newEvents(&Event{Kind: EventAttribute, Name: n.v.(QName), Value: s}), nil
	case optext:
		s, ok, err := p.stringValueOf(c, n.args[0])
		if err != nil || !ok {
			return newEvents(), err
		}
		return newEvents(&Event{Kind: EventText, Value: s}), nil
	case opcomment:
		s, _, err := p.stringValueOf(c, n.args[0])
		if err != nil {
			return nil, err
		}
		if err := checkComment(s); err != nil {
			return nil, err
		}
		return newEvents(&Event{Kind: EventComment, Value: s}), nil
	}
	iter, err := p.iterate(c, id)
	if err != nil {
		return nil, err
	}
	return &itemEvents{iter}, nil
}

func (p *Program) concatEvents(c *Context, ids []ExprID) EventIter {
	var i int
	return &concatEvents{next: func() (EventIter, bool, error) {
		if i == len(ids) {
			return nil, false, nil
		}
		i++
		evs, err := p.iterateEvents(c, ids[i-1])
		return evs, true, err
	}}
}
