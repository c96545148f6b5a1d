package goxq

// Copy deep-clones the tree of id into new expressions and returns the
// copy. Payloads are copied so that rewriting the copy never changes the
// original; variables and function references are shared.
func (p *Program) Copy(id ExprID) ExprID {
	return p.copyTree(id, nil)
}

// copyTree copies id, replacing every reference to a variable in subst by
// a copy of the expression it maps to.
func (p *Program) copyTree(id ExprID, subst map[*Variable]ExprID) ExprID {
	n := p.node(id)
	if n.op == opvar {
		if r, ok := subst[n.v.(*Variable)]; ok {
			return p.copyTree(r, nil)
		}
	}
	args := make([]ExprID, len(n.args))
	for i, a := range n.args {
		args[i] = p.copyTree(a, subst)
	}
	n = p.node(id)
	r := p.newNode(n.op, clonePayload(n.v), args...)
	p.nodes[r].loc = n.loc
	return r
}

func clonePayload(v any) any {
	switch v := v.(type) {
	case Extent:
		return append(Extent(nil), v...)
	case *callInfo:
		c := *v
		return &c
	case *flworInfo:
		return v.clone()
	case *checkInfo:
		c := *v
		return &c
	case *Error:
		e := *v
		return &e
	default:
		return v
	}
}
