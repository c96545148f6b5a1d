package goxq

import "fmt"

// Param declares a parameter of a function.
type Param struct {
	Name string
	Type SequenceType
}

// Literal returns a constant sequence.
func (p *Program) Literal(items ...Item) ExprID {
	return p.newNode(opliteral, Extent(items))
}

// ContextItem returns the context item expression ".".
func (p *Program) ContextItem() ExprID {
	return p.newNode(opcontext, TypeItem)
}

// Ref returns a reference to a variable.
func (p *Program) Ref(v *Variable) ExprID {
	return p.newNode(opvar, v)
}

// Seq returns the concatenation of the values of xs.
func (p *Program) Seq(xs ...ExprID) ExprID {
	return p.newNode(opsequence, nil, xs...)
}

// Range returns the range expression "from to to".
func (p *Program) Range(from, to ExprID) ExprID {
	return p.newNode(oprange, nil, from, to)
}

// Arith returns an arithmetic expression.
func (p *Program) Arith(op Operator, l, r ExprID) ExprID {
	if op.IsComparison() {
		panic(fmt.Sprintf("goxq: not an arithmetic operator: %s", op))
	}
	return p.newNode(oparith, op, l, r)
}

// ValueCompare returns a value comparison such as "eq".
func (p *Program) ValueCompare(op Operator, l, r ExprID) ExprID {
	if !op.IsComparison() {
		panic(fmt.Sprintf("goxq: not a comparison operator: %s", op))
	}
	return p.newNode(opcompare, op, l, r)
}

// GeneralCompare returns a general comparison such as "=".
func (p *Program) GeneralCompare(op Operator, l, r ExprID) ExprID {
	if !op.IsComparison() {
		panic(fmt.Sprintf("goxq: not a comparison operator: %s", op))
	}
	return p.newNode(opgeneral, op, l, r)
}

// And returns "l and r".
func (p *Program) And(l, r ExprID) ExprID {
	return p.newNode(opand, nil, l, r)
}

// Or returns "l or r".
func (p *Program) Or(l, r ExprID) ExprID {
	return p.newNode(opor, nil, l, r)
}

// If returns a conditional expression.
func (p *Program) If(cond, then, els ExprID) ExprID {
	return p.newNode(opif, nil, cond, then, els)
}

// Path returns "start/step": step is evaluated with each item of start as
// the context item.
func (p *Program) Path(start, step ExprID) ExprID {
	return p.newNode(oppath, nil, start, step)
}

// Step returns an axis step.
func (p *Program) Step(axis Axis, test NodeTest) ExprID {
	return p.newNode(opstep, stepInfo{axis, test})
}

// Filter returns "base[pred]".
func (p *Program) Filter(base, pred ExprID) ExprID {
	return p.newNode(opfilter, nil, base, pred)
}

// Call returns a call to a user function or a builtin function, resolved
// when the program is compiled.
func (p *Program) Call(name QName, args ...ExprID) ExprID {
	return p.newNode(opcall, &callInfo{name: name}, args...)
}

// FuncRef returns a named function reference "name#arity". The reference
// owns a synthesized call whose arguments read the values supplied by a
// dynamic call.
func (p *Program) FuncRef(name QName, arity int) ExprID {
	args := make([]ExprID, arity)
	for i := range args {
		args[i] = p.Ref(&Variable{Name: fmt.Sprintf("arg%d", i+1), Type: AnySequence, Slot: i, RefCount: 1})
	}
	call := p.Call(name, args...)
	id := p.newNode(opfuncref, &funcRefInfo{name: name, arity: arity, call: call})
	p.funcrefs = append(p.funcrefs, id)
	return id
}

// DynamicCall returns "f(args...)" for a function item f.
func (p *Program) DynamicCall(f ExprID, args ...ExprID) ExprID {
	return p.newNode(opdyncall, nil, append([]ExprID{f}, args...)...)
}

// Element returns an element constructor.
func (p *Program) Element(name QName, content ...ExprID) ExprID {
	return p.newNode(opelement, name, content...)
}

// Attribute returns an attribute constructor.
func (p *Program) Attribute(name QName, value ExprID) ExprID {
	return p.newNode(opattribute, name, value)
}

// Text returns a text node constructor.
func (p *Program) Text(value ExprID) ExprID {
	return p.newNode(optext, nil, value)
}

// Comment returns a comment constructor.
func (p *Program) Comment(value ExprID) ExprID {
	return p.newNode(opcomment, nil, value)
}

// Fail returns an expression raising the dynamic error when evaluated.
func (p *Program) Fail(code, format string, args ...any) ExprID {
	return p.newNode(operror, newDynamicError(code, format, args...))
}

// DeclareFunction declares a user function. The body is set by SetBody so
// that it can refer to the parameters and call the function itself.
func (p *Program) DeclareFunction(name QName, result SequenceType, params ...Param) (*UserFunction, error) {
	if p.Function(name, len(params)) != nil {
		return nil, newStaticError("XQST0034", Location{}, "function %s#%d is declared twice", name, len(params))
	}
	fn := &UserFunction{Name: name, Body: noExpr, ResultType: result}
	for _, param := range params {
		for _, v := range fn.Params {
			if v.Name == param.Name {
				return nil, newStaticError("XQST0039", Location{}, "duplicate parameter $%s of %s", param.Name, name)
			}
		}
		fn.Params = append(fn.Params, fn.scope.Declare(param.Name, param.Type))
	}
	p.functions[keyOf(name, len(params))] = fn
	p.funcs = append(p.funcs, fn)
	return fn, nil
}

// SetBody sets the body of a declared function.
func (p *Program) SetBody(fn *UserFunction, body ExprID) {
	fn.Body = body
	p.nodes[body].parent = noExpr
}

// Scope returns the scope for the variables of the main expression.
func (p *Program) Scope() *Scope {
	return &p.scope
}

// DeclareVariable declares an external variable, supplied when the program
// runs, in the scope of the main expression.
func (p *Program) DeclareVariable(name string, t SequenceType) *Variable {
	v := p.scope.Declare(name, t)
	p.externals = append(p.externals, v)
	return v
}

// Externals returns the external variables in declaration order.
func (p *Program) Externals() []*Variable {
	return p.externals
}
