package goxq

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Explain writes the expression trees of a compiled program to w, one
// expression per line with its static type, dependencies, special
// properties, and the evaluation modes of the arguments of calls.
func Explain(w io.Writer, code *Code) error {
	return code.p.explain(w)
}

type explainLine struct {
	tree  string
	props string
}

func (p *Program) explain(w io.Writer) error {
	var lines []explainLine
	add := func(header string, root ExprID) {
		lines = append(lines, explainLine{tree: header})
		p.explainTree(root, 1, &lines)
	}
	for _, fn := range p.funcs {
		header := "declare function " + fn.String() + " as " + fn.ResultType.String()
		if fn.tailRecursive {
			header += " (tail recursive)"
		}
		if fn.Body != noExpr {
			add(header, fn.Body)
		}
	}
	for _, f := range p.funcrefs {
		info := p.node(f).v.(*funcRefInfo)
		add(fmt.Sprintf("function reference %s#%d", info.name, info.arity), info.call)
	}
	if p.main != noExpr {
		add("main", p.main)
	}
	var width int
	for _, l := range lines {
		if l.props != "" {
			width = max(width, runewidth.StringWidth(l.tree))
		}
	}
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if l.props == "" {
			bw.WriteString(l.tree)
		} else {
			bw.WriteString(runewidth.FillRight(l.tree, width))
			bw.WriteString("  ")
			bw.WriteString(l.props)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (p *Program) explainTree(id ExprID, depth int, lines *[]explainLine) {
	*lines = append(*lines, explainLine{
		tree:  strings.Repeat("  ", depth) + p.describe(id),
		props: p.explainProps(id),
	})
	for _, a := range p.node(id).args {
		p.explainTree(a, depth+1, lines)
	}
}

func (p *Program) explainProps(id ExprID) string {
	var sb strings.Builder
	sb.WriteString(p.StaticType(id).String())
	if d := p.Dependencies(id); d != 0 {
		sb.WriteString(" deps=")
		sb.WriteString(d.String())
	}
	if s := p.SpecialProperties(id); s&^SpecialNonCreative != 0 {
		sb.WriteString(" special=")
		sb.WriteString((s &^ SpecialNonCreative).String())
	}
	if p.node(id).op == opcall {
		if modes := p.Modes(id); len(modes) > 0 {
			ms := make([]string, len(modes))
			for i, m := range modes {
				ms[i] = m.String()
			}
			sb.WriteString(" modes=")
			sb.WriteString(strings.Join(ms, ","))
		}
	}
	return sb.String()
}
