package goxq

import (
	"bytes"
	"io"
	"unicode/utf8"
)

// Marshal returns the serialization of v: a node as XML, an atomic value as
// its string value, and a function item as name#arity.
func Marshal(v Item) ([]byte, error) {
	var b bytes.Buffer
	if err := NewEncoder(&b).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Colors are the SGR parameters, such as "34;1", of the parts of the
// output. An empty parameter leaves the part uncolored.
type Colors struct {
	Element   string
	Attribute string
	Text      string
	Comment   string
	Atomic    string
}

// Encoder writes serialized items to an output stream.
type Encoder struct {
	out    io.Writer
	w      bytes.Buffer
	colors *Colors
	spaces []string
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{out: w}
}

// SetColors colors the output with c; nil disables colors.
func (e *Encoder) SetColors(c *Colors) {
	e.colors = c
}

// Encode writes the serialization of v.
func (e *Encoder) Encode(v Item) error {
	e.encode(v)
	_, err := e.out.Write(e.w.Bytes())
	e.w.Reset()
	return err
}

func (e *Encoder) encode(v Item) {
	switch v := v.(type) {
	case Node:
		e.encodeNode(v)
	case *FunctionItem:
		e.colored(e.color(func(c *Colors) string { return c.Atomic }), func() {
			e.w.WriteString(v.Function().String())
		})
	default:
		e.colored(e.color(func(c *Colors) string { return c.Atomic }), func() {
			e.w.WriteString(v.StringValue())
		})
	}
	if e.w.Len() > 8*1024 {
		e.out.Write(e.w.Bytes())
		e.w.Reset()
	}
}

func (e *Encoder) color(f func(*Colors) string) string {
	if e.colors == nil {
		return ""
	}
	return f(e.colors)
}

func (e *Encoder) colored(color string, f func()) {
	if color == "" {
		f()
		return
	}
	e.w.WriteString("\x1b[")
	e.w.WriteString(color)
	e.w.WriteByte('m')
	f()
	e.w.WriteString("\x1b[0m")
}

func (e *Encoder) encodeNode(n Node) {
	switch n.Kind() {
	case KindDocument:
		for _, c := range n.Children() {
			e.encodeNode(c)
		}
	case KindElement:
		e.encodeElement(n)
	case KindAttribute:
		e.encodeAttribute(n.Name().Local, n.StringValue())
	case KindText:
		e.colored(e.color(func(c *Colors) string { return c.Text }), func() {
			e.escape(n.StringValue(), false)
		})
	case KindComment:
		e.colored(e.color(func(c *Colors) string { return c.Comment }), func() {
			e.w.WriteString("<!--")
			e.w.WriteString(n.StringValue())
			e.w.WriteString("-->")
		})
	}
}

func (e *Encoder) encodeElement(n Node) {
	name := n.Name()
	var parent string
	if len(e.spaces) > 0 {
		parent = e.spaces[len(e.spaces)-1]
	}
	elementColor := e.color(func(c *Colors) string { return c.Element })
	e.colored(elementColor, func() {
		e.w.WriteByte('<')
		e.w.WriteString(name.Local)
	})
	if name.Space != parent {
		e.w.WriteByte(' ')
		e.encodeAttribute("xmlns", name.Space)
	}
	for _, a := range n.Attributes() {
		e.w.WriteByte(' ')
		e.encodeAttribute(a.Name().Local, a.StringValue())
	}
	children := n.Children()
	if len(children) == 0 {
		e.colored(elementColor, func() { e.w.WriteString("/>") })
		return
	}
	e.colored(elementColor, func() { e.w.WriteByte('>') })
	e.spaces = append(e.spaces, name.Space)
	for _, c := range children {
		e.encodeNode(c)
	}
	e.spaces = e.spaces[:len(e.spaces)-1]
	e.colored(elementColor, func() {
		e.w.WriteString("</")
		e.w.WriteString(name.Local)
		e.w.WriteByte('>')
	})
}

func (e *Encoder) encodeAttribute(name, value string) {
	e.colored(e.color(func(c *Colors) string { return c.Attribute }), func() {
		e.w.WriteString(name)
	})
	e.w.WriteString(`="`)
	e.escape(value, true)
	e.w.WriteByte('"')
}

// ref: EscapeText in encoding/xml
func (e *Encoder) escape(s string, attr bool) {
	start := 0
	for i := 0; i < len(s); {
		b := s[i]
		if b >= utf8.RuneSelf {
			c, size := utf8.DecodeRuneInString(s[i:])
			if c == utf8.RuneError && size == 1 {
				e.w.WriteString(s[start:i])
				e.w.WriteString("�")
				i += size
				start = i
				continue
			}
			i += size
			continue
		}
		var esc string
		switch b {
		case '&':
			esc = "&amp;"
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '"':
			if attr {
				esc = "&quot;"
			}
		case '\n':
			if attr {
				esc = "&#xA;"
			}
		case '\r':
			esc = "&#xD;"
		case '\t':
			if attr {
				esc = "&#x9;"
			}
		}
		if esc == "" {
			i++
			continue
		}
		e.w.WriteString(s[start:i])
		e.w.WriteString(esc)
		i++
		start = i
	}
	e.w.WriteString(s[start:])
}
