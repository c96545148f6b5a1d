package cli

import (
	"fmt"
	"strings"

	"github.com/itchyny/goxq"
)

var defaultColors = goxq.Colors{
	Element:   "34;1", // Bold Blue
	Attribute: "36",   // Cyan
	Text:      "",     // No color
	Comment:   "90",   // Bright black
	Atomic:    "32",   // Green
}

var colors = &goxq.Colors{}

func validColor(x string) bool {
	var num bool
	for _, c := range x {
		if '0' <= c && c <= '9' {
			num = true
		} else if c == ';' && num {
			num = false
		} else {
			return false
		}
	}
	return num || x == ""
}

// setColors reads colon-separated SGR parameters for elements, attributes,
// text, comments and atomic values. Omitted parts keep the default.
func setColors(spec string) error {
	*colors = defaultColors
	if spec == "" {
		return nil
	}
	var i int
	var color string
	for _, target := range []*string{
		&colors.Element, &colors.Attribute, &colors.Text,
		&colors.Comment, &colors.Atomic,
	} {
		if i >= len(spec) {
			break
		}
		if j := strings.IndexByte(spec[i:], ':'); j >= 0 {
			color = spec[i : i+j]
			i += j + 1
		} else {
			color = spec[i:]
			i = len(spec)
		}
		if !validColor(color) {
			return fmt.Errorf("invalid color: %q", color)
		}
		*target = color
	}
	return nil
}
