package cli

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"

	"github.com/itchyny/goxq"
)

func TestSourceLine(t *testing.T) {
	testCases := []struct {
		contents string
		line     int
		expected string
		missing  bool
	}{
		{contents: "", line: 1, expected: ""},
		{contents: "abc", line: 0, missing: true},
		{contents: "abc", line: 1, expected: "abc"},
		{contents: "abc", line: 2, missing: true},
		{contents: "abc\ndef\nghi", line: 2, expected: "def"},
		{contents: "abc\r\ndef\r\nghi", line: 3, expected: "ghi"},
		{contents: "abc\rdef", line: 2, expected: "def"},
		{contents: "abc\n０１２\n", line: 2, expected: "０１２"},
	}
	for _, tc := range testCases {
		got := sourceLine(tc.contents, tc.line)
		if tc.missing {
			assert.Nil(t, got, "%q:%d", tc.contents, tc.line)
			continue
		}
		assert.Equal(t, tc.expected, string(got), "%q:%d", tc.contents, tc.line)
	}
}

func TestClipLine(t *testing.T) {
	digits := strings.Repeat("0123456789", 10)
	testCases := []struct {
		name     string
		src      string
		column   int
		expected string
		width    int
	}{
		{"start", "abc", 0, "abc", 0},
		{"middle", "abc", 2, "abc", 2},
		{"past the end", "abc", 10, "abc", 3},
		{"negative column", "abc", -1, "abc", 0},
		{"wide characters", "０１２", 2, "０１２", 4},
		{"long line from start", digits, 3, digits[:64], 3},
		{"long line around column", digits, 70, digits[22:86], 48},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			text, width := clipLine([]rune(tc.src), tc.column)
			assert.Equal(t, tc.expected, text)
			assert.Equal(t, tc.width, width)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	contents := "main:\n  call: undefined\n"
	undefined := &goxq.Error{
		Code:     "XPST0017",
		Message:  "unknown function undefined#0",
		Location: goxq.Location{Module: "test.yaml", Line: 2, Column: 3},
		Static:   true,
	}
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name: "located error",
			err:  undefined,
			expected: `compile error: test.yaml:2
    2 |   call: undefined
          ^  XPST0017: unknown function undefined#0`,
		},
		{
			name:     "error without location",
			err:      errors.New("test.yaml: empty program"),
			expected: "compile error: test.yaml: empty program",
		},
		{
			name: "multiple errors",
			err: multierror.Append(undefined, &goxq.Error{
				Code:     "XPST0008",
				Message:  "undefined variable $x",
				Location: goxq.Location{Module: "test.yaml", Line: 1, Column: 1},
			}),
			expected: `compile error: test.yaml:2
    2 |   call: undefined
          ^  XPST0017: unknown function undefined#0
compile error: test.yaml:1
    1 | main:
        ^  XPST0008: undefined variable $x`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := &compileError{"test.yaml", contents, tc.err}
			assert.Equal(t, tc.expected, err.Error())
			assert.Equal(t, exitCodeCompileErr, err.ExitCode())
		})
	}
}

func TestXMLParseError(t *testing.T) {
	contents := "<a>\n  <b></a>\n"
	err := &xmlParseError{"input.xml", contents, &xml.SyntaxError{Msg: "element <b> closed by </a>", Line: 2}}
	assert.Equal(t, "invalid xml: input.xml:2\n    2 |   <b></a>\n  element <b> closed by </a>", err.Error())

	err = &xmlParseError{"input.xml", contents, errors.New("read failed")}
	assert.Equal(t, "invalid xml: input.xml: read failed", err.Error())
}

func TestExitError(t *testing.T) {
	cause := errors.New("bad flag")
	err := usageError(cause)
	assert.Equal(t, "bad flag", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, exitCodeFlagParseErr, err.(*exitError).ExitCode())

	err = reportedError(cause)
	assert.True(t, err.(*exitError).quiet)
	assert.Equal(t, exitCodeDefaultErr, err.(*exitError).ExitCode())
}
