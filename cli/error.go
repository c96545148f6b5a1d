package cli

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-runewidth"

	"github.com/itchyny/goxq"
)

// exitError carries the exit code of the command. The message of a quiet
// error has been written already.
type exitError struct {
	err   error
	code  int
	quiet bool
}

func usageError(err error) error {
	return &exitError{err: err, code: exitCodeFlagParseErr}
}

func reportedError(err error) error {
	return &exitError{err: err, code: exitCodeDefaultErr, quiet: true}
}

func (err *exitError) Error() string {
	return err.err.Error()
}

func (err *exitError) Unwrap() error {
	return err.err
}

func (err *exitError) ExitCode() int {
	return err.code
}

// compileError reports the errors of loading or compiling a program, each
// with the line of the program it points to.
type compileError struct {
	fname, contents string
	err             error
}

func (err *compileError) Error() string {
	errs := []error{err.err}
	var merr *multierror.Error
	if errors.As(err.err, &merr) {
		errs = merr.Errors
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = "compile error: " + err.format(e)
	}
	return strings.Join(msgs, "\n")
}

func (err *compileError) format(e error) string {
	var ge *goxq.Error
	if !errors.As(e, &ge) || ge.Location.Line == 0 {
		return e.Error()
	}
	src := sourceLine(err.contents, ge.Location.Line)
	if src == nil {
		return e.Error()
	}
	text, width := clipLine(src, ge.Location.Column-1)
	return fmt.Sprintf("%s:%d\n%s  %s: %s",
		err.fname, ge.Location.Line, markLine(text, ge.Location.Line, width), ge.Code, ge.Message)
}

func (*compileError) ExitCode() int {
	return exitCodeCompileErr
}

type xmlParseError struct {
	fname, contents string
	err             error
}

func (err *xmlParseError) Error() string {
	var se *xml.SyntaxError
	if !errors.As(err.err, &se) {
		return fmt.Sprintf("invalid xml: %s: %s", err.fname, err.err)
	}
	src := sourceLine(err.contents, se.Line)
	if src == nil {
		return fmt.Sprintf("invalid xml: %s:%d: %s", err.fname, se.Line, se.Msg)
	}
	text, _ := clipLine(src, 0)
	return fmt.Sprintf("invalid xml: %s:%d\n    %d | %s\n  %s",
		err.fname, se.Line, se.Line, text, se.Msg)
}

// sourceLine returns the runes of the line, counted from one, or nil when
// the contents are shorter. A line ends at a newline or a lone carriage
// return.
func sourceLine(contents string, line int) []rune {
	if line < 1 {
		return nil
	}
	contents = strings.ReplaceAll(contents, "\r\n", "\n")
	contents = strings.ReplaceAll(contents, "\r", "\n")
	lines := strings.Split(contents, "\n")
	if line > len(lines) {
		return nil
	}
	return []rune(lines[line-1])
}

const (
	clipBefore = 48
	clipWidth  = 64
)

// clipLine cuts a long line around the column, counted from zero, and
// returns the display width of the text before the column.
func clipLine(src []rune, column int) (string, int) {
	column = min(max(column, 0), len(src))
	if column > clipBefore {
		src, column = src[column-clipBefore:], clipBefore
	}
	src = src[:min(len(src), clipWidth)]
	column = min(column, len(src))
	return string(src), runewidth.StringWidth(string(src[:column]))
}

func markLine(text string, line, width int) string {
	l := strconv.Itoa(line)
	return fmt.Sprintf("    %s | %s\n    %*c", l, text, width+len(l)+4, '^')
}
