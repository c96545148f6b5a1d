package cli

import (
	"bytes"
	"io"
	"os"

	"github.com/itchyny/goxq"
)

type inputIter interface {
	Next() (goxq.Item, error)
	io.Closer
}

// singleInputIter reads one XML document.
type singleInputIter struct {
	in    io.Reader
	fname string
	done  bool
}

func newSingleInputIter(in io.Reader, fname string) *singleInputIter {
	return &singleInputIter{in: in, fname: fname}
}

func (i *singleInputIter) Next() (goxq.Item, error) {
	if i.done {
		return nil, io.EOF
	}
	i.done = true
	src, err := io.ReadAll(i.in)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(src)) == 0 {
		return nil, io.EOF
	}
	doc, err := goxq.ParseXML(bytes.NewReader(src))
	if err != nil {
		return nil, &xmlParseError{i.fname, string(src), err}
	}
	return doc, nil
}

func (i *singleInputIter) Close() error {
	i.done = true
	return nil
}

// filesInputIter reads the XML documents of files in order.
type filesInputIter struct {
	fnames []string
	iter   *singleInputIter
	file   *os.File
}

func newFilesInputIter(fnames []string) *filesInputIter {
	return &filesInputIter{fnames: fnames}
}

func (i *filesInputIter) Next() (goxq.Item, error) {
	for {
		if i.file == nil {
			if len(i.fnames) == 0 {
				return nil, io.EOF
			}
			fname := i.fnames[0]
			i.fnames = i.fnames[1:]
			file, err := os.Open(fname)
			if err != nil {
				return nil, err
			}
			i.file = file
			i.iter = newSingleInputIter(file, fname)
		}
		v, err := i.iter.Next()
		if err != io.EOF {
			return v, err
		}
		i.file.Close()
		i.file = nil
	}
}

func (i *filesInputIter) Close() error {
	if i.file != nil {
		if err := i.file.Close(); err != nil {
			return err
		}
		i.file = nil
	}
	i.fnames = nil
	return nil
}

// nullInputIter yields one evaluation without a context item.
type nullInputIter struct {
	done bool
}

func newNullInputIter() *nullInputIter {
	return &nullInputIter{}
}

func (i *nullInputIter) Next() (goxq.Item, error) {
	if i.done {
		return nil, io.EOF
	}
	i.done = true
	return nil, nil
}

func (i *nullInputIter) Close() error {
	i.done = true
	return nil
}
