package goxq

import (
	"net/url"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collation URIs.
const (
	CodepointCollation = "http://www.w3.org/2005/xpath-functions/collation/codepoint"
	ucaCollationPrefix = "http://www.w3.org/2013/collation/UCA"
)

// Collation compares strings. The zero value and nil compare by codepoint.
type Collation struct {
	uri string
	mu  sync.Mutex
	col *collate.Collator
	buf collate.Buffer
}

// ParseCollation returns the collation named by uri. The codepoint
// collation and UCA collations with lang and strength parameters are known.
func ParseCollation(uri string) (*Collation, error) {
	if uri == "" || uri == CodepointCollation {
		return &Collation{uri: CodepointCollation}, nil
	}
	base, query, _ := strings.Cut(uri, "?")
	if base != ucaCollationPrefix {
		return nil, newDynamicError("FOCH0002", "unsupported collation: %s", uri)
	}
	params, err := url.ParseQuery(strings.ReplaceAll(query, ";", "&"))
	if err != nil {
		return nil, newDynamicError("FOCH0002", "invalid collation parameters: %s", uri)
	}
	tag := language.Und
	if lang := params.Get("lang"); lang != "" {
		if tag, err = language.Parse(lang); err != nil {
			return nil, newDynamicError("FOCH0002", "invalid collation language: %s", lang)
		}
	}
	var opts []collate.Option
	switch params.Get("strength") {
	case "primary", "1":
		opts = append(opts, collate.IgnoreCase, collate.IgnoreDiacritics)
	case "secondary", "2":
		opts = append(opts, collate.IgnoreCase)
	case "", "tertiary", "3", "quaternary", "4", "identical", "5":
	default:
		return nil, newDynamicError("FOCH0002", "invalid collation strength: %s", params.Get("strength"))
	}
	if params.Get("numeric") == "yes" {
		opts = append(opts, collate.Numeric)
	}
	return &Collation{uri: uri, col: collate.New(tag, opts...)}, nil
}

// URI returns the collation URI.
func (c *Collation) URI() string {
	if c == nil || c.uri == "" {
		return CodepointCollation
	}
	return c.uri
}

// Compare compares a and b.
func (c *Collation) Compare(a, b string) int {
	if c == nil || c.col == nil {
		return strings.Compare(a, b)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.col.CompareString(a, b)
}

// Key returns a sort key; two strings compare equal exactly when their keys
// are equal.
func (c *Collation) Key(s string) string {
	if c == nil || c.col == nil {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(c.col.KeyFromString(&c.buf, s))
	c.buf.Reset()
	return k
}
