package goxq

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		item     Item
		expected string
	}{
		{
			name:     "element with attributes",
			input:    `<a x="1" y="2"><b>text</b><c/></a>`,
			expected: `<a x="1" y="2"><b>text</b><c/></a>`,
		},
		{
			name:     "escaped text",
			input:    `<a>1 &lt; 2 &amp;&amp; 3 &gt; 0</a>`,
			expected: `<a>1 &lt; 2 &amp;&amp; 3 &gt; 0</a>`,
		},
		{
			name:     "escaped attribute",
			input:    `<a x='say "hi"&#xA;&#x9;'/>`,
			expected: `<a x="say &quot;hi&quot;&#xA;&#x9;"/>`,
		},
		{
			name:     "default namespaces",
			input:    `<a xmlns="urn:x"><b/><c xmlns=""><d/></c></a>`,
			expected: `<a xmlns="urn:x"><b/><c xmlns=""><d/></c></a>`,
		},
		{
			name:     "comment",
			input:    `<a><!-- note --></a>`,
			expected: `<a><!-- note --></a>`,
		},
		{name: "integer", item: Integer(-42), expected: "-42"},
		{name: "double", item: Double(1.5), expected: "1.5"},
		{name: "boolean", item: Boolean(true), expected: "true"},
		{name: "string is not escaped", item: String("a<b"), expected: "a<b"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			item := tc.item
			if tc.input != "" {
				n, err := ParseXML(strings.NewReader(tc.input))
				require.NoError(t, err)
				item = n
			}
			got, err := Marshal(item)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(got))
		})
	}
}

func TestMarshalAttributeNode(t *testing.T) {
	n, err := ParseXML(strings.NewReader(`<a id="x&amp;y"/>`))
	require.NoError(t, err)
	attrs := n.Children()[0].Attributes()
	require.Len(t, attrs, 1)
	got, err := Marshal(attrs[0])
	require.NoError(t, err)
	assert.Equal(t, `id="x&amp;y"`, string(got))
}

func TestEncoderColors(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.SetColors(&Colors{Element: "34;1", Attribute: "33", Atomic: "32"})
	n, err := ParseXML(strings.NewReader(`<a x="1">t</a>`))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(n))
	assert.Equal(t,
		"\x1b[34;1m<a\x1b[0m \x1b[33mx\x1b[0m=\"1\"\x1b[34;1m>\x1b[0mt\x1b[34;1m</a>\x1b[0m",
		buf.String())

	buf.Reset()
	require.NoError(t, enc.Encode(Integer(1)))
	assert.Equal(t, "\x1b[32m1\x1b[0m", buf.String())

	buf.Reset()
	enc.SetColors(nil)
	require.NoError(t, enc.Encode(Integer(1)))
	assert.Equal(t, "1", buf.String())
}
