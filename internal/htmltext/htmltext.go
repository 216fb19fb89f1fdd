// Package htmltext reduces OneNote HTML fragments to plain text.
package htmltext

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// strict drops every tag but keeps text content. Safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// tagRe matches a complete tag. A '<' outside such a match is literal text.
var tagRe = regexp.MustCompile(`<[A-Za-z/!][^<>]*>`)

// StripTags removes all markup from s and decodes entities. Line breaks in
// the text content are preserved, and a '<' that does not open a complete
// tag is kept as text.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(strict.Sanitize(escapeStrayLT(s)))
}

// escapeStrayLT rewrites every '<' that does not start a complete tag as
// "&lt;" so the sanitizer does not read the rest of the text as a tag.
func escapeStrayLT(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	last := 0
	for _, m := range tagRe.FindAllStringIndex(s, -1) {
		b.WriteString(strings.ReplaceAll(s[last:m[0]], "<", "&lt;"))
		b.WriteString(s[m[0]:m[1]])
		last = m[1]
	}
	b.WriteString(strings.ReplaceAll(s[last:], "<", "&lt;"))
	return b.String()
}

// Strip removes markup and collapses all whitespace runs to single spaces.
func Strip(s string) string {
	return strings.Join(strings.Fields(StripTags(s)), " ")
}

// IsBlank reports whether s has no visible text.
func IsBlank(s string) bool {
	return Strip(s) == ""
}

var blockAtoms = map[atom.Atom]bool{
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Div:        true,
	atom.P:          true,
	atom.Pre:        true,
	atom.Blockquote: true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
}

// HasBlockTags reports whether s contains block-level elements that the
// inline converter does not handle.
func HasBlockTags(s string) bool {
	if !strings.Contains(s, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockAtoms[atom.Lookup(name)] {
				return true
			}
		}
	}
}
