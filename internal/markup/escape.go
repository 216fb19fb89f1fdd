package markup

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	mdParser = goldmark.DefaultParser()

	bracketGroupRe = regexp.MustCompile(`\[((?:[^\[\]]|\[[^\]]+\]\([^\)]+\))+)\]`)
	mdLinkRe       = regexp.MustCompile(`\[[^\]]+\]\([^\)]+\)`)
)

// EscapeBracketedLinkGroups escapes the outer brackets of a group such as
// "[[a](u1), [b](u2)]" so it is not read as a wiki link. A single link in
// redundant brackets is left alone. The rewrite is applied once.
func EscapeBracketedLinkGroups(s string) string {
	if !strings.Contains(s, "](") {
		return s
	}
	return bracketGroupRe.ReplaceAllStringFunc(s, func(group string) string {
		inner := group[1 : len(group)-1]
		links := mdLinkRe.FindAllStringIndex(inner, -1)
		if len(links) == 0 {
			return group
		}
		if len(links) > 1 || strings.Contains(inner, ",") {
			return `\[` + inner + `\]`
		}
		return group
	})
}

type tokenEdit struct {
	pos  int
	repl string
}

var reservedPairs = map[string]string{
	"{{": `\{\{`,
	"}}": `\}\}`,
	"((": `\(\(`,
	"))": `\)\)`,
	"::": `\:\:`,
}

// EscapeReservedTokens backslash-escapes "{{", "}}", "((", "))" and "::"
// outside code spans and code blocks. A "::" touching another ':' or a '/',
// or within 10 bytes after "http", is part of a URL or literal and is kept.
func EscapeReservedTokens(s string) string {
	if !strings.Contains(s, "{{") && !strings.Contains(s, "}}") &&
		!strings.Contains(s, "((") && !strings.Contains(s, "))") &&
		!strings.Contains(s, "::") {
		return s
	}

	code := codeRegions([]byte(s))
	inCode := func(pos int) bool {
		for _, r := range code {
			if pos >= r[0] && pos < r[1] {
				return true
			}
		}
		return false
	}

	var edits []tokenEdit
	for i := 0; i+1 < len(s); {
		pair := s[i : i+2]
		repl, ok := reservedPairs[pair]
		if !ok || inCode(i) || (pair == "::" && !escapableColons(s, i)) {
			i++
			continue
		}
		edits = append(edits, tokenEdit{pos: i, repl: repl})
		i += 2
	}

	sort.Slice(edits, func(a, b int) bool { return edits[a].pos > edits[b].pos })
	out := s
	for _, e := range edits {
		out = out[:e.pos] + e.repl + out[e.pos+2:]
	}
	return out
}

func escapableColons(s string, i int) bool {
	if i > 0 && s[i-1] == ':' {
		return false
	}
	if i+2 < len(s) && (s[i+2] == ':' || s[i+2] == '/') {
		return false
	}
	return !strings.Contains(s[max(0, i-10):i], "http")
}

// codeRegions returns byte ranges of code span and code block content.
func codeRegions(src []byte) [][2]int {
	doc := mdParser.Parse(text.NewReader(src))

	var regions [][2]int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindCodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					regions = append(regions, [2]int{t.Segment.Start, t.Segment.Stop})
				}
			}
			return ast.WalkSkipChildren, nil
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				regions = append(regions, [2]int{seg.Start, seg.Stop})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return regions
}
