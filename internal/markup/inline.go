// Package markup turns OneNote HTML fragments into markdown and escapes
// text that would collide with dialect syntax.
package markup

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/notegest/internal/htmltext"
)

// Highlight token pairs for the supported dialects.
const (
	HighlightObsidian = "=="
	HighlightLogseq   = "^^"
)

type substitution struct {
	re   *regexp.Regexp
	repl string
}

// spanStyle matches a span whose style attribute contains decl.
func spanStyle(decl string) string {
	return `<span\s+style=["'][^"']*` + decl + `[^"']*["'][^>]*>(.*?)</span>`
}

func rule(pattern, repl string) substitution {
	return substitution{re: regexp.MustCompile(`(?is)` + pattern), repl: repl}
}

// Rules run in declaration order: emphasis, then highlight, then links and
// breaks. Highlight is separate because its token depends on the dialect.
var (
	emphasisRules = []substitution{
		rule(`<strong>(.*?)</strong>`, `**${1}**`),
		rule(`<b>(.*?)</b>`, `**${1}**`),
		rule(spanStyle(`font-weight:\s*bold`), `**${1}**`),

		rule(`<em>(.*?)</em>`, `*${1}*`),
		rule(`<i>(.*?)</i>`, `*${1}*`),
		rule(spanStyle(`font-style:\s*italic`), `*${1}*`),

		rule(`<u>(.*?)</u>`, `**${1}**`),
		rule(spanStyle(`text-decoration:\s*underline`), `**${1}**`),

		rule(`<s>(.*?)</s>`, `~~${1}~~`),
		rule(`<strike>(.*?)</strike>`, `~~${1}~~`),
		rule(`<del>(.*?)</del>`, `~~${1}~~`),
		rule(spanStyle(`text-decoration:\s*line-through`), `~~${1}~~`),

		rule(`<code>(.*?)</code>`, "`${1}`"),
		rule(`<tt>(.*?)</tt>`, "`${1}`"),

		rule(`<sup>(.*?)</sup>`, `^[${1}]`),
		rule(`<sub>(.*?)</sub>`, `~[${1}]`),
	}

	highlightRule = regexp.MustCompile(`(?is)` + spanStyle(`background:\s*yellow`))

	linkRules = []substitution{
		rule(`<a\s+href=["']([^"']+)["'][^>]*>(.*?)</a>`, `[${2}](${1})`),
		rule(`<br\s*/?>`, "\n"),
		rule(`From\s*<(https?://[^>\s]+)>`, `*Source: ${1}*`),
		rule(`<(https?://[^>\s]+)>`, `${1}`),
	}

	blankRunRe = regexp.MustCompile(`\n\s*\n`)
)

// ToMarkdown converts an inline HTML fragment to markdown. Highlighted spans
// are wrapped in the highlight token pair, e.g. HighlightObsidian.
func ToMarkdown(fragment, highlight string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	text := html.UnescapeString(fragment)

	for _, s := range emphasisRules {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	text = highlightRule.ReplaceAllStringFunc(text, func(m string) string {
		inner := highlightRule.FindStringSubmatch(m)[1]
		return highlight + inner + highlight
	})
	for _, s := range linkRules {
		text = s.re.ReplaceAllString(text, s.repl)
	}

	text = htmltext.StripTags(text)

	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
