package logseq

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/markup"
	"github.com/dgallion1/notegest/internal/render"
)

// AssetsDir is where the image extractor saves pictures, relative to the
// graph root.
const AssetsDir = "assets"

// pageWalker renders the blocks of one page. It implements doctree.Visitor.
type pageWalker struct {
	acc      *accumulator
	opts     Options
	section  string
	title    string
	lines    []string
	embedded map[string]bool
	seq      int
}

var _ doctree.Visitor = (*pageWalker)(nil)

func newPageWalker(acc *accumulator, opts Options, section, title string) *pageWalker {
	return &pageWalker{
		acc:      acc,
		opts:     opts,
		section:  section,
		title:    title,
		embedded: make(map[string]bool),
	}
}

func (w *pageWalker) walk(nodes []*doctree.Node) {
	for _, n := range nodes {
		n.Accept(w)
		w.walk(n.Children)
	}
}

// line appends a block at depth. Extra lines of content, such as block
// properties, are indented under the bullet.
func (w *pageWalker) line(depth int, content string, props ...string) {
	indent := strings.Repeat("  ", depth)
	body := strings.ReplaceAll(content, "\n", "\n"+indent+"  ")
	w.lines = append(w.lines, indent+"- "+body)
	for _, p := range props {
		w.lines = append(w.lines, indent+"  "+p)
	}
}

// block appends a node's block, prefixing a reference token the first time
// its identifier is seen.
func (w *pageWalker) block(n *doctree.Node, content string, props ...string) {
	if token := w.acc.blockRef(n.BlockID); token != "" {
		content = "#^" + token + " " + content
	}
	w.line(n.Depth, content, props...)
}

var highlightRe = regexp.MustCompile(`\^\^(.+?)\^\^`)

// linkHighlightedDates turns a highlighted date into a journal link.
func linkHighlightedDates(md string) string {
	return highlightRe.ReplaceAllStringFunc(md, func(m string) string {
		inner := strings.TrimSuffix(strings.TrimPrefix(m, "^^"), "^^")
		if strings.HasPrefix(inner, "[[") {
			return m
		}
		if date, ok := render.ParseDate(inner); ok {
			return "^^[[" + render.OrdinalDate(date) + "]]^^"
		}
		return m
	})
}

func convertInline(html string) string {
	return linkHighlightedDates(markup.ToMarkdown(html, markup.HighlightLogseq))
}

func escape(md string) string {
	return markup.EscapeReservedTokens(markup.EscapeBracketedLinkGroups(md))
}

func (w *pageWalker) textBlock(n *doctree.Node, html string) {
	md := convertInline(html)
	if md == "" {
		return
	}
	w.detect(md)
	content := escape(md)
	if n.Heading > 0 {
		content = strings.Repeat("#", min(n.Heading+1, 6)) + " " + strings.Join(strings.Fields(content), " ")
	}
	w.block(n, content)
}

func (w *pageWalker) VisitText(n *doctree.Node, t *doctree.Text) {
	w.textBlock(n, t.HTML)
}

func (w *pageWalker) VisitOutline(n *doctree.Node, o *doctree.Outline) {
	w.textBlock(n, o.HTML)
}

func (w *pageWalker) VisitList(n *doctree.Node, l *doctree.List) {
	md := convertInline(l.HTML)
	if md == "" {
		w.line(n.Depth, "<!-- Empty list item -->")
		return
	}

	var props []string
	if l.Ordered {
		props = append(props, "logseq.order-list-type:: number")
	}

	if !IsTaskItem(md) {
		w.detect(md)
		w.block(n, escape(md), props...)
		return
	}
	done, rest := ParseTaskState(md)
	state := "TODO"
	if done {
		state = "DONE"
	}
	w.acc.tasks = append(w.acc.tasks, Task{
		Section:  w.section,
		Page:     w.title,
		Text:     rest,
		Priority: Priority(rest),
		Done:     done,
	})
	w.detectMeeting(rest)
	w.block(n, state+" "+escape(rest), props...)
}

func (w *pageWalker) VisitImage(n *doctree.Node, img *doctree.Image) {
	if img.ID == "" {
		w.line(n.Depth, missingImage(img))
		return
	}
	w.block(n, w.imageLink(img))
	if render.MeaningfulAlt(img.Alt) {
		w.line(n.Depth+1, "*"+img.Alt+"*")
	}
}

func missingImage(img *doctree.Image) string {
	alt := img.Alt
	if alt == "" {
		alt = "no alt text"
	}
	return "<!-- Missing image: " + alt + " -->"
}

func (w *pageWalker) imageLink(img *doctree.Image) string {
	w.embedded[img.ID] = true
	alt := img.Alt
	if !render.MeaningfulAlt(alt) {
		alt = ""
	}
	return "![" + alt + "](../" + AssetsDir + "/" + w.imageName(img) + ")"
}

// imageName returns the asset file name for img, registering a new map entry
// on first sight of its identifier.
func (w *pageWalker) imageName(img *doctree.Image) string {
	if e, ok := w.acc.images[img.ID]; ok {
		return e.FileName
	}
	w.seq++
	ext := img.Format
	if ext == "" {
		ext = "png"
	}
	base := fmt.Sprintf("%s-%s-%03d", shortName(w.section), shortName(w.title), w.seq)

	name := base + "." + ext
	for token := fmt.Sprintf("%s-%s-%d", w.section, w.title, w.seq); w.acc.names[name]; {
		sum := md5.Sum([]byte(token))
		token = hex.EncodeToString(sum[:])[:4]
		name = base + "-" + token + "." + ext
	}
	w.acc.names[name] = true

	target := path.Join(AssetsDir, name)
	w.acc.images[img.ID] = render.ImageEntry{
		PageID:           img.PageID,
		TargetPath:       path.Join(w.opts.OutputRoot, target),
		RelativePath:     target,
		FileName:         name,
		AltText:          img.Alt,
		Section:          render.DesanitizeSection(w.section),
		SectionSanitized: w.section,
		Page:             w.title,
		Format:           img.Format,
	}
	return name
}

const shortNameLen = 8

var (
	stopwords = map[string]bool{
		"a": true, "an": true, "and": true, "at": true, "for": true, "in": true,
		"of": true, "on": true, "or": true, "the": true, "to": true, "with": true,
	}
	nonSlugRe = regexp.MustCompile(`[^a-z0-9-]`)
	dashRunRe = regexp.MustCompile(`-+`)
)

// shortName compresses s into a short [a-z0-9-] token for image file names.
// Stopwords are dropped. When the result exceeds shortNameLen, whole words
// are kept while they fit and the next word is cut to the remaining room (at
// least one letter), so "Meeting Notes" becomes "meeting-n".
func shortName(s string) string {
	all := strings.Fields(strings.ToLower(s))
	var words []string
	for _, f := range all {
		if !stopwords[f] {
			words = append(words, f)
		}
	}
	if len(words) == 0 {
		words = all
	}
	out := strings.Join(words, "-")
	out = nonSlugRe.ReplaceAllString(out, "")
	out = dashRunRe.ReplaceAllString(out, "-")

	if len(out) > shortNameLen {
		var kept []string
		used := 0
		for _, part := range strings.Split(out, "-") {
			if used+len(part)+1 <= shortNameLen {
				kept = append(kept, part)
				used += len(part) + 1
				continue
			}
			room := max(1, shortNameLen-used-1)
			kept = append(kept, part[:min(room, len(part))])
			break
		}
		out = strings.Join(kept, "-")
	}

	out = strings.Trim(out, "-")
	if out == "" {
		return "img"
	}
	return out
}

func (w *pageWalker) VisitTable(n *doctree.Node, t *doctree.Table) {
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		for _, cell := range r.Cells {
			rows[i] = append(rows[i], w.cell(cell))
		}
	}
	rows = render.NormalizeTable(rows)
	if rows == nil {
		w.line(n.Depth, "<!-- Empty table -->")
		return
	}

	w.block(n, "Table:")
	for i, r := range rows {
		content := strings.Join(r, " | ")
		if i == 0 {
			content = "**" + content + "**"
		}
		w.line(n.Depth+1, content)
	}
}

func (w *pageWalker) cell(c doctree.Cell) string {
	var parts []string
	if md := convertInline(c.HTML); md != "" {
		w.detect(md)
		parts = append(parts, strings.Join(strings.Fields(escape(md)), " "))
	}
	for _, img := range c.Images {
		if img.ID == "" {
			parts = append(parts, missingImage(img))
			continue
		}
		parts = append(parts, w.imageLink(img))
	}
	return strings.Join(parts, " ")
}

func (w *pageWalker) VisitUnknownHTML(n *doctree.Node, u *doctree.UnknownHTML) {
	md := markup.BlockToMarkdown(u.HTML, markup.HighlightLogseq)
	if md == "" {
		w.line(n.Depth, "<!-- Unknown HTML content -->")
		return
	}
	w.detect(md)
	w.block(n, markup.EscapeReservedTokens(md))
}

// detect records task and meeting mentions in rendered text.
func (w *pageWalker) detect(md string) {
	if taskRe.MatchString(md) {
		w.acc.tasks = append(w.acc.tasks, Task{
			Section:  w.section,
			Page:     w.title,
			Text:     md,
			Priority: Priority(md),
		})
	}
	w.detectMeeting(md)
}

func (w *pageWalker) detectMeeting(md string) {
	if meetingRe.MatchString(md) {
		w.acc.meetings = append(w.acc.meetings, Meeting{Section: w.section, Page: w.title, Text: md})
	}
}
