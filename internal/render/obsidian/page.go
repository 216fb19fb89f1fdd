package obsidian

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/markup"
	"github.com/dgallion1/notegest/internal/render"
)

// accumulator holds the run-wide side tables that page walks append to.
type accumulator struct {
	images render.ImageMap
	names  map[string]bool
	paths  map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		images: make(render.ImageMap),
		names:  make(map[string]bool),
		paths:  make(map[string]bool),
	}
}

// uniquePath reserves p, or p with a -2, -3, ... suffix before the extension.
func (a *accumulator) uniquePath(p string) string {
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	candidate := p
	for i := 2; a.paths[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	a.paths[candidate] = true
	return candidate
}

// imageName returns the attachment file name for img, registering a new map
// entry on first sight of its identifier.
func (a *accumulator) imageName(img *doctree.Image, opts Options, section, page string) string {
	if e, ok := a.images[img.ID]; ok {
		return e.FileName
	}

	key := fmt.Sprintf("%s-%s-%d", section, page, len(a.images)+1)
	base := strings.ToLower(Slug(key))
	if render.MeaningfulAlt(img.Alt) {
		base = strings.ToLower(Slug(img.Alt))
	}
	ext := img.Format
	if ext == "" {
		ext = "png"
	}

	name := base + "." + ext
	for token := key; a.names[name]; {
		token = shortHash(token)
		name = base + "-" + token + "." + ext
	}
	a.names[name] = true

	rel := path.Join(opts.AttachmentsDir, name)
	a.images[img.ID] = render.ImageEntry{
		PageID:       img.PageID,
		TargetPath:   path.Join(opts.OutputRoot, rel),
		RelativePath: rel,
		FileName:     name,
		AltText:      img.Alt,
		Section:      section,
		Page:         page,
		Format:       img.Format,
	}
	return name
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:4]
}

var orderedMarkerRe = regexp.MustCompile(`^\d+[.)]$`)

type block struct {
	text   string
	bullet bool
}

// pageWalker renders one page. It implements doctree.Visitor.
type pageWalker struct {
	acc      *accumulator
	opts     Options
	section  string
	title    string
	blocks   []block
	embedded map[string]bool
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

func (w *pageWalker) renderPage(doc *doctree.Document, withTitle bool) string {
	if withTitle {
		w.add("# "+w.title, false)
	}
	w.walk(doc.Nodes)

	for _, img := range doc.Images {
		if img.ID != "" && !w.embedded[img.ID] {
			w.VisitImage(nil, img)
		}
	}
	if c := render.UnrecognizedComment(doc); c != "" {
		w.add(c, false)
	}

	footer := "---\n*Extracted from OneNote: " + w.section + " > " + w.title + "*"
	if lm := doc.Meta(doctree.MetaLastModified); lm != "" {
		footer += "\n*Last modified: " + lm + "*"
	}
	w.add(footer, false)

	var sb strings.Builder
	for i, b := range w.blocks {
		if i > 0 {
			if b.bullet && w.blocks[i-1].bullet {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(b.text)
	}
	return sb.String()
}

func (w *pageWalker) walk(nodes []*doctree.Node) {
	for _, n := range nodes {
		n.Accept(w)
		w.walk(n.Children)
	}
}

func (w *pageWalker) add(text string, bullet bool) {
	w.blocks = append(w.blocks, block{text: text, bullet: bullet})
}

func (w *pageWalker) inline(html string) string {
	return markup.EscapeBracketedLinkGroups(markup.ToMarkdown(html, markup.HighlightObsidian))
}

// emit writes converted text as a heading, a paragraph or a bullet.
func (w *pageWalker) emit(n *doctree.Node, text, marker string) {
	switch {
	case n.Heading > 0:
		level := min(n.Heading+1, 6)
		w.add(strings.Repeat("#", level)+" "+strings.Join(strings.Fields(text), " "), false)
	case n.Depth == 0 && marker == "":
		w.add(text, false)
	default:
		if marker == "" {
			marker = "-"
		}
		indent := strings.Repeat("  ", n.Depth)
		cont := "\n" + indent + strings.Repeat(" ", len(marker)+1)
		w.add(indent+marker+" "+strings.ReplaceAll(text, "\n", cont), true)
	}
}

func (w *pageWalker) VisitText(n *doctree.Node, t *doctree.Text) {
	if text := w.inline(t.HTML); text != "" {
		w.emit(n, text, "")
	}
}

func (w *pageWalker) VisitOutline(n *doctree.Node, o *doctree.Outline) {
	if text := w.inline(o.HTML); text != "" {
		w.emit(n, text, "")
	}
}

func (w *pageWalker) VisitList(n *doctree.Node, l *doctree.List) {
	text := w.inline(l.HTML)
	if text == "" {
		w.add("<!-- Empty list item -->", false)
		return
	}
	marker := "-"
	if l.Ordered {
		marker = "1."
		if orderedMarkerRe.MatchString(l.Marker) {
			marker = l.Marker
		}
	}
	w.emit(n, text, marker)
}

// VisitImage is also called with a nil node for floating page images.
func (w *pageWalker) VisitImage(_ *doctree.Node, img *doctree.Image) {
	w.add(w.embed(img, true), false)
}

func (w *pageWalker) embed(img *doctree.Image, caption bool) string {
	if img.ID == "" {
		alt := img.Alt
		if alt == "" {
			alt = "no alt text"
		}
		return "<!-- Missing image: " + alt + " -->"
	}
	w.embedded[img.ID] = true
	out := "![[" + w.acc.imageName(img, w.opts, w.section, w.title) + "]]"
	if caption && render.MeaningfulAlt(img.Alt) {
		out += "\n*" + img.Alt + "*"
	}
	return out
}

func (w *pageWalker) VisitTable(_ *doctree.Node, t *doctree.Table) {
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		for _, cell := range r.Cells {
			rows[i] = append(rows[i], w.cell(cell))
		}
	}
	rows = render.NormalizeTable(rows)
	if rows == nil {
		w.add("<!-- Empty table -->", false)
		return
	}

	var sb strings.Builder
	for i, r := range rows {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("| " + strings.Join(r, " | ") + " |")
		if i == 0 {
			sb.WriteString("\n|" + strings.Repeat(" --- |", len(r)))
		}
	}
	w.add(sb.String(), false)
}

func (w *pageWalker) cell(c doctree.Cell) string {
	var parts []string
	if text := w.inline(c.HTML); text != "" {
		text = strings.ReplaceAll(text, "|", `\|`)
		parts = append(parts, strings.ReplaceAll(text, "\n", "<br>"))
	}
	for _, img := range c.Images {
		parts = append(parts, w.embed(img, false))
	}
	return strings.Join(parts, "<br>")
}

func (w *pageWalker) VisitUnknownHTML(_ *doctree.Node, u *doctree.UnknownHTML) {
	md := markup.BlockToMarkdown(u.HTML, markup.HighlightObsidian)
	if md == "" {
		md = "<!-- Unknown HTML content -->"
	}
	w.add(md, false)
}
