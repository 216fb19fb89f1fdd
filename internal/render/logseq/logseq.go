// Package logseq renders parsed OneNote pages as a Logseq graph: outliner
// blocks with key:: value properties, block references, task markers and
// query dashboards.
package logseq

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/render"
)

// ImportTag is attached to every generated page.
const ImportTag = "onenote-import"

// Options configures a Converter.
type Options struct {
	Notebook   string           // Notebook name recorded on every page, default "OneNote"
	OutputRoot string           // Prefix for image target paths, may be empty
	Now        func() time.Time // Clock for extraction dates, default time.Now
}

// Task is a detected task block.
type Task struct {
	Section  string `json:"section"`
	Page     string `json:"page"`
	Text     string `json:"text"`
	Priority string `json:"priority"`
	Done     bool   `json:"done"`
}

// Meeting is a block whose text mentions a meeting.
type Meeting struct {
	Section string `json:"section"`
	Page    string `json:"page"`
	Text    string `json:"text"`
}

// accumulator holds the run-wide side tables that page walks append to.
type accumulator struct {
	images    render.ImageMap
	names     map[string]bool
	blockRefs map[string]string
	tasks     []Task
	meetings  []Meeting
	journals  map[string]bool
	paths     map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		images:    make(render.ImageMap),
		names:     make(map[string]bool),
		blockRefs: make(map[string]string),
		journals:  make(map[string]bool),
		paths:     make(map[string]bool),
	}
}

// blockRef returns the reference token for id, or "" when id is empty or
// already has one.
func (a *accumulator) blockRef(id string) string {
	if id == "" {
		return ""
	}
	if _, ok := a.blockRefs[id]; ok {
		return ""
	}
	sum := md5.Sum([]byte(id))
	token := hex.EncodeToString(sum[:])[:8]
	a.blockRefs[id] = token
	return token
}

func (a *accumulator) uniquePath(dir, name string) string {
	candidate := dir + "/" + name + ".md"
	for i := 2; a.paths[candidate]; i++ {
		candidate = fmt.Sprintf("%s/%s-%d.md", dir, name, i)
	}
	a.paths[candidate] = true
	return candidate
}

// Converter renders sections into graph files. It is not safe for
// concurrent use.
type Converter struct {
	opts     Options
	acc      *accumulator
	sections []sectionInfo
	pages    int
}

type sectionInfo struct {
	name      string
	dashboard bool
}

var _ render.Converter = (*Converter)(nil)

// New creates a Converter with defaults applied.
func New(opts Options) *Converter {
	if opts.Notebook == "" {
		opts.Notebook = "OneNote"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Converter{opts: opts, acc: newAccumulator()}
}

func (c *Converter) Dialect() render.Dialect { return render.Logseq }

// Images returns the image map accumulated so far.
func (c *Converter) Images() render.ImageMap { return c.acc.images }

// Tasks returns every task detected so far, in walk order.
func (c *Converter) Tasks() []Task { return c.acc.tasks }

// Meetings returns every meeting mention detected so far.
func (c *Converter) Meetings() []Meeting { return c.acc.meetings }

// BlockRefs maps block identifiers to their reference tokens.
func (c *Converter) BlockRefs() map[string]string { return c.acc.blockRefs }

func (c *Converter) Summary() render.Summary {
	return render.Summary{
		Sections:  len(c.sections),
		Pages:     c.pages,
		Images:    len(c.acc.images),
		Tasks:     len(c.acc.tasks),
		Meetings:  len(c.acc.meetings),
		BlockRefs: len(c.acc.blockRefs),
	}
}

var journalKeywords = []string{"diary", "journal", "daily", "log"}

// IsJournalSection reports whether pages of the section are journal
// candidates.
func IsJournalSection(section string) bool {
	lower := strings.ToLower(section)
	for _, kw := range journalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var pageNameDropRe = regexp.MustCompile(`[<>:"/\\|?*\[\]]`)

// PageName turns a title into a page file name.
func PageName(title string) string {
	name := strings.Join(strings.Fields(pageNameDropRe.ReplaceAllString(title, "")), " ")
	if name == "" {
		return "untitled"
	}
	return name
}

// ConvertSection renders every page of sec, then the section dashboard when
// the section holds more than one page.
func (c *Converter) ConvertSection(sec render.Section) []render.File {
	c.sections = append(c.sections, sectionInfo{name: sec.Name, dashboard: len(sec.Pages) > 1})
	journal := IsJournalSection(sec.Name)

	var (
		files []render.File
		links []string
	)
	for _, doc := range sec.Pages {
		title := render.PageTitle(doc)
		p := pageMeta{section: sec.Name, title: title}

		if journal {
			if date, ok := render.ParseDate(title); ok {
				key := date.Format("2006_01_02")
				if !c.acc.journals[key] {
					c.acc.journals[key] = true
					p.journal = true
				} else {
					p.date = render.OrdinalDate(date)
				}
				p.link = render.OrdinalDate(date)
				if p.journal {
					p.path = c.acc.uniquePath("journals", key)
				}
			}
		}
		if !p.journal {
			p.path = c.acc.uniquePath("pages", PageName(title))
			p.link = strings.TrimSuffix(strings.TrimPrefix(p.path, "pages/"), ".md")
		}

		files = append(files, render.File{Path: p.path, Content: c.renderPage(doc, p)})
		links = append(links, p.link)
		c.pages++
	}

	if len(sec.Pages) > 1 {
		files = append(files, c.sectionDashboard(sec.Name, journal, links))
	}
	return files
}

// pageMeta is the routing decision for one page.
type pageMeta struct {
	section string
	title   string
	path    string
	link    string // Page name to link to
	journal bool
	date    string // Ordinal date for a journal date that was already taken
}

func (c *Converter) renderPage(doc *doctree.Document, p pageMeta) string {
	w := newPageWalker(c.acc, c.opts, p.section, p.title)
	w.walk(doc.Nodes)
	for _, img := range doc.Images {
		if img.ID != "" && !w.embedded[img.ID] {
			w.VisitImage(&doctree.Node{}, img)
		}
	}
	if comment := render.UnrecognizedComment(doc); comment != "" {
		w.line(0, comment)
	}

	var sb strings.Builder
	props := c.pageProperties(doc, p)
	for _, kv := range props {
		fmt.Fprintf(&sb, "%s:: %s\n", kv[0], kv[1])
	}
	sb.WriteString("\n")
	if !p.journal {
		sb.WriteString("- # " + p.title + "\n")
	}
	for _, l := range w.lines {
		sb.WriteString(l + "\n")
	}

	sb.WriteString("- **Source**: " + c.opts.Notebook + " > " + p.section + " > " + p.title + "\n")
	sb.WriteString("  collapsed:: true\n")
	sb.WriteString("  - Extracted: " + render.OrdinalDate(c.opts.Now()) + "\n")
	if lm := doc.Meta(doctree.MetaLastModified); lm != "" {
		sb.WriteString("  - Last modified: " + lm + "\n")
	}
	return sb.String()
}

func (c *Converter) pageProperties(doc *doctree.Document, p pageMeta) [][2]string {
	props := [][2]string{
		{"notebook", c.opts.Notebook},
		{"section", p.section},
	}
	contentType := DetectContentType(render.PlainText(doc))
	if contentType != "" {
		props = append(props, [2]string{"type", contentType})
	}
	if doc.PageID != "" {
		props = append(props, [2]string{"onenote-id", doc.PageID})
	}
	if a := doc.Meta(doctree.MetaAuthor); a != "" {
		props = append(props, [2]string{"author", a})
	}
	if t, ok := render.ParseTimestamp(doc.Meta(doctree.MetaCreated)); ok {
		props = append(props, [2]string{"created", "[[" + render.OrdinalDate(t) + "]]"})
	}
	if t, ok := render.ParseTimestamp(doc.Meta(doctree.MetaLastModified)); ok {
		props = append(props, [2]string{"modified", "[[" + render.OrdinalDate(t) + "]]"})
	}
	if p.date != "" {
		props = append(props, [2]string{"date", "[[" + p.date + "]]"})
	}
	tags := "#" + ImportTag
	if contentType != "" {
		tags += ", #" + contentType
	}
	return append(props, [2]string{"tags", tags})
}
