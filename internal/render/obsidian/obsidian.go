// Package obsidian renders parsed OneNote pages as an Obsidian vault: one
// Markdown file per page with YAML front matter, wiki-link image embeds and
// an index note per multi-page section.
package obsidian

import (
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/render"
)

// ImportTag is attached to every generated note.
const ImportTag = "onenote-import"

// Options configures a Converter.
type Options struct {
	AttachmentsDir string           // Vault-relative image folder, default "attachments"
	OutputRoot     string           // Prefix for image target paths, may be empty
	Now            func() time.Time // Clock for extraction dates, default time.Now
}

// Converter renders sections into vault files. It is not safe for
// concurrent use.
type Converter struct {
	opts     Options
	acc      *accumulator
	sections int
	pages    int
}

var _ render.Converter = (*Converter)(nil)

// New creates a Converter with defaults applied.
func New(opts Options) *Converter {
	if opts.AttachmentsDir == "" {
		opts.AttachmentsDir = "attachments"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Converter{opts: opts, acc: newAccumulator()}
}

func (c *Converter) Dialect() render.Dialect { return render.Obsidian }

// Images returns the image map accumulated so far.
func (c *Converter) Images() render.ImageMap { return c.acc.images }

func (c *Converter) Summary() render.Summary {
	return render.Summary{Sections: c.sections, Pages: c.pages, Images: len(c.acc.images)}
}

// Finish emits nothing; every Obsidian file belongs to a section.
func (c *Converter) Finish() []render.File { return nil }

type frontMatter struct {
	Title          string   `yaml:"title"`
	Date           string   `yaml:"date"`
	Tags           []string `yaml:"tags,flow"`
	OneNoteSource  string   `yaml:"onenote_source"`
	ExtractionDate string   `yaml:"extraction_date"`
	Category       string   `yaml:"category,omitempty"`
	LastModified   string   `yaml:"last_modified,omitempty"`
	PageID         string   `yaml:"onenote_page_id,omitempty"`
	Type           string   `yaml:"type,omitempty"`
	PageCount      int      `yaml:"page_count,omitempty"`
}

type indexLink struct {
	path  string
	title string
}

// ConvertSection renders every page of sec, followed by the section index
// when the section holds more than one page.
func (c *Converter) ConvertSection(sec render.Section) []render.File {
	c.sections++
	cat := Classify(sec.Name)
	sectionDir := path.Join(cat.Base(), Slug(sec.Name))

	var (
		files []render.File
		links []indexLink
	)
	for _, doc := range sec.Pages {
		title := render.PageTitle(doc)
		fm := c.pageFrontMatter(doc, sec.Name, title, cat)

		var p string
		date, dated := time.Time{}, false
		if cat == Calendar {
			date, dated = render.ParseDate(title)
		}
		if dated {
			fm.Date = date.Format("2006-01-02")
			p = c.acc.uniquePath(path.Join(cat.Base(), date.Format("2006-01-02")+".md"))
		} else {
			p = c.acc.uniquePath(path.Join(sectionDir, Slug(title)+".md"))
		}

		w := newPageWalker(c.acc, c.opts, sec.Name, title)
		body := w.renderPage(doc, !dated)
		files = append(files, render.File{Path: p, Content: compose(fm, body)})
		links = append(links, indexLink{path: strings.TrimSuffix(p, ".md"), title: title})
		c.pages++
	}

	if len(sec.Pages) > 1 {
		files = append(files, c.sectionIndex(sec.Name, sectionDir, cat, links))
	}
	return files
}

func (c *Converter) pageFrontMatter(doc *doctree.Document, section, title string, cat Category) frontMatter {
	now := c.opts.Now()
	fm := frontMatter{
		Title:          title,
		Date:           now.Format("2006-01-02"),
		Tags:           []string{ImportTag},
		OneNoteSource:  section + " > " + title,
		ExtractionDate: now.Format("2006-01-02"),
		LastModified:   doc.Meta(doctree.MetaLastModified),
		PageID:         doc.PageID,
	}
	if created, ok := render.ParseTimestamp(doc.Meta(doctree.MetaCreated)); ok {
		fm.Date = created.Format("2006-01-02")
	}
	if cat != General {
		fm.Category = string(cat)
	}
	return fm
}

func (c *Converter) sectionIndex(section, dir string, cat Category, links []indexLink) render.File {
	now := c.opts.Now().Format("2006-01-02")
	fm := frontMatter{
		Title:          section,
		Date:           now,
		Tags:           []string{ImportTag},
		OneNoteSource:  section,
		ExtractionDate: now,
		Type:           "index",
		PageCount:      len(links),
	}
	if cat != General {
		fm.Category = string(cat)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", section)
	for _, l := range links {
		fmt.Fprintf(&sb, "- [[%s|%s]]\n", l.path, l.title)
	}
	p := c.acc.uniquePath(path.Join(dir, "README.md"))
	return render.File{Path: p, Content: compose(fm, sb.String())}
}

func compose(fm frontMatter, body string) string {
	head, err := yaml.Marshal(fm)
	if err != nil {
		// frontMatter holds only strings and ints.
		panic(fmt.Sprintf("marshal front matter: %v", err))
	}
	return "---\n" + string(head) + "---\n\n" + strings.TrimRight(body, "\n") + "\n"
}
