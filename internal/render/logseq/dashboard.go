package logseq

import (
	"fmt"
	"strings"

	"github.com/dgallion1/notegest/internal/render"
)

// ImportDashboard is the graph-wide dashboard page name.
const ImportDashboard = "OneNote Import Dashboard"

// configEDN is written as logseq/config.edn so the graph opens with
// Markdown files and the journal naming used here.
const configEDN = `{:meta/version 1
 :preferred-format :markdown
 :pages-directory "pages"
 :journals-directory "journals"
 :journal/page-title-format "MMM do, yyyy"
 :journal/file-name-format "yyyy_MM_dd"
 :feature/enable-block-timestamps? false
 :hidden []
 :default-queries {:journals []}}
`

func queryLiteral(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

func dashboardName(section string) string {
	return PageName(section + " Dashboard")
}

func (c *Converter) sectionDashboard(section string, journal bool, links []string) render.File {
	name := dashboardName(section)
	q := `(property section "` + queryLiteral(section) + `")`

	var sb strings.Builder
	fmt.Fprintf(&sb, "title:: %s\ntags:: #dashboard, #%s\n\n", name, ImportTag)
	fmt.Fprintf(&sb, "- # %s\n", name)
	fmt.Fprintf(&sb, "- ## All pages\n  - {{query %s}}\n", q)
	fmt.Fprintf(&sb, "- ## Recently updated\n  - {{query (and %s (between -7d today))}}\n", q)
	fmt.Fprintf(&sb, "- ## Open tasks\n  - {{query (and %s (task TODO DOING))}}\n", q)
	fmt.Fprintf(&sb, "- ## Completed tasks\n  - {{query (and %s (task DONE))}}\n", q)
	if DetectContentType(section) == "research" {
		fmt.Fprintf(&sb, "- ## Research notes\n  - {{query (and %s (property type research))}}\n", q)
	}
	if journal {
		fmt.Fprintf(&sb, "- ## Journal entries\n  - {{query (and %s (between -30d today))}}\n", q)
	}
	sb.WriteString("- ## Pages\n")
	for _, l := range links {
		fmt.Fprintf(&sb, "  - [[%s]]\n", l)
	}

	return render.File{
		Path:    c.acc.uniquePath("pages", name),
		Content: sb.String(),
	}
}

// Finish emits the graph-wide dashboard and the graph config.
func (c *Converter) Finish() []render.File {
	s := c.Summary()

	var sb strings.Builder
	fmt.Fprintf(&sb, "title:: %s\ntags:: #dashboard, #%s\n\n", ImportDashboard, ImportTag)
	fmt.Fprintf(&sb, "- # %s\n", ImportDashboard)
	sb.WriteString("- ## Summary\n")
	fmt.Fprintf(&sb, "  - Notebook: %s\n", c.opts.Notebook)
	fmt.Fprintf(&sb, "  - Sections: %d\n", s.Sections)
	fmt.Fprintf(&sb, "  - Pages: %d\n", s.Pages)
	fmt.Fprintf(&sb, "  - Images: %d\n", s.Images)
	fmt.Fprintf(&sb, "  - Tasks detected: %d\n", s.Tasks)
	fmt.Fprintf(&sb, "  - Meetings detected: %d\n", s.Meetings)
	fmt.Fprintf(&sb, "  - Block references: %d\n", s.BlockRefs)
	fmt.Fprintf(&sb, "- ## Open tasks\n  - {{query (and (page-tags %s) (task TODO DOING))}}\n", ImportTag)
	sb.WriteString("- ## High priority\n  - {{query (and (task TODO DOING) (priority A))}}\n")
	sb.WriteString("- ## Meetings\n  - {{query (page-property type meeting-notes)}}\n")
	fmt.Fprintf(&sb, "- ## All imported pages\n  - {{query (page-tags %s)}}\n", ImportTag)
	sb.WriteString("- ## Sections\n")
	for _, sec := range c.sections {
		if sec.dashboard {
			fmt.Fprintf(&sb, "  - [[%s]]\n", dashboardName(sec.name))
		} else {
			fmt.Fprintf(&sb, "  - %s\n", sec.name)
		}
	}

	return []render.File{
		{Path: "pages/" + ImportDashboard + ".md", Content: sb.String()},
		{Path: "logseq/config.edn", Content: configEDN},
	}
}
