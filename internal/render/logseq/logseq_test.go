package logseq

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/render"
)

func newTestConverter() *Converter {
	return New(Options{
		Notebook: "Work",
		Now:      func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) },
	})
}

func text(html string) *doctree.Node {
	return &doctree.Node{Payload: &doctree.Text{HTML: html}}
}

func item(html string) *doctree.Node {
	return &doctree.Node{Payload: &doctree.List{HTML: html}}
}

func filesByPath(files []render.File) map[string]string {
	m := make(map[string]string, len(files))
	for _, f := range files {
		m[f.Path] = f.Content
	}
	return m
}

func convertOne(t *testing.T, c *Converter, section string, doc *doctree.Document) string {
	t.Helper()
	files := c.ConvertSection(render.Section{Name: section, Pages: []*doctree.Document{doc}})
	require.Len(t, files, 1)
	return files[0].Content
}

func TestJournalRouting(t *testing.T) {
	c := newTestConverter()
	files := c.ConvertSection(render.Section{
		Name: "Daily Log",
		Pages: []*doctree.Document{
			{PageID: "p1", Title: "15 March 2024", Nodes: []*doctree.Node{text("Ran 5k")}},
			{PageID: "p2", Title: "15 March 2024"},
			{PageID: "p3", Title: "Ideas"},
		},
	})
	byPath := filesByPath(files)
	require.Len(t, byPath, 4)

	journal, ok := byPath["journals/2024_03_15.md"]
	require.True(t, ok, "files: %v", files)
	assert.NotContains(t, journal, "- # 15 March 2024")
	assert.Contains(t, journal, "\n- Ran 5k\n")
	assert.Contains(t, journal, "section:: Daily Log\n")
	assert.Contains(t, journal, "notebook:: Work\n")

	dup, ok := byPath["pages/15 March 2024.md"]
	require.True(t, ok)
	assert.Contains(t, dup, "date:: [[Mar 15th, 2024]]\n")
	assert.Contains(t, dup, "- # 15 March 2024\n")

	assert.Contains(t, byPath, "pages/Ideas.md")

	dash, ok := byPath["pages/Daily Log Dashboard.md"]
	require.True(t, ok)
	assert.Contains(t, dash, `{{query (property section "Daily Log")}}`)
	assert.Contains(t, dash, "## Journal entries")
	assert.Contains(t, dash, "  - [[Mar 15th, 2024]]\n")
	assert.Contains(t, dash, "  - [[15 March 2024]]\n")
	assert.Contains(t, dash, "  - [[Ideas]]\n")
	assert.Equal(t, strings.Count(dash, "{{"), strings.Count(dash, "}}"))
	assert.Equal(t, strings.Count(dash, "("), strings.Count(dash, ")"))
}

func TestNonJournalSectionKeepsDatedTitleAsPage(t *testing.T) {
	c := newTestConverter()
	files := c.ConvertSection(render.Section{Name: "Recipes", Pages: []*doctree.Document{{Title: "15 March 2024"}}})
	require.Len(t, files, 1)
	assert.Equal(t, "pages/15 March 2024.md", files[0].Path)
}

func TestTaskBlocks(t *testing.T) {
	c := newTestConverter()
	content := convertOne(t, c, "Home", &doctree.Document{
		Title: "Chores",
		Nodes: []*doctree.Node{
			item("[x] Buy milk"),
			item("TODO: Buy milk"),
			item("[ ] urgent call plumber"),
			item("plain bullet"),
			text("Action Item: important review"),
		},
	})

	assert.Contains(t, content, "\n- DONE Buy milk\n")
	assert.Contains(t, content, "\n- TODO Buy milk\n")
	assert.Contains(t, content, "\n- TODO urgent call plumber\n")
	assert.Contains(t, content, "\n- plain bullet\n")

	tasks := c.Tasks()
	require.Len(t, tasks, 4)
	assert.Equal(t, Task{Section: "Home", Page: "Chores", Text: "Buy milk", Priority: "C", Done: true}, tasks[0])
	assert.Equal(t, "Buy milk", tasks[1].Text)
	assert.False(t, tasks[1].Done)
	assert.Equal(t, "A", tasks[2].Priority)
	assert.Equal(t, "B", tasks[3].Priority)
	assert.Contains(t, content, "type:: task-list\n")
}

func TestParseTaskState(t *testing.T) {
	tests := []struct {
		in   string
		done bool
		rest string
	}{
		{"[x] Buy milk", true, "Buy milk"},
		{"[X] Buy milk", true, "Buy milk"},
		{"[ ] Buy milk", false, "Buy milk"},
		{"TODO: Buy milk", false, "Buy milk"},
		{"DONE ship it", true, "ship it"},
		{"- TASK file taxes", false, "file taxes"},
		{"TODO", false, "TODO"},
	}
	for _, tt := range tests {
		done, rest := ParseTaskState(tt.in)
		assert.Equal(t, tt.done, done, tt.in)
		assert.Equal(t, tt.rest, rest, tt.in)
	}
	assert.True(t, IsTaskItem("[x] a"))
	assert.True(t, IsTaskItem("TODO: a"))
	assert.False(t, IsTaskItem("Todos are fun"))
	assert.False(t, IsTaskItem("buy [x] things"))
}

func TestPriorityAndContentType(t *testing.T) {
	assert.Equal(t, "A", Priority("fix ASAP"))
	assert.Equal(t, "A", Priority("High priority bug"))
	assert.Equal(t, "B", Priority("important: renew"))
	assert.Equal(t, "C", Priority("someday"))

	assert.Equal(t, "meeting-notes", DetectContentType("Agenda\nTODO send minutes"))
	assert.Equal(t, "task-list", DetectContentType("TODO list"))
	assert.Equal(t, "research", DetectContentType("market analysis"))
	assert.Equal(t, "diary-entry", DetectContentType("dear diary"))
	assert.Equal(t, "project-notes", DetectContentType("implementation plan"))
	assert.Equal(t, "", DetectContentType("groceries"))
}

func TestBlockStructure(t *testing.T) {
	c := newTestConverter()
	content := convertOne(t, c, "Notes", &doctree.Document{
		Title:    "Plan",
		PageID:   "page-1",
		Metadata: map[string]string{doctree.MetaAuthor: "Ada", doctree.MetaCreated: "2024-03-15T10:00:00Z"},
		Nodes: []*doctree.Node{
			{Heading: 1, Payload: &doctree.Text{HTML: "Intro"}},
			{BlockID: "obj-1", Payload: &doctree.Outline{HTML: "Parent"}, Children: []*doctree.Node{
				{Depth: 1, Payload: &doctree.Text{HTML: "child"}},
				{Depth: 1, Payload: &doctree.List{HTML: "step", Ordered: true, Marker: "1."}},
			}},
			{BlockID: "obj-1", Payload: &doctree.Text{HTML: "again"}},
			text("use {{q}} and a::b"),
			text("<span style='background:yellow;mso-highlight:yellow'>15 March 2024</span> review"),
		},
	})

	sum := md5.Sum([]byte("obj-1"))
	ref := "#^" + hex.EncodeToString(sum[:])[:8]

	for _, want := range []string{
		"onenote-id:: page-1\n",
		"author:: Ada\n",
		"created:: [[Mar 15th, 2024]]\n",
		"tags:: #onenote-import\n",
		"\n- # Plan\n",
		"\n- ## Intro\n",
		"\n- " + ref + " Parent\n  - child\n  - step\n    logseq.order-list-type:: number\n",
		"\n- again\n",
		`- use \{\{q\}\} and a\:\:b`,
		"- ^^[[Mar 15th, 2024]]^^ review",
		"- **Source**: Work > Notes > Plan\n  collapsed:: true\n  - Extracted: Jan 2nd, 2025\n",
	} {
		assert.Contains(t, content, want)
	}
	assert.Equal(t, 1, strings.Count(content, ref))
	assert.Equal(t, map[string]string{"obj-1": ref[2:]}, c.BlockRefs())
}

func TestImages(t *testing.T) {
	c := newTestConverter()
	files := c.ConvertSection(render.Section{
		Name: "Meeting Notes",
		Pages: []*doctree.Document{
			{Title: "Weekly sync one", Nodes: []*doctree.Node{
				{Payload: &doctree.Image{ID: "i1", Alt: "Whiteboard", PageID: "p1"}},
				{Payload: &doctree.Image{Alt: "gone"}},
			}},
			{Title: "Weekly sync two", Nodes: []*doctree.Node{
				{Payload: &doctree.Image{ID: "i2"}},
			}},
		},
	})
	byPath := filesByPath(files)

	first := byPath["pages/Weekly sync one.md"]
	assert.Contains(t, first, "- ![Whiteboard](../assets/meeting-n-weekly-s-001.png)\n  - *Whiteboard*\n")
	assert.Contains(t, first, "- <!-- Missing image: gone -->\n")

	images := c.Images()
	require.Len(t, images, 2)
	assert.Equal(t, "meeting-n-weekly-s-001.png", images["i1"].FileName)
	assert.Regexp(t, regexp.MustCompile(`^meeting-n-weekly-s-001-[0-9a-f]{4}\.png$`), images["i2"].FileName)
	assert.Equal(t, "assets/meeting-n-weekly-s-001.png", images["i1"].RelativePath)
	assert.Equal(t, "assets/meeting-n-weekly-s-001.png", images["i1"].TargetPath)
	assert.Equal(t, "Meeting Notes", images["i1"].SectionSanitized)
	assert.Equal(t, "Weekly sync one", images["i1"].Page)

	second := byPath["pages/Weekly sync two.md"]
	assert.Contains(t, second, "- ![](../assets/"+images["i2"].FileName+")\n")
}

func TestShortName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Meeting Notes", "meeting-n"},
		{"Weekly sync one", "weekly-s"},
		{"Plan", "plan"},
		{"The Art of War", "art-war"},
		{"Q&A Session", "qa-sess"},
		{"Architecture", "archite"},
		{"the", "the"},
		{"!!!", "img"},
		{"", "img"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortName(tt.in), "input %q", tt.in)
	}
}

func TestImageEntryCarriesSectionHint(t *testing.T) {
	c := newTestConverter()
	convertOne(t, c, "trade_research", &doctree.Document{Title: "T", Images: []*doctree.Image{{ID: "x"}}})
	e := c.Images()["x"]
	assert.Equal(t, "trade.research", e.Section)
	assert.Equal(t, "trade_research", e.SectionSanitized)
}

func TestTables(t *testing.T) {
	c := newTestConverter()
	content := convertOne(t, c, "S", &doctree.Document{Title: "T", Nodes: []*doctree.Node{
		{Payload: &doctree.Table{Rows: []doctree.Row{
			{Cells: []doctree.Cell{{HTML: "h1"}, {HTML: "h2"}, {HTML: ""}}},
			{Cells: []doctree.Cell{{HTML: "a"}}},
		}}},
		{Payload: &doctree.Table{}},
	}})
	assert.Contains(t, content, "- Table:\n  - **h1 | h2**\n  - a | \n")
	assert.Contains(t, content, "- <!-- Empty table -->\n")
}

func TestFinish(t *testing.T) {
	c := newTestConverter()
	c.ConvertSection(render.Section{Name: "A", Pages: []*doctree.Document{
		{Title: "one", Nodes: []*doctree.Node{text("meeting agenda"), item("TODO call")}},
	}})
	c.ConvertSection(render.Section{Name: "B", Pages: []*doctree.Document{{Title: "two"}, {Title: "three"}}})

	byPath := filesByPath(c.Finish())
	dash, ok := byPath["pages/"+ImportDashboard+".md"]
	require.True(t, ok)
	assert.Contains(t, dash, "  - Sections: 2\n")
	assert.Contains(t, dash, "  - Pages: 3\n")
	assert.Contains(t, dash, "  - Tasks detected: 1\n")
	assert.Contains(t, dash, "  - Meetings detected: 1\n")
	assert.Contains(t, dash, "  - A\n")
	assert.Contains(t, dash, "  - [[B Dashboard]]\n")
	assert.Equal(t, strings.Count(dash, "{{"), strings.Count(dash, "}}"))
	assert.Equal(t, strings.Count(dash, "("), strings.Count(dash, ")"))

	cfg, ok := byPath["logseq/config.edn"]
	require.True(t, ok)
	assert.Contains(t, cfg, `:journal/file-name-format "yyyy_MM_dd"`)
	assert.Contains(t, cfg, ":preferred-format :markdown")
}

func TestUnrecognizedConstructsAreVisible(t *testing.T) {
	c := newTestConverter()
	content := convertOne(t, c, "S", &doctree.Document{Title: "T", UnknownElements: []string{"OE.InkWord"}})
	assert.Contains(t, content, "- <!-- Unrecognized OneNote content: OE.InkWord -->\n")
}
