package obsidian

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/render"
)

var fixedNow = func() time.Time { return time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC) }

func newTestConverter() *Converter {
	return New(Options{Now: fixedNow})
}

func parseNote(t *testing.T, content string) (frontMatter, string) {
	t.Helper()
	var fm frontMatter
	body, err := frontmatter.Parse(strings.NewReader(content), &fm)
	require.NoError(t, err)
	return fm, string(body)
}

func filesByPath(files []render.File) map[string]string {
	m := make(map[string]string, len(files))
	for _, f := range files {
		m[f.Path] = f.Content
	}
	return m
}

func TestClassify(t *testing.T) {
	tests := []struct {
		section string
		want    Category
	}{
		{"Daily Journal", Calendar},
		{"Notes 2023", Calendar},
		{"Research Papers", Reference},
		{"Old Archive", Reference},
		{"Project Apollo", Project},
		{"Go Tutorial", Project},
		{"Recipes", General},
		{"Journal of Research", Calendar},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.section), tt.section)
	}
	assert.Equal(t, "daily", Calendar.Base())
	assert.Equal(t, "", General.Base())
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Meeting Notes":      "Meeting-Notes",
		"  a / b : c  ":      "a-b-c",
		"--weird__":          "weird",
		"Café au lait":       "Café-au-lait",
		"???":                "untitled",
		"":                   "untitled",
		"multi   space\ttab": "multi-space-tab",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), "input %q", in)
	}
}

func TestConvertSection_DatedNotes(t *testing.T) {
	c := newTestConverter()
	files := c.ConvertSection(render.Section{
		Name: "Daily Journal",
		Pages: []*doctree.Document{
			{PageID: "p1", Title: "15 March 2024", Nodes: []*doctree.Node{{Payload: &doctree.Text{HTML: "Slept well"}}}},
			{PageID: "p2", Title: "15 March 2024"},
		},
	})
	byPath := filesByPath(files)
	require.Len(t, byPath, 3)

	note, ok := byPath["daily/2024-03-15.md"]
	require.True(t, ok, "paths: %v", files)
	fm, body := parseNote(t, note)
	assert.Equal(t, "15 March 2024", fm.Title)
	assert.Equal(t, "2024-03-15", fm.Date)
	assert.Equal(t, []string{ImportTag}, fm.Tags)
	assert.Equal(t, "calendar", fm.Category)
	assert.Equal(t, "Daily Journal > 15 March 2024", fm.OneNoteSource)
	assert.NotContains(t, body, "# 15 March 2024")
	assert.Contains(t, body, "Slept well")

	assert.Contains(t, byPath, "daily/2024-03-15-2.md")

	index, ok := byPath["daily/Daily-Journal/README.md"]
	require.True(t, ok)
	ifm, ibody := parseNote(t, index)
	assert.Equal(t, "index", ifm.Type)
	assert.Equal(t, 2, ifm.PageCount)
	assert.Contains(t, ibody, "[[daily/2024-03-15|15 March 2024]]")
	assert.Contains(t, ibody, "[[daily/2024-03-15-2|15 March 2024]]")
}

func TestConvertSection_SinglePageHasNoIndex(t *testing.T) {
	c := newTestConverter()
	files := c.ConvertSection(render.Section{
		Name:  "Recipes",
		Pages: []*doctree.Document{{Title: "Soup", Metadata: map[string]string{doctree.MetaCreated: "2023-05-06T07:08:09Z"}}},
	})
	require.Len(t, files, 1)
	assert.Equal(t, "Recipes/Soup.md", files[0].Path)

	fm, body := parseNote(t, files[0].Content)
	assert.Equal(t, "2023-05-06", fm.Date)
	assert.Equal(t, "2025-01-02", fm.ExtractionDate)
	assert.Empty(t, fm.Category)
	assert.True(t, strings.HasPrefix(body, "\n# Soup") || strings.HasPrefix(body, "# Soup"), body)
	assert.Contains(t, body, "*Extracted from OneNote: Recipes > Soup*")
}

func TestConvertSection_Body(t *testing.T) {
	doc := &doctree.Document{
		PageID:   "page-1",
		Title:    "Plan",
		Metadata: map[string]string{doctree.MetaLastModified: "2024-03-16T09:00:00Z"},
		Nodes: []*doctree.Node{
			{Heading: 2, Payload: &doctree.Text{HTML: "Goals"}},
			{Payload: &doctree.Text{HTML: "<b>Ship</b> it"}},
			{Payload: &doctree.Outline{HTML: "Steps"}, Children: []*doctree.Node{
				{Depth: 1, Payload: &doctree.List{HTML: "first", Ordered: true, Marker: "1."}},
				{Depth: 1, Payload: &doctree.List{HTML: "second", Ordered: true, Marker: "b)"}},
				{Depth: 1, Payload: &doctree.Text{HTML: "note"}},
			}},
			{Payload: &doctree.Image{Alt: "lost"}},
			{Payload: &doctree.Image{ID: "img-1", Alt: "Architecture Diagram", Format: "jpg"}},
			{Payload: &doctree.Table{Rows: []doctree.Row{
				{Cells: []doctree.Cell{{HTML: "a|b"}, {HTML: "two<br>lines"}}},
				{Cells: []doctree.Cell{{HTML: "x", Images: []*doctree.Image{{ID: "img-2"}}}}},
			}}},
			{Payload: &doctree.Table{Rows: []doctree.Row{{Cells: []doctree.Cell{{HTML: " "}}}}}},
			{Payload: &doctree.UnknownHTML{HTML: "<ul><li>alpha</li></ul>"}},
		},
		Images:          []*doctree.Image{{ID: "img-1"}, {ID: "img-2"}, {ID: "img-3", Alt: "floating"}},
		UnknownElements: []string{"OE.InkWord"},
	}

	c := newTestConverter()
	files := c.ConvertSection(render.Section{Name: "Project X", Pages: []*doctree.Document{doc}})
	require.Len(t, files, 1)
	assert.Equal(t, "projects/Project-X/Plan.md", files[0].Path)

	fm, body := parseNote(t, files[0].Content)
	assert.Equal(t, "page-1", fm.PageID)
	assert.Equal(t, "2024-03-16T09:00:00Z", fm.LastModified)

	for _, want := range []string{
		"# Plan",
		"### Goals",
		"**Ship** it",
		"Steps",
		"  1. first\n  1. second\n  - note",
		"<!-- Missing image: lost -->",
		"![[architecture-diagram.jpg]]\n*Architecture Diagram*",
		"| a\\|b | two<br>lines |\n| --- | --- |\n| x<br>![[",
		"<!-- Empty table -->",
		"- alpha",
		"*floating*",
		"<!-- Unrecognized OneNote content: OE.InkWord -->",
		"---\n*Extracted from OneNote: Project X > Plan*\n*Last modified: 2024-03-16T09:00:00Z*",
	} {
		assert.Contains(t, body, want)
	}
	assert.Equal(t, 1, strings.Count(body, "architecture-diagram.jpg"), "embedded image is not appended again")

	images := c.Images()
	require.Len(t, images, 3)
	assert.Equal(t, "attachments/architecture-diagram.jpg", images["img-1"].RelativePath)
	assert.Equal(t, "Project X", images["img-1"].Section)
	assert.Equal(t, "Plan", images["img-1"].Page)
	assert.Equal(t, "project-x-plan-2.png", images["img-2"].FileName)
}

func TestImageNamesAreUnique(t *testing.T) {
	var nodes []*doctree.Node
	for _, id := range []string{"a", "b", "c", "a"} {
		nodes = append(nodes, &doctree.Node{Payload: &doctree.Image{ID: id, Alt: "Diagram"}})
	}
	c := newTestConverter()
	c.ConvertSection(render.Section{Name: "S", Pages: []*doctree.Document{{Title: "P", Nodes: nodes}}})

	images := c.Images()
	require.Len(t, images, 3)
	seen := make(map[string]bool)
	for _, e := range images {
		assert.False(t, seen[e.FileName], "duplicate %s", e.FileName)
		seen[e.FileName] = true
	}
	assert.Equal(t, "diagram.png", images["a"].FileName)
	assert.Regexp(t, regexp.MustCompile(`^diagram-[0-9a-f]{4}\.png$`), images["b"].FileName)
	assert.Regexp(t, regexp.MustCompile(`^diagram-[0-9a-f]{4}\.png$`), images["c"].FileName)

	s := c.Summary()
	assert.Equal(t, 1, s.Sections)
	assert.Equal(t, 1, s.Pages)
	assert.Equal(t, 3, s.Images)
}

func TestTableRowsHaveEqualColumns(t *testing.T) {
	doc := &doctree.Document{Title: "T", Nodes: []*doctree.Node{{Payload: &doctree.Table{Rows: []doctree.Row{
		{Cells: []doctree.Cell{{HTML: "h1"}, {HTML: "h2"}, {HTML: "h3"}, {HTML: ""}}},
		{Cells: []doctree.Cell{{HTML: "a"}}},
		{Cells: []doctree.Cell{{HTML: "b"}, {HTML: "c"}}},
	}}}}}
	c := newTestConverter()
	files := c.ConvertSection(render.Section{Name: "S", Pages: []*doctree.Document{doc}})
	require.Len(t, files, 1)

	var rows []string
	for _, line := range strings.Split(files[0].Content, "\n") {
		if strings.HasPrefix(line, "|") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, 3, strings.Count(r, " |"), "row %q", r)
	}
}
