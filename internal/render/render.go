// Package render holds what the dialect renderers share: page titles, date
// detection, table normalization and the image-resolution map.
package render

import (
	"fmt"
	"strings"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/htmltext"
)

// Dialect names an output format.
type Dialect string

const (
	Obsidian Dialect = "obsidian"
	Logseq   Dialect = "logseq"
)

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case Obsidian, Logseq:
		return d, nil
	default:
		return "", fmt.Errorf("unknown dialect %q (want %s or %s)", s, Obsidian, Logseq)
	}
}

// File is one rendered output file. Path is slash-separated and relative to
// the output root.
type File struct {
	Path    string
	Content string
}

// Section is an ordered group of pages sharing a OneNote section.
type Section struct {
	Name  string
	Pages []*doctree.Document
}

// Summary counts what a converter produced during one run.
type Summary struct {
	Sections  int `json:"sections"`
	Pages     int `json:"pages"`
	Images    int `json:"images"`
	Tasks     int `json:"tasks"`
	Meetings  int `json:"meetings"`
	BlockRefs int `json:"block_refs"`
}

// Converter renders sections into one dialect. A Converter accumulates
// run-wide state and must be driven from a single goroutine.
type Converter interface {
	Dialect() Dialect
	ConvertSection(sec Section) []File
	Finish() []File
	Images() ImageMap
	Summary() Summary
}

// PageTitle returns the display title of a page: its stripped title, else
// its name attribute, else "Untitled".
func PageTitle(doc *doctree.Document) string {
	if t := htmltext.Strip(doc.Title); t != "" {
		return t
	}
	if n := htmltext.Strip(doc.Meta(doctree.MetaName)); n != "" {
		return n
	}
	return "Untitled"
}

// MeaningfulAlt reports whether alt text says more than a placeholder.
func MeaningfulAlt(alt string) bool {
	switch strings.ToLower(strings.TrimSpace(alt)) {
	case "", "image", "untitled":
		return false
	}
	return true
}

// UnrecognizedComment renders a page's diagnostics as an HTML comment, or ""
// when there is nothing to report.
func UnrecognizedComment(doc *doctree.Document) string {
	if doc.Unrecognized() == 0 {
		return ""
	}
	names := append(append([]string{}, doc.UnknownElements...), doc.UnknownAttributes...)
	return "<!-- Unrecognized OneNote content: " + strings.Join(names, ", ") + " -->"
}

// PlainText returns the visible text of every node, one node per line.
func PlainText(doc *doctree.Document) string {
	var sb strings.Builder
	sb.WriteString(PageTitle(doc))
	doc.Walk(func(n *doctree.Node) bool {
		text := htmltext.Strip(n.HTML())
		if t, ok := n.Payload.(*doctree.Table); ok {
			for _, r := range t.Rows {
				for _, c := range r.Cells {
					text += " " + htmltext.Strip(c.HTML)
				}
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString("\n")
			sb.WriteString(text)
		}
		return true
	})
	return sb.String()
}
