package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/notegest/internal/doctree"
	"github.com/dgallion1/notegest/internal/htmltext"
)

// OneNote namespaces accepted on the Page root.
const (
	Namespace2013 = "http://schemas.microsoft.com/office/onenote/2013/onenote"
	Namespace2010 = "http://schemas.microsoft.com/office/onenote/2010/onenote"
)

var pageNamespaces = map[string]bool{
	Namespace2013: true,
	Namespace2010: true,
}

// Attribute and child sets the walker understands. Anything else is
// reported through Document.UnknownElements / UnknownAttributes.
var (
	pageAttrs = set("ID", "name", "dateTime", "lastModifiedTime", "pageLevel", "lang",
		"selected", "isCurrentlyViewed")

	pageChildTags = set("TagDef", "QuickStyleDef", "PageSettings", "Title", "Outline",
		"Meta", "Image", "MediaPlaylist")

	styleAttrs = set("index", "name", "fontColor", "highlightColor", "font", "fontSize",
		"spaceBefore", "spaceAfter", "bold", "italic", "underline", "strikethrough",
		"subscript", "superscript")

	outlineAttrs = set("author", "authorInitials", "authorResolutionID", "lastModifiedBy",
		"lastModifiedByInitials", "lastModifiedByResolutionID", "lastModifiedTime",
		"objectID", "selected")

	outlineChildTags = set("Position", "Size", "OEChildren", "Indents", "Meta")

	oeAttrs = set("objectID", "alignment", "quickStyleIndex", "creationTime",
		"lastModifiedTime", "author", "authorInitials", "lastModifiedBy",
		"lastModifiedByInitials", "authorResolutionID", "lastModifiedByResolutionID",
		"style", "lang", "selected")

	oeChildTags = set("T", "Image", "Table", "OEChildren", "List", "Tag", "Meta")

	imageAttrs = set("alt", "format", "objectID", "lastModifiedTime", "originalPageNumber",
		"isPrintOut", "selected")

	imageChildTags = set("CallbackID", "Position", "Size", "OCRData", "Data")
)

var (
	blankLinesRe = regexp.MustCompile(`\n\s*\n`)
	spacesRe     = regexp.MustCompile(` +`)
	headingRe    = regexp.MustCompile(`^h([1-6])$`)
	altFormatRe  = regexp.MustCompile(`(?i)\b(jpe?g|png|gif|bmp|webp)\b`)
)

// OneNote parses OneNote page XML as exported by the OneNote COM API
// (GetPageContent).
type OneNote struct{}

// element is a generic XML node. The page schema is walked by hand so that
// unknown constructs can be reported instead of silently dropped.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []element  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (e *element) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name && !isNamespaceDecl(a.Name) {
			return a.Value
		}
	}
	return ""
}

func (e *element) child(local string) *element {
	for i := range e.Children {
		if e.Children[i].XMLName.Local == local {
			return &e.Children[i]
		}
	}
	return nil
}

func isNamespaceDecl(n xml.Name) bool {
	return n.Space == "xmlns" || (n.Space == "" && n.Local == "xmlns")
}

func (OneNote) Parse(r io.Reader, name string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &MalformedInputError{Name: name, Reason: ReasonUnparseable, Detail: "empty document"}
	}

	var root element
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, &MalformedInputError{Name: name, Reason: ReasonUnparseable, Err: err}
	}
	if root.XMLName.Local != "Page" {
		return nil, &MalformedInputError{Name: name, Reason: ReasonWrongSchema,
			Detail: fmt.Sprintf("root element %q is not a page", root.XMLName.Local)}
	}
	if !pageNamespaces[root.XMLName.Space] {
		return nil, &MalformedInputError{Name: name, Reason: ReasonWrongSchema,
			Detail: fmt.Sprintf("unknown namespace %q", root.XMLName.Space)}
	}

	w := &pageWalker{
		doc: &doctree.Document{
			PageID:   root.attr("ID"),
			Metadata: make(map[string]string),
			Styles:   make(map[string]map[string]string),
		},
		tagDefs:      make(map[string]*element),
		images:       make(map[*element]*doctree.Image),
		unknownElems: make(map[string]struct{}),
		unknownAttrs: make(map[string]struct{}),
	}
	w.page(&root)
	return w.doc, nil
}

// pageWalker holds the state of one Parse call.
type pageWalker struct {
	doc          *doctree.Document
	tagDefs      map[string]*element
	images       map[*element]*doctree.Image
	unknownElems map[string]struct{}
	unknownAttrs map[string]struct{}
}

func (w *pageWalker) page(root *element) {
	w.pageAttributes(root)

	for i := range root.Children {
		c := &root.Children[i]
		switch c.XMLName.Local {
		case "QuickStyleDef":
			w.quickStyle(c)
		case "TagDef":
			w.tagDefs[c.attr("index")] = c
		case "PageSettings":
			for _, a := range c.Attrs {
				if !isNamespaceDecl(a.Name) {
					w.doc.Metadata["page_settings."+a.Name.Local] = a.Value
				}
			}
		default:
			if _, ok := pageChildTags[c.XMLName.Local]; !ok {
				w.unknownElem("Page", c.XMLName.Local)
			}
		}
	}

	if t := root.child("Title"); t != nil {
		if oe := t.child("OE"); oe != nil {
			w.doc.Title = htmltext.Strip(joinText(oe))
		}
	}

	for i := range root.Children {
		if c := &root.Children[i]; c.XMLName.Local == "Outline" {
			w.doc.Nodes = append(w.doc.Nodes, w.outline(c)...)
		}
	}

	w.collectImages(root)

	w.doc.UnknownElements = sortedKeys(w.unknownElems)
	w.doc.UnknownAttributes = sortedKeys(w.unknownAttrs)
}

func (w *pageWalker) pageAttributes(root *element) {
	md := w.doc.Metadata
	for _, a := range root.Attrs {
		if isNamespaceDecl(a.Name) {
			continue
		}
		switch a.Name.Local {
		case "name":
			md[doctree.MetaName] = a.Value
		case "dateTime":
			md[doctree.MetaCreated] = normalizeTime(a.Value)
		case "lastModifiedTime":
			md[doctree.MetaLastModified] = normalizeTime(a.Value)
		case "pageLevel":
			md[doctree.MetaPageLevel] = a.Value
		case "lang":
			md[doctree.MetaLang] = a.Value
		default:
			if _, ok := pageAttrs[a.Name.Local]; !ok {
				w.unknownAttr("Page", a.Name)
			}
		}
	}
}

func (w *pageWalker) quickStyle(e *element) {
	style := make(map[string]string)
	for _, a := range e.Attrs {
		if isNamespaceDecl(a.Name) {
			continue
		}
		if _, ok := styleAttrs[a.Name.Local]; !ok {
			w.unknownAttr("QuickStyleDef", a.Name)
		}
		style[a.Name.Local] = a.Value
	}
	if idx := e.attr("index"); idx != "" {
		w.doc.Styles[idx] = style
	}
}

func (w *pageWalker) outline(e *element) []*doctree.Node {
	for _, a := range e.Attrs {
		if isNamespaceDecl(a.Name) {
			continue
		}
		if _, ok := outlineAttrs[a.Name.Local]; !ok {
			w.unknownAttr("Outline", a.Name)
		}
	}
	if author := e.attr("author"); author != "" && w.doc.Metadata[doctree.MetaAuthor] == "" {
		w.doc.Metadata[doctree.MetaAuthor] = author
	}

	var nodes []*doctree.Node
	for i := range e.Children {
		c := &e.Children[i]
		if c.XMLName.Local == "OEChildren" {
			nodes = append(nodes, w.oeChildren(c, 0)...)
			continue
		}
		if _, ok := outlineChildTags[c.XMLName.Local]; !ok {
			w.unknownElem("Outline", c.XMLName.Local)
		}
	}
	return nodes
}

func (w *pageWalker) oeChildren(e *element, depth int) []*doctree.Node {
	var nodes []*doctree.Node
	for i := range e.Children {
		c := &e.Children[i]
		if c.XMLName.Local != "OE" {
			w.unknownElem("OEChildren", c.XMLName.Local)
			continue
		}
		if n := w.oe(c, depth); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// oe builds one Node. An image wins over a table, which wins over text.
func (w *pageWalker) oe(e *element, depth int) *doctree.Node {
	for _, a := range e.Attrs {
		if isNamespaceDecl(a.Name) {
			continue
		}
		if _, ok := oeAttrs[a.Name.Local]; !ok {
			w.unknownAttr("OE", a.Name)
		}
	}

	n := &doctree.Node{
		Depth:   depth,
		BlockID: e.attr("objectID"),
		Heading: w.headingLevel(e.attr("quickStyleIndex")),
	}

	var (
		texts    []string
		img      *element
		table    *element
		list     *element
		checkbox string
	)
	for i := range e.Children {
		c := &e.Children[i]
		switch c.XMLName.Local {
		case "T":
			texts = append(texts, c.Text)
		case "Image":
			if img == nil {
				img = c
			}
		case "Table":
			if table == nil {
				table = c
			}
		case "OEChildren":
			n.Children = append(n.Children, w.oeChildren(c, depth+1)...)
		case "List":
			list = c
		case "Tag":
			if mark := w.checkbox(c); mark != "" {
				checkbox = mark
			}
		default:
			if _, ok := oeChildTags[c.XMLName.Local]; !ok {
				w.unknownElem("OE", c.XMLName.Local)
			}
		}
	}

	text := cleanText(strings.Join(texts, " "))
	if htmltext.IsBlank(text) {
		text = ""
	}

	switch {
	case img != nil:
		n.Payload = w.image(img)
	case table != nil:
		n.Payload = w.table(table)
	case text != "" && (list != nil || checkbox != ""):
		item := &doctree.List{HTML: checkbox + text}
		if list != nil {
			if num := list.child("Number"); num != nil {
				item.Ordered = true
				item.Marker = num.attr("text")
			}
		}
		n.Payload = item
	case text != "" && htmltext.HasBlockTags(text):
		n.Payload = &doctree.UnknownHTML{HTML: text}
	case text != "" && len(n.Children) > 0:
		n.Payload = &doctree.Outline{HTML: text}
	case text != "":
		n.Payload = &doctree.Text{HTML: text}
	case len(n.Children) > 0:
		n.Payload = &doctree.Outline{}
	default:
		return nil
	}
	return n
}

func (w *pageWalker) headingLevel(styleIndex string) int {
	if styleIndex == "" {
		return 0
	}
	m := headingRe.FindStringSubmatch(w.doc.Styles[styleIndex]["name"])
	if m == nil {
		return 0
	}
	return int(m[1][0] - '0')
}

// checkbox returns "[ ] " or "[x] " for to-do tags and "" for other tags.
func (w *pageWalker) checkbox(tag *element) string {
	def := w.tagDefs[tag.attr("index")]
	if def == nil {
		return ""
	}
	name := strings.ToLower(def.attr("name"))
	if !strings.Contains(name, "to do") && !strings.Contains(name, "todo") && def.attr("symbol") != "3" {
		return ""
	}
	if tag.attr("completed") == "true" {
		return "[x] "
	}
	return "[ ] "
}

func (w *pageWalker) image(e *element) *doctree.Image {
	if img, ok := w.images[e]; ok {
		return img
	}
	for _, a := range e.Attrs {
		if isNamespaceDecl(a.Name) {
			continue
		}
		if _, ok := imageAttrs[a.Name.Local]; !ok {
			w.unknownAttr("Image", a.Name)
		}
	}
	img := &doctree.Image{
		Alt:    strings.TrimSpace(e.attr("alt")),
		PageID: w.doc.PageID,
	}
	for i := range e.Children {
		c := &e.Children[i]
		if c.XMLName.Local == "CallbackID" {
			img.ID = c.attr("callbackID")
			continue
		}
		if _, ok := imageChildTags[c.XMLName.Local]; !ok {
			w.unknownElem("Image", c.XMLName.Local)
		}
	}
	img.Format = formatHint(e.attr("format"), img.Alt, img.ID)
	w.images[e] = img
	return img
}

func (w *pageWalker) table(e *element) *doctree.Table {
	t := &doctree.Table{}
	for i := range e.Children {
		row := &e.Children[i]
		if row.XMLName.Local != "Row" {
			continue
		}
		var r doctree.Row
		for j := range row.Children {
			cell := &row.Children[j]
			if cell.XMLName.Local != "Cell" {
				continue
			}
			var parts []string
			var images []*doctree.Image
			w.cellContent(cell, &parts, &images)
			r.Cells = append(r.Cells, doctree.Cell{
				HTML:   strings.Join(parts, "<br>"),
				Images: images,
			})
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

// cellContent gathers paragraph text and images from any depth below a cell.
func (w *pageWalker) cellContent(e *element, parts *[]string, images *[]*doctree.Image) {
	for i := range e.Children {
		c := &e.Children[i]
		switch c.XMLName.Local {
		case "OE":
			var texts []string
			for j := range c.Children {
				switch gc := &c.Children[j]; gc.XMLName.Local {
				case "T":
					texts = append(texts, gc.Text)
				case "Image":
					*images = append(*images, w.image(gc))
				case "OEChildren":
					w.cellContent(gc, parts, images)
				}
			}
			if text := cleanText(strings.Join(texts, " ")); !htmltext.IsBlank(text) {
				*parts = append(*parts, text)
			}
		case "OEChildren":
			w.cellContent(c, parts, images)
		}
	}
}

func (w *pageWalker) collectImages(e *element) {
	for i := range e.Children {
		c := &e.Children[i]
		if c.XMLName.Local == "Image" {
			w.doc.Images = append(w.doc.Images, w.image(c))
			continue
		}
		w.collectImages(c)
	}
}

func (w *pageWalker) unknownElem(parent, local string) {
	w.unknownElems[parent+"."+local] = struct{}{}
}

func (w *pageWalker) unknownAttr(parent string, name xml.Name) {
	w.unknownAttrs[parent+"."+name.Local] = struct{}{}
}

func joinText(oe *element) string {
	var texts []string
	for i := range oe.Children {
		if oe.Children[i].XMLName.Local == "T" {
			texts = append(texts, oe.Children[i].Text)
		}
	}
	return cleanText(strings.Join(texts, " "))
}

func cleanText(s string) string {
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func normalizeTime(v string) string {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return v
	}
	return t.UTC().Format(time.RFC3339)
}

func formatHint(format, alt, id string) string {
	if ext := normalizeExt(format); ext != "" {
		return ext
	}
	if m := altFormatRe.FindStringSubmatch(alt); m != nil {
		return normalizeExt(m[1])
	}
	lowerID := strings.ToLower(id)
	switch {
	case strings.Contains(lowerID, "jpg"), strings.Contains(lowerID, "jpeg"):
		return "jpg"
	case strings.Contains(lowerID, "png"):
		return "png"
	}
	return ""
}

func normalizeExt(s string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "jpg", "jpeg":
		return "jpg"
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "bmp":
		return "bmp"
	case "webp":
		return "webp"
	case "emf":
		return "emf"
	}
	return ""
}

func set(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
