package doctree

// Metadata keys populated by the parser.
const (
	MetaName         = "name"
	MetaCreated      = "created"
	MetaLastModified = "last_modified"
	MetaAuthor       = "author"
	MetaPageLevel    = "page_level"
	MetaLang         = "lang"
)

// Document is one parsed OneNote page.
type Document struct {
	PageID   string            // OneNote page ID attribute
	Title    string            // Plain-text title, tags stripped
	Metadata map[string]string // Recognized page attributes
	Nodes    []*Node           // Top-level content in document order
	Images   []*Image          // Every image on the page, including floating ones
	Styles   map[string]map[string]string

	UnknownElements   []string // Sorted, deduplicated
	UnknownAttributes []string // Sorted, deduplicated
}

// Unrecognized returns the number of distinct unrecognized constructs.
func (d *Document) Unrecognized() int {
	return len(d.UnknownElements) + len(d.UnknownAttributes)
}

// Meta returns a metadata value or "".
func (d *Document) Meta(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// Walk visits every node depth-first. Returning false from fn skips the
// node's children.
func (d *Document) Walk(fn func(n *Node) bool) {
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if fn(n) {
				walk(n.Children)
			}
		}
	}
	walk(d.Nodes)
}

// Node is one unit of page structure. Payload is one of *Text, *Outline,
// *List, *Image, *Table or *UnknownHTML.
type Node struct {
	Depth    int    // Nesting depth from the outline root
	BlockID  string // OneNote objectID, empty if absent
	Heading  int    // Heading level, 0 for body text
	Payload  Payload
	Children []*Node
}

// Payload is the variant part of a Node.
type Payload interface {
	Kind() Kind
}

// Kind enumerates Node variants.
type Kind int

const (
	KindText Kind = iota
	KindOutline
	KindList
	KindImage
	KindTable
	KindUnknownHTML
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindOutline:
		return "outline"
	case KindList:
		return "list"
	case KindImage:
		return "image"
	case KindTable:
		return "table"
	case KindUnknownHTML:
		return "unknown_html"
	default:
		return "invalid"
	}
}

// Text is a leaf run of inline HTML.
type Text struct {
	HTML string
}

// Outline groups nested children under optional text of its own.
type Outline struct {
	HTML string
}

// List is a bulleted, numbered or checkbox item.
type List struct {
	HTML    string
	Ordered bool
	Marker  string // Number text from the export, e.g. "1." or "a)"
}

// Image references picture bytes held by the export source.
type Image struct {
	ID     string // CallbackID used to fetch the bytes, may be empty
	Alt    string
	PageID string
	Format string // Lowercase extension hint, empty if unknown
}

// Table is a grid of cells.
type Table struct {
	Rows []Row
}

// Row is one table row.
type Row struct {
	Cells []Cell
}

// Cell holds inline HTML and any images nested in the cell.
type Cell struct {
	HTML   string
	Images []*Image
}

// UnknownHTML is a block-level HTML fragment outside the inline set.
type UnknownHTML struct {
	HTML string
}

func (*Text) Kind() Kind        { return KindText }
func (*Outline) Kind() Kind     { return KindOutline }
func (*List) Kind() Kind        { return KindList }
func (*Image) Kind() Kind       { return KindImage }
func (*Table) Kind() Kind       { return KindTable }
func (*UnknownHTML) Kind() Kind { return KindUnknownHTML }

// Visitor has one method per Node variant.
type Visitor interface {
	VisitText(n *Node, t *Text)
	VisitOutline(n *Node, o *Outline)
	VisitList(n *Node, l *List)
	VisitImage(n *Node, img *Image)
	VisitTable(n *Node, t *Table)
	VisitUnknownHTML(n *Node, u *UnknownHTML)
}

// Accept dispatches n to the matching Visitor method. Nodes with a nil
// payload are ignored.
func (n *Node) Accept(v Visitor) {
	switch p := n.Payload.(type) {
	case *Text:
		v.VisitText(n, p)
	case *Outline:
		v.VisitOutline(n, p)
	case *List:
		v.VisitList(n, p)
	case *Image:
		v.VisitImage(n, p)
	case *Table:
		v.VisitTable(n, p)
	case *UnknownHTML:
		v.VisitUnknownHTML(n, p)
	}
}

// HTML returns the inline HTML carried by text-like payloads.
func (n *Node) HTML() string {
	switch p := n.Payload.(type) {
	case *Text:
		return p.HTML
	case *Outline:
		return p.HTML
	case *List:
		return p.HTML
	case *UnknownHTML:
		return p.HTML
	}
	return ""
}
