package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dgallion1/notegest/internal/parser"
	"github.com/dgallion1/notegest/internal/render"
)

// PageInput is one exported page awaiting conversion.
type PageInput struct {
	Section string
	Name    string // File name within the section, e.g. "01_Plan.xml"
	Data    []byte
}

// PageOutcome reports how a single page fared.
type PageOutcome struct {
	Section      string `json:"section"`
	Name         string `json:"name"`
	PageID       string `json:"page_id,omitempty"`
	Title        string `json:"title,omitempty"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	Unrecognized int    `json:"unrecognized"`
	ContentHash  string `json:"content_hash"`

	Err error `json:"-"` // Parse failure behind Error
}

// Recorder persists page outcomes as they are produced.
type Recorder interface {
	RecordPage(ctx context.Context, o PageOutcome) error
}

// Options carries the optional collaborators of Convert.
type Options struct {
	Log      *slog.Logger
	Recorder Recorder
	Stats    *ConvertStats
	OnPage   func(PageOutcome)
}

// Result summarizes one conversion run.
type Result struct {
	Dialect      render.Dialect `json:"dialect"`
	Sections     int            `json:"sections"`
	Pages        int            `json:"pages"`
	Converted    int            `json:"converted"`
	Failed       int            `json:"failed"`
	Unrecognized int            `json:"unrecognized"`
	Images       int            `json:"images"`
	Files        int            `json:"files"`
	Summary      render.Summary `json:"summary"`
	Outcomes     []PageOutcome  `json:"outcomes"`
}

// Clean reports whether every page converted without diagnostics.
func (r Result) Clean() bool {
	return r.Failed == 0 && r.Unrecognized == 0
}

// Convert parses every input, renders it with conv and writes the output
// files, the dialect's closing files and the image map through sink. A page
// that fails to parse is recorded and skipped; only sink errors and context
// cancellation abort the run.
func Convert(ctx context.Context, conv render.Converter, inputs []PageInput, sink Sink, opts Options) (Result, error) {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	res := Result{Dialect: conv.Dialect(), Pages: len(inputs)}

	for _, group := range GroupBySection(inputs) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sec := render.Section{Name: group.Name}
		var parsed []time.Duration
		for _, in := range group.Pages {
			out, took := convertPage(in, &sec)
			if out.OK {
				parsed = append(parsed, took)
				res.Converted++
				res.Unrecognized += out.Unrecognized
			} else {
				if opts.Stats != nil {
					opts.Stats.Record(took)
				}
				res.Failed++
				log.Warn("page failed", "section", in.Section, "page", in.Name, "error", out.Error)
			}
			res.Outcomes = append(res.Outcomes, out)
			if opts.OnPage != nil {
				opts.OnPage(out)
			}
			if opts.Recorder != nil {
				if err := opts.Recorder.RecordPage(ctx, out); err != nil {
					log.Warn("record page failed", "page", in.Name, "error", err)
				}
			}
		}
		if len(sec.Pages) == 0 {
			continue
		}
		res.Sections++
		start := time.Now()
		files := conv.ConvertSection(sec)
		recordSection(opts.Stats, parsed, time.Since(start))
		if err := writeFiles(sink, files, &res); err != nil {
			return res, err
		}
	}

	if err := writeFiles(sink, conv.Finish(), &res); err != nil {
		return res, err
	}
	data, err := conv.Images().MarshalIndent()
	if err != nil {
		return res, fmt.Errorf("marshal image map: %w", err)
	}
	if err := sink.Write(render.ImageMapFile, data); err != nil {
		return res, fmt.Errorf("write image map: %w", err)
	}
	res.Files++

	res.Summary = conv.Summary()
	res.Images = res.Summary.Images
	log.Info("conversion finished",
		"dialect", res.Dialect,
		"pages", res.Pages,
		"converted", res.Converted,
		"failed", res.Failed,
		"unrecognized", res.Unrecognized,
		"images", res.Images,
	)
	return res, nil
}

// convertPage parses one input into sec and reports the parse time.
func convertPage(in PageInput, sec *render.Section) (PageOutcome, time.Duration) {
	out := PageOutcome{Section: in.Section, Name: in.Name, ContentHash: ContentHashHex(in.Data)}

	p, err := parser.ForFile(in.Name)
	if err != nil {
		out.Err, out.Error = err, err.Error()
		return out, 0
	}
	start := time.Now()
	doc, err := p.Parse(bytes.NewReader(in.Data), in.Name)
	took := time.Since(start)
	if err != nil {
		out.Err, out.Error = err, err.Error()
		return out, took
	}

	out.OK = true
	out.PageID = doc.PageID
	out.Title = render.PageTitle(doc)
	out.Unrecognized = doc.Unrecognized()
	sec.Pages = append(sec.Pages, doc)
	return out, took
}

// recordSection records one latency per converted page: its parse time plus
// an equal share of the section's render time.
func recordSection(stats *ConvertStats, parsed []time.Duration, rendered time.Duration) {
	if stats == nil || len(parsed) == 0 {
		return
	}
	share := rendered / time.Duration(len(parsed))
	for _, d := range parsed {
		stats.Record(d + share)
	}
}

func writeFiles(sink Sink, files []render.File, res *Result) error {
	for _, f := range files {
		if err := sink.Write(f.Path, []byte(f.Content)); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
		res.Files++
	}
	return nil
}

// SectionInputs is the ordered page list of one section.
type SectionInputs struct {
	Name  string
	Pages []PageInput
}

var orderPrefixRe = regexp.MustCompile(`^(\d+)_`)

// GroupBySection groups inputs by section in first-seen order. Within a
// section, pages with a numeric "NN_" prefix come first in numeric order,
// then the rest by name.
func GroupBySection(inputs []PageInput) []SectionInputs {
	var groups []SectionInputs
	index := make(map[string]int)
	for _, in := range inputs {
		i, ok := index[in.Section]
		if !ok {
			i = len(groups)
			index[in.Section] = i
			groups = append(groups, SectionInputs{Name: in.Section})
		}
		groups[i].Pages = append(groups[i].Pages, in)
	}
	for _, g := range groups {
		sort.SliceStable(g.Pages, func(a, b int) bool {
			na, oka := pageOrder(g.Pages[a].Name)
			nb, okb := pageOrder(g.Pages[b].Name)
			switch {
			case oka && okb && na != nb:
				return na < nb
			case oka != okb:
				return oka
			}
			return g.Pages[a].Name < g.Pages[b].Name
		})
	}
	return groups
}

func pageOrder(name string) (int, bool) {
	m := orderPrefixRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
