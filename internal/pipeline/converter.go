package pipeline

import (
	"context"
	"fmt"

	"github.com/dgallion1/notegest/internal/manifest"
	"github.com/dgallion1/notegest/internal/render"
	"github.com/dgallion1/notegest/internal/render/logseq"
	"github.com/dgallion1/notegest/internal/render/obsidian"
)

// ConverterOptions are the renderer settings shared by the CLI and the
// service.
type ConverterOptions struct {
	Notebook   string
	OutputRoot string
}

// NewConverter builds a fresh converter for one run of dialect d.
func NewConverter(d render.Dialect, opts ConverterOptions) (render.Converter, error) {
	switch d {
	case render.Obsidian:
		return obsidian.New(obsidian.Options{OutputRoot: opts.OutputRoot}), nil
	case render.Logseq:
		return logseq.New(logseq.Options{Notebook: opts.Notebook, OutputRoot: opts.OutputRoot}), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", d)
	}
}

type manifestRecorder struct {
	run *manifest.Run
}

// ManifestRecorder stores page outcomes in a manifest run.
func ManifestRecorder(run *manifest.Run) Recorder {
	return manifestRecorder{run: run}
}

func (m manifestRecorder) RecordPage(ctx context.Context, o PageOutcome) error {
	return m.run.RecordPage(ctx, manifest.Page{
		Section:      o.Section,
		Name:         o.Name,
		PageID:       o.PageID,
		Title:        o.Title,
		OK:           o.OK,
		Error:        o.Error,
		Unrecognized: o.Unrecognized,
		ContentHash:  o.ContentHash,
	})
}

// Totals converts a result into manifest run totals.
func (r Result) Totals() manifest.Totals {
	return manifest.Totals{
		Pages:        r.Pages,
		Converted:    r.Converted,
		Failed:       r.Failed,
		Unrecognized: r.Unrecognized,
		Images:       r.Images,
		Files:        r.Files,
	}
}
