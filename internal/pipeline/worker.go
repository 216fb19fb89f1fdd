package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/dgallion1/notegest/internal/imagesvc"
	"github.com/dgallion1/notegest/internal/manifest"
	"github.com/dgallion1/notegest/internal/parser"
)

// Worker processes a single conversion job.
type Worker struct {
	images   *imagesvc.Client
	manifest *manifest.Store
	stats    *ConvertStats
	log      *slog.Logger
}

// NewWorker creates a worker. images and store may be nil.
func NewWorker(images *imagesvc.Client, store *manifest.Store, stats *ConvertStats, log *slog.Logger) *Worker {
	return &Worker{
		images:   images,
		manifest: store,
		stats:    stats,
		log:      log,
	}
}

// Process runs the full conversion pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "dialect", job.Dialect, "filename", job.Filename)

	// Phase 1: Read the upload
	job.SetStatus(StatusParsing, "reading export")
	inputs, err := readUpload(job.Filename, job.FileData(), job.Section)
	job.releaseFileData()
	if err != nil {
		log.Error("read upload failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if len(inputs) == 0 {
		log.Warn("no pages in upload")
		job.AddError("no OneNote pages found")
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	job.SetTotalPages(len(inputs))
	log.Info("read export", "pages", len(inputs))

	// Phase 2: Parse and render
	job.SetStatus(StatusRendering, "rendering")
	conv, err := NewConverter(job.Dialect, ConverterOptions{Notebook: job.Notebook})
	if err != nil {
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "rendering")
		return
	}

	opts := Options{Log: log, Stats: w.stats, OnPage: job.RecordPage}
	var run *manifest.Run
	if w.manifest != nil {
		run, err = w.manifest.BeginRun(ctx, job.ID, string(job.Dialect), job.Filename)
		if err != nil {
			log.Warn("manifest unavailable, continuing", "error", err)
		} else {
			opts.Recorder = ManifestRecorder(run)
		}
	}

	sink := NewMemSink()
	res, err := Convert(ctx, conv, inputs, sink, opts)
	if run != nil {
		if ferr := run.Finish(ctx, res.Totals()); ferr != nil {
			log.Warn("manifest finish failed", "error", ferr)
		}
	}
	if err != nil {
		log.Error("conversion failed", "error", err)
		job.AddError(fmt.Sprintf("convert: %s", err))
		job.SetStatus(StatusFailed, "rendering")
		return
	}
	images := conv.Images()
	job.SetOutput(sink, images, res.Files)

	if res.Converted == 0 {
		job.SetStatus(StatusFailed, "rendering")
		return
	}

	// Phase 3: Hand the image map to the extraction service.
	published := true
	if w.images != nil && len(images) > 0 {
		job.SetStatus(StatusPublishing, "publishing image map")
		if err := SubmitImageMap(ctx, w.images, log, job.ID, job.Dialect, images); err != nil {
			log.Error("image map submission failed", "error", err)
			job.AddError(fmt.Sprintf("image map: %s", err))
			published = false
		}
	}

	if res.Failed > 0 || !published {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}

// readUpload accepts either a zip export or a single page file.
func readUpload(filename string, data []byte, section string) ([]PageInput, error) {
	if section == "" {
		section = "Imported"
	}
	if parser.IsSupportedExtension(filename) {
		return []PageInput{{Section: section, Name: path.Base(filename), Data: data}}, nil
	}
	return ReadArchive(data, section)
}
