package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/notegest/internal/parser"
	"github.com/dgallion1/notegest/internal/pipeline"
	"github.com/dgallion1/notegest/internal/render"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, fmt.Sprintf("upload exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	dialect, err := s.dialectOr(r.FormValue("dialect"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".zip") && !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:          pipeline.NewJobID(),
		Dialect:     dialect,
		Notebook:    valueOr(r.FormValue("notebook"), s.cfg.DefaultNotebook),
		Section:     r.FormValue("section"),
		Status:      pipeline.StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		ContentHash: pipeline.ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	job.SetFileData(data)

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"dialect":  job.Dialect,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/convert/%s/status", job.ID),
	})
}

func (s *Server) handleConvertStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// finishedJob resolves the job of the request and checks that its output is
// ready. It writes the error response itself and returns nil on failure.
func (s *Server) finishedJob(w http.ResponseWriter, r *http.Request) *pipeline.Job {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil
	}
	snap := job.Snapshot()
	if !snap.Status.Done() || job.Output() == nil {
		jsonError(w, fmt.Sprintf("output not ready (status %s)", snap.Status), http.StatusConflict)
		return nil
	}
	return job
}

func (s *Server) handleConvertOutput(w http.ResponseWriter, r *http.Request) {
	job := s.finishedJob(w, r)
	if job == nil {
		return
	}

	var buf bytes.Buffer
	if err := job.Output().WriteZip(&buf); err != nil {
		s.log.Error("zip output failed", "job_id", job.ID, "error", err)
		jsonError(w, "failed to package output", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.zip"`, job.ID, job.Dialect))
	w.Write(buf.Bytes())
}

func (s *Server) handleConvertImages(w http.ResponseWriter, r *http.Request) {
	job := s.finishedJob(w, r)
	if job == nil {
		return
	}
	data, err := job.Images().MarshalIndent()
	if err != nil {
		jsonError(w, "failed to encode image map", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleImageStatus(w http.ResponseWriter, r *http.Request) {
	client := s.orchestrator.ImageClient()
	if client == nil {
		jsonError(w, "image service not configured", http.StatusServiceUnavailable)
		return
	}
	job := s.finishedJob(w, r)
	if job == nil {
		return
	}
	status, err := client.MapStatus(r.Context(), job.ID)
	if err != nil {
		jsonError(w, "image service: "+err.Error(), http.StatusBadGateway)
		return
	}
	if status == nil {
		jsonError(w, "image map not submitted", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleConvertPage converts one raw page synchronously.
func (s *Server) handleConvertPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dialect, err := s.dialectOr(q.Get("dialect"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, pipeline.MaxPageBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, fmt.Sprintf("page exceeds max size (%d bytes)", pipeline.MaxPageBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	conv, err := pipeline.NewConverter(dialect, pipeline.ConverterOptions{
		Notebook: valueOr(q.Get("notebook"), s.cfg.DefaultNotebook),
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	input := pipeline.PageInput{Section: valueOr(q.Get("section"), "Imported"), Name: "page.xml", Data: data}
	sink := pipeline.NewMemSink()
	res, err := pipeline.Convert(r.Context(), conv, []pipeline.PageInput{input}, sink, pipeline.Options{
		Stats: s.orchestrator.Stats(),
	})
	if err != nil {
		jsonError(w, "conversion failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	page := res.Outcomes[0]
	if !page.OK {
		code := http.StatusBadRequest
		if errors.Is(page.Err, parser.ErrMalformedInput) {
			code = http.StatusUnprocessableEntity
		}
		jsonError(w, page.Error, code)
		return
	}

	files := make(map[string]string)
	for _, p := range sink.Paths() {
		if p == render.ImageMapFile {
			continue
		}
		data, _ := sink.Get(p)
		files[p] = string(data)
	}
	images := conv.Images()
	if images == nil {
		images = render.ImageMap{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"dialect": dialect,
		"page":    page,
		"files":   files,
		"images":  images,
		"summary": res.Summary,
	})
}

func (s *Server) dialectOr(v string) (render.Dialect, error) {
	return render.ParseDialect(valueOr(v, s.cfg.DefaultDialect))
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
