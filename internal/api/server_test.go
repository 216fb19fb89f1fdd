package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/notegest/internal/config"
	"github.com/dgallion1/notegest/internal/manifest"
	"github.com/dgallion1/notegest/internal/pipeline"
)

const testKey = "test-key"

func testConfig() config.Config {
	return config.Config{
		NotegestAPIKey:  testKey,
		WorkerCount:     1,
		MaxQueueSize:    4,
		MaxUploadBytes:  1 << 20,
		JobTTL:          time.Hour,
		StatsWindow:     time.Hour,
		DefaultDialect:  "obsidian",
		DefaultNotebook: "OneNote",
	}
}

func newTestServer(t *testing.T, start bool, store *manifest.Store) *Server {
	t.Helper()
	cfg := testConfig()
	log := slog.New(slog.DiscardHandler)
	orch := pipeline.NewOrchestrator(cfg, nil, store, log)
	if start {
		orch.Start(context.Background())
		t.Cleanup(orch.Stop)
	}
	return NewServer(orch, store, log, cfg)
}

func page(id, title, text string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<one:Page xmlns:one="http://schemas.microsoft.com/office/onenote/2013/onenote" ID="%s" name="%s">
  <one:Title><one:OE><one:T><![CDATA[%s]]></one:T></one:OE></one:Title>
  <one:Outline><one:OEChildren><one:OE><one:T><![CDATA[%s]]></one:T></one:OE></one:OEChildren></one:Outline>
</one:Page>`, id, title, title, text)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, _ := zw.Create(name)
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func authed(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth_NoAuth(t *testing.T) {
	s := newTestServer(t, false, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, false, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/stats/convert", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without header, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/convert", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := serve(s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", rec.Code)
	}

	if rec := serve(s, authed(http.MethodGet, "/api/stats/convert", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", rec.Code)
	}
}

func TestConvert_EndToEnd(t *testing.T) {
	s := newTestServer(t, true, nil)
	data := zipOf(t, map[string]string{
		"Projects/01_plan.xml": page("{p1}", "Roadmap", "TODO write plan"),
		"Projects/02_more.xml": page("{p2}", "Backlog", "ideas"),
	})

	rec := serve(s, uploadRequest(t, "export.zip", data, map[string]string{"dialect": "logseq", "notebook": "Work"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	jobID, _ := resp["job_id"].(string)
	if resp["poll_url"] != "/api/convert/"+jobID+"/status" {
		t.Errorf("unexpected poll_url %v", resp["poll_url"])
	}

	var snap pipeline.JobSnapshot
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := serve(s, authed(http.MethodGet, "/api/convert/"+jobID+"/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d", rec.Code)
		}
		json.Unmarshal(rec.Body.Bytes(), &snap)
		if snap.Status.Done() || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap.Status != pipeline.StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.PagesConverted != 2 || snap.Notebook != "Work" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	rec = serve(s, authed(http.MethodGet, "/api/convert/"+jobID+"/output", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("output: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("expected zip content type, got %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"pages/Roadmap.md", "pages/Backlog.md", "logseq/config.edn", "image_extraction_map.json"} {
		if !names[want] {
			t.Errorf("output missing %s (have %v)", want, names)
		}
	}

	rec = serve(s, authed(http.MethodGet, "/api/convert/"+jobID+"/images", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Errorf("expected empty image map, got %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(s, authed(http.MethodGet, "/api/convert/"+jobID+"/images/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without image service, got %d", rec.Code)
	}
}

func TestConvert_BadRequests(t *testing.T) {
	s := newTestServer(t, false, nil)

	rec := serve(s, uploadRequest(t, "export.zip", []byte("x"), map[string]string{"dialect": "roam"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown dialect: expected 400, got %d", rec.Code)
	}

	rec = serve(s, uploadRequest(t, "notes.docx", []byte("x"), nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported type: expected 400, got %d", rec.Code)
	}

	big := bytes.Repeat([]byte("a"), int(testConfig().MaxUploadBytes)+10)
	rec = serve(s, uploadRequest(t, "export.zip", big, nil))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: expected 413, got %d", rec.Code)
	}
}

func TestConvert_UnknownJobAndNotReady(t *testing.T) {
	s := newTestServer(t, false, nil)

	if rec := serve(s, authed(http.MethodGet, "/api/convert/nope/status", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec := serve(s, uploadRequest(t, "page.xml", []byte(page("{a}", "A", "a")), nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	jobID := decode(t, rec)["job_id"].(string)

	// Workers are not running, so the job stays queued.
	for _, suffix := range []string{"/output", "/images"} {
		rec := serve(s, authed(http.MethodGet, "/api/convert/"+jobID+suffix, nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("%s: expected 409, got %d", suffix, rec.Code)
		}
	}
}

func TestConvert_QueueFull(t *testing.T) {
	s := newTestServer(t, false, nil)
	data := []byte(page("{a}", "A", "a"))
	for range testConfig().MaxQueueSize {
		if rec := serve(s, uploadRequest(t, "page.xml", data, nil)); rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	}
	if rec := serve(s, uploadRequest(t, "page.xml", data, nil)); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the queue is full, got %d", rec.Code)
	}
}

func TestConvertPage(t *testing.T) {
	s := newTestServer(t, false, nil)

	rec := serve(s, authed(http.MethodPost, "/api/convert/page?dialect=obsidian&section=Work",
		strings.NewReader(page("{p}", "Status Update", "All good"))))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	files, _ := resp["files"].(map[string]any)
	note, _ := files["Work/Status-Update.md"].(string)
	if !strings.HasPrefix(note, "---\n") || !strings.Contains(note, "All good") {
		t.Errorf("unexpected note: %q (files %v)", note, files)
	}
	if _, ok := files["image_extraction_map.json"]; ok {
		t.Error("image map should be returned separately")
	}
	pageInfo, _ := resp["page"].(map[string]any)
	if pageInfo["page_id"] != "{p}" || pageInfo["ok"] != true {
		t.Errorf("unexpected page outcome: %v", pageInfo)
	}

	rec = serve(s, authed(http.MethodPost, "/api/convert/page", strings.NewReader("not xml <<<")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed page: expected 422, got %d", rec.Code)
	}

	rec = serve(s, authed(http.MethodPost, "/api/convert/page?dialect=roam", strings.NewReader("")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown dialect: expected 400, got %d", rec.Code)
	}
}

func TestRuns(t *testing.T) {
	if rec := serve(newTestServer(t, false, nil), authed(http.MethodGet, "/api/runs/last", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without manifest, got %d", rec.Code)
	}

	store, err := manifest.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	defer store.Close()
	s := newTestServer(t, false, store)

	if rec := serve(s, authed(http.MethodGet, "/api/runs/last", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any run, got %d", rec.Code)
	}

	ctx := context.Background()
	run, _ := store.BeginRun(ctx, "run-9", "obsidian", "export.zip")
	run.RecordPage(ctx, manifest.Page{Section: "S", Name: "a.xml", OK: true})
	run.RecordPage(ctx, manifest.Page{Section: "S", Name: "b.xml", Error: "malformed input"})
	run.Finish(ctx, manifest.Totals{Pages: 2, Converted: 1, Failed: 1})

	rec := serve(s, authed(http.MethodGet, "/api/runs/last", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["id"] != "run-9" {
		t.Errorf("unexpected last run: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(s, authed(http.MethodGet, "/api/runs/run-9/pages?failed=true", nil))
	var body struct {
		Pages []manifest.Page `json:"pages"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Pages) != 1 || body.Pages[0].Name != "b.xml" {
		t.Errorf("expected only the failed page, got %+v", body.Pages)
	}
}
