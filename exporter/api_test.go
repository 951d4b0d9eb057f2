package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/iEdric/VectorMotionPro/dbopen"
	"github.com/iEdric/VectorMotionPro/exporter/internal/store"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	src := &fakeFrameSource{}
	enc := &fakeEncoder{ceil: 100, mime: "image/gif"}
	exp := newTestExporter(src, enc)
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	return NewService(exp, store.New(db, nil), nil)
}

func newTestRouter(t *testing.T) (*Service, chi.Router) {
	t.Helper()
	svc := newTestService(t)
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	return svc, r
}

func postJSON(t *testing.T, r chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleExportSync(t *testing.T) {
	_, r := newTestRouter(t)

	w := postJSON(t, r, "/api/export", map[string]any{
		"svg": spinner, "format": "gif", "fps": 5, "duration": 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("content type = %q", ct)
	}
	if w.Body.Len() == 0 {
		t.Fatal("empty body")
	}
}

func TestHandleExportBadRequests(t *testing.T) {
	_, r := newTestRouter(t)

	w := postJSON(t, r, "/api/export", map[string]any{"format": "gif"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing svg: status = %d", w.Code)
	}

	w = postJSON(t, r, "/api/export", map[string]any{"svg": spinner, "fps": -2})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad fps: status = %d", w.Code)
	}

	w = postJSON(t, r, "/api/export", map[string]any{"svg": "<p>nope</p>"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid markup: status = %d", w.Code)
	}
}

func TestHandleExportAsync(t *testing.T) {
	_, r := newTestRouter(t)

	w := postJSON(t, r, "/api/export?async=1", map[string]any{
		"svg": spinner, "format": "gif", "fps": 5, "duration": 1,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var accepted struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}
	if accepted.ID == "" {
		t.Fatal("no job id")
	}

	// Poll until the background job finishes.
	deadline := time.Now().Add(5 * time.Second)
	var job store.Job
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+accepted.ID, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("get job: status = %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatal(err)
		}
		if job.State == store.StateComplete || job.State == store.StateFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in state %q", job.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if job.State != store.StateComplete {
		t.Fatalf("job state = %q, error %q", job.State, job.Error)
	}
	if job.Progress != 100 {
		t.Fatalf("progress = %d, want 100", job.Progress)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+accepted.ID+"/result", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("result: status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("result content type = %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty result blob")
	}
}

func TestHandleAnalyze(t *testing.T) {
	_, r := newTestRouter(t)

	w := postJSON(t, r, "/api/analyze", map[string]any{"svg": spinner})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var hint svgmeta.Hint
	if err := json.Unmarshal(w.Body.Bytes(), &hint); err != nil {
		t.Fatal(err)
	}
	if !hint.HasSMIL {
		t.Error("spinner has SMIL animation")
	}
	if hint.SuggestedDuration != 2 {
		t.Errorf("suggested duration = %v, want 2", hint.SuggestedDuration)
	}
}

func TestHandleGetJobNotFound(t *testing.T) {
	_, r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleListJobs(t *testing.T) {
	svc, r := newTestRouter(t)

	if _, err := svc.jobs.CreateJob(context.Background(), "gif", nil); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var jobs []store.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len = %d, want 1", len(jobs))
	}
}

func TestProgressHub(t *testing.T) {
	hub := newProgressHub()
	hub.Open("j1")

	ch, last, cancel, ok := hub.Subscribe("j1")
	if !ok {
		t.Fatal("subscribe to open feed failed")
	}
	if last != 0 {
		t.Fatalf("last = %d", last)
	}
	defer cancel()

	hub.Publish("j1", 40)
	select {
	case got := <-ch:
		if got != 40 {
			t.Fatalf("got %d, want 40", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no progress delivered")
	}

	hub.Close("j1")
	if _, open := <-ch; open {
		// A buffered value may remain; drain until closed.
		for range ch {
		}
	}

	if _, _, _, ok := hub.Subscribe("j1"); ok {
		t.Fatal("subscribed to closed feed")
	}
}
