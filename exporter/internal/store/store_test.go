package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/iEdric/VectorMotionPro/dbopen"
	"github.com/iEdric/VectorMotionPro/exporter/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	return store.New(db, nil)
}

func TestJobLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "gif", json.RawMessage(`{"fps":30}`))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if id == "" {
		t.Fatal("empty job id")
	}

	j, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.State != store.StatePending || j.Progress != 0 || j.Format != "gif" {
		t.Fatalf("fresh job = %+v", j)
	}
	if string(j.Settings) != `{"fps":30}` {
		t.Fatalf("settings = %s, want recorded request", j.Settings)
	}

	if err := s.SetState(ctx, id, store.StateRunning); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	s.SetProgress(ctx, id, 42)

	j, err = s.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != store.StateRunning || j.Progress != 42 {
		t.Fatalf("running job = %+v", j)
	}

	blob := []byte("GIF89a...")
	if err := s.Finish(ctx, id, "image/gif", blob); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	j, err = s.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != store.StateComplete {
		t.Fatalf("state = %q, want complete", j.State)
	}
	if j.Progress != 100 {
		t.Fatalf("progress = %d, want 100", j.Progress)
	}
	if j.MIME != "image/gif" {
		t.Fatalf("mime = %q", j.MIME)
	}
	if string(j.Output) != string(blob) {
		t.Fatalf("output = %q", j.Output)
	}
}

func TestFail(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "mp4", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Fail(ctx, id, "encoder unavailable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	j, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != store.StateFailed {
		t.Fatalf("state = %q, want failed", j.State)
	}
	if j.Error != "encoder unavailable" {
		t.Fatalf("error = %q", j.Error)
	}
	if j.Output != nil {
		t.Fatal("failed job retained output")
	}
}

func TestTerminalStateIsFinal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "gif", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(ctx, id, "image/gif", []byte("GIF89a")); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if err := s.Fail(ctx, id, "late error"); err == nil {
		t.Fatal("Fail overwrote a completed job")
	}
	if err := s.Finish(ctx, id, "image/gif", []byte("other")); err == nil {
		t.Fatal("Finish claimed an already completed job")
	}

	j, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != store.StateComplete || string(j.Output) != "GIF89a" {
		t.Fatalf("terminal job mutated: %+v", j)
	}
}

func TestFinishNotFound(t *testing.T) {
	s := newStore(t)

	if err := s.Finish(context.Background(), "nope", "image/gif", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetJob(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetStateNotFound(t *testing.T) {
	s := newStore(t)

	if err := s.SetState(context.Background(), "nope", store.StateRunning); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListJobs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for range 3 {
		if _, err := s.CreateJob(ctx, "webm", nil); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := s.ListJobs(ctx, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	for _, j := range jobs {
		if j.Output != nil {
			t.Fatal("list returned output blob")
		}
	}

	jobs, err = s.ListJobs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("limited len = %d, want 2", len(jobs))
	}
}
