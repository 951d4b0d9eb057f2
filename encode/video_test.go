package encode

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/iEdric/VectorMotionPro/capture"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(d time.Duration) { c.slept = append(c.slept, d) }

type fakeRecorder struct {
	started  bool
	frames   int
	stopped  bool
	result   []byte
	writeErr error
	stopErr  error
}

func (r *fakeRecorder) Start(ctx context.Context) error { r.started = true; return nil }

func (r *fakeRecorder) WriteFrame(pix []byte) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.frames++
	return nil
}

func (r *fakeRecorder) Stop() ([]byte, error) {
	r.stopped = true
	return r.result, r.stopErr
}

type fakeRuntime struct {
	supported map[string]bool
	recorder  *fakeRecorder
	lastCfg   RecorderConfig
}

func (f *fakeRuntime) Supports(ctx context.Context, encoder string) bool {
	return f.supported[encoder]
}

func (f *fakeRuntime) NewRecorder(cfg RecorderConfig) Recorder {
	f.lastCfg = cfg
	return f.recorder
}

func videoPlan(t *testing.T, fps, dur float64) capture.Plan {
	t.Helper()
	plan, err := capture.NewPlan(fps, dur)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	return plan
}

func TestVideoEncoder_PrefersFirstSupported(t *testing.T) {
	rt := &fakeRuntime{
		supported: map[string]bool{"libx264": true, "libvpx": true},
		recorder:  &fakeRecorder{},
	}
	enc := NewVideoEncoder(rt, svgmeta.Canvas{Width: 4, Height: 4}, videoPlan(t, 10, 1), 0.5, PreferencesFor("mp4"), WithClock(&fakeClock{}))

	if err := enc.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if enc.MIME() != "video/mp4" {
		t.Errorf("MIME: got %q, want video/mp4", enc.MIME())
	}
	if rt.lastCfg.Codec.Encoder != "libx264" {
		t.Errorf("encoder: got %q, want libx264", rt.lastCfg.Codec.Encoder)
	}
}

func TestVideoEncoder_GuaranteedFallback(t *testing.T) {
	// Nothing supported at all: the last preference is used without error.
	rt := &fakeRuntime{supported: map[string]bool{}, recorder: &fakeRecorder{}}
	enc := NewVideoEncoder(rt, svgmeta.Canvas{Width: 4, Height: 4}, videoPlan(t, 10, 1), 0.5, PreferencesFor("mp4"), WithClock(&fakeClock{}))

	if err := enc.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if enc.MIME() != "video/webm" {
		t.Errorf("fallback MIME: got %q, want video/webm", enc.MIME())
	}
	if rt.lastCfg.Codec.Encoder != "libvpx" {
		t.Errorf("fallback encoder: got %q, want libvpx", rt.lastCfg.Codec.Encoder)
	}
}

func TestVideoEncoder_QualityMapsToBitrate(t *testing.T) {
	rt := &fakeRuntime{supported: map[string]bool{"libx264": true}, recorder: &fakeRecorder{}}

	enc := NewVideoEncoder(rt, svgmeta.Canvas{Width: 4, Height: 4}, videoPlan(t, 10, 1), 0.5, PreferencesFor("mp4"), WithClock(&fakeClock{}))
	enc.Begin(context.Background())
	if rt.lastCfg.BitRate != MaxBitRate/2 {
		t.Errorf("bitrate at quality 0.5: got %d, want %d", rt.lastCfg.BitRate, MaxBitRate/2)
	}

	enc = NewVideoEncoder(rt, svgmeta.Canvas{Width: 4, Height: 4}, videoPlan(t, 10, 1), 0, PreferencesFor("mp4"), WithClock(&fakeClock{}))
	enc.Begin(context.Background())
	if rt.lastCfg.BitRate != MinBitRate {
		t.Errorf("bitrate at quality 0: got %d, want floor %d", rt.lastCfg.BitRate, MinBitRate)
	}
}

func TestVideoEncoder_PacingAndFrameCount(t *testing.T) {
	defer leaktest.Check(t)()

	rec := &fakeRecorder{result: []byte("webm-bytes")}
	rt := &fakeRuntime{supported: map[string]bool{"libvpx-vp9": true}, recorder: rec}
	clock := &fakeClock{}
	plan := videoPlan(t, 20, 1) // 20 frames, 50ms interval

	enc := NewVideoEncoder(rt, svgmeta.Canvas{Width: 2, Height: 2}, plan, 1, PreferencesFor("webm"),
		WithClock(clock), WithPacingMargin(10*time.Millisecond))

	if err := enc.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !rec.started {
		t.Fatal("recording did not start before first frame")
	}

	pix := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < plan.TotalFrames; i++ {
		err := enc.Frame(context.Background(), capture.FrameSample{Index: i, Timestamp: plan.Timestamp(i), Pixels: pix})
		if err != nil {
			t.Fatalf("Frame %d: %v", i, err)
		}
	}

	// Every rasterized state must be observable: one write and one pacing
	// delay of at least interval+margin per frame, the last frame included.
	if rec.frames < plan.TotalFrames {
		t.Errorf("recorded frames: got %d, want >= %d", rec.frames, plan.TotalFrames)
	}
	if len(clock.slept) != plan.TotalFrames {
		t.Fatalf("pacing delays: got %d, want %d", len(clock.slept), plan.TotalFrames)
	}
	wantMin := 50*time.Millisecond + 10*time.Millisecond
	for i, d := range clock.slept {
		if d < wantMin {
			t.Errorf("delay %d: got %v, want >= %v", i, d, wantMin)
		}
	}

	res, err := enc.Finish(context.Background(), nil)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !rec.stopped {
		t.Error("recorder not stopped")
	}
	if res.MIME != "video/webm" || string(res.Bytes) != "webm-bytes" {
		t.Errorf("result: got %q %q", res.MIME, res.Bytes)
	}
}

func TestVideoEncoder_RecorderFailureIsEncodingError(t *testing.T) {
	rec := &fakeRecorder{writeErr: errors.New("muxer died")}
	rt := &fakeRuntime{supported: map[string]bool{"libvpx-vp9": true}, recorder: rec}
	enc := NewVideoEncoder(rt, svgmeta.Canvas{Width: 2, Height: 2}, videoPlan(t, 10, 1), 1, PreferencesFor("webm"), WithClock(&fakeClock{}))

	enc.Begin(context.Background())
	err := enc.Frame(context.Background(), capture.FrameSample{Pixels: image.NewRGBA(image.Rect(0, 0, 2, 2))})
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("Frame: got %v, want *EncodingError", err)
	}

	rec2 := &fakeRecorder{stopErr: errors.New("finalize failed")}
	rt2 := &fakeRuntime{supported: map[string]bool{}, recorder: rec2}
	enc2 := NewVideoEncoder(rt2, svgmeta.Canvas{Width: 2, Height: 2}, videoPlan(t, 10, 1), 1, PreferencesFor("webm"), WithClock(&fakeClock{}))
	enc2.Begin(context.Background())
	if _, err := enc2.Finish(context.Background(), nil); !errors.As(err, &encErr) {
		t.Fatalf("Finish: got %v, want *EncodingError", err)
	}
}

func TestVideoEncoder_AbortStopsRecorder(t *testing.T) {
	defer leaktest.Check(t)()

	rec := &fakeRecorder{stopErr: errors.New("session discarded")}
	rt := &fakeRuntime{supported: map[string]bool{"libvpx-vp9": true}, recorder: rec}
	enc := NewVideoEncoder(rt, svgmeta.Canvas{Width: 2, Height: 2}, videoPlan(t, 10, 1), 1, PreferencesFor("webm"), WithClock(&fakeClock{}))

	// Before Begin there is nothing to tear down.
	enc.Abort()
	if rec.stopped {
		t.Fatal("recorder stopped before session opened")
	}

	if err := enc.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	enc.Abort()
	if !rec.stopped {
		t.Fatal("recorder left running after abort")
	}

	// Idempotent: the drained session is forgotten.
	rec.stopped = false
	enc.Abort()
	if rec.stopped {
		t.Fatal("recorder stopped twice")
	}
}

func TestVideoEncoder_CaptureOwnsFullRange(t *testing.T) {
	rt := &fakeRuntime{supported: map[string]bool{}, recorder: &fakeRecorder{}}
	enc := NewVideoEncoder(rt, svgmeta.Canvas{Width: 2, Height: 2}, videoPlan(t, 10, 1), 1, PreferencesFor("webm"), WithClock(&fakeClock{}))
	if enc.CaptureCeil() != 100 {
		t.Errorf("CaptureCeil: got %d, want 100", enc.CaptureCeil())
	}
}

func TestPreferencesFor(t *testing.T) {
	mp4 := PreferencesFor("mp4")
	if len(mp4) != 4 || mp4[0].Encoder != "libx264" || mp4[len(mp4)-1].Format != "webm" {
		t.Errorf("mp4 preferences wrong: %+v", mp4)
	}
	webm := PreferencesFor("webm")
	if len(webm) != 2 || webm[0].Encoder != "libvpx-vp9" {
		t.Errorf("webm preferences wrong: %+v", webm)
	}
	for _, p := range append(mp4, webm...) {
		if p.MIME == "" || p.Format == "" {
			t.Errorf("preference missing mime/format: %+v", p)
		}
	}
}
