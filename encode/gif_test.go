package encode

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/iEdric/VectorMotionPro/capture"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

type fakeAssembler struct {
	frames        []capture.FrameSample
	canvas        svgmeta.Canvas
	frameInterval float64
	result        []byte
	err           error
}

func (f *fakeAssembler) Assemble(ctx context.Context, frames []capture.FrameSample, canvas svgmeta.Canvas, frameInterval float64, onProgress func(float64)) ([]byte, error) {
	f.frames = frames
	f.canvas = canvas
	f.frameInterval = frameInterval
	if f.err != nil {
		return nil, f.err
	}
	for i := range frames {
		onProgress(float64(i+1) / float64(len(frames)))
	}
	return f.result, nil
}

func sampleFrames(n int) []capture.FrameSample {
	frames := make([]capture.FrameSample, n)
	for i := range frames {
		frames[i] = capture.FrameSample{
			Index:     i,
			Timestamp: float64(i) / 10,
			Pixels:    image.NewRGBA(image.Rect(0, 0, 2, 2)),
		}
	}
	return frames
}

func TestGIFEncoder_Success(t *testing.T) {
	asm := &fakeAssembler{result: []byte("GIF89a...")}
	enc := NewGIFEncoder(asm, svgmeta.Canvas{Width: 2, Height: 2}, 0.1, nil)

	if enc.CaptureCeil() != 60 {
		t.Errorf("CaptureCeil: got %d, want 60", enc.CaptureCeil())
	}
	if err := enc.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	for _, s := range sampleFrames(10) {
		if err := enc.Frame(context.Background(), s); err != nil {
			t.Fatalf("Frame %d: %v", s.Index, err)
		}
	}

	var progress []int
	res, err := enc.Finish(context.Background(), func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if res.MIME != "image/gif" {
		t.Errorf("MIME: got %q, want image/gif", res.MIME)
	}
	if string(res.Bytes) != "GIF89a..." {
		t.Errorf("Bytes: got %q", res.Bytes)
	}
	if len(asm.frames) != 10 {
		t.Errorf("assembler frames: got %d, want 10", len(asm.frames))
	}
	if asm.frameInterval != 0.1 {
		t.Errorf("assembler frameInterval: got %v, want 0.1", asm.frameInterval)
	}

	if len(progress) == 0 {
		t.Fatal("no encode progress reported")
	}
	last := 59
	for _, p := range progress {
		if p <= last || p > 100 {
			t.Fatalf("encode progress out of range or non-monotone: %v", progress)
		}
		last = p
	}
	if progress[len(progress)-1] != 100 {
		t.Errorf("final progress: got %d, want 100", progress[len(progress)-1])
	}
}

func TestGIFEncoder_AssemblyFailure(t *testing.T) {
	asm := &fakeAssembler{err: errors.New("palette exploded")}
	enc := NewGIFEncoder(asm, svgmeta.Canvas{Width: 2, Height: 2}, 0.1, nil)

	for _, s := range sampleFrames(3) {
		enc.Frame(context.Background(), s)
	}

	_, err := enc.Finish(context.Background(), nil)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("Finish: got %v, want *EncodingError", err)
	}
	// The capability's message passes through verbatim.
	if encErr.Message != "palette exploded" {
		t.Errorf("Message: got %q, want %q", encErr.Message, "palette exploded")
	}
}

func TestGIFEncoder_UnavailablePassesThrough(t *testing.T) {
	cause := errors.New("ffmpeg not found")
	asm := &fakeAssembler{err: &EncoderUnavailableError{Cause: cause}}
	enc := NewGIFEncoder(asm, svgmeta.Canvas{Width: 2, Height: 2}, 0.1, nil)

	enc.Frame(context.Background(), sampleFrames(1)[0])

	_, err := enc.Finish(context.Background(), nil)
	var unavailable *EncoderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Finish: got %v, want *EncoderUnavailableError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not preserved through unwrap chain")
	}
}
