// Package capture owns the frame-index loop of an export: it computes the
// frame plan from fps and duration, drives the seeker and rasterizer for
// every frame strictly in order, and reports scaled progress.
//
// The loop is single-threaded by contract: seeking and rasterization share
// one sandbox, so frames cannot be produced in parallel.
package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
)

// Plan fixes the frame geometry for one export run.
type Plan struct {
	FPS           float64
	TotalFrames   int
	FrameInterval float64 // seconds between frames, 1/fps
}

// NewPlan computes the plan: totalFrames = ceil(fps*duration), minimum 1.
func NewPlan(fps, durationSeconds float64) (Plan, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return Plan{}, fmt.Errorf("capture: fps must be positive, got %v", fps)
	}
	if durationSeconds <= 0 || math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		return Plan{}, fmt.Errorf("capture: duration must be positive, got %v", durationSeconds)
	}
	total := int(math.Ceil(fps * durationSeconds))
	if total < 1 {
		total = 1
	}
	return Plan{
		FPS:           fps,
		TotalFrames:   total,
		FrameInterval: 1 / fps,
	}, nil
}

// Timestamp returns frame i's time offset: exactly i/fps.
func (p Plan) Timestamp(i int) float64 {
	return float64(i) / p.FPS
}

// FrameSample is one rasterized frame. Created here, consumed immediately by
// the active encoder's sink, then released by it.
type FrameSample struct {
	Index     int
	Timestamp float64 // seconds
	Pixels    *image.RGBA
}

// Seeker freezes a markup fragment's animations at an absolute time offset.
// Must be pure with respect to the original fragment.
type Seeker interface {
	Seek(fragment string, t float64) (string, error)
}

// Rasterizer renders one seeked fragment at time t into a pixel buffer.
type Rasterizer interface {
	Rasterize(ctx context.Context, seeked string, t float64) (*image.RGBA, error)
}

// FrameSink consumes frames in strictly ascending index order. The two
// encoder strategies differ only behind this interface: the batch sink
// retains every frame, the streaming sink pushes each into a recorder and
// discards it.
type FrameSink interface {
	Frame(ctx context.Context, sample FrameSample) error
}

// ProgressFunc receives integer percentages 0..100. Invoked synchronously on
// the loop's goroutine; it must not block.
type ProgressFunc func(pct int)

// Driver runs the capture loop.
type Driver struct {
	Seeker     Seeker
	Rasterizer Rasterizer
	Logger     *slog.Logger
}

// Run seeks and rasterizes every frame of the plan in order, handing each to
// sink. Progress is reported after each frame, scaled into [0, captureCeil]
// (60 for the batch strategy, 100 for streaming) and clamped monotone. The
// first seeker, rasterizer, or sink error aborts the run immediately; frames
// are never skipped, reordered, or retried.
func (d *Driver) Run(ctx context.Context, fragment string, plan Plan, captureCeil int, sink FrameSink, onProgress ProgressFunc) error {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	reported := -1
	report := func(pct int) {
		if onProgress == nil {
			return
		}
		if pct > reported {
			reported = pct
			onProgress(pct)
		}
	}

	for i := 0; i < plan.TotalFrames; i++ {
		t := plan.Timestamp(i)

		seeked, err := d.Seeker.Seek(fragment, t)
		if err != nil {
			return fmt.Errorf("capture: seek frame %d: %w", i, err)
		}

		pixels, err := d.Rasterizer.Rasterize(ctx, seeked, t)
		if err != nil {
			return fmt.Errorf("capture: frame %d: %w", i, err)
		}

		sample := FrameSample{Index: i, Timestamp: t, Pixels: pixels}
		if err := sink.Frame(ctx, sample); err != nil {
			return fmt.Errorf("capture: sink frame %d: %w", i, err)
		}

		report((i + 1) * captureCeil / plan.TotalFrames)
	}

	log.Debug("capture: run complete", "frames", plan.TotalFrames)
	return nil
}
