package encode

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iEdric/VectorMotionPro/capture"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// Assembler is the external animated-image capability the GIF path delegates
// to. The core does not implement GIF assembly itself; it feeds the
// capability ordered frames and remaps its progress.
type Assembler interface {
	// Assemble builds a GIF from the ordered frames. onProgress receives
	// fractions in [0,1]; either argument may be nil-tolerant per
	// implementation, but frames are never empty.
	Assemble(ctx context.Context, frames []capture.FrameSample, canvas svgmeta.Canvas, frameInterval float64, onProgress func(float64)) ([]byte, error)
}

// GIFEncoder is the batch strategy: all frames are captured before assembly
// starts, so capture owns 0..60 of the progress range and assembly 60..100.
type GIFEncoder struct {
	assembler     Assembler
	canvas        svgmeta.Canvas
	frameInterval float64
	frames        []capture.FrameSample
	logger        *slog.Logger
}

// NewGIFEncoder creates the batch encoder around an assembly capability.
func NewGIFEncoder(assembler Assembler, canvas svgmeta.Canvas, frameInterval float64, logger *slog.Logger) *GIFEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GIFEncoder{
		assembler:     assembler,
		canvas:        canvas,
		frameInterval: frameInterval,
		logger:        logger,
	}
}

func (g *GIFEncoder) CaptureCeil() int { return 60 }

func (g *GIFEncoder) Begin(ctx context.Context) error { return nil }

// Abort drops the collected frames; the batch strategy holds no external
// resources.
func (g *GIFEncoder) Abort() { g.frames = nil }

// Frame retains the sample; the batch strategy holds every frame until
// Finish.
func (g *GIFEncoder) Frame(ctx context.Context, sample capture.FrameSample) error {
	g.frames = append(g.frames, sample)
	return nil
}

// Finish hands the collected frames to the assembly capability and remaps
// its progress into 60..100. Capability failures surface as *EncodingError
// with the message intact; a missing capability stays
// *EncoderUnavailableError.
func (g *GIFEncoder) Finish(ctx context.Context, onProgress capture.ProgressFunc) (*Result, error) {
	reported := -1
	progress := func(frac float64) {
		if onProgress == nil {
			return
		}
		pct := 60 + int(frac*40)
		if pct > 100 {
			pct = 100
		}
		if pct > reported {
			reported = pct
			onProgress(pct)
		}
	}

	data, err := g.assembler.Assemble(ctx, g.frames, g.canvas, g.frameInterval, progress)
	if err != nil {
		var unavailable *EncoderUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &EncodingError{Message: err.Error()}
	}

	progress(1)
	g.logger.Debug("encode: gif assembled", "frames", len(g.frames), "bytes", len(data))
	return &Result{Bytes: data, MIME: "image/gif"}, nil
}
