package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"

	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// FrameSource produces seeked, rasterized frames for one export run. It
// implements the capture package's Seeker and Rasterizer contracts on top of
// a Sandbox it exclusively owns.
type FrameSource struct {
	sandbox     *Sandbox
	canvas      svgmeta.Canvas
	transparent bool
	logger      *slog.Logger
}

// NewFrameSource opens a sandbox on mgr sized to canvas.
func NewFrameSource(ctx context.Context, mgr *Manager, canvas svgmeta.Canvas, transparent bool) (*FrameSource, error) {
	sb, err := NewSandbox(ctx, mgr, canvas, transparent)
	if err != nil {
		return nil, err
	}
	return &FrameSource{
		sandbox:     sb,
		canvas:      canvas,
		transparent: transparent,
		logger:      mgr.cfg.Logger,
	}, nil
}

// Seek freezes the fragment's style-driven animations at t. Pure markup
// transform; see SeekMarkup.
func (f *FrameSource) Seek(fragment string, t float64) (string, error) {
	return SeekMarkup(fragment, t)
}

// Rasterize renders one seeked fragment at time t into a pixel buffer of
// the resolved canvas dimensions. Each call fully resets the sandbox first,
// so no animation or DOM state leaks between frames.
func (f *FrameSource) Rasterize(ctx context.Context, seeked string, t float64) (*image.RGBA, error) {
	if err := f.sandbox.Clear(ctx); err != nil {
		return nil, &RasterizationError{Cause: err}
	}
	if err := f.sandbox.Load(ctx, seeked); err != nil {
		return nil, &RasterizationError{Cause: err}
	}

	// Declarative clock: best-effort, never fatal for the frame.
	f.sandbox.SeekSMIL(ctx, t)

	data, err := f.sandbox.Screenshot(ctx)
	if err != nil {
		return nil, &RasterizationError{Cause: err}
	}

	// The decoded screenshot is a transient resource scoped to this call;
	// nothing retains it past the composite below.
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &RasterizationError{Cause: err}
	}

	return Composite(src, f.canvas, f.transparent), nil
}

// Close releases the sandbox.
func (f *FrameSource) Close() error {
	return f.sandbox.Close()
}

// Composite draws src scaled onto a fresh RGBA buffer of the canvas
// dimensions. When transparent is false the buffer is filled with an opaque
// white background first, so alpha-carrying sources land on a solid fill.
func Composite(src image.Image, canvas svgmeta.Canvas, transparent bool) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	if !transparent {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	if src.Bounds().Dx() == canvas.Width && src.Bounds().Dy() == canvas.Height {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}
