// Package exporter orchestrates the full pipeline: dimension resolution,
// the capture loop over the render sandbox, and the format-selected encoder
// strategy, with progress remapped onto one 0..100 scale.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iEdric/VectorMotionPro/capture"
	"github.com/iEdric/VectorMotionPro/encode"
	"github.com/iEdric/VectorMotionPro/encode/ffkit"
	"github.com/iEdric/VectorMotionPro/render"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// FrameSource produces seeked, rasterized frames for one export run and is
// released when the run ends.
type FrameSource interface {
	capture.Seeker
	capture.Rasterizer
	Close() error
}

// FrameSourceFactory opens a frame source for one run. The default backs it
// with a browser sandbox.
type FrameSourceFactory func(ctx context.Context, canvas svgmeta.Canvas, transparent bool) (FrameSource, error)

// EncoderFactory builds the encoder strategy for the requested format.
type EncoderFactory func(ctx context.Context, settings Settings, canvas svgmeta.Canvas, plan capture.Plan) (encode.Encoder, error)

// ProgressFunc receives integer percentages 0..100, monotonically
// non-decreasing, ending at exactly 100 on success. Called synchronously on
// the pipeline goroutine; it must not block.
type ProgressFunc = capture.ProgressFunc

// Exporter runs exports. One sandbox and one canvas serve one in-flight
// export; the Exporter serializes runs so they are never shared. There is no
// cancellation of an in-flight export and no timeout on external
// capabilities: a run proceeds to completion or hard failure.
type Exporter struct {
	logger     *slog.Logger
	hints      *svgmeta.HintClient
	fetchURL   string
	newFrames  FrameSourceFactory
	newEncoder EncoderFactory

	mu    sync.Mutex // serializes exports
	phase Phase
	pmu   sync.RWMutex
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithHintClient wires the advisory metadata service used to default the
// capture window.
func WithHintClient(h *svgmeta.HintClient) Option {
	return func(e *Exporter) { e.hints = h }
}

// WithFFmpegFetchURL permits one remote fetch of a static ffmpeg build when
// none is found on PATH.
func WithFFmpegFetchURL(url string) Option {
	return func(e *Exporter) { e.fetchURL = url }
}

// WithFrameSourceFactory substitutes the frame source, bypassing the
// browser. Used by tests and embedders with their own renderer.
func WithFrameSourceFactory(f FrameSourceFactory) Option {
	return func(e *Exporter) { e.newFrames = f }
}

// WithEncoderFactory substitutes encoder construction.
func WithEncoderFactory(f EncoderFactory) Option {
	return func(e *Exporter) { e.newEncoder = f }
}

// New creates an Exporter whose frames render on mgr's browser.
func New(mgr *render.Manager, opts ...Option) *Exporter {
	e := &Exporter{
		logger: slog.Default(),
		phase:  PhaseIdle,
	}
	e.newFrames = func(ctx context.Context, canvas svgmeta.Canvas, transparent bool) (FrameSource, error) {
		return render.NewFrameSource(ctx, mgr, canvas, transparent)
	}
	e.newEncoder = e.defaultEncoderFactory
	for _, o := range opts {
		o(e)
	}
	return e
}

// Phase returns the current phase of the in-flight export, or the terminal
// phase of the last one.
func (e *Exporter) Phase() Phase {
	e.pmu.RLock()
	defer e.pmu.RUnlock()
	return e.phase
}

func (e *Exporter) setPhase(p Phase) {
	e.pmu.Lock()
	e.phase = p
	e.pmu.Unlock()
	e.logger.Debug("exporter: phase", "phase", p.String())
}

// Suggest runs markup analysis, merging the remote hint service's answer
// when one is configured. Never fails.
func (e *Exporter) Suggest(ctx context.Context, svg string) svgmeta.Hint {
	if e.hints != nil {
		return e.hints.Suggest(ctx, svg)
	}
	return svgmeta.Analyze(svg)
}

// Export runs the whole pipeline and returns the finished container blob.
// Settings are defaulted from markup analysis, then validated. Either a
// complete valid blob is returned or no result at all; there is no partial
// output and no retry.
func (e *Exporter) Export(ctx context.Context, svg string, settings Settings, onProgress ProgressFunc) (*encode.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.run(ctx, svg, settings, onProgress)
	if err != nil {
		e.setPhase(PhaseFailed)
		return nil, err
	}
	e.setPhase(PhaseComplete)
	return res, nil
}

func (e *Exporter) run(ctx context.Context, svg string, settings Settings, onProgress ProgressFunc) (*encode.Result, error) {
	e.setPhase(PhaseResolvingDimensions)

	settings.ApplyDefaults(e.Suggest(ctx, svg))
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	// The root element check happens before any frame work so invalid
	// markup never reaches the sandbox.
	if err := render.ValidateMarkup(svg); err != nil {
		return nil, err
	}

	canvas := svgmeta.Resolve(svg, settings.Scale)
	plan, err := capture.NewPlan(settings.FPS, settings.Duration)
	if err != nil {
		return nil, err
	}

	// Opaque containers cannot carry alpha; fall back to the filled
	// background instead of exporting garbage.
	transparent := settings.Transparent && settings.Format.SupportsAlpha()

	e.logger.Info("exporter: starting",
		"format", settings.Format, "frames", plan.TotalFrames,
		"canvas", fmt.Sprintf("%dx%d", canvas.Width, canvas.Height),
		"transparent", transparent)

	frames, err := e.newFrames(ctx, canvas, transparent)
	if err != nil {
		return nil, err
	}
	defer frames.Close()

	enc, err := e.newEncoder(ctx, settings, canvas, plan)
	if err != nil {
		return nil, err
	}
	if err := enc.Begin(ctx); err != nil {
		return nil, err
	}

	progress := monotone(onProgress)

	e.setPhase(PhaseCapturing)
	driver := &capture.Driver{Seeker: frames, Rasterizer: frames, Logger: e.logger}
	if err := driver.Run(ctx, svg, plan, enc.CaptureCeil(), enc, progress); err != nil {
		// A started streaming session holds a live recorder process;
		// tear it down or its input pipe stays open forever.
		enc.Abort()
		return nil, err
	}

	e.setPhase(PhaseEncoding)
	res, err := enc.Finish(ctx, progress)
	if err != nil {
		enc.Abort()
		return nil, err
	}

	progress(100)
	e.logger.Info("exporter: complete", "mime", res.MIME, "bytes", len(res.Bytes))
	return res, nil
}

// monotone clamps a progress callback to non-decreasing integers in
// [0,100].
func monotone(fn ProgressFunc) ProgressFunc {
	last := -1
	return func(pct int) {
		if fn == nil {
			return
		}
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if pct > last {
			last = pct
			fn(pct)
		}
	}
}

func (e *Exporter) defaultEncoderFactory(ctx context.Context, settings Settings, canvas svgmeta.Canvas, plan capture.Plan) (encode.Encoder, error) {
	switch settings.Format {
	case FormatGIF:
		asm := &encode.FFmpegAssembler{FetchURL: e.fetchURL, Logger: e.logger}
		return encode.NewGIFEncoder(asm, canvas, plan.FrameInterval, e.logger), nil

	case FormatMP4, FormatWebM:
		rt, err := ffkit.Default(ctx, e.fetchURL, e.logger)
		if err != nil {
			return nil, &EncoderUnavailableError{Cause: err}
		}
		runtime := &encode.FFmpegRuntime{RT: rt, Logger: e.logger}
		prefs := encode.PreferencesFor(string(settings.Format))
		return encode.NewVideoEncoder(runtime, canvas, plan, *settings.Quality, prefs,
			encode.WithVideoLogger(e.logger)), nil
	}
	return nil, fmt.Errorf("exporter: no encoder for format %q", settings.Format)
}
