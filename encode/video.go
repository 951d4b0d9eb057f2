package encode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iEdric/VectorMotionPro/capture"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// Bitrate bounds for the quality→bitrate mapping: linear against the
// ceiling, floored so even quality 0 produces a watchable stream.
const (
	MaxBitRate = 8_000_000
	MinBitRate = 100_000
)

// defaultPacingMargin is added to the frame interval when pacing draws, so
// a recorder sampling on its own clock is guaranteed to observe every
// rasterized state at least once.
const defaultPacingMargin = 10 * time.Millisecond

// CodecPreference is one entry of the ordered codec/container preference
// list.
type CodecPreference struct {
	Encoder string // encoder name the runtime must support
	Format  string // container muxer
	MIME    string
	Opts    []string // extra output arguments
}

// PreferencesFor returns the ordered preference list for a container. The
// final entry is the guaranteed fallback, chosen even when the runtime
// claims support for nothing.
func PreferencesFor(container string) []CodecPreference {
	mp4H264 := CodecPreference{
		Encoder: "libx264", Format: "mp4", MIME: "video/mp4",
		// Fragmented output: the mp4 muxer cannot seek a pipe.
		Opts: []string{"-pix_fmt", "yuv420p", "-movflags", "frag_keyframe+empty_moov"},
	}
	mp4Generic := CodecPreference{
		Encoder: "mpeg4", Format: "mp4", MIME: "video/mp4",
		Opts: []string{"-pix_fmt", "yuv420p", "-movflags", "frag_keyframe+empty_moov"},
	}
	webmVP9 := CodecPreference{
		Encoder: "libvpx-vp9", Format: "webm", MIME: "video/webm",
		Opts: []string{"-pix_fmt", "yuva420p"},
	}
	webmVP8 := CodecPreference{
		Encoder: "libvpx", Format: "webm", MIME: "video/webm",
		Opts: []string{"-pix_fmt", "yuva420p", "-auto-alt-ref", "0"},
	}

	if container == "webm" {
		return []CodecPreference{webmVP9, webmVP8}
	}
	return []CodecPreference{mp4H264, mp4Generic, webmVP9, webmVP8}
}

// RecorderConfig parameterizes one recording session.
type RecorderConfig struct {
	Width, Height int
	FPS           float64
	BitRate       int // bits/s
	Codec         CodecPreference
	Logger        *slog.Logger
}

// Recorder is a live recording session over the rasterization surface. It
// consumes raw RGBA frames continuously and assembles the container blob
// asynchronously, delivering it on Stop.
type Recorder interface {
	Start(ctx context.Context) error
	WriteFrame(pix []byte) error
	// Stop ends the session and blocks until the finalized blob is ready.
	Stop() ([]byte, error)
}

// CodecRuntime exposes the codec/container runtime: support probing plus
// recorder construction.
type CodecRuntime interface {
	Supports(ctx context.Context, encoder string) bool
	NewRecorder(cfg RecorderConfig) Recorder
}

// Clock abstracts wall-clock pacing so tests can run without sleeping.
type Clock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// VideoEncoder is the streaming strategy: a recording session is opened
// before the first frame is drawn, each drawn frame is followed by a
// mandatory pacing delay of at least one frame interval plus a safety
// margin, and Stop yields the finalized container. Capture and encode are
// concurrent, so capture owns the full 0..100 progress range.
type VideoEncoder struct {
	runtime CodecRuntime
	canvas  svgmeta.Canvas
	plan    capture.Plan
	quality float64
	prefs   []CodecPreference
	clock   Clock
	margin  time.Duration
	logger  *slog.Logger

	recorder Recorder
	chosen   CodecPreference
}

// VideoOption configures a VideoEncoder.
type VideoOption func(*VideoEncoder)

// WithClock substitutes the pacing clock.
func WithClock(c Clock) VideoOption {
	return func(v *VideoEncoder) { v.clock = c }
}

// WithPacingMargin overrides the safety margin added to each frame's pacing
// delay.
func WithPacingMargin(d time.Duration) VideoOption {
	return func(v *VideoEncoder) { v.margin = d }
}

// WithVideoLogger sets a custom logger.
func WithVideoLogger(l *slog.Logger) VideoOption {
	return func(v *VideoEncoder) { v.logger = l }
}

// NewVideoEncoder creates the streaming encoder. prefs is the ordered
// codec/container preference list; its last entry is the guaranteed
// fallback.
func NewVideoEncoder(rt CodecRuntime, canvas svgmeta.Canvas, plan capture.Plan, quality float64, prefs []CodecPreference, opts ...VideoOption) *VideoEncoder {
	v := &VideoEncoder{
		runtime: rt,
		canvas:  canvas,
		plan:    plan,
		quality: quality,
		prefs:   prefs,
		clock:   realClock{},
		margin:  defaultPacingMargin,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *VideoEncoder) CaptureCeil() int { return 100 }

// MIME reports the chosen container's MIME type; valid after Begin.
func (v *VideoEncoder) MIME() string { return v.chosen.MIME }

// Begin selects the codec and opens the recording session. Selection walks
// the preference list and takes the first entry the runtime supports; when
// nothing is supported the final entry is used anyway, without error.
func (v *VideoEncoder) Begin(ctx context.Context) error {
	if len(v.prefs) == 0 {
		return fmt.Errorf("encode: empty codec preference list")
	}

	v.chosen = v.prefs[len(v.prefs)-1]
	for _, p := range v.prefs {
		if v.runtime.Supports(ctx, p.Encoder) {
			v.chosen = p
			break
		}
	}

	bitrate := int(v.quality * MaxBitRate)
	if bitrate < MinBitRate {
		bitrate = MinBitRate
	}

	v.logger.Debug("encode: recording session opening",
		"encoder", v.chosen.Encoder, "container", v.chosen.Format, "bitrate", bitrate)

	v.recorder = v.runtime.NewRecorder(RecorderConfig{
		Width:   v.canvas.Width,
		Height:  v.canvas.Height,
		FPS:     v.plan.FPS,
		BitRate: bitrate,
		Codec:   v.chosen,
		Logger:  v.logger,
	})
	if err := v.recorder.Start(ctx); err != nil {
		return fmt.Errorf("encode: start recording: %w", err)
	}
	return nil
}

// Frame pushes one rasterized frame into the recorder, then holds the
// surface steady for at least one frame interval plus the safety margin.
// The recorder samples on its own clock; without this delay, rasterized
// states collapse or duplicate nondeterministically.
func (v *VideoEncoder) Frame(ctx context.Context, sample capture.FrameSample) error {
	if err := v.recorder.WriteFrame(sample.Pixels.Pix); err != nil {
		return &EncodingError{Message: err.Error()}
	}
	v.clock.Sleep(time.Duration(v.plan.FrameInterval*float64(time.Second)) + v.margin)
	return nil
}

// Abort tears down a started recording session after a failed run: the
// frame pipe is closed and the session drained so the recorder process
// exits instead of blocking on its input forever. The partial container
// is discarded.
func (v *VideoEncoder) Abort() {
	if v.recorder == nil {
		return
	}
	if _, err := v.recorder.Stop(); err != nil {
		v.logger.Debug("encode: aborted recording session", "error", err)
	}
	v.recorder = nil
}

// Finish stops the session after the last frame's pacing delay (already
// applied by Frame) and returns the finalized container blob.
func (v *VideoEncoder) Finish(ctx context.Context, onProgress capture.ProgressFunc) (*Result, error) {
	data, err := v.recorder.Stop()
	if err != nil {
		return nil, &EncodingError{Message: err.Error()}
	}
	if onProgress != nil {
		onProgress(100)
	}
	return &Result{Bytes: data, MIME: v.chosen.MIME}, nil
}
