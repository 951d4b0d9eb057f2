package encode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/iEdric/VectorMotionPro/capture"
	"github.com/iEdric/VectorMotionPro/encode/ffkit"
	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// FFmpegAssembler implements the GIF assembly capability with an ffmpeg
// palettegen/paletteuse pass over raw RGBA frames. The underlying ffmpeg
// runtime is the process-wide lazy handle: resolved on first use, with the
// failure cached so later exports fail fast.
type FFmpegAssembler struct {
	// FetchURL, when set, allows one remote fetch of a static ffmpeg build
	// if none is on PATH.
	FetchURL string

	Logger *slog.Logger
}

// Assemble encodes the frames into an animated GIF. A missing runtime is
// reported as *EncoderUnavailableError; an ffmpeg failure propagates with
// its stderr tail for the caller to wrap.
func (a *FFmpegAssembler) Assemble(ctx context.Context, frames []capture.FrameSample, canvas svgmeta.Canvas, frameInterval float64, onProgress func(float64)) ([]byte, error) {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	rt, err := ffkit.Default(ctx, a.FetchURL, log)
	if err != nil {
		return nil, &EncoderUnavailableError{Cause: err}
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("encode: no frames to assemble")
	}
	if frameInterval <= 0 {
		return nil, fmt.Errorf("encode: frame interval must be positive, got %v", frameInterval)
	}
	fps := 1 / frameInterval

	total := len(frames)
	pr, pw := io.Pipe()
	go func() {
		for _, f := range frames {
			if _, err := pw.Write(f.Pixels.Pix); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()

	var out bytes.Buffer
	cmd := &ffkit.Cmd{
		Path: rt.Path,
		Args: []string{
			"-f", "rawvideo",
			"-pix_fmt", "rgba",
			"-video_size", fmt.Sprintf("%dx%d", canvas.Width, canvas.Height),
			"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
			"-i", "pipe:0",
			"-filter_complex",
			"[0:v]split[a][b];[a]palettegen=reserve_transparent=1[p];[b][p]paletteuse=alpha_threshold=128",
			"-f", "gif",
			"pipe:1",
		},
		Input:  pr,
		Output: &out,
		Logger: log,
		ProgressFn: func(p ffkit.Progress) {
			if onProgress == nil || total == 0 {
				return
			}
			frac := float64(p.Frame) / float64(total)
			if frac > 1 {
				frac = 1
			}
			onProgress(frac)
		},
	}

	if err := cmd.Run(ctx); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return out.Bytes(), nil
}
