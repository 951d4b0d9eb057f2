package encode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/iEdric/VectorMotionPro/encode/ffkit"
)

// FFmpegRuntime adapts an ffkit runtime to the CodecRuntime contract.
type FFmpegRuntime struct {
	RT     *ffkit.Runtime
	Logger *slog.Logger
}

func (r *FFmpegRuntime) Supports(ctx context.Context, encoder string) bool {
	return r.RT.Supports(ctx, encoder)
}

func (r *FFmpegRuntime) NewRecorder(cfg RecorderConfig) Recorder {
	if cfg.Logger == nil {
		cfg.Logger = r.Logger
	}
	return &ffmpegRecorder{rt: r.RT, cfg: cfg}
}

// ffmpegRecorder streams raw RGBA frames into a long-lived ffmpeg process
// over stdin and collects the muxed container from stdout. The process runs
// for the whole session; Stop closes the frame pipe and waits for the mux
// to finalize.
type ffmpegRecorder struct {
	rt  *ffkit.Runtime
	cfg RecorderConfig

	pw   *io.PipeWriter
	out  bytes.Buffer
	done chan error

	frameBytes int
}

func (r *ffmpegRecorder) Start(ctx context.Context) error {
	if r.cfg.Width <= 0 || r.cfg.Height <= 0 || r.cfg.FPS <= 0 {
		return fmt.Errorf("encode: invalid recorder config %dx%d@%v", r.cfg.Width, r.cfg.Height, r.cfg.FPS)
	}
	r.frameBytes = r.cfg.Width * r.cfg.Height * 4

	pr, pw := io.Pipe()
	r.pw = pw

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", r.cfg.Width, r.cfg.Height),
		"-framerate", strconv.FormatFloat(r.cfg.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-c:v", r.cfg.Codec.Encoder,
		"-b:v", strconv.Itoa(r.cfg.BitRate),
	}
	args = append(args, r.cfg.Codec.Opts...)
	args = append(args, "-f", r.cfg.Codec.Format, "pipe:1")

	cmd := &ffkit.Cmd{
		Path:   r.rt.Path,
		Args:   args,
		Input:  pr,
		Output: &r.out,
		Logger: r.cfg.Logger,
	}

	r.done = make(chan error, 1)
	go func() {
		err := cmd.Run(ctx)
		// Unblock a writer stuck on a dead process.
		pr.CloseWithError(err)
		r.done <- err
	}()
	return nil
}

func (r *ffmpegRecorder) WriteFrame(pix []byte) error {
	if len(pix) != r.frameBytes {
		return fmt.Errorf("encode: frame size %d, want %d", len(pix), r.frameBytes)
	}
	if _, err := r.pw.Write(pix); err != nil {
		return fmt.Errorf("encode: write frame: %w", err)
	}
	return nil
}

func (r *ffmpegRecorder) Stop() ([]byte, error) {
	r.pw.Close()
	if err := <-r.done; err != nil {
		return nil, err
	}
	return r.out.Bytes(), nil
}
