// Package encode turns the capture loop's frame stream into a finished
// container blob. Two strategies live behind one interface: the batch GIF
// path materializes every frame before assembly begins, and the streaming
// video path feeds a live recorder frame by frame with explicit pacing.
package encode

import (
	"context"
	"fmt"

	"github.com/iEdric/VectorMotionPro/capture"
)

// Result is the terminal export artifact: a container blob and its MIME
// type. Ownership transfers to the caller.
type Result struct {
	Bytes []byte
	MIME  string
}

// Encoder is one export strategy. The sequence driver sees only the
// FrameSink half; the orchestrator brackets the run with Begin and Finish.
type Encoder interface {
	capture.FrameSink

	// CaptureCeil is the share of the overall 0..100 progress range the
	// capture loop owns: 60 for the batch strategy (assembly takes the
	// rest), 100 for streaming (capture and encode are concurrent).
	CaptureCeil() int

	// Begin prepares the strategy before the first frame: a no-op for
	// batch, recorder startup for streaming.
	Begin(ctx context.Context) error

	// Finish finalizes and returns the container blob. onProgress covers
	// the encode share of the range; the streaming strategy has nothing
	// left to report here.
	Finish(ctx context.Context, onProgress capture.ProgressFunc) (*Result, error)

	// Abort releases whatever Begin acquired after a failed run. Safe to
	// call before Begin and after Finish; never called on success.
	Abort()
}

// EncoderUnavailableError means the external assembly capability is missing
// and unrecoverable: not preloaded, and the single remote-fetch attempt
// failed too.
type EncoderUnavailableError struct {
	Cause error
}

func (e *EncoderUnavailableError) Error() string {
	return fmt.Sprintf("encode: encoder capability unavailable: %v", e.Cause)
}

func (e *EncoderUnavailableError) Unwrap() error { return e.Cause }

// EncodingError means the assembly capability reported an explicit failure.
// The message passes through verbatim, never silently degraded.
type EncodingError struct {
	Message string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode: %s", e.Message)
}
