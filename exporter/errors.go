package exporter

import (
	"github.com/iEdric/VectorMotionPro/encode"
	"github.com/iEdric/VectorMotionPro/render"
)

// The pipeline's error taxonomy, re-exported from the packages that raise
// the errors so callers can match the whole family here.
//
// All five are fatal: an export either returns a complete valid blob or no
// result at all. The one recoverable case, a declarative-seek refusal on an
// individual frame, never surfaces as an error; the frame proceeds on the
// CSS-time override alone.
type (
	// InitializationError: the rendering surface could not be created.
	InitializationError = render.InitializationError
	// InvalidMarkupError: the markup has no extractable svg root.
	InvalidMarkupError = render.InvalidMarkupError
	// RasterizationError: a frame's image resource failed to render/decode.
	RasterizationError = render.RasterizationError
	// EncoderUnavailableError: the GIF capability is missing and the single
	// remote-fetch attempt failed.
	EncoderUnavailableError = encode.EncoderUnavailableError
	// EncodingError: the assembly capability reported an explicit failure.
	EncodingError = encode.EncodingError
)
