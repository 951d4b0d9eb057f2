package render

import "fmt"

// InitializationError means the rendering surface could not be created.
// Fatal: it aborts an export before any frame is captured.
type InitializationError struct {
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("render: rendering surface unavailable: %v", e.Cause)
}

func (e *InitializationError) Unwrap() error { return e.Cause }

// InvalidMarkupError means a fragment has no extractable svg root element.
type InvalidMarkupError struct {
	Reason string
}

func (e *InvalidMarkupError) Error() string {
	return fmt.Sprintf("render: invalid markup: %s", e.Reason)
}

// RasterizationError means a specific frame's image resource failed to
// render or decode. Fatal: the run aborts with no partial export.
type RasterizationError struct {
	Frame int
	Cause error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("render: rasterize frame %d: %v", e.Frame, e.Cause)
}

func (e *RasterizationError) Unwrap() error { return e.Cause }
