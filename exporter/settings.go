package exporter

import (
	"errors"
	"fmt"
	"math"

	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// ErrInvalidSettings wraps every Validate failure so callers can map the
// whole class at once.
var ErrInvalidSettings = errors.New("invalid export settings")

// Format is the requested output container.
type Format string

const (
	FormatGIF  Format = "gif"
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
)

// ParseFormat normalizes a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "gif", "GIF":
		return FormatGIF, nil
	case "mp4", "MP4":
		return FormatMP4, nil
	case "webm", "WEBM", "WebM":
		return FormatWebM, nil
	}
	return "", fmt.Errorf("exporter: unknown format %q", s)
}

// MIME returns the container's MIME type.
func (f Format) MIME() string {
	switch f {
	case FormatGIF:
		return "image/gif"
	case FormatMP4:
		return "video/mp4"
	case FormatWebM:
		return "video/webm"
	}
	return "application/octet-stream"
}

// SupportsAlpha reports whether the container can carry transparency. MP4
// cannot; transparent exports to it fall back to a filled background.
func (f Format) SupportsAlpha() bool {
	return f == FormatGIF || f == FormatWebM
}

// Settings parameterize one export run. Quality is a pointer because zero
// is a meaningful request (minimum bitrate); only an absent value takes
// the default.
type Settings struct {
	FPS         float64  `json:"fps" yaml:"fps"`
	Duration    float64  `json:"durationSeconds" yaml:"duration_seconds"`
	Scale       float64  `json:"scale" yaml:"scale"`
	Quality     *float64 `json:"quality,omitempty" yaml:"quality,omitempty"`
	Format      Format   `json:"format" yaml:"format"`
	Transparent bool     `json:"transparent" yaml:"transparent"`
}

// QualityOf returns a Quality setting for a literal value.
func QualityOf(q float64) *float64 { return &q }

// ApplyDefaults fills unset fields, taking the capture window from the
// markup hint when the caller did not choose one.
func (s *Settings) ApplyDefaults(hint svgmeta.Hint) {
	if s.FPS == 0 {
		s.FPS = 30
	}
	if s.Duration == 0 {
		s.Duration = hint.SuggestedDuration
	}
	if s.Duration == 0 {
		s.Duration = svgmeta.DefaultHint().SuggestedDuration
	}
	if s.Scale == 0 {
		s.Scale = 1
	}
	if s.Quality == nil {
		s.Quality = QualityOf(0.8)
	}
	if s.Format == "" {
		s.Format = FormatGIF
	}
}

// Validate rejects settings the pipeline cannot honor.
func (s Settings) Validate() error {
	if s.FPS <= 0 || math.IsNaN(s.FPS) || math.IsInf(s.FPS, 0) {
		return fmt.Errorf("exporter: fps must be a positive finite number, got %v: %w", s.FPS, ErrInvalidSettings)
	}
	if s.Duration <= 0 || math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) {
		return fmt.Errorf("exporter: duration must be a positive finite number, got %v: %w", s.Duration, ErrInvalidSettings)
	}
	if math.IsInf(s.FPS*s.Duration, 0) {
		return fmt.Errorf("exporter: fps*duration overflows: %w", ErrInvalidSettings)
	}
	if s.Scale <= 0 || math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) {
		return fmt.Errorf("exporter: scale must be a positive finite number, got %v: %w", s.Scale, ErrInvalidSettings)
	}
	if s.Quality == nil {
		return fmt.Errorf("exporter: quality not set: %w", ErrInvalidSettings)
	}
	if *s.Quality < 0 || *s.Quality > 1 || math.IsNaN(*s.Quality) {
		return fmt.Errorf("exporter: quality must be in [0,1], got %v: %w", *s.Quality, ErrInvalidSettings)
	}
	switch s.Format {
	case FormatGIF, FormatMP4, FormatWebM:
	default:
		return fmt.Errorf("exporter: unknown format %q: %w", s.Format, ErrInvalidSettings)
	}
	return nil
}
