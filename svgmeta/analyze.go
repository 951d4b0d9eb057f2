package svgmeta

import (
	"regexp"
	"strconv"
	"strings"
)

// Hint describes what an analysis of the markup found. The remote metadata
// service returns the same shape; local analysis fills it heuristically.
// Hints are advisory: they pre-populate export defaults and nothing else.
type Hint struct {
	HasSMIL           bool    `json:"hasSmil"`
	HasCSSAnimation   bool    `json:"hasCssAnimation"`
	ViewBox           string  `json:"viewBox,omitempty"`
	Width             float64 `json:"width"`
	Height            float64 `json:"height"`
	SuggestedDuration float64 `json:"suggestedDuration"`
}

// DefaultHint is the safe fallback when neither local analysis nor the
// remote service can say anything about the markup.
func DefaultHint() Hint {
	return Hint{
		Width:             DefaultDimension,
		Height:            DefaultDimension,
		SuggestedDuration: 5,
	}
}

var (
	smilRe    = regexp.MustCompile(`<\s*(animate|animateTransform|animateMotion|set)[\s>/]`)
	cssAnimRe = regexp.MustCompile(`@keyframes|animation\s*:|animation-name\s*:`)
	smilDurRe = regexp.MustCompile(`dur\s*=\s*["']([^"']+)["']`)
	cssDeclRe = regexp.MustCompile(`animation(?:-duration)?\s*:([^;}"']*)`)
	timeTokRe = regexp.MustCompile(`([0-9]*\.?[0-9]+)\s*(ms|s)\b`)
)

// Analyze inspects markup locally and returns a best-effort Hint. It never
// fails; markup with nothing recognisable yields DefaultHint.
func Analyze(markup string) Hint {
	hint := DefaultHint()

	root := findSVG(markup)
	if root != nil {
		if vb, ok := attr(root, "viewbox"); ok {
			hint.ViewBox = vb
		}
	}
	w, h := intrinsicSize(markup)
	hint.Width, hint.Height = w, h

	hint.HasSMIL = smilRe.MatchString(markup)
	hint.HasCSSAnimation = cssAnimRe.MatchString(markup)

	if d := longestDuration(markup); d > 0 {
		hint.SuggestedDuration = d
	}
	return hint
}

// longestDuration scans SMIL dur attributes and CSS animation durations and
// returns the longest one in seconds, or 0 when none parse.
func longestDuration(markup string) float64 {
	var max float64
	for _, m := range smilDurRe.FindAllStringSubmatch(markup, -1) {
		if d, ok := parseClockValue(m[1]); ok && d > max {
			max = d
		}
	}
	for _, decl := range cssDeclRe.FindAllStringSubmatch(markup, -1) {
		for _, tok := range timeTokRe.FindAllString(decl[1], -1) {
			if d, ok := parseClockValue(tok); ok && d > max {
				max = d
			}
		}
	}
	return max
}

// parseClockValue parses SMIL/CSS clock values: "2s", "750ms", "0.5min",
// or a bare number meaning seconds.
func parseClockValue(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "ms"):
		s, mult = strings.TrimSuffix(s, "ms"), 0.001
	case strings.HasSuffix(s, "min"):
		s, mult = strings.TrimSuffix(s, "min"), 60
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	case strings.HasSuffix(s, "h"):
		s, mult = strings.TrimSuffix(s, "h"), 3600
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * mult, true
}
