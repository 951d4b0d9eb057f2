package render

import (
	"strconv"
	"strings"
)

// SeekMarkup returns a copy of fragment whose style-driven (CSS) animations
// are frozen at t seconds. It injects one universal style rule immediately
// after the svg open tag that pauses every animation, applies a negative
// animation delay of -t so the engine computes the state t seconds in, and
// disables transitions so the jump itself cannot interpolate.
//
// The function is pure: it never mutates shared state, and identical inputs
// produce byte-identical output, which is what makes repeated or
// out-of-order seeks reproducible.
//
// The SMIL clock cannot be frozen from markup alone; Sandbox.SeekSMIL
// handles that half after the fragment is loaded.
func SeekMarkup(fragment string, t float64) (string, error) {
	_, end, err := svgOpenTag(fragment)
	if err != nil {
		return "", err
	}
	return fragment[:end+1] + freezeStyle(t) + fragment[end+1:], nil
}

// ValidateMarkup reports whether the fragment has an svg root the pipeline
// can render. Returns *InvalidMarkupError when it does not.
func ValidateMarkup(fragment string) error {
	_, _, err := svgOpenTag(fragment)
	return err
}

// freezeStyle builds the injected rule. Formatting t with the shortest exact
// representation keeps the output deterministic.
func freezeStyle(t float64) string {
	secs := strconv.FormatFloat(t, 'f', -1, 64)
	return `<style data-anim-freeze="1">` +
		`*{animation-play-state:paused !important;` +
		`animation-delay:-` + secs + `s !important;` +
		`transition:none !important;}` +
		`</style>`
}

// svgOpenTag locates the root svg open tag and returns the index of '<' and
// of its closing '>'. Quote-aware so a '>' inside an attribute value does
// not terminate the tag early.
func svgOpenTag(fragment string) (start, end int, err error) {
	lower := strings.ToLower(fragment)
	start = -1
	for i := 0; i+4 <= len(lower); i++ {
		if lower[i] != '<' || !strings.HasPrefix(lower[i+1:], "svg") {
			continue
		}
		// "<svg" must be followed by whitespace, '>', or '/'.
		rest := lower[i+4:]
		if rest == "" {
			break
		}
		switch rest[0] {
		case ' ', '\t', '\n', '\r', '>', '/':
			start = i
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return 0, 0, &InvalidMarkupError{Reason: "no svg root element"}
	}

	var quote byte
	for i := start; i < len(fragment); i++ {
		c := fragment[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return start, i, nil
		}
	}
	return 0, 0, &InvalidMarkupError{Reason: "unterminated svg open tag"}
}
