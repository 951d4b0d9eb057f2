// Package svgmeta derives raster metadata from SVG markup: the target canvas
// dimensions for an export, and an analysis of which animation models the
// markup carries.
//
// Resolution is deliberately infallible. Malformed markup still yields a
// usable canvas (the 500×500 default, scaled) because dimension resolution
// must never be the step that kills an export.
package svgmeta

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// DefaultDimension is used when the markup declares neither an explicit
// width/height nor a viewBox.
const DefaultDimension = 500

// Canvas is the resolved raster target in device pixels. It is immutable for
// the duration of one export.
type Canvas struct {
	Width  int
	Height int
}

// Resolve derives the target canvas from markup and a scale factor.
// Precedence per axis: explicit width/height attribute, then viewBox extent,
// then DefaultDimension. Each is multiplied by scale and rounded to the
// nearest integer pixel. Non-positive scale is treated as 1.
func Resolve(markup string, scale float64) Canvas {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	w, h := intrinsicSize(markup)
	return Canvas{
		Width:  int(math.Round(w * scale)),
		Height: int(math.Round(h * scale)),
	}
}

// intrinsicSize returns the unscaled dimensions of the markup's root svg
// element, falling back axis by axis.
func intrinsicSize(markup string) (w, h float64) {
	w, h = DefaultDimension, DefaultDimension

	root := findSVG(markup)
	if root == nil {
		return w, h
	}

	var vbW, vbH float64
	hasVB := false
	if vb, ok := attr(root, "viewbox"); ok {
		if vw, vh, ok2 := parseViewBox(vb); ok2 {
			vbW, vbH = vw, vh
			hasVB = true
		}
	}

	if v, ok := attrLength(root, "width"); ok {
		w = v
	} else if hasVB {
		w = vbW
	}
	if v, ok := attrLength(root, "height"); ok {
		h = v
	} else if hasVB {
		h = vbH
	}
	return w, h
}

// findSVG parses markup tolerantly and returns the first <svg> element node.
// x/net/html parses anything, so this never reports an error; it returns nil
// only when no svg element exists at all.
func findSVG(markup string) *html.Node {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var walk func(n *html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "svg") {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(doc)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// attrLength reads an attribute as a CSS length. Percentages and other
// relative units are not resolvable without a containing block, so they are
// reported as absent and resolution falls through to the viewBox.
func attrLength(n *html.Node, name string) (float64, bool) {
	raw, ok := attr(n, name)
	if !ok {
		return 0, false
	}
	v, ok := parseLength(raw)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || strings.HasSuffix(s, "%") {
		return 0, false
	}
	for _, unit := range []string{"px", "pt", "pc", "mm", "cm", "in", "em", "ex"} {
		if strings.HasSuffix(s, unit) {
			// Only px maps 1:1 to device pixels; other units are rare on svg
			// roots and are treated as px, matching browser default behaviour
			// closely enough for canvas sizing.
			s = strings.TrimSuffix(s, unit)
			break
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseViewBox extracts the width and height (third and fourth values) of a
// viewBox attribute. Separators may be whitespace or commas.
func parseViewBox(s string) (w, h float64, ok bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, err1 := strconv.ParseFloat(fields[2], 64)
	h, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
