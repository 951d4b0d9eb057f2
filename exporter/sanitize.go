package exporter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// svgElements is the allowlist of elements the sandbox will ever need to
// honor. Script and foreignObject are deliberately absent: markup arrives
// from callers we do not control and runs inside a real browser page.
var svgElements = []string{
	"svg", "g", "defs", "symbol", "use", "title", "desc",
	"path", "rect", "circle", "ellipse", "line", "polyline", "polygon",
	"text", "tspan", "textPath", "image",
	"linearGradient", "radialGradient", "stop", "pattern",
	"clipPath", "mask", "marker", "style",
	"filter", "feBlend", "feColorMatrix", "feComponentTransfer",
	"feComposite", "feConvolveMatrix", "feDiffuseLighting",
	"feDisplacementMap", "feDistantLight", "feDropShadow", "feFlood",
	"feFuncA", "feFuncB", "feFuncG", "feFuncR", "feGaussianBlur",
	"feImage", "feMerge", "feMergeNode", "feMorphology", "feOffset",
	"fePointLight", "feSpecularLighting", "feSpotLight", "feTile",
	"feTurbulence",
	"animate", "animateTransform", "animateMotion", "set", "mpath",
}

// svgAttrs enumerates the attribute names passed through unchanged:
// geometry, presentation, gradient and filter plumbing, and SMIL timing.
// Event handlers (on*) are not in the list and are stripped with
// everything else unknown.
var svgAttrs = []string{
	"id", "class", "style", "lang", "tabindex",
	"width", "height", "x", "y", "x1", "y1", "x2", "y2",
	"cx", "cy", "r", "rx", "ry", "d", "points", "dx", "dy", "rotate",
	"viewBox", "preserveAspectRatio", "transform", "transform-origin",
	"href", "xlink:href", "xmlns", "xmlns:xlink", "version", "baseProfile",
	"fill", "fill-opacity", "fill-rule",
	"stroke", "stroke-width", "stroke-opacity", "stroke-linecap",
	"stroke-linejoin", "stroke-miterlimit", "stroke-dasharray",
	"stroke-dashoffset",
	"opacity", "color", "display", "visibility", "overflow",
	"clip-path", "clip-rule", "mask", "filter", "vector-effect",
	"paint-order",
	"stop-color", "stop-opacity", "offset",
	"gradientUnits", "gradientTransform", "spreadMethod",
	"patternUnits", "patternContentUnits", "patternTransform",
	"markerUnits", "markerWidth", "markerHeight", "refX", "refY", "orient",
	"maskUnits", "maskContentUnits", "clipPathUnits",
	"filterUnits", "primitiveUnits",
	"font-family", "font-size", "font-weight", "font-style",
	"font-variant", "text-anchor", "dominant-baseline",
	"alignment-baseline", "letter-spacing", "word-spacing",
	"text-decoration", "writing-mode",
	"attributeName", "attributeType", "type", "from", "to", "by",
	"values", "keyTimes", "keySplines", "calcMode", "begin", "end",
	"dur", "min", "max", "restart", "repeatCount", "repeatDur",
	"additive", "accumulate", "path", "keyPoints",
	"in", "in2", "result", "mode", "operator",
	"k1", "k2", "k3", "k4", "order", "kernelMatrix", "divisor", "bias",
	"targetX", "targetY", "edgeMode", "kernelUnitLength",
	"surfaceScale", "diffuseConstant", "specularConstant",
	"specularExponent", "lighting-color", "flood-color", "flood-opacity",
	"azimuth", "elevation", "pointsAtX", "pointsAtY", "pointsAtZ",
	"limitingConeAngle", "stdDeviation", "tableValues", "slope",
	"intercept", "amplitude", "exponent", "radius", "baseFrequency",
	"numOctaves", "seed", "stitchTiles", "scale",
	"xChannelSelector", "yChannelSelector",
	"color-interpolation", "color-interpolation-filters",
}

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func svgPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(svgElements...)
		p.AllowAttrs(svgAttrs...).Globally()
		p.AllowNoAttrs().OnElements(svgElements...)
		p.AllowURLSchemes("http", "https", "data")
		p.AllowDataURIImages()
		policy = p
	})
	return policy
}

var (
	styleRe     = regexp.MustCompile(`(?is)<style\b[^>]*>(.*?)</style\s*>`)
	cssImportRe = regexp.MustCompile(`(?i)@import[^;}]*;?`)
	cssScriptRe = regexp.MustCompile(`(?i)javascript:|expression\s*\(`)
)

func stylePlaceholder(i int) string { return fmt.Sprintf("vmp-style-slot-%d", i) }

// scrubCSS drops the constructs that would let a stylesheet reach outside
// the sandbox page. Keyframes, animation shorthands, and everything else
// pass through unchanged.
func scrubCSS(css string) string {
	css = strings.ReplaceAll(css, "</", "")
	css = cssImportRe.ReplaceAllString(css, "")
	css = cssScriptRe.ReplaceAllString(css, "")
	return css
}

// Sanitize strips script elements, event handler attributes, and foreign
// content from the markup before it reaches the sandbox. Structural,
// presentation, and animation markup passes through untouched.
//
// Style elements get special handling: the HTML sanitizer discards element
// text wholesale, which would erase @keyframes rules. Their bodies are
// carved out first, scrubbed separately, and spliced back in afterwards.
func Sanitize(svg string) string {
	var styles []string
	carved := styleRe.ReplaceAllStringFunc(svg, func(m string) string {
		body := styleRe.FindStringSubmatch(m)[1]
		styles = append(styles, scrubCSS(body))
		return stylePlaceholder(len(styles) - 1)
	})

	out := svgPolicy().Sanitize(carved)

	// A placeholder disappears when the sanitizer removed its whole
	// enclosing subtree; its stylesheet is dropped with it.
	for i, css := range styles {
		out = strings.Replace(out, stylePlaceholder(i), "<style>"+css+"</style>", 1)
	}
	return out
}
