package render

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/iEdric/VectorMotionPro/svgmeta"
)

// blankDocument is what Clear loads between frames so no DOM or animation
// state survives into the next one.
const blankDocument = `<!DOCTYPE html><html><head></head><body></body></html>`

// Sandbox is an isolated, resettable render target: one off-screen browser
// page, exclusively owned by a single in-flight export. Concurrent exports
// must each open their own Sandbox.
type Sandbox struct {
	page        *rod.Page
	canvas      svgmeta.Canvas
	transparent bool
	logger      *slog.Logger
}

// NewSandbox opens a page on the manager's browser sized to the canvas.
// Returns *InitializationError when the page cannot be created.
func NewSandbox(ctx context.Context, mgr *Manager, canvas svgmeta.Canvas, transparent bool) (*Sandbox, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, &InitializationError{Cause: fmt.Errorf("render: browser not started")}
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, &InitializationError{Cause: err}
	}

	s := &Sandbox{
		page:        page,
		canvas:      canvas,
		transparent: transparent,
		logger:      mgr.cfg.Logger,
	}

	if err := page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             canvas.Width,
		Height:            canvas.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, &InitializationError{Cause: fmt.Errorf("render: viewport: %w", err)}
	}

	if transparent {
		// With the default background overridden to fully transparent,
		// screenshots preserve alpha wherever the document paints nothing.
		err := proto.EmulationSetDefaultBackgroundColorOverride{
			Color: transparentBackground(),
		}.Call(page.Context(ctx))
		if err != nil {
			page.Close()
			return nil, &InitializationError{Cause: fmt.Errorf("render: background override: %w", err)}
		}
	}

	return s, nil
}

// transparentBackground is the color handed to the devtools background
// override. Alpha is a pointer in the protocol; it must be present and
// zero for screenshots to carry real alpha.
func transparentBackground() *proto.DOMRGBA {
	alpha := 0.0
	return &proto.DOMRGBA{R: 0, G: 0, B: 0, A: &alpha}
}

// Canvas returns the sandbox's fixed raster dimensions.
func (s *Sandbox) Canvas() svgmeta.Canvas { return s.canvas }

// Load injects a markup fragment as the page's entire document, replacing
// whatever was there. The wrapper pins the fragment to the origin with no
// margins so the viewport maps 1:1 onto the canvas.
func (s *Sandbox) Load(ctx context.Context, fragment string) error {
	doc := `<!DOCTYPE html><html><head><style>` +
		`html,body{margin:0;padding:0;overflow:hidden;background:transparent}` +
		`svg{display:block;width:100%;height:100%}` +
		`</style></head><body>` + fragment + `</body></html>`

	if err := s.page.Context(ctx).SetDocumentContent(doc); err != nil {
		return fmt.Errorf("render: load fragment: %w", err)
	}
	if err := s.page.Context(ctx).WaitLoad(); err != nil {
		s.logger.Debug("render: wait load", "error", err)
	}
	return nil
}

// Clear resets the sandbox to an empty document so no state leaks into the
// next frame.
func (s *Sandbox) Clear(ctx context.Context) error {
	if err := s.page.Context(ctx).SetDocumentContent(blankDocument); err != nil {
		return fmt.Errorf("render: clear: %w", err)
	}
	return nil
}

// SeekSMIL freezes the declarative (SMIL) clock of the loaded document at t
// seconds. Best-effort: fragments without a SMIL timeline, or runtimes that
// refuse the call, are not an error; the CSS-time override already applied
// to the markup carries those frames.
func (s *Sandbox) SeekSMIL(ctx context.Context, t float64) {
	_, err := s.page.Context(ctx).Eval(`(t) => {
		const svg = document.querySelector('svg');
		if (!svg) throw new Error('no svg root');
		svg.pauseAnimations();
		svg.setCurrentTime(t);
	}`, t)
	if err != nil {
		s.logger.Debug("render: smil seek skipped", "t", t, "error", err)
	}
}

// Screenshot captures the viewport as PNG bytes.
func (s *Sandbox) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:      proto.PageCaptureScreenshotFormatPng,
		FromSurface: true,
	})
	if err != nil {
		return nil, fmt.Errorf("render: screenshot: %w", err)
	}
	return data, nil
}

// Close releases the page.
func (s *Sandbox) Close() error {
	if s.page != nil {
		return s.page.Close()
	}
	return nil
}
