package precheck

import (
	"context"

	"github.com/dotcommander/scout/internal/driver"
)

// Viewport is the browser viewport size used for geometry checks.
type Viewport struct {
	Width, Height float64
}

// DefaultViewport matches a common desktop test-runner viewport.
var DefaultViewport = Viewport{Width: 1280, Height: 720}

// VisibilityReport distinguishes "element is attached but off-screen" from
// "element has zero area" so the Recovery Handler's scroll-into-view
// strategy can decide whether a retry is worth spending a recovery-budget
// slot on, rather than guessing blind (supplements spec.md §4.9's
// existing strategy table with a lightweight, non-AI geometry check).
type VisibilityReport struct {
	InViewport bool
	HasArea    bool
	Box        driver.BoundingBox
}

// Actionable reports whether the element is both on-screen and has a
// non-zero box — the combination worth attempting an action against
// without scrolling first.
func (r VisibilityReport) Actionable() bool {
	return r.InViewport && r.HasArea
}

// VisibilityCheck reads a locator's bounding box and classifies it against
// the viewport, a lightweight non-AI layout pass in the spirit of the
// original's visual-intelligence scan (bounding boxes, not pixel
// rendering).
func VisibilityCheck(ctx context.Context, loc driver.Locator, vp Viewport) (VisibilityReport, error) {
	box, err := loc.BoundingBox(ctx)
	if err != nil {
		return VisibilityReport{}, err
	}
	return VisibilityReport{
		InViewport: box.Intersects(vp.Width, vp.Height),
		HasArea:    box.Width > 0 && box.Height > 0,
		Box:        box,
	}, nil
}
