// Package driver defines the thin capability surface the core pipeline
// needs from a real browser automation library. It is deliberately narrow:
// the core never imports a concrete browser library directly, only this
// contract, so any driver that can satisfy it (Playwright, Rod, a recorded
// fixture) is interchangeable without touching resolver/executor/recovery
// logic.
package driver

import (
	"context"
	"time"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// WaitUntil mirrors the navigation readiness states a real driver exposes.
type WaitUntil string

// WaitUntil constants.
const (
	WaitUntilLoad             WaitUntil = "load"
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitUntilNetworkIdle      WaitUntil = "networkidle"
)

// LocatorState is the state a locator's WaitFor call can block on.
type LocatorState string

// LocatorState constants.
const (
	StateAttached LocatorState = "attached"
	StateDetached LocatorState = "detached"
	StateVisible  LocatorState = "visible"
	StateHidden   LocatorState = "hidden"
)

// Page is the driver-level surface the core needs beyond individual
// locators: navigation, whole-document introspection, keyboard, screenshot.
type Page interface {
	Navigate(ctx context.Context, url string, waitUntil WaitUntil) error
	Locator(kind scoutmodel.SelectorKind, value string) Locator
	Evaluate(ctx context.Context, script string) (any, error)
	Content(ctx context.Context) (string, error)
	URL() string
	WaitForLoadState(ctx context.Context, state WaitUntil, timeout time.Duration) error
	KeyboardPress(ctx context.Context, key string) error
	Screenshot(ctx context.Context, path string) error
}

// Locator is a handle to zero-or-more elements matched by one selector; it
// is not resolved against the live DOM until an action or query is invoked.
type Locator interface {
	WaitFor(ctx context.Context, state LocatorState, timeout time.Duration) error
	Click(ctx context.Context, force bool) error
	Fill(ctx context.Context, text string) error
	Type(ctx context.Context, text string, delay time.Duration) error
	PressKey(ctx context.Context, key string) error
	Check(ctx context.Context) error
	Uncheck(ctx context.Context) error
	SelectOption(ctx context.Context, value, label string, index int) error
	Hover(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	UploadFile(ctx context.Context, paths []string) error
	BoundingBox(ctx context.Context) (BoundingBox, error)
	IsVisible(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	InputValue(ctx context.Context) (string, error)
	TextContent(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, bool, error)
	Evaluate(ctx context.Context, script string) (any, error)
}

// BoundingBox is a locator's on-screen geometry, used by the Pre/Post Action
// Checker's visibility check (viewport intersection, zero-area detection).
type BoundingBox struct {
	X, Y, Width, Height float64
}

// Intersects reports whether the box overlaps the given viewport rectangle.
func (b BoundingBox) Intersects(viewportWidth, viewportHeight float64) bool {
	if b.Width <= 0 || b.Height <= 0 {
		return false
	}
	if b.X+b.Width <= 0 || b.Y+b.Height <= 0 {
		return false
	}
	return b.X < viewportWidth && b.Y < viewportHeight
}
