package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/driver"
	"github.com/dotcommander/scout/internal/precheck"
	"github.com/dotcommander/scout/internal/scoutmodel"
)

func TestClassifyFailureFromDriverError(t *testing.T) {
	err := &scoutmodel.DriverError{Kind: scoutmodel.FailureElementIntercepted}
	assert.Equal(t, scoutmodel.FailureElementIntercepted, ClassifyFailure(err))
}

func TestClassifyFailureFromTimeoutError(t *testing.T) {
	err := &scoutmodel.TimeoutError{Operation: "click"}
	assert.Equal(t, scoutmodel.FailureTimeout, ClassifyFailure(err))
}

func TestClassifyFailureFromMessageKeyword(t *testing.T) {
	assert.Equal(t, scoutmodel.FailureCookieBanner, ClassifyFailure(plainErr("blocked by cookie consent")))
	assert.Equal(t, scoutmodel.FailureModalBlocking, ClassifyFailure(plainErr("a modal dialog is open")))
	assert.Equal(t, scoutmodel.FailureUnknown, ClassifyFailure(plainErr("something weird happened")))
}

func TestRecoverDismissesCookieBannerForInterceptedFailure(t *testing.T) {
	page := driver.NewFakePage("https://example.com/")
	page.AddElement(&driver.FakeElement{TestID: "cookie-banner", Tag: "div", Visible: true, Enabled: true})
	page.AddElement(&driver.FakeElement{TestID: "cookie-accept", Tag: "button", Visible: true, Enabled: true})

	h := New(precheck.New())
	result, err := h.Recover(context.Background(), page, 1, scoutmodel.FailureElementIntercepted, scoutmodel.Selector{Value: "#target", Kind: scoutmodel.KindCSS})
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.True(t, result.SafeToRetryOriginal)
}

func TestRecoverScrollsIntoViewWhenOffscreen(t *testing.T) {
	page := driver.NewFakePage("https://example.com/")
	page.AddElement(&driver.FakeElement{ID: "far", Tag: "button", Visible: true, Enabled: true, Box: driver.BoundingBox{X: 9000, Y: 9000, Width: 50, Height: 20}})

	h := New(precheck.New())
	result, err := h.Recover(context.Background(), page, 1, scoutmodel.FailureElementNotVisible, scoutmodel.Selector{Value: "#far", Kind: scoutmodel.KindCSS})
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, StrategyScrollIntoView, result.Attempted)

	loc := page.Locator(scoutmodel.KindCSS, "#far")
	visible, _ := loc.IsVisible(context.Background())
	assert.True(t, visible)
}

func TestRecoverExhaustsBudgetAfterThreeAttempts(t *testing.T) {
	page := driver.NewFakePage("https://example.com/")
	h := New(precheck.New())
	sel := scoutmodel.Selector{Value: "#ghost", Kind: scoutmodel.KindCSS}

	for i := 0; i < maxAttemptsPerKey; i++ {
		_, err := h.Recover(context.Background(), page, 1, scoutmodel.FailureUnknown, sel)
		require.NoError(t, err)
	}

	_, err := h.Recover(context.Background(), page, 1, scoutmodel.FailureUnknown, sel)
	require.Error(t, err)
	var exhausted *scoutmodel.RecoveryExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestRecoverBudgetIsPerStep(t *testing.T) {
	page := driver.NewFakePage("https://example.com/")
	h := New(precheck.New())
	sel := scoutmodel.Selector{Value: "#ghost", Kind: scoutmodel.KindCSS}

	for i := 0; i < maxAttemptsPerKey; i++ {
		_, err := h.Recover(context.Background(), page, 1, scoutmodel.FailureUnknown, sel)
		require.NoError(t, err)
	}

	_, err := h.Recover(context.Background(), page, 2, scoutmodel.FailureUnknown, sel)
	require.NoError(t, err)
}

func TestRecoverPrefersPreviouslySuccessfulStrategy(t *testing.T) {
	page := driver.NewFakePage("https://example.com/")
	page.AddElement(&driver.FakeElement{ID: "far", Tag: "button", Visible: true, Enabled: true, Box: driver.BoundingBox{X: 9000, Y: 9000, Width: 50, Height: 20}})

	h := New(precheck.New())
	sel := scoutmodel.Selector{Value: "#far", Kind: scoutmodel.KindCSS}
	first, err := h.Recover(context.Background(), page, 1, scoutmodel.FailureElementNotVisible, sel)
	require.NoError(t, err)
	require.True(t, first.Succeeded)

	ordered := h.orderedStrategies(scoutmodel.FailureElementNotVisible)
	assert.Equal(t, first.Attempted, ordered[0])
}

type plainErr string

func (e plainErr) Error() string { return string(e) }
