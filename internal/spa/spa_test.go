package spa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/driver"
)

func TestDetectFrameworkReact(t *testing.T) {
	page := driver.NewFakePage("https://example.com/app")
	page.SetEvalResponse(`!!(window.__NEXT_DATA__)`, false)
	page.SetEvalResponse(`!!(window.__NUXT__)`, false)
	page.SetEvalResponse(`!!(window.__REACT_DEVTOOLS_GLOBAL_HOOK__)`, true)

	c := New()
	fw := c.DetectFramework(context.Background(), page)
	assert.Equal(t, React, fw)
}

func TestDetectFrameworkCachedPerPage(t *testing.T) {
	page := driver.NewFakePage("https://example.com/app")
	page.SetEvalResponse(`!!(window.__NEXT_DATA__)`, true)

	c := New()
	first := c.DetectFramework(context.Background(), page)
	// Change the stubbed response; cached result must not change.
	page.SetEvalResponse(`!!(window.__NEXT_DATA__)`, false)
	second := c.DetectFramework(context.Background(), page)

	assert.Equal(t, NextJS, first)
	assert.Equal(t, first, second)
}

func TestDetectFrameworkNoneWhenNoMarkerMatches(t *testing.T) {
	page := driver.NewFakePage("https://example.com/plain")
	c := New()
	fw := c.DetectFramework(context.Background(), page)
	assert.Equal(t, None, fw)
}

func TestWaitForHydrationSkipsWhenNoFramework(t *testing.T) {
	page := driver.NewFakePage("https://example.com/plain")
	c := New()
	err := c.WaitForHydration(context.Background(), page, None, 50*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitForHydrationSucceedsWhenProbeTrue(t *testing.T) {
	page := driver.NewFakePage("https://example.com/app")
	page.SetEvalResponse(hydrationProbe(React), true)

	c := New()
	err := c.WaitForHydration(context.Background(), page, React, 500*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitForHydrationTimesOutWhenProbeNeverTrue(t *testing.T) {
	page := driver.NewFakePage("https://example.com/app")
	c := New()
	err := c.WaitForHydration(context.Background(), page, React, 150*time.Millisecond)
	require.Error(t, err)
	assert.True(t, isTimeout(err))
}

func TestWaitForRenderStableSucceedsWhenCountUnchanged(t *testing.T) {
	page := driver.NewFakePage("https://example.com/app")
	page.SetEvalResponse(mutationCountScript, float64(5))

	c := New()
	err := c.WaitForRenderStable(context.Background(), page, 2*time.Second)
	require.NoError(t, err)
}

func TestWaitForNetworkIdleDelegatesToDriver(t *testing.T) {
	page := driver.NewFakePage("https://example.com/app")
	c := New()
	err := c.WaitForNetworkIdle(context.Background(), page, 100*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitForRouteChangeDetectsURLChange(t *testing.T) {
	page := driver.NewFakePage("https://example.com/a")
	c := New()

	done := make(chan error, 1)
	go func() {
		done <- c.WaitForRouteChange(context.Background(), page, "https://example.com/a", time.Second)
	}()

	time.Sleep(150 * time.Millisecond)
	_ = page.Navigate(context.Background(), "https://example.com/b", driver.WaitUntilLoad)

	err := <-done
	require.NoError(t, err)
}

func TestRunPreActionSequenceOrdersAndNeverFailsFatally(t *testing.T) {
	page := driver.NewFakePage("https://example.com/app")
	page.SetEvalResponse(mutationCountScript, float64(1))

	c := New()
	var blockerRan bool
	logs := c.RunPreActionSequence(context.Background(), page, PreActionOptions{
		NetworkIdleTimeout:  50 * time.Millisecond,
		HydrationTimeout:    50 * time.Millisecond,
		RenderStableTimeout: 500 * time.Millisecond,
		BlockerHandler: func(ctx context.Context) error {
			blockerRan = true
			return nil
		},
	})

	require.NotEmpty(t, logs)
	assert.Equal(t, "network_idle", logs[0].Step)
	assert.Equal(t, "blocker_handling", logs[len(logs)-1].Step)
	assert.True(t, blockerRan)
}

func TestBuildShadowPierceScriptEscapesQuotes(t *testing.T) {
	script := BuildShadowPierceScript(`[data-test="a'b"]`)
	assert.Contains(t, script, `a\'b`)
}
