package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/pevans/eventfed/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const renderedPage = `<!DOCTYPE html>
<html><body>
<div class="event">
  <div class="title">Robotics Workshop</div>
  <div class="desc">Build a line follower</div>
  <div class="date">March 3</div>
</div>
<div id="late"></div>
<script>
  setTimeout(function () {
    document.getElementById("late").innerHTML =
      '<div class="event"><div class="title">Spring Hackathon</div>' +
      '<div class="desc">48 hours of code</div><div class="date">April 1</div></div>';
    document.getElementById("late").className = "loaded";
  }, 300);
</script>
</body></html>`

// Test helper: find a Chrome binary or skip the test
func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or headless-shell binary found")
	return ""
}

// Test helper: create a renderer for the local Chrome
func createTestRenderer(t *testing.T, waitTimeout time.Duration) *ChromeRenderer {
	t.Helper()
	return NewChromeRenderer(RendererConfig{
		ExecPath:    findChrome(t),
		WaitTimeout: waitTimeout,
		Headless:    true,
	})
}

// Test helper: serve the fixture page
func createTestPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, renderedPage)
	}))
	t.Cleanup(server.Close)
	return server
}

func lifecycle(name string, frameID cdp.FrameID, loaderID cdp.LoaderID) *page.EventLifecycleEvent {
	return &page.EventLifecycleEvent{Name: name, FrameID: frameID, LoaderID: loaderID}
}

// TestIdleTracker_MatchesNavigation verifies only the main frame's idle
// signal for the current loader ends the wait
func TestIdleTracker_MatchesNavigation(t *testing.T) {
	tracker := newIdleTracker()

	// Blank start page, an iframe and other lifecycle names do not count
	tracker.observe(lifecycle(lifecycleNetworkAlmostIdle, "main", "blank-loader"))
	tracker.observe(lifecycle(lifecycleNetworkAlmostIdle, "iframe", "nav-loader"))
	tracker.observe(lifecycle("load", "main", "nav-loader"))
	tracker.observe(&page.EventFrameNavigated{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tracker.wait(ctx, "main", "nav-loader")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tracker.observe(lifecycle(lifecycleNetworkAlmostIdle, "main", "nav-loader"))
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, tracker.wait(ctx, "main", "nav-loader"))
}

// TestIdleTracker_EarlyEvent verifies an idle signal seen before the wait
// starts is not lost
func TestIdleTracker_EarlyEvent(t *testing.T) {
	tracker := newIdleTracker()
	tracker.observe(lifecycle(lifecycleNetworkAlmostIdle, "main", "nav-loader"))
	tracker.observe(lifecycle(lifecycleNetworkAlmostIdle, "main", "other-loader"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tracker.wait(ctx, "main", "nav-loader"))
}

// TestChromeRenderer_Render verifies a rendered page includes content added
// by script once the wait selector appears
func TestChromeRenderer_Render(t *testing.T) {
	renderer := createTestRenderer(t, 20*time.Second)
	server := createTestPageServer(t)

	html, err := renderer.Render(context.Background(), server.URL, "#late.loaded .event")
	require.NoError(t, err)

	evs, err := ExtractHTML(html, scraper.SelectorConfig{
		ContainerSelector:   ".event",
		TitleSelector:       ".title",
		DescriptionSelector: ".desc",
		DateSelector:        ".date",
		BaseURL:             server.URL,
	})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "Robotics Workshop", evs[0].Title)
	assert.Equal(t, "Spring Hackathon", evs[1].Title)
}

// TestChromeRenderer_MissingSelector verifies a selector that never
// appears fails once the wait timeout elapses
func TestChromeRenderer_MissingSelector(t *testing.T) {
	waitTimeout := 2 * time.Second
	renderer := createTestRenderer(t, waitTimeout)
	server := createTestPageServer(t)

	start := time.Now()
	_, err := renderer.Render(context.Background(), server.URL, ".never-rendered")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed, waitTimeout)
	// Allow for browser start-up on top of the wait itself
	assert.Less(t, elapsed, waitTimeout+15*time.Second)
}

// TestChromeRenderer_Unreachable verifies a refused connection is reported
// as a navigation failure
func TestChromeRenderer_Unreachable(t *testing.T) {
	renderer := createTestRenderer(t, 5*time.Second)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = renderer.Render(context.Background(), "http://"+addr+"/endeavour", ".event")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to navigate")
}

// TestChromeRenderer_CancelledContext verifies a cancelled caller context
// stops the render and releases the browser
func TestChromeRenderer_CancelledContext(t *testing.T) {
	renderer := createTestRenderer(t, 5*time.Second)
	server := createTestPageServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := renderer.Render(ctx, server.URL, ".event")
	assert.Error(t, err)

	// A fresh render still works after the failed one
	html, err := renderer.Render(context.Background(), server.URL, ".event")
	require.NoError(t, err)
	assert.Contains(t, html, "Robotics Workshop")
}
