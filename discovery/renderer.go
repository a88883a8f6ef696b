package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// lifecycleNetworkAlmostIdle fires once a frame has had no more than two
// in-flight requests for 500ms.
const lifecycleNetworkAlmostIdle = "networkAlmostIdle"

// Renderer loads a page and returns its HTML once waitSelector is present
// in the DOM.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitSelector string) (string, error)
}

// RendererConfig holds configuration for the headless Chrome renderer.
type RendererConfig struct {
	// User-Agent header sent by the browser (empty keeps Chrome's own)
	UserAgent string
	// Maximum time to wait for the network to settle and the wait selector
	// to appear, measured from the end of navigation
	WaitTimeout time.Duration
	// Path to the Chrome binary (empty lets chromedp search for one)
	ExecPath string
	// Run Chrome without a window
	Headless bool
	// Logger for chromedp's own messages (nil discards them)
	Logf func(string, ...any)
}

// DefaultRendererConfig returns the default renderer configuration.
func DefaultRendererConfig() RendererConfig {
	return RendererConfig{
		WaitTimeout: 30 * time.Second,
		Headless:    true,
	}
}

// ChromeRenderer renders pages with a headless Chrome driven by chromedp.
// Every Render call launches its own browser and tears it down before
// returning, so concurrent renders share nothing.
type ChromeRenderer struct {
	config RendererConfig
}

// NewChromeRenderer creates a renderer with the given configuration.
func NewChromeRenderer(config RendererConfig) *ChromeRenderer {
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = DefaultRendererConfig().WaitTimeout
	}
	return &ChromeRenderer{config: config}
}

// allocatorOptions builds the Chrome command-line options.
func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", r.config.Headless))

	if r.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.config.UserAgent))
	}
	if r.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.config.ExecPath))
	}

	return opts
}

func (r *ChromeRenderer) logf(format string, args ...any) {
	if r.config.Logf != nil {
		r.config.Logf(format, args...)
	}
}

// idleTracker records the frames and loaders that reached network idle.
type idleTracker struct {
	mu     sync.Mutex
	seen   map[cdp.LoaderID]cdp.FrameID
	notify chan struct{}
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		seen:   make(map[cdp.LoaderID]cdp.FrameID),
		notify: make(chan struct{}, 1),
	}
}

func (t *idleTracker) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != lifecycleNetworkAlmostIdle || e.LoaderID == "" {
		return
	}

	t.mu.Lock()
	t.seen[e.LoaderID] = e.FrameID
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *idleTracker) idle(frameID cdp.FrameID, loaderID cdp.LoaderID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	seenFrame, ok := t.seen[loaderID]
	return ok && seenFrame == frameID
}

// wait blocks until the given navigation of the main frame is idle.
func (t *idleTracker) wait(ctx context.Context, frameID cdp.FrameID, loaderID cdp.LoaderID) error {
	for !t.idle(frameID, loaderID) {
		select {
		case <-t.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Render navigates to pageURL, waits for the network to settle and for
// waitSelector to appear, then returns the document's outer HTML. The
// browser is closed on every return path.
func (r *ChromeRenderer) Render(ctx context.Context, pageURL, waitSelector string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(r.logf))
	defer cancelBrowser()

	tracker := newIdleTracker()
	chromedp.ListenTarget(browserCtx, tracker.observe)

	// Only the idle signal of this navigation's loader in the main frame
	// counts; about:blank replays and iframes carry other IDs
	var frameID cdp.FrameID
	var loaderID cdp.LoaderID
	err := chromedp.Run(browserCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var errorText string
			var err error
			frameID, loaderID, errorText, _, err = page.Navigate(pageURL).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("page load error %s", errorText)
			}
			return nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}

	waitCtx, cancelWait := context.WithTimeout(browserCtx, r.config.WaitTimeout)
	defer cancelWait()

	if err := tracker.wait(waitCtx, frameID, loaderID); err != nil {
		return "", fmt.Errorf("network did not settle: %w", err)
	}

	var html string
	err = chromedp.Run(waitCtx,
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed waiting for selector %q: %w", waitSelector, err)
	}

	return html, nil
}
