package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters: one panel's worth of viewport.
const (
	DefaultWidth      = 240
	DefaultHeight     = 240
	DefaultTimeoutSec = 30
)

// ErrNoURL is returned when Options.URL is empty.
var ErrNoURL = errors.New("capture: URL is required")

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:3000/dashboard".
	URL string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// WaitSelector, if set, must be visible before the screenshot is taken.
	WaitSelector string

	// Timeout bounds the entire capture operation. If zero, a sane default
	// (DefaultTimeoutSec) is used.
	Timeout time.Duration

	// OutputPath, if set, also receives a copy of the PNG.
	OutputPath string
}

// withDefaults validates opts and fills in zero values.
func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, ErrNoURL
	}
	if o.Width < 0 || o.Height < 0 {
		return o, fmt.Errorf("capture: invalid viewport %dx%d", o.Width, o.Height)
	}
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Height == 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return o, nil
}

// Screenshot launches a headless Chromium instance via chromedp, navigates
// to opts.URL, optionally waits for opts.WaitSelector, and returns a PNG of
// the viewport.
func Screenshot(parentCtx context.Context, opts Options) ([]byte, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.WindowSize(opts.Width, opts.Height),
		)...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
	}
	if opts.WaitSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
	}
	tasks = append(tasks,
		// Small extra delay to allow final paints.
		chromedp.Sleep(250*time.Millisecond),
		chromedp.CaptureScreenshot(&png),
	)

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
			return png, fmt.Errorf("capture: failed to write PNG: %w", err)
		}
	}
	return png, nil
}
