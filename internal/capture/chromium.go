package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters for the month calendar snapshot.
const (
	DefaultWidth      = 1200
	DefaultHeight     = 900
	DefaultTimeoutSec = 30
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar?view=month".
	URL string

	// OutputPath is where the PNG is written. The file is replaced
	// atomically so /preview.png never serves a partial image.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation. If zero, a sane default
	// (DefaultTimeoutSec) is used.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// CalendarURL is the month calendar served on listen. A wildcard host is
// replaced by loopback.
func CalendarURL(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("capture: listen address %q: %w", listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(host, port),
		Path:     "/calendar",
		RawQuery: "view=month",
	}
	return u.String(), nil
}

// CaptureCalendarPNG launches a headless Chromium instance via chromedp,
// navigates to opts.URL, waits for the page to signal that rendering is
// complete and then captures a full-page PNG.
//
// Rendering-complete condition:
//   - The /calendar root element exposes a data-ready attribute:
//     <div data-ready="true" ...>
//   - This function will wait until `[data-ready="true"]` is visible before
//     taking the screenshot.
func CaptureCalendarPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return writeAtomic(opts.OutputPath, png)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.png")
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return os.Rename(tmpName, path)
}
