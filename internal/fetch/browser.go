// Package fetch - browser.go provides headless browser rendering for
// JavaScript-heavy storefronts that return empty listing markup over plain HTTP.
package fetch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinListingHTMLLength is the minimum HTML length to consider a plain HTTP
// fetch usable. Shorter responses are usually an empty SPA shell and warrant
// the browser fallback.
const MinListingHTMLLength = 2000

// ShouldUseBrowser returns true when the fetched HTML looks like an
// unrendered SPA shell.
func ShouldUseBrowser(html string) bool {
	return len(strings.TrimSpace(html)) < MinListingHTMLLength
}

// RenderPage loads a page in a headless browser and returns the rendered HTML.
// Requires Chrome/Chromium to be installed on the system.
func RenderPage(ctx context.Context, url string, timeout time.Duration, verbose bool) (string, error) {
	if verbose {
		log.Printf("[BROWSER] Rendering: %s", url)
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Give client-side rendering a moment to populate listings
		chromedp.Sleep(3*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	if verbose {
		log.Printf("[BROWSER] Rendered HTML: %d bytes", len(html))
	}

	return html, nil
}
