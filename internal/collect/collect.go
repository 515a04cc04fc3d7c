// Package collect implements the source connector: it fetches configured
// listing pages and extracts normalized product records. A failing source is
// logged and skipped; one bad storefront never aborts a collection pass.
package collect

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/fetch"
)

// Source describes one listing page and the selectors to extract rows from it
type Source struct {
	Name          string            `json:"name" validate:"required"`
	URL           string            `json:"url" validate:"required,url"`
	ItemSelector  string            `json:"item_selector" validate:"required"`
	NameSelector  string            `json:"name_selector" validate:"required"`
	PriceSelector string            `json:"price_selector" validate:"required"`
	LinkSelector  string            `json:"link_selector,omitempty"`
	Currency      string            `json:"currency,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"` // attribute name -> selector
}

// SourceError records a source that failed during a collection pass
type SourceError struct {
	Source string
	Cause  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s failed: %v", e.Source, e.Cause)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Collector fetches and extracts records from all configured sources
type Collector struct {
	sources    []Source
	useBrowser bool
	verbose    bool
}

// NewCollector creates a collector over the given sources
func NewCollector(sources []Source, useBrowser, verbose bool) *Collector {
	return &Collector{sources: sources, useBrowser: useBrowser, verbose: verbose}
}

// Collect runs one collection pass over all sources. It returns every record
// it could extract plus the per-source errors; the error list is advisory,
// never fatal to the pass.
func (c *Collector) Collect(ctx context.Context) ([]db.ListingInput, []SourceError) {
	var records []db.ListingInput
	var failures []SourceError

	for _, src := range c.sources {
		recs, err := c.collectSource(ctx, src)
		if err != nil {
			log.Printf("[COLLECT] Source %s failed: %v", src.Name, err)
			failures = append(failures, SourceError{Source: src.Name, Cause: err})
			continue
		}
		if c.verbose {
			log.Printf("[COLLECT] Source %s: %d records", src.Name, len(recs))
		}
		records = append(records, recs...)
	}

	return records, failures
}

func (c *Collector) collectSource(ctx context.Context, src Source) ([]db.ListingInput, error) {
	result, err := fetch.URL(ctx, src.URL, nil)
	if err != nil {
		return nil, err
	}

	html := result.HTML
	if c.useBrowser && fetch.ShouldUseBrowser(html) {
		html, err = fetch.RenderPage(ctx, src.URL, fetch.DefaultTimeout, c.verbose)
		if err != nil {
			return nil, err
		}
	}

	return ExtractListings(html, src)
}

// ExtractListings parses listing rows out of a fetched page using the
// source's selectors. Rows missing a name or an unparseable price are
// skipped individually.
func ExtractListings(html string, src Source) ([]db.ListingInput, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	currency := src.Currency
	if currency == "" {
		currency = "USD"
	}

	var records []db.ListingInput
	doc.Find(src.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find(src.NameSelector).First().Text())
		if name == "" {
			return
		}

		priceText := strings.TrimSpace(sel.Find(src.PriceSelector).First().Text())
		priceCents, err := ParsePriceCents(priceText)
		if err != nil {
			log.Printf("[COLLECT] Skipping %q from %s: %v", name, src.Name, err)
			return
		}

		record := db.ListingInput{
			Source:     src.Name,
			Name:       name,
			PriceCents: priceCents,
			Currency:   currency,
		}

		if src.LinkSelector != "" {
			if href, ok := sel.Find(src.LinkSelector).First().Attr("href"); ok {
				record.URL = resolveHref(src.URL, href)
			}
		}

		if len(src.Attributes) > 0 {
			record.Attributes = make(map[string]string, len(src.Attributes))
			for attr, attrSel := range src.Attributes {
				if v := strings.TrimSpace(sel.Find(attrSel).First().Text()); v != "" {
					record.Attributes[attr] = v
				}
			}
		}

		records = append(records, record)
	})

	return records, nil
}

func resolveHref(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasPrefix(href, "/") {
		// Keep scheme://host only
		if idx := strings.Index(base, "://"); idx >= 0 {
			if slash := strings.Index(base[idx+3:], "/"); slash >= 0 {
				base = base[:idx+3+slash]
			}
		}
	}
	return base + "/" + strings.TrimPrefix(href, "/")
}
