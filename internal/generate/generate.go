// Package generate turns classified deal groups into a publishable article
// bundle. A malformed or too-short model response never stalls the run: a
// deterministic local fallback bundle is synthesized instead.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/price-publisher/internal/classify"
	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/llm"
	"github.com/jonathan/price-publisher/internal/prompts"
	"github.com/jonathan/price-publisher/internal/schemas"
)

// MinBodyLength is the shortest model-produced body accepted before the
// fallback kicks in.
const MinBodyLength = 300

// Bundle is the generated article content handed to the work queue
type Bundle struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
	// Fallback marks bundles synthesized locally after a malformed response
	Fallback bool `json:"-"`
}

// Generator produces article bundles from classified groups
type Generator struct {
	client llm.Client
	now    func() time.Time
}

// New creates a generator
func New(client llm.Client) *Generator {
	return &Generator{client: client, now: time.Now}
}

// Generate asks the model for an article over the classified groups. On a
// call error, malformed output, or a body below MinBodyLength it logs the
// problem and returns the deterministic fallback bundle; it never returns an
// error the caller has to branch on.
func (g *Generator) Generate(ctx context.Context, groups classify.Groups, listings []db.Listing) *Bundle {
	byFingerprint := make(map[string]db.Listing, len(listings))
	for _, l := range listings {
		byFingerprint[l.Fingerprint] = l
	}

	bundle, err := g.generateWithModel(ctx, groups)
	if err != nil {
		log.Printf("[GENERATE] Falling back to local bundle: %v", err)
		return FallbackBundle(groups, byFingerprint, g.now())
	}
	return bundle
}

func (g *Generator) generateWithModel(ctx context.Context, groups classify.Groups) (*Bundle, error) {
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal groups: %w", err)
	}

	template := prompts.MustGet("generate.json", "deal-roundup")
	prompt := prompts.Format(template, map[string]string{
		"Groups": string(groupsJSON),
	})

	responseText, err := g.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("failed to generate article: %w", err)
	}

	cleaned := llm.CleanJSONBlock(responseText)
	if err := schemas.Validate(schemas.ArticleBundle, []byte(cleaned)); err != nil {
		return nil, fmt.Errorf("malformed generation output: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal([]byte(cleaned), &bundle); err != nil {
		return nil, fmt.Errorf("malformed generation output: %w", err)
	}

	if len(bundle.Body) < MinBodyLength {
		return nil, fmt.Errorf("generated body too short: %d chars", len(bundle.Body))
	}

	return &bundle, nil
}

// FallbackBundle builds a plain listing-table article from the data alone.
// Output is deterministic for a given input: categories and members are
// sorted, and only the date comes from the clock.
func FallbackBundle(groups classify.Groups, byFingerprint map[string]db.Listing, now time.Time) *Bundle {
	categories := make([]string, 0, len(groups))
	for category := range groups {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var sb strings.Builder
	sb.WriteString("Today's tracked deals, straight from the data:\n")
	for _, category := range categories {
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", capitalize(category)))

		members := make([]string, len(groups[category]))
		copy(members, groups[category])
		sort.Strings(members)

		for _, fp := range members {
			l, ok := byFingerprint[fp]
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("- **%s**: %d.%02d %s (%s)\n",
				l.Name, l.PriceCents/100, l.PriceCents%100, l.Currency, l.Source))
		}
	}

	return &Bundle{
		Title:    fmt.Sprintf("Deal round-up for %s", now.Format("January 2, 2006")),
		Body:     sb.String(),
		Tags:     []string{"deals", "price-tracking", "roundup"},
		Fallback: true,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
