// Package classify groups gated listings into deal categories with the
// generation provider. Listings go out in bounded chunks, paced to respect
// the provider's rate limit; a malformed response fails only its own chunk.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/llm"
	"github.com/jonathan/price-publisher/internal/prompts"
	"github.com/jonathan/price-publisher/internal/ratelimit"
	"github.com/jonathan/price-publisher/internal/schemas"
)

// DefaultChunkSize bounds how many listings go into one classification call
const DefaultChunkSize = 25

// MaxPerGroup bounds how many listings one category may hold
const MaxPerGroup = 20

// Groups maps a category label to the fingerprints of its member listings
type Groups map[string][]string

// ChunkError represents a failure classifying one chunk
type ChunkError struct {
	Chunk int
	Cause error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("classification chunk %d failed: %v", e.Chunk, e.Cause)
}

func (e *ChunkError) Unwrap() error {
	return e.Cause
}

// Classifier groups listings by category using the LLM client
type Classifier struct {
	client    llm.Client
	pacer     ratelimit.Pacer
	chunkSize int
}

// New creates a classifier. pacer spaces the per-chunk calls; pass
// ratelimit.Unlimited{} to disable pacing.
func New(client llm.Client, pacer ratelimit.Pacer) *Classifier {
	return &Classifier{client: client, pacer: pacer, chunkSize: DefaultChunkSize}
}

// Classify maps listings to categories. Chunks that fail (call error,
// malformed output, schema violation) are logged and skipped; the merged
// groups of the surviving chunks are returned together with the per-chunk
// errors. Fingerprints the model invents are dropped.
func (c *Classifier) Classify(ctx context.Context, listings []db.Listing) (Groups, []ChunkError) {
	merged := Groups{}
	var failures []ChunkError

	for chunkIdx := 0; chunkIdx*c.chunkSize < len(listings); chunkIdx++ {
		start := chunkIdx * c.chunkSize
		end := min(start+c.chunkSize, len(listings))
		chunk := listings[start:end]

		if err := c.pacer.Wait(ctx); err != nil {
			failures = append(failures, ChunkError{Chunk: chunkIdx, Cause: err})
			break
		}

		groups, err := c.classifyChunk(ctx, chunk)
		if err != nil {
			log.Printf("[CLASSIFY] Chunk %d failed: %v", chunkIdx, err)
			failures = append(failures, ChunkError{Chunk: chunkIdx, Cause: err})
			continue
		}

		for category, members := range groups {
			merged[category] = append(merged[category], members...)
		}
	}

	return merged, failures
}

func (c *Classifier) classifyChunk(ctx context.Context, chunk []db.Listing) (Groups, error) {
	prompt := buildClassifyPrompt(chunk)

	responseText, err := c.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("failed to generate classification: %w", err)
	}

	return parseClassifyResponse(responseText, chunk)
}

func buildClassifyPrompt(chunk []db.Listing) string {
	var lines []string
	for _, l := range chunk {
		lines = append(lines, fmt.Sprintf("%s | %s | %d.%02d %s",
			l.Fingerprint, l.Name, l.PriceCents/100, l.PriceCents%100, l.Currency))
	}

	template := prompts.MustGet("classify.json", "classify-listings")
	return prompts.Format(template, map[string]string{
		"Listings":    strings.Join(lines, "\n"),
		"MaxPerGroup": fmt.Sprintf("%d", MaxPerGroup),
	})
}

// parseClassifyResponse validates the model output against the strict schema
// and keeps only fingerprints that were actually in the chunk. Any parse or
// shape failure is the single "malformed output" error kind.
func parseClassifyResponse(responseText string, chunk []db.Listing) (Groups, error) {
	cleaned := llm.CleanJSONBlock(responseText)

	if err := schemas.Validate(schemas.ClassifiedGroups, []byte(cleaned)); err != nil {
		return nil, fmt.Errorf("malformed classification output: %w", err)
	}

	var payload struct {
		Groups Groups `json:"groups"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("malformed classification output: %w", err)
	}

	known := make(map[string]bool, len(chunk))
	for _, l := range chunk {
		known[l.Fingerprint] = true
	}

	result := Groups{}
	for category, members := range payload.Groups {
		for _, fp := range members {
			if !known[fp] {
				log.Printf("[CLASSIFY] Dropping unknown fingerprint %s in category %s", fp, category)
				continue
			}
			result[category] = append(result[category], fp)
		}
	}

	return result, nil
}
