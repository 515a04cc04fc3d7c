// Package pipeline composes collection, deduplication, the change gate,
// generation, and the queue drain into one strictly sequential run, and owns
// the run-level error classification and bounded retry policy.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/price-publisher/internal/classify"
	"github.com/jonathan/price-publisher/internal/collect"
	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/gate"
	"github.com/jonathan/price-publisher/internal/generate"
	"github.com/jonathan/price-publisher/internal/ingest"
	"github.com/jonathan/price-publisher/internal/queue"
	"github.com/jonathan/price-publisher/internal/session"

	"github.com/google/uuid"
)

// Collaborator contracts. Production wiring passes the concrete components;
// tests substitute fakes.
type (
	// Collector runs one collection pass over all sources
	Collector interface {
		Collect(ctx context.Context) ([]db.ListingInput, []collect.SourceError)
	}

	// Deduplicator upserts collected records by content fingerprint
	Deduplicator interface {
		IngestBatch(ctx context.Context, records []db.ListingInput) ingest.Summary
	}

	// Selector provides the deterministic top-N selection for the gate
	Selector interface {
		TopListingsByPrice(ctx context.Context, n int) ([]db.Listing, error)
	}

	// ChangeGate decides whether downstream work should run
	ChangeGate interface {
		Evaluate(ctx context.Context, selection []db.Listing) (*gate.Result, error)
	}

	// Classifier groups listings into deal categories
	Classifier interface {
		Classify(ctx context.Context, listings []db.Listing) (classify.Groups, []classify.ChunkError)
	}

	// Generator produces an article bundle, falling back locally on bad output
	Generator interface {
		Generate(ctx context.Context, groups classify.Groups, listings []db.Listing) *generate.Bundle
	}

	// WorkQueue is the durable publish queue
	WorkQueue interface {
		Enqueue(ctx context.Context, job queue.Job) (*db.QueueEntry, error)
		DequeueNext(ctx context.Context) (*db.QueueEntry, error)
		RecordOutcome(ctx context.Context, id uuid.UUID, outcome queue.Outcome) error
		PendingCount(ctx context.Context) (int, error)
	}

	// Sessions runs an action under a valid CMS session
	Sessions interface {
		WithSession(ctx context.Context, action session.Action) error
	}

	// PublishAction performs the external create/edit operation
	PublishAction interface {
		Publish(ctx context.Context, state []byte, entry *db.QueueEntry) (string, error)
	}
)

// RunResult is the synchronous answer to a manual trigger and the unit of
// logging for scheduled runs.
type RunResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DurationMs int64  `json:"duration_ms"`

	Collected  int  `json:"collected"`
	Created    int  `json:"created"`
	Unchanged  int  `json:"unchanged"`
	GatePassed bool `json:"gate_passed"`
	Published  int  `json:"published"`
	Pending    int  `json:"pending"`

	// Transient marks failures classified as infrastructure contention,
	// eligible for the single delayed whole-run retry.
	Transient bool `json:"transient,omitempty"`
}

// Runner executes pipeline runs
type Runner struct {
	collector  Collector
	dedup      Deduplicator
	selector   Selector
	gate       ChangeGate
	classifier Classifier
	generator  Generator
	queue      WorkQueue
	sessions   Sessions
	publisher  PublishAction

	topN int
	now  func() time.Time
}

// Deps bundles the runner's collaborators
type Deps struct {
	Collector  Collector
	Dedup      Deduplicator
	Selector   Selector
	Gate       ChangeGate
	Classifier Classifier
	Generator  Generator
	Queue      WorkQueue
	Sessions   Sessions
	Publisher  PublishAction
	TopN       int
}

// NewRunner wires a runner from its collaborators
func NewRunner(deps Deps) *Runner {
	return &Runner{
		collector:  deps.Collector,
		dedup:      deps.Dedup,
		selector:   deps.Selector,
		gate:       deps.Gate,
		classifier: deps.Classifier,
		generator:  deps.Generator,
		queue:      deps.Queue,
		sessions:   deps.Sessions,
		publisher:  deps.Publisher,
		topN:       deps.TopN,
		now:        time.Now,
	}
}

// Run executes one full pipeline run and always returns a result, never
// panics or propagates an error: all failure detail lands in the result.
func (r *Runner) Run(ctx context.Context) *RunResult {
	start := r.now()
	result := &RunResult{}

	err := r.runStages(ctx, result)
	result.DurationMs = r.now().Sub(start).Milliseconds()

	if err != nil {
		result.Success = false
		result.Message = err.Error()
		result.Transient = IsTransient(err)
		log.Printf("[PIPELINE] Run failed after %dms (transient=%v): %v",
			result.DurationMs, result.Transient, err)
		return result
	}

	result.Success = true
	if result.Message == "" {
		result.Message = "run completed"
	}
	log.Printf("[PIPELINE] Run completed in %dms: %s", result.DurationMs, result.Message)
	return result
}

// runStages runs collect -> dedup -> gate -> classify+generate+enqueue ->
// drain, strictly in order. Item-level problems are logged and absorbed by
// the stage that saw them; only stage-level errors escalate here.
func (r *Runner) runStages(ctx context.Context, result *RunResult) error {
	// Stage 1: collect. Per-source failures are advisory.
	records, srcErrs := r.collector.Collect(ctx)
	result.Collected = len(records)
	for _, se := range srcErrs {
		log.Printf("[PIPELINE] Collection: %v", &se)
	}

	// Stage 2: deduplicate into the store.
	summary := r.dedup.IngestBatch(ctx, records)
	result.Created = summary.Created
	result.Unchanged = summary.Unchanged
	log.Printf("[PIPELINE] Ingested %d records: %d created, %d unchanged, %d failed",
		len(records), summary.Created, summary.Unchanged, summary.Failed)

	// Stage 3: gate on the top-N selection.
	selection, err := r.selector.TopListingsByPrice(ctx, r.topN)
	if err != nil {
		return fmt.Errorf("top selection failed: %w", err)
	}

	gateResult, err := r.gate.Evaluate(ctx, selection)
	if err != nil {
		return fmt.Errorf("gate evaluation failed: %w", err)
	}

	// Stage 4: only a changed selection buys classification and generation.
	if gateResult.ShouldProceed {
		result.GatePassed = true

		groups, chunkErrs := r.classifier.Classify(ctx, gateResult.Members)
		for i := range chunkErrs {
			log.Printf("[PIPELINE] Classification: %v", &chunkErrs[i])
		}

		if len(groups) == 0 {
			log.Printf("[PIPELINE] No classified groups survived, nothing to enqueue")
		} else {
			bundle := r.generator.Generate(ctx, groups, gateResult.Members)
			entry, err := r.queue.Enqueue(ctx, queue.Job{
				Title: bundle.Title,
				Body:  bundle.Body,
				Tags:  bundle.Tags,
			})
			if err != nil {
				return fmt.Errorf("enqueue failed: %w", err)
			}
			log.Printf("[PIPELINE] Enqueued %s entry %s (fallback=%v)",
				entry.PostType, entry.ID, bundle.Fallback)
		}
	} else {
		log.Printf("[PIPELINE] Gate skipped: selection unchanged")
	}

	// Stage 5: drain the queue regardless of the gate, so entries left over
	// from earlier failed runs still get published.
	published, pending, err := r.drainQueue(ctx)
	result.Published = published
	result.Pending = pending
	if err != nil {
		return fmt.Errorf("queue drain failed: %w", err)
	}

	result.Message = fmt.Sprintf("collected %d, created %d, published %d",
		result.Collected, result.Created, published)
	return nil
}

// drainQueue publishes pending entries oldest-first, one at a time. Each
// entry gets at most one attempt per run; an entry whose attempt fails stays
// pending (or goes failed on retry exhaustion) and, being the oldest, ends
// the drain so FIFO order is preserved for the next run.
func (r *Runner) drainQueue(ctx context.Context) (published, pending int, err error) {
	attempted := make(map[uuid.UUID]bool)

	for {
		entry, err := r.queue.DequeueNext(ctx)
		if err != nil {
			return published, pending, err
		}
		if entry == nil || attempted[entry.ID] {
			pending, err = r.queue.PendingCount(ctx)
			return published, pending, err
		}
		attempted[entry.ID] = true

		outcome := r.publishEntry(ctx, entry)
		if recErr := r.queue.RecordOutcome(ctx, entry.ID, outcome); recErr != nil {
			return published, pending, recErr
		}
		if outcome.Published {
			published++
		} else {
			log.Printf("[PIPELINE] Publish attempt for entry %s failed: %v", entry.ID, outcome.Err)
		}
	}
}

// publishEntry runs the external publish action under the session manager.
// Session and publish failures both come back as a failed outcome; the
// queue's bounded retry handles the rest.
func (r *Runner) publishEntry(ctx context.Context, entry *db.QueueEntry) queue.Outcome {
	var externalID string
	err := r.sessions.WithSession(ctx, func(ctx context.Context, state []byte) error {
		var pubErr error
		externalID, pubErr = r.publisher.Publish(ctx, state, entry)
		return pubErr
	})
	if err != nil {
		return queue.Outcome{Published: false, Err: err}
	}
	return queue.Outcome{Published: true, ExternalID: externalID}
}
