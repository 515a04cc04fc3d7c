// Package queue implements the durable publish queue's state machine on top
// of the store: pending entries either publish, retry with a bounded count,
// or end up failed for manual intervention.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/price-publisher/internal/db"
)

// DefaultMaxRetries is how many failed attempts a queue entry gets before it
// becomes terminally failed.
const DefaultMaxRetries = 3

// DefaultRevisionWindow is the aggregation period within which a new entry
// revises the prior published post instead of creating a fresh one.
const DefaultRevisionWindow = 24 * time.Hour

// EntryStore is the slice of the store the queue needs
type EntryStore interface {
	InsertQueueEntry(ctx context.Context, input *db.QueueEntryInput) (*db.QueueEntry, error)
	NextPendingEntry(ctx context.Context) (*db.QueueEntry, error)
	MarkEntryPublished(ctx context.Context, id uuid.UUID, externalID *string) error
	RecordEntryFailure(ctx context.Context, id uuid.UUID, failureMsg string, maxRetries int) (*db.QueueEntry, error)
	LatestPublishedSince(ctx context.Context, cutoff time.Time) (*db.QueueEntry, error)
	CountEntriesByStatus(ctx context.Context, status string) (int, error)
}

// Job is the content of a publish job before it is enqueued
type Job struct {
	Title string
	Body  string
	Tags  []string
}

// Outcome reports one publish attempt to RecordOutcome
type Outcome struct {
	Published  bool
	ExternalID string
	Err        error
}

// Queue manages the lifecycle of deferred publish jobs
type Queue struct {
	store          EntryStore
	maxRetries     int
	revisionWindow time.Duration
	now            func() time.Time
}

// New creates a queue with default retry and revision policies
func New(store EntryStore) *Queue {
	return &Queue{
		store:          store,
		maxRetries:     DefaultMaxRetries,
		revisionWindow: DefaultRevisionWindow,
		now:            time.Now,
	}
}

// Enqueue inserts a pending entry. When a successfully published entry with
// an external id exists inside the revision window, the new entry becomes a
// revision referencing it; otherwise it is a new post.
func (q *Queue) Enqueue(ctx context.Context, job Job) (*db.QueueEntry, error) {
	input := &db.QueueEntryInput{
		Title:    job.Title,
		Body:     job.Body,
		Tags:     job.Tags,
		PostType: db.PostTypeNew,
	}

	prior, err := q.store.LatestPublishedSince(ctx, q.now().Add(-q.revisionWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to check for prior publish: %w", err)
	}
	if prior != nil && prior.ExternalID != nil {
		input.PostType = db.PostTypeRevision
		input.PriorPostID = prior.ExternalID
	}

	return q.store.InsertQueueEntry(ctx, input)
}

// DequeueNext returns the oldest pending entry, or nil when drained
func (q *Queue) DequeueNext(ctx context.Context) (*db.QueueEntry, error) {
	return q.store.NextPendingEntry(ctx)
}

// PendingCount reports how many entries are still waiting to publish
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.CountEntriesByStatus(ctx, db.EntryStatusPending)
}

// RecordOutcome applies one publish attempt's result to an entry. Success is
// terminal. Failure increments the retry count; the entry stays pending
// until it has failed maxRetries times, then becomes terminally failed.
func (q *Queue) RecordOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	if outcome.Published {
		var externalID *string
		if outcome.ExternalID != "" {
			externalID = &outcome.ExternalID
		}
		return q.store.MarkEntryPublished(ctx, id, externalID)
	}

	msg := "publish failed"
	if outcome.Err != nil {
		msg = outcome.Err.Error()
	}
	_, err := q.store.RecordEntryFailure(ctx, id, msg, q.maxRetries)
	return err
}
