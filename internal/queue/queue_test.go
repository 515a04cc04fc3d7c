package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/price-publisher/internal/db"
)

// fakeEntryStore implements the queue state machine in memory, in insertion
// order, mirroring the real store's status transitions.
type fakeEntryStore struct {
	entries []*db.QueueEntry
	now     time.Time
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeEntryStore) InsertQueueEntry(_ context.Context, input *db.QueueEntryInput) (*db.QueueEntry, error) {
	e := &db.QueueEntry{
		ID:          uuid.New(),
		Title:       input.Title,
		Body:        input.Body,
		Tags:        input.Tags,
		PostType:    input.PostType,
		PriorPostID: input.PriorPostID,
		Status:      db.EntryStatusPending,
		CreatedAt:   f.now,
	}
	f.now = f.now.Add(time.Second)
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeEntryStore) NextPendingEntry(_ context.Context) (*db.QueueEntry, error) {
	for _, e := range f.entries {
		if e.Status == db.EntryStatusPending {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeEntryStore) MarkEntryPublished(_ context.Context, id uuid.UUID, externalID *string) error {
	for _, e := range f.entries {
		if e.ID == id {
			if e.Status != db.EntryStatusPending {
				return errors.New("entry is not pending")
			}
			e.Status = db.EntryStatusPublished
			e.ExternalID = externalID
			at := f.now
			e.PublishedAt = &at
			return nil
		}
	}
	return errors.New("entry not found")
}

func (f *fakeEntryStore) RecordEntryFailure(_ context.Context, id uuid.UUID, failureMsg string, maxRetries int) (*db.QueueEntry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			if e.Status != db.EntryStatusPending {
				return nil, errors.New("entry is not pending")
			}
			e.RetryCount++
			e.FailureLog = append(e.FailureLog, db.EntryFailure{
				Attempt: e.RetryCount, Error: failureMsg, At: f.now,
			})
			if e.RetryCount >= maxRetries {
				e.Status = db.EntryStatusFailed
			}
			return e, nil
		}
	}
	return nil, errors.New("entry not found")
}

func (f *fakeEntryStore) LatestPublishedSince(_ context.Context, cutoff time.Time) (*db.QueueEntry, error) {
	var latest *db.QueueEntry
	for _, e := range f.entries {
		if e.Status != db.EntryStatusPublished || e.PublishedAt == nil || e.PublishedAt.Before(cutoff) {
			continue
		}
		if latest == nil || e.PublishedAt.After(*latest.PublishedAt) {
			latest = e
		}
	}
	return latest, nil
}

func (f *fakeEntryStore) CountEntriesByStatus(_ context.Context, status string) (int, error) {
	count := 0
	for _, e := range f.entries {
		if e.Status == status {
			count++
		}
	}
	return count, nil
}

func TestEnqueueFirstPostIsNew(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)

	entry, err := q.Enqueue(context.Background(), Job{Title: "Round-up", Body: "body", Tags: []string{"deals"}})
	require.NoError(t, err)

	assert.Equal(t, db.PostTypeNew, entry.PostType)
	assert.Nil(t, entry.PriorPostID)
	assert.Equal(t, db.EntryStatusPending, entry.Status)
}

func TestEnqueueRevisesRecentPublish(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	q.now = func() time.Time { return store.now }
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Job{Title: "Round-up"})
	require.NoError(t, err)
	require.NoError(t, q.RecordOutcome(ctx, first.ID, Outcome{Published: true, ExternalID: "post-42"}))

	second, err := q.Enqueue(ctx, Job{Title: "Round-up update"})
	require.NoError(t, err)

	assert.Equal(t, db.PostTypeRevision, second.PostType)
	require.NotNil(t, second.PriorPostID)
	assert.Equal(t, "post-42", *second.PriorPostID)
}

func TestEnqueueNewPostOutsideRevisionWindow(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Job{Title: "Round-up"})
	require.NoError(t, err)
	require.NoError(t, q.RecordOutcome(ctx, first.ID, Outcome{Published: true, ExternalID: "post-42"}))

	// The next enqueue happens well past the revision window.
	q.now = func() time.Time { return store.now.Add(DefaultRevisionWindow + time.Hour) }

	second, err := q.Enqueue(ctx, Job{Title: "Round-up"})
	require.NoError(t, err)
	assert.Equal(t, db.PostTypeNew, second.PostType)
	assert.Nil(t, second.PriorPostID)
}

func TestEnqueueIgnoresPublishedEntryWithoutExternalID(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Job{Title: "Round-up"})
	require.NoError(t, err)
	require.NoError(t, q.RecordOutcome(ctx, first.ID, Outcome{Published: true}))

	second, err := q.Enqueue(ctx, Job{Title: "Round-up"})
	require.NoError(t, err)
	assert.Equal(t, db.PostTypeNew, second.PostType)
}

func TestDequeueNextIsFIFO(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Job{Title: "first"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Job{Title: "second"})
	require.NoError(t, err)

	next, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)

	// A failed attempt keeps the oldest entry at the head.
	require.NoError(t, q.RecordOutcome(ctx, first.ID, Outcome{Err: errors.New("timeout")}))
	next, err = q.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID, "failed entry stays at the head until terminal")
}

func TestRecordOutcomeRetriesThenFails(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	ctx := context.Background()

	entry, err := q.Enqueue(ctx, Job{Title: "doomed"})
	require.NoError(t, err)

	for attempt := 1; attempt < DefaultMaxRetries; attempt++ {
		require.NoError(t, q.RecordOutcome(ctx, entry.ID, Outcome{Err: errors.New("timeout")}))
		assert.Equal(t, db.EntryStatusPending, entry.Status, "attempt %d should keep the entry pending", attempt)
		assert.Equal(t, attempt, entry.RetryCount)
	}

	require.NoError(t, q.RecordOutcome(ctx, entry.ID, Outcome{Err: errors.New("timeout")}))
	assert.Equal(t, db.EntryStatusFailed, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.RetryCount)
	assert.Len(t, entry.FailureLog, DefaultMaxRetries)

	// Failed is terminal.
	next, err := q.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRecordOutcomeSuccessAfterFailures(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	ctx := context.Background()

	entry, err := q.Enqueue(ctx, Job{Title: "eventually"})
	require.NoError(t, err)

	require.NoError(t, q.RecordOutcome(ctx, entry.ID, Outcome{Err: errors.New("timeout")}))
	require.NoError(t, q.RecordOutcome(ctx, entry.ID, Outcome{Err: errors.New("timeout")}))
	require.NoError(t, q.RecordOutcome(ctx, entry.ID, Outcome{Published: true, ExternalID: "post-7"}))

	assert.Equal(t, db.EntryStatusPublished, entry.Status)
	assert.Equal(t, 2, entry.RetryCount, "retry count keeps the failed attempts")
	require.NotNil(t, entry.ExternalID)
	assert.Equal(t, "post-7", *entry.ExternalID)
}

func TestRecordOutcomeOnTerminalEntryErrors(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	ctx := context.Background()

	entry, err := q.Enqueue(ctx, Job{Title: "done"})
	require.NoError(t, err)
	require.NoError(t, q.RecordOutcome(ctx, entry.ID, Outcome{Published: true}))

	err = q.RecordOutcome(ctx, entry.ID, Outcome{Err: errors.New("late failure")})
	assert.Error(t, err, "terminal entries must reject further transitions")
	assert.Equal(t, db.EntryStatusPublished, entry.Status)
}

func TestPendingCount(t *testing.T) {
	store := newFakeEntryStore()
	q := New(store)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Job{Title: "a"})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, Job{Title: "b"})
	require.NoError(t, err)
	require.NoError(t, q.RecordOutcome(ctx, second.ID, Outcome{Published: true}))

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
