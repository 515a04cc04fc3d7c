package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Queue Entry Methods
// -----------------------------------------------------------------------------

// queueEntryColumns is the column list shared by all queue entry queries
const queueEntryColumns = `id, title, body, tags, post_type, prior_post_id, status,
	        retry_count, failure_log, external_id, created_at, published_at`

func scanQueueEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	var tagsJSON, failuresJSON []byte

	err := row.Scan(&e.ID, &e.Title, &e.Body, &tagsJSON, &e.PostType, &e.PriorPostID,
		&e.Status, &e.RetryCount, &failuresJSON, &e.ExternalID, &e.CreatedAt, &e.PublishedAt)
	if err != nil {
		return nil, err
	}

	if tagsJSON != nil {
		_ = json.Unmarshal(tagsJSON, &e.Tags)
	}
	if failuresJSON != nil {
		_ = json.Unmarshal(failuresJSON, &e.FailureLog)
	}
	return &e, nil
}

// InsertQueueEntry creates a new pending queue entry
func (db *DB) InsertQueueEntry(ctx context.Context, input *QueueEntryInput) (*QueueEntry, error) {
	tagsJSON, err := json.Marshal(input.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	postType := input.PostType
	if postType == "" {
		postType = PostTypeNew
	}

	entry, err := scanQueueEntry(db.pool.QueryRow(ctx,
		`INSERT INTO queue_entries (title, body, tags, post_type, prior_post_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+queueEntryColumns,
		input.Title, input.Body, tagsJSON, postType, input.PriorPostID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return entry, nil
}

// NextPendingEntry returns the oldest pending entry by creation time, or nil
// when the queue is drained. The caller serializes execution; there is no
// concurrent dispatch, so no row locking is needed here.
func (db *DB) NextPendingEntry(ctx context.Context) (*QueueEntry, error) {
	entry, err := scanQueueEntry(db.pool.QueryRow(ctx,
		`SELECT `+queueEntryColumns+`
		 FROM queue_entries
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT 1`,
		EntryStatusPending,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get next pending entry: %w", err)
	}
	return entry, nil
}

// GetQueueEntry retrieves a queue entry by ID
func (db *DB) GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	entry, err := scanQueueEntry(db.pool.QueryRow(ctx,
		`SELECT `+queueEntryColumns+` FROM queue_entries WHERE id = $1`,
		id,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return entry, nil
}

// MarkEntryPublished transitions a pending entry to published. The status
// guard in the WHERE clause keeps terminal states from being re-entered.
func (db *DB) MarkEntryPublished(ctx context.Context, id uuid.UUID, externalID *string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE queue_entries
		 SET status = $1, external_id = $2, published_at = NOW()
		 WHERE id = $3 AND status = $4`,
		EntryStatusPublished, externalID, id, EntryStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark entry published: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("entry %s is not pending", id)
	}
	return nil
}

// RecordEntryFailure increments the retry count and appends a failure record.
// When the new retry count reaches maxRetries the entry becomes failed
// (terminal); otherwise it stays pending for the next drain.
func (db *DB) RecordEntryFailure(ctx context.Context, id uuid.UUID, failureMsg string, maxRetries int) (*QueueEntry, error) {
	entry, err := db.GetQueueEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("queue entry not found: %s", id)
	}
	if entry.IsTerminal() {
		return nil, fmt.Errorf("entry %s is already %s", id, entry.Status)
	}

	failure := EntryFailure{
		Attempt: entry.RetryCount + 1,
		Error:   failureMsg,
		At:      time.Now(),
	}
	failureJSON, err := json.Marshal(failure)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal failure record: %w", err)
	}

	newStatus := EntryStatusPending
	if entry.RetryCount+1 >= maxRetries {
		newStatus = EntryStatusFailed
	}

	updated, err := scanQueueEntry(db.pool.QueryRow(ctx,
		`UPDATE queue_entries
		 SET status = $1, retry_count = retry_count + 1,
		     failure_log = failure_log || $2::jsonb
		 WHERE id = $3 AND status = $4
		 RETURNING `+queueEntryColumns,
		newStatus, failureJSON, id, EntryStatusPending,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("entry %s is not pending", id)
		}
		return nil, fmt.Errorf("failed to record entry failure: %w", err)
	}
	return updated, nil
}

// LatestPublishedSince returns the most recently published entry with a
// publish time at or after cutoff, or nil. Used to decide whether a new
// entry should be a revision of a prior post.
func (db *DB) LatestPublishedSince(ctx context.Context, cutoff time.Time) (*QueueEntry, error) {
	entry, err := scanQueueEntry(db.pool.QueryRow(ctx,
		`SELECT `+queueEntryColumns+`
		 FROM queue_entries
		 WHERE status = $1 AND published_at >= $2
		 ORDER BY published_at DESC
		 LIMIT 1`,
		EntryStatusPublished, cutoff,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest published entry: %w", err)
	}
	return entry, nil
}

// CountEntriesByStatus counts queue entries in the given status
func (db *DB) CountEntriesByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE status = $1`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

// ListQueueEntries retrieves queue entries, newest first, optionally filtered
// by status. Used by the queue CLI command.
func (db *DB) ListQueueEntries(ctx context.Context, status string, limit int) ([]QueueEntry, error) {
	if limit == 0 {
		limit = 50
	}

	query := `SELECT ` + queueEntryColumns + ` FROM queue_entries WHERE 1=1`
	args := []any{}
	argNum := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, status)
		argNum++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}
