package db

import (
	"time"

	"github.com/google/uuid"
)

// Queue entry status constants. Published and failed are terminal.
const (
	EntryStatusPending   = "pending"
	EntryStatusPublished = "published"
	EntryStatusFailed    = "failed"
)

// Post type constants for queue entries
const (
	PostTypeNew      = "new_post"
	PostTypeRevision = "revision"
)

// QueueEntry is a deferred publish job. Rows are never deleted; the failure
// log accumulates one record per failed attempt as an audit trail.
type QueueEntry struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Tags        []string       `json:"tags"`
	PostType    string         `json:"post_type"`
	PriorPostID *string        `json:"prior_post_id,omitempty"`
	Status      string         `json:"status"`
	RetryCount  int            `json:"retry_count"`
	FailureLog  []EntryFailure `json:"failure_log,omitempty"`
	ExternalID  *string        `json:"external_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// EntryFailure is one failed publish attempt recorded in the failure log
type EntryFailure struct {
	Attempt int       `json:"attempt"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// QueueEntryInput holds the fields for a new queue entry
type QueueEntryInput struct {
	Title       string
	Body        string
	Tags        []string
	PostType    string
	PriorPostID *string
}

// IsTerminal reports whether the entry has reached a terminal status
func (e *QueueEntry) IsTerminal() bool {
	return e.Status == EntryStatusPublished || e.Status == EntryStatusFailed
}
