// Package ingest deduplicates freshly collected listings into the store.
// Identity is the content fingerprint over a listing's stable fields, so
// re-ingesting unchanged data is a no-op and a changed listing lands in a
// new content-addressed row.
package ingest

import (
	"context"
	"log"

	"github.com/jonathan/price-publisher/internal/db"
)

// ListingStore is the slice of the store the deduplicator needs
type ListingStore interface {
	UpsertListing(ctx context.Context, input *db.ListingInput) (*db.Listing, bool, error)
}

// Summary reports what one ingestion batch did
type Summary struct {
	Created   int
	Unchanged int
	Failed    int
}

// Deduplicator performs fingerprint-keyed upserts of collected listings
type Deduplicator struct {
	store ListingStore
}

// NewDeduplicator creates a deduplicator over the given store
func NewDeduplicator(store ListingStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// IngestBatch upserts every record independently. A failure on one record is
// logged and counted but never aborts the batch; concurrent ingestion of the
// same fingerprint is collapsed by the store's unique-constraint upsert.
func (d *Deduplicator) IngestBatch(ctx context.Context, records []db.ListingInput) Summary {
	var summary Summary
	for i := range records {
		_, created, err := d.store.UpsertListing(ctx, &records[i])
		if err != nil {
			log.Printf("[INGEST] Failed to upsert %q from %s: %v", records[i].Name, records[i].Source, err)
			summary.Failed++
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Unchanged++
		}
	}
	return summary
}
