// Package gate decides whether a run's expensive downstream work should
// happen at all, by fingerprinting the current top-N selection and comparing
// it to the last stored snapshot.
package gate

import (
	"context"
	"sort"
	"strings"

	"github.com/jonathan/price-publisher/internal/db"
)

// SnapshotStore is the slice of the store the gate needs
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context) (*db.Snapshot, error)
	InsertSnapshot(ctx context.Context, fingerprint string, members []string) (*db.Snapshot, error)
}

// Result is the outcome of one gate evaluation
type Result struct {
	Fingerprint   string
	ShouldProceed bool
	Members       []db.Listing
}

// Gate performs change detection over top-N selections
type Gate struct {
	store SnapshotStore
}

// New creates a gate over the given store
func New(store SnapshotStore) *Gate {
	return &Gate{store: store}
}

// AggregateFingerprint hashes a set of member fingerprints into one value.
// Members are sorted first, so the input order never affects the result.
func AggregateFingerprint(members []string) string {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)
	return db.HashContent(strings.Join(sorted, "\n"))
}

// Evaluate compares the selection's aggregate fingerprint against the most
// recent snapshot. On a change it persists a new snapshot and reports that
// downstream work should proceed. An empty selection always skips and writes
// nothing.
func (g *Gate) Evaluate(ctx context.Context, selection []db.Listing) (*Result, error) {
	if len(selection) == 0 {
		return &Result{ShouldProceed: false}, nil
	}

	members := make([]string, len(selection))
	for i, l := range selection {
		members[i] = l.Fingerprint
	}
	fingerprint := AggregateFingerprint(members)

	latest, err := g.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Fingerprint == fingerprint {
		return &Result{Fingerprint: fingerprint, ShouldProceed: false, Members: selection}, nil
	}

	if _, err := g.store.InsertSnapshot(ctx, fingerprint, members); err != nil {
		return nil, err
	}

	return &Result{Fingerprint: fingerprint, ShouldProceed: true, Members: selection}, nil
}
