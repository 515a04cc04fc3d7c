package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/price-publisher/internal/db"
)

// fakeSnapshotStore records inserts and serves a canned latest snapshot
type fakeSnapshotStore struct {
	latest   *db.Snapshot
	inserted []db.Snapshot
}

func (f *fakeSnapshotStore) LatestSnapshot(_ context.Context) (*db.Snapshot, error) {
	return f.latest, nil
}

func (f *fakeSnapshotStore) InsertSnapshot(_ context.Context, fingerprint string, members []string) (*db.Snapshot, error) {
	s := db.Snapshot{Fingerprint: fingerprint, MemberFingerprints: members}
	f.inserted = append(f.inserted, s)
	f.latest = &s
	return &s, nil
}

func listing(fp string) db.Listing {
	return db.Listing{Fingerprint: fp}
}

func TestAggregateFingerprintOrderIndependent(t *testing.T) {
	a := AggregateFingerprint([]string{"fp1", "fp2", "fp3"})
	b := AggregateFingerprint([]string{"fp3", "fp1", "fp2"})
	c := AggregateFingerprint([]string{"fp2", "fp3", "fp1"})

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestAggregateFingerprintSensitiveToMembership(t *testing.T) {
	a := AggregateFingerprint([]string{"fp1", "fp2"})
	b := AggregateFingerprint([]string{"fp1", "fp3"})
	c := AggregateFingerprint([]string{"fp1"})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEvaluateEmptySelectionSkipsWithoutWriting(t *testing.T) {
	store := &fakeSnapshotStore{}
	g := New(store)

	result, err := g.Evaluate(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, result.ShouldProceed)
	assert.Empty(t, store.inserted, "empty selection must not persist a snapshot")
}

func TestEvaluateFirstRunProceedsAndPersists(t *testing.T) {
	store := &fakeSnapshotStore{}
	g := New(store)

	selection := []db.Listing{listing("fp1"), listing("fp2")}
	result, err := g.Evaluate(context.Background(), selection)
	require.NoError(t, err)

	assert.True(t, result.ShouldProceed)
	assert.Equal(t, AggregateFingerprint([]string{"fp1", "fp2"}), result.Fingerprint)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, result.Fingerprint, store.inserted[0].Fingerprint)
}

func TestEvaluateUnchangedSelectionSkips(t *testing.T) {
	store := &fakeSnapshotStore{}
	g := New(store)
	ctx := context.Background()

	selection := []db.Listing{listing("fp1"), listing("fp2")}
	first, err := g.Evaluate(ctx, selection)
	require.NoError(t, err)
	require.True(t, first.ShouldProceed)

	// Same members, different order. Must skip and write nothing new.
	second, err := g.Evaluate(ctx, []db.Listing{listing("fp2"), listing("fp1")})
	require.NoError(t, err)

	assert.False(t, second.ShouldProceed)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Len(t, store.inserted, 1)
}

func TestEvaluateChangedSelectionProceeds(t *testing.T) {
	store := &fakeSnapshotStore{}
	g := New(store)
	ctx := context.Background()

	_, err := g.Evaluate(ctx, []db.Listing{listing("fp1"), listing("fp2")})
	require.NoError(t, err)

	result, err := g.Evaluate(ctx, []db.Listing{listing("fp1"), listing("fp3")})
	require.NoError(t, err)

	assert.True(t, result.ShouldProceed)
	assert.Len(t, store.inserted, 2)
	assert.Len(t, result.Members, 2)
}
