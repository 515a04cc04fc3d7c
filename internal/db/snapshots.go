package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Snapshot is a persisted fingerprint over a top-N selection of listings,
// used by the change gate to decide whether downstream work should run.
type Snapshot struct {
	ID                 uuid.UUID `json:"id"`
	Fingerprint        string    `json:"fingerprint"`
	MemberFingerprints []string  `json:"member_fingerprints"`
	CreatedAt          time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// Snapshot Methods
// -----------------------------------------------------------------------------

// InsertSnapshot records a new aggregate snapshot. The gate only calls this
// when the fingerprint differs from the latest stored one.
func (db *DB) InsertSnapshot(ctx context.Context, fingerprint string, members []string) (*Snapshot, error) {
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal member fingerprints: %w", err)
	}

	var s Snapshot
	err = db.pool.QueryRow(ctx,
		`INSERT INTO snapshots (fingerprint, member_fingerprints)
		 VALUES ($1, $2)
		 RETURNING id, fingerprint, created_at`,
		fingerprint, membersJSON,
	).Scan(&s.ID, &s.Fingerprint, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	s.MemberFingerprints = members
	return &s, nil
}

// LatestSnapshot returns the most recently created snapshot, or nil if none
// has been recorded yet.
func (db *DB) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	var membersJSON []byte

	err := db.pool.QueryRow(ctx,
		`SELECT id, fingerprint, member_fingerprints, created_at
		 FROM snapshots
		 ORDER BY created_at DESC
		 LIMIT 1`,
	).Scan(&s.ID, &s.Fingerprint, &membersJSON, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	if membersJSON != nil {
		_ = json.Unmarshal(membersJSON, &s.MemberFingerprints)
	}

	return &s, nil
}
