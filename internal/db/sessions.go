package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PublishSession is the singleton persisted CMS session. The state blob is
// opaque to the store; the session package encrypts it before it gets here.
type PublishSession struct {
	State   []byte    `json:"-"`
	SavedAt time.Time `json:"saved_at"`
}

// -----------------------------------------------------------------------------
// Publish Session Methods
// -----------------------------------------------------------------------------

// GetSession retrieves the persisted publish session, or nil if none exists
func (db *DB) GetSession(ctx context.Context) (*PublishSession, error) {
	var s PublishSession
	err := db.pool.QueryRow(ctx,
		`SELECT state, saved_at FROM publish_sessions WHERE id = 1`,
	).Scan(&s.State, &s.SavedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get publish session: %w", err)
	}
	return &s, nil
}

// SaveSession stores the publish session, replacing any prior one. The
// CHECK (id = 1) constraint keeps the table a singleton.
func (db *DB) SaveSession(ctx context.Context, state []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO publish_sessions (id, state, saved_at)
		 VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET state = $1, saved_at = NOW()`,
		state,
	)
	if err != nil {
		return fmt.Errorf("failed to save publish session: %w", err)
	}
	return nil
}

// DeleteSession removes the persisted session. Deleting an absent session is
// not an error.
func (db *DB) DeleteSession(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM publish_sessions WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to delete publish session: %w", err)
	}
	return nil
}
