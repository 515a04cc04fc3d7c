// Package session manages the persisted CMS login session used by the
// publish action: restore it when present, authenticate when absent, and
// re-authenticate at most once when an action reports the session invalid.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jonathan/price-publisher/internal/db"
)

// ErrUnauthenticated is the signal an action returns when the session it was
// handed turned out to be invalid (typically an unexpected login redirect).
var ErrUnauthenticated = errors.New("session unauthenticated")

// Store persists the singleton session blob
type Store interface {
	GetSession(ctx context.Context) (*db.PublishSession, error)
	SaveSession(ctx context.Context, state []byte) error
	DeleteSession(ctx context.Context) error
}

// Authenticator performs a full login against the external CMS and returns
// the resulting session state (e.g. exported cookies).
type Authenticator interface {
	Authenticate(ctx context.Context) ([]byte, error)
}

// Action is a unit of work executed under a valid session state
type Action func(ctx context.Context, state []byte) error

// Manager owns the session lifecycle. It holds no session state itself;
// the store is the single source of truth.
type Manager struct {
	store  Store
	auth   Authenticator
	cipher *Cipher
}

// NewManager creates a session manager. cipher may be nil to store session
// state unencrypted (tests only).
func NewManager(store Store, auth Authenticator, cipher *Cipher) *Manager {
	return &Manager{store: store, auth: auth, cipher: cipher}
}

// WithSession runs action under a valid session. If no session is persisted
// it authenticates first. If the action reports ErrUnauthenticated the
// persisted session is deleted and the manager re-authenticates and retries
// exactly once; a second failure propagates to the caller. At most one
// re-authentication happens per call.
func (m *Manager) WithSession(ctx context.Context, action Action) error {
	state, err := m.loadOrAuthenticate(ctx)
	if err != nil {
		return err
	}

	err = action(ctx, state)
	if !errors.Is(err, ErrUnauthenticated) {
		return err
	}

	log.Printf("[SESSION] Persisted session rejected, re-authenticating once")
	if err := m.store.DeleteSession(ctx); err != nil {
		return fmt.Errorf("failed to discard invalid session: %w", err)
	}

	state, err = m.authenticate(ctx)
	if err != nil {
		return err
	}

	return action(ctx, state)
}

// Invalidate discards any persisted session. Idempotent.
func (m *Manager) Invalidate(ctx context.Context) error {
	return m.store.DeleteSession(ctx)
}

func (m *Manager) loadOrAuthenticate(ctx context.Context) ([]byte, error) {
	stored, err := m.store.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		return m.authenticate(ctx)
	}

	state := stored.State
	if m.cipher != nil {
		state, err = m.cipher.Decrypt(state)
		if err != nil {
			// An undecryptable blob (e.g. rotated key) is as good as no
			// session at all.
			log.Printf("[SESSION] Failed to decrypt persisted session, discarding: %v", err)
			if delErr := m.store.DeleteSession(ctx); delErr != nil {
				return nil, fmt.Errorf("failed to discard undecryptable session: %w", delErr)
			}
			return m.authenticate(ctx)
		}
	}
	return state, nil
}

func (m *Manager) authenticate(ctx context.Context) ([]byte, error) {
	state, err := m.auth.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	toStore := state
	if m.cipher != nil {
		toStore, err = m.cipher.Encrypt(state)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt session: %w", err)
		}
	}
	if err := m.store.SaveSession(ctx, toStore); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return state, nil
}
