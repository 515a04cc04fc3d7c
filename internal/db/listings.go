package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Listing Methods
// -----------------------------------------------------------------------------

// UpsertListing inserts a listing keyed on its content fingerprint. A row with
// the same fingerprint already present is left alone except for last_seen_at.
// The unique constraint on fingerprint makes concurrent upserts of the same
// content collapse to a single row. Returns the stored row and whether it was
// newly created.
func (db *DB) UpsertListing(ctx context.Context, input *ListingInput) (*Listing, bool, error) {
	fingerprint := input.Fingerprint()

	attrsJSON, err := json.Marshal(input.Attributes)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal attributes: %w", err)
	}

	var url *string
	if input.URL != "" {
		url = &input.URL
	}

	var l Listing
	var created bool
	// first_seen_at = last_seen_at only on the insert path: both default to
	// the same transaction timestamp, and the conflict path touches only
	// last_seen_at.
	err = db.pool.QueryRow(ctx,
		`INSERT INTO listings (fingerprint, source, name, price_cents, currency, attributes, url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (fingerprint) DO UPDATE SET last_seen_at = NOW()
		 RETURNING id, fingerprint, source, name, price_cents, currency, url,
		           first_seen_at, last_seen_at, (first_seen_at = last_seen_at)`,
		fingerprint, input.Source, input.Name, input.PriceCents, input.Currency, attrsJSON, url,
	).Scan(&l.ID, &l.Fingerprint, &l.Source, &l.Name, &l.PriceCents, &l.Currency, &l.URL,
		&l.FirstSeenAt, &l.LastSeenAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert listing: %w", err)
	}

	l.Attributes = input.Attributes
	return &l, created, nil
}

// GetListingByFingerprint retrieves a listing by its content fingerprint
func (db *DB) GetListingByFingerprint(ctx context.Context, fingerprint string) (*Listing, error) {
	var l Listing
	var attrsJSON []byte

	err := db.pool.QueryRow(ctx,
		`SELECT id, fingerprint, source, name, price_cents, currency, attributes, url,
		        first_seen_at, last_seen_at
		 FROM listings WHERE fingerprint = $1`,
		fingerprint,
	).Scan(&l.ID, &l.Fingerprint, &l.Source, &l.Name, &l.PriceCents, &l.Currency,
		&attrsJSON, &l.URL, &l.FirstSeenAt, &l.LastSeenAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	if attrsJSON != nil {
		_ = json.Unmarshal(attrsJSON, &l.Attributes)
	}

	return &l, nil
}

// TopListingsByPrice returns the n cheapest current listings, one per logical
// product. Because history is content-addressed, several rows can exist for
// the same (source, name) pair; only the most recently seen row per pair
// participates, so a stale price variant never shadows the current one. Ties
// on price break by fingerprint to keep the ordering deterministic.
func (db *DB) TopListingsByPrice(ctx context.Context, n int) ([]Listing, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, fingerprint, source, name, price_cents, currency, attributes, url,
		        first_seen_at, last_seen_at
		 FROM (
		     SELECT DISTINCT ON (source, name) *
		     FROM listings
		     ORDER BY source, name, last_seen_at DESC
		 ) current
		 ORDER BY price_cents ASC, fingerprint ASC
		 LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query top listings: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		var attrsJSON []byte
		if err := rows.Scan(&l.ID, &l.Fingerprint, &l.Source, &l.Name, &l.PriceCents,
			&l.Currency, &attrsJSON, &l.URL, &l.FirstSeenAt, &l.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		if attrsJSON != nil {
			_ = json.Unmarshal(attrsJSON, &l.Attributes)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
