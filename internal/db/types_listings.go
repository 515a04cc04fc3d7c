package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Listing represents a scraped product listing. Rows are content-addressed:
// the fingerprint over the stable fields is the identity key, so a listing
// whose price or attributes change lands in a new row rather than mutating
// the old one.
type Listing struct {
	ID          uuid.UUID         `json:"id"`
	Fingerprint string            `json:"fingerprint"`
	Source      string            `json:"source"`
	Name        string            `json:"name"`
	PriceCents  int64             `json:"price_cents"`
	Currency    string            `json:"currency"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	URL         *string           `json:"url,omitempty"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	LastSeenAt  time.Time         `json:"last_seen_at"`
}

// ListingInput holds the fields of a freshly scraped listing before it is
// upserted. URL is volatile (tracking parameters change per crawl) and is
// excluded from the fingerprint.
type ListingInput struct {
	Source     string
	Name       string
	PriceCents int64
	Currency   string
	Attributes map[string]string
	URL        string
}

// Fingerprint computes the SHA-256 content fingerprint over the stable
// fields. Attributes are serialized in sorted key order so map iteration
// order never affects the result.
func (in *ListingInput) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(in.Source)
	sb.WriteString("|")
	sb.WriteString(strings.TrimSpace(in.Name))
	sb.WriteString("|")
	fmt.Fprintf(&sb, "%d", in.PriceCents)
	sb.WriteString("|")
	sb.WriteString(in.Currency)

	keys := make([]string, 0, len(in.Attributes))
	for k := range in.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%s=%s", k, in.Attributes[k])
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// HashContent computes SHA-256 hash of content for change detection
func HashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
