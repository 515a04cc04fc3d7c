package pipeline

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transient Postgres error codes: serialization_failure, deadlock_detected,
// and the connection-exception class.
func transientPgCode(code string) bool {
	return code == "40001" || code == "40P01" || strings.HasPrefix(code, "08")
}

// transientMarkers are substrings that flag infrastructure contention in
// errors that reach us as plain strings.
var transientMarkers = []string{
	"deadlock detected",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"too many connections",
}

// IsTransient classifies a run failure as infrastructure/transient, meaning
// the whole run deserves exactly one delayed re-invocation. Everything else
// is fatal for this run and only logged.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientPgCode(pgErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
