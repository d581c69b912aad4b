package dbfacade

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// classification is the outcome of inspecting a failed query's SQLSTATE.
type classification int

const (
	// classQueryLevel means the statement itself was rejected; retrying it
	// against a fresh connection would fail identically, so the facade
	// surfaces the error as-is instead of reconnecting.
	classQueryLevel classification = iota
	// classConnectionLevel means the failure looks like the connection
	// itself is unusable; the facade should attempt to re-establish it.
	classConnectionLevel
)

// classify implements the sqlstate table from the resolution spec: class
// 22 (data exception), 40 (transaction rollback), 42 (syntax/access rule)
// and P0 (PL/pgSQL raised) are treated as query-level failures that a
// reconnect cannot fix. Everything else — most commonly class 08
// (connection exception) and 57 (operator intervention) — is treated as
// connection-level and eligible for retry.
func classify(err error) classification {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return classConnectionLevel
	}

	code := string(pqErr.Code)
	if len(code) < 2 {
		return classConnectionLevel
	}

	switch {
	case strings.HasPrefix(code, "22"):
		return classQueryLevel
	case strings.HasPrefix(code, "40"):
		return classQueryLevel
	case strings.HasPrefix(code, "42"):
		return classQueryLevel
	case strings.HasPrefix(code, "P0"):
		return classQueryLevel
	default:
		return classConnectionLevel
	}
}

// sqlstateOf extracts the five-character SQLSTATE from a pq error, or ""
// when err did not originate from the driver.
func sqlstateOf(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// isFirstAttemptDataException reports the special case in the resolution
// spec: SQLSTATE 22000 ("data_exception", the bare class-22 code with no
// subclass) on the caller's first attempt is treated as possibly
// connection-level, since the driver can surface a lost connection with
// that code. On a retried attempt the same code is query-level like the
// rest of class 22, and the call gives up.
func isFirstAttemptDataException(err error, attempt int) bool {
	return attempt == 0 && sqlstateOf(err) == "22000"
}
