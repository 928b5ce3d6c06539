package db

import "strings"

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation. A constraintName narrows the match on Postgres, which names the
// violated constraint in the message; drivers that do not (sqlite) fall back
// to the generic violation text.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
