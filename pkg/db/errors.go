package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique-constraint failure, optionally on
// the named constraint. SQLite errors carry no SQLSTATE and are matched on the message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.AsPG(err); ok {
		return pg.Class() == "unique_violation" && (constraintName == "" || pg.Constraint == constraintName)
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
