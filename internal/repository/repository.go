package repository

import (
	"strings"

	"gorm.io/gorm"
)

// isRecordNotFoundError reports whether err is GORM's not-found error.
func isRecordNotFoundError(err error) bool {
	return err == gorm.ErrRecordNotFound
}

// isDuplicateKeyError reports whether err is a unique-constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
