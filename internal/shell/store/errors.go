// Package store provides persistence for panel entities.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/panel/internal/core/domain"
)

var (
	// ErrNotFound means no live row matched the key.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateID means a unique key (id, datacenter code, template name) is taken.
	ErrDuplicateID = errors.New("record already exists")

	// ErrConflict is returned when a guarded update lost a race: the row's
	// status or version no longer matches what the caller read.
	ErrConflict = errors.New("record was modified concurrently")

	// ErrForeignKey means a server referenced a plan that does not exist.
	ErrForeignKey = errors.New("referenced record missing")

	ErrConnectionFailed = errors.New("cannot reach database")
	ErrMigrationFailed  = errors.New("schema migration failed")

	// ErrInvalidData covers rows or inputs that cannot be encoded: bad
	// activity JSON, promo codes out of range, undecryptable passwords.
	ErrInvalidData = errors.New("invalid record data")

	ErrTxFailed = errors.New("transaction failed")
)

// StoreError records which operation on which record failed. It unwraps to
// one of the sentinels above.
type StoreError struct {
	Op      string
	Entity  string
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	for _, part := range []string{e.Entity, e.ID} {
		if part != "" {
			b.WriteByte(' ')
			b.WriteString(part)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError builds a *StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}

// IsNotFound reports whether err is a store not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ToDomain maps a store error onto the domain error kinds services return.
// Missing rows become domain.ErrNotFound, lost races domain.ErrConflict and
// everything else domain.ErrPersistence.
func ToDomain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, ErrConflict):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
}
