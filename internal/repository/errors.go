package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrTableMissing is returned when the backing table does not exist.
	// Callers treat it as an empty result rather than a failure.
	ErrTableMissing = errors.New("backing table does not exist")

	// ErrMissingOrganization is returned for any queue query that is not
	// scoped to an organization.
	ErrMissingOrganization = errors.New("organization id is required")

	// ErrConflict is returned when an insert reuses an existing id.
	ErrConflict = errors.New("record already exists")
)

// postgres SQLSTATEs
const (
	undefinedTableCode  = "42P01"
	uniqueViolationCode = "23505"
)

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case undefinedTableCode:
		return ErrTableMissing
	case uniqueViolationCode:
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Detail)
	}
	return err
}

// IsTableMissing reports whether err means the backing table is absent.
func IsTableMissing(err error) bool {
	return errors.Is(err, ErrTableMissing)
}
