package service

import (
	"database/sql"
	"errors"

	"github.com/noah-isme/school-admin-api/pkg/database"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// lookupError maps sql.ErrNoRows to NOT_FOUND and anything else to INTERNAL_ERROR.
// A nil err stays nil.
func lookupError(err error, notFound, failure string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, failure)
}

// writeError maps unique violations to CONFLICT, missing rows to NOT_FOUND and
// anything else to INTERNAL_ERROR.
func writeError(err error, conflict, notFound, failure string) error {
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflict)
	}
	return lookupError(err, notFound, failure)
}
