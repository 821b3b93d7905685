package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", Clone(ErrEmptyCohort, "class has no active student"))
	appErr := FromError(wrapped)
	require.Equal(t, ErrEmptyCohort.Code, appErr.Code)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	require.Equal(t, "class has no active student", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	require.Equal(t, ErrInternal.Code, appErr.Code)
	require.ErrorIs(t, appErr, sql.ErrConnDone)
}

func TestIsComparesCodes(t *testing.T) {
	err := Wrap(sql.ErrTxDone, ErrPersistenceFailure.Code, ErrPersistenceFailure.Status, "commit failed")
	require.True(t, Is(err, ErrPersistenceFailure))
	require.False(t, Is(err, ErrNotFound))
	require.False(t, Is(nil, ErrNotFound))
}
