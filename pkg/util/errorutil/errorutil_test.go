package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ToDomainError(nil))
	})

	t.Run("domain error passes through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("consume: %w", NewQuotaExceeded("ai", 5, 5))
		de := ToDomainError(wrapped)
		require.NotNil(t, de)
		assert.Equal(t, CodeQuotaExceeded, de.Code)
		assert.Equal(t, http.StatusTooManyRequests, de.HTTPStatus)
		assert.Equal(t, "ai", de.Details["category"])
	})

	t.Run("no rows becomes not found", func(t *testing.T) {
		de := ToDomainError(sql.ErrNoRows)
		assert.Equal(t, CodeNotFound, de.Code)
	})

	t.Run("unknown becomes internal", func(t *testing.T) {
		cause := errors.New("boom")
		de := ToDomainError(cause)
		assert.Equal(t, CodeInternal, de.Code)
		assert.ErrorIs(t, de, cause)
	})
}

func TestIsCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("ledger: %w", NewStorageUnavailable(cause))

	assert.True(t, IsCode(err, CodeStorageUnavailable))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(cause, CodeStorageUnavailable))
	assert.ErrorIs(t, err, cause)
}

func TestCompletionFailedMessage(t *testing.T) {
	err := NewCompletionFailed(errors.New("timeout"))
	assert.Equal(t, "AI is busy, try again: timeout", err.Error())
}
