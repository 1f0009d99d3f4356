package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Run("pgx unique violation", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505", ConstraintName: "one_confirmed_per_point"}
		assert.True(t, isUniqueViolation(err))
		assert.True(t, isUniqueViolation(fmt.Errorf("insert annotation: %w", err)))
	})

	t.Run("pq unique violation", func(t *testing.T) {
		err := &pq.Error{Code: "23505"}
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("other sqlstate is not a conflict", func(t *testing.T) {
		assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
		assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	})

	// The message alone must not trigger conflict handling; a column
	// value can legally contain these words.
	t.Run("message text is ignored", func(t *testing.T) {
		assert.False(t, isUniqueViolation(errors.New("value was not unique enough")))
		assert.False(t, isUniqueViolation(errors.New("duplicate key value violates unique constraint")))
		assert.False(t, isUniqueViolation(nil))
	})
}
