package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTransient(t *testing.T) {
	for code, want := range map[string]bool{
		"40001": true,  // serialization_failure
		"40P01": true,  // deadlock_detected
		"55P03": true,  // lock_not_available
		"23505": false, // unique_violation
		"42P01": false, // undefined_table
	} {
		err := fmt.Errorf("storage: wrapped: %w", &pgconn.PgError{Code: code})
		assert.Equal(t, want, transient(err), code)
	}
	assert.False(t, transient(errors.New("connection refused")))
	assert.False(t, transient(nil))
}
