package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSystemError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conn done", sql.ErrConnDone, true},
		{"wrapped conn done", fmt.Errorf("claim job: %w", sql.ErrConnDone), true},
		{"bad conn", driver.ErrBadConn, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"eof", io.EOF, true},
		{"no rows", sql.ErrNoRows, false},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq too many connections", &pq.Error{Code: "53300"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"pgx admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"pgx syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"application error", custom_errors.NewApplicationError("handler", sql.ErrConnDone), false},
		{"circuit open", custom_errors.ErrCircuitOpen, false},
		{"plain", errors.New("bad payload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSystemError(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
}
