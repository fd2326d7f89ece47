package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// systemErrorClasses are the SQLSTATE classes that describe the database
// itself misbehaving rather than the statement being wrong.
var systemErrorClasses = map[string]bool{
	"08": true, // connection exception
	"53": true, // insufficient resources
	"57": true, // operator intervention (admin shutdown, statement timeout)
	"58": true, // system error
	"XX": true, // internal error
}

// IsSystemError reports whether err is a transient, connection or timeout
// class failure. Only these count toward the circuit breaker; constraint
// violations and other application errors do not.
func IsSystemError(err error) bool {
	if err == nil {
		return false
	}
	if custom_errors.IsApplicationError(err) || errors.Is(err, custom_errors.ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return systemErrorClasses[string(pqErr.Code.Class())]
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && systemErrorClasses[pgErr.Code[:2]]
	}
	if pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports a unique_violation (23505) from either driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
