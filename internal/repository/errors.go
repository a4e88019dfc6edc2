package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"anonfeed/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTargetNotFound is returned by transactional writes whose parent row does not exist.
var ErrTargetNotFound = errors.New("target not found")

// errIdempotencyRace signals that a concurrent request committed the same idempotency key first.
var errIdempotencyRace = errors.New("idempotency key claimed concurrently")

// Classify turns transient storage failures into a STORAGE_UNAVAILABLE AppError
// and returns every other error unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return models.NewStorageUnavailableError(err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P: operator intervention (shutdown, cannot connect now).
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "sql: database is closed")
}

// IsUniqueViolation reports whether err is a unique-constraint failure on either driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
