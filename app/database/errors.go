package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"campus-portal/app/services/proctoring"
)

// IsTransient reports whether err is a database failure worth retrying:
// connection loss, serialization conflicts, deadlocks, resource exhaustion
// and administrator shutdowns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"):
			return true
		case code == "40001", code == "40P01":
			return true
		case code == "57P01", code == "57P02", code == "57P03":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrap tags transient failures with proctoring.ErrTransientStorage so the
// service retries them. Context cancellation is passed through untouched.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, proctoring.ErrTransientStorage, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "22P02", "23502", "23503", "23514":
			// Malformed uuid, missing field, dangling reference or check violation.
			return fmt.Errorf("%s: %w: %s", op, proctoring.ErrValidation, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", proctoring.ErrNotFound, kind, id)
}
