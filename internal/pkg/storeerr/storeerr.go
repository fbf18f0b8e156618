package storeerr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies a storage failure for callers that branch on cause.
type Kind string

const (
	KindProvisioning Kind = "provisioning"
	KindConnection   Kind = "connection"
	KindSchema       Kind = "schema"
	KindNotFound     Kind = "not_found"
	KindIntegrity    Kind = "integrity"
	KindQuery        Kind = "query"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal"
)

// ErrTableExists tags a schema error caused by an identifier collision,
// so run-table callers can distinguish a lost create race from other
// schema failures.
var ErrTableExists = errors.New("table already exists")

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or KindInternal when err carries
// no *Error in its chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsNotFound(err error) bool  { return IsKind(err, KindNotFound) }
func IsIntegrity(err error) bool { return IsKind(err, KindIntegrity) }

// Map translates driver/ORM failures into taxonomy errors. Errors already
// carrying a kind pass through unchanged.
func Map(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return New(KindNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return New(KindTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return New(KindTimeout, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch code := strings.TrimSpace(pgErr.Code); {
		case code == "42P07": // duplicate_table
			return New(KindSchema, op, errors.Join(ErrTableExists, err))
		case code == "57014": // query_canceled (statement_timeout)
			return New(KindTimeout, op, err)
		case code == "3D000": // invalid_catalog_name
			return New(KindNotFound, op, err)
		case strings.HasPrefix(code, "08"): // connection exceptions
			return New(KindConnection, op, err)
		case strings.HasPrefix(code, "23"): // integrity constraint violations
			return New(KindIntegrity, op, err)
		case strings.HasPrefix(code, "42"): // syntax or access rule violations
			return New(KindQuery, op, err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "bad connection"):
		return New(KindConnection, op, err)
	case strings.Contains(msg, "timeout"):
		return New(KindTimeout, op, err)
	}
	return New(KindQuery, op, err)
}
