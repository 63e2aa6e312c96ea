package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}
	if errors.Is(err, ErrLockTimeout) {
		return ErrorClassTransient
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure:
			return ErrorClassSerialization
		case codeDeadlockDetected:
			return ErrorClassDeadlock
		case codeLockNotAvailable:
			return ErrorClassTransient
		case codeUniqueViolation, codeForeignKeyViolation, "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint failure,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsForeignKeyViolation reports whether err references a missing parent row.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

// IsLockNotAvailable reports whether err came from a NOWAIT lock attempt.
func IsLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeLockNotAvailable
}

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrArtistNotFound       = errors.New("artist not found")
	ErrArtworkNotFound      = errors.New("artwork not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrEmailExists          = errors.New("email already exists")
	ErrIncorrectPassword    = errors.New("incorrect current password")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrLockTimeout          = errors.New("lock timeout")
)
