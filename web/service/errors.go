package service

import "errors"

// Outcomes callers are expected to handle. Lookup misses are returned as
// absence, not as errors.
var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrPrivilegeDenied  = errors.New("admin privileges required")
	ErrTokenInvalid     = errors.New("token expired or invalid")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUserExists       = errors.New("user already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrPasswordTooShort = errors.New("password too short")
	ErrMailFailed       = errors.New("mail delivery failed")
)

// ErrStorage matches every *StorageError via errors.Is.
var ErrStorage = errors.New("storage failure")

// StorageError is an I/O level failure of the underlying store. It is fatal for
// the operation that returned it and never means "not found" or "invalid".
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
