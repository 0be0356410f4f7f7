package profile

import (
	"errors"
	"fmt"
)

var (
	// ErrNoURL is returned when an image fetch has no URL to fetch.
	ErrNoURL = errors.New("no image url")
	// ErrTooLarge is returned when an image exceeds the configured size cap.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrContactNotTracked is returned for phone numbers that were never added.
	ErrContactNotTracked = errors.New("contact not tracked")
)

// NetworkError is a failed avatar fetch. The whole pass is aborted and
// nothing is written.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	if e.URL == "" {
		return fmt.Sprintf("fetch: %v", e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PersistenceError is a failed baseline write or presence append.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
