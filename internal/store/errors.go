package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	// ErrConcurrentUpdate is returned when a row kept changing under an
	// update until the retry budget ran out.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrSkipUpdate may be returned by an update function to leave the row as is.
	ErrSkipUpdate = errors.New("skip update")
)
