package store

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable marks failures of the persistence backend. Callers
// match it with errors.Is; the underlying driver error stays in the chain.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Unavailable wraps err as ErrStorageUnavailable for the named operation.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
