package crawler

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals that an entity does not exist at the source or in the store.
	ErrNotFound = errors.New("not found")
	// ErrSeedNotFound is returned when the seed identity cannot be resolved.
	ErrSeedNotFound = errors.New("seed not found")
	// ErrUnresolvedEmail is returned when no platform handle matches an email.
	ErrUnresolvedEmail = errors.New("email could not be resolved")
	// ErrNotAuthenticated aborts a run when the source rejects the session or token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStoreUnavailable aborts a run when the entity store cannot be written.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrQueueClosed is returned by a queue that no longer accepts or yields work.
	ErrQueueClosed = errors.New("queue closed")
)

// IsFatal reports whether err must abort the whole run rather than skip one node.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled)
}
