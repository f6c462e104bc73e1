package gc

import "github.com/cockroachdb/errors"

var (
	// ErrOldSpaceExhausted: the terminal allocator could not take an
	// object. There is no further fallback.
	ErrOldSpaceExhausted = errors.New("gc: old space exhausted during evacuation")
	ErrCopyFailed        = errors.New("gc: object copy failed")
	// ErrForwardingMismatch: a live object in a copied region has no
	// forwarding header during update.
	ErrForwardingMismatch = errors.New("gc: live object was not forwarded")
	ErrBadPhase           = errors.New("gc: illegal phase transition")
)

// IsFatal reports whether err aborts the collection.
func IsFatal(err error) bool {
	return errors.IsAny(err, ErrOldSpaceExhausted, ErrCopyFailed, ErrForwardingMismatch)
}
