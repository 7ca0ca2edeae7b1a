/**
 * @description
 * Business error taxonomy shared across the service layers. These are typed
 * results the API layer maps to HTTP statuses; none of them is fatal.
 *
 * @notes
 * - Store I/O failures are wrapped with ErrStorageUnavailable so a failed
 *   read is never mistaken for "not found".
 */
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an action is attempted from a
	// state that does not permit it (e.g. confirming a cancelled intent).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInactiveSubscription is returned when an action requires an active
	// (trial or paid) subscription and the merchant has none.
	ErrInactiveSubscription = errors.New("subscription inactive")

	// ErrStorageUnavailable wraps store-layer I/O failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// QuotaExceededError is returned when a resource creation is blocked by the
// merchant's tier limit. It carries the counts for display.
type QuotaExceededError struct {
	Kind    ResourceKind
	Current int
	Max     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d/%d", e.Kind, e.Current, e.Max)
}

// StorageError wraps a driver error as a storage-layer failure.
func StorageError(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
