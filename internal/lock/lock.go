// Package lock provides the TTL-lease mutual exclusion used to keep exactly
// one poller active across scheduler replicas.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotHeld is returned when releasing or extending a lease this
	// instance does not hold.
	ErrNotHeld = errors.New("lock not held")
)

// DistributedLockManager is a lease with a TTL stored in a shared
// coordination store. Acquisition is a conditional set-if-absent and never
// blocks; release is best effort, with TTL expiry as the safety net against
// crashed holders.
type DistributedLockManager interface {
	// TryAcquire attempts to take the lease without blocking. Returns
	// false when another replica holds it.
	TryAcquire(ctx context.Context) (bool, error)

	// Release gives the lease up if this instance holds it.
	Release(ctx context.Context) error

	// Extend pushes the lease expiry out while still holding it.
	Extend(ctx context.Context, ttl time.Duration) error

	// IsHeld reports whether this instance currently holds the lease.
	IsHeld(ctx context.Context) (bool, error)
}
