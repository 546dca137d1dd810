package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrNotAssigned is returned when no assignment row exists for a
// (user, discount) pair.
var ErrNotAssigned = errors.New("discount not assigned to user")

// Assignment is the grant of a discount to a user. A user holds at most one
// assignment row per discount; re-assigning after revocation revives the same
// row with a reset usage counter.
type Assignment struct {
	UserID     uuid.UUID
	DiscountID uuid.UUID
	AssignedAt time.Time
	AssignedBy string
	RevokedAt  *time.Time
	RevokedBy  string
	// UsageCount only ever increments while the assignment is active.
	UsageCount int
	Notes      string
}

// Active reports whether the assignment has not been revoked.
func (a *Assignment) Active() bool {
	return a.RevokedAt == nil
}

// Usable reports whether the holder can redeem the discount right now:
// the assignment is active, under the per-user limit, and the discount
// itself is valid.
func (a *Assignment) Usable(d *Discount, now time.Time) bool {
	return a.Active() && a.UsageCount < d.MaxUsagePerUser && d.Valid(now)
}

// Ledger persists per-(user, discount) assignment state.
type Ledger interface {
	// Find returns the assignment row for the pair, revoked or not.
	// Returns ErrNotAssigned when no row exists.
	Find(ctx context.Context, userID, discountID uuid.UUID) (*Assignment, error)

	// ListEligible returns the discounts the user can redeem right now,
	// ordered by priority descending: assignment active, usage under the
	// per-user limit, discount valid.
	ListEligible(ctx context.Context, userID uuid.UUID) ([]Discount, error)

	// Upsert creates a new assignment, or revives a revoked one by clearing
	// the revocation and resetting the usage counter to zero. Returns
	// ErrAlreadyAssigned when an active assignment already exists.
	Upsert(ctx context.Context, userID, discountID uuid.UUID, assignedBy, notes string, at time.Time) (*Assignment, error)

	// Revoke marks an active assignment revoked. Returns false when no
	// active assignment exists.
	Revoke(ctx context.Context, userID, discountID uuid.UUID, revokedBy string, at time.Time) (bool, error)

	// IncrementUsage adds exactly 1 to the usage counter of an active
	// assignment. Implementations must hold an exclusive row-scoped lock on
	// the pair for the duration of the read-increment sequence and re-check
	// the per-user limit under that lock, returning ErrUsageLimitReached
	// when a concurrent redemption already consumed the last use. usage_count
	// never exceeds the discount's MaxUsagePerUser, whatever the
	// interleaving.
	IncrementUsage(ctx context.Context, userID, discountID uuid.UUID) error
}
