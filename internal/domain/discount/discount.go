package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount value interpretations.
type Type string

const (
	// TypePercentage interprets Value as a percentage of the amount (0-100).
	TypePercentage Type = "percentage"
	// TypeFixed interprets Value as a fixed monetary amount, capped at the
	// amount it is applied against.
	TypeFixed Type = "fixed"
)

var (
	// ErrInactive is returned when a discount exists but its kill switch is off.
	ErrInactive = errors.New("discount is inactive")
	// ErrAlreadyAssigned is returned when a user already holds an active
	// assignment for the discount.
	ErrAlreadyAssigned = errors.New("discount already assigned to user")
	// ErrUsageLimitReached is returned by the ledger's locked re-check when a
	// concurrent redemption already consumed the user's last allowed use.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
)

// NotFoundError indicates a requested discount does not exist.
type NotFoundError struct {
	ID   uuid.UUID
	Code string
}

func (e *NotFoundError) Error() string {
	if e.Code != "" {
		return "discount code " + e.Code + " not found"
	}
	return "discount " + e.ID.String() + " not found"
}

// Discount is a rule describing how an amount is reduced for entitled users.
// Rows are immutable per version; soft deletion tombstones a rule while keeping
// it joinable for historical audit reads.
type Discount struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Type        Type
	Value       decimal.Decimal
	StartsAt    *time.Time
	ExpiresAt   *time.Time

	// MaxUsagePerUser bounds redemptions per user; always >= 1.
	MaxUsagePerUser int
	// MaxTotalUsage, when set, caps redemptions across all users.
	MaxTotalUsage *int
	// CurrentUsage counts global redemptions so far.
	CurrentUsage int

	IsActive bool
	// Priority orders sequential stacking; higher applies earlier.
	Priority int

	DeletedAt *time.Time
}

// Valid reports whether the discount can be redeemed at the given instant:
// live (not tombstoned), active, inside its validity window, and under its
// global usage ceiling. Open window ends are unbounded.
func (d *Discount) Valid(now time.Time) bool {
	if d.DeletedAt != nil || !d.IsActive {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return false
	}
	if d.MaxTotalUsage != nil && d.CurrentUsage >= *d.MaxTotalUsage {
		return false
	}
	return true
}

// Store provides lookup of discount rules.
type Store interface {
	Find(ctx context.Context, id uuid.UUID) (*Discount, error)
	FindByCode(ctx context.Context, code string) (*Discount, error)
	// ListValid returns all currently redeemable discounts ordered by
	// priority descending.
	ListValid(ctx context.Context) ([]Discount, error)
}
