package discount

import (
	"context"

	"github.com/google/uuid"
)

// Notifier receives best-effort signals about discount lifecycle events.
// The engine invokes it synchronously after the triggering unit of work has
// committed and treats any error as non-fatal: delivery failure never affects
// the outcome of the primary operation.
type Notifier interface {
	DiscountAssigned(ctx context.Context, userID uuid.UUID, d *Discount, assignedBy string) error
	DiscountRevoked(ctx context.Context, userID uuid.UUID, d *Discount, revokedBy string) error
	DiscountsApplied(ctx context.Context, userID uuid.UUID, result *ApplicationResult) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

var _ Notifier = NopNotifier{}

func (NopNotifier) DiscountAssigned(context.Context, uuid.UUID, *Discount, string) error {
	return nil
}

func (NopNotifier) DiscountRevoked(context.Context, uuid.UUID, *Discount, string) error {
	return nil
}

func (NopNotifier) DiscountsApplied(context.Context, uuid.UUID, *ApplicationResult) error {
	return nil
}
