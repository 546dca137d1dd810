package discount

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Resolver computes the subset of a user's assigned discounts that are
// currently usable. It has no side effects and is safe to call repeatedly,
// both for previews and inside an apply's unit of work.
type Resolver struct {
	ledger Ledger
	now    func() time.Time
}

// NewResolver creates a Resolver backed by the given ledger.
func NewResolver(ledger Ledger) *Resolver {
	return &Resolver{ledger: ledger, now: time.Now}
}

// EligibleFor returns the user's usable discounts ordered by priority
// descending (stable for ties). When only is non-empty the result is
// restricted to that subset: discounts outside it are excluded even if
// otherwise eligible.
func (r *Resolver) EligibleFor(ctx context.Context, userID uuid.UUID, only ...uuid.UUID) ([]Discount, error) {
	listed, err := r.ledger.ListEligible(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list eligible discounts")
	}

	var allow map[uuid.UUID]struct{}
	if len(only) > 0 {
		allow = make(map[uuid.UUID]struct{}, len(only))
		for _, id := range only {
			allow[id] = struct{}{}
		}
	}

	now := r.now()
	eligible := make([]Discount, 0, len(listed))
	for i := range listed {
		d := &listed[i]
		if !d.Valid(now) {
			continue
		}
		if allow != nil {
			if _, ok := allow[d.ID]; !ok {
				continue
			}
		}
		eligible = append(eligible, *d)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Priority > eligible[j].Priority
	})

	return eligible, nil
}
