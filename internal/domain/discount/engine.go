package discount

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine coordinates eligibility resolution, stacking strategy application,
// usage-ledger mutation, and audit emission. It holds no long-lived state of
// its own; all durable state lives in the injected stores.
type Engine struct {
	discounts Store
	ledger    Ledger
	audits    AuditLog
	uow       UnitOfWork
	strategy  Strategy

	notifier    Notifier
	lg          *zap.Logger
	enableAudit bool
	now         func() time.Time
}

// EngineOptions holds the optional collaborators of an Engine. Zero values
// select safe defaults: no notifications, no logging, audit enabled.
type EngineOptions struct {
	Notifier Notifier
	Logger   *zap.Logger
	// DisableAudit turns off audit-entry writes. Recommended off outside
	// tests.
	DisableAudit bool
	// Now overrides the engine clock.
	Now func() time.Time
}

// NewEngine creates an Engine over the given stores and stacking strategy.
func NewEngine(discounts Store, ledger Ledger, audits AuditLog, uow UnitOfWork, strategy Strategy, opts EngineOptions) *Engine {
	e := &Engine{
		discounts:   discounts,
		ledger:      ledger,
		audits:      audits,
		uow:         uow,
		strategy:    strategy,
		notifier:    opts.Notifier,
		lg:          opts.Logger,
		enableAudit: !opts.DisableAudit,
		now:         opts.Now,
	}
	if e.notifier == nil {
		e.notifier = NopNotifier{}
	}
	if e.lg == nil {
		e.lg = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// AssignOptions carries optional context for an assignment.
type AssignOptions struct {
	Notes string
}

// AssignDiscount grants a discount to a user. A revoked assignment is
// revived with its usage counter reset; an active one fails with
// ErrAlreadyAssigned. The assignment and its audit entry commit atomically.
func (e *Engine) AssignDiscount(ctx context.Context, userID, discountID uuid.UUID, assignedBy string, opts AssignOptions) (*Assignment, error) {
	d, err := e.discounts.Find(ctx, discountID)
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, errors.Wrapf(ErrInactive, "discount %s", discountID)
	}

	var assignment *Assignment
	err = e.uow.Within(ctx, func(ctx context.Context, tx Tx) error {
		assignment, err = tx.Assignments().Upsert(ctx, userID, discountID, assignedBy, opts.Notes, e.now())
		if err != nil {
			return err
		}
		if !e.enableAudit {
			return nil
		}
		return tx.Audits().Append(ctx, e.auditEntry(userID, d, ActionAssigned, assignedBy, map[string]string{
			"notes": opts.Notes,
		}))
	})
	if err != nil {
		return nil, err
	}

	e.notify("assigned", e.notifier.DiscountAssigned(ctx, userID, d, assignedBy))

	return assignment, nil
}

// RevokeDiscount withdraws a user's assignment. It returns false without
// error when no active assignment exists, and fails with NotFoundError when
// the discount itself is unknown.
func (e *Engine) RevokeDiscount(ctx context.Context, userID, discountID uuid.UUID, revokedBy string) (bool, error) {
	d, err := e.discounts.Find(ctx, discountID)
	if err != nil {
		return false, err
	}

	var revoked bool
	err = e.uow.Within(ctx, func(ctx context.Context, tx Tx) error {
		revoked, err = tx.Assignments().Revoke(ctx, userID, discountID, revokedBy, e.now())
		if err != nil || !revoked {
			return err
		}
		if !e.enableAudit {
			return nil
		}
		return tx.Audits().Append(ctx, e.auditEntry(userID, d, ActionRevoked, revokedBy, nil))
	})
	if err != nil {
		return false, err
	}

	if revoked {
		e.notify("revoked", e.notifier.DiscountRevoked(ctx, userID, d, revokedBy))
	}

	return revoked, nil
}

// GetEligibleDiscounts returns the discounts the user can redeem right now,
// ordered by priority descending.
func (e *Engine) GetEligibleDiscounts(ctx context.Context, userID uuid.UUID) ([]Discount, error) {
	return e.resolver(e.ledger).EligibleFor(ctx, userID)
}

// IsEligibleFor reports whether the user can currently redeem the given
// discount: the discount is valid, an active assignment exists, and the
// per-user usage limit is not exhausted.
func (e *Engine) IsEligibleFor(ctx context.Context, userID, discountID uuid.UUID) (bool, error) {
	d, err := e.discounts.Find(ctx, discountID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	if !d.Valid(e.now()) {
		return false, nil
	}

	eligible, err := e.resolver(e.ledger).EligibleFor(ctx, userID, discountID)
	if err != nil {
		return false, err
	}
	return len(eligible) > 0, nil
}

// CalculateDiscounts previews what ApplyDiscounts would produce, without
// mutating usage counters or writing audit entries. It takes no locks and
// never blocks on a concurrent apply.
func (e *Engine) CalculateDiscounts(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, discountIDs ...uuid.UUID) (*ApplicationResult, error) {
	if amount.Sign() <= 0 {
		return zeroResult(amount, e.strategy.Name()), nil
	}

	eligible, err := e.resolver(e.ledger).EligibleFor(ctx, userID, discountIDs...)
	if err != nil {
		return nil, err
	}
	return e.strategy.Apply(amount, eligible), nil
}

// ApplyDiscounts redeems the user's eligible discounts against the amount.
// Eligibility resolution, strategy application, per-discount usage increments,
// and audit writes execute as one atomic unit: a failure partway rolls back
// every effect of the call. A call that loses a race for a discount's last
// remaining use fails with ErrUsageLimitReached from the ledger's locked
// re-check; retrying resolves eligibility afresh without the exhausted
// discount. Each call is a fresh, independently metered redemption.
func (e *Engine) ApplyDiscounts(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, discountIDs ...uuid.UUID) (*ApplicationResult, error) {
	if amount.Sign() <= 0 {
		return zeroResult(amount, e.strategy.Name()), nil
	}

	var result *ApplicationResult
	err := e.uow.Within(ctx, func(ctx context.Context, tx Tx) error {
		eligible, err := e.resolver(tx.Assignments()).EligibleFor(ctx, userID, discountIDs...)
		if err != nil {
			return err
		}

		result = e.strategy.Apply(amount, eligible)
		if !result.HasDiscounts() {
			return nil
		}

		for i := range result.Applied {
			if err := tx.Assignments().IncrementUsage(ctx, userID, result.Applied[i].ID); err != nil {
				return errors.Wrapf(err, "increment usage for discount %s", result.Applied[i].ID)
			}
		}

		if !e.enableAudit {
			return nil
		}
		meta := map[string]string{
			"strategy":                e.strategy.Name(),
			"total_discounts_applied": strconv.Itoa(len(result.Applied)),
		}
		for i := range result.Applied {
			entry := e.auditEntry(userID, &result.Applied[i], ActionApplied, "", meta)
			entry.OriginalAmount = &result.OriginalAmount
			entry.DiscountAmount = &result.DiscountAmount
			entry.FinalAmount = &result.FinalAmount
			if err := tx.Audits().Append(ctx, entry); err != nil {
				return errors.Wrap(err, "append audit entry")
			}
		}
		return nil
	})
	if err != nil {
		e.recordFailure(ctx, userID, amount, err)
		return nil, err
	}

	if result.HasDiscounts() {
		e.notify("applied", e.notifier.DiscountsApplied(ctx, userID, result))
	}

	return result, nil
}

func (e *Engine) resolver(ledger Ledger) *Resolver {
	return &Resolver{ledger: ledger, now: e.now}
}

func (e *Engine) auditEntry(userID uuid.UUID, d *Discount, action Action, performedBy string, meta map[string]string) *AuditEntry {
	value := d.Value
	return &AuditEntry{
		ID:            uuid.New(),
		UserID:        userID,
		DiscountID:    d.ID,
		Action:        action,
		DiscountType:  d.Type,
		DiscountValue: &value,
		Metadata:      meta,
		PerformedBy:   performedBy,
		CreatedAt:     e.now(),
	}
}

// recordFailure writes a best-effort "failed" audit entry outside the
// aborted unit of work.
func (e *Engine) recordFailure(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, cause error) {
	if !e.enableAudit {
		return
	}
	entry := &AuditEntry{
		ID:             uuid.New(),
		UserID:         userID,
		Action:         ActionFailed,
		OriginalAmount: &amount,
		Metadata: map[string]string{
			"strategy": e.strategy.Name(),
			"error":    cause.Error(),
		},
		CreatedAt: e.now(),
	}
	if err := e.audits.Append(ctx, entry); err != nil {
		e.lg.Warn("failed to record apply failure", zap.Error(err))
	}
}

// notify logs a notification delivery failure without propagating it.
func (e *Engine) notify(event string, err error) {
	if err != nil {
		e.lg.Warn("notification delivery failed", zap.String("event", event), zap.Error(err))
	}
}
