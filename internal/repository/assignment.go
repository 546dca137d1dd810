package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	findAssignmentSQL = `SELECT user_id, discount_id, assigned_at, assigned_by,
		revoked_at, revoked_by, usage_count, notes
		FROM user_discounts WHERE user_id = $1 AND discount_id = $2`

	findAssignmentForUpdateSQL = findAssignmentSQL + ` FOR UPDATE`

	listEligibleSQL = `SELECT d.id, d.code, d.name, d.description, d.discount_type,
		d.value, d.starts_at, d.expires_at, d.max_usage_per_user, d.max_total_usage,
		d.current_usage, d.is_active, d.priority, d.deleted_at
		FROM discounts d
		JOIN user_discounts ud ON ud.discount_id = d.id
		WHERE ud.user_id = $1
		  AND ud.revoked_at IS NULL
		  AND ud.usage_count < d.max_usage_per_user
		  AND d.deleted_at IS NULL
		  AND d.is_active
		  AND (d.starts_at IS NULL OR d.starts_at <= now())
		  AND (d.expires_at IS NULL OR d.expires_at >= now())
		  AND (d.max_total_usage IS NULL OR d.current_usage < d.max_total_usage)
		ORDER BY d.priority DESC, d.created_at`

	insertAssignmentSQL = `INSERT INTO user_discounts
		(user_id, discount_id, assigned_at, assigned_by, usage_count, notes)
		VALUES ($1, $2, $3, $4, 0, $5)`

	reviveAssignmentSQL = `UPDATE user_discounts
		SET revoked_at = NULL, revoked_by = '', assigned_at = $3,
			assigned_by = $4, usage_count = 0, notes = $5
		WHERE user_id = $1 AND discount_id = $2`

	revokeAssignmentSQL = `UPDATE user_discounts
		SET revoked_at = $3, revoked_by = $4
		WHERE user_id = $1 AND discount_id = $2 AND revoked_at IS NULL`

	lockUsageSQL = `SELECT ud.usage_count, d.max_usage_per_user
		FROM user_discounts ud
		JOIN discounts d ON d.id = ud.discount_id
		WHERE ud.user_id = $1 AND ud.discount_id = $2 AND ud.revoked_at IS NULL
		FOR UPDATE OF ud`

	incrementUsageSQL = `UPDATE user_discounts
		SET usage_count = usage_count + 1
		WHERE user_id = $1 AND discount_id = $2 AND revoked_at IS NULL`

	incrementGlobalUsageSQL = `UPDATE discounts
		SET current_usage = current_usage + 1
		WHERE id = $1`
)

var _ discount.Ledger = (*AssignmentRepository)(nil)

// AssignmentRepository implements discount.Ledger backed by PostgreSQL.
// Mutating methods are expected to run inside a unit of work; IncrementUsage
// relies on the ambient transaction to hold its row lock until commit.
type AssignmentRepository struct {
	db DB
}

// NewAssignmentRepository returns an AssignmentRepository over the given pool
// or transaction.
func NewAssignmentRepository(db DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Find returns the assignment row for the pair, revoked or not.
func (r *AssignmentRepository) Find(ctx context.Context, userID, discountID uuid.UUID) (*discount.Assignment, error) {
	return r.find(ctx, findAssignmentSQL, userID, discountID)
}

// ListEligible returns the discounts the user can redeem right now, ordered
// by priority descending.
func (r *AssignmentRepository) ListEligible(ctx context.Context, userID uuid.UUID) ([]discount.Discount, error) {
	rows, err := r.db.Query(ctx, listEligibleSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing eligible discounts for user %s: %w", userID, err)
	}

	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("listing eligible discounts for user %s: %w", userID, err)
	}
	return discounts, nil
}

// Upsert creates a fresh assignment or revives a revoked one. The existing
// row, if any, is locked for the duration of the transaction so concurrent
// assigns serialize.
func (r *AssignmentRepository) Upsert(ctx context.Context, userID, discountID uuid.UUID, assignedBy, notes string, at time.Time) (*discount.Assignment, error) {
	existing, err := r.find(ctx, findAssignmentForUpdateSQL, userID, discountID)
	switch {
	case errors.Is(err, discount.ErrNotAssigned):
		if _, err := r.db.Exec(ctx, insertAssignmentSQL, userID, discountID, at, assignedBy, notes); err != nil {
			return nil, fmt.Errorf("assigning discount %s to user %s: %w", discountID, userID, err)
		}
	case err != nil:
		return nil, err
	case existing.Active():
		return nil, errors.Wrapf(discount.ErrAlreadyAssigned, "discount %s, user %s", discountID, userID)
	default:
		// Revoked row: revive as a fresh grant with the counter reset.
		if _, err := r.db.Exec(ctx, reviveAssignmentSQL, userID, discountID, at, assignedBy, notes); err != nil {
			return nil, fmt.Errorf("reviving discount %s for user %s: %w", discountID, userID, err)
		}
	}

	return &discount.Assignment{
		UserID:     userID,
		DiscountID: discountID,
		AssignedAt: at,
		AssignedBy: assignedBy,
		Notes:      notes,
	}, nil
}

// Revoke marks an active assignment revoked. Returns false when no active
// assignment exists.
func (r *AssignmentRepository) Revoke(ctx context.Context, userID, discountID uuid.UUID, revokedBy string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, revokeAssignmentSQL, userID, discountID, at, revokedBy)
	if err != nil {
		return false, fmt.Errorf("revoking discount %s from user %s: %w", discountID, userID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementUsage locks the active assignment row exclusively, re-checks the
// per-user limit under the lock, then adds 1 to the usage counter and to the
// discount's global redemption counter. The re-check matters under READ
// COMMITTED: a caller that resolved eligibility before a concurrent apply
// committed re-reads the updated counter once the lock is granted, and fails
// with ErrUsageLimitReached instead of incrementing past the limit. A missing
// or revoked row is a no-op, mirroring the eligibility decision made earlier
// in the same transaction.
func (r *AssignmentRepository) IncrementUsage(ctx context.Context, userID, discountID uuid.UUID) error {
	var usageCount, maxPerUser int32
	err := r.db.QueryRow(ctx, lockUsageSQL, userID, discountID).Scan(&usageCount, &maxPerUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("locking usage row for user %s, discount %s: %w", userID, discountID, err)
	}

	if usageCount >= maxPerUser {
		return errors.Wrapf(discount.ErrUsageLimitReached, "user %s, discount %s", userID, discountID)
	}

	if _, err := r.db.Exec(ctx, incrementUsageSQL, userID, discountID); err != nil {
		return fmt.Errorf("incrementing usage for user %s, discount %s: %w", userID, discountID, err)
	}
	if _, err := r.db.Exec(ctx, incrementGlobalUsageSQL, discountID); err != nil {
		return fmt.Errorf("incrementing global usage for discount %s: %w", discountID, err)
	}
	return nil
}

func (r *AssignmentRepository) find(ctx context.Context, sql string, userID, discountID uuid.UUID) (*discount.Assignment, error) {
	rows, err := r.db.Query(ctx, sql, userID, discountID)
	if err != nil {
		return nil, fmt.Errorf("finding assignment for user %s, discount %s: %w", userID, discountID, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAssignment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotAssigned
		}
		return nil, fmt.Errorf("finding assignment for user %s, discount %s: %w", userID, discountID, err)
	}
	return &a, nil
}

func scanAssignment(row pgx.CollectableRow) (discount.Assignment, error) {
	var (
		a          discount.Assignment
		revokedAt  *time.Time
		usageCount int32
	)
	err := row.Scan(
		&a.UserID, &a.DiscountID, &a.AssignedAt, &a.AssignedBy,
		&revokedAt, &a.RevokedBy, &usageCount, &a.Notes,
	)
	a.RevokedAt = revokedAt
	a.UsageCount = int(usageCount)
	return a, err
}
