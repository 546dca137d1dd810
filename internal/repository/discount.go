package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const discountColumns = `id, code, name, description, discount_type, value,
	starts_at, expires_at, max_usage_per_user, max_total_usage, current_usage,
	is_active, priority, deleted_at`

const (
	findDiscountSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE id = $1 AND deleted_at IS NULL`

	findDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE UPPER(code) = UPPER($1) AND deleted_at IS NULL`

	listValidDiscountsSQL = `SELECT ` + discountColumns + `
		FROM discounts
		WHERE deleted_at IS NULL
		  AND is_active
		  AND (starts_at IS NULL OR starts_at <= now())
		  AND (expires_at IS NULL OR expires_at >= now())
		  AND (max_total_usage IS NULL OR current_usage < max_total_usage)
		ORDER BY priority DESC, created_at`

	insertDiscountSQL = `INSERT INTO discounts (id, code, name, description,
		discount_type, value, starts_at, expires_at, max_usage_per_user,
		max_total_usage, is_active, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO NOTHING`
)

var _ discount.Store = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Store backed by PostgreSQL.
// Tombstoned (soft-deleted) rows are invisible to every lookup here; they
// remain joinable for historical audit reads.
type DiscountRepository struct {
	db DB
}

// NewDiscountRepository returns a DiscountRepository over the given pool or
// transaction.
func NewDiscountRepository(db DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// Find looks up a live discount by ID. Returns discount.NotFoundError when
// no such discount exists.
func (r *DiscountRepository) Find(ctx context.Context, id uuid.UUID) (*discount.Discount, error) {
	rows, err := r.db.Query(ctx, findDiscountSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding discount %s: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &discount.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("finding discount %s: %w", id, err)
	}
	return &d, nil
}

// FindByCode looks up a live discount by its human-facing code
// (case-insensitive). Returns discount.NotFoundError when no match exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	rows, err := r.db.Query(ctx, findDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &discount.NotFoundError{Code: code}
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &d, nil
}

// ListValid returns every currently redeemable discount ordered by priority
// descending.
func (r *DiscountRepository) ListValid(ctx context.Context) ([]discount.Discount, error) {
	rows, err := r.db.Query(ctx, listValidDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing valid discounts: %w", err)
	}

	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("listing valid discounts: %w", err)
	}
	return discounts, nil
}

// Create inserts a discount rule, ignoring duplicates by code. Used by the
// seeding tools.
func (r *DiscountRepository) Create(ctx context.Context, d *discount.Discount) error {
	_, err := r.db.Exec(ctx, insertDiscountSQL,
		d.ID, d.Code, d.Name, d.Description, string(d.Type), d.Value,
		d.StartsAt, d.ExpiresAt, d.MaxUsagePerUser, d.MaxTotalUsage,
		d.IsActive, d.Priority,
	)
	if err != nil {
		return fmt.Errorf("creating discount %q: %w", d.Code, err)
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d             discount.Discount
		discountType  string
		value         decimal.Decimal
		startsAt      *time.Time
		expiresAt     *time.Time
		maxTotalUsage *int32
		maxPerUser    int32
		currentUsage  int32
		priority      int32
		deletedAt     *time.Time
	)
	err := row.Scan(
		&d.ID, &d.Code, &d.Name, &d.Description, &discountType, &value,
		&startsAt, &expiresAt, &maxPerUser, &maxTotalUsage, &currentUsage,
		&d.IsActive, &priority, &deletedAt,
	)
	d.Type = discount.Type(discountType)
	d.Value = value
	d.StartsAt = startsAt
	d.ExpiresAt = expiresAt
	d.MaxUsagePerUser = int(maxPerUser)
	if maxTotalUsage != nil {
		total := int(*maxTotalUsage)
		d.MaxTotalUsage = &total
	}
	d.CurrentUsage = int(currentUsage)
	d.Priority = int(priority)
	d.DeletedAt = deletedAt
	return d, err
}
