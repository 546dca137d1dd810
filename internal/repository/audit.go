package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const (
	appendAuditSQL = `INSERT INTO discount_audits (id, user_id, discount_id,
		action, original_amount, discount_amount, final_amount, discount_type,
		discount_value, metadata, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	listAuditsByUserSQL = `SELECT id, user_id, discount_id, action,
		original_amount, discount_amount, final_amount, discount_type,
		discount_value, metadata, performed_by, created_at
		FROM discount_audits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
)

var _ discount.AuditLog = (*AuditRepository)(nil)

// AuditRepository implements discount.AuditLog backed by PostgreSQL. Entries
// are append-only; nothing here updates or deletes.
type AuditRepository struct {
	db DB
}

// NewAuditRepository returns an AuditRepository over the given pool or
// transaction.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. Metadata is serialized to JSONB; a zero
// discount ID is stored as NULL (failure entries may not reference a
// specific discount).
func (r *AuditRepository) Append(ctx context.Context, e *discount.AuditEntry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling audit metadata: %w", err)
		}
	}

	var discountID *uuid.UUID
	if e.DiscountID != uuid.Nil {
		discountID = &e.DiscountID
	}

	var discountType *string
	if e.DiscountType != "" {
		t := string(e.DiscountType)
		discountType = &t
	}

	_, err := r.db.Exec(ctx, appendAuditSQL,
		e.ID, e.UserID, discountID, string(e.Action),
		e.OriginalAmount, e.DiscountAmount, e.FinalAmount,
		discountType, e.DiscountValue, metadata, e.PerformedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry %s: %w", e.ID, err)
	}
	return nil
}

// ListByUser returns the user's audit entries, newest first, up to limit.
func (r *AuditRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]discount.AuditEntry, error) {
	rows, err := r.db.Query(ctx, listAuditsByUserSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audits for user %s: %w", userID, err)
	}

	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("listing audits for user %s: %w", userID, err)
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (discount.AuditEntry, error) {
	var (
		e            discount.AuditEntry
		discountID   *uuid.UUID
		action       string
		original     *decimal.Decimal
		amount       *decimal.Decimal
		final        *decimal.Decimal
		discountType *string
		value        *decimal.Decimal
		metadata     []byte
		createdAt    time.Time
	)
	err := row.Scan(
		&e.ID, &e.UserID, &discountID, &action,
		&original, &amount, &final, &discountType, &value,
		&metadata, &e.PerformedBy, &createdAt,
	)
	if err != nil {
		return e, err
	}

	if discountID != nil {
		e.DiscountID = *discountID
	}
	e.Action = discount.Action(action)
	e.OriginalAmount = original
	e.DiscountAmount = amount
	e.FinalAmount = final
	if discountType != nil {
		e.DiscountType = discount.Type(*discountType)
	}
	e.DiscountValue = value
	e.CreatedAt = createdAt

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return e, fmt.Errorf("unmarshaling audit metadata: %w", err)
		}
	}
	return e, nil
}
