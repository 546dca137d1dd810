package discount

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action labels the state change recorded by an audit entry.
type Action string

const (
	ActionAssigned Action = "assigned"
	ActionRevoked  Action = "revoked"
	ActionApplied  Action = "applied"
	ActionFailed   Action = "failed"
)

// AuditEntry is an append-only record of a discount operation. The engine
// never updates or deletes entries. Amount fields are only populated for
// apply actions; an apply touching N discounts yields N entries sharing the
// same computed totals.
type AuditEntry struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	DiscountID uuid.UUID
	Action     Action

	OriginalAmount *decimal.Decimal
	DiscountAmount *decimal.Decimal
	FinalAmount    *decimal.Decimal

	// Snapshot of the rule at the time of the action.
	DiscountType  Type
	DiscountValue *decimal.Decimal

	Metadata    map[string]string
	PerformedBy string
	CreatedAt   time.Time
}

// AuditLog records and reads audit entries. Append must participate in the
// same atomic unit as the mutation that triggered it when called through a
// unit of work.
type AuditLog interface {
	Append(ctx context.Context, entry *AuditEntry) error
	// ListByUser returns the user's entries, newest first, up to limit.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]AuditEntry, error)
}
