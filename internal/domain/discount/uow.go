package discount

import "context"

// Tx groups the stores participating in one atomic unit of work. Mutations
// performed through a Tx are either all visible or none.
type Tx interface {
	Assignments() Ledger
	Audits() AuditLog
}

// UnitOfWork runs a function inside a transaction. An error from fn rolls
// back every mutation made through the Tx; a nil return commits them.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
