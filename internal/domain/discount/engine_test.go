package discount

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// --- In-memory stores ---
//
// memState implements Store, Ledger, AuditLog, and UnitOfWork over maps.
// Within serializes units of work on txMu and restores a snapshot when fn
// fails, which is enough to exercise the engine's atomicity contract.

type pair struct {
	user, discount uuid.UUID
}

type memState struct {
	txMu sync.Mutex
	mu   sync.Mutex

	discounts   map[uuid.UUID]*Discount
	assignments map[pair]*Assignment
	audits      []AuditEntry

	// failOnIncrement makes the nth IncrementUsage call fail (1-based).
	failOnIncrement int
	incrementCalls  int

	// staleEligible, when set, is what ListEligible reports regardless of
	// ledger state, standing in for an eligibility read that a concurrent
	// commit has since outdated.
	staleEligible []Discount

	now func() time.Time
}

func newMemState() *memState {
	return &memState{
		discounts:   make(map[uuid.UUID]*Discount),
		assignments: make(map[pair]*Assignment),
		now:         func() time.Time { return fixedNow },
	}
}

func (m *memState) addDiscount(d Discount) *Discount {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	m.discounts[d.ID] = &cp
	return &cp
}

// Store

func (m *memState) Find(_ context.Context, id uuid.UUID) (*Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discounts[id]
	if !ok || d.DeletedAt != nil {
		return nil, &NotFoundError{ID: id}
	}
	cp := *d
	return &cp, nil
}

func (m *memState) FindByCode(_ context.Context, code string) (*Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.discounts {
		if d.Code == code && d.DeletedAt == nil {
			cp := *d
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Code: code}
}

func (m *memState) ListValid(_ context.Context) ([]Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Discount
	for _, d := range m.discounts {
		if d.Valid(m.now()) {
			out = append(out, *d)
		}
	}
	return out, nil
}

// Ledger

func (m *memState) FindAssignment(_ context.Context, userID, discountID uuid.UUID) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[pair{userID, discountID}]
	if !ok {
		return nil, ErrNotAssigned
	}
	cp := *a
	return &cp, nil
}

func (m *memState) ListEligible(_ context.Context, userID uuid.UUID) ([]Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleEligible != nil {
		return m.staleEligible, nil
	}
	now := m.now()
	var out []Discount
	for key, a := range m.assignments {
		if key.user != userID {
			continue
		}
		d, ok := m.discounts[key.discount]
		if !ok {
			continue
		}
		if a.Usable(d, now) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memState) Upsert(_ context.Context, userID, discountID uuid.UUID, assignedBy, notes string, at time.Time) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pair{userID, discountID}
	if existing, ok := m.assignments[key]; ok {
		if existing.Active() {
			return nil, ErrAlreadyAssigned
		}
	}
	a := &Assignment{
		UserID:     userID,
		DiscountID: discountID,
		AssignedAt: at,
		AssignedBy: assignedBy,
		Notes:      notes,
	}
	m.assignments[key] = a
	cp := *a
	return &cp, nil
}

func (m *memState) Revoke(_ context.Context, userID, discountID uuid.UUID, revokedBy string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[pair{userID, discountID}]
	if !ok || !a.Active() {
		return false, nil
	}
	a.RevokedAt = &at
	a.RevokedBy = revokedBy
	return true, nil
}

func (m *memState) IncrementUsage(_ context.Context, userID, discountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrementCalls++
	if m.failOnIncrement > 0 && m.incrementCalls == m.failOnIncrement {
		return errors.New("store unavailable")
	}
	a, ok := m.assignments[pair{userID, discountID}]
	if !ok || !a.Active() {
		return nil
	}
	// Re-check under the lock, as the Ledger contract requires.
	if d, ok := m.discounts[discountID]; ok && a.UsageCount >= d.MaxUsagePerUser {
		return errors.Wrapf(ErrUsageLimitReached, "user %s, discount %s", userID, discountID)
	}
	a.UsageCount++
	if d, ok := m.discounts[discountID]; ok {
		d.CurrentUsage++
	}
	return nil
}

// AuditLog

func (m *memState) Append(_ context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *e)
	return nil
}

func (m *memState) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for i := len(m.audits) - 1; i >= 0 && len(out) < limit; i-- {
		if m.audits[i].UserID == userID {
			out = append(out, m.audits[i])
		}
	}
	return out, nil
}

// UnitOfWork

type memTx struct{ m *memState }

func (t *memTx) Assignments() Ledger { return memLedger{t.m} }
func (t *memTx) Audits() AuditLog    { return t.m }

// memLedger adapts memState to the Ledger interface; Find is renamed to
// avoid clashing with the Store method of the same name.
type memLedger struct{ m *memState }

func (l memLedger) Find(ctx context.Context, userID, discountID uuid.UUID) (*Assignment, error) {
	return l.m.FindAssignment(ctx, userID, discountID)
}

func (l memLedger) ListEligible(ctx context.Context, userID uuid.UUID) ([]Discount, error) {
	return l.m.ListEligible(ctx, userID)
}

func (l memLedger) Upsert(ctx context.Context, userID, discountID uuid.UUID, assignedBy, notes string, at time.Time) (*Assignment, error) {
	return l.m.Upsert(ctx, userID, discountID, assignedBy, notes, at)
}

func (l memLedger) Revoke(ctx context.Context, userID, discountID uuid.UUID, revokedBy string, at time.Time) (bool, error) {
	return l.m.Revoke(ctx, userID, discountID, revokedBy, at)
}

func (l memLedger) IncrementUsage(ctx context.Context, userID, discountID uuid.UUID) error {
	return l.m.IncrementUsage(ctx, userID, discountID)
}

func (m *memState) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapAssignments := make(map[pair]*Assignment, len(m.assignments))
	for k, v := range m.assignments {
		cp := *v
		snapAssignments[k] = &cp
	}
	snapDiscounts := make(map[uuid.UUID]*Discount, len(m.discounts))
	for k, v := range m.discounts {
		cp := *v
		snapDiscounts[k] = &cp
	}
	snapAudits := len(m.audits)
	m.mu.Unlock()

	if err := fn(ctx, &memTx{m}); err != nil {
		m.mu.Lock()
		m.assignments = snapAssignments
		m.discounts = snapDiscounts
		m.audits = m.audits[:snapAudits]
		m.mu.Unlock()
		return err
	}
	return nil
}

// --- Notifier spy ---

type spyNotifier struct {
	mu       sync.Mutex
	assigned int
	revoked  int
	applied  int
	err      error
}

func (s *spyNotifier) DiscountAssigned(context.Context, uuid.UUID, *Discount, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned++
	return s.err
}

func (s *spyNotifier) DiscountRevoked(context.Context, uuid.UUID, *Discount, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked++
	return s.err
}

func (s *spyNotifier) DiscountsApplied(context.Context, uuid.UUID, *ApplicationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied++
	return s.err
}

// --- Helpers ---

func newTestEngine(t *testing.T, m *memState, strategyName string) (*Engine, *spyNotifier) {
	t.Helper()
	strategy, err := NewStrategy(strategyName, DefaultStrategyConfig())
	require.NoError(t, err)

	notifier := &spyNotifier{}
	e := NewEngine(m, memLedger{m}, m, m, strategy, EngineOptions{
		Notifier: notifier,
		Now:      func() time.Time { return fixedNow },
	})
	return e, notifier
}

func (m *memState) assignment(t *testing.T, userID, discountID uuid.UUID) *Assignment {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[pair{userID, discountID}]
	require.True(t, ok, "assignment not found")
	cp := *a
	return &cp
}

func (m *memState) auditActions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Action, len(m.audits))
	for i := range m.audits {
		out[i] = m.audits[i].Action
	}
	return out
}

// --- Tests ---

func TestEngine_AssignDiscount(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("assigns and audits", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, notifier := newTestEngine(t, m, StrategySequential)

		a, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{Notes: "welcome"})
		require.NoError(t, err)

		assert.Equal(t, userID, a.UserID)
		assert.Equal(t, "admin", a.AssignedBy)
		assert.True(t, a.Active())
		assert.Equal(t, []Action{ActionAssigned}, m.auditActions())
		assert.Equal(t, 1, notifier.assigned)
	})

	t.Run("unknown discount", func(t *testing.T) {
		m := newMemState()
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, uuid.New(), "admin", AssignOptions{})

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("inactive discount", func(t *testing.T) {
		m := newMemState()
		dd := pct("OFF", "10", 1)
		dd.IsActive = false
		stored := m.addDiscount(dd)
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, stored.ID, "admin", AssignOptions{})
		require.ErrorIs(t, err, ErrInactive)
	})

	t.Run("already assigned", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		_, err = e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.ErrorIs(t, err, ErrAlreadyAssigned)
	})

	t.Run("re-assign after revoke resets usage", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		_, err = e.ApplyDiscounts(ctx, userID, d("100"))
		require.NoError(t, err)
		assert.Equal(t, 1, m.assignment(t, userID, dd.ID).UsageCount)

		revoked, err := e.RevokeDiscount(ctx, userID, dd.ID, "admin")
		require.NoError(t, err)
		require.True(t, revoked)

		_, err = e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		a := m.assignment(t, userID, dd.ID)
		assert.True(t, a.Active())
		assert.Equal(t, 0, a.UsageCount)
	})
}

func TestEngine_RevokeDiscount(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("revokes and audits", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, notifier := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		revoked, err := e.RevokeDiscount(ctx, userID, dd.ID, "admin")
		require.NoError(t, err)
		assert.True(t, revoked)
		assert.Equal(t, []Action{ActionAssigned, ActionRevoked}, m.auditActions())
		assert.Equal(t, 1, notifier.revoked)
	})

	t.Run("no active assignment returns false", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, notifier := newTestEngine(t, m, StrategySequential)

		revoked, err := e.RevokeDiscount(ctx, userID, dd.ID, "admin")
		require.NoError(t, err)
		assert.False(t, revoked)
		assert.Empty(t, m.auditActions())
		assert.Zero(t, notifier.revoked)
	})

	t.Run("unknown discount", func(t *testing.T) {
		m := newMemState()
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.RevokeDiscount(ctx, userID, uuid.New(), "admin")

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestEngine_IsEligibleFor(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	m := newMemState()
	dd := m.addDiscount(pct("TEN", "10", 1))
	e, _ := newTestEngine(t, m, StrategySequential)

	ok, err := e.IsEligibleFor(ctx, userID, dd.ID)
	require.NoError(t, err)
	assert.False(t, ok, "not assigned yet")

	_, err = e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
	require.NoError(t, err)

	ok, err = e.IsEligibleFor(ctx, userID, dd.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Exhaust the single allowed usage.
	_, err = e.ApplyDiscounts(ctx, userID, d("100"))
	require.NoError(t, err)

	ok, err = e.IsEligibleFor(ctx, userID, dd.ID)
	require.NoError(t, err)
	assert.False(t, ok, "usage limit reached")

	ok, err = e.IsEligibleFor(ctx, userID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok, "unknown discount")
}

func TestEngine_CalculateDiscounts(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	m := newMemState()
	dd := m.addDiscount(pct("TEN", "10", 1))
	e, notifier := newTestEngine(t, m, StrategySequential)

	_, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
	require.NoError(t, err)
	auditsBefore := len(m.auditActions())

	res, err := e.CalculateDiscounts(ctx, userID, d("100"))
	require.NoError(t, err)
	assertAmounts(t, res, "10.00", "90.00")

	// Preview must not mutate anything.
	assert.Equal(t, 0, m.assignment(t, userID, dd.ID).UsageCount)
	assert.Len(t, m.auditActions(), auditsBefore)
	assert.Zero(t, notifier.applied)

	// Preview is repeatable.
	res, err = e.CalculateDiscounts(ctx, userID, d("100"))
	require.NoError(t, err)
	assertAmounts(t, res, "10.00", "90.00")
}

func TestEngine_ApplyDiscounts(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("applies, increments, audits, notifies", func(t *testing.T) {
		m := newMemState()
		ten := m.addDiscount(pct("TEN", "10", 2))
		twenty := m.addDiscount(pct("TWENTY", "20", 1))
		e, notifier := newTestEngine(t, m, StrategySequential)

		for _, id := range []uuid.UUID{ten.ID, twenty.ID} {
			_, err := e.AssignDiscount(ctx, userID, id, "admin", AssignOptions{})
			require.NoError(t, err)
		}

		res, err := e.ApplyDiscounts(ctx, userID, d("100"))
		require.NoError(t, err)
		assertAmounts(t, res, "28.00", "72.00")
		require.Len(t, res.Applied, 2)

		assert.Equal(t, 1, m.assignment(t, userID, ten.ID).UsageCount)
		assert.Equal(t, 1, m.assignment(t, userID, twenty.ID).UsageCount)

		actions := m.auditActions()
		assert.Equal(t, []Action{ActionAssigned, ActionAssigned, ActionApplied, ActionApplied}, actions)

		// Applied entries share the computed totals.
		m.mu.Lock()
		for _, entry := range m.audits[2:] {
			require.NotNil(t, entry.OriginalAmount)
			assert.True(t, d("100").Equal(*entry.OriginalAmount))
			assert.True(t, d("28.00").Equal(*entry.DiscountAmount))
			assert.True(t, d("72.00").Equal(*entry.FinalAmount))
			assert.Equal(t, "sequential", entry.Metadata["strategy"])
		}
		m.mu.Unlock()

		assert.Equal(t, 1, notifier.applied)
	})

	t.Run("non-positive amount passes through without mutation", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, notifier := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		res, err := e.ApplyDiscounts(ctx, userID, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, res.DiscountAmount.IsZero())
		assert.Empty(t, res.Applied)
		assert.Equal(t, 0, m.assignment(t, userID, dd.ID).UsageCount)
		assert.Zero(t, notifier.applied)
	})

	t.Run("usage limit stabilizes the counter", func(t *testing.T) {
		m := newMemState()
		dd := pct("TEN", "10", 1)
		dd.MaxUsagePerUser = 2
		stored := m.addDiscount(dd)
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, stored.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		for i, want := range []string{"10.00", "10.00", "0"} {
			res, err := e.ApplyDiscounts(ctx, userID, d("100"))
			require.NoError(t, err, "call %d", i+1)
			assert.True(t, d(want).Equal(res.DiscountAmount),
				"call %d: want %s, got %s", i+1, want, res.DiscountAmount)
		}

		assert.Equal(t, 2, m.assignment(t, userID, stored.ID).UsageCount)
	})

	t.Run("stale eligibility is bounded by the locked counter", func(t *testing.T) {
		m := newMemState()
		stored := m.addDiscount(pct("TEN", "10", 1))
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, stored.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		res, err := e.ApplyDiscounts(ctx, userID, d("100"))
		require.NoError(t, err)
		assertAmounts(t, res, "10.00", "90.00")

		// A second caller that read eligibility before the first commit
		// still sees the discount; the increment's locked re-check must
		// refuse rather than land usage at 2.
		m.mu.Lock()
		m.staleEligible = []Discount{*stored}
		m.mu.Unlock()

		_, err = e.ApplyDiscounts(ctx, userID, d("100"))
		require.ErrorIs(t, err, ErrUsageLimitReached)

		assert.Equal(t, 1, m.assignment(t, userID, stored.ID).UsageCount)
		actions := m.auditActions()
		require.Len(t, actions, 3)
		assert.Equal(t, ActionFailed, actions[2], "rolled-back apply recorded as failed")
	})

	t.Run("revoked discounts contribute nothing", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, _ := newTestEngine(t, m, StrategySequential)

		_, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		revoked, err := e.RevokeDiscount(ctx, userID, dd.ID, "admin")
		require.NoError(t, err)
		require.True(t, revoked)

		res, err := e.ApplyDiscounts(ctx, userID, d("100"))
		require.NoError(t, err)
		assert.True(t, res.DiscountAmount.IsZero())
		assert.Empty(t, res.Applied)
		assert.Equal(t, 0, m.assignment(t, userID, dd.ID).UsageCount)
	})

	t.Run("explicit subset restricts application", func(t *testing.T) {
		m := newMemState()
		ten := m.addDiscount(pct("TEN", "10", 2))
		twenty := m.addDiscount(pct("TWENTY", "20", 1))
		e, _ := newTestEngine(t, m, StrategySequential)

		for _, id := range []uuid.UUID{ten.ID, twenty.ID} {
			_, err := e.AssignDiscount(ctx, userID, id, "admin", AssignOptions{})
			require.NoError(t, err)
		}

		res, err := e.ApplyDiscounts(ctx, userID, d("100"), twenty.ID)
		require.NoError(t, err)
		assertAmounts(t, res, "20.00", "80.00")
		require.Len(t, res.Applied, 1)
		assert.Equal(t, "TWENTY", res.Applied[0].Code)

		assert.Equal(t, 0, m.assignment(t, userID, ten.ID).UsageCount)
		assert.Equal(t, 1, m.assignment(t, userID, twenty.ID).UsageCount)
	})

	t.Run("notifier failure does not fail the apply", func(t *testing.T) {
		m := newMemState()
		dd := m.addDiscount(pct("TEN", "10", 1))
		e, notifier := newTestEngine(t, m, StrategySequential)
		notifier.err = errors.New("broker down")

		_, err := e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
		require.NoError(t, err)

		res, err := e.ApplyDiscounts(ctx, userID, d("100"))
		require.NoError(t, err)
		assertAmounts(t, res, "10.00", "90.00")
		assert.Equal(t, 1, m.assignment(t, userID, dd.ID).UsageCount)
	})

	t.Run("mid-apply failure rolls everything back", func(t *testing.T) {
		m := newMemState()
		ten := m.addDiscount(pct("TEN", "10", 2))
		twenty := m.addDiscount(pct("TWENTY", "20", 1))
		e, notifier := newTestEngine(t, m, StrategySequential)

		for _, id := range []uuid.UUID{ten.ID, twenty.ID} {
			_, err := e.AssignDiscount(ctx, userID, id, "admin", AssignOptions{})
			require.NoError(t, err)
		}

		m.failOnIncrement = m.incrementCalls + 2

		_, err := e.ApplyDiscounts(ctx, userID, d("100"))
		require.Error(t, err)

		// No partial effects are observable.
		assert.Equal(t, 0, m.assignment(t, userID, ten.ID).UsageCount)
		assert.Equal(t, 0, m.assignment(t, userID, twenty.ID).UsageCount)

		actions := m.auditActions()
		require.Len(t, actions, 3)
		assert.Equal(t, ActionFailed, actions[2], "failure recorded outside the unit of work")
		assert.Zero(t, notifier.applied)
	})
}

func TestEngine_ApplyDiscounts_Concurrent(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	m := newMemState()
	dd := pct("TEN", "10", 1)
	dd.MaxUsagePerUser = 3
	stored := m.addDiscount(dd)
	e, _ := newTestEngine(t, m, StrategySequential)

	_, err := e.AssignDiscount(ctx, userID, stored.ID, "admin", AssignOptions{})
	require.NoError(t, err)

	const callers = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.ApplyDiscounts(ctx, userID, d("100"))
			if err == nil && res.HasDiscounts() {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded, "exactly max_usage_per_user applies succeed")
	assert.Equal(t, 3, m.assignment(t, userID, stored.ID).UsageCount)
}

func TestEngine_AuditDisabled(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	m := newMemState()
	dd := m.addDiscount(pct("TEN", "10", 1))
	strategy, err := NewStrategy(StrategySequential, DefaultStrategyConfig())
	require.NoError(t, err)

	e := NewEngine(m, memLedger{m}, m, m, strategy, EngineOptions{
		DisableAudit: true,
		Now:          func() time.Time { return fixedNow },
	})

	_, err = e.AssignDiscount(ctx, userID, dd.ID, "admin", AssignOptions{})
	require.NoError(t, err)

	_, err = e.ApplyDiscounts(ctx, userID, d("100"))
	require.NoError(t, err)

	assert.Empty(t, m.auditActions())
	assert.Equal(t, 1, m.assignment(t, userID, dd.ID).UsageCount)
}
