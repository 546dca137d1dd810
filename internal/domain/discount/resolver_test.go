package discount

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_EligibleFor(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	setup := func(t *testing.T) (*memState, *Resolver) {
		t.Helper()
		m := newMemState()
		return m, &Resolver{ledger: memLedger{m}, now: func() time.Time { return fixedNow }}
	}

	assign := func(t *testing.T, m *memState, d *Discount) {
		t.Helper()
		_, err := m.Upsert(ctx, userID, d.ID, "admin", "", fixedNow)
		require.NoError(t, err)
	}

	t.Run("orders by priority descending", func(t *testing.T) {
		m, r := setup(t)
		low := m.addDiscount(pct("LOW", "5", 1))
		high := m.addDiscount(pct("HIGH", "20", 10))
		mid := m.addDiscount(pct("MID", "10", 5))
		for _, dd := range []*Discount{low, high, mid} {
			assign(t, m, dd)
		}

		got, err := r.EligibleFor(ctx, userID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "HIGH", got[0].Code)
		assert.Equal(t, "MID", got[1].Code)
		assert.Equal(t, "LOW", got[2].Code)
	})

	t.Run("filters invalid discounts", func(t *testing.T) {
		m, r := setup(t)

		expired := pct("EXPIRED", "10", 1)
		past := fixedNow.Add(-time.Hour)
		expired.ExpiresAt = &past

		notStarted := pct("SOON", "10", 1)
		future := fixedNow.Add(time.Hour)
		notStarted.StartsAt = &future

		inactive := pct("OFF", "10", 1)
		inactive.IsActive = false

		exhausted := pct("GONE", "10", 1)
		total := 5
		exhausted.MaxTotalUsage = &total
		exhausted.CurrentUsage = 5

		ok := pct("OK", "10", 1)

		for _, dd := range []Discount{expired, notStarted, inactive, exhausted, ok} {
			assign(t, m, m.addDiscount(dd))
		}

		got, err := r.EligibleFor(ctx, userID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "OK", got[0].Code)
	})

	t.Run("subset filter intersects with eligibility", func(t *testing.T) {
		m, r := setup(t)
		a := m.addDiscount(pct("A", "10", 2))
		b := m.addDiscount(pct("B", "20", 1))
		assign(t, m, a)
		assign(t, m, b)

		got, err := r.EligibleFor(ctx, userID, b.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "B", got[0].Code)

		// An ID the user is not assigned yields nothing extra.
		got, err = r.EligibleFor(ctx, userID, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty without assignments", func(t *testing.T) {
		m, r := setup(t)
		m.addDiscount(pct("TEN", "10", 1))

		got, err := r.EligibleFor(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
