package pricing

import (
	"testing"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func planAt(price int64) domain.Plan {
	return domain.Plan{
		ID:           "vps-basic",
		Name:         "VPS Basic",
		Family:       domain.FamilyVPS,
		RAMGB:        2,
		PriceMonthly: price,
		Active:       true,
	}
}

func defaultCalculator() *Calculator {
	return NewCalculator(DefaultPromoTable(), RoundHalfUp)
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

// =============================================================================
// Billing Period Tests
// =============================================================================

func TestBillingPeriod_Terms(t *testing.T) {
	tests := []struct {
		period   BillingPeriod
		months   int64
		discount int64
	}{
		{Monthly, 1, 0},
		{Quarterly, 3, 5},
		{Yearly, 12, 15},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			assert.Equal(t, tt.months, tt.period.Months())
			assert.Equal(t, tt.discount, tt.period.DiscountPercent())
			assert.True(t, tt.period.Valid())
		})
	}
}

func TestParseBillingPeriod(t *testing.T) {
	p, err := ParseBillingPeriod(" Yearly ")
	require.NoError(t, err)
	assert.Equal(t, Yearly, p)

	_, err = ParseBillingPeriod("weekly")
	assert.ErrorIs(t, err, ErrUnknownBillingPeriod)
}

// =============================================================================
// ComputePrice Tests
// =============================================================================

func TestComputePrice_DiscountComposition(t *testing.T) {
	// $20/mo, yearly (15%), SAVE20 (20%) expressed in whole units.
	b, err := defaultCalculator().ComputePrice(planAt(20), Yearly, "SAVE20")
	require.NoError(t, err)

	assert.Equal(t, int64(12), b.Months)
	assert.Equal(t, int64(240), b.Subtotal)
	assert.Equal(t, int64(36), b.PeriodDiscountAmount)
	assert.Equal(t, int64(204), b.AfterPeriod)
	assert.Equal(t, "SAVE20", b.PromoCode)
	assert.Equal(t, int64(41), b.PromoDiscountAmount) // 40.8 rounds up
	assert.Equal(t, int64(163), b.Total)
	assert.True(t, decimal.NewFromInt(163).Div(decimal.NewFromInt(12)).Equal(b.EffectiveMonthlyRate))
	assert.Equal(t, "13.58", b.EffectiveMonthlyRate.StringFixed(2))
}

func TestComputePrice_DiscountCompositionInCents(t *testing.T) {
	b, err := defaultCalculator().ComputePrice(planAt(2000), Yearly, "save20")
	require.NoError(t, err)

	assert.Equal(t, int64(24000), b.Subtotal)
	assert.Equal(t, int64(3600), b.PeriodDiscountAmount)
	assert.Equal(t, int64(4080), b.PromoDiscountAmount)
	assert.Equal(t, int64(16320), b.Total)
}

func TestComputePrice_PromoAppliesAfterPeriodDiscount(t *testing.T) {
	b, err := defaultCalculator().ComputePrice(planAt(1000), Yearly, "WELCOME10")
	require.NoError(t, err)

	// Additive stacking would take 25% of 12000 = 3000; composed it is 1800 + 1020.
	assert.Equal(t, int64(1800), b.PeriodDiscountAmount)
	assert.Equal(t, int64(1020), b.PromoDiscountAmount)
	assert.Equal(t, int64(9180), b.Total)
}

func TestComputePrice_MonthlyHasNoPeriodDiscount(t *testing.T) {
	b, err := defaultCalculator().ComputePrice(planAt(999), Monthly, "")
	require.NoError(t, err)

	assert.Equal(t, int64(999), b.Subtotal)
	assert.Zero(t, b.PeriodDiscountAmount)
	assert.Zero(t, b.PromoDiscountAmount)
	assert.Equal(t, int64(999), b.Total)
	assert.True(t, decimal.NewFromInt(999).Equal(b.EffectiveMonthlyRate))
}

func TestComputePrice_Quarterly(t *testing.T) {
	b, err := defaultCalculator().ComputePrice(planAt(1500), Quarterly, "")
	require.NoError(t, err)

	assert.Equal(t, int64(4500), b.Subtotal)
	assert.Equal(t, int64(225), b.PeriodDiscountAmount)
	assert.Equal(t, int64(4275), b.Total)
	assert.Equal(t, "1425", b.EffectiveMonthlyRate.String())
}

func TestComputePrice_FreePlan(t *testing.T) {
	for _, period := range BillingPeriods {
		t.Run(string(period), func(t *testing.T) {
			b, err := defaultCalculator().ComputePrice(planAt(0), period, "SAVE20")
			require.NoError(t, err)
			assert.Zero(t, b.Subtotal)
			assert.Zero(t, b.Total)
			assert.True(t, b.EffectiveMonthlyRate.IsZero())
		})
	}
}

func TestComputePrice_ZeroFloor(t *testing.T) {
	promos := NewPromoTable([]PromoCode{{Code: "FREE", DiscountPercent: 100, Active: true}})
	calc := NewCalculator(promos, RoundHalfUp)

	for _, period := range BillingPeriods {
		t.Run(string(period), func(t *testing.T) {
			b, err := calc.ComputePrice(planAt(1234), period, "FREE")
			require.NoError(t, err)
			assert.Zero(t, b.Total)
			assert.GreaterOrEqual(t, b.Total, int64(0))
		})
	}
}

func TestComputePrice_UnknownPromoAppliesNoDiscount(t *testing.T) {
	b, err := defaultCalculator().ComputePrice(planAt(2000), Yearly, "BOGUS")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPromoCode)

	assert.Empty(t, b.PromoCode)
	assert.Zero(t, b.PromoDiscountAmount)
	assert.Equal(t, int64(20400), b.Total)
}

func TestComputePrice_NilResolverRejectsCodes(t *testing.T) {
	var calc Calculator
	b, err := calc.ComputePrice(planAt(100), Monthly, "SAVE20")
	assert.ErrorIs(t, err, domain.ErrInvalidPromoCode)
	assert.Equal(t, int64(100), b.Total)

	_, err = calc.ComputePrice(planAt(100), Monthly, "   ")
	assert.NoError(t, err)
}

func TestComputePrice_InvalidInputs(t *testing.T) {
	_, err := defaultCalculator().ComputePrice(planAt(100), BillingPeriod("weekly"), "")
	assert.ErrorIs(t, err, ErrUnknownBillingPeriod)

	_, err = defaultCalculator().ComputePrice(planAt(-1), Monthly, "")
	assert.ErrorIs(t, err, domain.ErrNegativePrice)
}

// =============================================================================
// Rounding Tests
// =============================================================================

func TestComputePrice_RoundingModes(t *testing.T) {
	promos := NewPromoTable([]PromoCode{{Code: "TEN", DiscountPercent: 10, Active: true}})

	tests := []struct {
		name           string
		rounding       Rounding
		price          int64
		period         BillingPeriod
		promo          string
		periodDiscount int64
		promoDiscount  int64
		total          int64
	}{
		// 90 * 5% = 4.5
		{"period tie half-up", RoundHalfUp, 30, Quarterly, "", 5, 0, 85},
		{"period tie half-even", RoundHalfEven, 30, Quarterly, "", 4, 0, 86},
		// 25 * 10% = 2.5
		{"promo tie half-up", RoundHalfUp, 25, Monthly, "TEN", 0, 3, 22},
		{"promo tie half-even", RoundHalfEven, 25, Monthly, "TEN", 0, 2, 23},
		// 35 * 10% = 3.5 rounds to 4 both ways
		{"odd tie half-even", RoundHalfEven, 35, Monthly, "TEN", 0, 4, 31},
		// 204 * 20% = 40.8 is not a tie
		{"non tie half-even", RoundHalfEven, 17, Yearly, "", 31, 0, 173},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewCalculator(promos, tt.rounding).ComputePrice(planAt(tt.price), tt.period, tt.promo)
			require.NoError(t, err)
			assert.Equal(t, tt.periodDiscount, b.PeriodDiscountAmount)
			assert.Equal(t, tt.promoDiscount, b.PromoDiscountAmount)
			assert.Equal(t, tt.total, b.Total)
		})
	}
}

func TestComputePrice_YearlySave20BothRoundings(t *testing.T) {
	for _, r := range []Rounding{RoundHalfUp, RoundHalfEven} {
		b, err := NewCalculator(DefaultPromoTable(), r).ComputePrice(planAt(20), Yearly, "SAVE20")
		require.NoError(t, err)
		assert.Equal(t, int64(41), b.PromoDiscountAmount)
		assert.Equal(t, int64(163), b.Total)
	}
}

func TestParseRounding(t *testing.T) {
	r, err := ParseRounding("")
	require.NoError(t, err)
	assert.Equal(t, RoundHalfUp, r)

	r, err = ParseRounding("bankers")
	require.NoError(t, err)
	assert.Equal(t, RoundHalfEven, r)

	_, err = ParseRounding("truncate")
	assert.Error(t, err)
}

// =============================================================================
// Determinism Tests
// =============================================================================

func TestComputePrice_Deterministic(t *testing.T) {
	calc := defaultCalculator()
	prices := []int64{0, 1, 7, 99, 500, 1999, 2000, 12345, 1_000_000}
	promos := []string{"", "WELCOME10", "SAVE20", "NOPE"}

	for _, price := range prices {
		for _, period := range BillingPeriods {
			for _, promo := range promos {
				first, err1 := calc.ComputePrice(planAt(price), period, promo)
				second, err2 := calc.ComputePrice(planAt(price), period, promo)

				if diff := cmp.Diff(first, second, decimalComparer); diff != "" {
					t.Fatalf("price=%d period=%s promo=%q differs (-first +second):\n%s", price, period, promo, diff)
				}
				assert.Equal(t, err1 == nil, err2 == nil)
				assert.GreaterOrEqual(t, first.Total, int64(0))
				assert.LessOrEqual(t, first.Total, first.Subtotal)
				assert.Equal(t, first.Subtotal-first.PeriodDiscountAmount-first.PromoDiscountAmount, first.Total)
			}
		}
	}
}

// =============================================================================
// Promo Table Tests
// =============================================================================

func TestNewPromoCode(t *testing.T) {
	p, err := NewPromoCode(" spring15 ", 15)
	require.NoError(t, err)
	assert.Equal(t, "SPRING15", p.Code)
	assert.True(t, p.Active)

	_, err = NewPromoCode("X", 101)
	assert.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = NewPromoCode("X", -1)
	assert.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = NewPromoCode("  ", 10)
	assert.ErrorIs(t, err, ErrEmptyPromoCode)
}

func TestPromoTable_Resolve(t *testing.T) {
	table := NewPromoTable([]PromoCode{
		{Code: "live", DiscountPercent: 5, Active: true},
		{Code: "EXPIRED", DiscountPercent: 50, Active: false},
	})

	p, err := table.ResolvePromoCode("LIVE")
	require.NoError(t, err)
	assert.Equal(t, 5, p.DiscountPercent)

	_, err = table.ResolvePromoCode("expired")
	assert.ErrorIs(t, err, domain.ErrInvalidPromoCode)

	table["BROKEN"] = PromoCode{Code: "BROKEN", DiscountPercent: 150, Active: true}
	_, err = table.ResolvePromoCode("broken")
	assert.ErrorIs(t, err, domain.ErrInvalidPromoCode)
}
