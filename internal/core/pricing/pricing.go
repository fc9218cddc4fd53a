// Package pricing computes checkout charges from a plan, a billing period and an
// optional promo code. All functions are pure; money is integer minor units (cents)
// and intermediate math runs on shopspring/decimal so no binary floating point is
// involved.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownBillingPeriod = errors.New("unknown billing period")
	ErrInvalidDiscount      = errors.New("discount percent must be between 0 and 100")
	ErrEmptyPromoCode       = errors.New("promo code is empty")
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// Billing Periods
// =============================================================================

type BillingPeriod string

const (
	Monthly   BillingPeriod = "monthly"
	Quarterly BillingPeriod = "quarterly"
	Yearly    BillingPeriod = "yearly"
)

type periodTerms struct {
	months          int64
	discountPercent int64
}

var periodTable = map[BillingPeriod]periodTerms{
	Monthly:   {months: 1, discountPercent: 0},
	Quarterly: {months: 3, discountPercent: 5},
	Yearly:    {months: 12, discountPercent: 15},
}

// BillingPeriods lists the periods in display order.
var BillingPeriods = []BillingPeriod{Monthly, Quarterly, Yearly}

// ParseBillingPeriod accepts a period name in any case.
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	p := BillingPeriod(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := periodTable[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBillingPeriod, s)
	}
	return p, nil
}

// Months returns the number of months the period bills for.
func (p BillingPeriod) Months() int64 {
	return periodTable[p].months
}

// DiscountPercent returns the period's fixed discount.
func (p BillingPeriod) DiscountPercent() int64 {
	return periodTable[p].discountPercent
}

// Valid reports whether p is one of the known periods.
func (p BillingPeriod) Valid() bool {
	_, ok := periodTable[p]
	return ok
}

// =============================================================================
// Rounding
// =============================================================================

// Rounding selects how fractional cents are resolved.
type Rounding int

const (
	// RoundHalfUp rounds .5 away from zero (40.5 -> 41).
	RoundHalfUp Rounding = iota
	// RoundHalfEven rounds .5 to the nearest even cent (40.5 -> 40, 41.5 -> 42).
	RoundHalfEven
)

// ParseRounding maps a config value to a Rounding mode.
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half_up", "half-up":
		return RoundHalfUp, nil
	case "half_even", "half-even", "bankers":
		return RoundHalfEven, nil
	default:
		return RoundHalfUp, fmt.Errorf("unknown rounding mode %q", s)
	}
}

func (r Rounding) apply(d decimal.Decimal) int64 {
	if r == RoundHalfEven {
		return d.RoundBank(0).IntPart()
	}
	return d.Round(0).IntPart()
}

// percentOf returns round(amount * percent / 100).
func (r Rounding) percentOf(amount, percent int64) int64 {
	if amount == 0 || percent == 0 {
		return 0
	}
	v := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(percent)).Div(hundred)
	return r.apply(v)
}

// =============================================================================
// Breakdown
// =============================================================================

// Breakdown is the itemized charge for one checkout.
type Breakdown struct {
	PlanID               string          `json:"plan_id"`
	Period               BillingPeriod   `json:"billing_period"`
	Months               int64           `json:"months"`
	Subtotal             int64           `json:"subtotal"`
	PeriodDiscountAmount int64           `json:"period_discount_amount"`
	AfterPeriod          int64           `json:"after_period"`
	PromoCode            string          `json:"promo_code,omitempty"`
	PromoDiscountPercent int64           `json:"promo_discount_percent"`
	PromoDiscountAmount  int64           `json:"promo_discount_amount"`
	Total                int64           `json:"total"`
	EffectiveMonthlyRate decimal.Decimal `json:"effective_monthly_rate"`
}

// =============================================================================
// Calculator
// =============================================================================

// Calculator prices plans. The zero value uses half-up rounding and rejects
// every promo code.
type Calculator struct {
	Promos   PromoResolver
	Rounding Rounding
}

// NewCalculator creates a calculator backed by the given promo lookup.
func NewCalculator(promos PromoResolver, rounding Rounding) *Calculator {
	return &Calculator{Promos: promos, Rounding: rounding}
}

// ComputePrice prices a plan for a billing period with an optional promo code.
//
// An unknown promo code yields a breakdown at full price together with an error
// wrapping domain.ErrInvalidPromoCode; the caller decides whether to block checkout.
// Any other error means the breakdown is unusable.
func (c *Calculator) ComputePrice(plan domain.Plan, period BillingPeriod, promoCode string) (Breakdown, error) {
	if !period.Valid() {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrUnknownBillingPeriod, period)
	}
	if plan.PriceMonthly < 0 {
		return Breakdown{}, domain.ErrNegativePrice
	}

	months := period.Months()
	b := Breakdown{
		PlanID: plan.ID,
		Period: period,
		Months: months,
	}
	b.Subtotal = plan.PriceMonthly * months
	b.PeriodDiscountAmount = c.Rounding.percentOf(b.Subtotal, period.DiscountPercent())
	b.AfterPeriod = b.Subtotal - b.PeriodDiscountAmount

	var promoErr error
	if code := strings.TrimSpace(promoCode); code != "" {
		promo, err := c.resolve(code)
		if err != nil {
			promoErr = err
		} else {
			b.PromoCode = promo.Code
			b.PromoDiscountPercent = int64(promo.DiscountPercent)
			b.PromoDiscountAmount = c.Rounding.percentOf(b.AfterPeriod, b.PromoDiscountPercent)
		}
	}

	b.Total = b.AfterPeriod - b.PromoDiscountAmount
	if b.Total < 0 {
		b.Total = 0
	}
	b.EffectiveMonthlyRate = decimal.NewFromInt(b.Total).Div(decimal.NewFromInt(months))

	return b, promoErr
}

func (c *Calculator) resolve(code string) (PromoCode, error) {
	if c.Promos == nil {
		return PromoCode{}, fmt.Errorf("%w: %s", domain.ErrInvalidPromoCode, code)
	}
	return c.Promos.ResolvePromoCode(code)
}
