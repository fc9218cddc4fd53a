// Package billing prices checkouts from the stored catalog.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/pricing"
	"github.com/artpar/panel/internal/shell/store"
)

// Quoter computes price breakdowns for plans in the store.
type Quoter struct {
	store    store.Store
	rounding pricing.Rounding
	logger   *slog.Logger
}

// NewQuoter creates a quoter.
func NewQuoter(s store.Store, rounding pricing.Rounding, logger *slog.Logger) *Quoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Quoter{store: s, rounding: rounding, logger: logger.With("component", "billing")}
}

// Quote prices planID for a billing period. An unknown promo code yields a
// full-price breakdown together with an error wrapping
// domain.ErrInvalidPromoCode; every other error leaves the breakdown empty.
func (q *Quoter) Quote(ctx context.Context, planID string, period pricing.BillingPeriod, promoCode string) (pricing.Breakdown, error) {
	plan, err := q.store.GetPlan(ctx, planID)
	if err != nil {
		if store.IsNotFound(err) {
			return pricing.Breakdown{}, fmt.Errorf("%w: plan %s", domain.ErrNotFound, planID)
		}
		q.logger.Error("failed to load plan", "plan_id", planID, "error", err)
		return pricing.Breakdown{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !plan.Orderable() {
		return pricing.Breakdown{}, fmt.Errorf("%w: plan %s is not available", domain.ErrNotFound, planID)
	}

	promos, err := q.store.ListPromoCodes(ctx)
	if err != nil {
		q.logger.Error("failed to load promo codes", "error", err)
		return pricing.Breakdown{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	calc := pricing.NewCalculator(pricing.NewPromoTable(promos), q.rounding)
	breakdown, err := calc.ComputePrice(*plan, period, promoCode)
	if err != nil && !errors.Is(err, domain.ErrInvalidPromoCode) {
		return pricing.Breakdown{}, err
	}
	return breakdown, err
}

// QuoteAll prices a plan for every billing period without a promo code, in
// display order.
func (q *Quoter) QuoteAll(ctx context.Context, planID string) ([]pricing.Breakdown, error) {
	quotes := make([]pricing.Breakdown, 0, len(pricing.BillingPeriods))
	for _, period := range pricing.BillingPeriods {
		b, err := q.Quote(ctx, planID, period, "")
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, b)
	}
	return quotes, nil
}
