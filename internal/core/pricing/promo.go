package pricing

import (
	"fmt"
	"strings"

	"github.com/artpar/panel/internal/core/domain"
)

// PromoCode maps a customer-supplied code to a percentage discount.
type PromoCode struct {
	Code            string `json:"code" yaml:"code"`
	DiscountPercent int    `json:"discount_percent" yaml:"discount_percent"`
	Active          bool   `json:"active" yaml:"active"`
}

// NewPromoCode normalizes the code and checks the discount bounds.
func NewPromoCode(code string, percent int) (PromoCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return PromoCode{}, ErrEmptyPromoCode
	}
	if percent < 0 || percent > 100 {
		return PromoCode{}, fmt.Errorf("%w: %d", ErrInvalidDiscount, percent)
	}
	return PromoCode{Code: code, DiscountPercent: percent, Active: true}, nil
}

// NormalizeCode upper-cases and trims a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoResolver looks up promo codes.
type PromoResolver interface {
	ResolvePromoCode(code string) (PromoCode, error)
}

// PromoTable is an in-memory resolver keyed by normalized code.
type PromoTable map[string]PromoCode

// DefaultPromoTable returns the built-in codes.
func DefaultPromoTable() PromoTable {
	return PromoTable{
		"WELCOME10": {Code: "WELCOME10", DiscountPercent: 10, Active: true},
		"SAVE20":    {Code: "SAVE20", DiscountPercent: 20, Active: true},
	}
}

// NewPromoTable builds a table from a list, skipping inactive codes.
func NewPromoTable(codes []PromoCode) PromoTable {
	t := make(PromoTable, len(codes))
	for _, c := range codes {
		if !c.Active {
			continue
		}
		t[NormalizeCode(c.Code)] = c
	}
	return t
}

// ResolvePromoCode implements PromoResolver.
func (t PromoTable) ResolvePromoCode(code string) (PromoCode, error) {
	p, ok := t[NormalizeCode(code)]
	if !ok || !p.Active {
		return PromoCode{}, fmt.Errorf("%w: %s", domain.ErrInvalidPromoCode, code)
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		return PromoCode{}, fmt.Errorf("%w: %s carries %d%% (%v)", domain.ErrInvalidPromoCode, code, p.DiscountPercent, ErrInvalidDiscount)
	}
	return p, nil
}
