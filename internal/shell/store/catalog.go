package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/pricing"
)

// =============================================================================
// Plan Operations
// =============================================================================

// planRow represents a plan row in the database.
type planRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Family       string `db:"family"`
	CPUCores     int    `db:"cpu_cores"`
	RAMGB        int    `db:"ram_gb"`
	StorageGB    int    `db:"storage_gb"`
	BandwidthTB  int    `db:"bandwidth_tb"`
	PriceMonthly int64  `db:"price_monthly_cents"`
	Active       bool   `db:"active"`
	Visible      bool   `db:"visible"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (q *queries) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	var row planRow
	err := q.exec.GetContext(ctx, &row, `SELECT * FROM plans WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetPlan", "plan", id, "plan not found", ErrNotFound)
		}
		return nil, NewStoreError("GetPlan", "plan", id, err.Error(), err)
	}

	plan := rowToPlan(&row)
	return &plan, nil
}

func (q *queries) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	var rows []planRow
	if err := q.exec.SelectContext(ctx, &rows, `SELECT * FROM plans ORDER BY family DESC, price_monthly_cents, id`); err != nil {
		return nil, NewStoreError("ListPlans", "plan", "", err.Error(), err)
	}

	plans := make([]domain.Plan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, rowToPlan(&row))
	}
	return plans, nil
}

// UpsertPlan inserts or replaces a plan. CreatedAt of an existing row is kept.
func (q *queries) UpsertPlan(ctx context.Context, plan *domain.Plan) error {
	if err := plan.Validate(); err != nil {
		return NewStoreError("UpsertPlan", "plan", plan.ID, err.Error(), ErrInvalidData)
	}

	now := time.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	query := `
		INSERT INTO plans (
			id, name, family, cpu_cores, ram_gb, storage_gb, bandwidth_tb,
			price_monthly_cents, active, visible, created_at, updated_at
		) VALUES (
			:id, :name, :family, :cpu_cores, :ram_gb, :storage_gb, :bandwidth_tb,
			:price_monthly_cents, :active, :visible, :created_at, :updated_at
		)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			family = excluded.family,
			cpu_cores = excluded.cpu_cores,
			ram_gb = excluded.ram_gb,
			storage_gb = excluded.storage_gb,
			bandwidth_tb = excluded.bandwidth_tb,
			price_monthly_cents = excluded.price_monthly_cents,
			active = excluded.active,
			visible = excluded.visible,
			updated_at = excluded.updated_at`

	row := planRow{
		ID:           plan.ID,
		Name:         plan.Name,
		Family:       string(plan.Family),
		CPUCores:     plan.CPUCores,
		RAMGB:        plan.RAMGB,
		StorageGB:    plan.StorageGB,
		BandwidthTB:  plan.BandwidthTB,
		PriceMonthly: plan.PriceMonthly,
		Active:       plan.Active,
		Visible:      plan.Visible,
		CreatedAt:    formatTime(plan.CreatedAt),
		UpdatedAt:    formatTime(plan.UpdatedAt),
	}

	if _, err := q.exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("UpsertPlan", "plan", plan.ID, err.Error(), err)
	}
	return nil
}

func rowToPlan(row *planRow) domain.Plan {
	return domain.Plan{
		ID:           row.ID,
		Name:         row.Name,
		Family:       domain.Family(row.Family),
		CPUCores:     row.CPUCores,
		RAMGB:        row.RAMGB,
		StorageGB:    row.StorageGB,
		BandwidthTB:  row.BandwidthTB,
		PriceMonthly: row.PriceMonthly,
		Active:       row.Active,
		Visible:      row.Visible,
		CreatedAt:    parseTime(row.CreatedAt),
		UpdatedAt:    parseTime(row.UpdatedAt),
	}
}

// =============================================================================
// Datacenter Operations
// =============================================================================

type datacenterRow struct {
	Name    string `db:"name"`
	Code    string `db:"code"`
	Country string `db:"country"`
	Active  bool   `db:"active"`
}

func (q *queries) ListDatacenters(ctx context.Context) ([]domain.Datacenter, error) {
	var rows []datacenterRow
	if err := q.exec.SelectContext(ctx, &rows, `SELECT * FROM datacenters ORDER BY name`); err != nil {
		return nil, NewStoreError("ListDatacenters", "datacenter", "", err.Error(), err)
	}

	dcs := make([]domain.Datacenter, 0, len(rows))
	for _, row := range rows {
		dcs = append(dcs, domain.Datacenter(row))
	}
	return dcs, nil
}

func (q *queries) UpsertDatacenter(ctx context.Context, dc *domain.Datacenter) error {
	if dc.Name == "" || dc.Code == "" {
		return NewStoreError("UpsertDatacenter", "datacenter", dc.Name, "name and code are required", ErrInvalidData)
	}

	query := `
		INSERT INTO datacenters (name, code, country, active)
		VALUES (:name, :code, :country, :active)
		ON CONFLICT(name) DO UPDATE SET
			code = excluded.code,
			country = excluded.country,
			active = excluded.active`

	if _, err := q.exec.NamedExecContext(ctx, query, datacenterRow(*dc)); err != nil {
		if isUniqueViolation(err) {
			return NewStoreError("UpsertDatacenter", "datacenter", dc.Name, "code already used by another datacenter", ErrDuplicateID)
		}
		return NewStoreError("UpsertDatacenter", "datacenter", dc.Name, err.Error(), err)
	}
	return nil
}

// =============================================================================
// OS Template Operations
// =============================================================================

type osTemplateRow struct {
	Name     string `db:"name"`
	Family   string `db:"family"`
	MinRAMGB int    `db:"min_ram_gb"`
	Active   bool   `db:"active"`
}

func (q *queries) ListOSTemplates(ctx context.Context, family domain.Family) ([]domain.OSTemplate, error) {
	var rows []osTemplateRow
	var err error
	if family == "" {
		err = q.exec.SelectContext(ctx, &rows, `SELECT * FROM os_templates ORDER BY family DESC, name`)
	} else {
		err = q.exec.SelectContext(ctx, &rows, `SELECT * FROM os_templates WHERE family = ? ORDER BY name`, string(family))
	}
	if err != nil {
		return nil, NewStoreError("ListOSTemplates", "os_template", "", err.Error(), err)
	}

	templates := make([]domain.OSTemplate, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, domain.OSTemplate{
			Name:     row.Name,
			Family:   domain.Family(row.Family),
			MinRAMGB: row.MinRAMGB,
			Active:   row.Active,
		})
	}
	return templates, nil
}

func (q *queries) UpsertOSTemplate(ctx context.Context, tmpl *domain.OSTemplate) error {
	if tmpl.Name == "" {
		return NewStoreError("UpsertOSTemplate", "os_template", "", "name is required", ErrInvalidData)
	}
	if _, err := domain.ParseFamily(string(tmpl.Family)); err != nil {
		return NewStoreError("UpsertOSTemplate", "os_template", tmpl.Name, err.Error(), ErrInvalidData)
	}

	query := `
		INSERT INTO os_templates (name, family, min_ram_gb, active)
		VALUES (:name, :family, :min_ram_gb, :active)
		ON CONFLICT(name) DO UPDATE SET
			family = excluded.family,
			min_ram_gb = excluded.min_ram_gb,
			active = excluded.active`

	row := osTemplateRow{
		Name:     tmpl.Name,
		Family:   string(tmpl.Family),
		MinRAMGB: tmpl.MinRAMGB,
		Active:   tmpl.Active,
	}
	if _, err := q.exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("UpsertOSTemplate", "os_template", tmpl.Name, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Promo Code Operations
// =============================================================================

type promoCodeRow struct {
	Code            string `db:"code"`
	DiscountPercent int    `db:"discount_percent"`
	Active          bool   `db:"active"`
}

// GetPromoCode looks a code up case-insensitively. Inactive codes are returned;
// callers decide whether they apply.
func (q *queries) GetPromoCode(ctx context.Context, code string) (*pricing.PromoCode, error) {
	code = pricing.NormalizeCode(code)

	var row promoCodeRow
	err := q.exec.GetContext(ctx, &row, `SELECT * FROM promo_codes WHERE code = ?`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetPromoCode", "promo_code", code, "promo code not found", ErrNotFound)
		}
		return nil, NewStoreError("GetPromoCode", "promo_code", code, err.Error(), err)
	}

	promo := pricing.PromoCode(row)
	return &promo, nil
}

func (q *queries) ListPromoCodes(ctx context.Context) ([]pricing.PromoCode, error) {
	var rows []promoCodeRow
	if err := q.exec.SelectContext(ctx, &rows, `SELECT * FROM promo_codes ORDER BY code`); err != nil {
		return nil, NewStoreError("ListPromoCodes", "promo_code", "", err.Error(), err)
	}

	promos := make([]pricing.PromoCode, 0, len(rows))
	for _, row := range rows {
		promos = append(promos, pricing.PromoCode(row))
	}
	return promos, nil
}

func (q *queries) UpsertPromoCode(ctx context.Context, promo *pricing.PromoCode) error {
	normalized, err := pricing.NewPromoCode(promo.Code, promo.DiscountPercent)
	if err != nil {
		return NewStoreError("UpsertPromoCode", "promo_code", promo.Code, err.Error(), ErrInvalidData)
	}
	normalized.Active = promo.Active

	query := `
		INSERT INTO promo_codes (code, discount_percent, active)
		VALUES (:code, :discount_percent, :active)
		ON CONFLICT(code) DO UPDATE SET
			discount_percent = excluded.discount_percent,
			active = excluded.active`

	if _, err := q.exec.NamedExecContext(ctx, query, promoCodeRow(normalized)); err != nil {
		return NewStoreError("UpsertPromoCode", "promo_code", normalized.Code, err.Error(), err)
	}
	*promo = normalized
	return nil
}
