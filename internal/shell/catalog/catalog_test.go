package catalog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
plans:
  - id: rdp-mega
    name: RDP Mega
    family: RDP
    cpu_cores: 8
    ram_gb: 32
    storage_gb: 400
    bandwidth_tb: 10
    price_monthly_cents: 9900
    active: true
    visible: true
datacenters:
  - name: Tokyo
    code: tyo1
    country: JP
    active: true
os_templates:
  - name: Windows Server 2025
    family: RDP
    min_ram_gb: 8
    active: true
promo_codes:
  - code: spring15
    discount_percent: 15
    active: true
`

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	require.Len(t, f.Plans, 1)
	assert.Equal(t, domain.FamilyRDP, f.Plans[0].Family)
	assert.Equal(t, int64(9900), f.Plans[0].PriceMonthly)
	require.Len(t, f.Datacenters, 1)
	assert.Equal(t, "tyo1", f.Datacenters[0].Code)
	require.Len(t, f.PromoCodes, 1)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Plans)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "plans:\n  - id: x\n    colour: red\n"},
		{"bad family", "plans:\n  - id: x\n    name: X\n    family: GPU\n"},
		{"negative price", "plans:\n  - id: x\n    name: X\n    family: VPS\n    price_monthly_cents: -1\n"},
		{"duplicate plan", "plans:\n  - {id: x, name: X, family: VPS}\n  - {id: x, name: Y, family: VPS}\n"},
		{"datacenter without code", "datacenters:\n  - name: Nowhere\n"},
		{"duplicate code", "datacenters:\n  - {name: A, code: a1}\n  - {name: B, code: a1}\n"},
		{"template family", "os_templates:\n  - {name: BeOS, family: DESKTOP}\n"},
		{"promo over 100", "promo_codes:\n  - {code: HUGE, discount_percent: 150, active: true}\n"},
		{"duplicate promo", "promo_codes:\n  - {code: a, discount_percent: 1}\n  - {code: A, discount_percent: 2}\n"},
		{"not yaml", "plans: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.OSTemplates, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// Import / Export Tests
// =============================================================================

func TestImport(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	f, err := Parse(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	sum, err := Import(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, Summary{Plans: 1, Datacenters: 1, OSTemplates: 1, PromoCodes: 1}, sum)

	plan, err := s.GetPlan(ctx, "rdp-mega")
	require.NoError(t, err)
	assert.Equal(t, 32, plan.RAMGB)

	promo, err := s.GetPromoCode(ctx, "SPRING15")
	require.NoError(t, err)
	assert.Equal(t, 15, promo.DiscountPercent)

	// re-import is an upsert
	_, err = Import(ctx, s, f)
	require.NoError(t, err)
}

func TestImport_RollsBackOnFailure(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	// passes File.Validate but collides with the seeded fra1 code
	f := &File{
		Plans:       []domain.Plan{{ID: "rdp-rollback", Name: "Rollback", Family: domain.FamilyRDP, Active: true}},
		Datacenters: []domain.Datacenter{{Name: "Frankfurt Two", Code: "fra1"}},
	}
	require.NoError(t, f.Validate())

	_, err := Import(ctx, s, f)
	assert.ErrorIs(t, err, store.ErrDuplicateID)

	_, err = s.GetPlan(ctx, "rdp-rollback")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExport_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	f, err := Export(ctx, s)
	require.NoError(t, err)
	assert.NotEmpty(t, f.Plans)
	assert.NotEmpty(t, f.Datacenters)

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	assert.Contains(t, buf.String(), "rdp-standard")

	parsed, err := Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, parsed.Plans, len(f.Plans))
	assert.Len(t, parsed.PromoCodes, len(f.PromoCodes))
}
